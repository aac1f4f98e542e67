//go:build linux && amd64

// Copyright 2025 AgentStore Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package integration

import (
	"context"
	"path/filepath"
	"testing"

	. "github.com/onsi/gomega"

	"agentstore/internal/sandbox"
	"agentstore/internal/storage"
)

// ptraceAvailable probes whether this environment permits tracing;
// containers frequently block ptrace via seccomp.
func ptraceAvailable(t *testing.T) bool {
	t.Helper()
	code, err := sandbox.Exec([]string{"/bin/true"}, sandbox.ExecOptions{
		DefaultDB: filepath.Join(t.TempDir(), "probe.db"),
	})
	return err == nil && code == 0
}

// TestSandboxWriteThenRead runs a shell under the sandbox that writes a
// file into the /agent mount, then reads the store directly after the
// process has exited. This exercises openat, write, close, and the
// per-process fd table.
func TestSandboxWriteThenRead(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sandbox test in short mode")
	}
	if !ptraceAvailable(t) {
		t.Skip("ptrace is not available in this environment")
	}

	g := NewWithT(t)
	db := filepath.Join(t.TempDir(), "sandbox.db")

	code, err := sandbox.Exec(
		[]string{"/bin/sh", "-c", "echo hi > /agent/f"},
		sandbox.ExecOptions{DefaultDB: db},
	)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(code).To(BeZero())

	store, err := storage.Open(db)
	g.Expect(err).NotTo(HaveOccurred())
	defer store.Close()

	data, err := storage.NewFS(store).ReadFile(context.Background(), "/f")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(string(data)).To(Equal("hi\n"))
}

// TestSandboxExitCodeForwarding checks that the guest's exit code
// propagates through the supervisor.
func TestSandboxExitCodeForwarding(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sandbox test in short mode")
	}
	if !ptraceAvailable(t) {
		t.Skip("ptrace is not available in this environment")
	}

	g := NewWithT(t)
	code, err := sandbox.Exec(
		[]string{"/bin/sh", "-c", "exit 7"},
		sandbox.ExecOptions{DefaultDB: filepath.Join(t.TempDir(), "exit.db")},
	)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(code).To(Equal(7))
}

// TestSandboxReadBack runs a guest that writes and then reads the same
// file in one process, exercising the read path and lseek-free
// sequential I/O through a virtual fd.
func TestSandboxReadBack(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping sandbox test in short mode")
	}
	if !ptraceAvailable(t) {
		t.Skip("ptrace is not available in this environment")
	}

	g := NewWithT(t)
	code, err := sandbox.Exec(
		[]string{"/bin/sh", "-c", "echo data > /agent/x && cat /agent/x > /dev/null"},
		sandbox.ExecOptions{DefaultDB: filepath.Join(t.TempDir(), "rb.db")},
	)
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(code).To(BeZero())
}
