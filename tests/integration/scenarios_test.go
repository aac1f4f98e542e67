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

	"agentstore/internal/common"
	"agentstore/internal/storage"
)

func newStore(t *testing.T) (*storage.Store, *storage.FS) {
	t.Helper()
	store, err := storage.Create(filepath.Join(t.TempDir(), "scenario.db"))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store, storage.NewFS(store)
}

// TestScenarios exercises the end-to-end filesystem scenarios, each from
// a fresh store.
func TestScenarios(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("DirectoriesAndFiles", func(t *testing.T) {
		t.Parallel()
		g := NewWithT(t)
		_, fs := newStore(t)

		g.Expect(fs.Mkdir(ctx, "/a", 0o755)).To(Succeed())
		g.Expect(fs.WriteFile(ctx, "/a/x", []byte("hello"))).To(Succeed())

		names, err := fs.Readdir(ctx, "/a")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(names).To(Equal([]string{"x"}))

		data, err := fs.ReadFile(ctx, "/a/x")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(data).To(Equal([]byte("hello")))

		stat, err := fs.Stat(ctx, "/a/x")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(stat.Size).To(BeEquivalentTo(5))
	})

	t.Run("HardLinkSemantics", func(t *testing.T) {
		t.Parallel()
		g := NewWithT(t)
		_, fs := newStore(t)

		g.Expect(fs.WriteFile(ctx, "/f", []byte("v1"))).To(Succeed())
		g.Expect(fs.Link(ctx, "/f", "/g")).To(Succeed())

		stat, err := fs.Stat(ctx, "/f")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(stat.Nlink).To(BeEquivalentTo(2))

		g.Expect(fs.Unlink(ctx, "/f")).To(Succeed())

		data, err := fs.ReadFile(ctx, "/g")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(data).To(Equal([]byte("v1")))

		stat, err = fs.Stat(ctx, "/g")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(stat.Nlink).To(BeEquivalentTo(1))
	})

	t.Run("SymlinkFollowNoFollow", func(t *testing.T) {
		t.Parallel()
		g := NewWithT(t)
		_, fs := newStore(t)

		g.Expect(fs.WriteFile(ctx, "/target", []byte("T"))).To(Succeed())
		g.Expect(fs.Symlink(ctx, "/target", "/link")).To(Succeed())

		data, err := fs.ReadFile(ctx, "/link")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(data).To(Equal([]byte("T")))

		lstat, err := fs.Lstat(ctx, "/link")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(lstat.IsSymlink()).To(BeTrue())

		stat, err := fs.Stat(ctx, "/link")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(stat.IsFile()).To(BeTrue())

		target, err := fs.Readlink(ctx, "/link")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(target).To(Equal("/target"))
	})

	t.Run("SymlinkLoop", func(t *testing.T) {
		t.Parallel()
		g := NewWithT(t)
		_, fs := newStore(t)

		g.Expect(fs.Symlink(ctx, "/b", "/a")).To(Succeed())
		g.Expect(fs.Symlink(ctx, "/a", "/b")).To(Succeed())

		_, err := fs.ReadFile(ctx, "/a")
		g.Expect(err).To(MatchError(common.ErrSymlinkLoop))
	})

	t.Run("MkdirRmdirRoundTrip", func(t *testing.T) {
		t.Parallel()
		g := NewWithT(t)
		_, fs := newStore(t)

		g.Expect(fs.Mkdir(ctx, "/p", 0o755)).To(Succeed())
		g.Expect(fs.Rmdir(ctx, "/p")).To(Succeed())

		names, err := fs.Readdir(ctx, "/")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(names).To(BeEmpty())
	})

	t.Run("RenamePreservesInode", func(t *testing.T) {
		t.Parallel()
		g := NewWithT(t)
		_, fs := newStore(t)

		g.Expect(fs.WriteFile(ctx, "/a", []byte("data"))).To(Succeed())
		before, err := fs.Stat(ctx, "/a")
		g.Expect(err).NotTo(HaveOccurred())

		g.Expect(fs.Rename(ctx, "/a", "/b")).To(Succeed())

		_, err = fs.Stat(ctx, "/a")
		g.Expect(err).To(MatchError(common.ErrNotFound))

		after, err := fs.Stat(ctx, "/b")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(after.Ino).To(Equal(before.Ino))

		data, err := fs.ReadFile(ctx, "/b")
		g.Expect(err).NotTo(HaveOccurred())
		g.Expect(data).To(Equal([]byte("data")))
	})
}

// TestAtomicReplaceUnderFailure verifies that a failed whole-file write
// leaves the previous content untouched: a concurrent writer holds the
// store's write lock so the replacing transaction cannot commit.
func TestAtomicReplaceUnderFailure(t *testing.T) {
	// Tight busy timeout so the blocked write fails fast instead of
	// waiting out the default 30s.
	t.Setenv(storage.EnvBusyTimeout, "100")

	g := NewWithT(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "atomic.db")

	store, err := storage.Open(path)
	g.Expect(err).NotTo(HaveOccurred())
	defer store.Close()
	fs := storage.NewFS(store)

	b1 := []byte("first version")
	g.Expect(fs.WriteFile(ctx, "/big", b1)).To(Succeed())

	// A second connection takes the write lock for the duration of the
	// replacement attempt.
	blocker, err := storage.Open(path)
	g.Expect(err).NotTo(HaveOccurred())
	defer blocker.Close()

	tx, err := blocker.DB().BeginTx(ctx, nil)
	g.Expect(err).NotTo(HaveOccurred())
	_, err = tx.Exec("INSERT INTO kv (key, value, created_at, updated_at) VALUES ('hold', '1', 0, 0)")
	g.Expect(err).NotTo(HaveOccurred())

	err = fs.WriteFile(ctx, "/big", []byte("second version"))
	g.Expect(err).To(HaveOccurred())

	g.Expect(tx.Rollback()).To(Succeed())

	// No partial state: the first content survives intact.
	data, err := fs.ReadFile(ctx, "/big")
	g.Expect(err).NotTo(HaveOccurred())
	g.Expect(data).To(Equal(b1))
}
