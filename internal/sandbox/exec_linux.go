//go:build linux && amd64

package sandbox

import (
	"fmt"
	"io"

	"github.com/gofrs/flock"
	log "github.com/sirupsen/logrus"
)

// ExecOptions configures one sandboxed command execution.
type ExecOptions struct {
	// Mounts are the explicit mount specs, in command-line order.
	Mounts []MountSpec
	// DefaultDB backs the implicit /agent mount when no explicit mount
	// claims it.
	DefaultDB string
	// Strace enables the per-syscall trace to the given writer.
	Strace io.Writer
	// WorkDir is the guest's initial working directory.
	WorkDir string
}

// Exec runs argv under the sandbox and returns the child's exit code.
// Every sqlite mount's store is guarded by an advisory sidecar lock for
// the duration of the run, so two sandboxes do not share one store file.
func Exec(argv []string, opts ExecOptions) (int, error) {
	table, stores, err := BuildMountTable(opts.Mounts, opts.DefaultDB)
	if err != nil {
		return 0, err
	}
	defer func() {
		for _, store := range stores {
			store.Close()
		}
	}()

	var locks []*flock.Flock
	defer func() {
		for _, l := range locks {
			l.Unlock()
		}
	}()
	for _, store := range stores {
		l := flock.New(store.Path() + ".lock")
		ok, err := l.TryLock()
		if err != nil {
			return 0, fmt.Errorf("failed to lock %s: %w", store.Path(), err)
		}
		if !ok {
			return 0, fmt.Errorf("store %s is in use by another sandbox", store.Path())
		}
		locks = append(locks, l)
	}

	sup := New(table, Options{Strace: opts.Strace, WorkDir: opts.WorkDir})
	log.WithField("cmd", argv[0]).Debug("starting sandboxed command")
	return sup.Run(argv)
}
