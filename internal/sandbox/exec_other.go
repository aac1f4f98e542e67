//go:build !(linux && amd64)

package sandbox

import (
	"errors"
	"io"
)

// ExecOptions configures one sandboxed command execution.
type ExecOptions struct {
	Mounts    []MountSpec
	DefaultDB string
	Strace    io.Writer
	WorkDir   string
}

// ErrUnsupported is returned on platforms without the syscall tracer.
var ErrUnsupported = errors.New("sandbox requires linux/amd64")

// Exec is unavailable: syscall interception relies on a tracer capability
// this platform does not provide.
func Exec(argv []string, opts ExecOptions) (int, error) {
	return 0, ErrUnsupported
}
