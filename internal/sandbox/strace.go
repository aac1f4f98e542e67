//go:build unix

package sandbox

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"syscall"
)

// TraceSink writes one line per handled syscall, formatted similarly to
// strace output. A nil sink disables tracing.
type TraceSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTraceSink returns a sink over w, or nil when w is nil.
func NewTraceSink(w io.Writer) *TraceSink {
	if w == nil {
		return nil
	}
	return &TraceSink{w: w}
}

// Emit writes one trace line: pid, syscall name, decoded arguments, and
// the return value.
func (t *TraceSink) Emit(pid int, name string, args []string, result int64) {
	if t == nil {
		return
	}
	ret := fmt.Sprintf("%d", result)
	if result < 0 {
		ret = fmt.Sprintf("-1 %s", errnoName(syscall.Errno(-result)))
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.w, "[pid %d] %s(%s) = %s\n", pid, name, strings.Join(args, ", "), ret)
}

// openFlagNames decodes common open(2) flag bits for trace output.
func openFlagNames(flags int) string {
	var parts []string
	switch flags & 0x3 {
	case 0:
		parts = append(parts, "O_RDONLY")
	case 1:
		parts = append(parts, "O_WRONLY")
	case 2:
		parts = append(parts, "O_RDWR")
	}
	for _, f := range []struct {
		bit  int
		name string
	}{
		{0x40, "O_CREAT"},
		{0x80, "O_EXCL"},
		{0x200, "O_TRUNC"},
		{0x400, "O_APPEND"},
		{0x10000, "O_DIRECTORY"},
		{0x80000, "O_CLOEXEC"},
	} {
		if flags&f.bit != 0 {
			parts = append(parts, f.name)
		}
	}
	return strings.Join(parts, "|")
}

func quote(s string) string {
	return fmt.Sprintf("%q", s)
}
