//go:build linux && amd64

package sandbox

import (
	"bytes"
	"fmt"
	"syscall"

	"golang.org/x/sys/unix"
)

// Guest pointers are untrusted: every copy is bounded by the declared
// buffer length and faults surface as EFAULT rather than killing the
// tracer.

// maxPathLen bounds path strings read out of guest memory.
const maxPathLen = 4096

// pageSize is used to keep cross-page reads from faulting past a mapped
// region while scanning for a NUL terminator.
const pageSize = 4096

var errFault = fmt.Errorf("bad guest address: %w", syscall.EFAULT)

// readGuestBytes copies n bytes from the guest's address space.
func readGuestBytes(pid int, addr uintptr, n int) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	if addr == 0 || n < 0 {
		return nil, errFault
	}
	buf := make([]byte, n)
	local := []unix.Iovec{{Base: &buf[0], Len: uint64(n)}}
	remote := []unix.RemoteIovec{{Base: addr, Len: n}}
	got, err := unix.ProcessVMReadv(pid, local, remote, 0)
	if err != nil || got != n {
		return nil, errFault
	}
	return buf, nil
}

// writeGuestBytes copies data into the guest's address space.
func writeGuestBytes(pid int, addr uintptr, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	if addr == 0 {
		return errFault
	}
	local := []unix.Iovec{{Base: &data[0], Len: uint64(len(data))}}
	remote := []unix.RemoteIovec{{Base: addr, Len: len(data)}}
	wrote, err := unix.ProcessVMWritev(pid, local, remote, 0)
	if err != nil || wrote != len(data) {
		return errFault
	}
	return nil
}

// readGuestString reads a NUL-terminated string of at most maxPathLen
// bytes. Reads advance page by page so a string ending near an unmapped
// page does not fault.
func readGuestString(pid int, addr uintptr) (string, error) {
	if addr == 0 {
		return "", errFault
	}
	var out []byte
	for len(out) < maxPathLen {
		chunk := pageSize - int(addr%pageSize)
		if remaining := maxPathLen - len(out); chunk > remaining {
			chunk = remaining
		}
		buf, err := readGuestBytes(pid, addr, chunk)
		if err != nil {
			return "", err
		}
		if i := bytes.IndexByte(buf, 0); i >= 0 {
			return string(append(out, buf[:i]...)), nil
		}
		out = append(out, buf...)
		addr += uintptr(chunk)
	}
	return "", errFault
}
