//go:build linux && amd64

package sandbox

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"runtime"
	"syscall"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"agentstore/internal/vfs"
)

// suppressedNR replaces the syscall number of a virtually-serviced call
// so the kernel executes nothing; the real return value is patched in at
// syscall exit.
const suppressedNR = ^uint64(0)

// ptraceOptions: syscall stops distinguishable from signals, children
// traced from birth, tracees killed if the supervisor dies.
const ptraceOptions = unix.PTRACE_O_TRACESYSGOOD |
	unix.PTRACE_O_TRACECLONE |
	unix.PTRACE_O_TRACEFORK |
	unix.PTRACE_O_TRACEVFORK |
	unix.PTRACE_O_TRACEEXEC |
	unix.PTRACE_O_EXITKILL

// Options configures a Supervisor.
type Options struct {
	// Strace, when non-nil, receives one line per handled syscall.
	Strace io.Writer
	// WorkDir is the guest's initial working directory. Defaults to the
	// supervisor's working directory.
	WorkDir string
}

// Supervisor traces a child process tree and services filesystem
// syscalls that fall under the mount table. The mount table is immutable
// and shared; everything else is owned by the supervisor's single trace
// loop, which processes one syscall stop at a time.
type Supervisor struct {
	table  *vfs.MountTable
	fds    *FDTables
	trace  *TraceSink
	logger *log.Entry

	workDir string

	// Per-task trace-loop state. Only the trace loop touches these.
	inSyscall map[int]bool
	pending   map[int]int64
	cwd       map[int]string
	chdirs    map[int]string
	newborn   map[int]bool
}

// New creates a supervisor over the given mount table.
func New(table *vfs.MountTable, opts Options) *Supervisor {
	session := uuid.NewString()[:8]
	workDir := opts.WorkDir
	if workDir == "" {
		workDir, _ = os.Getwd()
	}
	return &Supervisor{
		table:     table,
		fds:       NewFDTables(),
		trace:     NewTraceSink(opts.Strace),
		logger:    log.WithField("session", session),
		workDir:   workDir,
		inSyscall: make(map[int]bool),
		pending:   make(map[int]int64),
		cwd:       make(map[int]string),
		chdirs:    make(map[int]string),
		newborn:   make(map[int]bool),
	}
}

// Run executes argv under the sandbox and blocks until the root child
// exits, returning its exit code. Signaled children report 128+signum.
func (s *Supervisor) Run(argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("empty command")
	}

	// The tracer must stay on one OS thread: ptrace requests are only
	// valid from the thread that attached.
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.Dir = s.workDir
	cmd.SysProcAttr = &syscall.SysProcAttr{Ptrace: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("failed to start %s: %w", argv[0], err)
	}
	rootPid := cmd.Process.Pid
	s.logger.WithField("pid", rootPid).Debug("tracee started")

	// Initial exec stop.
	var ws unix.WaitStatus
	if _, err := unix.Wait4(rootPid, &ws, 0, nil); err != nil {
		return 0, fmt.Errorf("wait for initial stop: %w", err)
	}
	if err := unix.PtraceSetOptions(rootPid, ptraceOptions); err != nil {
		return 0, fmt.Errorf("failed to set ptrace options: %w", err)
	}

	s.cwd[rootPid] = s.workDir
	tasks := map[int]bool{rootPid: true}
	exitCode := 0
	rootExited := false

	if err := unix.PtraceSyscall(rootPid, 0); err != nil {
		return 0, fmt.Errorf("failed to resume tracee: %w", err)
	}

	for len(tasks) > 0 {
		pid, err := unix.Wait4(-1, &ws, unix.WALL, nil)
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.ECHILD) {
				break
			}
			return 0, fmt.Errorf("wait4: %w", err)
		}

		if ws.Exited() || ws.Signaled() {
			if ws.Exited() && pid == rootPid {
				exitCode = ws.ExitStatus()
				rootExited = true
			}
			if ws.Signaled() && pid == rootPid {
				exitCode = 128 + int(ws.Signal())
				rootExited = true
			}
			s.taskExited(pid)
			delete(tasks, pid)
			continue
		}

		if !ws.Stopped() {
			continue
		}

		firstSeen := false
		if !tasks[pid] {
			// First stop of a child whose fork event has not arrived
			// yet; its fd table is installed by the event.
			tasks[pid] = true
			firstSeen = true
			if _, ok := s.cwd[pid]; !ok {
				s.cwd[pid] = s.workDir
			}
			if _, ok := s.inSyscall[pid]; !ok {
				s.inSyscall[pid] = true
			}
		}

		sig := 0
		switch {
		case ws.StopSignal() == syscall.SIGTRAP|0x80:
			s.onSyscallStop(pid)
		case ws.StopSignal() == syscall.SIGTRAP && ws.TrapCause() != 0:
			s.onPtraceEvent(pid, ws.TrapCause(), &tasks)
		case ws.StopSignal() == syscall.SIGSTOP && (firstSeen || s.newborn[pid]):
			// New-task attach stop; the SIGSTOP is not delivered.
			delete(s.newborn, pid)
		default:
			sig = int(ws.StopSignal())
		}

		if err := unix.PtraceSyscall(pid, sig); err != nil && !errors.Is(err, unix.ESRCH) {
			s.logger.WithError(err).WithField("pid", pid).Warn("failed to resume task")
		}
	}

	// Reap the root's exec.Cmd bookkeeping; the process is already gone.
	_ = cmd.Wait()

	if !rootExited {
		return 0, fmt.Errorf("lost track of root task %d", rootPid)
	}
	return exitCode, nil
}

// onPtraceEvent handles fork/vfork/clone/exec trap events.
func (s *Supervisor) onPtraceEvent(pid int, cause int, tasks *map[int]bool) {
	switch cause {
	case unix.PTRACE_EVENT_FORK, unix.PTRACE_EVENT_VFORK, unix.PTRACE_EVENT_CLONE:
		msg, err := unix.PtraceGetEventMsg(pid)
		if err != nil {
			s.logger.WithError(err).WithField("pid", pid).Warn("failed to read fork event")
			return
		}
		child := int(msg)
		s.fds.Fork(pid, child)
		s.cwd[child] = s.cwd[pid]
		if !(*tasks)[child] {
			(*tasks)[child] = true
			// The child's attach SIGSTOP has not arrived yet; swallow
			// it when it does.
			s.newborn[child] = true
		}
		// The child's first syscall-stop is the exit of the clone that
		// created it.
		s.inSyscall[child] = true
	case unix.PTRACE_EVENT_EXEC:
		s.fds.Exec(pid)
		delete(s.pending, pid)
		// The next syscall-stop is the exit of the execve itself.
		s.inSyscall[pid] = true
	}
}

// taskExited tears down per-task state.
func (s *Supervisor) taskExited(pid int) {
	s.fds.Exit(pid)
	delete(s.inSyscall, pid)
	delete(s.pending, pid)
	delete(s.cwd, pid)
	delete(s.chdirs, pid)
	delete(s.newborn, pid)
}

// onSyscallStop is invoked on every syscall entry and exit of a traced
// task.
func (s *Supervisor) onSyscallStop(pid int) {
	entering := !s.inSyscall[pid]
	s.inSyscall[pid] = entering

	var regs unix.PtraceRegs
	if err := unix.PtraceGetRegs(pid, &regs); err != nil {
		return
	}

	if entering {
		s.onSyscallEnter(pid, &regs)
		return
	}
	s.onSyscallExit(pid, &regs)
}

func (s *Supervisor) onSyscallEnter(pid int, regs *unix.PtraceRegs) {
	handled, result := s.dispatch(pid, regs)
	if !handled {
		return
	}
	// Poison the syscall number; the kernel executes nothing and the
	// stored result is written back at exit.
	s.pending[pid] = result
	regs.Orig_rax = suppressedNR
	if err := unix.PtraceSetRegs(pid, regs); err != nil {
		s.logger.WithError(err).WithField("pid", pid).Warn("failed to suppress syscall")
		delete(s.pending, pid)
	}
}

func (s *Supervisor) onSyscallExit(pid int, regs *unix.PtraceRegs) {
	// Commit a passthrough chdir once the kernel reports success.
	if wd, ok := s.chdirs[pid]; ok {
		delete(s.chdirs, pid)
		if int64(regs.Rax) == 0 {
			s.cwd[pid] = wd
		}
	}

	result, ok := s.pending[pid]
	if !ok {
		return
	}
	delete(s.pending, pid)
	regs.Rax = uint64(result)
	if err := unix.PtraceSetRegs(pid, regs); err != nil {
		s.logger.WithError(err).WithField("pid", pid).Warn("failed to write syscall result")
	}
}
