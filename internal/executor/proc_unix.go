//go:build !windows

package executor

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"golang.org/x/sys/unix"
	"golang.org/x/term"
)

// setGroup starts the command in a process group of its own so a timeout
// or cancel reaches every process the shell spawned. When stdin is the
// controlling terminal the group is made the foreground group, and the
// returned func hands the terminal back once the command is gone.
func setGroup(cmd *exec.Cmd, stdin io.Reader) func() {
	attr := &syscall.SysProcAttr{Setpgid: true}
	cmd.SysProcAttr = attr
	f, ok := stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return func() {}
	}
	fd := int(f.Fd())
	attr.Foreground = true
	attr.Ctty = fd
	return func() { reclaimTerminal(fd) }
}

// reclaimTerminal makes this process's group the foreground group again.
// A background group gets SIGTTOU for this, so it is ignored meanwhile.
func reclaimTerminal(fd int) {
	signal.Ignore(syscall.SIGTTOU)
	defer signal.Reset(syscall.SIGTTOU)
	_ = unix.IoctlSetPointerInt(fd, unix.TIOCSPGRP, unix.Getpgrp())
}

// interruptGroup sends the group what Ctrl+C would.
func interruptGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return ignoreGone(syscall.Kill(-p.Pid, syscall.SIGINT))
}

// killGroup stops whatever is left of the group.
func killGroup(pid int) {
	_ = syscall.Kill(-pid, syscall.SIGKILL)
}

// interrupted reports whether the shell died from SIGINT, which is what a
// Ctrl+C in the foreground group looks like from here.
func interrupted(state *os.ProcessState) bool {
	if state == nil {
		return false
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	return ok && status.Signaled() && status.Signal() == syscall.SIGINT
}

func ignoreGone(err error) error {
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
