//go:build !windows

package supervisor

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

var (
	interruptSignal os.Signal = unix.SIGINT
	killSignal      os.Signal = unix.SIGKILL
)

// configureCommand puts the helper in its own process group so signals reach any
// children it forks.
func configureCommand(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

func signalProcess(p *os.Process, sig os.Signal) error {
	s, ok := sig.(syscall.Signal)
	if !ok {
		return p.Signal(sig)
	}
	err := unix.Kill(-p.Pid, s)
	if errors.Is(err, unix.ESRCH) {
		// Group already gone; fall back to the leader in case it never joined.
		err = p.Signal(sig)
		if errors.Is(err, os.ErrProcessDone) {
			return nil
		}
	}
	return err
}
