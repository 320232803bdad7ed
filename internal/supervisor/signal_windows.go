//go:build windows

package supervisor

import (
	"os"
	"os/exec"
)

var (
	interruptSignal os.Signal = os.Interrupt
	killSignal      os.Signal = os.Kill
)

func configureCommand(*exec.Cmd) {}

// signalProcess kills outright; Windows has no deliverable interrupt for console-less children.
func signalProcess(p *os.Process, _ os.Signal) error {
	return p.Kill()
}
