//go:build windows

package executor

import (
	"io"
	"os"
	"os/exec"
)

func setGroup(*exec.Cmd, io.Reader) func() { return func() {} }

func interruptGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	return p.Kill()
}

func killGroup(int) {}

func interrupted(*os.ProcessState) bool { return false }
