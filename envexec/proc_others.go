//go:build !unix

package envexec

import (
	"os"
	"os/exec"
)

func setProcessGroup(*exec.Cmd) {}

func killGroup(p *os.Process) {
	p.Kill()
}

func exitStatus(state *os.ProcessState) (Status, string) {
	if state.ExitCode() != 0 {
		return StatusNonzeroExitStatus, state.String()
	}
	return StatusAccepted, ""
}
