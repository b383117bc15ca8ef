//go:build unix

package envexec

import (
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// killGroup kills every process in the group led by p
func killGroup(p *os.Process) {
	unix.Kill(-p.Pid, unix.SIGKILL)
}

func exitStatus(state *os.ProcessState) (Status, string) {
	ws, ok := state.Sys().(syscall.WaitStatus)
	if ok && ws.Signaled() {
		if ws.Signal() == syscall.SIGXCPU {
			return StatusTimeLimitExceeded, ""
		}
		return StatusSignalled, ws.Signal().String()
	}
	if state.ExitCode() != 0 {
		return StatusNonzeroExitStatus, state.String()
	}
	return StatusAccepted, ""
}
