//go:build windows

package session

import (
	"fmt"
	"os"
	"os/exec"
)

// terminateProcess kills the process tree. Windows has no SIGTERM and ConPTY
// children do not get a console close event we could wait on.
func terminateProcess(p *os.Process) error {
	kill := exec.Command("taskkill", "/F", "/T", "/PID", fmt.Sprintf("%d", p.Pid))
	if err := kill.Run(); err != nil {
		return p.Kill()
	}
	return nil
}

// killProcess is terminateProcess: taskkill /F already forces the tree down.
func killProcess(p *os.Process) error {
	return terminateProcess(p)
}

// waitProcess uses Process.Wait because ConPTY, not cmd.Start, created the process.
func waitProcess(cmd *exec.Cmd) (int, error) {
	state, err := cmd.Process.Wait()
	if err != nil {
		return -1, err
	}
	return state.ExitCode(), nil
}
