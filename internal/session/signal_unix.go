//go:build !windows

package session

import (
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// terminateProcess hangs up the session's process group the way closing a
// terminal window does, then asks it to exit. The PTY child leads its own
// session, so its pid is the group id. An interactive login shell ignores
// SIGTERM but exits on SIGHUP and passes the hangup on to the agent.
func terminateProcess(p *os.Process) error {
	for _, sig := range []syscall.Signal{syscall.SIGHUP, syscall.SIGTERM} {
		if err := signalGroup(p, sig); err != nil {
			return err
		}
	}
	return nil
}

// killProcess kills every process in the session's group.
func killProcess(p *os.Process) error {
	return signalGroup(p, syscall.SIGKILL)
}

func signalGroup(p *os.Process, sig syscall.Signal) error {
	err := syscall.Kill(-p.Pid, sig)
	switch {
	case err == nil, errors.Is(err, syscall.ESRCH):
		return nil
	case errors.Is(err, syscall.EPERM):
		return p.Signal(sig)
	default:
		return err
	}
}

// waitProcess reaps the process. A non-zero exit is reported through the code,
// err is only set when waiting itself failed.
func waitProcess(cmd *exec.Cmd) (int, error) {
	err := cmd.Wait()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return -1, err
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
