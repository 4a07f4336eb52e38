package platform

import (
	"fmt"
	"time"
)

// WSLCommand wraps inner in an interactive login shell inside the default
// WSL distribution so that shell profiles (nvm, pyenv, ...) are loaded:
//
//	wsl -- sh -c 'exec $SHELL -ilc "<inner>"'
func WSLCommand(inner string, timeout time.Duration) CommandSpec {
	return CommandSpec{
		Name:    "wsl",
		Args:    []string{"--", "sh", "-c", fmt.Sprintf(`exec $SHELL -ilc "%s"`, inner)},
		Timeout: timeout,
	}
}

// WSLStatusCommand checks whether WSL is installed and usable.
func WSLStatusCommand(timeout time.Duration) CommandSpec {
	return CommandSpec{Name: "wsl", Args: []string{"--status"}, Timeout: timeout}
}
