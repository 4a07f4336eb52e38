package session

import (
	"fmt"
	"strings"

	"github.com/kandev/agenthost/internal/agents/catalog"
	"github.com/kandev/agenthost/internal/agents/models"
	"github.com/kandev/agenthost/internal/platform"
)

// Command is the OS invocation that runs an agent conversation.
type Command struct {
	Name string
	Args []string
	// Line is the agent command line, used in diagnostics.
	Line string
}

// BuildCommand builds the invocation for def. Agents with session flags get
// the fresh flag on first spawn and the resume flag once initialized.
//
//	macOS/Linux: <shell> -i -l -c "<line>"
//	Windows:     powershell -NoLogo -Command <line>
//	WSL:         wsl -- sh -c 'exec $SHELL -ilc "<line>"'
func BuildCommand(env *platform.Env, shell string, def catalog.Definition, environment models.Environment, sessionID string, initialized bool) (Command, error) {
	argv := def.Argv()
	if len(argv) == 0 {
		return Command{}, fmt.Errorf("%w: agent %s", ErrCommandRequired, def.ID)
	}
	if def.Session.Supported() && sessionID != "" {
		flag := def.Session.Fresh
		if initialized {
			flag = def.Session.Resume
		}
		argv = append(argv, flag, sessionID)
	}
	line := strings.Join(argv, " ")

	switch {
	case environment == models.EnvironmentWSL:
		spec := platform.WSLCommand(line, 0)
		return Command{Name: spec.Name, Args: spec.Args, Line: line}, nil
	case env.IsWindows():
		return Command{Name: "powershell", Args: []string{"-NoLogo", "-Command", line}, Line: line}, nil
	default:
		return Command{Name: loginShell(env, shell), Args: []string{"-i", "-l", "-c", line}, Line: line}, nil
	}
}

func loginShell(env *platform.Env, shell string) string {
	if shell != "" {
		return shell
	}
	if env.GOOS == platform.Darwin {
		return "/bin/zsh"
	}
	return env.Var("SHELL", "/bin/bash")
}

// spawnEnv is base with PATH replaced by the augmented search path.
func spawnEnv(env *platform.Env, base []string) []string {
	out := platform.WithPath(base, platform.AugmentedPath(env))
	if !env.IsWindows() && env.Var("TERM", "") == "" {
		out = append(out, "TERM=xterm-256color")
	}
	return out
}
