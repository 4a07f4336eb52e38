package launch

import (
	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/platform"
)

// cdThenExec starts an unknown terminal from inside the target directory.
const cdThenExec = `cd "$1" && exec "$2"`

func (d *Dispatcher) linuxPlan(app models.DetectedApplication, path string, opts Options) plan {
	exe := app.ExecutablePath
	spawn := func(args ...string) invocation {
		return invocation{spec: platform.CommandSpec{Name: exe, Args: args}, detached: true}
	}

	switch app.Category {
	case models.CategoryTerminal:
		generic := invocation{
			spec:     platform.CommandSpec{Name: "sh", Args: []string{"-c", cdThenExec, "sh", path, exe}},
			detached: true,
		}
		if rule, ok := linuxTerminalRule(exe); ok {
			primary := spawn(rule.args.render(path, 0, "")...)
			return plan{steps: []invocation{primary}, fallback: &generic}
		}
		return plan{steps: []invocation{generic}}

	case models.CategoryEditor:
		target := editorTarget(path, opts)
		simple := spawn(target)
		if opts.Line <= 0 {
			return plan{steps: []invocation{simple}}
		}
		return plan{steps: []invocation{spawn(gotoArgs(app.Identifier, target, opts.Line)...)}, fallback: &simple}

	default:
		return plan{steps: []invocation{spawn(path)}}
	}
}
