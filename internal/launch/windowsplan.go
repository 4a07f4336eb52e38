package launch

import (
	"strconv"
	"strings"

	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/platform"
)

// psQuote single-quotes s for PowerShell, doubling embedded quotes.
func psQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func psArgList(args []string) string {
	quoted := make([]string, len(args))
	for i, a := range args {
		quoted[i] = psQuote(a)
	}
	return strings.Join(quoted, ",")
}

func startProcess(exe string, tail string) invocation {
	script := "Start-Process -FilePath " + psQuote(exe) + " " + tail
	return invocation{spec: platform.CommandSpec{Name: "powershell", Args: []string{"-Command", script}}}
}

// windowsPlan launches through PowerShell Start-Process. Terminals get a
// working directory, file managers a backslash path, editors their go-to-line
// arguments and everything else the path, suffixed with :line when given.
func (d *Dispatcher) windowsPlan(app models.DetectedApplication, path string, opts Options) plan {
	exe := app.ExecutablePath

	switch app.Category {
	case models.CategoryTerminal:
		if tmpl, ok := windowsTerminalArgs[app.Identifier]; ok {
			return plan{steps: []invocation{startProcess(exe, "-ArgumentList "+psArgList(tmpl.render(path, 0, "")))}}
		}
		return plan{steps: []invocation{startProcess(exe, "-WorkingDirectory "+psQuote(path))}}

	case models.CategoryFileManager:
		native := strings.ReplaceAll(path, "/", `\`)
		return plan{steps: []invocation{startProcess(exe, "-ArgumentList "+psQuote(native))}}

	case models.CategoryEditor:
		target := editorTarget(path, opts)
		simple := startProcess(exe, "-ArgumentList "+psQuote(target))
		if opts.Line <= 0 {
			return plan{steps: []invocation{simple}}
		}
		rich := startProcess(exe, "-ArgumentList "+psArgList(gotoArgs(app.Identifier, target, opts.Line)))
		return plan{steps: []invocation{rich}, fallback: &simple}

	default:
		target := editorTarget(path, opts)
		if opts.Line > 0 {
			target += ":" + strconv.Itoa(opts.Line)
		}
		return plan{steps: []invocation{startProcess(exe, "-ArgumentList "+psQuote(target))}}
	}
}

// editorTarget is the file the cursor should land in.
func editorTarget(path string, opts Options) string {
	if opts.ActiveFile != "" {
		return opts.ActiveFile
	}
	return path
}
