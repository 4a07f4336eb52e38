package launch

import (
	"strings"

	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/platform"
)

func openByIdentifier(identifier, path string) invocation {
	return invocation{spec: platform.CommandSpec{Name: "open", Args: []string{"-b", identifier, path}}}
}

// darwinPlan uses `open -b` unless an editor gets line or workspace context
// and its CLI launcher is installed. With a workspace and files to open, the
// launcher is called twice: once for the workspace and files, then after the
// focus delay to jump to file:line.
func (d *Dispatcher) darwinPlan(app models.DetectedApplication, path string, opts Options) plan {
	simple := openByIdentifier(app.Identifier, path)
	if app.Category != models.CategoryEditor {
		return plan{steps: []invocation{simple}}
	}

	hasWorkspace := opts.WorkspacePath != "" && len(opts.OpenFiles) > 0
	if !hasWorkspace && opts.Line <= 0 {
		return plan{steps: []invocation{simple}}
	}

	cli, ok := d.editorCLI(app)
	if !ok {
		d.logger.Debug("no editor CLI launcher found", zap.String("identifier", app.Identifier))
		return plan{steps: []invocation{simple}}
	}

	target := editorTarget(path, opts)
	var steps []invocation
	if hasWorkspace {
		args := append([]string{opts.WorkspacePath}, opts.OpenFiles...)
		steps = append(steps, invocation{spec: platform.CommandSpec{Name: cli, Args: args}})
	}
	if opts.Line > 0 {
		args := gotoArgs(app.Identifier, target, opts.Line)
		if hasWorkspace && matchIdentifier(vscodeFamily, app.Identifier) {
			args = append([]string{opts.WorkspacePath}, args...)
		}
		step := invocation{spec: platform.CommandSpec{Name: cli, Args: args}}
		if hasWorkspace {
			step.delay = d.cfg.EditorFocusDelay
		}
		steps = append(steps, step)
	}

	fallback := openByIdentifier(app.Identifier, target)
	return plan{steps: steps, fallback: &fallback}
}

// editorCLI returns the first existing launcher for the editor.
func (d *Dispatcher) editorCLI(app models.DetectedApplication) (string, bool) {
	for _, candidate := range editorCLIs[app.Identifier] {
		p := strings.ReplaceAll(candidate, "{app}", app.ExecutablePath)
		p = d.env.Expand(p, nil)
		if d.env.Exists(p) {
			return p, true
		}
	}
	return "", false
}
