package detector

import (
	"context"

	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/platform"
)

// windowsScanner tries each entry's candidates in priority order. Absolute
// candidates are checked on disk; bare names are resolved with `where`.
// The first hit ends the entry.
type windowsScanner struct{ d *Detector }

func (s *windowsScanner) defaults() map[string]string {
	env := s.d.env
	return map[string]string{
		"ProgramFiles":      `C:\Program Files`,
		"ProgramFiles(x86)": `C:\Program Files (x86)`,
		"LOCALAPPDATA":      env.Join(env.Home, "AppData", "Local"),
		"APPDATA":           env.Join(env.Home, "AppData", "Roaming"),
	}
}

func (s *windowsScanner) scan(ctx context.Context) []models.DetectedApplication {
	env := s.d.env
	defaults := s.defaults()
	var found []models.DetectedApplication

	for _, app := range s.d.catalog.Windows.Apps {
		for _, candidate := range app.Candidates {
			if ctx.Err() != nil {
				return found
			}
			resolved := env.Expand(candidate, defaults)

			if env.IsAbs(resolved) {
				if !env.Exists(resolved) {
					continue
				}
			} else {
				path, res := platform.LookupCommand(ctx, s.d.runner, env, resolved, s.d.opts.LookupTimeout)
				if path == "" {
					s.d.logger.Debug("where lookup missed",
						zap.String("identifier", app.Identifier),
						zap.String("command", resolved),
						zap.String("status", string(res.Status)))
					continue
				}
				resolved = path
			}

			found = append(found, models.DetectedApplication{
				Name:           app.Name,
				Identifier:     app.Identifier,
				Category:       app.Category,
				ExecutablePath: resolved,
			})
			break
		}
	}
	return found
}
