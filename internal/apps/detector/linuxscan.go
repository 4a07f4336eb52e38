package detector

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/platform"
)

// linuxScanner resolves each entry's command names on PATH in order.
type linuxScanner struct{ d *Detector }

func (s *linuxScanner) scan(ctx context.Context) []models.DetectedApplication {
	apps := s.d.catalog.Linux.Apps
	results := make([]*models.DetectedApplication, len(apps))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.d.opts.Concurrency)
	for i, app := range apps {
		g.Go(func() error {
			for _, command := range app.Commands {
				path, _ := platform.LookupCommand(gctx, s.d.runner, s.d.env, command, s.d.opts.LookupTimeout)
				if path != "" {
					results[i] = &models.DetectedApplication{
						Name:           app.Name,
						Identifier:     app.Identifier,
						Category:       app.Category,
						ExecutablePath: path,
					}
					return nil
				}
			}
			return nil
		})
	}
	_ = g.Wait()

	var found []models.DetectedApplication
	for _, r := range results {
		if r != nil {
			found = append(found, *r)
		}
	}
	return found
}
