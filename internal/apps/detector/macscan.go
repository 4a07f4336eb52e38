package detector

import (
	"context"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/platform"
)

const plistBuddy = "/usr/libexec/PlistBuddy"

// macScanner enumerates .app bundles in the catalog directories and matches
// their CFBundleIdentifier. Unknown bundles are ignored.
type macScanner struct{ d *Detector }

func (s *macScanner) scan(ctx context.Context) []models.DetectedApplication {
	env := s.d.env
	known := s.d.catalog.MacByIdentifier()

	var bundles []string
	for _, dir := range s.d.catalog.MacOS.Directories {
		dir = env.Expand(dir, nil)
		entries, err := env.FS.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if strings.HasSuffix(entry.Name(), ".app") {
				bundles = append(bundles, env.Join(dir, entry.Name()))
			}
		}
	}

	results := make([]*models.DetectedApplication, len(bundles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.d.opts.Concurrency)
	for i, bundle := range bundles {
		g.Go(func() error {
			id := s.bundleIdentifier(gctx, bundle)
			if app, ok := known[id]; ok {
				results[i] = &models.DetectedApplication{
					Name:           app.Name,
					Identifier:     app.Identifier,
					Category:       app.Category,
					ExecutablePath: bundle,
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

func (s *macScanner) bundleIdentifier(ctx context.Context, bundle string) string {
	return readPlistKey(ctx, s.d, bundle, "CFBundleIdentifier")
}

// readPlistKey prints one key of <bundle>/Contents/Info.plist. Missing
// plists and failed reads yield "".
func readPlistKey(ctx context.Context, d *Detector, bundle, key string) string {
	plist := d.env.Join(bundle, "Contents", "Info.plist")
	if !d.env.Exists(plist) {
		return ""
	}
	res := d.runner.Run(ctx, platform.CommandSpec{
		Name:    plistBuddy,
		Args:    []string{"-c", "Print :" + key, plist},
		Timeout: d.opts.PlistTimeout,
	})
	if !res.OK() {
		d.logger.Debug("plist read failed",
			zap.String("bundle", bundle),
			zap.String("key", key),
			zap.String("status", string(res.Status)))
		return ""
	}
	return strings.TrimSpace(res.Stdout)
}
