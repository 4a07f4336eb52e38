package detector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/platform"
)

var errIconConversion = errors.New("icon conversion failed")

// Icon returns the application icon as a PNG data URL. Only macOS bundles
// carry icons; everything else, and any failure, reports absent. Bundles
// without an icon are remembered; failed conversions are retried on the
// next call.
func (d *Detector) Icon(ctx context.Context, identifier string) (string, bool) {
	app, ok := d.Snapshot().Lookup(identifier)
	if !ok || d.env.GOOS != platform.Darwin {
		return "", false
	}

	d.mu.RLock()
	cached, hit := d.icons[identifier]
	gen := d.gen
	d.mu.RUnlock()
	if hit {
		return cached, cached != ""
	}

	icon, err := d.renderIcon(ctx, app.ExecutablePath, identifier)
	if err != nil {
		d.logger.Debug("icon unavailable", zap.String("identifier", identifier), zap.Error(err))
		return "", false
	}
	d.mu.Lock()
	if d.gen == gen {
		d.icons[identifier] = icon
	}
	d.mu.Unlock()
	return icon, icon != ""
}

// renderIcon converts the bundle's .icns with sips. An empty icon with a nil
// error means the bundle declares none.
func (d *Detector) renderIcon(ctx context.Context, bundle, identifier string) (string, error) {
	name := readPlistKey(ctx, d, bundle, "CFBundleIconFile")
	if name == "" {
		name = readPlistKey(ctx, d, bundle, "CFBundleIconName")
	}
	if name == "" {
		return "", nil
	}
	if !strings.HasSuffix(name, ".icns") {
		name += ".icns"
	}

	icns := d.env.Join(bundle, "Contents", "Resources", name)
	if !d.env.Exists(icns) {
		return "", nil
	}

	out := filepath.Join(os.TempDir(), "agenthost-icon-"+strings.ReplaceAll(identifier, ".", "-")+".png")
	res := d.runner.Run(ctx, platform.CommandSpec{
		Name:    "sips",
		Args:    []string{"-s", "format", "png", "-z", "128", "128", icns, "--out", out},
		Timeout: d.opts.PlistTimeout,
	})
	if !res.OK() {
		return "", fmt.Errorf("%w: sips %s", errIconConversion, res.Status)
	}

	data, err := d.env.FS.ReadFile(out)
	if err != nil {
		return "", fmt.Errorf("%w: %w", errIconConversion, err)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: empty output", errIconConversion)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(data), nil
}
