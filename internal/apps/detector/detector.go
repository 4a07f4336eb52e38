// Package detector finds the external applications installed on the host.
package detector

import (
	"context"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/kandev/agenthost/internal/apps/catalog"
	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/common/tracing"
	"github.com/kandev/agenthost/internal/platform"
)

// Snapshot is the immutable result of one detection pass.
type Snapshot struct {
	Apps      []models.DetectedApplication
	ScannedAt time.Time
	byID      map[string]int
}

// NewSnapshot builds a snapshot, keeping the first entry per identifier.
func NewSnapshot(apps []models.DetectedApplication) *Snapshot {
	s := &Snapshot{ScannedAt: time.Now(), byID: make(map[string]int, len(apps))}
	for _, app := range apps {
		if _, dup := s.byID[app.Identifier]; dup {
			continue
		}
		s.byID[app.Identifier] = len(s.Apps)
		s.Apps = append(s.Apps, app)
	}
	if s.Apps == nil {
		s.Apps = []models.DetectedApplication{}
	}
	return s
}

// Lookup returns the application with the given identifier.
func (s *Snapshot) Lookup(identifier string) (models.DetectedApplication, bool) {
	if s == nil {
		return models.DetectedApplication{}, false
	}
	i, ok := s.byID[identifier]
	if !ok {
		return models.DetectedApplication{}, false
	}
	return s.Apps[i], true
}

// Options tunes the detector.
type Options struct {
	LookupTimeout time.Duration
	PlistTimeout  time.Duration
	Concurrency   int
}

func (o Options) withDefaults() Options {
	if o.LookupTimeout <= 0 {
		o.LookupTimeout = 3 * time.Second
	}
	if o.PlistTimeout <= 0 {
		o.PlistTimeout = 3 * time.Second
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	return o
}

type scanner interface {
	scan(ctx context.Context) []models.DetectedApplication
}

// Detector scans once, then serves the cached snapshot until Invalidate.
type Detector struct {
	env     *platform.Env
	runner  platform.CommandRunner
	catalog *catalog.Catalog
	opts    Options
	logger  *logger.Logger

	mu       sync.RWMutex
	snapshot *Snapshot
	icons    map[string]string
	gen      uint64 // bumped by Invalidate
	group    singleflight.Group
}

// New creates a detector for env.
func New(env *platform.Env, runner platform.CommandRunner, cat *catalog.Catalog, opts Options, log *logger.Logger) *Detector {
	return &Detector{
		env:     env,
		runner:  runner,
		catalog: cat,
		opts:    opts.withDefaults(),
		logger:  log.WithFields(zap.String("component", "app-detector")),
		icons:   make(map[string]string),
	}
}

// Detect returns the cached snapshot, scanning the host on first use.
// Concurrent first calls share one scan. A scan started before the last
// Invalidate is never joined and never stored.
func (d *Detector) Detect(ctx context.Context) *Snapshot {
	d.mu.RLock()
	cached, gen := d.snapshot, d.gen
	d.mu.RUnlock()
	if cached != nil {
		return cached
	}

	v, _, _ := d.group.Do("scan-"+strconv.FormatUint(gen, 10), func() (any, error) {
		if s := d.Snapshot(); s != nil {
			return s, nil
		}
		s := d.scan(ctx)
		if ctx.Err() != nil {
			return s, nil
		}
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.gen != gen {
			return s, nil
		}
		if d.snapshot == nil {
			d.snapshot = s
		}
		return d.snapshot, nil
	})
	return v.(*Snapshot)
}

// Snapshot returns the last completed scan, or nil before the first one.
func (d *Detector) Snapshot() *Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.snapshot
}

// Invalidate drops the cached snapshot and icons. Holders of the old
// snapshot keep a valid value.
func (d *Detector) Invalidate() {
	d.mu.Lock()
	d.snapshot = nil
	d.icons = make(map[string]string)
	d.gen++
	d.mu.Unlock()
}

// Refresh invalidates and rescans. It does not wait for or reuse a scan
// that was already running.
func (d *Detector) Refresh(ctx context.Context) *Snapshot {
	d.Invalidate()
	return d.Detect(ctx)
}

func (d *Detector) scan(ctx context.Context) *Snapshot {
	ctx, span := tracing.Tracer("apps").Start(ctx, "apps.detect")
	defer span.End()

	started := time.Now()
	var apps []models.DetectedApplication
	if sc := d.scannerFor(); sc != nil {
		apps = sc.scan(ctx)
	}
	s := NewSnapshot(apps)

	span.SetAttributes(attribute.String("os", d.env.GOOS), attribute.Int("apps.count", len(s.Apps)))
	d.logger.Info("application scan complete",
		zap.String("os", d.env.GOOS),
		zap.Int("found", len(s.Apps)),
		zap.Duration("duration", time.Since(started)))
	return s
}

func (d *Detector) scannerFor() scanner {
	switch d.env.GOOS {
	case platform.Windows:
		return &windowsScanner{d: d}
	case platform.Darwin:
		return &macScanner{d: d}
	case platform.Linux:
		return &linuxScanner{d: d}
	default:
		d.logger.Debug("no application scanner for OS", zap.String("os", d.env.GOOS))
		return nil
	}
}
