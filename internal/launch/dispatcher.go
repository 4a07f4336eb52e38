// Package launch opens paths and workspaces in detected external applications.
package launch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/kandev/agenthost/internal/apps/detector"
	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/common/tracing"
	"github.com/kandev/agenthost/internal/platform"
)

var (
	// ErrApplicationNotFound means the identifier is absent from the last
	// detection snapshot. Detection must run before launching.
	ErrApplicationNotFound = errors.New("application not found")
	// ErrLaunchFailed wraps the failure of the last launch mechanism tried.
	ErrLaunchFailed = errors.New("launch failed")
)

// Options carry the optional editor context of an open request.
type Options struct {
	Line          int      `json:"line,omitempty"`
	WorkspacePath string   `json:"workspacePath,omitempty"`
	OpenFiles     []string `json:"openFiles,omitempty"`
	ActiveFile    string   `json:"activeFile,omitempty"`
}

// SnapshotSource exposes the last application snapshot.
type SnapshotSource interface {
	Snapshot() *detector.Snapshot
}

// Config tunes the dispatcher.
type Config struct {
	// EditorFocusDelay separates the workspace-open and go-to-line calls.
	EditorFocusDelay time.Duration
	CommandTimeout   time.Duration
}

// Dispatcher turns open requests into OS-specific invocations.
type Dispatcher struct {
	env    *platform.Env
	runner platform.CommandRunner
	apps   SnapshotSource
	cfg    Config
	logger *logger.Logger
	sleep  func(ctx context.Context, d time.Duration) error
}

// NewDispatcher creates a dispatcher resolving applications through apps.
func NewDispatcher(env *platform.Env, runner platform.CommandRunner, apps SnapshotSource, cfg Config, log *logger.Logger) *Dispatcher {
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = 10 * time.Second
	}
	return &Dispatcher{
		env:    env,
		runner: runner,
		apps:   apps,
		cfg:    cfg,
		logger: log.WithFields(zap.String("component", "launch-dispatcher")),
		sleep:  sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// invocation is one external command. Detached commands are handed to the
// OS without waiting; the rest must exit cleanly.
type invocation struct {
	spec     platform.CommandSpec
	detached bool
	delay    time.Duration
}

// plan is the preferred sequence of invocations plus the simpler mechanism
// used when any of them fails.
type plan struct {
	steps    []invocation
	fallback *invocation
}

// Open launches path in the application with the given identifier. The only
// hard errors are an unknown identifier and a failing last-resort launch.
func (d *Dispatcher) Open(ctx context.Context, path, identifier string, opts Options) error {
	ctx, span := tracing.Tracer("launch").Start(ctx, "launch.open")
	defer span.End()
	span.SetAttributes(attribute.String("app.identifier", identifier))

	app, ok := d.apps.Snapshot().Lookup(identifier)
	if !ok {
		return fmt.Errorf("%w: %s", ErrApplicationNotFound, identifier)
	}

	p, err := d.planFor(app, path, opts)
	if err != nil {
		return err
	}
	return d.execute(ctx, app, p)
}

func (d *Dispatcher) planFor(app models.DetectedApplication, path string, opts Options) (plan, error) {
	switch d.env.GOOS {
	case platform.Windows:
		return d.windowsPlan(app, path, opts), nil
	case platform.Darwin:
		return d.darwinPlan(app, path, opts), nil
	case platform.Linux:
		return d.linuxPlan(app, path, opts), nil
	default:
		return plan{}, fmt.Errorf("%w: unsupported platform %s", ErrLaunchFailed, d.env.GOOS)
	}
}

func (d *Dispatcher) execute(ctx context.Context, app models.DetectedApplication, p plan) error {
	log := d.logger.WithFields(zap.String("identifier", app.Identifier))

	var stepErr error
	for _, step := range p.steps {
		if err := d.sleep(ctx, step.delay); err != nil {
			return err
		}
		if stepErr = d.invoke(ctx, step); stepErr != nil {
			break
		}
	}
	if stepErr == nil {
		log.Debug("launched", zap.Int("invocations", len(p.steps)))
		return nil
	}
	if p.fallback == nil {
		return fmt.Errorf("%w: %s: %w", ErrLaunchFailed, app.Identifier, stepErr)
	}

	log.Warn("launch degraded, falling back", zap.Error(stepErr), zap.String("fallback", p.fallback.spec.String()))
	if err := d.invoke(ctx, *p.fallback); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrLaunchFailed, app.Identifier, err)
	}
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, inv invocation) error {
	if inv.detached {
		return d.runner.Start(inv.spec)
	}
	spec := inv.spec
	if spec.Timeout <= 0 {
		spec.Timeout = d.cfg.CommandTimeout
	}
	res := d.runner.Run(ctx, spec)
	if res.OK() {
		return nil
	}
	if res.Err != nil {
		return fmt.Errorf("%s: %s: %w", spec.Name, res.Status, res.Err)
	}
	return fmt.Errorf("%s: %s (exit %d)", spec.Name, res.Status, res.ExitCode)
}
