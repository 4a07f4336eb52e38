// Package detector probes the host for installed agent CLIs, natively and
// through WSL.
package detector

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/agenthost/internal/agents/catalog"
	"github.com/kandev/agenthost/internal/agents/models"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/common/tracing"
	"github.com/kandev/agenthost/internal/platform"
)

// Options bounds the probes.
type Options struct {
	NativeTimeout    time.Duration
	WSLTimeout       time.Duration
	WSLStatusTimeout time.Duration
	MaxConcurrent    int
}

func (o Options) withDefaults() Options {
	if o.NativeTimeout <= 0 {
		o.NativeTimeout = 5 * time.Second
	}
	if o.WSLTimeout <= 0 {
		o.WSLTimeout = 8 * time.Second
	}
	if o.WSLStatusTimeout <= 0 {
		o.WSLStatusTimeout = 3 * time.Second
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 16
	}
	return o
}

// DetectOptions selects what a detection pass covers.
type DetectOptions struct {
	IncludeWSL bool `json:"includeWsl"`
}

// Detector owns the cached agent status and the memoized WSL availability.
type Detector struct {
	env    *platform.Env
	runner platform.CommandRunner
	opts   Options
	logger *logger.Logger

	mu     sync.RWMutex
	cached *models.AgentCliStatus
	wsl    *bool
	wslMu  sync.Mutex
}

// New creates a detector.
func New(env *platform.Env, runner platform.CommandRunner, opts Options, log *logger.Logger) *Detector {
	return &Detector{
		env:    env,
		runner: runner,
		opts:   opts.withDefaults(),
		logger: log.WithFields(zap.String("component", "agent-detector")),
	}
}

type probe struct {
	def catalog.Definition
	env models.Environment
}

// DetectAll probes every builtin and custom agent concurrently, each under
// its own timeout, and caches the result as the new snapshot. WSL probes run
// only when requested and WSL is available.
func (d *Detector) DetectAll(ctx context.Context, custom []models.CustomAgent, opts DetectOptions) *models.AgentCliStatus {
	ctx, span := tracing.Tracer("agents").Start(ctx, "agents.detect_all")
	defer span.End()

	defs := catalog.Builtins()
	for _, a := range custom {
		defs = append(defs, catalog.FromCustom(a))
	}

	probes := make([]probe, 0, len(defs)*2)
	for _, def := range defs {
		probes = append(probes, probe{def: def, env: models.EnvironmentNative})
	}
	if opts.IncludeWSL && d.WSLAvailable(ctx) {
		for _, def := range defs {
			probes = append(probes, probe{def: def, env: models.EnvironmentWSL})
		}
	}

	results := make([]models.AgentCliInfo, len(probes))
	var g errgroup.Group
	g.SetLimit(d.opts.MaxConcurrent)
	for i, p := range probes {
		g.Go(func() error {
			results[i] = d.run(ctx, p)
			return nil
		})
	}
	_ = g.Wait()

	status := &models.AgentCliStatus{Agents: results, DetectedAt: time.Now()}
	d.mu.Lock()
	d.cached = status
	d.mu.Unlock()

	installed := 0
	for _, r := range results {
		if r.Installed {
			installed++
		}
	}
	span.SetAttributes(attribute.Int("agents.probed", len(results)), attribute.Int("agents.installed", installed))
	d.logger.Info("agent detection complete",
		zap.Int("probed", len(results)),
		zap.Int("installed", installed),
		zap.Bool("wsl", opts.IncludeWSL))
	return status
}

// DetectOne probes a single agent. An id ending in -wsl selects the WSL
// probe. When a snapshot is cached, a new snapshot with this entry replaced
// becomes the cached one.
func (d *Detector) DetectOne(ctx context.Context, agentID string, custom *models.CustomAgent) models.AgentCliInfo {
	info := d.detectOne(ctx, agentID, custom)
	d.replaceCached(info)
	return info
}

func (d *Detector) detectOne(ctx context.Context, agentID string, custom *models.CustomAgent) models.AgentCliInfo {
	base, isWSL := models.SplitWSLID(agentID)

	def, ok := catalog.Builtin(base)
	if !ok && custom != nil {
		c := *custom
		c.ID = base
		def, ok = catalog.FromCustom(c), true
	}

	if isWSL {
		if !d.WSLAvailable(ctx) {
			name, builtin := base, false
			if ok {
				name, builtin = def.Name, def.Builtin
			}
			return models.AgentCliInfo{
				ID:          agentID,
				Name:        name + " (WSL)",
				Command:     commandOr(def.Command, base),
				IsBuiltin:   builtin,
				Environment: models.EnvironmentWSL,
			}
		}
		if ok {
			return d.run(ctx, probe{def: def, env: models.EnvironmentWSL})
		}
		return unknown(agentID, models.EnvironmentWSL)
	}

	if ok {
		return d.run(ctx, probe{def: def, env: models.EnvironmentNative})
	}
	return unknown(agentID, models.EnvironmentNative)
}

func unknown(id string, env models.Environment) models.AgentCliInfo {
	return models.AgentCliInfo{ID: id, Name: id, Command: id, Environment: env}
}

func commandOr(cmd, def string) string {
	if cmd != "" {
		return cmd
	}
	return def
}

// Cached returns the last DetectAll snapshot, or nil before the first one.
func (d *Detector) Cached() *models.AgentCliStatus {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Invalidate drops the cached snapshot and the WSL availability memo.
func (d *Detector) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
	d.wslMu.Lock()
	d.wsl = nil
	d.wslMu.Unlock()
}

func (d *Detector) replaceCached(info models.AgentCliInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cached == nil {
		return
	}
	for i, a := range d.cached.Agents {
		if a.ID != info.ID {
			continue
		}
		agents := append([]models.AgentCliInfo(nil), d.cached.Agents...)
		agents[i] = info
		d.cached = &models.AgentCliStatus{Agents: agents, DetectedAt: time.Now()}
		return
	}
}

// WSLAvailable reports whether `wsl --status` succeeds. Only Windows hosts
// can have WSL. The answer is memoized until Invalidate.
func (d *Detector) WSLAvailable(ctx context.Context) bool {
	d.wslMu.Lock()
	defer d.wslMu.Unlock()
	if d.wsl != nil {
		return *d.wsl
	}

	available := false
	if d.env.IsWindows() {
		res := d.runner.Run(ctx, platform.WSLStatusCommand(d.opts.WSLStatusTimeout))
		available = res.OK()
		d.logger.Debug("wsl availability probed", zap.Bool("available", available), zap.String("status", string(res.Status)))
	}
	d.wsl = &available
	return available
}

func (d *Detector) run(ctx context.Context, p probe) models.AgentCliInfo {
	ctx, span := tracing.Tracer("agents").Start(ctx, "agents.probe")
	defer span.End()

	info := models.AgentCliInfo{
		ID:          p.def.ID,
		Name:        p.def.Name,
		Command:     p.def.Command,
		IsBuiltin:   p.def.Builtin,
		Environment: p.env,
	}
	if p.env == models.EnvironmentWSL {
		info.ID = models.WSLID(p.def.ID)
		info.Name = p.def.Name + " (WSL)"
	}

	var res platform.ProbeResult
	if p.env == models.EnvironmentWSL {
		res = d.probeWSL(ctx, p.def)
	} else {
		res = d.probeNative(ctx, p.def)
	}

	span.SetAttributes(attribute.String("agent.id", info.ID), attribute.String("probe.status", string(res.Status)))
	if !res.OK() {
		d.logger.Debug("agent probe missed",
			zap.String("agent_id", info.ID),
			zap.String("status", string(res.Status)),
			zap.Duration("duration", res.Duration))
		return info
	}

	info.Installed = true
	if m := catalog.VersionPattern.FindStringSubmatch(res.Stdout); m != nil {
		info.Version = m[1]
	}
	return info
}

func (d *Detector) probeNative(ctx context.Context, def catalog.Definition) platform.ProbeResult {
	argv := def.Argv()
	if len(argv) == 0 {
		return platform.ProbeResult{Status: platform.ProbeNotFound}
	}
	return d.runner.Run(ctx, platform.CommandSpec{
		Name:    argv[0],
		Args:    append(argv[1:], strings.Fields(def.VersionFlag)...),
		Path:    platform.AugmentedPath(d.env),
		Timeout: d.opts.NativeTimeout,
	})
}

// probeWSL checks presence with `which` before asking for the version, both
// inside an interactive login shell so version managers are loaded.
func (d *Detector) probeWSL(ctx context.Context, def catalog.Definition) platform.ProbeResult {
	argv := def.Argv()
	if len(argv) == 0 {
		return platform.ProbeResult{Status: platform.ProbeNotFound}
	}
	which := d.runner.Run(ctx, platform.WSLCommand("which "+argv[0], d.opts.WSLTimeout))
	if !which.OK() {
		return which
	}
	return d.runner.Run(ctx, platform.WSLCommand(def.Command+" "+def.VersionFlag, d.opts.WSLTimeout))
}
