package main

import (
	"fmt"

	"go.uber.org/zap"

	agentcatalog "github.com/kandev/agenthost/internal/agents/catalog"
	agentdetector "github.com/kandev/agenthost/internal/agents/detector"
	agentmodels "github.com/kandev/agenthost/internal/agents/models"
	appcatalog "github.com/kandev/agenthost/internal/apps/catalog"
	appdetector "github.com/kandev/agenthost/internal/apps/detector"
	"github.com/kandev/agenthost/internal/common/config"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/launch"
	"github.com/kandev/agenthost/internal/platform"
)

// components are the detection and launch pieces shared by every command.
type components struct {
	env        *platform.Env
	runner     *platform.ExecRunner
	apps       *appdetector.Detector
	agents     *agentdetector.Detector
	dispatcher *launch.Dispatcher
	custom     *customAgents
}

func buildComponents(cfg *config.Config, log *logger.Logger) (*components, error) {
	env := platform.HostEnv()
	runner := platform.NewExecRunner(env)

	cat, err := appcatalog.Load()
	if err != nil {
		return nil, fmt.Errorf("loading application catalog: %w", err)
	}
	apps := appdetector.New(env, runner, cat, appdetector.Options{
		LookupTimeout: cfg.Detection.LookupTimeout,
	}, log)
	agents := agentdetector.New(env, runner, agentdetector.Options{
		NativeTimeout:    cfg.Detection.NativeProbeTimeout,
		WSLTimeout:       cfg.Detection.WSLProbeTimeout,
		WSLStatusTimeout: cfg.Detection.WSLStatusTimeout,
		MaxConcurrent:    cfg.Detection.MaxConcurrentProbes,
	}, log)
	dispatcher := launch.NewDispatcher(env, runner, apps, launch.Config{
		EditorFocusDelay: cfg.Launch.EditorFocusDelay,
	}, log)

	return &components{
		env:        env,
		runner:     runner,
		apps:       apps,
		agents:     agents,
		dispatcher: dispatcher,
		custom:     &customAgents{path: cfg.Detection.CustomAgentsFile, logger: log},
	}, nil
}

// customAgents re-reads the custom agents file on every call so edits apply
// without a restart.
type customAgents struct {
	path   string
	logger *logger.Logger
}

func (c *customAgents) Get() []agentmodels.CustomAgent {
	agents, err := agentcatalog.LoadCustomAgents(c.path)
	if err != nil {
		c.logger.Warn("ignoring custom agents file", zap.String("path", c.path), zap.Error(err))
		return nil
	}
	return agents
}
