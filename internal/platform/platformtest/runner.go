package platformtest

import (
	"context"
	"strings"
	"sync"

	"github.com/kandev/agenthost/internal/platform"
)

// HandlerFunc answers a command. Returning false passes to the next handler.
type HandlerFunc func(ctx context.Context, spec platform.CommandSpec) (platform.ProbeResult, bool)

// Runner is a scripted platform.CommandRunner that records every call.
// Unmatched commands report not-found.
type Runner struct {
	mu       sync.Mutex
	handlers []HandlerFunc
	runs     []platform.CommandSpec
	starts   []platform.CommandSpec
	StartErr func(spec platform.CommandSpec) error
}

// NewRunner returns an empty runner.
func NewRunner() *Runner { return &Runner{} }

// Handle registers a handler. Earlier handlers win.
func (r *Runner) Handle(h HandlerFunc) *Runner {
	r.mu.Lock()
	r.handlers = append(r.handlers, h)
	r.mu.Unlock()
	return r
}

// Respond answers the exact command line (spec.String()) with stdout and status ok.
func (r *Runner) Respond(cmdline, stdout string) *Runner {
	return r.Handle(func(_ context.Context, spec platform.CommandSpec) (platform.ProbeResult, bool) {
		if spec.String() != cmdline {
			return platform.ProbeResult{}, false
		}
		return platform.ProbeResult{Status: platform.ProbeOK, Stdout: stdout}, true
	})
}

// Fail answers the exact command line with a failed probe.
func (r *Runner) Fail(cmdline string) *Runner {
	return r.Handle(func(_ context.Context, spec platform.CommandSpec) (platform.ProbeResult, bool) {
		if spec.String() != cmdline {
			return platform.ProbeResult{}, false
		}
		return platform.ProbeResult{Status: platform.ProbeFailed, ExitCode: 1}, true
	})
}

func (r *Runner) Run(ctx context.Context, spec platform.CommandSpec) platform.ProbeResult {
	r.mu.Lock()
	r.runs = append(r.runs, spec)
	handlers := append([]HandlerFunc(nil), r.handlers...)
	r.mu.Unlock()

	for _, h := range handlers {
		if res, ok := h(ctx, spec); ok {
			return res
		}
	}
	return platform.ProbeResult{Status: platform.ProbeNotFound, ExitCode: -1}
}

func (r *Runner) Start(spec platform.CommandSpec) error {
	r.mu.Lock()
	r.starts = append(r.starts, spec)
	startErr := r.StartErr
	r.mu.Unlock()
	if startErr != nil {
		return startErr(spec)
	}
	return nil
}

// Runs returns the commands passed to Run, in call order.
func (r *Runner) Runs() []platform.CommandSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]platform.CommandSpec(nil), r.runs...)
}

// Starts returns the commands passed to Start, in call order.
func (r *Runner) Starts() []platform.CommandSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]platform.CommandSpec(nil), r.starts...)
}

// CountRuns counts Run calls whose command line contains substr.
func (r *Runner) CountRuns(substr string) int {
	n := 0
	for _, spec := range r.Runs() {
		if strings.Contains(spec.String(), substr) {
			n++
		}
	}
	return n
}
