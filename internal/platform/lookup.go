package platform

import (
	"context"
	"time"
)

// LookupCommand resolves a bare command name with the OS lookup tool
// (`where` on Windows, `which` elsewhere) and returns the first match.
// Any failure yields "" with the probe result describing why.
func LookupCommand(ctx context.Context, runner CommandRunner, e *Env, name string, timeout time.Duration) (string, ProbeResult) {
	tool := "which"
	if e.IsWindows() {
		tool = "where"
	}
	res := runner.Run(ctx, CommandSpec{
		Name:    tool,
		Args:    []string{name},
		Path:    AugmentedPath(e),
		Timeout: timeout,
	})
	if !res.OK() {
		if res.Status == ProbeFailed && res.Err != ErrProbeTimeout {
			res.Status = ProbeNotFound
		}
		return "", res
	}
	resolved := res.FirstLine()
	if resolved == "" {
		res.Status = ProbeNotFound
	}
	return resolved, res
}
