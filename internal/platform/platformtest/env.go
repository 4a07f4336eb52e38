package platformtest

import "github.com/kandev/agenthost/internal/platform"

// NewEnv returns an Env for goos backed by fs and a fixed variable map.
func NewEnv(goos, home string, fs *FS, vars map[string]string) *platform.Env {
	return &platform.Env{
		GOOS:   goos,
		Home:   home,
		Getenv: func(k string) string { return vars[k] },
		FS:     fs,
	}
}
