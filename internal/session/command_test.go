package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agenthost/internal/agents/catalog"
	"github.com/kandev/agenthost/internal/agents/models"
	"github.com/kandev/agenthost/internal/platform"
	"github.com/kandev/agenthost/internal/platform/platformtest"
)

func claudeDef(t *testing.T) catalog.Definition {
	t.Helper()
	def, ok := catalog.Builtin("claude")
	require.True(t, ok)
	return def
}

func TestBuildCommand_UnixLoginShell(t *testing.T) {
	mac := platformtest.NewEnv(platform.Darwin, "/Users/dev", platformtest.NewFS(), map[string]string{"SHELL": "/bin/bash"})
	cmd, err := BuildCommand(mac, "", claudeDef(t), models.EnvironmentNative, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, "/bin/zsh", cmd.Name)
	assert.Equal(t, []string{"-i", "-l", "-c", "claude --session-id s1"}, cmd.Args)

	linux := platformtest.NewEnv(platform.Linux, "/home/dev", platformtest.NewFS(), map[string]string{"SHELL": "/usr/bin/fish"})
	cmd, err = BuildCommand(linux, "", claudeDef(t), models.EnvironmentNative, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "/usr/bin/fish", cmd.Name)
	assert.Equal(t, "claude --resume s1", cmd.Line)

	bare := platformtest.NewEnv(platform.Linux, "/home/dev", platformtest.NewFS(), nil)
	cmd, err = BuildCommand(bare, "", claudeDef(t), models.EnvironmentNative, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "/bin/bash", cmd.Name)

	cmd, err = BuildCommand(bare, "/bin/sh", claudeDef(t), models.EnvironmentNative, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "/bin/sh", cmd.Name)
}

func TestBuildCommand_Windows(t *testing.T) {
	win := platformtest.NewEnv(platform.Windows, `C:\Users\dev`, platformtest.NewFS(), nil)
	cmd, err := BuildCommand(win, "", claudeDef(t), models.EnvironmentNative, "s1", false)
	require.NoError(t, err)
	assert.Equal(t, "powershell", cmd.Name)
	assert.Equal(t, []string{"-NoLogo", "-Command", "claude --session-id s1"}, cmd.Args)
}

func TestBuildCommand_WSL(t *testing.T) {
	win := platformtest.NewEnv(platform.Windows, `C:\Users\dev`, platformtest.NewFS(), nil)
	cmd, err := BuildCommand(win, "", claudeDef(t), models.EnvironmentWSL, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "wsl", cmd.Name)
	assert.Equal(t, []string{"--", "sh", "-c", `exec $SHELL -ilc "claude --resume s1"`}, cmd.Args)
}

func TestBuildCommand_AgentsWithoutSessionFlagsStartBare(t *testing.T) {
	env := platformtest.NewEnv(platform.Linux, "/home/dev", platformtest.NewFS(), nil)
	codex, ok := catalog.Builtin("codex")
	require.True(t, ok)

	fresh, err := BuildCommand(env, "", codex, models.EnvironmentNative, "s1", false)
	require.NoError(t, err)
	resumed, err := BuildCommand(env, "", codex, models.EnvironmentNative, "s1", true)
	require.NoError(t, err)
	assert.Equal(t, "codex", fresh.Line)
	assert.Equal(t, fresh.Line, resumed.Line)
}

func TestBuildCommand_EmptyCommand(t *testing.T) {
	env := platformtest.NewEnv(platform.Linux, "/home/dev", platformtest.NewFS(), nil)
	_, err := BuildCommand(env, "", catalog.Definition{ID: "blank", Command: "  "}, models.EnvironmentNative, "s1", false)
	assert.ErrorIs(t, err, ErrCommandRequired)
}

func TestSpawnEnv(t *testing.T) {
	env := platformtest.NewEnv(platform.Linux, "/home/dev", platformtest.NewFS(), map[string]string{"PATH": "/usr/bin"})
	out := spawnEnv(env, []string{"HOME=/home/dev", "PATH=/usr/bin"})
	assert.Contains(t, out, "HOME=/home/dev")
	assert.Contains(t, out, "TERM=xterm-256color")
	assert.Contains(t, out, "PATH="+platform.AugmentedPath(env))
	assert.NotContains(t, out, "PATH=/usr/bin")
}
