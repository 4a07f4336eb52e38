package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewLogger_WritesJSONToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := NewLogger(LoggingConfig{Level: "debug", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.WithSessionID("s-1").WithAgentID("claude").Info("spawned", zap.Int("pid", 42))
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	line := string(data)
	assert.Contains(t, line, `"session_id":"s-1"`)
	assert.Contains(t, line, `"agent_id":"claude"`)
	assert.Contains(t, line, `"pid":42`)
	assert.Contains(t, line, `"msg":"spawned"`)
}

func TestNewLogger_InvalidLevelFallsBackToInfo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	log, err := NewLogger(LoggingConfig{Level: "loud", Format: "json", OutputPath: path})
	require.NoError(t, err)

	log.Debug("hidden")
	log.Info("shown")
	require.NoError(t, log.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.False(t, strings.Contains(string(data), "hidden"))
	assert.True(t, strings.Contains(string(data), "shown"))
}

func TestWithFields_DoesNotShareBackingArray(t *testing.T) {
	base := NewNop().WithFields(zap.String("a", "1"))
	x := base.WithFields(zap.String("b", "2"))
	y := base.WithFields(zap.String("c", "3"))

	require.Len(t, x.fields, 2)
	require.Len(t, y.fields, 2)
	assert.Equal(t, "b", x.fields[1].Key)
	assert.Equal(t, "c", y.fields[1].Key)
}

func TestDetectFormat(t *testing.T) {
	t.Setenv("AGENTHOST_ENV", "production")
	assert.Equal(t, "json", DetectFormat())
	t.Setenv("AGENTHOST_ENV", "")
	assert.Equal(t, "text", DetectFormat())
}

func TestSetDefault(t *testing.T) {
	prev := Default()
	t.Cleanup(func() { SetDefault(prev) })

	nop := NewNop()
	SetDefault(nop)
	assert.Same(t, nop, Default())
}
