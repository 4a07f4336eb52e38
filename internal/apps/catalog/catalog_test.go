package catalog

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agenthost/internal/apps/models"
)

func TestLoad_Embedded(t *testing.T) {
	c, err := Load()
	require.NoError(t, err)

	byID := c.MacByIdentifier()
	require.Contains(t, byID, "com.microsoft.VSCode")
	assert.Equal(t, models.CategoryEditor, byID["com.microsoft.VSCode"].Category)
	assert.Equal(t, models.CategoryFileManager, byID["com.apple.finder"].Category)
	assert.Contains(t, c.MacOS.Directories, "/System/Library/CoreServices")

	require.NotEmpty(t, c.Windows.Apps)
	wt := c.Windows.Apps[0]
	assert.Equal(t, "windows.terminal", wt.Identifier)
	assert.Equal(t, "wt.exe", wt.Candidates[len(wt.Candidates)-1])

	require.NotEmpty(t, c.Linux.Apps)
}

func TestParse_RejectsInvalidCategory(t *testing.T) {
	_, err := Parse([]byte(`
macos:
  apps:
    - { name: X, identifier: x, category: browser }
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid category")
}

func TestParse_RejectsWindowsEntryWithoutCandidates(t *testing.T) {
	_, err := Parse([]byte(`
windows:
  apps:
    - { name: X, identifier: x, category: editor }
`))
	require.Error(t, err)
}
