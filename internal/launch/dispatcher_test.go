package launch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kandev/agenthost/internal/apps/detector"
	"github.com/kandev/agenthost/internal/apps/models"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/platform"
	"github.com/kandev/agenthost/internal/platform/platformtest"
)

type staticApps struct{ snap *detector.Snapshot }

func (s staticApps) Snapshot() *detector.Snapshot { return s.snap }

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{Level: "error", Format: "json"})
	require.NoError(t, err)
	return log
}

type harness struct {
	d      *Dispatcher
	runner *platformtest.Runner
	fs     *platformtest.FS
	delays []time.Duration
}

func newHarness(t *testing.T, goos string, apps ...models.DetectedApplication) *harness {
	t.Helper()
	fs := platformtest.NewFS()
	home := "/Users/dev"
	if goos == platform.Windows {
		home = `C:\Users\dev`
	}
	env := platformtest.NewEnv(goos, home, fs, nil)
	runner := platformtest.NewRunner().Handle(func(_ context.Context, _ platform.CommandSpec) (platform.ProbeResult, bool) {
		return platform.ProbeResult{Status: platform.ProbeOK}, true
	})
	h := &harness{runner: runner, fs: fs}
	h.d = NewDispatcher(env, runner, staticApps{detector.NewSnapshot(apps)}, Config{EditorFocusDelay: 1500 * time.Millisecond}, newTestLogger(t))
	h.d.sleep = func(_ context.Context, d time.Duration) error {
		h.delays = append(h.delays, d)
		return nil
	}
	return h
}

// failing makes Run fail for commands whose name equals name.
func failing(name string) platformtest.HandlerFunc {
	return func(_ context.Context, spec platform.CommandSpec) (platform.ProbeResult, bool) {
		if spec.Name != name {
			return platform.ProbeResult{}, false
		}
		return platform.ProbeResult{Status: platform.ProbeFailed, ExitCode: 1}, true
	}
}

var (
	vscodeMac = models.DetectedApplication{Name: "VS Code", Identifier: "com.microsoft.VSCode", Category: models.CategoryEditor, ExecutablePath: "/Applications/Visual Studio Code.app"}
	itermMac  = models.DetectedApplication{Name: "iTerm", Identifier: "com.googlecode.iterm2", Category: models.CategoryTerminal, ExecutablePath: "/Applications/iTerm.app"}
)

func TestOpen_UnknownIdentifierIsHardErrorWithoutSpawn(t *testing.T) {
	h := newHarness(t, platform.Darwin, vscodeMac)

	err := h.d.Open(context.Background(), "/repo", "com.example.missing", Options{})

	require.ErrorIs(t, err, ErrApplicationNotFound)
	assert.Empty(t, h.runner.Runs())
	assert.Empty(t, h.runner.Starts())
}

func TestOpen_NoSnapshotYet(t *testing.T) {
	h := newHarness(t, platform.Darwin)
	h.d.apps = staticApps{}

	err := h.d.Open(context.Background(), "/repo", "com.microsoft.VSCode", Options{})
	assert.ErrorIs(t, err, ErrApplicationNotFound)
}

func TestOpen_MacDefaultUsesOpenByIdentifier(t *testing.T) {
	h := newHarness(t, platform.Darwin, itermMac)

	require.NoError(t, h.d.Open(context.Background(), "/repo", "com.googlecode.iterm2", Options{}))

	runs := h.runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "open -b com.googlecode.iterm2 /repo", runs[0].String())
}

func TestOpen_MacEditorWorkspaceThenGotoLine(t *testing.T) {
	h := newHarness(t, platform.Darwin, vscodeMac)
	cli := "/Applications/Visual Studio Code.app/Contents/Resources/app/bin/code"
	h.fs.AddFile(cli, nil)

	err := h.d.Open(context.Background(), "/repo/src/main.go", "com.microsoft.VSCode", Options{
		Line:          42,
		WorkspacePath: "/repo",
		OpenFiles:     []string{"/repo/src/main.go"},
		ActiveFile:    "/repo/src/main.go",
	})
	require.NoError(t, err)

	runs := h.runner.Runs()
	require.Len(t, runs, 2)
	assert.Equal(t, cli, runs[0].Name)
	assert.Equal(t, []string{"/repo", "/repo/src/main.go"}, runs[0].Args)
	assert.Equal(t, cli, runs[1].Name)
	assert.Equal(t, []string{"/repo", "-g", "/repo/src/main.go:42"}, runs[1].Args)
	assert.Equal(t, []time.Duration{0, 1500 * time.Millisecond}, h.delays)
}

func TestOpen_MacEditorFindsCLIOnPath(t *testing.T) {
	h := newHarness(t, platform.Darwin, vscodeMac)
	h.fs.AddFile("/opt/homebrew/bin/code", nil)

	require.NoError(t, h.d.Open(context.Background(), "/repo/a.go", "com.microsoft.VSCode", Options{Line: 7}))

	runs := h.runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "/opt/homebrew/bin/code -g /repo/a.go:7", runs[0].String())
}

func TestOpen_MacEditorWithoutCLIFallsBackToOpen(t *testing.T) {
	h := newHarness(t, platform.Darwin, vscodeMac)

	require.NoError(t, h.d.Open(context.Background(), "/repo/a.go", "com.microsoft.VSCode", Options{Line: 3, WorkspacePath: "/repo", OpenFiles: []string{"/repo/a.go"}}))

	runs := h.runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "open -b com.microsoft.VSCode /repo/a.go", runs[0].String())
}

func TestOpen_MacEditorWithoutContextUsesOpen(t *testing.T) {
	h := newHarness(t, platform.Darwin, vscodeMac)
	h.fs.AddFile("/usr/local/bin/code", nil)

	require.NoError(t, h.d.Open(context.Background(), "/repo", "com.microsoft.VSCode", Options{}))
	assert.Equal(t, "open -b com.microsoft.VSCode /repo", h.runner.Runs()[0].String())
}

func TestOpen_MacRichFailureDegradesToOpen(t *testing.T) {
	h := newHarness(t, platform.Darwin, vscodeMac)
	cli := "/usr/local/bin/code"
	h.fs.AddFile(cli, nil)
	h.runner = platformtest.NewRunner().Handle(failing(cli)).Handle(func(_ context.Context, _ platform.CommandSpec) (platform.ProbeResult, bool) {
		return platform.ProbeResult{Status: platform.ProbeOK}, true
	})
	h.d.runner = h.runner

	err := h.d.Open(context.Background(), "/repo/main.go", "com.microsoft.VSCode", Options{
		Line: 10, WorkspacePath: "/repo", OpenFiles: []string{"/repo/main.go"}, ActiveFile: "/repo/main.go",
	})
	require.NoError(t, err)

	runs := h.runner.Runs()
	require.Len(t, runs, 2, "first rich call fails, second is skipped, fallback runs")
	assert.Equal(t, "open -b com.microsoft.VSCode /repo/main.go", runs[1].String())
}

func TestOpen_FallbackFailurePropagates(t *testing.T) {
	h := newHarness(t, platform.Darwin, vscodeMac)
	h.fs.AddFile("/usr/local/bin/code", nil)
	h.runner = platformtest.NewRunner().Handle(failing("/usr/local/bin/code")).Handle(failing("open"))
	h.d.runner = h.runner

	err := h.d.Open(context.Background(), "/repo/main.go", "com.microsoft.VSCode", Options{Line: 1})
	require.ErrorIs(t, err, ErrLaunchFailed)
	assert.Contains(t, err.Error(), "open")
}

func TestOpen_WindowsTerminalUsesDirectoryFlag(t *testing.T) {
	wt := models.DetectedApplication{Identifier: "windows.terminal", Category: models.CategoryTerminal, ExecutablePath: `C:\Users\dev\AppData\Local\Microsoft\WindowsApps\wt.exe`}
	h := newHarness(t, platform.Windows, wt)

	require.NoError(t, h.d.Open(context.Background(), `C:\src\it's`, "windows.terminal", Options{}))

	runs := h.runner.Runs()
	require.Len(t, runs, 1)
	assert.Equal(t, "powershell", runs[0].Name)
	assert.Equal(t, []string{"-Command",
		`Start-Process -FilePath 'C:\Users\dev\AppData\Local\Microsoft\WindowsApps\wt.exe' -ArgumentList '-d','C:\src\it''s'`}, runs[0].Args)
}

func TestOpen_WindowsOtherTerminalUsesWorkingDirectory(t *testing.T) {
	ps := models.DetectedApplication{Identifier: "windows.powershell", Category: models.CategoryTerminal, ExecutablePath: `C:\Program Files\PowerShell\7\pwsh.exe`}
	h := newHarness(t, platform.Windows, ps)

	require.NoError(t, h.d.Open(context.Background(), `C:\src`, "windows.powershell", Options{}))
	assert.Equal(t, `Start-Process -FilePath 'C:\Program Files\PowerShell\7\pwsh.exe' -WorkingDirectory 'C:\src'`, h.runner.Runs()[0].Args[1])
}

func TestOpen_WindowsFileManagerNormalizesSlashes(t *testing.T) {
	explorer := models.DetectedApplication{Identifier: "windows.explorer", Category: models.CategoryFileManager, ExecutablePath: `C:\Windows\explorer.exe`}
	h := newHarness(t, platform.Windows, explorer)

	require.NoError(t, h.d.Open(context.Background(), "C:/src/app", "windows.explorer", Options{}))
	assert.Equal(t, `Start-Process -FilePath 'C:\Windows\explorer.exe' -ArgumentList 'C:\src\app'`, h.runner.Runs()[0].Args[1])
}

func TestOpen_WindowsEditorLineConventions(t *testing.T) {
	npp := models.DetectedApplication{Identifier: "notepad++", Category: models.CategoryEditor, ExecutablePath: `C:\npp\notepad++.exe`}
	code := models.DetectedApplication{Identifier: "com.microsoft.VSCode", Category: models.CategoryEditor, ExecutablePath: `C:\code\Code.exe`}
	h := newHarness(t, platform.Windows, npp, code)

	require.NoError(t, h.d.Open(context.Background(), `C:\src\a.go`, "notepad++", Options{Line: 12}))
	require.NoError(t, h.d.Open(context.Background(), `C:\src\a.go`, "com.microsoft.VSCode", Options{Line: 12}))
	require.NoError(t, h.d.Open(context.Background(), `C:\src\a.go`, "com.microsoft.VSCode", Options{}))

	runs := h.runner.Runs()
	require.Len(t, runs, 3)
	assert.Equal(t, `Start-Process -FilePath 'C:\npp\notepad++.exe' -ArgumentList '-n12','C:\src\a.go'`, runs[0].Args[1])
	assert.Equal(t, `Start-Process -FilePath 'C:\code\Code.exe' -ArgumentList '-g','C:\src\a.go:12'`, runs[1].Args[1])
	assert.Equal(t, `Start-Process -FilePath 'C:\code\Code.exe' -ArgumentList 'C:\src\a.go'`, runs[2].Args[1])
}

func TestOpen_WindowsOtherAppGetsLineSuffix(t *testing.T) {
	viewer := models.DetectedApplication{Identifier: "viewer", Category: models.CategoryOther, ExecutablePath: `C:\viewer\viewer.exe`}
	h := newHarness(t, platform.Windows, viewer)

	require.NoError(t, h.d.Open(context.Background(), `C:\src\a.go`, "viewer", Options{Line: 12}))
	require.NoError(t, h.d.Open(context.Background(), `C:\src`, "viewer", Options{ActiveFile: `C:\src\b.go`, Line: 3}))
	require.NoError(t, h.d.Open(context.Background(), `C:\src\a.go`, "viewer", Options{}))

	runs := h.runner.Runs()
	require.Len(t, runs, 3)
	assert.Equal(t, `Start-Process -FilePath 'C:\viewer\viewer.exe' -ArgumentList 'C:\src\a.go:12'`, runs[0].Args[1])
	assert.Equal(t, `Start-Process -FilePath 'C:\viewer\viewer.exe' -ArgumentList 'C:\src\b.go:3'`, runs[1].Args[1])
	assert.Equal(t, `Start-Process -FilePath 'C:\viewer\viewer.exe' -ArgumentList 'C:\src\a.go'`, runs[2].Args[1])
}

func TestOpen_LinuxKnownTerminal(t *testing.T) {
	gt := models.DetectedApplication{Identifier: "org.gnome.Terminal", Category: models.CategoryTerminal, ExecutablePath: "/usr/bin/gnome-terminal"}
	kitty := models.DetectedApplication{Identifier: "net.kovidgoyal.kitty", Category: models.CategoryTerminal, ExecutablePath: "/usr/bin/kitty"}
	h := newHarness(t, platform.Linux, gt, kitty)

	require.NoError(t, h.d.Open(context.Background(), "/repo", "org.gnome.Terminal", Options{}))
	require.NoError(t, h.d.Open(context.Background(), "/repo", "net.kovidgoyal.kitty", Options{}))

	starts := h.runner.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, "/usr/bin/gnome-terminal --working-directory=/repo", starts[0].String())
	assert.Equal(t, "/usr/bin/kitty --directory /repo", starts[1].String())
	assert.Empty(t, h.runner.Runs())
}

func TestOpen_LinuxUnknownTerminalUsesCdThenExec(t *testing.T) {
	xterm := models.DetectedApplication{Identifier: "org.x.xterm", Category: models.CategoryTerminal, ExecutablePath: "/usr/bin/xterm"}
	h := newHarness(t, platform.Linux, xterm)

	require.NoError(t, h.d.Open(context.Background(), "/repo", "org.x.xterm", Options{}))

	starts := h.runner.Starts()
	require.Len(t, starts, 1)
	assert.Equal(t, "sh", starts[0].Name)
	assert.Equal(t, []string{"-c", `cd "$1" && exec "$2"`, "sh", "/repo", "/usr/bin/xterm"}, starts[0].Args)
}

func TestOpen_LinuxTerminalSpawnFailureFallsBack(t *testing.T) {
	gt := models.DetectedApplication{Identifier: "org.gnome.Terminal", Category: models.CategoryTerminal, ExecutablePath: "/usr/bin/gnome-terminal"}
	h := newHarness(t, platform.Linux, gt)
	h.runner.StartErr = func(spec platform.CommandSpec) error {
		if spec.Name == "/usr/bin/gnome-terminal" {
			return errors.New("exec format error")
		}
		return nil
	}

	require.NoError(t, h.d.Open(context.Background(), "/repo", "org.gnome.Terminal", Options{}))
	starts := h.runner.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, "sh", starts[1].Name)
}

func TestOpen_LinuxEditorAndFileManager(t *testing.T) {
	idea := models.DetectedApplication{Identifier: "com.jetbrains.intellij", Category: models.CategoryEditor, ExecutablePath: "/usr/bin/idea"}
	nautilus := models.DetectedApplication{Identifier: "org.gnome.Nautilus", Category: models.CategoryFileManager, ExecutablePath: "/usr/bin/nautilus"}
	h := newHarness(t, platform.Linux, idea, nautilus)

	require.NoError(t, h.d.Open(context.Background(), "/repo/Main.java", "com.jetbrains.intellij", Options{Line: 5}))
	require.NoError(t, h.d.Open(context.Background(), "/repo", "org.gnome.Nautilus", Options{}))

	starts := h.runner.Starts()
	require.Len(t, starts, 2)
	assert.Equal(t, "/usr/bin/idea --line 5 /repo/Main.java", starts[0].String())
	assert.Equal(t, "/usr/bin/nautilus /repo", starts[1].String())
}

func TestOpen_UnsupportedPlatform(t *testing.T) {
	app := models.DetectedApplication{Identifier: "x", Category: models.CategoryOther, ExecutablePath: "/x"}
	h := newHarness(t, "plan9", app)
	assert.ErrorIs(t, h.d.Open(context.Background(), "/", "x", Options{}), ErrLaunchFailed)
}
