package launch

import (
	"strconv"
	"strings"
)

// Argument templates use {path}, {line} and {workspace} placeholders.
type template []string

func (t template) render(path string, line int, workspace string) []string {
	out := make([]string, 0, len(t))
	for _, arg := range t {
		arg = strings.ReplaceAll(arg, "{path}", path)
		arg = strings.ReplaceAll(arg, "{line}", strconv.Itoa(line))
		arg = strings.ReplaceAll(arg, "{workspace}", workspace)
		if arg != "" {
			out = append(out, arg)
		}
	}
	return out
}

// gotoRule is one editor's "open file at line" convention. Identifiers match
// exactly or by prefix when they end in ".".
type gotoRule struct {
	identifiers []string
	args        template
}

var vscodeFamily = []string{
	"com.microsoft.VSCode",
	"com.visualstudio.code.oss",
	"com.todesktop.230313mzl4w4u92",
	"com.exafunction.windsurf",
}

var gotoRules = []gotoRule{
	{identifiers: vscodeFamily, args: template{"-g", "{path}:{line}"}},
	{identifiers: []string{"com.jetbrains.", "com.google.android.studio"}, args: template{"--line", "{line}", "{path}"}},
	{identifiers: []string{"org.vim.MacVim", "org.gnu.Emacs", "com.barebones.bbedit"}, args: template{"+{line}", "{path}"}},
	{identifiers: []string{"com.macromates.TextMate"}, args: template{"-l", "{line}", "{path}"}},
	{identifiers: []string{"notepad++"}, args: template{"-n{line}", "{path}"}},
	{identifiers: []string{"org.kde.kate"}, args: template{"--line", "{line}", "{path}"}},
	{identifiers: []string{"org.gnome.gedit"}, args: template{"+{line}", "{path}"}},
}

var defaultGoto = template{"{path}:{line}"}

func matchIdentifier(patterns []string, identifier string) bool {
	for _, p := range patterns {
		if p == identifier || (strings.HasSuffix(p, ".") && strings.HasPrefix(identifier, p)) {
			return true
		}
	}
	return false
}

// gotoArgs formats path for an editor. Without a line the path is passed as is.
func gotoArgs(identifier, path string, line int) []string {
	if line <= 0 {
		return []string{path}
	}
	for _, r := range gotoRules {
		if matchIdentifier(r.identifiers, identifier) {
			return r.args.render(path, line, "")
		}
	}
	return defaultGoto.render(path, line, "")
}

// terminalRule selects a Linux terminal's working-directory flag by the
// basename of its resolved executable.
type terminalRule struct {
	executable string
	args       template
}

var linuxTerminals = []terminalRule{
	{executable: "gnome-terminal", args: template{"--working-directory={path}"}},
	{executable: "xfce4-terminal", args: template{"--working-directory={path}"}},
	{executable: "tilix", args: template{"--working-directory={path}"}},
	{executable: "terminator", args: template{"--working-directory={path}"}},
	{executable: "ghostty", args: template{"--working-directory={path}"}},
	{executable: "konsole", args: template{"--workdir", "{path}"}},
	{executable: "alacritty", args: template{"--working-directory", "{path}"}},
	{executable: "kitty", args: template{"--directory", "{path}"}},
	{executable: "wezterm", args: template{"start", "--cwd", "{path}"}},
}

func linuxTerminalRule(executable string) (terminalRule, bool) {
	base := executable
	if i := strings.LastIndex(base, "/"); i >= 0 {
		base = base[i+1:]
	}
	for _, r := range linuxTerminals {
		if base == r.executable {
			return r, true
		}
	}
	return terminalRule{}, false
}

// windowsTerminalArgs are terminals that take the directory as an argument
// instead of honouring Start-Process -WorkingDirectory.
var windowsTerminalArgs = map[string]template{
	"windows.terminal": {"-d", "{path}"},
}

// editorCLIs lists, per macOS editor, where its command-line launcher is
// usually installed. {app} is the detected bundle path, ~ the home directory.
var editorCLIs = map[string][]string{
	"com.microsoft.VSCode": {
		"{app}/Contents/Resources/app/bin/code",
		"/usr/local/bin/code",
		"/opt/homebrew/bin/code",
	},
	"com.visualstudio.code.oss": {
		"{app}/Contents/Resources/app/bin/codium",
		"/usr/local/bin/codium",
		"/opt/homebrew/bin/codium",
	},
	"com.todesktop.230313mzl4w4u92": {
		"{app}/Contents/Resources/app/bin/cursor",
		"/usr/local/bin/cursor",
	},
	"com.exafunction.windsurf": {
		"{app}/Contents/Resources/app/bin/windsurf",
		"~/.codeium/windsurf/bin/windsurf",
	},
	"com.sublimetext.4": {
		"{app}/Contents/SharedSupport/bin/subl",
		"/usr/local/bin/subl",
	},
	"dev.zed.Zed": {
		"{app}/Contents/MacOS/cli",
		"/usr/local/bin/zed",
	},
	"com.macromates.TextMate": {
		"{app}/Contents/MacOS/mate",
		"/usr/local/bin/mate",
	},
	"com.barebones.bbedit": {
		"/usr/local/bin/bbedit",
	},
	"com.jetbrains.intellij": {
		"~/Library/Application Support/JetBrains/Toolbox/scripts/idea",
		"/usr/local/bin/idea",
	},
	"com.jetbrains.WebStorm": {
		"~/Library/Application Support/JetBrains/Toolbox/scripts/webstorm",
		"/usr/local/bin/webstorm",
	},
	"com.jetbrains.pycharm": {
		"~/Library/Application Support/JetBrains/Toolbox/scripts/pycharm",
		"/usr/local/bin/pycharm",
	},
	"com.jetbrains.goland": {
		"~/Library/Application Support/JetBrains/Toolbox/scripts/goland",
		"/usr/local/bin/goland",
	},
}
