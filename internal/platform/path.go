package platform

import "strings"

// AugmentedPath returns the PATH value probes run with: the inherited PATH
// followed by directories where package managers and Node version managers
// install CLI shims.
func AugmentedPath(e *Env) string {
	current := e.Var("PATH", "")
	if current == "" && e.IsWindows() {
		current = e.Var("Path", "")
	}

	var dirs []string
	if e.IsWindows() {
		dirs = []string{
			current,
			e.Join(e.Home, "AppData", "Roaming", "npm"),
			e.Join(e.Home, ".volta", "bin"),
			e.Join(e.Home, "scoop", "shims"),
		}
	} else {
		dirs = []string{
			current,
			"/usr/local/bin",
			"/opt/homebrew/bin",
			e.Join(e.Home, ".local", "bin"),
			e.Join(e.Home, ".volta", "bin"),
		}
		dirs = append(dirs, NvmNodeBins(e)...)
	}

	out := dirs[:0]
	for _, d := range dirs {
		if d != "" {
			out = append(out, d)
		}
	}
	return strings.Join(out, e.ListSeparator())
}

// NvmNodeBins lists ~/.nvm/versions/node/*/bin. A missing nvm install yields nil.
func NvmNodeBins(e *Env) []string {
	root := e.Join(e.Home, ".nvm", "versions", "node")
	entries, err := e.FS.ReadDir(root)
	if err != nil {
		return nil
	}
	bins := make([]string, 0, len(entries))
	for _, entry := range entries {
		bins = append(bins, e.Join(root, entry.Name(), "bin"))
	}
	return bins
}
