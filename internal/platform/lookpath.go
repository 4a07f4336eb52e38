package platform

import (
	"os"
	"path/filepath"
	"strings"
)

// LookPathIn resolves name against an explicit PATH list instead of the
// process PATH that exec.LookPath is bound to. Names containing a separator
// are returned unchanged.
func LookPathIn(name, pathList, goos string) (string, bool) {
	if strings.ContainsAny(name, `/\`) {
		return name, true
	}
	sep := string(os.PathListSeparator)
	if goos == Windows {
		sep = ";"
	}

	exts := []string{""}
	if goos == Windows && filepath.Ext(name) == "" {
		exts = windowsExecExts()
	}

	for _, dir := range strings.Split(pathList, sep) {
		if dir == "" {
			continue
		}
		for _, ext := range exts {
			candidate := filepath.Join(dir, name+ext)
			if isExecutable(candidate, goos) {
				return candidate, true
			}
		}
	}
	return "", false
}

func windowsExecExts() []string {
	pathext := os.Getenv("PATHEXT")
	if pathext == "" {
		pathext = ".COM;.EXE;.BAT;.CMD"
	}
	var exts []string
	for _, e := range strings.Split(strings.ToLower(pathext), ";") {
		if e != "" {
			exts = append(exts, e)
		}
	}
	return exts
}

func isExecutable(p, goos string) bool {
	info, err := os.Stat(p)
	if err != nil || info.IsDir() {
		return false
	}
	if goos == Windows {
		return true
	}
	return info.Mode()&0o111 != 0
}
