// Package platform resolves the host facts that detection, launching and
// sessions depend on: operating system, home directory, executable search
// path, file system, and external command execution.
package platform

import (
	"io/fs"
	"os"
	"path"
	"runtime"
	"strings"

	"github.com/mitchellh/go-homedir"
)

// Supported GOOS values.
const (
	Windows = "windows"
	Darwin  = "darwin"
	Linux   = "linux"
)

// FileSystem is the subset of file system access the detectors need.
type FileSystem interface {
	Stat(name string) (fs.FileInfo, error)
	ReadDir(name string) ([]fs.DirEntry, error)
	ReadFile(name string) ([]byte, error)
}

// OSFileSystem reads the real host file system.
type OSFileSystem struct{}

func (OSFileSystem) Stat(name string) (fs.FileInfo, error)      { return os.Stat(name) }
func (OSFileSystem) ReadDir(name string) ([]fs.DirEntry, error) { return os.ReadDir(name) }
func (OSFileSystem) ReadFile(name string) ([]byte, error)       { return os.ReadFile(name) }

// Env describes the host a detector or launcher operates against. Every
// field is injectable so a Windows host can be simulated on Linux in tests.
type Env struct {
	GOOS   string
	Home   string
	Getenv func(string) string
	FS     FileSystem
}

// HostEnv returns the Env of the running process.
func HostEnv() *Env {
	home, err := homedir.Dir()
	if err != nil {
		home = os.Getenv("HOME")
	}
	return &Env{
		GOOS:   runtime.GOOS,
		Home:   home,
		Getenv: os.Getenv,
		FS:     OSFileSystem{},
	}
}

// IsWindows reports whether the env targets Windows.
func (e *Env) IsWindows() bool { return e.GOOS == Windows }

// Var returns the environment variable or def when it is unset.
func (e *Env) Var(key, def string) string {
	if e.Getenv != nil {
		if v := e.Getenv(key); v != "" {
			return v
		}
	}
	return def
}

// Separator is the path separator of the target OS.
func (e *Env) Separator() string {
	if e.IsWindows() {
		return `\`
	}
	return "/"
}

// ListSeparator is the PATH list separator of the target OS.
func (e *Env) ListSeparator() string {
	if e.IsWindows() {
		return ";"
	}
	return ":"
}

// Join joins path elements with the target OS separator.
func (e *Env) Join(elem ...string) string {
	if !e.IsWindows() {
		return path.Join(elem...)
	}
	parts := make([]string, 0, len(elem))
	for i, el := range elem {
		if el == "" {
			continue
		}
		el = strings.ReplaceAll(el, "/", `\`)
		if i > 0 {
			el = strings.TrimLeft(el, `\`)
		}
		el = strings.TrimRight(el, `\`)
		if el != "" {
			parts = append(parts, el)
		}
	}
	return strings.Join(parts, `\`)
}

// IsAbs reports whether p is absolute on the target OS. On Windows a path
// counts as absolute as soon as it contains a separator, matching how the
// application catalog distinguishes candidate paths from bare command names.
func (e *Env) IsAbs(p string) bool {
	if e.IsWindows() {
		return strings.ContainsAny(p, `\/`)
	}
	return strings.HasPrefix(p, "/")
}

// Exists reports whether p exists.
func (e *Env) Exists(p string) bool {
	_, err := e.FS.Stat(p)
	return err == nil
}

// IsDir reports whether p exists and is a directory.
func (e *Env) IsDir(p string) bool {
	info, err := e.FS.Stat(p)
	return err == nil && info.IsDir()
}

// Expand replaces %VAR% (Windows) or $VAR / ${VAR} (Unix) and a leading ~.
// Unset variables fall back to the values in defaults.
func (e *Env) Expand(s string, defaults map[string]string) string {
	lookup := func(key string) string {
		return e.Var(key, defaults[key])
	}
	if strings.HasPrefix(s, "~") {
		s = e.Home + s[1:]
	}
	if e.IsWindows() {
		for {
			start := strings.Index(s, "%")
			if start < 0 {
				break
			}
			end := strings.Index(s[start+1:], "%")
			if end < 0 {
				break
			}
			key := s[start+1 : start+1+end]
			s = s[:start] + lookup(key) + s[start+2+end:]
		}
		return strings.ReplaceAll(s, "/", `\`)
	}
	return os.Expand(s, lookup)
}
