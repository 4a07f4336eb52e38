// Package platformtest provides in-memory fakes for the platform package so
// detection and launch logic can be exercised for any OS on any host.
package platformtest

import (
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"time"
)

// FS is an in-memory platform.FileSystem. Windows and Unix paths may be
// mixed; backslashes are treated as separators.
type FS struct {
	mu      sync.RWMutex
	entries map[string]*node
}

type node struct {
	name string
	dir  bool
	data []byte
}

// NewFS returns an empty file system.
func NewFS() *FS {
	return &FS{entries: make(map[string]*node)}
}

func norm(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	if len(p) > 1 {
		p = strings.TrimRight(p, "/")
	}
	return p
}

// AddFile creates a file and any missing parent directories.
func (f *FS) AddFile(p string, data []byte) *FS {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := norm(p)
	f.mkParents(n)
	f.entries[n] = &node{name: path.Base(n), data: data}
	return f
}

// AddDir creates a directory and any missing parents.
func (f *FS) AddDir(p string) *FS {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := norm(p)
	f.mkParents(n)
	f.entries[n] = &node{name: path.Base(n), dir: true}
	return f
}

// Remove deletes p and everything below it.
func (f *FS) Remove(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := norm(p)
	for k := range f.entries {
		if k == n || strings.HasPrefix(k, n+"/") {
			delete(f.entries, k)
		}
	}
}

func (f *FS) mkParents(n string) {
	for dir := path.Dir(n); dir != "." && dir != "/" && dir != n; dir = path.Dir(dir) {
		if _, ok := f.entries[dir]; !ok {
			f.entries[dir] = &node{name: path.Base(dir), dir: true}
		}
		n = dir
	}
}

func (f *FS) Stat(name string) (fs.FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	nd, ok := f.entries[norm(name)]
	if !ok {
		return nil, &fs.PathError{Op: "stat", Path: name, Err: fs.ErrNotExist}
	}
	return info{nd}, nil
}

func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := norm(name)
	if nd, ok := f.entries[n]; !ok || !nd.dir {
		return nil, &fs.PathError{Op: "readdir", Path: name, Err: fs.ErrNotExist}
	}
	var out []fs.DirEntry
	for k, nd := range f.entries {
		if path.Dir(k) == n && k != n {
			out = append(out, fs.FileInfoToDirEntry(info{nd}))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

func (f *FS) ReadFile(name string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	nd, ok := f.entries[norm(name)]
	if !ok || nd.dir {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrNotExist}
	}
	return nd.data, nil
}

type info struct{ n *node }

func (i info) Name() string       { return i.n.name }
func (i info) Size() int64        { return int64(len(i.n.data)) }
func (i info) ModTime() time.Time { return time.Time{} }
func (i info) IsDir() bool        { return i.n.dir }
func (i info) Sys() any           { return nil }
func (i info) Mode() fs.FileMode {
	if i.n.dir {
		return fs.ModeDir | 0o755
	}
	return 0o755
}
