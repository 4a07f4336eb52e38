// Package lockfile guards the data directory against a second server instance.
package lockfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// ErrAlreadyRunning is returned when another process holds the lock.
var ErrAlreadyRunning = errors.New("agenthost already running (lock held by another process)")

// Lock is a held instance lock. Release it on shutdown.
type Lock struct {
	file    *flock.Flock
	pidFile string
}

// Acquire takes an exclusive non-blocking lock on <dir>/agenthost.lock and
// records the current pid next to it.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock dir: %w", err)
	}

	fileLock := flock.New(filepath.Join(dir, "agenthost.lock"))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, ErrAlreadyRunning
	}

	pidFile := filepath.Join(dir, "agenthost.pid")
	if err := os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644); err != nil {
		_ = fileLock.Unlock()
		return nil, fmt.Errorf("writing PID file: %w", err)
	}

	return &Lock{file: fileLock, pidFile: pidFile}, nil
}

// Release drops the lock and removes the pid file. Safe to call twice.
func (l *Lock) Release() error {
	if l == nil || l.file == nil {
		return nil
	}
	_ = os.Remove(l.pidFile)
	err := l.file.Unlock()
	l.file = nil
	return err
}
