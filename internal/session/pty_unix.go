//go:build !windows

package session

import (
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"

	"github.com/creack/pty"
)

type unixPTY struct {
	f *os.File
}

// Read reports the end of the session as io.EOF. Linux fails reads on the
// master with EIO once every process holding the terminal has exited.
func (p *unixPTY) Read(b []byte) (int, error) {
	n, err := p.f.Read(b)
	if err != nil && errors.Is(err, syscall.EIO) {
		err = io.EOF
	}
	return n, err
}

func (p *unixPTY) Write(b []byte) (int, error) { return p.f.Write(b) }
func (p *unixPTY) Close() error                { return p.f.Close() }

func (p *unixPTY) Resize(cols, rows uint16) error {
	return pty.Setsize(p.f, &pty.Winsize{Cols: cols, Rows: rows})
}

// startPTY starts cmd as the leader of a new session with the PTY as its
// controlling terminal, so the session's process group id is its pid.
func startPTY(cmd *exec.Cmd, cols, rows int) (PTY, error) {
	f, err := pty.StartWithAttrs(cmd,
		&pty.Winsize{Cols: uint16(cols), Rows: uint16(rows)},
		&syscall.SysProcAttr{Setsid: true, Setctty: true})
	if err != nil {
		return nil, err
	}
	return &unixPTY{f: f}, nil
}
