package session

import "io"

// PTY is the master side of a pseudo-terminal.
// On Unix it wraps creack/pty, on Windows a ConPTY pseudo-console.
type PTY interface {
	io.ReadWriteCloser
	// Resize changes the terminal window size.
	Resize(cols, rows uint16) error
}
