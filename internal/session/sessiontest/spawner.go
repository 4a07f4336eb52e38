// Package sessiontest provides a scripted session.Spawner for tests of
// packages built on the session manager.
package sessiontest

import (
	"bytes"
	"io"
	"sync"

	"github.com/kandev/agenthost/internal/session"
)

// Process is a scripted session.Process. Output is fed with Emit and the
// process ends with Exit.
type Process struct {
	outR *io.PipeReader
	outW *io.PipeWriter

	mu    sync.Mutex
	input bytes.Buffer
	sizes [][2]uint16

	exit     chan int
	exitOnce sync.Once
}

// NewProcess returns a process that runs until Exit, Terminate or Kill.
func NewProcess() *Process {
	r, w := io.Pipe()
	return &Process{outR: r, outW: w, exit: make(chan int, 1)}
}

func (p *Process) Read(b []byte) (int, error) { return p.outR.Read(b) }

func (p *Process) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.Write(b)
}

func (p *Process) Close() error { return p.outR.Close() }

func (p *Process) Resize(cols, rows uint16) error {
	p.mu.Lock()
	p.sizes = append(p.sizes, [2]uint16{cols, rows})
	p.mu.Unlock()
	return nil
}

func (p *Process) Pid() int { return 1000 }

func (p *Process) Wait() (int, error) { return <-p.exit, nil }

func (p *Process) Terminate() error { p.Exit(143); return nil }

func (p *Process) Kill() error { p.Exit(137); return nil }

// Emit writes agent output and blocks until it has been read.
func (p *Process) Emit(s string) {
	_, _ = p.outW.Write([]byte(s))
}

// Exit ends the process with code. Later calls are ignored.
func (p *Process) Exit(code int) {
	p.exitOnce.Do(func() {
		_ = p.outW.Close()
		p.exit <- code
	})
}

// Input returns everything written to the process.
func (p *Process) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

// Sizes returns the resizes applied, in order.
func (p *Process) Sizes() [][2]uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][2]uint16(nil), p.sizes...)
}

// Spawner records spawn requests and hands out scripted processes.
type Spawner struct {
	mu    sync.Mutex
	Err   error
	specs []session.SpawnSpec
	procs []*Process
}

func (s *Spawner) Spawn(spec session.SpawnSpec) (session.Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	if s.Err != nil {
		return nil, s.Err
	}
	p := NewProcess()
	s.procs = append(s.procs, p)
	return p, nil
}

// Specs returns every recorded spawn request.
func (s *Spawner) Specs() []session.SpawnSpec {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]session.SpawnSpec(nil), s.specs...)
}

// Last returns the most recently spawned process, or nil.
func (s *Spawner) Last() *Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return nil
	}
	return s.procs[len(s.procs)-1]
}
