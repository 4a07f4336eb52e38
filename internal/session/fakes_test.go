package session

import (
	"bytes"
	"errors"
	"io"
	"sync"
	"time"
)

type fakeProcess struct {
	outR *io.PipeReader
	outW *io.PipeWriter

	mu         sync.Mutex
	input      bytes.Buffer
	sizes      [][2]uint16
	terminated bool
	killed     bool

	// ignoreTerminate makes Terminate a no-op so Stop has to escalate.
	ignoreTerminate bool

	exit     chan int
	exitOnce sync.Once
}

func newFakeProcess() *fakeProcess {
	r, w := io.Pipe()
	return &fakeProcess{outR: r, outW: w, exit: make(chan int, 1)}
}

func (p *fakeProcess) Read(b []byte) (int, error) { return p.outR.Read(b) }

func (p *fakeProcess) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.Write(b)
}

func (p *fakeProcess) Close() error { return p.outR.Close() }

func (p *fakeProcess) Resize(cols, rows uint16) error {
	p.mu.Lock()
	p.sizes = append(p.sizes, [2]uint16{cols, rows})
	p.mu.Unlock()
	return nil
}

func (p *fakeProcess) Pid() int { return 4242 }

func (p *fakeProcess) Wait() (int, error) { return <-p.exit, nil }

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated = true
	ignore := p.ignoreTerminate
	p.mu.Unlock()
	if !ignore {
		p.Exit(143)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(137)
	return nil
}

// Emit writes agent output. It blocks until the manager has read it.
func (p *fakeProcess) Emit(s string) {
	_, _ = p.outW.Write([]byte(s))
}

// Exit ends the process with code.
func (p *fakeProcess) Exit(code int) {
	p.exitOnce.Do(func() {
		_ = p.outW.Close()
		p.exit <- code
	})
}

func (p *fakeProcess) Input() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.input.String()
}

func (p *fakeProcess) Sizes() [][2]uint16 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([][2]uint16(nil), p.sizes...)
}

type fakeSpawner struct {
	mu    sync.Mutex
	specs []SpawnSpec
	procs []*fakeProcess
	err   error
}

func (s *fakeSpawner) Spawn(spec SpawnSpec) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs = append(s.specs, spec)
	if s.err != nil {
		return nil, s.err
	}
	p := newFakeProcess()
	s.procs = append(s.procs, p)
	return p, nil
}

func (s *fakeSpawner) last() (SpawnSpec, *fakeProcess) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.procs) == 0 {
		return s.specs[len(s.specs)-1], nil
	}
	return s.specs[len(s.specs)-1], s.procs[len(s.procs)-1]
}

var errNoSuchFile = errors.New("exec: \"claude\": executable file not found in $PATH")

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}
