package session

import (
	"os/exec"
	"sync"
)

// SpawnSpec describes a process to start in a new PTY.
type SpawnSpec struct {
	Name string
	Args []string
	Dir  string
	Env  []string
	Cols int
	Rows int
}

// Process is a running PTY-backed OS process.
type Process interface {
	PTY
	Pid() int
	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	Terminate() error
	Kill() error
}

// Spawner starts session processes.
type Spawner interface {
	Spawn(spec SpawnSpec) (Process, error)
}

// PTYSpawner starts processes in a real pseudo-terminal.
type PTYSpawner struct{}

// Spawn starts spec. The process outlives any request context; its lifetime
// is managed by Manager.Stop and the wait loop.
func (PTYSpawner) Spawn(spec SpawnSpec) (Process, error) {
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = spec.Env

	p, err := startPTY(cmd, spec.Cols, spec.Rows)
	if err != nil {
		return nil, err
	}
	return &ptyProcess{PTY: p, cmd: cmd}, nil
}

type ptyProcess struct {
	PTY
	cmd       *exec.Cmd
	closeOnce sync.Once
	closeErr  error
}

func (p *ptyProcess) Pid() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *ptyProcess) Wait() (int, error) { return waitProcess(p.cmd) }

func (p *ptyProcess) Terminate() error { return terminateProcess(p.cmd.Process) }

func (p *ptyProcess) Kill() error { return killProcess(p.cmd.Process) }

func (p *ptyProcess) Close() error {
	p.closeOnce.Do(func() { p.closeErr = p.PTY.Close() })
	return p.closeErr
}
