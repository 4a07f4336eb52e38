package platform

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"
)

// ProbeStatus classifies the outcome of one external command.
type ProbeStatus string

const (
	ProbeOK       ProbeStatus = "ok"
	ProbeNotFound ProbeStatus = "not-found"
	ProbeFailed   ProbeStatus = "probe-failed"
)

// ErrProbeTimeout is set on a ProbeResult whose command ran past its timeout.
var ErrProbeTimeout = errors.New("probe timed out")

// ProbeResult is the typed outcome of running a command. Probes never return
// errors; callers branch on Status.
type ProbeResult struct {
	Status   ProbeStatus
	Stdout   string
	Stderr   string
	ExitCode int
	Err      error
	Duration time.Duration
}

// OK reports whether the command exited cleanly.
func (r ProbeResult) OK() bool { return r.Status == ProbeOK }

// FirstLine returns the first non-empty trimmed line of stdout.
func (r ProbeResult) FirstLine() string {
	for _, line := range strings.Split(r.Stdout, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// CommandSpec describes one external command.
type CommandSpec struct {
	Name    string
	Args    []string
	Dir     string
	Path    string // PATH override used for lookup and passed to the child
	Timeout time.Duration
}

// String renders the command for logs.
func (c CommandSpec) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// CommandRunner executes external commands.
type CommandRunner interface {
	// Run waits for the command and classifies its outcome.
	Run(ctx context.Context, spec CommandSpec) ProbeResult
	// Start spawns the command and hands it off without supervising it.
	Start(spec CommandSpec) error
}

// ExecRunner runs commands on the host with os/exec.
type ExecRunner struct {
	GOOS string
}

// NewExecRunner returns a runner for the current host.
func NewExecRunner(env *Env) *ExecRunner {
	return &ExecRunner{GOOS: env.GOOS}
}

// Run executes spec and waits for it, bounded by spec.Timeout.
func (r *ExecRunner) Run(ctx context.Context, spec CommandSpec) ProbeResult {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	started := time.Now()
	cmd := r.command(ctx, spec)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	res := ProbeResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}
	return classify(ctx, res, err)
}

// Start spawns spec detached from the caller. The child is reaped in the background.
func (r *ExecRunner) Start(spec CommandSpec) error {
	cmd := r.command(context.Background(), spec)
	if err := cmd.Start(); err != nil {
		return err
	}
	go func() { _ = cmd.Wait() }()
	return nil
}

func (r *ExecRunner) command(ctx context.Context, spec CommandSpec) *exec.Cmd {
	name := spec.Name
	if spec.Path != "" {
		if resolved, ok := LookPathIn(name, spec.Path, r.GOOS); ok {
			name = resolved
		}
	}
	cmd := exec.CommandContext(ctx, name, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Path != "" {
		cmd.Env = WithPath(os.Environ(), spec.Path)
	}
	return cmd
}

func classify(ctx context.Context, res ProbeResult, err error) ProbeResult {
	switch {
	case err == nil:
		res.Status = ProbeOK
	case errors.Is(ctx.Err(), context.DeadlineExceeded):
		res.Status = ProbeFailed
		res.Err = ErrProbeTimeout
		res.ExitCode = -1
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		res.Status = ProbeNotFound
		res.Err = err
		res.ExitCode = -1
	default:
		res.Status = ProbeFailed
		res.Err = err
		res.ExitCode = -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
		}
	}
	return res
}

// WithPath returns environ with PATH replaced. Keys are matched
// case-insensitively because Windows spells it Path.
func WithPath(environ []string, path string) []string {
	out := make([]string, 0, len(environ)+1)
	for _, kv := range environ {
		if eq := strings.IndexByte(kv, '='); eq > 0 && strings.EqualFold(kv[:eq], "PATH") {
			continue
		}
		out = append(out, kv)
	}
	return append(out, "PATH="+path)
}
