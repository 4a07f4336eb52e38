package session

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kandev/agenthost/internal/agents/catalog"
	"github.com/kandev/agenthost/internal/agents/models"
	"github.com/kandev/agenthost/internal/common/logger"
	"github.com/kandev/agenthost/internal/common/tracing"
	"github.com/kandev/agenthost/internal/platform"
)

const (
	subscriberBuffer = 256
	readBufferSize   = 32 * 1024
	// readDrainTimeout bounds how long an exited process's remaining output
	// is read before the PTY is closed.
	readDrainTimeout = 500 * time.Millisecond
)

// Config tunes the manager. Zero fields take the defaults of DefaultConfig.
type Config struct {
	MinRuntimeForAutoClose time.Duration
	TailBufferBytes        int
	TailKeepBytes          int
	ResizeDebounce         time.Duration
	StopGracePeriod        time.Duration
	DefaultCols            int
	DefaultRows            int
	NotFoundSignature      string
	Shell                  string
	ScrollbackBytes        int
	SubscriberTimeout      time.Duration
}

// DefaultConfig returns the stock session settings.
func DefaultConfig() Config {
	return Config{
		MinRuntimeForAutoClose: 10 * time.Second,
		TailBufferBytes:        1000,
		TailKeepBytes:          500,
		ResizeDebounce:         50 * time.Millisecond,
		StopGracePeriod:        2 * time.Second,
		DefaultCols:            120,
		DefaultRows:            40,
		NotFoundSignature:      "No conversation found with session ID",
		ScrollbackBytes:        2 * 1024 * 1024,
		SubscriberTimeout:      5 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinRuntimeForAutoClose <= 0 {
		c.MinRuntimeForAutoClose = d.MinRuntimeForAutoClose
	}
	if c.TailBufferBytes <= 0 {
		c.TailBufferBytes = d.TailBufferBytes
	}
	if c.TailKeepBytes <= 0 {
		c.TailKeepBytes = d.TailKeepBytes
	}
	if c.ResizeDebounce < 0 {
		c.ResizeDebounce = 0
	}
	if c.StopGracePeriod <= 0 {
		c.StopGracePeriod = d.StopGracePeriod
	}
	if c.DefaultCols <= 0 {
		c.DefaultCols = d.DefaultCols
	}
	if c.DefaultRows <= 0 {
		c.DefaultRows = d.DefaultRows
	}
	if c.NotFoundSignature == "" {
		c.NotFoundSignature = d.NotFoundSignature
	}
	if c.ScrollbackBytes <= 0 {
		c.ScrollbackBytes = d.ScrollbackBytes
	}
	if c.SubscriberTimeout <= 0 {
		c.SubscriberTimeout = d.SubscriberTimeout
	}
	return c
}

// CreateRequest starts an agent conversation.
type CreateRequest struct {
	// SessionID is generated when empty.
	SessionID string
	// AgentID may carry the WSL suffix to run the agent through WSL.
	AgentID       string
	WorkspacePath string
	// Initialized selects the resume flags instead of the fresh-session flags.
	Initialized  bool
	CustomAgents []models.CustomAgent
	Cols         int
	Rows         int
	// OnOutput receives every output chunk, including diagnostics.
	OnOutput func(data []byte)
}

// Listener receives state and exit events of every session. It runs on the
// session's goroutine and must not block or call back into the manager.
type Listener func(Event)

// Manager owns the live session processes, at most one per session id.
type Manager struct {
	env        *platform.Env
	spawner    Spawner
	cfg        Config
	classifier Classifier
	logger     *logger.Logger
	now        func() time.Time
	environ    func() []string

	mu       sync.RWMutex
	sessions map[string]*handle

	listenersMu  sync.RWMutex
	listeners    map[int]Listener
	nextListener int
}

// NewManager creates a manager spawning processes through spawner.
func NewManager(env *platform.Env, spawner Spawner, cfg Config, log *logger.Logger) *Manager {
	cfg = cfg.withDefaults()
	return &Manager{
		env:     env,
		spawner: spawner,
		cfg:     cfg,
		classifier: Classifier{
			MinRuntime:        cfg.MinRuntimeForAutoClose,
			NotFoundSignature: cfg.NotFoundSignature,
		},
		logger:    log.WithFields(zap.String("component", "session-manager")),
		now:       time.Now,
		environ:   os.Environ,
		sessions:  make(map[string]*handle),
		listeners: make(map[int]Listener),
	}
}

// handle is the runtime half of a session.
type handle struct {
	id            string
	agentID       string
	workspacePath string
	environment   models.Environment
	command       Command
	onOutput      func([]byte)

	// emitMu orders deliveries to subscribers and makes a new subscriber's
	// replay and registration atomic with respect to them. It is taken
	// before mu.
	emitMu sync.Mutex

	mu         sync.Mutex
	state      State
	proc       Process
	startedAt  time.Time
	tail       *tailBuffer
	scrollback *scrollback
	exit       *ExitInfo
	stopped    bool
	subs       map[int]*subscriber
	nextSub    int

	resizeTimer *time.Timer
	pendingCols uint16
	pendingRows uint16

	readDone chan struct{}
	waitDone chan struct{}
	stopOnce sync.Once
}

func (h *handle) info() Info {
	h.mu.Lock()
	defer h.mu.Unlock()
	info := Info{
		ID:            h.id,
		AgentID:       h.agentID,
		WorkspacePath: h.workspacePath,
		Environment:   h.environment,
		Command:       h.command.Line,
		State:         h.state,
		StartedAt:     h.startedAt,
	}
	if h.proc != nil {
		info.Pid = h.proc.Pid()
	}
	if h.exit != nil {
		exit := *h.exit
		info.Exit = &exit
	}
	return info
}

// Create spawns the agent for a session. A spawn failure is not returned as
// an error: it is written to the session's output and the session is left in
// StateFailed.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (Info, error) {
	_, span := tracing.Tracer("session").Start(ctx, "session.create")
	defer span.End()
	span.SetAttributes(attribute.String("agent.id", req.AgentID))

	baseID, isWSL := models.SplitWSLID(req.AgentID)
	def, err := catalog.Resolve(baseID, req.CustomAgents)
	if err != nil {
		return Info{}, err
	}
	environment := models.EnvironmentNative
	if isWSL {
		environment = models.EnvironmentWSL
	}

	id := req.SessionID
	if id == "" {
		id = uuid.New().String()
	}
	cmd, err := BuildCommand(m.env, m.cfg.Shell, def, environment, id, req.Initialized)
	if err != nil {
		return Info{}, err
	}

	h := &handle{
		id:            id,
		agentID:       req.AgentID,
		workspacePath: req.WorkspacePath,
		environment:   environment,
		command:       cmd,
		onOutput:      req.OnOutput,
		state:         StateUninitialized,
		tail:          newTailBuffer(m.cfg.TailBufferBytes, m.cfg.TailKeepBytes),
		scrollback:    newScrollback(m.cfg.ScrollbackBytes),
		subs:          make(map[int]*subscriber),
		readDone:      make(chan struct{}),
		waitDone:      make(chan struct{}),
	}

	m.mu.Lock()
	if old, ok := m.sessions[id]; ok {
		if old.info().State.Live() {
			m.mu.Unlock()
			return Info{}, fmt.Errorf("%w: %s", ErrSessionExists, id)
		}
		old.closeSubscribers()
	}
	m.sessions[id] = h
	m.mu.Unlock()

	log := m.logger.WithSessionID(id).WithAgentID(req.AgentID)
	m.setState(h, StateStarting)

	cols, rows := req.Cols, req.Rows
	if cols <= 0 || rows <= 0 {
		cols, rows = m.cfg.DefaultCols, m.cfg.DefaultRows
	}
	proc, err := m.spawner.Spawn(SpawnSpec{
		Name: cmd.Name,
		Args: cmd.Args,
		Dir:  req.WorkspacePath,
		Env:  spawnEnv(m.env, m.environ()),
		Cols: cols,
		Rows: rows,
	})
	if err != nil {
		log.Error("failed to spawn session process", zap.String("command", cmd.Line), zap.Error(err))
		m.emitOutput(h, spawnFailureMessage(def.Command, err))
		m.finish(h, StateFailed, &ExitInfo{Code: -1, Outcome: OutcomeNeedsAttention, Error: err.Error()}, false)
		return h.info(), nil
	}

	h.mu.Lock()
	h.proc = proc
	h.startedAt = m.now()
	h.mu.Unlock()
	m.setState(h, StateRunning)

	log.Info("session process started",
		zap.String("command", cmd.Line),
		zap.Int("pid", proc.Pid()),
		zap.Int("cols", cols),
		zap.Int("rows", rows))

	go m.readLoop(h)
	go m.waitLoop(h)

	return h.info(), nil
}

func spawnFailureMessage(command string, err error) []byte {
	return []byte(fmt.Sprintf(
		"\x1b[31mFailed to start %s. Make sure it is installed and in PATH.\x1b[0m\r\n\x1b[33mError: %v\x1b[0m\r\n",
		command, err))
}

func (m *Manager) readLoop(h *handle) {
	defer close(h.readDone)
	buf := make([]byte, readBufferSize)
	for {
		n, err := h.proc.Read(buf)
		if n > 0 {
			data := append([]byte(nil), buf[:n]...)
			m.answerTerminalQueries(h, data)
			m.emitOutput(h, data)
		}
		if err != nil {
			m.logger.Debug("session output read ended",
				zap.String("session_id", h.id),
				zap.Error(err))
			return
		}
	}
}

// answerTerminalQueries replies to DSR and DA1 queries while no terminal is
// attached to the session.
func (m *Manager) answerTerminalQueries(h *handle, data []byte) {
	h.mu.Lock()
	attached := len(h.subs) > 0
	h.mu.Unlock()
	if attached {
		return
	}
	if containsDSRQuery(data) {
		if _, err := h.proc.Write([]byte(cursorPositionReply)); err != nil {
			m.logger.Debug("failed to answer cursor position query", zap.String("session_id", h.id), zap.Error(err))
		}
	}
	if containsDA1Query(data) {
		if _, err := h.proc.Write([]byte(deviceAttributesReply)); err != nil {
			m.logger.Debug("failed to answer device attributes query", zap.String("session_id", h.id), zap.Error(err))
		}
	}
}

// waitLoop reaps the process and classifies its exit.
func (m *Manager) waitLoop(h *handle) {
	defer close(h.waitDone)

	code, waitErr := h.proc.Wait()

	select {
	case <-h.readDone:
	case <-time.After(readDrainTimeout):
	}
	_ = h.proc.Close()
	<-h.readDone

	h.mu.Lock()
	runtime := m.now().Sub(h.startedAt)
	stopped := h.stopped
	tail := h.tail.Bytes()
	h.mu.Unlock()

	exit := &ExitInfo{Code: code, Runtime: runtime}
	if waitErr != nil {
		exit.Error = waitErr.Error()
	}

	state := StateStopped
	switch {
	case stopped:
		exit.Outcome = OutcomeStopped
	case m.classifier.Classify(runtime, tail) == OutcomeClean:
		exit.Outcome = OutcomeClean
		state = StateExitedClean
	default:
		exit.Outcome = OutcomeNeedsAttention
		state = StateExitedNeedsAttention
		m.emitOutput(h, []byte(needsAttentionMessage))
	}

	m.logger.Info("session process exited",
		zap.String("session_id", h.id),
		zap.Int("exit_code", code),
		zap.Duration("runtime", runtime),
		zap.String("outcome", string(exit.Outcome)),
		zap.Error(waitErr))

	m.finish(h, state, exit, true)
}

// Send writes input to the session's process. Input for a session whose
// process has exited is dropped.
func (m *Manager) Send(id string, data []byte) error {
	h, ok := m.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	h.mu.Lock()
	proc, state := h.proc, h.state
	h.mu.Unlock()

	if proc == nil || state != StateRunning {
		m.logger.Debug("dropping input for session without a live process",
			zap.String("session_id", id),
			zap.String("state", string(state)))
		return nil
	}
	if _, err := proc.Write(data); err != nil {
		m.logger.Debug("session input write failed", zap.String("session_id", id), zap.Error(err))
	}
	return nil
}

// Resize changes the session's terminal size. Calls within the debounce
// window are coalesced and only the last size is applied.
func (m *Manager) Resize(id string, cols, rows uint16) error {
	if cols == 0 || rows == 0 {
		return fmt.Errorf("invalid terminal size %dx%d", cols, rows)
	}
	h, ok := m.get(id)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	h.mu.Lock()
	h.pendingCols, h.pendingRows = cols, rows
	if m.cfg.ResizeDebounce == 0 {
		h.mu.Unlock()
		m.applyResize(h)
		return nil
	}
	if h.resizeTimer == nil {
		h.resizeTimer = time.AfterFunc(m.cfg.ResizeDebounce, func() { m.applyResize(h) })
	} else {
		h.resizeTimer.Reset(m.cfg.ResizeDebounce)
	}
	h.mu.Unlock()
	return nil
}

func (m *Manager) applyResize(h *handle) {
	h.mu.Lock()
	proc, state := h.proc, h.state
	cols, rows := h.pendingCols, h.pendingRows
	h.mu.Unlock()

	if proc == nil || state != StateRunning {
		return
	}
	if err := proc.Resize(cols, rows); err != nil {
		m.logger.Debug("failed to resize session PTY", zap.String("session_id", h.id), zap.Error(err))
		return
	}
	m.logger.Debug("resized session PTY",
		zap.String("session_id", h.id),
		zap.Uint16("cols", cols),
		zap.Uint16("rows", rows))
}

// Stop terminates the session's process and forgets the session. Stopping
// an unknown or already stopped session is a no-op.
func (m *Manager) Stop(ctx context.Context, id string) error {
	m.mu.Lock()
	h, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return nil
	}
	h.stopOnce.Do(func() { m.terminate(ctx, h) })
	return nil
}

func (m *Manager) terminate(ctx context.Context, h *handle) {
	h.mu.Lock()
	h.stopped = true
	proc := h.proc
	exited := h.exit != nil
	if h.resizeTimer != nil {
		h.resizeTimer.Stop()
	}
	h.mu.Unlock()

	if proc == nil {
		m.setState(h, StateStopped)
		h.closeSubscribers()
		return
	}

	if !exited {
		if err := proc.Terminate(); err != nil {
			m.logger.Debug("terminate failed", zap.String("session_id", h.id), zap.Error(err))
		}
		select {
		case <-h.waitDone:
		case <-ctx.Done():
			_ = proc.Kill()
		case <-time.After(m.cfg.StopGracePeriod):
			m.logger.Warn("session process ignored terminate, killing", zap.String("session_id", h.id))
			_ = proc.Kill()
		}
	}
	select {
	case <-h.waitDone:
	case <-time.After(m.cfg.StopGracePeriod):
		m.logger.Error("session process did not exit after kill", zap.String("session_id", h.id))
	}
	m.setState(h, StateStopped)
	h.closeSubscribers()
}

// StopAll stops every session.
func (m *Manager) StopAll(ctx context.Context) error {
	m.mu.RLock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.RUnlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, id := range ids {
		g.Go(func() error { return m.Stop(gctx, id) })
	}
	return g.Wait()
}

// Get returns the current view of a session.
func (m *Manager) Get(id string) (Info, bool) {
	h, ok := m.get(id)
	if !ok {
		return Info{}, false
	}
	return h.info(), true
}

// List returns every session the manager holds.
func (m *Manager) List() []Info {
	m.mu.RLock()
	handles := make([]*handle, 0, len(m.sessions))
	for _, h := range m.sessions {
		handles = append(handles, h)
	}
	m.mu.RUnlock()

	out := make([]Info, 0, len(handles))
	for _, h := range handles {
		out = append(out, h.info())
	}
	return out
}

// Tail returns the recent output kept for exit classification.
func (m *Manager) Tail(id string) ([]byte, bool) {
	h, ok := m.get(id)
	if !ok {
		return nil, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tail.Bytes(), true
}

// Subscribe streams a session's events until unsubscribe is called or the
// session is stopped or replaced. The stream opens with the retained
// scrollback, and with the final state and exit when the process is already
// gone. A subscriber that stops reading for longer than the subscriber
// timeout is disconnected.
func (m *Manager) Subscribe(id string) (<-chan Event, func(), error) {
	h, ok := m.get(id)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	sub := newSubscriber()

	h.emitMu.Lock()
	h.mu.Lock()
	if h.subs == nil {
		h.mu.Unlock()
		h.emitMu.Unlock()
		sub.close()
		return sub.ch, func() {}, nil
	}
	if out := h.scrollback.Bytes(); len(out) > 0 {
		sub.ch <- Event{SessionID: h.id, Kind: EventOutput, Data: out}
	}
	if h.exit != nil {
		exit := *h.exit
		sub.ch <- Event{SessionID: h.id, Kind: EventState, State: h.state}
		sub.ch <- Event{SessionID: h.id, Kind: EventExited, State: h.state, Exit: &exit}
	}
	subID := h.nextSub
	h.nextSub++
	h.subs[subID] = sub
	h.mu.Unlock()
	h.emitMu.Unlock()

	return sub.ch, func() { h.removeSubscriber(subID) }, nil
}

// Listen registers l for state and exit events of all sessions.
func (m *Manager) Listen(l Listener) (cancel func()) {
	m.listenersMu.Lock()
	id := m.nextListener
	m.nextListener++
	m.listeners[id] = l
	m.listenersMu.Unlock()

	return func() {
		m.listenersMu.Lock()
		delete(m.listeners, id)
		m.listenersMu.Unlock()
	}
}

func (m *Manager) get(id string) (*handle, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.sessions[id]
	return h, ok
}

func (m *Manager) setState(h *handle, state State) {
	h.emitMu.Lock()
	h.mu.Lock()
	if h.state == state {
		h.mu.Unlock()
		h.emitMu.Unlock()
		return
	}
	h.state = state
	h.mu.Unlock()
	ev := Event{SessionID: h.id, Kind: EventState, State: state}
	m.broadcast(h, ev)
	h.emitMu.Unlock()

	m.notify(ev)
}

// finish records the exit and moves to the terminal state in one step, so a
// subscriber sees either both events or a replay of both.
func (m *Manager) finish(h *handle, state State, exit *ExitInfo, announce bool) {
	h.emitMu.Lock()
	h.mu.Lock()
	h.exit = exit
	changed := h.state != state
	h.state = state
	h.mu.Unlock()

	var events []Event
	if changed {
		events = append(events, Event{SessionID: h.id, Kind: EventState, State: state})
	}
	if announce {
		exitCopy := *exit
		events = append(events, Event{SessionID: h.id, Kind: EventExited, State: state, Exit: &exitCopy})
	}
	for _, ev := range events {
		m.broadcast(h, ev)
	}
	h.emitMu.Unlock()

	for _, ev := range events {
		m.notify(ev)
	}
}

func (m *Manager) emitOutput(h *handle, data []byte) {
	h.emitMu.Lock()
	defer h.emitMu.Unlock()

	h.mu.Lock()
	h.tail.Write(data)
	h.scrollback.Append(data)
	h.mu.Unlock()

	if h.onOutput != nil {
		h.onOutput(data)
	}
	m.broadcast(h, Event{SessionID: h.id, Kind: EventOutput, Data: data})
}

func (m *Manager) notify(ev Event) {
	m.listenersMu.RLock()
	listeners := make([]Listener, 0, len(m.listeners))
	for _, l := range m.listeners {
		listeners = append(listeners, l)
	}
	m.listenersMu.RUnlock()
	for _, l := range listeners {
		l(ev)
	}
}

// broadcast delivers ev to every subscriber in order. The caller holds
// h.emitMu.
func (m *Manager) broadcast(h *handle, ev Event) {
	h.mu.Lock()
	subs := make(map[int]*subscriber, len(h.subs))
	for id, sub := range h.subs {
		subs[id] = sub
	}
	h.mu.Unlock()

	for id, sub := range subs {
		if sub.send(ev, m.cfg.SubscriberTimeout) {
			continue
		}
		if h.removeSubscriber(id) {
			m.logger.Warn("disconnecting stalled session subscriber",
				zap.String("session_id", h.id),
				zap.Duration("timeout", m.cfg.SubscriberTimeout))
		}
	}
}

// removeSubscriber closes and forgets a subscriber. It reports whether the
// subscriber was still registered.
func (h *handle) removeSubscriber(id int) bool {
	h.mu.Lock()
	sub, ok := h.subs[id]
	if ok {
		delete(h.subs, id)
	}
	h.mu.Unlock()
	if ok {
		sub.close()
	}
	return ok
}

func (h *handle) closeSubscribers() {
	h.mu.Lock()
	subs := h.subs
	h.subs = nil
	h.mu.Unlock()
	for _, sub := range subs {
		sub.close()
	}
}
