// Package supervisor keeps the controller connection alive and couples the
// poll session to the controller being connected and in RUN.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"github.com/plcsnmp/plcsnmp/internal/channels"
	"github.com/plcsnmp/plcsnmp/internal/controller"
	"github.com/plcsnmp/plcsnmp/internal/job"
	"github.com/plcsnmp/plcsnmp/internal/metrics"
	"github.com/plcsnmp/plcsnmp/internal/poller"
)

const (
	DefaultIdleInterval   = 2000 * time.Millisecond
	DefaultReconnectDelay = 5000 * time.Millisecond
)

// ErrRuntimeState marks a failure to read run state or discover jobs on a
// connection that was believed healthy
var ErrRuntimeState = errors.New("runtime state error")

// Option configures a Supervisor
type Option func(*Supervisor)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) {
		if logger != nil {
			s.logger = logger.With("component", "supervisor")
		}
	}
}

// WithIdleInterval sets the pause between iterations while nothing failed
func WithIdleInterval(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.idleInterval = d
		}
	}
}

// WithReconnectDelay sets the pause after the connection was discarded
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Supervisor) {
		if d > 0 {
			s.reconnectDelay = d
		}
	}
}

// WithPollerConfig sets the fetch timeout and cooldown used by sessions
func WithPollerConfig(cfg poller.Config) Option {
	return func(s *Supervisor) {
		s.pollerCfg = cfg
	}
}

// WithEvents publishes transitions and ticks to events
func WithEvents(events *channels.EventChannels) Option {
	return func(s *Supervisor) {
		s.events = events
	}
}

// Supervisor owns the controller connection and at most one session
type Supervisor struct {
	factory   controller.Factory
	fetcher   poller.Fetcher
	events    *channels.EventChannels
	pollerCfg poller.Config
	logger    *slog.Logger

	idleInterval   time.Duration
	reconnectDelay time.Duration

	machine *fsm.FSM

	// owned by the Run goroutine
	conn       controller.Gateway
	discovered bool
	// quietRetry demotes connect retry transitions to debug while the
	// connect error is unchanged
	quietRetry bool

	mu          sync.RWMutex
	session     *poller.Session
	connected   bool
	runState    controller.RunState
	lastConnErr string
	lastErr     string
	stateSince  time.Time
}

// New creates a Supervisor. factory is called for every new connection.
func New(factory controller.Factory, fetcher poller.Fetcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		factory:        factory,
		fetcher:        fetcher,
		logger:         slog.Default().With("component", "supervisor"),
		idleInterval:   DefaultIdleInterval,
		reconnectDelay: DefaultReconnectDelay,
		runState:       controller.RunStateUnknown,
		stateSince:     time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.machine = newStateMachine(s.onEnterState)
	metrics.SetState(StateNoConnection, States)
	return s
}

// Run drives the supervisor until ctx is cancelled. On return the session
// has been torn down and the connection closed. It always returns nil once
// ctx is done.
func (s *Supervisor) Run(ctx context.Context) error {
	s.logger.Info("supervisor starting",
		"idle_interval", s.idleInterval,
		"reconnect_delay", s.reconnectDelay,
	)
	defer s.shutdown()

	for {
		delay := s.step(ctx)
		if ctx.Err() != nil {
			return nil
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

// step runs one iteration and returns how long to wait before the next
func (s *Supervisor) step(ctx context.Context) time.Duration {
	if s.conn == nil {
		if !s.connect(ctx) {
			return s.reconnectDelay
		}
	}

	if !s.conn.Connected() {
		s.logger.Warn("controller connection lost")
		s.disconnect("connection lost")
		return s.reconnectDelay
	}

	state, err := s.conn.RunState(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return 0
		}
		err = fmt.Errorf("%w: read run state: %w", ErrRuntimeState, err)
		s.logger.Error("failed to read controller run state", "error", err)
		s.setLastError(err)
		s.disconnect("run state read failed")
		return s.reconnectDelay
	}

	s.observeRunState(state)

	current := s.machine.Current()
	if !state.Running() {
		if isRunning(current) {
			id := s.teardownSession()
			s.fire(EventStopped, "controller left run state", id)
		}
		return s.idleInterval
	}

	if current == StateConnectedNotRunning {
		s.discovered = false
		s.fire(EventRunning, "controller entered run state")
	}

	if s.machine.Current() == StateRunningNoSession && !s.discovered {
		if !s.startSession(ctx) {
			if ctx.Err() != nil {
				return 0
			}
			return s.reconnectDelay
		}
	}

	return s.idleInterval
}

// connect creates a fresh gateway and tries to connect it. On failure the
// gateway is discarded and false is returned.
func (s *Supervisor) connect(ctx context.Context) bool {
	s.conn = s.factory()
	s.resetObserved()
	s.mu.RLock()
	s.quietRetry = s.lastConnErr != ""
	s.mu.RUnlock()
	s.fire(EventConnect, "connection created")

	if err := s.conn.Connect(ctx); err != nil {
		s.conn.Close()
		s.conn = nil
		if ctx.Err() != nil {
			return false
		}

		s.quietRetry = s.reportConnectError(err)
		metrics.ReconnectsTotal.Inc()
		s.fire(EventConnectFailed, "connect failed")
		return false
	}

	s.mu.Lock()
	s.connected = true
	s.lastConnErr = ""
	s.mu.Unlock()
	s.quietRetry = false

	s.logger.Info("connected to controller")
	s.fire(EventConnected, "connect succeeded")
	return true
}

// reportConnectError logs err unless it repeats the previous message and
// reports whether it was a repeat.
func (s *Supervisor) reportConnectError(err error) bool {
	msg := err.Error()

	s.mu.Lock()
	repeated := msg == s.lastConnErr
	s.lastConnErr = msg
	s.lastErr = msg
	s.mu.Unlock()

	if repeated {
		s.logger.Debug("controller connect failed again", "error", err)
		return true
	}
	s.logger.Error("controller connect failed", "error", err, "retry_in", s.reconnectDelay)
	return false
}

func (s *Supervisor) observeRunState(state controller.RunState) {
	s.mu.Lock()
	previous := s.runState
	s.runState = state
	s.mu.Unlock()

	if previous != state {
		s.logger.Info("controller run state changed", "from", previous.String(), "to", state.String())
	}
}

// startSession discovers jobs once for this entry into RUN and starts a
// session when there is at least one. A discovery failure drops the
// connection and returns false.
func (s *Supervisor) startSession(ctx context.Context) bool {
	descriptors, err := job.Discover(ctx, s.conn, s.logger)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		err = fmt.Errorf("%w: %w", ErrRuntimeState, err)
		s.logger.Error("job discovery failed", "error", err)
		s.setLastError(err)
		s.disconnect("discovery failed")
		return false
	}
	s.discovered = true

	if len(descriptors) == 0 {
		s.logger.Info("no jobs configured")
		return true
	}

	for _, d := range descriptors {
		s.logger.Info("job discovered",
			"job", d.ID(),
			"address", d.Address,
			"oid", d.OID,
			"interval", d.Interval,
		)
	}

	cfg := s.pollerCfg
	cfg.Events = s.events
	session := poller.NewSession(ctx, descriptors, s.fetcher, s.conn, cfg, s.logger)

	s.mu.Lock()
	s.session = session
	s.mu.Unlock()

	s.fire(EventSessionStarted, fmt.Sprintf("%d jobs", len(descriptors)), session.ID())
	return true
}

// teardownSession closes the active session, if any, waits for it and
// returns its id
func (s *Supervisor) teardownSession() uuid.UUID {
	s.mu.Lock()
	session := s.session
	s.session = nil
	s.mu.Unlock()

	session.Close()
	return session.ID()
}

// disconnect tears down the session before closing and discarding the
// connection, then moves to no_connection
func (s *Supervisor) disconnect(reason string) {
	id := s.teardownSession()

	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}
	s.discovered = false

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	metrics.ReconnectsTotal.Inc()
	if s.machine.Current() != StateNoConnection {
		s.fire(EventDisconnected, reason, id)
	}
}

func (s *Supervisor) shutdown() {
	id := s.teardownSession()
	if s.conn != nil {
		s.conn.Close()
		s.conn = nil
	}

	s.mu.Lock()
	s.connected = false
	s.mu.Unlock()

	if s.machine.Current() != StateNoConnection {
		s.fire(EventDisconnected, "shutdown", id)
	}
	s.logger.Info("supervisor stopped")
}

// resetObserved forgets connectivity and run state for a new connection.
// The last connect error survives so repeated failures stay quiet.
func (s *Supervisor) resetObserved() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	s.runState = controller.RunStateUnknown
}

func (s *Supervisor) setLastError(err error) {
	s.mu.Lock()
	s.lastErr = err.Error()
	s.mu.Unlock()
}

// fire sends event to the state machine. Transitions are bookkeeping only,
// so they run on a context that shutdown cannot cancel mid-way.
func (s *Supervisor) fire(event, reason string, sessionID ...uuid.UUID) {
	args := []interface{}{reason}
	if len(sessionID) > 0 {
		args = append(args, sessionID[0])
	}
	if err := s.machine.Event(context.Background(), event, args...); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			s.logger.Error("invalid supervisor transition", "event", event, "state", s.machine.Current(), "error", err)
		}
	}
}

func (s *Supervisor) onEnterState(e *fsm.Event) {
	reason := ""
	if len(e.Args) > 0 {
		if r, ok := e.Args[0].(string); ok {
			reason = r
		}
	}

	now := time.Now()
	sessionID := uuid.Nil
	if len(e.Args) > 1 {
		if id, ok := e.Args[1].(uuid.UUID); ok {
			sessionID = id
		}
	}

	s.mu.Lock()
	s.stateSince = now
	s.mu.Unlock()

	level := slog.LevelInfo
	if s.quietRetry && (e.Event == EventConnect || e.Event == EventConnectFailed) {
		level = slog.LevelDebug
	}
	s.logger.Log(context.Background(), level, "supervisor state changed", "from", e.Src, "to", e.Dst, "event", e.Event, "reason", reason)

	metrics.SupervisorTransitions.WithLabelValues(e.Dst).Inc()
	metrics.SetState(e.Dst, States)

	if !s.events.PublishTransition(channels.TransitionEvent{
		From:      e.Src,
		To:        e.Dst,
		Event:     e.Event,
		Reason:    reason,
		SessionID: sessionID,
		Timestamp: now,
	}) && s.events != nil {
		metrics.EventsDropped.Inc()
	}
}
