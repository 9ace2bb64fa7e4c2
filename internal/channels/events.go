// Package channels provides typed Go channels for poll and lifecycle events.
package channels

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// TickResult classifies the outcome of one poll tick
type TickResult string

const (
	TickOK          TickResult = "ok"
	TickFetchFailed TickResult = "fetch_failed"
	TickWriteFailed TickResult = "write_failed"
)

// TickEvent is published by a poll loop after every tick
type TickEvent struct {
	SessionID uuid.UUID
	Job       string
	Address   string
	OID       string
	Value     string // empty when the fetch failed
	Result    TickResult
	Error     string
	Duration  time.Duration
	Timestamp time.Time
}

// TransitionEvent is published when the supervisor changes state
type TransitionEvent struct {
	From      string
	To        string
	Event     string
	Reason    string
	SessionID uuid.UUID // zero unless a session was created or torn down
	Timestamp time.Time
}

// EventChannels provides typed channels for all bridge events
type EventChannels struct {
	Ticks       chan TickEvent
	Transitions chan TransitionEvent

	dropped   atomic.Uint64
	done      chan struct{}
	closeOnce sync.Once
}

// NewEventChannels creates a new EventChannels hub with configured buffer sizes
func NewEventChannels(cfg EventChannelsConfig) *EventChannels {
	if cfg.TickBufferSize <= 0 {
		cfg.TickBufferSize = defaultTickBufferSize
	}
	if cfg.TransitionBufferSize <= 0 {
		cfg.TransitionBufferSize = defaultTransitionBufferSize
	}

	return &EventChannels{
		Ticks:       make(chan TickEvent, cfg.TickBufferSize),
		Transitions: make(chan TransitionEvent, cfg.TransitionBufferSize),
		done:        make(chan struct{}),
	}
}

// PublishTick offers a tick event without blocking. It reports whether the
// event was queued. A nil hub accepts and discards everything.
func (ec *EventChannels) PublishTick(ev TickEvent) bool {
	if ec == nil || ec.isClosed() {
		return false
	}
	select {
	case ec.Ticks <- ev:
		return true
	default:
		ec.dropped.Add(1)
		return false
	}
}

// PublishTransition offers a transition event without blocking
func (ec *EventChannels) PublishTransition(ev TransitionEvent) bool {
	if ec == nil || ec.isClosed() {
		return false
	}
	select {
	case ec.Transitions <- ev:
		return true
	default:
		ec.dropped.Add(1)
		return false
	}
}

// Dropped returns how many events were discarded because a buffer was full
func (ec *EventChannels) Dropped() uint64 {
	if ec == nil {
		return 0
	}
	return ec.dropped.Load()
}

// Close signals consumers to stop. It is safe to call more than once.
func (ec *EventChannels) Close() error {
	ec.closeOnce.Do(func() { close(ec.done) })
	return nil
}

// Done returns a channel that's closed when the EventChannels is shutting down
func (ec *EventChannels) Done() <-chan struct{} {
	return ec.done
}

func (ec *EventChannels) isClosed() bool {
	select {
	case <-ec.done:
		return true
	default:
		return false
	}
}
