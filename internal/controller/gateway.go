// Package controller defines the gateway to the automation controller whose
// symbols the bridge reads and writes, plus an HTTP implementation of it.
package controller

import (
	"context"
	"errors"
	"strings"
)

// ErrNotConnected is returned when the controller cannot be reached or the
// connection was found dropped. Callers discard the gateway and reconnect.
var ErrNotConnected = errors.New("controller not connected")

// RunState is the controller's reported operating mode
type RunState int

const (
	RunStateUnknown RunState = iota
	RunStateRun
	RunStateStop
	RunStateConfig
	RunStateError
)

// String returns the lower-case wire name of the run state
func (s RunState) String() string {
	switch s {
	case RunStateRun:
		return "run"
	case RunStateStop:
		return "stop"
	case RunStateConfig:
		return "config"
	case RunStateError:
		return "error"
	default:
		return "unknown"
	}
}

// Running reports whether the controller program is executing
func (s RunState) Running() bool {
	return s == RunStateRun
}

// ParseRunState maps a wire name to a RunState. Unrecognised names map to
// RunStateUnknown.
func ParseRunState(s string) RunState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "run", "running":
		return RunStateRun
	case "stop", "stopped":
		return RunStateStop
	case "config":
		return RunStateConfig
	case "error":
		return RunStateError
	default:
		return RunStateUnknown
	}
}

// Symbol is one controller item together with its out-of-band annotations
type Symbol struct {
	Name       string            `json:"name"`
	Type       string            `json:"type,omitempty"`
	Value      string            `json:"value,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Lister enumerates annotated controller symbols
type Lister interface {
	Symbols(ctx context.Context) ([]Symbol, error)
}

// Writer writes a textual value into a named controller symbol
type Writer interface {
	Write(ctx context.Context, name, value string) error
}

// Gateway is the connection to one controller endpoint
type Gateway interface {
	Lister
	Writer

	// Connect establishes the connection. It must be called before any other
	// operation and may be called only once per Gateway.
	Connect(ctx context.Context) error

	// Close releases the connection. Close is safe to call more than once.
	Close() error

	// Connected reports the last known connectivity of the gateway
	Connected() bool

	// RunState reads the controller's current operating mode
	RunState(ctx context.Context) (RunState, error)
}

// Factory creates a fresh, unconnected Gateway. The supervisor calls it each
// time it needs a new connection so stale handles are never reused.
type Factory func() Gateway
