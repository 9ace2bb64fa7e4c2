package supervisor

import (
	"context"

	"github.com/looplab/fsm"
)

// Supervisor states
const (
	StateNoConnection         = "no_connection"
	StateConnecting           = "connecting"
	StateConnectedNotRunning  = "connected_not_running"
	StateRunningNoSession     = "running_no_session"
	StateRunningSessionActive = "running_session_active"
)

// Supervisor events
const (
	EventConnect        = "connect"
	EventConnected      = "connected"
	EventConnectFailed  = "connect_failed"
	EventRunning        = "running"
	EventSessionStarted = "session_started"
	EventStopped        = "stopped"
	EventDisconnected   = "disconnected"
)

// States lists every supervisor state in lifecycle order
var States = []string{
	StateNoConnection,
	StateConnecting,
	StateConnectedNotRunning,
	StateRunningNoSession,
	StateRunningSessionActive,
}

var connectedStates = []string{
	StateConnectedNotRunning,
	StateRunningNoSession,
	StateRunningSessionActive,
}

func newStateMachine(onEnter func(e *fsm.Event)) *fsm.FSM {
	return fsm.NewFSM(
		StateNoConnection,
		fsm.Events{
			{Name: EventConnect, Src: []string{StateNoConnection}, Dst: StateConnecting},
			{Name: EventConnected, Src: []string{StateConnecting}, Dst: StateConnectedNotRunning},
			{Name: EventConnectFailed, Src: []string{StateConnecting}, Dst: StateNoConnection},
			{Name: EventRunning, Src: []string{StateConnectedNotRunning}, Dst: StateRunningNoSession},
			{Name: EventSessionStarted, Src: []string{StateRunningNoSession}, Dst: StateRunningSessionActive},
			{Name: EventStopped, Src: []string{StateRunningNoSession, StateRunningSessionActive}, Dst: StateConnectedNotRunning},
			{Name: EventDisconnected, Src: append([]string{StateConnecting}, connectedStates...), Dst: StateNoConnection},
		},
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				onEnter(e)
			},
		},
	)
}

func isRunning(state string) bool {
	return state == StateRunningNoSession || state == StateRunningSessionActive
}
