package supervisor

import (
	"time"

	"github.com/google/uuid"
)

// Snapshot is a point-in-time copy of the supervisor's observed state
type Snapshot struct {
	State     string           `json:"state"`
	Since     time.Time        `json:"since"`
	Connected bool             `json:"connected"`
	RunState  string           `json:"run_state"`
	LastError string           `json:"last_error,omitempty"`
	Session   *SessionSnapshot `json:"session,omitempty"`
}

// SessionSnapshot describes the active session
type SessionSnapshot struct {
	ID        uuid.UUID     `json:"id"`
	StartedAt time.Time     `json:"started_at"`
	Jobs      []JobSnapshot `json:"jobs"`
}

type JobSnapshot struct {
	Target     string `json:"target"`
	OID        string `json:"oid"`
	Address    string `json:"address"`
	IntervalMS int64  `json:"interval_ms"`
}

// Snapshot returns the current state. Safe for concurrent use with Run.
func (s *Supervisor) Snapshot() Snapshot {
	state := s.machine.Current()

	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		State:     state,
		Since:     s.stateSince,
		Connected: s.connected,
		RunState:  s.runState.String(),
		LastError: s.lastErr,
	}

	if s.session != nil {
		jobs := s.session.Jobs()
		info := &SessionSnapshot{
			ID:        s.session.ID(),
			StartedAt: s.session.StartedAt(),
			Jobs:      make([]JobSnapshot, 0, len(jobs)),
		}
		for _, d := range jobs {
			info.Jobs = append(info.Jobs, JobSnapshot{
				Target:     d.Target,
				OID:        d.OID,
				Address:    d.Address,
				IntervalMS: d.Interval.Milliseconds(),
			})
		}
		snap.Session = info
	}

	return snap
}

// Ready reports whether the bridge is in a settled state: connected and
// either polling or waiting for the controller to enter RUN
func (snap Snapshot) Ready() bool {
	switch snap.State {
	case StateRunningSessionActive, StateConnectedNotRunning, StateRunningNoSession:
		return true
	}
	return false
}
