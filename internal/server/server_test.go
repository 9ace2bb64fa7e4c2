package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/plcsnmp/plcsnmp/internal/config"
	"github.com/plcsnmp/plcsnmp/internal/supervisor"
)

type staticSource struct {
	snap supervisor.Snapshot
}

func (s staticSource) Snapshot() supervisor.Snapshot { return s.snap }

func newTestServer(snap supervisor.Snapshot) *Server {
	return NewServer(config.Default().Status, staticSource{snap: snap}, nil)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(supervisor.Snapshot{State: supervisor.StateNoConnection})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("missing X-Request-ID header")
	}
}

func TestReady(t *testing.T) {
	tests := []struct {
		state string
		want  int
	}{
		{supervisor.StateNoConnection, http.StatusServiceUnavailable},
		{supervisor.StateConnecting, http.StatusServiceUnavailable},
		{supervisor.StateConnectedNotRunning, http.StatusOK},
		{supervisor.StateRunningSessionActive, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			srv := newTestServer(supervisor.Snapshot{State: tt.state})

			rec := httptest.NewRecorder()
			srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))

			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	want := supervisor.Snapshot{
		State:     supervisor.StateRunningSessionActive,
		Since:     started,
		Connected: true,
		RunState:  "run",
		Session: &supervisor.SessionSnapshot{
			ID:        uuid.MustParse("5b0c3f5e-4f43-4a4e-9d51-2f8f2c1f0b11"),
			StartedAt: started,
			Jobs: []supervisor.JobSnapshot{
				{Target: "MAIN.uptime", OID: "1.3.6.1.2.1.1.3.0", Address: "10.0.0.1", IntervalMS: 5000},
			},
		},
	}
	srv := newTestServer(want)

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/status/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var got supervisor.Snapshot
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("snapshot mismatch (-want +got):\n%s", diff)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(supervisor.Snapshot{})

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "plcsnmp_") {
		t.Error("metrics output does not contain bridge metrics")
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	cfg := config.Default().Status
	cfg.Port = 0 // any free port
	srv := NewServer(cfg, staticSource{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
