package poller

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/plcsnmp/plcsnmp/internal/controller"
	"github.com/plcsnmp/plcsnmp/internal/job"
	"github.com/plcsnmp/plcsnmp/internal/metrics"
)

// Session is the set of poll loops running for one connect-and-run period
// of the controller. All loops share one write dispatcher.
type Session struct {
	id        uuid.UUID
	startedAt time.Time
	jobs      []job.Descriptor

	cancel     context.CancelFunc
	dispatcher *writeDispatcher
	wg         sync.WaitGroup
	closeOnce  sync.Once
	logger     *slog.Logger
}

// NewSession starts one loop per descriptor on a context derived from parent.
// Writes go to writer through the session's dispatcher.
func NewSession(
	parent context.Context,
	descriptors []job.Descriptor,
	fetcher Fetcher,
	writer controller.Writer,
	cfg Config,
	logger *slog.Logger,
) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	ctx, cancel := context.WithCancel(parent)
	id := uuid.New()
	logger = logger.With("component", "session", "session_id", id)

	s := &Session{
		id:         id,
		startedAt:  time.Now(),
		jobs:       append([]job.Descriptor(nil), descriptors...),
		cancel:     cancel,
		dispatcher: newWriteDispatcher(writer, logger),
		logger:     logger,
	}

	s.dispatcher.start(ctx)

	for _, desc := range s.jobs {
		loop := NewLoop(desc, fetcher, s.dispatcher, cfg, logger)
		loop.sessionID = id

		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			loop.Run(ctx)
		}()
	}

	metrics.SessionsStarted.Inc()
	metrics.ActiveJobs.Add(float64(len(s.jobs)))

	logger.Info("session started", "jobs", len(s.jobs))
	return s
}

// Close cancels every loop and waits for all of them and the write
// dispatcher to exit. It is a no-op on a nil or already closed Session.
func (s *Session) Close() {
	if s == nil {
		return
	}
	s.closeOnce.Do(func() {
		s.cancel()
		s.wg.Wait()
		s.dispatcher.wait()

		metrics.ActiveJobs.Sub(float64(len(s.jobs)))
		s.logger.Info("session stopped", "jobs", len(s.jobs), "uptime", time.Since(s.startedAt).Round(time.Millisecond))
	})
}

func (s *Session) ID() uuid.UUID {
	if s == nil {
		return uuid.Nil
	}
	return s.id
}

func (s *Session) StartedAt() time.Time {
	if s == nil {
		return time.Time{}
	}
	return s.startedAt
}

// Jobs returns a copy of the session's descriptors
func (s *Session) Jobs() []job.Descriptor {
	if s == nil {
		return nil
	}
	return append([]job.Descriptor(nil), s.jobs...)
}
