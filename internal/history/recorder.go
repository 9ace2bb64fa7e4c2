package history

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/plcsnmp/plcsnmp/internal/channels"
)

const (
	defaultBatchSize     = 500
	defaultFlushInterval = 5 * time.Second
	maxConsecutiveFails  = 5
	finalFlushTimeout    = 5 * time.Second
)

var (
	sampleColumns     = []string{"ts", "session_id", "job", "address", "oid", "value", "result", "error", "duration_ms"}
	transitionColumns = []string{"ts", "from_state", "to_state", "event", "reason", "session_id"}
)

// CopyFromer is the subset of *pgxpool.Pool the recorder writes through
type CopyFromer interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

// Recorder buffers tick and transition events and writes them in batches
// using the COPY protocol
type Recorder struct {
	db            CopyFromer
	batchSize     int
	flushInterval time.Duration
	logger        *slog.Logger

	mu          sync.Mutex
	samples     []channels.TickEvent
	transitions []channels.TransitionEvent
	failures    int

	flushCh chan struct{}
}

// NewRecorder creates a Recorder writing to db
func NewRecorder(db CopyFromer, batchSize int, flushInterval time.Duration, logger *slog.Logger) *Recorder {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Recorder{
		db:            db,
		batchSize:     batchSize,
		flushInterval: flushInterval,
		logger:        logger.With("component", "history"),
		samples:       make([]channels.TickEvent, 0, batchSize),
		flushCh:       make(chan struct{}, 1),
	}
}

// RecordTick buffers one tick outcome
func (r *Recorder) RecordTick(ev channels.TickEvent) {
	r.mu.Lock()
	r.samples = append(r.samples, ev)
	full := len(r.samples) >= r.batchSize
	r.mu.Unlock()

	if full {
		r.requestFlush()
	}
}

// RecordTransition buffers one supervisor transition
func (r *Recorder) RecordTransition(ev channels.TransitionEvent) {
	r.mu.Lock()
	r.transitions = append(r.transitions, ev)
	r.mu.Unlock()
}

func (r *Recorder) requestFlush() {
	select {
	case r.flushCh <- struct{}{}:
	default:
	}
}

// Run flushes on every interval and whenever a batch fills up. When ctx is
// cancelled it performs a final flush and returns.
func (r *Recorder) Run(ctx context.Context) error {
	r.logger.Info("history recorder starting",
		"batch_size", r.batchSize,
		"flush_interval", r.flushInterval,
	)

	ticker := time.NewTicker(r.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), finalFlushTimeout)
			if err := r.Flush(flushCtx); err != nil {
				r.logger.Error("final flush failed", "error", err)
			}
			cancel()
			return nil
		case <-r.flushCh:
			if err := r.Flush(ctx); err != nil {
				r.logger.Error("flush on batch size failed", "error", err)
			}
		case <-ticker.C:
			if err := r.Flush(ctx); err != nil {
				r.logger.Error("periodic flush failed", "error", err)
			}
		}
	}
}

// Flush writes everything buffered. On failure the rows are kept for the
// next flush until maxConsecutiveFails is reached, then dropped.
func (r *Recorder) Flush(ctx context.Context) error {
	r.mu.Lock()
	samples := r.samples
	transitions := r.transitions
	r.samples = make([]channels.TickEvent, 0, r.batchSize)
	r.transitions = nil
	r.mu.Unlock()

	if len(samples) == 0 && len(transitions) == 0 {
		return nil
	}

	start := time.Now()
	nSamples, nTransitions := len(samples), len(transitions)
	err := r.writeSamples(ctx, samples)
	if err == nil {
		samples = nil
		err = r.writeTransitions(ctx, transitions)
		if err == nil {
			transitions = nil
		}
	}
	if err != nil {
		r.mu.Lock()
		r.failures++
		failures := r.failures
		if failures < maxConsecutiveFails {
			r.samples = append(samples, r.samples...)
			r.transitions = append(transitions, r.transitions...)
		}
		r.mu.Unlock()

		if failures >= maxConsecutiveFails {
			r.logger.Error("max consecutive failures reached, dropping batch",
				"consecutive_failures", failures,
				"dropped_samples", len(samples),
				"dropped_transitions", len(transitions),
			)
		}
		return err
	}

	r.mu.Lock()
	r.failures = 0
	r.mu.Unlock()

	r.logger.Debug("history batch written",
		"samples", nSamples,
		"transitions", nTransitions,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (r *Recorder) writeSamples(ctx context.Context, samples []channels.TickEvent) error {
	if len(samples) > 0 {
		n, err := r.db.CopyFrom(ctx, pgx.Identifier{"poll_samples"}, sampleColumns,
			pgx.CopyFromSlice(len(samples), func(i int) ([]interface{}, error) {
				s := samples[i]
				return []interface{}{
					s.Timestamp,
					nullableUUID(s.SessionID),
					s.Job,
					s.Address,
					s.OID,
					nullableString(s.Value),
					string(s.Result),
					nullableString(s.Error),
					int32(s.Duration.Milliseconds()),
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("COPY poll_samples failed: %w", err)
		}
		if n != int64(len(samples)) {
			return fmt.Errorf("COPY poll_samples count mismatch: expected %d, got %d", len(samples), n)
		}
	}
	return nil
}

func (r *Recorder) writeTransitions(ctx context.Context, transitions []channels.TransitionEvent) error {
	if len(transitions) > 0 {
		n, err := r.db.CopyFrom(ctx, pgx.Identifier{"supervisor_transitions"}, transitionColumns,
			pgx.CopyFromSlice(len(transitions), func(i int) ([]interface{}, error) {
				t := transitions[i]
				return []interface{}{
					t.Timestamp,
					t.From,
					t.To,
					t.Event,
					nullableString(t.Reason),
					nullableUUID(t.SessionID),
				}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("COPY supervisor_transitions failed: %w", err)
		}
		if n != int64(len(transitions)) {
			return fmt.Errorf("COPY supervisor_transitions count mismatch: expected %d, got %d", len(transitions), n)
		}
	}

	return nil
}

func nullableUUID(id uuid.UUID) interface{} {
	if id == uuid.Nil {
		return nil
	}
	return id
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
