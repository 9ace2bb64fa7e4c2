// Package poller runs the per-job poll loops of a session.
package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/plcsnmp/plcsnmp/internal/channels"
	"github.com/plcsnmp/plcsnmp/internal/controller"
	"github.com/plcsnmp/plcsnmp/internal/job"
	"github.com/plcsnmp/plcsnmp/internal/metrics"
	"github.com/plcsnmp/plcsnmp/internal/snmp"
)

const (
	// DefaultFetchTimeout bounds a single remote fetch
	DefaultFetchTimeout = 3000 * time.Millisecond

	// DefaultCooldown is the pause after a failed tick
	DefaultCooldown = 2000 * time.Millisecond
)

var (
	ErrFetchFailed = errors.New("fetch failed")
	ErrWriteFailed = errors.New("write failed")
)

// Fetcher retrieves one remote value. *snmp.Client satisfies it.
type Fetcher interface {
	Get(ctx context.Context, req snmp.Request) (interface{}, error)
}

// Loop polls one job descriptor until its context is cancelled
type Loop struct {
	desc         job.Descriptor
	fetcher      Fetcher
	writer       controller.Writer
	events       *channels.EventChannels
	sessionID    uuid.UUID
	fetchTimeout time.Duration
	cooldown     time.Duration
	logger       *slog.Logger

	// pending holds the result channel of a fetch that outlived its
	// timeout; no new fetch starts until it delivers
	pending chan fetchResult
}

type fetchResult struct {
	value interface{}
	err   error
}

// NewLoop creates a loop for desc. writer receives every value fetched.
func NewLoop(desc job.Descriptor, fetcher Fetcher, writer controller.Writer, cfg Config, logger *slog.Logger) *Loop {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		desc:         desc,
		fetcher:      fetcher,
		writer:       writer,
		events:       cfg.Events,
		fetchTimeout: cfg.FetchTimeout,
		cooldown:     cfg.Cooldown,
		logger:       logger.With("job", desc.ID()),
	}
}

// Run blocks until ctx is cancelled. Failed ticks are logged and followed by
// the cool-down; they never end the loop. Cancellation returns nil.
func (l *Loop) Run(ctx context.Context) error {
	ticker := time.NewTicker(l.desc.Interval)
	defer ticker.Stop()

	l.logger.Debug("poll loop started", "interval", l.desc.Interval, "address", l.desc.Address, "oid", l.desc.OID)

	for {
		select {
		case <-ctx.Done():
			l.logger.Debug("poll loop stopped")
			return nil
		case <-ticker.C:
		}

		if err := l.tick(ctx); err != nil {
			if ctx.Err() != nil {
				l.logger.Debug("poll loop stopped")
				return nil
			}

			l.logger.Error("poll tick failed", "error", err)

			if !sleep(ctx, l.cooldown) {
				l.logger.Debug("poll loop stopped during cooldown")
				return nil
			}
			ticker.Reset(l.desc.Interval)
		}
	}
}

// tick performs at most one fetch and at most one write
func (l *Loop) tick(ctx context.Context) error {
	start := time.Now()

	value, err := l.fetch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		l.report(start, "", channels.TickFetchFailed, err)
		return err
	}

	text := snmp.Format(value)
	if err := l.writer.Write(ctx, l.desc.Target, text); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = fmt.Errorf("%w: %s: %w", ErrWriteFailed, l.desc.Target, err)
		l.report(start, text, channels.TickWriteFailed, err)
		return err
	}

	l.report(start, text, channels.TickOK, nil)
	return nil
}

// fetch runs the fetcher in its own goroutine so that a fetcher which
// ignores ctx cannot hold the loop past its timeout or cancellation. At most
// one fetcher call per loop is in flight at any time.
func (l *Loop) fetch(ctx context.Context) (interface{}, error) {
	if l.pending != nil {
		select {
		case <-l.pending:
			l.pending = nil
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
			return nil, fmt.Errorf("%w: %s %s: previous fetch still outstanding", ErrFetchFailed, l.desc.Address, l.desc.OID)
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, l.fetchTimeout)
	defer cancel()

	done := make(chan fetchResult, 1)

	req := snmp.Request{
		Host:      l.desc.Host(),
		Port:      l.desc.Port(),
		Community: l.desc.Community,
		OID:       l.desc.OID,
	}
	go func() {
		v, err := l.fetcher.Get(fetchCtx, req)
		done <- fetchResult{value: v, err: err}
	}()

	select {
	case r := <-done:
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if r.err != nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrFetchFailed, l.desc.Address, l.desc.OID, r.err)
		}
		if r.value == nil {
			return nil, fmt.Errorf("%w: %s %s: %w", ErrFetchFailed, l.desc.Address, l.desc.OID, snmp.ErrEmptyResult)
		}
		return r.value, nil
	case <-fetchCtx.Done():
		l.pending = done
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s %s: timed out after %s", ErrFetchFailed, l.desc.Address, l.desc.OID, l.fetchTimeout)
	}
}

func (l *Loop) report(start time.Time, value string, result channels.TickResult, err error) {
	duration := time.Since(start)

	metrics.PollTicksTotal.WithLabelValues(string(result)).Inc()
	metrics.PollDuration.Observe(duration.Seconds())

	ev := channels.TickEvent{
		SessionID: l.sessionID,
		Job:       l.desc.ID(),
		Address:   l.desc.Address,
		OID:       l.desc.OID,
		Value:     value,
		Result:    result,
		Duration:  duration,
		Timestamp: time.Now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	if !l.events.PublishTick(ev) && l.events != nil {
		metrics.EventsDropped.Inc()
	}

	if err == nil {
		l.logger.Debug("poll tick", "value", value, "duration_ms", duration.Milliseconds())
	}
}

// sleep waits for d and reports false if ctx ended first
func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
