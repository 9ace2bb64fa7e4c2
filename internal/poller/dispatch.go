package poller

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/plcsnmp/plcsnmp/internal/controller"
)

// writeRequest is one value waiting to be written into the controller
type writeRequest struct {
	ctx   context.Context
	name  string
	value string
	reply chan error
}

// writeDispatcher owns every controller write of a session. Loops submit
// requests and wait for the reply, so the controller sees one write at a time.
type writeDispatcher struct {
	target   controller.Writer
	submitCh chan writeRequest
	logger   *slog.Logger
	wg       sync.WaitGroup
}

func newWriteDispatcher(target controller.Writer, logger *slog.Logger) *writeDispatcher {
	return &writeDispatcher{
		target:   target,
		submitCh: make(chan writeRequest),
		logger:   logger,
	}
}

// start launches the dispatch goroutine; it exits when ctx is cancelled
func (d *writeDispatcher) start(ctx context.Context) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		d.run(ctx)
	}()
}

func (d *writeDispatcher) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			d.logger.Debug("write dispatcher stopped")
			return
		case req := <-d.submitCh:
			if req.ctx.Err() != nil {
				req.reply <- req.ctx.Err()
				continue
			}
			req.reply <- d.target.Write(req.ctx, req.name, req.value)
		}
	}
}

// Write submits a write and waits for its result. It satisfies
// controller.Writer so loops do not know about the dispatcher.
func (d *writeDispatcher) Write(ctx context.Context, name, value string) error {
	req := writeRequest{
		ctx:   ctx,
		name:  name,
		value: value,
		reply: make(chan error, 1),
	}

	select {
	case d.submitCh <- req:
	case <-ctx.Done():
		return fmt.Errorf("write cancelled: %w", ctx.Err())
	}

	select {
	case err := <-req.reply:
		return err
	case <-ctx.Done():
		return fmt.Errorf("write cancelled: %w", ctx.Err())
	}
}

// wait blocks until the dispatch goroutine has exited
func (d *writeDispatcher) wait() {
	d.wg.Wait()
}
