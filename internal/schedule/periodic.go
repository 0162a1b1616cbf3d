// Package schedule triggers the update job on a fixed interval, alongside
// the webhook listener.
package schedule

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fullsync/internal/joblog"
	"fullsync/internal/metrics"
)

// DefaultInterval is the time between periodic triggers.
const DefaultInterval = 300 * time.Second

// Triggerer starts or coalesces a job run. *coalesce.Coalescer implements it.
type Triggerer interface {
	Trigger(ctx context.Context, log *slog.Logger, ts time.Time) (<-chan error, bool)
}

// Periodic triggers Coalescer every Interval. Each tick gets its own log
// buffer, flushed to Sink once that tick's outcome is known.
type Periodic struct {
	Interval  time.Duration
	Coalescer Triggerer
	Sink      joblog.Sink
	Logger    *slog.Logger
	Metrics   *metrics.Metrics

	jobWg sync.WaitGroup
}

// Run ticks until ctx is done or a job started by a tick fails. A job error
// is returned; cancellation returns nil. A non-positive Interval disables
// the trigger and Run returns immediately.
func (p *Periodic) Run(ctx context.Context) error {
	if p.Interval <= 0 {
		return nil
	}

	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Periodic trigger enabled", "interval", p.Interval.String())

	ticker := time.NewTicker(p.Interval)
	defer ticker.Stop()

	failed := make(chan error, 1)
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-failed:
			logger.Error("Periodic update failed, stopping", "error", err)
			return err
		case <-ticker.C:
			p.tick(ctx, logger, time.Now(), failed)
		}
	}
}

func (p *Periodic) tick(ctx context.Context, logger *slog.Logger, ts time.Time, failed chan<- error) {
	buf := joblog.New(logger.Handler())
	log := buf.Logger().With("source", "periodic")

	// Jobs outlive Run: shutdown waits for them instead of killing them
	done, started := p.Coalescer.Trigger(context.WithoutCancel(ctx), log, ts)
	p.Metrics.Trigger("periodic", started)
	if !started {
		p.flush(ctx, logger, buf)
		return
	}

	p.jobWg.Add(1)
	go func() {
		defer p.jobWg.Done()
		err := <-done
		p.flush(ctx, logger, buf)
		if err != nil {
			select {
			case failed <- err:
			default:
			}
		}
	}()
}

func (p *Periodic) flush(ctx context.Context, logger *slog.Logger, buf *joblog.Buffer) {
	if err := buf.Flush(context.WithoutCancel(ctx), p.Sink); err != nil {
		logger.Error("Failed to write rolling log", "error", err)
	}
}

// Wait blocks until every job started by a tick has finished and its batch
// has been flushed. Call it after Run returns.
func (p *Periodic) Wait() {
	p.jobWg.Wait()
}
