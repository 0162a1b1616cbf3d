package coalesce

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"fullsync/internal/metrics"
)

// RunFunc is the job being coalesced. It must be safe to call back-to-back.
type RunFunc func(ctx context.Context, log *slog.Logger, ts time.Time) error

// Coalescer runs at most one RunFunc at a time and folds triggers that
// arrive mid-run into a single follow-up run.
//
// running and pending are only touched under mu. pending is never true
// unless running is true; both are cleared together when the run loop exits.
type Coalescer struct {
	run     RunFunc
	metrics *metrics.Metrics

	mu      sync.Mutex
	running bool
	pending bool
}

// Option configures a Coalescer.
type Option func(*Coalescer)

// WithMetrics records job runs in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coalescer) { c.metrics = m }
}

// New wraps run.
func New(run RunFunc, opts ...Option) *Coalescer {
	c := &Coalescer{run: run}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Trigger starts a run loop if none is in flight and returns a channel that
// receives the loop's result once and is then closed.
//
// If a loop is already running the trigger is recorded, guaranteeing at
// least one more run after the current one, and Trigger returns (nil, false).
// That is not an error and there is nothing to wait for.
//
// Follow-up runs reuse the log and timestamp of the trigger that started the
// loop.
func (c *Coalescer) Trigger(ctx context.Context, log *slog.Logger, ts time.Time) (<-chan error, bool) {
	c.mu.Lock()
	if c.running {
		c.pending = true
		c.mu.Unlock()
		log.Info("Not starting update, because already performing one.")
		return nil, false
	}
	c.running = true
	c.pending = false
	c.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		defer close(done)
		done <- c.loop(ctx, log, ts)
	}()
	return done, true
}

// Running reports whether a run loop is in flight.
func (c *Coalescer) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coalescer) loop(ctx context.Context, log *slog.Logger, ts time.Time) error {
	log.Info("Starting update")
	for {
		start := time.Now()
		err := c.run(ctx, log, ts)
		c.metrics.JobRun(time.Since(start), err)

		c.mu.Lock()
		if err != nil || !c.pending {
			c.running = false
			c.pending = false
			c.mu.Unlock()
			return err
		}
		c.pending = false
		c.mu.Unlock()

		log.Info("Updates arrived while working, running again")
	}
}
