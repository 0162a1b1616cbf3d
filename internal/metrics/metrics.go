// Package metrics exposes Prometheus counters for webhook traffic, job runs
// and outbound fetches. A nil *Metrics is valid and records nothing.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Webhook request outcomes.
const (
	OutcomeAccepted    = "accepted"
	OutcomeIgnored     = "ignored"
	OutcomeBadSig      = "bad_signature"
	OutcomeMalformed   = "malformed"
	OutcomeDropped     = "dropped"
	OutcomeRateLimited = "rate_limited"
)

// Metrics holds the registered collectors.
type Metrics struct {
	registry *prometheus.Registry

	webhookRequests *prometheus.CounterVec
	triggers        *prometheus.CounterVec
	jobRuns         *prometheus.CounterVec
	jobDuration     prometheus.Histogram
	fetchAttempts   *prometheus.CounterVec
}

// New creates a Metrics instance backed by its own registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fullsync",
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by outcome.",
		}, []string{"outcome"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fullsync",
			Name:      "triggers_total",
			Help:      "Update triggers by source and whether they started a run or were coalesced.",
		}, []string{"source", "result"}),
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fullsync",
			Name:      "job_runs_total",
			Help:      "Executions of the update job by result.",
		}, []string{"result"}),
		jobDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "fullsync",
			Name:      "job_duration_seconds",
			Help:      "Duration of update job executions.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 14),
		}),
		fetchAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "fullsync",
			Name:      "fetch_attempts_total",
			Help:      "Outbound HTTP attempts by result.",
		}, []string{"result"}),
	}

	m.registry.MustRegister(
		m.webhookRequests,
		m.triggers,
		m.jobRuns,
		m.jobDuration,
		m.fetchAttempts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return m
}

// WebhookRequest counts a request with the given outcome.
func (m *Metrics) WebhookRequest(outcome string) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(outcome).Inc()
}

// Trigger counts a trigger from source ("webhook", "periodic").
func (m *Metrics) Trigger(source string, started bool) {
	if m == nil {
		return
	}
	result := "coalesced"
	if started {
		result = "started"
	}
	m.triggers.WithLabelValues(source, result).Inc()
}

// JobRun records one execution of the job body.
func (m *Metrics) JobRun(d time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "failure"
	}
	m.jobRuns.WithLabelValues(result).Inc()
	m.jobDuration.Observe(d.Seconds())
}

// FetchAttempt records one outbound attempt ("success", "retry", "failure").
func (m *Metrics) FetchAttempt(result string) {
	if m == nil {
		return
	}
	m.fetchAttempts.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve runs a dedicated metrics listener on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("metrics server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("metrics server shutdown failed: %w", err)
		}
		return nil
	case err, ok := <-errCh:
		if !ok {
			return nil
		}
		return fmt.Errorf("metrics server error: %w", err)
	}
}
