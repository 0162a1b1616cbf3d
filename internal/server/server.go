package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"fullsync/internal/joblog"
	"fullsync/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	// HTTP server timeouts
	HTTPReadTimeout  = 30 * time.Second
	HTTPWriteTimeout = 10 * time.Second
	HTTPIdleTimeout  = 60 * time.Second

	// ShutdownTimeout bounds graceful shutdown of the listener.
	ShutdownTimeout = 5 * time.Second
)

// ErrJobFailed is returned by Serve after a triggered job failed.
var ErrJobFailed = errors.New("update job failed")

// State is the listener's lifecycle state.
type State int

const (
	StateAccepting State = iota
	StateShuttingDown
)

func (s State) String() string {
	if s == StateShuttingDown {
		return "shutting_down"
	}
	return "accepting"
}

// Config holds the listener settings.
type Config struct {
	Host         string
	Port         int
	Secret       string
	// SourceRef is the full push ref that triggers the job, such as
	// refs/heads/master.
	SourceRef string

	// RateLimit is requests per minute per client IP; 0 disables limiting.
	RateLimit int
}

// Triggerer starts or coalesces an update run. *coalesce.Coalescer
// implements it.
type Triggerer interface {
	Trigger(ctx context.Context, log *slog.Logger, ts time.Time) (<-chan error, bool)
}

// LogSink receives one batch of log lines per request.
type LogSink = joblog.Sink

// Server represents the HTTP server
type Server struct {
	Config  Config
	Logger  *slog.Logger
	trigger Triggerer
	sink    LogSink
	metrics *metrics.Metrics
	limiter *RateLimiter

	mu      sync.Mutex
	state   State
	failErr error
	failed  chan struct{}   // closed on the transition to StateShuttingDown
	jobCtx  context.Context // context handed to triggered jobs

	jobWg sync.WaitGroup // Tracks goroutines waiting on triggered jobs
}

// New creates a server instance. sink and m may be nil.
func New(cfg Config, trigger Triggerer, sink LogSink, logger *slog.Logger, m *metrics.Metrics) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		Config:  cfg,
		Logger:  logger,
		trigger: trigger,
		sink:    sink,
		metrics: m,
		failed:  make(chan struct{}),
		jobCtx:  context.Background(),
	}
	if cfg.RateLimit > 0 {
		s.limiter = NewRateLimiter(cfg.RateLimit)
	}
	return s
}

// Router creates and configures the HTTP router
func (s *Server) Router() *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Logging middleware
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			defer func() {
				s.Logger.Info("http_request",
					"method", r.Method,
					"path", r.URL.Path,
					"status", ww.Status(),
					"duration_ms", time.Since(start).Milliseconds())
			}()

			next.ServeHTTP(ww, r)
		})
	})

	r.Use(s.acceptingOnly)
	if s.limiter != nil {
		r.Use(NewRateLimitMiddleware(s.limiter, s.Logger, s.metrics))
	}

	// Anything but POST / is dropped
	r.NotFound(s.dropRequest)
	r.MethodNotAllowed(s.dropRequest)

	r.Post("/", s.HandleWebhook)

	return r
}

// Start listens on the configured host and port and serves until ctx is
// done or a job fails.
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.Config.Host, strconv.Itoa(s.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln. It returns ctx.Err() after ctx is done,
// an error wrapping ErrJobFailed after a triggered job failed, or the error
// that stopped the listener. Triggered jobs are not cancelled with ctx.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.jobCtx = context.WithoutCancel(ctx)
	s.mu.Unlock()

	s.Logger.Info("Starting server", "addr", ln.Addr().String(), "ref", s.Config.SourceRef)

	server := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  HTTPReadTimeout,
		WriteTimeout: HTTPWriteTimeout,
		IdleTimeout:  HTTPIdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		s.Logger.Info("Shutting down server")
		s.shutdown(server)
		return ctx.Err()
	case <-s.failed:
		err := s.Err()
		s.Logger.Error("Update failed, shutting down server", "error", err)
		s.shutdown(server)
		return fmt.Errorf("%w: %w", ErrJobFailed, err)
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}
}

func (s *Server) shutdown(server *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		s.Logger.Error("Server shutdown error", "error", err)
	}
}

// Fail moves the server to StateShuttingDown. Only the first call has an
// effect; later errors are ignored.
func (s *Server) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == StateShuttingDown {
		return
	}
	s.state = StateShuttingDown
	s.failErr = err
	close(s.failed)
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the job error that stopped the server, if any.
func (s *Server) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.failErr
}

// Wait blocks until every triggered job being watched has finished and its
// log has been flushed.
func (s *Server) Wait() {
	s.jobWg.Wait()
}

func (s *Server) jobContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobCtx
}

func (s *Server) flush(buf *joblog.Buffer) {
	if err := buf.Flush(s.jobContext(), s.sink); err != nil {
		s.Logger.Error("Failed to write rolling log", "error", err)
	}
}
