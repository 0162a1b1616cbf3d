package server

import (
	"log/slog"
	"net"
	"net/http"
	"sync"

	"fullsync/internal/metrics"

	"golang.org/x/time/rate"
)

// RateLimiter implements a simple token bucket rate limiter per IP address
type RateLimiter struct {
	limiters  map[string]*rate.Limiter
	mu        sync.Mutex
	rateLimit rate.Limit // Requests per second
	burstSize int        // Maximum burst size
}

// NewRateLimiter creates a limiter allowing perMinute requests per minute
// per IP, with bursts of up to perMinute.
func NewRateLimiter(perMinute int) *RateLimiter {
	return &RateLimiter{
		limiters:  make(map[string]*rate.Limiter),
		rateLimit: rate.Limit(float64(perMinute) / 60.0),
		burstSize: perMinute,
	}
}

// GetLimiter returns the rate limiter for a given IP address
// Creates a new limiter for the IP if one doesn't exist
func (rl *RateLimiter) GetLimiter(ip string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	limiter, exists := rl.limiters[ip]
	if !exists {
		limiter = rate.NewLimiter(rl.rateLimit, rl.burstSize)
		rl.limiters[ip] = limiter
	}

	return limiter
}

// Allow reports whether a request from addr may proceed. addr may carry a
// port, which is ignored.
func (rl *RateLimiter) Allow(addr string) bool {
	return rl.GetLimiter(clientIP(addr)).Allow()
}

func clientIP(addr string) string {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

// NewRateLimitMiddleware drops requests from clients over their limit.
// Webhook senders get no response, the same as for any other rejected
// request.
func NewRateLimitMiddleware(limiter *RateLimiter, logger *slog.Logger, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow(r.RemoteAddr) {
				logger.Warn("Rate limit exceeded", "ip", clientIP(r.RemoteAddr), "path", r.URL.Path)
				m.WebhookRequest(metrics.OutcomeRateLimited)
				drop(w)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// acceptingOnly drops every request once the server is shutting down.
func (s *Server) acceptingOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.State() != StateAccepting {
			s.Logger.Warn("Dropping request, server is shutting down", "path", r.URL.Path)
			s.metrics.WebhookRequest(metrics.OutcomeDropped)
			drop(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) dropRequest(w http.ResponseWriter, r *http.Request) {
	s.Logger.Warn("Dropping request", "method", r.Method, "path", r.URL.Path)
	s.metrics.WebhookRequest(metrics.OutcomeDropped)
	drop(w)
}

// drop closes the client connection without writing a response. Writers
// that cannot be hijacked are left untouched, so nothing is sent.
func drop(w http.ResponseWriter) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		return
	}
	conn, _, err := hj.Hijack()
	if err != nil {
		return
	}
	conn.Close()
}
