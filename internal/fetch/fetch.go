// Package fetch implements an HTTP client for calling external APIs with a
// bounded retry on transient network errors.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"syscall"
	"time"

	"fullsync/internal/metrics"

	"golang.org/x/oauth2"
)

const (
	// DefaultRetries is the ceiling used when a caller asks for retries
	// without naming a count.
	DefaultRetries = 10

	// DefaultRetryDelay is the pause between attempts.
	DefaultRetryDelay = 1 * time.Second

	// RequestTimeout bounds a single attempt.
	RequestTimeout = 60 * time.Second
)

// UseDefaultRetries can be set as Request.Retries to get DefaultRetries.
const UseDefaultRetries = -1

var transientPattern = regexp.MustCompile(`EAI_AGAIN|ETIMEDOUT|ECONNRESET`)

// Request describes one outbound call.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   string

	// Retries is the number of attempts: 0 means a single attempt,
	// UseDefaultRetries means DefaultRetries, n > 0 means n attempts.
	Retries int
}

func (r Request) attempts() int {
	n := r.Retries
	if n == UseDefaultRetries {
		n = DefaultRetries
	}
	if n < 1 {
		n = 1
	}
	return n
}

// Fetcher performs requests over a keep-alive connection pool shared by all
// calls made through it.
type Fetcher struct {
	client      *http.Client
	retryDelay  time.Duration
	metrics     *metrics.Metrics
	transport   http.RoundTripper
	tokenSource oauth2.TokenSource
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithRetryDelay overrides DefaultRetryDelay.
func WithRetryDelay(d time.Duration) Option {
	return func(f *Fetcher) { f.retryDelay = d }
}

// WithTransport replaces the pooled transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(f *Fetcher) { f.transport = rt }
}

// WithTokenSource authenticates every request with an OAuth2 bearer token.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(f *Fetcher) { f.tokenSource = ts }
}

// WithMetrics records attempts in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(f *Fetcher) { f.metrics = m }
}

// New creates a Fetcher.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{retryDelay: DefaultRetryDelay}
	for _, opt := range opts {
		opt(f)
	}

	if f.transport == nil {
		f.transport = &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
			ForceAttemptHTTP2:   true,
		}
	}

	rt := f.transport
	if f.tokenSource != nil {
		rt = &oauth2.Transport{Source: f.tokenSource, Base: rt}
	}

	f.client = &http.Client{Transport: rt, Timeout: RequestTimeout}
	return f
}

// Client returns the http.Client backed by the fetcher's connection pool.
func (f *Fetcher) Client() *http.Client {
	return f.client
}

// Fetch performs req and returns the response body as text. Transient
// errors are retried up to req's attempt count; any other error is returned
// immediately. The last attempt's outcome is returned as-is.
func (f *Fetcher) Fetch(ctx context.Context, req Request) (string, error) {
	for remaining := req.attempts(); remaining > 1; remaining-- {
		text, err := f.do(ctx, req)
		if err == nil {
			f.metrics.FetchAttempt("success")
			return text, nil
		}
		if !IsTransient(err) {
			f.metrics.FetchAttempt("failure")
			return "", err
		}
		f.metrics.FetchAttempt("retry")

		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(f.retryDelay):
		}
	}

	text, err := f.do(ctx, req)
	if err != nil {
		f.metrics.FetchAttempt("failure")
		return "", err
	}
	f.metrics.FetchAttempt("success")
	return text, nil
}

// FetchJSON performs req and decodes the response into v.
func (f *Fetcher) FetchJSON(ctx context.Context, req Request, v any) error {
	text, err := f.Fetch(ctx, req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(text), v); err != nil {
		return fmt.Errorf("bad response from server:\nrequest: %s %s\n\n%s: %w", req.method(), req.URL, text, err)
	}
	return nil
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

func (f *Fetcher) do(ctx context.Context, req Request) (string, error) {
	var body io.Reader
	if req.Body != "" {
		body = strings.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.method(), req.URL, body)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := f.client.Do(httpReq)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	return string(data), nil
}

// IsTransient reports whether err is a network failure worth retrying
// unchanged: DNS lookups that failed temporarily, timeouts and connection
// resets.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) && (dnsErr.IsTemporary || dnsErr.IsTimeout) {
		return true
	}
	return transientPattern.MatchString(err.Error())
}
