// Package joblog collects the log lines of a single webhook request or
// periodic tick so they can be written to the rolling log as one batch.
package joblog

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
)

// Entry is one buffered log line.
type Entry struct {
	Time    time.Time
	Level   slog.Level
	Message string
}

// String formats the entry as "<RFC3339> LEVEL message key=value".
func (e Entry) String() string {
	return fmt.Sprintf("%s %s %s", e.Time.UTC().Format(time.RFC3339), levelName(e.Level), e.Message)
}

// Buffer is an append-only list of entries. It is safe for concurrent use:
// a request's handler and the job it triggered may log at the same time.
type Buffer struct {
	mu      sync.Mutex
	entries []Entry
	parent  slog.Handler
}

// New creates an empty buffer. Records are also forwarded to parent when it
// is non-nil, so buffered lines still reach the process log.
func New(parent slog.Handler) *Buffer {
	return &Buffer{parent: parent}
}

// Logger returns a logger that appends to the buffer.
func (b *Buffer) Logger() *slog.Logger {
	return slog.New(&handler{buf: b, parent: b.parent})
}

// Entries returns a copy of the buffered entries in insertion order.
func (b *Buffer) Entries() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Entry, len(b.entries))
	copy(out, b.entries)
	return out
}

// Errors returns only the error-level entries.
func (b *Buffer) Errors() []Entry {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Entry
	for _, e := range b.entries {
		if e.Level >= slog.LevelError {
			out = append(out, e)
		}
	}
	return out
}

// Sink receives a flushed buffer as one batch.
type Sink interface {
	Write(ctx context.Context, text string) error
}

// Flush writes the buffer's text to sink. An empty buffer is not written.
func (b *Buffer) Flush(ctx context.Context, sink Sink) error {
	if sink == nil {
		return nil
	}
	text := b.Text()
	if text == "" {
		return nil
	}
	return sink.Write(ctx, text)
}

// Text joins all entries, one per line.
func (b *Buffer) Text() string {
	entries := b.Entries()
	lines := make([]string, len(entries))
	for i, e := range entries {
		lines[i] = e.String()
	}
	return strings.Join(lines, "\n")
}

func (b *Buffer) append(e Entry) {
	b.mu.Lock()
	b.entries = append(b.entries, e)
	b.mu.Unlock()
}

// levelName maps slog levels onto the two severities the rolling log uses.
func levelName(l slog.Level) string {
	if l >= slog.LevelError {
		return "ERROR"
	}
	if l >= slog.LevelWarn {
		return "WARN"
	}
	return "INFO"
}

type handler struct {
	buf    *Buffer
	parent slog.Handler
	attrs  []slog.Attr
	group  string
}

func (h *handler) Enabled(ctx context.Context, level slog.Level) bool {
	return true
}

func (h *handler) Handle(ctx context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value.Any())
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", h.qualify(a.Key), a.Value.Any())
		return true
	})

	t := r.Time
	if t.IsZero() {
		t = time.Now()
	}
	h.buf.append(Entry{Time: t, Level: r.Level, Message: sb.String()})

	if h.parent != nil && h.parent.Enabled(ctx, r.Level) {
		return h.parent.Handle(ctx, r)
	}
	return nil
}

func (h *handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = append([]slog.Attr{}, h.attrs...)
	for _, a := range attrs {
		next.attrs = append(next.attrs, slog.Attr{Key: h.qualify(a.Key), Value: a.Value})
	}
	if h.parent != nil {
		next.parent = h.parent.WithAttrs(attrs)
	}
	return &next
}

func (h *handler) WithGroup(name string) slog.Handler {
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	if h.parent != nil {
		next.parent = h.parent.WithGroup(name)
	}
	return &next
}

func (h *handler) qualify(key string) string {
	if h.group == "" {
		return key
	}
	return h.group + "." + key
}
