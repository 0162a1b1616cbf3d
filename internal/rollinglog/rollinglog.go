package rollinglog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// DefaultCapacity is the number of batches kept per log.
const DefaultCapacity = 1000

// Log is a bounded append-only log stored in SQLite. Each Write adds one
// entry; once more than capacity entries exist under the log's name the
// oldest are evicted.
type Log struct {
	db       *sql.DB
	name     string
	capacity int
	mu       sync.Mutex
}

// Open opens (or creates) the database at dbPath and returns the log
// identified by name.
func Open(dbPath, name string, capacity int) (*Log, error) {
	if name == "" {
		return nil, fmt.Errorf("log name cannot be empty")
	}
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be positive, got %d", capacity)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool for SQLite (single writer)
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	l := &Log{db: db, name: name, capacity: capacity}

	if err := l.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return l, nil
}

// Close closes the database connection
func (l *Log) Close() error {
	return l.db.Close()
}

// Name returns the log's key.
func (l *Log) Name() string {
	return l.name
}

func (l *Log) initSchema() error {
	_, err := l.db.Exec(`
		CREATE TABLE IF NOT EXISTS log_entries (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			written_at TEXT NOT NULL,
			body TEXT NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	_, err = l.db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_log_entries_name_id
		ON log_entries(name, id DESC)
	`)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}

	return nil
}

// Write appends text as one entry and evicts anything beyond capacity.
func (l *Log) Write(ctx context.Context, text string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO log_entries (name, written_at, body) VALUES (?, ?, ?)`,
		l.name, now, text,
	); err != nil {
		return fmt.Errorf("failed to insert log entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM log_entries
		WHERE name = ? AND id NOT IN (
			SELECT id FROM log_entries WHERE name = ? ORDER BY id DESC LIMIT ?
		)
	`, l.name, l.name, l.capacity); err != nil {
		return fmt.Errorf("failed to evict old log entries: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit log entry: %w", err)
	}
	return nil
}

// Entries returns up to limit entries, newest first. A limit <= 0 returns
// all retained entries.
func (l *Log) Entries(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = l.capacity
	}

	rows, err := l.db.QueryContext(ctx, `
		SELECT id, written_at, body
		FROM log_entries
		WHERE name = ?
		ORDER BY id DESC
		LIMIT ?
	`, l.name, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query log entries: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var writtenAt string
		if err := rows.Scan(&e.ID, &writtenAt, &e.Body); err != nil {
			return nil, fmt.Errorf("failed to scan log entry: %w", err)
		}
		e.WrittenAt, err = time.Parse(time.RFC3339Nano, writtenAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse written_at timestamp: %w", err)
		}
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return entries, nil
}

// Render joins the retained entries, oldest first, into a single document.
func (l *Log) Render(ctx context.Context) (string, error) {
	entries, err := l.Entries(ctx, 0)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	for i := len(entries) - 1; i >= 0; i-- {
		sb.WriteString(entries[i].Body)
		sb.WriteString("\n\n")
	}
	return sb.String(), nil
}
