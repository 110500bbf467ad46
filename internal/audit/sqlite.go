package audit

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"qwed/internal/types"
)

// SQLiteSink appends audit events to a local SQLite database.
type SQLiteSink struct {
	db *sql.DB
}

// NewSQLiteSink opens or creates the audit database at path.
func NewSQLiteSink(path string) (*SQLiteSink, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	schema := `
	CREATE TABLE IF NOT EXISTS audit_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		query_hash TEXT NOT NULL,
		domain TEXT NOT NULL,
		verified INTEGER NOT NULL,
		error TEXT,
		provider TEXT,
		cache_hit INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_audit_hash ON audit_events(query_hash);
	CREATE INDEX IF NOT EXISTS idx_audit_at ON audit_events(at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create audit table: %w", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Record implements Sink. Write failures are dropped; auditing must never
// break verification.
func (s *SQLiteSink) Record(ev Event) {
	s.db.Exec(
		`INSERT INTO audit_events (request_id, query_hash, domain, verified, error, provider, cache_hit, latency_ms, at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.RequestID, ev.QueryHash, string(ev.Domain), boolInt(ev.Verified),
		ev.Error, ev.Provider, boolInt(ev.CacheHit),
		ev.Latency.Milliseconds(), ev.At.Unix(),
	)
}

// Close implements Sink.
func (s *SQLiteSink) Close() error { return s.db.Close() }

// Recent returns up to limit events, newest first.
func (s *SQLiteSink) Recent(limit int) ([]Event, error) {
	rows, err := s.db.Query(
		`SELECT request_id, query_hash, domain, verified, error, provider, cache_hit, latency_ms, at
		 FROM audit_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to read audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var ev Event
		var domain string
		var verified, cacheHit int
		var latencyMS, at int64
		if err := rows.Scan(&ev.RequestID, &ev.QueryHash, &domain, &verified,
			&ev.Error, &ev.Provider, &cacheHit, &latencyMS, &at); err != nil {
			return nil, fmt.Errorf("failed to scan audit event: %w", err)
		}
		ev.Domain = types.Domain(domain)
		ev.Verified = verified != 0
		ev.CacheHit = cacheHit != 0
		ev.Latency = time.Duration(latencyMS) * time.Millisecond
		ev.At = time.Unix(at, 0)
		events = append(events, ev)
	}
	return events, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
