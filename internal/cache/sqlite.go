package cache

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"qwed/internal/types"
)

// SQLiteStore persists verdicts in a local SQLite database so a restart
// does not re-spend provider calls on questions already settled.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// NewSQLiteStore opens or creates the verdict database at path. A
// non-positive ttl disables expiry.
func NewSQLiteStore(path string, ttl time.Duration) (*SQLiteStore, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS verdicts (
		key TEXT PRIMARY KEY,
		verdict_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_verdicts_created ON verdicts(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create verdicts table: %w", err)
	}
	return nil
}

// Get implements Store. A row whose payload no longer unmarshals is
// reported as ErrCacheCorruption and deleted so the next call recomputes.
func (s *SQLiteStore) Get(key string) (types.Verdict, bool, error) {
	var payload string
	var created int64
	err := s.db.QueryRow(
		`SELECT verdict_json, created_at FROM verdicts WHERE key = ?`, key,
	).Scan(&payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Verdict{}, false, nil
	}
	if err != nil {
		return types.Verdict{}, false, fmt.Errorf("failed to read verdict: %w", err)
	}

	if s.ttl > 0 && s.now().Sub(time.Unix(created, 0)) >= s.ttl {
		s.db.Exec(`DELETE FROM verdicts WHERE key = ?`, key)
		return types.Verdict{}, false, nil
	}

	var v types.Verdict
	if err := json.Unmarshal([]byte(payload), &v); err != nil {
		s.db.Exec(`DELETE FROM verdicts WHERE key = ?`, key)
		return types.Verdict{}, false, fmt.Errorf("verdict row for %s: %v: %w", key, err, types.ErrCacheCorruption)
	}
	return v, true, nil
}

// Put implements Store. INSERT OR IGNORE keeps the first verdict written.
func (s *SQLiteStore) Put(key string, v types.Verdict) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode verdict: %w", err)
	}
	_, err = s.db.Exec(
		`INSERT OR IGNORE INTO verdicts (key, verdict_json, created_at) VALUES (?, ?, ?)`,
		key, string(payload), s.now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to store verdict: %w", err)
	}
	return nil
}

// Len implements Store.
func (s *SQLiteStore) Len() int {
	var n int
	query := `SELECT COUNT(*) FROM verdicts`
	args := []any{}
	if s.ttl > 0 {
		query += ` WHERE created_at > ?`
		args = append(args, s.now().Add(-s.ttl).Unix())
	}
	if err := s.db.QueryRow(query, args...).Scan(&n); err != nil {
		return 0
	}
	return n
}

// Close implements Store.
func (s *SQLiteStore) Close() error { return s.db.Close() }
