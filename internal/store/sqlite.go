package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io/fs"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

// SQLiteStore is a KVStore backed by a single-connection SQLite database,
// migrated on Open with embedded goose migrations. This mirrors the
// teacher's db.Open: pure-Go driver, WAL journal mode, one open connection
// (SQLite serialises writers regardless, and the core already serialises
// all access on its side per spec.md §5).
type SQLiteStore struct {
	conn *sql.DB
}

// OpenSQLite creates (or opens) the database at path and applies all
// pending migrations.
func OpenSQLite(path string) (*SQLiteStore, error) {
	conn, err := sql.Open("sqlite", path+"?_pragma=journal_mode(wal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	migrationsFS, err := fs.Sub(MigrationFS, "migrations")
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migrations sub-fs: %w", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, migrationsFS)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("create migration provider: %w", err)
	}

	if _, err := provider.Up(context.Background()); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("apply migrations: %w", err)
	}

	return &SQLiteStore{conn: conn}, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.conn.Close()
}

// Conn returns the underlying *sql.DB for callers that need SQL beyond
// plain KV access and the burst-history methods below.
func (s *SQLiteStore) Conn() *sql.DB {
	return s.conn
}

func (s *SQLiteStore) Get(key string, v any) (bool, error) {
	var raw string
	err := s.conn.QueryRow(`SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) Set(key string, v any) error {
	raw, err := MarshalValue(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	_, err = s.conn.Exec(
		`INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(raw), time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("set %q: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.conn.Exec(`DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// RecordBurst appends a row to the burst-history table the dashboard reads
// from. It is best-effort: a failure here never affects delivery.
func (s *SQLiteStore) RecordBurst(url, body string, sentAt time.Time) error {
	_, err := s.conn.Exec(
		`INSERT INTO bursts (url, body, sent_at) VALUES (?, ?, ?)`,
		url, body, sentAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record burst: %w", err)
	}
	return nil
}

// BurstRecord is one entry of the burst-history table.
type BurstRecord struct {
	ID     int64
	URL    string
	Body   string
	SentAt string
}

// RecentBursts returns the most recent bursts, newest first.
func (s *SQLiteStore) RecentBursts(limit int) ([]BurstRecord, error) {
	rows, err := s.conn.Query(
		`SELECT id, url, body, sent_at FROM bursts ORDER BY sent_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent bursts: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var out []BurstRecord
	for rows.Next() {
		var b BurstRecord
		if err := rows.Scan(&b.ID, &b.URL, &b.Body, &b.SentAt); err != nil {
			return nil, fmt.Errorf("scan burst: %w", err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
