package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_entries (
    key TEXT PRIMARY KEY,
    value BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_tracking (
    grp TEXT NOT NULL,
    key TEXT NOT NULL,
    PRIMARY KEY (grp, key)
);`

// SQLiteStore is a Store persisted in its own SQLite file, so cached
// payloads survive restarts.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (creating if needed) the cache database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening cache database: %w", err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating cache tables: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, "SELECT value FROM cache_entries WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading cache entry: %w", err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO cache_entries (key, value) VALUES (?, ?) ON CONFLICT (key) DO UPDATE SET value = excluded.value",
		key, value)
	if err != nil {
		return fmt.Errorf("writing cache entry: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Delete in chunks to stay under SQLite's bound-parameter limit.
	const chunk = 500
	for start := 0; start < len(keys); start += chunk {
		end := min(start+chunk, len(keys))
		args := make([]any, 0, end-start)
		for _, k := range keys[start:end] {
			args = append(args, k)
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", len(args)), ", ")
		if _, err := tx.ExecContext(ctx, "DELETE FROM cache_entries WHERE key IN ("+marks+")", args...); err != nil {
			return fmt.Errorf("deleting cache entries: %w", err)
		}
	}
	return tx.Commit()
}

func (s *SQLiteStore) Track(ctx context.Context, group, key string) error {
	if _, err := s.db.ExecContext(ctx,
		"INSERT OR IGNORE INTO cache_tracking (grp, key) VALUES (?, ?)", group, key); err != nil {
		return fmt.Errorf("tracking cache key: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Tracked(ctx context.Context, group string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT key FROM cache_tracking WHERE grp = ? ORDER BY key", group)
	if err != nil {
		return nil, fmt.Errorf("listing tracked keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("scanning tracked key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLiteStore) Untrack(ctx context.Context, group string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_tracking WHERE grp = ?", group); err != nil {
		return fmt.Errorf("untracking cache group: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Flush(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM cache_entries; DELETE FROM cache_tracking;"); err != nil {
		return fmt.Errorf("flushing cache: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
