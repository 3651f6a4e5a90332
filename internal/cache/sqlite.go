package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite persists cache entries across restarts.
type SQLite struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// OpenSQLite opens (creating if needed) the cache database at path.
// ttl<=0 keeps entries forever.
func OpenSQLite(path string, ttl time.Duration) (*SQLite, error) {
	if path == "" {
		return nil, fmt.Errorf("cache: sqlite path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("cache: mkdir db dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("cache: open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &SQLite{db: db, ttl: ttl, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS cache_entries (
			tier TEXT NOT NULL,
			key TEXT NOT NULL,
			value TEXT NOT NULL,
			created_ns INTEGER NOT NULL,
			expires_ns INTEGER NOT NULL,
			PRIMARY KEY (tier, key)
		);`,
		`CREATE INDEX IF NOT EXISTS idx_cache_expires ON cache_entries(expires_ns);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("cache: sqlite migrate: %w", err)
		}
	}
	return nil
}

// Get implements Store.
func (s *SQLite) Get(ctx context.Context, tier Tier, key string) (string, bool, error) {
	var value string
	var expires int64
	err := s.db.QueryRowContext(ctx,
		`SELECT value, expires_ns FROM cache_entries WHERE tier = ? AND key = ?;`,
		string(tier), key,
	).Scan(&value, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("cache: sqlite get: %w", err)
	}
	if expires > 0 && s.now().UnixNano() >= expires {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE tier = ? AND key = ?;`, string(tier), key)
		return "", false, nil
	}
	return value, true, nil
}

// Put implements Store.
func (s *SQLite) Put(ctx context.Context, tier Tier, key, value string) error {
	now := s.now()
	var expires int64
	if s.ttl > 0 {
		expires = now.Add(s.ttl).UnixNano()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cache_entries(tier, key, value, created_ns, expires_ns)
		VALUES(?,?,?,?,?)
		ON CONFLICT(tier, key) DO UPDATE SET
			value = excluded.value,
			created_ns = excluded.created_ns,
			expires_ns = excluded.expires_ns;`,
		string(tier), key, value, now.UnixNano(), expires,
	)
	if err != nil {
		return fmt.Errorf("cache: sqlite put: %w", err)
	}
	return nil
}

// Len implements Store.
func (s *SQLite) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries;`).Scan(&n); err != nil {
		return 0, fmt.Errorf("cache: sqlite len: %w", err)
	}
	return n, nil
}

// Purge deletes expired rows and returns how many were removed.
func (s *SQLite) Purge(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM cache_entries WHERE expires_ns > 0 AND expires_ns <= ?;`,
		s.now().UnixNano(),
	)
	if err != nil {
		return 0, fmt.Errorf("cache: sqlite purge: %w", err)
	}
	return res.RowsAffected()
}

// Close implements Store.
func (s *SQLite) Close() error { return s.db.Close() }
