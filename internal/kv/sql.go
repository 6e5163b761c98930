package kv

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Dialect selects the SQL flavour of a SQLStore.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

type dialectQueries struct {
	driver string
	create string
	get    string
	upsert string
	remove string
	keys   string
}

var queries = map[Dialect]dialectQueries{
	DialectSQLite: {
		driver: "sqlite",
		create: `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		get:    `SELECT value FROM kv WHERE key = ?`,
		upsert: `INSERT INTO kv (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		remove: `DELETE FROM kv WHERE key = ?`,
		keys:   `SELECT key FROM kv WHERE substr(key, 1, length(?)) = ? ORDER BY key`,
	},
	DialectPostgres: {
		driver: "pgx",
		create: `CREATE TABLE IF NOT EXISTS kv (key TEXT PRIMARY KEY, value TEXT NOT NULL)`,
		get:    `SELECT value FROM kv WHERE key = $1`,
		upsert: `INSERT INTO kv (key, value) VALUES ($1, $2) ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`,
		remove: `DELETE FROM kv WHERE key = $1`,
		keys:   `SELECT key FROM kv WHERE substr(key, 1, length($1)) = $2 ORDER BY key`,
	},
}

// SQLStore keeps keys in a single two-column table.
type SQLStore struct {
	db      *sql.DB
	q       dialectQueries
	timeout time.Duration
}

var (
	_ Store  = (*SQLStore)(nil)
	_ Lister = (*SQLStore)(nil)
)

// NewSQLStore connects to dsn and ensures the kv table exists. For sqlite
// the dsn is a file path; for postgres it is a connection URL.
func NewSQLStore(dialect Dialect, dsn string, timeout time.Duration) (*SQLStore, error) {
	q, ok := queries[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported sql dialect %q", dialect)
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	db, err := sql.Open(q.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open database: %v", ErrUnavailable, err)
	}

	s := &SQLStore{db: db, q: q, timeout: timeout}

	ctx, cancel := s.ctx()
	defer cancel()

	if dialect == DialectSQLite {
		// One writer at a time; WAL lets readers proceed alongside it.
		db.SetMaxOpenConns(1)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("%w: failed to enable WAL mode: %v", ErrUnavailable, err)
		}
	}

	if _, err := db.ExecContext(ctx, q.create); err != nil {
		db.Close()
		return nil, fmt.Errorf("%w: failed to create kv table: %v", ErrUnavailable, err)
	}

	return s, nil
}

func (s *SQLStore) ctx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.timeout)
}

func (s *SQLStore) Get(key string) (string, bool, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	var value string
	err := s.db.QueryRowContext(ctx, s.q.get, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("sql get %q: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLStore) Set(key, value string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, s.q.upsert, key, value); err != nil {
		return fmt.Errorf("sql set %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Remove(key string) error {
	ctx, cancel := s.ctx()
	defer cancel()

	if _, err := s.db.ExecContext(ctx, s.q.remove, key); err != nil {
		return fmt.Errorf("sql remove %q: %w", key, err)
	}
	return nil
}

func (s *SQLStore) Keys(prefix string) ([]string, error) {
	ctx, cancel := s.ctx()
	defer cancel()

	rows, err := s.db.QueryContext(ctx, s.q.keys, prefix, prefix)
	if err != nil {
		return nil, fmt.Errorf("sql keys %q: %w", prefix, err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}
