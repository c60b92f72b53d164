package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	// Register the "postgres" driver.
	_ "github.com/lib/pq"
	// Register the "sqlite" driver.
	_ "modernc.org/sqlite"

	"github.com/alex-user-go/rates/internal/ratelimit"
)

// dialect holds the statements a SQLStore runs against its single state row.
type dialect struct {
	name   string
	schema []string
	load   string
	view   string
	save   string
}

var sqliteDialect = dialect{
	name: "sqlite",
	schema: []string{`
	CREATE TABLE IF NOT EXISTS rate_limit_state (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		data       TEXT    NOT NULL,
		updated_at INTEGER NOT NULL
	)`},
	load: `SELECT data FROM rate_limit_state WHERE id = 1`,
	view: `SELECT data FROM rate_limit_state WHERE id = 1`,
	save: `
	INSERT INTO rate_limit_state (id, data, updated_at) VALUES (1, ?, ?)
	ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
}

var postgresDialect = dialect{
	name: "postgres",
	schema: []string{
		`
	CREATE TABLE IF NOT EXISTS rate_limit_state (
		id         SMALLINT PRIMARY KEY CHECK (id = 1),
		data       TEXT     NOT NULL,
		updated_at BIGINT   NOT NULL
	)`,
		`INSERT INTO rate_limit_state (id, data, updated_at) VALUES (1, '{}', 0) ON CONFLICT (id) DO NOTHING`,
	},
	load: `SELECT data FROM rate_limit_state WHERE id = 1 FOR UPDATE`,
	view: `SELECT data FROM rate_limit_state WHERE id = 1 FOR SHARE`,
	save: `
	INSERT INTO rate_limit_state (id, data, updated_at) VALUES (1, $1, $2)
	ON CONFLICT (id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`,
}

// SQLStore keeps all buckets as one JSON document in a single-row table. Every
// cycle runs in a transaction that locks the row (SQLite: an immediate
// transaction; PostgreSQL: SELECT ... FOR UPDATE).
type SQLStore struct {
	db *sql.DB
	d  dialect
}

// NewSQLiteStore opens or creates a SQLite database at path.
func NewSQLiteStore(ctx context.Context, path string) (*SQLStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_txlock=immediate"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes cycles inside the process; the immediate
	// transaction covers other processes.
	db.SetMaxOpenConns(1)

	return newSQLStore(ctx, db, sqliteDialect)
}

// NewPostgresStore connects to PostgreSQL using dsn.
func NewPostgresStore(ctx context.Context, dsn string) (*SQLStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open DB: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return newSQLStore(ctx, db, postgresDialect)
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect) (*SQLStore, error) {
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to %s: %w", d.name, err)
	}
	for _, stmt := range d.schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &SQLStore{db: db, d: d}, nil
}

// Close closes the database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) Update(ctx context.Context, fn func(ratelimit.Buckets) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		buckets, err := s.read(ctx, tx, s.d.load)
		if err != nil {
			return err
		}
		if err := fn(buckets); err != nil {
			return err
		}
		return s.write(ctx, tx, buckets)
	})
}

func (s *SQLStore) View(ctx context.Context, fn func(ratelimit.Buckets) error) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		buckets, err := s.read(ctx, tx, s.d.view)
		if err != nil {
			return err
		}
		return fn(buckets)
	})
}

// Clear stores an empty bucket map.
func (s *SQLStore) Clear(ctx context.Context) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		return s.write(ctx, tx, ratelimit.Buckets{})
	})
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *SQLStore) read(ctx context.Context, tx *sql.Tx, query string) (ratelimit.Buckets, error) {
	var data string
	err := tx.QueryRowContext(ctx, query).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return make(ratelimit.Buckets), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load buckets: %w", err)
	}
	return decode([]byte(data)), nil
}

func (s *SQLStore) write(ctx context.Context, tx *sql.Tx, buckets ratelimit.Buckets) error {
	data, err := encode(buckets)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.d.save, string(data), time.Now().Unix()); err != nil {
		return fmt.Errorf("failed to save buckets: %w", err)
	}
	return nil
}
