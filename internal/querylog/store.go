// Package querylog persists completed queries and the queue of pending
// ranking requests in SQLite or PostgreSQL.
package querylog

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
	_ "modernc.org/sqlite"             // pure Go SQLite, registers "sqlite"

	"github.com/Aman-CERP/conceptrank/internal/config"
	crerrors "github.com/Aman-CERP/conceptrank/internal/errors"
)

// Dialect selects placeholder style and DDL.
type Dialect int

const (
	DialectSQLite Dialect = iota
	DialectPostgres
)

// Store is the query log and request queue. Safe for concurrent use.
type Store struct {
	db      *sql.DB
	dialect Dialect
	retry   crerrors.RetryConfig
}

// Open connects to the configured database and creates the tables.
func Open(ctx context.Context, cfg config.QueryLogConfig) (*Store, error) {
	var (
		db      *sql.DB
		dialect Dialect
		err     error
	)
	switch cfg.Driver {
	case "postgres":
		dialect = DialectPostgres
		db, err = sql.Open("pgx", cfg.DSN)
	case "sqlite", "":
		dialect = DialectSQLite
		db, err = openSQLite(cfg.DSN)
	default:
		return nil, crerrors.ConfigError(fmt.Sprintf("unknown querylog driver %q", cfg.Driver), nil)
	}
	if err != nil {
		return nil, crerrors.New(crerrors.ErrCodeSinkUnavailable, "failed to open query log", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, crerrors.New(crerrors.ErrCodeSinkUnavailable, "query log unreachable", err).
			WithDetail("driver", cfg.Driver)
	}

	s, err := New(ctx, db, dialect)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func openSQLite(path string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// Single writer to prevent lock contention
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}
	return db, nil
}

// New wraps an open database and creates the tables if needed.
func New(ctx context.Context, db *sql.DB, dialect Dialect) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	s := &Store{db: db, dialect: dialect, retry: crerrors.DefaultRetryConfig()}
	if err := s.initSchema(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema(ctx context.Context) error {
	id := "INTEGER PRIMARY KEY AUTOINCREMENT"
	if s.dialect == DialectPostgres {
		id = "BIGSERIAL PRIMARY KEY"
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS query_log (
			id ` + id + `,
			query_id TEXT NOT NULL,
			created_ms BIGINT NOT NULL,
			alpha DOUBLE PRECISION NOT NULL,
			seed_count INTEGER NOT NULL,
			result TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_log_created ON query_log(created_ms DESC)`,
		`CREATE TABLE IF NOT EXISTS query_requests (
			id TEXT PRIMARY KEY,
			seeds TEXT NOT NULL,
			seed_labels TEXT NOT NULL,
			alpha DOUBLE PRECISION,
			top_n INTEGER NOT NULL,
			status TEXT NOT NULL,
			error TEXT NOT NULL DEFAULT '',
			created_ms BIGINT NOT NULL,
			updated_ms BIGINT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_requests_status ON query_requests(status, created_ms)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return crerrors.New(crerrors.ErrCodeSinkUnavailable, "create query log schema", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *Store) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// write runs fn with retries; failures surface as SinkWrite errors.
func (s *Store) write(ctx context.Context, what string, fn func() error) error {
	return crerrors.Retry(ctx, s.retry, func() error {
		if err := fn(); err != nil {
			if crerrors.GetCode(err) != "" {
				return err
			}
			return crerrors.New(crerrors.ErrCodeSinkWrite, what, err)
		}
		return nil
	})
}
