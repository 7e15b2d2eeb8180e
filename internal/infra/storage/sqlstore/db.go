// Package sqlstore implements the table store on database/sql, against an
// embedded DuckDB file or a PostgreSQL server.
package sqlstore

import (
	"context"
	"embed"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	_ "github.com/jackc/pgx/v5/stdlib" // Use pgx via database/sql
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Config holds connection settings.
type Config struct {
	// DSN is a DuckDB file path, empty for in-memory, or a postgres URL.
	DSN      string
	MaxConns int
	MinConns int
	ReadOnly bool
}

// Store implements storage.Store over SQL.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	log     *slog.Logger

	mu      sync.Mutex
	ensured map[string]string // table -> merge key
}

// Open connects, verifies the connection and prepares the cycle journal.
func Open(ctx context.Context, dialect Dialect, cfg Config) (*Store, error) {
	dsn := cfg.DSN
	if dialect.Name == DuckDB.Name && cfg.ReadOnly {
		dsn = withParam(dsn, "access_mode", "READ_ONLY")
	}

	db, err := sqlx.Open(dialect.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	} else {
		db.SetMaxOpenConns(10)
	}
	if cfg.MinConns > 0 {
		db.SetMaxIdleConns(cfg.MinConns)
	} else {
		db.SetMaxIdleConns(2)
	}
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		db:      db,
		dialect: dialect,
		log:     slog.With("component", "sqlstore", "dialect", dialect.Name),
		ensured: make(map[string]string),
	}

	if !cfg.ReadOnly {
		if err := s.migrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	if s.dialect.journalDDL != "" {
		if _, err := s.db.ExecContext(ctx, s.dialect.journalDDL); err != nil {
			return fmt.Errorf("failed to create cycle journal: %w", err)
		}
		return nil
	}

	goose.SetBaseFS(migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("failed to migrate db: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func withParam(dsn, key, value string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + key + "=" + value
}
