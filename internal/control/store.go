package control

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/vietddude/preconf-ingester/internal/core/config"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
	"github.com/vietddude/preconf-ingester/internal/infra/storage/memory"
	"github.com/vietddude/preconf-ingester/internal/infra/storage/sqlstore"
)

// OpenStore opens the table store named by uri:
//
//	memory://                     in-process store
//	duckdb://path, or a bare path embedded DuckDB file
//	postgres://..., postgresql:// PostgreSQL server
func OpenStore(ctx context.Context, uri string, db config.DatabaseConfig, readOnly bool) (storage.Store, error) {
	switch {
	case uri == "memory://":
		slog.Info("Using memory storage")
		return memory.NewStore(), nil

	case strings.HasPrefix(uri, "postgres://"), strings.HasPrefix(uri, "postgresql://"):
		store, err := sqlstore.Open(ctx, sqlstore.Postgres, sqlstore.Config{
			DSN:      uri,
			MaxConns: db.MaxConns,
			MinConns: db.MinConns,
			ReadOnly: readOnly,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open postgres store: %w", err)
		}
		slog.Info("Using PostgreSQL storage")
		return store, nil

	case strings.Contains(uri, "://") && !strings.HasPrefix(uri, "duckdb://"):
		return nil, fmt.Errorf("%w: unsupported storage uri %q", config.ErrInvalidConfig, uri)

	default:
		path := strings.TrimPrefix(uri, "duckdb://")
		if path != "" && !readOnly {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create storage directory: %w", err)
			}
		}
		store, err := sqlstore.Open(ctx, sqlstore.DuckDB, sqlstore.Config{
			DSN:      path,
			MaxConns: 1,
			ReadOnly: readOnly,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb store %q: %w", path, err)
		}
		slog.Info("Using DuckDB storage", "path", path)
		return store, nil
	}
}
