package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/preconf-ingester/internal/control"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

var rewindCmd = &cobra.Command{
	Use:   "rewind [table] [block]",
	Short: "Delete rows at or above a block so the next cycle re-ingests them",
	Long: `rewind deletes every row of a progress-tracked table whose block number is
at or above the given block. The running service must be stopped first when
the store is a DuckDB file.`,
	Args: cobra.ExactArgs(2),
	Run:  runRewind,
}

func init() {
	rootCmd.AddCommand(rewindCmd)
}

func runRewind(cmd *cobra.Command, args []string) {
	schema, ok := storage.SchemaByName(args[0])
	if !ok || schema.Progress == "" {
		fmt.Printf("Unknown or untracked table %q\n", args[0])
		os.Exit(1)
	}
	block, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil || block < 0 {
		fmt.Printf("Invalid block: %q\n", args[1])
		os.Exit(1)
	}

	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := control.OpenStore(ctx, cfg.StorageURI, cfg.Database, false)
	if err != nil {
		slog.Error("Failed to open table store", "error", err)
		os.Exit(1)
	}

	if err := rewindTable(ctx, os.Stdout, store, schema, block); err != nil {
		slog.Error("Failed to rewind", "table", schema.Table, "error", err)
		os.Exit(1)
	}
}

// rewindTable deletes rows of schema at or above block. The store is closed
// before returning.
func rewindTable(ctx context.Context, out io.Writer, store storage.Store, schema storage.Schema, block int64) error {
	n, err := store.DeleteFrom(ctx, schema.Table, schema.Progress, block)
	closeErr := store.Close()
	if err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("close store: %w", closeErr)
	}

	_, _ = fmt.Fprintf(out, "Deleted %d rows from %s; next cycle starts at block %d or the remaining maximum + 1\n", n, schema.Table, block)
	return nil
}
