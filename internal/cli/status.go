package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/preconf-ingester/internal/control"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

var statusCycles int

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show ingestion progress per table and the latest cycles",
	Run:   runStatus,
}

func init() {
	statusCmd.Flags().IntVar(&statusCycles, "cycles", 10, "number of recent cycles to show")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	store, err := control.OpenStore(ctx, cfg.StorageURI, cfg.Database, true)
	if err != nil {
		slog.Error("Failed to open table store", "error", err)
		os.Exit(1)
	}
	err = printStatus(ctx, os.Stdout, store, statusCycles)
	_ = store.Close()
	if err != nil {
		slog.Error("Failed to read status", "error", err)
		os.Exit(1)
	}
}

func printStatus(ctx context.Context, out io.Writer, store storage.Store, cycles int) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "TABLE\tROWS\tLATEST BLOCK\tNEXT BLOCK")

	for _, schema := range storage.Tables {
		stats, err := store.Stats(ctx, schema)
		if err != nil {
			return err
		}
		if !stats.Exists {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t0\n", schema.Table)
			continue
		}
		latest, next := "-", "-"
		if stats.MaxProgress != nil {
			latest = fmt.Sprint(*stats.MaxProgress)
			next = fmt.Sprint(*stats.MaxProgress + 1)
		} else if schema.Progress != "" {
			next = "0"
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", schema.Table, stats.Rows, latest, next)
	}
	_ = w.Flush()

	recent, err := store.RecentCycles(ctx, cycles)
	if err != nil {
		return err
	}
	if len(recent) == 0 {
		return nil
	}

	_, _ = fmt.Fprintln(out)
	w = tabwriter.NewWriter(out, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "FINISHED\tPIPELINE\tFROM\tROWS\tOUTCOME\tSTAGE\tERROR")
	for _, c := range recent {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
			c.FinishedAt.Local().Format(time.DateTime),
			c.Pipeline,
			c.FromBlock,
			c.RowsWritten,
			c.Outcome,
			c.Stage,
			truncate(c.Error, 60),
		)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
