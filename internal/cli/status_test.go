package cli

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/vietddude/preconf-ingester/internal/infra/storage"
	"github.com/vietddude/preconf-ingester/internal/infra/storage/memory"
)

func TestPrintStatus(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	row := make(storage.Row, len(storage.BuilderBlocks.Columns))
	row[storage.BuilderBlocks.Index("block_number")] = int64(41)
	if err := store.Write(ctx, storage.BuilderBlocks, []storage.Row{row}, "block_number"); err != nil {
		t.Fatal(err)
	}
	store.RecordCycle(ctx, storage.CycleRecord{
		ID: "c1", Pipeline: "builder", FromBlock: 0, RowsWritten: 1,
		Outcome: "written", FinishedAt: time.Now(),
	})

	var out bytes.Buffer
	if err := printStatus(ctx, &out, store, 5); err != nil {
		t.Fatalf("printStatus failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{"commitments", "mev_boost_blocks", "41", "42", "builder", "written"} {
		if !strings.Contains(text, want) {
			t.Errorf("status output missing %q:\n%s", want, text)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("truncate = %q", got)
	}
	if got := truncate("a very long error message", 10); got != "a very ..." {
		t.Errorf("truncate = %q", got)
	}
}
