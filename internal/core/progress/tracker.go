// Package progress derives ingestion progress from what is already stored.
package progress

import (
	"context"
	"fmt"

	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// Tracker reports where ingestion of a table left off.
type Tracker struct {
	reader storage.ProgressReader
	column string
}

// NewTracker creates a tracker reading column, "block_number" when empty.
func NewTracker(reader storage.ProgressReader, column string) *Tracker {
	if column == "" {
		column = "block_number"
	}
	return &Tracker{reader: reader, column: column}
}

// LatestBlock returns the highest stored block of table. ok is false when the
// table is missing or empty, which is the normal first-run condition.
func (t *Tracker) LatestBlock(ctx context.Context, table string) (block int64, ok bool, err error) {
	block, ok, err = t.reader.MaxInt(ctx, table, t.column)
	if err != nil {
		return 0, false, fmt.Errorf("latest block of %s: %w", table, err)
	}
	return block, ok, nil
}

// NextBlock returns the first block of the next fetch window.
func (t *Tracker) NextBlock(ctx context.Context, table string) (int64, error) {
	block, ok, err := t.LatestBlock(ctx, table)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	return block + 1, nil
}
