package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
)

var (
	// ErrUnknownColumn is returned when a merge or progress column is not in the schema.
	ErrUnknownColumn = errors.New("unknown column")
	// ErrNullKey is returned when a row carries no merge key value.
	ErrNullKey = errors.New("row has null merge key")
)

// TableWriter merges batches of rows into named tables.
type TableWriter interface {
	// Write upserts rows into schema.Table keyed on mergeKey. An empty batch
	// is a no-op and a missing table is created.
	Write(ctx context.Context, schema Schema, rows []Row, mergeKey string) error
}

// ProgressReader answers how far a table has been ingested.
type ProgressReader interface {
	// MaxInt returns the largest value of column in table. ok is false when the
	// table does not exist or holds no rows.
	MaxInt(ctx context.Context, table, column string) (max int64, ok bool, err error)
}

// CommitmentReader reads aggregates back from the commitments table.
type CommitmentReader interface {
	// BlockTotals sums commitments by settlement block over [from, to].
	BlockTotals(ctx context.Context, from, to int64) (map[int64]domain.BlockCommitmentTotals, error)
}

// CycleJournal records the outcome of every ingestion cycle.
type CycleJournal interface {
	RecordCycle(ctx context.Context, rec CycleRecord) error
	RecentCycles(ctx context.Context, limit int) ([]CycleRecord, error)
	// PruneCycles deletes entries that finished before the cutoff.
	PruneCycles(ctx context.Context, before time.Time) (int64, error)
}

// Admin holds operator operations used by the CLI.
type Admin interface {
	Stats(ctx context.Context, schema Schema) (TableStats, error)
	// DeleteFrom removes rows whose column is >= from and returns how many were removed.
	DeleteFrom(ctx context.Context, table, column string, from int64) (int64, error)
}

// Store is the full table store used by the ingester.
type Store interface {
	TableWriter
	ProgressReader
	CommitmentReader
	CycleJournal
	Admin
	Close() error
}

// TableStats summarizes one table for operators.
type TableStats struct {
	Table       string
	Exists      bool
	Rows        int64
	MaxProgress *int64
}

// CycleRecord is one journal entry.
type CycleRecord struct {
	ID          string    `db:"id"`
	Pipeline    string    `db:"pipeline"`
	FromBlock   int64     `db:"from_block"`
	RowsWritten int64     `db:"rows_written"`
	Outcome     string    `db:"outcome"`
	Stage       string    `db:"stage"`
	Error       string    `db:"error_message"`
	StartedAt   time.Time `db:"started_at"`
	FinishedAt  time.Time `db:"finished_at"`
}
