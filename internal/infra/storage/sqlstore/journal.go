package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

func (s *Store) RecordCycle(ctx context.Context, rec storage.CycleRecord) error {
	q := s.db.Rebind(`INSERT INTO ingest_cycles
		(id, pipeline, from_block, rows_written, outcome, stage, error_message, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err := s.db.ExecContext(ctx, q,
		rec.ID,
		rec.Pipeline,
		rec.FromBlock,
		rec.RowsWritten,
		rec.Outcome,
		rec.Stage,
		rec.Error,
		rec.StartedAt.UTC(),
		rec.FinishedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record cycle: %w", err)
	}
	return nil
}

func (s *Store) RecentCycles(ctx context.Context, limit int) ([]storage.CycleRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	q := s.db.Rebind(`SELECT id, pipeline, from_block, rows_written, outcome, stage, error_message, started_at, finished_at
		FROM ingest_cycles ORDER BY finished_at DESC LIMIT ?`)

	var out []storage.CycleRecord
	if err := s.db.SelectContext(ctx, &out, q, limit); err != nil {
		return nil, fmt.Errorf("failed to list cycles: %w", err)
	}
	return out, nil
}

func (s *Store) PruneCycles(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM ingest_cycles WHERE finished_at < ?`), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune cycles: %w", err)
	}
	return res.RowsAffected()
}
