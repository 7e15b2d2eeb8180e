// Package memory is an in-process table store for tests and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

type table struct {
	schema   storage.Schema
	mergeKey string
	rows     []storage.Row
	byKey    map[string]int
}

// Store implements storage.Store with mutex-protected maps.
type Store struct {
	mu     sync.RWMutex
	tables map[string]*table
	cycles []storage.CycleRecord
}

var _ storage.Store = (*Store)(nil)

func NewStore() *Store {
	return &Store{tables: make(map[string]*table)}
}

func (s *Store) Write(ctx context.Context, schema storage.Schema, rows []storage.Row, mergeKey string) error {
	if len(rows) == 0 {
		return nil
	}
	keyIdx := schema.Index(mergeKey)
	if keyIdx < 0 {
		return fmt.Errorf("merge key %q on %s: %w", mergeKey, schema.Table, storage.ErrUnknownColumn)
	}
	rows, err := storage.Dedupe(rows, keyIdx)
	if err != nil {
		return fmt.Errorf("write %s: %w", schema.Table, err)
	}
	for _, r := range rows {
		if len(r) != len(schema.Columns) {
			return fmt.Errorf("write %s: row has %d values, schema has %d columns", schema.Table, len(r), len(schema.Columns))
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[schema.Table]
	if !ok {
		t = &table{schema: schema, mergeKey: mergeKey, byKey: make(map[string]int)}
		s.tables[schema.Table] = t
	}
	if t.mergeKey != mergeKey {
		t.rekey(mergeKey)
	}

	for _, r := range rows {
		row := append(storage.Row(nil), r...)
		key := storage.KeyString(row[keyIdx])
		if i, exists := t.byKey[key]; exists {
			t.rows[i] = row
			continue
		}
		t.byKey[key] = len(t.rows)
		t.rows = append(t.rows, row)
	}
	return nil
}

// rekey rebuilds the key index after a merge key change, keeping the newest
// row for every key.
func (t *table) rekey(mergeKey string) {
	idx := t.schema.Index(mergeKey)
	rows := t.rows
	t.rows = nil
	t.byKey = make(map[string]int)
	t.mergeKey = mergeKey
	for _, r := range rows {
		key := storage.KeyString(r[idx])
		if i, exists := t.byKey[key]; exists {
			t.rows[i] = r
			continue
		}
		t.byKey[key] = len(t.rows)
		t.rows = append(t.rows, r)
	}
}

func (s *Store) MaxInt(ctx context.Context, tableName, column string) (int64, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[tableName]
	if !ok {
		return 0, false, nil
	}
	idx := t.schema.Index(column)
	if idx < 0 {
		return 0, false, fmt.Errorf("column %q on %s: %w", column, tableName, storage.ErrUnknownColumn)
	}

	var (
		max   int64
		found bool
	)
	for _, r := range t.rows {
		v, ok := r[idx].(int64)
		if !ok {
			continue
		}
		if !found || v > max {
			max, found = v, true
		}
	}
	return max, found, nil
}

func (s *Store) BlockTotals(ctx context.Context, from, to int64) (map[int64]domain.BlockCommitmentTotals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	totals := make(map[int64]domain.BlockCommitmentTotals)
	t, ok := s.tables[storage.Commitments.Table]
	if !ok {
		return totals, nil
	}
	blockIdx := t.schema.Index("settlement_block_number")
	bidIdx := t.schema.Index("bid_eth")
	decayedIdx := t.schema.Index("decayed_bid_eth")

	for _, r := range t.rows {
		block, ok := r[blockIdx].(int64)
		if !ok || block < from || block > to {
			continue
		}
		agg := totals[block]
		agg.SettlementBlockNumber = block
		agg.Commitments++
		if v, ok := r[bidIdx].(float64); ok {
			agg.TotalBidEth += v
		}
		if v, ok := r[decayedIdx].(float64); ok {
			agg.TotalDecayedBidEth += v
		}
		totals[block] = agg
	}
	return totals, nil
}

func (s *Store) RecordCycle(ctx context.Context, rec storage.CycleRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cycles = append(s.cycles, rec)
	return nil
}

func (s *Store) RecentCycles(ctx context.Context, limit int) ([]storage.CycleRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := append([]storage.CycleRecord(nil), s.cycles...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].FinishedAt.After(out[j].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) PruneCycles(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.cycles[:0]
	var n int64
	for _, c := range s.cycles {
		if c.FinishedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, c)
	}
	s.cycles = kept
	return n, nil
}

func (s *Store) Stats(ctx context.Context, schema storage.Schema) (storage.TableStats, error) {
	stats := storage.TableStats{Table: schema.Table}

	s.mu.RLock()
	t, ok := s.tables[schema.Table]
	if ok {
		stats.Exists = true
		stats.Rows = int64(len(t.rows))
	}
	s.mu.RUnlock()

	if !ok || schema.Progress == "" {
		return stats, nil
	}
	max, found, err := s.MaxInt(ctx, schema.Table, schema.Progress)
	if err != nil {
		return stats, err
	}
	if found {
		stats.MaxProgress = &max
	}
	return stats, nil
}

func (s *Store) DeleteFrom(ctx context.Context, tableName, column string, from int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tables[tableName]
	if !ok {
		return 0, nil
	}
	idx := t.schema.Index(column)
	if idx < 0 {
		return 0, fmt.Errorf("column %q on %s: %w", column, tableName, storage.ErrUnknownColumn)
	}

	kept := t.rows[:0]
	var removed int64
	for _, r := range t.rows {
		if v, ok := r[idx].(int64); ok && v >= from {
			removed++
			continue
		}
		kept = append(kept, r)
	}
	t.rows = kept
	t.rekey(t.mergeKey)
	return removed, nil
}

// Rows returns a copy of the rows of a table, for tests and inspection.
func (s *Store) Rows(tableName string) []storage.Row {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.tables[tableName]
	if !ok {
		return nil
	}
	out := make([]storage.Row, len(t.rows))
	for i, r := range t.rows {
		out[i] = append(storage.Row(nil), r...)
	}
	return out
}

func (s *Store) Close() error { return nil }
