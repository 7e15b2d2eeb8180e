package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

var _ storage.Store = (*Store)(nil)

// Write upserts rows in one transaction.
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

	if err := s.ensureTable(ctx, schema, mergeKey); err != nil {
		return err
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, s.db.Rebind(upsertSQL(schema, mergeKey)))
	if err != nil {
		return fmt.Errorf("prepare upsert %s: %w", schema.Table, err)
	}
	defer stmt.Close()

	for _, row := range rows {
		if len(row) != len(schema.Columns) {
			return fmt.Errorf("write %s: row has %d values, schema has %d columns", schema.Table, len(row), len(schema.Columns))
		}
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("upsert %s: %w", schema.Table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", schema.Table, err)
	}
	return nil
}

// ensureTable creates the table, adds columns missing from an older layout,
// and builds the unique index the upsert conflicts on.
func (s *Store) ensureTable(ctx context.Context, schema storage.Schema, mergeKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ensured[schema.Table] == mergeKey {
		return nil
	}

	if _, err := s.db.ExecContext(ctx, createTableSQL(s.dialect, schema)); err != nil {
		return fmt.Errorf("create table %s: %w", schema.Table, err)
	}

	var existing []string
	q := s.db.Rebind(`SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = ?`)
	if err := s.db.SelectContext(ctx, &existing, q, schema.Table); err != nil {
		return fmt.Errorf("list columns of %s: %w", schema.Table, err)
	}
	have := make(map[string]bool, len(existing))
	for _, c := range existing {
		have[c] = true
	}
	for _, c := range schema.Columns {
		if have[c.Name] {
			continue
		}
		stmt := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s",
			pq.QuoteIdentifier(schema.Table), pq.QuoteIdentifier(c.Name), s.dialect.columnType(c.Type))
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("add column %s.%s: %w", schema.Table, c.Name, err)
		}
		s.log.Info("Added column", "table", schema.Table, "column", c.Name)
	}

	if _, err := s.db.ExecContext(ctx, createIndexSQL(schema.Table, mergeKey)); err != nil {
		return fmt.Errorf("create merge index on %s(%s): %w", schema.Table, mergeKey, err)
	}

	s.ensured[schema.Table] = mergeKey
	return nil
}

func (s *Store) tableExists(ctx context.Context, table string) (bool, error) {
	var n int
	q := s.db.Rebind(`SELECT COUNT(*) FROM information_schema.tables
		WHERE table_schema = current_schema() AND table_name = ?`)
	if err := s.db.GetContext(ctx, &n, q, table); err != nil {
		return false, fmt.Errorf("check table %s: %w", table, err)
	}
	return n > 0, nil
}

func (s *Store) MaxInt(ctx context.Context, table, column string) (int64, bool, error) {
	exists, err := s.tableExists(ctx, table)
	if err != nil || !exists {
		return 0, false, err
	}

	var max sql.NullInt64
	q := fmt.Sprintf("SELECT MAX(%s) FROM %s", pq.QuoteIdentifier(column), pq.QuoteIdentifier(table))
	if err := s.db.GetContext(ctx, &max, q); err != nil {
		return 0, false, fmt.Errorf("max %s.%s: %w", table, column, err)
	}
	return max.Int64, max.Valid, nil
}

type blockTotalsRow struct {
	Block       int64   `db:"settlement_block_number"`
	Commitments int     `db:"commitments"`
	TotalBid    float64 `db:"total_bid_eth"`
	TotalDecay  float64 `db:"total_decayed_bid_eth"`
}

func (s *Store) BlockTotals(ctx context.Context, from, to int64) (map[int64]domain.BlockCommitmentTotals, error) {
	totals := make(map[int64]domain.BlockCommitmentTotals)

	exists, err := s.tableExists(ctx, storage.Commitments.Table)
	if err != nil || !exists {
		return totals, err
	}

	q := s.db.Rebind(`SELECT settlement_block_number,
			COUNT(*) AS commitments,
			COALESCE(SUM(bid_eth), 0) AS total_bid_eth,
			COALESCE(SUM(decayed_bid_eth), 0) AS total_decayed_bid_eth
		FROM commitments
		WHERE settlement_block_number BETWEEN ? AND ?
		GROUP BY settlement_block_number`)

	var rows []blockTotalsRow
	if err := s.db.SelectContext(ctx, &rows, q, from, to); err != nil {
		return nil, fmt.Errorf("block totals: %w", err)
	}
	for _, r := range rows {
		totals[r.Block] = domain.BlockCommitmentTotals{
			SettlementBlockNumber: r.Block,
			Commitments:           r.Commitments,
			TotalBidEth:           r.TotalBid,
			TotalDecayedBidEth:    r.TotalDecay,
		}
	}
	return totals, nil
}

func (s *Store) Stats(ctx context.Context, schema storage.Schema) (storage.TableStats, error) {
	stats := storage.TableStats{Table: schema.Table}

	exists, err := s.tableExists(ctx, schema.Table)
	if err != nil || !exists {
		return stats, err
	}
	stats.Exists = true

	q := fmt.Sprintf("SELECT COUNT(*) FROM %s", pq.QuoteIdentifier(schema.Table))
	if err := s.db.GetContext(ctx, &stats.Rows, q); err != nil {
		return stats, fmt.Errorf("count %s: %w", schema.Table, err)
	}

	if schema.Progress != "" {
		max, ok, err := s.MaxInt(ctx, schema.Table, schema.Progress)
		if err != nil {
			return stats, err
		}
		if ok {
			stats.MaxProgress = &max
		}
	}
	return stats, nil
}

func (s *Store) DeleteFrom(ctx context.Context, table, column string, from int64) (int64, error) {
	exists, err := s.tableExists(ctx, table)
	if err != nil || !exists {
		return 0, err
	}

	q := s.db.Rebind(fmt.Sprintf("DELETE FROM %s WHERE %s >= ?",
		pq.QuoteIdentifier(table), pq.QuoteIdentifier(column)))
	res, err := s.db.ExecContext(ctx, q, from)
	if err != nil {
		return 0, fmt.Errorf("delete from %s: %w", table, err)
	}
	return res.RowsAffected()
}

func createTableSQL(d Dialect, schema storage.Schema) string {
	cols := make([]string, len(schema.Columns))
	for i, c := range schema.Columns {
		cols[i] = pq.QuoteIdentifier(c.Name) + " " + d.columnType(c.Type)
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		pq.QuoteIdentifier(schema.Table), strings.Join(cols, ", "))
}

func createIndexSQL(table, key string) string {
	return fmt.Sprintf("CREATE UNIQUE INDEX IF NOT EXISTS %s ON %s (%s)",
		pq.QuoteIdentifier(table+"_"+key+"_merge_idx"), pq.QuoteIdentifier(table), pq.QuoteIdentifier(key))
}

func upsertSQL(schema storage.Schema, mergeKey string) string {
	names := schema.Names()
	quoted := make([]string, len(names))
	placeholders := make([]string, len(names))
	updates := make([]string, 0, len(names)-1)
	for i, n := range names {
		quoted[i] = pq.QuoteIdentifier(n)
		placeholders[i] = "?"
		if n != mergeKey {
			updates = append(updates, quoted[i]+" = EXCLUDED."+quoted[i])
		}
	}

	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s)",
		pq.QuoteIdentifier(schema.Table),
		strings.Join(quoted, ", "),
		strings.Join(placeholders, ", "),
		pq.QuoteIdentifier(mergeKey))
	if len(updates) == 0 {
		return q + " DO NOTHING"
	}
	return q + " DO UPDATE SET " + strings.Join(updates, ", ")
}
