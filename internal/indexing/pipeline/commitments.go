package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietddude/preconf-ingester/internal/core/decay"
	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/core/progress"
	"github.com/vietddude/preconf-ingester/internal/indexing/join"
	"github.com/vietddude/preconf-ingester/internal/indexing/metrics"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// CommitmentsPipeline is the name of the commitment pipeline.
const CommitmentsPipeline = "commitments"

// heightTimeout bounds the upstream height lookup, which never gates a cycle.
const heightTimeout = 5 * time.Second

// CommitmentConfig wires the commitment pipeline.
type CommitmentConfig struct {
	Events       EventSource
	Transactions TxSource // nil disables settlement enrichment
	Cache        TxCache  // optional
	Progress     *progress.Tracker
	Writer       storage.TableWriter
	MergeKey     string
	FetchTimeout time.Duration
	// LookbackBlocks re-queries this many blocks below the progress block.
	LookbackBlocks int64
}

// CommitmentPipeline ingests joined and valued commitments.
type CommitmentPipeline struct {
	cfg CommitmentConfig
	log *slog.Logger
}

// NewCommitmentPipeline creates the commitment pipeline.
func NewCommitmentPipeline(cfg CommitmentConfig) *CommitmentPipeline {
	if cfg.MergeKey == "" {
		cfg.MergeKey = storage.Commitments.MergeKey
	}
	return &CommitmentPipeline{
		cfg: cfg,
		log: slog.With("component", "pipeline", "pipeline", CommitmentsPipeline),
	}
}

// Name implements Runner.
func (p *CommitmentPipeline) Name() string { return CommitmentsPipeline }

// RunCycle implements Runner.
func (p *CommitmentPipeline) RunCycle(ctx context.Context, enter func(State)) (Result, error) {
	table := storage.Commitments.Table

	from, err := p.cfg.Progress.NextBlock(ctx, table)
	if err != nil {
		return Result{}, stageErr(CommitmentsPipeline, StageProgress, err)
	}
	res := Result{FromBlock: from}
	metrics.ProgressBlock.WithLabelValues(table).Set(float64(from))

	queryFrom := from - p.cfg.LookbackBlocks
	if queryFrom < 0 {
		queryFrom = 0
	}

	enter(StateFetching)
	stored, encrypted, processed, err := p.fetchCommitmentStreams(ctx, queryFrom)
	if err != nil {
		return res, stageErr(CommitmentsPipeline, StageFetch, err)
	}
	p.log.Debug("Fetched streams",
		"from_block", queryFrom,
		"stored", len(stored),
		"encrypted_stored", len(encrypted),
		"processed", len(processed),
	)

	enter(StateJoining)
	commitments := join.Commitments(stored, encrypted, processed)
	if p.cfg.Transactions != nil && len(commitments) > 0 {
		txs, err := p.lookupSettlement(ctx, join.TransactionHashes(commitments))
		if err != nil {
			return res, stageErr(CommitmentsPipeline, StageFetch, err)
		}
		commitments = join.Settlement(commitments, txs)
	}

	enter(StateComputing)
	for i := range commitments {
		if err := decay.Apply(&commitments[i]); err != nil {
			reason := degenerateReason(err)
			metrics.DecayDegenerate.WithLabelValues(reason).Inc()
			p.log.Warn("Degenerate decay window",
				"stage", StageCompute,
				"commitment_index", commitments[i].CommitmentIndex,
				"reason", reason,
				"decay_start", commitments[i].DecayStartTimestamp,
				"decay_end", commitments[i].DecayEndTimestamp,
			)
		}
	}

	if len(commitments) == 0 {
		res.NoData = true
		return res, nil
	}

	enter(StateWriting)
	// Settlement rows go first so a failure leaves progress untouched.
	if txs := settledTransactions(commitments); len(txs) > 0 {
		rows := storage.SettlementTxRows(txs)
		if err := p.cfg.Writer.Write(ctx, storage.SettlementTxs, rows, storage.SettlementTxs.MergeKey); err != nil {
			return res, stageErr(CommitmentsPipeline, StageWrite, err)
		}
		metrics.RowsWritten.WithLabelValues(storage.SettlementTxs.Table).Add(float64(len(rows)))
	}

	rows := storage.CommitmentRows(commitments)
	if err := p.cfg.Writer.Write(ctx, storage.Commitments, rows, p.cfg.MergeKey); err != nil {
		return res, stageErr(CommitmentsPipeline, StageWrite, err)
	}
	metrics.RowsWritten.WithLabelValues(table).Add(float64(len(rows)))
	res.Rows = int64(len(rows))
	return res, nil
}

// recordHeight publishes the upstream block height. Failures are only logged.
func (p *CommitmentPipeline) recordHeight(ctx context.Context) {
	timeout := heightTimeout
	if p.cfg.FetchTimeout > 0 && p.cfg.FetchTimeout < timeout {
		timeout = p.cfg.FetchTimeout
	}
	height, err := withTimeout(ctx, timeout, p.cfg.Events.BlockHeight)
	if err != nil {
		p.log.Debug("Block height unavailable", "err", err)
		return
	}
	metrics.UpstreamHeight.WithLabelValues(CommitmentsPipeline).Set(float64(height))
}

// fetchCommitmentStreams queries the three streams concurrently. Any failure
// fails the whole fetch.
func (p *CommitmentPipeline) fetchCommitmentStreams(ctx context.Context, from int64) (
	stored []domain.StoredEvent,
	encrypted []domain.EncryptedStoredEvent,
	processed []domain.ProcessedEvent,
	err error,
) {
	g, gctx := errgroup.WithContext(ctx)
	timeout := p.cfg.FetchTimeout

	g.Go(func() error {
		var err error
		stored, err = fetchStream[domain.StoredEvent](gctx, CommitmentsPipeline, p.cfg.Events, domain.StoredStream, from, timeout)
		return err
	})
	g.Go(func() error {
		var err error
		encrypted, err = fetchStream[domain.EncryptedStoredEvent](gctx, CommitmentsPipeline, p.cfg.Events, domain.EncryptedStoredStream, from, timeout)
		return err
	})
	g.Go(func() error {
		var err error
		processed, err = fetchStream[domain.ProcessedEvent](gctx, CommitmentsPipeline, p.cfg.Events, domain.ProcessedStream, from, timeout)
		return err
	})
	go p.recordHeight(ctx)

	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return stored, encrypted, processed, nil
}

// lookupSettlement resolves hashes through the cache, then the secondary service.
func (p *CommitmentPipeline) lookupSettlement(ctx context.Context, hashes []string) ([]domain.SettlementTransaction, error) {
	if len(hashes) == 0 {
		return nil, nil
	}

	var cached []domain.SettlementTransaction
	missing := hashes
	if p.cfg.Cache != nil {
		found, miss, err := p.cfg.Cache.Get(ctx, hashes)
		if err != nil {
			p.log.Warn("Settlement cache unavailable", "err", err)
		} else {
			cached, missing = found, miss
			metrics.CacheLookups.WithLabelValues("hit").Add(float64(len(found)))
			metrics.CacheLookups.WithLabelValues("miss").Add(float64(len(miss)))
		}
	}
	if len(missing) == 0 {
		return cached, nil
	}

	fetched, err := withTimeout(ctx, p.cfg.FetchTimeout, func(ctx context.Context) ([]domain.SettlementTransaction, error) {
		return p.cfg.Transactions.SearchTransactions(ctx, missing)
	})
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(CommitmentsPipeline, "settlement", fetchErrorKind(err)).Inc()
		return nil, fmt.Errorf("settlement lookup: %w", err)
	}
	metrics.RowsFetched.WithLabelValues("settlement").Add(float64(len(fetched)))

	if p.cfg.Cache != nil && len(fetched) > 0 {
		if err := p.cfg.Cache.Put(ctx, fetched); err != nil {
			p.log.Warn("Failed to cache settlement transactions", "err", err)
		}
	}
	return append(cached, fetched...), nil
}

// settledTransactions returns the distinct settlement transactions attached to commitments.
func settledTransactions(commitments []domain.CommitmentEvent) []domain.SettlementTransaction {
	seen := make(map[string]struct{})
	var out []domain.SettlementTransaction
	for _, c := range commitments {
		if c.Settlement == nil {
			continue
		}
		h := domain.NormalizeHash(c.Settlement.Hash)
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		out = append(out, *c.Settlement)
	}
	return out
}

func degenerateReason(err error) string {
	switch {
	case errors.Is(err, decay.ErrZeroDecayWindow):
		return "zero_window"
	case errors.Is(err, decay.ErrInvertedDecayWindow):
		return "inverted_window"
	default:
		return "invalid"
	}
}
