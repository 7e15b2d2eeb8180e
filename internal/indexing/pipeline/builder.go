package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/core/progress"
	"github.com/vietddude/preconf-ingester/internal/indexing/join"
	"github.com/vietddude/preconf-ingester/internal/indexing/metrics"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// BuilderPipelineName is the name of the builder payload pipeline.
const BuilderPipelineName = "builder"

// BuilderConfig wires the builder payload pipeline.
type BuilderConfig struct {
	Payloads     PayloadSource
	Blocks       BlockSource
	Totals       storage.CommitmentReader // nil leaves had_preconf false
	Progress     *progress.Tracker
	Writer       storage.TableWriter
	Network      string
	WindowBlocks int
	// RefreshBlocks re-merges stored blocks this far below the progress
	// block so had_preconf picks up commitments processed after the block.
	RefreshBlocks int
	FetchTimeout  time.Duration
}

// BuilderPipeline ingests relay-delivered payloads joined with execution blocks.
type BuilderPipeline struct {
	cfg BuilderConfig
	log *slog.Logger
}

// NewBuilderPipeline creates the builder payload pipeline.
func NewBuilderPipeline(cfg BuilderConfig) *BuilderPipeline {
	if cfg.WindowBlocks <= 0 {
		cfg.WindowBlocks = 300
	}
	return &BuilderPipeline{
		cfg: cfg,
		log: slog.With("component", "pipeline", "pipeline", BuilderPipelineName, "network", cfg.Network),
	}
}

// Name implements Runner.
func (p *BuilderPipeline) Name() string { return BuilderPipelineName }

// RunCycle implements Runner.
func (p *BuilderPipeline) RunCycle(ctx context.Context, enter func(State)) (Result, error) {
	schema := storage.BuilderBlocks

	from, err := p.cfg.Progress.NextBlock(ctx, schema.Table)
	if err != nil {
		return Result{}, stageErr(BuilderPipelineName, StageProgress, err)
	}
	res := Result{FromBlock: from}
	metrics.ProgressBlock.WithLabelValues(schema.Table).Set(float64(from))

	enter(StateFetching)
	payloads, err := withTimeout(ctx, p.cfg.FetchTimeout, func(ctx context.Context) ([]domain.RelayPayload, error) {
		return p.cfg.Payloads.ProposerPayloads(ctx, p.cfg.Network)
	})
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(BuilderPipelineName, "relay", fetchErrorKind(err)).Inc()
		return res, stageErr(BuilderPipelineName, StageFetch, err)
	}
	metrics.RowsFetched.WithLabelValues("relay").Add(float64(len(payloads)))

	start := from
	if p.cfg.RefreshBlocks > 0 {
		start = max(0, from-int64(p.cfg.RefreshBlocks))
	}
	payloads, lo, hi := windowPayloads(payloads, start, p.cfg.WindowBlocks)
	if len(payloads) == 0 {
		res.NoData = true
		return res, nil
	}

	blocks, err := withTimeout(ctx, p.cfg.FetchTimeout, func(ctx context.Context) ([]domain.ExecutionBlock, error) {
		return p.cfg.Blocks.Blocks(ctx, lo, hi+1)
	})
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(BuilderPipelineName, "blocks", fetchErrorKind(err)).Inc()
		return res, stageErr(BuilderPipelineName, StageFetch, fmt.Errorf("blocks [%d, %d): %w", lo, hi+1, err))
	}
	metrics.RowsFetched.WithLabelValues("blocks").Add(float64(len(blocks)))

	enter(StateJoining)
	joined := join.BlockPayloads(blocks, payloads)
	totals := map[int64]domain.BlockCommitmentTotals{}
	if p.cfg.Totals != nil {
		totals, err = p.cfg.Totals.BlockTotals(ctx, lo, hi)
		if err != nil {
			return res, stageErr(BuilderPipelineName, StageJoin, fmt.Errorf("commitment totals: %w", err))
		}
	}

	enter(StateComputing)
	rows := join.BuilderPayloads(joined, totals)
	if len(rows) == 0 {
		res.NoData = true
		return res, nil
	}

	enter(StateWriting)
	out := storage.BuilderPayloadRows(rows)
	if err := p.cfg.Writer.Write(ctx, schema, out, schema.MergeKey); err != nil {
		return res, stageErr(BuilderPipelineName, StageWrite, err)
	}
	metrics.RowsWritten.WithLabelValues(schema.Table).Add(float64(len(out)))
	res.Rows = int64(len(out))
	return res, nil
}

// windowPayloads keeps payloads at or above from, limited to the highest
// window distinct block numbers, and returns the block range they span.
func windowPayloads(payloads []domain.RelayPayload, from int64, window int) ([]domain.RelayPayload, int64, int64) {
	seen := make(map[int64]struct{})
	var numbers []int64
	for _, p := range payloads {
		if p.BlockNumber < from {
			continue
		}
		if _, ok := seen[p.BlockNumber]; !ok {
			seen[p.BlockNumber] = struct{}{}
			numbers = append(numbers, p.BlockNumber)
		}
	}
	if len(numbers) == 0 {
		return nil, 0, 0
	}

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	if len(numbers) > window {
		numbers = numbers[len(numbers)-window:]
	}
	lo, hi := numbers[0], numbers[len(numbers)-1]

	out := make([]domain.RelayPayload, 0, len(payloads))
	for _, p := range payloads {
		if p.BlockNumber >= lo && p.BlockNumber <= hi {
			out = append(out, p)
		}
	}
	return out, lo, hi
}
