package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/indexing/metrics"
	"github.com/vietddude/preconf-ingester/internal/infra/indexer"
)

// EventSource queries commitment event streams.
type EventSource interface {
	QueryEvents(ctx context.Context, stream domain.Stream, fromBlock int64) (indexer.RowSet, error)
	BlockHeight(ctx context.Context) (int64, error)
}

// BlockSource returns execution blocks in [from, to).
type BlockSource interface {
	Blocks(ctx context.Context, from, to int64) ([]domain.ExecutionBlock, error)
}

// TxSource looks up settlement transactions by hash.
type TxSource interface {
	SearchTransactions(ctx context.Context, hashes []string) ([]domain.SettlementTransaction, error)
}

// PayloadSource lists payloads delivered by the relays of a network.
type PayloadSource interface {
	ProposerPayloads(ctx context.Context, network string) ([]domain.RelayPayload, error)
}

// TxCache holds settlement transactions already looked up.
type TxCache interface {
	Get(ctx context.Context, hashes []string) ([]domain.SettlementTransaction, []string, error)
	Put(ctx context.Context, txs []domain.SettlementTransaction) error
}

// withTimeout runs fn under a per-call deadline. A zero timeout disables it.
// Hitting the deadline yields an error matching ErrFetchTimeout.
func withTimeout[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, err := fn(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
		return v, fmt.Errorf("%w after %s: %w", ErrFetchTimeout, timeout, err)
	}
	return v, err
}

// fetchStream queries one event stream from fromBlock and decodes it into T.
// An empty stream is an empty slice, not an error.
func fetchStream[T any](
	ctx context.Context,
	pipeline string,
	source EventSource,
	stream domain.Stream,
	fromBlock int64,
	timeout time.Duration,
) ([]T, error) {
	rows, err := withTimeout(ctx, timeout, func(ctx context.Context) (indexer.RowSet, error) {
		return source.QueryEvents(ctx, stream, fromBlock)
	})
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(pipeline, stream.Kind.String(), fetchErrorKind(err)).Inc()
		return nil, fmt.Errorf("query %s: %w", stream.Event, err)
	}

	out, err := indexer.Decode[T](stream.Event, rows, stream.Columns)
	if err != nil {
		metrics.FetchErrorsTotal.WithLabelValues(pipeline, stream.Kind.String(), fetchErrorKind(err)).Inc()
		return nil, err
	}
	metrics.RowsFetched.WithLabelValues(stream.Kind.String()).Add(float64(len(out)))
	return out, nil
}

func fetchErrorKind(err error) string {
	switch {
	case errors.Is(err, ErrFetchTimeout):
		return "timeout"
	case errors.Is(err, indexer.ErrSchemaDrift):
		return "schema"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "transport"
	}
}
