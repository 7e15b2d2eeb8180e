// Package indexer is the client for the blockchain indexing service.
//
// The service speaks JSON-RPC 2.0 over HTTP:
//
//	indexer_queryEvents        [{"event": name, "fromBlock": n}]  -> [event...]
//	indexer_blockHeight        []                                  -> n
//	indexer_getBlocks          [{"fromBlock": n, "toBlock": m}]    -> [block...]   (toBlock exclusive)
//	indexer_searchTransactions [{"hashes": [h...]}]                -> [tx...]
package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/provider"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/routing"
)

const (
	methodQueryEvents        = "indexer_queryEvents"
	methodBlockHeight        = "indexer_blockHeight"
	methodGetBlocks          = "indexer_getBlocks"
	methodSearchTransactions = "indexer_searchTransactions"

	// maxHashesPerCall bounds one searchTransactions request.
	maxHashesPerCall = 500
)

var (
	blockColumns = []string{"number", "timestamp", "hash"}
	txColumns    = []string{"hash", "block_number"}
)

// Client queries the indexing service through a set of failover providers.
type Client struct {
	name      string
	providers []provider.RPCProvider
	retry     routing.RetryConfig
	log       *slog.Logger
}

// NewClient creates a client. Providers are tried in order.
func NewClient(name string, providers []provider.RPCProvider, retry routing.RetryConfig) *Client {
	return &Client{
		name:      name,
		providers: providers,
		retry:     retry,
		log:       slog.With("component", "indexer", "service", name),
	}
}

func (c *Client) call(ctx context.Context, method string, params ...any) (json.RawMessage, error) {
	result, err := routing.CallWithFailover(ctx, c.providers, method, params, c.retry)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", c.name, method, err)
	}
	return result, nil
}

// QueryEvents returns the raw rows of stream at or above fromBlock.
func (c *Client) QueryEvents(ctx context.Context, stream domain.Stream, fromBlock int64) (RowSet, error) {
	result, err := c.call(ctx, methodQueryEvents, map[string]any{
		"event":     stream.Event,
		"fromBlock": fromBlock,
	})
	if err != nil {
		return nil, err
	}
	return parseRowSet(stream.Event, result)
}

// BlockHeight returns the latest block the service has indexed.
func (c *Client) BlockHeight(ctx context.Context) (int64, error) {
	result, err := c.call(ctx, methodBlockHeight)
	if err != nil {
		return 0, err
	}
	var height domain.Quantity
	if err := json.Unmarshal(result, &height); err != nil {
		return 0, &SchemaError{Source: methodBlockHeight, Row: -1, Err: err}
	}
	return height.Int64(), nil
}

// Blocks returns execution blocks in [from, to).
func (c *Client) Blocks(ctx context.Context, from, to int64) ([]domain.ExecutionBlock, error) {
	if to <= from {
		return nil, nil
	}
	result, err := c.call(ctx, methodGetBlocks, map[string]any{
		"fromBlock": from,
		"toBlock":   to,
	})
	if err != nil {
		return nil, err
	}
	rows, err := parseRowSet(methodGetBlocks, result)
	if err != nil {
		return nil, err
	}
	return Decode[domain.ExecutionBlock](methodGetBlocks, rows, blockColumns)
}

// SearchTransactions looks up transactions by hash. Unknown hashes are
// simply absent from the result.
func (c *Client) SearchTransactions(ctx context.Context, hashes []string) ([]domain.SettlementTransaction, error) {
	var out []domain.SettlementTransaction
	for start := 0; start < len(hashes); start += maxHashesPerCall {
		end := min(start+maxHashesPerCall, len(hashes))

		result, err := c.call(ctx, methodSearchTransactions, map[string]any{"hashes": hashes[start:end]})
		if err != nil {
			return nil, err
		}
		rows, err := parseRowSet(methodSearchTransactions, result)
		if err != nil {
			return nil, err
		}
		txs, err := Decode[domain.SettlementTransaction](methodSearchTransactions, rows, txColumns)
		if err != nil {
			return nil, err
		}
		out = append(out, txs...)
	}

	c.log.Debug("Searched transactions", "requested", len(hashes), "found", len(out))
	return out, nil
}
