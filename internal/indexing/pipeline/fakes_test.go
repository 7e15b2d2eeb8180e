package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/infra/indexer"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// =============================================================================
// Fakes
// =============================================================================

type fakeEvents struct {
	mu     sync.Mutex
	rows   map[string]indexer.RowSet
	errs   map[string]error
	hang   map[string]bool
	height int64
	froms  []int64
	// hangHeight blocks BlockHeight until its context ends.
	hangHeight bool
}

func newFakeEvents() *fakeEvents {
	return &fakeEvents{
		rows: make(map[string]indexer.RowSet),
		errs: make(map[string]error),
		hang: make(map[string]bool),
	}
}

func (f *fakeEvents) QueryEvents(ctx context.Context, stream domain.Stream, from int64) (indexer.RowSet, error) {
	f.mu.Lock()
	if stream.Kind == domain.StreamEncryptedStored {
		f.froms = append(f.froms, from)
	}
	rows, err, hang := f.rows[stream.Event], f.errs[stream.Event], f.hang[stream.Event]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return rows, err
}

func (f *fakeEvents) BlockHeight(ctx context.Context) (int64, error) {
	if f.hangHeight {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return f.height, nil
}

func (f *fakeEvents) lastFrom() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.froms) == 0 {
		return -1
	}
	return f.froms[len(f.froms)-1]
}

func (f *fakeEvents) add(stream domain.Stream, row string) {
	f.rows[stream.Event] = append(f.rows[stream.Event], json.RawMessage(row))
}

// addCommitment registers one commitment across all three streams.
func (f *fakeEvents) addCommitment(idx string, block, settlementBlock int64, txHash string, bid string, start, end, dispatch int64) {
	f.add(domain.StoredStream, fmt.Sprintf(
		`{"commitmentIndex":%q,"block_number":%d,"blockNumber":%d,"txnHash":%q,"bid":%q,"bidder":"0xB1DDER","decayStartTimeStamp":%d,"decayEndTimeStamp":%d}`,
		idx, block, settlementBlock, txHash, bid, start, end,
	))
	f.add(domain.EncryptedStoredStream, fmt.Sprintf(
		`{"commitmentIndex":%q,"block_number":%d,"commiter":"0xC0FFEE","dispatchTimestamp":%d}`,
		idx, block, dispatch,
	))
	f.add(domain.ProcessedStream, fmt.Sprintf(
		`{"commitmentIndex":%q,"block_number":%d,"isSlash":false}`,
		idx, block,
	))
}

type fakeTxSource struct {
	txs    map[string]domain.SettlementTransaction
	err    error
	called [][]string
}

func (f *fakeTxSource) SearchTransactions(ctx context.Context, hashes []string) ([]domain.SettlementTransaction, error) {
	f.called = append(f.called, hashes)
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.SettlementTransaction
	for _, h := range hashes {
		if tx, ok := f.txs[h]; ok {
			out = append(out, tx)
		}
	}
	return out, nil
}

type fakeCache struct {
	entries map[string]domain.SettlementTransaction
	getErr  error
	puts    int
}

func (c *fakeCache) Get(ctx context.Context, hashes []string) ([]domain.SettlementTransaction, []string, error) {
	if c.getErr != nil {
		return nil, hashes, c.getErr
	}
	var (
		found   []domain.SettlementTransaction
		missing []string
	)
	for _, h := range hashes {
		if tx, ok := c.entries[h]; ok {
			found = append(found, tx)
		} else {
			missing = append(missing, h)
		}
	}
	return found, missing, nil
}

func (c *fakeCache) Put(ctx context.Context, txs []domain.SettlementTransaction) error {
	for _, tx := range txs {
		c.entries[tx.Hash] = tx
	}
	c.puts++
	return nil
}

// flakyWriter fails the first n writes, then delegates.
type flakyWriter struct {
	storage.TableWriter
	failures int
}

var errDiskFull = errors.New("disk full")

func (w *flakyWriter) Write(ctx context.Context, schema storage.Schema, rows []storage.Row, mergeKey string) error {
	if w.failures > 0 {
		w.failures--
		return errDiskFull
	}
	return w.TableWriter.Write(ctx, schema, rows, mergeKey)
}

type fakePayloads struct {
	payloads []domain.RelayPayload
	err      error
}

func (f *fakePayloads) ProposerPayloads(ctx context.Context, network string) ([]domain.RelayPayload, error) {
	return f.payloads, f.err
}

type fakeBlocks struct {
	ranges [][2]int64
}

func (f *fakeBlocks) Blocks(ctx context.Context, from, to int64) ([]domain.ExecutionBlock, error) {
	f.ranges = append(f.ranges, [2]int64{from, to})
	var out []domain.ExecutionBlock
	for n := from; n < to; n++ {
		out = append(out, domain.ExecutionBlock{
			Number:    domain.Quantity(n),
			Timestamp: domain.Quantity(1700000000 + n*12),
			Hash:      fmt.Sprintf("0x%064x", n),
			GasUsed:   15000000,
			GasLimit:  30000000,
			Miner:     "0x0000000000000000000000000000000000000001",
		})
	}
	return out, nil
}
