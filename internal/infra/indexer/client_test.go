package indexer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/preconf-ingester/internal/core/domain"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/provider"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/routing"
)

type rpcRequest struct {
	Method string            `json:"method"`
	Params []json.RawMessage `json:"params"`
	ID     int64             `json:"id"`
}

func newTestClient(t *testing.T, handle func(req rpcRequest) any) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": handle(req)})
	}))
	t.Cleanup(server.Close)

	p := provider.NewHTTPProvider("test", server.URL, 5*time.Second)
	retry := routing.RetryConfig{MaxAttempts: 1, InitialDelay: time.Millisecond}
	return NewClient("test", []provider.RPCProvider{p}, retry)
}

func TestQueryEventsDecodesStoredEvents(t *testing.T) {
	c := newTestClient(t, func(req rpcRequest) any {
		if req.Method != methodQueryEvents {
			t.Errorf("method = %s", req.Method)
		}
		var q struct {
			Event     string `json:"event"`
			FromBlock int64  `json:"fromBlock"`
		}
		_ = json.Unmarshal(req.Params[0], &q)
		if q.Event != "OpenedCommitmentStored" || q.FromBlock != 100 {
			t.Errorf("unexpected query %+v", q)
		}
		return []map[string]any{{
			"commitmentIndex":     "0xAB",
			"block_number":        101,
			"blockNumber":         "0x10",
			"txnHash":             "deadbeef",
			"bid":                 "2000000000000000000",
			"bidder":              "0x01",
			"decayStartTimeStamp": 1000,
			"decayEndTimeStamp":   2000,
			"bidHash":             "0xbid",
		}}
	})

	rows, err := c.QueryEvents(context.Background(), domain.StoredStream, 100)
	if err != nil {
		t.Fatalf("QueryEvents: %v", err)
	}
	events, err := Decode[domain.StoredEvent]("stored", rows, domain.StoredStream.Columns)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	e := events[0]
	if e.BlockNumber != 101 || e.SettlementBlockNumber != 16 || e.Bid.String() != "2000000000000000000" || e.BidHash != "0xbid" {
		t.Errorf("unexpected event %+v", e)
	}
}

func TestQueryEventsEmptyResult(t *testing.T) {
	c := newTestClient(t, func(req rpcRequest) any { return nil })

	rows, err := c.QueryEvents(context.Background(), domain.ProcessedStream, 0)
	if err != nil {
		t.Fatalf("null result should be an empty row set, got %v", err)
	}
	if rows == nil || len(rows) != 0 {
		t.Errorf("rows = %v", rows)
	}
}

func TestQueryEventsNonArrayResult(t *testing.T) {
	c := newTestClient(t, func(req rpcRequest) any { return map[string]any{"oops": true} })

	_, err := c.QueryEvents(context.Background(), domain.ProcessedStream, 0)
	if !errors.Is(err, ErrSchemaDrift) {
		t.Fatalf("err = %v, want schema drift", err)
	}
}

func TestDecodeMissingField(t *testing.T) {
	rows := RowSet{
		json.RawMessage(`{"commitmentIndex":"1","block_number":1,"isSlash":false}`),
		json.RawMessage(`{"commitmentIndex":"2","block_number":2,"isSlash":null}`),
	}
	_, err := Decode[domain.ProcessedEvent]("processed", rows, domain.ProcessedStream.Columns)

	var se *SchemaError
	if !errors.As(err, &se) {
		t.Fatalf("err = %v, want *SchemaError", err)
	}
	if se.Row != 1 || se.Field != "isSlash" {
		t.Errorf("schema error = %+v", se)
	}
	if !errors.Is(err, ErrSchemaDrift) {
		t.Error("SchemaError should match ErrSchemaDrift")
	}
}

func TestDecodeWrongType(t *testing.T) {
	rows := RowSet{json.RawMessage(`{"commitmentIndex":"1","block_number":1,"isSlash":"yes"}`)}
	_, err := Decode[domain.ProcessedEvent]("processed", rows, domain.ProcessedStream.Columns)

	var se *SchemaError
	if !errors.As(err, &se) || se.Field != "isSlash" {
		t.Fatalf("err = %v, want type error on isSlash", err)
	}
}

func TestBlockHeight(t *testing.T) {
	c := newTestClient(t, func(req rpcRequest) any { return "0x64" })

	h, err := c.BlockHeight(context.Background())
	if err != nil || h != 100 {
		t.Fatalf("BlockHeight = %d, %v", h, err)
	}
}

func TestBlocks(t *testing.T) {
	c := newTestClient(t, func(req rpcRequest) any {
		return []map[string]any{
			{"number": 10, "timestamp": 1700000000, "hash": "0xaa", "base_fee_per_gas": "0x3b9aca00", "extra_data": "0x"},
		}
	})

	blocks, err := c.Blocks(context.Background(), 10, 11)
	if err != nil {
		t.Fatal(err)
	}
	if len(blocks) != 1 || blocks[0].Number != 10 || blocks[0].BaseFeePerGas.String() != "1000000000" {
		t.Errorf("blocks = %+v", blocks)
	}

	if got, err := c.Blocks(context.Background(), 5, 5); err != nil || got != nil {
		t.Errorf("empty range = %v, %v", got, err)
	}
}

func TestSearchTransactionsChunks(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, func(req rpcRequest) any {
		calls.Add(1)
		var q struct {
			Hashes []string `json:"hashes"`
		}
		_ = json.Unmarshal(req.Params[0], &q)
		if len(q.Hashes) > maxHashesPerCall {
			t.Errorf("request carried %d hashes", len(q.Hashes))
		}
		return []map[string]any{{"hash": q.Hashes[0], "block_number": 7}}
	})

	hashes := make([]string, maxHashesPerCall+1)
	for i := range hashes {
		hashes[i] = fmt.Sprintf("0x%064x", i)
	}

	txs, err := c.SearchTransactions(context.Background(), hashes)
	if err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 || len(txs) != 2 {
		t.Errorf("calls = %d, txs = %d", calls.Load(), len(txs))
	}
}
