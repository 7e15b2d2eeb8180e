package control

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// fakeIndexer serves commitment events and settlement transactions over JSON-RPC.
type fakeIndexer struct {
	mu     sync.Mutex
	events map[string][]map[string]any
	txs    map[string]map[string]any
}

func (f *fakeIndexer) addCommitment(idx string, block int64, txHash string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events["OpenedCommitmentStored"] = append(f.events["OpenedCommitmentStored"], map[string]any{
		"commitmentIndex": idx, "block_number": block, "blockNumber": 5000 + block,
		"txnHash": txHash, "bid": "2000000000000000000", "bidder": "0xb1",
		"decayStartTimeStamp": 1000, "decayEndTimeStamp": 2000,
	})
	f.events["UnopenedCommitmentStored"] = append(f.events["UnopenedCommitmentStored"], map[string]any{
		"commitmentIndex": idx, "block_number": block, "commiter": "0xc1", "dispatchTimestamp": 1500,
	})
	f.events["CommitmentProcessed"] = append(f.events["CommitmentProcessed"], map[string]any{
		"commitmentIndex": idx, "block_number": block, "isSlash": false,
	})
	f.txs[txHash] = map[string]any{"hash": txHash, "block_number": 5001 + block, "timestamp": "0x6553f100", "status": "0x1"}
}

func (f *fakeIndexer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID     int64             `json:"id"`
		Method string            `json:"method"`
		Params []json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	var result any
	switch req.Method {
	case "indexer_queryEvents":
		var p struct {
			Event     string `json:"event"`
			FromBlock int64  `json:"fromBlock"`
		}
		_ = json.Unmarshal(req.Params[0], &p)
		rows := []map[string]any{}
		for _, ev := range f.events[p.Event] {
			if ev["block_number"].(int64) >= p.FromBlock {
				rows = append(rows, ev)
			}
		}
		result = rows
	case "indexer_searchTransactions":
		var p struct {
			Hashes []string `json:"hashes"`
		}
		_ = json.Unmarshal(req.Params[0], &p)
		rows := []map[string]any{}
		for _, h := range p.Hashes {
			if tx, ok := f.txs[h]; ok {
				rows = append(rows, tx)
			}
		}
		result = rows
	case "indexer_blockHeight":
		result = 1000
	default:
		result = []any{}
	}
	json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
}

func TestIngester_EndToEndDuckDB(t *testing.T) {
	idx := &fakeIndexer{events: map[string][]map[string]any{}, txs: map[string]map[string]any{}}
	for i := int64(1); i <= 3; i++ {
		idx.addCommitment(fmt.Sprint(i), 100+i, fmt.Sprintf("0x%02x", i))
	}
	srv := httptest.NewServer(idx)
	defer srv.Close()

	cfg := testConfig(t, srv.URL)
	cfg.StorageURI = "duckdb://" + filepath.Join(t.TempDir(), "preconf.duckdb")
	cfg.Builder.Enabled = new(bool)
	cfg.SecondaryServiceURL = srv.URL

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	store, err := OpenStore(ctx, cfg.StorageURI, cfg.Database, false)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}

	ing, err := NewIngester(cfg, store)
	if err != nil {
		t.Fatalf("NewIngester failed: %v", err)
	}
	if err := ing.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitRows := func(want int64) {
		t.Helper()
		deadline := time.After(10 * time.Second)
		for {
			stats, err := store.Stats(ctx, storage.Commitments)
			if err == nil && stats.Rows == want {
				return
			}
			select {
			case <-deadline:
				t.Fatalf("timed out waiting for %d commitments, have %+v (err %v)", want, stats, err)
			case <-time.After(50 * time.Millisecond):
			}
		}
	}

	waitRows(3)

	// A commitment arriving later is picked up by a following cycle.
	idx.addCommitment("4", 110, "0x04")
	waitRows(4)

	stats, err := store.Stats(ctx, storage.Commitments)
	if err != nil {
		t.Fatal(err)
	}
	if stats.MaxProgress == nil || *stats.MaxProgress != 110 {
		t.Errorf("expected progress 110, got %v", stats.MaxProgress)
	}
	txStats, err := store.Stats(ctx, storage.SettlementTxs)
	if err != nil {
		t.Fatal(err)
	}
	if txStats.Rows != 4 {
		t.Errorf("expected 4 settlement rows, got %d", txStats.Rows)
	}

	cancel()
	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := ing.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}
}
