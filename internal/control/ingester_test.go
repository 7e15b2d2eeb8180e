package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/vietddude/preconf-ingester/internal/core/config"
	"github.com/vietddude/preconf-ingester/internal/indexing/pipeline"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
	"github.com/vietddude/preconf-ingester/internal/infra/storage/memory"
)

// newEmptyIndexer serves an indexing service with no events.
func newEmptyIndexer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		var result any = []any{}
		if req.Method == "indexer_blockHeight" {
			result = 0
		}
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, sourceURL string) *config.AppConfig {
	t.Helper()
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	cfg.SourceServiceURL = sourceURL
	cfg.SecondaryServiceURL = ""
	cfg.StorageURI = "memory://"
	cfg.Redis.URL = ""
	cfg.PollIntervalSeconds = 1
	cfg.Server.Port = 0
	return cfg
}

func TestIngester_Lifecycle(t *testing.T) {
	srv := newEmptyIndexer(t)
	cfg := testConfig(t, srv.URL)
	store := memory.NewStore()

	ing, err := NewIngester(cfg, store)
	if err != nil {
		t.Fatalf("NewIngester failed: %v", err)
	}
	if len(ing.Loops()) != 1 {
		t.Fatalf("expected only the commitment loop, got %d", len(ing.Loops()))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := ing.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for ing.Loops()[0].Status().LastOutcome == "" {
		select {
		case <-deadline:
			t.Fatal("no cycle completed")
		case <-time.After(10 * time.Millisecond):
		}
	}
	if got := ing.Loops()[0].Status().LastOutcome; got != pipeline.OutcomeNoData {
		t.Errorf("expected no_data against an empty indexer, got %s (%s)", got, ing.Loops()[0].Status().LastError)
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := ing.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	cycles, _ := store.RecentCycles(context.Background(), 10)
	if len(cycles) == 0 {
		t.Error("expected journaled cycles")
	}
}

func TestIngester_BuilderEnabledWithSecondary(t *testing.T) {
	srv := newEmptyIndexer(t)
	cfg := testConfig(t, srv.URL)
	cfg.SecondaryServiceURL = srv.URL

	ing, err := NewIngester(cfg, memory.NewStore())
	if err != nil {
		t.Fatalf("NewIngester failed: %v", err)
	}
	if len(ing.Loops()) != 2 {
		t.Errorf("expected commitment and builder loops, got %d", len(ing.Loops()))
	}
}

func TestIngester_RejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t, "http://indexer.local")
	cfg.MergeKeyColumn = "not_a_column"

	if _, err := NewIngester(cfg, memory.NewStore()); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()

	store, err := OpenStore(ctx, "memory://", config.DatabaseConfig{}, false)
	if err != nil {
		t.Fatalf("memory store: %v", err)
	}
	if _, ok := store.(*memory.Store); !ok {
		t.Errorf("expected memory store, got %T", store)
	}

	if _, err := OpenStore(ctx, "mysql://localhost/db", config.DatabaseConfig{}, false); !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig for unsupported scheme, got %v", err)
	}

	path := filepath.Join(t.TempDir(), "nested", "preconf.duckdb")
	duck, err := OpenStore(ctx, "duckdb://"+path, config.DatabaseConfig{}, false)
	if err != nil {
		t.Fatalf("duckdb store: %v", err)
	}
	defer duck.Close()

	stats, err := duck.Stats(ctx, storage.Commitments)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Exists {
		t.Error("expected a fresh store to have no commitments table")
	}
}
