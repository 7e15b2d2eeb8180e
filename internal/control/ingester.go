// Package control wires configuration, upstream clients, the table store and
// the pipeline loops into a runnable service.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/vietddude/preconf-ingester/internal/core/config"
	"github.com/vietddude/preconf-ingester/internal/core/progress"
	"github.com/vietddude/preconf-ingester/internal/core/worker"
	"github.com/vietddude/preconf-ingester/internal/indexing/health"
	"github.com/vietddude/preconf-ingester/internal/indexing/pipeline"
	"github.com/vietddude/preconf-ingester/internal/infra/indexer"
	redisclient "github.com/vietddude/preconf-ingester/internal/infra/redis"
	"github.com/vietddude/preconf-ingester/internal/infra/relay"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/provider"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/routing"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// Ingester is the main application struct that manages the pipeline lifecycle.
type Ingester struct {
	cfg          *config.AppConfig
	store        storage.Store
	loops        []*pipeline.Loop
	providers    []provider.Provider
	pruner       *worker.Pruner
	healthServer *health.Server
	redisClient  *redisclient.Client
	log          *slog.Logger
	wg           sync.WaitGroup
}

// NewIngester creates an Ingester over an open store. The store is owned by
// the Ingester and closed by Stop.
func NewIngester(cfg *config.AppConfig, store storage.Store) (*Ingester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !storage.Commitments.HasColumn(cfg.MergeKeyColumn) {
		return nil, fmt.Errorf("merge key %q: %w", cfg.MergeKeyColumn, storage.ErrUnknownColumn)
	}

	log := slog.With("component", "ingester")
	retry := routing.DefaultRetryConfig
	if cfg.Indexer.MaxAttempts > 0 {
		retry.MaxAttempts = cfg.Indexer.MaxAttempts
	}

	ing := &Ingester{cfg: cfg, store: store, log: log}

	// 1. Indexing service clients
	sourceProviders := ing.rpcProviders("source", cfg.SourceServiceURL, cfg.Indexer.Fallbacks, cfg.FetchTimeout())
	source := indexer.NewClient("source", sourceProviders, retry)

	var secondary *indexer.Client
	if cfg.SecondaryServiceURL != "" {
		secondary = indexer.NewClient("secondary",
			ing.rpcProviders("secondary", cfg.SecondaryServiceURL, nil, cfg.FetchTimeout()), retry)
	}

	// 2. Optional settlement cache
	var cache pipeline.TxCache
	if cfg.Redis.URL != "" {
		client, err := redisclient.NewClient(cfg.Redis)
		if err != nil {
			log.Warn("Failed to connect to Redis, settlement cache disabled", "err", err)
		} else {
			ing.redisClient = client
			cache = redisclient.NewTxCache(client, cfg.Redis.TTL)
		}
	}

	// 3. Commitment pipeline
	commitCfg := pipeline.CommitmentConfig{
		Events:         source,
		Cache:          cache,
		Progress:       progress.NewTracker(store, storage.Commitments.Progress),
		Writer:         store,
		MergeKey:       cfg.MergeKeyColumn,
		FetchTimeout:   cfg.FetchTimeout(),
		LookbackBlocks: cfg.Lookback(),
	}
	if secondary != nil {
		commitCfg.Transactions = secondary
	}
	ing.loops = append(ing.loops, pipeline.NewLoop(
		pipeline.NewCommitmentPipeline(commitCfg), cfg.PollInterval(), store))

	// 4. Builder payload pipeline
	if cfg.BuilderEnabled() {
		b := cfg.Builder
		relays := relay.NewClient(b.Relays, b.PageLimit, b.FetchTimeout(), retry)
		builder := pipeline.NewBuilderPipeline(pipeline.BuilderConfig{
			Payloads:      relays,
			Blocks:        secondary,
			Totals:        store,
			Progress:      progress.NewTracker(store, storage.BuilderBlocks.Progress),
			Writer:        store,
			Network:       b.Network,
			WindowBlocks:  b.WindowBlocks,
			RefreshBlocks: b.Refresh(),
			FetchTimeout:  b.FetchTimeout(),
		})
		ing.loops = append(ing.loops, pipeline.NewLoop(builder, b.PollInterval(), store))
	} else {
		log.Info("Builder pipeline disabled")
	}

	// 5. Journal retention
	if retention := cfg.JournalRetention(); retention > 0 {
		ing.pruner = worker.NewPruner(retention, store)
	}

	// 6. Health
	sources := make([]health.StatusSource, len(ing.loops))
	for i, l := range ing.loops {
		sources[i] = l
	}
	monitor := health.NewMonitor(sources, ing.providers, health.DefaultThresholds())
	ing.healthServer = health.NewServer(monitor, cfg.Server.Port)

	return ing, nil
}

func (i *Ingester) rpcProviders(name, primary string, fallbacks []config.ProviderConfig, timeout time.Duration) []provider.RPCProvider {
	out := []provider.RPCProvider{provider.NewHTTPProvider(name, primary, timeout)}
	for n, f := range fallbacks {
		pname := f.Name
		if pname == "" {
			pname = fmt.Sprintf("%s-fallback-%d", name, n)
		}
		out = append(out, provider.NewHTTPProvider(pname, f.URL, timeout))
	}
	for _, p := range out {
		i.providers = append(i.providers, p)
	}
	return out
}

// Loops returns the configured pipeline loops.
func (i *Ingester) Loops() []*pipeline.Loop {
	return i.loops
}

// Start starts the health server and every pipeline loop. It returns immediately.
func (i *Ingester) Start(ctx context.Context) error {
	go func() {
		if err := i.healthServer.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			i.log.Error("Health server failed", "err", err)
		}
	}()

	for _, l := range i.loops {
		i.log.Info("Starting pipeline", "pipeline", l.Name())
		i.wg.Add(1)
		go func(l *pipeline.Loop) {
			defer i.wg.Done()
			if err := l.Start(ctx); err != nil {
				i.log.Error("Pipeline failed", "pipeline", l.Name(), "err", err)
			}
		}(l)
	}

	if i.pruner != nil {
		go i.pruner.Start(ctx)
	}
	return nil
}

// Stop stops the loops at their next sleep boundary and releases resources.
func (i *Ingester) Stop(ctx context.Context) error {
	i.log.Info("Stopping ingester...")

	for _, l := range i.loops {
		l.Stop()
	}

	done := make(chan struct{})
	go func() {
		i.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		i.log.Warn("Timed out waiting for pipelines to stop")
	}

	for _, p := range i.providers {
		_ = p.Close()
	}
	if i.redisClient != nil {
		if err := i.redisClient.Close(); err != nil {
			i.log.Warn("Failed to close Redis", "err", err)
		}
	}

	var errs []error
	if err := i.healthServer.Stop(ctx); err != nil {
		errs = append(errs, fmt.Errorf("health server: %w", err))
	}
	if err := i.store.Close(); err != nil {
		errs = append(errs, fmt.Errorf("store: %w", err))
	}
	return errors.Join(errs...)
}
