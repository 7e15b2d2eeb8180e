package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// Pruner deletes cycle journal entries older than the retention period.
type Pruner struct {
	retention time.Duration
	journal   storage.CycleJournal
	log       *slog.Logger
}

// NewPruner creates a new Pruner worker.
func NewPruner(retention time.Duration, journal storage.CycleJournal) *Pruner {
	return &Pruner{
		retention: retention,
		journal:   journal,
		log:       slog.With("component", "pruner"),
	}
}

// Start runs the pruner loop.
func (p *Pruner) Start(ctx context.Context) {
	if p.retention <= 0 {
		return // Retention disabled
	}

	// Check every 10% of the retention period, between 1 minute and 1 hour.
	interval := min(p.retention/10, 1*time.Hour)
	interval = max(interval, 1*time.Minute)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial prune
	p.Prune(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Prune(ctx)
		}
	}
}

// Prune removes expired journal entries once.
func (p *Pruner) Prune(ctx context.Context) {
	cutoff := time.Now().Add(-p.retention)

	n, err := p.journal.PruneCycles(ctx, cutoff)
	if err != nil {
		p.log.Error("Failed to prune cycle journal", "err", err)
		return
	}
	if n > 0 {
		p.log.Info("Pruned cycle journal", "deleted", n, "before", cutoff)
	}
}
