// Package pipeline runs the incremental ingestion cycles: read progress, fetch,
// join, value, and merge into the table store, then sleep and repeat.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vietddude/preconf-ingester/internal/indexing/metrics"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// Cycle outcomes as journaled and exported.
const (
	OutcomeWritten = "written"
	OutcomeNoData  = "no_data"
	OutcomeFailed  = "failed"
)

// Result summarizes one finished cycle.
type Result struct {
	FromBlock int64
	Rows      int64
	NoData    bool
}

// Runner executes one ingestion cycle. It calls enter as it moves through
// the working states.
type Runner interface {
	Name() string
	RunCycle(ctx context.Context, enter func(State)) (Result, error)
}

// Status is a snapshot of a loop for health reporting.
type Status struct {
	Pipeline            string    `json:"pipeline"`
	Running             bool      `json:"running"`
	State               string    `json:"state"`
	StateSince          time.Time `json:"state_since,omitempty"`
	LastOutcome         string    `json:"last_outcome,omitempty"`
	LastStage           string    `json:"last_stage,omitempty"`
	LastError           string    `json:"last_error,omitempty"`
	LastCycleAt         time.Time `json:"last_cycle_at,omitempty"`
	FromBlock           int64     `json:"from_block"`
	RowsWritten         int64     `json:"rows_written"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
}

// Loop drives a Runner on a fixed interval. Cycles never overlap.
type Loop struct {
	runner   Runner
	interval time.Duration
	journal  storage.CycleJournal
	log      *slog.Logger

	running  atomic.Bool
	stop     chan struct{}
	stopOnce sync.Once

	mu     sync.RWMutex
	state  State
	last   Transition
	status Status
}

// NewLoop creates a loop. journal may be nil.
func NewLoop(runner Runner, interval time.Duration, journal storage.CycleJournal) *Loop {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Loop{
		runner:   runner,
		interval: interval,
		journal:  journal,
		log:      slog.With("component", "pipeline", "pipeline", runner.Name()),
		stop:     make(chan struct{}),
		state:    StateIdle,
		status:   Status{Pipeline: runner.Name(), State: StateIdle.String()},
	}
}

// Name returns the pipeline name.
func (l *Loop) Name() string { return l.runner.Name() }

// Start runs cycles until ctx is done or Stop is called.
func (l *Loop) Start(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return fmt.Errorf("pipeline %s already running", l.runner.Name())
	}
	defer l.running.Store(false)

	l.log.Info("Loop started", "interval", l.interval)
	for {
		_, _ = l.RunOnce(ctx)

		select {
		case <-ctx.Done():
			l.log.Info("Loop stopped", "reason", ctx.Err())
			return nil
		case <-l.stop:
			l.log.Info("Loop stopped")
			return nil
		case <-time.After(l.interval):
		}
	}
}

// Stop ends the loop at the next sleep boundary.
func (l *Loop) Stop() error {
	l.stopOnce.Do(func() { close(l.stop) })
	return nil
}

// Status returns the current loop snapshot.
func (l *Loop) Status() Status {
	l.mu.RLock()
	defer l.mu.RUnlock()
	s := l.status
	s.Running = l.running.Load()
	s.State = l.state.String()
	s.StateSince = l.last.Timestamp
	return s
}

// RunOnce executes a single cycle and leaves the loop in Sleeping.
// A panic inside the cycle is recovered and reported as a failure.
func (l *Loop) RunOnce(ctx context.Context) (res Result, err error) {
	name := l.runner.Name()
	started := time.Now()
	if l.currentState() == StateSleeping {
		l.enter(StateIdle)
	}

	defer func() {
		if r := recover(); r != nil {
			err = stageErr(name, stageOf(l.currentState()), fmt.Errorf("%w: %v", ErrPanic, r))
		}
		l.enter(StateSleeping)
		l.finish(ctx, started, res, err)
	}()

	return l.runner.RunCycle(ctx, l.enter)
}

func (l *Loop) currentState() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

func (l *Loop) enter(to State) {
	l.mu.Lock()
	from := l.state
	if from == to {
		l.mu.Unlock()
		return
	}
	t := NewTransition(from, to)
	l.state = to
	l.last = t
	l.mu.Unlock()

	if !t.IsValid() {
		l.log.Warn("Unexpected state transition", "from", from, "to", to, "err", ErrInvalidTransition)
	}
	metrics.LoopState.WithLabelValues(l.runner.Name()).Set(float64(to))
	l.log.Debug("State changed", "from", from, "to", to, "desc", StateDescription(to))
}

func (l *Loop) finish(ctx context.Context, started time.Time, res Result, err error) {
	name := l.runner.Name()
	finished := time.Now()
	rec := storage.CycleRecord{
		ID:          uuid.NewString(),
		Pipeline:    name,
		FromBlock:   res.FromBlock,
		RowsWritten: res.Rows,
		StartedAt:   started,
		FinishedAt:  finished,
	}

	switch {
	case err != nil:
		rec.Outcome = OutcomeFailed
		rec.Error = err.Error()
		var se *StageError
		if errors.As(err, &se) {
			rec.Stage = string(se.Stage)
		}
		metrics.StageFailures.WithLabelValues(name, rec.Stage).Inc()
		l.log.Error("Cycle failed", "cycle", rec.ID, "stage", rec.Stage, "from_block", res.FromBlock, "err", err)
	case res.NoData:
		rec.Outcome = OutcomeNoData
		l.log.Info("No new data", "from_block", res.FromBlock)
	default:
		rec.Outcome = OutcomeWritten
		l.log.Info("Cycle complete",
			"cycle", rec.ID,
			"from_block", res.FromBlock,
			"rows", res.Rows,
			"duration", finished.Sub(started),
		)
	}

	metrics.CyclesTotal.WithLabelValues(name, rec.Outcome).Inc()
	metrics.CycleDuration.WithLabelValues(name).Observe(finished.Sub(started).Seconds())

	l.mu.Lock()
	l.status.LastOutcome = rec.Outcome
	l.status.LastStage = rec.Stage
	l.status.LastError = rec.Error
	l.status.LastCycleAt = finished
	l.status.FromBlock = res.FromBlock
	if rec.Outcome == OutcomeFailed {
		l.status.ConsecutiveFailures++
	} else {
		l.status.ConsecutiveFailures = 0
		l.status.RowsWritten += res.Rows
	}
	l.mu.Unlock()

	if l.journal == nil {
		return
	}
	// The journal outlives a cancelled cycle.
	jctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if jerr := l.journal.RecordCycle(jctx, rec); jerr != nil {
		l.log.Warn("Failed to journal cycle", "cycle", rec.ID, "err", jerr)
	}
}
