package pipeline

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/vietddude/preconf-ingester/internal/infra/storage"
	"github.com/vietddude/preconf-ingester/internal/infra/storage/memory"
)

type stubRunner struct {
	name  string
	calls atomic.Int32
	run   func(ctx context.Context, enter func(State)) (Result, error)
}

func (r *stubRunner) Name() string { return r.name }

func (r *stubRunner) RunCycle(ctx context.Context, enter func(State)) (Result, error) {
	r.calls.Add(1)
	return r.run(ctx, enter)
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		name     string
		from     State
		to       State
		expected bool
	}{
		{"idle to fetching", StateIdle, StateFetching, true},
		{"fetching to joining", StateFetching, StateJoining, true},
		{"fetching to sleeping", StateFetching, StateSleeping, true},
		{"joining to computing", StateJoining, StateComputing, true},
		{"computing to writing", StateComputing, StateWriting, true},
		{"writing to sleeping", StateWriting, StateSleeping, true},
		{"sleeping to idle", StateSleeping, StateIdle, true},
		{"idle to writing", StateIdle, StateWriting, false},
		{"fetching to writing", StateFetching, StateWriting, false},
		{"writing to fetching", StateWriting, StateFetching, false},
		{"sleeping to fetching", StateSleeping, StateFetching, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CanTransition(tt.from, tt.to); got != tt.expected {
				t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.expected)
			}
			if got := NewTransition(tt.from, tt.to).IsValid(); got != tt.expected {
				t.Errorf("IsValid = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestLoopRunOnce_Journal(t *testing.T) {
	store := memory.NewStore()
	runner := &stubRunner{name: "test", run: func(ctx context.Context, enter func(State)) (Result, error) {
		enter(StateFetching)
		enter(StateJoining)
		enter(StateComputing)
		enter(StateWriting)
		return Result{FromBlock: 10, Rows: 3}, nil
	}}
	loop := NewLoop(runner, time.Second, store)

	before := time.Now()
	if _, err := loop.RunOnce(context.Background()); err != nil {
		t.Fatal(err)
	}

	st := loop.Status()
	if st.State != StateSleeping.String() {
		t.Errorf("expected sleeping after a cycle, got %s", st.State)
	}
	if st.StateSince.Before(before) {
		t.Errorf("state_since %s predates the cycle", st.StateSince)
	}
	if st.LastOutcome != OutcomeWritten || st.RowsWritten != 3 || st.FromBlock != 10 {
		t.Errorf("unexpected status %+v", st)
	}

	cycles, err := store.RecentCycles(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(cycles) != 1 || cycles[0].Outcome != OutcomeWritten || cycles[0].ID == "" {
		t.Errorf("unexpected journal %+v", cycles)
	}
}

func TestLoopRunOnce_FailureTracking(t *testing.T) {
	store := memory.NewStore()
	fail := true
	runner := &stubRunner{name: "test", run: func(ctx context.Context, enter func(State)) (Result, error) {
		enter(StateFetching)
		if fail {
			return Result{FromBlock: 5}, stageErr("test", StageFetch, errors.New("boom"))
		}
		return Result{FromBlock: 5, NoData: true}, nil
	}}
	loop := NewLoop(runner, time.Second, store)
	ctx := context.Background()

	loop.RunOnce(ctx)
	loop.RunOnce(ctx)
	if st := loop.Status(); st.ConsecutiveFailures != 2 || st.LastStage != string(StageFetch) {
		t.Errorf("unexpected status after failures %+v", st)
	}

	fail = false
	loop.RunOnce(ctx)
	st := loop.Status()
	if st.ConsecutiveFailures != 0 || st.LastOutcome != OutcomeNoData {
		t.Errorf("unexpected status after recovery %+v", st)
	}

	cycles, _ := store.RecentCycles(ctx, 10)
	if len(cycles) != 3 {
		t.Fatalf("expected 3 journaled cycles, got %d", len(cycles))
	}
}

func TestLoopRunOnce_RecoversPanic(t *testing.T) {
	runner := &stubRunner{name: "test", run: func(ctx context.Context, enter func(State)) (Result, error) {
		enter(StateFetching)
		enter(StateJoining)
		panic("nil map")
	}}
	loop := NewLoop(runner, time.Second, nil)

	_, err := loop.RunOnce(context.Background())
	if !errors.Is(err, ErrPanic) {
		t.Fatalf("expected ErrPanic, got %v", err)
	}
	var se *StageError
	if !errors.As(err, &se) || se.Stage != StageJoin {
		t.Errorf("expected join stage, got %v", err)
	}
	if st := loop.Status(); st.State != StateSleeping.String() || st.LastOutcome != OutcomeFailed {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestLoopStartStop(t *testing.T) {
	runner := &stubRunner{name: "test", run: func(ctx context.Context, enter func(State)) (Result, error) {
		return Result{NoData: true}, nil
	}}
	loop := NewLoop(runner, 5*time.Millisecond, nil)

	done := make(chan error, 1)
	go func() { done <- loop.Start(context.Background()) }()

	deadline := time.After(2 * time.Second)
	for runner.calls.Load() < 3 {
		select {
		case <-deadline:
			t.Fatal("loop did not cycle")
		case <-time.After(5 * time.Millisecond):
		}
	}

	if err := loop.Start(context.Background()); err == nil {
		t.Error("expected error starting a running loop")
	}

	loop.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

func TestLoopStart_ContextCancel(t *testing.T) {
	runner := &stubRunner{name: "test", run: func(ctx context.Context, enter func(State)) (Result, error) {
		return Result{NoData: true}, nil
	}}
	loop := NewLoop(runner, time.Hour, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- loop.Start(ctx) }()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop ignored context cancellation")
	}
	if runner.calls.Load() != 1 {
		t.Errorf("expected one cycle, got %d", runner.calls.Load())
	}
}

var _ storage.CycleJournal = (*memory.Store)(nil)
