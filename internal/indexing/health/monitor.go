package health

import (
	"time"

	"github.com/vietddude/preconf-ingester/internal/indexing/pipeline"
	"github.com/vietddude/preconf-ingester/internal/infra/rpc/provider"
)

// StatusSource reports the state of one pipeline loop.
type StatusSource interface {
	Status() pipeline.Status
}

// Thresholds decide when a pipeline counts as degraded or critical.
type Thresholds struct {
	DegradedFailures int
	CriticalFailures int
	// StaleAfter marks a running pipeline critical when no cycle finished for this long.
	StaleAfter time.Duration
}

// DefaultThresholds returns the thresholds used by the service.
func DefaultThresholds() Thresholds {
	return Thresholds{
		DegradedFailures: 1,
		CriticalFailures: 5,
		StaleAfter:       10 * time.Minute,
	}
}

// Monitor aggregates health status from the pipelines and upstream providers.
type Monitor struct {
	sources    []StatusSource
	providers  []provider.Provider
	thresholds Thresholds
	now        func() time.Time
}

// NewMonitor creates a new health monitor.
func NewMonitor(sources []StatusSource, providers []provider.Provider, thresholds Thresholds) *Monitor {
	return &Monitor{
		sources:    sources,
		providers:  providers,
		thresholds: thresholds,
		now:        time.Now,
	}
}

// CheckHealth builds a report from the latest pipeline snapshots.
func (m *Monitor) CheckHealth() HealthReport {
	report := HealthReport{
		SystemStatus: StatusHealthy,
		Pipelines:    make(map[string]PipelineHealth, len(m.sources)),
	}

	for _, src := range m.sources {
		st := src.Status()
		h := PipelineHealth{
			Pipeline:            st.Pipeline,
			Status:              StatusHealthy,
			Running:             st.Running,
			State:               st.State,
			StateSince:          st.StateSince,
			LastOutcome:         st.LastOutcome,
			LastStage:           st.LastStage,
			LastError:           st.LastError,
			FromBlock:           st.FromBlock,
			ConsecutiveFailures: st.ConsecutiveFailures,
		}
		if !st.LastCycleAt.IsZero() {
			h.SecondsSinceCycle = m.now().Sub(st.LastCycleAt).Seconds()
		}

		// Evaluate Status
		stale := m.thresholds.StaleAfter > 0 && !st.LastCycleAt.IsZero() &&
			m.now().Sub(st.LastCycleAt) > m.thresholds.StaleAfter
		switch {
		case st.ConsecutiveFailures >= m.thresholds.CriticalFailures, st.Running && stale:
			h.Status = StatusCritical
		case st.ConsecutiveFailures >= m.thresholds.DegradedFailures, !st.Running:
			h.Status = StatusDegraded
		}

		report.Pipelines[st.Pipeline] = h
		report.SystemStatus = worst(report.SystemStatus, h.Status)
	}

	if len(m.providers) > 0 {
		report.Providers = make(map[string]provider.HealthStatus, len(m.providers))
		for _, p := range m.providers {
			report.Providers[p.GetName()] = p.GetHealth()
		}
	}
	return report
}

// worst returns the more severe of two statuses.
func worst(a, b SystemStatus) SystemStatus {
	rank := func(s SystemStatus) int {
		switch s {
		case StatusCritical:
			return 2
		case StatusDegraded:
			return 1
		default:
			return 0
		}
	}
	if rank(b) > rank(a) {
		return b
	}
	return a
}
