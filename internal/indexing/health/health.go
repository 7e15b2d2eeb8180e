// Package health provides system health monitoring and status reporting.
package health

import (
	"time"

	"github.com/vietddude/preconf-ingester/internal/infra/rpc/provider"
)

// SystemStatus represents the overall health state of the system or a component.
type SystemStatus string

const (
	StatusHealthy  SystemStatus = "healthy"
	StatusDegraded SystemStatus = "degraded"
	StatusCritical SystemStatus = "critical"
)

// PipelineHealth contains health data for one ingestion pipeline.
type PipelineHealth struct {
	Pipeline            string       `json:"pipeline"`
	Status              SystemStatus `json:"status"`
	Running             bool         `json:"running"`
	State               string       `json:"state"`
	StateSince          time.Time    `json:"state_since,omitempty"`
	LastOutcome         string       `json:"last_outcome,omitempty"`
	LastStage           string       `json:"last_stage,omitempty"`
	LastError           string       `json:"last_error,omitempty"`
	FromBlock           int64        `json:"from_block"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	SecondsSinceCycle   float64      `json:"seconds_since_cycle"`
}

// HealthReport contains the full system health report.
type HealthReport struct {
	SystemStatus SystemStatus                     `json:"system_status"`
	Pipelines    map[string]PipelineHealth        `json:"pipelines"`
	Providers    map[string]provider.HealthStatus `json:"providers,omitempty"`
}
