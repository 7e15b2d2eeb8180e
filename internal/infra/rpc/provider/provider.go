// Package provider implements the HTTP transports used to reach upstream
// services.
//
// This package contains:
//   - Provider interface: core abstraction for an upstream endpoint
//   - HTTPProvider: JSON-RPC 2.0 and REST GET over HTTP
//   - ProviderMonitor: latency and throttle tracking
package provider

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"
)

// Provider defines the core interface for an upstream endpoint.
type Provider interface {
	// GetName returns provider identifier (e.g., "indexer", "flashbots")
	GetName() string

	// GetHealth returns current health metrics
	GetHealth() HealthStatus

	// IsAvailable checks if the provider is healthy enough to use
	IsAvailable() bool

	// Close cleans up resources
	Close() error
}

// RPCProvider extends Provider with JSON-RPC calls.
type RPCProvider interface {
	Provider

	// Call makes a single RPC request and returns the raw result
	Call(ctx context.Context, method string, params []any) (json.RawMessage, error)
}

// RESTProvider extends Provider with REST reads.
type RESTProvider interface {
	Provider

	// Get issues a GET for path relative to the endpoint and returns the body
	Get(ctx context.Context, path string, query url.Values) ([]byte, error)
}

// HealthStatus represents the health state of a provider.
type HealthStatus struct {
	Available     bool
	Latency       time.Duration
	ErrorRate     float64
	LastSuccessAt time.Time
	LastFailureAt time.Time
	MonitorStats  *MonitorStats `json:"monitor_stats,omitempty"`
}

// RPCError is a JSON-RPC error object returned by the server.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *RPCError) Error() string {
	return "rpc error " + strconv.Itoa(e.Code) + ": " + e.Message
}
