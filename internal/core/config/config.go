package config

import (
	"time"

	redisclient "github.com/vietddude/preconf-ingester/internal/infra/redis"
	"github.com/vietddude/preconf-ingester/internal/infra/relay"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	SourceServiceURL    string `yaml:"source_service_url"`
	SecondaryServiceURL string `yaml:"secondary_service_url"`
	StorageURI          string `yaml:"storage_uri"`
	PollIntervalSeconds int    `yaml:"poll_interval_seconds"`
	FetchTimeoutSeconds int    `yaml:"fetch_timeout_seconds"`
	MergeKeyColumn      string `yaml:"merge_key_column"`
	// LookbackBlocks re-reads events this far below the progress block. Unset
	// means DefaultLookbackBlocks; an explicit 0 disables it.
	LookbackBlocks *int64 `yaml:"lookback_blocks"`
	// JournalRetentionHours bounds the cycle journal; 0 keeps every entry.
	JournalRetentionHours int `yaml:"journal_retention_hours"`

	Indexer  IndexerConfig      `yaml:"indexer"`
	Builder  BuilderConfig      `yaml:"builder"`
	Server   ServerConfig       `yaml:"server"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database DatabaseConfig     `yaml:"database"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
}

// DatabaseConfig sizes the connection pool of SQL backends.
type DatabaseConfig struct {
	MaxConns int `yaml:"max_conns"`
	MinConns int `yaml:"min_conns"`
}

// IndexerConfig holds settings for the indexing service clients.
type IndexerConfig struct {
	// Fallbacks are tried after the primary source URL, in order.
	Fallbacks   []ProviderConfig `yaml:"fallbacks"`
	MaxAttempts int              `yaml:"max_attempts"`
}

// ProviderConfig holds settings for an RPC provider.
type ProviderConfig struct {
	Name string `yaml:"name"`
	URL  string `yaml:"url"`
}

// BuilderConfig holds settings for the builder payload pipeline.
type BuilderConfig struct {
	Enabled             *bool                       `yaml:"enabled"`
	Network             string                      `yaml:"network"`
	PollIntervalSeconds int                         `yaml:"poll_interval_seconds"`
	FetchTimeoutSeconds int                         `yaml:"fetch_timeout_seconds"`
	WindowBlocks        int                         `yaml:"window_blocks"`
	RefreshBlocks       *int                        `yaml:"refresh_blocks"`
	PageLimit           int                         `yaml:"page_limit"`
	Relays              map[string][]relay.Endpoint `yaml:"relays"`
}

// PollInterval is the sleep between commitment cycles.
func (c *AppConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// FetchTimeout bounds each commitment fetch.
func (c *AppConfig) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutSeconds) * time.Second
}

// JournalRetention is how long cycle journal entries are kept.
func (c *AppConfig) JournalRetention() time.Duration {
	return time.Duration(c.JournalRetentionHours) * time.Hour
}

// BuilderEnabled reports whether the builder pipeline should run. It needs
// the secondary service for execution blocks.
func (c *AppConfig) BuilderEnabled() bool {
	if c.SecondaryServiceURL == "" {
		return false
	}
	return c.Builder.Enabled == nil || *c.Builder.Enabled
}

// Lookback returns the configured event lookback in blocks.
func (c *AppConfig) Lookback() int64 {
	if c.LookbackBlocks == nil {
		return 0
	}
	return *c.LookbackBlocks
}

// Refresh returns how many stored blocks below progress are re-merged each cycle.
func (b BuilderConfig) Refresh() int {
	if b.RefreshBlocks == nil {
		return 0
	}
	return *b.RefreshBlocks
}

// PollInterval is the sleep between builder cycles.
func (b BuilderConfig) PollInterval() time.Duration {
	return time.Duration(b.PollIntervalSeconds) * time.Second
}

// FetchTimeout bounds each builder fetch.
func (b BuilderConfig) FetchTimeout() time.Duration {
	return time.Duration(b.FetchTimeoutSeconds) * time.Second
}
