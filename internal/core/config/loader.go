package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/preconf-ingester/internal/infra/relay"
	"github.com/vietddude/preconf-ingester/internal/infra/storage"
)

// Defaults
const (
	DefaultStorageURI          = "duckdb://data/preconf.duckdb"
	DefaultPollIntervalSeconds = 10
	DefaultFetchTimeoutSeconds = 60
	DefaultMergeKeyColumn      = "commitment_index"
	DefaultLookbackBlocks      = 32
	DefaultBuilderNetwork      = "holesky"
	DefaultBuilderWindowBlocks = 300
	DefaultBuilderPageLimit    = 200
	DefaultBuilderRefresh      = 32
)

// ErrInvalidConfig matches every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Load reads configuration from a YAML file, then applies environment
// overrides and defaults. An empty path skips the file.
func Load(path string) (*AppConfig, error) {
	var cfg AppConfig

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Expand environment variables in the YAML content
		expandedData := os.ExpandEnv(string(data))
		if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	applyDefaults(&cfg)
	return &cfg, nil
}

// applyEnv overrides the recognized options from the environment.
func applyEnv(cfg *AppConfig) error {
	strs := map[string]*string{
		"SOURCE_SERVICE_URL":    &cfg.SourceServiceURL,
		"SECONDARY_SERVICE_URL": &cfg.SecondaryServiceURL,
		"STORAGE_URI":           &cfg.StorageURI,
		"MERGE_KEY_COLUMN":      &cfg.MergeKeyColumn,
		"REDIS_URL":             &cfg.Redis.URL,
	}
	for name, dst := range strs {
		if v, ok := os.LookupEnv(name); ok {
			*dst = v
		}
	}

	ints := map[string]*int{
		"POLL_INTERVAL_SECONDS": &cfg.PollIntervalSeconds,
		"FETCH_TIMEOUT_SECONDS": &cfg.FetchTimeoutSeconds,
	}
	for name, dst := range ints {
		v, ok := os.LookupEnv(name)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalidConfig, name, v)
		}
		*dst = n
	}

	if v, ok := os.LookupEnv("LOOKBACK_BLOCKS"); ok {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: LOOKBACK_BLOCKS=%q is not an integer", ErrInvalidConfig, v)
		}
		cfg.LookbackBlocks = &n
	}
	return nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.StorageURI == "" {
		cfg.StorageURI = DefaultStorageURI
	}
	if cfg.PollIntervalSeconds == 0 {
		cfg.PollIntervalSeconds = DefaultPollIntervalSeconds
	}
	if cfg.FetchTimeoutSeconds == 0 {
		cfg.FetchTimeoutSeconds = DefaultFetchTimeoutSeconds
	}
	if cfg.MergeKeyColumn == "" {
		cfg.MergeKeyColumn = DefaultMergeKeyColumn
	}
	if cfg.LookbackBlocks == nil {
		n := int64(DefaultLookbackBlocks)
		cfg.LookbackBlocks = &n
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Redis.TTL == 0 {
		cfg.Redis.TTL = 24 * time.Hour
	}

	b := &cfg.Builder
	if b.Network == "" {
		b.Network = DefaultBuilderNetwork
	}
	if b.PollIntervalSeconds == 0 {
		b.PollIntervalSeconds = 60
	}
	if b.FetchTimeoutSeconds == 0 {
		b.FetchTimeoutSeconds = 60
	}
	if b.WindowBlocks == 0 {
		b.WindowBlocks = DefaultBuilderWindowBlocks
	}
	if b.PageLimit == 0 {
		b.PageLimit = DefaultBuilderPageLimit
	}
	if b.RefreshBlocks == nil {
		n := DefaultBuilderRefresh
		b.RefreshBlocks = &n
	}
	if len(b.Relays[b.Network]) == 0 {
		if b.Relays == nil {
			b.Relays = make(map[string][]relay.Endpoint)
		}
		b.Relays[b.Network] = relay.DefaultEndpoints[b.Network]
	}
}

// Validate checks the configuration before any loop starts.
func (c *AppConfig) Validate() error {
	if c.SourceServiceURL == "" {
		return fmt.Errorf("%w: source_service_url is required", ErrInvalidConfig)
	}
	if err := validateURL("source_service_url", c.SourceServiceURL); err != nil {
		return err
	}
	if c.SecondaryServiceURL != "" {
		if err := validateURL("secondary_service_url", c.SecondaryServiceURL); err != nil {
			return err
		}
	}
	for i, f := range c.Indexer.Fallbacks {
		if err := validateURL(fmt.Sprintf("indexer.fallbacks[%d]", i), f.URL); err != nil {
			return err
		}
	}
	if c.PollIntervalSeconds <= 0 {
		return fmt.Errorf("%w: poll_interval_seconds must be positive", ErrInvalidConfig)
	}
	if c.FetchTimeoutSeconds <= 0 {
		return fmt.Errorf("%w: fetch_timeout_seconds must be positive", ErrInvalidConfig)
	}
	if !storage.Commitments.HasColumn(c.MergeKeyColumn) {
		return fmt.Errorf("%w: merge_key_column %q is not a commitments column", ErrInvalidConfig, c.MergeKeyColumn)
	}
	if c.Lookback() < 0 {
		return fmt.Errorf("%w: lookback_blocks must not be negative", ErrInvalidConfig)
	}
	if c.BuilderEnabled() {
		if c.Builder.WindowBlocks <= 0 {
			return fmt.Errorf("%w: builder.window_blocks must be positive", ErrInvalidConfig)
		}
		if c.Builder.Refresh() < 0 {
			return fmt.Errorf("%w: builder.refresh_blocks must not be negative", ErrInvalidConfig)
		}
		if len(c.Builder.Relays[c.Builder.Network]) == 0 {
			return fmt.Errorf("%w: no relays for builder network %q", ErrInvalidConfig, c.Builder.Network)
		}
	}
	return nil
}

func validateURL(field, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: %s %q is not an http(s) URL", ErrInvalidConfig, field, raw)
	}
	return nil
}
