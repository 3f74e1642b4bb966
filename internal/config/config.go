// Package config loads the timeline fill engine's static configuration
// using viper.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level static configuration for a timelinefill
// process. Maps to the `timelinefill:` root key in YAML.
type Config struct {
	Store   StoreConfig   `mapstructure:"store"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Cache   CacheConfig   `mapstructure:"cache"`
}

// StoreConfig configures the SQLite-backed storage collaborator.
type StoreConfig struct {
	DSN             string `mapstructure:"dsn"`
	BusyTimeoutMS   int    `mapstructure:"busy_timeout_ms"`
	ForeignKeys     bool   `mapstructure:"foreign_keys"`
}

// LogConfig configures the logrus-backed Logger collaborator.
type LogConfig struct {
	Level  string `mapstructure:"level"`  // debug / info / warn / error
	Format string `mapstructure:"format"` // json / text
}

// MetricsConfig configures the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// CacheConfig sizes the in-process LRU member-snapshot cache the
// engine keeps during sender resolution. The FragmentIdComparer's rank
// table is deliberately not configurable here: it is unbounded,
// process-wide state and must never evict an entry still referenced by
// a live fragment chain.
type CacheConfig struct {
	MemberCacheSize int `mapstructure:"member_cache_size"`
}

// configRoot is the top-level wrapper matching the YAML structure
// `timelinefill: ...`.
type configRoot struct {
	TimelineFill Config `mapstructure:"timelinefill"`
}

// Load loads configuration from the file at path, applying defaults
// and TIMELINEFILL_-prefixed environment variable overrides.
func Load(path string) (*Config, error) {
	var v = viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	var cfg = root.TimelineFill

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("timelinefill.store.dsn", "timelinefill.db")
	v.SetDefault("timelinefill.store.busy_timeout_ms", 5000)
	v.SetDefault("timelinefill.store.foreign_keys", true)

	v.SetDefault("timelinefill.log.level", "info")
	v.SetDefault("timelinefill.log.format", "text")

	v.SetDefault("timelinefill.metrics.enabled", true)
	v.SetDefault("timelinefill.metrics.listen", ":9092")
	v.SetDefault("timelinefill.metrics.path", "/metrics")

	v.SetDefault("timelinefill.cache.member_cache_size", 4096)
}

func (cfg *Config) validate() error {
	var validLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Store.DSN == "" {
		return fmt.Errorf("store.dsn must not be empty")
	}
	return nil
}
