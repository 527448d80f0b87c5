// Package config provides configuration for the ingest system, loaded
// from TOML files and INGEST_* environment variables via Viper.
package config

import "fmt"

// Config represents the core ingest configuration
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Import   ImportConfig   `mapstructure:"import"`
	Validation ValidateConfig `mapstructure:"validate"`
	Notify   NotifyConfig   `mapstructure:"notify"`
}

// DatabaseConfig configures the SQLite database
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// ImportConfig configures feed-file processing
type ImportConfig struct {
	// SharePath is the directory feed files are dropped into
	SharePath string `mapstructure:"share_path"`

	// MaxSyncRetries bounds document-store upsert attempts on transient
	// failure. Values below 1 are clamped to 1.
	MaxSyncRetries int `mapstructure:"max_sync_retries"`

	// RetryBackoffMs is the fixed sleep between upsert attempts
	RetryBackoffMs int `mapstructure:"retry_backoff_ms"`

	// Verbose includes per-item entries in the run summary
	Verbose bool `mapstructure:"verbose"`

	// ArchiveOnDelete copies documents into the purge archive before deletion
	ArchiveOnDelete bool `mapstructure:"archive_on_delete"`
}

// ValidateConfig configures remote endpoint validation (restVerify)
type ValidateConfig struct {
	HTTPTimeoutSeconds    int `mapstructure:"http_timeout_seconds"`
	HTTPRequestsPerMinute int `mapstructure:"http_requests_per_minute"`
}

// NotifyConfig configures downstream worker notification
type NotifyConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// GetDatabasePath returns the configured database path
func (c *Config) GetDatabasePath() string {
	if c.Database.Path == "" {
		return "ingest.db" // Fallback default
	}
	return c.Database.Path
}

// GetMaxSyncRetries returns the retry budget with the floor applied
func (c *Config) GetMaxSyncRetries() int {
	if c.Import.MaxSyncRetries < 1 {
		return 1
	}
	return c.Import.MaxSyncRetries
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Database: %s, Import: {SharePath: %s, MaxSyncRetries: %d}}",
		c.Database.Path, c.Import.SharePath, c.Import.MaxSyncRetries)
}
