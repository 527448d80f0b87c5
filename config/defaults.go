package config

import (
	"github.com/spf13/viper"
)

// SetDefaults configures default values for all configuration options
func SetDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.path", "ingest.db")

	// Import defaults
	v.SetDefault("import.share_path", "/var/lib/ingest/share")
	v.SetDefault("import.max_sync_retries", 5) // floor of 1 enforced at read time
	v.SetDefault("import.retry_backoff_ms", 500)
	v.SetDefault("import.verbose", false)
	v.SetDefault("import.archive_on_delete", true)

	// Remote validation defaults
	v.SetDefault("validate.http_timeout_seconds", 10)
	v.SetDefault("validate.http_requests_per_minute", 60) // polite pacing for partner endpoints

	// Worker notification defaults
	v.SetDefault("notify.enabled", true)
}

// BindSensitiveEnvVars explicitly binds sensitive configuration to environment variables
func BindSensitiveEnvVars(v *viper.Viper) {
	// Database path
	v.BindEnv("database.path", "INGEST_DATABASE_PATH")

	// Feed share path is often machine-specific
	v.BindEnv("import.share_path", "INGEST_IMPORT_SHARE_PATH")
}
