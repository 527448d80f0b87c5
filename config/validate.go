package config

import "github.com/seamline/ingest/errors"

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	// Database path is optional - empty defaults to "ingest.db" per defaults.go

	// Retry budget: negative is invalid, 0 is clamped to the floor of 1 at read time
	if c.Import.MaxSyncRetries < 0 {
		return errors.Newf("import.max_sync_retries must be >= 0, got %d", c.Import.MaxSyncRetries)
	}

	// Backoff: 0 = no sleep between attempts, negative = invalid
	if c.Import.RetryBackoffMs < 0 {
		return errors.Newf("import.retry_backoff_ms must be >= 0, got %d", c.Import.RetryBackoffMs)
	}

	if c.Validation.HTTPTimeoutSeconds < 0 {
		return errors.Newf("validate.http_timeout_seconds must be >= 0, got %d", c.Validation.HTTPTimeoutSeconds)
	}

	// Rate limit: 0 = unlimited, negative = invalid
	if c.Validation.HTTPRequestsPerMinute < 0 {
		return errors.Newf("validate.http_requests_per_minute must be >= 0, got %d", c.Validation.HTTPRequestsPerMinute)
	}

	return nil
}
