package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	// Create isolated viper instance without loading user/system config
	v := viper.New()
	SetDefaults(v)

	cfg, err := LoadWithViper(v)
	if err != nil {
		t.Fatalf("LoadWithViper() failed: %v", err)
	}

	if cfg.Database.Path != "ingest.db" {
		t.Errorf("expected default database path 'ingest.db', got %q", cfg.Database.Path)
	}

	if cfg.Import.MaxSyncRetries != 5 {
		t.Errorf("expected default max_sync_retries 5, got %d", cfg.Import.MaxSyncRetries)
	}

	if cfg.Import.RetryBackoffMs != 500 {
		t.Errorf("expected default retry_backoff_ms 500, got %d", cfg.Import.RetryBackoffMs)
	}

	if !cfg.Import.ArchiveOnDelete {
		t.Error("expected archive_on_delete enabled by default")
	}

	if cfg.Validation.HTTPTimeoutSeconds != 10 {
		t.Errorf("expected default http_timeout_seconds 10, got %d", cfg.Validation.HTTPTimeoutSeconds)
	}

	if !cfg.Notify.Enabled {
		t.Error("expected notify enabled by default")
	}
}

func TestValidate_ZeroValues(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "zero retries is valid (clamped to 1 at read time)",
			config:  Config{Import: ImportConfig{MaxSyncRetries: 0}},
			wantErr: false,
		},
		{
			name:    "negative retries is invalid",
			config:  Config{Import: ImportConfig{MaxSyncRetries: -1}},
			wantErr: true,
		},
		{
			name:    "zero backoff is valid (no sleep)",
			config:  Config{Import: ImportConfig{RetryBackoffMs: 0}},
			wantErr: false,
		},
		{
			name:    "negative backoff is invalid",
			config:  Config{Import: ImportConfig{RetryBackoffMs: -500}},
			wantErr: true,
		},
		{
			name:    "zero rate limit is valid (unlimited)",
			config:  Config{Validation: ValidateConfig{HTTPRequestsPerMinute: 0}},
			wantErr: false,
		},
		{
			name:    "negative rate limit is invalid",
			config:  Config{Validation: ValidateConfig{HTTPRequestsPerMinute: -1}},
			wantErr: true,
		},
		{
			name:    "empty database path is valid",
			config:  Config{Database: DatabaseConfig{Path: ""}},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetMaxSyncRetries_Floor(t *testing.T) {
	cfg := Config{Import: ImportConfig{MaxSyncRetries: 0}}
	if got := cfg.GetMaxSyncRetries(); got != 1 {
		t.Errorf("expected floor of 1, got %d", got)
	}

	cfg.Import.MaxSyncRetries = 3
	if got := cfg.GetMaxSyncRetries(); got != 3 {
		t.Errorf("expected 3, got %d", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ingest.toml")

	content := `
[database]
path = "/tmp/test-ingest.db"

[import]
share_path = "/srv/feeds"
max_sync_retries = 3
verbose = true

[validate]
http_timeout_seconds = 20
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config fixture: %v", err)
	}

	cfg, err := LoadFromFile(path)
	if err != nil {
		t.Fatalf("LoadFromFile() failed: %v", err)
	}

	if cfg.Database.Path != "/tmp/test-ingest.db" {
		t.Errorf("expected database path from file, got %q", cfg.Database.Path)
	}
	if cfg.Import.SharePath != "/srv/feeds" {
		t.Errorf("expected share path from file, got %q", cfg.Import.SharePath)
	}
	if cfg.Import.MaxSyncRetries != 3 {
		t.Errorf("expected max_sync_retries 3, got %d", cfg.Import.MaxSyncRetries)
	}
	if !cfg.Import.Verbose {
		t.Error("expected verbose true from file")
	}

	if cfg.Validation.HTTPTimeoutSeconds != 20 {
		t.Errorf("expected http_timeout_seconds 20 from file, got %d", cfg.Validation.HTTPTimeoutSeconds)
	}

	// Defaults still apply for keys the file omits
	if cfg.Import.RetryBackoffMs != 500 {
		t.Errorf("expected default retry_backoff_ms 500, got %d", cfg.Import.RetryBackoffMs)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() on loaded config: %v", err)
	}
}

func TestLoadFromFile_Missing(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "nope.toml"))
	if err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestReset(t *testing.T) {
	Reset()
	if globalConfig != nil || viperInstance != nil {
		t.Error("Reset() should clear cached state")
	}
}
