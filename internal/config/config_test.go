package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("CONFIG_FILE", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.LeaseTTL != 60*time.Second {
		t.Errorf("LeaseTTL = %s, want 60s", cfg.LeaseTTL)
	}
	if cfg.Oracle.Timeout != 20*time.Second {
		t.Errorf("Oracle.Timeout = %s, want 20s", cfg.Oracle.Timeout)
	}
	want := civil.Date{Year: 2026, Month: time.January, Day: 23}
	if cfg.PuzzleEpoch != want {
		t.Errorf("PuzzleEpoch = %v, want %v", cfg.PuzzleEpoch, want)
	}
	if cfg.PuzzleLocation != time.UTC {
		t.Errorf("PuzzleLocation = %v, want UTC", cfg.PuzzleLocation)
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	content := `
[server]
port = "9090"

[database]
type = "postgres"
url = "postgres://localhost/alchemy"

[oracle]
timeout = "10s"
max_retries = 0

[puzzle]
epoch = "2026-02-01"
timezone = "America/New_York"
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", path)
	t.Setenv("PORT", "7070")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}
	if cfg.ServerPort != "7070" {
		t.Errorf("ServerPort = %s, want env override 7070", cfg.ServerPort)
	}
	if cfg.DatabaseType != "postgres" {
		t.Errorf("DatabaseType = %s, want postgres", cfg.DatabaseType)
	}
	if cfg.Oracle.Timeout != 10*time.Second {
		t.Errorf("Oracle.Timeout = %s, want 10s", cfg.Oracle.Timeout)
	}
	if cfg.Oracle.MaxRetries != 0 {
		t.Errorf("Oracle.MaxRetries = %d, want 0", cfg.Oracle.MaxRetries)
	}
	if cfg.PuzzleEpoch.String() != "2026-02-01" {
		t.Errorf("PuzzleEpoch = %v, want 2026-02-01", cfg.PuzzleEpoch)
	}
	if cfg.PuzzleLocation.String() != "America/New_York" {
		t.Errorf("PuzzleLocation = %v", cfg.PuzzleLocation)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "unknown db", mutate: func(c *Config) { c.DatabaseType = "oracle" }, wantErr: true},
		{name: "short lease", mutate: func(c *Config) { c.LeaseTTL = 30 * time.Second }, wantErr: true},
		{name: "zero oracle timeout", mutate: func(c *Config) { c.Oracle.Timeout = 0 }, wantErr: true},
		{name: "bad zone", mutate: func(c *Config) { c.PuzzleTimeZone = "Mars/Olympus" }, wantErr: true},
		{name: "audit emails", mutate: func(c *Config) { c.AuditFromEmail = "ops@example.com"; c.AuditToEmail = "a+b@mail.example.com" }},
		{name: "bad audit email", mutate: func(c *Config) { c.AuditToEmail = "ops @example.com" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFromMissingFile(t *testing.T) {
	if _, err := LoadFrom(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Error("LoadFrom() with a missing file should fail")
	}
}
