package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if *cfg != *DefaultConfig() {
		t.Errorf("Load(\"\") = %+v, want defaults %+v", cfg, DefaultConfig())
	}
}

func TestLoadFileThenEnv(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "repairdesk.yaml")
	body := "sqlite_path: /var/lib/shop.db\nlog_level: debug\nreset_token_ttl: 30m\n"
	if err := os.WriteFile(file, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("REPAIRDESK_LOG_LEVEL", "warn")
	t.Setenv("REPAIRDESK_PASSWORD_MIN_LENGTH", "12")

	cfg, err := Load(file)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.SQLitePath != "/var/lib/shop.db" {
		t.Errorf("SQLitePath = %q", cfg.SQLitePath)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("LogLevel = %q, want env override", cfg.LogLevel)
	}
	if cfg.ResetTokenTTL != 30*time.Minute {
		t.Errorf("ResetTokenTTL = %v", cfg.ResetTokenTTL)
	}
	if cfg.PasswordMinLength != 12 {
		t.Errorf("PasswordMinLength = %d", cfg.PasswordMinLength)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SQLitePath = " "
	var cfgErr *ConfigError
	if err := cfg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != "sqlite_path" {
		t.Errorf("expected sqlite_path error, got %v", err)
	}

	cfg = DefaultConfig()
	cfg.ResetTokenTTL = 0
	if err := cfg.Validate(); !errors.As(err, &cfgErr) || cfgErr.Field != "reset_token_ttl" {
		t.Errorf("expected reset_token_ttl error, got %v", err)
	}
}
