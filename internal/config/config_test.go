package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "8080" {
		t.Errorf("port = %s, want 8080", cfg.Server.Port)
	}
	if cfg.Server.VerifyRatePerMinute != 30 {
		t.Errorf("verify rate = %d, want 30", cfg.Server.VerifyRatePerMinute)
	}
	if cfg.Database.Driver != "postgres" {
		t.Errorf("driver = %s, want postgres", cfg.Database.Driver)
	}
	if cfg.Signing.GracePeriod != 30*24*time.Hour {
		t.Errorf("grace period = %s", cfg.Signing.GracePeriod)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	content := `{
		"server": {"port": "9090", "verify_rate_per_minute": 5},
		"database": {"driver": "memory"},
		"signing": {"active_key_id": "k2", "active_secret": "file-secret"}
	}`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Server.VerifyRatePerMinute != 5 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Database.Driver != "memory" {
		t.Errorf("driver = %s, want memory", cfg.Database.Driver)
	}
	if cfg.Signing.ActiveKeyID != "k2" || cfg.Signing.ActiveSecret != "file-secret" {
		t.Errorf("signing = %+v", cfg.Signing)
	}
	// Untouched fields keep their defaults.
	if cfg.Server.ReadTimeout != 10*time.Second {
		t.Errorf("read timeout = %s", cfg.Server.ReadTimeout)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("JWT_SECRET", "env-jwt")
	t.Setenv("SIGNING_SECRET", "env-signing")
	t.Setenv("DATABASE_PASSWORD", "env-password")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("port = %s, want 7070", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "env-jwt" {
		t.Errorf("jwt secret = %s", cfg.Auth.JWTSecret)
	}
	if cfg.Signing.ActiveSecret != "env-signing" {
		t.Errorf("signing secret = %s", cfg.Signing.ActiveSecret)
	}
	if cfg.Database.Password != "env-password" {
		t.Errorf("database password = %s", cfg.Database.Password)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/no/such/config.json"); err == nil {
		t.Error("expected error for missing file")
	}
}
