package main

import (
	"os"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("RP_ID", "example.com")
	t.Setenv("CLIENT_URL", "https://app.example.com")
	t.Setenv("PORT", "8080")
	t.Setenv("TOKEN_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoadConfig(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.RPID != "example.com" {
		t.Errorf("unexpected RPID: %q", cfg.RPID)
	}
	if cfg.RPName != "Passkey Server" {
		t.Errorf("expected default RP name, got %q", cfg.RPName)
	}
	if cfg.CeremonyTTL != 60*time.Second {
		t.Errorf("expected default ceremony TTL 60s, got %s", cfg.CeremonyTTL)
	}
	if cfg.DBPath != "" {
		t.Errorf("DBPath should default to empty, got %q", cfg.DBPath)
	}
}

func TestLoadConfig_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RP_NAME", "My Service")
	t.Setenv("DB_PATH", "/var/lib/passkey/users.db")
	t.Setenv("CEREMONY_TTL", "90s")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("loadConfig failed: %v", err)
	}
	if cfg.RPName != "My Service" {
		t.Errorf("unexpected RP name: %q", cfg.RPName)
	}
	if cfg.DBPath != "/var/lib/passkey/users.db" {
		t.Errorf("unexpected DB path: %q", cfg.DBPath)
	}
	if cfg.CeremonyTTL != 90*time.Second {
		t.Errorf("unexpected ceremony TTL: %s", cfg.CeremonyTTL)
	}
}

func TestLoadConfig_MissingRequired(t *testing.T) {
	setRequiredEnv(t)
	// t.Setenv で復元を仕込んだうえで未設定状態にする。
	t.Setenv("TOKEN_SECRET", "")
	os.Unsetenv("TOKEN_SECRET")

	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig should fail when TOKEN_SECRET is missing")
	}
}

func TestLoadConfig_InvalidTTL(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("CEREMONY_TTL", "-5s")

	if _, err := loadConfig(); err == nil {
		t.Error("loadConfig should reject a non-positive ceremony TTL")
	}
}
