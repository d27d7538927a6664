package config

import (
	"strings"
	"testing"
	"time"
)

func setRequiredEnv(t *testing.T) {
	t.Setenv("DATABASE_DSN", "postgres://localhost/shopcore_test")
	t.Setenv("ACCESS_TOKEN_SECRET", strings.Repeat("a", 32))
	t.Setenv("REFRESH_TOKEN_SECRET", strings.Repeat("b", 32))
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessTokenTTL != 15*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTokenTTL)
	}
	if cfg.RefreshTokenTTL != 7*24*time.Hour {
		t.Fatalf("refresh ttl = %v", cfg.RefreshTokenTTL)
	}
	if cfg.LockoutThreshold != 5 || cfg.LockoutDuration != 30*time.Minute {
		t.Fatalf("lockout = %d / %v", cfg.LockoutThreshold, cfg.LockoutDuration)
	}
	if !cfg.RevocationFailOpen {
		t.Fatal("revocation should fail open by default")
	}
	if cfg.SessionCookieName != "sid" {
		t.Fatalf("cookie name = %q", cfg.SessionCookieName)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "5m")
	t.Setenv("LOCKOUT_THRESHOLD", "3")
	t.Setenv("REVOCATION_FAIL_OPEN", "false")
	cfg, err := Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.AccessTokenTTL != 5*time.Minute {
		t.Fatalf("access ttl = %v", cfg.AccessTokenTTL)
	}
	if cfg.LockoutThreshold != 3 {
		t.Fatalf("threshold = %d", cfg.LockoutThreshold)
	}
	if cfg.RevocationFailOpen {
		t.Fatal("fail-open override ignored")
	}
}

func TestValidateRejectsMissingDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("DATABASE_DSN", "")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for missing DSN")
	}
}

func TestValidateRejectsSharedSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("REFRESH_TOKEN_SECRET", strings.Repeat("a", 32))
	if _, err := Load(); err == nil {
		t.Fatal("expected error for identical secrets")
	}
}

func TestValidateRejectsShortSecret(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_SECRET", "short")
	if _, err := Load(); err == nil {
		t.Fatal("expected error for short secret")
	}
}

func TestValidateRejectsRefreshShorterThanAccess(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("ACCESS_TOKEN_TTL", "1h")
	t.Setenv("REFRESH_TOKEN_TTL", "30m")
	if _, err := Load(); err == nil {
		t.Fatal("expected error when refresh ttl <= access ttl")
	}
}
