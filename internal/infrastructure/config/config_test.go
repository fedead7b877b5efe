package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const testJWTSecret = "file-secret-0123456789abcdef0123456789abcdef"

// writeConfig writes a YAML config to a temp file and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("writing test config: %v", err)
	}
	return path
}

func TestLoad_AppliesFileOverDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  path: /tmp/test-keywarden.db
api:
  port: 9090
logging:
  level: debug
security:
  jwt:
    secret: "`+testJWTSecret+`"
    access_token_ttl: 30
  lockout:
    max_attempts: 7
  session_limit: 3
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "/tmp/test-keywarden.db" {
		t.Errorf("database.path = %q", cfg.Database.Path)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("api.port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging.level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Security.Lockout.MaxAttempts != 7 {
		t.Errorf("lockout.max_attempts = %d, want 7", cfg.Security.Lockout.MaxAttempts)
	}
	if cfg.Security.SessionLimit != 3 {
		t.Errorf("session_limit = %d, want 3", cfg.Security.SessionLimit)
	}

	// Defaults survive for unset fields.
	if !cfg.Database.WALMode {
		t.Error("wal_mode default lost")
	}
	if cfg.Security.RateLimit.MaxFailures != 10 {
		t.Errorf("rate_limit.max_failures = %d, want default 10", cfg.Security.RateLimit.MaxFailures)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
security:
  jwt:
    secret: "`+testJWTSecret+`"
database:
  path: /tmp/from-file.db
`)

	t.Setenv("KEYWARDEN_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("KEYWARDEN_JWT_SECRET", "env-secret-0123456789abcdef0123456789abcdef")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("database.path = %q, want env override", cfg.Database.Path)
	}
	if cfg.Security.JWT.Secret != "env-secret-0123456789abcdef0123456789abcdef" {
		t.Error("jwt secret not overridden by environment")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}

func TestValidate_RejectsMissingOrShortSecret(t *testing.T) {
	cfg := defaultConfig()
	err := cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "jwt.secret") {
		t.Errorf("empty secret err = %v, want jwt.secret error", err)
	}

	cfg.Security.JWT.Secret = "too-short"
	err = cfg.Validate()
	if err == nil || !strings.Contains(err.Error(), "32 characters") {
		t.Errorf("short secret err = %v, want length error", err)
	}

	cfg.Security.JWT.Secret = testJWTSecret
	if err := cfg.Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
}

func TestValidate_BadPortAndLockout(t *testing.T) {
	cfg := defaultConfig()
	cfg.Security.JWT.Secret = testJWTSecret

	cfg.API.Port = 0
	if err := cfg.Validate(); err == nil {
		t.Error("port 0 accepted")
	}

	cfg.API.Port = 8080
	cfg.Security.Lockout.MaxAttempts = 0
	if err := cfg.Validate(); err == nil {
		t.Error("zero max_attempts accepted")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := defaultConfig()

	if got := cfg.Security.AccessTokenTTL(); got != 60*time.Minute {
		t.Errorf("AccessTokenTTL = %v, want 1h", got)
	}
	if got := cfg.Security.RefreshTokenTTL(); got != 7*24*time.Hour {
		t.Errorf("RefreshTokenTTL = %v, want 168h", got)
	}
	if got := cfg.Security.LockoutDuration(); got != 15*time.Minute {
		t.Errorf("LockoutDuration = %v, want 15m", got)
	}
	if got := cfg.Security.RateLimitWindow(); got != time.Minute {
		t.Errorf("RateLimitWindow = %v, want 1m", got)
	}
	if got := cfg.GetReadTimeout(); got != 30*time.Second {
		t.Errorf("GetReadTimeout = %v, want 30s", got)
	}
}
