package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Keywarden.
// All configuration is loaded from YAML and can be overridden by
// environment variables.
type Config struct {
	Database DatabaseConfig `yaml:"database"`
	API      APIConfig      `yaml:"api"`
	Logging  LoggingConfig  `yaml:"logging"`
	Security SecurityConfig `yaml:"security"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
	CORS     CORSConfig       `yaml:"cors"`
}

// APITimeoutConfig contains HTTP timeout settings (seconds).
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// SecurityConfig contains the authentication and authorisation settings.
type SecurityConfig struct {
	JWT       JWTConfig       `yaml:"jwt"`
	Lockout   LockoutConfig   `yaml:"lockout"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`

	// PasswordMinLength is the minimum accepted password length.
	PasswordMinLength int `yaml:"password_min_length"`

	// SessionLimit caps concurrent sessions per user; 0 means unbounded.
	SessionLimit int `yaml:"session_limit"`

	// CleanupInterval is how often expired tokens and counters are
	// purged, in seconds.
	CleanupInterval int `yaml:"cleanup_interval"`
}

// JWTConfig contains JWT token settings. TTLs are minutes.
type JWTConfig struct {
	Secret          string `yaml:"secret"`
	AccessTokenTTL  int    `yaml:"access_token_ttl"`
	RefreshTokenTTL int    `yaml:"refresh_token_ttl"`
}

// LockoutConfig contains per-identity brute-force lockout settings.
type LockoutConfig struct {
	// MaxAttempts is the failed-attempt count that triggers a lockout.
	MaxAttempts int `yaml:"max_attempts"`

	// Duration is how long a triggered lockout lasts, in seconds.
	Duration int `yaml:"duration"`
}

// RateLimitConfig contains per-origin throttling settings.
type RateLimitConfig struct {
	// Window is the per-origin failure-counting window, in seconds.
	Window int `yaml:"window"`

	// MaxFailures is the failed-attempt threshold within one window.
	MaxFailures int `yaml:"max_failures"`

	// RequestsPerMinute throttles all HTTP traffic per client IP at the
	// middleware layer, independent of authentication outcomes.
	RequestsPerMinute int `yaml:"requests_per_minute"`
}

// Load reads configuration from a YAML file and applies environment
// variable overrides.
//
// The loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: KEYWARDEN_SECTION_KEY,
// e.g. KEYWARDEN_DATABASE_PATH, KEYWARDEN_JWT_SECRET.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Path:        "./data/keywarden.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Security: SecurityConfig{
			JWT: JWTConfig{
				AccessTokenTTL:  60,
				RefreshTokenTTL: 10080, // 7 days
			},
			Lockout: LockoutConfig{
				MaxAttempts: 5,
				Duration:    900, // 15 minutes
			},
			RateLimit: RateLimitConfig{
				Window:            60,
				MaxFailures:       10,
				RequestsPerMinute: 120,
			},
			PasswordMinLength: 8,
			SessionLimit:      0,
			CleanupInterval:   300,
		},
	}
}

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("KEYWARDEN_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("KEYWARDEN_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	// JWT secret (IMPORTANT: always override in production)
	if v := os.Getenv("KEYWARDEN_JWT_SECRET"); v != "" {
		cfg.Security.JWT.Secret = v
	}
}

// Validate checks the configuration for errors and security issues.
func (c *Config) Validate() error {
	var errs []string

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	// JWT secret is REQUIRED. An empty or weak secret would let anyone
	// forge access tokens, defeating the entire component.
	const minJWTSecretLength = 32
	if c.Security.JWT.Secret == "" {
		errs = append(errs, "security.jwt.secret is required (set KEYWARDEN_JWT_SECRET environment variable)")
	} else if len(c.Security.JWT.Secret) < minJWTSecretLength {
		errs = append(errs, "security.jwt.secret must be at least 32 characters for adequate security")
	}

	if c.Security.Lockout.MaxAttempts < 1 {
		errs = append(errs, "security.lockout.max_attempts must be at least 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}

// AccessTokenTTL returns the access token lifetime as a Duration.
func (c *SecurityConfig) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenTTL) * time.Minute
}

// RefreshTokenTTL returns the refresh token lifetime as a Duration.
func (c *SecurityConfig) RefreshTokenTTL() time.Duration {
	return time.Duration(c.JWT.RefreshTokenTTL) * time.Minute
}

// LockoutDuration returns the lockout length as a Duration.
func (c *SecurityConfig) LockoutDuration() time.Duration {
	return time.Duration(c.Lockout.Duration) * time.Second
}

// RateLimitWindow returns the origin failure window as a Duration.
func (c *SecurityConfig) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimit.Window) * time.Second
}
