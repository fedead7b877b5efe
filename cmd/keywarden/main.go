// Keywarden - Authentication and Authorisation Service
//
// This is the main entry point for the Keywarden service. It wires
// together configuration, logging, the SQLite-backed user store, the
// auth manager, the audit trail, and the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/avayland/keywarden/migrations"

	"github.com/avayland/keywarden/internal/api"
	"github.com/avayland/keywarden/internal/audit"
	"github.com/avayland/keywarden/internal/auth"
	"github.com/avayland/keywarden/internal/infrastructure/config"
	"github.com/avayland/keywarden/internal/infrastructure/database"
	"github.com/avayland/keywarden/internal/infrastructure/logging"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Cancel on interrupt signals (Ctrl+C, SIGTERM) for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for
// testability. Returning an error allows main to handle exit codes
// consistently.
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Keywarden",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Open database
	db, err := database.Open(database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Build the auth manager over the durable user store
	users := auth.NewSQLiteStore(db.DB)
	manager, err := auth.New(auth.Config{
		JWTSecret:          cfg.Security.JWT.Secret,
		TokenExpiry:        cfg.Security.AccessTokenTTL(),
		RefreshTokenExpiry: cfg.Security.RefreshTokenTTL(),
		MaxLoginAttempts:   cfg.Security.Lockout.MaxAttempts,
		LockoutDuration:    cfg.Security.LockoutDuration(),
		PasswordMinLength:  cfg.Security.PasswordMinLength,
		SessionLimit:       cfg.Security.SessionLimit,
		RateLimitWindow:    cfg.Security.RateLimitWindow(),
		RateLimitMax:       cfg.Security.RateLimit.MaxFailures,
	}, users, log)
	if err != nil {
		return fmt.Errorf("creating auth manager: %w", err)
	}
	log.Info("auth manager initialised",
		"session_limit", cfg.Security.SessionLimit,
		"max_login_attempts", cfg.Security.Lockout.MaxAttempts,
	)

	// Audit trail
	auditRepo := audit.NewSQLiteRepository(db.DB)

	// Start the HTTP API
	server, err := api.New(api.Deps{
		Config:   cfg.API,
		Security: cfg.Security,
		Logger:   log,
		Manager:  manager,
		Audit:    auditRepo,
		Version:  version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := server.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := server.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started", "host", cfg.API.Host, "port", cfg.API.Port)

	// Verify connections are healthy
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Keywarden stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses KEYWARDEN_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("KEYWARDEN_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
