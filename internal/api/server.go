// Package api provides the HTTP REST API for Keywarden.
//
// It exposes registration, login, token refresh, logout, and identity
// endpoints, plus admin-only statistics and audit queries gated by the
// permission evaluator.
//
// The server follows the standard lifecycle pattern:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/avayland/keywarden/internal/audit"
	"github.com/avayland/keywarden/internal/auth"
	"github.com/avayland/keywarden/internal/infrastructure/config"
	"github.com/avayland/keywarden/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight
// requests to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Security config.SecurityConfig
	Logger   *logging.Logger
	Manager  *auth.Manager
	Audit    audit.Repository // optional; nil disables the audit trail
	Version  string
}

// Server is the HTTP API server for Keywarden.
//
// It manages the HTTP listener, routes, middleware, and the periodic
// cleanup of expired auth state. Created with New(), started with Start().
type Server struct {
	cfg     config.APIConfig
	secCfg  config.SecurityConfig
	logger  *logging.Logger
	manager *auth.Manager
	audit   audit.Repository
	limiter *ipLimiter
	version string
	server  *http.Server
	cancel  context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("auth manager is required")
	}
	// Audit is optional; endpoints still work without a trail.

	return &Server{
		cfg:     deps.Config,
		secCfg:  deps.Security,
		logger:  deps.Logger,
		manager: deps.Manager,
		audit:   deps.Audit,
		limiter: newIPLimiter(deps.Security.RateLimit.RequestsPerMinute),
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It launches the periodic auth-state cleanup, builds the router, and
// starts the HTTP listener in a background goroutine. The server is
// stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.cleanupLoop(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// cleanupLoop periodically purges expired blacklist entries, sessions,
// and attempt counters, and sweeps idle per-IP limiters. This is what
// bounds the manager's revocation-tracking memory over long uptimes.
func (s *Server) cleanupLoop(ctx context.Context) {
	interval := time.Duration(s.secCfg.CleanupInterval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.manager.Cleanup(ctx)
			s.limiter.sweep()
		}
	}
}
