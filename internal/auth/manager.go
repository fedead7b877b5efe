package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/avayland/keywarden/internal/infrastructure/logging"
)

// Default configuration values, applied by New for zero fields.
const (
	defaultTokenExpiry        = time.Hour
	defaultRefreshTokenExpiry = 7 * 24 * time.Hour
	defaultMaxLoginAttempts   = 5
	defaultLockoutDuration    = 15 * time.Minute
	defaultPasswordMinLength  = 8
	defaultRateLimitWindow    = time.Minute
	defaultRateLimitMax       = 10

	// minJWTSecretLength guards against forgeable tokens; a missing or
	// short secret is the one misconfiguration that fails construction.
	minJWTSecretLength = 32
)

// Config is the manager configuration, accepted at construction.
// Zero values take the documented defaults; SessionLimit zero means
// unbounded concurrent sessions per subject.
type Config struct {
	JWTSecret          string
	TokenExpiry        time.Duration
	RefreshTokenExpiry time.Duration
	MaxLoginAttempts   int
	LockoutDuration    time.Duration
	PasswordMinLength  int
	SessionLimit       int
	RateLimitWindow    time.Duration
	RateLimitMax       int
	Resolve            ResolveStrategy
}

func (c *Config) applyDefaults() {
	if c.TokenExpiry <= 0 {
		c.TokenExpiry = defaultTokenExpiry
	}
	if c.RefreshTokenExpiry <= 0 {
		c.RefreshTokenExpiry = defaultRefreshTokenExpiry
	}
	if c.MaxLoginAttempts <= 0 {
		c.MaxLoginAttempts = defaultMaxLoginAttempts
	}
	if c.LockoutDuration <= 0 {
		c.LockoutDuration = defaultLockoutDuration
	}
	if c.PasswordMinLength <= 0 {
		c.PasswordMinLength = defaultPasswordMinLength
	}
	if c.RateLimitWindow <= 0 {
		c.RateLimitWindow = defaultRateLimitWindow
	}
	if c.RateLimitMax <= 0 {
		c.RateLimitMax = defaultRateLimitMax
	}
}

// Manager is the authentication and authorisation core. All mutable
// state (attempt counters, sessions, blacklist) is owned by the
// instance, so isolated managers can coexist in one process.
type Manager struct {
	cfg      Config
	users    UserStore
	attempts *attemptTracker
	ledger   *sessionLedger
	log      *logging.Logger
}

// New creates a Manager over the given user store. It fails only for
// programmer-error-class misconfiguration; every runtime failure mode
// is a nil-result return on the operation itself.
func New(cfg Config, users UserStore, log *logging.Logger) (*Manager, error) {
	if len(cfg.JWTSecret) < minJWTSecretLength {
		return nil, fmt.Errorf("jwt secret must be at least %d characters", minJWTSecretLength)
	}
	if users == nil {
		return nil, fmt.Errorf("user store is required")
	}
	if log == nil {
		log = logging.Default()
	}
	cfg.applyDefaults()

	return &Manager{
		cfg:      cfg,
		users:    users,
		attempts: newAttemptTracker(cfg.MaxLoginAttempts, cfg.LockoutDuration, cfg.RateLimitWindow, cfg.RateLimitMax),
		ledger:   newSessionLedger(cfg.SessionLimit),
		log:      log.With("component", "auth"),
	}, nil
}

// CreateUser validates and stores a new account. Validation and
// uniqueness failures return a sentinel error with no partial state;
// the returned record never carries the password hash.
func (m *Manager) CreateUser(ctx context.Context, input NewUserInput) (*User, error) {
	email := strings.TrimSpace(strings.ToLower(input.Email))
	username := strings.TrimSpace(input.Username)

	if !IsValidEmail(email) {
		return nil, ErrInvalidEmail
	}
	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if len(input.Password) < m.cfg.PasswordMinLength {
		return nil, ErrWeakPassword
	}

	roles := input.Roles
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}
	for _, r := range roles {
		if !IsValidRole(r) {
			return nil, ErrInvalidRole
		}
	}

	hash, err := HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hashing password: %w", err)
	}

	user := &User{
		Email:        email,
		Username:     username,
		PasswordHash: hash,
		Roles:        roles,
		Permissions:  append([]Permission(nil), input.Permissions...),
		IsActive:     true,
	}
	if err := m.users.Create(ctx, user); err != nil {
		return nil, err
	}

	m.log.Info("user created", "user_id", user.ID, "username", user.Username)
	return user.redacted(), nil
}

// Authenticate verifies credentials and issues a token pair. Every
// failure class collapses to ErrInvalidCredentials: a caller cannot
// tell an unknown address from a wrong password from a lockout, which
// is the point. A locked or throttled attempt is rejected before any
// secret comparison.
func (m *Manager) Authenticate(ctx context.Context, email, password string, client *ClientInfo) (*TokenPair, error) {
	identity := strings.TrimSpace(strings.ToLower(email))
	origin := ""
	if client != nil {
		origin = client.IP
	}

	if identity == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	if !m.attempts.admit(identity, origin) {
		m.log.Warn("authentication rejected at admission", "identity", identity, "origin", origin)
		return nil, ErrInvalidCredentials
	}

	user, err := m.users.ByEmail(ctx, identity)
	if err != nil {
		m.attempts.fail(identity, origin)
		return nil, ErrInvalidCredentials
	}

	match, err := VerifyPassword(password, user.PasswordHash)
	if err != nil || !match || !user.IsActive {
		m.attempts.fail(identity, origin)
		return nil, ErrInvalidCredentials
	}

	pair, err := m.issueSession(user)
	if err != nil {
		return nil, ErrInvalidCredentials
	}

	m.attempts.succeed(identity)
	m.log.Info("user authenticated", "user_id", user.ID)
	return pair, nil
}

// issueSession signs a fresh token pair and registers the session,
// enforcing the per-user cap via FIFO eviction.
func (m *Manager) issueSession(user *User) (*TokenPair, error) {
	now := time.Now()
	sessionID := uuid.NewString()

	access, jti, err := signAccessToken(user, sessionID, m.cfg.JWTSecret, m.cfg.TokenExpiry, now)
	if err != nil {
		return nil, err
	}
	refresh, err := newRefreshToken()
	if err != nil {
		return nil, err
	}

	m.ledger.register(&session{
		id:            sessionID,
		userID:        user.ID,
		accessID:      jti,
		refreshHash:   hashToken(refresh),
		issuedAt:      now,
		accessExpiry:  now.Add(m.cfg.TokenExpiry),
		refreshExpiry: now.Add(m.cfg.RefreshTokenExpiry),
	})

	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(m.cfg.TokenExpiry.Seconds()),
	}, nil
}

// ValidateToken verifies an access token and resolves its subject.
// Signature, expiry, and the revocation blacklist are always checked;
// identity resolution follows the configured strategy. All failures
// map to ErrTokenInvalid.
func (m *Manager) ValidateToken(ctx context.Context, token string) (*User, error) {
	claims, err := parseAccessToken(token, m.cfg.JWTSecret)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if m.ledger.isRevoked(claims.ID) {
		return nil, ErrTokenInvalid
	}
	return m.resolveSubject(ctx, claims)
}

// GetCurrentUser answers "who is this" for a presented token. It is an
// alias of ValidateToken for call sites that read better this way.
func (m *Manager) GetCurrentUser(ctx context.Context, token string) (*User, error) {
	return m.ValidateToken(ctx, token)
}

// resolveSubject turns validated claims into a user record per the
// resolve strategy.
func (m *Manager) resolveSubject(ctx context.Context, claims *Claims) (*User, error) {
	if m.cfg.Resolve == RefreshFromStore {
		user, err := m.users.ByID(ctx, claims.Subject)
		switch {
		case err == nil:
			if !user.IsActive {
				return nil, ErrTokenInvalid
			}
			return user.redacted(), nil
		case errors.Is(err, ErrUserNotFound):
			return nil, ErrTokenInvalid
		default:
			// Store unavailable: fall back to the issuance snapshot so
			// validation keeps working during a storage outage.
			m.log.Warn("user store unavailable, trusting token claims", "error", err)
		}
	}
	return userFromClaims(claims), nil
}

// userFromClaims reconstructs the subject from the token's embedded
// snapshot (TrustClaims path and storage-outage fallback).
func userFromClaims(claims *Claims) *User {
	return &User{
		ID:          claims.Subject,
		Username:    claims.Username,
		Roles:       append([]Role(nil), claims.Roles...),
		Permissions: append([]Permission(nil), claims.Permissions...),
		IsActive:    true,
	}
}

// RefreshToken rotates a token pair. The presented refresh token is
// spent atomically (a concurrent replay gets nil) and the session's old
// access token is blacklisted before the new pair is issued under the
// same session accounting.
func (m *Manager) RefreshToken(ctx context.Context, refreshToken string) (*TokenPair, error) {
	if refreshToken == "" {
		return nil, ErrTokenInvalid
	}

	s, ok := m.ledger.consumeRefresh(hashToken(refreshToken))
	if !ok {
		return nil, ErrTokenInvalid
	}

	user, err := m.users.ByID(ctx, s.userID)
	if err != nil || !user.IsActive {
		m.ledger.abandon(s.id)
		return nil, ErrTokenInvalid
	}

	now := time.Now()
	access, jti, err := signAccessToken(user, s.id, m.cfg.JWTSecret, m.cfg.TokenExpiry, now)
	if err != nil {
		m.ledger.abandon(s.id)
		return nil, ErrTokenInvalid
	}
	refresh, err := newRefreshToken()
	if err != nil {
		m.ledger.abandon(s.id)
		return nil, ErrTokenInvalid
	}

	if !m.ledger.install(s.id, jti, hashToken(refresh), now.Add(m.cfg.TokenExpiry), now.Add(m.cfg.RefreshTokenExpiry)) {
		return nil, ErrTokenInvalid
	}

	m.log.Info("token pair rotated", "user_id", user.ID)
	return &TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(m.cfg.TokenExpiry.Seconds()),
	}, nil
}

// Logout revokes an access token and tears down its session. Unknown,
// malformed, and already-revoked tokens are silently ignored, so a
// double logout is not an error.
func (m *Manager) Logout(_ context.Context, token string) {
	claims, err := parseAccessToken(token, m.cfg.JWTSecret)
	if err != nil {
		return
	}
	m.ledger.revokeAccess(claims.ID, claims.ExpiresAt.Time)
	m.log.Info("session logged out", "user_id", claims.Subject)
}

// Authorize decides whether the user may perform the named permission.
// Thin wrapper over the package-level evaluator so callers holding a
// Manager need no second import surface.
func (m *Manager) Authorize(user *User, permission Permission) bool {
	return Authorize(user, permission)
}

// Statistics returns a read-only snapshot of manager state.
func (m *Manager) Statistics(ctx context.Context) Statistics {
	total, err := m.users.Count(ctx)
	if err != nil {
		m.log.Warn("counting users for statistics", "error", err)
	}
	active, revoked, refresh := m.ledger.stats()
	return Statistics{
		TotalUsers:     total,
		ActiveSessions: active,
		RevokedTokens:  revoked,
		RefreshTokens:  refresh,
	}
}

// Cleanup purges expired blacklist entries, dead sessions, and stale
// attempt counters. Safe to call at any time from any goroutine; this
// is what bounds revocation-tracking memory.
func (m *Manager) Cleanup(_ context.Context) {
	removed := m.ledger.cleanup()
	m.attempts.prune()
	if removed > 0 {
		m.log.Debug("ledger cleanup", "removed", removed)
	}
}
