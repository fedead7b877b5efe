package auth

import (
	"context"
	"testing"
	"time"
)

// testSecret is a throwaway JWT secret long enough to pass validation.
const testSecret = "test-secret-0123456789abcdef0123456789abcdef"

// newTestManager creates a manager over a fresh MemoryStore with short,
// test-friendly defaults. The mutate callback can adjust the config
// before construction.
func newTestManager(t *testing.T, mutate func(*Config)) (*Manager, *MemoryStore) {
	t.Helper()

	store := NewMemoryStore()
	cfg := Config{
		JWTSecret:          testSecret,
		TokenExpiry:        time.Hour,
		RefreshTokenExpiry: 24 * time.Hour,
		MaxLoginAttempts:   3,
		LockoutDuration:    15 * time.Minute,
		PasswordMinLength:  8,
		RateLimitWindow:    time.Minute,
		RateLimitMax:       10,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	m, err := New(cfg, store, nil)
	if err != nil {
		t.Fatalf("creating test manager: %v", err)
	}
	return m, store
}

// seedUser creates an active account and returns the stored record.
func seedUser(t *testing.T, m *Manager, email, username, password string, roles ...Role) *User {
	t.Helper()

	user, err := m.CreateUser(context.Background(), NewUserInput{
		Email:    email,
		Username: username,
		Password: password,
		Roles:    roles,
	})
	if err != nil {
		t.Fatalf("seeding user %s: %v", email, err)
	}
	return user
}

// login authenticates and fails the test on error.
func login(t *testing.T, m *Manager, email, password string) *TokenPair {
	t.Helper()

	pair, err := m.Authenticate(context.Background(), email, password, nil)
	if err != nil {
		t.Fatalf("authenticating %s: %v", email, err)
	}
	return pair
}
