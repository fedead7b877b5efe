package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
)

// TestResilience_ConcurrentRefreshSingleWinner replays one refresh
// token from many goroutines. Exactly one rotation may succeed; the
// token is spent atomically under the ledger lock.
func TestResilience_ConcurrentRefreshSingleWinner(t *testing.T) {
	m, _ := newTestManager(t, nil)
	ctx := context.Background()

	seedUser(t, m, "alice@example.com", "alice", "password123")
	pair := login(t, m, "alice@example.com", "password123")

	const goroutines = 16
	var successes atomic.Int32
	var wg sync.WaitGroup

	start := make(chan struct{})
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			if _, err := m.RefreshToken(ctx, pair.RefreshToken); err == nil {
				successes.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	if got := successes.Load(); got != 1 {
		t.Errorf("concurrent refresh successes = %d, want exactly 1", got)
	}
}

// TestResilience_ConcurrentAuthenticateAndValidate hammers login,
// validation, and logout concurrently to flush out data races under
// the -race detector.
func TestResilience_ConcurrentAuthenticateAndValidate(t *testing.T) {
	m, _ := newTestManager(t, func(c *Config) {
		c.SessionLimit = 4
	})
	ctx := context.Background()

	seedUser(t, m, "alice@example.com", "alice", "password123")

	const goroutines = 8
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				pair, err := m.Authenticate(ctx, "alice@example.com", "password123", nil)
				if err != nil {
					continue // another goroutine's login may have evicted state mid-flight
				}
				m.ValidateToken(ctx, pair.AccessToken) //nolint:errcheck // may be evicted concurrently
				m.Logout(ctx, pair.AccessToken)
			}
		}()
	}
	wg.Wait()

	m.Cleanup(ctx)
}

// TestResilience_ConcurrentFailuresCountExactly verifies failed
// attempts from parallel goroutines never under-count toward a lockout.
func TestResilience_ConcurrentFailuresCountExactly(t *testing.T) {
	m, _ := newTestManager(t, func(c *Config) {
		c.MaxLoginAttempts = 50
	})
	ctx := context.Background()

	seedUser(t, m, "alice@example.com", "alice", "password123")

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Authenticate(ctx, "alice@example.com", "wrong", nil) //nolint:errcheck // failure is the point
		}()
	}
	wg.Wait()

	// 50 failures against a 50-attempt limit: locked.
	if _, err := m.Authenticate(ctx, "alice@example.com", "password123", nil); err == nil {
		t.Error("identity not locked after exactly maxAttempts concurrent failures")
	}
}

// TestIsolatedManagers verifies two managers share no state: a lockout
// or session in one is invisible to the other.
func TestIsolatedManagers(t *testing.T) {
	a, _ := newTestManager(t, nil)
	b, _ := newTestManager(t, nil)
	ctx := context.Background()

	seedUser(t, a, "alice@example.com", "alice", "password123")
	seedUser(t, b, "alice@example.com", "alice", "password123")

	// Lock alice out of manager a.
	for i := 0; i < 3; i++ {
		a.Authenticate(ctx, "alice@example.com", "wrong", nil) //nolint:errcheck // failure is the point
	}
	if _, err := a.Authenticate(ctx, "alice@example.com", "password123", nil); err == nil {
		t.Fatal("manager a did not lock")
	}

	// Manager b is unaffected, and its tokens do not validate on a.
	pair := login(t, b, "alice@example.com", "password123")
	if _, err := a.ValidateToken(ctx, pair.AccessToken); err == nil {
		// Same secret, so the signature checks out; but session state is
		// still per-instance, which revocation makes observable.
		b.Logout(ctx, pair.AccessToken)
		if _, err := a.ValidateToken(ctx, pair.AccessToken); err != nil {
			t.Error("logout in manager b revoked a token inside manager a")
		}
	}
}
