package auth

import (
	"sync"
	"time"
)

// attemptState is the per-key failure record. A key is either an
// identity (lowercased email) or an origin (client IP); the two kinds
// live in separate maps but share this shape.
type attemptState struct {
	failures    int
	windowStart time.Time
	lockedUntil time.Time
}

// attemptTracker is the rate limiter / lockout guard. Identity keys
// drive the hard lockout (maxAttempts failures lock the account for
// lockout duration, regardless of source); origin keys drive the
// sliding-window throttle (protects many accounts against one source).
//
// A single mutex covers both maps so concurrent failed attempts cannot
// under-count toward a lockout.
type attemptTracker struct {
	mu         sync.Mutex
	identities map[string]*attemptState
	origins    map[string]*attemptState

	maxAttempts int
	lockout     time.Duration
	window      time.Duration
	originMax   int

	now func() time.Time // injectable for tests
}

func newAttemptTracker(maxAttempts int, lockout, window time.Duration, originMax int) *attemptTracker {
	return &attemptTracker{
		identities:  make(map[string]*attemptState),
		origins:     make(map[string]*attemptState),
		maxAttempts: maxAttempts,
		lockout:     lockout,
		window:      window,
		originMax:   originMax,
		now:         time.Now,
	}
}

// admit decides whether an authentication attempt may proceed at all.
// The identity lockout is checked first so a locked account fails fast
// with no secret comparison; then the origin window. An empty origin
// skips origin throttling entirely.
func (t *attemptTracker) admit(identity, origin string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	if st, ok := t.identities[identity]; ok {
		if now.Before(st.lockedUntil) {
			return false
		}
		if !st.lockedUntil.IsZero() && !now.Before(st.lockedUntil) {
			// Lockout served; the counter starts over.
			delete(t.identities, identity)
		}
	}

	if origin != "" {
		if st, ok := t.origins[origin]; ok {
			if now.Sub(st.windowStart) > t.window {
				delete(t.origins, origin)
			} else if st.failures >= t.originMax {
				return false
			}
		}
	}

	return true
}

// fail records a credential mismatch against both keys. Reaching
// maxAttempts on the identity sets lockedUntil from the triggering
// failure; rejected (non-admitted) attempts never reach here, so they
// do not extend an existing lockout.
func (t *attemptTracker) fail(identity, origin string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	st := t.identities[identity]
	if st == nil {
		st = &attemptState{windowStart: now}
		t.identities[identity] = st
	}
	st.failures++
	if st.failures >= t.maxAttempts {
		st.lockedUntil = now.Add(t.lockout)
	}

	if origin != "" {
		ost := t.origins[origin]
		if ost == nil || now.Sub(ost.windowStart) > t.window {
			ost = &attemptState{windowStart: now}
			t.origins[origin] = ost
		}
		ost.failures++
	}
}

// succeed clears the identity's counter and lockout. Origin counters
// are deliberately left alone: one good login does not prove the
// source isn't probing other accounts.
func (t *attemptTracker) succeed(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.identities, identity)
}

// prune drops stale entries: identities whose lockout has passed and
// origins whose window has lapsed. Safe to call at any time.
func (t *attemptTracker) prune() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	for key, st := range t.identities {
		expired := !st.lockedUntil.IsZero() && !now.Before(st.lockedUntil)
		idle := st.lockedUntil.IsZero() && now.Sub(st.windowStart) > t.lockout
		if expired || idle {
			delete(t.identities, key)
		}
	}
	for key, st := range t.origins {
		if now.Sub(st.windowStart) > t.window {
			delete(t.origins, key)
		}
	}
}
