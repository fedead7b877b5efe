package auth

import (
	"sync"
	"time"
)

// session is one issued login. The access token is tracked by jti, the
// refresh token by hash; rotation swaps both in place so the session
// keeps its FIFO slot in the per-user cap accounting.
type session struct {
	id            string
	userID        string
	accessID      string // jti of the current access token
	refreshHash   string
	issuedAt      time.Time
	accessExpiry  time.Time
	refreshExpiry time.Time
}

// sessionLedger owns sessions, the revocation blacklist, and the
// refresh-token index. One mutex covers every mutation: that is what
// makes rotation atomic (a refresh token consumed by one goroutine is
// gone before a concurrent call can look it up) and keeps eviction
// atomic with issuance.
type sessionLedger struct {
	mu        sync.Mutex
	sessions  map[string]*session  // by session id
	byAccess  map[string]string    // access jti -> session id
	byRefresh map[string]string    // refresh hash -> session id
	byUser    map[string][]string  // user id -> session ids, oldest first
	revoked   map[string]time.Time // access jti -> natural expiry

	limit int // max live sessions per user; 0 means unbounded
	now   func() time.Time
}

func newSessionLedger(limit int) *sessionLedger {
	return &sessionLedger{
		sessions:  make(map[string]*session),
		byAccess:  make(map[string]string),
		byRefresh: make(map[string]string),
		byUser:    make(map[string][]string),
		revoked:   make(map[string]time.Time),
		limit:     limit,
		now:       time.Now,
	}
}

// register installs a new session, evicting the user's oldest live
// sessions first if the cap would be exceeded. Evicted access tokens
// land on the blacklist so they stop validating immediately.
func (l *sessionLedger) register(s *session) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.limit > 0 {
		for len(l.byUser[s.userID]) >= l.limit {
			oldest := l.byUser[s.userID][0]
			l.dropLocked(l.sessions[oldest], true)
		}
	}

	l.sessions[s.id] = s
	l.byAccess[s.accessID] = s.id
	l.byRefresh[s.refreshHash] = s.id
	l.byUser[s.userID] = append(l.byUser[s.userID], s.id)
}

// isRevoked reports whether an access token id is blacklisted.
func (l *sessionLedger) isRevoked(jti string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.revoked[jti]
	return ok
}

// consumeRefresh atomically spends a refresh token. The hash mapping is
// removed and the old access token blacklisted before the lock is
// released, so a concurrent replay of the same token cannot also
// succeed. Returns a copy of the session, or false for unknown,
// expired, or already-spent tokens.
func (l *sessionLedger) consumeRefresh(refreshHash string) (session, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	id, ok := l.byRefresh[refreshHash]
	if !ok {
		return session{}, false
	}
	s := l.sessions[id]
	if l.now().After(s.refreshExpiry) {
		l.dropLocked(s, false)
		return session{}, false
	}

	delete(l.byRefresh, refreshHash)
	delete(l.byAccess, s.accessID)
	l.revoked[s.accessID] = s.accessExpiry
	s.refreshHash = ""
	return *s, true
}

// install completes a rotation begun by consumeRefresh: the session is
// re-keyed under its new access jti and refresh hash. issuedAt is
// preserved so the session keeps its place in eviction order.
func (l *sessionLedger) install(sessionID, accessID, refreshHash string, accessExpiry, refreshExpiry time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.sessions[sessionID]
	if !ok {
		return false
	}
	s.accessID = accessID
	s.refreshHash = refreshHash
	s.accessExpiry = accessExpiry
	s.refreshExpiry = refreshExpiry
	l.byAccess[accessID] = sessionID
	l.byRefresh[refreshHash] = sessionID
	return true
}

// abandon removes a half-rotated session (consumeRefresh succeeded but
// the new pair could not be issued, e.g. the subject vanished).
func (l *sessionLedger) abandon(sessionID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if s, ok := l.sessions[sessionID]; ok {
		l.dropLocked(s, true)
	}
}

// revokeAccess blacklists an access token until its natural expiry and
// removes the session it belongs to, if any. Calling it twice for the
// same token is a harmless no-op, which is what makes Logout idempotent.
func (l *sessionLedger) revokeAccess(jti string, naturalExpiry time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.revoked[jti] = naturalExpiry
	if id, ok := l.byAccess[jti]; ok {
		l.dropLocked(l.sessions[id], false)
	}
}

// stats returns live session, blacklist, and outstanding refresh counts.
func (l *sessionLedger) stats() (active, revoked, refresh int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for _, s := range l.sessions {
		if now.Before(s.refreshExpiry) {
			active++
		}
	}
	return active, len(l.revoked), len(l.byRefresh)
}

// cleanup purges blacklist entries past their natural expiry (the token
// would fail signature-expiry validation anyway) and sessions whose
// refresh tokens have lapsed. Idempotent; callable at any time.
func (l *sessionLedger) cleanup() (removed int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for jti, expiry := range l.revoked {
		if now.After(expiry) {
			delete(l.revoked, jti)
			removed++
		}
	}
	for _, s := range l.sessions {
		if now.After(s.refreshExpiry) {
			l.dropLocked(s, false)
			removed++
		}
	}
	return removed
}

// dropLocked removes a session from every index. Callers hold l.mu.
// With blacklist=true the session's access token is revoked until its
// natural expiry (eviction, abandonment); with false the token is
// already handled or already dead.
func (l *sessionLedger) dropLocked(s *session, blacklist bool) {
	if s == nil {
		return
	}
	if blacklist {
		l.revoked[s.accessID] = s.accessExpiry
	}
	delete(l.sessions, s.id)
	delete(l.byAccess, s.accessID)
	if s.refreshHash != "" {
		delete(l.byRefresh, s.refreshHash)
	}

	ids := l.byUser[s.userID]
	for i, id := range ids {
		if id == s.id {
			l.byUser[s.userID] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	if len(l.byUser[s.userID]) == 0 {
		delete(l.byUser, s.userID)
	}
}
