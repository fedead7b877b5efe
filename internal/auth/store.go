package auth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UserStore is the credential store contract. The manager only ever
// needs these four operations; persistence is the implementation's
// concern, so a durable store can be substituted without touching the
// manager. Implementations must enforce email (case-insensitive) and
// username uniqueness atomically and must hand out copies, never
// references into their own state.
type UserStore interface {
	Create(ctx context.Context, user *User) error
	ByEmail(ctx context.Context, email string) (*User, error)
	ByID(ctx context.Context, id string) (*User, error)
	Count(ctx context.Context) (int, error)
}

// MemoryStore is the in-process UserStore. It is the default
// collaborator for the manager and for tests; state lives entirely in
// maps behind one RWMutex.
type MemoryStore struct {
	mu         sync.RWMutex
	byID       map[string]*User
	byEmail    map[string]string // lowercased email -> id
	byUsername map[string]string // lowercased username -> id
}

// NewMemoryStore creates an empty in-memory user store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:       make(map[string]*User),
		byEmail:    make(map[string]string),
		byUsername: make(map[string]string),
	}
}

// Create inserts a new user. The ID is generated if empty. Uniqueness
// checks and the insert happen under one lock, so a duplicate never
// leaves partial state behind.
func (s *MemoryStore) Create(_ context.Context, user *User) error {
	emailKey := strings.ToLower(user.Email)
	usernameKey := strings.ToLower(user.Username)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byEmail[emailKey]; exists {
		return ErrEmailExists
	}
	if _, exists := s.byUsername[usernameKey]; exists {
		return ErrUsernameExists
	}

	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}
	now := time.Now().UTC().Truncate(time.Second)
	user.CreatedAt = now
	user.UpdatedAt = now

	s.byID[user.ID] = user.clone()
	s.byEmail[emailKey] = user.ID
	s.byUsername[usernameKey] = user.ID
	return nil
}

// ByEmail retrieves a user by email, case-insensitively.
func (s *MemoryStore) ByEmail(_ context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, ErrUserNotFound
	}
	return s.byID[id].clone(), nil
}

// ByID retrieves a user by their unique ID.
func (s *MemoryStore) ByID(_ context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return user.clone(), nil
}

// Count returns the total number of user records.
func (s *MemoryStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID), nil
}

// Update replaces a stored record. Used by tests and admin tooling to
// change roles or deactivate accounts; the authentication flow never
// mutates users.
func (s *MemoryStore) Update(_ context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[user.ID]
	if !ok {
		return ErrUserNotFound
	}

	newEmail := strings.ToLower(user.Email)
	newUsername := strings.ToLower(user.Username)
	oldEmail := strings.ToLower(stored.Email)
	oldUsername := strings.ToLower(stored.Username)

	if newEmail != oldEmail {
		if _, exists := s.byEmail[newEmail]; exists {
			return ErrEmailExists
		}
	}
	if newUsername != oldUsername {
		if _, exists := s.byUsername[newUsername]; exists {
			return ErrUsernameExists
		}
	}

	c := user.clone()
	c.CreatedAt = stored.CreatedAt
	c.UpdatedAt = time.Now().UTC().Truncate(time.Second)

	delete(s.byEmail, oldEmail)
	delete(s.byUsername, oldUsername)
	s.byID[user.ID] = c
	s.byEmail[newEmail] = user.ID
	s.byUsername[newUsername] = user.ID
	return nil
}
