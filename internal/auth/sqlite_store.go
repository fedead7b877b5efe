package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SQLiteStore implements UserStore on SQLite. It is the substitutable
// durable store: wire it in place of MemoryStore and the manager is
// none the wiser. Email uniqueness is case-insensitive via COLLATE
// NOCASE on the column; roles and permissions are stored as JSON text.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a SQLite-backed user store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Create inserts a new user. The ID is generated if empty. The unique
// indexes make the duplicate check and insert a single atomic step.
func (s *SQLiteStore) Create(ctx context.Context, user *User) error {
	if user.ID == "" {
		user.ID = "usr-" + uuid.NewString()[:8]
	}

	now := time.Now().UTC()
	user.CreatedAt = now.Truncate(time.Second)
	user.UpdatedAt = user.CreatedAt

	rolesJSON, err := json.Marshal(user.Roles)
	if err != nil {
		return fmt.Errorf("encoding roles: %w", err)
	}
	permsJSON, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, email, username, password_hash, roles, permissions, is_active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID, user.Email, user.Username, user.PasswordHash,
		string(rolesJSON), string(permsJSON), boolToInt(user.IsActive),
		now.Format(time.RFC3339), now.Format(time.RFC3339),
	)
	if err != nil {
		switch {
		case isUniqueViolation(err, "users.email"):
			return ErrEmailExists
		case isUniqueViolation(err, "users.username"):
			return ErrUsernameExists
		default:
			return fmt.Errorf("creating user: %w", err)
		}
	}

	return nil
}

// ByEmail retrieves a user by email. The email column is COLLATE
// NOCASE, so the comparison is case-insensitive at the index level.
func (s *SQLiteStore) ByEmail(ctx context.Context, email string) (*User, error) {
	return s.getUser(ctx,
		"SELECT id, email, username, password_hash, roles, permissions, is_active, created_at, updated_at FROM users WHERE email = ?",
		email)
}

// ByID retrieves a user by their unique ID.
func (s *SQLiteStore) ByID(ctx context.Context, id string) (*User, error) {
	return s.getUser(ctx,
		"SELECT id, email, username, password_hash, roles, permissions, is_active, created_at, updated_at FROM users WHERE id = ?",
		id)
}

// Count returns the total number of user records.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("counting users: %w", err)
	}
	return count, nil
}

// Update modifies a user's mutable fields (roles, permissions, is_active).
// Email and username are identity and stay fixed here.
func (s *SQLiteStore) Update(ctx context.Context, user *User) error {
	rolesJSON, err := json.Marshal(user.Roles)
	if err != nil {
		return fmt.Errorf("encoding roles: %w", err)
	}
	permsJSON, err := json.Marshal(user.Permissions)
	if err != nil {
		return fmt.Errorf("encoding permissions: %w", err)
	}

	result, err := s.db.ExecContext(ctx,
		`UPDATE users SET roles = ?, permissions = ?, is_active = ?, updated_at = ? WHERE id = ?`,
		string(rolesJSON), string(permsJSON), boolToInt(user.IsActive),
		time.Now().UTC().Format(time.RFC3339), user.ID,
	)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}

	rows, _ := result.RowsAffected() //nolint:errcheck // always succeeds on SQLite
	if rows == 0 {
		return ErrUserNotFound
	}
	return nil
}

// getUser executes a query and scans a single user result.
func (s *SQLiteStore) getUser(ctx context.Context, query string, args ...any) (*User, error) {
	var u User
	var rolesJSON, permsJSON string
	var isActive int
	var createdAt, updatedAt string

	err := s.db.QueryRowContext(ctx, query, args...).Scan(
		&u.ID, &u.Email, &u.Username, &u.PasswordHash,
		&rolesJSON, &permsJSON, &isActive, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("scanning user: %w", err)
	}

	u.IsActive = isActive != 0
	if err := json.Unmarshal([]byte(rolesJSON), &u.Roles); err != nil {
		return nil, fmt.Errorf("decoding roles: %w", err)
	}
	if permsJSON != "" && permsJSON != "null" {
		if err := json.Unmarshal([]byte(permsJSON), &u.Permissions); err != nil {
			return nil, fmt.Errorf("decoding permissions: %w", err)
		}
	}
	u.CreatedAt, _ = time.Parse(time.RFC3339, createdAt) //nolint:errcheck // format is controlled
	u.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt) //nolint:errcheck // format is controlled

	return &u, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isUniqueViolation checks if a SQLite error is a UNIQUE constraint
// violation on the named column (e.g. "users.email").
func isUniqueViolation(err error, column string) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") && strings.Contains(msg, column)
}
