package auth

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

// setupUserDB creates an in-memory SQLite database with the users schema.
func setupUserDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}

	schema := `
		CREATE TABLE users (
			id            TEXT PRIMARY KEY,
			email         TEXT NOT NULL COLLATE NOCASE UNIQUE,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			roles         TEXT NOT NULL DEFAULT '["user"]',
			permissions   TEXT,
			is_active     INTEGER NOT NULL DEFAULT 1,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
	`
	if _, execErr := db.Exec(schema); execErr != nil {
		db.Close()
		t.Fatalf("failed to create test schema: %v", execErr)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStore_CreateAndLookup(t *testing.T) {
	store := NewSQLiteStore(setupUserDB(t))
	ctx := context.Background()

	u := &User{
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "$argon2id$fake",
		Roles:        []Role{RoleUser, RoleAdmin},
		Permissions:  []Permission{"reports:*"},
		IsActive:     true,
	}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if u.ID == "" {
		t.Fatal("ID not generated")
	}

	got, err := store.ByEmail(ctx, "alice@example.com")
	if err != nil {
		t.Fatalf("ByEmail: %v", err)
	}
	if got.Username != "alice" {
		t.Errorf("username = %q, want alice", got.Username)
	}
	if len(got.Roles) != 2 || got.Roles[1] != RoleAdmin {
		t.Errorf("roles = %v, want [user admin]", got.Roles)
	}
	if len(got.Permissions) != 1 || got.Permissions[0] != "reports:*" {
		t.Errorf("permissions = %v, want [reports:*]", got.Permissions)
	}
	if !got.IsActive {
		t.Error("is_active not round-tripped")
	}
	if got.CreatedAt.IsZero() || got.UpdatedAt.IsZero() {
		t.Error("timestamps not round-tripped")
	}

	// COLLATE NOCASE: case-insensitive at the index level.
	if _, err := store.ByEmail(ctx, "ALICE@EXAMPLE.COM"); err != nil {
		t.Errorf("case-insensitive ByEmail: %v", err)
	}

	if _, err := store.ByID(ctx, u.ID); err != nil {
		t.Errorf("ByID: %v", err)
	}
}

func TestSQLiteStore_UniqueViolations(t *testing.T) {
	store := NewSQLiteStore(setupUserDB(t))
	ctx := context.Background()

	seed := &User{Email: "alice@example.com", Username: "alice", PasswordHash: "h", Roles: []Role{RoleUser}, IsActive: true}
	if err := store.Create(ctx, seed); err != nil {
		t.Fatalf("Create: %v", err)
	}

	dup := &User{Email: "Alice@Example.com", Username: "other", PasswordHash: "h", Roles: []Role{RoleUser}, IsActive: true}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrEmailExists) {
		t.Errorf("duplicate email err = %v, want ErrEmailExists", err)
	}

	dup = &User{Email: "bob@example.com", Username: "alice", PasswordHash: "h", Roles: []Role{RoleUser}, IsActive: true}
	if err := store.Create(ctx, dup); !errors.Is(err, ErrUsernameExists) {
		t.Errorf("duplicate username err = %v, want ErrUsernameExists", err)
	}

	count, err := store.Count(ctx)
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if count != 1 {
		t.Errorf("Count = %d, want 1", count)
	}
}

func TestSQLiteStore_NotFound(t *testing.T) {
	store := NewSQLiteStore(setupUserDB(t))
	ctx := context.Background()

	if _, err := store.ByEmail(ctx, "ghost@example.com"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("ByEmail err = %v, want ErrUserNotFound", err)
	}
	if _, err := store.ByID(ctx, "usr-ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("ByID err = %v, want ErrUserNotFound", err)
	}
}

func TestSQLiteStore_Update(t *testing.T) {
	store := NewSQLiteStore(setupUserDB(t))
	ctx := context.Background()

	u := &User{Email: "alice@example.com", Username: "alice", PasswordHash: "h", Roles: []Role{RoleUser}, IsActive: true}
	if err := store.Create(ctx, u); err != nil {
		t.Fatalf("Create: %v", err)
	}

	u.Roles = []Role{RoleAdmin}
	u.IsActive = false
	if err := store.Update(ctx, u); err != nil {
		t.Fatalf("Update: %v", err)
	}

	got, err := store.ByID(ctx, u.ID)
	if err != nil {
		t.Fatalf("ByID: %v", err)
	}
	if len(got.Roles) != 1 || got.Roles[0] != RoleAdmin {
		t.Errorf("roles = %v, want [admin]", got.Roles)
	}
	if got.IsActive {
		t.Error("is_active not updated")
	}

	ghost := &User{ID: "usr-ghost", Roles: []Role{RoleUser}}
	if err := store.Update(ctx, ghost); !errors.Is(err, ErrUserNotFound) {
		t.Errorf("Update missing user err = %v, want ErrUserNotFound", err)
	}
}

func TestSQLiteStore_SatisfiesUserStore(t *testing.T) {
	var _ UserStore = NewSQLiteStore(setupUserDB(t))
	var _ UserStore = NewMemoryStore()
}
