package auth

import (
	"errors"
	"regexp"
	"time"
)

// emailPattern is a pragmatic RFC-shaped check: local part, "@", domain
// with at least one dot. Full RFC 5322 validation is not attempted.
var emailPattern = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9-]+(\.[a-zA-Z0-9-]+)+$`)

// usernamePattern defines the valid format for usernames:
// alphanumeric, dots, hyphens, underscores, 3-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{3,64}$`)

// IsValidEmail checks whether an address is plausibly deliverable.
func IsValidEmail(email string) bool {
	const maxEmailLength = 254
	return len(email) <= maxEmailLength && emailPattern.MatchString(email)
}

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role represents an authorisation tier. Named roles map to default
// permission sets; RoleSuperAdmin is the designated bypass variant that
// authorises every permission string unconditionally.
type Role string

const (
	// RoleUser is the default tier for self-registered accounts.
	RoleUser Role = "user"

	// RoleAdmin manages accounts and reads operational data.
	RoleAdmin Role = "admin"

	// RoleSuperAdmin bypasses permission evaluation entirely.
	// Assign sparingly; there is no further gate behind it.
	RoleSuperAdmin Role = "superadmin"
)

// ValidRoles is the set of roles accepted on user records.
var ValidRoles = []Role{RoleUser, RoleAdmin, RoleSuperAdmin}

// IsValidRole returns true if the role may appear on a user record.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Permission is a named capability, segmented as "domain:action".
// A grant ending in ":*" covers every action in its domain, and the
// bare "*" sentinel covers everything.
type Permission string

// User represents an account record. PasswordHash never leaves the
// package: every Manager operation returns a redacted copy.
type User struct {
	ID           string       `json:"id"`
	Email        string       `json:"email"`
	Username     string       `json:"username"`
	PasswordHash string       `json:"-"` // never serialised
	Roles        []Role       `json:"roles"`
	Permissions  []Permission `json:"permissions,omitempty"`
	IsActive     bool         `json:"is_active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
}

// clone returns a deep copy so callers never share slices with the store.
func (u *User) clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.Roles = append([]Role(nil), u.Roles...)
	c.Permissions = append([]Permission(nil), u.Permissions...)
	return &c
}

// redacted returns a copy safe to hand outside the package.
func (u *User) redacted() *User {
	c := u.clone()
	if c != nil {
		c.PasswordHash = ""
	}
	return c
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(r Role) bool {
	if u == nil {
		return false
	}
	for _, have := range u.Roles {
		if have == r {
			return true
		}
	}
	return false
}

// NewUserInput is the payload accepted by Manager.CreateUser.
// Roles defaults to [user]; Permissions defaults to none.
type NewUserInput struct {
	Email       string       `json:"email"`
	Username    string       `json:"username"`
	Password    string       `json:"password"`
	Roles       []Role       `json:"roles,omitempty"`
	Permissions []Permission `json:"permissions,omitempty"`
}

// TokenPair is one issued login: a short-lived signed access token and
// a longer-lived single-use refresh token.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // access token lifetime, seconds
}

// ClientInfo is the optional request origin passed to Authenticate.
// Only the rate limiter consumes it; a nil ClientInfo (or empty IP)
// degrades gracefully to identity-only lockout.
type ClientInfo struct {
	IP        string
	UserAgent string
}

// Statistics is a point-in-time snapshot of manager state.
type Statistics struct {
	TotalUsers     int `json:"total_users"`
	ActiveSessions int `json:"active_sessions"`
	RevokedTokens  int `json:"revoked_tokens"`
	RefreshTokens  int `json:"refresh_tokens"`
}

// ResolveStrategy controls how ValidateToken resolves the identity
// behind a structurally valid access token.
type ResolveStrategy int

const (
	// RefreshFromStore re-reads the live user record so role and
	// permission changes take effect before the token expires. If the
	// store itself fails, validation falls back to the embedded claims;
	// a missing or deactivated user still denies.
	RefreshFromStore ResolveStrategy = iota

	// TrustClaims reconstructs the user from the token's embedded
	// claims without touching the store.
	TrustClaims
)

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidUsername    = errors.New("invalid username")
	ErrWeakPassword       = errors.New("password too short")
	ErrInvalidRole        = errors.New("invalid role")
	ErrEmailExists        = errors.New("email already registered")
	ErrUsernameExists     = errors.New("username already taken")
	ErrUserNotFound       = errors.New("user not found")
)
