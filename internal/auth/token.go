package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims extends JWT registered claims with the Keywarden identity
// snapshot: roles and explicit grants as of issuance, plus the session
// the token belongs to. The snapshot is what TrustClaims validation
// reconstructs a user from.
type Claims struct {
	jwt.RegisteredClaims
	Username    string       `json:"username,omitempty"`
	Roles       []Role       `json:"roles"`
	Permissions []Permission `json:"perms,omitempty"`
	SessionID   string       `json:"sid"`
}

// signAccessToken creates a signed HS256 access token for a user.
// Returns the compact token and its jti, which the ledger tracks for
// revocation.
func signAccessToken(user *User, sessionID, secret string, ttl time.Duration, now time.Time) (signed, jti string, err error) {
	jti = uuid.NewString()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        jti,
		},
		Username:    user.Username,
		Roles:       append([]Role(nil), user.Roles...),
		Permissions: append([]Permission(nil), user.Permissions...),
		SessionID:   sessionID,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err = token.SignedString([]byte(secret))
	if err != nil {
		return "", "", fmt.Errorf("signing access token: %w", err)
	}
	return signed, jti, nil
}

// parseAccessToken validates signature and expiry and returns the claims.
// Any structural problem maps to ErrTokenInvalid; nothing panics on
// malformed input.
func parseAccessToken(tokenString, secret string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(_ *jwt.Token) (any, error) {
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.ID == "" {
		return nil, fmt.Errorf("%w: missing subject or id", ErrTokenInvalid)
	}

	return claims, nil
}

// refreshTokenBytes is the entropy of a refresh token (256-bit).
const refreshTokenBytes = 32

// newRefreshToken creates a cryptographically random refresh token.
// The raw token goes to the client; only its hash is retained.
func newRefreshToken() (string, error) {
	b := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating refresh token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// hashToken computes the SHA-256 hash of a raw token string. The ledger
// keys refresh tokens by hash so a memory dump never yields usable tokens.
func hashToken(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}
