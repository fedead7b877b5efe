package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/avayland/keywarden/internal/audit"
	"github.com/avayland/keywarden/internal/auth"
)

// registerRequest is the request body for POST /auth/register.
type registerRequest struct {
	Email    string   `json:"email"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Roles    []string `json:"roles,omitempty"`
}

// loginRequest is the request body for POST /auth/login.
type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// refreshRequest is the request body for POST /auth/refresh.
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// handleRegister creates a new user account.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	roles := make([]auth.Role, 0, len(req.Roles))
	for _, role := range req.Roles {
		roles = append(roles, auth.Role(role))
	}

	user, err := s.manager.CreateUser(r.Context(), auth.NewUserInput{
		Email:    req.Email,
		Username: req.Username,
		Password: req.Password,
		Roles:    roles,
	})
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrEmailExists), errors.Is(err, auth.ErrUsernameExists):
			writeConflict(w, err.Error())
		case errors.Is(err, auth.ErrInvalidEmail),
			errors.Is(err, auth.ErrInvalidUsername),
			errors.Is(err, auth.ErrWeakPassword),
			errors.Is(err, auth.ErrInvalidRole):
			writeBadRequest(w, err.Error())
		default:
			writeInternalError(w, "failed to create user")
		}
		return
	}

	s.record(r.Context(), &audit.Entry{
		Action:     audit.ActionUserCreated,
		EntityType: "user",
		EntityID:   user.ID,
		Source:     clientIP(r),
	})

	writeJSON(w, http.StatusCreated, user)
}

// handleLogin authenticates a user and returns a token pair.
//
// All authentication failures return the same 401: the response does
// not distinguish an unknown address from a wrong password or a locked
// account.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	client := &auth.ClientInfo{
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}

	pair, err := s.manager.Authenticate(r.Context(), req.Email, req.Password, client)
	if err != nil {
		s.record(r.Context(), &audit.Entry{
			Action:     audit.ActionLoginFailed,
			EntityType: "user",
			Source:     client.IP,
			Details:    map[string]any{"user_agent": client.UserAgent},
		})
		writeUnauthorized(w, "invalid credentials")
		return
	}

	s.record(r.Context(), &audit.Entry{
		Action:     audit.ActionLogin,
		EntityType: "user",
		Source:     client.IP,
		Details:    map[string]any{"user_agent": client.UserAgent},
	})

	writeJSON(w, http.StatusOK, pair)
}

// handleRefresh rotates a token pair. The presented refresh token is
// single-use; a replayed token gets a 401.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	pair, err := s.manager.RefreshToken(r.Context(), req.RefreshToken)
	if err != nil {
		writeUnauthorized(w, "invalid or expired refresh token")
		return
	}

	s.record(r.Context(), &audit.Entry{
		Action:     audit.ActionRefresh,
		EntityType: "session",
		Source:     clientIP(r),
	})

	writeJSON(w, http.StatusOK, pair)
}

// handleLogout revokes the presented access token. Always returns 204;
// a double logout is not an error.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())

	s.manager.Logout(r.Context(), bearerToken(r))

	entry := &audit.Entry{
		Action:     audit.ActionLogout,
		EntityType: "user",
		Source:     clientIP(r),
	}
	if user != nil {
		entry.EntityID = user.ID
		entry.UserID = user.ID
	}
	s.record(r.Context(), entry)

	w.WriteHeader(http.StatusNoContent)
}

// handleMe returns the authenticated user's own record.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	if user == nil {
		writeUnauthorized(w, "not authenticated")
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// record writes an audit entry, best-effort. A failed write is logged
// but never fails the request.
func (s *Server) record(ctx context.Context, entry *audit.Entry) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("writing audit entry", "action", entry.Action, "error", err)
	}
}
