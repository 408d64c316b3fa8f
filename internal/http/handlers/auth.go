package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mfagate/server/internal/auth"
	"github.com/mfagate/server/internal/middleware"
	"github.com/mfagate/server/internal/model"
)

// SessionService issues and ends sessions
type SessionService interface {
	Refresh(ctx context.Context, rawRefresh string) (*auth.Session, error)
	Logout(ctx context.Context, user *model.User, accessToken, rawRefresh string) error
}

// AuthHandler handles session endpoints
type AuthHandler struct {
	sessions SessionService
	log      *zap.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(sessions SessionService, log *zap.Logger) *AuthHandler {
	return &AuthHandler{sessions: sessions, log: log}
}

// refreshRequest is the request body for POST /auth/refresh
type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// sessionResponse is the JSON response for refresh
type sessionResponse struct {
	AccessToken  string      `json:"access_token"`
	RefreshToken string      `json:"refresh_token"`
	TokenType    string      `json:"token_type"`
	Scopes       model.Scope `json:"scopes"`
}

// userResponse is the user object in API responses
type userResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// HandleRefresh handles POST /auth/refresh
func (h *AuthHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.RefreshToken = strings.TrimSpace(req.RefreshToken)
	if req.RefreshToken == "" {
		respondWithError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}

	session, err := h.sessions.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidRefreshToken) {
			respondWithError(w, http.StatusUnauthorized, "invalid or expired refresh token")
			return
		}
		h.log.Error("refresh failed", zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	respondJSON(w, http.StatusOK, sessionResponse{
		AccessToken:  session.AccessToken.Token,
		RefreshToken: session.RefreshToken.Token,
		TokenType:    "bearer",
		Scopes:       session.AccessToken.Scopes,
	})
}

// logoutRequest is the optional request body for POST /auth/logout
type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// HandleLogout handles POST /auth/logout (protected). The bearer token is always
// destroyed; a refresh token in the body is revoked too.
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	record, ok2 := middleware.GetAccessToken(r.Context())
	if !ok || !ok2 || user == nil || record == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req logoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.sessions.Logout(r.Context(), user, record.Token, strings.TrimSpace(req.RefreshToken)); err != nil {
		h.log.Error("logout failed", zap.String("user_id", user.ID.String()), zap.Error(err))
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// HandleMe handles GET /me (requires an MFA-approved token). Returns the authenticated user.
func (h *AuthHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := middleware.GetUser(r.Context())
	if !ok || user == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	respondJSON(w, http.StatusOK, userResponse{
		ID:    user.ID.String(),
		Email: user.Email,
	})
}
