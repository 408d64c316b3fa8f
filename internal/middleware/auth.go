package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mfagate/server/internal/auth"
	"github.com/mfagate/server/internal/model"
)

type contextKey string

const (
	userKey        contextKey = "user"
	accessTokenKey contextKey = "access_token"
)

// TokenReader resolves bearer tokens to their owner and record.
type TokenReader interface {
	ReadTokenRecord(ctx context.Context, token string, opts auth.ReadOptions) (*model.User, *model.AccessToken, error)
	MaxAgeCutoff() *time.Time
}

// AuthMiddleware validates the bearer access token and attaches the active user and
// token record to the context. With authorized set, only fully MFA-approved tokens pass.
func AuthMiddleware(tokens TokenReader, authorized bool, log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			user, record, err := tokens.ReadTokenRecord(r.Context(), token, auth.ReadOptions{
				MaxAge:     tokens.MaxAgeCutoff(),
				Authorized: authorized,
			})
			if err != nil {
				log.Error("read access token", zap.Error(err))
				respondWithError(w, http.StatusInternalServerError, "internal error")
				return
			}
			if user == nil || !user.IsActive {
				respondWithError(w, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), userKey, user)
			ctx = context.WithValue(ctx, accessTokenKey, record)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) (string, bool) {
	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}

// GetUser returns the user attached to the request context (set by AuthMiddleware)
func GetUser(ctx context.Context) (*model.User, bool) {
	u, ok := ctx.Value(userKey).(*model.User)
	return u, ok
}

// GetAccessToken returns the token record attached by AuthMiddleware
func GetAccessToken(ctx context.Context) (*model.AccessToken, bool) {
	t, ok := ctx.Value(accessTokenKey).(*model.AccessToken)
	return t, ok
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	response := map[string]string{"error": message}
	_ = json.NewEncoder(w).Encode(response)
}
