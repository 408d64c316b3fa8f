package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mfagate/server/internal/auth"
	"github.com/mfagate/server/internal/model"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler(pingFunc(func(context.Context) error { return nil }), zap.NewNop()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	NewHealthHandler(pingFunc(func(context.Context) error { return errors.New("down") }), zap.NewNop()).
		ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestResultResponse(t *testing.T) {
	neg := resultResponse(auth.Result{Status: false, Message: "No MFA", Reason: auth.ReasonNoMFA})
	assert.Equal(t, statusResponse{Status: false, Error: "No MFA", Reason: "no-mfa"}, neg)

	pos := resultResponse(auth.Result{
		Status:  true,
		Message: "Approved",
		AccessToken: &model.AccessToken{
			Token:     "tok",
			MFAScopes: model.MFAScopes{model.MFATypeEmail: 1},
			Scopes:    model.ScopeApproved,
		},
	})
	assert.True(t, pos.Status)
	assert.Equal(t, "Approved", pos.Message)
	body, ok := pos.AccessToken.(accessTokenResponse)
	if assert.True(t, ok) {
		assert.Equal(t, "tok", body.Token)
		assert.Equal(t, model.ScopeApproved, body.Scopes)
	}
}

func TestOtpHandler_RequiresTokenInContext(t *testing.T) {
	h := NewOtpHandler(nil, zap.NewNop())

	rec := httptest.NewRecorder()
	h.HandleSendToken(rec, httptest.NewRequest(http.MethodPost, "/otp/send_token?mfa_type=email", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = httptest.NewRecorder()
	h.HandleValidateToken(rec, httptest.NewRequest(http.MethodPost, "/otp/validate_token", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
