package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mfagate/server/internal/auth"
	"github.com/mfagate/server/internal/middleware"
	"github.com/mfagate/server/internal/model"
)

// ChallengeFlow is the MFA flow used by OtpHandler
type ChallengeFlow interface {
	RequestChallenge(ctx context.Context, token string, factor model.MFAType) (auth.Result, error)
	SubmitChallenge(ctx context.Context, token string, factor model.MFAType, code string) (auth.Result, error)
}

// OtpHandler handles the /otp endpoints
type OtpHandler struct {
	flow ChallengeFlow
	log  *zap.Logger
}

// NewOtpHandler creates a new OTP handler
func NewOtpHandler(flow ChallengeFlow, log *zap.Logger) *OtpHandler {
	return &OtpHandler{flow: flow, log: log}
}

// validateTokenRequest is the request body for POST /otp/validate_token
type validateTokenRequest struct {
	Code string `json:"code"`
	Type string `json:"type"`
}

// accessTokenResponse is the refreshed token record returned after a factor is approved
type accessTokenResponse struct {
	Token     string          `json:"token"`
	UserID    string          `json:"user_id"`
	CreatedAt string          `json:"created_at"`
	MFAScopes model.MFAScopes `json:"mfa_scopes"`
	Scopes    model.Scope     `json:"scopes"`
}

func newAccessTokenResponse(t *model.AccessToken) accessTokenResponse {
	return accessTokenResponse{
		Token:     t.Token,
		UserID:    t.UserID.String(),
		CreatedAt: t.CreatedAt.UTC().Format(time.RFC3339),
		MFAScopes: t.MFAScopes,
		Scopes:    t.Scopes,
	}
}

func resultResponse(res auth.Result) statusResponse {
	if !res.Status {
		return statusResponse{Status: false, Error: res.Message, Reason: string(res.Reason)}
	}
	out := statusResponse{Status: true, Message: res.Message}
	if res.AccessToken != nil {
		out.AccessToken = newAccessTokenResponse(res.AccessToken)
	}
	return out
}

// HandleSendToken handles POST /otp/send_token?mfa_type=<factor>
func (h *OtpHandler) HandleSendToken(w http.ResponseWriter, r *http.Request) {
	record, ok := middleware.GetAccessToken(r.Context())
	if !ok || record == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	factor := model.ParseMFAType(strings.TrimSpace(r.URL.Query().Get("mfa_type")))
	res, err := h.flow.RequestChallenge(r.Context(), record.Token, factor)
	if err != nil {
		h.log.Error("request otp challenge failed",
			zap.String("user_id", record.UserID.String()),
			zap.String("mfa_type", factor.String()),
			zap.Error(err),
		)
		respondInternalError(w)
		return
	}
	respondJSON(w, http.StatusOK, resultResponse(res))
}

// HandleValidateToken handles POST /otp/validate_token
func (h *OtpHandler) HandleValidateToken(w http.ResponseWriter, r *http.Request) {
	record, ok := middleware.GetAccessToken(r.Context())
	if !ok || record == nil {
		respondWithError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req validateTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, statusResponse{Status: false, Error: "invalid request body"})
		return
	}

	factor := model.ParseMFAType(strings.TrimSpace(req.Type))
	res, err := h.flow.SubmitChallenge(r.Context(), record.Token, factor, strings.TrimSpace(req.Code))
	if err != nil {
		h.log.Error("submit otp challenge failed",
			zap.String("user_id", record.UserID.String()),
			zap.String("mfa_type", factor.String()),
			zap.Error(err),
		)
		respondInternalError(w)
		return
	}
	respondJSON(w, http.StatusOK, resultResponse(res))
}
