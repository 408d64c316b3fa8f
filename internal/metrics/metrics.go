// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ChallengesRequested counts OTP challenge requests by factor and outcome.
	ChallengesRequested = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfagate_otp_challenges_requested_total",
		Help: "The total number of OTP challenge requests",
	}, []string{"mfa_type", "outcome"})

	// ChallengesSubmitted counts OTP submissions by factor and outcome.
	ChallengesSubmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfagate_otp_challenges_submitted_total",
		Help: "The total number of OTP code submissions",
	}, []string{"mfa_type", "outcome"})

	// ChallengesExhausted counts challenges discarded after too many wrong codes.
	ChallengesExhausted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfagate_otp_challenges_exhausted_total",
		Help: "The total number of OTP challenges discarded after too many wrong codes",
	}, []string{"mfa_type"})

	// TokenUpdateConflicts counts access token writes that lost a concurrent update and were retried.
	TokenUpdateConflicts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mfagate_access_token_update_conflicts_total",
		Help: "The total number of access token updates retried after a version conflict",
	})

	// TokensIssued counts issued credentials by kind (access, refresh).
	TokensIssued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfagate_tokens_issued_total",
		Help: "The total number of issued tokens",
	}, []string{"kind"})

	// TokenRefreshTotal counts refresh exchanges by status.
	TokenRefreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mfagate_token_refresh_total",
		Help: "The total number of token refreshes",
	}, []string{"status"})

	// RateLimitExceededTotal counts requests rejected by the rate limiter.
	RateLimitExceededTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mfagate_rate_limit_exceeded_total",
		Help: "The total number of rate limit exceeded events",
	})
)

// Outcome labels shared by the counters above.
const (
	OutcomeSent     = "sent"
	OutcomeApproved = "approved"
	OutcomeNoToken  = "no_token"
	OutcomeNoMFA    = "no_mfa"
	OutcomeError    = "error"
)
