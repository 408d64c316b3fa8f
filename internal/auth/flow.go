package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mfagate/server/internal/metrics"
	"github.com/mfagate/server/internal/model"
	"github.com/mfagate/server/internal/repo"
)

// Reason explains a negative Result.
type Reason string

const (
	// ReasonNoToken covers a missing access token and every failed code submission
	// (wrong, expired, never issued) without telling them apart.
	ReasonNoToken Reason = "no-token"
	// ReasonNoMFA means the factor is not required for the token or cannot be delivered.
	ReasonNoMFA Reason = "no-mfa"
)

const (
	MessageApproved  = "Approved"
	MessageNoMFA     = "No MFA"
	MessageInvalid   = "Invalid or expired code"
	MessageEmailSent = "E-mail was sent"
)

// Result is the domain outcome of a flow step. Infrastructure failures are
// returned as errors instead.
type Result struct {
	Status      bool
	Message     string
	Reason      Reason
	AccessToken *model.AccessToken
}

func noToken() Result {
	return Result{Status: false, Message: MessageInvalid, Reason: ReasonNoToken}
}

func noMFA() Result {
	return Result{Status: false, Message: MessageNoMFA, Reason: ReasonNoMFA}
}

// Flow upgrades access tokens from pending to approved by OTP challenges.
type Flow struct {
	strategy  *TokenStrategy
	otps      *OtpManager
	users     UserManager
	notifiers map[model.MFAType]Notifier
	otpLength int
	backoff   func() retry.Backoff
	log       *zap.Logger
}

// NewFlow creates the MFA flow. Factors without an entry in notifiers are
// treated as unavailable.
func NewFlow(strategy *TokenStrategy, otps *OtpManager, users UserManager, notifiers map[model.MFAType]Notifier, log *zap.Logger) *Flow {
	return &Flow{
		strategy:  strategy,
		otps:      otps,
		users:     users,
		notifiers: notifiers,
		otpLength: DefaultOTPLength,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(8, retry.WithJitter(2*time.Millisecond, retry.NewExponential(5*time.Millisecond)))
		},
		log: log,
	}
}

func sentMessage(factor model.MFAType) string {
	switch factor {
	case model.MFATypeEmail:
		return MessageEmailSent
	default:
		return "Code was sent"
	}
}

// RequestChallenge issues a new code for factor on the token, replacing any
// pending one, and hands it to the factor's notifier.
func (f *Flow) RequestChallenge(ctx context.Context, token string, factor model.MFAType) (Result, error) {
	res, err := f.requestChallenge(ctx, token, factor)
	outcome := outcomeLabel(res, err, metrics.OutcomeSent)
	metrics.ChallengesRequested.WithLabelValues(factor.String(), outcome).Inc()
	return res, err
}

func (f *Flow) requestChallenge(ctx context.Context, token string, factor model.MFAType) (Result, error) {
	record, err := f.strategy.GetTokenRecord(ctx, token)
	if err != nil {
		return Result{}, fmt.Errorf("load access token: %w", err)
	}
	if record == nil {
		return noToken(), nil
	}
	if !record.MFAScopes.Has(factor) {
		return noMFA(), nil
	}
	notifier, ok := f.notifiers[factor]
	if !ok {
		f.log.Debug("no notifier for factor", zap.String("mfa_type", factor.String()))
		return noMFA(), nil
	}

	user, err := f.users.GetByID(ctx, record.UserID)
	if err != nil {
		return Result{}, fmt.Errorf("load token owner: %w", err)
	}
	if user == nil {
		return noToken(), nil
	}

	existing, err := f.otps.UserHasIssuedToken(ctx, record.Token, factor)
	if err != nil {
		return Result{}, fmt.Errorf("look up pending challenge: %w", err)
	}
	if existing != nil {
		if _, err := f.otps.DeleteRecord(ctx, existing); err != nil {
			return Result{}, fmt.Errorf("invalidate pending challenge: %w", err)
		}
	}

	code, err := f.otps.GenerateOTPToken(f.otpLength)
	if err != nil {
		return Result{}, err
	}
	challenge, err := f.otps.CreateOTPToken(ctx, record.Token, code, factor)
	if err != nil {
		return Result{}, fmt.Errorf("create challenge: %w", err)
	}

	if err := notifier.Notify(ctx, user, record, challenge); err != nil {
		return Result{}, fmt.Errorf("notify: %w", err)
	}

	f.log.Info("otp challenge issued",
		zap.String("user_id", user.ID.String()),
		zap.String("mfa_type", factor.String()),
		zap.Time("expire_at", challenge.ExpireAt),
	)
	return Result{Status: true, Message: sentMessage(factor)}, nil
}

// SubmitChallenge checks code for factor and, on a match, consumes the
// challenge and marks the factor satisfied. A wrong code counts against the
// pending challenge, which is discarded after DefaultMaxOTPAttempts misses.
// Only one submission can consume a challenge; the rest get ReasonNoToken.
func (f *Flow) SubmitChallenge(ctx context.Context, token string, factor model.MFAType, code string) (Result, error) {
	res, err := f.submitChallenge(ctx, token, factor, code)
	outcome := outcomeLabel(res, err, metrics.OutcomeApproved)
	metrics.ChallengesSubmitted.WithLabelValues(factor.String(), outcome).Inc()
	return res, err
}

func (f *Flow) submitChallenge(ctx context.Context, token string, factor model.MFAType, code string) (Result, error) {
	if token == "" {
		return noToken(), nil
	}
	challenge, err := f.otps.FindOTPToken(ctx, token, factor, code, true)
	if err != nil {
		return Result{}, fmt.Errorf("look up challenge: %w", err)
	}
	if challenge == nil {
		exhausted, err := f.otps.RegisterFailedAttempt(ctx, token, factor)
		if err != nil {
			return Result{}, fmt.Errorf("record failed attempt: %w", err)
		}
		if exhausted {
			metrics.ChallengesExhausted.WithLabelValues(factor.String()).Inc()
			f.log.Warn("otp challenge discarded after too many wrong codes", zap.String("mfa_type", factor.String()))
		}
		return noToken(), nil
	}

	consumed, err := f.otps.DeleteRecord(ctx, challenge)
	if err != nil {
		return Result{}, fmt.Errorf("consume challenge: %w", err)
	}
	if !consumed {
		return noToken(), nil
	}

	var updated *model.AccessToken
	err = retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		record, err := f.strategy.GetTokenRecord(ctx, token)
		if err != nil {
			return err
		}
		if record == nil {
			updated = nil
			return nil
		}
		scopes := record.MFAScopes.Clone()
		scopes[factor] = 1

		updated, err = f.strategy.UpdateToken(ctx, record, TokenUpdate{MFAScopes: scopes})
		if errors.Is(err, repo.ErrStaleRecord) {
			metrics.TokenUpdateConflicts.Inc()
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("approve factor: %w", err)
	}
	if updated == nil {
		return noToken(), nil
	}

	f.log.Info("mfa factor approved",
		zap.String("user_id", updated.UserID.String()),
		zap.String("mfa_type", factor.String()),
		zap.String("scopes", string(updated.Scopes)),
	)
	return Result{Status: true, Message: MessageApproved, AccessToken: updated}, nil
}

func outcomeLabel(res Result, err error, success string) string {
	switch {
	case err != nil:
		return metrics.OutcomeError
	case res.Status:
		return success
	case res.Reason == ReasonNoMFA:
		return metrics.OutcomeNoMFA
	default:
		return metrics.OutcomeNoToken
	}
}
