package auth

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/mfagate/server/internal/metrics"
	"github.com/mfagate/server/internal/model"
	"github.com/mfagate/server/internal/repo"
)

// ErrInvalidRefreshToken is returned for missing, expired, reused or orphaned refresh tokens.
var ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")

// Session is an issued access/refresh token pair.
type Session struct {
	AccessToken  *model.AccessToken
	RefreshToken *model.RefreshToken
}

// Service issues, refreshes and ends sessions
type Service struct {
	strategy     *TokenStrategy
	refresh      *RefreshTokenManager
	users        UserManager
	refreshBytes int
	log          *zap.Logger
}

// NewService creates a session service
func NewService(strategy *TokenStrategy, refresh *RefreshTokenManager, users UserManager, refreshBytes int, log *zap.Logger) *Service {
	if refreshBytes <= 0 {
		refreshBytes = DefaultRefreshTokenBytes
	}
	return &Service{
		strategy:     strategy,
		refresh:      refresh,
		users:        users,
		refreshBytes: refreshBytes,
		log:          log,
	}
}

// Login issues a session for a user whose primary credentials were already checked.
// The access token starts with every policy factor pending.
func (s *Service) Login(ctx context.Context, user *model.User) (*Session, error) {
	if user == nil || !user.IsActive {
		return nil, fmt.Errorf("login: user is not active")
	}
	access, err := s.strategy.WriteToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	raw, err := s.refresh.GenerateRefreshToken(s.refreshBytes)
	if err != nil {
		return nil, err
	}
	rt, err := s.refresh.CreateRefreshToken(ctx, raw, user)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	metrics.TokensIssued.WithLabelValues("access").Inc()
	metrics.TokensIssued.WithLabelValues("refresh").Inc()
	s.log.Info("session issued", zap.String("user_id", user.ID.String()), zap.String("scopes", string(access.Scopes)))
	return &Session{AccessToken: access, RefreshToken: rt}, nil
}

// Refresh exchanges a valid refresh token for a new access token and rotates the
// refresh value. The old refresh value stops working immediately.
func (s *Service) Refresh(ctx context.Context, rawRefresh string) (*Session, error) {
	session, err := s.refreshSession(ctx, rawRefresh)
	switch {
	case err == nil:
		metrics.TokenRefreshTotal.WithLabelValues("success").Inc()
	case errors.Is(err, ErrInvalidRefreshToken):
		metrics.TokenRefreshTotal.WithLabelValues("invalid").Inc()
	default:
		metrics.TokenRefreshTotal.WithLabelValues("error").Inc()
	}
	return session, err
}

func (s *Service) refreshSession(ctx context.Context, rawRefresh string) (*Session, error) {
	now := s.refresh.now()
	rt, err := s.refresh.GetByToken(ctx, rawRefresh, &now)
	if err != nil {
		return nil, fmt.Errorf("look up refresh token: %w", err)
	}
	if rt == nil {
		return nil, ErrInvalidRefreshToken
	}
	user, err := s.users.GetByID(ctx, rt.UserID)
	if err != nil {
		return nil, fmt.Errorf("load refresh token owner: %w", err)
	}
	if user == nil || !user.IsActive {
		return nil, ErrInvalidRefreshToken
	}

	raw, err := s.refresh.GenerateRefreshToken(s.refreshBytes)
	if err != nil {
		return nil, err
	}
	// Rotate first so a concurrent exchange of the same value fails here.
	rotated, err := s.refresh.UpdateRefreshToken(ctx, rt, raw)
	if errors.Is(err, repo.ErrStaleRecord) {
		s.log.Warn("refresh token reuse detected", zap.String("user_id", user.ID.String()))
		return nil, ErrInvalidRefreshToken
	}
	if err != nil {
		return nil, fmt.Errorf("rotate refresh token: %w", err)
	}

	access, err := s.strategy.WriteToken(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	metrics.TokensIssued.WithLabelValues("access").Inc()
	return &Session{AccessToken: access, RefreshToken: rotated}, nil
}

// Logout destroys the access token and, when given, the user's refresh token.
// A refresh token owned by someone else is left untouched.
func (s *Service) Logout(ctx context.Context, user *model.User, accessToken, rawRefresh string) error {
	if err := s.strategy.DestroyToken(ctx, accessToken); err != nil {
		return fmt.Errorf("destroy access token: %w", err)
	}
	if rawRefresh == "" {
		return nil
	}
	rt, err := s.refresh.GetByToken(ctx, rawRefresh, nil)
	if err != nil {
		return fmt.Errorf("look up refresh token: %w", err)
	}
	if rt == nil || rt.UserID != user.ID {
		return nil
	}
	if err := s.refresh.DeleteRecord(ctx, rt); err != nil {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}
