package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mfagate/server/internal/model"
	"github.com/mfagate/server/internal/repo"
)

const accessTokenBytes = 32

// UserManager resolves the users that own access tokens.
type UserManager interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
}

// MFAPolicy returns the factors a new access token for the user must satisfy.
type MFAPolicy func(user *model.User) []model.MFAType

// StaticPolicy requires the same factors from every user.
func StaticPolicy(factors ...model.MFAType) MFAPolicy {
	return func(*model.User) []model.MFAType { return factors }
}

// ReadOptions narrows which tokens ReadToken accepts.
type ReadOptions struct {
	// MaxAge rejects tokens created before this instant.
	MaxAge *time.Time
	// Authorized rejects tokens that have not passed every MFA factor.
	Authorized bool
}

// TokenUpdate carries the mutable fields of an access token.
type TokenUpdate struct {
	MFAScopes model.MFAScopes
}

// TokenStrategy issues and resolves opaque access tokens.
type TokenStrategy struct {
	tokens   repo.AccessTokenRepo
	users    UserManager
	policy   MFAPolicy
	lifetime time.Duration
	now      func() time.Time
}

// NewTokenStrategy creates a token strategy. A zero lifetime disables the age check in MaxAgeCutoff.
func NewTokenStrategy(tokens repo.AccessTokenRepo, users UserManager, policy MFAPolicy, lifetime time.Duration) *TokenStrategy {
	if policy == nil {
		policy = StaticPolicy()
	}
	return &TokenStrategy{
		tokens:   tokens,
		users:    users,
		policy:   policy,
		lifetime: lifetime,
		now:      time.Now,
	}
}

// Lifetime returns the configured maximum token age.
func (s *TokenStrategy) Lifetime() time.Duration {
	return s.lifetime
}

// MaxAgeCutoff returns now minus the lifetime, or nil when no lifetime is configured.
func (s *TokenStrategy) MaxAgeCutoff() *time.Time {
	if s.lifetime <= 0 {
		return nil
	}
	cutoff := s.now().Add(-s.lifetime)
	return &cutoff
}

// generateAccessToken returns 32 random bytes as a 43 character base64url string
func generateAccessToken() (string, error) {
	b := make([]byte, accessTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// WriteToken issues a new access token for the user with every policy factor pending.
func (s *TokenStrategy) WriteToken(ctx context.Context, user *model.User) (*model.AccessToken, error) {
	value, err := generateAccessToken()
	if err != nil {
		return nil, fmt.Errorf("generate access token: %w", err)
	}
	scopes := model.NewMFAScopes(s.policy(user)...)
	t := &model.AccessToken{
		Token:     value,
		UserID:    user.ID,
		CreatedAt: s.now().UTC(),
		MFAScopes: scopes,
		Scopes:    scopes.Scope(),
	}
	if err := s.tokens.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTokenRecord returns the stored record without age or scope filters; nil when absent.
func (s *TokenStrategy) GetTokenRecord(ctx context.Context, token string) (*model.AccessToken, error) {
	if token == "" {
		return nil, nil
	}
	return s.tokens.GetByToken(ctx, token, nil, false)
}

// ReadToken resolves a token to its owning user; nil when the token or user is absent or filtered out.
func (s *TokenStrategy) ReadToken(ctx context.Context, token string, opts ReadOptions) (*model.User, error) {
	user, _, err := s.ReadTokenRecord(ctx, token, opts)
	return user, err
}

// ReadTokenRecord is ReadToken that also returns the matched token record.
func (s *TokenStrategy) ReadTokenRecord(ctx context.Context, token string, opts ReadOptions) (*model.User, *model.AccessToken, error) {
	if token == "" {
		return nil, nil, nil
	}
	record, err := s.tokens.GetByToken(ctx, token, opts.MaxAge, opts.Authorized)
	if err != nil || record == nil {
		return nil, nil, err
	}
	user, err := s.users.GetByID(ctx, record.UserID)
	if err != nil {
		return nil, nil, fmt.Errorf("load token owner: %w", err)
	}
	if user == nil {
		return nil, nil, nil
	}
	return user, record, nil
}

// UpdateToken replaces the factor map, recomputes the aggregate scope and writes both
// in one conditional update. It returns repo.ErrStaleRecord if record is out of date.
func (s *TokenStrategy) UpdateToken(ctx context.Context, record *model.AccessToken, update TokenUpdate) (*model.AccessToken, error) {
	next := *record
	next.MFAScopes = update.MFAScopes.Clone()
	next.Scopes = next.MFAScopes.Scope()
	return s.tokens.Update(ctx, &next)
}

// DestroyToken deletes the token. Deleting an absent token is not an error.
func (s *TokenStrategy) DestroyToken(ctx context.Context, token string) error {
	return s.tokens.Delete(ctx, token)
}
