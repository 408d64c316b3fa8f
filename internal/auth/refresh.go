package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mfagate/server/internal/model"
	"github.com/mfagate/server/internal/repo"
)

const (
	// RefreshTokenLifetime is fixed; refresh tokens carry no MFA state.
	RefreshTokenLifetime = 30 * 24 * time.Hour
	// DefaultRefreshTokenBytes is the random length used when none is configured.
	DefaultRefreshTokenBytes = 100
)

// RefreshTokenManager issues, rotates and revokes refresh tokens.
// Only the sha256 of a refresh token is stored.
type RefreshTokenManager struct {
	refresh repo.RefreshRepo
	now     func() time.Time
}

// NewRefreshTokenManager creates a refresh token manager
func NewRefreshTokenManager(refresh repo.RefreshRepo) *RefreshTokenManager {
	return &RefreshTokenManager{refresh: refresh, now: time.Now}
}

// GenerateRefreshToken returns length random bytes as a base64url string
func (m *RefreshTokenManager) GenerateRefreshToken(length int) (string, error) {
	if length <= 0 {
		length = DefaultRefreshTokenBytes
	}
	b := make([]byte, length)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// HashRefreshToken returns SHA256 hex of the token
func HashRefreshToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// CreateRefreshToken persists token for the user, valid for RefreshTokenLifetime.
func (m *RefreshTokenManager) CreateRefreshToken(ctx context.Context, token string, user *model.User) (*model.RefreshToken, error) {
	now := m.now().UTC()
	rt := &model.RefreshToken{
		ID:        uuid.New(),
		UserID:    user.ID,
		TokenHash: HashRefreshToken(token),
		CreatedAt: now,
		ExpireAt:  now.Add(RefreshTokenLifetime),
	}
	if err := m.refresh.Create(ctx, rt); err != nil {
		return nil, err
	}
	rt.Token = token
	return rt, nil
}

// UpdateRefreshToken rotates the stored value in place; id and timestamps are kept.
// It returns repo.ErrStaleRecord if record was already rotated or deleted.
func (m *RefreshTokenManager) UpdateRefreshToken(ctx context.Context, record *model.RefreshToken, newToken string) (*model.RefreshToken, error) {
	hash := HashRefreshToken(newToken)
	if err := m.refresh.UpdateTokenHash(ctx, record.ID, record.TokenHash, hash); err != nil {
		return nil, err
	}
	rotated := *record
	rotated.TokenHash = hash
	rotated.Token = newToken
	return &rotated, nil
}

// DeleteRecord revokes the refresh token
func (m *RefreshTokenManager) DeleteRecord(ctx context.Context, record *model.RefreshToken) error {
	return m.refresh.Delete(ctx, record.ID)
}

// GetByToken looks up a raw refresh token. With validAt set, tokens expired at
// that instant are treated as absent.
func (m *RefreshTokenManager) GetByToken(ctx context.Context, token string, validAt *time.Time) (*model.RefreshToken, error) {
	if token == "" {
		return nil, nil
	}
	return m.refresh.FindByTokenHash(ctx, HashRefreshToken(token), validAt)
}
