package auth

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/mfagate/server/internal/model"
	"github.com/mfagate/server/internal/repo"
)

const (
	// DefaultOTPLength is the number of digits in an issued code.
	DefaultOTPLength = 6
	// DefaultOTPTTL is how long a challenge stays valid.
	DefaultOTPTTL = 10 * time.Minute
	// DefaultMaxOTPAttempts is how many wrong codes a challenge absorbs before it is discarded.
	DefaultMaxOTPAttempts = 5
)

var ten = big.NewInt(10)

// OtpManager issues and verifies one-time codes for access token factors.
// Codes are stored as salted hashes; the plaintext only travels on the created record.
type OtpManager struct {
	otps        repo.OtpRepo
	salt        string
	ttl         time.Duration
	maxAttempts int
	now         func() time.Time
}

// NewOtpManager creates a new OTP manager
func NewOtpManager(otps repo.OtpRepo, salt string, ttl time.Duration) *OtpManager {
	if ttl <= 0 {
		ttl = DefaultOTPTTL
	}
	return &OtpManager{otps: otps, salt: salt, ttl: ttl, maxAttempts: DefaultMaxOTPAttempts, now: time.Now}
}

// GenerateOTPToken returns a decimal code with each digit drawn independently from crypto/rand.
func (m *OtpManager) GenerateOTPToken(length int) (string, error) {
	if length <= 0 {
		length = DefaultOTPLength
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", fmt.Errorf("generate otp digit: %w", err)
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}

// hashOTPHex returns SHA-256(accessToken:mfaType:code:salt) as hex for storage
func hashOTPHex(accessToken string, mfaType model.MFAType, code, salt string) string {
	data := fmt.Sprintf("%s:%s:%s:%s", accessToken, mfaType, code, salt)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// UserHasIssuedToken returns the live challenge for the factor, or nil.
func (m *OtpManager) UserHasIssuedToken(ctx context.Context, accessToken string, mfaType model.MFAType) (*model.OtpChallenge, error) {
	now := m.now()
	return m.otps.GetByAccessToken(ctx, accessToken, mfaType, &now)
}

// CreateOTPToken stores a challenge for code. The returned record carries the plaintext in Code.
func (m *OtpManager) CreateOTPToken(ctx context.Context, accessToken, code string, mfaType model.MFAType) (*model.OtpChallenge, error) {
	now := m.now().UTC()
	c := &model.OtpChallenge{
		AccessToken: accessToken,
		MFAType:     mfaType,
		MFAToken:    hashOTPHex(accessToken, mfaType, code, m.salt),
		CreatedAt:   now,
		ExpireAt:    now.Add(m.ttl),
	}
	if err := m.otps.Create(ctx, c); err != nil {
		return nil, err
	}
	c.Code = code
	return c, nil
}

// FindOTPToken matches the access token, factor and code. With onlyValid set,
// expired challenges and challenges out of attempts are treated as absent.
func (m *OtpManager) FindOTPToken(ctx context.Context, accessToken string, mfaType model.MFAType, code string, onlyValid bool) (*model.OtpChallenge, error) {
	if code == "" {
		return nil, nil
	}
	var validAt *time.Time
	if onlyValid {
		now := m.now()
		validAt = &now
	}
	c, err := m.otps.Find(ctx, accessToken, mfaType, hashOTPHex(accessToken, mfaType, code, m.salt), validAt)
	if err != nil || c == nil {
		return nil, err
	}
	if onlyValid && c.AttemptCount >= m.maxAttempts {
		return nil, nil
	}
	return c, nil
}

// RegisterFailedAttempt counts a wrong code against the live challenge for the
// factor and discards the challenge once it reaches the attempt limit. It
// reports whether the challenge was discarded.
func (m *OtpManager) RegisterFailedAttempt(ctx context.Context, accessToken string, mfaType model.MFAType) (bool, error) {
	c, err := m.otps.IncrementAttempt(ctx, accessToken, mfaType, m.now())
	if err != nil || c == nil {
		return false, err
	}
	if c.AttemptCount < m.maxAttempts {
		return false, nil
	}
	if _, err := m.otps.Delete(ctx, c); err != nil {
		return false, err
	}
	return true, nil
}

// DeleteRecord consumes exactly this challenge and reports whether this call
// was the one that removed it.
func (m *OtpManager) DeleteRecord(ctx context.Context, c *model.OtpChallenge) (bool, error) {
	return m.otps.Delete(ctx, c)
}
