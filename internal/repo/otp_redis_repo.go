package repo

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/mfagate/server/internal/model"
)

// deleteIfMatch removes the challenge hash only while it still holds the given code,
// so consuming a superseded challenge never removes its replacement.
var deleteIfMatch = redis.NewScript(`
if redis.call("HGET", KEYS[1], "mfa_token") == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// incrementIfExists counts a wrong code without recreating a hash that has
// already expired or been consumed.
var incrementIfExists = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
	return 0
end
return redis.call("HINCRBY", KEYS[1], "attempt_count", 1)
`)

type redisOtpRepo struct {
	client *redis.Client
}

// NewRedisOtpRepo returns an OtpRepo that keeps one hash per (access token, factor)
// and lets Redis evict it once expire_at passes.
func NewRedisOtpRepo(client *redis.Client) OtpRepo {
	return &redisOtpRepo{client: client}
}

func otpKey(accessToken string, mfaType model.MFAType) string {
	return fmt.Sprintf("otp:%s:%s", accessToken, mfaType)
}

// Create replaces whatever challenge is stored for the factor in one MULTI/EXEC.
func (r *redisOtpRepo) Create(ctx context.Context, c *model.OtpChallenge) error {
	key := otpKey(c.AccessToken, c.MFAType)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key,
			"mfa_token", c.MFAToken,
			"attempt_count", c.AttemptCount,
			"created_at", toMillis(c.CreatedAt),
			"expire_at", toMillis(c.ExpireAt),
		)
		pipe.PExpireAt(ctx, key, c.ExpireAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("store otp challenge: %w", err)
	}
	return nil
}

func (r *redisOtpRepo) load(ctx context.Context, accessToken string, mfaType model.MFAType) (*model.OtpChallenge, error) {
	fields, err := r.client.HGetAll(ctx, otpKey(accessToken, mfaType)).Result()
	if err != nil {
		return nil, fmt.Errorf("load otp challenge: %w", err)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	createdAt, err := strconv.ParseInt(fields["created_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	expireAt, err := strconv.ParseInt(fields["expire_at"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse expire_at: %w", err)
	}
	var attempts int
	if raw, ok := fields["attempt_count"]; ok {
		if attempts, err = strconv.Atoi(raw); err != nil {
			return nil, fmt.Errorf("parse attempt_count: %w", err)
		}
	}
	return &model.OtpChallenge{
		AccessToken:  accessToken,
		MFAType:      mfaType,
		MFAToken:     fields["mfa_token"],
		AttemptCount: attempts,
		CreatedAt:    fromMillis(createdAt),
		ExpireAt:     fromMillis(expireAt),
	}, nil
}

func (r *redisOtpRepo) GetByAccessToken(ctx context.Context, accessToken string, mfaType model.MFAType, validAt *time.Time) (*model.OtpChallenge, error) {
	c, err := r.load(ctx, accessToken, mfaType)
	if err != nil || c == nil {
		return nil, err
	}
	if validAt != nil && !c.Valid(*validAt) {
		return nil, nil
	}
	return c, nil
}

func (r *redisOtpRepo) Find(ctx context.Context, accessToken string, mfaType model.MFAType, mfaToken string, validAt *time.Time) (*model.OtpChallenge, error) {
	c, err := r.GetByAccessToken(ctx, accessToken, mfaType, validAt)
	if err != nil || c == nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(c.MFAToken), []byte(mfaToken)) != 1 {
		return nil, nil
	}
	return c, nil
}

func (r *redisOtpRepo) IncrementAttempt(ctx context.Context, accessToken string, mfaType model.MFAType, validAt time.Time) (*model.OtpChallenge, error) {
	n, err := incrementIfExists.Run(ctx, r.client, []string{otpKey(accessToken, mfaType)}).Int64()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("increment otp attempt: %w", err)
	}
	if n == 0 {
		return nil, nil
	}
	return r.GetByAccessToken(ctx, accessToken, mfaType, &validAt)
}

func (r *redisOtpRepo) Delete(ctx context.Context, c *model.OtpChallenge) (bool, error) {
	n, err := deleteIfMatch.Run(ctx, r.client, []string{otpKey(c.AccessToken, c.MFAType)}, c.MFAToken).Int64()
	if err != nil && err != redis.Nil {
		return false, fmt.Errorf("delete otp challenge: %w", err)
	}
	return n > 0, nil
}
