package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mfagate/server/internal/model"
)

// OtpRepo defines the interface for OTP challenge storage.
// Implementations keep at most one challenge per (access token, factor).
type OtpRepo interface {
	// Create stores the challenge, replacing any challenge for the same access token and factor.
	Create(ctx context.Context, c *model.OtpChallenge) error
	// GetByAccessToken returns the challenge for the factor; nil when missing or expired at validAt.
	GetByAccessToken(ctx context.Context, accessToken string, mfaType model.MFAType, validAt *time.Time) (*model.OtpChallenge, error)
	// Find matches all three identity fields; nil when missing or expired at validAt.
	Find(ctx context.Context, accessToken string, mfaType model.MFAType, mfaToken string, validAt *time.Time) (*model.OtpChallenge, error)
	// IncrementAttempt counts one wrong code against the challenge live at validAt and
	// returns it with the new count; nil when there is none.
	IncrementAttempt(ctx context.Context, accessToken string, mfaType model.MFAType, validAt time.Time) (*model.OtpChallenge, error)
	// Delete removes exactly this challenge; a newer replacement is left alone.
	// It reports whether this call removed it.
	Delete(ctx context.Context, c *model.OtpChallenge) (bool, error)
}

const otpColumns = `access_token, mfa_type, mfa_token, attempt_count, created_at, expire_at`

type otpRepo struct {
	db *sqlx.DB
}

// NewOtpRepo creates a new SQL-backed OtpRepo instance
func NewOtpRepo(db *sqlx.DB) OtpRepo {
	return &otpRepo{db: db}
}

type otpRow struct {
	AccessToken  string `db:"access_token"`
	MFAType      string `db:"mfa_type"`
	MFAToken     string `db:"mfa_token"`
	AttemptCount int    `db:"attempt_count"`
	CreatedAt    int64  `db:"created_at"`
	ExpireAt     int64  `db:"expire_at"`
}

func (r otpRow) toModel() *model.OtpChallenge {
	return &model.OtpChallenge{
		AccessToken:  r.AccessToken,
		MFAType:      model.MFAType(r.MFAType),
		MFAToken:     r.MFAToken,
		AttemptCount: r.AttemptCount,
		CreatedAt:    fromMillis(r.CreatedAt),
		ExpireAt:     fromMillis(r.ExpireAt),
	}
}

// Create upserts on the (access_token, mfa_type) key so concurrent requests
// for the same factor leave exactly one row behind.
func (r *otpRepo) Create(ctx context.Context, c *model.OtpChallenge) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO otp_tokens (access_token, mfa_type, mfa_token, created_at, expire_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (access_token, mfa_type) DO UPDATE
		SET mfa_token = excluded.mfa_token,
		    attempt_count = 0,
		    created_at = excluded.created_at,
		    expire_at = excluded.expire_at
	`), c.AccessToken, string(c.MFAType), c.MFAToken, toMillis(c.CreatedAt), toMillis(c.ExpireAt))
	if err != nil {
		return fmt.Errorf("insert otp challenge: %w", err)
	}
	return nil
}

func (r *otpRepo) getOne(ctx context.Context, query string, validAt *time.Time, args ...any) (*model.OtpChallenge, error) {
	if validAt != nil {
		query += ` AND expire_at > ?`
		args = append(args, toMillis(*validAt))
	}
	var row otpRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("query otp challenge: %w", err)
	}
	return row.toModel(), nil
}

// GetByAccessToken returns the current challenge for the factor
func (r *otpRepo) GetByAccessToken(ctx context.Context, accessToken string, mfaType model.MFAType, validAt *time.Time) (*model.OtpChallenge, error) {
	return r.getOne(ctx, `
		SELECT `+otpColumns+`
		FROM otp_tokens
		WHERE access_token = ? AND mfa_type = ?`, validAt, accessToken, string(mfaType))
}

// Find returns the challenge matching token, factor, and code
func (r *otpRepo) Find(ctx context.Context, accessToken string, mfaType model.MFAType, mfaToken string, validAt *time.Time) (*model.OtpChallenge, error) {
	return r.getOne(ctx, `
		SELECT `+otpColumns+`
		FROM otp_tokens
		WHERE access_token = ? AND mfa_type = ? AND mfa_token = ?`, validAt, accessToken, string(mfaType), mfaToken)
}

// IncrementAttempt bumps attempt_count in place, so concurrent wrong guesses are all counted
func (r *otpRepo) IncrementAttempt(ctx context.Context, accessToken string, mfaType model.MFAType, validAt time.Time) (*model.OtpChallenge, error) {
	var row otpRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(`
		UPDATE otp_tokens
		SET attempt_count = attempt_count + 1
		WHERE access_token = ? AND mfa_type = ? AND expire_at > ?
		RETURNING `+otpColumns), accessToken, string(mfaType), toMillis(validAt))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("increment otp attempt: %w", err)
	}
	return row.toModel(), nil
}

// Delete consumes the challenge
func (r *otpRepo) Delete(ctx context.Context, c *model.OtpChallenge) (bool, error) {
	res, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM otp_tokens
		WHERE access_token = ? AND mfa_type = ? AND mfa_token = ?
	`), c.AccessToken, string(c.MFAType), c.MFAToken)
	if err != nil {
		return false, fmt.Errorf("delete otp challenge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete otp challenge: %w", err)
	}
	return n > 0, nil
}
