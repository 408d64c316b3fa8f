package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mfagate/server/internal/model"
)

// AccessTokenRepo defines the interface for access token repository operations
type AccessTokenRepo interface {
	Create(ctx context.Context, token *model.AccessToken) error
	// GetByToken returns nil when the token is missing, older than maxAge,
	// or (when authorized is set) not yet approved.
	GetByToken(ctx context.Context, token string, maxAge *time.Time, authorized bool) (*model.AccessToken, error)
	// Update writes MFAScopes and Scopes if token.Version still matches the stored row.
	// It returns ErrStaleRecord when another writer got there first.
	Update(ctx context.Context, token *model.AccessToken) (*model.AccessToken, error)
	Delete(ctx context.Context, token string) error
}

type accessTokenRepo struct {
	db *sqlx.DB
}

// NewAccessTokenRepo creates a new AccessTokenRepo instance
func NewAccessTokenRepo(db *sqlx.DB) AccessTokenRepo {
	return &accessTokenRepo{db: db}
}

type accessTokenRow struct {
	Token     string          `db:"token"`
	UserID    string          `db:"user_id"`
	Scopes    string          `db:"scopes"`
	MFAScopes model.MFAScopes `db:"mfa_scopes"`
	Version   int64           `db:"version"`
	CreatedAt int64           `db:"created_at"`
}

func (r accessTokenRow) toModel() (*model.AccessToken, error) {
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user ID: %w", err)
	}
	return &model.AccessToken{
		Token:     r.Token,
		UserID:    userID,
		CreatedAt: fromMillis(r.CreatedAt),
		MFAScopes: r.MFAScopes,
		Scopes:    model.Scope(r.Scopes),
		Version:   r.Version,
	}, nil
}

// Create inserts a new access token
func (r *accessTokenRepo) Create(ctx context.Context, t *model.AccessToken) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO access_tokens (token, user_id, scopes, mfa_scopes, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`), t.Token, t.UserID.String(), string(t.Scopes), t.MFAScopes, t.Version, toMillis(t.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert access token: %w", err)
	}
	return nil
}

// GetByToken looks up a token by exact match with optional age and scope filters
func (r *accessTokenRepo) GetByToken(ctx context.Context, token string, maxAge *time.Time, authorized bool) (*model.AccessToken, error) {
	var b strings.Builder
	b.WriteString(`
		SELECT token, user_id, scopes, mfa_scopes, version, created_at
		FROM access_tokens
		WHERE token = ?`)
	args := []any{token}
	if maxAge != nil {
		b.WriteString(` AND created_at >= ?`)
		args = append(args, toMillis(*maxAge))
	}
	if authorized {
		b.WriteString(` AND scopes = ?`)
		args = append(args, string(model.ScopeApproved))
	}

	var row accessTokenRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(b.String()), args...)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find access token: %w", err)
	}
	return row.toModel()
}

// Update applies the scope fields with a version check and returns the stored row
func (r *accessTokenRepo) Update(ctx context.Context, t *model.AccessToken) (*model.AccessToken, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE access_tokens
		SET mfa_scopes = ?, scopes = ?, version = version + 1
		WHERE token = ? AND version = ?
	`), t.MFAScopes, string(t.Scopes), t.Token, t.Version)
	if err != nil {
		return nil, fmt.Errorf("update access token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("update access token: %w", err)
	}
	if n == 0 {
		return nil, ErrStaleRecord
	}

	updated, err := r.GetByToken(ctx, t.Token, nil, false)
	if err != nil {
		return nil, err
	}
	if updated == nil {
		// Deleted between the update and the re-read.
		return nil, ErrStaleRecord
	}
	return updated, nil
}

// Delete removes the token; deleting a missing token is not an error
func (r *accessTokenRepo) Delete(ctx context.Context, token string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM access_tokens WHERE token = ?`), token)
	if err != nil {
		return fmt.Errorf("delete access token: %w", err)
	}
	return nil
}
