package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/mfagate/server/internal/model"
)

// RefreshRepo defines the interface for refresh token repository operations
type RefreshRepo interface {
	Create(ctx context.Context, token *model.RefreshToken) error
	// FindByTokenHash returns nil when missing or, if validAt is set, when expired at that instant.
	FindByTokenHash(ctx context.Context, tokenHash string, validAt *time.Time) (*model.RefreshToken, error)
	// UpdateTokenHash swaps oldHash for newHash; ErrStaleRecord if the row no longer holds oldHash.
	UpdateTokenHash(ctx context.Context, id uuid.UUID, oldHash, newHash string) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type refreshRepo struct {
	db *sqlx.DB
}

// NewRefreshRepo creates a new RefreshRepo instance
func NewRefreshRepo(db *sqlx.DB) RefreshRepo {
	return &refreshRepo{db: db}
}

type refreshRow struct {
	ID        string `db:"id"`
	TokenHash string `db:"token_hash"`
	UserID    string `db:"user_id"`
	CreatedAt int64  `db:"created_at"`
	ExpireAt  int64  `db:"expire_at"`
}

func (r refreshRow) toModel() (*model.RefreshToken, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("parse refresh token ID: %w", err)
	}
	userID, err := uuid.Parse(r.UserID)
	if err != nil {
		return nil, fmt.Errorf("parse user ID: %w", err)
	}
	return &model.RefreshToken{
		ID:        id,
		UserID:    userID,
		TokenHash: r.TokenHash,
		CreatedAt: fromMillis(r.CreatedAt),
		ExpireAt:  fromMillis(r.ExpireAt),
	}, nil
}

// Create inserts a new refresh token record
func (r *refreshRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO refresh_tokens (id, token_hash, user_id, created_at, expire_at)
		VALUES (?, ?, ?, ?, ?)
	`), t.ID.String(), t.TokenHash, t.UserID.String(), toMillis(t.CreatedAt), toMillis(t.ExpireAt))
	if err != nil {
		return fmt.Errorf("insert refresh token: %w", err)
	}
	return nil
}

// FindByTokenHash returns the record for the hash, optionally requiring it to be unexpired
func (r *refreshRepo) FindByTokenHash(ctx context.Context, tokenHash string, validAt *time.Time) (*model.RefreshToken, error) {
	query := `
		SELECT id, token_hash, user_id, created_at, expire_at
		FROM refresh_tokens
		WHERE token_hash = ?`
	args := []any{tokenHash}
	if validAt != nil {
		query += ` AND expire_at > ?`
		args = append(args, toMillis(*validAt))
	}

	var row refreshRow
	if err := r.db.GetContext(ctx, &row, r.db.Rebind(query), args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("find refresh token: %w", err)
	}
	return row.toModel()
}

// UpdateTokenHash rotates the stored token value in place
func (r *refreshRepo) UpdateTokenHash(ctx context.Context, id uuid.UUID, oldHash, newHash string) error {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE refresh_tokens SET token_hash = ? WHERE id = ? AND token_hash = ?
	`), newHash, id.String(), oldHash)
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rotate refresh token: %w", err)
	}
	if n == 0 {
		return ErrStaleRecord
	}
	return nil
}

// Delete revokes the refresh token permanently
func (r *refreshRepo) Delete(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`DELETE FROM refresh_tokens WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("delete refresh token: %w", err)
	}
	return nil
}
