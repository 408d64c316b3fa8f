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

// UserRepo defines the interface for user repository operations
type UserRepo interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	GetOrCreateByEmail(ctx context.Context, email string) (*model.User, error)
}

type userRepo struct {
	db *sqlx.DB
}

// NewUserRepo creates a new UserRepo instance
func NewUserRepo(db *sqlx.DB) UserRepo {
	return &userRepo{db: db}
}

type userRow struct {
	ID          string         `db:"id"`
	Email       string         `db:"email"`
	PhoneNumber sql.NullString `db:"phone_number"`
	IsActive    bool           `db:"is_active"`
	CreatedAt   int64          `db:"created_at"`
}

func (r userRow) toModel() (*model.User, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to parse user ID: %w", err)
	}
	u := &model.User{
		ID:        id,
		Email:     r.Email,
		IsActive:  r.IsActive,
		CreatedAt: fromMillis(r.CreatedAt),
	}
	if r.PhoneNumber.Valid {
		phone := r.PhoneNumber.String
		u.PhoneNumber = &phone
	}
	return u, nil
}

func (r *userRepo) getOne(ctx context.Context, query string, arg any) (*model.User, error) {
	var row userRow
	err := r.db.GetContext(ctx, &row, r.db.Rebind(query), arg)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return row.toModel()
}

// GetByID retrieves a user by ID; nil when absent
func (r *userRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	return r.getOne(ctx, `
		SELECT id, email, phone_number, is_active, created_at
		FROM users
		WHERE id = ?
	`, id.String())
}

// GetByEmail retrieves a user by email address; nil when absent
func (r *userRepo) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getOne(ctx, `
		SELECT id, email, phone_number, is_active, created_at
		FROM users
		WHERE email = ?
	`, strings.ToLower(strings.TrimSpace(email)))
}

// GetOrCreateByEmail retrieves a user by email or creates one if it doesn't exist
func (r *userRepo) GetOrCreateByEmail(ctx context.Context, email string) (*model.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return nil, fmt.Errorf("email is required")
	}

	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO users (id, email, is_active, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (email) DO NOTHING
	`), uuid.New().String(), email, true, toMillis(time.Now()))
	if err != nil {
		return nil, fmt.Errorf("failed to insert user: %w", err)
	}

	// Now select the user (whether it was just created or already existed)
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, fmt.Errorf("user %q vanished after insert", email)
	}
	return u, nil
}
