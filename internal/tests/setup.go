package tests

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mfagate/server/internal/db"
)

// NewSQLiteDB opens a fresh migrated SQLite database under t.TempDir().
func NewSQLiteDB(t testing.TB) *sqlx.DB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mfagate.db")

	database, err := db.Open(ctx, db.DriverSQLite, path, zap.NewNop())
	require.NoError(t, err, "open sqlite")
	t.Cleanup(func() { database.Close() })

	require.NoError(t, db.Migrate(ctx, database, zap.NewNop()), "migrations must run successfully")
	return database
}

// InsertUser writes a user row directly and returns its id.
func InsertUser(t testing.TB, database *sqlx.DB, email string, active bool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := database.ExecContext(context.Background(), database.Rebind(`
		INSERT INTO users (id, email, is_active, created_at) VALUES (?, ?, ?, ?)
	`), id.String(), email, active, time.Now().UTC().UnixMilli())
	require.NoError(t, err, "insert user")
	return id
}

// TruncateAuthTables clears every auth table for a clean test state.
func TruncateAuthTables(ctx context.Context, database *sqlx.DB) error {
	for _, table := range []string{"otp_tokens", "refresh_tokens", "access_tokens", "users"} {
		if _, err := database.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}
