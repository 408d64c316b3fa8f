package db

import (
	"context"
	"embed"
	"fmt"
	"io/fs"

	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/pressly/goose/v3/database"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies the embedded goose migrations. The same SQL serves both
// dialects; timestamps are stored as unix milliseconds for that reason.
func Migrate(ctx context.Context, db *sqlx.DB, log *zap.Logger) error {
	var dialect database.Dialect
	switch db.DriverName() {
	case DriverPostgres:
		dialect = database.DialectPostgres
	case DriverSQLite:
		dialect = database.DialectSQLite3
	default:
		return fmt.Errorf("no migration dialect for driver %q", db.DriverName())
	}

	fsys, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("migrations fs: %w", err)
	}

	provider, err := goose.NewProvider(dialect, db.DB, fsys)
	if err != nil {
		return fmt.Errorf("goose provider: %w", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return fmt.Errorf("goose up: %w", err)
	}
	log.Info("migrations applied", zap.Int("count", len(results)))
	return nil
}
