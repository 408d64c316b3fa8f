package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Open connects to the configured backend and verifies the connection.
func Open(ctx context.Context, driver, databaseURL string, log *zap.Logger) (*sqlx.DB, error) {
	databaseURL = strings.TrimSpace(databaseURL)
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	switch driver {
	case DriverPostgres:
		return openPostgres(ctx, databaseURL, log)
	case DriverSQLite:
		return openSQLite(ctx, databaseURL, log)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}
}
