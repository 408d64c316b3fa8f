// Command seed creates (or finds) a user by e-mail and prints a fresh session for local testing.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/mfagate/server/internal/auth"
	"github.com/mfagate/server/internal/config"
	"github.com/mfagate/server/internal/db"
	"github.com/mfagate/server/internal/logger"
	"github.com/mfagate/server/internal/repo"
)

func main() {
	email := flag.StringP("email", "e", "", "e-mail address of the user to seed")
	flag.Parse()

	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	if *email == "" {
		log.Fatal("--email is required")
	}

	if err := seed(context.Background(), cfg, log, *email); err != nil {
		log.Fatal("seed failed", zap.Error(err))
	}
}

func seed(ctx context.Context, cfg *config.Config, log *zap.Logger, email string) error {
	database, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, log)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, log); err != nil {
		return err
	}

	factors, err := cfg.Factors()
	if err != nil {
		return err
	}

	users := repo.NewUserRepo(database)
	strategy := auth.NewTokenStrategy(repo.NewAccessTokenRepo(database), users, auth.StaticPolicy(factors...), cfg.AccessTokenLifetime)
	sessions := auth.NewService(strategy, auth.NewRefreshTokenManager(repo.NewRefreshRepo(database)), users, cfg.RefreshTokenBytes, log)

	user, err := users.GetOrCreateByEmail(ctx, email)
	if err != nil {
		return err
	}
	session, err := sessions.Login(ctx, user)
	if err != nil {
		return err
	}

	fmt.Printf("user_id=%s\n", user.ID)
	fmt.Printf("access_token=%s\n", session.AccessToken.Token)
	fmt.Printf("refresh_token=%s\n", session.RefreshToken.Token)
	fmt.Printf("scopes=%s\n", session.AccessToken.Scopes)
	return nil
}
