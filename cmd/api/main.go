package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/mfagate/server/internal/auth"
	"github.com/mfagate/server/internal/config"
	"github.com/mfagate/server/internal/db"
	httphandler "github.com/mfagate/server/internal/http"
	"github.com/mfagate/server/internal/http/handlers"
	"github.com/mfagate/server/internal/logger"
	"github.com/mfagate/server/internal/middleware"
	"github.com/mfagate/server/internal/model"
	"github.com/mfagate/server/internal/repo"
)

func main() {
	// Load .env from CWD or server/ so it works from repo root or server/ (env vars override)
	_ = godotenv.Load(".env")
	_ = godotenv.Load("server/.env")

	cfg, err := config.Load()
	if err != nil {
		// No logger yet; fall back to a default one for the fatal message.
		zap.NewExample().Fatal("failed to load configuration", zap.Error(err))
	}

	log := logger.New(cfg.LogLevel, cfg.Env)
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped with error", zap.Error(err))
	}
	log.Info("server exited")
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx := context.Background()

	database, err := db.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseURL, logger.WithComponent(log, "db"))
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.Migrate(ctx, database, logger.WithComponent(log, "migrate")); err != nil {
		return err
	}

	userRepo := repo.NewUserRepo(database)
	tokenRepo := repo.NewAccessTokenRepo(database)
	refreshRepo := repo.NewRefreshRepo(database)

	var otpRepo repo.OtpRepo
	switch cfg.OTPStore {
	case config.OTPStoreRedis:
		client, err := db.OpenRedis(ctx, cfg.RedisURL, logger.WithComponent(log, "redis"))
		if err != nil {
			return err
		}
		defer client.Close()
		otpRepo = repo.NewRedisOtpRepo(client)
	default:
		otpRepo = repo.NewOtpRepo(database)
	}

	factors, err := cfg.Factors()
	if err != nil {
		return err
	}

	authLog := logger.WithComponent(log, "auth")
	strategy := auth.NewTokenStrategy(tokenRepo, userRepo, auth.StaticPolicy(factors...), cfg.AccessTokenLifetime)
	otpManager := auth.NewOtpManager(otpRepo, cfg.OTPSalt, cfg.OTPTTL)
	refreshManager := auth.NewRefreshTokenManager(refreshRepo)
	flow := auth.NewFlow(strategy, otpManager, userRepo, notifiers(cfg, authLog), authLog)
	sessions := auth.NewService(strategy, refreshManager, userRepo, cfg.RefreshTokenBytes, authLog)

	// 10 OTP requests per minute per client IP.
	limiter := middleware.NewRateLimiter(time.Minute, 10)
	defer limiter.Stop()

	httpLog := logger.WithComponent(log, "http")
	router := httphandler.NewRouter(httphandler.RouterDeps{
		Tokens:  strategy,
		Otp:     handlers.NewOtpHandler(flow, httpLog),
		Auth:    handlers.NewAuthHandler(sessions, httpLog),
		Health:  handlers.NewHealthHandler(database, httpLog),
		Limiter: limiter,
		Log:     httpLog,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server starting", zap.String("port", cfg.Port), zap.String("driver", cfg.DatabaseDriver),
			zap.String("otp_store", cfg.OTPStore), zap.Any("mfa_factors", factors))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		return err
	case <-quit:
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// notifiers builds the delivery registry. Only e-mail is deliverable; other
// factors resolve to the no-mfa outcome.
func notifiers(cfg *config.Config, log *zap.Logger) map[model.MFAType]auth.Notifier {
	registry := map[model.MFAType]auth.Notifier{}
	switch {
	case cfg.SMTPEnabled():
		registry[model.MFATypeEmail] = auth.NewEmailNotifier(auth.SMTPConfig{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, log)
	case cfg.DevMode:
		log.Warn("SMTP not configured, OTP codes will be logged")
		registry[model.MFATypeEmail] = auth.NewLogNotifier(log)
	default:
		log.Warn("SMTP not configured, e-mail factor is unavailable")
	}
	return registry
}
