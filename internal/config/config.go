// Package config loads application configuration from the environment (and an optional .env file) using Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/mfagate/server/internal/db"
	"github.com/mfagate/server/internal/model"
)

const (
	OTPStoreSQL   = "sql"
	OTPStoreRedis = "redis"
)

// Config holds the application configuration
type Config struct {
	DatabaseDriver string `mapstructure:"DATABASE_DRIVER"`
	DatabaseURL    string `mapstructure:"DATABASE_URL"`
	Port           string `mapstructure:"PORT"`

	// OTPSalt is mixed into every stored OTP hash.
	OTPSalt  string        `mapstructure:"OTP_SALT"`
	OTPTTL   time.Duration `mapstructure:"OTP_TTL"`
	OTPStore string        `mapstructure:"OTP_STORE"`
	RedisURL string        `mapstructure:"REDIS_URL"`

	// AccessTokenLifetime is the max age of an access token; zero disables the check.
	AccessTokenLifetime time.Duration `mapstructure:"ACCESS_TOKEN_LIFETIME"`
	RefreshTokenBytes   int           `mapstructure:"REFRESH_TOKEN_BYTES"`
	// MFAFactors are the factors every new access token must satisfy.
	MFAFactors []string `mapstructure:"MFA_FACTORS"`

	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     int    `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`
	SMTPFrom     string `mapstructure:"SMTP_FROM"`

	DevMode  bool   `mapstructure:"DEV_MODE"`
	LogLevel string `mapstructure:"LOG_LEVEL"`
	Env      string `mapstructure:"APP_ENV"`
}

// Load reads configuration from environment variables. Env vars override .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()

	v.SetDefault("DATABASE_DRIVER", db.DriverPostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("PORT", "8080")
	v.SetDefault("OTP_SALT", "")
	v.SetDefault("OTP_TTL", "10m")
	v.SetDefault("OTP_STORE", OTPStoreSQL)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("ACCESS_TOKEN_LIFETIME", "24h")
	v.SetDefault("REFRESH_TOKEN_BYTES", 100)
	v.SetDefault("MFA_FACTORS", "email")
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("SMTP_FROM", "")
	v.SetDefault("DEV_MODE", false)
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.DatabaseDriver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("config: DATABASE_DRIVER must be %q or %q, got %q", db.DriverPostgres, db.DriverSQLite, c.DatabaseDriver)
	}
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("config: DATABASE_URL environment variable is required")
	}
	if c.OTPSalt == "" {
		return fmt.Errorf("config: OTP_SALT environment variable is required")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("config: OTP_TTL must be positive")
	}
	if c.AccessTokenLifetime < 0 {
		return fmt.Errorf("config: ACCESS_TOKEN_LIFETIME must not be negative")
	}
	if c.RefreshTokenBytes < 32 {
		return fmt.Errorf("config: REFRESH_TOKEN_BYTES must be at least 32")
	}
	switch c.OTPStore {
	case OTPStoreSQL:
	case OTPStoreRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("config: REDIS_URL is required when OTP_STORE=redis")
		}
	default:
		return fmt.Errorf("config: OTP_STORE must be %q or %q, got %q", OTPStoreSQL, OTPStoreRedis, c.OTPStore)
	}
	if _, err := c.Factors(); err != nil {
		return err
	}
	if c.DevMode && c.Env == "production" {
		return fmt.Errorf("config: DEV_MODE must not be true when APP_ENV=production")
	}
	return nil
}

// Factors parses MFAFactors into the closed factor set.
func (c *Config) Factors() ([]model.MFAType, error) {
	var out []model.MFAType
	for _, raw := range c.MFAFactors {
		for _, part := range strings.Split(raw, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			t := model.ParseMFAType(part)
			if t == model.MFATypeUnknown {
				return nil, fmt.Errorf("config: unknown MFA factor %q", part)
			}
			out = append(out, t)
		}
	}
	return out, nil
}

// SMTPEnabled reports whether enough SMTP settings are present to send mail.
func (c *Config) SMTPEnabled() bool {
	return c.SMTPHost != "" && c.SMTPFrom != ""
}
