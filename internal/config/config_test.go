package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfagate/server/internal/db"
	"github.com/mfagate/server/internal/model"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost:5432/mfagate?sslmode=disable")
	t.Setenv("OTP_SALT", "test-otp-salt")
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, db.DriverPostgres, cfg.DatabaseDriver)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.OTPTTL)
	assert.Equal(t, 24*time.Hour, cfg.AccessTokenLifetime)
	assert.Equal(t, 100, cfg.RefreshTokenBytes)
	assert.Equal(t, OTPStoreSQL, cfg.OTPStore)

	factors, err := cfg.Factors()
	require.NoError(t, err)
	assert.Equal(t, []model.MFAType{model.MFATypeEmail}, factors)
}

func TestLoad_Overrides(t *testing.T) {
	setRequired(t)
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("MFA_FACTORS", "email, sms")
	t.Setenv("PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, db.DriverSQLite, cfg.DatabaseDriver)
	assert.Equal(t, 5*time.Minute, cfg.OTPTTL)
	assert.Equal(t, "9090", cfg.Port)

	factors, err := cfg.Factors()
	require.NoError(t, err)
	assert.Equal(t, []model.MFAType{model.MFATypeEmail, model.MFATypeSMS}, factors)
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"missing database url", map[string]string{"DATABASE_URL": ""}},
		{"missing salt", map[string]string{"OTP_SALT": ""}},
		{"bad driver", map[string]string{"DATABASE_DRIVER": "mysql"}},
		{"unknown factor", map[string]string{"MFA_FACTORS": "email,push"}},
		{"redis without url", map[string]string{"OTP_STORE": "redis"}},
		{"dev mode in production", map[string]string{"DEV_MODE": "true", "APP_ENV": "production"}},
		{"short refresh token", map[string]string{"REFRESH_TOKEN_BYTES": "8"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestSMTPEnabled(t *testing.T) {
	assert.False(t, (&Config{}).SMTPEnabled())
	assert.True(t, (&Config{SMTPHost: "smtp.example.com", SMTPFrom: "no-reply@example.com"}).SMTPEnabled())
}
