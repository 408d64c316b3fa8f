package auth

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/mfagate/server/internal/model"
)

// Notifier delivers a freshly created challenge out of band.
type Notifier interface {
	Notify(ctx context.Context, user *model.User, token *model.AccessToken, challenge *model.OtpChallenge) error
}

// SMTPConfig holds the SMTP settings used by EmailNotifier
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type mailDialer interface {
	DialAndSend(m ...*gomail.Message) error
}

// EmailNotifier sends the code to the user's e-mail address over SMTP.
type EmailNotifier struct {
	from   string
	dialer mailDialer
	log    *zap.Logger
}

// NewEmailNotifier creates an SMTP-backed notifier
func NewEmailNotifier(cfg SMTPConfig, log *zap.Logger) *EmailNotifier {
	return &EmailNotifier{
		from:   cfg.From,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
		log:    log,
	}
}

func (n *EmailNotifier) message(user *model.User, challenge *model.OtpChallenge) *gomail.Message {
	ttl := challenge.ExpireAt.Sub(challenge.CreatedAt).Round(time.Second)

	m := gomail.NewMessage()
	m.SetHeader("From", n.from)
	m.SetHeader("To", user.Email)
	m.SetHeader("Subject", "Login Verification Code")
	m.SetBody("text/plain", fmt.Sprintf("Your login verification code is: %s\n\nThis code will expire in %s.", challenge.Code, ttl))
	return m
}

// Notify sends the code carried by challenge.
func (n *EmailNotifier) Notify(ctx context.Context, user *model.User, token *model.AccessToken, challenge *model.OtpChallenge) error {
	if user.Email == "" {
		return fmt.Errorf("user %s has no e-mail address", user.ID)
	}
	if challenge.Code == "" {
		return fmt.Errorf("challenge has no code to deliver")
	}
	if err := n.dialer.DialAndSend(n.message(user, challenge)); err != nil {
		return fmt.Errorf("send otp e-mail: %w", err)
	}
	n.log.Info("otp e-mail sent", zap.String("user_id", user.ID.String()), zap.String("mfa_type", challenge.MFAType.String()))
	return nil
}

// LogNotifier writes the code to the log instead of delivering it. Development only.
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier creates a notifier that logs codes
func NewLogNotifier(log *zap.Logger) *LogNotifier {
	return &LogNotifier{log: log}
}

// Notify logs the code.
func (n *LogNotifier) Notify(ctx context.Context, user *model.User, token *model.AccessToken, challenge *model.OtpChallenge) error {
	n.log.Warn("dev mode: otp code not delivered",
		zap.String("user_id", user.ID.String()),
		zap.String("email", user.Email),
		zap.String("mfa_type", challenge.MFAType.String()),
		zap.String("code", challenge.Code),
	)
	return nil
}
