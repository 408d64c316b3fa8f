package auth

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gopkg.in/gomail.v2"

	"github.com/mfagate/server/internal/model"
)

type fakeDialer struct {
	sent []*gomail.Message
	err  error
}

func (d *fakeDialer) DialAndSend(m ...*gomail.Message) error {
	if d.err != nil {
		return d.err
	}
	d.sent = append(d.sent, m...)
	return nil
}

func testChallenge() *model.OtpChallenge {
	now := time.Now()
	return &model.OtpChallenge{
		AccessToken: "tok",
		MFAType:     model.MFATypeEmail,
		MFAToken:    "hash",
		Code:        "987654",
		CreatedAt:   now,
		ExpireAt:    now.Add(10 * time.Minute),
	}
}

func TestEmailNotifier(t *testing.T) {
	dialer := &fakeDialer{}
	n := NewEmailNotifier(SMTPConfig{Host: "smtp.local", Port: 587, From: "noreply@mfagate.local"}, zap.NewNop())
	n.dialer = dialer

	user := &model.User{ID: uuid.New(), Email: "carol@example.com"}
	require.NoError(t, n.Notify(context.Background(), user, &model.AccessToken{}, testChallenge()))
	require.Len(t, dialer.sent, 1)

	msg := dialer.sent[0]
	assert.Equal(t, []string{"carol@example.com"}, msg.GetHeader("To"))
	assert.Equal(t, []string{"noreply@mfagate.local"}, msg.GetHeader("From"))

	var body bytes.Buffer
	_, err := msg.WriteTo(&body)
	require.NoError(t, err)
	assert.Contains(t, body.String(), "987654")
	assert.Contains(t, body.String(), "10m0s")
}

func TestEmailNotifier_Errors(t *testing.T) {
	dialer := &fakeDialer{err: errors.New("connection refused")}
	n := NewEmailNotifier(SMTPConfig{Host: "smtp.local", Port: 587, From: "noreply@mfagate.local"}, zap.NewNop())
	n.dialer = dialer
	ctx := context.Background()

	err := n.Notify(ctx, &model.User{ID: uuid.New()}, &model.AccessToken{}, testChallenge())
	assert.Error(t, err, "user without e-mail")

	noCode := testChallenge()
	noCode.Code = ""
	err = n.Notify(ctx, &model.User{ID: uuid.New(), Email: "a@example.com"}, &model.AccessToken{}, noCode)
	assert.Error(t, err, "challenge without plaintext code")

	err = n.Notify(ctx, &model.User{ID: uuid.New(), Email: "a@example.com"}, &model.AccessToken{}, testChallenge())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestLogNotifier(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	n := NewLogNotifier(zap.New(core))

	require.NoError(t, n.Notify(context.Background(), &model.User{ID: uuid.New(), Email: "dev@example.com"}, &model.AccessToken{}, testChallenge()))

	entries := logs.All()
	require.Len(t, entries, 1)
	assert.Equal(t, "987654", entries[0].ContextMap()["code"])
	assert.Equal(t, "email", entries[0].ContextMap()["mfa_type"])
}
