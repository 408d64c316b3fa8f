package auth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mfagate/server/internal/model"
	"github.com/mfagate/server/internal/repo"
	"github.com/mfagate/server/internal/tests"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Now().UTC().Truncate(time.Millisecond)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// recordingNotifier keeps every challenge it is asked to deliver.
type recordingNotifier struct {
	mu   sync.Mutex
	sent []*model.OtpChallenge
	err  error
}

func (n *recordingNotifier) Notify(ctx context.Context, user *model.User, token *model.AccessToken, challenge *model.OtpChallenge) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, challenge)
	return nil
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

// lastCode returns the most recent code delivered for token and factor.
func (n *recordingNotifier) lastCode(t *testing.T, token string, factor model.MFAType) string {
	t.Helper()
	n.mu.Lock()
	defer n.mu.Unlock()
	for i := len(n.sent) - 1; i >= 0; i-- {
		c := n.sent[i]
		if c.AccessToken == token && c.MFAType == factor {
			return c.Code
		}
	}
	t.Fatalf("no code delivered for %s", factor)
	return ""
}

type fixture struct {
	db       *sqlx.DB
	users    repo.UserRepo
	tokens   repo.AccessTokenRepo
	strategy *TokenStrategy
	otps     *OtpManager
	refresh  *RefreshTokenManager
	flow     *Flow
	service  *Service
	notifier *recordingNotifier
	clock    *fakeClock
}

type fixtureOptions struct {
	factors   []model.MFAType
	delivered []model.MFAType
	otpStore  repo.OtpRepo
}

// newFixture wires the auth components over a fresh SQLite database. Every
// factor in delivered gets the shared recording notifier.
func newFixture(t *testing.T, opts fixtureOptions) *fixture {
	t.Helper()
	database := tests.NewSQLiteDB(t)
	clock := newFakeClock()
	log := zap.NewNop()

	users := repo.NewUserRepo(database)
	tokens := repo.NewAccessTokenRepo(database)
	otpStore := opts.otpStore
	if otpStore == nil {
		otpStore = repo.NewOtpRepo(database)
	}

	strategy := NewTokenStrategy(tokens, users, StaticPolicy(opts.factors...), 24*time.Hour)
	strategy.now = clock.Now
	otps := NewOtpManager(otpStore, "test-salt", DefaultOTPTTL)
	otps.now = clock.Now
	refresh := NewRefreshTokenManager(repo.NewRefreshRepo(database))
	refresh.now = clock.Now

	notifier := &recordingNotifier{}
	registry := map[model.MFAType]Notifier{}
	for _, f := range opts.delivered {
		registry[f] = notifier
	}

	return &fixture{
		db:       database,
		users:    users,
		tokens:   tokens,
		strategy: strategy,
		otps:     otps,
		refresh:  refresh,
		flow:     NewFlow(strategy, otps, users, registry, log),
		service:  NewService(strategy, refresh, users, DefaultRefreshTokenBytes, log),
		notifier: notifier,
		clock:    clock,
	}
}

func (f *fixture) newUser(t *testing.T, email string) *model.User {
	t.Helper()
	u, err := f.users.GetOrCreateByEmail(context.Background(), email)
	require.NoError(t, err)
	return u
}

func (f *fixture) login(t *testing.T, email string) *Session {
	t.Helper()
	s, err := f.service.Login(context.Background(), f.newUser(t, email))
	require.NoError(t, err)
	return s
}
