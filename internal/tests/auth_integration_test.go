package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/mfagate/server/internal/auth"
	httphandler "github.com/mfagate/server/internal/http"
	"github.com/mfagate/server/internal/http/handlers"
	"github.com/mfagate/server/internal/middleware"
	"github.com/mfagate/server/internal/model"
	"github.com/mfagate/server/internal/repo"
)

// testServer holds the server and DB for integration tests
type testServer struct {
	Server   *httptest.Server
	DB       *sqlx.DB
	Users    repo.UserRepo
	Sessions *auth.Service
	logs     *observer.ObservedLogs
}

type serverOptions struct {
	factors   []model.MFAType
	delivered []model.MFAType
	otpStore  repo.OtpRepo
	rateLimit int
}

// newTestServer wires the real router over database. Delivered factors use the
// log notifier, whose output the test reads codes back from.
func newTestServer(t *testing.T, database *sqlx.DB, opts serverOptions) *testServer {
	t.Helper()

	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)

	userRepo := repo.NewUserRepo(database)
	otpStore := opts.otpStore
	if otpStore == nil {
		otpStore = repo.NewOtpRepo(database)
	}

	strategy := auth.NewTokenStrategy(repo.NewAccessTokenRepo(database), userRepo, auth.StaticPolicy(opts.factors...), 24*time.Hour)
	otps := auth.NewOtpManager(otpStore, "test-otp-salt", auth.DefaultOTPTTL)
	registry := map[model.MFAType]auth.Notifier{}
	for _, f := range opts.delivered {
		registry[f] = auth.NewLogNotifier(log)
	}
	flow := auth.NewFlow(strategy, otps, userRepo, registry, log)
	sessions := auth.NewService(strategy, auth.NewRefreshTokenManager(repo.NewRefreshRepo(database)), userRepo, 0, log)

	rateLimit := opts.rateLimit
	if rateLimit == 0 {
		rateLimit = 1000
	}
	limiter := middleware.NewRateLimiter(time.Minute, rateLimit)
	t.Cleanup(limiter.Stop)

	router := httphandler.NewRouter(httphandler.RouterDeps{
		Tokens:  strategy,
		Otp:     handlers.NewOtpHandler(flow, log),
		Auth:    handlers.NewAuthHandler(sessions, log),
		Health:  handlers.NewHealthHandler(database, log),
		Limiter: limiter,
		Log:     log,
	})
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	return &testServer{Server: server, DB: database, Users: userRepo, Sessions: sessions, logs: logs}
}

func (s *testServer) BaseURL() string { return s.Server.URL }

func (s *testServer) TruncateAuth(t *testing.T) {
	t.Helper()
	require.NoError(t, TruncateAuthTables(context.Background(), s.DB), "truncate auth tables")
}

// Login stands in for the primary credential check and returns a fresh session.
func (s *testServer) Login(t *testing.T, email string) *auth.Session {
	t.Helper()
	ctx := context.Background()
	user, err := s.Users.GetOrCreateByEmail(ctx, email)
	require.NoError(t, err)
	session, err := s.Sessions.Login(ctx, user)
	require.NoError(t, err)
	return session
}

// LastCode returns the newest code the log notifier emitted for email and factor.
func (s *testServer) LastCode(t *testing.T, email string, factor model.MFAType) string {
	t.Helper()
	entries := s.logs.FilterField(zap.String("email", email)).FilterField(zap.String("mfa_type", string(factor))).All()
	require.NotEmpty(t, entries, "no code logged for %s/%s", email, factor)
	code, ok := entries[len(entries)-1].ContextMap()["code"].(string)
	require.True(t, ok)
	return code
}

// statusResponse matches the /otp response envelope
type statusResponse struct {
	Status      bool   `json:"status"`
	Message     string `json:"message"`
	Error       string `json:"error"`
	Reason      string `json:"reason"`
	AccessToken *struct {
		Token     string         `json:"token"`
		UserID    string         `json:"user_id"`
		MFAScopes map[string]int `json:"mfa_scopes"`
		Scopes    string         `json:"scopes"`
	} `json:"access_token"`
}

// refreshResponse matches POST /auth/refresh response
type refreshResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	Scopes       string `json:"scopes"`
}

// meResponse matches GET /me response
type meResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// errorResponse matches error JSON body
type errorResponse struct {
	Error string `json:"error"`
}

// do sends a JSON request and decodes the response into out when given.
func do(t *testing.T, client *http.Client, method, url, bearer string, body, out any) int {
	t.Helper()
	return doWithHeaders(t, client, method, url, bearer, nil, body, out)
}

// doWithHeaders is do with extra request headers.
func doWithHeaders(t *testing.T, client *http.Client, method, url, bearer string, headers map[string]string, body, out any) int {
	t.Helper()
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw := readBody(resp)
	if out != nil {
		require.NoError(t, json.Unmarshal([]byte(raw), out), "decode body: %s", raw)
	}
	return resp.StatusCode
}

// readBody reads and returns the response body (consumes it). Use for error messages only.
func readBody(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	b, _ := io.ReadAll(resp.Body)
	return string(b)
}
