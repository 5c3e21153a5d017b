package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"portal/internal/auth"
	"portal/internal/domain/accesscontrol"
	"portal/internal/domain/sharing"
	"portal/internal/domain/storage"
	"portal/internal/domain/users"
	"portal/internal/ratelimiter"
	"portal/internal/tokens"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type sentMail struct {
	template string
	email    string
	data     any
}

// recordingMailer keeps sent messages and optionally fails.
type recordingMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *recordingMailer) Send(templateFile, username, email string, data any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{template: templateFile, email: email, data: data})
	return nil
}

func (m *recordingMailer) last(t *testing.T) sentMail {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()
	require.NotEmpty(t, m.sent, "no mail sent")
	return m.sent[len(m.sent)-1]
}

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testApp struct {
	*application
	mail  *recordingMailer
	clock *testClock
	mux   http.Handler
}

func newTestApplication(t *testing.T, cfg config) *testApp {
	t.Helper()

	if cfg.auth.token.secret == "" {
		cfg.auth.token = tokenConfig{
			secret:          "test-secret",
			refreshSecret:   "test-refresh-secret",
			accessTokenExp:  time.Hour,
			refreshTokenExp: 24 * time.Hour,
			iss:             "Portal",
		}
	}
	if cfg.frontendURL == "" {
		cfg.frontendURL = "http://portal.test"
	}

	codec, err := sharing.NewIDCodec("test-salt")
	require.NoError(t, err)

	mail := &recordingMailer{}
	clock := &testClock{now: time.Now().UTC()}

	app := &application{
		config: cfg,
		store:  storage.NewMemoryContainer(),
		logger: zap.NewNop().Sugar(),
		mailer: mail,
		authenticator: auth.NewJWTAuthenticator(
			cfg.auth.token.secret,
			cfg.auth.token.refreshSecret,
			cfg.auth.token.iss,
			cfg.auth.token.iss,
			cfg.auth.token.accessTokenExp,
			cfg.auth.token.refreshTokenExp,
		),
		rateLimiter: ratelimiter.NewFixedWindowLimiter(
			cfg.rateLimiter.RequestsPerTimeFrame,
			cfg.rateLimiter.TimeFrame,
		),
		tokens:   tokens.NewGenerator(clock),
		shareIDs: codec,
	}

	return &testApp{application: app, mail: mail, clock: clock, mux: app.mount()}
}

// seedUser creates an active, verified user holding roles, assigned by the
// system.
func (ta *testApp) seedUser(t *testing.T, email, password string, roles ...accesscontrol.Role) *users.User {
	t.Helper()
	ctx := context.Background()

	u := &users.User{Email: email, IsActive: true, IsVerified: true}
	require.NoError(t, u.Password.Set(password))
	require.NoError(t, ta.store.Users.Create(ctx, u))

	for _, r := range roles {
		_, err := ta.store.AccessControl.Assign(ctx, u.ID, r, nil)
		require.NoError(t, err)
	}
	return u
}

func (ta *testApp) bearer(t *testing.T, userID int64) string {
	t.Helper()
	access, _, err := ta.authenticator.GenerateTokens(userID)
	require.NoError(t, err)
	return "Bearer " + access
}

func (ta *testApp) do(t *testing.T, method, path, authz string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}

	rr := httptest.NewRecorder()
	ta.mux.ServeHTTP(rr, req)
	return rr
}

type errorBody struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details"`
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var body errorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body), rr.Body.String())
	return body
}

func decodeData(t *testing.T, rr *httptest.ResponseRecorder, v any) {
	t.Helper()
	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env), rr.Body.String())
	require.NoError(t, json.Unmarshal(env.Data, v), string(env.Data))
}
