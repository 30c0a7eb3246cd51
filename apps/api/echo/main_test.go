package echoapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"net/mail"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/pqasys/langcsebkg5-sub007/apps/shared"
	"github.com/pqasys/langcsebkg5-sub007/core"
	"github.com/pqasys/langcsebkg5-sub007/core/tenant"
	"github.com/pqasys/langcsebkg5-sub007/core/user"
	emailsvc "github.com/pqasys/langcsebkg5-sub007/services/email"
	logsvc "github.com/pqasys/langcsebkg5-sub007/services/logger"
)

const testPassword = "s3cr3t-Pa55"

type testEnv struct {
	srv  *Server
	c    *shared.Container
	mail *emailsvc.ConsoleServiceMock
}

func testConf() *core.Config {
	conf := &core.Config{
		AppName:          "Elimu",
		Env:              "TEST",
		TestMode:         true,
		SecretKey:        "test-secret-key",
		DefaultFromEmail: mail.Address{Name: "Elimu", Address: "noreply@elimu.test"},
	}
	conf.Server.DisableReqLogs = true
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Server.JWTRefreshExpirationDelta = 24 * time.Hour
	conf.Database.Engine = shared.EngineMemory
	return conf
}

func newTestEnv(t *testing.T, opts ...func(*core.Config)) *testEnv {
	t.Helper()
	conf := testConf()
	for _, opt := range opts {
		opt(conf)
	}

	local, err := logsvc.NewLocal(core.LogConfig{Level: "error"}, io.Discard)
	require.NoError(t, err)
	logger := logsvc.NewRollbarLogger(local, conf)

	mailSvc := emailsvc.NewConsoleServiceMock(conf, logger)
	c := shared.New(conf, logger, shared.MemoryRepositories(), mailSvc)
	t.Cleanup(func() { _ = c.Close() })

	srv := NewServer(ServerDeps{
		Conf:            conf,
		Logger:          logger,
		UserSvc:         c.Users,
		TenantSvc:       c.Tenants,
		TagSvc:          c.Tags,
		ABTestSvc:       c.ABTests,
		AlertSvc:        c.Alerts,
		AlertHub:        c.AlertHub,
		NotificationSvc: c.Notifications,
		QuizSvc:         c.Quizzes,
		SubscriptionSvc: c.Subscriptions,
		DashboardSvc:    c.Dashboard,
	})
	return &testEnv{srv: srv, c: c, mail: mailSvc}
}

func (env *testEnv) createTenant(t *testing.T, slug string) tenant.Tenant {
	t.Helper()
	tnt, err := env.c.Tenants.Create(context.Background(), tenant.NewTenant{Name: slug, Slug: slug})
	require.NoError(t, err)
	return tnt
}

func (env *testEnv) createUser(t *testing.T, tenantID, uname string, roles ...string) user.User {
	t.Helper()
	usr, err := env.c.Users.Create(context.Background(), user.NewUser{
		TenantID:        tenantID,
		Name:            uname,
		Username:        uname,
		Email:           uname + "@elimu.test",
		Password:        testPassword,
		PasswordConfirm: testPassword,
		Roles:           roles,
	})
	require.NoError(t, err)
	return usr
}

func (env *testEnv) token(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := env.srv.tokens.sign(env.srv.tokens.claims(usr))
	require.NoError(t, err)
	return token
}

type request struct {
	method string
	path   string
	token  string
	tenant string // X-Tenant-ID
	body   interface{}
}

func (env *testEnv) do(t *testing.T, r request) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if r.body != nil {
		require.NoError(t, json.NewEncoder(&body).Encode(r.body))
	}
	req := httptest.NewRequest(r.method, r.path, &body)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if r.token != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+r.token)
	}
	if r.tenant != "" {
		req.Header.Set(tenantHeader, r.tenant)
	}
	rec := httptest.NewRecorder()
	env.srv.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), v), rec.Body.String())
}

func requireCode(t *testing.T, rec *httptest.ResponseRecorder, code int) {
	t.Helper()
	require.Equal(t, code, rec.Code, rec.Body.String())
}

type httpErr struct {
	Error string `json:"error"`
}

func errBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var he httpErr
	decode(t, rec, &he)
	return he.Error
}
