package router

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ovaphlow/pitchfork/service-user-go/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/credential"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/respond"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/session"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user"
	"github.com/ovaphlow/pitchfork/service-user-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-user-go/internal/user/repo"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NextID() int64 { return s.n.Add(1) }

type app struct {
	handler http.Handler
	users   *userrepo.MemoryRepo
	codec   *credential.Codec
}

func newApp(t *testing.T) *app {
	t.Helper()
	logger := zap.NewNop().Sugar()
	users := userrepo.NewMemoryRepo()
	codec := credential.New("danta", credential.Params{Memory: 64})
	ids := &seqIDs{}
	ids.n.Store(100)
	mgr := auth.NewManager(users, session.NewMemoryStore(time.Minute, nil), session.NewTokenCodec([]byte("secret"), "test"), codec, ids, logger, auth.Options{})
	h := user.NewHandler(mgr, user.NewService(users, codec, ids, "", logger), user.CookieConfig{}, logger)
	return &app{
		handler: RegisterRoutes(logger, Deps{Users: h, Guard: auth.NewGuard(mgr, h.CookieName(), logger), CORSOrigins: []string{"https://ui.example.com"}}),
		users:   users,
		codec:   codec,
	}
}

// seedAdmin stores an ADMIN directly, the way cmd/admin bootstraps one.
func (a *app) seedAdmin(t *testing.T, account, password string) {
	t.Helper()
	require.NoError(t, a.users.Insert(context.Background(), &entity.User{
		ID: 1, Account: account, PasswordDigest: a.codec.Digest(password), Role: "ADMIN",
	}))
}

type result struct {
	rec *httptest.ResponseRecorder
	env respond.Envelope
	raw json.RawMessage
}

func (a *app) do(t *testing.T, method, path, token string, body any) result {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)

	var wire struct {
		Code    int             `json:"code"`
		Message string          `json:"message"`
		Data    json.RawMessage `json:"data"`
	}
	if rec.Header().Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &wire))
	}
	return result{rec: rec, env: respond.Envelope{Code: wire.Code, Message: wire.Message}, raw: wire.Data}
}

func (a *app) login(t *testing.T, account, password string) string {
	t.Helper()
	res := a.do(t, http.MethodPost, "/user/login", "", user.LoginRequest{Account: account, Password: password})
	require.Equal(t, http.StatusOK, res.rec.Code, res.rec.Body.String())
	token := res.rec.Header().Get(user.TokenHeader)
	require.NotEmpty(t, token)
	return token
}

func TestScenario_RegisterLoginAdminList(t *testing.T) {
	a := newApp(t)
	a.seedAdmin(t, "root", "rootpass1")

	// register alice
	res := a.do(t, http.MethodPost, "/user/register", "", user.RegisterRequest{Account: "alice123", Password: "password1", ConfirmPassword: "password1"})
	require.Equal(t, http.StatusOK, res.rec.Code, res.rec.Body.String())
	var aliceID int64
	require.NoError(t, json.Unmarshal(res.raw, &aliceID))
	assert.NotZero(t, aliceID)

	// login alice
	res = a.do(t, http.MethodPost, "/user/login", "", user.LoginRequest{Account: "alice123", Password: "password1"})
	require.Equal(t, http.StatusOK, res.rec.Code)
	var p entity.Principal
	require.NoError(t, json.Unmarshal(res.raw, &p))
	assert.Equal(t, "alice123", p.Account)
	assert.Equal(t, "USER", p.Role)
	assert.NotContains(t, string(res.raw), "password")

	cookies := res.rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, auth.DefaultCookieName, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)
	assert.Equal(t, res.rec.Header().Get(user.TokenHeader), cookies[0].Value)

	// wrong password
	res = a.do(t, http.MethodPost, "/user/login", "", user.LoginRequest{Account: "alice123", Password: "wrongpass"})
	assert.Equal(t, http.StatusUnauthorized, res.rec.Code)
	assert.Equal(t, apperr.KindAuthentication.Code(), res.env.Code)
	assert.Equal(t, "account or password incorrect", res.env.Message)

	// admin adds bob1 and lists admins
	admin := a.login(t, "root", "rootpass1")
	res = a.do(t, http.MethodPost, "/user/add", admin, user.AddRequest{Account: "bob1", Role: "ADMIN"})
	require.Equal(t, http.StatusOK, res.rec.Code, res.rec.Body.String())

	res = a.do(t, http.MethodPost, "/user/list/page/vo", admin, map[string]any{"role": "ADMIN"})
	require.Equal(t, http.StatusOK, res.rec.Code, res.rec.Body.String())
	var page user.Page
	require.NoError(t, json.Unmarshal(res.raw, &page))
	accounts := make([]string, 0, len(page.Records))
	for _, r := range page.Records {
		accounts = append(accounts, r.Account)
	}
	assert.Contains(t, accounts, "bob1")
	assert.NotContains(t, accounts, "alice123")

	// bob1 got the default password
	a.login(t, "bob1", user.DefaultAdminPassword)
}

func TestScenario_RoleEnforcement(t *testing.T) {
	a := newApp(t)
	a.seedAdmin(t, "root", "rootpass1")
	res := a.do(t, http.MethodPost, "/user/register", "", user.RegisterRequest{Account: "alice123", Password: "password1", ConfirmPassword: "password1"})
	require.Equal(t, http.StatusOK, res.rec.Code)
	alice := a.login(t, "alice123", "password1")
	admin := a.login(t, "root", "rootpass1")

	res = a.do(t, http.MethodPost, "/user/delete", alice, user.DeleteRequest{ID: 1})
	assert.Equal(t, http.StatusForbidden, res.rec.Code)
	assert.Equal(t, apperr.KindPermission.Code(), res.env.Code)

	res = a.do(t, http.MethodPost, "/user/list/page/vo", "", nil)
	assert.Equal(t, http.StatusUnauthorized, res.rec.Code)
	assert.Equal(t, apperr.KindNotAuthenticated.Code(), res.env.Code)

	// USER may read principals
	res = a.do(t, http.MethodPost, "/user/get/vo?id=1", alice, nil)
	assert.Equal(t, http.StatusOK, res.rec.Code)

	res = a.do(t, http.MethodPost, "/user/get?id=1", alice, nil)
	assert.Equal(t, http.StatusForbidden, res.rec.Code)

	res = a.do(t, http.MethodPost, "/user/get?id=1", admin, nil)
	require.Equal(t, http.StatusOK, res.rec.Code)
	assert.NotContains(t, string(res.raw), "passwordDigest")

	res = a.do(t, http.MethodPost, "/user/get?id=abc", admin, nil)
	assert.Equal(t, http.StatusBadRequest, res.rec.Code)

	res = a.do(t, http.MethodPost, "/user/update", admin, map[string]any{"id": 1, "profile": "ops"})
	require.Equal(t, http.StatusOK, res.rec.Code)
	res = a.do(t, http.MethodPost, "/user/update", admin, map[string]any{"id": 999, "profile": "ops"})
	assert.Equal(t, apperr.KindOperation.Code(), res.env.Code)
}

func TestScenario_CurrentAndLogout(t *testing.T) {
	a := newApp(t)
	res := a.do(t, http.MethodPost, "/user/register", "", user.RegisterRequest{Account: "alice123", Password: "password1", ConfirmPassword: "password1"})
	require.Equal(t, http.StatusOK, res.rec.Code)
	token := a.login(t, "alice123", "password1")

	res = a.do(t, http.MethodPost, "/user/get/login", token, nil)
	require.Equal(t, http.StatusOK, res.rec.Code)
	var p entity.Principal
	require.NoError(t, json.Unmarshal(res.raw, &p))
	assert.Equal(t, "alice123", p.Account)

	res = a.do(t, http.MethodPost, "/user/logout", token, nil)
	require.Equal(t, http.StatusOK, res.rec.Code)
	cleared := res.rec.Result().Cookies()
	require.Len(t, cleared, 1)
	assert.Equal(t, -1, cleared[0].MaxAge)

	res = a.do(t, http.MethodPost, "/user/get/login", token, nil)
	assert.Equal(t, apperr.KindNotAuthenticated.Code(), res.env.Code)

	res = a.do(t, http.MethodPost, "/user/logout", token, nil)
	assert.Equal(t, apperr.KindOperation.Code(), res.env.Code)
}

func TestRegister_InvalidPayload(t *testing.T) {
	a := newApp(t)
	req := httptest.NewRequest(http.MethodPost, "/user/register", bytes.NewBufferString("{not json"))
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	res := a.do(t, http.MethodPost, "/user/register", "", user.RegisterRequest{Account: "alice123", Password: "password1", ConfirmPassword: "password1"})
	require.Equal(t, http.StatusOK, res.rec.Code)
	res = a.do(t, http.MethodPost, "/user/register", "", user.RegisterRequest{Account: "alice123", Password: "password2", ConfirmPassword: "password2"})
	assert.Equal(t, http.StatusConflict, res.rec.Code)
}

func TestListPage_RequestEdges(t *testing.T) {
	a := newApp(t)
	a.seedAdmin(t, "root", "rootpass1")
	admin := a.login(t, "root", "rootpass1")

	res := a.do(t, http.MethodPost, "/user/list/page/vo", admin, nil)
	assert.Equal(t, http.StatusBadRequest, res.rec.Code)
	assert.Equal(t, apperr.KindValidation.Code(), res.env.Code)

	res = a.do(t, http.MethodPost, "/user/list/page/vo", admin, map[string]any{"current": int64(math.MaxInt64), "pageSize": 10})
	require.Equal(t, http.StatusOK, res.rec.Code, res.rec.Body.String())
	var page user.Page
	require.NoError(t, json.Unmarshal(res.raw, &page))
	assert.Equal(t, int64(1), page.Total)
	assert.Empty(t, page.Records)
}

func TestHealthAndHeaders(t *testing.T) {
	a := newApp(t)
	res := a.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, res.rec.Code)
	assert.Equal(t, `"ok"`, string(res.raw))
	assert.Equal(t, "nosniff", res.rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, res.rec.Header().Get(RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

func TestCORSMiddleware(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodOptions, "/user/login", nil)
	req.Header.Set("Origin", "https://ui.example.com")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://ui.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Expose-Headers"), user.TokenHeader)

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	wild := CORSMiddleware([]string{"*"})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://any.example.com")
	rec = httptest.NewRecorder()
	wild.ServeHTTP(rec, req)
	assert.Equal(t, "https://any.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestRecoverMiddleware(t *testing.T) {
	core, logs := observer.New(zap.ErrorLevel)
	logger := zap.New(core).Sugar()
	h := RecoverMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)

	var env respond.Envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, apperr.KindSystem.Code(), env.Code)
	assert.Equal(t, "system error", env.Message)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}

func TestLoggingMiddleware(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	logger := zap.New(core).Sugar()
	h := RequestIDMiddleware()(LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	})))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/tea", nil))

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, int64(http.StatusTeapot), fields["status"])
	assert.Equal(t, "/tea", fields["path"])
	assert.Equal(t, int64(2), fields["size"])
	assert.NotEmpty(t, fields["request_id"])
}
