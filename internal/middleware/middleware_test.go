package middleware

import (
	"context"
	"crypto/tls"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rifa-app/internal/admins"
	"rifa-app/internal/audit"
	"rifa-app/internal/config"
	"rifa-app/internal/db"
	"rifa-app/internal/models"
)

const (
	botToken = "123456:TEST"
	password = "Sup3r-Segura!"
)

func newAuth(t *testing.T, name string) (*Auth, *admins.Store) {
	t.Helper()
	gdb, err := db.Open(&config.Config{DatabaseDriver: "sqlite", DatabaseURL: "file:" + name + "?mode=memory&cache=shared"})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			sqlDB.Close()
		}
	})
	store := admins.NewStore(gdb)
	return &Auth{
		Admins:           store,
		Audit:            audit.NewRecorder(gdb),
		BotToken:         botToken,
		AdminTelegramIDs: []int64{42},
	}, store
}

// whoami echoes the principal username.
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	p := PrincipalFrom(r.Context())
	if p == nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	w.Write([]byte(p.Username))
})

func signedInitData(user string) string {
	return signedInitDataAt(user, time.Now())
}

func signedInitDataAt(user string, at time.Time) string {
	params := url.Values{}
	params.Set("auth_date", strconv.FormatInt(at.Unix(), 10))
	params.Set("user", user)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, len(keys))
	for i, k := range keys {
		lines[i] = k + "=" + params.Get(k)
	}
	params.Set("hash", signInitData(strings.Join(lines, "\n"), botToken))
	return params.Encode()
}

func TestBasicAuth(t *testing.T) {
	a, store := newAuth(t, "mw_basic")
	u, err := store.Create(context.Background(), "ana", password)
	require.NoError(t, err)
	require.NoError(t, store.ChangePassword(context.Background(), u.ID, password, password+"x"))
	h := a.AdminAuth(whoami)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil)
	req.SetBasicAuth("ana", password+"x")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ana", rec.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil)
	req.SetBasicAuth("ana", "mala")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("WWW-Authenticate"))

	logs, err := a.Audit.Recent(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, audit.LoginFailed, logs[0].Action)
}

func TestBasicAuthLockout(t *testing.T) {
	a, store := newAuth(t, "mw_lockout")
	_, err := store.Create(context.Background(), "beto", password)
	require.NoError(t, err)
	h := a.AdminAuth(whoami)

	for i := 0; i < models.MaxFailedLogins; i++ {
		req := httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil)
		req.SetBasicAuth("beto", "mala")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		require.Equal(t, http.StatusUnauthorized, rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil)
	req.SetBasicAuth("beto", password)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestMustChangePassword(t *testing.T) {
	a, store := newAuth(t, "mw_mustchange")
	_, err := store.Create(context.Background(), "caro", password)
	require.NoError(t, err)
	h := a.AdminAuth(whoami)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil)
	req.SetBasicAuth("caro", password)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/admin/api/password", nil)
	req.SetBasicAuth("caro", password)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTelegramInitData(t *testing.T) {
	a, _ := newAuth(t, "mw_telegram")
	h := a.AdminAuth(whoami)

	req := httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil)
	req.Header.Set("X-Telegram-Init-Data", signedInitData(`{"id":42,"first_name":"Admin","username":"jefe"}`))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "jefe", rec.Body.String())

	// valid signature, not an admin
	req = httptest.NewRequest(http.MethodGet, "/admin/api/dashboard", nil)
	req.Header.Set("X-Telegram-Init-Data", signedInitData(`{"id":7,"first_name":"Otro"}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// tampered payload
	tampered := strings.Replace(signedInitData(`{"id":42,"first_name":"Admin"}`), "42", "43", 1)
	req = httptest.NewRequest(http.MethodGet, "/admin/api/dashboard?tg_init_data="+url.QueryEscape(tampered), nil)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestTelegramInitDataExpires(t *testing.T) {
	user := `{"id":42,"first_name":"Admin"}`

	_, ok := validateTelegramInitData(signedInitDataAt(user, time.Now().Add(-time.Hour)), botToken)
	assert.True(t, ok)

	_, ok = validateTelegramInitData(signedInitDataAt(user, time.Now().Add(-25*time.Hour)), botToken)
	assert.False(t, ok)

	_, ok = validateTelegramInitData(signedInitDataAt(user, time.Now().Add(time.Hour)), botToken)
	assert.False(t, ok)
}

func TestValidateInitDataWithoutToken(t *testing.T) {
	_, ok := validateTelegramInitData(signedInitData(`{"id":42}`), "")
	assert.False(t, ok)
}

func TestSecurityHeaders(t *testing.T) {
	h := SecurityHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", rec.Header().Get("X-Frame-Options"))
	assert.Contains(t, rec.Header().Get("Content-Security-Policy"), "frame-ancestors 'none'")
	assert.Empty(t, rec.Header().Get("Strict-Transport-Security"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.TLS = &tls.ConnectionState{}
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.NotEmpty(t, rec.Header().Get("Strict-Transport-Security"))
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.1.2.3:5555"
	assert.Equal(t, "10.1.2.3", ClientIP(req))
	req.RemoteAddr = "10.1.2.3"
	assert.Equal(t, "10.1.2.3", ClientIP(req))
}
