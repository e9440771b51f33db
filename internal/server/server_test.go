package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"pipeerp/internal/auth"
	"pipeerp/internal/config"
	"pipeerp/internal/server"
	"pipeerp/internal/testutil"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestApp(t *testing.T, edit func(*config.Config)) (*server.App, *sqlx.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	cfg := config.Default()
	if edit != nil {
		edit(&cfg)
	}
	a, err := server.New(cfg, db, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(a.Hub.Close)
	return a, db
}

func do(h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}
	r := httptest.NewRequest(method, path, rd)
	if body != nil {
		r.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func loginToken(t *testing.T, h http.Handler, username string) string {
	t.Helper()
	w := do(h, "POST", "/api/v1/auth/login", "", map[string]string{"username": username, "password": testutil.TestPassword})
	testutil.AssertStatus(t, w, http.StatusOK)
	var resp struct {
		Token string `json:"token"`
	}
	testutil.DecodeEnvelope(t, w, &resp)
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestHealth(t *testing.T) {
	a, _ := newTestApp(t, nil)
	w := do(a.Router(), "GET", "/health", "", nil)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
}

func TestAuthAndPermissions(t *testing.T) {
	a, db := newTestApp(t, nil)
	h := a.Router()
	testutil.CreateTestUser(t, db, "viewer1", auth.RoleViewer)

	testutil.AssertStatus(t, do(h, "GET", "/api/v1/customers", "", nil), http.StatusUnauthorized)
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/customers", "not-a-session", nil), http.StatusUnauthorized)

	viewer := loginToken(t, h, "viewer1")
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/customers", viewer, nil), http.StatusOK)
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/me", viewer, nil), http.StatusOK)

	w := do(h, "POST", "/api/v1/customers", viewer, map[string]string{"name": "Shree Steel"})
	testutil.AssertStatus(t, w, http.StatusForbidden)
	assert.Contains(t, w.Body.String(), "masters:create")
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/users", viewer, nil), http.StatusForbidden)
	testutil.AssertStatus(t, do(h, "POST", "/api/v1/quotations/QT-1/convert", viewer, nil), http.StatusForbidden)

	admin := loginToken(t, h, "admin")
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/users", admin, nil), http.StatusOK)
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/inventory/abc", admin, nil), http.StatusBadRequest)
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/sales-orders/SO-NONE", admin, nil), http.StatusNotFound)

	// a role change takes effect on the next request
	w = do(h, "PUT", "/api/v1/permissions/viewer", admin, map[string]any{
		"permissions": []map[string]string{{"module": "masters", "action": "view"}, {"module": "masters", "action": "create"}},
	})
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/invoices", viewer, nil), http.StatusForbidden)

	testutil.AssertStatus(t, do(h, "POST", "/api/v1/auth/logout", viewer, nil), http.StatusOK)
	testutil.AssertStatus(t, do(h, "GET", "/api/v1/customers", viewer, nil), http.StatusUnauthorized)
}

func TestLoginRateLimit(t *testing.T) {
	a, _ := newTestApp(t, func(c *config.Config) { c.Server.LoginRateLimit = 2 })
	h := a.Router()

	loginToken(t, h, "admin")
	loginToken(t, h, "admin")
	w := do(h, "POST", "/api/v1/auth/login", "", map[string]string{"username": "admin", "password": testutil.TestPassword})
	testutil.AssertStatus(t, w, http.StatusTooManyRequests)
}

func TestAPIRateLimit(t *testing.T) {
	a, _ := newTestApp(t, func(c *config.Config) { c.Server.APIRateLimit = 3 })
	h := a.Router()

	for i := 0; i < 3; i++ {
		w := do(h, "GET", "/api/v1/customers", "", nil)
		testutil.AssertStatus(t, w, http.StatusUnauthorized)
	}
	w := do(h, "GET", "/api/v1/customers", "", nil)
	testutil.AssertStatus(t, w, http.StatusTooManyRequests)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestSweep(t *testing.T) {
	a, db := newTestApp(t, nil)
	m := testutil.SeedMasters(t, db)

	_, err := db.Exec("INSERT INTO quotations (id, root_id, customer_id, status, valid_until) VALUES ('QT-OLD', 'QT-OLD', ?, 'SENT', '2020-01-31')", m.Customer)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO quotations (id, root_id, customer_id, status, valid_until) VALUES ('QT-NEW', 'QT-NEW', ?, 'SENT', '2999-01-31')", m.Customer)
	require.NoError(t, err)
	_, err = db.Exec("INSERT INTO sessions (token, user_id, created_at, expires_at, last_activity) VALUES ('stale', 1, '2020-01-01 00:00:00', '2020-01-02 00:00:00', '2020-01-01 00:00:00')")
	require.NoError(t, err)

	res, err := a.Sweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"QT-OLD"}, res.ExpiredQuotations)
	assert.Empty(t, res.OverdueInvoices)
	assert.EqualValues(t, 1, res.ExpiredSessions)
	assert.Equal(t, "EXPIRED", testutil.Status(t, db, "quotations", "QT-OLD"))
	assert.Equal(t, "SENT", testutil.Status(t, db, "quotations", "QT-NEW"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	a, _ := newTestApp(t, func(c *config.Config) { c.Jobs.SweepInterval = 10 * time.Millisecond })

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: true}}
	resp, err := client.Get("http://" + ln.Addr().String() + "/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// let the sweeper tick at least once
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
