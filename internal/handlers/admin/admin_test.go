package admin_test

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeerp/internal/auth"
	"pipeerp/internal/handlers/admin"
	"pipeerp/internal/models"
	"pipeerp/internal/testutil"
)

func newTestHandler(t *testing.T) (*admin.Handler, *sqlx.DB) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	perms := auth.NewPermCache()
	require.NoError(t, auth.InitPermissions(db, perms))
	h := admin.New(testutil.NewDeps(db), auth.NewSessions(db, 24*time.Hour, 30*time.Minute), perms)
	return h, db
}

func login(h *admin.Handler, username, password string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.Login(w, testutil.AuthedJSONRequest("POST", "/api/v1/auth/login", map[string]string{
		"username": username, "password": password,
	}, ""))
	return w
}

func TestLoginMeLogout(t *testing.T) {
	h, db := newTestHandler(t)
	testutil.CreateTestUser(t, db, "ravi", auth.RoleStores)

	w := login(h, "ravi", testutil.TestPassword)
	testutil.AssertStatus(t, w, http.StatusOK)
	var cookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == auth.SessionCookie {
			cookie = c
		}
	}
	require.NotNil(t, cookie)
	assert.True(t, cookie.HttpOnly)

	var resp admin.LoginResponse
	testutil.DecodeEnvelope(t, w, &resp)
	assert.Equal(t, cookie.Value, resp.Token)
	assert.Equal(t, "ravi", resp.User.Username)
	assert.Equal(t, auth.RoleStores, resp.User.Role)

	u, _, err := h.Sessions.Lookup(t.Context(), resp.Token)
	require.NoError(t, err)

	var logins int
	require.NoError(t, db.Get(&logins, "SELECT COUNT(*) FROM audit_log WHERE action = 'LOGIN' AND username = 'ravi'"))
	assert.Equal(t, 1, logins)

	r := httptest.NewRequest("GET", "/api/v1/me", nil)
	w = httptest.NewRecorder()
	h.Me(w, r)
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	w = httptest.NewRecorder()
	h.Me(w, r.WithContext(auth.WithUser(r.Context(), u)))
	testutil.AssertStatus(t, w, http.StatusOK)
	var me struct {
		User        auth.User              `json:"user"`
		Permissions []auth.PermissionEntry `json:"permissions"`
	}
	testutil.DecodeEnvelope(t, w, &me)
	assert.Equal(t, "ravi", me.User.Username)
	assert.Contains(t, me.Permissions, auth.PermissionEntry{Role: auth.RoleStores, Module: auth.ModuleInventory, Action: auth.PermActionEdit})
	assert.NotContains(t, me.Permissions, auth.PermissionEntry{Role: auth.RoleStores, Module: auth.ModuleInvoices, Action: auth.PermActionView})

	r = httptest.NewRequest("POST", "/api/v1/auth/logout", nil)
	r.Header.Set("Authorization", "Bearer "+resp.Token)
	w = httptest.NewRecorder()
	h.Logout(w, r.WithContext(auth.WithUser(r.Context(), u)))
	testutil.AssertStatus(t, w, http.StatusOK)

	_, _, err = h.Sessions.Lookup(t.Context(), resp.Token)
	assert.ErrorIs(t, err, auth.ErrNoSession)
}

func TestLoginFailures(t *testing.T) {
	h, db := newTestHandler(t)
	id := testutil.CreateTestUser(t, db, "meena", auth.RoleAccounts)

	testutil.AssertStatus(t, login(h, "meena", "wrong-Password9"), http.StatusUnauthorized)
	testutil.AssertStatus(t, login(h, "nobody", testutil.TestPassword), http.StatusUnauthorized)
	testutil.AssertStatus(t, login(h, "meena", ""), http.StatusBadRequest)

	_, err := db.Exec("UPDATE users SET active = 0 WHERE id = ?", id)
	require.NoError(t, err)
	testutil.AssertStatus(t, login(h, "meena", testutil.TestPassword), http.StatusForbidden)

	calls := 0
	h.CheckLoginRateLimit = func(ip string) bool {
		calls++
		return calls <= 1
	}
	testutil.AssertStatus(t, login(h, "admin", testutil.TestPassword), http.StatusOK)
	testutil.AssertStatus(t, login(h, "admin", testutil.TestPassword), http.StatusTooManyRequests)
}

func TestLockoutAfterRepeatedFailures(t *testing.T) {
	h, db := newTestHandler(t)
	testutil.CreateTestUser(t, db, "suresh", auth.RolePurchase)

	for i := 0; i < 10; i++ {
		testutil.AssertStatus(t, login(h, "suresh", "not-the-Password1"), http.StatusUnauthorized)
	}
	testutil.AssertStatus(t, login(h, "suresh", testutil.TestPassword), http.StatusForbidden)
}

func TestUserAdministration(t *testing.T) {
	h, db := newTestHandler(t)

	w := httptest.NewRecorder()
	h.CreateUser(w, testutil.AuthedJSONRequest("POST", "/api/v1/users", map[string]string{
		"username": "anita", "password": "short", "role": "qc",
	}, "admin"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.CreateUser(w, testutil.AuthedJSONRequest("POST", "/api/v1/users", map[string]string{
		"username": "anita", "password": testutil.TestPassword, "role": "welder",
	}, "admin"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.CreateUser(w, testutil.AuthedJSONRequest("POST", "/api/v1/users", map[string]string{
		"username": "anita", "display_name": "Anita K", "password": testutil.TestPassword, "role": "qc",
	}, "admin"))
	testutil.AssertStatus(t, w, http.StatusCreated)
	var u admin.UserRecord
	testutil.DecodeEnvelope(t, w, &u)
	assert.Equal(t, "Anita K", u.DisplayName)
	assert.Equal(t, auth.RoleQC, u.Role)
	assert.True(t, u.Active)

	w = httptest.NewRecorder()
	h.CreateUser(w, testutil.AuthedJSONRequest("POST", "/api/v1/users", map[string]string{
		"username": "anita", "password": testutil.TestPassword,
	}, "admin"))
	testutil.AssertStatus(t, w, http.StatusConflict)

	id := strconv.Itoa(u.ID)
	w = login(h, "anita", testutil.TestPassword)
	testutil.AssertStatus(t, w, http.StatusOK)
	var sess admin.LoginResponse
	testutil.DecodeEnvelope(t, w, &sess)

	w = httptest.NewRecorder()
	h.UpdateUser(w, testutil.AuthedJSONRequest("PUT", "/api/v1/users/"+id, map[string]any{
		"role": "stores", "active": false,
	}, "admin"), id)
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &u)
	assert.Equal(t, auth.RoleStores, u.Role)
	assert.Equal(t, "Anita K", u.DisplayName)
	assert.False(t, u.Active)

	_, _, err := h.Sessions.Lookup(t.Context(), sess.Token)
	assert.ErrorIs(t, err, auth.ErrNoSession)

	// the admin user seeded by the fixture has id 1, as does every test caller
	w = httptest.NewRecorder()
	h.UpdateUser(w, testutil.AuthedJSONRequest("PUT", "/api/v1/users/1", map[string]any{"active": false}, "admin"), "1")
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.ResetPassword(w, testutil.AuthedJSONRequest("POST", "/", map[string]string{"password": "abc"}, "admin"), id)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.ResetPassword(w, testutil.AuthedJSONRequest("POST", "/", map[string]string{"password": "Seamless-Pipe-2026"}, "admin"), id)
	testutil.AssertStatus(t, w, http.StatusOK)

	_, err = db.Exec("UPDATE users SET active = 1 WHERE id = ?", u.ID)
	require.NoError(t, err)
	testutil.AssertStatus(t, login(h, "anita", testutil.TestPassword), http.StatusUnauthorized)
	testutil.AssertStatus(t, login(h, "anita", "Seamless-Pipe-2026"), http.StatusOK)

	w = httptest.NewRecorder()
	h.ListUsers(w, testutil.AuthedRequest("GET", "/api/v1/users?role=stores", nil, "admin"))
	testutil.AssertStatus(t, w, http.StatusOK)
	var users []admin.UserRecord
	testutil.DecodeEnvelope(t, w, &users)
	require.Len(t, users, 1)
	assert.NotNil(t, users[0].LastLogin)

	w = httptest.NewRecorder()
	h.DeleteUser(w, testutil.AuthedRequest("DELETE", "/", nil, "admin"), "1")
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.DeleteUser(w, testutil.AuthedRequest("DELETE", "/", nil, "admin"), id)
	testutil.AssertStatus(t, w, http.StatusOK)

	w = httptest.NewRecorder()
	h.GetUser(w, testutil.AuthedRequest("GET", "/", nil, "admin"), id)
	testutil.AssertStatus(t, w, http.StatusNotFound)

	w = httptest.NewRecorder()
	h.GetUser(w, testutil.AuthedRequest("GET", "/", nil, "admin"), "abc")
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestSetPermissions(t *testing.T) {
	h, _ := newTestHandler(t)
	assert.False(t, h.Perms.HasPermission(auth.RoleViewer, auth.ModuleInvoices, auth.PermActionCreate))

	w := httptest.NewRecorder()
	h.SetPermissions(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{
		"permissions": []map[string]string{{"module": "invoices", "action": "launch"}},
	}, "admin"), auth.RoleViewer)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.SetPermissions(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{}, "admin"), "guest")
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.SetPermissions(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{
		"permissions": []map[string]string{{"module": "masters", "action": "view"}},
	}, "admin"), auth.RoleAdmin)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = httptest.NewRecorder()
	h.SetPermissions(w, testutil.AuthedJSONRequest("PUT", "/", map[string]any{
		"permissions": []map[string]string{
			{"module": "invoices", "action": "view"},
			{"module": "invoices", "action": "create"},
			{"module": "invoices", "action": "view"},
		},
	}, "admin"), auth.RoleViewer)
	testutil.AssertStatus(t, w, http.StatusOK)
	var got []auth.PermissionEntry
	testutil.DecodeEnvelope(t, w, &got)
	assert.Equal(t, []auth.PermissionEntry{
		{Role: auth.RoleViewer, Module: auth.ModuleInvoices, Action: auth.PermActionCreate},
		{Role: auth.RoleViewer, Module: auth.ModuleInvoices, Action: auth.PermActionView},
	}, got)
	assert.True(t, h.Perms.HasPermission(auth.RoleViewer, auth.ModuleInvoices, auth.PermActionCreate))
	assert.False(t, h.Perms.HasPermission(auth.RoleViewer, auth.ModuleMasters, auth.PermActionView))

	w = httptest.NewRecorder()
	h.ListPermissions(w, testutil.AuthedRequest("GET", "/api/v1/permissions?role=viewer", nil, "admin"))
	testutil.AssertStatus(t, w, http.StatusOK)
	testutil.DecodeEnvelope(t, w, &got)
	assert.Len(t, got, 2)

	w = httptest.NewRecorder()
	h.ListAudit(w, testutil.AuthedRequest("GET", "/api/v1/audit?module=admin&record_id=viewer", nil, "admin"))
	testutil.AssertStatus(t, w, http.StatusOK)
	var entries []models.AuditEntry
	testutil.DecodeEnvelope(t, w, &entries)
	require.Len(t, entries, 1)
	assert.Equal(t, "UPDATE", entries[0].Action)
	assert.Equal(t, "admin", entries[0].Username)

	w = httptest.NewRecorder()
	h.ListAudit(w, testutil.AuthedRequest("GET", "/api/v1/audit?limit=x", nil, "admin"))
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}
