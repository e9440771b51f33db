package auth

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipeerp/internal/database"
)

const testPassword = "Pipes-and-Flanges1"

func setupDB(t *testing.T) *sqlx.DB {
	t.Helper()
	db, err := database.OpenMemory()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestValidatePasswordStrength(t *testing.T) {
	tests := []struct {
		password string
		wantErr  bool
	}{
		{"Short12345!", true},
		{"Shorter1234!", false},
		{"alllowercase", true},
		{"lower1234567", true},
		{"lowerUPPER!!", false},
		{"Password1234", false},
		{"ExactlyTwelve", true},
	}

	for _, tt := range tests {
		t.Run(tt.password, func(t *testing.T) {
			err := ValidatePasswordStrength(tt.password)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidatePasswordStrength(%q) error = %v, wantErr %v", tt.password, err, tt.wantErr)
			}
		})
	}
}

func TestMapAPIPathToPermission(t *testing.T) {
	tests := []struct {
		path, method   string
		module, action string
	}{
		{"customers", "GET", ModuleMasters, PermActionView},
		{"products/SMLS-4NB", "PUT", ModuleMasters, PermActionEdit},
		{"sales-orders", "POST", ModuleSalesOrders, PermActionCreate},
		{"sales-orders/SO-2026-0001/confirm", "POST", ModuleSalesOrders, PermActionApprove},
		{"sales-orders/SO-2026-0001/reserve", "POST", ModuleInventory, PermActionEdit},
		{"sales-orders/SO-2026-0001/stock", "GET", ModuleSalesOrders, PermActionView},
		{"enquiries/ENQ-2026-0001/quote", "POST", ModuleQuotations, PermActionCreate},
		{"quotations/QTN-2026-0001/revise", "POST", ModuleQuotations, PermActionApprove},
		{"goods-receipts", "POST", ModuleReceiving, PermActionCreate},
		{"inventory/12/relocate", "POST", ModuleInventory, PermActionEdit},
		{"ncrs/NCR-2026-0001/disposition", "POST", ModuleQuality, PermActionApprove},
		{"invoices/INV-2026-0001/issue", "POST", ModuleInvoices, PermActionApprove},
		{"payments/PAY-2026-0001/void", "POST", ModulePayments, PermActionApprove},
		{"permissions/sales", "PUT", ModuleAdmin, PermActionEdit},
		{"auth/login", "POST", "", ""},
		{"ws", "GET", "", ""},
	}
	for _, tt := range tests {
		m, a := MapAPIPathToPermission(tt.path, tt.method)
		assert.Equal(t, tt.module, m, tt.path)
		assert.Equal(t, tt.action, a, tt.path)
	}
}

func TestSeededMatrix(t *testing.T) {
	db := setupDB(t)
	pc := NewPermCache()
	require.NoError(t, InitPermissions(db, pc))

	assert.True(t, pc.HasPermission(RoleAdmin, ModuleAdmin, PermActionDelete))
	assert.True(t, pc.HasPermission(RoleSales, ModuleSalesOrders, PermActionApprove))
	assert.False(t, pc.HasPermission(RoleSales, ModulePayments, PermActionView))
	assert.True(t, pc.HasPermission(RoleStores, ModuleInventory, PermActionEdit))
	assert.False(t, pc.HasPermission(RoleStores, ModuleInventory, PermActionDelete))
	assert.True(t, pc.HasPermission(RoleQC, ModuleQuality, PermActionApprove))
	assert.True(t, pc.HasPermission(RoleAccounts, ModulePayments, PermActionApprove))
	assert.True(t, pc.HasPermission(RoleViewer, ModuleInvoices, PermActionView))
	assert.False(t, pc.HasPermission(RoleViewer, ModuleAdmin, PermActionView))
	assert.False(t, pc.HasPermission(RoleViewer, ModuleInvoices, PermActionCreate))

	// seeding again is a no-op
	require.NoError(t, InitPermissions(db, pc))
	assert.Len(t, pc.GetRolePermissions(RoleViewer), len(AllModules)-1)
}

func TestSetRolePermissions(t *testing.T) {
	db := setupDB(t)
	pc := NewPermCache()
	require.NoError(t, InitPermissions(db, pc))

	err := SetRolePermissions(db, pc, RoleViewer, []PermissionEntry{
		{Module: ModuleInventory, Action: PermActionView},
		{Module: ModuleDispatch, Action: PermActionView},
	})
	require.NoError(t, err)

	got := pc.GetRolePermissions(RoleViewer)
	require.Len(t, got, 2)
	assert.Equal(t, ModuleDispatch, got[0].Module)
	assert.False(t, pc.HasPermission(RoleViewer, ModuleInvoices, PermActionView))
}

func TestLoginAndLookup(t *testing.T) {
	db := setupDB(t)
	_, err := CreateUser(db, "meera", "Meera", testPassword, RoleSales)
	require.NoError(t, err)

	s := NewSessions(db, 24*time.Hour, 30*time.Minute)
	ctx := context.Background()

	token, u, _, err := s.Login(ctx, "meera", testPassword)
	require.NoError(t, err)
	assert.Equal(t, RoleSales, u.Role)
	assert.Len(t, token, 36)

	got, _, err := s.Lookup(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "meera", got.Username)

	require.NoError(t, s.Logout(ctx, token))
	_, _, err = s.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestIdleTimeout(t *testing.T) {
	db := setupDB(t)
	_, err := CreateUser(db, "ravi", "", testPassword, RoleStores)
	require.NoError(t, err)

	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	s := NewSessions(db, 24*time.Hour, 30*time.Minute)
	s.Now = func() time.Time { return now }
	ctx := context.Background()

	token, _, _, err := s.Login(ctx, "ravi", testPassword)
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	_, _, err = s.Lookup(ctx, token)
	require.NoError(t, err)

	now = now.Add(31 * time.Minute)
	_, _, err = s.Lookup(ctx, token)
	assert.ErrorIs(t, err, ErrSessionTimeout)
}

func TestLockoutAfterFailedLogins(t *testing.T) {
	db := setupDB(t)
	_, err := CreateUser(db, "anil", "", testPassword, RoleQC)
	require.NoError(t, err)
	s := NewSessions(db, time.Hour, time.Hour)
	ctx := context.Background()

	for i := 0; i < MaxFailedLoginAttempts; i++ {
		_, _, _, err := s.Login(ctx, "anil", "wrong-password-1A")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	}
	_, _, _, err = s.Login(ctx, "anil", testPassword)
	assert.ErrorIs(t, err, ErrAccountLocked)

	require.NoError(t, ResetFailedLoginAttempts(db, "anil"))
	_, _, _, err = s.Login(ctx, "anil", testPassword)
	assert.NoError(t, err)
}

func TestInactiveUserCannotLogin(t *testing.T) {
	db := setupDB(t)
	id, err := CreateUser(db, "old", "", testPassword, RoleViewer)
	require.NoError(t, err)
	db.MustExec("UPDATE users SET active = 0 WHERE id = ?", id)

	s := NewSessions(db, time.Hour, time.Hour)
	_, _, _, err = s.Login(context.Background(), "old", testPassword)
	assert.ErrorIs(t, err, ErrAccountInactive)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/v1/customers", nil)
	r.Header.Set("Authorization", "Bearer abc")
	assert.Equal(t, "abc", TokenFromRequest(r))

	r = httptest.NewRequest("GET", "/api/v1/customers", nil)
	assert.Equal(t, "", TokenFromRequest(r))

	u := &User{ID: 1, Username: "x", Role: RoleAdmin}
	assert.Equal(t, u, UserFromContext(WithUser(context.Background(), u)))
	assert.Nil(t, UserFromContext(context.Background()))
}

func TestEnsureAdmin(t *testing.T) {
	db := setupDB(t)

	_, err := EnsureAdmin(db, "")
	require.Error(t, err)
	_, err = EnsureAdmin(db, "short")
	require.Error(t, err)

	created, err := EnsureAdmin(db, testPassword)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = EnsureAdmin(db, "")
	require.NoError(t, err)
	assert.False(t, created, "existing users are left alone")

	var role string
	require.NoError(t, db.Get(&role, "SELECT role FROM users WHERE username = 'admin'"))
	assert.Equal(t, RoleAdmin, role)
}
