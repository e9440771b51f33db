package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipeerp/internal/auth"
)

func TestRateLimiterWindow(t *testing.T) {
	now := time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)
	rl := NewRateLimiter()
	rl.now = func() time.Time { return now }

	for i := 2; i >= 0; i-- {
		exceeded, remaining, _ := rl.CheckRateLimit("login:10.0.0.7", 3, time.Minute)
		assert.False(t, exceeded)
		assert.Equal(t, i, remaining)
	}
	exceeded, _, reset := rl.CheckRateLimit("login:10.0.0.7", 3, time.Minute)
	assert.True(t, exceeded)
	assert.Equal(t, now.Add(time.Minute), reset)

	exceeded, _, _ = rl.CheckRateLimit("login:10.0.0.8", 3, time.Minute)
	assert.False(t, exceeded, "keys are independent")

	now = now.Add(61 * time.Second)
	exceeded, _, _ = rl.CheckRateLimit("login:10.0.0.7", 3, time.Minute)
	assert.False(t, exceeded)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 0, rl.Prune(time.Minute))
}

func TestRequireRBACNeedsUser(t *testing.T) {
	pc := auth.NewPermCache()
	called := false
	h := RequireRBAC(pc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true }))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest("GET", "/api/v1/customers", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.False(t, called)

	r := httptest.NewRequest("GET", "/api/v1/me", nil)
	r = r.WithContext(auth.WithUser(r.Context(), &auth.User{ID: 9, Username: "qc1", Role: auth.RoleQC}))
	w = httptest.NewRecorder()
	h.ServeHTTP(w, r)
	assert.True(t, called, "unmapped paths pass through")
}
