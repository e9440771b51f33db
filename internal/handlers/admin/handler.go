// Package admin serves login, users, role permissions and the audit trail.
package admin

import (
	"net"
	"net/http"
	"strings"

	"pipeerp/internal/auth"
	"pipeerp/internal/handlers/common"
)

// Handler holds dependencies for admin handlers.
type Handler struct {
	*common.Deps
	Sessions *auth.Sessions
	Perms    *auth.PermCache

	// CheckLoginRateLimit reports whether ip may attempt another login.
	// Nil disables the check.
	CheckLoginRateLimit func(ip string) bool
	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

func New(d *common.Deps, sessions *auth.Sessions, perms *auth.PermCache) *Handler {
	return &Handler{Deps: d, Sessions: sessions, Perms: perms}
}

// ClientIP extracts the client IP from the request.
func ClientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return strings.TrimSpace(strings.Split(fwd, ",")[0])
	}
	if real := r.Header.Get("X-Real-IP"); real != "" {
		return real
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// UserRecord is a user row as the admin API shows it.
type UserRecord struct {
	ID          int     `json:"id" db:"id"`
	Username    string  `json:"username" db:"username"`
	DisplayName string  `json:"display_name" db:"display_name"`
	Role        string  `json:"role" db:"role"`
	Active      bool    `json:"active" db:"active"`
	LastLogin   *string `json:"last_login" db:"last_login"`
	CreatedAt   string  `json:"created_at" db:"created_at"`
}
