package admin

import (
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"pipeerp/internal/audit"
	"pipeerp/internal/auth"
	"pipeerp/internal/handlers/common"
	"pipeerp/internal/response"
	"pipeerp/internal/validation"
)

// LoginRequest represents a login request.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries the session token for clients that cannot use
// cookies.
type LoginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      auth.User `json:"user"`
}

func (h *Handler) setCookie(w http.ResponseWriter, token string, expires time.Time) {
	c := &http.Cookie{
		Name:     auth.SessionCookie,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.SecureCookies,
		SameSite: http.SameSiteLaxMode,
		Expires:  expires,
	}
	if token == "" {
		c.MaxAge = -1
	}
	http.SetCookie(w, c)
}

// Login authenticates a user and opens a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	ip := ClientIP(r)
	if h.CheckLoginRateLimit != nil && !h.CheckLoginRateLimit(ip) {
		response.Err(w, "too many login attempts, try again in a minute", http.StatusTooManyRequests)
		return
	}

	var req LoginRequest
	if err := common.Decode(r, &req); err != nil {
		h.Fail(w, r, err)
		return
	}
	ve := &validation.ValidationErrors{}
	validation.RequireField(ve, "username", req.Username)
	validation.RequireField(ve, "password", req.Password)
	if err := ve.Err(); err != nil {
		h.Fail(w, r, err)
		return
	}

	token, u, expires, err := h.Sessions.Login(r.Context(), req.Username, req.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		if h.Log != nil {
			h.Log.Info("login failed", zap.String("username", req.Username), zap.String("ip", ip))
		}
		response.Err(w, err.Error(), http.StatusUnauthorized)
		return
	case errors.Is(err, auth.ErrAccountLocked), errors.Is(err, auth.ErrAccountInactive):
		response.Err(w, err.Error(), http.StatusForbidden)
		return
	case err != nil:
		h.Fail(w, r, err)
		return
	}

	h.setCookie(w, token, expires)
	h.Audit.Record(r.Context(), audit.Entry{Username: u.Username, Action: audit.ActionLogin, Module: auth.ModuleAdmin, RecordID: u.Username, Summary: "login from " + ip})
	response.JSON(w, LoginResponse{Token: token, ExpiresAt: expires, User: *u})
}

// Logout ends the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := auth.TokenFromRequest(r); token != "" {
		if err := h.Sessions.Logout(r.Context(), token); err != nil {
			h.Fail(w, r, err)
			return
		}
	}
	h.setCookie(w, "", time.Time{})
	if u := auth.UserFromContext(r.Context()); u != nil {
		h.Audit.Log(r, audit.ActionLogout, auth.ModuleAdmin, u.Username, "", "logout")
	}
	response.JSON(w, map[string]string{"status": "logged out"})
}

// Me returns the caller and the permissions of their role.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	u := auth.UserFromContext(r.Context())
	if u == nil {
		response.Err(w, auth.ErrNoSession.Error(), http.StatusUnauthorized)
		return
	}
	response.JSON(w, map[string]any{
		"user":        u,
		"permissions": h.Perms.GetRolePermissions(u.Role),
	})
}
