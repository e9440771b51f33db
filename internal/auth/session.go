package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SessionCookie is the name of the session cookie.
const SessionCookie = "pipeerp_session"

const timeLayout = "2006-01-02 15:04:05"

var (
	ErrNoSession      = errors.New("unauthorized")
	ErrSessionTimeout = errors.New("session expired due to inactivity")
)

// User is the authenticated principal attached to a request.
type User struct {
	ID          int    `json:"id" db:"id"`
	Username    string `json:"username" db:"username"`
	DisplayName string `json:"display_name" db:"display_name"`
	Role        string `json:"role" db:"role"`
}

type ctxKey struct{}

// WithUser returns a copy of ctx carrying u.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, ctxKey{}, u)
}

// UserFromContext returns the user stored by WithUser, or nil.
func UserFromContext(ctx context.Context) *User {
	u, _ := ctx.Value(ctxKey{}).(*User)
	return u
}

// Sessions issues and validates session tokens.
type Sessions struct {
	DB   *sqlx.DB
	TTL  time.Duration
	Idle time.Duration
	Now  func() time.Time
}

// NewSessions returns a Sessions store with the given lifetimes.
func NewSessions(db *sqlx.DB, ttl, idle time.Duration) *Sessions {
	return &Sessions{DB: db, TTL: ttl, Idle: idle, Now: time.Now}
}

func (s *Sessions) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

// Login checks the credentials and opens a session.
func (s *Sessions) Login(ctx context.Context, username, password string) (string, *User, time.Time, error) {
	var row struct {
		User
		PasswordHash string `db:"password_hash"`
		Active       bool   `db:"active"`
	}
	err := s.DB.GetContext(ctx, &row, "SELECT id, username, display_name, role, password_hash, active FROM users WHERE username = ?", username)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, time.Time{}, ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, time.Time{}, fmt.Errorf("load user: %w", err)
	}

	locked, err := IsAccountLocked(s.DB, username)
	if err != nil {
		return "", nil, time.Time{}, err
	}
	if locked {
		return "", nil, time.Time{}, ErrAccountLocked
	}

	if !CheckPassword(row.PasswordHash, password) {
		if err := IncrementFailedLoginAttempts(s.DB, username); err != nil {
			return "", nil, time.Time{}, err
		}
		return "", nil, time.Time{}, ErrInvalidCredentials
	}
	if !row.Active {
		return "", nil, time.Time{}, ErrAccountInactive
	}

	if err := ResetFailedLoginAttempts(s.DB, username); err != nil {
		return "", nil, time.Time{}, err
	}

	now := s.now()
	token := uuid.NewString()
	expires := now.Add(s.TTL)
	_, err = s.DB.ExecContext(ctx, "INSERT INTO sessions (token, user_id, created_at, expires_at, last_activity) VALUES (?, ?, ?, ?, ?)",
		token, row.ID, now.Format(timeLayout), expires.Format(timeLayout), now.Format(timeLayout))
	if err != nil {
		return "", nil, time.Time{}, fmt.Errorf("create session: %w", err)
	}
	s.DB.ExecContext(ctx, "UPDATE users SET last_login = ? WHERE id = ?", now.Format(timeLayout), row.ID)

	u := row.User
	return token, &u, expires, nil
}

// Lookup validates token and slides its expiry forward.
func (s *Sessions) Lookup(ctx context.Context, token string) (*User, time.Time, error) {
	var row struct {
		User
		Active       bool   `db:"active"`
		ExpiresAt    string `db:"expires_at"`
		LastActivity string `db:"last_activity"`
	}
	err := s.DB.GetContext(ctx, &row, `SELECT u.id, u.username, u.display_name, u.role, u.active, s.expires_at, s.last_activity
		FROM sessions s JOIN users u ON s.user_id = u.id WHERE s.token = ?`, token)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, time.Time{}, ErrNoSession
	}
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("load session: %w", err)
	}

	now := s.now()
	if exp, err := time.Parse(timeLayout, row.ExpiresAt); err != nil || !now.Before(exp) {
		s.Logout(ctx, token)
		return nil, time.Time{}, ErrNoSession
	}
	if last, err := time.Parse(timeLayout, row.LastActivity); err == nil && s.Idle > 0 && now.Sub(last) > s.Idle {
		s.Logout(ctx, token)
		return nil, time.Time{}, ErrSessionTimeout
	}
	if !row.Active {
		return nil, time.Time{}, ErrAccountInactive
	}

	expires := now.Add(s.TTL)
	if _, err := s.DB.ExecContext(ctx, "UPDATE sessions SET expires_at = ?, last_activity = ? WHERE token = ?",
		expires.Format(timeLayout), now.Format(timeLayout), token); err != nil {
		return nil, time.Time{}, fmt.Errorf("touch session: %w", err)
	}
	u := row.User
	return &u, expires, nil
}

// Logout deletes the session.
func (s *Sessions) Logout(ctx context.Context, token string) error {
	_, err := s.DB.ExecContext(ctx, "DELETE FROM sessions WHERE token = ?", token)
	return err
}

// Sweep deletes expired sessions and returns how many were removed.
func (s *Sessions) Sweep(ctx context.Context) (int64, error) {
	res, err := s.DB.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", s.now().Format(timeLayout))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// TokenFromRequest returns the Bearer token or session cookie value.
func TokenFromRequest(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// CreateUser inserts a user with a hashed password and returns its id.
func CreateUser(db *sqlx.DB, username, displayName, password, role string) (int, error) {
	if err := ValidatePasswordStrength(password); err != nil {
		return 0, err
	}
	valid := false
	for _, r := range AllRoles {
		if r == role {
			valid = true
		}
	}
	if !valid {
		return 0, fmt.Errorf("unknown role %q", role)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return 0, err
	}
	res, err := db.Exec("INSERT INTO users (username, display_name, password_hash, role) VALUES (?, ?, ?, ?)",
		username, displayName, hash, role)
	if err != nil {
		return 0, fmt.Errorf("create user %s: %w", username, err)
	}
	id, err := res.LastInsertId()
	return int(id), err
}

// EnsureAdmin creates an "admin" user with password when the users table is
// empty. It reports whether a user was created.
func EnsureAdmin(db *sqlx.DB, password string) (bool, error) {
	var n int
	if err := db.Get(&n, "SELECT COUNT(*) FROM users"); err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	if password == "" {
		return false, errors.New("no users exist and no admin password is configured")
	}
	if _, err := CreateUser(db, "admin", "Administrator", password, RoleAdmin); err != nil {
		return false, err
	}
	return true, nil
}
