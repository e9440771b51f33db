package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"pipeerp/internal/auth"
	"pipeerp/internal/handlers/admin"
)

func deny(w http.ResponseWriter, status int, msg, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg, "code": code})
}

// RequestLogger logs method, path, status and duration of every request.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}
			if u := auth.UserFromContext(r.Context()); u != nil {
				fields = append(fields, zap.String("user", u.Username))
			}
			if ww.Status() >= http.StatusInternalServerError {
				log.Warn("request", fields...)
				return
			}
			log.Info("request", fields...)
		})
	}
}

// SecurityHeaders adds security headers to all responses.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		if r.TLS != nil {
			w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuth resolves the Bearer token or session cookie to a user and
// stores it in the request context. Sessions slide forward on every request.
func RequireAuth(sessions *auth.Sessions, secureCookies bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.TokenFromRequest(r)
			if token == "" {
				deny(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
				return
			}
			u, expires, err := sessions.Lookup(r.Context(), token)
			switch {
			case errors.Is(err, auth.ErrSessionTimeout):
				deny(w, http.StatusUnauthorized, err.Error(), "SESSION_TIMEOUT")
				return
			case errors.Is(err, auth.ErrAccountInactive):
				deny(w, http.StatusForbidden, "Account deactivated", "FORBIDDEN")
				return
			case err != nil:
				deny(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
				return
			}

			if c, err := r.Cookie(auth.SessionCookie); err == nil && c.Value == token {
				http.SetCookie(w, &http.Cookie{
					Name:     auth.SessionCookie,
					Value:    token,
					Path:     "/",
					HttpOnly: true,
					Secure:   secureCookies,
					SameSite: http.SameSiteLaxMode,
					Expires:  expires,
				})
			}
			next.ServeHTTP(w, r.WithContext(auth.WithUser(r.Context(), u)))
		})
	}
}

// RequireRBAC enforces permission-based access control on /api/v1/ routes.
// It must run after RequireAuth.
func RequireRBAC(pc *auth.PermCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			path := r.URL.Path
			if !strings.HasPrefix(path, "/api/v1/") {
				next.ServeHTTP(w, r)
				return
			}

			u := auth.UserFromContext(r.Context())
			if u == nil {
				deny(w, http.StatusUnauthorized, "Unauthorized", "UNAUTHORIZED")
				return
			}

			apiPath := strings.TrimSuffix(strings.TrimPrefix(path, "/api/v1/"), "/")
			module, action := auth.MapAPIPathToPermission(apiPath, r.Method)
			if module == "" || action == "" {
				next.ServeHTTP(w, r)
				return
			}

			if !pc.HasPermission(u.Role, module, action) {
				deny(w, http.StatusForbidden, "Permission denied: "+module+":"+action, "FORBIDDEN")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// RateLimiter tracks request rates per key.
type RateLimiter struct {
	requests map[string][]time.Time
	mu       sync.Mutex
	now      func() time.Time
}

// NewRateLimiter creates a new RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		requests: make(map[string][]time.Time),
		now:      time.Now,
	}
}

func (rl *RateLimiter) cleanupOldRequests(key string, now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	requests := rl.requests[key]
	valid := requests[:0]
	for _, t := range requests {
		if t.After(cutoff) {
			valid = append(valid, t)
		}
	}
	if len(valid) > 0 {
		rl.requests[key] = valid
	} else {
		delete(rl.requests, key)
	}
}

// CheckRateLimit records a hit on key and reports whether the limit was
// exceeded, how many hits remain and when the window resets.
func (rl *RateLimiter) CheckRateLimit(key string, limit int, window time.Duration) (bool, int, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	rl.cleanupOldRequests(key, now, window)

	requests := rl.requests[key]
	resetTime := now.Add(window)
	if len(requests) > 0 {
		resetTime = requests[0].Add(window)
	}
	if len(requests) >= limit {
		return true, 0, resetTime
	}

	rl.requests[key] = append(requests, now)
	return false, limit - len(requests) - 1, resetTime
}

// Prune drops keys with no hits inside window and returns how many remain.
func (rl *RateLimiter) Prune(window time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for key := range rl.requests {
		rl.cleanupOldRequests(key, now, window)
	}
	return len(rl.requests)
}

// RateLimitMiddleware limits each client IP to limit requests per minute.
func RateLimitMiddleware(rl *RateLimiter, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			exceeded, remaining, resetTime := rl.CheckRateLimit("api:"+admin.ClientIP(r), limit, time.Minute)

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetTime.Unix(), 10))

			if exceeded {
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetTime).Seconds())+1))
				deny(w, http.StatusTooManyRequests, "Rate limit exceeded", "RATE_LIMIT_EXCEEDED")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
