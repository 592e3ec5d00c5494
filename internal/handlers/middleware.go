package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"dailyalchemy/internal/apperr"
	"dailyalchemy/internal/logger"
	"dailyalchemy/internal/security"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	PrincipalContextKey ContextKey = "principal"
	RequestIDContextKey ContextKey = "request_id"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	tokens  *security.TokenIssuer
	limiter *security.RateLimiter
	log     *logger.Logger
}

// NewMiddleware creates a new middleware instance. limiter may be nil.
func NewMiddleware(tokens *security.TokenIssuer, limiter *security.RateLimiter, log *logger.Logger) *Middleware {
	return &Middleware{tokens: tokens, limiter: limiter, log: log}
}

// RequireAuth is middleware that requires a valid bearer token
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		raw, ok := security.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			respondWithError(w, m.log, apperr.New(apperr.KindUnauthenticated, "missing bearer token"))
			return
		}
		principal, err := m.tokens.Verify(raw)
		if err != nil {
			respondWithError(w, m.log, apperr.New(apperr.KindUnauthenticated, "invalid token"))
			return
		}

		ctx := context.WithValue(r.Context(), PrincipalContextKey, principal)
		next(w, r.WithContext(ctx))
	}
}

// OptionalAuth attaches the principal when a valid token is present and
// otherwise serves the request anonymously.
func (m *Middleware) OptionalAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if raw, ok := security.BearerToken(r.Header.Get("Authorization")); ok {
			if principal, err := m.tokens.Verify(raw); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), PrincipalContextKey, principal))
			}
		}
		next(w, r)
	}
}

// RequireAdmin is RequireAuth plus the admin entitlement.
func (m *Middleware) RequireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return m.RequireAuth(func(w http.ResponseWriter, r *http.Request) {
		if p := GetPrincipal(r.Context()); p == nil || !p.Admin {
			respondWithError(w, m.log, apperr.New(apperr.KindPermissionDenied, "admin access required"))
			return
		}
		next(w, r)
	})
}

// RateLimit throttles per authenticated user, or per client IP before auth.
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter == nil {
			next(w, r)
			return
		}
		key := "ip:" + security.GetClientIP(r)
		if p := GetPrincipal(r.Context()); p != nil {
			key = "user:" + p.UserID
		}
		if !m.limiter.Allow(key) {
			w.Header().Set("Retry-After", "1")
			respondJSON(w, http.StatusTooManyRequests, errorBody{Error: errorDetail{Code: "RateLimited", Message: "Too many requests"}})
			return
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Logging middleware assigns a request ID and logs each request at a level
// chosen by its status.
func (m *Middleware) Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)
		ctx := context.WithValue(r.Context(), RequestIDContextKey, requestID)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(ctx))

		kv := []interface{}{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID,
		}
		switch {
		case rec.status >= 500:
			m.log.Error("HTTP request", kv...)
		case rec.status >= 400:
			m.log.Warn("HTTP request", kv...)
		default:
			m.log.Info("HTTP request", kv...)
		}
	})
}

// Recover turns a handler panic into a 500.
func (m *Middleware) Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if v := recover(); v != nil {
				m.log.Error("Handler panic", "panic", v, "path", r.URL.Path)
				respondWithError(w, m.log, apperr.New(apperr.KindInternal, "panic: %v", v))
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// GetPrincipal retrieves the authenticated caller from the request context
func GetPrincipal(ctx context.Context) *security.Principal {
	p, ok := ctx.Value(PrincipalContextKey).(*security.Principal)
	if !ok {
		return nil
	}
	return p
}
