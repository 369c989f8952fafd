package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"
)

const (
	defaultSessionCookie = "access_token"
	defaultVerifyTimeout = 5 * time.Second
)

// TokenVerifier verifies session tokens and extracts the caller identity.
type TokenVerifier interface {
	VerifyAccessToken(token string) (*Identity, error)
}

// AccountStatus is the minimal account state the middleware needs for gating.
type AccountStatus struct {
	Exists bool
	Banned bool
}

// AccountChecker loads account status so banned or deleted users are rejected
// even while holding a valid token.
type AccountChecker interface {
	AccountStatus(ctx context.Context, uid string) (AccountStatus, error)
}

// Authenticator wires session token verification into HTTP middleware.
type Authenticator struct {
	verifier TokenVerifier
	accounts AccountChecker

	cookieName string
	timeout    time.Duration
}

// Option customises Authenticator behaviour.
type Option func(*Authenticator)

// WithAccountChecker enables account status gating on every request.
func WithAccountChecker(checker AccountChecker) Option {
	return func(a *Authenticator) {
		a.accounts = checker
	}
}

// WithSessionCookie overrides the cookie inspected when no bearer token is present.
func WithSessionCookie(name string) Option {
	return func(a *Authenticator) {
		name = strings.TrimSpace(name)
		if name != "" {
			a.cookieName = name
		}
	}
}

// WithVerificationTimeout sets the timeout used when loading account status.
func WithVerificationTimeout(d time.Duration) Option {
	return func(a *Authenticator) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAuthenticator constructs an Authenticator for middleware composition.
func NewAuthenticator(verifier TokenVerifier, opts ...Option) *Authenticator {
	a := &Authenticator{
		verifier:   verifier,
		cookieName: defaultSessionCookie,
		timeout:    defaultVerifyTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	return a
}

// RequireAuth verifies the session token from the Authorization header or the
// session cookie and ensures the caller holds one of the allowed roles. An
// empty role list admits any authenticated caller.
func (a *Authenticator) RequireAuth(allowedRoles ...string) func(http.Handler) http.Handler {
	allowed := make(map[string]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		role = normaliseRole(role)
		if role == "" {
			continue
		}
		allowed[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenStr, ok := a.extractToken(r)
			if !ok {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "session token missing")
				return
			}
			if a == nil || a.verifier == nil {
				respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "authorization service unavailable")
				return
			}

			identity, err := a.verifier.VerifyAccessToken(tokenStr)
			if err != nil {
				respondVerificationError(w, err)
				return
			}

			if len(allowed) > 0 && !hasAllowedRole(identity.Roles, allowed) {
				respondAuthError(w, http.StatusForbidden, "unauthorized", "identity does not have required role")
				return
			}

			if a.accounts != nil {
				ctx, cancel := a.contextWithTimeout(r.Context())
				status, err := a.accounts.AccountStatus(ctx, identity.UID)
				if cancel != nil {
					cancel()
				}
				if err != nil {
					respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "account lookup failed")
					return
				}
				if !status.Exists {
					respondAuthError(w, http.StatusUnauthorized, "unauthenticated", "account no longer exists")
					return
				}
				if status.Banned {
					respondAuthError(w, http.StatusForbidden, "unauthorized", "account is banned")
					return
				}
			}

			ctx := WithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (a *Authenticator) extractToken(r *http.Request) (string, bool) {
	if token, ok := extractBearerToken(r.Header.Get("Authorization")); ok {
		return token, true
	}
	name := defaultSessionCookie
	if a != nil && a.cookieName != "" {
		name = a.cookieName
	}
	cookie, err := r.Cookie(name)
	if err != nil || cookie == nil {
		return "", false
	}
	token := strings.TrimSpace(cookie.Value)
	if token == "" {
		return "", false
	}
	return token, true
}

func (a *Authenticator) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}

func hasAllowedRole(identityRoles []string, allowed map[string]struct{}) bool {
	for _, role := range identityRoles {
		if _, ok := allowed[normaliseRole(role)]; ok {
			return true
		}
	}
	return false
}

func normaliseRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}

func extractBearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", false
	}

	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 {
		return "", false
	}

	if !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}

	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}

	return token, true
}

func respondAuthError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error":   code,
		"message": message,
		"status":  status,
	})
}

func respondVerificationError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		respondAuthError(w, http.StatusUnauthorized, "token_expired", "session token expired")
	default:
		respondAuthError(w, http.StatusUnauthorized, "invalid_token", "session token invalid")
	}
}
