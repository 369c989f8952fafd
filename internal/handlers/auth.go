package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fashion-shop/api/internal/platform/httpx"
	"github.com/fashion-shop/api/internal/services"
)

const maxAuthBodySize = 8 * 1024

// SessionCookieSettings controls how the session token cookie is written.
type SessionCookieSettings struct {
	Name   string
	Domain string
	Secure bool
}

// AuthHandlers exposes registration, login, and password recovery endpoints.
type AuthHandlers struct {
	auth    services.AuthService
	cookies SessionCookieSettings
	limiter rateLimiter
}

// AuthHandlersOption customises AuthHandlers construction.
type AuthHandlersOption func(*AuthHandlers)

// WithAuthRateLimit throttles credential endpoints per client key.
func WithAuthRateLimit(limit int, window time.Duration, clock func() time.Time) AuthHandlersOption {
	return func(h *AuthHandlers) {
		h.limiter = newSimpleRateLimiter(limit, window, clock)
	}
}

// NewAuthHandlers constructs handlers for the /auth endpoint group.
func NewAuthHandlers(auth services.AuthService, cookies SessionCookieSettings, opts ...AuthHandlersOption) *AuthHandlers {
	if strings.TrimSpace(cookies.Name) == "" {
		cookies.Name = "access_token"
	}
	h := &AuthHandlers{
		auth:    auth,
		cookies: cookies,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes wires the /auth endpoints onto the provided router.
func (h *AuthHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/register", h.register)
	r.Post("/login", h.login)
	r.Post("/logout", h.logout)
	r.Post("/forgot-password", h.forgotPassword)
	r.Post("/reset-password", h.resetPassword)
}

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type sessionResponse struct {
	User      userPayload `json:"user"`
	Token     string      `json:"token"`
	ExpiresAt string      `json:"expiresAt"`
}

func (h *AuthHandlers) register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "auth service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req registerRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	session, err := h.auth.Register(ctx, services.RegisterCommand{
		Email:    req.Email,
		Password: req.Password,
		Name:     req.Name,
	})
	if err != nil {
		h.writeAuthError(ctx, w, err)
		return
	}

	h.setSessionCookie(w, session)
	writeJSONResponse(w, http.StatusCreated, sessionResponse{
		User:      buildUserPayload(session.User),
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
	})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandlers) login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "auth service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req loginRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	session, err := h.auth.Login(ctx, services.LoginCommand{
		Email:    req.Email,
		Password: req.Password,
	})
	if err != nil {
		h.writeAuthError(ctx, w, err)
		return
	}

	h.setSessionCookie(w, session)
	writeJSONResponse(w, http.StatusOK, sessionResponse{
		User:      buildUserPayload(session.User),
		Token:     session.Token,
		ExpiresAt: formatTime(session.ExpiresAt),
	})
}

func (h *AuthHandlers) logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookie(w)
	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandlers) forgotPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "auth service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req forgotPasswordRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	if err := h.auth.RequestPasswordReset(ctx, req.Email); err != nil {
		h.writeAuthError(ctx, w, err)
		return
	}

	// Same response whether or not the address is registered.
	writeJSONResponse(w, http.StatusAccepted, map[string]any{"status": "ok"})
}

type resetPasswordRequest struct {
	Token       string `json:"token"`
	NewPassword string `json:"newPassword"`
}

func (h *AuthHandlers) resetPassword(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !h.allow(w, r) {
		return
	}
	if h.auth == nil {
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "auth service is unavailable", http.StatusServiceUnavailable))
		return
	}

	var req resetPasswordRequest
	if err := decodeJSONBody(r, maxAuthBodySize, &req); err != nil {
		writeBodyError(w, r, err)
		return
	}

	if err := h.auth.ResetPassword(ctx, services.ResetPasswordCommand{
		Token:       req.Token,
		NewPassword: req.NewPassword,
	}); err != nil {
		h.writeAuthError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (h *AuthHandlers) allow(w http.ResponseWriter, r *http.Request) bool {
	if h.limiter == nil {
		return true
	}
	if h.limiter.Allow(clientKey(r)) {
		return true
	}
	httpx.WriteError(r.Context(), w, httpx.NewError("rate_limited", "too many requests; slow down", http.StatusTooManyRequests))
	return false
}

func (h *AuthHandlers) setSessionCookie(w http.ResponseWriter, session services.AuthSession) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    session.Token,
		Path:     "/",
		Domain:   h.cookies.Domain,
		Expires:  session.ExpiresAt,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *AuthHandlers) writeAuthError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrAuthInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInvalidRequest, err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrAuthEmailTaken):
		httpx.WriteError(ctx, w, httpx.NewError("email_taken", "an account already exists for this email", http.StatusConflict))
	case errors.Is(err, services.ErrAuthInvalidCredentials):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnauthenticated, "invalid email or password", http.StatusUnauthorized))
	case errors.Is(err, services.ErrAuthAccountBanned):
		httpx.WriteError(ctx, w, httpx.NewError("account_banned", "this account has been suspended", http.StatusForbidden))
	case errors.Is(err, services.ErrAuthTokenExpired):
		httpx.WriteError(ctx, w, httpx.NewError("token_expired", "reset token has expired", http.StatusBadRequest))
	case errors.Is(err, services.ErrAuthTokenInvalid):
		httpx.WriteError(ctx, w, httpx.NewError("token_invalid", "reset token is invalid or already used", http.StatusBadRequest))
	case errors.Is(err, services.ErrAuthUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeUnavailable, "auth service is unavailable", http.StatusServiceUnavailable))
	default:
		httpx.WriteError(ctx, w, httpx.NewError(httpx.CodeInternal, "authentication failed", http.StatusInternalServerError))
	}
}
