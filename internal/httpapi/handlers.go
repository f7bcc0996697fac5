// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gatehouse/gatehouse/internal/auth"
	"github.com/gatehouse/gatehouse/pkg/errutil"
)

// Cookie names for the session and remember tokens.
const (
	SessionCookie  = "gatehouse_session"
	RememberCookie = "gatehouse_remember"
)

// Request handling limits.
const (
	maxBodyBytes   = 64 << 10 // 64 KiB is plenty for any auth payload
	requestTimeout = 10 * time.Second
)

// envelope is the uniform JSON response shape.
type envelope struct {
	Success bool              `json:"success"`
	Message string            `json:"message"`
	Data    any               `json:"data,omitempty"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// Handler serves the auth endpoints.
type Handler struct {
	svc    *auth.Service
	logger *slog.Logger
	secure bool // mark cookies Secure; off for plain-HTTP development
}

// NewHandler creates a Handler around the auth service.
func NewHandler(svc *auth.Service, logger *slog.Logger, secureCookies bool) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, secure: secureCookies}
}

// Routes registers all endpoints on a new mux.
func (h *Handler) Routes(metrics *Metrics) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/register", h.handleRegister)
	mux.HandleFunc("/api/login", h.handleLogin)
	mux.HandleFunc("/api/logout", h.handleLogout)
	mux.HandleFunc("/api/me", h.handleMe)
	mux.HandleFunc("/api/verify-email", h.handleVerifyEmail)
	mux.HandleFunc("/api/password-reset/request", h.handleResetRequest)
	mux.HandleFunc("/api/password-reset/confirm", h.handleResetConfirm)

	var handler http.Handler = mux
	handler = withRequestLog(handler, h.logger)
	if metrics != nil {
		handler = metrics.instrument(handler)
	}
	return handler
}

type registerRequest struct {
	FullName        string `json:"fullName"`
	Email           string `json:"email"`
	Username        string `json:"username"`
	Phone           string `json:"phone"`
	Institution     string `json:"institution"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	Terms           bool   `json:"terms"`
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !h.decodePost(w, r, &req) {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	result, err := h.svc.Register(ctx, auth.RegistrationInput{
		FullName:        req.FullName,
		Email:           req.Email,
		Username:        req.Username,
		Phone:           req.Phone,
		Institution:     req.Institution,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		TermsAccepted:   req.Terms,
	})
	if err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeJSON(w, http.StatusBadRequest, envelope{
				Message: "Please correct the highlighted fields",
				Errors:  verr.Fields,
			})
		case errors.Is(err, auth.ErrDuplicateIdentity):
			h.writeJSON(w, http.StatusBadRequest, envelope{
				Message: "Email or username already registered",
			})
		default:
			h.systemError(w, "register failed", err)
		}
		return
	}

	message := "Registration successful!"
	if result.VerificationRequired {
		message = "Registration successful! Check your email to verify your account."
	}
	h.writeJSON(w, http.StatusCreated, envelope{
		Success: true,
		Message: message,
		Data: map[string]any{
			"user_id":                     result.AccountID.String(),
			"email_verification_required": result.VerificationRequired,
		},
	})
}

type loginRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Remember   bool   `json:"remember"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !h.decodePost(w, r, &req) {
		return
	}
	if req.Identifier == "" || req.Password == "" {
		h.writeJSON(w, http.StatusBadRequest, envelope{
			Message: "Email/username and password are required",
		})
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	result, err := h.svc.Login(ctx, req.Identifier, req.Password, req.Remember)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrInvalidCredentials):
			h.writeJSON(w, http.StatusUnauthorized, envelope{
				Message: "Email/username or password incorrect",
			})
		case errors.Is(err, auth.ErrEmailNotVerified):
			h.writeJSON(w, http.StatusUnauthorized, envelope{
				Message: "Please verify your email first",
			})
		default:
			h.systemError(w, "login failed", err)
		}
		return
	}

	h.setSessionCookie(w, result.SessionToken, result.Session.ExpiresAt)
	if result.RememberToken != "" {
		h.setCookie(w, RememberCookie, result.RememberToken, result.RememberExpires)
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Login successful!",
		Data:    result.Profile,
	})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if !h.requirePost(w, r) {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	if token := h.cookieValue(r, SessionCookie); token != "" {
		if err := h.svc.Logout(ctx, token); err != nil && !errors.Is(err, auth.ErrNotFound) {
			h.systemError(w, "logout failed", err)
			return
		}
	}

	// Expire both cookies regardless of whether the session was still live
	h.clearCookie(w, SessionCookie)
	h.clearCookie(w, RememberCookie)

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Logout successful",
	})
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		h.methodNotAllowed(w)
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	if token := h.cookieValue(r, SessionCookie); token != "" {
		profile, err := h.svc.CurrentUser(ctx, token)
		if err == nil {
			h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: profile})
			return
		}
		if !errors.Is(err, auth.ErrNotFound) {
			h.systemError(w, "current user lookup failed", err)
			return
		}
	}

	// No live session; a remember token may still re-establish one
	if token := h.cookieValue(r, RememberCookie); token != "" {
		result, err := h.svc.LoginWithRememberToken(ctx, token)
		if err == nil {
			h.setSessionCookie(w, result.SessionToken, result.Session.ExpiresAt)
			h.writeJSON(w, http.StatusOK, envelope{Success: true, Data: result.Profile})
			return
		}
		if !errors.Is(err, auth.ErrInvalidCredentials) && !errors.Is(err, auth.ErrEmailNotVerified) {
			h.systemError(w, "remember login failed", err)
			return
		}
		h.clearCookie(w, RememberCookie)
	}

	h.writeJSON(w, http.StatusUnauthorized, envelope{
		Message: "Not logged in",
	})
}

type verifyEmailRequest struct {
	Token string `json:"token"`
}

func (h *Handler) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	var req verifyEmailRequest
	if !h.decodePost(w, r, &req) {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.svc.VerifyEmail(ctx, req.Token); err != nil {
		if errors.Is(err, auth.ErrTokenInvalid) {
			h.writeJSON(w, http.StatusBadRequest, envelope{
				Message: "Verification token invalid or already used",
			})
			return
		}
		h.systemError(w, "email verification failed", err)
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Email verified successfully",
	})
}

type resetRequestRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleResetRequest(w http.ResponseWriter, r *http.Request) {
	var req resetRequestRequest
	if !h.decodePost(w, r, &req) {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.svc.RequestPasswordReset(ctx, req.Email); err != nil {
		h.systemError(w, "password reset request failed", err)
		return
	}

	// Identical shape whether or not the address is registered
	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "If the email is registered, a reset link has been sent",
	})
}

type resetConfirmRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

func (h *Handler) handleResetConfirm(w http.ResponseWriter, r *http.Request) {
	var req resetConfirmRequest
	if !h.decodePost(w, r, &req) {
		return
	}

	ctx, cancel := h.opContext(r)
	defer cancel()

	if err := h.svc.ResetPassword(ctx, req.Token, req.Password); err != nil {
		var verr *auth.ValidationError
		switch {
		case errors.As(err, &verr):
			h.writeJSON(w, http.StatusBadRequest, envelope{
				Message: "Please correct the highlighted fields",
				Errors:  verr.Fields,
			})
		case errors.Is(err, auth.ErrTokenInvalid):
			h.writeJSON(w, http.StatusBadRequest, envelope{
				Message: "Reset token invalid or expired",
			})
		default:
			h.systemError(w, "password reset failed", err)
		}
		return
	}

	h.writeJSON(w, http.StatusOK, envelope{
		Success: true,
		Message: "Password reset successfully",
	})
}

// decodePost enforces the POST method and decodes the JSON body. Returns
// false after writing a response when the request is unusable.
func (h *Handler) decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if !h.requirePost(w, r) {
		return false
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, envelope{
			Message: "Invalid JSON input",
		})
		return false
	}
	return true
}

func (h *Handler) requirePost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		h.methodNotAllowed(w)
		return false
	}
	return true
}

func (h *Handler) methodNotAllowed(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusMethodNotAllowed, envelope{
		Message: "Method not allowed",
	})
}

// systemError answers with the generic failure envelope. The underlying
// error was already logged with context at the service layer; log here too
// so handler-level failures are never silent.
func (h *Handler) systemError(w http.ResponseWriter, msg string, err error) {
	errutil.LogError(h.logger, msg, err)
	h.writeJSON(w, http.StatusInternalServerError, envelope{
		Message: "A system error occurred",
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Warn("response write failed", "error", err)
	}
}

func (h *Handler) opContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), requestTimeout)
}

func (h *Handler) cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

func (h *Handler) setSessionCookie(w http.ResponseWriter, token string, expires time.Time) {
	h.setCookie(w, SessionCookie, token, expires)
}

func (h *Handler) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (h *Handler) clearCookie(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
