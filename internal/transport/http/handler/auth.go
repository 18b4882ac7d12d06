package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gradpath-api/internal/application/session"
	"github.com/gradpath-api/internal/application/user"
	"github.com/gradpath-api/internal/application/verification"
	"github.com/gradpath-api/internal/domain"
	"github.com/gradpath-api/internal/pkg/validate"
)

const refreshCookieName = "refresh_token"

// refreshCookiePath covers every endpoint that reads the cookie:
// /v1/auth/refresh and /v1/auth/logout.
const refreshCookiePath = "/v1/auth"

// AuthHandler handles signup, login and the session lifecycle
// endpoints. The refresh token is carried exclusively in an httpOnly
// cookie; response bodies only ever contain the access token.
type AuthHandler struct {
	users         user.Service
	sessions      session.Service
	verifications verification.Service
	secureCookies bool
	refreshTTL    time.Duration
}

func NewAuthHandler(users user.Service, sessions session.Service, verifications verification.Service, secureCookies bool, refreshTTL time.Duration) *AuthHandler {
	return &AuthHandler{
		users:         users,
		sessions:      sessions,
		verifications: verifications,
		secureCookies: secureCookies,
		refreshTTL:    refreshTTL,
	}
}

func (h *AuthHandler) setRefreshCookie(w http.ResponseWriter, token string) {
	sameSite := http.SameSiteLaxMode
	if h.secureCookies {
		sameSite = http.SameSiteNoneMode
	}
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    token,
		Path:     refreshCookiePath,
		MaxAge:   int(h.refreshTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookies,
		SameSite: sameSite,
	})
}

func (h *AuthHandler) clearRefreshCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    "",
		Path:     refreshCookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secureCookies,
	})
}

// Signup registers a new account. No tokens are issued; the account
// must verify its email first.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req domain.SignupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	u, err := h.users.Signup(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, UserEnvelope{
		User:    u,
		Message: "account created, check your email to verify your address",
	})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.sessions.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{AccessToken: result.AccessToken, User: result.User})
}

func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req domain.GoogleLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	result, err := h.sessions.LoginWithGoogle(r.Context(), req.IDToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{AccessToken: result.AccessToken, User: result.User})
}

// VerifyEmail consumes the emailed token and logs the account in.
func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if token == "" {
		writeError(w, http.StatusBadRequest, "verification token required")
		return
	}
	result, err := h.verifications.Consume(r.Context(), token)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{
		AccessToken: result.AccessToken,
		User:        result.User,
		Message:     "email verified",
	})
}

func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	var req domain.ResendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := h.verifications.Resend(r.Context(), req.Email); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "verification email sent"})
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil || cookie.Value == "" {
		writeError(w, http.StatusUnauthorized, "refresh token required")
		return
	}
	result, err := h.sessions.Refresh(r.Context(), cookie.Value)
	if err != nil {
		h.clearRefreshCookie(w)
		writeServiceError(w, err)
		return
	}
	h.setRefreshCookie(w, result.RefreshToken)
	writeJSON(w, http.StatusOK, AuthEnvelope{AccessToken: result.AccessToken, User: result.User})
}

// Logout revokes the presented session and clears the cookie. Always
// succeeds, even without a valid cookie.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var raw string
	if cookie, err := r.Cookie(refreshCookieName); err == nil {
		raw = cookie.Value
	}
	if err := h.sessions.Logout(r.Context(), raw); err != nil {
		writeServiceError(w, err)
		return
	}
	h.clearRefreshCookie(w)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "logged out"})
}
