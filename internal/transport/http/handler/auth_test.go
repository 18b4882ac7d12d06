package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gradpath-api/internal/application/session"
	"github.com/gradpath-api/internal/application/verification"
	"github.com/gradpath-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockSessionSvc struct{ mock.Mock }

func (m *mockSessionSvc) Login(ctx context.Context, req domain.LoginRequest) (*session.LoginResult, error) {
	args := m.Called(ctx, req)
	if r, _ := args.Get(0).(*session.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionSvc) LoginWithGoogle(ctx context.Context, idToken string) (*session.LoginResult, error) {
	args := m.Called(ctx, idToken)
	if r, _ := args.Get(0).(*session.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionSvc) Refresh(ctx context.Context, presentedRaw string) (*session.LoginResult, error) {
	args := m.Called(ctx, presentedRaw)
	if r, _ := args.Get(0).(*session.LoginResult); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockSessionSvc) Logout(ctx context.Context, presentedRaw string) error {
	return m.Called(ctx, presentedRaw).Error(0)
}

type mockVerificationSvc struct{ mock.Mock }

func (m *mockVerificationSvc) Issue(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockVerificationSvc) Consume(ctx context.Context, rawToken string) (*verification.Result, error) {
	args := m.Called(ctx, rawToken)
	if r, _ := args.Get(0).(*verification.Result); r != nil {
		return r, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockVerificationSvc) Resend(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

// --- helpers ---

func newAuthHandler(us *mockUserSvc, ss *mockSessionSvc, vs *mockVerificationSvc) *AuthHandler {
	return NewAuthHandler(us, ss, vs, false, 30*24*time.Hour)
}

func postJSON(t *testing.T, h http.HandlerFunc, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	buf, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(buf))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func refreshCookie(t *testing.T, rr *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rr.Result().Cookies() {
		if c.Name == refreshCookieName {
			return c
		}
	}
	return nil
}

func loginResult() *session.LoginResult {
	return &session.LoginResult{
		User:         &domain.User{UserID: "u1", Email: "a@b.com", Role: domain.RoleStudent},
		AccessToken:  "signed.jwt",
		RefreshToken: "raw-refresh",
	}
}

func validSignup() domain.SignupRequest {
	return domain.SignupRequest{
		FullName:        "Sara Ahmed",
		Email:           "sara@example.com",
		Password:        "s3cretPass!",
		ConfirmPassword: "s3cretPass!",
		Role:            domain.RoleStudent,
	}
}

// --- Signup ---

func TestSignup_Created_NoTokensNoCookie(t *testing.T) {
	us := &mockUserSvc{}
	us.On("Signup", mock.Anything, mock.AnythingOfType("domain.SignupRequest")).
		Return(&domain.User{UserID: "u1", Email: "sara@example.com"}, nil)

	h := newAuthHandler(us, nil, nil)
	rr := postJSON(t, h.Signup, "/v1/auth/signup", validSignup())

	assert.Equal(t, http.StatusCreated, rr.Code)
	assert.Nil(t, refreshCookie(t, rr))
	assert.NotContains(t, rr.Body.String(), "accessToken")
}

func TestSignup_PasswordMismatch_BadRequest(t *testing.T) {
	req := validSignup()
	req.ConfirmPassword = "different"

	h := newAuthHandler(&mockUserSvc{}, nil, nil)
	rr := postJSON(t, h.Signup, "/v1/auth/signup", req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSignup_DuplicateEmail_Conflict(t *testing.T) {
	us := &mockUserSvc{}
	us.On("Signup", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("email already registered: %w", domain.ErrConflict))

	h := newAuthHandler(us, nil, nil)
	rr := postJSON(t, h.Signup, "/v1/auth/signup", validSignup())
	assert.Equal(t, http.StatusConflict, rr.Code)
}

// --- Login ---

func TestLogin_SetsHttpOnlyCookie(t *testing.T) {
	ss := &mockSessionSvc{}
	ss.On("Login", mock.Anything, mock.AnythingOfType("domain.LoginRequest")).Return(loginResult(), nil)

	h := newAuthHandler(nil, ss, nil)
	rr := postJSON(t, h.Login, "/v1/auth/login", domain.LoginRequest{Email: "a@b.com", Password: "pw123456"})

	assert.Equal(t, http.StatusOK, rr.Code)
	c := refreshCookie(t, rr)
	require.NotNil(t, c)
	assert.Equal(t, "raw-refresh", c.Value)
	assert.True(t, c.HttpOnly)
	assert.Equal(t, refreshCookiePath, c.Path)
	assert.Equal(t, int((30 * 24 * time.Hour).Seconds()), c.MaxAge)

	var env AuthEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "signed.jwt", env.AccessToken)
	// Raw refresh token never appears in the body.
	assert.NotContains(t, rr.Body.String(), "raw-refresh")
}

func TestLogin_InvalidCredentials_Unauthorized(t *testing.T) {
	ss := &mockSessionSvc{}
	ss.On("Login", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized))

	h := newAuthHandler(nil, ss, nil)
	rr := postJSON(t, h.Login, "/v1/auth/login", domain.LoginRequest{Email: "a@b.com", Password: "wrong"})

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Nil(t, refreshCookie(t, rr))
}

func TestLogin_UnverifiedAccount_Forbidden(t *testing.T) {
	ss := &mockSessionSvc{}
	ss.On("Login", mock.Anything, mock.Anything).
		Return(nil, fmt.Errorf("please verify your email before logging in: %w", domain.ErrForbidden))

	h := newAuthHandler(nil, ss, nil)
	rr := postJSON(t, h.Login, "/v1/auth/login", domain.LoginRequest{Email: "a@b.com", Password: "pw123456"})
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

// --- Refresh ---

func TestRefresh_NoCookie_Unauthorized(t *testing.T) {
	h := newAuthHandler(nil, &mockSessionSvc{}, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	rr := httptest.NewRecorder()
	h.Refresh(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRefresh_RotatesCookie(t *testing.T) {
	ss := &mockSessionSvc{}
	result := loginResult()
	result.RefreshToken = "rotated-refresh"
	ss.On("Refresh", mock.Anything, "old-refresh").Return(result, nil)

	h := newAuthHandler(nil, ss, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "old-refresh"})
	rr := httptest.NewRecorder()
	h.Refresh(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	c := refreshCookie(t, rr)
	require.NotNil(t, c)
	assert.Equal(t, "rotated-refresh", c.Value)
}

func TestRefresh_RevokedToken_ClearsCookie(t *testing.T) {
	ss := &mockSessionSvc{}
	ss.On("Refresh", mock.Anything, "stale-refresh").
		Return(nil, fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthorized))

	h := newAuthHandler(nil, ss, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "stale-refresh"})
	rr := httptest.NewRecorder()
	h.Refresh(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	c := refreshCookie(t, rr)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Negative(t, c.MaxAge)
}

// --- Logout ---

func TestLogout_ClearsCookie(t *testing.T) {
	ss := &mockSessionSvc{}
	ss.On("Logout", mock.Anything, "live-refresh").Return(nil)

	h := newAuthHandler(nil, ss, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: refreshCookieName, Value: "live-refresh"})
	rr := httptest.NewRecorder()
	h.Logout(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	c := refreshCookie(t, rr)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Negative(t, c.MaxAge)
	ss.AssertExpectations(t)
}

func TestLogout_NoCookie_StillSucceeds(t *testing.T) {
	ss := &mockSessionSvc{}
	ss.On("Logout", mock.Anything, "").Return(nil)

	h := newAuthHandler(nil, ss, nil)
	req := httptest.NewRequest(http.MethodPost, "/v1/auth/logout", nil)
	rr := httptest.NewRecorder()
	h.Logout(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
}

// --- VerifyEmail ---

func verifyRequest(token string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("token", token)
	req := httptest.NewRequest(http.MethodGet, "/v1/auth/verify-email/"+token, nil)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func TestVerifyEmail_LogsAccountIn(t *testing.T) {
	vs := &mockVerificationSvc{}
	vs.On("Consume", mock.Anything, "the-token").Return(&verification.Result{
		User:         &domain.User{UserID: "u1", IsEmailVerified: true},
		AccessToken:  "verified.jwt",
		RefreshToken: "fresh-refresh",
	}, nil)

	h := newAuthHandler(nil, nil, vs)
	rr := httptest.NewRecorder()
	h.VerifyEmail(rr, verifyRequest("the-token"))

	assert.Equal(t, http.StatusOK, rr.Code)
	c := refreshCookie(t, rr)
	require.NotNil(t, c)
	assert.Equal(t, "fresh-refresh", c.Value)

	var env AuthEnvelope
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &env))
	assert.Equal(t, "verified.jwt", env.AccessToken)
}

func TestVerifyEmail_InvalidToken_BadRequest(t *testing.T) {
	vs := &mockVerificationSvc{}
	vs.On("Consume", mock.Anything, "bogus").
		Return(nil, fmt.Errorf("invalid or expired verification token: %w", domain.ErrBadRequest))

	h := newAuthHandler(nil, nil, vs)
	rr := httptest.NewRecorder()
	h.VerifyEmail(rr, verifyRequest("bogus"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Nil(t, refreshCookie(t, rr))
}

// --- ResendVerification ---

func TestResendVerification_OK(t *testing.T) {
	vs := &mockVerificationSvc{}
	vs.On("Resend", mock.Anything, "a@b.com").Return(nil)

	h := newAuthHandler(nil, nil, vs)
	rr := postJSON(t, h.ResendVerification, "/v1/auth/resend-verification", domain.ResendVerificationRequest{Email: "a@b.com"})
	assert.Equal(t, http.StatusOK, rr.Code)
	vs.AssertExpectations(t)
}

func TestResendVerification_UnknownEmail_BadRequest(t *testing.T) {
	vs := &mockVerificationSvc{}
	vs.On("Resend", mock.Anything, "ghost@example.com").
		Return(fmt.Errorf("verification cannot be resent for this email: %w", domain.ErrBadRequest))

	h := newAuthHandler(nil, nil, vs)
	rr := postJSON(t, h.ResendVerification, "/v1/auth/resend-verification", domain.ResendVerificationRequest{Email: "ghost@example.com"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestResendVerification_AlreadyVerified_BadRequest(t *testing.T) {
	vs := &mockVerificationSvc{}
	vs.On("Resend", mock.Anything, "a@b.com").
		Return(fmt.Errorf("email is already verified: %w", domain.ErrBadRequest))

	h := newAuthHandler(nil, nil, vs)
	rr := postJSON(t, h.ResendVerification, "/v1/auth/resend-verification", domain.ResendVerificationRequest{Email: "a@b.com"})
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
