package session

import (
	"context"
	"fmt"
	"time"

	"github.com/gradpath-api/internal/domain"
	googleinfra "github.com/gradpath-api/internal/infrastructure/google"
	"github.com/gradpath-api/internal/pkg/id"
	pkgtoken "github.com/gradpath-api/internal/pkg/token"
	"golang.org/x/crypto/bcrypt"
)

// LoginResult carries everything a successful sign-in produces: the
// account, the signed access token and the raw refresh token handed to
// the client exactly once.
type LoginResult struct {
	User             *domain.User
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Service interface {
	Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error)
	LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error)
	Refresh(ctx context.Context, presentedRaw string) (*LoginResult, error)
	Logout(ctx context.Context, presentedRaw string) error
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByRefreshTokenHash(ctx context.Context, hash string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	SetRefreshToken(ctx context.Context, userID, hash string, expiresAt int64) error
	RotateRefreshToken(ctx context.Context, userID, oldHash, newHash string, newExpiry int64) error
	ClearRefreshToken(ctx context.Context, userID string) error
}

type jwtSigner interface {
	Sign(userID, email, role string) (string, error)
}

type googleVerifier interface {
	Verify(ctx context.Context, token string) (*googleinfra.Payload, error)
}

type service struct {
	repo            userStore
	jwtProvider     jwtSigner
	googleVerifier  googleVerifier
	refreshTokenDur time.Duration
	now             func() time.Time
}

type ServiceDeps struct {
	UserRepo        userStore
	JWTProvider     jwtSigner
	GoogleVerifier  googleVerifier
	RefreshTokenDur time.Duration
	Now             func() time.Time // defaults to time.Now
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:            deps.UserRepo,
		jwtProvider:     deps.JWTProvider,
		googleVerifier:  deps.GoogleVerifier,
		refreshTokenDur: deps.RefreshTokenDur,
		now:             now,
	}
}

func (s *service) Login(ctx context.Context, req domain.LoginRequest) (*LoginResult, error) {
	u, err := s.repo.GetByEmail(ctx, req.Email)
	if err != nil {
		// Same message whether the account is missing or the password
		// is wrong, to resist account enumeration.
		return nil, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	}
	if u.PasswordHash == "" {
		// Provider-only account; no password to compare.
		return nil, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, fmt.Errorf("invalid email or password: %w", domain.ErrUnauthorized)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("your account has been deactivated: %w", domain.ErrForbidden)
	}
	if !u.IsEmailVerified {
		return nil, fmt.Errorf("please verify your email before logging in: %w", domain.ErrForbidden)
	}
	return s.startSession(ctx, u)
}

func (s *service) LoginWithGoogle(ctx context.Context, idToken string) (*LoginResult, error) {
	payload, err := s.googleVerifier.Verify(ctx, idToken)
	if err != nil {
		return nil, err
	}
	u, err := s.repo.GetByEmail(ctx, payload.Email)
	if err != nil {
		u, err = s.createGoogleUser(ctx, payload)
		if err != nil {
			return nil, err
		}
		return s.startSession(ctx, u)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("your account has been deactivated: %w", domain.ErrForbidden)
	}
	if u.GoogleSub == "" {
		// First provider sign-in on an existing password account: link it.
		if err := s.repo.Update(ctx, u.UserID, map[string]interface{}{
			"google_sub":        payload.ProviderID,
			"is_email_verified": true,
		}); err != nil {
			return nil, err
		}
		u.GoogleSub = payload.ProviderID
		u.IsEmailVerified = true
	}
	return s.startSession(ctx, u)
}

func (s *service) Refresh(ctx context.Context, presentedRaw string) (*LoginResult, error) {
	u, err := s.repo.GetByRefreshTokenHash(ctx, pkgtoken.Hash(presentedRaw))
	if err != nil {
		return nil, fmt.Errorf("invalid refresh token: %w", domain.ErrUnauthorized)
	}
	if u.RefreshExpiresAt == nil || *u.RefreshExpiresAt < s.now().Unix() {
		return nil, fmt.Errorf("refresh token expired: %w", domain.ErrUnauthorized)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("your account has been deactivated: %w", domain.ErrUnauthorized)
	}
	newRaw, err := pkgtoken.New()
	if err != nil {
		return nil, err
	}
	newExpiry := s.now().Add(s.refreshTokenDur)
	// Conditional on the old digest still being stored: of two
	// concurrent rotations with the same raw token, exactly one wins.
	if err := s.repo.RotateRefreshToken(ctx, u.UserID, pkgtoken.Hash(presentedRaw), pkgtoken.Hash(newRaw), newExpiry.Unix()); err != nil {
		return nil, err
	}
	access, err := s.jwtProvider.Sign(u.UserID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User:             u,
		AccessToken:      access,
		RefreshToken:     newRaw,
		RefreshExpiresAt: newExpiry,
	}, nil
}

// Logout revokes the session owning the presented refresh token.
// Idempotent: an unknown or already-revoked token is a no-op.
func (s *service) Logout(ctx context.Context, presentedRaw string) error {
	if presentedRaw == "" {
		return nil
	}
	u, err := s.repo.GetByRefreshTokenHash(ctx, pkgtoken.Hash(presentedRaw))
	if err != nil {
		return nil
	}
	return s.repo.ClearRefreshToken(ctx, u.UserID)
}

// startSession installs a fresh refresh pair on the account, replacing
// any previous one (single active session per account), and signs an
// access token.
func (s *service) startSession(ctx context.Context, u *domain.User) (*LoginResult, error) {
	raw, err := pkgtoken.New()
	if err != nil {
		return nil, err
	}
	expiry := s.now().Add(s.refreshTokenDur)
	if err := s.repo.SetRefreshToken(ctx, u.UserID, pkgtoken.Hash(raw), expiry.Unix()); err != nil {
		return nil, err
	}
	access, err := s.jwtProvider.Sign(u.UserID, u.Email, u.Role)
	if err != nil {
		return nil, err
	}
	return &LoginResult{
		User:             u,
		AccessToken:      access,
		RefreshToken:     raw,
		RefreshExpiresAt: expiry,
	}, nil
}

func (s *service) createGoogleUser(ctx context.Context, p *googleinfra.Payload) (*domain.User, error) {
	now := s.now().UTC()
	u := &domain.User{
		UserID:          id.New(),
		FullName:        p.DisplayName,
		Email:           p.Email,
		Role:            domain.RoleStudent,
		ProfileImageURL: p.PhotoURL,
		AuthProvider:    domain.ProviderGoogle,
		GoogleSub:       p.ProviderID,
		IsEmailVerified: true,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}
