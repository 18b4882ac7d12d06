package verification

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gradpath-api/internal/domain"
	pkgtoken "github.com/gradpath-api/internal/pkg/token"
)

// Result is what a consumed verification token yields: the now-verified
// account with a freshly issued session.
type Result struct {
	User             *domain.User
	AccessToken      string
	RefreshToken     string
	RefreshExpiresAt time.Time
}

type Service interface {
	// Issue mints a verification token for the account, stores its
	// digest and dispatches the notification without blocking the
	// caller.
	Issue(ctx context.Context, u *domain.User) error
	Consume(ctx context.Context, rawToken string) (*Result, error)
	Resend(ctx context.Context, email string) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	GetByVerificationTokenHash(ctx context.Context, hash string) (*domain.User, error)
	SetVerificationToken(ctx context.Context, userID, hash string, expiresAt int64) error
	ConsumeVerificationToken(ctx context.Context, userID, tokenHash, refreshHash string, refreshExpiry int64) (*domain.User, error)
}

type notifier interface {
	SendVerification(ctx context.Context, email, fullName, rawToken string) error
}

type jwtSigner interface {
	Sign(userID, email, role string) (string, error)
}

type metricsRecorder interface {
	RecordNotifySuccess()
	RecordNotifyFailure(reason string)
}

type service struct {
	repo            userStore
	notifier        notifier
	jwtProvider     jwtSigner
	metrics         metricsRecorder
	verificationDur time.Duration
	refreshTokenDur time.Duration
	notifyTimeout   time.Duration
	now             func() time.Time
	dispatch        func(func())
}

type ServiceDeps struct {
	UserRepo        userStore
	Notifier        notifier
	JWTProvider     jwtSigner
	Metrics         metricsRecorder
	VerificationDur time.Duration
	RefreshTokenDur time.Duration
	NotifyTimeout   time.Duration
	Now             func() time.Time // defaults to time.Now
	Dispatch        func(func())     // defaults to go; synchronous in tests
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	dispatch := deps.Dispatch
	if dispatch == nil {
		dispatch = func(fn func()) { go fn() }
	}
	return &service{
		repo:            deps.UserRepo,
		notifier:        deps.Notifier,
		jwtProvider:     deps.JWTProvider,
		metrics:         deps.Metrics,
		verificationDur: deps.VerificationDur,
		refreshTokenDur: deps.RefreshTokenDur,
		notifyTimeout:   deps.NotifyTimeout,
		now:             now,
		dispatch:        dispatch,
	}
}

func (s *service) Issue(ctx context.Context, u *domain.User) error {
	raw, err := pkgtoken.New()
	if err != nil {
		return err
	}
	expiry := s.now().Add(s.verificationDur).Unix()
	if err := s.repo.SetVerificationToken(ctx, u.UserID, pkgtoken.Hash(raw), expiry); err != nil {
		return err
	}
	s.notify(u, raw)
	return nil
}

func (s *service) Consume(ctx context.Context, rawToken string) (*Result, error) {
	u, err := s.repo.GetByVerificationTokenHash(ctx, pkgtoken.Hash(rawToken))
	if err != nil {
		return nil, fmt.Errorf("invalid or expired verification token: %w", domain.ErrBadRequest)
	}
	if !u.IsActive {
		return nil, fmt.Errorf("your account has been deactivated: %w", domain.ErrForbidden)
	}
	refreshRaw, err := pkgtoken.New()
	if err != nil {
		return nil, err
	}
	refreshExpiry := s.now().Add(s.refreshTokenDur)
	// Single conditional write: marks the account verified, consumes
	// the token and installs the refresh pair. A concurrent consume of
	// the same token fails the condition.
	updated, err := s.repo.ConsumeVerificationToken(ctx, u.UserID, pkgtoken.Hash(rawToken), pkgtoken.Hash(refreshRaw), refreshExpiry.Unix())
	if err != nil {
		return nil, err
	}
	access, err := s.jwtProvider.Sign(updated.UserID, updated.Email, updated.Role)
	if err != nil {
		return nil, err
	}
	return &Result{
		User:             updated,
		AccessToken:      access,
		RefreshToken:     refreshRaw,
		RefreshExpiresAt: refreshExpiry,
	}, nil
}

func (s *service) Resend(ctx context.Context, email string) error {
	u, err := s.repo.GetByEmail(ctx, email)
	if err != nil {
		// Same status as the already-verified case so the endpoint
		// doesn't reveal which emails have accounts.
		return fmt.Errorf("verification cannot be resent for this email: %w", domain.ErrBadRequest)
	}
	if u.IsEmailVerified {
		return fmt.Errorf("email is already verified: %w", domain.ErrBadRequest)
	}
	if !u.IsActive {
		return fmt.Errorf("your account has been deactivated: %w", domain.ErrForbidden)
	}
	// Replaces any previous pending token.
	return s.Issue(ctx, u)
}

// notify delivers the verification message off the request path. The
// operation that triggered it has already succeeded, so a delivery
// failure is logged and counted but never surfaced.
func (s *service) notify(u *domain.User, rawToken string) {
	email, fullName := u.Email, u.FullName
	s.dispatch(func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
		defer cancel()
		if err := s.notifier.SendVerification(ctx, email, fullName, rawToken); err != nil {
			slog.Error("verification notification failed", "email", email, "error", err)
			reason := "send_error"
			if ctx.Err() != nil {
				reason = "timeout"
			}
			s.metrics.RecordNotifyFailure(reason)
			return
		}
		s.metrics.RecordNotifySuccess()
	})
}
