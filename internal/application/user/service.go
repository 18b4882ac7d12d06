package user

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/gradpath-api/internal/domain"
	"github.com/gradpath-api/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

// DynamoDB attribute names used in partial update maps.
const (
	fieldFullName        = "full_name"
	fieldPhone           = "phone"
	fieldCity            = "city"
	fieldUniversity      = "university"
	fieldMajor           = "major"
	fieldGraduationYear  = "graduation_year"
	fieldProfileImageURL = "profile_image_url"
	fieldCompanyName     = "company_name"
	fieldCompanyLocation = "company_location"
	fieldIndustry        = "industry"
	fieldDescription     = "description"
	fieldPasswordHash    = "password_hash"
)

type Service interface {
	// Signup creates an unverified account and dispatches the
	// verification email. It never returns tokens; the account cannot
	// log in until the email is verified.
	Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error)
	ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error
	Deactivate(ctx context.Context, userID string) error
	SetProfileImage(ctx context.Context, userID, filename string, r io.Reader) (string, error)
	ClearProfileImage(ctx context.Context, userID string) error
}

type userStore interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	Get(ctx context.Context, userID string) (*domain.User, error)
	Put(ctx context.Context, u *domain.User) error
	Update(ctx context.Context, userID string, updates map[string]interface{}) error
	Deactivate(ctx context.Context, userID string) error
}

type verificationIssuer interface {
	Issue(ctx context.Context, u *domain.User) error
}

type snapshotCache interface {
	Invalidate(ctx context.Context, userID string)
}

type imageStore interface {
	UploadProfileImage(ctx context.Context, userID, filename string, r io.Reader) (string, error)
	DeleteProfileImage(ctx context.Context, imageURL string) error
}

type service struct {
	repo       userStore
	verifier   verificationIssuer
	cache      snapshotCache
	images     imageStore
	bcryptCost int
	now        func() time.Time
}

type ServiceDeps struct {
	UserRepo     userStore
	Verification verificationIssuer
	Cache        snapshotCache
	ImageStore   imageStore
	BcryptCost   int
	Now          func() time.Time // defaults to time.Now
}

func NewService(deps ServiceDeps) Service {
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	cost := deps.BcryptCost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	return &service{
		repo:       deps.UserRepo,
		verifier:   deps.Verification,
		cache:      deps.Cache,
		images:     deps.ImageStore,
		bcryptCost: cost,
		now:        now,
	}
}

func (s *service) Signup(ctx context.Context, req domain.SignupRequest) (*domain.User, error) {
	if _, err := s.repo.GetByEmail(ctx, req.Email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}
	role := req.Role
	if role == "" {
		role = domain.RoleStudent
	}
	now := s.now().UTC()
	u := &domain.User{
		UserID:          id.New(),
		FullName:        req.FullName,
		Email:           req.Email,
		PasswordHash:    string(hash),
		Role:            role,
		Phone:           req.Phone,
		City:            req.City,
		University:      req.University,
		Major:           req.Major,
		CompanyName:     req.CompanyName,
		CompanyLocation: req.CompanyLocation,
		Industry:        req.Industry,
		AuthProvider:    domain.ProviderLocal,
		IsEmailVerified: false,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if err := s.repo.Put(ctx, u); err != nil {
		return nil, err
	}
	if err := s.verifier.Issue(ctx, u); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

func (s *service) UpdateProfile(ctx context.Context, userID string, req domain.UpdateProfileRequest) (*domain.User, error) {
	updates := map[string]interface{}{}
	setIf(updates, fieldFullName, req.FullName)
	setIf(updates, fieldPhone, req.Phone)
	setIf(updates, fieldCity, req.City)
	setIf(updates, fieldUniversity, req.University)
	setIf(updates, fieldMajor, req.Major)
	setIf(updates, fieldGraduationYear, req.GraduationYear)
	setIf(updates, fieldCompanyName, req.CompanyName)
	setIf(updates, fieldCompanyLocation, req.CompanyLocation)
	setIf(updates, fieldIndustry, req.Industry)
	setIf(updates, fieldDescription, req.Description)
	if len(updates) == 0 {
		return nil, fmt.Errorf("no fields to update: %w", domain.ErrBadRequest)
	}
	if err := s.repo.Update(ctx, userID, updates); err != nil {
		return nil, err
	}
	s.cache.Invalidate(ctx, userID)
	return s.repo.Get(ctx, userID)
}

func (s *service) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.PasswordHash == "" {
		return fmt.Errorf("account has no password set: %w", domain.ErrBadRequest)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(currentPassword)); err != nil {
		return fmt.Errorf("current password is incorrect: %w", domain.ErrUnauthorized)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	return s.repo.Update(ctx, userID, map[string]interface{}{
		fieldPasswordHash: string(hash),
	})
}

// Deactivate disables the account and revokes its session. The cached
// snapshot is dropped so in-flight access tokens stop working within
// one cache round-trip rather than the full TTL.
func (s *service) Deactivate(ctx context.Context, userID string) error {
	if _, err := s.repo.Get(ctx, userID); err != nil {
		return err
	}
	if err := s.repo.Deactivate(ctx, userID); err != nil {
		return err
	}
	s.cache.Invalidate(ctx, userID)
	return nil
}

func (s *service) SetProfileImage(ctx context.Context, userID, filename string, r io.Reader) (string, error) {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return "", err
	}
	url, err := s.images.UploadProfileImage(ctx, userID, filename, r)
	if err != nil {
		return "", err
	}
	if err := s.repo.Update(ctx, userID, map[string]interface{}{
		fieldProfileImageURL: url,
	}); err != nil {
		return "", err
	}
	// Removal failure of the replaced object only leaks a stale image.
	if u.ProfileImageURL != "" && u.ProfileImageURL != url {
		_ = s.images.DeleteProfileImage(ctx, u.ProfileImageURL)
	}
	return url, nil
}

func (s *service) ClearProfileImage(ctx context.Context, userID string) error {
	u, err := s.repo.Get(ctx, userID)
	if err != nil {
		return err
	}
	if u.ProfileImageURL == "" {
		return nil
	}
	if err := s.images.DeleteProfileImage(ctx, u.ProfileImageURL); err != nil {
		return err
	}
	return s.repo.Update(ctx, userID, map[string]interface{}{
		fieldProfileImageURL: "",
	})
}

func setIf(updates map[string]interface{}, field string, v *string) {
	if v != nil {
		updates[field] = *v
	}
}
