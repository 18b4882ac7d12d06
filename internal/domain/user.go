package domain

import "time"

// Roles assignable to accounts.
const (
	RoleStudent = "student"
	RoleCompany = "company"
	RoleAdmin   = "admin"
)

// Auth providers recorded on an account.
const (
	ProviderLocal  = "local"
	ProviderGoogle = "google"
)

// User is the account record persisted in the users table.
//
// The refresh and verification token fields hold SHA-256 digests only;
// raw token values are never stored. The refresh pair is either both
// set (an active session) or both absent, and at most one pair exists
// per account — a new login replaces the previous one. Pointer fields
// carry dynamodbav omitempty so absent values stay off the item, which
// keeps the token-hash GSIs sparse.
type User struct {
	UserID                string    `json:"id" dynamodbav:"user_id"`
	FullName              string    `json:"fullName" dynamodbav:"full_name"`
	Email                 string    `json:"email" dynamodbav:"email"`
	PasswordHash          string    `json:"-" dynamodbav:"password_hash"` // empty for provider-only accounts
	Role                  string    `json:"role" dynamodbav:"role"`
	Phone                 string    `json:"phone,omitempty" dynamodbav:"phone"`
	City                  string    `json:"city,omitempty" dynamodbav:"city"`
	University            string    `json:"university,omitempty" dynamodbav:"university"`
	Major                 string    `json:"major,omitempty" dynamodbav:"major"`
	GraduationYear        string    `json:"graduationYear,omitempty" dynamodbav:"graduation_year"`
	ProfileImageURL       string    `json:"profileImage,omitempty" dynamodbav:"profile_image_url"`
	CompanyName           string    `json:"companyName,omitempty" dynamodbav:"company_name"`
	CompanyLocation       string    `json:"companyLocation,omitempty" dynamodbav:"company_location"`
	Industry              string    `json:"industry,omitempty" dynamodbav:"industry"`
	Description           string    `json:"description,omitempty" dynamodbav:"description"`
	AuthProvider          string    `json:"authProvider,omitempty" dynamodbav:"auth_provider"` // "local" | "google"
	GoogleSub             string    `json:"-" dynamodbav:"google_sub,omitempty"`
	IsEmailVerified       bool      `json:"isEmailVerified" dynamodbav:"is_email_verified"`
	IsActive              bool      `json:"isActive" dynamodbav:"is_active"`
	VerificationTokenHash *string   `json:"-" dynamodbav:"verification_token_hash,omitempty"`
	VerificationExpiresAt *int64    `json:"-" dynamodbav:"verification_expires_at,omitempty"` // Unix seconds
	RefreshTokenHash      *string   `json:"-" dynamodbav:"refresh_token_hash,omitempty"`
	RefreshExpiresAt      *int64    `json:"-" dynamodbav:"refresh_expires_at,omitempty"` // Unix seconds
	CreatedAt             time.Time `json:"created" dynamodbav:"created_at"`
	UpdatedAt             time.Time `json:"updated" dynamodbav:"updated_at"`
}

// HasActiveSession reports whether the account currently holds an
// unexpired refresh pair.
func (u *User) HasActiveSession(now time.Time) bool {
	return u.RefreshTokenHash != nil && u.RefreshExpiresAt != nil && *u.RefreshExpiresAt > now.Unix()
}

// AccountSnapshot is the cached per-account state consulted on
// authenticated requests. Absence or corruption of a snapshot is
// always treated as a cache miss.
type AccountSnapshot struct {
	Active bool `json:"active"`
}

type SignupRequest struct {
	FullName        string `json:"fullName" validate:"required,min=2,max=100"`
	Email           string `json:"email" validate:"required,email"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
	Role            string `json:"role" validate:"omitempty,oneof=student company"`
	Phone           string `json:"phone" validate:"omitempty,e164"`
	City            string `json:"city" validate:"omitempty,min=2,max=50"`
	University      string `json:"university" validate:"omitempty,min=2,max=100"`
	Major           string `json:"major" validate:"omitempty,min=2,max=50"`
	CompanyName     string `json:"companyName" validate:"omitempty,min=2,max=50"`
	CompanyLocation string `json:"companyLocation" validate:"omitempty,min=2,max=100"`
	Industry        string `json:"industry" validate:"omitempty,min=2,max=50"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UpdateProfileRequest struct {
	FullName        *string `json:"fullName" validate:"omitempty,min=2,max=100"`
	Phone           *string `json:"phone" validate:"omitempty,e164"`
	City            *string `json:"city" validate:"omitempty,min=2,max=50"`
	University      *string `json:"university" validate:"omitempty,min=2,max=100"`
	Major           *string `json:"major" validate:"omitempty,min=2,max=50"`
	GraduationYear  *string `json:"graduationYear" validate:"omitempty,len=4,numeric"`
	CompanyName     *string `json:"companyName" validate:"omitempty,min=2,max=50"`
	CompanyLocation *string `json:"companyLocation" validate:"omitempty,min=2,max=100"`
	Industry        *string `json:"industry" validate:"omitempty,min=2,max=50"`
	Description     *string `json:"description" validate:"omitempty,max=500"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=8,max=72"`
}

type ResendVerificationRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type GoogleLoginRequest struct {
	IDToken string `json:"idToken" validate:"required"`
}
