package user

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/gradpath-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

// --- mocks ---

type mockUserStore struct{ mock.Mock }

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	args := m.Called(ctx, email)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Get(ctx context.Context, userID string) (*domain.User, error) {
	args := m.Called(ctx, userID)
	if u, _ := args.Get(0).(*domain.User); u != nil {
		return u, args.Error(1)
	}
	return nil, args.Error(1)
}
func (m *mockUserStore) Put(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}
func (m *mockUserStore) Update(ctx context.Context, userID string, updates map[string]interface{}) error {
	return m.Called(ctx, userID, updates).Error(0)
}
func (m *mockUserStore) Deactivate(ctx context.Context, userID string) error {
	return m.Called(ctx, userID).Error(0)
}

type mockVerifier struct{ mock.Mock }

func (m *mockVerifier) Issue(ctx context.Context, u *domain.User) error {
	return m.Called(ctx, u).Error(0)
}

type mockCache struct{ mock.Mock }

func (m *mockCache) Invalidate(ctx context.Context, userID string) {
	m.Called(ctx, userID)
}

type mockImageStore struct{ mock.Mock }

func (m *mockImageStore) UploadProfileImage(ctx context.Context, userID, filename string, r io.Reader) (string, error) {
	args := m.Called(ctx, userID, filename, r)
	return args.String(0), args.Error(1)
}
func (m *mockImageStore) DeleteProfileImage(ctx context.Context, imageURL string) error {
	return m.Called(ctx, imageURL).Error(0)
}

// --- builder ---

func newService(us *mockUserStore, vf *mockVerifier, c *mockCache, img *mockImageStore) Service {
	return NewService(ServiceDeps{
		UserRepo:     us,
		Verification: vf,
		Cache:        c,
		ImageStore:   img,
		BcryptCost:   bcrypt.MinCost,
		Now:          func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) },
	})
}

func signupReq() domain.SignupRequest {
	return domain.SignupRequest{
		FullName:        "Sara Ahmed",
		Email:           "sara@example.com",
		Password:        "s3cretPass!",
		ConfirmPassword: "s3cretPass!",
		Role:            domain.RoleStudent,
		University:      "Cairo University",
		Major:           "Computer Science",
	}
}

// --- Signup ---

func TestSignup_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	vf := &mockVerifier{}

	us.On("GetByEmail", mock.Anything, "sara@example.com").Return(nil, domain.ErrNotFound)
	us.On("Put", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)
	vf.On("Issue", mock.Anything, mock.AnythingOfType("*domain.User")).Return(nil)

	svc := newService(us, vf, nil, nil)
	u, err := svc.Signup(context.Background(), signupReq())

	require.NoError(t, err)
	assert.NotEmpty(t, u.UserID)
	assert.False(t, u.IsEmailVerified)
	assert.True(t, u.IsActive)
	assert.Equal(t, domain.RoleStudent, u.Role)
	assert.Equal(t, domain.ProviderLocal, u.AuthProvider)
	assert.Nil(t, u.RefreshTokenHash)
	// Stored hash verifies against the submitted password and is not
	// the password itself.
	assert.NotEqual(t, "s3cretPass!", u.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte("s3cretPass!")))
	us.AssertExpectations(t)
	vf.AssertExpectations(t)
}

func TestSignup_DuplicateEmail_Conflict(t *testing.T) {
	us := &mockUserStore{}
	us.On("GetByEmail", mock.Anything, "sara@example.com").Return(&domain.User{UserID: "existing"}, nil)

	svc := newService(us, nil, nil, nil)
	_, err := svc.Signup(context.Background(), signupReq())
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	us.AssertNotCalled(t, "Put", mock.Anything, mock.Anything)
}

func TestSignup_DefaultsRoleToStudent(t *testing.T) {
	us := &mockUserStore{}
	vf := &mockVerifier{}
	us.On("GetByEmail", mock.Anything, mock.Anything).Return(nil, domain.ErrNotFound)
	us.On("Put", mock.Anything, mock.Anything).Return(nil)
	vf.On("Issue", mock.Anything, mock.Anything).Return(nil)

	req := signupReq()
	req.Role = ""
	svc := newService(us, vf, nil, nil)
	u, err := svc.Signup(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, domain.RoleStudent, u.Role)
}

// --- UpdateProfile ---

func strPtr(s string) *string { return &s }

func TestUpdateProfile_PartialUpdate(t *testing.T) {
	us := &mockUserStore{}
	c := &mockCache{}
	updated := &domain.User{UserID: "u1", FullName: "New Name", Major: "Data Science"}

	us.On("Update", mock.Anything, "u1", map[string]interface{}{
		"full_name": "New Name",
		"major":     "Data Science",
	}).Return(nil)
	c.On("Invalidate", mock.Anything, "u1").Return()
	us.On("Get", mock.Anything, "u1").Return(updated, nil)

	svc := newService(us, nil, c, nil)
	u, err := svc.UpdateProfile(context.Background(), "u1", domain.UpdateProfileRequest{
		FullName: strPtr("New Name"),
		Major:    strPtr("Data Science"),
	})

	require.NoError(t, err)
	assert.Equal(t, "New Name", u.FullName)
	us.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestUpdateProfile_NoFields_BadRequest(t *testing.T) {
	svc := newService(&mockUserStore{}, nil, nil, nil)
	_, err := svc.UpdateProfile(context.Background(), "u1", domain.UpdateProfileRequest{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

// --- ChangePassword ---

func userWithPassword(pw string) *domain.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	return &domain.User{UserID: "u1", PasswordHash: string(hash), IsActive: true}
}

func TestChangePassword_HappyPath(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(userWithPassword("oldpass123"), nil)
	us.On("Update", mock.Anything, "u1", mock.MatchedBy(func(m map[string]interface{}) bool {
		hash, ok := m["password_hash"].(string)
		return ok && bcrypt.CompareHashAndPassword([]byte(hash), []byte("newpass456")) == nil
	})).Return(nil)

	svc := newService(us, nil, nil, nil)
	require.NoError(t, svc.ChangePassword(context.Background(), "u1", "oldpass123", "newpass456"))
	us.AssertExpectations(t)
}

func TestChangePassword_WrongCurrent_Unauthorized(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(userWithPassword("oldpass123"), nil)

	svc := newService(us, nil, nil, nil)
	err := svc.ChangePassword(context.Background(), "u1", "not-the-password", "newpass456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrUnauthorized))
	us.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
}

func TestChangePassword_ProviderOnlyAccount_BadRequest(t *testing.T) {
	us := &mockUserStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1"}, nil)

	svc := newService(us, nil, nil, nil)
	err := svc.ChangePassword(context.Background(), "u1", "anything", "newpass456")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrBadRequest))
}

// --- Deactivate ---

func TestDeactivate_DropsCachedSnapshot(t *testing.T) {
	us := &mockUserStore{}
	c := &mockCache{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", IsActive: true}, nil)
	us.On("Deactivate", mock.Anything, "u1").Return(nil)
	c.On("Invalidate", mock.Anything, "u1").Return()

	svc := newService(us, nil, c, nil)
	require.NoError(t, svc.Deactivate(context.Background(), "u1"))
	us.AssertExpectations(t)
	c.AssertExpectations(t)
}

func TestDeactivate_UnknownUser_NotFound(t *testing.T) {
	us := &mockUserStore{}
	c := &mockCache{}
	us.On("Get", mock.Anything, "ghost").Return(nil, domain.ErrNotFound)

	svc := newService(us, nil, c, nil)
	err := svc.Deactivate(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	c.AssertNotCalled(t, "Invalidate", mock.Anything, mock.Anything)
}

// --- Profile image ---

func TestSetProfileImage_ReplacesOldObject(t *testing.T) {
	us := &mockUserStore{}
	img := &mockImageStore{}
	body := strings.NewReader("png-bytes")

	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", ProfileImageURL: "s3://bucket/profile-images/u1-old.png"}, nil)
	img.On("UploadProfileImage", mock.Anything, "u1", "new.png", body).Return("s3://bucket/profile-images/u1.png", nil)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{
		"profile_image_url": "s3://bucket/profile-images/u1.png",
	}).Return(nil)
	img.On("DeleteProfileImage", mock.Anything, "s3://bucket/profile-images/u1-old.png").Return(nil)

	svc := newService(us, nil, nil, img)
	url, err := svc.SetProfileImage(context.Background(), "u1", "new.png", body)

	require.NoError(t, err)
	assert.Equal(t, "s3://bucket/profile-images/u1.png", url)
	img.AssertExpectations(t)
}

func TestClearProfileImage_NoImage_NoOp(t *testing.T) {
	us := &mockUserStore{}
	img := &mockImageStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1"}, nil)

	svc := newService(us, nil, nil, img)
	require.NoError(t, svc.ClearProfileImage(context.Background(), "u1"))
	img.AssertNotCalled(t, "DeleteProfileImage", mock.Anything, mock.Anything)
}

func TestClearProfileImage_DeletesAndClearsField(t *testing.T) {
	us := &mockUserStore{}
	img := &mockImageStore{}
	us.On("Get", mock.Anything, "u1").Return(&domain.User{UserID: "u1", ProfileImageURL: "s3://bucket/profile-images/u1.png"}, nil)
	img.On("DeleteProfileImage", mock.Anything, "s3://bucket/profile-images/u1.png").Return(nil)
	us.On("Update", mock.Anything, "u1", map[string]interface{}{
		"profile_image_url": "",
	}).Return(nil)

	svc := newService(us, nil, nil, img)
	require.NoError(t, svc.ClearProfileImage(context.Background(), "u1"))
	us.AssertExpectations(t)
	img.AssertExpectations(t)
}
