package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"authd/internal/config"
	"authd/internal/models"
	"authd/internal/repository"
	"authd/internal/security"
)

type fakeStore struct {
	mu     sync.Mutex
	nextID int64
	byID   map[int64]models.User
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[int64]models.User)}
}

func (f *fakeStore) Create(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, existing := range f.byID {
		if existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	f.nextID++
	user.ID = f.nextID
	user.CreatedAt = time.Now()
	f.byID[user.ID] = *user
	return nil
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.byID {
		if user.Email == email {
			return user, nil
		}
	}
	return models.User{}, repository.ErrUserNotFound
}

func (f *fakeStore) GetByID(_ context.Context, id int64) (models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.byID[id]
	if !ok {
		return models.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (f *fakeStore) Update(_ context.Context, user *models.User) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.byID[user.ID]; !ok {
		return repository.ErrUserNotFound
	}
	for id, existing := range f.byID {
		if id != user.ID && existing.Email == user.Email {
			return repository.ErrEmailTaken
		}
	}
	f.byID[user.ID] = *user
	return nil
}

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		Security: config.SecurityConfig{
			JWTSecret:       "service-test-secret",
			AccessTokenTTL:  time.Minute,
			RefreshTokenTTL: time.Hour,
		},
	}
}

func newTestService() (*AuthService, *fakeStore) {
	store := newFakeStore()
	return NewAuthService(store, nil, testConfig(), zerolog.Nop()), store
}

func TestRegister_Defaults(t *testing.T) {
	svc, _ := newTestService()

	user, err := svc.Register(context.Background(), RegisterInput{
		Email:    "a@example.com",
		Password: "pw123456",
	})
	require.NoError(t, err)

	assert.NotZero(t, user.ID)
	assert.Equal(t, "a@example.com", user.Email)
	assert.True(t, user.IsActive)
	assert.False(t, user.IsSuperuser)
	assert.NotEmpty(t, user.PasswordHash)
	assert.NotContains(t, string(user.PasswordHash), "pw123456")
	assert.Nil(t, user.UpdatedAt)
}

func TestRegister_ExplicitFlags(t *testing.T) {
	svc, _ := newTestService()

	inactive := false
	super := true
	user, err := svc.Register(context.Background(), RegisterInput{
		Email:       "admin@example.com",
		Password:    "pw123456",
		IsActive:    &inactive,
		IsSuperuser: &super,
	})
	require.NoError(t, err)

	assert.False(t, user.IsActive)
	assert.True(t, user.IsSuperuser)
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw123456"})
	require.NoError(t, err)

	_, err = svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "another-pw"})
	assert.ErrorIs(t, err, repository.ErrEmailTaken)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService()

	registered, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw123456"})
	require.NoError(t, err)

	user, err := svc.Authenticate(context.Background(), "a@example.com", "pw123456")
	require.NoError(t, err)
	assert.Equal(t, registered.ID, user.ID)

	_, err = svc.Authenticate(context.Background(), "a@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Authenticate(context.Background(), "nobody@example.com", "pw123456")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_InactiveUser(t *testing.T) {
	svc, _ := newTestService()

	inactive := false
	_, err := svc.Register(context.Background(), RegisterInput{
		Email:    "sleepy@example.com",
		Password: "pw123456",
		IsActive: &inactive,
	})
	require.NoError(t, err)

	_, err = svc.Login(context.Background(), "sleepy@example.com", "pw123456")
	assert.ErrorIs(t, err, ErrUserInactive)
}

func TestIssueTokenPair_TypeTags(t *testing.T) {
	svc, _ := newTestService()
	cfg := testConfig()

	pair, err := svc.IssueTokenPair(models.User{ID: 9})
	require.NoError(t, err)
	assert.Equal(t, "bearer", pair.TokenType)

	userID, err := security.ParseToken(pair.AccessToken, cfg.Security.JWTSecret, security.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, int64(9), userID)

	_, err = security.ParseToken(pair.RefreshToken, cfg.Security.JWTSecret, security.TokenTypeAccess)
	assert.ErrorIs(t, err, security.ErrWrongTokenType)
}

func TestRefresh(t *testing.T) {
	svc, _ := newTestService()
	cfg := testConfig()

	user, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw123456"})
	require.NoError(t, err)

	pair, err := svc.IssueTokenPair(user)
	require.NoError(t, err)

	renewed, err := svc.Refresh(context.Background(), pair.RefreshToken)
	require.NoError(t, err)

	userID, err := security.ParseToken(renewed.AccessToken, cfg.Security.JWTSecret, security.TokenTypeAccess)
	require.NoError(t, err)
	assert.Equal(t, user.ID, userID)
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc, _ := newTestService()

	user, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw123456"})
	require.NoError(t, err)

	pair, err := svc.IssueTokenPair(user)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), pair.AccessToken)
	assert.ErrorIs(t, err, security.ErrWrongTokenType)
}

func TestRefresh_UnknownSubject(t *testing.T) {
	svc, _ := newTestService()

	token, err := security.IssueToken(testConfig().Security.JWTSecret, 404, security.TokenTypeRefresh, time.Hour)
	require.NoError(t, err)

	_, err = svc.Refresh(context.Background(), token)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}

func TestUpdateProfile_RehashesPassword(t *testing.T) {
	svc, store := newTestService()

	user, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "old-password"})
	require.NoError(t, err)

	newPassword := "new-password"
	updated, err := svc.UpdateProfile(context.Background(), user, ProfileUpdate{Password: &newPassword})
	require.NoError(t, err)
	require.NotNil(t, updated.UpdatedAt)

	stored, err := store.GetByID(context.Background(), user.ID)
	require.NoError(t, err)

	ok, err := security.VerifyPassword("new-password", stored.PasswordHash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = security.VerifyPassword("old-password", stored.PasswordHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUpdateProfile_ChangesEmail(t *testing.T) {
	svc, _ := newTestService()

	user, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw123456"})
	require.NoError(t, err)

	newEmail := "b@example.com"
	updated, err := svc.UpdateProfile(context.Background(), user, ProfileUpdate{Email: &newEmail})
	require.NoError(t, err)
	assert.Equal(t, "b@example.com", updated.Email)

	_, err = svc.Authenticate(context.Background(), "b@example.com", "pw123456")
	assert.NoError(t, err)
}

func TestUpdateProfile_EmailTaken(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.Register(context.Background(), RegisterInput{Email: "a@example.com", Password: "pw123456"})
	require.NoError(t, err)
	user, err := svc.Register(context.Background(), RegisterInput{Email: "b@example.com", Password: "pw123456"})
	require.NoError(t, err)

	taken := "a@example.com"
	_, err = svc.UpdateProfile(context.Background(), user, ProfileUpdate{Email: &taken})
	assert.ErrorIs(t, err, repository.ErrEmailTaken)
}

func TestGetUser_SelfOrSuperuser(t *testing.T) {
	svc, _ := newTestService()

	super := true
	admin, err := svc.Register(context.Background(), RegisterInput{
		Email:       "admin@example.com",
		Password:    "pw123456",
		IsSuperuser: &super,
	})
	require.NoError(t, err)

	alice, err := svc.Register(context.Background(), RegisterInput{Email: "alice@example.com", Password: "pw123456"})
	require.NoError(t, err)

	// Self lookup works for anyone.
	got, err := svc.GetUser(context.Background(), alice, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	// Cross-account lookup needs the superuser flag.
	_, err = svc.GetUser(context.Background(), alice, admin.ID)
	assert.ErrorIs(t, err, ErrNotEnoughPrivileges)

	got, err = svc.GetUser(context.Background(), admin, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, got.ID)

	_, err = svc.GetUser(context.Background(), admin, 9999)
	assert.ErrorIs(t, err, repository.ErrUserNotFound)
}
