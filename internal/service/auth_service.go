package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"authd/internal/config"
	"authd/internal/models"
	"authd/internal/repository"
	"authd/internal/security"
)

var (
	// ErrInvalidCredentials covers both unknown email and wrong
	// password, so callers cannot enumerate accounts.
	ErrInvalidCredentials  = errors.New("incorrect email or password")
	ErrUserInactive        = errors.New("inactive user")
	ErrNotEnoughPrivileges = errors.New("the user doesn't have enough privileges")
)

// UserStore is the credential store the service runs against. The
// pgx-backed repository implements it; tests substitute a fake.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (models.User, error)
	GetByID(ctx context.Context, id int64) (models.User, error)
	Update(ctx context.Context, user *models.User) error
}

const userViewTTL = 30 * time.Second

type AuthService struct {
	users UserStore
	cache *redis.Client
	cfg   *config.AppConfig
	log   zerolog.Logger
}

func NewAuthService(users UserStore, cache *redis.Client, cfg *config.AppConfig, log zerolog.Logger) *AuthService {
	return &AuthService{
		users: users,
		cache: cache,
		cfg:   cfg,
		log:   log,
	}
}

type RegisterInput struct {
	Email       string
	Password    string
	IsActive    *bool
	IsSuperuser *bool
}

// TokenPair is what a successful login or refresh hands back.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
}

// Register creates a new user. Flags default to active and
// unprivileged unless the caller says otherwise. The email pre-check
// mirrors the unique index; the index remains the authority under
// concurrent registration.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (models.User, error) {
	if input.Email == "" || input.Password == "" {
		return models.User{}, fmt.Errorf("email and password required")
	}

	if _, err := s.users.FindByEmail(ctx, input.Email); err == nil {
		return models.User{}, repository.ErrEmailTaken
	} else if !errors.Is(err, repository.ErrUserNotFound) {
		return models.User{}, err
	}

	passwordHash, err := security.HashPassword(input.Password)
	if err != nil {
		return models.User{}, err
	}

	user := models.User{
		Email:        input.Email,
		PasswordHash: passwordHash,
		IsActive:     true,
		IsSuperuser:  false,
	}
	if input.IsActive != nil {
		user.IsActive = *input.IsActive
	}
	if input.IsSuperuser != nil {
		user.IsSuperuser = *input.IsSuperuser
	}

	if err := s.users.Create(ctx, &user); err != nil {
		return models.User{}, err
	}

	s.log.Info().Int64("user_id", user.ID).Msg("user registered")
	return user, nil
}

// Authenticate resolves email+password to a user record. The email is
// matched exactly as stored.
func (s *AuthService) Authenticate(ctx context.Context, email, password string) (models.User, error) {
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return models.User{}, ErrInvalidCredentials
		}
		return models.User{}, err
	}

	ok, err := security.VerifyPassword(password, user.PasswordHash)
	if err != nil || !ok {
		return models.User{}, ErrInvalidCredentials
	}

	return user, nil
}

// Login authenticates and mints a token pair. Inactive accounts get a
// distinct failure so the handler can report it separately from bad
// credentials, matching the login contract.
func (s *AuthService) Login(ctx context.Context, email, password string) (TokenPair, error) {
	user, err := s.Authenticate(ctx, email, password)
	if err != nil {
		return TokenPair{}, err
	}
	if !user.IsActive {
		return TokenPair{}, ErrUserInactive
	}
	return s.IssueTokenPair(user)
}

// IssueTokenPair mints a short-lived access token and a long-lived
// refresh token for the user. Tokens are self-contained; nothing is
// persisted, and nothing can revoke them before expiry.
func (s *AuthService) IssueTokenPair(user models.User) (TokenPair, error) {
	access, err := security.IssueToken(s.cfg.Security.JWTSecret, user.ID, security.TokenTypeAccess, s.cfg.Security.AccessTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := security.IssueToken(s.cfg.Security.JWTSecret, user.ID, security.TokenTypeRefresh, s.cfg.Security.RefreshTokenTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
	}, nil
}

// Refresh validates a refresh token and mints a fresh pair for its
// subject. An access token presented here fails the type check.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (TokenPair, error) {
	userID, err := security.ParseToken(refreshToken, s.cfg.Security.JWTSecret, security.TokenTypeRefresh)
	if err != nil {
		return TokenPair{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return TokenPair{}, err
	}

	return s.IssueTokenPair(user)
}

type ProfileUpdate struct {
	Email    *string
	Password *string
}

// UpdateProfile changes the user's email and/or password. A new
// password is re-hashed before storage and updated_at is bumped.
func (s *AuthService) UpdateProfile(ctx context.Context, user models.User, update ProfileUpdate) (models.User, error) {
	if update.Email != nil {
		user.Email = *update.Email
	}
	if update.Password != nil {
		hash, err := security.HashPassword(*update.Password)
		if err != nil {
			return models.User{}, err
		}
		user.PasswordHash = hash
	}

	now := time.Now()
	user.UpdatedAt = &now

	if err := s.users.Update(ctx, &user); err != nil {
		return models.User{}, err
	}

	s.invalidateUserView(ctx, user.ID)
	return user, nil
}

// GetUser loads a user by id on behalf of requester. The requester
// must be fetching themselves or hold the superuser flag.
func (s *AuthService) GetUser(ctx context.Context, requester models.User, id int64) (models.User, error) {
	if id == requester.ID {
		return requester, nil
	}
	if !requester.IsSuperuser {
		return models.User{}, ErrNotEnoughPrivileges
	}

	if user, ok := s.cachedUserView(ctx, id); ok {
		return user, nil
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		return models.User{}, err
	}

	s.storeUserView(ctx, user)
	return user, nil
}

// userView is the cacheable public slice of a user record. The
// password hash is never written to the cache.
type userView struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`
}

func userViewKey(id int64) string {
	return fmt.Sprintf("user:view:%d", id)
}

func (s *AuthService) cachedUserView(ctx context.Context, id int64) (models.User, bool) {
	if s.cache == nil {
		return models.User{}, false
	}

	raw, err := s.cache.Get(ctx, userViewKey(id)).Bytes()
	if err != nil {
		return models.User{}, false
	}

	var view userView
	if err := json.Unmarshal(raw, &view); err != nil {
		return models.User{}, false
	}

	return models.User{
		ID:          view.ID,
		Email:       view.Email,
		IsActive:    view.IsActive,
		IsSuperuser: view.IsSuperuser,
		CreatedAt:   view.CreatedAt,
		UpdatedAt:   view.UpdatedAt,
	}, true
}

func (s *AuthService) storeUserView(ctx context.Context, user models.User) {
	if s.cache == nil {
		return
	}

	raw, err := json.Marshal(userView{
		ID:          user.ID,
		Email:       user.Email,
		IsActive:    user.IsActive,
		IsSuperuser: user.IsSuperuser,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	})
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, userViewKey(user.ID), raw, userViewTTL).Err(); err != nil {
		s.log.Warn().Err(err).Int64("user_id", user.ID).Msg("cache user view failed")
	}
}

func (s *AuthService) invalidateUserView(ctx context.Context, id int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, userViewKey(id)).Err(); err != nil {
		s.log.Warn().Err(err).Int64("user_id", id).Msg("invalidate user view failed")
	}
}
