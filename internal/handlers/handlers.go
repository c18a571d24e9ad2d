package handlers

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"authd/internal/config"
	"authd/internal/middleware"
	"authd/internal/models"
	"authd/internal/repository"
	"authd/internal/service"
)

type HandlerSet struct {
	log   zerolog.Logger
	cfg   *config.AppConfig
	auth  *service.AuthService
	users service.UserStore
	db    *pgxpool.Pool
	cache *redis.Client
}

func NewHandlerSet(log zerolog.Logger, db *pgxpool.Pool, cache *redis.Client, cfg *config.AppConfig) HandlerSet {
	return newHandlerSet(log, cfg, repository.NewUserRepository(db), cache, db)
}

func newHandlerSet(log zerolog.Logger, cfg *config.AppConfig, users service.UserStore, cache *redis.Client, db *pgxpool.Pool) HandlerSet {
	return HandlerSet{
		log:   log,
		cfg:   cfg,
		auth:  service.NewAuthService(users, cache, cfg, log),
		users: users,
		db:    db,
		cache: cache,
	}
}

// Mount attaches every route to the engine. Probes live at the root;
// the API sits under /api/v1 with the auth guard in front of the
// protected groups.
func (h HandlerSet) Mount(engine *gin.Engine) {
	engine.GET("/", h.Root)
	engine.GET("/health", h.Health)

	v1 := engine.Group("/api/v1")

	auth := v1.Group("/auth")
	auth.POST("/register", h.Register)
	auth.POST("/login", h.Login)
	auth.POST("/refresh", h.Refresh)
	auth.POST("/test-token", middleware.Auth(h.cfg, h.users), h.TestToken)

	users := v1.Group("/users")
	users.Use(middleware.Auth(h.cfg, h.users))
	users.GET("/me", h.Me)
	users.PUT("/me", h.UpdateMe)
	users.GET("/:id", h.GetUserByID)
}

type userResponse struct {
	ID          int64      `json:"id"`
	Email       string     `json:"email"`
	IsActive    bool       `json:"is_active"`
	IsSuperuser bool       `json:"is_superuser"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

func toUserResponse(user models.User) userResponse {
	return userResponse{
		ID:          user.ID,
		Email:       user.Email,
		IsActive:    user.IsActive,
		IsSuperuser: user.IsSuperuser,
		CreatedAt:   user.CreatedAt,
		UpdatedAt:   user.UpdatedAt,
	}
}

func currentUser(c *gin.Context) (models.User, bool) {
	val, exists := c.Get(middleware.CurrentUserKey)
	if !exists {
		return models.User{}, false
	}
	user, ok := val.(models.User)
	return user, ok
}
