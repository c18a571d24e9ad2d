package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"authd/internal/config"
	"authd/internal/repository"
	"authd/internal/security"
	"authd/internal/service"
)

// CurrentUserKey is where the guard stashes the resolved user for
// downstream handlers.
const CurrentUserKey = "current_user"

// Auth is the authorization guard for protected routes. It accepts
// only access-type tokens, resolves the subject against the store and
// rejects inactive accounts even when the token itself is valid.
func Auth(cfg *config.AppConfig, users service.UserStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" || !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"detail": "not authenticated"})
			return
		}

		tokenStr := strings.TrimPrefix(authHeader, "Bearer ")

		userID, err := security.ParseToken(tokenStr, cfg.Security.JWTSecret, security.TokenTypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"detail": "could not validate credentials"})
			return
		}

		user, err := users.GetByID(c.Request.Context(), userID)
		if err != nil {
			if errors.Is(err, repository.ErrUserNotFound) {
				c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"detail": "user not found"})
				return
			}
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"detail": "internal server error"})
			return
		}

		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"detail": "inactive user"})
			return
		}

		c.Set(CurrentUserKey, user)

		c.Next()
	}
}
