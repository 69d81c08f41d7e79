package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/portfolio-api/internal/domain/repository"
	"github.com/yourusername/portfolio-api/pkg/auth"
)

// Context keys set by RequireAuth for downstream handlers.
const (
	ContextUserKey   = "user"
	ContextUserIDKey = "user_id"
)

// AuthMiddleware gates protected routes behind a bearer token.
type AuthMiddleware struct {
	jwtService *auth.JWTService
	userRepo   repository.UserRepository
}

// NewAuthMiddleware creates the middleware.
func NewAuthMiddleware(jwtService *auth.JWTService, userRepo repository.UserRepository) *AuthMiddleware {
	return &AuthMiddleware{
		jwtService: jwtService,
		userRepo:   userRepo,
	}
}

// RequireAuth verifies the Authorization header and re-loads the account on
// every call. A token outlives its usefulness the moment the account is
// deleted or deactivated, even though the signature stays valid until expiry.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Not authorized, token missing"})
			c.Abort()
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Authorization header format must be Bearer {token}"})
			c.Abort()
			return
		}

		claims, err := m.jwtService.ParseToken(parts[1])
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "Not authorized, token invalid"})
			c.Abort()
			return
		}

		user, err := m.userRepo.GetByID(claims.UserID)
		if err != nil || !user.IsActive {
			if err != nil {
				log.Printf("[AuthMiddleware] Failed to load user ID=%d: %v", claims.UserID, err)
			}
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "User not found or inactive"})
			c.Abort()
			return
		}

		c.Set(ContextUserKey, user)
		c.Set(ContextUserIDKey, user.ID)
		c.Next()
	}
}
