package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/agrilink/chat-api/pkg/auth"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// AuthMiddleware validates JWT tokens and injects user claims into context.
// With a Redis client it also rejects revoked tokens; with nil the
// blacklist check is skipped.
func AuthMiddleware(jwtManager *auth.JWTManager, rdb *redis.Client) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authorization header required"})
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format, use: Bearer <token>"})
			return
		}

		tokenString := parts[1]

		if rdb != nil {
			exists, err := rdb.Exists(context.Background(), "blacklist:"+tokenString).Result()
			if err != nil {
				// Fail closed: an unreachable blacklist must not admit
				// revoked tokens.
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth server error"})
				return
			}
			if exists > 0 {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token has been revoked"})
				return
			}
		}

		claims, err := jwtManager.ValidateToken(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}

		c.Set("user_id", claims.UserID)
		c.Set("user_name", claims.Name)
		c.Set("user_role", claims.Role)

		c.Next()
	}
}
