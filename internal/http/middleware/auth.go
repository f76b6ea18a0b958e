package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/hendo420/P2PLendingPlatform/internal/auth"
)

const (
	ContextUserID   = "user_id"
	ContextUserRole = "user_role"
)

func RequireAuth(jwt *auth.JWTManager, enableBearer bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := auth.TokenFromRequest(c.Request, enableBearer)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		claims, err := jwt.Parse(token)
		if err != nil || claims.Type != auth.TokenTypeAccess {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Set(ContextUserID, claims.UserID)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}
