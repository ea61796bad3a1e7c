package middleware

import (
	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/apiclient"
	"biliticket/possync/pkg/response"
)

// RequireRole lets through only users whose stored role is in roles.
// Must be used after RequireSession.
func RequireRole(roles []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}

	return func(c *gin.Context) {
		val, exists := c.Get(ContextKeyUser)
		if !exists {
			response.Unauthorized(c, "missing authentication")
			c.Abort()
			return
		}
		user, ok := val.(*apiclient.User)
		if !ok {
			response.Unauthorized(c, "invalid session user")
			c.Abort()
			return
		}

		if _, ok := allowed[user.Role]; !ok {
			response.Forbidden(c, "supervisor role required")
			c.Abort()
			return
		}

		c.Next()
	}
}
