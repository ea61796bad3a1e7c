package middleware

import (
	"context"

	"github.com/gin-gonic/gin"

	"biliticket/possync/internal/apiclient"
	jwtpkg "biliticket/possync/pkg/jwt"
	"biliticket/possync/pkg/response"
)

const (
	ContextKeyUser   = "pos_user"
	ContextKeyClaims = "pos_claims"
)

// SessionSource exposes the credentials stored at login.
type SessionSource interface {
	AccessToken(ctx context.Context) (string, error)
	StoredUser(ctx context.Context) (*apiclient.User, error)
}

// RequireSession rejects requests when no cashier is logged in on this
// till. An expired access token still passes; the request coordinator
// refreshes it on the first 401.
func RequireSession(src SessionSource) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, err := src.AccessToken(c.Request.Context())
		if err != nil {
			response.InternalError(c, "read session")
			c.Abort()
			return
		}
		if token == "" {
			response.Unauthorized(c, "login required")
			c.Abort()
			return
		}

		claims, err := jwtpkg.ParseUnverified(token)
		if err != nil {
			response.Unauthorized(c, "stored session is corrupt, login required")
			c.Abort()
			return
		}
		c.Set(ContextKeyClaims, claims)

		if user, err := src.StoredUser(c.Request.Context()); err == nil && user != nil {
			c.Set(ContextKeyUser, user)
		}
		c.Next()
	}
}
