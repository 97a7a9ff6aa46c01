package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/gateway/internal/security"
	"docchat/gateway/pkg/api"
)

const sessionTokenKey = "session_token"

// RequireSession rejects requests without the session cookie before any
// backend call is made, and exposes the token to the handler.
func RequireSession(policy security.CookiePolicy) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := policy.Token(c.Request)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, api.ErrorResponse{
				Detail: api.DetailAuthRequired,
			})
			return
		}

		c.Set(sessionTokenKey, token)
		c.Next()
	}
}

// SessionToken returns the token stored by RequireSession.
func SessionToken(c *gin.Context) string {
	return c.GetString(sessionTokenKey)
}
