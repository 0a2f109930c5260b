package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"tunnelctl/internal/interfaces/http/respond"
	appErrors "tunnelctl/internal/shared/errors"
)

// BearerAuth enforces a static-token bearer scheme:
// Authorization: Bearer {app.auth_token}. Unlike the teacher's JWT
// middleware, there is no session or claims model here — the token is a
// single configured secret compared verbatim.
func BearerAuth(authToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" || parts[1] != authToken {
			respond.Error(c, appErrors.NewUnauthorizedError("missing or invalid bearer token"))
			c.Abort()
			return
		}
		c.Next()
	}
}
