package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"tunnelctl/internal/shared/logger"
)

// Logging records one structured line per request, grounded on the
// teacher's middleware/logging.go.
func Logging(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		log.Infow("http request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		)
	}
}
