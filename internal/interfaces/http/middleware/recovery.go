package middleware

import (
	"net"
	"net/http/httputil"
	"os"
	"runtime/debug"
	"strings"

	"github.com/gin-gonic/gin"

	"tunnelctl/internal/interfaces/http/respond"
	appErrors "tunnelctl/internal/shared/errors"
	"tunnelctl/internal/shared/logger"
)

// Recovery turns a panic into a logged Internal error response instead of
// tearing down the listener, grounded on the teacher's gin.CustomRecovery
// wrapper.
func Recovery(log logger.Interface) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		if isBrokenConnection(recovered) {
			log.Warnw("connection broken during request", "path", c.Request.URL.Path, "error", recovered)
			c.Abort()
			return
		}

		dump, _ := httputil.DumpRequest(c.Request, false)
		headers := strings.Split(string(dump), "\r\n")
		for i, h := range headers {
			if strings.HasPrefix(h, "Authorization:") {
				headers[i] = "Authorization: *"
			}
		}

		log.Errorw("panic recovered",
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"headers", headers,
			"error", recovered,
			"stack", string(debug.Stack()))

		respond.Error(c, appErrors.NewInternalError("internal server error"))
	})
}

func isBrokenConnection(err interface{}) bool {
	opErr, ok := err.(*net.OpError)
	if !ok {
		return false
	}
	sysErr, ok := opErr.Err.(*os.SyscallError)
	if !ok {
		return false
	}
	lowered := strings.ToLower(sysErr.Error())
	for _, s := range []string{"connection reset by peer", "broken pipe", "connection refused"} {
		if strings.Contains(lowered, s) {
			return true
		}
	}
	return false
}
