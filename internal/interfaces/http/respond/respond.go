// Package respond renders the traffic controller's two response shapes:
// JSON on success, plain text on failure.
package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"

	appErrors "tunnelctl/internal/shared/errors"
)

// JSON writes a successful JSON body.
func JSON(c *gin.Context, status int, body any) {
	c.JSON(status, body)
}

// Error writes the error kind's plain-text message at its documented
// HTTP status. Any error that is not an *AppError is treated as Internal
// so callers never see raw internal error text.
func Error(c *gin.Context, err error) {
	appErr := appErrors.GetAppError(err)
	if appErr == nil {
		c.String(http.StatusInternalServerError, appErrors.NewInternalError("internal server error").Message)
		return
	}
	c.String(appErr.Code, appErr.Message)
}
