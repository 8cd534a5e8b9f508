package respond

import (
	"github.com/gin-gonic/gin"

	"proposal-prepper/internal/shared/telemetry"
)

// Error logs and sends a failure envelope.
func Error(c *gin.Context, status int, code, message string) {
	telemetry.Error("http.error", map[string]any{
		"status":     status,
		"code":       code,
		"message":    message,
		"path":       c.Request.URL.Path,
		"method":     c.Request.Method,
		"request_id": c.GetString("requestId"),
	})

	c.AbortWithStatusJSON(status, Envelope{
		Success: false,
		Error:   message,
		Code:    code,
	})
}
