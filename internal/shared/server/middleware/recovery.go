package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"proposal-prepper/internal/shared/metrics"
	"proposal-prepper/internal/shared/server/respond"
	"proposal-prepper/internal/shared/telemetry"
)

// Recovery turns a handler panic into a 500 envelope carrying the request
// id, so a failed analysis call can be traced in the logs. When the handler
// already started a response (an export stream, say) the connection is only
// aborted.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			route := c.FullPath()
			if route == "" {
				route = "unmatched"
			}
			reqID := RequestIDFromContext(c)
			metrics.IncHandlerPanic(route)
			telemetry.Error("http.panic", map[string]any{
				"request_id": reqID,
				"route":      route,
				"method":     c.Request.Method,
				"error":      fmt.Sprint(rec),
				"stack":      string(debug.Stack()),
			})
			if c.Writer.Written() {
				c.Abort()
				return
			}
			respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected server error (request "+reqID+")")
			c.Abort()
		}()
		c.Next()
	}
}
