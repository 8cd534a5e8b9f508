package respond

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Envelope is the {success, data?, error?, code?} body every endpoint returns.
type Envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

// JSON writes a success envelope with the given status.
func JSON(c *gin.Context, status int, payload any) {
	c.JSON(status, Envelope{Success: true, Data: payload})
}

// OK writes a 200 OK success envelope.
func OK(c *gin.Context, payload any) {
	JSON(c, http.StatusOK, payload)
}
