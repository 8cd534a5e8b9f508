package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

func TestRequestIDReplacesUnsafeInboundIDs(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(RequestID())
	var seen string
	router.GET("/api/v1/analyses", func(c *gin.Context) {
		seen = RequestIDFromContext(c)
		c.Status(http.StatusOK)
	})

	tests := []struct {
		name    string
		inbound string
		keep    bool
	}{
		{name: "missing", inbound: "", keep: false},
		{name: "plain", inbound: "req-42.a_b", keep: true},
		{name: "header injection", inbound: "abc\r\nX-Evil: 1", keep: false},
		{name: "spaces", inbound: "two words", keep: false},
		{name: "too long", inbound: strings.Repeat("a", maxRequestIDLen+1), keep: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses", nil)
			if tt.inbound != "" {
				req.Header[RequestIDHeader] = []string{tt.inbound}
			}
			resp := httptest.NewRecorder()
			router.ServeHTTP(resp, req)

			echoed := resp.Header().Get(RequestIDHeader)
			if echoed != seen {
				t.Fatalf("header %q and context %q differ", echoed, seen)
			}
			if tt.keep {
				if seen != tt.inbound {
					t.Fatalf("expected inbound id kept, got %q", seen)
				}
				return
			}
			if _, err := uuid.Parse(seen); err != nil {
				t.Fatalf("expected generated uuid, got %q", seen)
			}
		})
	}
}

func TestRequestIDFromContextWithoutMiddleware(t *testing.T) {
	if got := RequestIDFromContext(nil); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	if got := RequestIDFromContext(c); got != "" {
		t.Fatalf("expected empty id, got %q", got)
	}
}
