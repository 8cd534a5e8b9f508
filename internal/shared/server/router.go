package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"proposal-prepper/internal/analyses"
	"proposal-prepper/internal/shared/config"
	"proposal-prepper/internal/shared/metrics"
	"proposal-prepper/internal/shared/server/middleware"
)

const (
	rateGroupPolling = "POLLING"
	rateGroupDefault = "DEFAULT"
)

// RouterDeps holds the handlers NewRouter mounts.
type RouterDeps struct {
	Config          config.Config
	AnalysisHandler *analyses.Handler
	RateLimiter     *middleware.RateLimiter
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	if deps.Config.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging(),
		middleware.Recovery(),
		middleware.CORS(deps.Config.CORSAllowOrigin),
		middleware.RateLimit(middleware.RateLimitConfig{
			DefaultGroup: rateGroupDefault,
			GroupFor:     rateGroupFor,
			Limiter:      deps.RateLimiter,
			Rules: map[string]middleware.RateLimitRule{
				rateGroupDefault: {Rate: 5, Burst: 20},
				rateGroupPolling: {Rate: 20, Burst: 60},
			},
		}),
	)

	r.GET("/metrics", metrics.Handler())

	api := r.Group("/api/v1")
	if deps.AnalysisHandler != nil {
		deps.AnalysisHandler.RegisterRoutes(api)
	}
	return r
}

// rateGroupFor gives status polling its own, larger bucket.
func rateGroupFor(c *gin.Context) string {
	if c.Request.Method != http.MethodGet {
		return rateGroupDefault
	}
	switch c.FullPath() {
	case "/api/v1/analyses/:id", "/api/v1/analyses", "/api/v1/health", "/metrics":
		return rateGroupPolling
	}
	return rateGroupDefault
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
