package transport

import (
	"context"
	"net/http"
	"sync"
	"time"
)

const waitForServiceInterval = 2 * time.Second

// HealthStatus is the engine's /api/health payload.
type HealthStatus struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Healthy reports whether the engine accepts work; degraded still counts.
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy" || h.Status == "degraded"
}

// ServiceStatus is a point-in-time summary of engine reachability.
type ServiceStatus struct {
	Healthy     bool              `json:"healthy"`
	BaseURL     string            `json:"baseUrl"`
	Status      string            `json:"status,omitempty"`
	Version     string            `json:"version,omitempty"`
	Checks      map[string]string `json:"checks,omitempty"`
	LastChecked time.Time         `json:"lastChecked"`
	Error       string            `json:"error,omitempty"`
}

type healthCache struct {
	mu        sync.Mutex
	checkedAt time.Time
	healthy   bool
	valid     bool
}

func (h *healthCache) store(healthy bool, at time.Time) {
	h.mu.Lock()
	h.healthy = healthy
	h.checkedAt = at
	h.valid = true
	h.mu.Unlock()
}

func (h *healthCache) load(now time.Time, ttl time.Duration) (bool, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.valid || now.Sub(h.checkedAt) >= ttl {
		return false, false
	}
	return h.healthy, true
}

// HealthCheck calls GET /api/health and refreshes the cached verdict.
func (c *Client) HealthCheck(ctx context.Context) Result[HealthStatus] {
	res := Request[HealthStatus](ctx, c, http.MethodGet, "/api/health", nil)
	c.health.store(res.Success && res.Data.Healthy(), c.now())
	return res
}

// IsServiceHealthy answers from the cache while it is fresh.
func (c *Client) IsServiceHealthy(ctx context.Context) bool {
	if healthy, ok := c.health.load(c.now(), c.opts.HealthCacheTTL); ok {
		return healthy
	}
	res := c.HealthCheck(ctx)
	return res.Success && res.Data.Healthy()
}

// WaitForService polls the engine every two seconds until it is healthy or
// timeout elapses. The cache is bypassed so a stale negative verdict cannot
// hide recovery.
func (c *Client) WaitForService(ctx context.Context, timeout time.Duration) bool {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(waitForServiceInterval)
	defer ticker.Stop()
	for {
		if res := c.HealthCheck(ctx); res.Success && res.Data.Healthy() {
			return true
		}
		select {
		case <-ctx.Done():
			return false
		case <-ticker.C:
		}
	}
}

// ServiceStatus reports a fresh health check with engine metadata.
func (c *Client) ServiceStatus(ctx context.Context) ServiceStatus {
	res := c.HealthCheck(ctx)
	status := ServiceStatus{
		Healthy:     res.Success && res.Data.Healthy(),
		BaseURL:     c.baseURL,
		LastChecked: c.now(),
	}
	if res.Success {
		status.Status = res.Data.Status
		status.Version = res.Data.Version
		status.Checks = res.Data.Checks
	} else {
		status.Error = res.Error
	}
	return status
}
