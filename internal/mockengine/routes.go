package mockengine

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"proposal-prepper/internal/shared/server/middleware"
	"proposal-prepper/internal/shared/server/respond"
	"proposal-prepper/internal/transport"
)

// Handler returns the engine's HTTP surface.
func (e *Engine) Handler() http.Handler {
	r := gin.New()
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	e.RegisterRoutes(r)
	return r
}

// RegisterRoutes attaches the engine endpoints to r.
func (e *Engine) RegisterRoutes(r gin.IRouter) {
	r.GET("/api/health", e.getHealth)
	r.POST("/api/documents/upload", e.upload)
	r.GET("/api/documents/upload/:id", e.getUpload)
	r.GET("/api/results/issues/:id", e.getIssue)
	r.POST("/api/analysis/start", e.startAnalysis)
	r.GET("/api/analysis/:id", e.getStatus)
	r.GET("/api/analysis/:id/results", e.getResults)
	r.DELETE("/api/analysis/:id", e.cancelAnalysis)
	r.GET("/ws", e.hub.serve)
}

// injectFault answers with a queued failure status. It reports whether the
// request was handled.
func (e *Engine) injectFault(c *gin.Context, ep Endpoint) bool {
	status := e.hit(ep)
	if status == 0 {
		return false
	}
	respond.Error(c, status, "INJECTED_FAULT", http.StatusText(status))
	return true
}

func (e *Engine) getHealth(c *gin.Context) {
	if e.injectFault(c, EndpointHealth) {
		return
	}
	e.mu.Lock()
	status := e.health
	e.mu.Unlock()
	respond.OK(c, transport.HealthStatus{
		Status:  status,
		Version: e.opts.Version,
		Checks:  map[string]string{"rules": "ok", "storage": "ok"},
	})
}

func (e *Engine) upload(c *gin.Context) {
	if e.injectFault(c, EndpointUpload) {
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "VALIDATION_FAILED", "file is required")
		return
	}
	file, err := header.Open()
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "VALIDATION_FAILED", "file is unreadable")
		return
	}
	defer file.Close()
	size, err := io.Copy(io.Discard, file)
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "VALIDATION_FAILED", "file is unreadable")
		return
	}

	now := e.now().Format(time.RFC3339Nano)
	id := uuid.NewString()
	record := transport.UploadRecord{
		ID:          id,
		Filename:    header.Filename,
		FileSize:    size,
		MimeType:    header.Header.Get("Content-Type"),
		Status:      "completed",
		Progress:    100,
		StartedAt:   now,
		CompletedAt: now,
		S3Key:       "uploads/" + id + "/" + header.Filename,
	}
	e.mu.Lock()
	e.uploads[id] = record
	e.mu.Unlock()
	respond.OK(c, record)
}

func (e *Engine) getUpload(c *gin.Context) {
	if e.injectFault(c, EndpointUpload) {
		return
	}
	record, ok := e.Upload(c.Param("id"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "NOT_FOUND", "upload not found")
		return
	}
	respond.OK(c, record)
}

func (e *Engine) getIssue(c *gin.Context) {
	if e.injectFault(c, EndpointIssue) {
		return
	}
	issue, ok := e.Issue(c.Param("id"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "NOT_FOUND", "issue not found")
		return
	}
	respond.OK(c, issue)
}

func (e *Engine) startAnalysis(c *gin.Context) {
	if e.injectFault(c, EndpointStart) {
		return
	}
	var in startInput
	if err := c.ShouldBindJSON(&in); err != nil {
		respond.Error(c, http.StatusBadRequest, "VALIDATION_FAILED", "invalid request body")
		return
	}
	if strings.TrimSpace(in.ProposalID) == "" {
		respond.Error(c, http.StatusBadRequest, "VALIDATION_FAILED", "proposal_id is required")
		return
	}
	respond.JSON(c, http.StatusCreated, e.start(in))
}

func (e *Engine) getStatus(c *gin.Context) {
	if e.injectFault(c, EndpointStatus) {
		return
	}
	view, ok := e.Session(c.Param("id"))
	if !ok {
		respond.Error(c, http.StatusNotFound, "NOT_FOUND", "session not found")
		return
	}
	respond.OK(c, view)
}

func (e *Engine) getResults(c *gin.Context) {
	if e.injectFault(c, EndpointResults) {
		return
	}
	report, err := e.report(c.Param("id"))
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "NOT_FOUND", "session not found")
	case errors.Is(err, ErrNotReady):
		respond.Error(c, http.StatusConflict, "NOT_READY", err.Error())
	case err != nil:
		respond.Error(c, http.StatusInternalServerError, "INTERNAL_ERROR", err.Error())
	default:
		respond.OK(c, report)
	}
}

func (e *Engine) cancelAnalysis(c *gin.Context) {
	if e.injectFault(c, EndpointCancel) {
		return
	}
	view, err := e.Fail(c.Param("id"), "Analysis cancelled by user", "CANCELLED")
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "NOT_FOUND", "session not found")
	case errors.Is(err, ErrTerminal):
		respond.Error(c, http.StatusConflict, "CONFLICT", err.Error())
	default:
		respond.OK(c, view)
	}
}

func jsonRaw(v any) (json.RawMessage, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(b), nil
}
