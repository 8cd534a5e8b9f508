package analyses

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"proposal-prepper/internal/results"
	"proposal-prepper/internal/shared/server/middleware"
	"proposal-prepper/internal/shared/server/respond"
	"proposal-prepper/internal/transport"
)

// Handler wires HTTP handlers to the analyses service.
type Handler struct {
	Svc *Service
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service) *Handler {
	return &Handler{Svc: svc}
}

// RegisterRoutes attaches analysis routes to the router group.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/analyses", h.startAnalysis)
	rg.GET("/analyses", h.listAnalyses)
	rg.GET("/analyses/:id", h.getAnalysis)
	rg.DELETE("/analyses/:id", h.cancelAnalysis)
	rg.POST("/analyses/:id/retry", h.retryAnalysis)
	rg.DELETE("/analyses/:id/session", h.clearSession)
	rg.GET("/analyses/:id/results", h.getResults)
	rg.GET("/analyses/:id/export", h.exportResults)
	rg.GET("/analyses/:id/issues/:issueId", h.getIssue)
	rg.GET("/uploads/:id", h.getUpload)
	rg.GET("/health", h.health)
}

type startRequest struct {
	ProposalID string   `json:"proposalId" form:"proposalId"`
	DocumentID string   `json:"documentId" form:"documentId"`
	Filename   string   `json:"filename" form:"filename"`
	S3Key      string   `json:"s3Key" form:"s3Key"`
	Frameworks []string `json:"frameworks" form:"frameworks"`
}

func requestContext(c *gin.Context) context.Context {
	return WithRequestID(c.Request.Context(), middleware.RequestIDFromContext(c))
}

func (h *Handler) startAnalysis(c *gin.Context) {
	var body startRequest
	if err := c.ShouldBind(&body); err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid request body")
		return
	}
	req := AnalysisRequest{
		ProposalID: body.ProposalID,
		DocumentID: body.DocumentID,
		Filename:   body.Filename,
		S3Key:      body.S3Key,
		Frameworks: body.Frameworks,
	}

	if strings.HasPrefix(c.ContentType(), "multipart/") {
		header, err := c.FormFile("file")
		if err != nil && !errors.Is(err, http.ErrMissingFile) {
			respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid upload")
			return
		}
		if header != nil {
			file, err := header.Open()
			if err != nil {
				respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "invalid upload")
				return
			}
			defer file.Close()
			req.Upload = &UploadInput{Filename: header.Filename, Reader: file, Size: header.Size}
		}
	}

	result := h.Svc.StartAnalysis(requestContext(c), req)
	if !result.Success {
		respond.Error(c, startFailureStatus(result.Code), result.Code, result.Error)
		return
	}
	session, _ := h.Svc.Session(c.Request.Context(), result.SessionID)
	respond.JSON(c, http.StatusAccepted, gin.H{
		"sessionId": result.SessionID,
		"session":   session,
	})
}

func startFailureStatus(code string) int {
	switch code {
	case ErrorCodeValidation:
		return http.StatusBadRequest
	case string(transport.CodeServiceUnavailable):
		return http.StatusServiceUnavailable
	case string(transport.CodeTimeout):
		return http.StatusGatewayTimeout
	case ErrorCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusBadGateway
	}
}

func (h *Handler) listAnalyses(c *gin.Context) {
	sessions := h.Svc.GetActiveSessions(c.Request.Context())
	if sessions == nil {
		sessions = []Session{}
	}
	respond.OK(c, gin.H{"items": sessions})
}

func (h *Handler) getAnalysis(c *gin.Context) {
	session, ok := h.Svc.GetAnalysisStatus(requestContext(c), c.Param("id"))
	if !ok {
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, msgSessionNotFound)
		return
	}
	respond.OK(c, session)
}

func (h *Handler) cancelAnalysis(c *gin.Context) {
	sessionID := c.Param("id")
	current, ok := h.Svc.Session(c.Request.Context(), sessionID)
	if !ok {
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, msgSessionNotFound)
		return
	}
	if current.Status.IsTerminal() {
		respond.Error(c, http.StatusConflict, ErrorCodeConflict, "Analysis already finished")
		return
	}
	acknowledged := h.Svc.CancelAnalysis(requestContext(c), sessionID)
	session, _ := h.Svc.Session(c.Request.Context(), sessionID)
	respond.OK(c, gin.H{
		"acknowledged": acknowledged,
		"session":      session,
	})
}

func (h *Handler) retryAnalysis(c *gin.Context) {
	result := h.Svc.RetryAnalysis(requestContext(c), c.Param("id"))
	if !result.Success {
		switch result.Code {
		case ErrorCodeNotFound:
			respond.Error(c, http.StatusNotFound, result.Code, result.Error)
		case ErrorCodeConflict:
			respond.Error(c, http.StatusConflict, result.Code, result.Error)
		default:
			respond.Error(c, startFailureStatus(result.Code), result.Code, result.Error)
		}
		return
	}
	respond.JSON(c, http.StatusAccepted, result)
}

func (h *Handler) clearSession(c *gin.Context) {
	sessionID := c.Param("id")
	if _, ok := h.Svc.Session(c.Request.Context(), sessionID); !ok {
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, msgSessionNotFound)
		return
	}
	if !h.Svc.ClearSession(c.Request.Context(), sessionID) {
		respond.Error(c, http.StatusConflict, ErrorCodeConflict, "Only completed or failed sessions can be cleared")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) getResults(c *gin.Context) {
	report, err := h.Svc.Results(requestContext(c), c.Param("id"))
	if err != nil {
		respondResultsError(c, err)
		return
	}
	respond.OK(c, gin.H{
		"report":      report,
		"statistics":  results.ComputeStatistics(report),
		"regulations": results.RegulatoryReferences(report),
	})
}

func (h *Handler) exportResults(c *gin.Context) {
	format, err := results.ParseExportFormat(c.Query("format"))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, ErrorCodeValidation, "Unsupported export format")
		return
	}
	sessionID := c.Param("id")
	report, err := h.Svc.Results(requestContext(c), sessionID)
	if err != nil {
		respondResultsError(c, err)
		return
	}
	c.Header("Content-Type", format.ContentType())
	c.Header("Content-Disposition", `attachment; filename="`+sessionID+`-compliance.`+string(format)+`"`)
	c.Status(http.StatusOK)
	if err := results.Export(c.Writer, report, format); err != nil {
		_ = c.Error(err)
	}
}

func (h *Handler) getIssue(c *gin.Context) {
	issue, err := h.Svc.IssueDetails(requestContext(c), c.Param("id"), c.Param("issueId"))
	if err != nil {
		var fetchErr *results.FetchError
		if errors.Is(err, results.ErrIssueNotFound) ||
			(errors.As(err, &fetchErr) && fetchErr.Code == string(transport.CodeHTTP4xx)) {
			respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, "Issue not found")
			return
		}
		respondResultsError(c, err)
		return
	}
	respond.OK(c, issue)
}

func (h *Handler) getUpload(c *gin.Context) {
	res := h.Svc.UploadStatus(requestContext(c), c.Param("id"))
	if !res.Success {
		status := startFailureStatus(string(res.Code))
		if res.Code == transport.CodeHTTP4xx {
			status = http.StatusNotFound
		}
		respond.Error(c, status, string(res.Code), res.Error)
		return
	}
	respond.OK(c, res.Data)
}

func respondResultsError(c *gin.Context, err error) {
	var fetchErr *results.FetchError
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, ErrorCodeNotFound, msgSessionNotFound)
	case errors.Is(err, ErrNotTerminal):
		respond.Error(c, http.StatusConflict, ErrorCodeConflict, "Analysis has not completed")
	case errors.As(err, &fetchErr):
		respond.Error(c, http.StatusBadGateway, fetchErr.Code, fetchErr.Message)
	default:
		respond.Error(c, http.StatusInternalServerError, ErrorCodeInternal, "failed to load results")
	}
}

func (h *Handler) health(c *gin.Context) {
	status := h.Svc.ServiceStatus(c.Request.Context())
	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	respond.JSON(c, code, status)
}
