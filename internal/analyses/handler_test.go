package analyses

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"proposal-prepper/internal/mockengine"
	"proposal-prepper/internal/shared/server/middleware"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

func setupHandler(t *testing.T) (*harness, *gin.Engine) {
	t.Helper()
	h := newHarness(t, harnessOptions{service: Options{PollInterval: time.Hour, Timeout: 2 * time.Hour}})
	router := gin.New()
	router.Use(middleware.RequestID())
	NewHandler(h.svc).RegisterRoutes(router.Group("/api/v1"))
	return h, router
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func startViaHTTP(t *testing.T, router *gin.Engine) string {
	t.Helper()
	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/analyses", map[string]any{"proposalId": "prop-1"})
	if rec.Code != http.StatusAccepted || !env.Success {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	var data struct {
		SessionID string  `json:"sessionId"`
		Session   Session `json:"session"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data: %v", err)
	}
	if data.SessionID == "" || data.Session.ID != data.SessionID {
		t.Fatalf("unexpected start payload %s", env.Data)
	}
	return data.SessionID
}

func TestStartAnalysisHandlerValidation(t *testing.T) {
	_, router := setupHandler(t)
	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/analyses", map[string]any{
		"proposalId": "prop-1",
		"frameworks": []string{"GSAR"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if env.Success || env.Code != ErrorCodeValidation || env.Error != "Invalid frameworks: GSAR" {
		t.Fatalf("unexpected envelope %#v", env)
	}
}

func TestStartAnalysisHandlerUnavailable(t *testing.T) {
	h, router := setupHandler(t)
	h.engine.SetHealth("unhealthy")
	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/analyses", map[string]any{"proposalId": "prop-1"})
	if rec.Code != http.StatusServiceUnavailable || env.Code != "SERVICE_UNAVAILABLE" {
		t.Fatalf("expected 503 SERVICE_UNAVAILABLE, got %d %#v", rec.Code, env)
	}
}

func TestStartAnalysisHandlerMultipartUpload(t *testing.T) {
	h, router := setupHandler(t)
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	_ = mw.WriteField("proposalId", "prop-9")
	part, _ := mw.CreateFormFile("file", "rfp.pdf")
	_, _ = part.Write(bytes.Repeat([]byte("x"), 2048))
	_ = mw.Close()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/analyses", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d %s", rec.Code, rec.Body.String())
	}
	sessions := h.svc.GetActiveSessions(req.Context())
	if len(sessions) != 1 || sessions[0].Filename != "rfp.pdf" || sessions[0].ProposalID != "prop-9" {
		t.Fatalf("unexpected sessions %#v", sessions)
	}
}

func TestGetAnalysisHandler(t *testing.T) {
	h, router := setupHandler(t)
	id := startViaHTTP(t, router)
	if _, err := h.engine.Advance(id); err != nil {
		t.Fatalf("advance: %v", err)
	}

	rec, env := doJSON(t, router, http.MethodGet, "/api/v1/analyses/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var session Session
	_ = json.Unmarshal(env.Data, &session)
	if session.Status != StatusExtracting {
		t.Fatalf("expected refreshed status, got %s", session.Status)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/api/v1/analyses/missing", nil)
	if rec.Code != http.StatusNotFound || env.Code != ErrorCodeNotFound {
		t.Fatalf("expected 404, got %d %#v", rec.Code, env)
	}

	rec, env = doJSON(t, router, http.MethodGet, "/api/v1/analyses", nil)
	var list struct {
		Items []Session `json:"items"`
	}
	_ = json.Unmarshal(env.Data, &list)
	if rec.Code != http.StatusOK || len(list.Items) != 1 {
		t.Fatalf("expected one listed session, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestCancelRetryClearHandlers(t *testing.T) {
	_, router := setupHandler(t)
	id := startViaHTTP(t, router)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/analyses/"+id+"/retry", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 retrying a running session, got %d", rec.Code)
	}
	rec, _ = doJSON(t, router, http.MethodDelete, "/api/v1/analyses/"+id+"/session", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 clearing a running session, got %d", rec.Code)
	}

	rec, env := doJSON(t, router, http.MethodDelete, "/api/v1/analyses/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 on cancel, got %d", rec.Code)
	}
	var cancelled struct {
		Acknowledged bool    `json:"acknowledged"`
		Session      Session `json:"session"`
	}
	_ = json.Unmarshal(env.Data, &cancelled)
	if !cancelled.Acknowledged || cancelled.Session.Status != StatusFailed {
		t.Fatalf("unexpected cancel payload %s", env.Data)
	}
	rec, _ = doJSON(t, router, http.MethodDelete, "/api/v1/analyses/"+id, nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 cancelling twice, got %d", rec.Code)
	}

	rec, env = doJSON(t, router, http.MethodPost, "/api/v1/analyses/"+id+"/retry", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202 on retry, got %d %s", rec.Code, rec.Body.String())
	}
	var retried RetryResult
	_ = json.Unmarshal(env.Data, &retried)
	if !retried.Success || retried.NewSessionID == "" {
		t.Fatalf("unexpected retry payload %s", env.Data)
	}

	rec, _ = doJSON(t, router, http.MethodDelete, "/api/v1/analyses/"+retried.NewSessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected cancel of retried session, got %d", rec.Code)
	}
	rec, _ = doJSON(t, router, http.MethodDelete, "/api/v1/analyses/"+retried.NewSessionID+"/session", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 clearing a failed session, got %d", rec.Code)
	}
	rec, _ = doJSON(t, router, http.MethodDelete, "/api/v1/analyses/"+retried.NewSessionID+"/session", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after clear, got %d", rec.Code)
	}
}

func TestResultsHandler(t *testing.T) {
	h, router := setupHandler(t)
	id := startViaHTTP(t, router)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/v1/analyses/"+id+"/results", nil)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 before completion, got %d", rec.Code)
	}

	if _, err := h.engine.Complete(id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/analyses/"+id, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status refresh failed: %d", rec.Code)
	}

	rec, env := doJSON(t, router, http.MethodGet, "/api/v1/analyses/"+id+"/results", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Report struct {
			Issues  []json.RawMessage `json:"issues"`
			Summary struct {
				TotalIssues int `json:"totalIssues"`
			} `json:"summary"`
		} `json:"report"`
		Statistics struct {
			Total int `json:"total"`
		} `json:"statistics"`
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Report.Summary.TotalIssues != len(payload.Report.Issues) || payload.Statistics.Total != len(payload.Report.Issues) {
		t.Fatalf("inconsistent results payload %s", env.Data)
	}

	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/analyses/missing/results", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestHealthHandler(t *testing.T) {
	h, router := setupHandler(t)
	rec, env := doJSON(t, router, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected healthy 200, got %d", rec.Code)
	}
	h.engine.SetHealth("unhealthy")
	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestExportAndIssueHandlers(t *testing.T) {
	h, router := setupHandler(t)
	id := startViaHTTP(t, router)
	if _, err := h.engine.Complete(id); err != nil {
		t.Fatalf("complete: %v", err)
	}
	doJSON(t, router, http.MethodGet, "/api/v1/analyses/"+id, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id+"/export?format=csv", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 csv export, got %d %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/csv; charset=utf-8" {
		t.Fatalf("unexpected content type %q", ct)
	}
	lines := bytes.Count(rec.Body.Bytes(), []byte("\n"))
	if lines != 1+len(mockengine.DefaultIssues()) {
		t.Fatalf("expected header plus one row per issue, got %d lines", lines)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/analyses/"+id+"/export?format=pdf", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for pdf export, got %d", rec.Code)
	}

	rec, env := doJSON(t, router, http.MethodGet, "/api/v1/analyses/"+id+"/issues/issue-dfars-7012", nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected issue, got %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/analyses/"+id+"/issues/unknown", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown issue, got %d", rec.Code)
	}
}

func TestUploadStatusHandler(t *testing.T) {
	h, router := setupHandler(t)

	content := []byte("%PDF-1.7 mock")
	res := h.client.UploadWithProgress(testContext(t), "proposal.pdf", bytes.NewReader(content), int64(len(content)), nil)
	if !res.Success {
		t.Fatalf("upload: %#v", res)
	}

	rec, env := doJSON(t, router, http.MethodGet, "/api/v1/uploads/"+res.Data.ID, nil)
	if rec.Code != http.StatusOK || !env.Success {
		t.Fatalf("expected upload record, got %d %s", rec.Code, rec.Body.String())
	}
	rec, _ = doJSON(t, router, http.MethodGet, "/api/v1/uploads/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRetryHandlerMapsStartFailure(t *testing.T) {
	h, router := setupHandler(t)
	id := startViaHTTP(t, router)
	doJSON(t, router, http.MethodDelete, "/api/v1/analyses/"+id, nil)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/v1/analyses/missing/retry", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown session, got %d", rec.Code)
	}

	h.engine.SetHealth("unhealthy")
	time.Sleep(5 * time.Millisecond)
	rec, env := doJSON(t, router, http.MethodPost, "/api/v1/analyses/"+id+"/retry", nil)
	if rec.Code != http.StatusServiceUnavailable || env.Code != "SERVICE_UNAVAILABLE" {
		t.Fatalf("expected 503 SERVICE_UNAVAILABLE, got %d %s", rec.Code, rec.Body.String())
	}
}
