package mockengine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"proposal-prepper/internal/results"
	"proposal-prepper/internal/shared/telemetry"
	"proposal-prepper/internal/transport"
)

const defaultVersion = "mock-1.0.0"

// Endpoint names an engine route for fault injection.
type Endpoint string

const (
	EndpointHealth  Endpoint = "health"
	EndpointUpload  Endpoint = "upload"
	EndpointStart   Endpoint = "start"
	EndpointStatus  Endpoint = "status"
	EndpointResults Endpoint = "results"
	EndpointCancel  Endpoint = "cancel"
	EndpointIssue   Endpoint = "issue"
)

var (
	ErrNotFound = errors.New("session not found")
	ErrTerminal = errors.New("session already finished")
	ErrNotReady = errors.New("analysis has not completed")
)

// Options configures the mock engine.
type Options struct {
	// StepInterval advances every session on a timer. Zero means sessions
	// only move through Advance.
	StepInterval time.Duration
	Issues       []results.Issue
	Version      string
	Now          func() time.Time
}

// SessionView is the engine's session payload.
type SessionView struct {
	ID           string   `json:"id"`
	ProposalID   string   `json:"proposalId"`
	DocumentID   string   `json:"documentId,omitempty"`
	Filename     string   `json:"filename,omitempty"`
	S3Key        string   `json:"s3Key,omitempty"`
	Frameworks   []string `json:"frameworks,omitempty"`
	Status       string   `json:"status"`
	Progress     float64  `json:"progress"`
	CurrentStep  string   `json:"currentStep"`
	StartedAt    string   `json:"startedAt"`
	CompletedAt  string   `json:"completedAt,omitempty"`
	ErrorMessage string   `json:"errorMessage,omitempty"`
}

type job struct {
	view SessionView
	step int
}

func (j *job) terminal() bool {
	return j.view.Status == "completed" || j.view.Status == "failed"
}

// Engine is an in-process stand-in for the analysis engine.
type Engine struct {
	opts Options
	now  func() time.Time
	hub  *hub

	mu      sync.Mutex
	jobs    map[string]*job
	uploads map[string]transport.UploadRecord
	health  string
	faults  map[Endpoint][]int
	calls   map[Endpoint]int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	server *http.Server
}

// New builds an engine with no sessions.
func New(opts Options) *Engine {
	if opts.Issues == nil {
		opts.Issues = DefaultIssues()
	}
	if opts.Version == "" {
		opts.Version = defaultVersion
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		opts:    opts,
		now:     func() time.Time { return now().UTC() },
		hub:     newHub(),
		jobs:    make(map[string]*job),
		uploads: make(map[string]transport.UploadRecord),
		health:  "healthy",
		faults:  make(map[Endpoint][]int),
		calls:   make(map[Endpoint]int),
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start serves the engine on addr and returns its base URL.
func (e *Engine) Start(addr string) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", err
	}
	srv := &http.Server{Handler: e.Handler(), ReadHeaderTimeout: 5 * time.Second}
	e.mu.Lock()
	if e.ctx.Err() != nil {
		e.mu.Unlock()
		_ = ln.Close()
		return "", errors.New("engine closed")
	}
	e.server = srv
	e.wg.Add(1)
	e.mu.Unlock()
	go func() {
		defer e.wg.Done()
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			telemetry.Error("mockengine.serve_failed", map[string]any{"error": err.Error()})
		}
	}()
	baseURL := "http://" + ln.Addr().String()
	telemetry.Info("mockengine.started", map[string]any{"base_url": baseURL})
	return baseURL, nil
}

// Close stops timers, drops sockets and shuts the listener down.
func (e *Engine) Close() {
	e.mu.Lock()
	e.cancel()
	srv := e.server
	e.server = nil
	e.mu.Unlock()
	e.hub.close()
	if srv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = srv.Shutdown(ctx)
		cancel()
	}
	e.wg.Wait()
}

// SetHealth changes the status reported by /api/health.
func (e *Engine) SetHealth(status string) {
	e.mu.Lock()
	e.health = status
	e.mu.Unlock()
}

// FailNext makes the next n calls to ep answer with the given HTTP status.
func (e *Engine) FailNext(ep Endpoint, status, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i := 0; i < n; i++ {
		e.faults[ep] = append(e.faults[ep], status)
	}
}

// Calls returns how many requests reached ep.
func (e *Engine) Calls(ep Endpoint) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls[ep]
}

// Subscribers returns the number of open push connections.
func (e *Engine) Subscribers() int {
	return e.hub.count()
}

// DropConnections closes every push connection; clients may reconnect.
func (e *Engine) DropConnections() {
	e.hub.dropAll()
}

// hit counts a call and pops a pending fault for ep, if any.
func (e *Engine) hit(ep Endpoint) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls[ep]++
	queue := e.faults[ep]
	if len(queue) == 0 {
		return 0
	}
	e.faults[ep] = queue[1:]
	return queue[0]
}

// Session returns a copy of a session.
func (e *Engine) Session(id string) (SessionView, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	j, ok := e.jobs[id]
	if !ok {
		return SessionView{}, false
	}
	return j.view, true
}

// Sessions returns the ids of every session, in no particular order.
func (e *Engine) Sessions() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.jobs))
	for id := range e.jobs {
		ids = append(ids, id)
	}
	return ids
}

type startInput struct {
	ProposalID string   `json:"proposal_id"`
	DocumentID string   `json:"document_id"`
	Filename   string   `json:"filename"`
	S3Key      string   `json:"s3_key"`
	Frameworks []string `json:"frameworks"`
}

func (e *Engine) start(in startInput) SessionView {
	first := script[0]
	j := &job{view: SessionView{
		ID:          "analysis_" + uuid.NewString(),
		ProposalID:  in.ProposalID,
		DocumentID:  in.DocumentID,
		Filename:    in.Filename,
		S3Key:       in.S3Key,
		Frameworks:  in.Frameworks,
		Status:      first.status,
		Progress:    first.progress,
		CurrentStep: first.step,
		StartedAt:   e.now().Format(time.RFC3339Nano),
	}}
	e.mu.Lock()
	e.jobs[j.view.ID] = j
	auto := e.opts.StepInterval > 0 && e.ctx.Err() == nil
	if auto {
		e.wg.Add(1)
	}
	e.mu.Unlock()

	if auto {
		go e.autoAdvance(j.view.ID)
	}
	telemetry.Info("mockengine.session_started", map[string]any{
		"session_id":  j.view.ID,
		"proposal_id": in.ProposalID,
	})
	return j.view
}

func (e *Engine) autoAdvance(id string) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.opts.StepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-e.ctx.Done():
			return
		case <-ticker.C:
		}
		view, err := e.Advance(id)
		if err != nil || view.Status == "completed" || view.Status == "failed" {
			return
		}
	}
}

// Advance moves a session one scripted step forward and pushes the change.
func (e *Engine) Advance(id string) (SessionView, error) {
	e.mu.Lock()
	j, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return SessionView{}, ErrNotFound
	}
	if j.terminal() {
		view := j.view
		e.mu.Unlock()
		return view, ErrTerminal
	}
	j.step++
	next := script[j.step]
	j.view.Status = next.status
	j.view.Progress = next.progress
	j.view.CurrentStep = next.step
	if j.terminal() {
		j.view.CompletedAt = e.now().Format(time.RFC3339Nano)
	}
	view := j.view
	e.mu.Unlock()

	if view.Status == "completed" {
		e.push(transport.MessageAnalysisComplete, id, map[string]any{"progress": 100})
	} else {
		e.push(transport.MessageAnalysisProgress, id, map[string]any{
			"progress":    view.Progress,
			"status":      view.Status,
			"currentStep": view.CurrentStep,
		})
	}
	return view, nil
}

// Complete runs a session through every remaining step.
func (e *Engine) Complete(id string) (SessionView, error) {
	for {
		view, err := e.Advance(id)
		if err != nil {
			return view, err
		}
		if view.Status == "completed" {
			return view, nil
		}
	}
}

// Fail marks a session failed and pushes an error message.
func (e *Engine) Fail(id, message, code string) (SessionView, error) {
	e.mu.Lock()
	j, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return SessionView{}, ErrNotFound
	}
	if j.terminal() {
		view := j.view
		e.mu.Unlock()
		return view, ErrTerminal
	}
	j.view.Status = "failed"
	j.view.ErrorMessage = message
	j.view.CompletedAt = e.now().Format(time.RFC3339Nano)
	view := j.view
	e.mu.Unlock()

	e.push(transport.MessageError, id, map[string]any{"error": message, "code": code})
	return view, nil
}

// Push sends an arbitrary message to every push connection.
func (e *Engine) Push(msg transport.Message) {
	e.hub.broadcast(msg)
}

func (e *Engine) push(typ transport.MessageType, sessionID string, data any) {
	msg := transport.Message{Type: typ, SessionID: sessionID}
	if raw, err := jsonRaw(data); err == nil {
		msg.Data = raw
	}
	e.hub.broadcast(msg)
}

// report builds the results payload of a completed session.
func (e *Engine) report(id string) (results.Report, error) {
	e.mu.Lock()
	j, ok := e.jobs[id]
	if !ok {
		e.mu.Unlock()
		return results.Report{}, ErrNotFound
	}
	view := j.view
	e.mu.Unlock()
	if view.Status != "completed" {
		return results.Report{}, ErrNotReady
	}
	issues := append([]results.Issue(nil), e.opts.Issues...)
	return results.Normalize(results.Report{
		ID:         "report-" + id,
		ProposalID: view.ProposalID,
		Issues:     issues,
	}, id, e.now()), nil
}

// Issue returns one seeded finding by id.
func (e *Engine) Issue(id string) (results.Issue, bool) {
	for _, issue := range e.opts.Issues {
		if issue.ID == id {
			return issue, true
		}
	}
	return results.Issue{}, false
}

// Upload returns a stored upload record.
func (e *Engine) Upload(id string) (transport.UploadRecord, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	record, ok := e.uploads[id]
	return record, ok
}
