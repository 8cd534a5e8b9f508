package analyses

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"proposal-prepper/internal/results"
	"proposal-prepper/internal/shared/metrics"
	"proposal-prepper/internal/shared/telemetry"
	"proposal-prepper/internal/transport"
)

const (
	defaultPollInterval      = 2 * time.Second
	defaultAnalysisTimeout   = 5 * time.Minute
	defaultPollRatePerSecond = 10
	defaultFilename          = "document.pdf"
)

// Options tunes the orchestrator.
type Options struct {
	PollInterval      time.Duration
	Timeout           time.Duration
	PollRatePerSecond float64
	PollBurst         int
	Now               func() time.Time
}

// Service orchestrates analysis sessions against the remote engine.
type Service struct {
	client  *transport.Client
	socket  *transport.Socket
	store   Store
	fetcher *results.Fetcher
	opts    Options
	now     func() time.Time
	limiter *rate.Limiter
	emits   *emitter

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	handlers EventHandlers
	polls    map[string]context.CancelFunc
	retrying map[string]struct{}
	subs     []*transport.Subscription
	closed   bool
}

// NewService wires the orchestrator. socket may be nil when push updates are
// not wanted; a nil store means in-memory.
func NewService(client *transport.Client, socket *transport.Socket, store Store, fetcher *results.Fetcher, opts Options) *Service {
	if opts.PollInterval <= 0 {
		opts.PollInterval = defaultPollInterval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultAnalysisTimeout
	}
	if opts.PollRatePerSecond <= 0 {
		opts.PollRatePerSecond = defaultPollRatePerSecond
	}
	if opts.PollBurst <= 0 {
		opts.PollBurst = int(opts.PollRatePerSecond)
		if opts.PollBurst < 1 {
			opts.PollBurst = 1
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	if store == nil {
		store = NewMemoryStore()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Service{
		client:   client,
		socket:   socket,
		store:    store,
		fetcher:  fetcher,
		opts:     opts,
		now:      func() time.Time { return now().UTC() },
		limiter:  rate.NewLimiter(rate.Limit(opts.PollRatePerSecond), opts.PollBurst),
		emits:    newEmitter(),
		ctx:      ctx,
		cancel:   cancel,
		polls:    make(map[string]context.CancelFunc),
		retrying: make(map[string]struct{}),
	}
}

// ValidateAnalysisRequest checks a request without side effects.
func (s *Service) ValidateAnalysisRequest(req AnalysisRequest) ValidationResult {
	return ValidateAnalysisRequest(req)
}

// SetEventHandlers replaces all lifecycle callbacks.
func (s *Service) SetEventHandlers(h EventHandlers) {
	s.mu.Lock()
	s.handlers = h
	s.mu.Unlock()
}

func (s *Service) eventHandlers() EventHandlers {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.handlers
}

// StartAnalysis submits a job and begins tracking it. Nothing is created
// locally unless the engine accepted the job.
func (s *Service) StartAnalysis(ctx context.Context, req AnalysisRequest) StartResult {
	if v := ValidateAnalysisRequest(req); !v.IsValid {
		return StartResult{Error: v.Error, Code: ErrorCodeValidation}
	}
	proposalID := strings.TrimSpace(req.ProposalID)
	documentID := strings.TrimSpace(req.DocumentID)
	filename := strings.TrimSpace(req.Filename)
	s3Key := strings.TrimSpace(req.S3Key)

	if req.Upload != nil {
		up := s.client.UploadWithProgress(ctx, req.Upload.Filename, req.Upload.Reader, req.Upload.Size, req.Upload.OnProgress)
		if !up.Success {
			msg := up.Error
			if msg == "" {
				msg = msgUploadFailed
			}
			return StartResult{Error: msg, Code: string(up.Code)}
		}
		documentID = up.Data.ID
		if filename == "" {
			filename = req.Upload.Filename
		}
		if up.Data.S3Key != "" {
			s3Key = up.Data.S3Key
		}
	}

	if !s.client.IsServiceHealthy(ctx) {
		return StartResult{Error: msgServiceUnavailable, Code: string(transport.CodeServiceUnavailable)}
	}

	if documentID == "" {
		documentID = proposalID
	}
	if filename == "" {
		filename = defaultFilename
	}
	if s3Key == "" {
		s3Key = "uploads/" + proposalID + "/" + filename
	}
	frameworks := req.Frameworks
	if len(frameworks) == 0 {
		frameworks = DefaultFrameworks
	}
	frameworks = append([]string(nil), frameworks...)

	res := transport.Request[engineSession](ctx, s.client, http.MethodPost, "/api/analysis/start", map[string]any{
		"proposal_id": proposalID,
		"document_id": documentID,
		"filename":    filename,
		"s3_key":      s3Key,
		"frameworks":  frameworks,
	}, s.requestOptions(ctx)...)
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = msgStartFailed
		}
		telemetry.Error("analysis.start_failed", map[string]any{
			"proposal_id": proposalID,
			"code":        res.Code,
			"error":       msg,
			"request_id":  requestIDFromContext(ctx),
		})
		return StartResult{Error: msg, Code: string(res.Code)}
	}
	if res.Data.ID == "" {
		return StartResult{Error: "analysis engine returned no session id", Code: string(transport.CodeParse)}
	}

	startedAt := s.now()
	if t := parseTime(res.Data.StartedAt); t != nil {
		startedAt = *t
	}
	session := Session{
		ID:                  res.Data.ID,
		ProposalID:          proposalID,
		DocumentID:          documentID,
		Filename:            filename,
		S3Key:               s3Key,
		Frameworks:          frameworks,
		Status:              StatusQueued,
		CurrentStep:         res.Data.CurrentStep,
		StartedAt:           startedAt,
		EstimatedCompletion: parseTime(res.Data.EstimatedCompletion),
	}
	if err := s.store.Insert(ctx, session); err != nil {
		if errors.Is(err, ErrSessionExists) {
			telemetry.Warn("analysis.start_duplicate", map[string]any{
				"session_id":  session.ID,
				"proposal_id": proposalID,
			})
			return StartResult{Success: true, SessionID: session.ID}
		}
		return StartResult{Error: err.Error(), Code: ErrorCodeInternal}
	}
	metrics.IncAnalysisStarted()
	telemetry.Info("analysis.started", map[string]any{
		"session_id":  session.ID,
		"proposal_id": proposalID,
		"document_id": documentID,
		"request_id":  requestIDFromContext(ctx),
	})

	s.startPolling(session.ID)
	s.reconcile(ctx, res.Data.update(SourceStart))
	return StartResult{Success: true, SessionID: session.ID}
}

// GetAnalysisStatus returns the session, refreshed from the engine while it
// is still running. A transport failure yields the local copy.
func (s *Service) GetAnalysisStatus(ctx context.Context, sessionID string) (Session, bool) {
	current, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, false
	}
	if current.Status.IsTerminal() {
		return current, true
	}
	remote, ok := s.fetchRemote(ctx, sessionID)
	if !ok {
		return current, true
	}
	s.reconcile(ctx, remote.update(SourceStatus))
	latest, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return current, true
	}
	return latest, true
}

func (s *Service) fetchRemote(ctx context.Context, sessionID string) (engineSession, bool) {
	res := transport.Request[engineSession](ctx, s.client, http.MethodGet,
		"/api/analysis/"+url.PathEscape(sessionID), nil, s.requestOptions(ctx)...)
	if !res.Success {
		telemetry.Warn("analysis.status_fetch_failed", map[string]any{
			"session_id": sessionID,
			"code":       res.Code,
			"error":      res.Error,
		})
		return engineSession{}, false
	}
	res.Data.ID = sessionID
	return res.Data, true
}

// CancelAnalysis asks the engine to stop and fails the local session either
// way. It reports whether the engine acknowledged.
func (s *Service) CancelAnalysis(ctx context.Context, sessionID string) bool {
	current, err := s.store.Get(ctx, sessionID)
	if err != nil || current.Status.IsTerminal() {
		return false
	}
	opts := append(s.requestOptions(ctx), transport.WithoutRetry())
	res := transport.Request[json.RawMessage](ctx, s.client, http.MethodDelete,
		"/api/analysis/"+url.PathEscape(sessionID), nil, opts...)
	if !res.Success {
		telemetry.Warn("analysis.cancel_unacknowledged", map[string]any{
			"session_id": sessionID,
			"code":       res.Code,
			"error":      res.Error,
		})
	}
	s.reconcile(context.WithoutCancel(ctx), Update{
		SessionID:    sessionID,
		Status:       StatusFailed,
		CurrentStep:  msgCancelledStep,
		ErrorMessage: msgCancelledByUser,
		ErrorCode:    ErrorCodeCancelled,
		Source:       SourceCancel,
	})
	return res.Success
}

// RetryAnalysis starts a fresh session for a failed one and drops the old.
func (s *Service) RetryAnalysis(ctx context.Context, sessionID string) RetryResult {
	current, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return RetryResult{Error: msgSessionNotFound, Code: ErrorCodeNotFound}
	}
	if current.Status != StatusFailed {
		return RetryResult{Error: msgRetryOnlyFailed, Code: ErrorCodeConflict}
	}

	s.mu.Lock()
	if _, busy := s.retrying[sessionID]; busy {
		s.mu.Unlock()
		return RetryResult{Error: msgRetryInProgress, Code: ErrorCodeConflict}
	}
	s.retrying[sessionID] = struct{}{}
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.retrying, sessionID)
		s.mu.Unlock()
	}()

	// A concurrent retry may have replaced the session already.
	if _, err := s.store.Get(ctx, sessionID); err != nil {
		return RetryResult{Error: msgSessionNotFound, Code: ErrorCodeNotFound}
	}

	started := s.StartAnalysis(ctx, AnalysisRequest{
		ProposalID: current.ProposalID,
		DocumentID: current.DocumentID,
		Filename:   current.Filename,
		S3Key:      current.S3Key,
		Frameworks: current.Frameworks,
	})
	if !started.Success {
		return RetryResult{Error: started.Error, Code: started.Code}
	}
	s.evict(ctx, sessionID)
	telemetry.Info("analysis.retried", map[string]any{
		"session_id":     sessionID,
		"new_session_id": started.SessionID,
	})
	return RetryResult{Success: true, NewSessionID: started.SessionID}
}

// GetActiveSessions lists every tracked session.
func (s *Service) GetActiveSessions(ctx context.Context) []Session {
	sessions, err := s.store.List(ctx)
	if err != nil {
		telemetry.Warn("analysis.list_failed", map[string]any{"error": err.Error()})
		return nil
	}
	return sessions
}

// ClearSession evicts a terminal session and its cached report.
func (s *Service) ClearSession(ctx context.Context, sessionID string) bool {
	return s.evict(ctx, sessionID)
}

func (s *Service) evict(ctx context.Context, sessionID string) bool {
	deleted, err := s.store.Delete(ctx, sessionID, func(cur Session) bool {
		return cur.Status.IsTerminal()
	})
	if err != nil || !deleted {
		return false
	}
	s.stopPolling(sessionID)
	if s.fetcher != nil {
		if err := s.fetcher.Forget(ctx, sessionID); err != nil {
			telemetry.Warn("analysis.results_forget_failed", map[string]any{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
	}
	return true
}

// ClearAllSessions stops tracking every session.
func (s *Service) ClearAllSessions(ctx context.Context) {
	sessions, _ := s.store.List(ctx)
	s.mu.Lock()
	for id, cancel := range s.polls {
		cancel()
		delete(s.polls, id)
	}
	s.mu.Unlock()
	if err := s.store.Clear(ctx); err != nil {
		telemetry.Warn("analysis.clear_failed", map[string]any{"error": err.Error()})
		return
	}
	if s.fetcher == nil {
		return
	}
	for _, session := range sessions {
		_ = s.fetcher.Forget(ctx, session.ID)
	}
}

// ServiceStatus reports engine reachability.
func (s *Service) ServiceStatus(ctx context.Context) transport.ServiceStatus {
	return s.client.ServiceStatus(ctx)
}

// Results returns the report of a completed session.
func (s *Service) Results(ctx context.Context, sessionID string) (results.Report, error) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return results.Report{}, err
	}
	if session.Status != StatusCompleted {
		return results.Report{}, ErrNotTerminal
	}
	if s.fetcher == nil {
		return results.Report{}, ErrNotFound
	}
	return s.fetcher.Fetch(ctx, sessionID)
}

// IssueDetails returns one finding of a tracked session.
func (s *Service) IssueDetails(ctx context.Context, sessionID, issueID string) (results.Issue, error) {
	if _, err := s.store.Get(ctx, sessionID); err != nil {
		return results.Issue{}, err
	}
	if s.fetcher == nil {
		return results.Issue{}, results.ErrIssueNotFound
	}
	return s.fetcher.IssueDetails(ctx, sessionID, issueID)
}

// UploadStatus reads an uploaded document's record from the engine.
func (s *Service) UploadStatus(ctx context.Context, uploadID string) transport.Result[transport.UploadRecord] {
	return s.client.UploadStatus(ctx, uploadID, s.requestOptions(ctx)...)
}

// Close stops every poll loop and the push socket.
func (s *Service) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, cancel := range s.polls {
		cancel()
		delete(s.polls, id)
	}
	s.mu.Unlock()

	s.UnsubscribeFromRealTimeUpdates()
	s.cancel()
	s.wg.Wait()
}

func (s *Service) requestOptions(ctx context.Context) []transport.RequestOption {
	if id := requestIDFromContext(ctx); id != "" {
		return []transport.RequestOption{transport.WithHeader("X-Request-Id", id)}
	}
	return nil
}

// Session returns the local copy of a session without contacting the engine.
func (s *Service) Session(ctx context.Context, sessionID string) (Session, bool) {
	session, err := s.store.Get(ctx, sessionID)
	if err != nil {
		return Session{}, false
	}
	return session, true
}
