package analyses

import (
	"context"
	"errors"
	"fmt"
	"time"

	"proposal-prepper/internal/results"
	"proposal-prepper/internal/shared/metrics"
	"proposal-prepper/internal/shared/telemetry"
	"proposal-prepper/internal/transport"
)

// Outcome is what reconcile did with an update.
type Outcome int

const (
	OutcomeIgnored Outcome = iota
	OutcomeProgress
	OutcomeCompleted
	OutcomeFailed
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProgress:
		return "progress"
	case OutcomeCompleted:
		return "completed"
	case OutcomeFailed:
		return "failed"
	default:
		return "ignored"
	}
}

// applyUpdate merges u into cur. Terminal sessions and backward status moves
// are left untouched.
func applyUpdate(cur Session, u Update, now time.Time) (Session, Outcome) {
	if cur.Status.IsTerminal() {
		return cur, OutcomeIgnored
	}
	status := u.Status
	if status == "" {
		status = cur.Status
	}
	if status != StatusFailed && status.order() < cur.Status.order() {
		return cur, OutcomeIgnored
	}

	next := cur
	next.Status = status
	if u.Progress != nil {
		if p := clampProgress(*u.Progress); p > next.Progress {
			next.Progress = p
		}
	}
	if u.CurrentStep != "" {
		next.CurrentStep = u.CurrentStep
	}

	switch status {
	case StatusCompleted:
		next.Progress = 100
		next.Stage = StageComplete
		next.CompletedAt = &now
		return next, OutcomeCompleted
	case StatusFailed:
		next.Stage = StageFailed
		next.CompletedAt = &now
		next.ErrorMessage = u.ErrorMessage
		if next.ErrorMessage == "" {
			next.ErrorMessage = msgAnalysisFailed
		}
		next.ErrorCode = u.ErrorCode
		return next, OutcomeFailed
	}

	if stage := StageIndex(next.Status, next.Progress, next.CurrentStep); stage > next.Stage {
		next.Stage = stage
	}
	if next.Status == cur.Status && next.Progress == cur.Progress &&
		next.CurrentStep == cur.CurrentStep && next.Stage == cur.Stage {
		return cur, OutcomeIgnored
	}
	return next, OutcomeProgress
}

func clampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// reconcile is the only path that mutates a live session. Push, poll,
// status reads, cancel and timeout all land here.
func (s *Service) reconcile(ctx context.Context, u Update) Outcome {
	outcome := OutcomeIgnored
	next, err := s.store.Apply(ctx, u.SessionID, func(cur Session) (Session, bool) {
		var updated Session
		updated, outcome = applyUpdate(cur, u, s.now())
		if outcome == OutcomeIgnored {
			return cur, false
		}
		// Queued under the store lock so callbacks follow commit order.
		s.emits.enqueue(u.SessionID, s.emitTask(ctx, outcome, updated))
		return updated, true
	})
	defer s.emits.drain(u.SessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			telemetry.Warn("analysis.reconcile_failed", map[string]any{
				"session_id": u.SessionID,
				"source":     u.Source,
				"error":      err.Error(),
			})
		}
		metrics.IncUpdate(u.Source, OutcomeIgnored.String())
		return OutcomeIgnored
	}
	metrics.IncUpdate(u.Source, outcome.String())
	if outcome == OutcomeIgnored {
		return outcome
	}

	fields := map[string]any{
		"session_id":   next.ID,
		"source":       u.Source,
		"status":       next.Status,
		"progress":     next.Progress,
		"stage":        next.Stage,
		"current_step": next.CurrentStep,
	}
	if id := requestIDFromContext(ctx); id != "" {
		fields["request_id"] = id
	}
	telemetry.Info("analysis.status", fields)

	switch outcome {
	case OutcomeCompleted:
		s.stopPolling(next.ID)
		metrics.IncAnalysisCompleted()
		metrics.ObserveAnalysisDurationMs(durationMs(next))
	case OutcomeFailed:
		s.stopPolling(next.ID)
		metrics.IncAnalysisFailed()
		metrics.ObserveAnalysisDurationMs(durationMs(next))
	}
	return outcome
}

// emitTask builds the single callback owed for one applied update.
func (s *Service) emitTask(ctx context.Context, outcome Outcome, session Session) func() {
	switch outcome {
	case OutcomeCompleted:
		return func() { s.complete(ctx, session) }
	case OutcomeFailed:
		return func() { s.emitError(session, session.ErrorMessage, session.ErrorCode) }
	default:
		return func() { s.emitProgress(session) }
	}
}

// complete fetches the report for a newly completed session and fires the
// single terminal callback.
func (s *Service) complete(ctx context.Context, session Session) {
	if s.fetcher == nil {
		s.emitComplete(session, results.Report{})
		return
	}
	report, err := s.fetcher.Fetch(context.WithoutCancel(ctx), session.ID)
	if err != nil {
		code := string(transport.CodeNetwork)
		var fetchErr *results.FetchError
		if errors.As(err, &fetchErr) && fetchErr.Code != "" {
			code = fetchErr.Code
		}
		telemetry.Error("analysis.results_failed", map[string]any{
			"session_id": session.ID,
			"code":       code,
			"error":      err.Error(),
		})
		s.emitError(session, "Failed to fetch analysis results: "+err.Error(), code)
		return
	}
	s.emitComplete(session, report)
}

func (s *Service) emitProgress(session Session) {
	h := s.eventHandlers()
	if h.OnProgress == nil {
		return
	}
	safeCall("progress", session.ID, func() { h.OnProgress(session) })
}

func (s *Service) emitComplete(session Session, report results.Report) {
	h := s.eventHandlers()
	if h.OnComplete == nil {
		return
	}
	safeCall("complete", session.ID, func() { h.OnComplete(session, report) })
}

func (s *Service) emitError(session Session, message, code string) {
	h := s.eventHandlers()
	if h.OnError == nil {
		return
	}
	safeCall("error", session.ID, func() { h.OnError(session, message, code) })
}

func safeCall(event, sessionID string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			telemetry.Error("analysis.callback_panic", map[string]any{
				"session_id": sessionID,
				"event":      event,
				"error":      fmt.Sprint(r),
			})
		}
	}()
	fn()
}

func durationMs(session Session) float64 {
	if session.CompletedAt == nil || session.StartedAt.IsZero() {
		return 0
	}
	return float64(session.CompletedAt.Sub(session.StartedAt).Milliseconds())
}
