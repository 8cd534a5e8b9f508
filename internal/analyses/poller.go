package analyses

import (
	"context"
	"time"

	"proposal-prepper/internal/shared/telemetry"
	"proposal-prepper/internal/transport"
)

// startPolling runs the fallback status loop for one session. It is a no-op
// when a loop is already running or the service is closed.
func (s *Service) startPolling(sessionID string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, ok := s.polls[sessionID]; ok {
		s.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	s.polls[sessionID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go s.pollLoop(ctx, cancel, sessionID)
}

func (s *Service) stopPolling(sessionID string) {
	s.mu.Lock()
	cancel, ok := s.polls[sessionID]
	delete(s.polls, sessionID)
	s.mu.Unlock()
	if ok {
		cancel()
	}
}

func (s *Service) pollLoop(ctx context.Context, cancel context.CancelFunc, sessionID string) {
	defer s.wg.Done()
	defer s.stopPolling(sessionID)
	defer cancel()

	maxAttempts := int(s.opts.Timeout / s.opts.PollInterval)
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	// Attempt 0 runs at once; the timeout budget covers the ticks after it.
	if err := s.limiter.Wait(ctx); err != nil {
		return
	}
	if done := s.pollOnce(ctx, sessionID, 0, maxAttempts); done {
		return
	}

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if done := s.pollOnce(ctx, sessionID, attempt, maxAttempts); done {
			return
		}
	}
	if ctx.Err() != nil {
		return
	}

	telemetry.Warn("analysis.timeout", map[string]any{
		"session_id": sessionID,
		"attempts":   maxAttempts,
		"timeout_ms": s.opts.Timeout.Milliseconds(),
	})
	s.reconcile(context.WithoutCancel(ctx), Update{
		SessionID:    sessionID,
		Status:       StatusFailed,
		ErrorMessage: msgAnalysisTimeout,
		ErrorCode:    string(transport.CodeTimeout),
		Source:       SourceTimeout,
	})
}

// pollOnce reports whether the loop should stop.
func (s *Service) pollOnce(ctx context.Context, sessionID string, attempt, maxAttempts int) bool {
	current, err := s.store.Get(ctx, sessionID)
	if err != nil || current.Status.IsTerminal() {
		return true
	}
	telemetry.Debug("analysis.poll", map[string]any{
		"session_id":   sessionID,
		"attempt":      attempt,
		"max_attempts": maxAttempts,
	})
	remote, ok := s.fetchRemote(ctx, sessionID)
	if !ok {
		return ctx.Err() != nil
	}
	s.reconcile(ctx, remote.update(SourcePoll))

	latest, err := s.store.Get(ctx, sessionID)
	return err != nil || latest.Status.IsTerminal()
}
