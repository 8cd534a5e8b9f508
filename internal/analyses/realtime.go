package analyses

import (
	"context"

	"proposal-prepper/internal/shared/telemetry"
	"proposal-prepper/internal/transport"
)

// SubscribeToRealTimeUpdates opens the push socket and routes its messages
// into reconcile. Connect failures are logged; polling keeps sessions moving.
func (s *Service) SubscribeToRealTimeUpdates(ctx context.Context) {
	if s.socket == nil {
		return
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if len(s.subs) == 0 {
		s.subs = []*transport.Subscription{
			s.socket.Subscribe(transport.MessageAnalysisProgress, s.onPushProgress),
			s.socket.Subscribe(transport.MessageAnalysisComplete, s.onPushComplete),
			s.socket.Subscribe(transport.MessageError, s.onPushError),
		}
	}
	s.mu.Unlock()

	if err := s.socket.Open(ctx); err != nil {
		telemetry.Warn("analysis.realtime_unavailable", map[string]any{
			"error": err.Error(),
		})
	}
}

// UnsubscribeFromRealTimeUpdates removes the push listeners and closes the
// socket.
func (s *Service) UnsubscribeFromRealTimeUpdates() {
	if s.socket == nil {
		return
	}
	s.mu.Lock()
	subs := s.subs
	s.subs = nil
	s.mu.Unlock()

	for _, sub := range subs {
		s.socket.Unsubscribe(sub)
	}
	s.socket.Close()
}

func (s *Service) onPushProgress(msg transport.Message) {
	data := msg.Progress()
	u := Update{
		SessionID:   msg.SessionID,
		CurrentStep: data.CurrentStep,
		Source:      SourcePush,
	}
	if status, err := ParseStatus(data.Status); err == nil && !status.IsTerminal() {
		u.Status = status
	}
	if data.Progress != nil {
		p := int(*data.Progress + 0.5)
		u.Progress = &p
	}
	s.reconcile(s.ctx, u)
}

func (s *Service) onPushComplete(msg transport.Message) {
	s.reconcile(s.ctx, Update{
		SessionID: msg.SessionID,
		Status:    StatusCompleted,
		Source:    SourcePush,
	})
}

func (s *Service) onPushError(msg transport.Message) {
	data := msg.Failure()
	s.reconcile(s.ctx, Update{
		SessionID:    msg.SessionID,
		Status:       StatusFailed,
		ErrorMessage: data.Error,
		ErrorCode:    data.Code,
		Source:       SourcePush,
	})
}
