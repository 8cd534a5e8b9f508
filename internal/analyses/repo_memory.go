package analyses

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore stores sessions in memory and is safe for concurrent use.
type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]Session
}

// NewMemoryStore constructs a MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Session)}
}

// Insert stores a new session.
func (r *MemoryStore) Insert(ctx context.Context, session Session) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[session.ID]; ok {
		return ErrSessionExists
	}
	r.byID[session.ID] = cloneSession(session)
	return nil
}

// Get returns a session by id.
func (r *MemoryStore) Get(ctx context.Context, sessionID string) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return cloneSession(session), nil
}

// Apply performs a read-modify-write of one session.
func (r *MemoryStore) Apply(ctx context.Context, sessionID string, fn func(Session) (Session, bool)) (Session, error) {
	if err := ctx.Err(); err != nil {
		return Session{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	current, ok := r.byID[sessionID]
	if !ok {
		return Session{}, ErrNotFound
	}
	next, changed := fn(cloneSession(current))
	if !changed {
		return cloneSession(current), nil
	}
	next.ID = sessionID
	r.byID[sessionID] = cloneSession(next)
	return cloneSession(next), nil
}

// Delete removes a session when allow accepts it. A nil allow always deletes.
func (r *MemoryStore) Delete(ctx context.Context, sessionID string, allow func(Session) bool) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	session, ok := r.byID[sessionID]
	if !ok {
		return false, nil
	}
	if allow != nil && !allow(cloneSession(session)) {
		return false, nil
	}
	delete(r.byID, sessionID)
	return true, nil
}

// List returns every session, oldest first.
func (r *MemoryStore) List(ctx context.Context) ([]Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	out := make([]Session, 0, len(r.byID))
	for _, session := range r.byID {
		out = append(out, cloneSession(session))
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].StartedAt.Before(out[j].StartedAt)
	})
	return out, nil
}

// Clear removes every session.
func (r *MemoryStore) Clear(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID = make(map[string]Session)
	return nil
}

func cloneSession(s Session) Session {
	if s.Frameworks != nil {
		s.Frameworks = append([]string(nil), s.Frameworks...)
	}
	if s.CompletedAt != nil {
		t := *s.CompletedAt
		s.CompletedAt = &t
	}
	if s.EstimatedCompletion != nil {
		t := *s.EstimatedCompletion
		s.EstimatedCompletion = &t
	}
	return s
}
