package analyses

import "context"

// Store holds sessions keyed by id.
type Store interface {
	Insert(ctx context.Context, session Session) error
	Get(ctx context.Context, sessionID string) (Session, error)
	// Apply runs fn against the current session under the store lock and
	// writes the result back when fn reports a change. A reported change is
	// always committed.
	Apply(ctx context.Context, sessionID string, fn func(Session) (Session, bool)) (Session, error)
	// Delete removes the session if allow accepts it.
	Delete(ctx context.Context, sessionID string, allow func(Session) bool) (bool, error)
	List(ctx context.Context) ([]Session, error)
	Clear(ctx context.Context) error
}
