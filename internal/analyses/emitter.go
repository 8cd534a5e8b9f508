package analyses

import "sync"

// emitter delivers each session's callbacks in commit order. Tasks are
// queued while the store lock is held; whichever goroutine finds the queue
// idle runs it until empty. A callback that reconciles the same session only
// queues, so re-entry cannot deadlock.
type emitter struct {
	mu     sync.Mutex
	queues map[string]*emitQueue
}

type emitQueue struct {
	pending  []func()
	draining bool
}

func newEmitter() *emitter {
	return &emitter{queues: make(map[string]*emitQueue)}
}

func (e *emitter) enqueue(sessionID string, task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	q, ok := e.queues[sessionID]
	if !ok {
		q = &emitQueue{}
		e.queues[sessionID] = q
	}
	q.pending = append(q.pending, task)
}

// drain runs queued tasks for sessionID unless another goroutine already is.
func (e *emitter) drain(sessionID string) {
	e.mu.Lock()
	q, ok := e.queues[sessionID]
	if !ok || q.draining {
		e.mu.Unlock()
		return
	}
	q.draining = true
	for len(q.pending) > 0 {
		task := q.pending[0]
		q.pending[0] = nil
		q.pending = q.pending[1:]
		e.mu.Unlock()
		safeCall("emit", sessionID, task)
		e.mu.Lock()
	}
	delete(e.queues, sessionID)
	e.mu.Unlock()
}
