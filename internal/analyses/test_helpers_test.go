package analyses

import (
	"context"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"proposal-prepper/internal/mockengine"
	"proposal-prepper/internal/results"
	"proposal-prepper/internal/transport"
)

type harness struct {
	engine  *mockengine.Engine
	client  *transport.Client
	socket  *transport.Socket
	svc     *Service
	events  *recorder
	baseURL string
}

type harnessOptions struct {
	service    Options
	withSocket bool
}

func fastOptions() Options {
	return Options{
		PollInterval:      10 * time.Millisecond,
		Timeout:           5 * time.Second,
		PollRatePerSecond: 1000,
	}
}

func newHarness(t *testing.T, ho harnessOptions) *harness {
	t.Helper()
	gin.SetMode(gin.TestMode)
	engine := mockengine.New(mockengine.Options{})
	srv := httptest.NewServer(engine.Handler())

	client := transport.New(transport.Options{
		BaseURL:        srv.URL,
		Timeout:        2 * time.Second,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		HealthCacheTTL: time.Millisecond,
	})
	var socket *transport.Socket
	if ho.withSocket {
		socket = transport.NewSocket(transport.SocketOptions{
			URL:               transport.SocketURL(srv.URL),
			ReconnectInterval: 10 * time.Millisecond,
		})
	}
	if ho.service.PollInterval == 0 {
		ho.service = fastOptions()
	}
	fetcher := results.NewFetcher(results.EngineSource{Client: client}, nil)
	svc := NewService(client, socket, NewMemoryStore(), fetcher, ho.service)
	events := &recorder{}
	svc.SetEventHandlers(events.handlers())

	t.Cleanup(func() {
		svc.Close()
		engine.Close()
		srv.Close()
	})
	return &harness{
		engine:  engine,
		client:  client,
		socket:  socket,
		svc:     svc,
		events:  events,
		baseURL: srv.URL,
	}
}

type completion struct {
	session Session
	report  results.Report
}

type failure struct {
	session Session
	message string
	code    string
}

type recorder struct {
	mu        sync.Mutex
	progress  []Session
	completes []completion
	failures  []failure
}

func (r *recorder) handlers() EventHandlers {
	return EventHandlers{
		OnProgress: func(s Session) {
			r.mu.Lock()
			r.progress = append(r.progress, s)
			r.mu.Unlock()
		},
		OnComplete: func(s Session, report results.Report) {
			r.mu.Lock()
			r.completes = append(r.completes, completion{session: s, report: report})
			r.mu.Unlock()
		},
		OnError: func(s Session, message, code string) {
			r.mu.Lock()
			r.failures = append(r.failures, failure{session: s, message: message, code: code})
			r.mu.Unlock()
		},
	}
}

func (r *recorder) snapshot() ([]Session, []completion, []failure) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Session(nil), r.progress...),
		append([]completion(nil), r.completes...),
		append([]failure(nil), r.failures...)
}

func (r *recorder) completeCount() int {
	_, c, _ := r.snapshot()
	return len(c)
}

func (r *recorder) failureCount() int {
	_, _, f := r.snapshot()
	return len(f)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met before deadline")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func mustStart(t *testing.T, h *harness, proposalID string) string {
	t.Helper()
	res := h.svc.StartAnalysis(testContext(t), AnalysisRequest{ProposalID: proposalID})
	if !res.Success {
		t.Fatalf("start failed: %#v", res)
	}
	return res.SessionID
}

// testContext mirrors testing.T.Context (Go 1.24+): canceled when the test ends.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
