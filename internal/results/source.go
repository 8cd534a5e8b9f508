package results

import (
	"context"
	"net/http"
	"net/url"

	"proposal-prepper/internal/transport"
)

// Source loads a report from wherever analyses run.
type Source interface {
	FetchReport(ctx context.Context, sessionID string) (Report, error)
}

// EngineSource reads reports from GET /api/analysis/{id}/results.
type EngineSource struct {
	Client *transport.Client
}

// FetchReport calls the engine; transport failures become *FetchError.
func (s EngineSource) FetchReport(ctx context.Context, sessionID string) (Report, error) {
	res := transport.Request[Report](ctx, s.Client, http.MethodGet,
		"/api/analysis/"+url.PathEscape(sessionID)+"/results", nil)
	if !res.Success {
		return Report{}, &FetchError{Code: string(res.Code), Message: res.Error}
	}
	return res.Data, nil
}

// IssueSource looks up a single finding by id.
type IssueSource interface {
	FetchIssue(ctx context.Context, issueID string) (Issue, error)
}

// FetchIssue calls GET /api/results/issues/{id}.
func (s EngineSource) FetchIssue(ctx context.Context, issueID string) (Issue, error) {
	res := transport.Request[Issue](ctx, s.Client, http.MethodGet,
		"/api/results/issues/"+url.PathEscape(issueID), nil)
	if !res.Success {
		return Issue{}, &FetchError{Code: string(res.Code), Message: res.Error}
	}
	return res.Data, nil
}
