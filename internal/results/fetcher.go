package results

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"proposal-prepper/internal/shared/metrics"
	"proposal-prepper/internal/shared/telemetry"
)

// Fetcher retrieves each session's report at most once. Concurrent callers
// for the same session share one remote call; later callers hit the cache.
type Fetcher struct {
	source Source
	cache  Cache
	group  singleflight.Group
	now    func() time.Time
}

// NewFetcher builds a fetcher; a nil cache means in-memory.
func NewFetcher(source Source, cache Cache) *Fetcher {
	if cache == nil {
		cache = NewMemoryCache()
	}
	return &Fetcher{source: source, cache: cache, now: time.Now}
}

// Fetch returns the normalized report for sessionID.
func (f *Fetcher) Fetch(ctx context.Context, sessionID string) (Report, error) {
	if report, ok := f.cached(ctx, sessionID); ok {
		metrics.IncResultsFetch("cache_hit")
		return report, nil
	}

	v, err, shared := f.group.Do(sessionID, func() (any, error) {
		if report, ok := f.cached(ctx, sessionID); ok {
			metrics.IncResultsFetch("cache_hit")
			return report, nil
		}
		report, err := f.source.FetchReport(ctx, sessionID)
		if err != nil {
			metrics.IncResultsFetch("error")
			return Report{}, err
		}
		report = Normalize(report, sessionID, f.now())
		if err := f.cache.Put(ctx, sessionID, report); err != nil {
			telemetry.Warn("results.cache_put_failed", map[string]any{
				"session_id": sessionID,
				"error":      err.Error(),
			})
		}
		metrics.IncResultsFetch("fetched")
		telemetry.Info("results.fetched", map[string]any{
			"session_id":   sessionID,
			"total_issues": report.Summary.TotalIssues,
			"status":       report.Status,
		})
		return report, nil
	})
	if err != nil {
		return Report{}, err
	}
	if shared {
		telemetry.Debug("results.fetch_shared", map[string]any{"session_id": sessionID})
	}
	return v.(Report), nil
}

// IssueDetails returns one finding. The session's cached report answers first;
// otherwise the source is asked when it supports issue lookups.
func (f *Fetcher) IssueDetails(ctx context.Context, sessionID, issueID string) (Issue, error) {
	if report, ok := f.cached(ctx, sessionID); ok {
		for _, issue := range report.Issues {
			if issue.ID == issueID {
				return issue, nil
			}
		}
	}
	src, ok := f.source.(IssueSource)
	if !ok {
		return Issue{}, ErrIssueNotFound
	}
	issue, err := src.FetchIssue(ctx, issueID)
	if err != nil {
		return Issue{}, err
	}
	if issue.ID == "" {
		return Issue{}, ErrIssueNotFound
	}
	issue.Severity = normalizeSeverity(issue.Severity)
	return issue, nil
}

// Cached returns a previously fetched report without calling the source.
func (f *Fetcher) Cached(ctx context.Context, sessionID string) (Report, bool) {
	return f.cached(ctx, sessionID)
}

// Forget drops the cached report for sessionID.
func (f *Fetcher) Forget(ctx context.Context, sessionID string) error {
	f.group.Forget(sessionID)
	return f.cache.Delete(ctx, sessionID)
}

func (f *Fetcher) cached(ctx context.Context, sessionID string) (Report, bool) {
	report, ok, err := f.cache.Get(ctx, sessionID)
	if err != nil {
		telemetry.Warn("results.cache_get_failed", map[string]any{
			"session_id": sessionID,
			"error":      err.Error(),
		})
		return Report{}, false
	}
	return report, ok
}
