package results

import (
	"sort"
	"strings"
	"time"
)

// Normalize makes a report self-consistent: the summary is recounted from the
// issue list, unknown severities become info, a missing verdict is derived and
// the score and checked rules are filled in. An engine-assigned report id is
// kept; sessionID only fills a missing one.
func Normalize(r Report, sessionID string, now time.Time) Report {
	if r.ID == "" {
		r.ID = sessionID
	}
	if r.Issues == nil {
		r.Issues = []Issue{}
	}

	var summary Summary
	for i := range r.Issues {
		issue := &r.Issues[i]
		issue.Severity = normalizeSeverity(issue.Severity)
		switch issue.Severity {
		case SeverityCritical:
			summary.CriticalIssues++
		case SeverityWarning:
			summary.WarningIssues++
		default:
			summary.InfoIssues++
		}
	}
	summary.TotalIssues = len(r.Issues)
	r.Summary = summary

	switch r.Status {
	case StatusPass, StatusFail, StatusWarning:
	default:
		r.Status = deriveStatus(summary)
	}
	r.OverallScore = overallScore(summary)
	r.RulesChecked = rulesChecked(r.Issues)
	if r.GeneratedAt.IsZero() {
		r.GeneratedAt = now.UTC()
	}
	return r
}

func normalizeSeverity(s Severity) Severity {
	switch Severity(strings.ToLower(strings.TrimSpace(string(s)))) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityWarning:
		return SeverityWarning
	default:
		return SeverityInfo
	}
}

func deriveStatus(s Summary) ComplianceStatus {
	switch {
	case s.CriticalIssues > 0:
		return StatusFail
	case s.WarningIssues > 0:
		return StatusWarning
	default:
		return StatusPass
	}
}

// overallScore deducts 20 per critical, 10 per warning and 5 per info issue.
func overallScore(s Summary) int {
	score := 100 - 20*s.CriticalIssues - 10*s.WarningIssues - 5*s.InfoIssues
	if score < 0 {
		return 0
	}
	return score
}

func rulesChecked(issues []Issue) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, issue := range issues {
		if issue.Regulation == nil || issue.Regulation.Reference == "" {
			continue
		}
		if _, ok := seen[issue.Regulation.Reference]; ok {
			continue
		}
		seen[issue.Regulation.Reference] = struct{}{}
		out = append(out, issue.Regulation.Reference)
	}
	sort.Strings(out)
	return out
}
