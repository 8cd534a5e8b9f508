package results

import (
	"sort"
	"strings"
)

// FrameworkReferences lists the distinct sections cited for one framework.
type FrameworkReferences struct {
	Framework string   `json:"framework"`
	Sections  []string `json:"sections"`
	Count     int      `json:"count"`
}

// FrameworkCount is the number of issues citing a framework.
type FrameworkCount struct {
	Framework string `json:"framework"`
	Count     int    `json:"count"`
}

// Statistics breaks a report down by severity and framework.
type Statistics struct {
	Total       int              `json:"total"`
	Critical    int              `json:"critical"`
	Warning     int              `json:"warning"`
	Info        int              `json:"info"`
	ByFramework []FrameworkCount `json:"byFramework"`
}

// RegulatoryReferences groups cited sections by framework, sorted by framework name.
func RegulatoryReferences(r Report) []FrameworkReferences {
	sections := make(map[string]map[string]struct{})
	for _, issue := range r.Issues {
		framework, section, ok := splitRegulation(issue.Regulation)
		if !ok {
			continue
		}
		if sections[framework] == nil {
			sections[framework] = make(map[string]struct{})
		}
		sections[framework][section] = struct{}{}
	}

	out := make([]FrameworkReferences, 0, len(sections))
	for framework, set := range sections {
		list := make([]string, 0, len(set))
		for s := range set {
			list = append(list, s)
		}
		sort.Strings(list)
		out = append(out, FrameworkReferences{Framework: framework, Sections: list, Count: len(list)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Framework < out[j].Framework })
	return out
}

// FilterBySeverity returns the issues with the given severity, in report order.
func FilterBySeverity(r Report, severity Severity) []Issue {
	out := []Issue{}
	for _, issue := range r.Issues {
		if issue.Severity == severity {
			out = append(out, issue)
		}
	}
	return out
}

// ComputeStatistics counts issues by severity and framework.
func ComputeStatistics(r Report) Statistics {
	stats := Statistics{Total: len(r.Issues)}
	counts := make(map[string]int)
	for _, issue := range r.Issues {
		switch issue.Severity {
		case SeverityCritical:
			stats.Critical++
		case SeverityWarning:
			stats.Warning++
		case SeverityInfo:
			stats.Info++
		}
		if framework, _, ok := splitRegulation(issue.Regulation); ok {
			counts[framework]++
		}
	}
	stats.ByFramework = make([]FrameworkCount, 0, len(counts))
	for framework, n := range counts {
		stats.ByFramework = append(stats.ByFramework, FrameworkCount{Framework: framework, Count: n})
	}
	sort.Slice(stats.ByFramework, func(i, j int) bool {
		return stats.ByFramework[i].Framework < stats.ByFramework[j].Framework
	})
	return stats
}

// RemediationGuidance returns the remediation text for an issue, if any.
func RemediationGuidance(r Report, issueID string) (string, bool) {
	for _, issue := range r.Issues {
		if issue.ID == issueID {
			if issue.Remediation == "" {
				return "", false
			}
			return issue.Remediation, true
		}
	}
	return "", false
}

// splitRegulation prefers the structured framework and section, falling back
// to parsing a reference such as "FAR 52.204-21".
func splitRegulation(reg *Regulation) (string, string, bool) {
	if reg == nil {
		return "", "", false
	}
	framework := strings.TrimSpace(reg.Framework)
	section := strings.TrimSpace(reg.Section)
	if framework != "" && section != "" {
		return framework, section, true
	}
	parts := strings.Fields(reg.Reference)
	if len(parts) == 0 {
		return "", "", false
	}
	if framework == "" {
		framework = parts[0]
	}
	if section == "" {
		section = strings.Join(parts[1:], " ")
	}
	return framework, section, true
}
