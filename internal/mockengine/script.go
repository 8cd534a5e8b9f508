package mockengine

import "proposal-prepper/internal/results"

// stage is one scripted step of a mock analysis.
type stage struct {
	status   string
	progress float64
	step     string
}

var script = []stage{
	{status: "queued", progress: 0, step: "Queued for analysis"},
	{status: "extracting", progress: 15, step: "Extracting document structure and text"},
	{status: "analyzing", progress: 35, step: "Scanning FAR Part 52 Requirements"},
	{status: "analyzing", progress: 50, step: "Auditing DFARS Supplements"},
	{status: "analyzing", progress: 65, step: "Performing Cybersecurity Audit (NIST)"},
	{status: "analyzing", progress: 80, step: "Cross-referencing Small Business rules"},
	{status: "validating", progress: 90, step: "Synthesizing final compliance report"},
	{status: "completed", progress: 100, step: "Analysis complete"},
}

// DefaultIssues is the finding set every mock report carries unless
// Options.Issues overrides it.
func DefaultIssues() []results.Issue {
	return []results.Issue{
		{
			ID:          "issue-dfars-7012",
			Severity:    results.SeverityCritical,
			Title:       "Safeguarding Covered Defense Information",
			Description: "The proposal does not describe NIST SP 800-171 controls for covered defense information.",
			Regulation:  &results.Regulation{Framework: "DFARS", Section: "252.204-7012", Reference: "DFARS 252.204-7012"},
			Location:    &results.Location{Page: 7, Section: "Security Plan"},
			Remediation: "Add a system security plan summary and the date of the latest SPRS assessment.",
		},
		{
			ID:          "issue-far-6302",
			Severity:    results.SeverityWarning,
			Title:       "Only One Responsible Source",
			Description: "Market research documentation could be more comprehensive.",
			Regulation:  &results.Regulation{Framework: "FAR", Section: "6.302-1", Reference: "FAR 6.302-1"},
			Location:    &results.Location{Page: 2, Section: "Justification"},
			Remediation: "Cite the market research performed and the sources contacted.",
		},
		{
			ID:          "issue-far-52219",
			Severity:    results.SeverityWarning,
			Title:       "Small Business Subcontracting Plan",
			Description: "Subcontracting goals are missing for small disadvantaged businesses.",
			Regulation:  &results.Regulation{Framework: "FAR", Section: "52.219-9", Reference: "FAR 52.219-9"},
			Location:    &results.Location{Page: 11, Section: "Subcontracting"},
			Remediation: "State percentage goals for each small business category.",
		},
		{
			ID:          "issue-far-6303",
			Severity:    results.SeverityInfo,
			Title:       "Justification Content",
			Description: "Consider adding more detail on technical specifications.",
			Regulation:  &results.Regulation{Framework: "FAR", Section: "6.303", Reference: "FAR 6.303"},
			Location:    &results.Location{Page: 3, Section: "Technical Requirements"},
		},
	}
}
