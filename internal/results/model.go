package results

import "time"

// Severity ranks a compliance issue.
type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityInfo     Severity = "info"
)

// ComplianceStatus is the overall verdict of a report.
type ComplianceStatus string

const (
	StatusPass    ComplianceStatus = "pass"
	StatusFail    ComplianceStatus = "fail"
	StatusWarning ComplianceStatus = "warning"
)

// Regulation points an issue at a FAR or DFARS clause.
type Regulation struct {
	Framework string `json:"framework"`
	Section   string `json:"section"`
	Reference string `json:"reference"`
}

// Location is where in the proposal an issue was found.
type Location struct {
	Page    int    `json:"page"`
	Section string `json:"section"`
	Text    string `json:"text,omitempty"`
}

// Issue is one compliance finding.
type Issue struct {
	ID          string      `json:"id"`
	Severity    Severity    `json:"severity"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Regulation  *Regulation `json:"regulation,omitempty"`
	Location    *Location   `json:"location,omitempty"`
	Remediation string      `json:"remediation,omitempty"`
}

// Summary counts issues by severity.
type Summary struct {
	TotalIssues    int `json:"totalIssues"`
	CriticalIssues int `json:"criticalIssues"`
	WarningIssues  int `json:"warningIssues"`
	InfoIssues     int `json:"infoIssues"`
}

// Report is the final result of a completed analysis.
type Report struct {
	ID           string           `json:"id"`
	ProposalID   string           `json:"proposalId"`
	Status       ComplianceStatus `json:"status"`
	Issues       []Issue          `json:"issues"`
	Summary      Summary          `json:"summary"`
	OverallScore int              `json:"overallScore"`
	RulesChecked []string         `json:"rulesChecked,omitempty"`
	GeneratedAt  time.Time        `json:"generatedAt"`
}
