package analyses

import (
	"errors"
	"strings"
)

// Status is the lifecycle state of a session.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusExtracting Status = "extracting"
	StatusAnalyzing  Status = "analyzing"
	StatusValidating Status = "validating"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Stage indexes shown to callers. Failed sessions report StageFailed.
const (
	StageFailed   = -1
	StageComplete = 6
)

// ParseStatus normalizes and validates a status string.
func ParseStatus(raw string) (Status, error) {
	normalized := strings.ToLower(strings.TrimSpace(raw))
	if normalized == "" {
		return "", errors.New("status is required")
	}
	switch s := Status(normalized); s {
	case StatusQueued, StatusExtracting, StatusAnalyzing, StatusValidating, StatusCompleted, StatusFailed:
		return s, nil
	default:
		return "", errors.New("status is invalid")
	}
}

// IsTerminal reports whether no further transitions are possible.
func (s Status) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

func (s Status) order() int {
	switch s {
	case StatusQueued:
		return 0
	case StatusExtracting:
		return 1
	case StatusAnalyzing:
		return 2
	case StatusValidating:
		return 3
	case StatusCompleted, StatusFailed:
		return 4
	default:
		return -1
	}
}

// StageIndex maps a session snapshot to a display stage. Status decides the
// stage; step text and progress only refine it while analyzing.
func StageIndex(status Status, progress int, currentStep string) int {
	switch status {
	case StatusFailed:
		return StageFailed
	case StatusCompleted:
		return StageComplete
	case StatusQueued:
		return 0
	case StatusExtracting:
		return 1
	case StatusValidating:
		return 6
	case StatusAnalyzing:
		switch {
		case strings.Contains(currentStep, "DFARS"):
			return 3
		case containsAny(currentStep, "Security", "NIST", "Cyber"):
			return 4
		case containsAny(currentStep, "Small Business", "Policy"):
			return 5
		}
		switch {
		case progress >= 80:
			return 5
		case progress >= 65:
			return 4
		case progress >= 50:
			return 3
		}
		return 2
	default:
		return 0
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
