package analyses

import (
	"testing"
	"time"
)

func intPtr(v int) *int { return &v }

var reconcileNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func runningSession() Session {
	return Session{
		ID:          "s1",
		ProposalID:  "prop-1",
		Status:      StatusAnalyzing,
		Progress:    40,
		CurrentStep: "Scanning FAR Part 52 Requirements",
		Stage:       2,
		StartedAt:   reconcileNow.Add(-time.Minute),
	}
}

func TestApplyUpdateIgnoresTerminalSessions(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusFailed} {
		cur := runningSession()
		cur.Status = status
		next, outcome := applyUpdate(cur, Update{Status: StatusAnalyzing, Progress: intPtr(90)}, reconcileNow)
		if outcome != OutcomeIgnored || next.Progress != cur.Progress || next.Status != status {
			t.Fatalf("terminal %s mutated: %#v (%s)", status, next, outcome)
		}
	}
}

func TestApplyUpdateIgnoresBackwardStatus(t *testing.T) {
	next, outcome := applyUpdate(runningSession(), Update{Status: StatusExtracting, Progress: intPtr(70), CurrentStep: "stale"}, reconcileNow)
	if outcome != OutcomeIgnored {
		t.Fatalf("expected stale update ignored, got %s", outcome)
	}
	if next.CurrentStep == "stale" || next.Progress != 40 {
		t.Fatalf("stale update leaked into session %#v", next)
	}
}

func TestApplyUpdateProgressNeverRegresses(t *testing.T) {
	tests := []struct {
		name     string
		progress int
		want     int
	}{
		{name: "lower", progress: 10, want: 40},
		{name: "higher", progress: 55, want: 55},
		{name: "negative", progress: -5, want: 40},
		{name: "above range", progress: 250, want: 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, _ := applyUpdate(runningSession(), Update{Progress: intPtr(tt.progress)}, reconcileNow)
			if next.Progress != tt.want {
				t.Fatalf("progress = %d, want %d", next.Progress, tt.want)
			}
		})
	}
}

func TestApplyUpdateForwardSkip(t *testing.T) {
	cur := runningSession()
	cur.Status = StatusQueued
	cur.Stage = 0
	next, outcome := applyUpdate(cur, Update{Status: StatusValidating, Progress: intPtr(92)}, reconcileNow)
	if outcome != OutcomeProgress || next.Status != StatusValidating || next.Stage != 6 {
		t.Fatalf("unexpected forward skip %#v (%s)", next, outcome)
	}
}

func TestApplyUpdateCompleted(t *testing.T) {
	next, outcome := applyUpdate(runningSession(), Update{Status: StatusCompleted}, reconcileNow)
	if outcome != OutcomeCompleted {
		t.Fatalf("expected completed outcome, got %s", outcome)
	}
	if next.Progress != 100 || next.Stage != StageComplete {
		t.Fatalf("unexpected completed session %#v", next)
	}
	if next.CompletedAt == nil || !next.CompletedAt.Equal(reconcileNow) {
		t.Fatalf("expected completion time, got %v", next.CompletedAt)
	}
}

func TestApplyUpdateFailed(t *testing.T) {
	next, outcome := applyUpdate(runningSession(), Update{Status: StatusFailed, ErrorCode: "HTTP_5XX"}, reconcileNow)
	if outcome != OutcomeFailed {
		t.Fatalf("expected failed outcome, got %s", outcome)
	}
	if next.ErrorMessage != "Analysis failed" || next.ErrorCode != "HTTP_5XX" || next.Stage != StageFailed {
		t.Fatalf("unexpected failed session %#v", next)
	}
	if next.Progress != 40 {
		t.Fatalf("failure must keep progress, got %d", next.Progress)
	}
}

func TestApplyUpdateNoopIsIgnored(t *testing.T) {
	cur := runningSession()
	_, outcome := applyUpdate(cur, Update{Status: cur.Status, Progress: intPtr(cur.Progress), CurrentStep: cur.CurrentStep}, reconcileNow)
	if outcome != OutcomeIgnored {
		t.Fatalf("expected no-op ignored, got %s", outcome)
	}
}

func TestApplyUpdateStageNeverRegresses(t *testing.T) {
	cur := runningSession()
	next, _ := applyUpdate(cur, Update{CurrentStep: "Cross-referencing Small Business rules"}, reconcileNow)
	if next.Stage != 5 {
		t.Fatalf("expected stage 5, got %d", next.Stage)
	}
	next, _ = applyUpdate(next, Update{CurrentStep: "Auditing DFARS Supplements", Progress: intPtr(45)}, reconcileNow)
	if next.Stage != 5 {
		t.Fatalf("stage regressed to %d", next.Stage)
	}
}

func TestStageIndex(t *testing.T) {
	tests := []struct {
		status   Status
		progress int
		step     string
		want     int
	}{
		{StatusFailed, 50, "", -1},
		{StatusCompleted, 100, "", 6},
		{StatusQueued, 0, "", 0},
		{StatusExtracting, 10, "", 1},
		{StatusValidating, 90, "", 6},
		{StatusAnalyzing, 10, "Auditing DFARS Supplements", 3},
		{StatusAnalyzing, 10, "Performing Cybersecurity Audit (NIST)", 4},
		{StatusAnalyzing, 10, "Security review", 4},
		{StatusAnalyzing, 10, "Small Business rules", 5},
		{StatusAnalyzing, 10, "Policy Check", 5},
		{StatusAnalyzing, 85, "", 5},
		{StatusAnalyzing, 70, "", 4},
		{StatusAnalyzing, 50, "", 3},
		{StatusAnalyzing, 49, "Scanning FAR", 2},
		{Status("unknown"), 0, "", 0},
	}
	for _, tt := range tests {
		if got := StageIndex(tt.status, tt.progress, tt.step); got != tt.want {
			t.Fatalf("StageIndex(%s, %d, %q) = %d, want %d", tt.status, tt.progress, tt.step, got, tt.want)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(" Analyzing "); err != nil || s != StatusAnalyzing {
		t.Fatalf("unexpected parse %q %v", s, err)
	}
	if _, err := ParseStatus(""); err == nil {
		t.Fatalf("expected error for empty status")
	}
	if _, err := ParseStatus("paused"); err == nil {
		t.Fatalf("expected error for unknown status")
	}
}
