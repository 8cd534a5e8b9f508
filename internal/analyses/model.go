package analyses

import (
	"io"
	"time"

	"proposal-prepper/internal/results"
)

// Session is the local view of one remote analysis job.
type Session struct {
	ID                  string     `json:"id"`
	ProposalID          string     `json:"proposalId"`
	DocumentID          string     `json:"documentId,omitempty"`
	Filename            string     `json:"filename,omitempty"`
	S3Key               string     `json:"s3Key,omitempty"`
	Frameworks          []string   `json:"frameworks,omitempty"`
	Status              Status     `json:"status"`
	Progress            int        `json:"progress"`
	CurrentStep         string     `json:"currentStep"`
	Stage               int        `json:"stage"`
	StartedAt           time.Time  `json:"startedAt"`
	CompletedAt         *time.Time `json:"completedAt,omitempty"`
	EstimatedCompletion *time.Time `json:"estimatedCompletion,omitempty"`
	ErrorMessage        string     `json:"errorMessage,omitempty"`
	ErrorCode           string     `json:"errorCode,omitempty"`
}

// AnalysisRequest describes a job to submit. Upload, when set, is sent to
// the engine first and its document id replaces DocumentID.
type AnalysisRequest struct {
	ProposalID string       `json:"proposalId"`
	DocumentID string       `json:"documentId,omitempty"`
	Filename   string       `json:"filename,omitempty"`
	S3Key      string       `json:"s3Key,omitempty"`
	Frameworks []string     `json:"frameworks,omitempty"`
	Upload     *UploadInput `json:"-"`
}

// UploadInput is a document streamed to the engine before the job starts.
type UploadInput struct {
	Filename   string
	Reader     io.Reader
	Size       int64
	OnProgress func(int)
}

// ValidationResult is the outcome of ValidateAnalysisRequest.
type ValidationResult struct {
	IsValid bool   `json:"isValid"`
	Error   string `json:"error,omitempty"`
}

// StartResult is returned by StartAnalysis.
type StartResult struct {
	Success   bool   `json:"success"`
	SessionID string `json:"sessionId"`
	Error     string `json:"error,omitempty"`
	Code      string `json:"code,omitempty"`
}

// RetryResult is returned by RetryAnalysis.
type RetryResult struct {
	Success      bool   `json:"success"`
	NewSessionID string `json:"newSessionId,omitempty"`
	Error        string `json:"error,omitempty"`
	Code         string `json:"code,omitempty"`
}

// Update is one observation of a session from any source. Empty fields
// leave the session unchanged.
type Update struct {
	SessionID    string
	Status       Status
	Progress     *int
	CurrentStep  string
	ErrorMessage string
	ErrorCode    string
	Source       string
}

// Update sources.
const (
	SourcePush    = "push"
	SourcePoll    = "poll"
	SourceStatus  = "status"
	SourceStart   = "start"
	SourceCancel  = "cancel"
	SourceTimeout = "timeout"
)

// EventHandlers are the lifecycle callbacks. Exactly one fires per applied
// update. Nil handlers are skipped.
type EventHandlers struct {
	OnProgress func(session Session)
	OnComplete func(session Session, report results.Report)
	OnError    func(session Session, message, code string)
}

// engineSession is the engine's session payload.
type engineSession struct {
	ID                  string  `json:"id"`
	ProposalID          string  `json:"proposalId"`
	Status              string  `json:"status"`
	Progress            float64 `json:"progress"`
	StartedAt           string  `json:"startedAt"`
	CompletedAt         string  `json:"completedAt,omitempty"`
	EstimatedCompletion string  `json:"estimatedCompletion,omitempty"`
	CurrentStep         string  `json:"currentStep"`
	ErrorMessage        string  `json:"errorMessage,omitempty"`
}

func (e engineSession) update(source string) Update {
	status, _ := ParseStatus(e.Status)
	progress := int(e.Progress + 0.5)
	u := Update{
		SessionID:   e.ID,
		Status:      status,
		Progress:    &progress,
		CurrentStep: e.CurrentStep,
		Source:      source,
	}
	if status == StatusFailed {
		u.ErrorMessage = e.ErrorMessage
	}
	return u
}

func parseTime(raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
