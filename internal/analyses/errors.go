package analyses

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrNotTerminal     = errors.New("session not terminal")
	ErrRetryNotAllowed = errors.New("retry not allowed")
	ErrSessionExists   = errors.New("session already exists")
)

const (
	ErrorCodeValidation = "VALIDATION_FAILED"
	ErrorCodeCancelled  = "CANCELLED"
	ErrorCodeNotFound   = "NOT_FOUND"
	ErrorCodeConflict   = "CONFLICT"
	ErrorCodeInternal   = "INTERNAL_ERROR"
)

const (
	msgProposalRequired   = "Proposal ID is required for analysis"
	msgProposalTooLong    = "Proposal ID is too long"
	msgServiceUnavailable = "Analysis service is not available"
	msgStartFailed        = "Failed to start analysis"
	msgUploadFailed       = "Upload failed"
	msgSessionNotFound    = "Session not found"
	msgRetryOnlyFailed    = "Can only retry failed analyses"
	msgRetryInProgress    = "Retry already in progress"
	msgCancelledByUser    = "Analysis cancelled by user"
	msgCancelledStep      = "Analysis cancelled"
	msgAnalysisFailed     = "Analysis failed"
	msgAnalysisTimeout    = "Analysis timeout"
)
