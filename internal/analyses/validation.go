package analyses

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// DefaultFrameworks are submitted when a request names none.
var DefaultFrameworks = []string{"FAR", "DFARS"}

var requestValidate = validator.New()

// requestRules carries the fields of an AnalysisRequest that have rules.
type requestRules struct {
	ProposalID    string   `validate:"required"`
	RawProposalID string   `validate:"max=128"`
	Frameworks    []string `validate:"dive,oneof=FAR DFARS"`
}

// ValidateAnalysisRequest checks a request without side effects.
func ValidateAnalysisRequest(req AnalysisRequest) ValidationResult {
	err := requestValidate.Struct(requestRules{
		ProposalID:    strings.TrimSpace(req.ProposalID),
		RawProposalID: req.ProposalID,
		Frameworks:    req.Frameworks,
	})
	if err == nil {
		return ValidationResult{IsValid: true}
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return ValidationResult{Error: err.Error()}
	}

	var missing, tooLong bool
	var invalid []string
	for _, fe := range fieldErrs {
		switch fe.StructField() {
		case "ProposalID":
			missing = true
		case "RawProposalID":
			tooLong = true
		default:
			invalid = append(invalid, fmt.Sprint(fe.Value()))
		}
	}
	switch {
	case missing:
		return ValidationResult{Error: msgProposalRequired}
	case tooLong:
		return ValidationResult{Error: msgProposalTooLong}
	default:
		return ValidationResult{Error: "Invalid frameworks: " + strings.Join(invalid, ", ")}
	}
}
