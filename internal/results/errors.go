package results

import (
	"errors"
	"fmt"
)

// ErrIssueNotFound is returned when no report or source knows an issue id.
var ErrIssueNotFound = errors.New("issue not found")

// FetchError carries the transport code of a failed report fetch.
type FetchError struct {
	Code    string
	Message string
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch results: %s: %s", e.Code, e.Message)
}
