package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
)

// ErrorCode is the closed set of failure codes surfaced by the transport layer.
type ErrorCode string

const (
	CodeNetwork            ErrorCode = "NETWORK_ERROR"
	CodeTimeout            ErrorCode = "TIMEOUT_ERROR"
	CodeHTTP4xx            ErrorCode = "HTTP_4XX"
	CodeHTTP5xx            ErrorCode = "HTTP_5XX"
	CodeParse              ErrorCode = "PARSE_ERROR"
	CodeValidation         ErrorCode = "VALIDATION_FAILED"
	CodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Retryable reports whether a failure with this code may succeed on a later attempt.
func (c ErrorCode) Retryable() bool {
	switch c {
	case CodeNetwork, CodeTimeout, CodeHTTP5xx, CodeParse, CodeServiceUnavailable:
		return true
	default:
		return false
	}
}

// ParseErrorCode maps a remote code onto the closed set. Anything unknown is
// treated as a client-side refusal.
func ParseErrorCode(raw string) ErrorCode {
	code := ErrorCode(strings.ToUpper(strings.TrimSpace(raw)))
	switch code {
	case CodeNetwork, CodeTimeout, CodeHTTP4xx, CodeHTTP5xx, CodeParse, CodeValidation, CodeServiceUnavailable:
		return code
	default:
		return CodeHTTP4xx
	}
}

// Error is the error form of a failed Result.
type Error struct {
	Code    ErrorCode
	Message string
}

func (e *Error) Error() string {
	if e.Message == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Message
}

// attemptError is the outcome of one failed HTTP attempt.
type attemptError struct {
	code   ErrorCode
	msg    string
	status int
	// remote marks a definitive {success:false} answer; never retried.
	remote bool
}

func (e *attemptError) retryable() bool {
	return !e.remote && e.code.Retryable()
}

func (e *attemptError) Error() string { return e.msg }

func codeForStatus(status int) ErrorCode {
	switch {
	case status >= 400 && status < 500:
		return CodeHTTP4xx
	case status >= 500:
		return CodeHTTP5xx
	default:
		return CodeNetwork
	}
}

func statusError(status int, detail string) *attemptError {
	msg := fmt.Sprintf("HTTP %d: %s", status, http.StatusText(status))
	if detail = strings.TrimSpace(detail); detail != "" {
		msg += " (" + detail + ")"
	}
	return &attemptError{code: codeForStatus(status), msg: msg, status: status}
}

// classifyError maps a client.Do or body read failure onto an error code.
func classifyError(err error) *attemptError {
	if err == nil {
		return nil
	}
	code := CodeNetwork
	var netErr net.Error
	var dnsErr *net.DNSError
	switch {
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		code = CodeTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		code = CodeTimeout
	case errors.Is(err, syscall.ECONNREFUSED), errors.As(err, &dnsErr):
		code = CodeServiceUnavailable
	case errors.Is(err, syscall.ECONNRESET):
		code = CodeNetwork
	}
	return &attemptError{code: code, msg: err.Error()}
}
