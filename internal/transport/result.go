package transport

import (
	"bytes"
	"encoding/json"
)

// Result is the tagged outcome of every transport operation: Data is meaningful
// iff Success, Error and Code iff not.
type Result[T any] struct {
	Success bool
	Data    T
	Error   string
	Code    ErrorCode
}

// OK wraps a successful payload.
func OK[T any](data T) Result[T] {
	return Result[T]{Success: true, Data: data}
}

// Fail builds a failed result.
func Fail[T any](code ErrorCode, msg string) Result[T] {
	return Result[T]{Code: code, Error: msg}
}

// Err returns nil for a successful result and an *Error otherwise.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Code: r.Code, Message: r.Error}
}

type successEnvelope[T any] struct {
	Success bool `json:"success"`
	Data    T    `json:"data"`
}

type failureEnvelope struct {
	Success bool      `json:"success"`
	Error   string    `json:"error"`
	Code    ErrorCode `json:"code,omitempty"`
}

// MarshalJSON writes the {success, data?, error?, code?} envelope.
func (r Result[T]) MarshalJSON() ([]byte, error) {
	if r.Success {
		return json.Marshal(successEnvelope[T]{Success: true, Data: r.Data})
	}
	return json.Marshal(failureEnvelope{Success: false, Error: r.Error, Code: r.Code})
}

// UnmarshalJSON reads the envelope written by MarshalJSON.
func (r *Result[T]) UnmarshalJSON(data []byte) error {
	var head struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
		Code    ErrorCode       `json:"code"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return err
	}
	*r = Result[T]{Success: head.Success, Error: head.Error, Code: head.Code}
	if head.Success && len(head.Data) > 0 && !isJSONNull(head.Data) {
		return json.Unmarshal(head.Data, &r.Data)
	}
	return nil
}

type envelopeHead struct {
	Success *bool           `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
	Code    string          `json:"code"`
}

// unwrapEnvelope strips any number of {success:true, data:...} layers added by
// proxies between us and the engine. A {success:false} layer is reported as a
// remote failure.
func unwrapEnvelope(body json.RawMessage) (json.RawMessage, *attemptError) {
	for {
		trimmed := bytes.TrimSpace(body)
		if len(trimmed) == 0 || trimmed[0] != '{' {
			return body, nil
		}
		var head envelopeHead
		if err := json.Unmarshal(trimmed, &head); err != nil || head.Success == nil {
			return body, nil
		}
		if !*head.Success {
			msg := head.Error
			if msg == "" {
				msg = "remote reported failure"
			}
			return nil, &attemptError{code: ParseErrorCode(head.Code), msg: msg, remote: true}
		}
		if head.Data == nil {
			return body, nil
		}
		body = head.Data
	}
}

func isJSONNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
