package transport

import (
	"encoding/json"
	"errors"
	"strings"
)

// MessageType names a push channel message kind.
type MessageType string

const (
	MessageUploadProgress   MessageType = "upload_progress"
	MessageAnalysisProgress MessageType = "analysis_progress"
	MessageAnalysisComplete MessageType = "analysis_complete"
	MessageError            MessageType = "error"
)

// Message is the push envelope {type, sessionId, data}.
type Message struct {
	Type      MessageType     `json:"type"`
	SessionID string          `json:"sessionId"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ProgressData is the payload of analysis_progress and upload_progress.
type ProgressData struct {
	Progress    *float64 `json:"progress,omitempty"`
	Status      string   `json:"status,omitempty"`
	CurrentStep string   `json:"currentStep,omitempty"`
}

// ErrorData is the payload of error messages.
type ErrorData struct {
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

var errMissingType = errors.New("message type is required")

// EncodeMessage returns the JSON representation of a message.
func EncodeMessage(msg Message) ([]byte, error) {
	return json.Marshal(msg)
}

// DecodeMessage parses a JSON payload into a Message.
func DecodeMessage(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	msg.Type = MessageType(strings.TrimSpace(string(msg.Type)))
	if msg.Type == "" {
		return Message{}, errMissingType
	}
	return msg, nil
}

// Progress decodes the data as ProgressData; missing or malformed data yields zero.
func (m Message) Progress() ProgressData {
	var data ProgressData
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &data)
	}
	return data
}

// Failure decodes the data as ErrorData; missing or malformed data yields zero.
func (m Message) Failure() ErrorData {
	var data ErrorData
	if len(m.Data) > 0 {
		_ = json.Unmarshal(m.Data, &data)
	}
	return data
}
