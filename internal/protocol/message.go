// Package protocol defines the frames exchanged with the automation server.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Wire message types.
const (
	TypeUnityOperation  = "unity_operation"
	TypeToolCall        = "tool_call"
	TypeAIResponse      = "ai_response"
	TypeError           = "error"
	TypeOperationResult = "operation_result"
	TypePing            = "ping"
	TypeHeartbeat       = "heartbeat"
)

// Kind classifies a decoded message.
type Kind int

const (
	KindStatus Kind = iota
	KindRequest
	KindResult
	KindPing
)

func (k Kind) String() string {
	switch k {
	case KindRequest:
		return "request"
	case KindResult:
		return "result"
	case KindPing:
		return "ping"
	default:
		return "status"
	}
}

// KindOf maps a wire type onto a Kind.
func KindOf(wireType string) Kind {
	switch wireType {
	case TypeUnityOperation, TypeToolCall:
		return KindRequest
	case TypeOperationResult, TypeAIResponse:
		return KindResult
	case TypePing, TypeHeartbeat:
		return KindPing
	default:
		return KindStatus
	}
}

// Message is a decoded inbound frame. It is not modified after Decode.
type Message struct {
	Kind      Kind
	Type      string
	ID        string
	Operation string
	Payload   map[string]any
	Content   string
	Data      json.RawMessage
	Raw       []byte
}

// envelope mirrors the JSON layout of inbound frames.
type envelope struct {
	Type       string          `json:"type"`
	ID         string          `json:"id"`
	Tool       string          `json:"tool,omitempty"`
	Command    string          `json:"command,omitempty"`
	Parameters map[string]any  `json:"parameters,omitempty"`
	Content    json.RawMessage `json:"content,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
}

// DecodeError reports a frame that could not be decoded.
type DecodeError struct {
	Reason string
	Err    error
	Size   int
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode frame (%d bytes): %s: %v", e.Size, e.Reason, e.Err)
	}
	return fmt.Sprintf("decode frame (%d bytes): %s", e.Size, e.Reason)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// OperationIDKey is the parameter some servers use to carry the request id.
const OperationIDKey = "operationId"

// Decode parses one complete frame. Numbers inside parameters are kept as
// json.Number so their literal text survives normalization.
func Decode(frame []byte) (Message, error) {
	var env envelope
	dec := json.NewDecoder(bytes.NewReader(frame))
	dec.UseNumber()
	if err := dec.Decode(&env); err != nil {
		return Message{}, &DecodeError{Reason: "invalid json", Err: err, Size: len(frame)}
	}
	if env.Type == "" {
		return Message{}, &DecodeError{Reason: "missing type", Size: len(frame)}
	}
	msg := Message{
		Kind:      KindOf(env.Type),
		Type:      env.Type,
		ID:        env.ID,
		Operation: env.Command,
		Payload:   env.Parameters,
		Content:   contentText(env.Content),
		Data:      env.Data,
		Raw:       append([]byte(nil), frame...),
	}
	if msg.Operation == "" {
		msg.Operation = env.Tool
	}
	if msg.ID == "" {
		if v, ok := env.Parameters[OperationIDKey].(string); ok && v != "" {
			msg.ID = v
		}
	}
	if msg.ID == "" && msg.Kind == KindRequest {
		msg.ID = uuid.NewString()
	}
	return msg, nil
}

// contentText returns string content verbatim and any other JSON value as
// its compact text.
func contentText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

// ResultData is the data member of a result frame.
type ResultData struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// ResultFrame answers exactly one request.
type ResultFrame struct {
	Type    string     `json:"type"`
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Data    ResultData `json:"data"`
}

// Ping is sent after connecting and as a liveness probe.
type Ping struct {
	Type    string `json:"type"`
	ID      string `json:"id"`
	Content string `json:"content,omitempty"`
}

// Heartbeat is sent periodically while connected.
type Heartbeat struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

// NewPing builds a ping frame with a fresh id.
func NewPing(content string) Ping {
	return Ping{Type: TypePing, ID: uuid.NewString(), Content: content}
}

// NewHeartbeat builds a heartbeat frame stamped with t in unix milliseconds.
func NewHeartbeat(t time.Time) Heartbeat {
	return Heartbeat{Type: TypeHeartbeat, Timestamp: t.UnixMilli()}
}

// Encode marshals any outbound frame.
func Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}
