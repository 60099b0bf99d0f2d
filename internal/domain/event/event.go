package event

import (
	"time"

	"github.com/google/uuid"
)

// Payload keys shared by publishers and handlers
const (
	KeyStepID           = "step_id"
	KeyStatusKey        = "status_key"
	KeyStepName         = "step_name"
	KeyRequiresApproval = "requires_approval"
	KeyApprovers        = "approvers"
	KeyRequesterID      = "requester_id"
	KeyHistorySeq       = "history_seq"
	KeyActorID          = "actor_id"
	KeyOperation        = "operation"
	KeyVersion          = "version"
	KeyReason           = "reason"
)

// Event is a fact published after a workflow change commits.
// Events emitted by one engine call share a CorrelationID.
type Event struct {
	ID             string                 `json:"id"`
	Type           Type                   `json:"type"`
	DocumentTypeID string                 `json:"document_type_id"`
	RequestID      string                 `json:"request_id,omitempty"`
	Payload        map[string]interface{} `json:"payload"`
	Timestamp      time.Time              `json:"timestamp"`
	CorrelationID  string                 `json:"correlation_id"`
}

// NewEvent stamps a fresh id, correlation id and UTC timestamp. A nil payload becomes empty.
func NewEvent(eventType Type, documentTypeID, requestID string, payload map[string]interface{}) *Event {
	if payload == nil {
		payload = make(map[string]interface{})
	}
	return &Event{
		ID:             uuid.NewString(),
		Type:           eventType,
		DocumentTypeID: documentTypeID,
		RequestID:      requestID,
		Payload:        payload,
		Timestamp:      time.Now().UTC(),
		CorrelationID:  uuid.NewString(),
	}
}

func payloadAs[T any](e *Event, key string) (T, bool) {
	v, ok := e.Payload[key].(T)
	return v, ok
}

func (e *Event) GetPayloadString(key string) string {
	s, _ := payloadAs[string](e, key)
	return s
}

func (e *Event) GetPayloadBool(key string) bool {
	b, _ := payloadAs[bool](e, key)
	return b
}

// GetPayloadInt accepts the integer shapes a payload holds in memory and
// the float64 it holds after a JSON round trip
func (e *Event) GetPayloadInt(key string) int64 {
	switch n := e.Payload[key].(type) {
	case int:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}

// GetPayloadStrings returns a copy; non-string elements of decoded lists are dropped
func (e *Event) GetPayloadStrings(key string) []string {
	if ss, ok := payloadAs[[]string](e, key); ok {
		return append([]string(nil), ss...)
	}
	items, ok := payloadAs[[]interface{}](e, key)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, isStr := item.(string); isStr {
			out = append(out, s)
		}
	}
	return out
}
