package dispatcher

import (
	"context"

	"github.com/garyjia/barangay-docflow/internal/domain/event"
)

// Handler reacts to one domain event
type Handler func(ctx context.Context, evt *event.Event) error

type subscription struct {
	name    string
	handler Handler
}

// laneKey groups events whose handlers must run in publish order.
// Events of one request share a lane, then events of one document type.
// Events with neither run unordered.
func laneKey(evt *event.Event) string {
	switch {
	case evt.RequestID != "":
		return "request:" + evt.RequestID
	case evt.DocumentTypeID != "":
		return "document_type:" + evt.DocumentTypeID
	default:
		return ""
	}
}
