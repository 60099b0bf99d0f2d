package port

import (
	"context"
	"io"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

// UserDirectory is a read-only lookup of residents and staff.
// GetUser returns (nil, nil) for unknown ids.
type UserDirectory interface {
	GetUser(ctx context.Context, id string) (*entity.User, error)
}

// Notifier dispatches an outbound message rendered from a template
type Notifier interface {
	Notify(ctx context.Context, recipientIDs []string, templateKey string, data map[string]string) error
}

// WorkflowExporter writes definitions to a spreadsheet
type WorkflowExporter interface {
	Export(ctx context.Context, defs []*entity.WorkflowDefinition, w io.Writer) error
}
