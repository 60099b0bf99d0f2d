package port

import (
	"context"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

// DefinitionStore holds one ordered step list per document type.
// Get returns the default template when no record exists.
// Put replaces the whole definition when def.Version still equals expectedVersion
// and advances def.Version; a stale version yields workflow.ErrConflict.
type DefinitionStore interface {
	Get(ctx context.Context, documentTypeID string) (*entity.WorkflowDefinition, error)
	Put(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error
	List(ctx context.Context) ([]string, error)
}

// FallbackCache mirrors definitions locally for use when the durable store is unreachable
type FallbackCache interface {
	DefinitionStore

	// Mirror writes the definition as-is, keeping the durable version number
	Mirror(ctx context.Context, def *entity.WorkflowDefinition) error
}

// AssignmentRepository persists materialized approver assignment rows
type AssignmentRepository interface {
	ListByDocumentType(ctx context.Context, documentTypeID string) ([]*entity.ApproverAssignment, error)
	ListByApprover(ctx context.Context, approverID string) ([]*entity.ApproverAssignment, error)
	Insert(ctx context.Context, a *entity.ApproverAssignment) error
	Delete(ctx context.Context, documentTypeID, stepID, approverID string) error
	Count(ctx context.Context) (int, error)
}

// RequestFilter narrows ListRequests results
type RequestFilter struct {
	DocumentTypeID string
	Limit          int
	Offset         int
}

// RequestRepository persists document requests and their history.
// GetByID returns (nil, nil) when the request does not exist.
type RequestRepository interface {
	Create(ctx context.Context, req *entity.DocumentRequest) error
	GetByID(ctx context.Context, id string) (*entity.DocumentRequest, error)
	List(ctx context.Context, filter RequestFilter) ([]*entity.DocumentRequest, error)

	// Update writes the request row when the stored version equals expectedVersion
	// and appends the given history entries.
	Update(ctx context.Context, req *entity.DocumentRequest, expectedVersion int64, appended []entity.HistoryEntry) error
}

// NotificationLog records which step entries were already notified
type NotificationLog interface {
	// MarkSent records the key and reports false if it was already present
	MarkSent(ctx context.Context, key string) (bool, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
