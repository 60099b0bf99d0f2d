package workflow

import (
	"context"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

// Engine derives and advances the position of a document request within
// its document type's step list. It never persists; callers store Outcome.Request
// and publish Outcome.Events after a successful commit.
type Engine interface {
	// Start prepares a freshly created request. An empty step list completes it immediately.
	Start(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest) (*Outcome, error)

	// Advance enters the first step or moves past an auto step, cascading through auto steps.
	// It is a no-op while the request waits on an approval step.
	Advance(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*Outcome, error)

	// Approve records the approval of the current gated step and cascades forward
	Approve(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*Outcome, error)

	// Reject moves the request from a gated step to REJECTED
	Reject(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor, reason string) (*Outcome, error)

	// Describe reports the current position and the actions the actor may take
	Describe(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*Status, error)
}

// Outcome is the result of one engine operation.
// Request is a modified copy; the input request is never mutated.
type Outcome struct {
	Request  *entity.DocumentRequest
	Appended []entity.HistoryEntry
	Events   []*event.Event
	Changed  bool
}

// Status describes where a request stands in its workflow
type Status struct {
	State            domainwf.State     `json:"state"`
	StepID           string             `json:"stepId,omitempty"`
	StatusKey        string             `json:"statusKey"`
	StepName         string             `json:"stepName,omitempty"`
	Position         int                `json:"position"`
	TotalSteps       int                `json:"totalSteps"`
	AwaitingApproval bool               `json:"awaitingApproval"`
	Approvers        []string           `json:"approvers,omitempty"`
	Permitted        []domainwf.Trigger `json:"permitted"`
	Dangling         bool               `json:"dangling"`
}
