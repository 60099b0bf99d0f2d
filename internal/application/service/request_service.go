package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/barangay-docflow/internal/application/dispatcher"
	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/application/workflow"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
	"github.com/garyjia/barangay-docflow/internal/metrics"
	"github.com/garyjia/barangay-docflow/pkg/utils"
)

// CreateRequestInput is the input for a new document request
type CreateRequestInput struct {
	DocumentTypeID string `json:"documentTypeId" validate:"required,max=64"`
	RequesterID    string `json:"requesterId" validate:"required,max=128"`
	Reference      string `json:"reference" validate:"max=500"`
}

// RequestView is a request together with its derived workflow status
type RequestView struct {
	*entity.DocumentRequest
	Status *workflow.Status `json:"status"`
}

// RequestService wraps the status engine with persistence
type RequestService interface {
	CreateRequest(ctx context.Context, in CreateRequestInput) (*RequestView, error)
	GetRequest(ctx context.Context, id string) (*RequestView, error)
	ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.DocumentRequest, error)
	AdvanceRequest(ctx context.Context, id string) (*RequestView, error)
	ApproveRequest(ctx context.Context, id string) (*RequestView, error)
	RejectRequest(ctx context.Context, id, reason string) (*RequestView, error)
}

type requestServiceImpl struct {
	requests   port.RequestRepository
	workflows  WorkflowConfigService
	engine     workflow.Engine
	directory  port.UserDirectory
	txManager  port.TransactionManager
	dispatcher dispatcher.Dispatcher
	validate   *validator.Validate
	logger     Logger
}

// NewRequestService creates a new RequestService. dispatcher may be nil.
func NewRequestService(
	requests port.RequestRepository,
	workflows WorkflowConfigService,
	engine workflow.Engine,
	directory port.UserDirectory,
	txManager port.TransactionManager,
	d dispatcher.Dispatcher,
	logger Logger,
) RequestService {
	return &requestServiceImpl{
		requests:   requests,
		workflows:  workflows,
		engine:     engine,
		directory:  directory,
		txManager:  txManager,
		dispatcher: d,
		validate:   utils.NewValidator(),
		logger:     logger,
	}
}

// CreateRequest stores a new request; an empty step list completes it immediately
func (s *requestServiceImpl) CreateRequest(ctx context.Context, in CreateRequestInput) (*RequestView, error) {
	in.DocumentTypeID = utils.SanitizeString(in.DocumentTypeID)
	in.RequesterID = utils.SanitizeString(in.RequesterID)
	in.Reference = utils.SanitizeString(in.Reference)
	if err := s.validate.Struct(in); err != nil {
		return nil, fmt.Errorf("create request: %w", toValidationError(err))
	}

	requester, err := s.directory.GetUser(ctx, in.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("create request: look up requester: %w", err)
	}
	if requester == nil {
		return nil, fmt.Errorf("create request: %w", domainwf.NewValidationError("requesterId", domainwf.RuleUnknownUser,
			fmt.Sprintf("unknown requester %q", in.RequesterID)))
	}

	def, err := s.workflows.GetWorkflow(ctx, in.DocumentTypeID)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	now := time.Now().UTC()
	req := &entity.DocumentRequest{
		ID:             uuid.NewString(),
		DocumentTypeID: in.DocumentTypeID,
		RequesterID:    in.RequesterID,
		Reference:      in.Reference,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	out, err := s.engine.Start(ctx, def, req)
	if err != nil {
		metrics.RecordTransition("create", err)
		return nil, fmt.Errorf("create request: %w", err)
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		return s.requests.Create(txCtx, out.Request)
	})
	metrics.RecordTransition("create", err)
	if err != nil {
		s.logger.Error("Failed to store request", "request_id", req.ID, "error", err)
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.publish(ctx, out)
	s.logger.Info("Document request created",
		"request_id", req.ID,
		"document_type_id", req.DocumentTypeID,
		"requester_id", req.RequesterID,
		"status_key", out.Request.CurrentStatusKey,
	)
	return s.view(ctx, def, out.Request)
}

// GetRequest returns a request with its derived status
func (s *requestServiceImpl) GetRequest(ctx context.Context, id string) (*RequestView, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	def, err := s.workflows.GetWorkflow(ctx, req.DocumentTypeID)
	if err != nil {
		return nil, fmt.Errorf("get request %s: %w", id, err)
	}
	return s.view(ctx, def, req)
}

// ListRequests lists requests, optionally filtered by document type
func (s *requestServiceImpl) ListRequests(ctx context.Context, filter port.RequestFilter) ([]*entity.DocumentRequest, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	reqs, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list requests: %w", err)
	}
	return reqs, nil
}

// AdvanceRequest moves a request forward through auto steps
func (s *requestServiceImpl) AdvanceRequest(ctx context.Context, id string) (*RequestView, error) {
	return s.transition(ctx, id, "advance", func(def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*workflow.Outcome, error) {
		return s.engine.Advance(ctx, def, req, actor)
	})
}

// ApproveRequest approves the current gated step
func (s *requestServiceImpl) ApproveRequest(ctx context.Context, id string) (*RequestView, error) {
	return s.transition(ctx, id, "approve", func(def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*workflow.Outcome, error) {
		return s.engine.Approve(ctx, def, req, actor)
	})
}

// RejectRequest rejects the request at its current gated step
func (s *requestServiceImpl) RejectRequest(ctx context.Context, id, reason string) (*RequestView, error) {
	return s.transition(ctx, id, "reject", func(def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*workflow.Outcome, error) {
		return s.engine.Reject(ctx, def, req, actor, reason)
	})
}

type transitionFunc func(def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*workflow.Outcome, error)

// transition evaluates one engine operation against the current definition
// and stores the result in a single transaction
func (s *requestServiceImpl) transition(ctx context.Context, id, action string, fn transitionFunc) (*RequestView, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	def, err := s.workflows.GetWorkflow(ctx, req.DocumentTypeID)
	if err != nil {
		return nil, fmt.Errorf("%s request %s: %w", action, id, err)
	}

	actor := entity.ActorFromContext(ctx)
	out, err := fn(def, req, actor)
	if err != nil {
		metrics.RecordTransition(action, err)
		s.logger.Info("Request transition refused",
			"request_id", id,
			"action", action,
			"actor_id", actor.ID,
			"reason", err.Error(),
		)
		return nil, err
	}

	if out.Changed {
		err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
			return s.requests.Update(txCtx, out.Request, req.Version, out.Appended)
		})
		if err != nil {
			metrics.RecordTransition(action, err)
			s.logger.Error("Failed to store request transition", "request_id", id, "action", action, "error", err)
			return nil, fmt.Errorf("%s request %s: %w", action, id, err)
		}
		s.publish(ctx, out)
	}

	metrics.RecordTransition(action, nil)
	return s.view(ctx, def, out.Request)
}

func (s *requestServiceImpl) load(ctx context.Context, id string) (*entity.DocumentRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("load request %s: %w", id, err)
	}
	if req == nil {
		return nil, fmt.Errorf("%w: %s", domainwf.ErrRequestNotFound, id)
	}
	return req, nil
}

func (s *requestServiceImpl) publish(ctx context.Context, out *workflow.Outcome) {
	if s.dispatcher == nil {
		return
	}
	for _, evt := range out.Events {
		s.dispatcher.DispatchAsync(ctx, evt)
	}
}

func (s *requestServiceImpl) view(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest) (*RequestView, error) {
	status, err := s.engine.Describe(ctx, def, req, entity.ActorFromContext(ctx))
	if err != nil {
		return nil, err
	}
	return &RequestView{DocumentRequest: req, Status: status}, nil
}
