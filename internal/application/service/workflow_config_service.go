package service

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/garyjia/barangay-docflow/internal/application/dispatcher"
	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
	"github.com/garyjia/barangay-docflow/internal/metrics"
	"github.com/garyjia/barangay-docflow/pkg/utils"
)

// Direction of a MoveStep operation
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
)

// Mutation operation names used in events, logs and metrics
const (
	OpAddStep         = "add_step"
	OpUpdateStep      = "update_step"
	OpRemoveStep      = "remove_step"
	OpMoveStep        = "move_step"
	OpAssignApprovers = "assign_approvers"
	OpResetToDefault  = "reset_to_default"
)

// StepDraft is the input for a new step
type StepDraft struct {
	Name              string   `json:"name" validate:"required,max=120"`
	Description       string   `json:"description" validate:"max=500"`
	StatusKey         string   `json:"statusKey" validate:"required,max=64"`
	Icon              string   `json:"icon" validate:"max=64"`
	RequiresApproval  bool     `json:"requiresApproval"`
	SendNotification  bool     `json:"sendNotification"`
	AssignedApprovers []string `json:"assignedApprovers" validate:"max=50,dive,max=128"`
}

// StepPatch changes only the fields that are set
type StepPatch struct {
	Name             *string `json:"name" validate:"omitnil,min=1,max=120"`
	Description      *string `json:"description" validate:"omitnil,max=500"`
	StatusKey        *string `json:"statusKey" validate:"omitnil,min=1,max=64"`
	Icon             *string `json:"icon" validate:"omitnil,max=64"`
	RequiresApproval *bool   `json:"requiresApproval"`
	SendNotification *bool   `json:"sendNotification"`
}

// WorkflowConfigService validates, persists and retrieves the step list of each document type
type WorkflowConfigService interface {
	GetWorkflow(ctx context.Context, documentTypeID string) (*entity.WorkflowDefinition, error)
	AddStep(ctx context.Context, documentTypeID string, draft StepDraft) (*entity.WorkflowDefinition, error)
	UpdateStep(ctx context.Context, documentTypeID, stepID string, patch StepPatch) (*entity.WorkflowDefinition, error)
	RemoveStep(ctx context.Context, documentTypeID, stepID string) (*entity.WorkflowDefinition, error)
	MoveStep(ctx context.Context, documentTypeID, stepID string, direction Direction) (*entity.WorkflowDefinition, error)
	AssignApprovers(ctx context.Context, documentTypeID, stepID string, approverIDs []string) (*entity.WorkflowDefinition, error)
	ResetToDefault(ctx context.Context, documentTypeID string, confirm bool) (*entity.WorkflowDefinition, error)
}

type workflowConfigServiceImpl struct {
	durable    port.DefinitionStore
	cache      port.FallbackCache
	directory  port.UserDirectory
	dispatcher dispatcher.Dispatcher
	validate   *validator.Validate
	locks      *keyedMutex
	logger     Logger
	now        func() time.Time
}

// NewWorkflowConfigService creates a new WorkflowConfigService.
// cache and dispatcher may be nil.
func NewWorkflowConfigService(
	durable port.DefinitionStore,
	cache port.FallbackCache,
	directory port.UserDirectory,
	d dispatcher.Dispatcher,
	logger Logger,
) WorkflowConfigService {
	return &workflowConfigServiceImpl{
		durable:    durable,
		cache:      cache,
		directory:  directory,
		dispatcher: d,
		validate:   utils.NewValidator(),
		locks:      newKeyedMutex(),
		logger:     logger,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// GetWorkflow reads the durable store, serving the fallback copy when it is unreachable
func (s *workflowConfigServiceImpl) GetWorkflow(ctx context.Context, documentTypeID string) (*entity.WorkflowDefinition, error) {
	if err := checkDocumentType(documentTypeID); err != nil {
		return nil, err
	}

	def, err := s.durable.Get(ctx, documentTypeID)
	if err == nil {
		if def.Source == "" {
			def.Source = entity.SourceDurable
		}
		return def, nil
	}

	s.logger.Error("Durable store read failed", "document_type_id", documentTypeID, "error", err)
	if s.cache == nil {
		return nil, fmt.Errorf("get workflow %s: %w", documentTypeID, err)
	}

	cached, cacheErr := s.cache.Get(ctx, documentTypeID)
	if cacheErr != nil {
		s.logger.Error("Fallback cache read failed", "document_type_id", documentTypeID, "error", cacheErr)
		return nil, fmt.Errorf("get workflow %s: %w", documentTypeID, err)
	}

	metrics.RecordFallbackRead()
	cached.Source = entity.SourceFallback
	s.logger.Info("Serving workflow from fallback cache",
		"document_type_id", documentTypeID,
		"version", cached.Version,
	)
	return cached, nil
}

// AddStep appends a new step with a fresh id
func (s *workflowConfigServiceImpl) AddStep(ctx context.Context, documentTypeID string, draft StepDraft) (*entity.WorkflowDefinition, error) {
	draft.Name = utils.SanitizeString(draft.Name)
	draft.Description = utils.SanitizeString(draft.Description)
	draft.StatusKey = utils.SanitizeString(draft.StatusKey)
	draft.Icon = utils.SanitizeString(draft.Icon)
	if err := s.validate.Struct(draft); err != nil {
		return s.fail(OpAddStep, documentTypeID, toValidationError(err))
	}

	approvers := entity.NormalizeApprovers(draft.AssignedApprovers)
	if err := s.checkApprovers(ctx, approvers); err != nil {
		return s.fail(OpAddStep, documentTypeID, err)
	}

	return s.mutate(ctx, documentTypeID, OpAddStep, func(def *entity.WorkflowDefinition) (bool, error) {
		if err := checkStatusKeyFree(def, draft.StatusKey, ""); err != nil {
			return false, err
		}
		def.Steps = append(def.Steps, entity.WorkflowStep{
			ID:                uuid.NewString(),
			Name:              draft.Name,
			Description:       draft.Description,
			StatusKey:         draft.StatusKey,
			Icon:              draft.Icon,
			RequiresApproval:  draft.RequiresApproval,
			SendNotification:  draft.SendNotification,
			AssignedApprovers: approvers,
		})
		return true, nil
	})
}

// UpdateStep merges the provided fields into one step
func (s *workflowConfigServiceImpl) UpdateStep(ctx context.Context, documentTypeID, stepID string, patch StepPatch) (*entity.WorkflowDefinition, error) {
	utils.SanitizeStringPtr(patch.Name)
	utils.SanitizeStringPtr(patch.Description)
	utils.SanitizeStringPtr(patch.StatusKey)
	utils.SanitizeStringPtr(patch.Icon)
	if err := s.validate.Struct(patch); err != nil {
		return s.fail(OpUpdateStep, documentTypeID, toValidationError(err))
	}

	return s.mutate(ctx, documentTypeID, OpUpdateStep, func(def *entity.WorkflowDefinition) (bool, error) {
		step, ok := def.Step(stepID)
		if !ok {
			return false, fmt.Errorf("%w: %s", domainwf.ErrStepNotFound, stepID)
		}
		before := step.Clone()

		if patch.StatusKey != nil && *patch.StatusKey != step.StatusKey {
			if err := checkStatusKeyFree(def, *patch.StatusKey, stepID); err != nil {
				return false, err
			}
			step.StatusKey = *patch.StatusKey
		}
		if patch.Name != nil {
			step.Name = *patch.Name
		}
		if patch.Description != nil {
			step.Description = *patch.Description
		}
		if patch.Icon != nil {
			step.Icon = *patch.Icon
		}
		if patch.RequiresApproval != nil {
			step.RequiresApproval = *patch.RequiresApproval
		}
		if patch.SendNotification != nil {
			step.SendNotification = *patch.SendNotification
		}
		return !stepsEqual(before, *step), nil
	})
}

// RemoveStep deletes a step; requests sitting on it become dangling
func (s *workflowConfigServiceImpl) RemoveStep(ctx context.Context, documentTypeID, stepID string) (*entity.WorkflowDefinition, error) {
	return s.mutate(ctx, documentTypeID, OpRemoveStep, func(def *entity.WorkflowDefinition) (bool, error) {
		i := def.IndexOf(stepID)
		if i < 0 {
			return false, fmt.Errorf("%w: %s", domainwf.ErrStepNotFound, stepID)
		}
		def.Steps = append(def.Steps[:i], def.Steps[i+1:]...)
		return true, nil
	})
}

// MoveStep swaps a step with its neighbour; at either boundary nothing is persisted
func (s *workflowConfigServiceImpl) MoveStep(ctx context.Context, documentTypeID, stepID string, direction Direction) (*entity.WorkflowDefinition, error) {
	if direction != DirectionUp && direction != DirectionDown {
		return s.fail(OpMoveStep, documentTypeID,
			domainwf.NewValidationError("direction", domainwf.RuleInvalidDirection, "must be up or down"))
	}

	return s.mutate(ctx, documentTypeID, OpMoveStep, func(def *entity.WorkflowDefinition) (bool, error) {
		i := def.IndexOf(stepID)
		if i < 0 {
			return false, fmt.Errorf("%w: %s", domainwf.ErrStepNotFound, stepID)
		}
		j := i - 1
		if direction == DirectionDown {
			j = i + 1
		}
		if j < 0 || j >= len(def.Steps) {
			return false, nil
		}
		def.Steps[i], def.Steps[j] = def.Steps[j], def.Steps[i]
		return true, nil
	})
}

// AssignApprovers replaces the approver set of a step
func (s *workflowConfigServiceImpl) AssignApprovers(ctx context.Context, documentTypeID, stepID string, approverIDs []string) (*entity.WorkflowDefinition, error) {
	approvers := entity.NormalizeApprovers(approverIDs)
	if err := s.checkApprovers(ctx, approvers); err != nil {
		return s.fail(OpAssignApprovers, documentTypeID, err)
	}

	return s.mutate(ctx, documentTypeID, OpAssignApprovers, func(def *entity.WorkflowDefinition) (bool, error) {
		step, ok := def.Step(stepID)
		if !ok {
			return false, fmt.Errorf("%w: %s", domainwf.ErrStepNotFound, stepID)
		}
		if equalStrings(entity.NormalizeApprovers(step.AssignedApprovers), approvers) {
			return false, nil
		}
		step.AssignedApprovers = approvers
		return true, nil
	})
}

// ResetToDefault replaces the step list with the default template, keeping the record
func (s *workflowConfigServiceImpl) ResetToDefault(ctx context.Context, documentTypeID string, confirm bool) (*entity.WorkflowDefinition, error) {
	if !confirm {
		return s.fail(OpResetToDefault, documentTypeID,
			domainwf.NewValidationError("confirm", domainwf.RuleConfirmation, "reset must be explicitly confirmed"))
	}

	return s.mutate(ctx, documentTypeID, OpResetToDefault, func(def *entity.WorkflowDefinition) (bool, error) {
		def.Steps = entity.DefaultSteps(documentTypeID)
		return true, nil
	})
}

// mutate runs one read-modify-write cycle under the document type lock.
// apply reports whether it changed the definition; unchanged definitions are not written.
func (s *workflowConfigServiceImpl) mutate(
	ctx context.Context,
	documentTypeID, op string,
	apply func(def *entity.WorkflowDefinition) (bool, error),
) (*entity.WorkflowDefinition, error) {
	if err := checkDocumentType(documentTypeID); err != nil {
		return s.fail(op, documentTypeID, err)
	}

	unlock := s.locks.Lock(documentTypeID)
	defer unlock()

	current, err := s.durable.Get(ctx, documentTypeID)
	if err != nil {
		return s.fail(op, documentTypeID, fmt.Errorf("load definition: %w", err))
	}

	next := current.Clone()
	changed, err := apply(next)
	if err != nil {
		return s.fail(op, documentTypeID, err)
	}
	if !changed {
		return current, nil
	}

	next.Renumber()
	if err := next.Validate(); err != nil {
		return s.fail(op, documentTypeID, err)
	}

	actor := entity.ActorFromContext(ctx)
	next.IsDefault = false
	next.Source = entity.SourceDurable
	next.UpdatedBy = actor.ID
	next.UpdatedAt = s.now()

	if err := s.durable.Put(ctx, next, current.Version); err != nil {
		return s.fail(op, documentTypeID, fmt.Errorf("persist definition: %w", err))
	}

	if s.cache != nil {
		if err := s.cache.Mirror(ctx, next); err != nil {
			s.logger.Error("Failed to mirror definition to fallback cache",
				"document_type_id", documentTypeID,
				"version", next.Version,
				"error", err,
			)
		}
	}

	metrics.RecordWorkflowMutation(op, nil)
	s.logger.Info("Workflow definition updated",
		"document_type_id", documentTypeID,
		"operation", op,
		"version", next.Version,
		"step_count", len(next.Steps),
		"actor_id", actor.ID,
	)

	if s.dispatcher != nil {
		s.dispatcher.DispatchAsync(ctx, event.NewEvent(event.TypeWorkflowChanged, documentTypeID, "", map[string]interface{}{
			event.KeyOperation: op,
			event.KeyVersion:   next.Version,
			event.KeyActorID:   actor.ID,
		}))
	}

	return next.Clone(), nil
}

func (s *workflowConfigServiceImpl) fail(op, documentTypeID string, err error) (*entity.WorkflowDefinition, error) {
	metrics.RecordWorkflowMutation(op, err)
	if !domainwf.IsValidationError(err) {
		s.logger.Error("Workflow mutation failed", "document_type_id", documentTypeID, "operation", op, "error", err)
	}
	return nil, fmt.Errorf("%s: %w", op, err)
}

// checkApprovers rejects ids unknown to the user directory
func (s *workflowConfigServiceImpl) checkApprovers(ctx context.Context, approvers []string) error {
	for _, id := range approvers {
		user, err := s.directory.GetUser(ctx, id)
		if err != nil {
			return fmt.Errorf("look up approver %s: %w", id, err)
		}
		if user == nil {
			return domainwf.NewValidationError("assignedApprovers", domainwf.RuleUnknownApprover,
				fmt.Sprintf("unknown approver %q", id))
		}
	}
	return nil
}

func checkDocumentType(documentTypeID string) error {
	if documentTypeID == "" {
		return domainwf.NewValidationError("documentTypeId", domainwf.RuleRequired, "document type id is required")
	}
	if len(documentTypeID) > 64 {
		return domainwf.NewValidationError("documentTypeId", domainwf.RuleTooLong, "must be at most 64 characters")
	}
	return nil
}

func checkStatusKeyFree(def *entity.WorkflowDefinition, statusKey, exceptStepID string) error {
	for _, s := range def.Steps {
		if s.StatusKey == statusKey && s.ID != exceptStepID {
			return domainwf.NewValidationError("statusKey", domainwf.RuleDuplicateStatusKey,
				fmt.Sprintf("status key %q is already used by step %q", statusKey, s.Name))
		}
	}
	return nil
}

func stepsEqual(a, b entity.WorkflowStep) bool {
	return a.Name == b.Name &&
		a.Description == b.Description &&
		a.StatusKey == b.StatusKey &&
		a.Icon == b.Icon &&
		a.RequiresApproval == b.RequiresApproval &&
		a.SendNotification == b.SendNotification &&
		equalStrings(a.AssignedApprovers, b.AssignedApprovers)
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
