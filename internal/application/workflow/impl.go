package workflow

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// engineImpl is the concrete implementation of Engine
type engineImpl struct {
	logger Logger
	now    func() time.Time
}

// EngineOption configures the engine
type EngineOption func(*engineImpl)

// WithLogger sets a logger for the engine
func WithLogger(logger Logger) EngineOption {
	return func(e *engineImpl) {
		e.logger = logger
	}
}

// WithClock overrides the time source used for history timestamps
func WithClock(now func() time.Time) EngineOption {
	return func(e *engineImpl) {
		e.now = now
	}
}

// NewEngine creates a new request status engine
func NewEngine(opts ...EngineOption) Engine {
	e := &engineImpl{
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run tracks the working copy of a request while a machine fires
type run struct {
	def     *entity.WorkflowDefinition
	req     *entity.DocumentRequest
	actor   entity.Actor
	reason  string
	now     time.Time
	out     *Outcome
	machine domainwf.StateMachine
}

func (e *engineImpl) newRun(def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) *run {
	working := req.Clone()
	r := &run{
		def:   def,
		req:   working,
		actor: actor,
		now:   e.now(),
		out:   &Outcome{Request: working},
	}
	r.machine = BuildDocumentStateMachine(def, CurrentState(working), MachineHooks{
		CanAct:  func(step entity.WorkflowStep) bool { return actor.IsAdmin() || step.HasApprover(actor.ID) },
		OnEnter: r.enter,
	})
	return r
}

// enter updates the working request for each state entered and queues events
func (r *run) enter(ctx context.Context, from, to domainwf.State, trigger domainwf.Trigger) error {
	r.out.Changed = true
	r.req.UpdatedAt = r.now

	switch to {
	case domainwf.StateComplete:
		r.req.CurrentStepID = entity.CurrentStepComplete
		r.req.CurrentStatusKey = entity.StatusKeyComplete
		r.record(entity.HistoryEntry{Action: entity.ActionCompleted, StatusKey: entity.StatusKeyComplete})
		r.emit(event.TypeRequestCompleted, map[string]interface{}{
			event.KeyRequesterID: r.req.RequesterID,
			event.KeyActorID:     r.actor.ID,
		})
		return nil

	case domainwf.StateRejected:
		rejectedAt := from.StepID()
		step, _ := r.def.Step(rejectedAt)
		r.req.CurrentStepID = entity.CurrentStepRejected
		r.req.CurrentStatusKey = entity.StatusKeyRejected
		r.record(entity.HistoryEntry{
			StepID:    rejectedAt,
			StatusKey: step.StatusKey,
			Action:    entity.ActionRejected,
			Reason:    r.reason,
		})
		r.emit(event.TypeRequestRejected, map[string]interface{}{
			event.KeyStepID:      rejectedAt,
			event.KeyRequesterID: r.req.RequesterID,
			event.KeyActorID:     r.actor.ID,
			event.KeyReason:      r.reason,
		})
		return nil
	}

	step, ok := r.def.Step(to.StepID())
	if !ok {
		return fmt.Errorf("%w: %s", domainwf.ErrDanglingStepReference, to)
	}

	r.req.CurrentStepID = step.ID
	r.req.CurrentStatusKey = step.StatusKey
	entry := r.record(entity.HistoryEntry{
		StepID:    step.ID,
		StatusKey: step.StatusKey,
		Action:    entity.ActionEntered,
	})

	if step.SendNotification {
		r.emit(event.TypeStepEntered, map[string]interface{}{
			event.KeyStepID:           step.ID,
			event.KeyStatusKey:        step.StatusKey,
			event.KeyStepName:         step.Name,
			event.KeyRequiresApproval: step.RequiresApproval,
			event.KeyApprovers:        append([]string{}, step.AssignedApprovers...),
			event.KeyRequesterID:      r.req.RequesterID,
			event.KeyHistorySeq:       entry.Seq,
			event.KeyActorID:          r.actor.ID,
		})
	}
	return nil
}

func (r *run) record(entry entity.HistoryEntry) entity.HistoryEntry {
	entry.ActorID = r.actor.ID
	entry.Timestamp = r.now
	appended := r.req.AppendHistory(entry)
	r.out.Appended = append(r.out.Appended, appended)
	return appended
}

// emit queues an event; events of one run share the first event's correlation id
func (r *run) emit(eventType event.Type, payload map[string]interface{}) {
	evt := event.NewEvent(eventType, r.req.DocumentTypeID, r.req.ID, payload)
	if len(r.out.Events) > 0 {
		evt.CorrelationID = r.out.Events[0].CorrelationID
	}
	r.out.Events = append(r.out.Events, evt)
}

// cascade fires ADVANCE while the request rests on an auto step
func (r *run) cascade(ctx context.Context) error {
	for {
		state := r.machine.State()
		if state.IsTerminal() {
			return nil
		}
		step, ok := r.def.Step(state.StepID())
		if !ok {
			return fmt.Errorf("%w: %s", domainwf.ErrDanglingStepReference, state)
		}
		if step.RequiresApproval {
			return nil
		}
		if err := r.machine.Fire(ctx, domainwf.TriggerAdvance); err != nil {
			return err
		}
	}
}

// resolve validates the request position against the definition
func resolve(def *entity.WorkflowDefinition, req *entity.DocumentRequest) (*entity.WorkflowStep, error) {
	if req.DocumentTypeID != def.DocumentTypeID {
		return nil, fmt.Errorf("request %s belongs to %s, not %s", req.ID, req.DocumentTypeID, def.DocumentTypeID)
	}
	if req.IsTerminal() {
		return nil, fmt.Errorf("%w: request %s is %s", domainwf.ErrTerminalState, req.ID, req.CurrentStepID)
	}
	if req.IsUnstarted() {
		return nil, nil
	}
	step, ok := def.Step(req.CurrentStepID)
	if !ok {
		return nil, fmt.Errorf("%w: request %s points at step %s", domainwf.ErrDanglingStepReference, req.ID, req.CurrentStepID)
	}
	return step, nil
}

// Start prepares a freshly created request
func (e *engineImpl) Start(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest) (*Outcome, error) {
	if _, err := resolve(def, req); err != nil {
		return nil, err
	}
	if !req.IsUnstarted() {
		return nil, fmt.Errorf("%w: request %s already started", domainwf.ErrInvalidTransition, req.ID)
	}

	r := e.newRun(def, req, entity.Actor{ID: req.RequesterID})
	r.req.CurrentStatusKey = entity.StatusKeyPending
	r.record(entity.HistoryEntry{Action: entity.ActionCreated, StatusKey: entity.StatusKeyPending})
	r.out.Changed = true
	r.emit(event.TypeRequestCreated, map[string]interface{}{event.KeyRequesterID: req.RequesterID})

	if len(def.Steps) == 0 {
		if err := r.machine.Fire(ctx, domainwf.TriggerAdvance); err != nil {
			return nil, err
		}
	}
	return r.out, nil
}

// Advance enters the first step or moves past an auto step
func (e *engineImpl) Advance(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*Outcome, error) {
	step, err := resolve(def, req)
	if err != nil {
		return nil, err
	}

	r := e.newRun(def, req, actor)
	if step != nil && step.RequiresApproval {
		return r.out, nil
	}

	if err := r.machine.Fire(ctx, domainwf.TriggerAdvance); err != nil {
		return nil, fmt.Errorf("advance request %s: %w", req.ID, err)
	}
	if err := r.cascade(ctx); err != nil {
		return nil, fmt.Errorf("advance request %s: %w", req.ID, err)
	}

	e.logTransition("Request advanced", req, r.req, actor)
	return r.out, nil
}

// Approve records approval of the current gated step and cascades forward
func (e *engineImpl) Approve(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*Outcome, error) {
	step, err := gatedStep(def, req)
	if err != nil {
		return nil, err
	}

	r := e.newRun(def, req, actor)
	approval := entity.HistoryEntry{StepID: step.ID, StatusKey: step.StatusKey, Action: entity.ActionApproved}
	if err := r.fireGated(ctx, domainwf.TriggerApprove, func() { r.record(approval) }); err != nil {
		return nil, fmt.Errorf("approve request %s: %w", req.ID, err)
	}
	if err := r.cascade(ctx); err != nil {
		return nil, fmt.Errorf("approve request %s: %w", req.ID, err)
	}

	e.logTransition("Request approved", req, r.req, actor)
	return r.out, nil
}

// Reject moves the request from a gated step to REJECTED
func (e *engineImpl) Reject(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor, reason string) (*Outcome, error) {
	reason = strings.TrimSpace(reason)
	if _, err := gatedStep(def, req); err != nil {
		return nil, err
	}
	if reason == "" {
		return nil, domainwf.NewValidationError("reason", domainwf.RuleRequired, "a rejection reason is required")
	}

	r := e.newRun(def, req, actor)
	r.reason = reason
	if err := r.fireGated(ctx, domainwf.TriggerReject, nil); err != nil {
		return nil, fmt.Errorf("reject request %s: %w", req.ID, err)
	}

	e.logTransition("Request rejected", req, r.req, actor)
	return r.out, nil
}

// fireGated fires an approval-gated trigger, translating a failed guard into ErrNotAuthorized.
// before runs only when the guard passes.
func (r *run) fireGated(ctx context.Context, trigger domainwf.Trigger, before func()) error {
	step, _ := r.def.Step(r.req.CurrentStepID)
	if !r.actor.IsAdmin() && !step.HasApprover(r.actor.ID) {
		return fmt.Errorf("%w: %s on step %s", domainwf.ErrNotAuthorized, r.actor.ID, step.StatusKey)
	}
	if before != nil {
		before()
	}
	err := r.machine.Fire(ctx, trigger)
	if errors.Is(err, domainwf.ErrGuardFailed) {
		return fmt.Errorf("%w: %v", domainwf.ErrNotAuthorized, err)
	}
	return err
}

// gatedStep returns the current step if it requires approval
func gatedStep(def *entity.WorkflowDefinition, req *entity.DocumentRequest) (*entity.WorkflowStep, error) {
	step, err := resolve(def, req)
	if err != nil {
		return nil, err
	}
	if step == nil {
		return nil, fmt.Errorf("%w: request %s has not entered the workflow", domainwf.ErrNotApprovable, req.ID)
	}
	if !step.RequiresApproval {
		return nil, fmt.Errorf("%w: step %s", domainwf.ErrNotApprovable, step.StatusKey)
	}
	return step, nil
}

// Describe reports the current position and the actions the actor may take
func (e *engineImpl) Describe(ctx context.Context, def *entity.WorkflowDefinition, req *entity.DocumentRequest, actor entity.Actor) (*Status, error) {
	state := CurrentState(req)
	status := &Status{
		State:      state,
		StepID:     state.StepID(),
		StatusKey:  req.CurrentStatusKey,
		TotalSteps: len(def.Steps),
		Permitted:  []domainwf.Trigger{},
	}

	switch {
	case state == domainwf.StateComplete:
		status.Position = len(def.Steps)
		return status, nil
	case state.IsTerminal():
		return status, nil
	}

	step, ok := def.Step(state.StepID())
	if state != domainwf.StateUnstarted && !ok {
		status.Dangling = true
		return status, nil
	}

	if ok {
		status.StepName = step.Name
		status.Position = def.IndexOf(step.ID) + 1
		status.AwaitingApproval = step.RequiresApproval
		if step.RequiresApproval {
			status.Approvers = append([]string{}, step.AssignedApprovers...)
		}
		if step.RequiresApproval && !actor.IsAdmin() && !step.HasApprover(actor.ID) {
			return status, nil
		}
	}

	status.Permitted = BuildDocumentStateMachine(def, state, MachineHooks{}).PermittedTriggers()
	return status, nil
}

func (e *engineImpl) logTransition(msg string, before, after *entity.DocumentRequest, actor entity.Actor) {
	if e.logger == nil {
		return
	}
	e.logger.Info(msg,
		"request_id", after.ID,
		"document_type_id", after.DocumentTypeID,
		"from_step", before.CurrentStepID,
		"to_step", after.CurrentStepID,
		"status_key", after.CurrentStatusKey,
		"actor_id", actor.ID,
	)
}
