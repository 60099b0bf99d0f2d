package workflow

import (
	"context"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

// MachineHooks customizes a document state machine for one operation
type MachineHooks struct {
	// CanAct decides whether the caller may approve or reject a gated step
	CanAct func(step entity.WorkflowStep) bool

	// OnEnter runs for every state entered, including COMPLETE and REJECTED
	OnEnter domainwf.EntryAction
}

// BuildDocumentStateMachine creates a state machine whose states are the step ids
// of the definition bracketed by UNSTARTED, COMPLETE and REJECTED.
//
//	UNSTARTED --ADVANCE--> step[0] (or COMPLETE when the list is empty)
//	auto step --ADVANCE--> next
//	gated step --APPROVE[CanAct]--> next
//	gated step --REJECT[CanAct]--> REJECTED
func BuildDocumentStateMachine(def *entity.WorkflowDefinition, initial domainwf.State, hooks MachineHooks) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	next := func(i int) domainwf.State {
		if i+1 < len(def.Steps) {
			return domainwf.StepState(def.Steps[i+1].ID)
		}
		return domainwf.StateComplete
	}

	first := domainwf.StateComplete
	if len(def.Steps) > 0 {
		first = domainwf.StepState(def.Steps[0].ID)
	}
	builder.Configure(domainwf.StateUnstarted).Permit(domainwf.TriggerAdvance, first)

	for i, step := range def.Steps {
		cfg := builder.Configure(domainwf.StepState(step.ID))
		if !step.RequiresApproval {
			cfg.Permit(domainwf.TriggerAdvance, next(i))
		} else {
			gate := step
			guard := func(context.Context) bool {
				return hooks.CanAct == nil || hooks.CanAct(gate)
			}
			cfg.PermitIf(domainwf.TriggerApprove, next(i), guard).
				PermitIf(domainwf.TriggerReject, domainwf.StateRejected, guard)
		}
		cfg.OnEntry(hooks.OnEnter)
	}

	builder.Configure(domainwf.StateComplete).OnEntry(hooks.OnEnter)
	builder.Configure(domainwf.StateRejected).OnEntry(hooks.OnEnter)

	return builder.Build(initial)
}

// CurrentState maps a request's stored step id onto a machine state
func CurrentState(req *entity.DocumentRequest) domainwf.State {
	switch req.CurrentStepID {
	case entity.CurrentStepComplete:
		return domainwf.StateComplete
	case entity.CurrentStepRejected:
		return domainwf.StateRejected
	default:
		return domainwf.StepState(req.CurrentStepID)
	}
}
