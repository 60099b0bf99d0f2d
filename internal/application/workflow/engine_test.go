package workflow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

var fixedNow = time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

func newTestEngine() Engine {
	return NewEngine(WithClock(func() time.Time { return fixedNow }))
}

// scenarioDefinition is Submitted(auto) -> Review(approval, u1, notify) -> Ready(auto)
func scenarioDefinition() *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		DocumentTypeID: "barangay-clearance",
		Version:        1,
		Steps: []entity.WorkflowStep{
			{ID: "s-submitted", Name: "Submitted", StatusKey: "submitted"},
			{ID: "s-review", Name: "Review", StatusKey: "review", RequiresApproval: true, SendNotification: true, AssignedApprovers: []string{"u1"}, Order: 1},
			{ID: "s-ready", Name: "Ready", StatusKey: "ready", Order: 2},
		},
	}
}

func newRequest(stepID string) *entity.DocumentRequest {
	return &entity.DocumentRequest{
		ID:             "req-1",
		DocumentTypeID: "barangay-clearance",
		RequesterID:    "resident-9",
		CurrentStepID:  stepID,
	}
}

func eventTypes(events []*event.Event) []event.Type {
	types := make([]event.Type, len(events))
	for i, e := range events {
		types[i] = e.Type
	}
	return types
}

func TestBuildDocumentStateMachine(t *testing.T) {
	ctx := context.Background()
	def := scenarioDefinition()

	sm := BuildDocumentStateMachine(def, domainwf.StateUnstarted, MachineHooks{})
	require.NoError(t, sm.Fire(ctx, domainwf.TriggerAdvance))
	assert.Equal(t, domainwf.StepState("s-submitted"), sm.State())

	require.NoError(t, sm.Fire(ctx, domainwf.TriggerAdvance))
	assert.Equal(t, domainwf.StepState("s-review"), sm.State())
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerApprove, domainwf.TriggerReject}, sm.PermittedTriggers())

	err := sm.Fire(ctx, domainwf.TriggerAdvance)
	assert.True(t, errors.Is(err, domainwf.ErrInvalidTransition))

	require.NoError(t, sm.Fire(ctx, domainwf.TriggerApprove))
	require.NoError(t, sm.Fire(ctx, domainwf.TriggerAdvance))
	assert.Equal(t, domainwf.StateComplete, sm.State())
}

func TestBuildDocumentStateMachine_EmptyList(t *testing.T) {
	def := &entity.WorkflowDefinition{DocumentTypeID: "cedula"}
	sm := BuildDocumentStateMachine(def, domainwf.StateUnstarted, MachineHooks{})

	require.NoError(t, sm.Fire(context.Background(), domainwf.TriggerAdvance))
	assert.Equal(t, domainwf.StateComplete, sm.State())
}

func TestBuildDocumentStateMachine_GuardDeniesActor(t *testing.T) {
	def := scenarioDefinition()
	sm := BuildDocumentStateMachine(def, domainwf.StepState("s-review"), MachineHooks{
		CanAct: func(step entity.WorkflowStep) bool { return step.HasApprover("someone-else") },
	})

	err := sm.Fire(context.Background(), domainwf.TriggerApprove)
	assert.True(t, errors.Is(err, domainwf.ErrGuardFailed))
	assert.Equal(t, domainwf.StepState("s-review"), sm.State())
}

func TestEngine_Start(t *testing.T) {
	engine := newTestEngine()

	t.Run("configured list stays unstarted", func(t *testing.T) {
		out, err := engine.Start(context.Background(), scenarioDefinition(), newRequest(""))
		require.NoError(t, err)

		assert.True(t, out.Changed)
		assert.Equal(t, "", out.Request.CurrentStepID)
		assert.Equal(t, entity.StatusKeyPending, out.Request.CurrentStatusKey)
		require.Len(t, out.Appended, 1)
		assert.Equal(t, entity.ActionCreated, out.Appended[0].Action)
		assert.Equal(t, "resident-9", out.Appended[0].ActorID)
		assert.Equal(t, []event.Type{event.TypeRequestCreated}, eventTypes(out.Events))
	})

	t.Run("empty list completes immediately", func(t *testing.T) {
		def := &entity.WorkflowDefinition{DocumentTypeID: "barangay-clearance", Steps: []entity.WorkflowStep{}}
		out, err := engine.Start(context.Background(), def, newRequest(""))
		require.NoError(t, err)

		assert.Equal(t, entity.CurrentStepComplete, out.Request.CurrentStepID)
		assert.Equal(t, entity.StatusKeyComplete, out.Request.CurrentStatusKey)
		assert.Equal(t, []event.Type{event.TypeRequestCreated, event.TypeRequestCompleted}, eventTypes(out.Events))
	})

	t.Run("started request is rejected", func(t *testing.T) {
		_, err := engine.Start(context.Background(), scenarioDefinition(), newRequest("s-review"))
		assert.True(t, errors.Is(err, domainwf.ErrInvalidTransition))
	})
}

func TestEngine_Scenario(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()
	def := scenarioDefinition()
	requester := entity.Actor{ID: "resident-9", Role: entity.RoleResident}

	out, err := engine.Advance(ctx, def, newRequest(""), requester)
	require.NoError(t, err)

	assert.Equal(t, "s-review", out.Request.CurrentStepID)
	assert.Equal(t, "review", out.Request.CurrentStatusKey)
	require.Len(t, out.Events, 1)
	assert.Equal(t, event.TypeStepEntered, out.Events[0].Type)
	assert.Equal(t, "s-review", out.Events[0].GetPayloadString(event.KeyStepID))
	assert.Equal(t, []string{"u1"}, out.Events[0].GetPayloadStrings(event.KeyApprovers))
	assert.Equal(t, int64(2), out.Events[0].GetPayloadInt(event.KeyHistorySeq))
	require.Len(t, out.Appended, 2)
	assert.Equal(t, "s-submitted", out.Appended[0].StepID)
	assert.Equal(t, "s-review", out.Appended[1].StepID)

	// sitting on the approval step: no-op, no re-notification
	again, err := engine.Advance(ctx, def, out.Request, requester)
	require.NoError(t, err)
	assert.False(t, again.Changed)
	assert.Empty(t, again.Events)
	assert.Equal(t, "s-review", again.Request.CurrentStepID)

	done, err := engine.Approve(ctx, def, out.Request, entity.Actor{ID: "u1", Role: entity.RoleStaff})
	require.NoError(t, err)

	assert.Equal(t, entity.CurrentStepComplete, done.Request.CurrentStepID)
	assert.Equal(t, []event.Type{event.TypeRequestCompleted}, eventTypes(done.Events))

	actions := make([]string, len(done.Appended))
	for i, h := range done.Appended {
		actions[i] = h.Action
	}
	assert.Equal(t, []string{entity.ActionApproved, entity.ActionEntered, entity.ActionCompleted}, actions)
	assert.Equal(t, "u1", done.Appended[0].ActorID)
	assert.Equal(t, fixedNow, done.Request.UpdatedAt)

	// input untouched
	assert.Equal(t, "s-review", out.Request.CurrentStepID)
	assert.Len(t, out.Request.History, 2)
}

func TestEngine_Approve(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()
	def := scenarioDefinition()

	tests := []struct {
		name    string
		stepID  string
		actor   entity.Actor
		wantErr error
		want    string
	}{
		{"non-approver is refused", "s-review", entity.Actor{ID: "u2", Role: entity.RoleStaff}, domainwf.ErrNotAuthorized, ""},
		{"admin overrides", "s-review", entity.Actor{ID: "captain", Role: entity.RoleAdmin}, nil, entity.CurrentStepComplete},
		{"auto step is not approvable", "s-submitted", entity.Actor{ID: "u1"}, domainwf.ErrNotApprovable, ""},
		{"unstarted is not approvable", "", entity.Actor{ID: "u1"}, domainwf.ErrNotApprovable, ""},
		{"terminal request", entity.CurrentStepComplete, entity.Actor{ID: "u1"}, domainwf.ErrTerminalState, ""},
		{"deleted step", "s-deleted", entity.Actor{ID: "u1"}, domainwf.ErrDanglingStepReference, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newRequest(tt.stepID)
			out, err := engine.Approve(ctx, def, req, tt.actor)

			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Nil(t, out)
				assert.Equal(t, tt.stepID, req.CurrentStepID)
				assert.Empty(t, req.History)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out.Request.CurrentStepID)
		})
	}
}

func TestEngine_ApproveStopsAtNextGate(t *testing.T) {
	def := entity.NewDefaultDefinition("barangay-clearance")
	def.Steps[1].AssignedApprovers = []string{"clerk"}
	def.Steps[2].AssignedApprovers = []string{"captain"}

	req := &entity.DocumentRequest{ID: "r", DocumentTypeID: "barangay-clearance", CurrentStepID: def.Steps[1].ID}
	out, err := newTestEngine().Approve(context.Background(), def, req, entity.Actor{ID: "clerk"})
	require.NoError(t, err)

	assert.Equal(t, def.Steps[2].ID, out.Request.CurrentStepID)
	assert.Equal(t, "for_signature", out.Request.CurrentStatusKey)
	require.Len(t, out.Events, 1)
	assert.Equal(t, []string{"captain"}, out.Events[0].GetPayloadStrings(event.KeyApprovers))
}

func TestEngine_Advance(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()
	actor := entity.Actor{ID: "clerk"}

	t.Run("dangling reference leaves request unchanged", func(t *testing.T) {
		req := newRequest("s-removed")
		_, err := engine.Advance(ctx, scenarioDefinition(), req, actor)
		assert.True(t, errors.Is(err, domainwf.ErrDanglingStepReference))
		assert.Equal(t, "s-removed", req.CurrentStepID)
	})

	t.Run("terminal request", func(t *testing.T) {
		_, err := engine.Advance(ctx, scenarioDefinition(), newRequest(entity.CurrentStepRejected), actor)
		assert.True(t, errors.Is(err, domainwf.ErrTerminalState))
	})

	t.Run("auto step moves forward", func(t *testing.T) {
		out, err := engine.Advance(ctx, scenarioDefinition(), newRequest("s-ready"), actor)
		require.NoError(t, err)
		assert.Equal(t, entity.CurrentStepComplete, out.Request.CurrentStepID)
	})

	t.Run("step toggled to auto while waiting", func(t *testing.T) {
		def := scenarioDefinition()
		def.Steps[1].RequiresApproval = false
		out, err := engine.Advance(ctx, def, newRequest("s-review"), actor)
		require.NoError(t, err)
		assert.Equal(t, entity.CurrentStepComplete, out.Request.CurrentStepID)
	})

	t.Run("notifying auto steps each publish once", func(t *testing.T) {
		def := scenarioDefinition()
		def.Steps[0].SendNotification = true
		def.Steps[1].RequiresApproval = false
		def.Steps[2].SendNotification = true

		out, err := engine.Advance(ctx, def, newRequest(""), actor)
		require.NoError(t, err)
		assert.Equal(t,
			[]event.Type{event.TypeStepEntered, event.TypeStepEntered, event.TypeStepEntered, event.TypeRequestCompleted},
			eventTypes(out.Events))
	})
}

func TestEngine_Reject(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()
	def := scenarioDefinition()

	_, err := engine.Reject(ctx, def, newRequest("s-review"), entity.Actor{ID: "u1"}, "  ")
	assert.True(t, domainwf.IsValidationError(err))

	_, err = engine.Reject(ctx, def, newRequest("s-review"), entity.Actor{ID: "u3"}, "incomplete")
	assert.True(t, errors.Is(err, domainwf.ErrNotAuthorized))

	_, err = engine.Reject(ctx, def, newRequest("s-submitted"), entity.Actor{ID: "u1"}, "incomplete")
	assert.True(t, errors.Is(err, domainwf.ErrNotApprovable))

	out, err := engine.Reject(ctx, def, newRequest("s-review"), entity.Actor{ID: "u1"}, "missing cedula")
	require.NoError(t, err)
	assert.Equal(t, entity.CurrentStepRejected, out.Request.CurrentStepID)
	assert.Equal(t, entity.StatusKeyRejected, out.Request.CurrentStatusKey)
	require.Len(t, out.Appended, 1)
	assert.Equal(t, "missing cedula", out.Appended[0].Reason)
	assert.Equal(t, "s-review", out.Appended[0].StepID)
	assert.Equal(t, []event.Type{event.TypeRequestRejected}, eventTypes(out.Events))

	_, err = engine.Reject(ctx, def, out.Request, entity.Actor{ID: "u1"}, "again")
	assert.True(t, errors.Is(err, domainwf.ErrTerminalState))
}

func TestEngine_Describe(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine()
	def := scenarioDefinition()

	st, err := engine.Describe(ctx, def, newRequest("s-review"), entity.Actor{ID: "u1"})
	require.NoError(t, err)
	assert.Equal(t, 2, st.Position)
	assert.Equal(t, 3, st.TotalSteps)
	assert.True(t, st.AwaitingApproval)
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerApprove, domainwf.TriggerReject}, st.Permitted)

	st, err = engine.Describe(ctx, def, newRequest("s-review"), entity.Actor{ID: "u2"})
	require.NoError(t, err)
	assert.Empty(t, st.Permitted)

	st, err = engine.Describe(ctx, def, newRequest(""), entity.Actor{ID: "resident-9"})
	require.NoError(t, err)
	assert.Equal(t, []domainwf.Trigger{domainwf.TriggerAdvance}, st.Permitted)

	st, err = engine.Describe(ctx, def, newRequest("gone"), entity.Actor{ID: "u1"})
	require.NoError(t, err)
	assert.True(t, st.Dangling)
}

func TestEngine_EventsShareCorrelation(t *testing.T) {
	def := &entity.WorkflowDefinition{
		DocumentTypeID: "barangay-clearance",
		Steps: []entity.WorkflowStep{
			{ID: "s-1", Name: "Submitted", StatusKey: "submitted", SendNotification: true},
			{ID: "s-2", Name: "Printed", StatusKey: "printed", SendNotification: true, Order: 1},
		},
	}

	out, err := newTestEngine().Advance(context.Background(), def, newRequest(""), entity.Actor{ID: "clerk"})
	require.NoError(t, err)

	require.Equal(t, []event.Type{event.TypeStepEntered, event.TypeStepEntered, event.TypeRequestCompleted}, eventTypes(out.Events))
	for _, evt := range out.Events[1:] {
		assert.Equal(t, out.Events[0].CorrelationID, evt.CorrelationID)
		assert.NotEqual(t, out.Events[0].ID, evt.ID)
	}
}
