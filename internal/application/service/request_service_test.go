package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/application/workflow"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	domainwf "github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

type requestFixture struct {
	definitions *mockDefinitionStore
	requests    *mockRequestRepo
	dispatcher  *recordingDispatcher
	config      WorkflowConfigService
	svc         RequestService
}

func newRequestFixture() *requestFixture {
	f := &requestFixture{
		definitions: newMockDefinitionStore(),
		requests:    newMockRequestRepo(),
		dispatcher:  &recordingDispatcher{},
	}
	directory := newMockDirectory("resident-1", "staff-1", "captain")
	f.config = NewWorkflowConfigService(f.definitions, nil, directory, nil, &mockLogger{})
	f.svc = NewRequestService(f.requests, f.config, workflow.NewEngine(), directory, &mockTxManager{}, f.dispatcher, &mockLogger{})
	return f
}

func asActor(id, role string) context.Context {
	return entity.ContextWithActor(context.Background(), entity.Actor{ID: id, Role: role})
}

func TestRequestService_CreateRequest(t *testing.T) {
	f := newRequestFixture()

	view, err := f.svc.CreateRequest(asActor("resident-1", entity.RoleResident), CreateRequestInput{
		DocumentTypeID: "clearance",
		RequesterID:    "resident-1",
		Reference:      " employment ",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "employment", view.Reference)
	assert.Equal(t, entity.StatusKeyPending, view.CurrentStatusKey)
	assert.Equal(t, domainwf.StateUnstarted, view.Status.State)
	assert.Equal(t, 4, view.Status.TotalSteps)

	stored, err := f.requests.GetByID(context.Background(), view.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.Len(t, stored.History, 1)
	assert.Equal(t, entity.ActionCreated, stored.History[0].Action)
	assert.Len(t, f.dispatcher.ofType(event.TypeRequestCreated), 1)
}

func TestRequestService_CreateRequestValidation(t *testing.T) {
	tests := []struct {
		name  string
		input CreateRequestInput
		rule  string
	}{
		{"missing document type", CreateRequestInput{RequesterID: "resident-1"}, domainwf.RuleRequired},
		{"missing requester", CreateRequestInput{DocumentTypeID: "clearance"}, domainwf.RuleRequired},
		{"unknown requester", CreateRequestInput{DocumentTypeID: "clearance", RequesterID: "stranger"}, domainwf.RuleUnknownUser},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRequestFixture()
			_, err := f.svc.CreateRequest(context.Background(), tt.input)
			ve, ok := domainwf.AsValidationError(err)
			require.True(t, ok, "expected validation error, got %v", err)
			assert.Equal(t, tt.rule, ve.Rule)
		})
	}
}

func TestRequestService_EmptyWorkflowCompletesImmediately(t *testing.T) {
	f := newRequestFixture()
	def := &entity.WorkflowDefinition{DocumentTypeID: "cedula", Steps: []entity.WorkflowStep{}}
	require.NoError(t, f.definitions.Put(context.Background(), def, 0))

	view, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{DocumentTypeID: "cedula", RequesterID: "resident-1"})
	require.NoError(t, err)
	assert.Equal(t, entity.CurrentStepComplete, view.CurrentStepID)
	assert.Equal(t, domainwf.StateComplete, view.Status.State)
	assert.Len(t, f.dispatcher.ofType(event.TypeRequestCompleted), 1)
}

func TestRequestService_ApprovalFlow(t *testing.T) {
	f := newRequestFixture()
	admin := adminCtx()

	reviewID := entity.DefaultStepID("clearance", "under_review")
	signID := entity.DefaultStepID("clearance", "for_signature")
	releaseID := entity.DefaultStepID("clearance", "ready_for_release")
	_, err := f.config.AssignApprovers(admin, "clearance", reviewID, []string{"staff-1"})
	require.NoError(t, err)
	_, err = f.config.AssignApprovers(admin, "clearance", signID, []string{"captain"})
	require.NoError(t, err)

	view, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{DocumentTypeID: "clearance", RequesterID: "resident-1"})
	require.NoError(t, err)
	id := view.ID

	view, err = f.svc.AdvanceRequest(asActor("resident-1", entity.RoleResident), id)
	require.NoError(t, err)
	assert.Equal(t, reviewID, view.CurrentStepID, "advance cascades past the auto step")
	assert.True(t, view.Status.AwaitingApproval)

	t.Run("advance on approval step is a no-op", func(t *testing.T) {
		before, _ := f.requests.GetByID(context.Background(), id)
		view, err := f.svc.AdvanceRequest(asActor("resident-1", entity.RoleResident), id)
		require.NoError(t, err)
		assert.Equal(t, reviewID, view.CurrentStepID)
		after, _ := f.requests.GetByID(context.Background(), id)
		assert.Equal(t, before.Version, after.Version)
	})

	_, err = f.svc.ApproveRequest(asActor("captain", entity.RoleStaff), id)
	assert.ErrorIs(t, err, domainwf.ErrNotAuthorized)

	view, err = f.svc.ApproveRequest(asActor("staff-1", entity.RoleStaff), id)
	require.NoError(t, err)
	assert.Equal(t, signID, view.CurrentStepID)

	view, err = f.svc.ApproveRequest(asActor("captain", entity.RoleStaff), id)
	require.NoError(t, err)
	assert.Equal(t, releaseID, view.CurrentStepID)

	view, err = f.svc.ApproveRequest(admin, id)
	require.NoError(t, err)
	assert.Equal(t, entity.CurrentStepComplete, view.CurrentStepID)
	assert.Equal(t, entity.StatusKeyComplete, view.CurrentStatusKey)

	_, err = f.svc.ApproveRequest(admin, id)
	assert.ErrorIs(t, err, domainwf.ErrTerminalState)

	stored, _ := f.requests.GetByID(context.Background(), id)
	for i, h := range stored.History {
		assert.Equal(t, i+1, h.Seq)
	}
	assert.Len(t, f.dispatcher.ofType(event.TypeRequestCompleted), 1)
}

func TestRequestService_RejectRequest(t *testing.T) {
	f := newRequestFixture()

	view, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{DocumentTypeID: "clearance", RequesterID: "resident-1"})
	require.NoError(t, err)
	_, err = f.svc.AdvanceRequest(context.Background(), view.ID)
	require.NoError(t, err)

	_, err = f.svc.RejectRequest(adminCtx(), view.ID, "  ")
	assert.True(t, domainwf.IsValidationError(err))

	view, err = f.svc.RejectRequest(adminCtx(), view.ID, "incomplete requirements")
	require.NoError(t, err)
	assert.Equal(t, entity.CurrentStepRejected, view.CurrentStepID)

	rejected := f.dispatcher.ofType(event.TypeRequestRejected)
	require.Len(t, rejected, 1)
	assert.Equal(t, "incomplete requirements", rejected[0].GetPayloadString(event.KeyReason))
}

func TestRequestService_NotFound(t *testing.T) {
	f := newRequestFixture()

	_, err := f.svc.GetRequest(context.Background(), "missing")
	assert.ErrorIs(t, err, domainwf.ErrRequestNotFound)

	_, err = f.svc.ApproveRequest(adminCtx(), "missing")
	assert.ErrorIs(t, err, domainwf.ErrRequestNotFound)
}

func TestRequestService_ConcurrentUpdateConflict(t *testing.T) {
	f := newRequestFixture()
	view, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{DocumentTypeID: "clearance", RequesterID: "resident-1"})
	require.NoError(t, err)

	f.requests.updateFunc = func(ctx context.Context, req *entity.DocumentRequest, expected int64, appended []entity.HistoryEntry) error {
		return domainwf.ErrConflict
	}
	created := len(f.dispatcher.events)

	_, err = f.svc.AdvanceRequest(context.Background(), view.ID)
	assert.ErrorIs(t, err, domainwf.ErrConflict)
	assert.Len(t, f.dispatcher.events, created, "events are only published after commit")
}

func TestRequestService_DanglingStep(t *testing.T) {
	f := newRequestFixture()
	view, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{DocumentTypeID: "clearance", RequesterID: "resident-1"})
	require.NoError(t, err)
	view, err = f.svc.AdvanceRequest(context.Background(), view.ID)
	require.NoError(t, err)

	_, err = f.config.RemoveStep(adminCtx(), "clearance", view.CurrentStepID)
	require.NoError(t, err)

	got, err := f.svc.GetRequest(context.Background(), view.ID)
	require.NoError(t, err)
	assert.True(t, got.Status.Dangling)

	_, err = f.svc.ApproveRequest(adminCtx(), view.ID)
	assert.ErrorIs(t, err, domainwf.ErrDanglingStepReference)
}

func TestRequestService_ListRequests(t *testing.T) {
	f := newRequestFixture()
	for _, doc := range []string{"clearance", "clearance", "indigency"} {
		_, err := f.svc.CreateRequest(context.Background(), CreateRequestInput{DocumentTypeID: doc, RequesterID: "resident-1"})
		require.NoError(t, err)
	}

	reqs, err := f.svc.ListRequests(context.Background(), port.RequestFilter{DocumentTypeID: "clearance"})
	require.NoError(t, err)
	assert.Len(t, reqs, 2)
}

func TestRequestService_DirectoryError(t *testing.T) {
	f := newRequestFixture()
	directory := &mockDirectory{getUserFunc: func(ctx context.Context, id string) (*entity.User, error) {
		return nil, errors.New("directory offline")
	}}
	svc := NewRequestService(f.requests, f.config, workflow.NewEngine(), directory, &mockTxManager{}, nil, &mockLogger{})

	_, err := svc.CreateRequest(context.Background(), CreateRequestInput{DocumentTypeID: "clearance", RequesterID: "resident-1"})
	require.Error(t, err)
	assert.False(t, domainwf.IsValidationError(err))
}
