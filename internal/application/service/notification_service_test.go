package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/barangay-docflow/internal/domain/assignment"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
)

func stepEnteredEvent(requiresApproval bool, approvers []string, seq int) *event.Event {
	return event.NewEvent(event.TypeStepEntered, "clearance", "req-1", map[string]interface{}{
		event.KeyStepID:           "step-review",
		event.KeyStatusKey:        "under_review",
		event.KeyStepName:         "Under Review",
		event.KeyRequiresApproval: requiresApproval,
		event.KeyApprovers:        approvers,
		event.KeyRequesterID:      "resident-1",
		event.KeyHistorySeq:       seq,
	})
}

func TestNotificationService_HandleStepEntered(t *testing.T) {
	tests := []struct {
		name           string
		requires       bool
		payload        []string
		table          []entity.ApproverAssignment
		wantTemplate   string
		wantRecipients []string
	}{
		{
			name:           "approval step uses live assignment table",
			requires:       true,
			payload:        []string{"stale"},
			table:          []entity.ApproverAssignment{{DocumentTypeID: "clearance", StepID: "step-review", ApproverID: "staff-1"}},
			wantTemplate:   TemplateApprovalRequired,
			wantRecipients: []string{"staff-1"},
		},
		{
			name:           "approval step falls back to event approvers before first sync",
			requires:       true,
			payload:        []string{"staff-2"},
			wantTemplate:   TemplateApprovalRequired,
			wantRecipients: []string{"staff-2"},
		},
		{
			name:           "status step notifies requester",
			requires:       false,
			wantTemplate:   TemplateStatusUpdate,
			wantRecipients: []string{"resident-1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			table := assignment.NewTable()
			if tt.table != nil {
				table.Replace("clearance", tt.table)
			}
			notifier := &mockNotifier{}
			svc := NewNotificationService(notifier, &mockNotificationLog{}, table, newMockDirectory("resident-1"), &mockLogger{})

			err := svc.HandleStepEntered(context.Background(), stepEnteredEvent(tt.requires, tt.payload, 2))
			require.NoError(t, err)
			require.Len(t, notifier.calls, 1)
			assert.Equal(t, tt.wantTemplate, notifier.calls[0].templateKey)
			assert.Equal(t, tt.wantRecipients, notifier.calls[0].recipients)
			assert.Equal(t, "Under Review", notifier.calls[0].data["stepName"])
			assert.Equal(t, "User resident-1", notifier.calls[0].data["requesterName"])
		})
	}
}

func TestNotificationService_Dedup(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewNotificationService(notifier, &mockNotificationLog{}, assignment.NewTable(), newMockDirectory(), &mockLogger{})

	evt := stepEnteredEvent(true, []string{"staff-1"}, 3)
	require.NoError(t, svc.HandleStepEntered(context.Background(), evt))
	require.NoError(t, svc.HandleStepEntered(context.Background(), evt))
	assert.Len(t, notifier.calls, 1)

	require.NoError(t, svc.HandleStepEntered(context.Background(), stepEnteredEvent(true, []string{"staff-1"}, 4)))
	assert.Len(t, notifier.calls, 2)
}

func TestNotificationService_NotifierFailureIsSwallowed(t *testing.T) {
	notifier := &mockNotifier{
		notifyFunc: func(ctx context.Context, ids []string, key string, data map[string]string) error {
			return errors.New("messenger unavailable")
		},
	}
	svc := NewNotificationService(notifier, &mockNotificationLog{}, assignment.NewTable(), newMockDirectory(), &mockLogger{})

	err := svc.HandleStepEntered(context.Background(), stepEnteredEvent(false, nil, 1))
	assert.NoError(t, err)
	assert.Len(t, notifier.calls, 1)
}

func TestNotificationService_NoRecipients(t *testing.T) {
	notifier := &mockNotifier{}
	log := &mockNotificationLog{}
	svc := NewNotificationService(notifier, log, assignment.NewTable(), newMockDirectory(), &mockLogger{})

	err := svc.HandleStepEntered(context.Background(), stepEnteredEvent(true, nil, 1))
	assert.NoError(t, err)
	assert.Empty(t, notifier.calls)
	assert.Empty(t, log.seen)
}

func TestNotificationService_LogFailure(t *testing.T) {
	notifier := &mockNotifier{}
	log := &mockNotificationLog{
		markSentFunc: func(ctx context.Context, key string) (bool, error) {
			return false, errors.New("database is locked")
		},
	}
	svc := NewNotificationService(notifier, log, assignment.NewTable(), newMockDirectory(), &mockLogger{})

	err := svc.HandleStepEntered(context.Background(), stepEnteredEvent(false, nil, 1))
	assert.Error(t, err)
	assert.Empty(t, notifier.calls)
}

func TestNotificationService_HandleRequestClosed(t *testing.T) {
	notifier := &mockNotifier{}
	svc := NewNotificationService(notifier, &mockNotificationLog{}, assignment.NewTable(), newMockDirectory(), &mockLogger{})

	rejected := event.NewEvent(event.TypeRequestRejected, "clearance", "req-9", map[string]interface{}{
		event.KeyRequesterID: "resident-1",
		event.KeyReason:      "missing cedula",
	})
	require.NoError(t, svc.HandleRequestClosed(context.Background(), rejected))
	require.NoError(t, svc.HandleRequestClosed(context.Background(), rejected))

	require.Len(t, notifier.calls, 1)
	assert.Equal(t, TemplateRequestRejected, notifier.calls[0].templateKey)
	assert.Equal(t, []string{"resident-1"}, notifier.calls[0].recipients)
	assert.Equal(t, "missing cedula", notifier.calls[0].data["reason"])

	completed := event.NewEvent(event.TypeRequestCompleted, "clearance", "req-9", map[string]interface{}{
		event.KeyRequesterID: "resident-1",
	})
	require.NoError(t, svc.HandleRequestClosed(context.Background(), completed))
	require.Len(t, notifier.calls, 2)
	assert.Equal(t, TemplateRequestCompleted, notifier.calls[1].templateKey)

	assert.Error(t, svc.HandleRequestClosed(context.Background(), event.NewEvent(event.TypeStepEntered, "clearance", "req-9", nil)))
	assert.Len(t, notifier.calls, 2)
}
