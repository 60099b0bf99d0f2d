package service

import (
	"context"
	"fmt"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/assignment"
	"github.com/garyjia/barangay-docflow/internal/domain/event"
	"github.com/garyjia/barangay-docflow/internal/metrics"
)

// Notification template keys
const (
	TemplateApprovalRequired = "workflow.step.approval_required"
	TemplateStatusUpdate     = "workflow.step.status_update"
	TemplateRequestCompleted = "workflow.request.completed"
	TemplateRequestRejected  = "workflow.request.rejected"
)

// NotificationService turns workflow events into outbound notifications
type NotificationService interface {
	// HandleStepEntered notifies approvers of a gated step, or the requester otherwise
	HandleStepEntered(ctx context.Context, evt *event.Event) error

	// HandleRequestClosed tells the requester that the request completed or was rejected
	HandleRequestClosed(ctx context.Context, evt *event.Event) error
}

type notificationServiceImpl struct {
	notifier  port.Notifier
	log       port.NotificationLog
	table     *assignment.Table
	directory port.UserDirectory
	logger    Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	notifier port.Notifier,
	log port.NotificationLog,
	table *assignment.Table,
	directory port.UserDirectory,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		notifier:  notifier,
		log:       log,
		table:     table,
		directory: directory,
		logger:    logger,
	}
}

// HandleStepEntered notifies approvers of a gated step, or the requester otherwise
func (s *notificationServiceImpl) HandleStepEntered(ctx context.Context, evt *event.Event) error {
	stepID := evt.GetPayloadString(event.KeyStepID)
	key := fmt.Sprintf("%s:%d", evt.RequestID, evt.GetPayloadInt(event.KeyHistorySeq))

	templateKey := TemplateStatusUpdate
	recipients := []string{evt.GetPayloadString(event.KeyRequesterID)}
	if evt.GetPayloadBool(event.KeyRequiresApproval) {
		templateKey = TemplateApprovalRequired
		approvers, known := s.table.Approvers(evt.DocumentTypeID, stepID)
		if !known {
			approvers = evt.GetPayloadStrings(event.KeyApprovers)
		}
		recipients = approvers
	}

	data := map[string]string{
		"documentTypeId": evt.DocumentTypeID,
		"requestId":      evt.RequestID,
		"stepName":       evt.GetPayloadString(event.KeyStepName),
		"statusKey":      evt.GetPayloadString(event.KeyStatusKey),
	}
	s.addRequesterName(ctx, evt, data)

	return s.send(ctx, key, templateKey, recipients, data)
}

// HandleRequestClosed tells the requester that the request completed or was rejected
func (s *notificationServiceImpl) HandleRequestClosed(ctx context.Context, evt *event.Event) error {
	if !evt.Type.Closing() {
		return fmt.Errorf("unexpected event %s for request close notification", evt.Type)
	}

	templateKey := TemplateRequestCompleted
	if evt.Type == event.TypeRequestRejected {
		templateKey = TemplateRequestRejected
	}

	data := map[string]string{
		"documentTypeId": evt.DocumentTypeID,
		"requestId":      evt.RequestID,
		"reason":         evt.GetPayloadString(event.KeyReason),
	}
	s.addRequesterName(ctx, evt, data)

	key := fmt.Sprintf("%s:%s", evt.RequestID, evt.Type)
	return s.send(ctx, key, templateKey, []string{evt.GetPayloadString(event.KeyRequesterID)}, data)
}

// send records the dedup key and dispatches; notifier failures are logged, never returned
func (s *notificationServiceImpl) send(ctx context.Context, key, templateKey string, recipients []string, data map[string]string) error {
	recipients = nonEmpty(recipients)
	if len(recipients) == 0 {
		metrics.RecordNotification(templateKey, "no_recipients")
		s.logger.Info("No notification recipients", "entry_key", key, "template", templateKey)
		return nil
	}

	first, err := s.log.MarkSent(ctx, key)
	if err != nil {
		return fmt.Errorf("record notification %s: %w", key, err)
	}
	if !first {
		metrics.RecordNotification(templateKey, "duplicate")
		s.logger.Info("Notification already sent", "entry_key", key)
		return nil
	}

	if err := s.notifier.Notify(ctx, recipients, templateKey, data); err != nil {
		metrics.RecordNotification(templateKey, "failed")
		s.logger.Error("Notification dispatch failed",
			"entry_key", key,
			"template", templateKey,
			"recipients", recipients,
			"error", err,
		)
		return nil
	}

	metrics.RecordNotification(templateKey, "sent")
	s.logger.Info("Notification sent", "entry_key", key, "template", templateKey, "recipient_count", len(recipients))
	return nil
}

func (s *notificationServiceImpl) addRequesterName(ctx context.Context, evt *event.Event, data map[string]string) {
	requesterID := evt.GetPayloadString(event.KeyRequesterID)
	data["requesterId"] = requesterID
	if requesterID == "" {
		return
	}
	if user, err := s.directory.GetUser(ctx, requesterID); err == nil && user != nil {
		data["requesterName"] = user.DisplayName
	}
}

func nonEmpty(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	return out
}
