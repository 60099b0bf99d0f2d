package notify

import (
	"context"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
)

// LogNotifier writes rendered notifications to the log
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a notifier for deployments without a messenger
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Notify renders and logs the message once per recipient list
func (n *LogNotifier) Notify(ctx context.Context, recipientIDs []string, templateKey string, data map[string]string) error {
	msg, err := Render(templateKey, data)
	if err != nil {
		return err
	}
	n.logger.Info("Notification",
		zap.Strings("recipients", recipientIDs),
		zap.String("template", templateKey),
		zap.String("title", msg.Title),
		zap.String("body", msg.Body),
	)
	return nil
}

var _ port.Notifier = (*LogNotifier)(nil)
