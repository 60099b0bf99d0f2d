package repository

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/persistence/sqldb"
)

// NotificationLogRepository records delivered notification keys
type NotificationLogRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewNotificationLogRepository creates a new notification log repository
func NewNotificationLogRepository(db *sqldb.DB, logger *zap.Logger) port.NotificationLog {
	return &NotificationLogRepository{
		db:     db,
		logger: logger,
	}
}

// MarkSent inserts the key and reports whether it was new
func (r *NotificationLogRepository) MarkSent(ctx context.Context, key string) (bool, error) {
	query := r.db.Rebind(`
		INSERT INTO notification_log (entry_key, sent_at) VALUES (?, ?)
		ON CONFLICT (entry_key) DO NOTHING
	`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query, key, time.Now().UTC())
	if err != nil {
		r.logger.Error("Failed to record notification", zap.String("entry_key", key), zap.Error(err))
		return false, fmt.Errorf("failed to record notification: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return affected == 1, nil
}

var _ port.NotificationLog = (*NotificationLogRepository)(nil)
