package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/workflow"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/persistence/sqldb"
)

// RequestRepository stores document requests and their history
type RequestRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewRequestRepository creates a new request repository
func NewRequestRepository(db *sqldb.DB, logger *zap.Logger) port.RequestRepository {
	return &RequestRepository{
		db:     db,
		logger: logger,
	}
}

const requestColumns = `id, document_type_id, requester_id, reference, current_step_id,
	current_status_key, version, created_at, updated_at`

// Create inserts the request and its initial history.
// Callers run it inside WithTransaction so both land together.
func (r *RequestRepository) Create(ctx context.Context, req *entity.DocumentRequest) error {
	query := r.db.Rebind(`INSERT INTO document_requests (` + requestColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.ID,
		req.DocumentTypeID,
		req.RequesterID,
		req.Reference,
		req.CurrentStepID,
		req.CurrentStatusKey,
		req.Version,
		req.CreatedAt,
		req.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to create request: %w", err)
	}

	return r.insertHistory(ctx, req.ID, req.History)
}

// GetByID returns the request with its full history, or nil when it does not exist
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*entity.DocumentRequest, error) {
	query := r.db.Rebind(`SELECT ` + requestColumns + ` FROM document_requests WHERE id = ?`)

	req, err := scanRequest(r.db.Executor(ctx).QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get request", zap.String("request_id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get request: %w", err)
	}

	history, err := r.history(ctx, id)
	if err != nil {
		return nil, err
	}
	req.History = history
	return req, nil
}

// List returns requests newest first without their history
func (r *RequestRepository) List(ctx context.Context, filter port.RequestFilter) ([]*entity.DocumentRequest, error) {
	query := `SELECT ` + requestColumns + ` FROM document_requests`
	var args []interface{}
	if filter.DocumentTypeID != "" {
		query += ` WHERE document_type_id = ?`
		args = append(args, filter.DocumentTypeID)
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	rows, err := r.db.Executor(ctx).QueryContext(ctx, r.db.Rebind(query), args...)
	if err != nil {
		r.logger.Error("Failed to list requests", zap.Error(err))
		return nil, fmt.Errorf("failed to list requests: %w", err)
	}
	defer rows.Close()

	requests := []*entity.DocumentRequest{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan request: %w", err)
		}
		req.History = []entity.HistoryEntry{}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

// Update writes the position of the request when its stored version equals expectedVersion
// and appends the new history entries
func (r *RequestRepository) Update(ctx context.Context, req *entity.DocumentRequest, expectedVersion int64, appended []entity.HistoryEntry) error {
	query := r.db.Rebind(`
		UPDATE document_requests
		SET current_step_id = ?, current_status_key = ?, version = ?, updated_at = ?
		WHERE id = ? AND version = ?
	`)

	result, err := r.db.Executor(ctx).ExecContext(ctx, query,
		req.CurrentStepID,
		req.CurrentStatusKey,
		expectedVersion+1,
		req.UpdatedAt,
		req.ID,
		expectedVersion,
	)
	if err != nil {
		r.logger.Error("Failed to update request", zap.String("request_id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update request: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: request %s is no longer at version %d", workflow.ErrConflict, req.ID, expectedVersion)
	}

	if err := r.insertHistory(ctx, req.ID, appended); err != nil {
		return err
	}
	req.Version = expectedVersion + 1
	return nil
}

func (r *RequestRepository) insertHistory(ctx context.Context, requestID string, entries []entity.HistoryEntry) error {
	query := r.db.Rebind(`
		INSERT INTO request_history (request_id, seq, step_id, status_key, action, actor_id, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	for _, h := range entries {
		_, err := r.db.Executor(ctx).ExecContext(ctx, query,
			requestID, h.Seq, h.StepID, h.StatusKey, h.Action, h.ActorID, h.Reason, h.Timestamp)
		if err != nil {
			r.logger.Error("Failed to insert request history",
				zap.String("request_id", requestID),
				zap.Int("seq", h.Seq),
				zap.Error(err))
			return fmt.Errorf("failed to insert request history: %w", err)
		}
	}
	return nil
}

func (r *RequestRepository) history(ctx context.Context, requestID string) ([]entity.HistoryEntry, error) {
	query := r.db.Rebind(`
		SELECT seq, step_id, status_key, action, actor_id, reason, created_at
		FROM request_history
		WHERE request_id = ?
		ORDER BY seq
	`)
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, requestID)
	if err != nil {
		return nil, fmt.Errorf("failed to get request history: %w", err)
	}
	defer rows.Close()

	history := []entity.HistoryEntry{}
	for rows.Next() {
		var h entity.HistoryEntry
		if err := rows.Scan(&h.Seq, &h.StepID, &h.StatusKey, &h.Action, &h.ActorID, &h.Reason, &h.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan request history: %w", err)
		}
		history = append(history, h)
	}
	return history, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRequest(row rowScanner) (*entity.DocumentRequest, error) {
	var req entity.DocumentRequest
	err := row.Scan(
		&req.ID,
		&req.DocumentTypeID,
		&req.RequesterID,
		&req.Reference,
		&req.CurrentStepID,
		&req.CurrentStatusKey,
		&req.Version,
		&req.CreatedAt,
		&req.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &req, nil
}

var _ port.RequestRepository = (*RequestRepository)(nil)
