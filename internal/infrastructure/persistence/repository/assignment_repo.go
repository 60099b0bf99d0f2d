package repository

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/persistence/sqldb"
	"github.com/garyjia/barangay-docflow/internal/metrics"
)

// AssignmentRepository stores materialized approver assignments
type AssignmentRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewAssignmentRepository creates a new assignment repository
func NewAssignmentRepository(db *sqldb.DB, logger *zap.Logger) port.AssignmentRepository {
	return &AssignmentRepository{
		db:     db,
		logger: logger,
	}
}

const assignmentColumns = `document_type_id, step_id, approver_id, status_key, synced_at`

// ListByDocumentType returns every row of a document type
func (r *AssignmentRepository) ListByDocumentType(ctx context.Context, documentTypeID string) ([]*entity.ApproverAssignment, error) {
	query := r.db.Rebind(`SELECT ` + assignmentColumns + `
		FROM approver_assignments
		WHERE document_type_id = ?
		ORDER BY step_id, approver_id`)
	return r.query(ctx, query, documentTypeID)
}

// ListByApprover returns every row held by one approver
func (r *AssignmentRepository) ListByApprover(ctx context.Context, approverID string) ([]*entity.ApproverAssignment, error) {
	query := r.db.Rebind(`SELECT ` + assignmentColumns + `
		FROM approver_assignments
		WHERE approver_id = ?
		ORDER BY document_type_id, status_key`)
	return r.query(ctx, query, approverID)
}

// Insert adds one row
func (r *AssignmentRepository) Insert(ctx context.Context, a *entity.ApproverAssignment) error {
	query := r.db.Rebind(`INSERT INTO approver_assignments (` + assignmentColumns + `) VALUES (?, ?, ?, ?, ?)`)

	_, err := r.db.Executor(ctx).ExecContext(ctx, query,
		a.DocumentTypeID,
		a.StepID,
		a.ApproverID,
		a.StatusKey,
		a.SyncedAt,
	)
	if err != nil {
		r.logger.Error("Failed to insert assignment",
			zap.String("document_type_id", a.DocumentTypeID),
			zap.String("step_id", a.StepID),
			zap.String("approver_id", a.ApproverID),
			zap.Error(err))
		return fmt.Errorf("failed to insert assignment: %w", err)
	}
	return nil
}

// Delete removes one row
func (r *AssignmentRepository) Delete(ctx context.Context, documentTypeID, stepID, approverID string) error {
	query := r.db.Rebind(`
		DELETE FROM approver_assignments
		WHERE document_type_id = ? AND step_id = ? AND approver_id = ?
	`)
	if _, err := r.db.Executor(ctx).ExecContext(ctx, query, documentTypeID, stepID, approverID); err != nil {
		r.logger.Error("Failed to delete assignment",
			zap.String("document_type_id", documentTypeID),
			zap.String("step_id", stepID),
			zap.String("approver_id", approverID),
			zap.Error(err))
		return fmt.Errorf("failed to delete assignment: %w", err)
	}
	return nil
}

// Count returns the total number of rows and updates the assignment gauge
func (r *AssignmentRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.Executor(ctx).QueryRowContext(ctx, `SELECT COUNT(*) FROM approver_assignments`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count assignments: %w", err)
	}
	metrics.SetAssignmentRecords(n)
	return n, nil
}

func (r *AssignmentRepository) query(ctx context.Context, query string, arg string) ([]*entity.ApproverAssignment, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, query, arg)
	if err != nil {
		r.logger.Error("Failed to list assignments", zap.Error(err))
		return nil, fmt.Errorf("failed to list assignments: %w", err)
	}
	defer rows.Close()

	var out []*entity.ApproverAssignment
	for rows.Next() {
		var a entity.ApproverAssignment
		if err := rows.Scan(&a.DocumentTypeID, &a.StepID, &a.ApproverID, &a.StatusKey, &a.SyncedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment: %w", err)
		}
		out = append(out, &a)
	}
	return out, rows.Err()
}

var _ port.AssignmentRepository = (*AssignmentRepository)(nil)
