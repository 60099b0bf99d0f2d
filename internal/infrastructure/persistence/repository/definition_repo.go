package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
	"github.com/garyjia/barangay-docflow/internal/domain/workflow"
	"github.com/garyjia/barangay-docflow/internal/infrastructure/persistence/sqldb"
)

// DefinitionRepository is the durable definition store
type DefinitionRepository struct {
	db     *sqldb.DB
	logger *zap.Logger
}

// NewDefinitionRepository creates a new definition repository
func NewDefinitionRepository(db *sqldb.DB, logger *zap.Logger) port.DefinitionStore {
	return &DefinitionRepository{
		db:     db,
		logger: logger,
	}
}

// Get returns the stored definition, or the default template when none is stored
func (r *DefinitionRepository) Get(ctx context.Context, documentTypeID string) (*entity.WorkflowDefinition, error) {
	query := r.db.Rebind(`
		SELECT version, steps, updated_by, updated_at
		FROM workflow_definitions
		WHERE document_type_id = ?
	`)

	var (
		def   = entity.WorkflowDefinition{DocumentTypeID: documentTypeID, Source: entity.SourceDurable}
		steps string
	)
	err := r.db.Executor(ctx).QueryRowContext(ctx, query, documentTypeID).Scan(
		&def.Version,
		&steps,
		&def.UpdatedBy,
		&def.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return entity.NewDefaultDefinition(documentTypeID), nil
	}
	if err != nil {
		r.logger.Error("Failed to get workflow definition", zap.String("document_type_id", documentTypeID), zap.Error(err))
		return nil, fmt.Errorf("failed to get workflow definition: %w", err)
	}

	if err := json.Unmarshal([]byte(steps), &def.Steps); err != nil {
		return nil, fmt.Errorf("failed to decode steps of %s: %w", documentTypeID, err)
	}
	if def.Steps == nil {
		def.Steps = []entity.WorkflowStep{}
	}
	return &def, nil
}

// Put replaces the stored definition when the stored version equals expectedVersion
func (r *DefinitionRepository) Put(ctx context.Context, def *entity.WorkflowDefinition, expectedVersion int64) error {
	if err := def.Validate(); err != nil {
		return err
	}

	steps, err := json.Marshal(nonNilSteps(def.Steps))
	if err != nil {
		return fmt.Errorf("failed to encode steps: %w", err)
	}
	updatedAt := def.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	var result sql.Result
	if expectedVersion == 0 {
		result, err = r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(`
			INSERT INTO workflow_definitions (document_type_id, version, steps, updated_by, updated_at)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT (document_type_id) DO NOTHING
		`), def.DocumentTypeID, 1, string(steps), def.UpdatedBy, updatedAt)
	} else {
		result, err = r.db.Executor(ctx).ExecContext(ctx, r.db.Rebind(`
			UPDATE workflow_definitions
			SET version = ?, steps = ?, updated_by = ?, updated_at = ?
			WHERE document_type_id = ? AND version = ?
		`), expectedVersion+1, string(steps), def.UpdatedBy, updatedAt, def.DocumentTypeID, expectedVersion)
	}
	if err != nil {
		r.logger.Error("Failed to store workflow definition",
			zap.String("document_type_id", def.DocumentTypeID),
			zap.Int64("expected_version", expectedVersion),
			zap.Error(err))
		return fmt.Errorf("failed to store workflow definition: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s is no longer at version %d", workflow.ErrConflict, def.DocumentTypeID, expectedVersion)
	}

	def.Version = expectedVersion + 1
	def.UpdatedAt = updatedAt
	return nil
}

// List returns the document type ids that have a stored definition
func (r *DefinitionRepository) List(ctx context.Context) ([]string, error) {
	rows, err := r.db.Executor(ctx).QueryContext(ctx, `
		SELECT document_type_id FROM workflow_definitions ORDER BY document_type_id
	`)
	if err != nil {
		r.logger.Error("Failed to list workflow definitions", zap.Error(err))
		return nil, fmt.Errorf("failed to list workflow definitions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document type id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func nonNilSteps(steps []entity.WorkflowStep) []entity.WorkflowStep {
	if steps == nil {
		return []entity.WorkflowStep{}
	}
	return steps
}

var _ port.DefinitionStore = (*DefinitionRepository)(nil)
