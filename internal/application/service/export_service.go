package service

import (
	"context"
	"fmt"
	"io"

	"github.com/garyjia/barangay-docflow/internal/application/port"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

// ExportService writes workflow definitions to a spreadsheet
type ExportService interface {
	// ExportWorkflows exports the given document types, or every known type when none are given
	ExportWorkflows(ctx context.Context, documentTypeIDs []string, w io.Writer) error
}

type exportServiceImpl struct {
	workflows WorkflowConfigService
	sync      SyncService
	exporter  port.WorkflowExporter
	logger    Logger
}

// NewExportService creates a new ExportService
func NewExportService(workflows WorkflowConfigService, sync SyncService, exporter port.WorkflowExporter, logger Logger) ExportService {
	return &exportServiceImpl{
		workflows: workflows,
		sync:      sync,
		exporter:  exporter,
		logger:    logger,
	}
}

// ExportWorkflows exports the given document types, or every known type when none are given
func (s *exportServiceImpl) ExportWorkflows(ctx context.Context, documentTypeIDs []string, w io.Writer) error {
	ids := documentTypeIDs
	if len(ids) == 0 {
		var err error
		ids, err = s.sync.DocumentTypes(ctx)
		if err != nil {
			return fmt.Errorf("export workflows: %w", err)
		}
	}

	defs := make([]*entity.WorkflowDefinition, 0, len(ids))
	for _, id := range ids {
		def, err := s.workflows.GetWorkflow(ctx, id)
		if err != nil {
			return fmt.Errorf("export workflows: %w", err)
		}
		defs = append(defs, def)
	}

	if err := s.exporter.Export(ctx, defs, w); err != nil {
		s.logger.Error("Workflow export failed", "document_types", len(defs), "error", err)
		return fmt.Errorf("export workflows: %w", err)
	}

	s.logger.Info("Workflows exported", "document_types", len(defs))
	return nil
}
