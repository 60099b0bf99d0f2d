package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/barangay-docflow/internal/domain/assignment"
	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

type mockExporter struct {
	exported   []string
	exportFunc func(ctx context.Context, defs []*entity.WorkflowDefinition, w io.Writer) error
}

func (m *mockExporter) Export(ctx context.Context, defs []*entity.WorkflowDefinition, w io.Writer) error {
	for _, d := range defs {
		m.exported = append(m.exported, d.DocumentTypeID)
	}
	if m.exportFunc != nil {
		return m.exportFunc(ctx, defs, w)
	}
	_, err := w.Write([]byte("ok"))
	return err
}

func TestExportService_ExportWorkflows(t *testing.T) {
	store := newMockDefinitionStore()
	directory := newMockDirectory()
	config := NewWorkflowConfigService(store, nil, directory, nil, &mockLogger{})
	sync := NewSyncService(store, nil, newMockAssignmentRepo(), assignment.NewTable(), directory,
		&mockTxManager{}, nil, []string{"residency", "clearance"}, &mockLogger{})

	t.Run("all known types", func(t *testing.T) {
		exporter := &mockExporter{}
		var buf bytes.Buffer
		require.NoError(t, NewExportService(config, sync, exporter, &mockLogger{}).ExportWorkflows(context.Background(), nil, &buf))
		assert.Equal(t, []string{"clearance", "residency"}, exporter.exported)
		assert.Equal(t, "ok", buf.String())
	})

	t.Run("selected types", func(t *testing.T) {
		exporter := &mockExporter{}
		require.NoError(t, NewExportService(config, sync, exporter, &mockLogger{}).ExportWorkflows(context.Background(), []string{"indigency"}, io.Discard))
		assert.Equal(t, []string{"indigency"}, exporter.exported)
	})

	t.Run("exporter failure", func(t *testing.T) {
		exporter := &mockExporter{exportFunc: func(ctx context.Context, defs []*entity.WorkflowDefinition, w io.Writer) error {
			return errors.New("disk full")
		}}
		err := NewExportService(config, sync, exporter, &mockLogger{}).ExportWorkflows(context.Background(), nil, io.Discard)
		assert.Error(t, err)
	})
}
