package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

func TestExcelExporter_Export(t *testing.T) {
	clearance := entity.NewDefaultDefinition("clearance")
	clearance.Steps[1].AssignedApprovers = []string{"staff-1", "staff-2"}
	empty := &entity.WorkflowDefinition{DocumentTypeID: "cedula", Version: 3, Steps: []entity.WorkflowStep{}}

	var buf bytes.Buffer
	require.NoError(t, NewExcelExporter(zap.NewNop()).Export(context.Background(), []*entity.WorkflowDefinition{clearance, empty}, &buf))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Summary", "clearance", "cedula"}, f.GetSheetList())

	summary, err := f.GetRows("Summary")
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, "clearance", summary[1][0])
	assert.Equal(t, "4", summary[1][2])
	assert.Equal(t, "3", summary[2][1])

	rows, err := f.GetRows("clearance")
	require.NoError(t, err)
	require.Len(t, rows, 5)
	assert.Equal(t, "under_review", rows[2][3])
	assert.Equal(t, "Yes", rows[2][6])
	assert.Equal(t, "staff-1, staff-2", rows[2][8])
}

func TestSheetName(t *testing.T) {
	used := map[string]bool{"summary": true}

	assert.Equal(t, "business_permit", SheetName("business/permit", used))
	assert.Equal(t, "business_permit~2", SheetName("business:permit", used))
	assert.Equal(t, "Summary~2", SheetName("Summary", used))

	long := SheetName("certificate-of-residency-for-scholarship-applicants", used)
	assert.Len(t, []rune(long), 31)
}
