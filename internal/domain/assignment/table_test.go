package assignment

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

func testDefinition() *entity.WorkflowDefinition {
	return &entity.WorkflowDefinition{
		DocumentTypeID: "clearance",
		Steps: []entity.WorkflowStep{
			{ID: "s1", StatusKey: "submitted", AssignedApprovers: []string{"ignored"}},
			{ID: "s2", StatusKey: "review", RequiresApproval: true, AssignedApprovers: []string{"u2", "u1", "u1"}},
			{ID: "s3", StatusKey: "sign", RequiresApproval: true},
		},
	}
}

func TestDerive(t *testing.T) {
	rows := Derive(testDefinition())

	require.Len(t, rows, 2)
	assert.Equal(t, "u1", rows[0].ApproverID)
	assert.Equal(t, "u2", rows[1].ApproverID)
	for _, r := range rows {
		assert.Equal(t, "s2", r.StepID)
		assert.Equal(t, "review", r.StatusKey)
		assert.Equal(t, "clearance", r.DocumentTypeID)
	}
}

func TestTable_ReplaceAndQuery(t *testing.T) {
	table := NewTable()

	_, known := table.Approvers("clearance", "s2")
	assert.False(t, known)

	table.Replace("clearance", Derive(testDefinition()))
	table.Replace("indigency", []entity.ApproverAssignment{
		{DocumentTypeID: "indigency", StepID: "x", ApproverID: "u1", StatusKey: "check"},
	})

	approvers, known := table.Approvers("clearance", "s2")
	assert.True(t, known)
	assert.Equal(t, []string{"u1", "u2"}, approvers)

	approvers, known = table.Approvers("clearance", "s3")
	assert.True(t, known)
	assert.Empty(t, approvers)

	approvers, known = table.Approvers("indigency", "x")
	assert.True(t, known)
	assert.Equal(t, []string{"u1"}, approvers)
	assert.Equal(t, 3, table.Count())

	table.Replace("clearance", nil)
	assert.Equal(t, 1, table.Count())
}

func TestTable_ConcurrentAccess(t *testing.T) {
	table := NewTable()
	rows := Derive(testDefinition())

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			table.Replace("clearance", rows)
		}()
		go func() {
			defer wg.Done()
			table.Approvers("clearance", "s2")
			table.Count()
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, table.Count())
}
