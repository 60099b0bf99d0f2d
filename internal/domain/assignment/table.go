package assignment

import (
	"sort"
	"sync"

	"github.com/garyjia/barangay-docflow/internal/domain/entity"
)

// Derive computes assignment rows from the approval steps of a definition.
// Approvers listed on steps that do not require approval produce no rows.
func Derive(def *entity.WorkflowDefinition) []entity.ApproverAssignment {
	var rows []entity.ApproverAssignment
	for _, step := range def.Steps {
		if !step.RequiresApproval {
			continue
		}
		for _, approverID := range entity.NormalizeApprovers(step.AssignedApprovers) {
			rows = append(rows, entity.ApproverAssignment{
				DocumentTypeID: def.DocumentTypeID,
				StepID:         step.ID,
				ApproverID:     approverID,
				StatusKey:      step.StatusKey,
			})
		}
	}
	return rows
}

// Table is the live in-memory view of approver assignments consumed by
// notification routing. Sync publishes into it; approver listings read the
// durable rows, which survive a restart before the first sync.
type Table struct {
	mu    sync.RWMutex
	rows  map[string][]entity.ApproverAssignment
	steps map[string]map[string][]string
}

// NewTable creates an empty assignment table
func NewTable() *Table {
	return &Table{
		rows:  make(map[string][]entity.ApproverAssignment),
		steps: make(map[string]map[string][]string),
	}
}

// Replace atomically swaps all rows of one document type
func (t *Table) Replace(documentTypeID string, rows []entity.ApproverAssignment) {
	copied := append([]entity.ApproverAssignment{}, rows...)
	byStep := make(map[string][]string)
	for _, r := range copied {
		byStep[r.StepID] = append(byStep[r.StepID], r.ApproverID)
	}
	for stepID := range byStep {
		sort.Strings(byStep[stepID])
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.rows[documentTypeID] = copied
	t.steps[documentTypeID] = byStep
}

// Approvers returns the approver ids of a step and whether the document type was ever published
func (t *Table) Approvers(documentTypeID, stepID string) ([]string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	byStep, ok := t.steps[documentTypeID]
	if !ok {
		return nil, false
	}
	return append([]string{}, byStep[stepID]...), true
}

// Count returns the total number of rows across document types
func (t *Table) Count() int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	n := 0
	for _, rows := range t.rows {
		n += len(rows)
	}
	return n
}
