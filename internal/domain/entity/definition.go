package entity

import (
	"fmt"
	"time"

	"github.com/garyjia/barangay-docflow/internal/domain/workflow"
)

var reservedStepIDs = map[string]bool{
	CurrentStepComplete: true,
	CurrentStepRejected: true,
	"UNSTARTED":         true,
}

// WorkflowDefinition is the ordered step list configured for one document type
type WorkflowDefinition struct {
	DocumentTypeID string         `json:"documentTypeId"`
	Steps          []WorkflowStep `json:"steps"`
	Version        int64          `json:"version"`
	UpdatedBy      string         `json:"updatedBy,omitempty"`
	UpdatedAt      time.Time      `json:"updatedAt"`
	IsDefault      bool           `json:"isDefault"`
	Source         string         `json:"source,omitempty"`
}

// Clone returns a deep copy of the definition
func (d *WorkflowDefinition) Clone() *WorkflowDefinition {
	if d == nil {
		return nil
	}
	c := *d
	c.Steps = make([]WorkflowStep, len(d.Steps))
	for i, s := range d.Steps {
		c.Steps[i] = s.Clone()
	}
	return &c
}

// IndexOf returns the position of the step with the given id, or -1
func (d *WorkflowDefinition) IndexOf(stepID string) int {
	for i := range d.Steps {
		if d.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// Step returns the step with the given id
func (d *WorkflowDefinition) Step(stepID string) (*WorkflowStep, bool) {
	i := d.IndexOf(stepID)
	if i < 0 {
		return nil, false
	}
	return &d.Steps[i], true
}

// Renumber recomputes Order from position and normalizes approver sets
func (d *WorkflowDefinition) Renumber() {
	for i := range d.Steps {
		d.Steps[i].Order = i
		d.Steps[i].AssignedApprovers = NormalizeApprovers(d.Steps[i].AssignedApprovers)
	}
}

// Validate checks structural invariants of the step list.
// It never modifies the definition.
func (d *WorkflowDefinition) Validate() error {
	if d.DocumentTypeID == "" {
		return workflow.NewValidationError("documentTypeId", workflow.RuleRequired, "document type id is required")
	}

	ids := make(map[string]int, len(d.Steps))
	keys := make(map[string]int, len(d.Steps))
	for i, s := range d.Steps {
		if s.ID == "" {
			return workflow.NewValidationError(fmt.Sprintf("steps[%d].id", i), workflow.RuleRequired, "step id is required")
		}
		if reservedStepIDs[s.ID] {
			return workflow.NewValidationError(fmt.Sprintf("steps[%d].id", i), workflow.RuleInvalidFormat,
				fmt.Sprintf("step id %q is reserved", s.ID))
		}
		if s.StatusKey == "" {
			return workflow.NewValidationError(fmt.Sprintf("steps[%d].statusKey", i), workflow.RuleRequired, "status key is required")
		}
		if j, dup := ids[s.ID]; dup {
			return workflow.NewValidationError(fmt.Sprintf("steps[%d].id", i), workflow.RuleDuplicateStepID,
				fmt.Sprintf("step id %q already used by step %d", s.ID, j))
		}
		if j, dup := keys[s.StatusKey]; dup {
			return workflow.NewValidationError(fmt.Sprintf("steps[%d].statusKey", i), workflow.RuleDuplicateStatusKey,
				fmt.Sprintf("status key %q already used by step %d", s.StatusKey, j))
		}
		ids[s.ID] = i
		keys[s.StatusKey] = i
	}
	return nil
}
