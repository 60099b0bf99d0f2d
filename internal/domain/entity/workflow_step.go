package entity

import (
	"slices"
	"strings"
)

// WorkflowStep is one review or approval stage of a document type's workflow.
// ID is stable across edits; Order is derived from the position in the definition.
type WorkflowStep struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description"`
	StatusKey         string   `json:"statusKey"`
	Icon              string   `json:"icon"`
	RequiresApproval  bool     `json:"requiresApproval"`
	SendNotification  bool     `json:"sendNotification"`
	AssignedApprovers []string `json:"assignedApprovers"`
	Order             int      `json:"order"`
}

// HasApprover reports whether userID is assigned to this step
func (s WorkflowStep) HasApprover(userID string) bool {
	return slices.Contains(s.AssignedApprovers, userID)
}

// Clone returns a deep copy of the step
func (s WorkflowStep) Clone() WorkflowStep {
	c := s
	c.AssignedApprovers = append([]string{}, s.AssignedApprovers...)
	return c
}

// NormalizeApprovers trims, de-duplicates and sorts approver ids, dropping blanks
func NormalizeApprovers(ids []string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id != "" {
			out = append(out, id)
		}
	}
	slices.Sort(out)
	return slices.Compact(out)
}
