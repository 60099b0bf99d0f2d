package entity

import "time"

// ApproverAssignment is a derived (document type, step, approver) row
// materialized from a definition's approval steps.
type ApproverAssignment struct {
	DocumentTypeID string    `json:"documentTypeId"`
	StepID         string    `json:"stepId"`
	ApproverID     string    `json:"approverId"`
	StatusKey      string    `json:"statusKey"`
	SyncedAt       time.Time `json:"syncedAt"`
}

// Key identifies the assignment independent of its status key and sync time
func (a ApproverAssignment) Key() string {
	return a.DocumentTypeID + "|" + a.StepID + "|" + a.ApproverID
}
