package entity

import "time"

// DocumentRequest is a resident's request for an official document.
// Only the workflow-relevant fields live here.
type DocumentRequest struct {
	ID               string         `json:"id"`
	DocumentTypeID   string         `json:"documentTypeId"`
	RequesterID      string         `json:"requesterId"`
	Reference        string         `json:"reference"`
	CurrentStepID    string         `json:"currentStepId"`
	CurrentStatusKey string         `json:"currentStatusKey"`
	History          []HistoryEntry `json:"history"`
	Version          int64          `json:"version"`
	CreatedAt        time.Time      `json:"createdAt"`
	UpdatedAt        time.Time      `json:"updatedAt"`
}

// HistoryEntry is one recorded transition of a request
type HistoryEntry struct {
	Seq       int       `json:"seq"`
	StepID    string    `json:"stepId"`
	StatusKey string    `json:"statusKey"`
	Action    string    `json:"action"`
	ActorID   string    `json:"actorId"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// IsTerminal reports whether the request reached COMPLETE or REJECTED
func (r *DocumentRequest) IsTerminal() bool {
	return r.CurrentStepID == CurrentStepComplete || r.CurrentStepID == CurrentStepRejected
}

// IsUnstarted reports whether the request has not entered any step yet
func (r *DocumentRequest) IsUnstarted() bool {
	return r.CurrentStepID == ""
}

// AppendHistory records a transition with the next sequence number
func (r *DocumentRequest) AppendHistory(entry HistoryEntry) HistoryEntry {
	entry.Seq = len(r.History) + 1
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	r.History = append(r.History, entry)
	return entry
}

// Clone returns a deep copy of the request
func (r *DocumentRequest) Clone() *DocumentRequest {
	c := *r
	c.History = append([]HistoryEntry{}, r.History...)
	return &c
}
