package entity

import "github.com/google/uuid"

// stepNamespace seeds name-based ids for default template steps
var stepNamespace = uuid.MustParse("6f1d2c8e-4b7a-5e39-9a0d-2f3c4b5a6e71")

type templateStep struct {
	statusKey        string
	name             string
	description      string
	icon             string
	requiresApproval bool
	sendNotification bool
}

var defaultTemplate = []templateStep{
	{"submitted", "Request Submitted", "The request was received by the barangay hall", "inbox", false, false},
	{"under_review", "Under Review", "Staff verify the resident record and requirements", "search", true, true},
	{"for_signature", "For Punong Barangay Signature", "Awaiting signature of the Punong Barangay", "pen", true, true},
	{"ready_for_release", "Ready for Release", "The document can be claimed at the barangay hall", "check", true, true},
}

// DefaultStepID returns the deterministic id of a default template step
func DefaultStepID(documentTypeID, statusKey string) string {
	return uuid.NewSHA1(stepNamespace, []byte(documentTypeID+"/"+statusKey)).String()
}

// DefaultSteps returns the system default step list for a document type
func DefaultSteps(documentTypeID string) []WorkflowStep {
	steps := make([]WorkflowStep, len(defaultTemplate))
	for i, t := range defaultTemplate {
		steps[i] = WorkflowStep{
			ID:                DefaultStepID(documentTypeID, t.statusKey),
			Name:              t.name,
			Description:       t.description,
			StatusKey:         t.statusKey,
			Icon:              t.icon,
			RequiresApproval:  t.requiresApproval,
			SendNotification:  t.sendNotification,
			AssignedApprovers: []string{},
			Order:             i,
		}
	}
	return steps
}

// NewDefaultDefinition returns the unpersisted default definition for a document type
func NewDefaultDefinition(documentTypeID string) *WorkflowDefinition {
	return &WorkflowDefinition{
		DocumentTypeID: documentTypeID,
		Steps:          DefaultSteps(documentTypeID),
		IsDefault:      true,
		Source:         SourceDefault,
	}
}
