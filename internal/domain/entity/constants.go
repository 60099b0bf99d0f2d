package entity

// Terminal markers stored in DocumentRequest.CurrentStepID
const (
	CurrentStepComplete = "COMPLETE"
	CurrentStepRejected = "REJECTED"
)

// Status keys recorded on a request outside the configured steps
const (
	StatusKeyPending  = "pending"
	StatusKeyComplete = "complete"
	StatusKeyRejected = "rejected"
)

// History action constants
const (
	ActionCreated   = "CREATED"
	ActionEntered   = "ENTERED"
	ActionApproved  = "APPROVED"
	ActionRejected  = "REJECTED"
	ActionCompleted = "COMPLETED"
)

// Role constants supplied by the authentication layer
const (
	RoleAdmin    = "admin"
	RoleStaff    = "staff"
	RoleResident = "resident"
)

// SystemActorID marks transitions performed by the engine itself (auto steps)
const SystemActorID = "system"

// Definition sources
const (
	SourceDurable  = "durable"
	SourceFallback = "fallback"
	SourceDefault  = "default"
)
