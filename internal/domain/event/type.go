package event

// Type names what happened; values are stable strings used in logs and metrics
type Type string

const (
	TypeWorkflowChanged  Type = "workflow.changed"
	TypeStepEntered      Type = "step.entered"
	TypeRequestCreated   Type = "request.created"
	TypeRequestCompleted Type = "request.completed"
	TypeRequestRejected  Type = "request.rejected"
	TypeSyncCompleted    Type = "sync.completed"
)

var knownTypes = map[Type]struct{}{
	TypeWorkflowChanged:  {},
	TypeStepEntered:      {},
	TypeRequestCreated:   {},
	TypeRequestCompleted: {},
	TypeRequestRejected:  {},
	TypeSyncCompleted:    {},
}

func (t Type) String() string {
	return string(t)
}

func (t Type) IsValid() bool {
	_, ok := knownTypes[t]
	return ok
}

// Closing reports whether the event ends a request's workflow
func (t Type) Closing() bool {
	return t == TypeRequestCompleted || t == TypeRequestRejected
}
