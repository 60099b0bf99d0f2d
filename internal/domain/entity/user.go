package entity

import "context"

// User is a directory entry for a resident or staff member
type User struct {
	ID          string `json:"id" mapstructure:"id"`
	DisplayName string `json:"displayName" mapstructure:"display_name"`
	Role        string `json:"role" mapstructure:"role"`
	Email       string `json:"email,omitempty" mapstructure:"email"`
	Phone       string `json:"phone,omitempty" mapstructure:"phone"`
	MessengerID string `json:"messengerId,omitempty" mapstructure:"messenger_id"`
}

// Actor is the authenticated caller of an operation
type Actor struct {
	ID   string `json:"id"`
	Role string `json:"role"`
}

// IsAdmin reports whether the actor holds the override capability
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

type actorKey struct{}

// ContextWithActor attaches the caller identity to a context
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller identity, or the system actor when none is attached
func ActorFromContext(ctx context.Context) Actor {
	if actor, ok := ctx.Value(actorKey{}).(Actor); ok {
		return actor
	}
	return Actor{ID: SystemActorID}
}
