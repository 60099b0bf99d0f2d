package workflow

import "context"

// StateMachine tracks the current state of one request and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has at least one permitted transition in the current state
	CanFire(trigger Trigger) bool

	// Fire attempts to execute the trigger, transitioning to the new state if allowed.
	// Entry actions registered for the destination state run after the state changes.
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns all triggers configured for the current state
	PermittedTriggers() []Trigger
}

// EntryAction runs when a state is entered through Fire
type EntryAction func(ctx context.Context, from, to State, trigger Trigger) error
