package workflow

import (
	"context"
	"fmt"
	"slices"
)

// GuardFunc decides whether a permitted transition may be taken right now
type GuardFunc func(ctx context.Context) bool

// StateMachineBuilder collects transition rules and stamps out machines
type StateMachineBuilder interface {
	// Configure returns the rule set for a state, creating it on first use
	Configure(state State) StateConfiguration

	// Build freezes the rules and returns a machine positioned at initialState
	Build(initialState State) StateMachine
}

// StateConfiguration declares what may happen while in one state
type StateConfiguration interface {
	// Permit allows trigger to move the machine to toState
	Permit(trigger Trigger, toState State) StateConfiguration

	// PermitIf is Permit guarded by a predicate. Edges for the same trigger
	// are tried in declaration order.
	PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration

	// OnEntry registers an action run whenever this state is entered
	OnEntry(action EntryAction) StateConfiguration
}

type edgeKey struct {
	from    State
	trigger Trigger
}

type edge struct {
	to    State
	guard GuardFunc
}

// ruleSet is the mutable view of one state handed out by Configure
type ruleSet struct {
	state State
	b     *builder
}

type builder struct {
	edges   map[edgeKey][]edge
	entries map[State][]EntryAction
	known   map[State]*ruleSet
}

// table is the frozen form shared by machines built from one Build call
type table struct {
	edges   map[edgeKey][]edge
	entries map[State][]EntryAction
	known   map[State]bool
}

type machine struct {
	current State
	rules   *table
}

// NewBuilder returns an empty builder
func NewBuilder() StateMachineBuilder {
	return &builder{
		edges:   make(map[edgeKey][]edge),
		entries: make(map[State][]EntryAction),
		known:   make(map[State]*ruleSet),
	}
}

func mustValid(kind string, s State) {
	if !s.IsValid() {
		panic(fmt.Sprintf("workflow: %s state %q is not valid", kind, s))
	}
}

func (b *builder) Configure(state State) StateConfiguration {
	mustValid("configured", state)
	rs, ok := b.known[state]
	if !ok {
		rs = &ruleSet{state: state, b: b}
		b.known[state] = rs
	}
	return rs
}

func (b *builder) Build(initialState State) StateMachine {
	mustValid("initial", initialState)

	t := &table{
		edges:   make(map[edgeKey][]edge, len(b.edges)),
		entries: make(map[State][]EntryAction, len(b.entries)),
		known:   make(map[State]bool, len(b.known)),
	}
	for k, es := range b.edges {
		t.edges[k] = slices.Clone(es)
	}
	for s, actions := range b.entries {
		t.entries[s] = slices.Clone(actions)
	}
	for s := range b.known {
		t.known[s] = true
	}
	return &machine{current: initialState, rules: t}
}

func (r *ruleSet) Permit(trigger Trigger, toState State) StateConfiguration {
	return r.PermitIf(trigger, toState, nil)
}

func (r *ruleSet) PermitIf(trigger Trigger, toState State, guard GuardFunc) StateConfiguration {
	mustValid("target", toState)
	k := edgeKey{from: r.state, trigger: trigger}
	r.b.edges[k] = append(r.b.edges[k], edge{to: toState, guard: guard})
	return r
}

func (r *ruleSet) OnEntry(action EntryAction) StateConfiguration {
	if action != nil {
		r.b.entries[r.state] = append(r.b.entries[r.state], action)
	}
	return r
}

func (m *machine) State() State {
	return m.current
}

// CanFire ignores guards; Fire reports ErrGuardFailed when every guard declines
func (m *machine) CanFire(trigger Trigger) bool {
	return len(m.rules.edges[edgeKey{m.current, trigger}]) > 0
}

func (m *machine) Fire(ctx context.Context, trigger Trigger) error {
	candidates := m.rules.edges[edgeKey{m.current, trigger}]
	if len(candidates) == 0 {
		if !m.rules.known[m.current] {
			return fmt.Errorf("%w: %s has no rules, cannot fire %s", ErrInvalidTransition, m.current, trigger)
		}
		return fmt.Errorf("%w: %s does not permit %s", ErrInvalidTransition, m.current, trigger)
	}

	idx := slices.IndexFunc(candidates, func(e edge) bool {
		return e.guard == nil || e.guard(ctx)
	})
	if idx < 0 {
		return fmt.Errorf("%w: %s rejected %s", ErrGuardFailed, m.current, trigger)
	}

	from, to := m.current, candidates[idx].to
	m.current = to
	for _, action := range m.rules.entries[to] {
		if err := action(ctx, from, to, trigger); err != nil {
			return fmt.Errorf("entering %s: %w", to, err)
		}
	}
	return nil
}

func (m *machine) PermittedTriggers() []Trigger {
	triggers := []Trigger{}
	for k := range m.rules.edges {
		if k.from == m.current {
			triggers = append(triggers, k.trigger)
		}
	}
	slices.Sort(triggers)
	return triggers
}
