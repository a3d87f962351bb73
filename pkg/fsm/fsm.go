// Package fsm implements the per-module state machine: the three states
// {Deactivated, Idle, Locked} and the four events that move between them.
// It is deliberately dumb — it knows nothing about threads, instances, or
// connectors. The owning handle supplies callbacks and is responsible for
// everything the transition implies outside of the state itself.
package fsm

import (
	"fmt"
	"sync"

	"github.com/labrig-project/labrig/pkg/errkind"
)

// State is one of the three module lifecycle states.
type State int

const (
	Deactivated State = iota
	Idle
	Locked
)

func (s State) String() string {
	switch s {
	case Deactivated:
		return "deactivated"
	case Idle:
		return "idle"
	case Locked:
		return "locked"
	default:
		return "unknown"
	}
}

// ParseState is the inverse of State.String, used to reconstruct a state
// reported across the remote transport.
func ParseState(s string) (State, bool) {
	switch s {
	case "deactivated":
		return Deactivated, true
	case "idle":
		return Idle, true
	case "locked":
		return Locked, true
	default:
		return Deactivated, false
	}
}

// Event is one of the four transitions the machine accepts.
type Event int

const (
	EventActivate Event = iota
	EventDeactivate
	EventLock
	EventUnlock
)

func (e Event) String() string {
	switch e {
	case EventActivate:
		return "activate"
	case EventDeactivate:
		return "deactivate"
	case EventLock:
		return "lock"
	case EventUnlock:
		return "unlock"
	default:
		return "unknown"
	}
}

// transitions maps (state, event) to the resulting state. Absence of an
// entry means the event is rejected from that state.
var transitions = map[State]map[Event]State{
	Deactivated: {
		EventActivate: Idle,
	},
	Idle: {
		EventDeactivate: Deactivated,
		EventLock:       Locked,
	},
	Locked: {
		EventDeactivate: Deactivated,
		EventUnlock:     Idle,
	},
}

// Callbacks are supplied by the owning handle. They fire in order on every
// accepted transition; StateMachine holds no lock while calling them, so
// callbacks may themselves call back into the StateMachine only via
// methods documented as reentrant-safe (none currently are — callbacks
// must not recursively trigger another transition on the same machine).
type Callbacks struct {
	// BeforeActivate runs before the Deactivated->Idle transition commits.
	// Returning false aborts the transition; the state does not change.
	BeforeActivate func(Event) bool
	// BeforeDeactivate runs before either Idle->Deactivated or
	// Locked->Deactivated commits. Its return value is observed but the
	// core always treats it as true — failures are logged by the handle,
	// not surfaced here.
	BeforeDeactivate func(Event) bool
	// OnChangeState runs after the state has changed and is the signal
	// the owning handle uses to emit its own change notification.
	OnChangeState func(Event, State)
}

// StateMachine is a single module's FSM instance, safe for concurrent use.
type StateMachine struct {
	mu    sync.Mutex
	state State
	cb    Callbacks
}

// New constructs a StateMachine in the Deactivated state.
func New(cb Callbacks) *StateMachine {
	return &StateMachine{state: Deactivated, cb: cb}
}

// State returns the current state.
func (m *StateMachine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies an event. Any event not valid from the current state
// returns a *errkind.StateError and leaves the state unchanged.
func (m *StateMachine) Fire(event Event) error {
	m.mu.Lock()
	from := m.state
	next, ok := transitions[from][event]
	if !ok {
		m.mu.Unlock()
		return &errkind.StateError{From: from.String(), Event: event.String()}
	}

	switch event {
	case EventActivate:
		if m.cb.BeforeActivate != nil {
			m.mu.Unlock()
			proceed := m.cb.BeforeActivate(event)
			m.mu.Lock()
			if !proceed {
				m.mu.Unlock()
				return fmt.Errorf("activation aborted by before-activate hook")
			}
		}
	case EventDeactivate:
		if m.cb.BeforeDeactivate != nil {
			m.mu.Unlock()
			m.cb.BeforeDeactivate(event)
			m.mu.Lock()
		}
	}

	m.state = next
	m.mu.Unlock()

	if m.cb.OnChangeState != nil {
		m.cb.OnChangeState(event, next)
	}
	return nil
}
