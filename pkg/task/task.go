// Package task implements the TaskWorker and TaskManager components (C7,
// C8): named, cancelable units of work, each bound to its own worker
// thread, with connector resolution delegated to a module manager.
package task

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/labrig-project/labrig/pkg/broadcast"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/module"
)

// ErrCancelled is raised cooperatively when a task observes its interrupt
// flag at one of its own _check_interrupt-equivalent observation points.
var ErrCancelled = errors.New("task cancelled")

// State is a worker's lifecycle state.
type State int

const (
	Idle State = iota
	Running
)

func (s State) String() string {
	if s == Running {
		return "running"
	}
	return "idle"
}

// Task is the contract a registered task class implements. Activate may
// observe the Control passed to Run for cancellation and should return
// ErrCancelled if it aborts cooperatively.
type Task interface {
	Activate(ctl *Control) error
	Run(ctl *Control, kwargs map[string]any, connections map[string]module.Module) (any, error)
	Deactivate() error
}

// Factory constructs a fresh Task instance.
type Factory func() Task

// Control is handed to a running task so it can cooperatively observe
// cancellation at its own observation points.
type Control struct {
	cancelled int32
}

// CheckInterrupt is the _check_interrupt-equivalent observation point: a
// task calls this periodically and returns promptly if it reports true.
func (c *Control) CheckInterrupt() bool {
	return atomic.LoadInt32(&c.cancelled) != 0
}

func (c *Control) interrupt() {
	atomic.StoreInt32(&c.cancelled, 1)
}

// StateEvent is published on every Idle<->Running transition.
type StateEvent struct {
	Name  string
	State State
}

// Descriptor is the validated configuration a Worker is built from.
type Descriptor struct {
	Name    string
	Class   string
	Options map[string]any
	Connect map[string]string
	Default map[string]any // default keyword arguments from the task class signature
}

// Linker resolves and activates a connector target by name, mirroring
// module.Linker so a Worker can share the same manager a module handle
// does.
type Linker interface {
	ActivateTarget(name string) (module.Module, error)
}

// Worker is one named task instance bound to its own thread.
type Worker struct {
	desc     Descriptor
	factory  Factory
	link     Linker
	states   *broadcast.Channel[StateEvent]
	paramsCh *broadcast.Channel[map[string]any]

	mu        sync.Mutex
	state     State
	kwargs    map[string]any
	ctl       *Control
	lastValue any
	lastOK    bool
}

// NewWorker constructs an unstarted worker. kwargs start as desc.Default.
func NewWorker(desc Descriptor, factory Factory, link Linker) *Worker {
	kwargs := make(map[string]any, len(desc.Default))
	for k, v := range desc.Default {
		kwargs[k] = v
	}
	return &Worker{
		desc:     desc,
		factory:  factory,
		link:     link,
		states:   broadcast.New[StateEvent](),
		paramsCh: broadcast.New[map[string]any](),
		kwargs:   kwargs,
	}
}

func (w *Worker) Name() string { return w.desc.Name }

// SubscribeState registers for Idle<->Running transition events.
func (w *Worker) SubscribeState(buffer int) *broadcast.Subscription[StateEvent] {
	return w.states.Subscribe(buffer)
}

// SubscribeParams registers for parameters-changed events.
func (w *Worker) SubscribeParams(buffer int) *broadcast.Subscription[map[string]any] {
	return w.paramsCh.Subscribe(buffer)
}

// State reports the worker's current lifecycle state.
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// SetArguments replaces the stored keyword-argument record wholesale and
// emits a parameters-changed event.
func (w *Worker) SetArguments(kwargs map[string]any) {
	cp := make(map[string]any, len(kwargs))
	for k, v := range kwargs {
		cp[k] = v
	}
	w.mu.Lock()
	w.kwargs = cp
	w.mu.Unlock()
	w.paramsCh.Publish(cp)
}

// Interrupt sets the cancel flag observable inside the currently running
// task, if any. A no-op when the worker is Idle.
func (w *Worker) Interrupt() {
	w.mu.Lock()
	ctl := w.ctl
	w.mu.Unlock()
	if ctl != nil {
		ctl.interrupt()
	}
}

// LastResult returns the most recent run's (value, ok) pair. ok is false
// if the worker has never completed a run, or its most recent run did not
// complete (cancelled or errored).
func (w *Worker) LastResult() (any, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastValue, w.lastOK
}

// Run executes the task's single-execution-path semantics inline on the
// calling goroutine. TaskManager is responsible for posting this onto the
// worker's dedicated thread so the call is non-blocking from the caller's
// perspective.
func (w *Worker) Run() error {
	w.mu.Lock()
	w.lastValue, w.lastOK = nil, false
	w.mu.Unlock()

	resolved := make(map[string]module.Module, len(w.desc.Connect))
	for localName, target := range w.desc.Connect {
		inst, err := w.link.ActivateTarget(target)
		if err != nil {
			return &errkind.ConnectionError{Module: w.desc.Name, Connector: localName, Reason: err.Error()}
		}
		resolved[localName] = inst
	}

	t := w.factory()
	ctl := &Control{}

	w.mu.Lock()
	w.ctl = ctl
	w.state = Running
	kwargs := w.kwargs
	w.mu.Unlock()
	w.states.Publish(StateEvent{Name: w.desc.Name, State: Running})

	var runErr error
	func() {
		defer func() {
			if derr := t.Deactivate(); derr != nil && runErr == nil {
				runErr = derr
			}
		}()
		if err := t.Activate(ctl); err != nil {
			runErr = err
			return
		}
		value, err := t.Run(ctl, kwargs, resolved)
		if err != nil {
			runErr = err
			return
		}
		w.mu.Lock()
		w.lastValue, w.lastOK = value, true
		w.mu.Unlock()
	}()

	w.mu.Lock()
	w.ctl = nil
	w.state = Idle
	w.mu.Unlock()
	w.states.Publish(StateEvent{Name: w.desc.Name, State: Idle})

	return runErr
}
