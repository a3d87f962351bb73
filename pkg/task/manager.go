package task

import (
	"sync"
	"time"

	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/logging"
	"github.com/labrig-project/labrig/pkg/threadmgr"
)

// Manager is the ordered table of task workers, each bound to a dedicated
// "task-<name>" thread owned by the shared threadmgr.Manager.
type Manager struct {
	threads *threadmgr.Manager

	mu      sync.Mutex
	order   []string
	workers map[string]*Worker
}

// NewManager constructs an empty Manager backed by threads.
func NewManager(threads *threadmgr.Manager) *Manager {
	return &Manager{
		threads: threads,
		workers: make(map[string]*Worker),
	}
}

// Add constructs a worker from desc and places it on a dedicated thread
// named "task-<name>".
func (m *Manager) Add(desc Descriptor, factory Factory, link Linker) error {
	m.mu.Lock()
	if _, exists := m.workers[desc.Name]; exists {
		m.mu.Unlock()
		return &dupTaskErr{desc.Name}
	}
	m.mu.Unlock()

	w := NewWorker(desc, factory, link)
	t, err := m.threads.NewThread("task-" + desc.Name)
	if err != nil {
		return err
	}
	t.Start()

	m.mu.Lock()
	m.workers[desc.Name] = w
	m.order = append(m.order, desc.Name)
	m.mu.Unlock()
	return nil
}

// Run posts the named worker's Run method onto its thread and returns
// immediately; the worker's state transitions are observable via
// Worker.SubscribeState.
func (m *Manager) Run(name string) error {
	w, t := m.lookup(name)
	if w == nil {
		return &notFoundTaskErr{name}
	}
	t.PostAsync(func() {
		if err := w.Run(); err != nil {
			logging.WithField("task", name).Warnf("task run failed: %v", err)
		}
	})
	return nil
}

// SetArguments delegates to the named worker.
func (m *Manager) SetArguments(name string, kwargs map[string]any) error {
	w, _ := m.lookup(name)
	if w == nil {
		return &notFoundTaskErr{name}
	}
	w.SetArguments(kwargs)
	return nil
}

// Interrupt delegates to the named worker.
func (m *Manager) Interrupt(name string) error {
	w, _ := m.lookup(name)
	if w == nil {
		return &notFoundTaskErr{name}
	}
	w.Interrupt()
	return nil
}

// State returns the named worker's lifecycle state.
func (m *Manager) State(name string) (State, error) {
	w, _ := m.lookup(name)
	if w == nil {
		return Idle, &notFoundTaskErr{name}
	}
	return w.State(), nil
}

func (m *Manager) lookup(name string) (*Worker, *threadmgr.Thread) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.workers[name]
	if !ok {
		return nil, nil
	}
	return w, m.threads.Get("task-" + name)
}

// Names returns every registered worker name in registration order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// Terminate interrupts every worker, then quits and joins every task
// thread.
func (m *Manager) Terminate(joinTimeout time.Duration) {
	for _, name := range m.Names() {
		m.Interrupt(name)
	}
	for _, name := range m.Names() {
		threadName := "task-" + name
		m.threads.Quit(threadName)
	}
	for _, name := range m.Names() {
		threadName := "task-" + name
		if err := m.threads.Join(threadName, joinTimeout); err != nil {
			logging.WithField("task", name).Warnf("join during terminate failed: %v", err)
		}
	}
}

type notFoundTaskErr struct{ name string }

func (e *notFoundTaskErr) Error() string { return "no task named " + e.name }
func (e *notFoundTaskErr) Unwrap() error { return errkind.NotFound }

type dupTaskErr struct{ name string }

func (e *dupTaskErr) Error() string { return "task " + e.name + " already registered" }
func (e *dupTaskErr) Unwrap() error { return errkind.Duplicate }
