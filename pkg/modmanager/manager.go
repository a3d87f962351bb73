// Package modmanager implements the ModuleManager (C6): the owner of
// every module handle, the dispatcher for every lifecycle operation, and
// the driver of the remote-state reconciliation watchdog.
package modmanager

import (
	"sort"
	"sync"
	"time"

	"github.com/labrig-project/labrig/pkg/audit"
	"github.com/labrig-project/labrig/pkg/broadcast"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/fsm"
	"github.com/labrig-project/labrig/pkg/logging"
	"github.com/labrig-project/labrig/pkg/module"
)

// DefaultWatchdogInterval is the source's __WATCHDOG_TIMEOUT: 1000ms,
// re-armed after each poll round completes rather than run as a fixed-rate
// ticker, so a slow round never overlaps the next one.
const DefaultWatchdogInterval = time.Second

// ChangeKind tags what a Change event reports.
type ChangeKind int

const (
	RowsInserted ChangeKind = iota
	RowsRemoved
	StateChanged
	AppdataChanged
)

// Change is one observable-view notification. Low/High are an inclusive
// index range for Rows* events; Name identifies the single affected row
// for State/AppdataChanged events. Index is left zero by every event the
// manager publishes. Indices are stable only until the next structural
// (Rows*) change.
type Change struct {
	Kind  ChangeKind
	Low   int
	High  int
	Name  string
	Index int
}

// entry pairs a handle with the ordered-view bookkeeping the manager needs.
type entry struct {
	name   string
	handle module.Handle
}

// Manager owns all module handles.
type Manager struct {
	mu      sync.Mutex
	order   []string
	entries map[string]*entry
	remote  map[string]*module.RemoteHandle

	changes *broadcast.Channel[Change]

	watchdogInterval time.Duration
	watchdogStop     chan struct{}
	watchdogDone     chan struct{}
}

// New constructs an empty Manager. The watchdog is not started until
// StartWatchdog is called.
func New() *Manager {
	return &Manager{
		entries: make(map[string]*entry),
		remote:  make(map[string]*module.RemoteHandle),
		changes: broadcast.New[Change](),
	}
}

// Subscribe registers for observable-view change notifications.
func (m *Manager) Subscribe(buffer int) *broadcast.Subscription[Change] {
	return m.changes.Subscribe(buffer)
}

// ActivateTarget implements module.Linker: resolve name and activate it,
// returning the live instance. Used by LocalHandle to resolve connectors.
// Goes through Activate rather than the handle directly so a connector
// cascade still publishes the dependency's own StateChanged Change, keeping
// the notification order observers see in step with activation order.
func (m *Manager) ActivateTarget(name string) (module.Module, error) {
	h := m.get(name)
	if h == nil {
		return nil, &notFoundErr{name}
	}
	if err := m.Activate(name); err != nil {
		return nil, err
	}
	return h.Instance()
}

// Handle returns the named handle, for callers (such as the remote
// transport's admission check) that need the handle itself rather than a
// derived view.
func (m *Manager) Handle(name string) (module.Handle, bool) {
	h := m.get(name)
	return h, h != nil
}

func (m *Manager) get(name string) module.Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[name]
	if !ok {
		return nil
	}
	return e.handle
}

// Add registers a handle under its name. If allowOverwrite is true and a
// handle already exists under that name, the prior one is deactivated and
// removed first.
func (m *Manager) Add(h module.Handle, allowOverwrite bool) error {
	name := h.Name()

	m.mu.Lock()
	_, exists := m.entries[name]
	m.mu.Unlock()

	if exists {
		if !allowOverwrite {
			return &dupErr{name}
		}
		if err := m.Remove(name); err != nil {
			return err
		}
	}

	m.mu.Lock()
	m.entries[name] = &entry{name: name, handle: h}
	m.order = append(m.order, name)
	idx := len(m.order) - 1
	if rh, ok := h.(*module.RemoteHandle); ok {
		m.remote[name] = rh
	}
	m.mu.Unlock()

	m.changes.Publish(Change{Kind: RowsInserted, Low: idx, High: idx, Name: name})
	return nil
}

// Remove deactivates then drops the named handle. Fails if unknown.
func (m *Manager) Remove(name string) error {
	h := m.get(name)
	if h == nil {
		return &notFoundErr{name}
	}
	if err := h.Deactivate(); err != nil {
		logging.WithModule(name).Errorf("deactivate during remove failed: %v", err)
	}

	m.mu.Lock()
	idx := -1
	for i, n := range m.order {
		if n == name {
			idx = i
			break
		}
	}
	if idx >= 0 {
		m.order = append(m.order[:idx], m.order[idx+1:]...)
	}
	delete(m.entries, name)
	delete(m.remote, name)
	m.mu.Unlock()

	if idx >= 0 {
		m.changes.Publish(Change{Kind: RowsRemoved, Low: idx, High: idx, Name: name})
	}
	return nil
}

// dependents returns the names of every handle whose connectors resolve
// to name and which is not currently Deactivated, for cascade-deactivate.
func (m *Manager) dependents(name string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, n := range m.order {
		e := m.entries[n]
		if e.handle.Name() == name {
			continue
		}
		for _, target := range e.handle.ConnectsTo() {
			if target == name && e.handle.State() != fsm.Deactivated {
				out = append(out, n)
				break
			}
		}
	}
	return out
}

func (m *Manager) logAudit(name, base string, op audit.EventType, remote bool, start time.Time, err error) {
	ev := audit.NewEvent(name, base, op).WithDuration(time.Since(start)).WithRemote(remote)
	if err != nil {
		ev = ev.WithError(err)
	} else {
		ev = ev.WithSuccess()
	}
	if aerr := audit.Log(ev); aerr != nil {
		logging.WithModule(name).Warnf("audit log failed: %v", aerr)
	}
}

// Activate activates the named handle.
func (m *Manager) Activate(name string) error {
	h := m.get(name)
	if h == nil {
		return &notFoundErr{name}
	}
	start := time.Now()
	err := h.Activate()
	_, remote := h.(*module.RemoteHandle)
	m.logAudit(name, string(h.Base()), audit.EventActivate, remote, start, err)
	m.changes.Publish(Change{Kind: StateChanged, Name: name})
	return err
}

// Deactivate cascade-deactivates dependents first, then the handle itself.
func (m *Manager) Deactivate(name string) error {
	h := m.get(name)
	if h == nil {
		return &notFoundErr{name}
	}
	for _, dep := range m.dependents(name) {
		if err := m.Deactivate(dep); err != nil {
			logging.WithModule(dep).Errorf("cascade deactivate failed: %v", err)
		}
	}
	start := time.Now()
	err := h.Deactivate()
	_, remote := h.(*module.RemoteHandle)
	m.logAudit(name, string(h.Base()), audit.EventDeactivate, remote, start, err)
	m.changes.Publish(Change{Kind: StateChanged, Name: name})
	return err
}

// Reload captures the transitively active dependent set, reloads the
// handle, then reactivates every captured dependent.
func (m *Manager) Reload(name string) error {
	h := m.get(name)
	if h == nil {
		return &notFoundErr{name}
	}
	deps := m.dependents(name)
	seen := map[string]bool{name: true}
	for _, d := range deps {
		seen[d] = true
	}
	for i := 0; i < len(deps); i++ {
		for _, d := range m.dependents(deps[i]) {
			if !seen[d] {
				seen[d] = true
				deps = append(deps, d)
			}
		}
	}

	start := time.Now()
	err := h.Reload()
	_, remote := h.(*module.RemoteHandle)
	m.logAudit(name, string(h.Base()), audit.EventReload, remote, start, err)
	if err != nil {
		return err
	}

	for _, dep := range deps {
		if err := m.Activate(dep); err != nil {
			logging.WithModule(dep).Errorf("reactivating dependent after reload failed: %v", err)
		}
	}
	return nil
}

// ClearAppdata delegates to the handle.
func (m *Manager) ClearAppdata(name string) error {
	h := m.get(name)
	if h == nil {
		return &notFoundErr{name}
	}
	err := h.ClearAppdata()
	m.changes.Publish(Change{Kind: AppdataChanged, Name: name})
	return err
}

// GetState returns the named handle's current lifecycle state as a string.
func (m *Manager) GetState(name string) (string, error) {
	h := m.get(name)
	if h == nil {
		return "", &notFoundErr{name}
	}
	return h.State().String(), nil
}

// HasAppdata delegates to the handle.
func (m *Manager) HasAppdata(name string) (bool, error) {
	h := m.get(name)
	if h == nil {
		return false, &notFoundErr{name}
	}
	return h.HasAppdata(), nil
}

// GetInstance implicitly activates the named module and returns its
// instance.
func (m *Manager) GetInstance(name string) (module.Module, error) {
	h := m.get(name)
	if h == nil {
		return nil, &notFoundErr{name}
	}
	return h.Instance()
}

// Names returns every registered handle name, in insertion order.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}

// ActivateAll activates every handle, in registration order.
func (m *Manager) ActivateAll() error {
	var first error
	for _, name := range m.Names() {
		if err := m.Activate(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// DeactivateAll deactivates every handle, in reverse registration order.
func (m *Manager) DeactivateAll() error {
	names := m.Names()
	var first error
	for i := len(names) - 1; i >= 0; i-- {
		if err := m.Deactivate(names[i]); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// ClearAllAppdata clears appdata for every handle.
func (m *Manager) ClearAllAppdata() error {
	var first error
	for _, name := range m.Names() {
		if err := m.ClearAppdata(name); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Clear best-effort deactivates every handle (swallowing and logging
// per-handle errors) then drops them all.
func (m *Manager) Clear() {
	for _, name := range m.Names() {
		h := m.get(name)
		if h == nil {
			continue
		}
		if err := h.Deactivate(); err != nil {
			logging.WithModule(name).Errorf("deactivate during clear failed: %v", err)
		}
	}
	m.mu.Lock()
	names := append([]string(nil), m.order...)
	m.order = nil
	m.entries = make(map[string]*entry)
	m.remote = make(map[string]*module.RemoteHandle)
	m.mu.Unlock()

	sort.Strings(names) // deterministic removal-notification order only
	if len(names) > 0 {
		m.changes.Publish(Change{Kind: RowsRemoved, Low: 0, High: len(names) - 1})
	}
}

type notFoundErr struct{ name string }

func (e *notFoundErr) Error() string  { return "no module named " + e.name }
func (e *notFoundErr) Unwrap() error  { return errkind.NotFound }

type dupErr struct{ name string }

func (e *dupErr) Error() string { return "module " + e.name + " already registered" }
func (e *dupErr) Unwrap() error { return errkind.Duplicate }
