// Package threadmgr maintains the orchestrator's named worker-thread
// registry. Each named thread is a goroutine running a small event loop
// that executes submitted closures one at a time, giving a module or task
// worker a single owning goroutine to be "moved onto" the way the source
// system moves a QObject onto a QThread.
package threadmgr

import (
	"sync"
	"time"

	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/logging"
)

// Thread is the external handle to one registered worker thread.
type Thread struct {
	name    string
	work    chan func()
	quit    chan struct{}
	done    chan struct{}
	started bool
	mu      sync.Mutex
}

// newThread allocates a Thread that is not yet started.
func newThread(name string) *Thread {
	return &Thread{
		name: name,
		work: make(chan func(), 16),
		quit: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start begins the thread's event loop. Calling Start twice is a no-op.
func (t *Thread) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.started {
		return
	}
	t.started = true
	go t.loop()
}

func (t *Thread) loop() {
	defer close(t.done)
	log := logging.WithThread(t.name)
	log.Debug("thread event loop started")
	for {
		select {
		case <-t.quit:
			log.Debug("thread event loop stopping")
			return
		case fn := <-t.work:
			fn()
		}
	}
}

// Post submits a closure to run on the thread's own goroutine and blocks
// until it has finished. This is the mechanism by which module and task
// code "on the thread" is actually executed.
func (t *Thread) Post(fn func()) {
	done := make(chan struct{})
	t.work <- func() {
		defer close(done)
		fn()
	}
	<-done
}

// PostAsync submits a closure without waiting for completion.
func (t *Thread) PostAsync(fn func()) {
	t.work <- fn
}

// Quit requests the event loop exit. It does not block.
func (t *Thread) Quit() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.started {
		return
	}
	select {
	case <-t.quit:
		// already closed
	default:
		close(t.quit)
	}
}

// IsRunning reports whether the event loop goroutine is still alive.
func (t *Thread) IsRunning() bool {
	t.mu.Lock()
	started := t.started
	t.mu.Unlock()
	if !started {
		return false
	}
	select {
	case <-t.done:
		return false
	default:
		return true
	}
}

// Join waits for the thread's event loop to stop. timeout == 0 checks once
// and returns immediately, reporting errkind.Timeout if the thread has not
// already stopped. A negative timeout waits forever. A positive timeout
// that elapses before the thread stops returns an errkind.Timeout-wrapping
// error.
func (t *Thread) Join(timeout time.Duration) error {
	if timeout < 0 {
		<-t.done
		return nil
	}
	if timeout == 0 {
		select {
		case <-t.done:
			return nil
		default:
			return errkind.Timeout
		}
	}
	select {
	case <-t.done:
		return nil
	case <-time.After(timeout):
		return errkind.Timeout
	}
}

// Manager is the process-wide name->Thread registry. The zero value is not
// usable; construct with New.
type Manager struct {
	mu      sync.Mutex
	threads map[string]*Thread
}

// New constructs an empty Manager.
func New() *Manager {
	return &Manager{threads: make(map[string]*Thread)}
}

// NewThread creates and registers a new, unstarted thread named name.
// Fails with errkind.Duplicate if the name is already registered.
func (m *Manager) NewThread(name string) (*Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.threads[name]; exists {
		return nil, &dupErr{name}
	}
	t := newThread(name)
	m.threads[name] = t
	logging.WithThread(name).Debug("registered new thread")
	return t, nil
}

// Register attaches an externally constructed thread under name.
// Idempotent if the same *Thread is already registered under that name;
// fails with errkind.Duplicate if a different thread already holds the
// name.
func (m *Manager) Register(name string, t *Thread) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.threads[name]; ok {
		if existing == t {
			return nil
		}
		return &dupErr{name}
	}
	m.threads[name] = t
	return nil
}

// Unregister removes a thread from the registry. Fails with
// errkind.StateError if the thread is still running.
func (m *Manager) Unregister(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.threads[name]
	if !ok {
		return nil
	}
	if t.IsRunning() {
		return &errkind.StateError{From: "running", Event: "unregister"}
	}
	delete(m.threads, name)
	return nil
}

// Quit requests the named thread's event loop stop. No-op if unknown.
func (m *Manager) Quit(name string) {
	m.mu.Lock()
	t := m.threads[name]
	m.mu.Unlock()
	if t != nil {
		t.Quit()
	}
}

// QuitAll requests every registered thread's event loop stop.
func (m *Manager) QuitAll() {
	m.mu.Lock()
	all := make([]*Thread, 0, len(m.threads))
	for _, t := range m.threads {
		all = append(all, t)
	}
	m.mu.Unlock()
	for _, t := range all {
		t.Quit()
	}
}

// Join waits for the named thread to stop, then unregisters it on success.
// The registry mutex is never held while blocking on the join itself. See
// Thread.Join for the meaning of timeout, including the timeout == 0 case.
func (m *Manager) Join(name string, timeout time.Duration) error {
	m.mu.Lock()
	t, ok := m.threads[name]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	if err := t.Join(timeout); err != nil {
		return err
	}
	return m.Unregister(name)
}

// JoinAll waits for every registered thread to stop, with the same
// per-thread timeout applied to each.
func (m *Manager) JoinAll(timeout time.Duration) error {
	m.mu.Lock()
	names := make([]string, 0, len(m.threads))
	for name := range m.threads {
		names = append(names, name)
	}
	m.mu.Unlock()

	var first error
	for _, name := range names {
		if err := m.Join(name, timeout); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Names returns the currently registered thread names.
func (m *Manager) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.threads))
	for name := range m.threads {
		names = append(names, name)
	}
	return names
}

// Get returns the named thread, or nil if not registered.
func (m *Manager) Get(name string) *Thread {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.threads[name]
}

type dupErr struct{ name string }

func (e *dupErr) Error() string { return "thread \"" + e.name + "\" already registered" }
func (e *dupErr) Unwrap() error { return errkind.Duplicate }
