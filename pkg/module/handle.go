package module

import (
	"strings"
	"sync"

	"github.com/labrig-project/labrig/pkg/appdata"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/fsm"
	"github.com/labrig-project/labrig/pkg/logging"
	"github.com/labrig-project/labrig/pkg/mainloop"
	"github.com/labrig-project/labrig/pkg/threadmgr"
)

// Handle is the external contract shared by LocalHandle and RemoteHandle:
// everything ModuleManager needs regardless of where the instance lives.
type Handle interface {
	Name() string
	Base() Base
	State() fsm.State
	Activate() error
	Deactivate() error
	Reload() error
	ClearAppdata() error
	HasAppdata() bool
	Instance() (Module, error)
	ConnectsTo() []string
}

// Linker is the subset of ModuleManager a handle needs: resolving and
// implicitly activating a connector target by name.
type Linker interface {
	ActivateTarget(name string) (Module, error)
}

// Descriptor is the validated, schema-checked data a handle is built from.
type Descriptor struct {
	Class   string
	Name    string
	Base    Base
	Options map[string]any
	Connect map[string]string // local connector name -> target module name
}

// LocalHandle owns the lifecycle of one in-process module instance.
type LocalHandle struct {
	desc     Descriptor
	registry *Registry
	link     Linker
	threads  *threadmgr.Manager
	store    *appdata.Store
	main     *mainloop.Loop // nil means "run inline, no thread confinement"

	fsm *fsm.StateMachine

	mu          sync.Mutex
	activating  bool
	deactivating bool

	instance   Module
	thread     *threadmgr.Thread
	resolved   map[string]Module
}

// NewLocalHandle validates desc's sub-schema is resolvable (the class must
// be registered) and constructs an unactivated handle.
func NewLocalHandle(desc Descriptor, registry *Registry, link Linker, threads *threadmgr.Manager, store *appdata.Store, main *mainloop.Loop) (*LocalHandle, error) {
	if _, ok := registry.New(desc.Class); !ok {
		return nil, &errkind.ConfigError{Module: desc.Name, Option: "module.Class"}
	}
	h := &LocalHandle{
		desc:     desc,
		registry: registry,
		link:     link,
		threads:  threads,
		store:    store,
		main:     main,
	}
	h.fsm = fsm.New(fsm.Callbacks{
		OnChangeState: func(_ fsm.Event, _ fsm.State) {
			logging.WithModule(desc.Name).WithField("base", string(desc.Base)).Debug("state changed")
		},
	})
	return h, nil
}

func (h *LocalHandle) Name() string  { return h.desc.Name }
func (h *LocalHandle) Base() Base    { return h.desc.Base }
func (h *LocalHandle) State() fsm.State { return h.fsm.State() }

func (h *LocalHandle) ConnectsTo() []string {
	targets := make([]string, 0, len(h.desc.Connect))
	for _, target := range h.desc.Connect {
		targets = append(targets, target)
	}
	return targets
}

func (h *LocalHandle) appdataKey() appdata.Key {
	class := h.desc.Class
	if i := strings.LastIndex(class, "."); i >= 0 {
		class = class[i+1:]
	}
	return appdata.Key{ClassName: class, Base: string(h.desc.Base), Name: h.desc.Name}
}

// runOnMain redirects fn onto the main loop if one is configured;
// otherwise runs fn inline. It does not check whether the caller is
// already on the main loop: there is no
// reliable way in Go to ask "is this goroutine the main loop's goroutine",
// so callers that already hold main-loop confinement (the loop's own
// Run goroutine) must not call through Handle methods reentrantly.
func (h *LocalHandle) runOnMain(fn func() error) error {
	if h.main == nil {
		return fn()
	}
	return h.main.Call(fn)
}

// Activate implements the seven-step local activation sequence.
func (h *LocalHandle) Activate() error {
	return h.runOnMain(h.activateLocked)
}

func (h *LocalHandle) activateLocked() error {
	h.mu.Lock()
	if h.activating {
		h.mu.Unlock()
		return nil
	}
	if h.fsm.State() != fsm.Deactivated {
		h.mu.Unlock()
		if gm, ok := h.instance.(GuiModule); ok {
			gm.Show()
		}
		return nil
	}
	h.activating = true
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.activating = false
		h.mu.Unlock()
	}()

	resolved := make(map[string]Module, len(h.desc.Connect))
	for localName, target := range h.desc.Connect {
		inst, err := h.link.ActivateTarget(target)
		if err != nil {
			return &errkind.ConnectionError{Module: h.desc.Name, Connector: localName, Reason: err.Error()}
		}
		resolved[localName] = inst
	}

	instance, _ := h.registry.New(h.desc.Class)
	opts, err := resolveOptions(h.desc.Name, instance.ConfigOptions(), h.desc.Options)
	if err != nil {
		return err
	}
	if err := checkConnectors(h.desc.Name, instance.Connectors(), resolved); err != nil {
		return err
	}

	threaded := instance.Threaded() && h.desc.Base != BaseGui

	activateErr := func() error {
		if threaded {
			t, err := h.threads.NewThread("mod-" + string(h.desc.Base) + "-" + h.desc.Name)
			if err != nil {
				return err
			}
			t.Start()
			h.thread = t
			var innerErr error
			t.Post(func() { innerErr = instance.OnActivate(opts, resolved) })
			return innerErr
		}
		return instance.OnActivate(opts, resolved)
	}()
	if activateErr != nil {
		h.unwind(resolved)
		return activateErr
	}

	h.loadStatusVariables(instance)

	h.mu.Lock()
	h.instance = instance
	h.resolved = resolved
	h.mu.Unlock()

	if err := h.fsm.Fire(fsm.EventActivate); err != nil {
		h.unwind(resolved)
		return err
	}
	return nil
}

func (h *LocalHandle) unwind(resolved map[string]Module) {
	h.mu.Lock()
	t := h.thread
	h.thread = nil
	h.instance = nil
	h.resolved = nil
	h.mu.Unlock()
	if t != nil {
		t.Quit()
		t.Join(-1)
	}
	_ = resolved // connector bindings are local maps only; nothing else to release
}

func resolveOptions(moduleName string, declared []ConfigOption, provided map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(declared))
	for _, opt := range declared {
		v, ok := provided[opt.Name]
		if ok {
			out[opt.Name] = v
			continue
		}
		if !opt.Optional {
			return nil, &errkind.ConfigError{Module: moduleName, Option: opt.Name}
		}
		out[opt.Name] = opt.Default
		switch opt.MissingAction {
		case MissingWarn:
			logging.WithModule(moduleName).Warnf("option %q not configured, using default", opt.Name)
		case MissingInfo:
			logging.WithModule(moduleName).Infof("option %q not configured, using default", opt.Name)
		}
	}
	return out, nil
}

func checkConnectors(moduleName string, declared []Connector, resolved map[string]Module) error {
	for _, c := range declared {
		inst, ok := resolved[c.Name]
		if !ok {
			if c.Optional {
				continue
			}
			return &errkind.ConnectionError{Module: moduleName, Connector: c.Name, Reason: "not connected"}
		}
		if c.Accepts != nil && !c.Accepts(inst) {
			return &errkind.ConnectionError{Module: moduleName, Connector: c.Name, Reason: "connected instance does not satisfy required interface"}
		}
	}
	return nil
}

func (h *LocalHandle) loadStatusVariables(instance Module) {
	rec, err := h.store.Load(h.appdataKey(), true)
	if err != nil {
		logging.WithModule(h.desc.Name).Warnf("appdata load failed, using defaults: %v", err)
		rec = appdata.Record{}
	}
	for _, sv := range instance.StatusVariables() {
		if v, ok := rec[sv.Name]; ok {
			instance.SetStatusVariable(sv.Name, v)
		} else {
			instance.SetStatusVariable(sv.Name, sv.Default)
		}
	}
}

func (h *LocalHandle) dumpStatusVariables(instance Module) {
	rec := appdata.Record{}
	for _, sv := range instance.StatusVariables() {
		if v, ok := instance.GetStatusVariable(sv.Name); ok {
			rec[sv.Name] = v
		}
	}
	if err := h.store.Dump(h.appdataKey(), rec); err != nil {
		logging.WithModule(h.desc.Name).Errorf("appdata dump failed: %v", err)
	}
}

// Deactivate implements the four-step local deactivation sequence. Cascade
// deactivation of dependents is the manager's responsibility, since only
// the manager knows the full dependency graph.
func (h *LocalHandle) Deactivate() error {
	return h.runOnMain(h.deactivateLocked)
}

func (h *LocalHandle) deactivateLocked() error {
	h.mu.Lock()
	if h.deactivating || h.fsm.State() == fsm.Deactivated {
		h.mu.Unlock()
		return nil
	}
	h.deactivating = true
	instance := h.instance
	thread := h.thread
	h.mu.Unlock()
	defer func() {
		h.mu.Lock()
		h.deactivating = false
		h.mu.Unlock()
	}()

	if instance != nil {
		if thread != nil {
			thread.Post(func() {
				if err := instance.OnDeactivate(); err != nil {
					logging.WithModule(h.desc.Name).Errorf("on_deactivate failed: %v", err)
				}
			})
		} else if err := instance.OnDeactivate(); err != nil {
			logging.WithModule(h.desc.Name).Errorf("on_deactivate failed: %v", err)
		}
		h.dumpStatusVariables(instance)
	}

	h.mu.Lock()
	h.resolved = nil
	h.mu.Unlock()

	if err := h.fsm.Fire(fsm.EventDeactivate); err != nil {
		return err
	}

	if thread != nil {
		thread.Quit()
		thread.Join(-1)
	}

	h.mu.Lock()
	h.instance = nil
	h.thread = nil
	h.mu.Unlock()
	return nil
}

// Reload captures activation state, deactivates, re-resolves the class
// from the registry (the Go stand-in for re-importing source), and
// reactivates. Reactivating dependents is the manager's responsibility.
func (h *LocalHandle) Reload() error {
	wasActive := h.State() != fsm.Deactivated
	if wasActive {
		if err := h.Deactivate(); err != nil {
			return err
		}
	}
	if _, ok := h.registry.New(h.desc.Class); !ok {
		return &errkind.ConfigError{Module: h.desc.Name, Option: "module.Class"}
	}
	if wasActive {
		return h.Activate()
	}
	return nil
}

// ClearAppdata fails fast unless the handle is Deactivated.
func (h *LocalHandle) ClearAppdata() error {
	if h.fsm.State() != fsm.Deactivated {
		return &errkind.StateError{Module: h.desc.Name, From: h.fsm.State().String(), Event: "clear_appdata"}
	}
	return h.store.Clear(h.appdataKey())
}

func (h *LocalHandle) HasAppdata() bool {
	return h.store.Exists(h.appdataKey())
}

// Instance implicitly activates if necessary, then returns the live
// instance.
func (h *LocalHandle) Instance() (Module, error) {
	if h.fsm.State() == fsm.Deactivated {
		if err := h.Activate(); err != nil {
			return nil, err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.instance, nil
}
