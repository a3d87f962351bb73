// Package module implements module descriptors and the per-module handle
// (C5): the object that owns a module instance's lifecycle, independent of
// whether that instance lives in this process (LocalHandle) or across an
// RPC connection to another process (RemoteHandle).
package module

import "github.com/labrig-project/labrig/pkg/appdata"

// Base names which of the three sections a module lives in. Gui modules
// are never threaded and never remote-shareable.
type Base string

const (
	BaseHardware Base = "hardware"
	BaseLogic    Base = "logic"
	BaseGui      Base = "gui"
)

// MissingAction controls what happens when an optional config option is
// absent and its default is substituted.
type MissingAction int

const (
	MissingIgnore MissingAction = iota
	MissingInfo
	MissingWarn
)

// ConfigOption declares one constructor option a module class accepts.
type ConfigOption struct {
	Name          string
	Optional      bool
	Default       any
	MissingAction MissingAction
}

// Connector declares one dependency a module class requires or accepts,
// resolved by name against other handles owned by the same manager.
type Connector struct {
	Name     string
	Optional bool
	// Accepts reports whether a candidate instance satisfies this
	// connector's required interface. A nil Accepts accepts anything.
	Accepts func(instance any) bool
}

// StatusVariable declares one persisted field a module instance exposes,
// with the default used when no appdata record exists or restoration of
// this particular field fails.
type StatusVariable struct {
	Name    string
	Default appdata.Value
}

// Module is the contract a registered class must satisfy. The OnActivate
// hook receives the resolved connector instances and the resolved
// options, since Go has no implicit constructor-injection
// equivalent to the source's keyword-argument instantiation.
type Module interface {
	ConfigOptions() []ConfigOption
	Connectors() []Connector
	StatusVariables() []StatusVariable
	// Threaded reports whether this instance wants its own worker thread.
	// Ignored (forced false) for Gui modules.
	Threaded() bool

	OnActivate(opts map[string]any, connectors map[string]Module) error
	OnDeactivate() error

	// GetStatusVariable/SetStatusVariable let the handle read and restore
	// declared status variables around activation and deactivation.
	GetStatusVariable(name string) (appdata.Value, bool)
	SetStatusVariable(name string, v appdata.Value)
}

// GuiModule is the subset of Module that additionally supports re-showing
// an already-active UI instead of treating a redundant activate as a
// pure no-op.
type GuiModule interface {
	Module
	Show()
}

// Callable is the subset of Module a class can additionally implement to
// expose named methods across the remote transport — the counterpart of a
// RemoteValue tagged RemoteCallable on the attribute-access side.
type Callable interface {
	Module
	CallMethod(name string, args []appdata.Value) (appdata.Value, error)
}

// Factory constructs a fresh, unconfigured Module instance.
type Factory func() Module

// Registry maps a dotted class name to a Factory, standing in for the
// source's dotted class-path import-and-instantiate mechanism — ahead-of-
// time registration instead of a dynamic import, since Go has no runtime
// module loader.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates class with factory. Re-registering the same class
// name overwrites the prior factory, supporting reload().
func (r *Registry) Register(class string, factory Factory) {
	r.factories[class] = factory
}

// New instantiates class, or reports ok=false if unregistered.
func (r *Registry) New(class string) (Module, bool) {
	f, ok := r.factories[class]
	if !ok {
		return nil, false
	}
	return f(), true
}
