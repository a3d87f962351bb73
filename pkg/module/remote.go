package module

import (
	"github.com/labrig-project/labrig/pkg/appdata"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/fsm"
)

// RemoteValueKind tags what a remote attribute access returned, per the
// scalar/callable/error tagged-variant design used for dynamic attribute
// forwarding across the RPC boundary.
type RemoteValueKind int

const (
	RemoteScalar RemoteValueKind = iota
	RemoteCallable
	RemoteErrorValue
)

// RemoteValue is the wire-level result of a remote attribute get, call, or
// set: either a materialized scalar, a marker that the attribute is a
// method (callable), or a peer-reported error.
type RemoteValue struct {
	Kind    RemoteValueKind `json:"kind"`
	Scalar  appdata.Value   `json:"scalar,omitempty"`
	Message string          `json:"message,omitempty"`
}

// Transport is everything a RemoteHandle needs from the connection to a
// peer orchestrator. Defined here (not imported from pkg/remote) to avoid
// a dependency cycle: pkg/remote implements this for its client-side
// connection type.
type Transport interface {
	Dial(address string, port int, certFile, keyFile *string) error
	Close() error
	ActivateModule(nativeName string) error
	DeactivateModule(nativeName string) error
	ModuleState(nativeName string) (fsm.State, error)
	HasAppdata(nativeName string) (bool, error)
	ClearAppdata(nativeName string) error
	GetAttribute(nativeName, attr string) (RemoteValue, error)
	SetAttribute(nativeName, attr string, value RemoteValue) error
	Call(nativeName, method string, args []RemoteValue) (RemoteValue, error)
}

// RemoteHandle mirrors a module hosted by another orchestrator process.
// Its local FSM tracks the peer's last-known state; the watchdog (owned by
// ModuleManager) is the only thing that reconciles drift.
type RemoteHandle struct {
	desc       Descriptor
	nativeName string
	address    string
	port       int
	certFile   *string
	keyFile    *string
	transport  Transport

	fsm      *fsm.StateMachine
	instance *remoteProxy
}

// NewRemoteHandle constructs a handle for a module served by a peer.
func NewRemoteHandle(desc Descriptor, nativeName, address string, port int, certFile, keyFile *string, transport Transport) *RemoteHandle {
	return &RemoteHandle{
		desc:       desc,
		nativeName: nativeName,
		address:    address,
		port:       port,
		certFile:   certFile,
		keyFile:    keyFile,
		transport:  transport,
		fsm:        fsm.New(fsm.Callbacks{}),
	}
}

func (h *RemoteHandle) Name() string     { return h.desc.Name }
func (h *RemoteHandle) Base() Base       { return h.desc.Base }
func (h *RemoteHandle) State() fsm.State { return h.fsm.State() }
func (h *RemoteHandle) ConnectsTo() []string {
	targets := make([]string, 0, len(h.desc.Connect))
	for _, target := range h.desc.Connect {
		targets = append(targets, target)
	}
	return targets
}

// Activate opens the RPC connection, requests activation of the native
// module, and mirrors the resulting state locally.
func (h *RemoteHandle) Activate() error {
	if h.fsm.State() != fsm.Deactivated {
		return nil
	}
	if err := h.transport.Dial(h.address, h.port, h.certFile, h.keyFile); err != nil {
		return &errkind.RemoteError{Peer: h.address, Kind: "dial", Message: err.Error()}
	}
	if err := h.transport.ActivateModule(h.nativeName); err != nil {
		return &errkind.RemoteError{Peer: h.address, Kind: "activate", Message: err.Error()}
	}
	h.instance = &remoteProxy{nativeName: h.nativeName, transport: h.transport}
	return h.fsm.Fire(fsm.EventActivate)
}

// Deactivate requests the peer deactivate the native module.
func (h *RemoteHandle) Deactivate() error {
	if h.fsm.State() == fsm.Deactivated {
		return nil
	}
	err := h.transport.DeactivateModule(h.nativeName)
	if ferr := h.fsm.Fire(fsm.EventDeactivate); ferr != nil {
		return ferr
	}
	h.instance = nil
	h.transport.Close()
	if err != nil {
		return &errkind.RemoteError{Peer: h.address, Kind: "deactivate", Message: err.Error()}
	}
	return nil
}

// Reload is reconnection only: the remote reload's ambiguity about whether
// the peer re-imports its own code is resolved by treating it as a plain
// disconnect-then-reconnect, matching the spec's resolved Open Question.
func (h *RemoteHandle) Reload() error {
	wasActive := h.fsm.State() != fsm.Deactivated
	if wasActive {
		if err := h.Deactivate(); err != nil {
			return err
		}
		return h.Activate()
	}
	return nil
}

func (h *RemoteHandle) ClearAppdata() error {
	if err := h.transport.ClearAppdata(h.nativeName); err != nil {
		return &errkind.RemoteError{Peer: h.address, Kind: "clear_appdata", Message: err.Error()}
	}
	return nil
}

func (h *RemoteHandle) HasAppdata() bool {
	ok, err := h.transport.HasAppdata(h.nativeName)
	return err == nil && ok
}

func (h *RemoteHandle) Instance() (Module, error) {
	if h.fsm.State() == fsm.Deactivated {
		if err := h.Activate(); err != nil {
			return nil, err
		}
	}
	return h.instance, nil
}

// PollState asks the peer for its current state and, if it reports
// Deactivated while the local mirror does not, deactivates locally. This
// is the operation the ModuleManager watchdog drives on every poll.
func (h *RemoteHandle) PollState() error {
	remoteState, err := h.transport.ModuleState(h.nativeName)
	if err != nil {
		return &errkind.RemoteError{Peer: h.address, Kind: "get_state", Message: err.Error()}
	}
	if remoteState == fsm.Deactivated && h.fsm.State() != fsm.Deactivated {
		h.fsm.Fire(fsm.EventDeactivate)
		h.instance = nil
	}
	return nil
}

// remoteProxy implements Module by forwarding everything through the
// RPC transport, per the "dynamic attribute forwarding" design note:
// attribute reads/writes become request/response pairs, with no local
// class rewriting.
type remoteProxy struct {
	nativeName string
	transport  Transport
}

func (p *remoteProxy) ConfigOptions() []ConfigOption         { return nil }
func (p *remoteProxy) Connectors() []Connector               { return nil }
func (p *remoteProxy) StatusVariables() []StatusVariable     { return nil }
func (p *remoteProxy) Threaded() bool                        { return false }
func (p *remoteProxy) OnActivate(map[string]any, map[string]Module) error { return nil }
func (p *remoteProxy) OnDeactivate() error                   { return nil }

func (p *remoteProxy) GetStatusVariable(name string) (appdata.Value, bool) {
	v, err := p.transport.GetAttribute(p.nativeName, name)
	if err != nil || v.Kind != RemoteScalar {
		return appdata.Value{}, false
	}
	return v.Scalar, true
}

func (p *remoteProxy) SetStatusVariable(name string, v appdata.Value) {
	p.transport.SetAttribute(p.nativeName, name, RemoteValue{Kind: RemoteScalar, Scalar: v})
}

// Call forwards a method invocation to the peer, used when calling an
// attribute that the peer reports as RemoteCallable.
func (p *remoteProxy) Call(method string, args ...RemoteValue) (RemoteValue, error) {
	return p.transport.Call(p.nativeName, method, args)
}
