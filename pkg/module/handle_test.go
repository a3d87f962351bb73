package module

import (
	"errors"
	"testing"

	"github.com/labrig-project/labrig/pkg/appdata"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/fsm"
	"github.com/labrig-project/labrig/pkg/threadmgr"
)

type fakeModule struct {
	activated   bool
	deactivated bool
	threaded    bool
	failOn      string
	status      map[string]appdata.Value
	options     []ConfigOption
	connectors  []Connector
}

func (m *fakeModule) ConfigOptions() []ConfigOption     { return m.options }
func (m *fakeModule) Connectors() []Connector           { return m.connectors }
func (m *fakeModule) StatusVariables() []StatusVariable {
	return []StatusVariable{{Name: "counter", Default: appdata.Int(0)}}
}
func (m *fakeModule) Threaded() bool { return m.threaded }
func (m *fakeModule) OnActivate(opts map[string]any, connectors map[string]Module) error {
	if m.failOn == "activate" {
		return errors.New("boom")
	}
	m.activated = true
	return nil
}
func (m *fakeModule) OnDeactivate() error {
	m.deactivated = true
	return nil
}
func (m *fakeModule) GetStatusVariable(name string) (appdata.Value, bool) {
	if m.status == nil {
		return appdata.Value{}, false
	}
	v, ok := m.status[name]
	return v, ok
}
func (m *fakeModule) SetStatusVariable(name string, v appdata.Value) {
	if m.status == nil {
		m.status = map[string]appdata.Value{}
	}
	m.status[name] = v
}

type noopLinker struct{}

func (noopLinker) ActivateTarget(name string) (Module, error) {
	return nil, &errkind.ConnectionError{Module: name, Connector: name, Reason: "no such module"}
}

func newTestHandle(t *testing.T, class string, factory Factory, threaded bool) (*LocalHandle, *threadmgr.Manager) {
	t.Helper()
	reg := NewRegistry()
	reg.Register(class, factory)
	threads := threadmgr.New()
	store := appdata.New(t.TempDir())
	h, err := NewLocalHandle(Descriptor{Class: class, Name: "m", Base: BaseLogic}, reg, noopLinker{}, threads, store, nil)
	if err != nil {
		t.Fatalf("NewLocalHandle failed: %v", err)
	}
	return h, threads
}

func TestLocalHandle_ActivateDeactivate(t *testing.T) {
	var instance *fakeModule
	h, threads := newTestHandle(t, "fake.Module", func() Module {
		instance = &fakeModule{}
		return instance
	}, false)

	if err := h.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if h.State() != fsm.Idle {
		t.Fatalf("expected Idle, got %v", h.State())
	}
	if !instance.activated {
		t.Error("expected OnActivate to have run")
	}

	// Redundant activate is a no-op.
	if err := h.Activate(); err != nil {
		t.Fatalf("redundant Activate failed: %v", err)
	}

	if err := h.Deactivate(); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if h.State() != fsm.Deactivated {
		t.Fatalf("expected Deactivated, got %v", h.State())
	}
	if !instance.deactivated {
		t.Error("expected OnDeactivate to have run")
	}
	_ = threads
}

func TestLocalHandle_Threaded(t *testing.T) {
	var instance *fakeModule
	h, _ := newTestHandle(t, "fake.Threaded", func() Module {
		instance = &fakeModule{threaded: true}
		return instance
	}, true)

	if err := h.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if !instance.activated {
		t.Error("expected threaded OnActivate to have run")
	}
	if err := h.Deactivate(); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
}

func TestLocalHandle_UnresolvedClass(t *testing.T) {
	reg := NewRegistry()
	threads := threadmgr.New()
	store := appdata.New(t.TempDir())
	_, err := NewLocalHandle(Descriptor{Class: "missing.Class", Name: "m", Base: BaseLogic}, reg, noopLinker{}, threads, store, nil)
	if !errors.Is(err, errkind.Config) {
		t.Fatalf("expected Config error, got %v", err)
	}
}

func TestLocalHandle_MissingRequiredOption(t *testing.T) {
	h, _ := newTestHandle(t, "fake.Options", func() Module {
		return &fakeModule{options: []ConfigOption{{Name: "bins", Optional: false}}}
	}, false)

	err := h.Activate()
	if !errors.Is(err, errkind.Config) {
		t.Fatalf("expected Config error, got %v", err)
	}
	if h.State() != fsm.Deactivated {
		t.Error("a failed activation must leave the handle Deactivated")
	}
}

func TestLocalHandle_MissingMandatoryConnector(t *testing.T) {
	h, _ := newTestHandle(t, "fake.Needy", func() Module {
		return &fakeModule{}
	}, false)
	h.desc.Connect = map[string]string{"dep": "some_module"}

	err := h.Activate()
	if !errors.Is(err, errkind.Connection) {
		t.Fatalf("expected Connection error, got %v", err)
	}
}

func TestLocalHandle_AppdataRoundTrip(t *testing.T) {
	class := "fake.Status"
	reg := NewRegistry()
	var instance *fakeModule
	reg.Register(class, func() Module {
		instance = &fakeModule{}
		return instance
	})
	threads := threadmgr.New()
	store := appdata.New(t.TempDir())
	desc := Descriptor{Class: class, Name: "m", Base: BaseLogic}
	h, err := NewLocalHandle(desc, reg, noopLinker{}, threads, store, nil)
	if err != nil {
		t.Fatalf("NewLocalHandle failed: %v", err)
	}

	if err := h.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	instance.SetStatusVariable("counter", appdata.Int(42))
	if err := h.Deactivate(); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if !h.HasAppdata() {
		t.Fatal("expected appdata to have been dumped")
	}

	if err := h.Activate(); err != nil {
		t.Fatalf("second Activate failed: %v", err)
	}
	v, ok := instance.GetStatusVariable("counter")
	if !ok || !appdata.Equal(v, appdata.Int(42)) {
		t.Errorf("expected restored counter=42, got %+v ok=%v", v, ok)
	}
}

func TestLocalHandle_ClearAppdataFailsWhileActive(t *testing.T) {
	h, _ := newTestHandle(t, "fake.Clear", func() Module { return &fakeModule{} }, false)
	if err := h.Activate(); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if err := h.ClearAppdata(); !errors.Is(err, errkind.State) {
		t.Fatalf("expected State error, got %v", err)
	}
}
