package modmanager

import (
	"errors"
	"testing"
	"time"

	"github.com/labrig-project/labrig/pkg/appdata"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/module"
	"github.com/labrig-project/labrig/pkg/threadmgr"
)

type fakeMod struct {
	activated, deactivated bool
}

func (m *fakeMod) ConfigOptions() []module.ConfigOption     { return nil }
func (m *fakeMod) Connectors() []module.Connector           { return nil }
func (m *fakeMod) StatusVariables() []module.StatusVariable { return nil }
func (m *fakeMod) Threaded() bool                           { return false }
func (m *fakeMod) OnActivate(map[string]any, map[string]module.Module) error {
	m.activated = true
	return nil
}
func (m *fakeMod) OnDeactivate() error {
	m.deactivated = true
	return nil
}
func (m *fakeMod) GetStatusVariable(string) (appdata.Value, bool) { return appdata.Value{}, false }
func (m *fakeMod) SetStatusVariable(string, appdata.Value)        {}

// fakeConnectedMod requires one connector, letting tests exercise the
// connector-resolution cascade during activation.
type fakeConnectedMod struct {
	fakeMod
	connectorName string
}

func (m *fakeConnectedMod) Connectors() []module.Connector {
	return []module.Connector{{Name: m.connectorName}}
}

func newHandle(t *testing.T, mgr *Manager, name, class string) module.Handle {
	t.Helper()
	reg := module.NewRegistry()
	reg.Register(class, func() module.Module { return &fakeMod{} })
	threads := threadmgr.New()
	store := appdata.New(t.TempDir())
	h, err := module.NewLocalHandle(module.Descriptor{Class: class, Name: name, Base: module.BaseLogic}, reg, mgr, threads, store, nil)
	if err != nil {
		t.Fatalf("NewLocalHandle failed: %v", err)
	}
	return h
}

func TestManager_AddActivateDeactivate(t *testing.T) {
	m := New()
	h := newHandle(t, m, "counter_logic", "fake.Counter")
	if err := m.Add(h, false); err != nil {
		t.Fatalf("Add failed: %v", err)
	}
	if err := m.Activate("counter_logic"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	state, _ := m.GetState("counter_logic")
	if state != "idle" {
		t.Errorf("state = %q", state)
	}
	if err := m.Deactivate("counter_logic"); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
}

func TestManager_AddDuplicate(t *testing.T) {
	m := New()
	h := newHandle(t, m, "a", "fake.A")
	m.Add(h, false)
	h2 := newHandle(t, m, "a", "fake.A2")
	if err := m.Add(h2, false); !errors.Is(err, errkind.Duplicate) {
		t.Fatalf("expected Duplicate, got %v", err)
	}
	if err := m.Add(h2, true); err != nil {
		t.Fatalf("overwrite Add failed: %v", err)
	}
}

func TestManager_RemoveUnknown(t *testing.T) {
	m := New()
	if err := m.Remove("nope"); !errors.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestManager_GetInstanceImplicitlyActivates(t *testing.T) {
	m := New()
	h := newHandle(t, m, "x", "fake.X")
	m.Add(h, false)

	inst, err := m.GetInstance("x")
	if err != nil {
		t.Fatalf("GetInstance failed: %v", err)
	}
	if inst.(*fakeMod) == nil {
		t.Fatal("expected a live instance")
	}
}

func TestManager_ActivateAllDeactivateAll(t *testing.T) {
	m := New()
	m.Add(newHandle(t, m, "a", "fake.A"), false)
	m.Add(newHandle(t, m, "b", "fake.B"), false)

	if err := m.ActivateAll(); err != nil {
		t.Fatalf("ActivateAll failed: %v", err)
	}
	for _, name := range []string{"a", "b"} {
		state, _ := m.GetState(name)
		if state != "idle" {
			t.Errorf("%s state = %q", name, state)
		}
	}
	if err := m.DeactivateAll(); err != nil {
		t.Fatalf("DeactivateAll failed: %v", err)
	}
}

func TestManager_Clear(t *testing.T) {
	m := New()
	m.Add(newHandle(t, m, "a", "fake.A"), false)
	m.Activate("a")
	m.Clear()
	if len(m.Names()) != 0 {
		t.Error("expected no handles after Clear")
	}
}

func TestManager_ChangeNotifications(t *testing.T) {
	m := New()
	sub := m.Subscribe(8)
	defer sub.Unsubscribe()

	m.Add(newHandle(t, m, "a", "fake.A"), false)
	select {
	case ev := <-sub.C:
		if ev.Kind != RowsInserted || ev.Name != "a" {
			t.Errorf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("expected RowsInserted notification")
	}
}

// TestManager_ActivateCascadePublishesDependencyStateChanged covers the
// connector-resolution path: activating a logic module whose connector
// resolves to an inactive hardware module must bring that hardware module
// up too, and publish its own StateChanged before the logic module's, since
// that's the order subscribers actually observe happening.
func TestManager_ActivateCascadePublishesDependencyStateChanged(t *testing.T) {
	m := New()
	m.Add(newHandle(t, m, "h1", "fake.H1"), false)

	reg := module.NewRegistry()
	reg.Register("fake.L1", func() module.Module { return &fakeConnectedMod{connectorName: "hw"} })
	threads := threadmgr.New()
	store := appdata.New(t.TempDir())
	l1, err := module.NewLocalHandle(module.Descriptor{
		Class:   "fake.L1",
		Name:    "l1",
		Base:    module.BaseLogic,
		Connect: map[string]string{"hw": "h1"},
	}, reg, m, threads, store, nil)
	if err != nil {
		t.Fatalf("NewLocalHandle failed: %v", err)
	}
	if err := m.Add(l1, false); err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	sub := m.Subscribe(8)
	defer sub.Unsubscribe()

	if err := m.Activate("l1"); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}

	var seen []string
	for len(seen) < 2 {
		select {
		case ev := <-sub.C:
			if ev.Kind == StateChanged {
				seen = append(seen, ev.Name)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for cascade notifications, got %v", seen)
		}
	}
	if seen[0] != "h1" || seen[1] != "l1" {
		t.Fatalf("expected cascade notification order [h1 l1], got %v", seen)
	}
}

func TestManager_WatchdogStartStop(t *testing.T) {
	m := New()
	m.StartWatchdog(10 * time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	m.StopWatchdog()
}
