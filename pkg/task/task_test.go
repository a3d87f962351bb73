package task

import (
	"errors"
	"testing"
	"time"

	"github.com/labrig-project/labrig/pkg/module"
	"github.com/labrig-project/labrig/pkg/threadmgr"
)

type fakeTask struct {
	activated, deactivated bool
	ran                    bool
	cancelObserved         bool
}

func (t *fakeTask) Activate(ctl *Control) error {
	t.activated = true
	return nil
}

func (t *fakeTask) Run(ctl *Control, kwargs map[string]any, connections map[string]module.Module) (any, error) {
	t.ran = true
	if ctl.CheckInterrupt() {
		t.cancelObserved = true
		return nil, ErrCancelled
	}
	return kwargs["n"], nil
}

func (t *fakeTask) Deactivate() error {
	t.deactivated = true
	return nil
}

type noopLinker struct{}

func (noopLinker) ActivateTarget(name string) (module.Module, error) {
	return nil, errors.New("no such module: " + name)
}

func TestWorker_RunLifecycle(t *testing.T) {
	var inner *fakeTask
	w := NewWorker(Descriptor{Name: "w", Default: map[string]any{"n": 7}}, func() Task {
		inner = &fakeTask{}
		return inner
	}, noopLinker{})

	if err := w.Run(); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !inner.activated || !inner.ran || !inner.deactivated {
		t.Errorf("expected full lifecycle, got %+v", inner)
	}
	v, ok := w.LastResult()
	if !ok || v != 7 {
		t.Errorf("LastResult = %v, %v", v, ok)
	}
	if w.State() != Idle {
		t.Errorf("expected Idle after run, got %v", w.State())
	}
}

func TestWorker_SetArgumentsPublishes(t *testing.T) {
	w := NewWorker(Descriptor{Name: "w"}, func() Task { return &fakeTask{} }, noopLinker{})
	sub := w.SubscribeParams(1)
	defer sub.Unsubscribe()

	w.SetArguments(map[string]any{"n": 9})
	select {
	case params := <-sub.C:
		if params["n"] != 9 {
			t.Errorf("params = %v", params)
		}
	case <-time.After(time.Second):
		t.Fatal("expected a parameters-changed event")
	}
}

func TestWorker_StateEvents(t *testing.T) {
	w := NewWorker(Descriptor{Name: "w"}, func() Task { return &fakeTask{} }, noopLinker{})
	sub := w.SubscribeState(4)
	defer sub.Unsubscribe()

	w.Run()

	first := <-sub.C
	second := <-sub.C
	if first.State != Running || second.State != Idle {
		t.Errorf("expected Running then Idle, got %v then %v", first.State, second.State)
	}
}

func TestManager_AddRunInterrupt(t *testing.T) {
	threads := threadmgr.New()
	m := NewManager(threads)

	var inner *fakeTask
	err := m.Add(Descriptor{Name: "t1"}, func() Task {
		inner = &fakeTask{}
		return inner
	}, noopLinker{})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	w, _ := m.lookup("t1")
	sub := w.SubscribeState(4)
	defer sub.Unsubscribe()

	if err := m.Run("t1"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	<-sub.C // Running
	<-sub.C // Idle

	if !inner.ran {
		t.Error("expected task to have run")
	}

	m.Terminate(time.Second)
}

func TestManager_DuplicateAdd(t *testing.T) {
	threads := threadmgr.New()
	m := NewManager(threads)
	m.Add(Descriptor{Name: "t1"}, func() Task { return &fakeTask{} }, noopLinker{})
	err := m.Add(Descriptor{Name: "t1"}, func() Task { return &fakeTask{} }, noopLinker{})
	if err == nil {
		t.Fatal("expected duplicate add to fail")
	}
}
