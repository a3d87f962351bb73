package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/labrig-project/labrig/pkg/errkind"
)

func TestNew_DefaultsValid(t *testing.T) {
	c := New()
	if err := c.Tree().Validate(); err != nil {
		t.Fatalf("default tree should validate: %v", err)
	}
}

func TestAddLocalModule(t *testing.T) {
	c := New()
	err := c.AddLocalModule(BaseLogic, "counter_logic", ModuleConfig{Class: "labrig.logic.counter.CounterLogic"})
	if err != nil {
		t.Fatalf("AddLocalModule failed: %v", err)
	}
	if !c.ModuleConfigured(BaseLogic, "counter_logic") {
		t.Error("expected module to be configured")
	}
	if !c.IsLocalModule(BaseLogic, "counter_logic") {
		t.Error("expected module to be local")
	}

	err = c.AddLocalModule(BaseLogic, "counter_logic", ModuleConfig{Class: "x"})
	if !errors.Is(err, errkind.Duplicate) {
		t.Fatalf("expected Duplicate, got %v", err)
	}
}

func TestAddLocalModule_InvalidNameRejectedBeforeMutation(t *testing.T) {
	c := New()
	sub := c.Subscribe(4)
	defer sub.Unsubscribe()

	err := c.AddLocalModule(BaseLogic, "9bad", ModuleConfig{Class: "x"})
	if !errors.Is(err, errkind.Validation) {
		t.Fatalf("expected Validation, got %v", err)
	}
	select {
	case <-sub.C:
		t.Fatal("a rejected mutation must not publish a change notification")
	default:
	}
}

func TestAddRemoteModule_RejectedInGui(t *testing.T) {
	c := New()
	err := c.AddRemoteModule(BaseGui, "remote_gui", ModuleConfig{
		NativeModuleName: "RemoteThing", Address: "localhost", Port: 12345,
	})
	if !errors.Is(err, errkind.Validation) {
		t.Fatalf("expected Validation (gui accepts only local), got %v", err)
	}
}

func TestAddRemoteModule_Hardware(t *testing.T) {
	c := New()
	err := c.AddRemoteModule(BaseHardware, "remote_hw", ModuleConfig{
		NativeModuleName: "RemoteThing", Address: "localhost", Port: 12345,
	})
	if err != nil {
		t.Fatalf("AddRemoteModule failed: %v", err)
	}
	if !c.IsRemoteModule(BaseHardware, "remote_hw") {
		t.Error("expected module to be remote")
	}
}

func TestRenameModule(t *testing.T) {
	c := New()
	c.AddLocalModule(BaseLogic, "old", ModuleConfig{Class: "x"})

	if err := c.RenameModule(BaseLogic, "old", "old"); err != nil {
		t.Errorf("renaming to the same name should be a no-op, got %v", err)
	}
	if err := c.RenameModule(BaseLogic, "old", "new"); err != nil {
		t.Fatalf("RenameModule failed: %v", err)
	}
	if c.ModuleConfigured(BaseLogic, "old") {
		t.Error("old name should no longer be configured")
	}
	if !c.ModuleConfigured(BaseLogic, "new") {
		t.Error("new name should be configured")
	}

	if err := c.RenameModule(BaseLogic, "missing", "whatever"); !errors.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRemoveModule(t *testing.T) {
	c := New()
	c.AddLocalModule(BaseLogic, "m", ModuleConfig{Class: "x"})
	if err := c.RemoveModule(BaseLogic, "m"); err != nil {
		t.Fatalf("RemoveModule failed: %v", err)
	}
	if err := c.RemoveModule(BaseLogic, "m"); !errors.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound removing again, got %v", err)
	}
}

func TestDumpLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sub", "default.cfg")

	c := New()
	c.AddLocalModule(BaseLogic, "counter_logic", ModuleConfig{
		Class:   "labrig.logic.counter.CounterLogic",
		Connect: map[string]string{"counter": "fast_counter"},
		Options: map[string]any{"bins": 100},
	})
	if err := c.Dump(path); err != nil {
		t.Fatalf("Dump failed: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected file at %s: %v", path, err)
	}

	loaded := New()
	if err := loaded.Load(path); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !loaded.ModuleConfigured(BaseLogic, "counter_logic") {
		t.Error("expected round-tripped module to be configured")
	}
	cfg, _ := loaded.ModuleConfig(BaseLogic, "counter_logic")
	if cfg.Class != "labrig.logic.counter.CounterLogic" {
		t.Errorf("class = %q", cfg.Class)
	}
}

func TestLoad_PreservesPriorStateOnFailure(t *testing.T) {
	dir := t.TempDir()
	badPath := filepath.Join(dir, "bad.cfg")
	os.WriteFile(badPath, []byte("global: [this is not a mapping"), 0644)

	c := New()
	c.AddLocalModule(BaseLogic, "survivor", ModuleConfig{Class: "x"})

	err := c.Load(badPath)
	if !errors.Is(err, errkind.Parse) {
		t.Fatalf("expected Parse error, got %v", err)
	}
	if !c.ModuleConfigured(BaseLogic, "survivor") {
		t.Error("a failed Load must not disturb the prior in-memory tree")
	}
}

func TestLoad_ValidationFailurePreservesPriorState(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "invalid.cfg")
	os.WriteFile(path, []byte("global:\n  stylesheet: notaqss\n"), 0644)

	c := New()
	c.AddLocalModule(BaseLogic, "survivor", ModuleConfig{Class: "x"})

	err := c.Load(path)
	if !errors.Is(err, errkind.Validation) {
		t.Fatalf("expected Validation, got %v", err)
	}
	if !c.ModuleConfigured(BaseLogic, "survivor") {
		t.Error("a Load that fails validation must not disturb the prior in-memory tree")
	}
}

func TestSection_SetOptionValidatesWholeTree(t *testing.T) {
	c := New()
	c.AddLocalModule(BaseLogic, "counter_logic", ModuleConfig{Class: "x"})

	sec, err := c.Section(BaseLogic, "counter_logic")
	if err != nil {
		t.Fatalf("Section failed: %v", err)
	}
	if err := sec.SetOption("bins", 200); err != nil {
		t.Fatalf("SetOption failed: %v", err)
	}
	if got := sec.Options()["bins"]; got != 200 {
		t.Errorf("bins = %v", got)
	}

	if err := sec.SetConnector("counter", "fast_counter"); err != nil {
		t.Fatalf("SetConnector failed: %v", err)
	}
	if got := sec.Connect()["counter"]; got != "fast_counter" {
		t.Errorf("connect[counter] = %q", got)
	}
}

func TestSection_UnknownModule(t *testing.T) {
	c := New()
	if _, err := c.Section(BaseLogic, "missing"); !errors.Is(err, errkind.NotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestValidate_MutuallyExclusiveLocalRemote(t *testing.T) {
	tree := emptyTree()
	tree.Logic["m"] = ModuleConfig{Class: "x", NativeModuleName: "y", Address: "a", Port: 1}
	if err := tree.Validate(); !errors.Is(err, errkind.Validation) {
		t.Fatalf("expected Validation for mixed local/remote fields, got %v", err)
	}
}

func TestValidate_StartupModuleMustExist(t *testing.T) {
	tree := emptyTree()
	tree.Global.StartupModules = []string{"nope"}
	if err := tree.Validate(); !errors.Is(err, errkind.Validation) {
		t.Fatalf("expected Validation for unresolvable startup module, got %v", err)
	}
}

func TestModuleNames(t *testing.T) {
	c := New()
	c.AddLocalModule(BaseHardware, "a", ModuleConfig{Class: "x"})
	c.AddLocalModule(BaseHardware, "b", ModuleConfig{Class: "y"})
	names := c.ModuleNames(BaseHardware)
	if len(names) != 2 {
		t.Fatalf("expected 2 names, got %v", names)
	}
}
