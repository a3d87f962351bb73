package remote

import (
	"net"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/labrig-project/labrig/pkg/appdata"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/fsm"
	"github.com/labrig-project/labrig/pkg/module"
)

// dialTestServer starts source behind an httptest server and returns a
// connected Client, cleaned up automatically when the test ends.
func dialTestServer(t *testing.T, source Source) *Client {
	t.Helper()
	ts := httptest.NewServer(NewServer(source))
	t.Cleanup(ts.Close)

	host, portStr, err := net.SplitHostPort(strings.TrimPrefix(strings.TrimPrefix(ts.URL, "http://"), "https://"))
	if err != nil {
		t.Fatalf("split host port: %v", err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}

	client := NewClient()
	if err := client.Dial(host, port, nil, nil); err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

type fakeHandle struct {
	name        string
	base        module.Base
	state       fsm.State
	hasAppdata  bool
	status      map[string]appdata.Value
	activateErr error
}

func (h *fakeHandle) Name() string        { return h.name }
func (h *fakeHandle) Base() module.Base   { return h.base }
func (h *fakeHandle) State() fsm.State    { return h.state }
func (h *fakeHandle) ConnectsTo() []string { return nil }

func (h *fakeHandle) Activate() error {
	if h.activateErr != nil {
		return h.activateErr
	}
	h.state = fsm.Idle
	return nil
}

func (h *fakeHandle) Deactivate() error {
	h.state = fsm.Deactivated
	return nil
}

func (h *fakeHandle) Reload() error { return nil }

func (h *fakeHandle) ClearAppdata() error {
	h.hasAppdata = false
	return nil
}

func (h *fakeHandle) HasAppdata() bool { return h.hasAppdata }

func (h *fakeHandle) Instance() (module.Module, error) {
	return &fakeInstance{h}, nil
}

type fakeInstance struct{ h *fakeHandle }

func (f *fakeInstance) ConfigOptions() []module.ConfigOption     { return nil }
func (f *fakeInstance) Connectors() []module.Connector           { return nil }
func (f *fakeInstance) StatusVariables() []module.StatusVariable { return nil }
func (f *fakeInstance) Threaded() bool                           { return false }
func (f *fakeInstance) OnActivate(map[string]any, map[string]module.Module) error { return nil }
func (f *fakeInstance) OnDeactivate() error                                       { return nil }

func (f *fakeInstance) GetStatusVariable(name string) (appdata.Value, bool) {
	v, ok := f.h.status[name]
	return v, ok
}

func (f *fakeInstance) SetStatusVariable(name string, v appdata.Value) {
	if f.h.status == nil {
		f.h.status = map[string]appdata.Value{}
	}
	f.h.status[name] = v
}

func (f *fakeInstance) CallMethod(name string, args []appdata.Value) (appdata.Value, error) {
	if name == "double" && len(args) == 1 {
		return appdata.Int(args[0].Int * 2), nil
	}
	return appdata.Value{}, &errkind.ConfigError{Module: f.h.name, Option: name}
}

var _ module.Callable = (*fakeInstance)(nil)

type fakeSource struct {
	handles map[string]*fakeHandle
	allow   map[string]bool
}

func (s *fakeSource) Handle(name string) (module.Handle, bool) {
	h, ok := s.handles[name]
	return h, ok
}

func (s *fakeSource) AllowRemote(name string) bool { return s.allow[name] }

func (s *fakeSource) Names() []string {
	names := make([]string, 0, len(s.handles))
	for name := range s.handles {
		names = append(names, name)
	}
	return names
}

func (s *fakeSource) ThreadNames() []string          { return nil }
func (s *fakeSource) ThreadRunning(name string) bool { return false }

func (s *fakeSource) RunTask(name string) error       { return nil }
func (s *fakeSource) InterruptTask(name string) error { return nil }
func (s *fakeSource) TaskStatus(name string) (string, error) {
	return "idle", nil
}

func (s *fakeSource) ConfigYAML() (string, error) { return "", nil }
func (s *fakeSource) ValidateConfig() error       { return nil }

func TestClientServer_ActivateAndAttributeRoundTrip(t *testing.T) {
	source := &fakeSource{
		handles: map[string]*fakeHandle{"camera": {name: "camera", base: module.BaseHardware, state: fsm.Deactivated}},
		allow:   map[string]bool{"camera": true},
	}
	client := dialTestServer(t, source)

	if err := client.ActivateModule("camera"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	state, err := client.ModuleState("camera")
	if err != nil {
		t.Fatalf("module state: %v", err)
	}
	if state != fsm.Idle {
		t.Fatalf("expected idle, got %s", state)
	}

	if err := client.SetAttribute("camera", "exposure", module.RemoteValue{Kind: module.RemoteScalar, Scalar: appdata.Float(0.5)}); err != nil {
		t.Fatalf("set attribute: %v", err)
	}
	v, err := client.GetAttribute("camera", "exposure")
	if err != nil {
		t.Fatalf("get attribute: %v", err)
	}
	if v.Scalar.Float != 0.5 {
		t.Fatalf("expected 0.5, got %v", v.Scalar.Float)
	}

	if err := client.DeactivateModule("camera"); err != nil {
		t.Fatalf("deactivate: %v", err)
	}
}

func TestClientServer_PermissionDeniedWhenNotAllowed(t *testing.T) {
	source := &fakeSource{
		handles: map[string]*fakeHandle{"camera": {name: "camera", base: module.BaseHardware, state: fsm.Deactivated}},
		allow:   map[string]bool{},
	}
	client := dialTestServer(t, source)

	if err := client.ActivateModule("camera"); err == nil {
		t.Fatal("expected permission error, got nil")
	}
}

func TestClientServer_GuiModuleNeverServed(t *testing.T) {
	source := &fakeSource{
		handles: map[string]*fakeHandle{"dashboard": {name: "dashboard", base: module.BaseGui, state: fsm.Deactivated}},
		allow:   map[string]bool{"dashboard": true},
	}
	client := dialTestServer(t, source)

	if err := client.ActivateModule("dashboard"); err == nil {
		t.Fatal("expected gui modules to be refused over remote")
	}
}

func TestClient_ErrorsWhenNotConnected(t *testing.T) {
	client := NewClient()
	if err := client.ActivateModule("camera"); err == nil {
		t.Fatal("expected an error calling before Dial")
	}
}

func TestClientServer_ModuleInfoAndDelAttribute(t *testing.T) {
	source := &fakeSource{
		handles: map[string]*fakeHandle{"camera": {name: "camera", base: module.BaseHardware, state: fsm.Deactivated}},
		allow:   map[string]bool{"camera": true},
	}
	client := dialTestServer(t, source)

	if err := client.ActivateModule("camera"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	info, err := client.ModuleInfo("camera")
	if err != nil {
		t.Fatalf("module info: %v", err)
	}
	if info.State != fsm.Idle.String() || !info.AllowRemote {
		t.Fatalf("unexpected info: %+v", info)
	}

	if err := client.SetAttribute("camera", "exposure", module.RemoteValue{Kind: module.RemoteScalar, Scalar: appdata.Float(0.5)}); err != nil {
		t.Fatalf("set attribute: %v", err)
	}
	if err := client.DelAttribute("camera", "exposure"); err != nil {
		t.Fatalf("del attribute: %v", err)
	}
	if _, ok := source.handles["camera"].status["exposure"]; !ok {
		t.Fatal("expected del_attribute to still record the cleared value")
	}
	if source.handles["camera"].status["exposure"].Kind != appdata.KindNull {
		t.Fatalf("expected cleared attribute to be null, got %+v", source.handles["camera"].status["exposure"])
	}
}

func TestClientServer_CallMethod(t *testing.T) {
	source := &fakeSource{
		handles: map[string]*fakeHandle{"camera": {name: "camera", base: module.BaseHardware, state: fsm.Deactivated}},
		allow:   map[string]bool{"camera": true},
	}
	client := dialTestServer(t, source)

	if err := client.ActivateModule("camera"); err != nil {
		t.Fatalf("activate: %v", err)
	}

	result, err := client.Call("camera", "double", []module.RemoteValue{{Kind: module.RemoteScalar, Scalar: appdata.Int(21)}})
	if err != nil {
		t.Fatalf("call: %v", err)
	}
	if result.Scalar.Int != 42 {
		t.Fatalf("expected 42, got %d", result.Scalar.Int)
	}

	if _, err := client.Call("camera", "nope", nil); err == nil {
		t.Fatal("expected an error calling an unsupported method")
	}
}
