package remote

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/labrig-project/labrig/pkg/appdata"
	"github.com/labrig-project/labrig/pkg/errkind"
	"github.com/labrig-project/labrig/pkg/logging"
	"github.com/labrig-project/labrig/pkg/module"
)

// Source is everything the server-side service surface needs from the
// hosting process's module manager and configuration, kept as an
// interface so this package does not depend on modmanager or config
// directly.
type Source interface {
	Handle(nativeName string) (module.Handle, bool)
	AllowRemote(nativeName string) bool
	Names() []string

	ThreadNames() []string
	ThreadRunning(name string) bool

	RunTask(name string) error
	TaskStatus(name string) (string, error)
	InterruptTask(name string) error

	ConfigYAML() (string, error)
	ValidateConfig() error
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server exposes Source's modules over a websocket connection per
// spec.md's symmetric RemoteTransport contract.
type Server struct {
	source Source
}

// NewServer constructs a Server backed by source.
func NewServer(source Source) *Server {
	return &Server{source: source}
}

// ServeHTTP upgrades the connection and runs the request/response loop
// until the peer disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logging.Logger.Warnf("remote: upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	var writeMu sync.Mutex
	for {
		var req Request
		if err := conn.ReadJSON(&req); err != nil {
			return
		}
		resp := s.handle(req)
		writeMu.Lock()
		err := conn.WriteJSON(resp)
		writeMu.Unlock()
		if err != nil {
			return
		}
	}
}

func (s *Server) handle(req Request) Response {
	switch req.Op {
	case OpListModules:
		return s.listModules(req.ID)
	case OpListThreads:
		return s.listThreads(req.ID)
	case OpTaskRun:
		if err := s.source.RunTask(req.NativeName); err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true}
	case OpTaskStatus:
		state, err := s.source.TaskStatus(req.NativeName)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true, State: state}
	case OpTaskInterrupt:
		if err := s.source.InterruptTask(req.NativeName); err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true}
	case OpConfigShow:
		text, err := s.source.ConfigYAML()
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true, Text: text}
	case OpConfigValidate:
		if err := s.source.ValidateConfig(); err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true}
	}

	h, ok := s.source.Handle(req.NativeName)
	if !ok || h.Base() == module.BaseGui || !s.source.AllowRemote(req.NativeName) {
		return errorResponse(req.ID, &errkind.PermissionError{Module: req.NativeName, Reason: "not configured for remote access"})
	}

	switch req.Op {
	case OpActivateModule:
		if err := h.Activate(); err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true}

	case OpDeactivateModule:
		if err := h.Deactivate(); err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true}

	case OpModuleState:
		return Response{ID: req.ID, OK: true, State: h.State().String()}

	case OpModuleInfo:
		return Response{ID: req.ID, OK: true, Info: &ModuleInfo{
			State:       h.State().String(),
			HasAppdata:  h.HasAppdata(),
			AllowRemote: s.source.AllowRemote(req.NativeName),
		}}

	case OpHasAppdata:
		v := module.RemoteValue{Kind: module.RemoteScalar, Scalar: appdata.Bool(h.HasAppdata())}
		return Response{ID: req.ID, OK: true, Value: &v}

	case OpClearAppdata:
		if err := h.ClearAppdata(); err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true}

	case OpGetAttribute:
		inst, err := h.Instance()
		if err != nil {
			return errorResponse(req.ID, err)
		}
		v, ok := inst.GetStatusVariable(req.Attr)
		if !ok {
			return errorResponse(req.ID, &errkind.ConfigError{Module: req.NativeName, Option: req.Attr})
		}
		return Response{ID: req.ID, OK: true, Value: &module.RemoteValue{Kind: module.RemoteScalar, Scalar: v}}

	case OpSetAttribute:
		inst, err := h.Instance()
		if err != nil {
			return errorResponse(req.ID, err)
		}
		if req.Value == nil {
			return errorResponse(req.ID, &errkind.ConfigError{Module: req.NativeName, Option: req.Attr})
		}
		inst.SetStatusVariable(req.Attr, req.Value.Scalar)
		return Response{ID: req.ID, OK: true}

	case OpDelAttribute:
		inst, err := h.Instance()
		if err != nil {
			return errorResponse(req.ID, err)
		}
		inst.SetStatusVariable(req.Attr, appdata.Null())
		return Response{ID: req.ID, OK: true}

	case OpCallMethod:
		inst, err := h.Instance()
		if err != nil {
			return errorResponse(req.ID, err)
		}
		callable, ok := inst.(module.Callable)
		if !ok {
			return errorResponse(req.ID, &errkind.ConfigError{Module: req.NativeName, Option: req.Method})
		}
		args := make([]appdata.Value, len(req.Args))
		for i, a := range req.Args {
			args[i] = a.Scalar
		}
		result, err := callable.CallMethod(req.Method, args)
		if err != nil {
			return errorResponse(req.ID, err)
		}
		return Response{ID: req.ID, OK: true, Value: &module.RemoteValue{Kind: module.RemoteScalar, Scalar: result}}

	default:
		return errorResponse(req.ID, &errkind.ValidationError{Messages: []string{"unknown op " + string(req.Op)}})
	}
}

// listModules reports every module the requesting peer is allowed to see:
// remote-shareable, non-Gui handles only.
func (s *Server) listModules(id string) Response {
	var rows []ModuleSummary
	for _, name := range s.source.Names() {
		if !s.source.AllowRemote(name) {
			continue
		}
		h, ok := s.source.Handle(name)
		if !ok || h.Base() == module.BaseGui {
			continue
		}
		rows = append(rows, ModuleSummary{
			Name:        name,
			Base:        string(h.Base()),
			State:       h.State().String(),
			AllowRemote: true,
		})
	}
	return Response{ID: id, OK: true, Modules: rows}
}

func (s *Server) listThreads(id string) Response {
	var rows []ThreadSummary
	for _, name := range s.source.ThreadNames() {
		rows = append(rows, ThreadSummary{Name: name, Running: s.source.ThreadRunning(name)})
	}
	return Response{ID: id, OK: true, Threads: rows}
}

// Listen starts the websocket endpoint on addr:port, serving Source's
// modules. certFile/keyFile, when both given, switch the listener to TLS,
// matching the orchestrator's plain-vs-secured server split.
func Listen(addr string, port int, certFile, keyFile *string, source Source) error {
	mux := http.NewServeMux()
	mux.Handle("/labrig/remote", NewServer(source))
	listenAddr := fmt.Sprintf("%s:%d", addr, port)
	if certFile != nil && keyFile != nil {
		return http.ListenAndServeTLS(listenAddr, *certFile, *keyFile, mux)
	}
	return http.ListenAndServe(listenAddr, mux)
}

func errorResponse(id string, err error) Response {
	kind := "unknown"
	switch {
	case errors.Is(err, errkind.NotFound):
		kind = "not_found"
	case errors.Is(err, errkind.Duplicate):
		kind = "duplicate"
	case errors.Is(err, errkind.Validation):
		kind = "validation"
	case errors.Is(err, errkind.State):
		kind = "state"
	case errors.Is(err, errkind.Connection):
		kind = "connection"
	case errors.Is(err, errkind.Config):
		kind = "config"
	case errors.Is(err, errkind.Permission):
		kind = "permission"
	case errors.Is(err, errkind.IO):
		kind = "io"
	}
	return Response{ID: id, OK: false, ErrorKind: kind, ErrorMessage: err.Error()}
}
