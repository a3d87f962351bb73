// Package remote implements the RemoteTransport component (C9): a
// symmetric, duplex, JSON-RPC-style protocol over a gorilla/websocket
// connection, letting one orchestrator process serve module instances to
// another and forward attribute access across the connection.
package remote

import "github.com/labrig-project/labrig/pkg/module"

// OpCode names one callable operation in the server-side service surface.
type OpCode string

const (
	OpActivateModule   OpCode = "activate_module"
	OpDeactivateModule OpCode = "deactivate_module"
	OpModuleState      OpCode = "get_module_state"
	OpModuleInfo       OpCode = "get_module_info"
	OpHasAppdata       OpCode = "has_appdata"
	OpClearAppdata     OpCode = "clear_module_appdata"
	OpGetAttribute     OpCode = "get_module_attribute"
	OpSetAttribute     OpCode = "set_module_attribute"
	OpDelAttribute     OpCode = "del_module_attribute"
	OpCallMethod       OpCode = "call_module_method"
	OpListModules      OpCode = "list_modules"
	OpListThreads      OpCode = "list_threads"
	OpTaskRun          OpCode = "task_run"
	OpTaskStatus       OpCode = "task_status"
	OpTaskInterrupt    OpCode = "task_interrupt"
	OpConfigShow       OpCode = "config_show"
	OpConfigValidate   OpCode = "config_validate"
)

// Request is one client->server call, tagged with an ID the server echoes
// back so responses can arrive out of order on a busy connection.
// NativeName doubles as the target identifier for task ops (task name) and
// is empty for ops with no single target (list_modules, config_show).
type Request struct {
	ID         string               `json:"id"`
	Op         OpCode               `json:"op"`
	NativeName string               `json:"native_name"`
	Attr       string               `json:"attr,omitempty"`
	Method     string               `json:"method,omitempty"`
	Value      *module.RemoteValue  `json:"value,omitempty"`
	Args       []module.RemoteValue `json:"args,omitempty"`
}

// ModuleInfo answers get_module_info.
type ModuleInfo struct {
	State       string `json:"state"`
	HasAppdata  bool   `json:"has_appdata"`
	AllowRemote bool   `json:"allow_remote"`
}

// ModuleSummary is one row of a list_modules response.
type ModuleSummary struct {
	Name        string `json:"name"`
	Base        string `json:"base"`
	State       string `json:"state"`
	AllowRemote bool   `json:"allow_remote"`
}

// ThreadSummary is one row of a list_threads response.
type ThreadSummary struct {
	Name    string `json:"name"`
	Running bool   `json:"running"`
}

// Response is the server's reply to one Request. On failure ErrorKind
// names the errkind sentinel the server classified the failure under, so
// the client can reconstruct a typed error.
type Response struct {
	ID           string              `json:"id"`
	OK           bool                `json:"ok"`
	ErrorKind    string              `json:"error_kind,omitempty"`
	ErrorMessage string              `json:"error_message,omitempty"`
	Value        *module.RemoteValue `json:"value,omitempty"`
	State        string              `json:"state,omitempty"`
	Info         *ModuleInfo         `json:"info,omitempty"`
	Modules      []ModuleSummary     `json:"modules,omitempty"`
	Threads      []ThreadSummary     `json:"threads,omitempty"`
	Text         string              `json:"text,omitempty"`
}
