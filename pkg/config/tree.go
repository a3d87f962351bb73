// Package config implements the orchestrator's Configuration component: a
// validated tree of global settings plus hardware/logic/gui module
// descriptors, loaded from and dumped to a YAML document, mutated only by
// whole-tree copy-validate-replace operations.
package config

import "regexp"

var nameRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Base names the three module sections a descriptor can live in.
type Base string

const (
	BaseHardware Base = "hardware"
	BaseLogic    Base = "logic"
	BaseGui      Base = "gui"
)

// RemoteServer describes the global.remote_modules_server block.
type RemoteServer struct {
	Address  string  `yaml:"address"`
	Port     int     `yaml:"port"`
	CertFile *string `yaml:"certfile,omitempty"`
	KeyFile  *string `yaml:"keyfile,omitempty"`
}

// Global holds the recognized global keys plus any unrecognized extras,
// since global is the one section spec.md allows unknown keys in.
type Global struct {
	StartupModules           []string          `yaml:"startup_modules,omitempty"`
	RemoteModulesServer      *RemoteServer     `yaml:"remote_modules_server,omitempty"`
	NamespaceServerPort      int               `yaml:"namespace_server_port"`
	ForceRemoteCallsByValue  bool              `yaml:"force_remote_calls_by_value"`
	DailyDataDirs            bool              `yaml:"daily_data_dirs"`
	DefaultDataDir           *string           `yaml:"default_data_dir,omitempty"`
	Stylesheet               string            `yaml:"stylesheet"`
	ExtensionPaths           []string          `yaml:"extension_paths,omitempty"`
	WatchConfigFile          bool              `yaml:"watch_config_file,omitempty"`
	Extra                    map[string]any    `yaml:",inline"`
}

func defaultGlobal() Global {
	return Global{
		NamespaceServerPort:     18861,
		ForceRemoteCallsByValue: true,
		DailyDataDirs:           true,
		Stylesheet:              "qdark.qss",
	}
}

// ModuleConfig is either a local or a remote module descriptor. Exactly one
// of the two shapes is populated, enforced by Validate.
type ModuleConfig struct {
	// Local fields.
	Class       string         `yaml:"module.Class,omitempty"`
	AllowRemote bool           `yaml:"allow_remote,omitempty"`
	Connect     map[string]string `yaml:"connect,omitempty"`
	Options     map[string]any `yaml:"options,omitempty"`

	// Remote fields.
	NativeModuleName string  `yaml:"native_module_name,omitempty"`
	Address          string  `yaml:"address,omitempty"`
	Port             int     `yaml:"port,omitempty"`
	CertFile         *string `yaml:"certfile,omitempty"`
	KeyFile          *string `yaml:"keyfile,omitempty"`

	// SSH tunnel fields. When SSHAddress is set, the client reaches
	// Address:Port through an SSH-forwarded local port instead of dialing
	// it directly, for peers behind a bastion or an isolated lab network.
	SSHAddress  string `yaml:"ssh_address,omitempty"`
	SSHUser     string `yaml:"ssh_user,omitempty"`
	SSHKeyFile  string `yaml:"ssh_keyfile,omitempty"`
}

// UsesSSHTunnel reports whether this remote descriptor should be reached
// through an SSH-forwarded local port rather than dialed directly.
func (m ModuleConfig) UsesSSHTunnel() bool {
	return m.SSHAddress != ""
}

// IsRemote reports whether m is shaped as a remote module descriptor.
func (m ModuleConfig) IsRemote() bool {
	return m.NativeModuleName != "" || m.Address != "" || m.Port != 0
}

// IsLocal reports whether m is shaped as a local module descriptor.
func (m ModuleConfig) IsLocal() bool {
	return m.Class != ""
}

// Tree is the full validated configuration document.
type Tree struct {
	Global   Global                  `yaml:"global"`
	Hardware map[string]ModuleConfig `yaml:"hardware,omitempty"`
	Logic    map[string]ModuleConfig `yaml:"logic,omitempty"`
	Gui      map[string]ModuleConfig `yaml:"gui,omitempty"`
}

func emptyTree() Tree {
	return Tree{
		Global:   defaultGlobal(),
		Hardware: map[string]ModuleConfig{},
		Logic:    map[string]ModuleConfig{},
		Gui:      map[string]ModuleConfig{},
	}
}

// clone deep-copies t, the basis for the whole-tree copy-validate-replace
// mutation model every exported mutator uses.
func (t Tree) clone() Tree {
	out := Tree{
		Global:   t.Global,
		Hardware: cloneModuleMap(t.Hardware),
		Logic:    cloneModuleMap(t.Logic),
		Gui:      cloneModuleMap(t.Gui),
	}
	out.Global.StartupModules = append([]string(nil), t.Global.StartupModules...)
	out.Global.ExtensionPaths = append([]string(nil), t.Global.ExtensionPaths...)
	if t.Global.RemoteModulesServer != nil {
		rs := *t.Global.RemoteModulesServer
		out.Global.RemoteModulesServer = &rs
	}
	return out
}

func cloneModuleMap(m map[string]ModuleConfig) map[string]ModuleConfig {
	if m == nil {
		return map[string]ModuleConfig{}
	}
	out := make(map[string]ModuleConfig, len(m))
	for k, v := range m {
		cp := v
		cp.Connect = cloneStringMap(v.Connect)
		cp.Options = cloneAnyMap(v.Options)
		out[k] = cp
	}
	return out
}

func cloneStringMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// section returns a pointer to the named base's module map within t.
func (t *Tree) section(b Base) map[string]ModuleConfig {
	switch b {
	case BaseHardware:
		return t.Hardware
	case BaseLogic:
		return t.Logic
	case BaseGui:
		return t.Gui
	default:
		return nil
	}
}
