package config

import (
	"fmt"

	"github.com/labrig-project/labrig/pkg/errkind"
)

// Validate checks t against the full schema contract, accumulating every
// violation rather than stopping at the first.
func (t Tree) Validate() error {
	var b errkind.Builder

	b.Require(t.Global.NamespaceServerPort >= 0 && t.Global.NamespaceServerPort <= 65535,
		"global.namespace_server_port must be in 0..65535")
	if rs := t.Global.RemoteModulesServer; rs != nil {
		b.Require(rs.Address != "", "global.remote_modules_server.address must be set")
		b.Require(rs.Port >= 0 && rs.Port <= 65535,
			"global.remote_modules_server.port must be in 0..65535")
	}
	b.Require(hasSuffix(t.Global.Stylesheet, ".qss"),
		"global.stylesheet must end in .qss")
	seen := map[string]bool{}
	for _, name := range t.Global.StartupModules {
		b.Require(!seen[name], fmt.Sprintf("global.startup_modules: duplicate %q", name))
		seen[name] = true
	}

	validateSection(&b, BaseHardware, t.Hardware)
	validateSection(&b, BaseLogic, t.Logic)
	validateSection(&b, BaseGui, t.Gui)

	for _, name := range t.Global.StartupModules {
		if !moduleExists(t, name) {
			b.Addf("global.startup_modules: %q is not a configured module", name)
		}
	}

	return b.Build()
}

func moduleExists(t Tree, name string) bool {
	_, ok := t.Hardware[name]
	if ok {
		return true
	}
	_, ok = t.Logic[name]
	if ok {
		return true
	}
	_, ok = t.Gui[name]
	return ok
}

func validateSection(b *errkind.Builder, base Base, section map[string]ModuleConfig) {
	for name, cfg := range section {
		prefix := fmt.Sprintf("%s.%s", base, name)
		b.Require(nameRe.MatchString(name), prefix+": name must match [A-Za-z_][A-Za-z0-9_]*")
		validateModuleConfig(b, base, prefix, cfg)
	}
}

// validateModuleConfig checks one module descriptor's sub-schema in
// isolation, used both by the full-tree Validate pass and by
// add_local_module/add_remote_module to validate before touching the tree.
func validateModuleConfig(b *errkind.Builder, base Base, prefix string, cfg ModuleConfig) {
	isLocal, isRemote := cfg.IsLocal(), cfg.IsRemote()
	if isLocal && isRemote {
		b.Addf("%s: local and remote fields are mutually exclusive", prefix)
		return
	}
	if !isLocal && !isRemote {
		b.Addf("%s: must be configured as local (module.Class) or remote (native_module_name/address/port)", prefix)
		return
	}
	if isRemote {
		if base == BaseGui {
			b.Addf("%s: gui accepts only local configs", prefix)
		}
		b.Require(cfg.NativeModuleName != "", prefix+": native_module_name is required")
		b.Require(cfg.Address != "", prefix+": address is required")
		b.Require(cfg.Port >= 0 && cfg.Port <= 65535, prefix+": port must be in 0..65535")
		if cfg.UsesSSHTunnel() {
			b.Require(cfg.SSHUser != "", prefix+": ssh_user is required when ssh_address is set")
			b.Require(cfg.SSHKeyFile != "", prefix+": ssh_keyfile is required when ssh_address is set")
		}
		return
	}
	b.Require(cfg.Class != "", prefix+": module.Class is required")
}

func hasSuffix(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
}
