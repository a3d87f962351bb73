package config

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/labrig-project/labrig/pkg/apphome"
	"github.com/labrig-project/labrig/pkg/broadcast"
	"github.com/labrig-project/labrig/pkg/errkind"
	"gopkg.in/yaml.v3"
)

// Changed is published whenever a mutation successfully replaces the tree.
type Changed struct {
	Tree Tree
}

// Configuration owns one validated Tree plus the path it was last
// loaded from or dumped to. Every mutator follows the same pattern: copy
// the current tree, mutate the copy, validate the copy, then swap it in —
// a malformed mutation never touches the live tree or fires a notification.
type Configuration struct {
	mu       sync.RWMutex
	tree     Tree
	filePath string
	watcher  *watcher

	changed *broadcast.Channel[Changed]
}

// New constructs a Configuration holding an empty, schema-valid default
// tree and no associated file path.
func New() *Configuration {
	return &Configuration{
		tree:    emptyTree(),
		changed: broadcast.New[Changed](),
	}
}

// Subscribe registers for tree-replacement notifications.
func (c *Configuration) Subscribe(buffer int) *broadcast.Subscription[Changed] {
	return c.changed.Subscribe(buffer)
}

// Tree returns a deep copy of the current tree.
func (c *Configuration) Tree() Tree {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.tree.clone()
}

// YAML renders the current tree as a YAML document, for display by
// control tooling.
func (c *Configuration) YAML() (string, error) {
	data, err := yaml.Marshal(c.Tree())
	if err != nil {
		return "", &errkind.ParseError{Err: err}
	}
	return string(data), nil
}

// Validate reports whether the current tree is schema-valid.
func (c *Configuration) Validate() error {
	return c.Tree().Validate()
}

// FilePath returns the path this Configuration was last loaded from or
// dumped to, or "" if neither has happened yet.
func (c *Configuration) FilePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.filePath
}

// resolvePath implements the five-tier load-path fallback: an explicit
// argument, then the path already associated with this Configuration, then
// the path recorded by the previous session in load.cfg, then a
// default.cfg under the user's home config directory, then a default.cfg
// under the application-data directory.
func (c *Configuration) resolvePath(explicit string) string {
	if explicit != "" {
		return explicit
	}
	c.mu.RLock()
	assoc := c.filePath
	c.mu.RUnlock()
	if assoc != "" {
		return assoc
	}
	if saved, ok := apphome.SavedConfigPath(); ok && saved != "" {
		return saved
	}
	if p := apphome.DefaultConfigPath(); fileExists(p) {
		return p
	}
	return apphome.DataAppDefaultConfigPath()
}

func fileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

// Load reads, parses, and validates the document at path (or, if path is
// empty, at the resolved fallback path), filling schema defaults. On any
// failure the Configuration's prior in-memory state is left untouched.
func (c *Configuration) Load(path string) error {
	resolved := c.resolvePath(path)

	data, err := os.ReadFile(resolved)
	if err != nil {
		return &errkind.IOError{Path: resolved, Err: err}
	}

	next := emptyTree()
	if err := yaml.Unmarshal(data, &next); err != nil {
		return &errkind.ParseError{Path: resolved, Err: err}
	}
	fillDefaults(&next)

	if err := next.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.tree = next
	c.filePath = resolved
	c.mu.Unlock()

	apphome.SetSavedConfigPath(resolved)
	c.changed.Publish(Changed{Tree: next.clone()})
	return nil
}

// fillDefaults guards against a document explicitly nulling out a section
// map. The scalar defaults (namespace_server_port, stylesheet,
// force_remote_calls_by_value, daily_data_dirs) are already applied before
// Unmarshal runs, via emptyTree()'s defaultGlobal() — yaml.v3 only
// overwrites fields actually present in the document, so keys the document
// omits keep their pre-populated default.
func fillDefaults(t *Tree) {
	if t.Hardware == nil {
		t.Hardware = map[string]ModuleConfig{}
	}
	if t.Logic == nil {
		t.Logic = map[string]ModuleConfig{}
	}
	if t.Gui == nil {
		t.Gui = map[string]ModuleConfig{}
	}
}

// Dump validates the current tree and writes it atomically (temp file +
// rename) to path, creating missing parent directories.
func (c *Configuration) Dump(path string) error {
	c.mu.RLock()
	tree := c.tree.clone()
	c.mu.RUnlock()

	if err := tree.Validate(); err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return &errkind.IOError{Path: dir, Err: err}
	}
	data, err := yaml.Marshal(tree)
	if err != nil {
		return &errkind.IOError{Path: path, Err: err}
	}
	tmp, err := os.CreateTemp(dir, ".tmp-"+filepath.Base(path)+"-*")
	if err != nil {
		return &errkind.IOError{Path: path, Err: err}
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return &errkind.IOError{Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return &errkind.IOError{Path: path, Err: err}
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return &errkind.IOError{Path: path, Err: err}
	}

	c.mu.Lock()
	c.filePath = path
	c.mu.Unlock()
	return nil
}

// apply runs mutate against a clone of the current tree, validates the
// result, and swaps it in only if valid — the whole-tree
// copy-validate-replace pattern every mutator below uses.
func (c *Configuration) apply(mutate func(t *Tree) error) error {
	c.mu.Lock()
	next := c.tree.clone()
	c.mu.Unlock()

	if err := mutate(&next); err != nil {
		return err
	}
	if err := next.Validate(); err != nil {
		return err
	}

	c.mu.Lock()
	c.tree = next
	c.mu.Unlock()

	c.changed.Publish(Changed{Tree: next.clone()})
	return nil
}

// AddLocalModule validates cfg's local sub-schema before touching the
// tree, so a malformed call never produces even a transient change
// notification, then adds it under name in base.
func (c *Configuration) AddLocalModule(base Base, name string, cfg ModuleConfig) error {
	var b errkind.Builder
	if !nameRe.MatchString(name) {
		b.Addf("%s: name must match [A-Za-z_][A-Za-z0-9_]*", name)
	}
	validateModuleConfig(&b, base, string(base)+"."+name, cfg)
	if b.HasErrors() {
		return b.Build()
	}

	return c.apply(func(t *Tree) error {
		section := t.section(base)
		if section == nil {
			return &errkind.ValidationError{Messages: []string{"unknown base " + string(base)}}
		}
		if _, exists := section[name]; exists {
			return &dupModuleErr{base, name}
		}
		section[name] = cfg
		return nil
	})
}

// AddRemoteModule is AddLocalModule's remote-descriptor counterpart. gui
// accepts only local configs, enforced by validateModuleConfig.
func (c *Configuration) AddRemoteModule(base Base, name string, cfg ModuleConfig) error {
	return c.AddLocalModule(base, name, cfg)
}

// RenameModule moves a module's config from oldName to newName within
// base. A no-op if oldName == newName. Fails if newName already exists or
// oldName is missing.
func (c *Configuration) RenameModule(base Base, oldName, newName string) error {
	if oldName == newName {
		return nil
	}
	return c.apply(func(t *Tree) error {
		section := t.section(base)
		cfg, ok := section[oldName]
		if !ok {
			return &notFoundModuleErr{base, oldName}
		}
		if _, exists := section[newName]; exists {
			return &dupModuleErr{base, newName}
		}
		delete(section, oldName)
		section[newName] = cfg
		return nil
	})
}

// RemoveModule deletes name from base. Fails if missing.
func (c *Configuration) RemoveModule(base Base, name string) error {
	return c.apply(func(t *Tree) error {
		section := t.section(base)
		if _, ok := section[name]; !ok {
			return &notFoundModuleErr{base, name}
		}
		delete(section, name)
		return nil
	})
}

// ModuleConfigured reports whether name is configured in base.
func (c *Configuration) ModuleConfigured(base Base, name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := &c.tree
	_, ok := t.section(base)[name]
	return ok
}

// ModuleConfig returns a copy of name's descriptor in base.
func (c *Configuration) ModuleConfig(base Base, name string) (ModuleConfig, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := &c.tree
	cfg, ok := t.section(base)[name]
	return cfg, ok
}

// IsRemoteModule reports whether name in base is configured as remote.
func (c *Configuration) IsRemoteModule(base Base, name string) bool {
	cfg, ok := c.ModuleConfig(base, name)
	return ok && cfg.IsRemote()
}

// IsLocalModule reports whether name in base is configured as local.
func (c *Configuration) IsLocalModule(base Base, name string) bool {
	cfg, ok := c.ModuleConfig(base, name)
	return ok && cfg.IsLocal()
}

// ModuleNames returns every configured module name in base.
func (c *Configuration) ModuleNames(base Base) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := &c.tree
	section := t.section(base)
	names := make([]string, 0, len(section))
	for name := range section {
		names = append(names, name)
	}
	return names
}

// StartupModules returns the configured startup module name list.
func (c *Configuration) StartupModules() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.tree.Global.StartupModules...)
}

type dupModuleErr struct {
	base Base
	name string
}

func (e *dupModuleErr) Error() string {
	return "module " + string(e.base) + "." + e.name + " already configured"
}
func (e *dupModuleErr) Unwrap() error { return errkind.Duplicate }

type notFoundModuleErr struct {
	base Base
	name string
}

func (e *notFoundModuleErr) Error() string {
	return "module " + string(e.base) + "." + e.name + " not configured"
}
func (e *notFoundModuleErr) Unwrap() error { return errkind.NotFound }
