package config

// Section is a view into one module's nested options/connect maps. It
// satisfies spec.md's "proxy for nested mutation" contract — each write
// deep-copies the whole tree, mutates the copy, validates it, and swaps it
// in, rolling back in place (returning *errkind.ValidationError) on
// failure — without needing a true nested proxy object, since that is
// observationally identical for every read/write this type exposes.
type Section struct {
	cfg  *Configuration
	base Base
	name string
}

// Section opens a view onto base.name. Fails with errkind.NotFound if the
// module is not configured.
func (c *Configuration) Section(base Base, name string) (*Section, error) {
	if !c.ModuleConfigured(base, name) {
		return nil, &notFoundModuleErr{base, name}
	}
	return &Section{cfg: c, base: base, name: name}, nil
}

// Options returns a copy of the module's options map.
func (s *Section) Options() map[string]any {
	cfg, ok := s.cfg.ModuleConfig(s.base, s.name)
	if !ok {
		return nil
	}
	return cloneAnyMap(cfg.Options)
}

// SetOption sets one option key, validating the whole tree before the
// write takes effect; an invalid value leaves the live tree untouched.
func (s *Section) SetOption(key string, value any) error {
	return s.cfg.apply(func(t *Tree) error {
		section := t.section(s.base)
		cfg, ok := section[s.name]
		if !ok {
			return &notFoundModuleErr{s.base, s.name}
		}
		if cfg.Options == nil {
			cfg.Options = map[string]any{}
		}
		cfg.Options[key] = value
		section[s.name] = cfg
		return nil
	})
}

// Connect returns a copy of the module's connector map.
func (s *Section) Connect() map[string]string {
	cfg, ok := s.cfg.ModuleConfig(s.base, s.name)
	if !ok {
		return nil
	}
	return cloneStringMap(cfg.Connect)
}

// SetConnector sets one connector mapping (local identifier -> target
// module name), validated against the whole tree before it takes effect.
func (s *Section) SetConnector(identifier, target string) error {
	return s.cfg.apply(func(t *Tree) error {
		section := t.section(s.base)
		cfg, ok := section[s.name]
		if !ok {
			return &notFoundModuleErr{s.base, s.name}
		}
		if cfg.Connect == nil {
			cfg.Connect = map[string]string{}
		}
		cfg.Connect[identifier] = target
		section[s.name] = cfg
		return nil
	})
}
