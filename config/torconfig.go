package config

// TorConfig is an immutable, validated set of Tor settings, built via
// Builder.Build.
type TorConfig struct {
	settings []Setting
}

// Settings returns the settings in declaration order.
func (c *TorConfig) Settings() []Setting {
	return append([]Setting(nil), c.settings...)
}

// Get returns the argument of the (unique) setting for option, if any.
// For non-unique options it returns the first match.
func (c *TorConfig) Get(option string) (string, bool) {
	for _, s := range c.settings {
		if s.primaryOption() == option && len(s.Items) == 1 {
			return s.Items[0].Argument, true
		}
	}
	return "", false
}

// GetAll returns every item across every setting whose option matches.
func (c *TorConfig) GetAll(option string) []Item {
	var out []Item
	for _, s := range c.settings {
		for _, it := range s.Items {
			if it.Option == option {
				out = append(out, it)
			}
		}
	}
	return out
}

// ToBuilder returns a Builder seeded with this config's settings, for
// incremental modification (e.g. the runtime reassigning an
// unavailable auto port before writing torrc, SPEC_FULL.md §4.4).
func (c *TorConfig) ToBuilder() *Builder {
	return &Builder{settings: append([]Setting(nil), c.settings...)}
}
