package config

// ReassignToAuto replaces a concrete port setting for option with "auto",
// if and only if the option is marked Reassignable in the registry. This
// implements the opt-in behavior in SPEC_FULL.md §4.4 ("Port
// auto-reassignment ... is opt-in per-option"); the runtime decides *when*
// to call this (after discovering the configured port is unavailable at
// startup), this method only enforces *which* options may be touched.
// DESIGN.md documents the default reassignable set (SocksPort,
// __SocksPort, ControlPort, __ControlPort) resolving the Open Question in SPEC_FULL.md §9.
func (b *Builder) ReassignToAuto(option string) *Builder {
	if !Lookup(option).Reassignable {
		return b
	}
	for i, s := range b.settings {
		if s.primaryOption() == option && len(s.Items) == 1 {
			b.settings[i] = Setting{Items: []Item{{option, "auto"}}}
		}
	}
	return b
}
