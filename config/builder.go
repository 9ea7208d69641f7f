package config

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/torsvc/tor-runtime/errs"
)

// Builder accumulates Settings in declaration order and validates them at
// Build time, per SPEC_FULL.md §4.4.
type Builder struct {
	settings []Setting
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Put sets option to argument. For unique options this replaces any
// existing setting; for non-unique options it appends unless the exact
// (option, argument) tuple already exists, per SPEC_FULL.md §3 ("Duplicate
// (option, argument) tuples coalesce"). Setting a port option to "0"
// removes every other setting of that option, per the disable-port
// invariant.
func (b *Builder) Put(option, argument string) *Builder {
	opt := Lookup(option)

	if opt.Attrs.Has(AttrPort) && argument == "0" {
		b.removeAllFor(option)
		b.settings = append(b.settings, Setting{Items: []Item{{option, "0"}}})
		return b
	}

	if opt.Attrs.Has(AttrUnique) {
		b.removeAllFor(option)
		b.settings = append(b.settings, Setting{Items: []Item{{option, argument}}})
		return b
	}

	tuple := Setting{Items: []Item{{option, argument}}}
	for _, s := range b.settings {
		if s.equalTuple(tuple) {
			return b
		}
	}
	b.settings = append(b.settings, tuple)
	return b
}

// PutIfAbsent sets option to argument only if no setting exists yet: for
// unique options, only if none is present at all; for non-unique options,
// only if the exact tuple is absent.
func (b *Builder) PutIfAbsent(option, argument string) *Builder {
	opt := Lookup(option)
	if opt.Attrs.Has(AttrUnique) {
		if b.hasAnyFor(option) {
			return b
		}
		b.settings = append(b.settings, Setting{Items: []Item{{option, argument}}})
		return b
	}
	return b.Put(option, argument)
}

// Remove removes every setting whose first item is option; for
// "HiddenServiceDir" that is every hidden-service block, all items
// included.
func (b *Builder) Remove(option string) *Builder {
	b.removeAllFor(option)
	return b
}

// RemoveDisabled removes every setting that disables option (argument
// "0"), per the round-trip law in SPEC_FULL.md §8: "removing a SocksPort
// disable setting from the config exactly removes every SocksPort of
// value 0".
func (b *Builder) RemoveDisabled(option string) *Builder {
	kept := b.settings[:0:0]
	for _, s := range b.settings {
		if s.isDisableFor(option) {
			continue
		}
		kept = append(kept, s)
	}
	b.settings = kept
	return b
}

func (b *Builder) removeAllFor(option string) {
	kept := b.settings[:0:0]
	for _, s := range b.settings {
		if s.primaryOption() != option {
			kept = append(kept, s)
		}
	}
	b.settings = kept
}

func (b *Builder) hasAnyFor(option string) bool {
	for _, s := range b.settings {
		if s.primaryOption() == option {
			return true
		}
	}
	return false
}

// AddHiddenService appends a hidden-service block: a directory, a
// version, and one or more "virtual-port,target" pairs already formatted
// as Tor expects them (e.g. "80 127.0.0.1:8080"). The block is validated
// at Build time per SPEC_FULL.md §3/§4.4 ("exactly one directory, exactly
// one version, and >=1 virtual-port item").
func (b *Builder) AddHiddenService(dir string, version int, ports ...string) *Builder {
	items := make([]Item, 0, 2+len(ports))
	items = append(items, Item{"HiddenServiceDir", dir})
	items = append(items, Item{"HiddenServiceVersion", strconv.Itoa(version)})
	for _, p := range ports {
		items = append(items, Item{"HiddenServicePort", p})
	}
	b.settings = append(b.settings, Setting{Items: items})
	return b
}

// Build validates all accumulated settings and returns an immutable
// TorConfig, or a *errs.ConfigError describing the first violation found.
func (b *Builder) Build() (*TorConfig, error) {
	settings := append([]Setting(nil), b.settings...)

	for _, s := range settings {
		if err := validateSetting(s); err != nil {
			return nil, err
		}
	}

	return &TorConfig{settings: settings}, nil
}

func validateSetting(s Setting) error {
	if len(s.Items) == 0 {
		return &errs.ConfigError{Reason: "empty setting"}
	}

	if s.Items[0].Option == "HiddenServiceDir" {
		return validateHiddenServiceBlock(s)
	}

	for _, it := range s.Items {
		if err := validateItem(it); err != nil {
			return err
		}
	}
	return nil
}

func validateHiddenServiceBlock(s Setting) error {
	var nVersion, nPort int
	for i, it := range s.Items {
		switch it.Option {
		case "HiddenServiceDir":
			if i != 0 {
				return &errs.ConfigError{Option: "HiddenServiceDir", Reason: "must be first item in block"}
			}
			if !filepath.IsAbs(it.Argument) {
				return &errs.ConfigError{Option: "HiddenServiceDir", Reason: "must be an absolute path"}
			}
		case "HiddenServiceVersion":
			nVersion++
		case "HiddenServicePort":
			nPort++
		default:
			return &errs.ConfigError{Option: it.Option, Reason: "unexpected option inside hidden-service block"}
		}
	}
	if nVersion != 1 {
		return &errs.ConfigError{Option: "HiddenServiceVersion", Reason: fmt.Sprintf("hidden-service block must have exactly one version, got %d", nVersion)}
	}
	if nPort < 1 {
		return &errs.ConfigError{Option: "HiddenServicePort", Reason: "hidden-service block must have at least one HiddenServicePort"}
	}
	return nil
}

func validateItem(it Item) error {
	opt := Lookup(it.Option)
	switch opt.Kind {
	case KindPort:
		return validatePortArgument(opt, it.Argument)
	case KindBool:
		if it.Argument != "0" && it.Argument != "1" {
			return &errs.ConfigError{Option: it.Option, Reason: "boolean argument must be 0 or 1"}
		}
	case KindInt:
		if _, err := strconv.Atoi(it.Argument); err != nil {
			return &errs.ConfigError{Option: it.Option, Reason: "argument must be an integer"}
		}
	case KindFilePath:
		if it.Argument != "" && !filepath.IsAbs(it.Argument) {
			return &errs.ConfigError{Option: it.Option, Reason: "path must be absolute"}
		}
	case KindUnixSocketPath:
		return ValidateUnixSocketPath(it.Argument)
	}
	return nil
}

func validatePortArgument(opt Option, argument string) error {
	if argument == "auto" || argument == "0" {
		return nil
	}
	if len(argument) > 5 && (argument[:5] == "unix:") {
		return ValidateUnixSocketPath(argument[6 : len(argument)-1])
	}
	n, err := strconv.Atoi(argument)
	if err != nil {
		return &errs.ConfigError{Option: opt.Name, Reason: "port argument must be a number, \"auto\", or \"0\""}
	}
	lo := 0
	if opt.ProxyPortRange {
		lo = 1024
	}
	if n < lo || n > 65535 {
		return &errs.ConfigError{Option: opt.Name, Reason: fmt.Sprintf("port %d out of range [%d, 65535]", n, lo)}
	}
	return nil
}
