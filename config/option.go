// Package config implements the Tor Configuration Model & Validator
// (SPEC_FULL.md §4.4): a strongly-typed option table, cross-option
// constraint checks, and rendering to torrc/CLI form. It is grounded on
// the teacher's internal/ui/config.Config/Tor/Sandbox setter pattern
// (each Set* method toggles a dirty flag on a fixed struct of named
// fields), generalized into the table-driven "option name -> argument
// kind -> validator -> renderer" model SPEC_FULL.md §9 calls for instead
// of one Go type per Tor option.
package config

import "fmt"

// Attribute is one of the flags an Option may carry.
type Attribute int

const (
	AttrPort Attribute = 1 << iota
	AttrUnixSocket
	AttrDirectory
	AttrFile
	AttrHiddenService
	AttrUnique
)

// AttributeSet is a bitmask of Attribute values.
type AttributeSet int

func (s AttributeSet) Has(a Attribute) bool { return s&AttributeSet(a) != 0 }

// ArgumentKind identifies how an option's argument is validated and
// rendered, per SPEC_FULL.md §4.4 "Argument kinds".
type ArgumentKind int

const (
	KindBool ArgumentKind = iota
	KindInt
	KindEnumAutoZeroN
	KindPort
	KindIPAddress
	KindIPSocketAddress
	KindFilePath
	KindUnixSocketPath
	KindComposite
	KindString
)

// Option describes one Tor configuration key: its case-sensitive name (as
// Tor expects it on the wire/CLI), its attribute set, and its argument
// kind.
type Option struct {
	Name  string
	Attrs AttributeSet
	Kind  ArgumentKind
	// ProxyPortRange restricts KindPort validation to 1024-65535 instead
	// of the generic 0-65535, per SPEC_FULL.md §4.4 ("port (1024–65535
	// when proxy; 0–65535 when generic)").
	ProxyPortRange bool
	// Reassignable marks an option eligible for the opt-in auto-port
	// reassignment described in SPEC_FULL.md §4.4/§9. The default
	// reassignable set, per the Open Question in SPEC_FULL.md §9, is
	// documented in DESIGN.md: SocksPort/__SocksPort and
	// ControlPort/__ControlPort.
	Reassignable bool
}

// registry is the known-option table. Options not present here are
// treated as generic string-argument, non-unique options (Tor has
// hundreds of torrc keys; enumerating all of them is out of scope, per
// SPEC_FULL.md §1 — the registry only needs entries for options this
// core enforces invariants on or renders specially).
var registry = map[string]Option{
	"SocksPort": {
		Name: "SocksPort", Attrs: AttributeSet(AttrPort), Kind: KindPort,
		ProxyPortRange: true, Reassignable: true,
	},
	"ControlPort": {
		Name: "ControlPort", Attrs: AttributeSet(AttrPort | AttrUnixSocket | AttrUnique), Kind: KindPort,
		Reassignable: true,
	},
	"__ControlPort": {
		Name: "__ControlPort", Attrs: AttributeSet(AttrPort | AttrUnixSocket | AttrUnique), Kind: KindPort,
		Reassignable: true,
	},
	"__SocksPort": {
		Name: "__SocksPort", Attrs: AttributeSet(AttrPort | AttrUnixSocket), Kind: KindPort,
		ProxyPortRange: true, Reassignable: true,
	},
	"DNSPort": {
		Name: "DNSPort", Attrs: AttributeSet(AttrPort), Kind: KindPort,
	},
	"TransPort": {
		Name: "TransPort", Attrs: AttributeSet(AttrPort), Kind: KindPort,
	},
	"HTTPTunnelPort": {
		Name: "HTTPTunnelPort", Attrs: AttributeSet(AttrPort), Kind: KindPort,
	},
	"DataDirectory": {
		Name: "DataDirectory", Attrs: AttributeSet(AttrDirectory | AttrUnique), Kind: KindFilePath,
	},
	"CacheDirectory": {
		Name: "CacheDirectory", Attrs: AttributeSet(AttrDirectory | AttrUnique), Kind: KindFilePath,
	},
	"ControlPortWriteToFile": {
		Name: "ControlPortWriteToFile", Attrs: AttributeSet(AttrFile | AttrUnique), Kind: KindFilePath,
	},
	"HashedControlPassword": {
		Name: "HashedControlPassword", Attrs: AttributeSet(AttrUnique), Kind: KindString,
	},
	"CookieAuthentication": {
		Name: "CookieAuthentication", Attrs: AttributeSet(AttrUnique), Kind: KindBool,
	},
	"DisableNetwork": {
		Name: "DisableNetwork", Attrs: AttributeSet(AttrUnique), Kind: KindBool,
	},
	"SyslogIdentityTag": {
		Name: "SyslogIdentityTag", Attrs: AttributeSet(AttrUnique), Kind: KindString,
	},
	"__OwningControllerProcess": {
		Name: "__OwningControllerProcess", Attrs: AttributeSet(AttrUnique), Kind: KindString,
	},
	"HiddenServiceDir": {
		Name: "HiddenServiceDir", Attrs: AttributeSet(AttrHiddenService | AttrDirectory), Kind: KindFilePath,
	},
	"HiddenServicePort": {
		Name: "HiddenServicePort", Attrs: AttributeSet(AttrHiddenService), Kind: KindString,
	},
	"HiddenServiceVersion": {
		Name: "HiddenServiceVersion", Attrs: AttributeSet(AttrHiddenService), Kind: KindInt,
	},
	"ClientOnionAuthDir": {
		Name: "ClientOnionAuthDir", Attrs: AttributeSet(AttrDirectory | AttrUnique), Kind: KindFilePath,
	},
}

// Lookup returns the Option descriptor for name, synthesizing a generic
// non-unique string-argument descriptor for names outside the registry.
func Lookup(name string) Option {
	if opt, ok := registry[name]; ok {
		return opt
	}
	return Option{Name: name, Kind: KindString}
}

// IsPort reports whether name is known to be a port option.
func IsPort(name string) bool { return Lookup(name).Attrs.Has(AttrPort) }

// IsUnique reports whether name admits at most one setting.
func IsUnique(name string) bool { return Lookup(name).Attrs.Has(AttrUnique) }

func (o Option) String() string { return fmt.Sprintf("Option(%s)", o.Name) }
