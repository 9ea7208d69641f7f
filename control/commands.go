package control

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/torsvc/tor-runtime/errs"
)

// quoteArg quotes s as a QuotedString per control-spec.txt if it contains
// a space or quote character, escaping embedded quotes and backslashes.
func quoteArg(s string) string {
	if !strings.ContainsAny(s, ` "\`) {
		return s
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range s {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

func okDecode(r Reply) (struct{}, error) { return struct{}{}, nil }

// isInfoKey reports whether k is one of the keys a GETINFO call asked
// for, so a data-reply body line that happens to contain its own "="
// (e.g. a circuit-status row's "PURPOSE=GENERAL") is not mistaken for
// the start of a new key.
func isInfoKey(k string, keys []string) bool {
	for _, want := range keys {
		if k == want {
			return true
		}
	}
	return false
}

// ProtocolInfo is the decoded PROTOCOLINFO reply.
type ProtocolInfo struct {
	ProtocolVersion int
	AuthMethods     []string
	CookieFile      string
	TorVersion      string
}

// ProtocolInfoCommand builds PROTOCOLINFO, the first message sent on a
// freshly dialed control connection (SPEC_FULL.md §4.1 "Authentication").
func ProtocolInfoCommand() Command[ProtocolInfo] {
	return Command[ProtocolInfo]{
		Render: func() []string { return []string{"PROTOCOLINFO 1"} },
		Decode: func(r Reply) (ProtocolInfo, error) {
			var pi ProtocolInfo
			for _, line := range r.Lines {
				switch {
				case strings.HasPrefix(line, "PROTOCOLINFO "):
					n, err := strconv.Atoi(strings.TrimSpace(strings.TrimPrefix(line, "PROTOCOLINFO ")))
					if err != nil {
						return pi, &errs.ProtocolError{Reason: "malformed PROTOCOLINFO line", Err: err}
					}
					pi.ProtocolVersion = n
				case strings.HasPrefix(line, "AUTH METHODS="):
					rest := strings.TrimPrefix(line, "AUTH METHODS=")
					fields := strings.Fields(rest)
					if len(fields) > 0 {
						pi.AuthMethods = strings.Split(fields[0], ",")
					}
					if idx := strings.Index(rest, "COOKIEFILE="); idx >= 0 {
						pi.CookieFile = unquote(strings.TrimSpace(rest[idx+len("COOKIEFILE="):]))
					}
				case strings.HasPrefix(line, "VERSION Tor="):
					pi.TorVersion = unquote(strings.TrimPrefix(line, "VERSION Tor="))
				}
			}
			return pi, nil
		},
	}
}

// AuthenticateCommand builds AUTHENTICATE with a pre-formatted hex or
// quoted-string token, per whichever method auth.go selected.
func AuthenticateCommand(token string) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string { return []string{"AUTHENTICATE " + token} },
		Decode: okDecode,
	}
}

// GetConfCommand builds GETCONF for one or more option keys.
func GetConfCommand(keys ...string) Command[map[string][]string] {
	return Command[map[string][]string]{
		Render: func() []string { return []string{"GETCONF " + strings.Join(keys, " ")} },
		Decode: func(r Reply) (map[string][]string, error) {
			out := make(map[string][]string)
			for _, line := range r.Lines {
				k, v, ok := strings.Cut(line, "=")
				if !ok {
					k, v = line, ""
				}
				out[k] = append(out[k], unquote(v))
			}
			return out, nil
		},
	}
}

// SetConfCommand builds SETCONF from ordered key/value pairs (order
// matters for options like hidden-service blocks).
func SetConfCommand(items []Item) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string {
			parts := make([]string, len(items))
			for i, it := range items {
				if it.Argument == "" {
					parts[i] = it.Option
				} else {
					parts[i] = fmt.Sprintf("%s=%s", it.Option, quoteArg(it.Argument))
				}
			}
			return []string{"SETCONF " + strings.Join(parts, " ")}
		},
		Decode: okDecode,
	}
}

// Item mirrors config.Item's shape without importing package config, to
// keep control free of a dependency on the configuration model; the
// runtime layer translates between them.
type Item struct {
	Option   string
	Argument string
}

// ResetConfCommand builds RESETCONF for the given keys.
func ResetConfCommand(keys ...string) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string { return []string{"RESETCONF " + strings.Join(keys, " ")} },
		Decode: okDecode,
	}
}

// GetInfoCommand builds GETINFO for one or more info keys.
func GetInfoCommand(keys ...string) Command[map[string]string] {
	return Command[map[string]string]{
		Render: func() []string { return []string{"GETINFO " + strings.Join(keys, " ")} },
		Decode: func(r Reply) (map[string]string, error) {
			out := make(map[string]string)
			var lastKey string
			for _, line := range r.Lines {
				if line == "OK" {
					continue
				}
				if k, v, ok := strings.Cut(line, "="); ok && isInfoKey(k, keys) {
					lastKey = k
					out[k] = unquote(v)
					continue
				}
				// Any other line is a body line of a "+key=" data reply (it
				// may contain "=" of its own); it belongs to whichever key
				// introduced the body, joined back with the newlines the
				// dot-encoding stripped.
				if lastKey != "" {
					out[lastKey] += "\n" + line
				}
			}
			return out, nil
		},
	}
}

// SignalCommand builds SIGNAL, e.g. "SHUTDOWN", "HALT", "NEWNYM",
// "DORMANT", "ACTIVE".
func SignalCommand(name string) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string { return []string{"SIGNAL " + name} },
		Decode: okDecode,
	}
}

// SetEventsCommand builds SETEVENTS with the full desired keyword set
// (Tor's SETEVENTS always replaces, never appends).
func SetEventsCommand(keywords []string) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string {
			if len(keywords) == 0 {
				return []string{"SETEVENTS"}
			}
			return []string{"SETEVENTS " + strings.Join(keywords, " ")}
		},
		Decode: okDecode,
	}
}

// TakeOwnershipCommand builds TAKEOWNERSHIP, binding tor's lifetime to
// this control connection (SPEC_FULL.md §4.3 startup step 9).
func TakeOwnershipCommand() Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string { return []string{"TAKEOWNERSHIP"} },
		Decode: okDecode,
	}
}

// DropGuardsCommand builds DROPGUARDS.
func DropGuardsCommand() Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string { return []string{"DROPGUARDS"} },
		Decode: okDecode,
	}
}

// MapAddressCommand builds MAPADDRESS for one or more "old=new" pairs,
// returning the resulting mappings as reported by tor (which may differ
// from the request, e.g. for ".anything" wildcards).
func MapAddressCommand(pairs map[string]string) Command[map[string]string] {
	return Command[map[string]string]{
		Render: func() []string {
			parts := make([]string, 0, len(pairs))
			for k, v := range pairs {
				parts = append(parts, fmt.Sprintf("%s=%s", k, v))
			}
			return []string{"MAPADDRESS " + strings.Join(parts, " ")}
		},
		Decode: func(r Reply) (map[string]string, error) {
			out := make(map[string]string)
			for _, line := range r.Lines {
				k, v, ok := strings.Cut(line, "=")
				if ok {
					out[k] = v
				}
			}
			return out, nil
		},
	}
}

// ResolveCommand builds RESOLVE, triggering an asynchronous ADDRMAP
// lookup whose result arrives via an "ADDRMAP" 650 event rather than in
// this reply (control-spec.txt §3.19); the immediate reply only
// acknowledges the request.
func ResolveCommand(hostname string, reverse bool) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string {
			if reverse {
				return []string{"RESOLVE mode=reverse " + hostname}
			}
			return []string{"RESOLVE " + hostname}
		},
		Decode: okDecode,
	}
}

// OnionAddResult is the decoded ADD_ONION reply.
type OnionAddResult struct {
	ServiceID  string
	PrivateKey string
	ClientAuth []string
}

// AddOnionCommand builds ADD_ONION. keyType/keyBlob follow control-spec
// (e.g. "NEW", "BEST" / "ED25519-V3:<base64>"); ports is rendered as
// repeated "Port=" flags; flags is rendered as a single "Flags=" list.
func AddOnionCommand(keyType, keyBlob string, ports []string, flags []string, maxStreams int) Command[OnionAddResult] {
	return Command[OnionAddResult]{
		Render: func() []string {
			parts := []string{"ADD_ONION", fmt.Sprintf("%s:%s", keyType, keyBlob)}
			if len(flags) > 0 {
				parts = append(parts, "Flags="+strings.Join(flags, ","))
			}
			if maxStreams > 0 {
				parts = append(parts, fmt.Sprintf("MaxStreamsCloseCircuit=%d", maxStreams))
			}
			for _, p := range ports {
				parts = append(parts, "Port="+p)
			}
			return []string{strings.Join(parts, " ")}
		},
		Decode: func(r Reply) (OnionAddResult, error) {
			var out OnionAddResult
			for _, line := range r.Lines {
				switch {
				case strings.HasPrefix(line, "ServiceID="):
					out.ServiceID = strings.TrimPrefix(line, "ServiceID=")
				case strings.HasPrefix(line, "PrivateKey="):
					out.PrivateKey = strings.TrimPrefix(line, "PrivateKey=")
				case strings.HasPrefix(line, "ClientAuth="):
					out.ClientAuth = append(out.ClientAuth, strings.TrimPrefix(line, "ClientAuth="))
				}
			}
			return out, nil
		},
	}
}

// DelOnionCommand builds DEL_ONION for a service ID.
func DelOnionCommand(serviceID string) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string { return []string{"DEL_ONION " + serviceID} },
		Decode: okDecode,
	}
}

// OnionClientAuthAddCommand builds ONION_CLIENT_AUTH_ADD, registering a
// v3 client-auth key for a .onion address.
func OnionClientAuthAddCommand(serviceID, privX25519 string, nickname string) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string {
			cmd := fmt.Sprintf("ONION_CLIENT_AUTH_ADD %s x25519:%s", serviceID, privX25519)
			if nickname != "" {
				cmd += " ClientName=" + nickname
			}
			return []string{cmd}
		},
		Decode: okDecode,
	}
}

// OnionClientAuthRemoveCommand builds ONION_CLIENT_AUTH_REMOVE.
func OnionClientAuthRemoveCommand(serviceID string) Command[struct{}] {
	return Command[struct{}]{
		Render: func() []string { return []string{"ONION_CLIENT_AUTH_REMOVE " + serviceID} },
		Decode: okDecode,
	}
}

// OnionClientAuthView is one decoded ONION_CLIENT_AUTH_VIEW entry.
type OnionClientAuthView struct {
	ServiceID string
	PublicKey string
	Nickname  string
}

// OnionClientAuthViewCommand builds ONION_CLIENT_AUTH_VIEW; an empty
// serviceID lists every registered client-auth credential.
func OnionClientAuthViewCommand(serviceID string) Command[[]OnionClientAuthView] {
	return Command[[]OnionClientAuthView]{
		Render: func() []string {
			if serviceID == "" {
				return []string{"ONION_CLIENT_AUTH_VIEW"}
			}
			return []string{"ONION_CLIENT_AUTH_VIEW " + serviceID}
		},
		Decode: func(r Reply) ([]OnionClientAuthView, error) {
			var out []OnionClientAuthView
			for _, line := range r.Lines {
				if !strings.HasPrefix(line, "CLIENT ") {
					continue
				}
				fields := strings.Fields(strings.TrimPrefix(line, "CLIENT "))
				if len(fields) < 2 {
					continue
				}
				view := OnionClientAuthView{ServiceID: fields[0]}
				if key, ok := strings.CutPrefix(fields[1], "x25519:"); ok {
					view.PublicKey = key
				}
				for _, f := range fields[2:] {
					if name, ok := strings.CutPrefix(f, "ClientName="); ok {
						view.Nickname = name
					}
				}
				out = append(out, view)
			}
			return out, nil
		},
	}
}

func unquote(s string) string {
	s = strings.TrimSpace(s)
	if len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		inner := s[1 : len(s)-1]
		inner = strings.ReplaceAll(inner, `\"`, `"`)
		inner = strings.ReplaceAll(inner, `\\`, `\`)
		return inner
	}
	return s
}
