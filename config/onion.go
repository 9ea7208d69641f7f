package config

import (
	"crypto/ed25519"
	"encoding/base32"
	"fmt"
	"strings"

	"golang.org/x/crypto/sha3"

	"github.com/torsvc/tor-runtime/errs"
)

const onionVersion3 byte = 0x03

var base32NoPad = base32.StdEncoding.WithPadding(base32.NoPadding)

// OnionAddress is a parsed v3 ("ED25519-V3") hidden-service address,
// encode/decode grounded on bfix-gospel/network/tor/onion.go's
// ServiceID(), generalized from its inline sha3-based checksum computation
// into a reusable round-trippable type per the Testable Properties in
// SPEC_FULL.md §8 ("ED25519-V3 address keys of length 56 base-32 chars,
// parse(format(key)) == key").
type OnionAddress struct {
	PublicKey ed25519.PublicKey
}

// NewOnionAddress derives the address for an ed25519 public key.
func NewOnionAddress(pub ed25519.PublicKey) (*OnionAddress, error) {
	if len(pub) != ed25519.PublicKeySize {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("ed25519 public key must be %d bytes", ed25519.PublicKeySize)}
	}
	return &OnionAddress{PublicKey: append(ed25519.PublicKey(nil), pub...)}, nil
}

// checksum computes H(".onion checksum" || pubkey || version)[:2], per the
// v3 onion address spec (rend-spec-v3.txt §6).
func checksum(pub ed25519.PublicKey) [2]byte {
	h := sha3.New256()
	h.Write([]byte(".onion checksum"))
	h.Write(pub)
	h.Write([]byte{onionVersion3})
	sum := h.Sum(nil)
	var out [2]byte
	copy(out[:], sum[:2])
	return out
}

// String renders the 56-character lowercase base32 address, without the
// ".onion" suffix.
func (o *OnionAddress) String() string {
	sum := checksum(o.PublicKey)
	data := make([]byte, 0, ed25519.PublicKeySize+3)
	data = append(data, o.PublicKey...)
	data = append(data, sum[0], sum[1], onionVersion3)
	return strings.ToLower(base32.StdEncoding.EncodeToString(data))
}

// ParseOnionAddress parses a 56-character base32 v3 address (with or
// without the ".onion" suffix) and verifies its embedded checksum.
func ParseOnionAddress(s string) (*OnionAddress, error) {
	s = strings.TrimSuffix(strings.ToLower(s), ".onion")
	if len(s) != 56 {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("onion address must be 56 base32 characters, got %d", len(s))}
	}
	data, err := base32.StdEncoding.DecodeString(strings.ToUpper(s))
	if err != nil {
		return nil, &errs.ConfigError{Reason: "invalid base32 onion address: " + err.Error()}
	}
	if len(data) != ed25519.PublicKeySize+3 {
		return nil, &errs.ConfigError{Reason: "decoded onion address has the wrong length"}
	}
	pub := data[:ed25519.PublicKeySize]
	sum := data[ed25519.PublicKeySize : ed25519.PublicKeySize+2]
	version := data[ed25519.PublicKeySize+2]
	if version != onionVersion3 {
		return nil, &errs.ConfigError{Reason: fmt.Sprintf("unsupported onion address version %d", version)}
	}
	want := checksum(pub)
	if sum[0] != want[0] || sum[1] != want[1] {
		return nil, &errs.ConfigError{Reason: "onion address checksum mismatch"}
	}
	return &OnionAddress{PublicKey: append(ed25519.PublicKey(nil), pub...)}, nil
}

// ClientAuthKey is a 32-byte x25519 keypair used for
// ONION_CLIENT_AUTH_ADD / the auth_clients/<name>.auth_private file
// format, per the Testable Properties in SPEC_FULL.md §8 ("x25519 auth
// keys (32 bytes)").
type ClientAuthKey struct {
	Public  [32]byte
	Private [32]byte
}

// EncodePublic renders the public half as unpadded base32, the form tor
// expects after the "descriptor:x25519:" prefix.
func (k ClientAuthKey) EncodePublic() string {
	return base32NoPad.EncodeToString(k.Public[:])
}

// EncodePrivate renders the private half the same way.
func (k ClientAuthKey) EncodePrivate() string {
	return base32NoPad.EncodeToString(k.Private[:])
}

// DecodeClientAuthPublicKey parses an unpadded base32 x25519 public key.
func DecodeClientAuthPublicKey(s string) ([32]byte, error) {
	var out [32]byte
	data, err := base32NoPad.DecodeString(strings.ToUpper(s))
	if err != nil {
		return out, &errs.ConfigError{Reason: "invalid base32 x25519 key: " + err.Error()}
	}
	if len(data) != 32 {
		return out, &errs.ConfigError{Reason: fmt.Sprintf("x25519 key must decode to 32 bytes, got %d", len(data))}
	}
	copy(out[:], data)
	return out, nil
}
