package config_test

import (
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torsvc/tor-runtime/config"
)

func TestUniqueOptionReplaces(t *testing.T) {
	b := config.NewBuilder()
	b.Put("ControlPort", "9051")
	b.Put("ControlPort", "9052")

	cfg, err := b.Build()
	require.NoError(t, err)

	v, ok := cfg.Get("ControlPort")
	require.True(t, ok)
	require.Equal(t, "9052", v)
}

func TestPutIfAbsentDoesNotReplace(t *testing.T) {
	b := config.NewBuilder()
	b.Put("ControlPort", "9051")
	b.PutIfAbsent("ControlPort", "9999")

	cfg, err := b.Build()
	require.NoError(t, err)

	v, _ := cfg.Get("ControlPort")
	require.Equal(t, "9051", v)
}

func TestPortZeroDisablesOthers(t *testing.T) {
	b := config.NewBuilder()
	b.Put("SocksPort", "9150")
	b.Put("SocksPort", "9151")
	b.Put("SocksPort", "0")

	cfg, err := b.Build()
	require.NoError(t, err)

	items := cfg.GetAll("SocksPort")
	require.Len(t, items, 1)
	require.Equal(t, "0", items[0].Argument)
}

func TestRemoveDisabledRemovesOnlyDisableSettings(t *testing.T) {
	b := config.NewBuilder()
	b.Put("SocksPort", "0")
	b.RemoveDisabled("SocksPort")
	b.Put("SocksPort", "9150")
	b.Put("SocksPort", "9151")

	cfg, err := b.Build()
	require.NoError(t, err)

	items := cfg.GetAll("SocksPort")
	require.Len(t, items, 2)
	for _, it := range items {
		require.NotEqual(t, "0", it.Argument)
	}
}

func TestDuplicateTuplesCoalesce(t *testing.T) {
	b := config.NewBuilder()
	b.Put("SocksPort", "9150")
	b.Put("SocksPort", "9150")

	cfg, err := b.Build()
	require.NoError(t, err)
	require.Len(t, cfg.GetAll("SocksPort"), 1)
}

func TestHiddenServiceRequiresPort(t *testing.T) {
	b := config.NewBuilder()
	b.AddHiddenService("/var/lib/tor/hs", 3)
	_, err := b.Build()
	require.Error(t, err)
	require.Contains(t, err.Error(), "HiddenServicePort")
}

func TestHiddenServiceBlockRoundTrips(t *testing.T) {
	b := config.NewBuilder()
	b.AddHiddenService("/var/lib/tor/hs", 3, "80 127.0.0.1:8080", "443 127.0.0.1:8443")
	cfg, err := b.Build()
	require.NoError(t, err)

	rendered := cfg.RenderTorrc()

	parsed, err := config.ParseTorrc(rendered)
	require.NoError(t, err)

	reparsed, err := parsed.Build()
	require.NoError(t, err)

	require.Equal(t, cfg.Settings(), reparsed.Settings())
}

func TestPortBoundaries(t *testing.T) {
	b := config.NewBuilder()
	b.Put("SocksPort", "1023")
	_, err := b.Build()
	require.Error(t, err, "proxy ports below 1024 must be rejected")

	b2 := config.NewBuilder()
	b2.Put("SocksPort", "1024")
	_, err = b2.Build()
	require.NoError(t, err)

	b3 := config.NewBuilder()
	b3.Put("DNSPort", "-1")
	_, err = b3.Build()
	require.Error(t, err)
}

func TestUnixSocketPathLengthBoundary(t *testing.T) {
	max := config.MaxUnixSocketPathLen()
	dir := "/tmp/"
	name := make([]byte, max-len(dir))
	for i := range name {
		name[i] = 'a'
	}
	path := dir + string(name)
	require.Len(t, path, max)
	require.NoError(t, config.ValidateUnixSocketPath(path))

	tooLong := path + "x"
	require.Error(t, config.ValidateUnixSocketPath(tooLong))
}

func TestOnionAddressRoundTrip(t *testing.T) {
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)

	addr, err := config.NewOnionAddress(pub)
	require.NoError(t, err)

	s := addr.String()
	require.Len(t, s, 56)

	parsed, err := config.ParseOnionAddress(s + ".onion")
	require.NoError(t, err)
	require.Equal(t, addr.PublicKey, parsed.PublicKey)
}

func TestOnionAddressRejectsBadChecksum(t *testing.T) {
	pub, _, _ := ed25519.GenerateKey(nil)
	addr, _ := config.NewOnionAddress(pub)
	s := []byte(addr.String())
	// flip the first character of the encoded public key region.
	if s[0] == 'a' {
		s[0] = 'b'
	} else {
		s[0] = 'a'
	}
	_, err := config.ParseOnionAddress(string(s))
	require.Error(t, err)
}

func TestHashControlPassword(t *testing.T) {
	hashed, err := config.HashControlPassword("hunter2")
	require.NoError(t, err)
	require.Regexp(t, `^16:[0-9A-Fa-f]+$`, hashed)
}
