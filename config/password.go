package config

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"

	"golang.org/x/crypto/openpgp/s2k"
)

// HashControlPassword renders password into Tor's "16:<hex>"
// HashedControlPassword form (RFC 2440 S2K, salted-and-iterated, SHA-1,
// with the leading 2 bytes, the S2K type and the hash algorithm id,
// stripped). Carried over verbatim from the teacher's
// internal/tor/tor.go:CfgToSandboxTorrc.
func HashControlPassword(password string) (string, error) {
	b := &bytes.Buffer{}
	key := make([]byte, 20)
	if err := s2k.Serialize(b, key, rand.Reader, []byte(password), nil); err != nil {
		return "", err
	}
	b.Write(key)
	return "16:" + hex.EncodeToString(b.Bytes()[2:]), nil
}
