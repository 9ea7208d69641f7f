package control

import (
	"context"
	"encoding/hex"
	"strings"

	"github.com/torsvc/tor-runtime/capability"
	"github.com/torsvc/tor-runtime/errs"
)

// AuthConfig carries the credentials the caller has available; Authenticate
// picks the strongest method PROTOCOLINFO advertises that one of these can
// satisfy, per SPEC_FULL.md §4.1 "Authentication" priority: COOKIE before
// HASHEDPASSWORD before NULL. Grounded on btcpayserver-lnd/tor/
// controller.go's Authenticate.
//
// SAFECOOKIE is deliberately not supported: it requires an AUTHCHALLENGE
// nonce/HMAC round trip this package does not implement, and SPEC_FULL.md
// §4.1's auth method list only names NULL/COOKIE/HASHEDPASSWORD.
type AuthConfig struct {
	Password   string
	CookieData []byte
	FileSystem capability.FileSystem
}

// Authenticate runs PROTOCOLINFO, selects an auth method, and sends
// AUTHENTICATE. On success it returns the decoded PROTOCOLINFO for the
// caller to inspect (e.g. TorVersion).
func Authenticate(ctx context.Context, c *Conn, cfg AuthConfig) (ProtocolInfo, error) {
	pi, err := Execute(ctx, c, ProtocolInfoCommand())
	if err != nil {
		return pi, err
	}

	methods := make(map[string]bool, len(pi.AuthMethods))
	for _, m := range pi.AuthMethods {
		methods[strings.ToUpper(strings.TrimSpace(m))] = true
	}

	token, err := selectAuthToken(ctx, methods, pi, cfg)
	if err != nil {
		return pi, err
	}

	if _, err := Execute(ctx, c, AuthenticateCommand(token)); err != nil {
		return pi, &errs.ProtocolError{Reason: "AUTHENTICATE rejected", Err: err}
	}
	return pi, nil
}

func selectAuthToken(ctx context.Context, methods map[string]bool, pi ProtocolInfo, cfg AuthConfig) (string, error) {
	switch {
	case methods["COOKIE"] && (len(cfg.CookieData) > 0 || pi.CookieFile != ""):
		data := cfg.CookieData
		if len(data) == 0 {
			if cfg.FileSystem == nil {
				return "", &errs.ProtocolError{Reason: "cookie auth requires a filesystem capability to read COOKIEFILE"}
			}
			raw, err := cfg.FileSystem.ReadFile(pi.CookieFile)
			if err != nil {
				return "", &errs.IoError{Op: "read", Path: pi.CookieFile, Err: err}
			}
			data = raw
		}
		return hex.EncodeToString(data), nil
	case methods["HASHEDPASSWORD"] && cfg.Password != "":
		return `"` + escapeQuoted(cfg.Password) + `"`, nil
	case methods["NULL"]:
		return "", nil
	default:
		return "", &errs.ProtocolError{Reason: "no usable AUTHENTICATE method among " + strings.Join(pi.AuthMethods, ",")}
	}
}

func escapeQuoted(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return s
}
