package config

import (
	"fmt"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/torsvc/tor-runtime/errs"
)

// MaxUnixSocketPathLen returns the platform's maximum sun_path length for
// AF_UNIX socket paths, per SPEC_FULL.md §3: "length <= 104 on BSD/macOS,
// <= 106 on Linux/Windows".
func MaxUnixSocketPathLen() int {
	switch runtime.GOOS {
	case "darwin", "freebsd", "netbsd", "openbsd", "dragonfly":
		return 104
	default:
		return 106
	}
}

// ValidateUnixSocketPath checks that path is absolute, normalized,
// single-line, and within the platform length limit.
func ValidateUnixSocketPath(path string) error {
	if path == "" {
		return &errs.ConfigError{Reason: "unix socket path must not be empty"}
	}
	if strings.ContainsAny(path, "\r\n") {
		return &errs.ConfigError{Reason: "unix socket path must be single-line"}
	}
	if !filepath.IsAbs(path) {
		return &errs.ConfigError{Reason: "unix socket path must be absolute"}
	}
	if clean := filepath.Clean(path); clean != path {
		return &errs.ConfigError{Reason: fmt.Sprintf("unix socket path must be normalized (expected %q)", clean)}
	}
	if n := MaxUnixSocketPathLen(); len(path) > n {
		return &errs.ConfigError{Reason: fmt.Sprintf("unix socket path exceeds platform maximum of %d bytes", n)}
	}
	return nil
}

// QuoteUnixSocketPath renders an absolute, normalized unix socket path in
// the form Tor expects: unix:"<path>".
func QuoteUnixSocketPath(path string) (string, error) {
	if err := ValidateUnixSocketPath(path); err != nil {
		return "", err
	}
	return fmt.Sprintf("unix:%q", path), nil
}
