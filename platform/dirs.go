package platform

import (
	"path/filepath"

	"github.com/cep21/xdgbasedir"
)

// DefaultWorkDir resolves the XDG runtime/cache base for an application
// named by appName, appending a "tor" subdirectory, for the "env
// resolution" step of the startup sequence (SPEC_FULL.md §4.3 startup
// step 1). Falls back to the OS temp directory if no XDG base can be
// resolved (e.g. $HOME unset in a minimal container).
func DefaultWorkDir(appName string) string {
	base, err := xdgbasedir.CacheHome()
	if err != nil || base == "" {
		base = filepath.Join("/tmp", appName)
	}
	return filepath.Join(base, appName, "tor")
}

// DefaultCacheDir resolves the XDG data-home directory for appName's tor
// DataDirectory, distinct from DefaultWorkDir's cache-home control-file
// location per the teacher's TorDataDir/config-dir split
// (internal/ui/config.Config).
func DefaultCacheDir(appName string) string {
	base, err := xdgbasedir.DataHome()
	if err != nil || base == "" {
		base = filepath.Join("/tmp", appName)
	}
	return filepath.Join(base, appName, "tor-data")
}
