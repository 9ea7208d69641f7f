// Package registry is the process-global table of live Runtimes, keyed by
// the (workDir, cacheDir) pair each was constructed with, per SPEC_FULL.md
// §9 ("Process-global runtime registry"). It exists so that a second
// Runtime constructed over a work or cache directory that a live Runtime
// already uses is detected: Register rejects it.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/torsvc/tor-runtime/errs"
	"github.com/torsvc/tor-runtime/internal/fid"
)

// Entry is the narrow interface the registry needs from a runtime.Runtime,
// kept here (rather than importing package runtime) to avoid an import
// cycle, since runtime may in turn want to register itself on New.
type Entry interface {
	FID() string
}

type table struct {
	mu      sync.Mutex
	byFID   map[string]Entry
	byOwner map[string]string // workDir|cacheDir -> FID
}

var global = &table{
	byFID:   make(map[string]Entry),
	byOwner: make(map[string]string),
}

func ownerKey(workDir, cacheDir string) string {
	return workDir + "|" + cacheDir
}

// Register associates entry with (workDir, cacheDir). It fails if a
// different, still-registered entry already owns workDir or cacheDir, per
// SPEC_FULL.md §9's "collision rejection on identity match": two distinct
// Runtimes must never share one data directory concurrently.
func Register(workDir, cacheDir string, entry Entry) error {
	global.mu.Lock()
	defer global.mu.Unlock()

	for key, existingFID := range global.byOwner {
		if !strings.HasPrefix(key, workDir+"|") && !strings.HasSuffix(key, "|"+cacheDir) {
			continue
		}
		if existing, ok := global.byFID[existingFID]; ok && existing != entry {
			return fmt.Errorf("registry: %s or %s already owned by a different runtime (fid=%s)", workDir, cacheDir, existingFID)
		}
	}

	global.byFID[entry.FID()] = entry
	global.byOwner[ownerKey(workDir, cacheDir)] = entry.FID()
	return nil
}

// Lookup returns the Entry registered under fid, or ErrRuntimeNotFound.
func Lookup(id string) (Entry, error) {
	global.mu.Lock()
	defer global.mu.Unlock()
	e, ok := global.byFID[id]
	if !ok {
		return nil, errs.ErrRuntimeNotFound
	}
	return e, nil
}

// LookupOwner returns the Entry registered for (workDir, cacheDir), or
// ErrRuntimeNotFound.
func LookupOwner(workDir, cacheDir string) (Entry, error) {
	global.mu.Lock()
	defer global.mu.Unlock()
	id, ok := global.byOwner[ownerKey(workDir, cacheDir)]
	if !ok {
		return nil, errs.ErrRuntimeNotFound
	}
	e, ok := global.byFID[id]
	if !ok {
		return nil, errs.ErrRuntimeNotFound
	}
	return e, nil
}

// Unregister removes the entry registered under id and every owner-key
// mapping that points to it, e.g. once a Runtime is permanently closed.
func Unregister(id string) {
	global.mu.Lock()
	defer global.mu.Unlock()
	delete(global.byFID, id)
	for k, v := range global.byOwner {
		if v == id {
			delete(global.byOwner, k)
		}
	}
}

// DeriveFID exposes fid.Derive so callers outside package fid (e.g.
// constructing a Runtime before Register) can compute the same key.
func DeriveFID(workDir string) string { return fid.Derive(workDir) }
