package registry_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torsvc/tor-runtime/internal/registry"
)

type fakeEntry string

func (f fakeEntry) FID() string { return string(f) }

func TestRegisterAndLookup(t *testing.T) {
	e := fakeEntry(registry.DeriveFID("/tmp/work-a"))
	require.NoError(t, registry.Register("/tmp/work-a", "/tmp/cache-a", e))
	defer registry.Unregister(e.FID())

	got, err := registry.Lookup(e.FID())
	require.NoError(t, err)
	require.Equal(t, e, got)

	got, err = registry.LookupOwner("/tmp/work-a", "/tmp/cache-a")
	require.NoError(t, err)
	require.Equal(t, e, got)
}

func TestRegisterRejectsCollisionWithDifferentEntry(t *testing.T) {
	a := fakeEntry("fid-a")
	b := fakeEntry("fid-b")
	require.NoError(t, registry.Register("/tmp/work-b", "/tmp/cache-b", a))
	defer registry.Unregister(a.FID())

	err := registry.Register("/tmp/work-b", "/tmp/cache-b", b)
	require.Error(t, err)
}

func TestLookupMissingReturnsNotFound(t *testing.T) {
	_, err := registry.Lookup("does-not-exist")
	require.Error(t, err)
}
