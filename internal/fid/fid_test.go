package fid_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/torsvc/tor-runtime/internal/fid"
)

func TestDeriveIsDeterministic(t *testing.T) {
	a := fid.Derive("/home/user/.tor-runtime/work")
	b := fid.Derive("/home/user/.tor-runtime/work")
	require.Equal(t, a, b)
	require.Len(t, a, fid.Length)
}

func TestDeriveDiffersByWorkDir(t *testing.T) {
	a := fid.Derive("/home/user/.tor-runtime/work1")
	b := fid.Derive("/home/user/.tor-runtime/work2")
	require.NotEqual(t, a, b)
}
