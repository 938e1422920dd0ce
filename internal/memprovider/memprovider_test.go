package memprovider

import (
	"errors"
	"testing"

	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/werr"
	"github.com/stretchr/testify/require"
)

func newRegistry(t *testing.T, crate capability.CrateId, reserved uint64) *capability.Registry {
	t.Helper()
	r := capability.NewRegistry()
	require.NoError(t, r.Configure(crate, reserved))
	return r
}

func TestStaticArenaReadWriteBounds(t *testing.T) {
	r := newRegistry(t, capability.CrateMemory, 64)
	a, err := NewStaticArena(r, capability.CrateMemory, 64)
	require.NoError(t, err)
	require.Equal(t, KindStaticArena, a.Kind())

	require.NoError(t, a.Write(0, []byte("hello")))
	got, err := a.Read(0, 5)
	require.NoError(t, err)
	require.Equal(t, "hello", string(got))

	_, err = a.Read(60, 10)
	require.True(t, errors.Is(err, werr.ErrOutOfBounds))
}

func TestStaticArenaGrowUnsupported(t *testing.T) {
	r := newRegistry(t, capability.CrateMemory, 64)
	a, err := NewStaticArena(r, capability.CrateMemory, 64)
	require.NoError(t, err)
	require.True(t, errors.Is(a.Grow(128), werr.ErrGrowUnsupported))
}

func TestStaticArenaZeroFilled(t *testing.T) {
	r := newRegistry(t, capability.CrateMemory, 16)
	a, err := NewStaticArena(r, capability.CrateMemory, 16)
	require.NoError(t, err)
	got, err := a.Read(0, 16)
	require.NoError(t, err)
	for _, b := range got {
		require.Equal(t, byte(0), b)
	}
}

func TestHeapProviderGrowPreservesDataAndAccounting(t *testing.T) {
	r := newRegistry(t, capability.CrateMemory, 256)
	h, err := NewHeapProvider(r, capability.CrateMemory, 32)
	require.NoError(t, err)
	require.NoError(t, h.Write(0, []byte("abc")))

	require.NoError(t, h.Grow(64))
	require.Equal(t, uint64(64), h.Size())
	got, err := h.Read(0, 3)
	require.NoError(t, err)
	require.Equal(t, "abc", string(got))
	require.Equal(t, uint64(64), r.Snapshot(capability.CrateMemory).InUse)

	h.Close(r)
	require.Equal(t, uint64(0), r.Snapshot(capability.CrateMemory).InUse)
}

func TestHeapProviderGrowRespectsBudget(t *testing.T) {
	r := newRegistry(t, capability.CrateMemory, 40)
	h, err := NewHeapProvider(r, capability.CrateMemory, 32)
	require.NoError(t, err)

	err = h.Grow(128)
	require.True(t, errors.Is(err, werr.ErrBudgetExceeded))
	require.Equal(t, uint64(32), h.Size())
}

func TestPlatformProviderCanary(t *testing.T) {
	r := newRegistry(t, capability.CrateMemory, 64)
	p, err := NewPlatformProvider(r, capability.CrateMemory, 32)
	require.NoError(t, err)
	require.Equal(t, uint64(32), p.Size())
	require.True(t, p.CanaryIntact())

	require.NoError(t, p.Write(0, []byte("data")))
	require.True(t, p.CanaryIntact())

	_, err = p.Read(40, 4)
	require.True(t, errors.Is(err, werr.ErrOutOfBounds))

	require.True(t, errors.Is(p.Grow(64), werr.ErrGrowUnsupported))
}
