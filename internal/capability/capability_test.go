package capability

import (
	"errors"
	"testing"

	"github.com/avrabe/wrt/internal/werr"
	"github.com/stretchr/testify/require"
)

func TestConfigureOnce(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Configure(CrateMemory, 1024))
	err := r.Configure(CrateMemory, 2048)
	require.True(t, errors.Is(err, werr.ErrBudgetConfigured))
}

func TestAcquireReleaseAccounting(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Configure(CrateMemory, 100))

	tok, err := r.Acquire(CrateMemory, 60)
	require.NoError(t, err)
	require.Equal(t, uint64(60), r.Snapshot(CrateMemory).InUse)

	_, err = r.Acquire(CrateMemory, 50)
	require.True(t, errors.Is(err, werr.ErrBudgetExceeded))

	r.Release(tok)
	require.Equal(t, uint64(0), r.Snapshot(CrateMemory).InUse)
	require.Equal(t, uint64(60), r.Snapshot(CrateMemory).Peak)

	// idempotent release
	r.Release(tok)
	require.Equal(t, uint64(0), r.Snapshot(CrateMemory).InUse)
}

func TestSplitPreservesTotal(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Configure(CrateEngine, 100))
	tok, err := r.Acquire(CrateEngine, 100)
	require.NoError(t, err)

	a, b, err := r.Split(tok, 40)
	require.NoError(t, err)
	require.Equal(t, uint64(40), a.Bytes())
	require.Equal(t, uint64(60), b.Bytes())
	require.Equal(t, uint64(100), r.Snapshot(CrateEngine).InUse)

	r.Release(a)
	r.Release(b)
	require.Equal(t, uint64(0), r.Snapshot(CrateEngine).InUse)
}

func TestLeakDetection(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Configure(CrateSafeSlice, 10))
	_, err := r.Acquire(CrateSafeSlice, 5)
	require.NoError(t, err)
	require.Equal(t, []CrateId{CrateSafeSlice}, r.Leaked())
}
