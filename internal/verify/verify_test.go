package verify

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOffNeverVerifies(t *testing.T) {
	h := NewHarness()
	d := h.Decide(Off, 42, false)
	require.False(t, d.Verify)
	require.False(t, d.Redundant)
}

func TestBasicAndFullAlwaysVerify(t *testing.T) {
	h := NewHarness()
	require.True(t, h.Decide(Basic, 1, false).Verify)
	require.True(t, h.Decide(Full, 1, false).Verify)
}

func TestRedundantSetsBothFlags(t *testing.T) {
	h := NewHarness()
	d := h.Decide(Redundant, 1, false)
	require.True(t, d.Verify)
	require.True(t, d.Redundant)
}

func TestSamplingIsDeterministicPerPC(t *testing.T) {
	h := NewHarness()
	level := Sampling(8)
	first := h.Decide(level, 1234, false)
	second := h.Decide(level, 1234, false)
	require.Equal(t, first, second)
}

func TestSamplingZeroFallsBackToOne(t *testing.T) {
	require.Equal(t, uint32(1), Sampling(0).N)
}

func TestImportantOpUpgradesEffectiveLevel(t *testing.T) {
	h := NewHarness()
	// Off would normally never verify, but an important op upgrades to
	// the harness's importantLevel (Full by default).
	d := h.Decide(Off, 1, true)
	require.True(t, d.Verify)
}

func TestSetImportantLevelChangesUpgradeTarget(t *testing.T) {
	h := NewHarness()
	h.SetImportantLevel(Off)
	d := h.Decide(Off, 1, true)
	require.False(t, d.Verify)
}
