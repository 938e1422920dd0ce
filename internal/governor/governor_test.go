package governor

import (
	"errors"
	"testing"

	"github.com/avrabe/wrt/internal/werr"
	"github.com/stretchr/testify/require"
)

type recordingListener struct {
	frameDepth    []int
	operandHeight []int
	fuelExhausted int
}

func (r *recordingListener) OnFrameDepthHighWater(d int)    { r.frameDepth = append(r.frameDepth, d) }
func (r *recordingListener) OnOperandHeightHighWater(h int) { r.operandHeight = append(r.operandHeight, h) }
func (r *recordingListener) OnFuelExhausted()               { r.fuelExhausted++ }

func TestConsumeAndRemaining(t *testing.T) {
	g := New(100, Thresholds{}, nil)
	require.NoError(t, g.Consume(40))
	require.Equal(t, uint64(60), g.Remaining())
}

func TestConsumeExhaustionLeavesStateUnchanged(t *testing.T) {
	l := &recordingListener{}
	g := New(10, Thresholds{}, l)
	err := g.Consume(20)
	require.True(t, errors.Is(err, werr.ErrFuelExhausted))
	require.Equal(t, uint64(10), g.Remaining())
	require.Equal(t, 1, l.fuelExhausted)
}

func TestRefuelAfterExhaustion(t *testing.T) {
	g := New(5, Thresholds{}, nil)
	require.Error(t, g.Consume(10))
	g.Refuel(20)
	require.NoError(t, g.Consume(10))
	require.Equal(t, uint64(15), g.Remaining())
}

func TestFrameDepthHighWaterNotifiesOnEachHit(t *testing.T) {
	l := &recordingListener{}
	g := New(100, Thresholds{FrameDepth: 3}, l)
	g.ObserveFrameDepth(1)
	g.ObserveFrameDepth(3)
	g.ObserveFrameDepth(3)
	require.Equal(t, []int{3, 3}, l.frameDepth)
	require.Equal(t, 3, g.FrameDepthPeak())
}

func TestOperandHeightPeakTracksMax(t *testing.T) {
	g := New(100, Thresholds{}, nil)
	g.ObserveOperandHeight(5)
	g.ObserveOperandHeight(2)
	require.Equal(t, 5, g.OperandHeightPeak())
}

func TestAllocObservedAccumulates(t *testing.T) {
	g := New(100, Thresholds{}, nil)
	g.ObserveAlloc(10)
	g.ObserveAlloc(20)
	require.Equal(t, uint64(30), g.AllocObserved())
}
