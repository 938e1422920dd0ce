package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/checkpoint"
	"github.com/avrabe/wrt/internal/linearmemory"
	"github.com/avrabe/wrt/internal/memprovider"
	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
)

func newTestMemory(t *testing.T) *linearmemory.Memory {
	t.Helper()
	r := capability.NewRegistry()
	require.NoError(t, r.Configure(capability.CrateMemory, linearmemory.PageSize))
	p, err := memprovider.NewHeapProvider(r, capability.CrateMemory, linearmemory.PageSize)
	require.NoError(t, err)
	return linearmemory.New(p, 1, 1)
}

func threeOpFn() *moduleimage.FunctionCode {
	return &moduleimage.FunctionCode{
		Name:        "three",
		ResultTypes: []api.ValueType{api.ValueTypeI32},
		Body: []moduleimage.Op{
			constOp(2, 0),
			constOp(3, 1),
			{Kind: moduleimage.OpKindArithmetic, B1: arithAdd, B2: 4, PC: 2},
		},
	}
}

func TestCaptureRestoreRoundTripMidExecution(t *testing.T) {
	fn := threeOpFn()
	mem := newTestMemory(t)
	require.NoError(t, mem.Write(0, []byte{0xDE, 0xAD}))

	inst := &moduleimage.Instance{
		Functions: []moduleimage.FunctionCode{*fn},
		Memories:  []*linearmemory.Memory{mem},
		Globals:   []*moduleimage.Global{{Type: api.ValueTypeI32, Mutable: true, Value: moduleimage.I32(5)}},
		Tables:    []*moduleimage.Table{{ElemType: api.ValueTypeFuncref, Elements: []moduleimage.Value{moduleimage.FuncRef(0)}}},
	}

	// InitialFuel:2 lets exactly the two const ops dispatch, then pauses
	// before the add -- leaving a live frame at PC==2 to capture.
	e := New(Config{OperandStackCapacity: 32, FrameStackCapacity: 8, InitialFuel: 2})
	err := e.Invoke(inst, &inst.Functions[0], nil)
	require.ErrorIs(t, err, werr.ErrFuelExhausted)
	require.Equal(t, StatePaused, e.State())

	snap, err := e.Capture(inst)
	require.NoError(t, err)
	require.Equal(t, uint64(0), snap.Fuel)
	require.Equal(t, []moduleimage.Value{moduleimage.I32(2), moduleimage.I32(3)}, snap.Operand)
	require.Len(t, snap.Frames, 1)
	require.Equal(t, uint32(2), snap.Frames[0].PC)

	encoded := checkpoint.Encode(snap)
	decoded, err := checkpoint.Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, snap, decoded)

	restoredMem := newTestMemory(t)
	restoredInst := &moduleimage.Instance{
		Functions: []moduleimage.FunctionCode{*fn},
		Memories:  []*linearmemory.Memory{restoredMem},
		Globals:   []*moduleimage.Global{{Type: api.ValueTypeI32, Mutable: true}},
		Tables:    []*moduleimage.Table{{}},
	}
	restored := New(Config{OperandStackCapacity: 32, FrameStackCapacity: 8})
	require.NoError(t, restored.Restore(restoredInst, decoded))
	require.Equal(t, StateRunning, restored.State())
	require.Equal(t, uint64(0), restored.Remaining())

	restored.Refuel(100)
	require.NoError(t, restored.Resume())
	require.Equal(t, StateFinished, restored.State())
	require.Equal(t, []moduleimage.Value{moduleimage.I32(5)}, restored.Result())

	require.Equal(t, moduleimage.I32(5), restoredInst.Globals[0].Value)
	data, err := restoredInst.Memories[0].Read(0, 2)
	require.NoError(t, err)
	require.Equal(t, []byte{0xDE, 0xAD}, data)
}

func TestCaptureVerifiesMemoryIntegrityWhenEnabled(t *testing.T) {
	fn := threeOpFn()
	mem := newTestMemory(t)
	require.NoError(t, mem.Write(0, []byte{0xDE, 0xAD}))

	inst := &moduleimage.Instance{
		Functions: []moduleimage.FunctionCode{*fn},
		Memories:  []*linearmemory.Memory{mem},
		Globals:   []*moduleimage.Global{{Type: api.ValueTypeI32, Mutable: true, Value: moduleimage.I32(5)}},
		Tables:    []*moduleimage.Table{{ElemType: api.ValueTypeFuncref}},
	}

	e := New(Config{OperandStackCapacity: 32, FrameStackCapacity: 8, InitialFuel: 2, Verification: verify.Full})
	err := e.Invoke(inst, &inst.Functions[0], nil)
	require.ErrorIs(t, err, werr.ErrFuelExhausted)

	snap, err := e.Capture(inst)
	require.NoError(t, err)
	require.Len(t, snap.Memories, 1)
	require.Equal(t, []byte{0xDE, 0xAD}, snap.Memories[0].Data[:2])
}
