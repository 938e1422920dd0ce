package engine

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/linearmemory"
	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
)

func newEngine(fuel uint64) *Engine {
	return New(Config{OperandStackCapacity: 32, FrameStackCapacity: 8, InitialFuel: fuel})
}

func constOp(v uint32, pc uint32) moduleimage.Op {
	return moduleimage.Op{Kind: moduleimage.OpKindConst, B1: api.ValueTypeI32, Us: []uint64{uint64(v)}, PC: pc}
}

func TestInvokeAddFunctionFallsThroughToReturn(t *testing.T) {
	fn := &moduleimage.FunctionCode{
		Name:        "add",
		ResultTypes: []api.ValueType{api.ValueTypeI32},
		Body: []moduleimage.Op{
			constOp(2, 0),
			constOp(3, 1),
			{Kind: moduleimage.OpKindArithmetic, B1: arithAdd, B2: 4, PC: 2},
		},
	}
	inst := &moduleimage.Instance{Functions: []moduleimage.FunctionCode{*fn}}

	e := newEngine(100)
	require.NoError(t, e.Invoke(inst, fn, nil))
	require.Equal(t, StateFinished, e.State())
	require.Equal(t, []moduleimage.Value{moduleimage.I32(5)}, e.Result())
}

func TestInvokeHostFunctionReturnsResults(t *testing.T) {
	fn := &moduleimage.FunctionCode{
		Name: "double",
		HostFn: &moduleimage.HostFunction{
			Name:         "double",
			ConsumesFuel: true,
			Call: func(inst *moduleimage.Instance, args []moduleimage.Value) ([]moduleimage.Value, error) {
				return []moduleimage.Value{moduleimage.I32(uint32(args[0].Lo) * 2)}, nil
			},
		},
	}
	inst := &moduleimage.Instance{Functions: []moduleimage.FunctionCode{*fn}}

	e := newEngine(10)
	require.NoError(t, e.Invoke(inst, fn, []moduleimage.Value{moduleimage.I32(21)}))
	require.Equal(t, StateFinished, e.State())
	require.Equal(t, uint64(42), e.Result()[0].Lo)
	require.Equal(t, uint64(9), e.Remaining())
}

func TestUnreachableTraps(t *testing.T) {
	fn := &moduleimage.FunctionCode{
		Name: "boom",
		Body: []moduleimage.Op{{Kind: moduleimage.OpKindUnreachable, PC: 0}},
	}
	inst := &moduleimage.Instance{Functions: []moduleimage.FunctionCode{*fn}}

	e := newEngine(10)
	err := e.Invoke(inst, fn, nil)
	require.Error(t, err)
	require.Equal(t, StateTrapped, e.State())
	require.Equal(t, werr.TrapUnreachable, e.Trap().Kind)
}

func TestDivByZeroTraps(t *testing.T) {
	fn := &moduleimage.FunctionCode{
		Name: "div0",
		Body: []moduleimage.Op{
			constOp(1, 0),
			constOp(0, 1),
			{Kind: moduleimage.OpKindArithmetic, B1: arithDivS, B2: 4, PC: 2},
		},
	}
	inst := &moduleimage.Instance{Functions: []moduleimage.FunctionCode{*fn}}

	e := newEngine(10)
	err := e.Invoke(inst, fn, nil)
	require.Error(t, err)
	require.Equal(t, StateTrapped, e.State())
	require.Equal(t, werr.TrapDivByZero, e.Trap().Kind)
}

func TestFuelExhaustionPausesThenResumesAfterRefuel(t *testing.T) {
	fn := &moduleimage.FunctionCode{
		Name:        "two_consts",
		ResultTypes: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
		Body: []moduleimage.Op{
			constOp(7, 0),
			constOp(9, 1),
		},
	}
	inst := &moduleimage.Instance{Functions: []moduleimage.FunctionCode{*fn}}

	e := newEngine(1)
	err := e.Invoke(inst, fn, nil)
	require.ErrorIs(t, err, werr.ErrFuelExhausted)
	require.Equal(t, StatePaused, e.State())
	require.Equal(t, uint64(0), e.Remaining())

	e.Refuel(5)
	require.Equal(t, StateRunning, e.State())
	require.NoError(t, e.Resume())
	require.Equal(t, StateFinished, e.State())
	require.Equal(t, []moduleimage.Value{moduleimage.I32(7), moduleimage.I32(9)}, e.Result())
}

func TestCallInvokesCalleeAndReturnsItsResult(t *testing.T) {
	callee := moduleimage.FunctionCode{
		Name:        "answer",
		ResultTypes: []api.ValueType{api.ValueTypeI32},
		Body:        []moduleimage.Op{constOp(42, 0)},
	}
	caller := moduleimage.FunctionCode{
		Name:        "caller",
		ResultTypes: []api.ValueType{api.ValueTypeI32},
		Body: []moduleimage.Op{
			{Kind: moduleimage.OpKindCall, Us: []uint64{1}, PC: 0},
		},
	}
	inst := &moduleimage.Instance{Functions: []moduleimage.FunctionCode{caller, callee}}

	e := newEngine(100)
	require.NoError(t, e.Invoke(inst, &inst.Functions[0], nil))
	require.Equal(t, StateFinished, e.State())
	require.Equal(t, []moduleimage.Value{moduleimage.I32(42)}, e.Result())
}

func TestDivSOverflowTraps(t *testing.T) {
	fn := &moduleimage.FunctionCode{
		Name: "overflow_div",
		Body: []moduleimage.Op{
			{Kind: moduleimage.OpKindConst, B1: api.ValueTypeI32, Us: []uint64{uint64(uint32(math.MinInt32))}, PC: 0},
			{Kind: moduleimage.OpKindConst, B1: api.ValueTypeI32, Us: []uint64{uint64(uint32(int32(-1)))}, PC: 1},
			{Kind: moduleimage.OpKindArithmetic, B1: arithDivS, B2: 4, PC: 2},
		},
	}
	inst := &moduleimage.Instance{Functions: []moduleimage.FunctionCode{*fn}}

	e := newEngine(10)
	err := e.Invoke(inst, fn, nil)
	require.Error(t, err)
	require.Equal(t, StateTrapped, e.State())
	require.Equal(t, werr.TrapIntegerOverflow, e.Trap().Kind)
	require.Equal(t, 2, e.operand.Len())
}

// TestMemoryGrowRespectsCapabilityBudget exercises memory.grow against a
// registry budget narrower than the module's declared max: growth that
// fits the budget succeeds per Wasm semantics (previous size returned),
// growth that would exceed it fails silently (-1), leaving the memory at
// its last successful size.
func TestMemoryGrowRespectsCapabilityBudget(t *testing.T) {
	reg := capability.NewRegistry()
	require.NoError(t, reg.Configure(capability.CrateMemory, 5*uint64(linearmemory.PageSize)))

	img := &moduleimage.ModuleImage{
		Memories: []moduleimage.MemorySpec{{Min: 1, Max: 10}},
		Funcs: []moduleimage.FunctionCode{{
			ResultTypes: []api.ValueType{api.ValueTypeI32, api.ValueTypeI32},
			Body: []moduleimage.Op{
				constOp(4, 0),
				{Kind: moduleimage.OpKindMemoryGrow, B1: 0, PC: 1},
				constOp(1, 2),
				{Kind: moduleimage.OpKindMemoryGrow, B1: 0, PC: 3},
			},
		}},
		StartFunc: -1,
	}
	inst, err := moduleimage.Instantiate(reg, img, moduleimage.NewLinker(), true, verify.Off)
	require.NoError(t, err)

	e := newEngine(100)
	require.NoError(t, e.Invoke(inst, &inst.Functions[0], nil))
	require.Equal(t, StateFinished, e.State())
	require.Equal(t, []moduleimage.Value{moduleimage.I32(1), moduleimage.I32(0xFFFFFFFF)}, e.Result())
	require.Equal(t, uint32(5), inst.Memories[0].Pages())
}

// TestFuelPauseResumePreservesGlobalAcrossLoopIterations drives a real
// Br/BrIf loop (structured control flow is assumed pre-lowered to flat
// branches before reaching this engine, so OpKindLoop/Block never
// appear) that increments a global until it reaches 4, pausing
// mid-iteration on fuel exhaustion and resuming to completion once
// refueled.
func TestFuelPauseResumePreservesGlobalAcrossLoopIterations(t *testing.T) {
	body := []moduleimage.Op{
		{Kind: moduleimage.OpKindGlobalGet, Us: []uint64{0}, PC: 0},
		constOp(1, 1),
		{Kind: moduleimage.OpKindArithmetic, B1: arithAdd, B2: 4, PC: 2},
		{Kind: moduleimage.OpKindGlobalSet, Us: []uint64{0}, PC: 3},
		{Kind: moduleimage.OpKindGlobalGet, Us: []uint64{0}, PC: 4},
		constOp(4, 5),
		{Kind: moduleimage.OpKindCompare, B1: cmpLtS, B2: 4, PC: 6},
		{Kind: moduleimage.OpKindBrIf, Us: []uint64{0, 8}, PC: 7},
	}
	fn := &moduleimage.FunctionCode{Name: "count_to_four", Body: body}
	inst := &moduleimage.Instance{
		Functions: []moduleimage.FunctionCode{*fn},
		Globals:   []*moduleimage.Global{{Type: api.ValueTypeI32, Mutable: true, Value: moduleimage.I32(0)}},
	}

	e := newEngine(17)
	err := e.Invoke(inst, fn, nil)
	require.ErrorIs(t, err, werr.ErrFuelExhausted)
	require.Equal(t, StatePaused, e.State())
	g, gerr := inst.Globals[0].Read(0)
	require.NoError(t, gerr)
	require.Equal(t, moduleimage.I32(2), g)

	e.Refuel(100)
	require.NoError(t, e.Resume())
	require.Equal(t, StateFinished, e.State())
	g, gerr = inst.Globals[0].Read(0)
	require.NoError(t, gerr)
	require.Equal(t, moduleimage.I32(4), g)
	require.Equal(t, uint64(85), e.Remaining())
}

// TestCallIndirectSignatureMismatchTrapsWithNoEffect exercises §4.H.4's
// indirect-call signature check: a table slot pointing at a function
// whose actual signature disagrees with the call site's declared type
// traps IndirectCallTypeMismatch before any argument is popped, leaving
// the operand stack exactly where it stood after consuming the table
// index operand.
func TestCallIndirectSignatureMismatchTrapsWithNoEffect(t *testing.T) {
	callee := moduleimage.FunctionCode{Name: "nullary"}
	caller := moduleimage.FunctionCode{
		Name: "caller",
		Body: []moduleimage.Op{
			constOp(0, 0),
			{Kind: moduleimage.OpKindCallIndirect, Us: []uint64{0, 0}, PC: 1},
		},
	}
	img := &moduleimage.ModuleImage{
		Types: []moduleimage.FuncType{{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
	}
	inst := &moduleimage.Instance{
		Image:     img,
		Functions: []moduleimage.FunctionCode{caller, callee},
		Tables:    []*moduleimage.Table{{ElemType: api.ValueTypeFuncref, Elements: []moduleimage.Value{moduleimage.FuncRef(1)}}},
	}

	e := newEngine(100)
	err := e.Invoke(inst, &inst.Functions[0], nil)
	require.Error(t, err)
	require.Equal(t, StateTrapped, e.State())
	require.Equal(t, werr.TrapIndirectCallTypeMismatch, e.Trap().Kind)
	require.Equal(t, 0, e.operand.Len())
}

// TestIntegrityFailureOnGlobalTrapsAndPoisonsEngine exercises §4.I's
// integrity check end to end: with verification set to Full, a global's
// backing bytes tampered directly (bypassing Set) are caught on the next
// global.get, which traps IntegrityFailure -- and since trapNow always
// leaves the engine in StateTrapped, Invoke's StateReady guard then
// refuses every further call on this engine, matching the "poisoned"
// behavior without any separate poisoning flag.
func TestIntegrityFailureOnGlobalTrapsAndPoisonsEngine(t *testing.T) {
	reg := capability.NewRegistry()
	require.NoError(t, reg.Configure(capability.CrateMemory, 4*uint64(linearmemory.PageSize)))

	img := &moduleimage.ModuleImage{
		Globals: []moduleimage.GlobalSpec{{Type: api.ValueTypeI32, Mutable: true, Init: moduleimage.I32(7)}},
		Funcs: []moduleimage.FunctionCode{{
			Name:        "read_global",
			ResultTypes: []api.ValueType{api.ValueTypeI32},
			Body:        []moduleimage.Op{{Kind: moduleimage.OpKindGlobalGet, Us: []uint64{0}, PC: 0}},
		}},
		StartFunc: -1,
	}
	inst, err := moduleimage.Instantiate(reg, img, moduleimage.NewLinker(), true, verify.Full)
	require.NoError(t, err)

	raw, err := inst.Globals[0].Provider().Read(0, 16)
	require.NoError(t, err)
	tampered := append([]byte(nil), raw...)
	tampered[0] ^= 0xFF
	require.NoError(t, inst.Globals[0].Provider().Write(0, tampered))

	e := New(Config{OperandStackCapacity: 32, FrameStackCapacity: 8, InitialFuel: 100, Verification: verify.Full})
	err = e.Invoke(inst, &inst.Functions[0], nil)
	require.Error(t, err)
	require.Equal(t, StateTrapped, e.State())
	require.Equal(t, werr.TrapIntegrityFailure, e.Trap().Kind)

	err = e.Invoke(inst, &inst.Functions[0], nil)
	require.ErrorIs(t, err, werr.ErrMalformedModule)
	require.Equal(t, StateTrapped, e.State())
}

func TestCompareEqPushesBooleanResult(t *testing.T) {
	fn := &moduleimage.FunctionCode{
		Name:        "eq",
		ResultTypes: []api.ValueType{api.ValueTypeI32},
		Body: []moduleimage.Op{
			constOp(4, 0),
			constOp(4, 1),
			{Kind: moduleimage.OpKindCompare, B1: cmpEq, B2: 4, PC: 2},
		},
	}
	inst := &moduleimage.Instance{Functions: []moduleimage.FunctionCode{*fn}}

	e := newEngine(100)
	require.NoError(t, e.Invoke(inst, fn, nil))
	require.Equal(t, uint64(1), e.Result()[0].Lo)
}
