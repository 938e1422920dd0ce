// Package engine implements the stackless execution engine of spec.md
// §4.H: a state machine over Ready/Running/Paused/Trapped/Finished,
// driving a tight decoded-opcode dispatch loop whose only state lives
// in heap-free bounded stacks, never the host call stack.
//
// Grounded directly on a production interpreter's
// internal/engine/interpreter/interpreter.go: callFrame/code/function/
// interpreterOp become Frame/FunctionCode/Op (internal/moduleimage);
// the `switch op.kind { ... }` dispatch loop over `frame.f.body` is
// carried over structurally, generalized to run against
// boundedcollection-backed stacks and linearmemory.Memory instead of
// raw `[]uint64`/`*wasm.MemoryInstance`. Every dispatched instruction now
// also consumes fuel (internal/governor), and global reads/writes and
// memory stores consult the verification harness (internal/verify) --
// neither concept exists in a production interpreter,
// which trusts the decoder's compile-time validation completely; fuel and
// verification are this module's core addition over a production interpreter,
// built in a production interpreter's own dispatch idiom.
//
// Where a production interpreter converts a guest-code panic into a Go error at the
// Call boundary via a single deferred recover() (moduleEngine.Call),
// this engine never panics on the guest-execution path: spec.md §7
// bars panicking in the ASIL-D profile, so every one of a production interpreter's
// `panic(wasmruntime.Err...)` call sites becomes a `return e.trapNow(...)`
// here, threaded through the dispatch loop's own return value instead
// of unwinding the host stack.
package engine

import (
	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/boundedcollection"
	"github.com/avrabe/wrt/internal/governor"
	"github.com/avrabe/wrt/internal/intercept"
	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
)

// State is the engine's current position in the §4.H.1 state machine.
type State byte

const (
	StateReady State = iota
	StateRunning
	StatePaused
	StateTrapped
	StateFinished
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StatePaused:
		return "paused"
	case StateTrapped:
		return "trapped"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// PauseReason explains why a Running engine transitioned to Paused.
type PauseReason byte

const (
	PauseReasonNone PauseReason = iota
	PauseReasonFuelExhausted
)

// Trap records the diagnostic snapshot a Trapped engine exposes to the
// host: the trap kind, the PC it occurred at, and the operand-stack
// top at the moment of the trap. The engine rolls back no state on
// trap, per spec.md §4.H.7.
type Trap struct {
	Kind werr.TrapKind
	PC   uint32
	Top  []moduleimage.Value
}

// defaultFuelCost is the flat per-instruction fuel price, §4.H.3(e).
const defaultFuelCost = 1

// Config configures one Engine.
type Config struct {
	OperandStackCapacity int
	FrameStackCapacity   int
	InitialFuel          uint64
	Verification         verify.Level
	Hooks                *intercept.Hooks
	Governor             *governor.Governor
}

// Engine is one stackless Wasm execution context. Not safe for
// concurrent use, matching a production interpreter's callEngine being freshly
// constructed per Call and never shared across goroutines (spec.md §5).
type Engine struct {
	state State
	pause PauseReason
	trap  *Trap
	result []moduleimage.Value

	operand *boundedcollection.BoundedStack[moduleimage.Value]
	frames  *boundedcollection.BoundedStack[*moduleimage.Frame]

	governor *governor.Governor
	harness  *verify.Harness
	level    verify.Level
	hooks    *intercept.Hooks
}

// New constructs a Ready engine.
func New(cfg Config) *Engine {
	gov := cfg.Governor
	if gov == nil {
		gov = governor.New(cfg.InitialFuel, governor.Thresholds{}, nil)
	}
	return &Engine{
		state:    StateReady,
		operand:  boundedcollection.NewBoundedStack[moduleimage.Value](cfg.OperandStackCapacity),
		frames:   boundedcollection.NewBoundedStack[*moduleimage.Frame](cfg.FrameStackCapacity),
		governor: gov,
		harness:  verify.NewHarness(),
		level:    cfg.Verification,
		hooks:    cfg.Hooks,
	}
}

// State reports the engine's current state.
func (e *Engine) State() State { return e.state }

// Trap reports the last trap, valid only when State() == StateTrapped.
func (e *Engine) Trap() *Trap { return e.trap }

// Result reports the call's results, valid only when State() ==
// StateFinished.
func (e *Engine) Result() []moduleimage.Value { return e.result }

// Remaining reports the engine's remaining fuel.
func (e *Engine) Remaining() uint64 { return e.governor.Remaining() }

// Refuel adds fuel and, if the engine was Paused on exhaustion,
// transitions it back to Running; call Resume afterward to continue
// the dispatch loop from where it paused.
func (e *Engine) Refuel(n uint64) {
	e.governor.Refuel(n)
	if e.state == StatePaused && e.pause == PauseReasonFuelExhausted {
		e.state = StateRunning
	}
}

// Resume continues the dispatch loop from the top frame's current PC,
// and then through each caller frame beneath it, used after Refuel
// brings a fuel-paused engine back to Running. The
// instruction that exhausted fuel re-dispatches from scratch: Consume
// is checked before a step ever mutates state, so re-entry is safe.
func (e *Engine) Resume() error {
	if e.state != StateRunning {
		return werr.ErrMalformedModule
	}
	for e.state == StateRunning {
		frame, err := e.frames.Peek()
		if err != nil {
			return err
		}
		if err := e.run(frame.InstanceRef, frame.Func); err != nil {
			return err
		}
	}
	return nil
}

// verifyModify consults the verification harness for a modification-
// eligible instruction (global.set, store) at pc, and, when the harness
// decides this access should be verified, hands it to
// Hooks.Modify so an embedder watching writes gets a real decision to
// act on -- OutcomeReplace substitutes v, OutcomeTrap aborts the
// instruction. important marks the op as one the harness's upgrade
// table should never let Off silently skip (global.set always is;
// store is not, since linearmemory.Memory already bounds-checks every
// store unconditionally regardless of verification level).
func (e *Engine) verifyModify(pc uint32, important bool, v moduleimage.Value) (moduleimage.Value, error) {
	d := e.harness.Decide(e.level, pc, important)
	if !d.Verify {
		return v, nil
	}
	decision := e.hooks.RunModify(nil, pc, v)
	switch decision.Outcome {
	case intercept.OutcomeTrap:
		return v, e.trapNow(decision.Trap, pc)
	case intercept.OutcomeReplace:
		if len(decision.Values) > 0 {
			return decision.Values[0], nil
		}
	}
	return v, nil
}

func (e *Engine) trapNow(kind werr.TrapKind, pc uint32) error {
	top, _ := e.operand.PeekN(min(3, e.operand.Len()))
	e.trap = &Trap{Kind: kind, PC: pc, Top: top}
	e.state = StateTrapped
	return werr.NewTrapError(kind)
}

// Invoke transitions Ready -> Running and executes fn to completion, to
// a trap, or to a fuel-exhaustion pause. args become fn's initial
// locals directly, per §4.H.2's "operand stack holds at least the
// declared parameter count" entry invariant -- restated here as local
// slots rather than a literal stack push/pop, since this frame has no
// caller operand stack to round-trip through.
func (e *Engine) Invoke(inst *moduleimage.Instance, fn *moduleimage.FunctionCode, args []moduleimage.Value) error {
	if e.state != StateReady {
		return werr.ErrMalformedModule
	}
	e.state = StateRunning

	if fn.IsHost() {
		return e.invokeHost(inst, fn, args)
	}

	frame := &moduleimage.Frame{
		InstanceRef:  inst,
		Func:         fn,
		Locals:       boundedcollection.NewBoundedVec[moduleimage.Value](len(fn.ParamTypes) + int(fn.NumLocals)),
		Labels:       boundedcollection.NewBoundedStack[moduleimage.Label](64),
		OperandFloor: e.operand.Len(),
	}
	for _, a := range args {
		if err := frame.Locals.Push(a); err != nil {
			return err
		}
	}
	for i := uint32(0); i < fn.NumLocals; i++ {
		if err := frame.Locals.Push(moduleimage.Value{}); err != nil {
			return err
		}
	}
	if err := e.frames.Push(frame); err != nil {
		return e.trapNow(werr.TrapStackOverflow, frame.PC)
	}
	e.governor.ObserveFrameDepth(e.frames.Len())

	return e.run(inst, fn)
}

func (e *Engine) invokeHost(inst *moduleimage.Instance, fn *moduleimage.FunctionCode, args []moduleimage.Value) error {
	if fn.HostFn.ConsumesFuel {
		if err := e.governor.Consume(defaultFuelCost); err != nil {
			e.state = StatePaused
			e.pause = PauseReasonFuelExhausted
			return err
		}
	}
	results, err := fn.HostFn.Call(inst, args)
	if err != nil {
		e.state = StateTrapped
		return err
	}
	e.result = results
	e.state = StateFinished
	return nil
}

// run drives the dispatch loop for one Wasm-defined function's current
// top frame until it returns, traps, or pauses.
func (e *Engine) run(inst *moduleimage.Instance, fn *moduleimage.FunctionCode) error {
	depth := e.frames.Len()
	for {
		frame, err := e.frames.Peek()
		if err != nil {
			return err
		}
		if int(frame.PC) >= len(fn.Body) {
			return e.returnFromFrame(fn)
		}
		op := fn.Body[frame.PC]

		if err := e.governor.Consume(defaultFuelCost); err != nil {
			e.state = StatePaused
			e.pause = PauseReasonFuelExhausted
			return err
		}

		if err := e.step(inst, fn, frame, op); err != nil {
			return err
		}
		if e.state != StateRunning || e.frames.Len() < depth {
			return nil
		}
	}
}

// step executes exactly one decoded instruction, advancing frame.PC
// (control-flow ops set it explicitly; everything else falls through
// to the trailing increment), mirroring a production interpreter's `switch op.kind`
// body one case at a time.
func (e *Engine) step(inst *moduleimage.Instance, fn *moduleimage.FunctionCode, frame *moduleimage.Frame, op moduleimage.Op) error {
	advance := true
	switch op.Kind {
	case moduleimage.OpKindUnreachable:
		return e.trapNow(werr.TrapUnreachable, op.PC)

	case moduleimage.OpKindNop:
		// no-op

	case moduleimage.OpKindBr:
		frame.PC = uint32(op.Us[0])
		advance = false

	case moduleimage.OpKindBrIf:
		c, err := e.operand.Pop()
		if err != nil {
			return err
		}
		if c.Lo != 0 {
			frame.PC = uint32(op.Us[0])
		} else {
			frame.PC = uint32(op.Us[1])
		}
		advance = false

	case moduleimage.OpKindBrTable:
		v, err := e.operand.Pop()
		if err != nil {
			return err
		}
		idx := v.Lo
		if idx < uint64(len(op.Us)-1) {
			frame.PC = uint32(op.Us[idx+1])
		} else {
			frame.PC = uint32(op.Us[0])
		}
		advance = false

	case moduleimage.OpKindReturn:
		return e.returnFromFrame(fn)

	case moduleimage.OpKindDrop:
		if len(op.Rs) > 0 {
			if err := e.operand.DropRange(op.Rs[0].Start, op.Rs[0].End); err != nil {
				return err
			}
		} else if _, err := e.operand.Pop(); err != nil {
			return err
		}

	case moduleimage.OpKindSelect:
		c, err := e.operand.Pop()
		if err != nil {
			return err
		}
		v2, err := e.operand.Pop()
		if err != nil {
			return err
		}
		v1, err := e.operand.Pop()
		if err != nil {
			return err
		}
		if c.Lo != 0 {
			if err := e.operand.Push(v1); err != nil {
				return err
			}
		} else if err := e.operand.Push(v2); err != nil {
			return err
		}

	case moduleimage.OpKindLocalGet:
		v, err := frame.Locals.Get(int(op.Us[0]))
		if err != nil {
			return e.trapNow(werr.TrapStackOverflow, op.PC)
		}
		if err := e.operand.Push(v); err != nil {
			return err
		}

	case moduleimage.OpKindLocalSet:
		v, err := e.operand.Pop()
		if err != nil {
			return err
		}
		if err := frame.Locals.Set(int(op.Us[0]), v); err != nil {
			return e.trapNow(werr.TrapStackOverflow, op.PC)
		}

	case moduleimage.OpKindLocalTee:
		v, err := e.operand.Peek()
		if err != nil {
			return err
		}
		if err := frame.Locals.Set(int(op.Us[0]), v); err != nil {
			return e.trapNow(werr.TrapStackOverflow, op.PC)
		}

	case moduleimage.OpKindGlobalGet:
		g := frame.InstanceRef.Globals[op.Us[0]]
		v, gerr := g.Read(op.PC)
		if gerr != nil {
			return e.trapNow(werr.TrapIntegrityFailure, op.PC)
		}
		if err := e.operand.Push(v); err != nil {
			return err
		}

	case moduleimage.OpKindGlobalSet:
		v, err := e.operand.Pop()
		if err != nil {
			return err
		}
		v, err = e.verifyModify(op.PC, true, v)
		if err != nil {
			return err
		}
		g := frame.InstanceRef.Globals[op.Us[0]]
		if gerr := g.Set(op.PC, v); gerr != nil {
			return e.trapNow(werr.TrapIntegrityFailure, op.PC)
		}

	case moduleimage.OpKindConst:
		v := moduleimage.Value{Type: op.B1, Lo: op.Us[0]}
		if len(op.Us) > 1 {
			v.Hi = op.Us[1]
		}
		if err := e.operand.Push(v); err != nil {
			return err
		}

	case moduleimage.OpKindMemorySize:
		mem := frame.InstanceRef.Memories[op.B1]
		if err := e.operand.Push(moduleimage.I32(mem.Pages())); err != nil {
			return err
		}

	case moduleimage.OpKindMemoryGrow:
		delta, err := e.operand.Pop()
		if err != nil {
			return err
		}
		mem := frame.InstanceRef.Memories[op.B1]
		prev, ok := mem.Grow(uint32(delta.Lo))
		if !ok {
			if err := e.operand.Push(moduleimage.I32(0xFFFFFFFF)); err != nil {
				return err
			}
		} else if err := e.operand.Push(moduleimage.I32(prev)); err != nil {
			return err
		}

	case moduleimage.OpKindLoad:
		// B1: memory index. B2: operand width in bytes (4 or 8). B3:
		// result is a float (vs. integer) -- only affects the Value.Type
		// tag attached for trap/verify diagnostics, not the bits moved.
		offset, err := e.operand.Pop()
		if err != nil {
			return err
		}
		effective := uint32(offset.Lo) + uint32(op.Us[0])
		mem := frame.InstanceRef.Memories[op.B1]
		var v moduleimage.Value
		if op.B2 == 8 {
			raw, rerr := mem.ReadUint64Le(effective)
			if rerr != nil {
				return e.trapNow(werr.TrapOutOfBoundsMemory, op.PC)
			}
			v = moduleimage.Value{Type: loadResultType(op.B2, op.B3), Lo: raw}
		} else {
			raw, rerr := mem.ReadUint32Le(effective)
			if rerr != nil {
				return e.trapNow(werr.TrapOutOfBoundsMemory, op.PC)
			}
			v = moduleimage.Value{Type: loadResultType(op.B2, op.B3), Lo: uint64(raw)}
		}
		if err := e.operand.Push(v); err != nil {
			return err
		}

	case moduleimage.OpKindStore:
		// B1: memory index. B2: operand width in bytes (4 or 8).
		v, err := e.operand.Pop()
		if err != nil {
			return err
		}
		offset, err := e.operand.Pop()
		if err != nil {
			return err
		}
		v, err = e.verifyModify(op.PC, false, v)
		if err != nil {
			return err
		}
		effective := uint32(offset.Lo) + uint32(op.Us[0])
		mem := frame.InstanceRef.Memories[op.B1]
		var storeErr error
		if op.B2 == 8 {
			storeErr = mem.WriteUint64Le(effective, v.Lo)
		} else {
			storeErr = mem.WriteUint32Le(effective, uint32(v.Lo))
		}
		if storeErr != nil {
			return e.trapNow(werr.TrapOutOfBoundsMemory, op.PC)
		}

	case moduleimage.OpKindCall:
		return e.call(inst, frame, int(op.Us[0]))

	case moduleimage.OpKindCallIndirect:
		tableIdx := int(op.Us[1])
		typeIdx := int(op.Us[0])
		offsetV, err := e.operand.Pop()
		if err != nil {
			return err
		}
		table := frame.InstanceRef.Tables[tableIdx]
		idx := offsetV.Lo
		if idx >= uint64(len(table.Elements)) {
			return e.trapNow(werr.TrapIndirectCallTypeMismatch, op.PC)
		}
		target := table.Elements[idx]
		return e.callIndirect(inst, frame, int(target.Lo), typeIdx)

	case moduleimage.OpKindEqz:
		v, err := e.operand.Pop()
		if err != nil {
			return err
		}
		var r uint32
		if v.Lo == 0 {
			r = 1
		}
		if err := e.operand.Push(moduleimage.I32(r)); err != nil {
			return err
		}

	case moduleimage.OpKindCompare:
		if err := e.binaryCompare(op); err != nil {
			return err
		}

	case moduleimage.OpKindArithmetic:
		if err := e.binaryArithmetic(op); err != nil {
			return err
		}

	case moduleimage.OpKindConversion:
		if err := e.convert(op); err != nil {
			return err
		}

	case moduleimage.OpKindTableGet:
		idx, err := e.operand.Pop()
		if err != nil {
			return err
		}
		table := frame.InstanceRef.Tables[op.Us[0]]
		if idx.Lo >= uint64(len(table.Elements)) {
			return e.trapNow(werr.TrapOutOfBoundsMemory, op.PC)
		}
		if err := e.operand.Push(table.Elements[idx.Lo]); err != nil {
			return err
		}

	case moduleimage.OpKindTableSet:
		v, err := e.operand.Pop()
		if err != nil {
			return err
		}
		idx, err := e.operand.Pop()
		if err != nil {
			return err
		}
		table := frame.InstanceRef.Tables[op.Us[0]]
		if idx.Lo >= uint64(len(table.Elements)) {
			return e.trapNow(werr.TrapOutOfBoundsMemory, op.PC)
		}
		table.Elements[idx.Lo] = v

	default:
		return e.trapNow(werr.TrapUnreachable, op.PC)
	}

	if advance {
		frame.PC++
	}
	e.governor.ObserveOperandHeight(e.operand.Len())
	if int(frame.PC) >= len(fn.Body) && e.state == StateRunning {
		return e.returnFromFrame(fn)
	}
	return nil
}

// callIndirect validates target's signature against the type declared
// at the call_indirect site before delegating to call, per §4.H.4:
// "failing IndirectCallTypeMismatch if signatures disagree." The
// signature check happens before any argument is popped, so a mismatch
// leaves the operand stack (beyond the already-consumed table index)
// untouched.
func (e *Engine) callIndirect(inst *moduleimage.Instance, caller *moduleimage.Frame, funcIndex int, wantType int) error {
	target, ok := inst.ResolveFunc(funcIndex)
	if !ok {
		return e.trapNow(werr.TrapIndirectCallTypeMismatch, caller.PC)
	}
	if wantType < 0 || wantType >= len(inst.Image.Types) || !target.Signature().Equal(inst.Image.Types[wantType]) {
		return e.trapNow(werr.TrapIndirectCallTypeMismatch, caller.PC)
	}
	return e.call(inst, caller, funcIndex)
}

// call resolves and invokes a function by index directly, mirroring
// §4.H.4's call contract. Indirect calls go through callIndirect, which
// checks the target's signature before delegating here.
func (e *Engine) call(inst *moduleimage.Instance, caller *moduleimage.Frame, funcIndex int) error {
	target, ok := inst.ResolveFunc(funcIndex)
	if !ok {
		return e.trapNow(werr.TrapIndirectCallTypeMismatch, caller.PC)
	}
	args := make([]moduleimage.Value, len(target.ParamTypes))
	for i := len(args) - 1; i >= 0; i-- {
		v, err := e.operand.Pop()
		if err != nil {
			return err
		}
		args[i] = v
	}

	if bypass := e.hooks.RunBypass(nil, target, args); bypass.Outcome == intercept.OutcomeBypass {
		for _, v := range bypass.Values {
			if err := e.operand.Push(v); err != nil {
				return err
			}
		}
		caller.PC++
		return nil
	}

	_, decision := e.hooks.RunBeforeCall(nil, target, args)
	switch decision.Outcome {
	case intercept.OutcomeBypass:
		for _, v := range decision.Values {
			if err := e.operand.Push(v); err != nil {
				return err
			}
		}
		caller.PC++
		return nil
	case intercept.OutcomeTrap:
		return e.trapNow(decision.Trap, caller.PC)
	case intercept.OutcomeReplace:
		if len(decision.Values) == len(args) {
			args = decision.Values
		}
	}

	if target.IsHost() {
		if target.HostFn.ConsumesFuel {
			if err := e.governor.Consume(defaultFuelCost); err != nil {
				e.state = StatePaused
				e.pause = PauseReasonFuelExhausted
				return err
			}
		}
		results, err := target.HostFn.Call(inst, args)
		if err != nil {
			return e.trapNow(werr.TrapUnreachable, caller.PC)
		}
		if after := e.hooks.RunAfterCall(nil, target, results); after.Outcome == intercept.OutcomeReplace {
			results = after.Values
		}
		for _, r := range results {
			if err := e.operand.Push(r); err != nil {
				return err
			}
		}
		caller.PC++
		return nil
	}

	calleeFrame := &moduleimage.Frame{
		InstanceRef:  inst,
		FuncIndex:    funcIndex,
		Func:         target,
		Locals:       boundedcollection.NewBoundedVec[moduleimage.Value](len(target.ParamTypes) + int(target.NumLocals)),
		Labels:       boundedcollection.NewBoundedStack[moduleimage.Label](64),
		OperandFloor: e.operand.Len(),
	}
	for _, a := range args {
		_ = calleeFrame.Locals.Push(a)
	}
	for i := uint32(0); i < target.NumLocals; i++ {
		_ = calleeFrame.Locals.Push(moduleimage.Value{})
	}
	if err := e.frames.Push(calleeFrame); err != nil {
		return e.trapNow(werr.TrapStackOverflow, caller.PC)
	}
	e.governor.ObserveFrameDepth(e.frames.Len())
	caller.PC++
	if err := e.run(inst, target); err != nil || e.state != StateRunning {
		return err
	}
	return e.runAfterCallHook(target, caller)
}

// runAfterCallHook consults Hooks.AfterCall once target has returned
// normally, letting a hook replace its result values on the shared
// operand stack before the caller resumes.
func (e *Engine) runAfterCallHook(target *moduleimage.FunctionCode, caller *moduleimage.Frame) error {
	n := len(target.ResultTypes)
	results, err := e.operand.PeekN(min(n, e.operand.Len()))
	if err != nil {
		return err
	}
	after := e.hooks.RunAfterCall(nil, target, results)
	if after.Outcome != intercept.OutcomeReplace {
		return nil
	}
	for range results {
		if _, err := e.operand.Pop(); err != nil {
			return err
		}
	}
	for _, v := range after.Values {
		if err := e.operand.Push(v); err != nil {
			return err
		}
	}
	return nil
}

// returnFromFrame pops the current frame and truncates the shared
// operand stack back down to the height it had on entry
// (Frame.OperandFloor), carrying forward exactly fn's declared result
// values -- the same base-height bookkeeping a production interpreter's call sites
// do by slicing callEngine.stack, generalized here since frames are no
// longer nested Go call-stack frames but explicit BoundedStack entries.
func (e *Engine) returnFromFrame(fn *moduleimage.FunctionCode) error {
	frame, err := e.frames.Pop()
	if err != nil {
		return err
	}
	resultCount := len(fn.ResultTypes)
	above := e.operand.Len() - frame.OperandFloor
	if resultCount > above {
		resultCount = above
	}
	results, err := e.operand.PeekN(resultCount)
	if err != nil {
		return err
	}
	for e.operand.Len() > frame.OperandFloor {
		if _, err := e.operand.Pop(); err != nil {
			return err
		}
	}
	for _, r := range results {
		if err := e.operand.Push(r); err != nil {
			return err
		}
	}
	if e.frames.Len() == 0 {
		e.result = results
		e.state = StateFinished
	}
	return nil
}

// loadResultType picks the Value.Type tag for a load result from its
// decoded width/float flag. api.ValueType is a plain byte alias, so the
// returned constants assign directly into moduleimage.Value.Type.
func loadResultType(width byte, isFloat bool) api.ValueType {
	switch {
	case isFloat && width == 8:
		return api.ValueTypeF64
	case isFloat:
		return api.ValueTypeF32
	case width == 8:
		return api.ValueTypeI64
	default:
		return api.ValueTypeI32
	}
}
