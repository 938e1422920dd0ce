package engine

import (
	"github.com/avrabe/wrt/internal/boundedcollection"
	"github.com/avrabe/wrt/internal/checkpoint"
	"github.com/avrabe/wrt/internal/memprovider"
	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/safeslice"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
)

// Capture builds a checkpoint.State from this engine's current
// operand/frame stacks and fuel counter, plus inst's globals,
// memories and tables -- the engine-side half of spec.md §6's
// checkpoint contract, whose wire codec lives entirely in
// internal/checkpoint so this package never has to know the byte
// layout. inst must be the instance the engine is currently (or was
// last) running against.
func (e *Engine) Capture(inst *moduleimage.Instance) (checkpoint.State, error) {
	var s checkpoint.State
	s.Fuel = e.governor.Remaining()

	s.Globals = make([]moduleimage.Value, len(inst.Globals))
	for i, g := range inst.Globals {
		s.Globals[i] = g.Value
	}

	s.Memories = make([]checkpoint.MemoryState, len(inst.Memories))
	for i, mem := range inst.Memories {
		size := mem.Size()
		var data []byte
		if size > 0 {
			raw, err := e.readVerified(mem.Provider(), uint64(size))
			if err != nil {
				return checkpoint.State{}, err
			}
			data = append([]byte(nil), raw...)
		}
		s.Memories[i] = checkpoint.MemoryState{Pages: mem.Pages(), Data: data}
	}

	s.Tables = make([]checkpoint.TableState, len(inst.Tables))
	for i, t := range inst.Tables {
		s.Tables[i] = checkpoint.TableState{
			ElemType: t.ElemType,
			Elements: append([]moduleimage.Value{}, t.Elements...),
		}
	}

	operand, err := e.operand.PeekN(e.operand.Len())
	if err != nil {
		return checkpoint.State{}, err
	}
	s.Operand = append([]moduleimage.Value{}, operand...)

	frames, err := e.frames.PeekN(e.frames.Len())
	if err != nil {
		return checkpoint.State{}, err
	}
	s.Frames = make([]checkpoint.FrameState, len(frames))
	for i, f := range frames {
		locals := make([]moduleimage.Value, f.Locals.Len())
		for j := range locals {
			v, gerr := f.Locals.Get(j)
			if gerr != nil {
				return checkpoint.State{}, gerr
			}
			locals[j] = v
		}
		labels, lerr := f.Labels.PeekN(f.Labels.Len())
		if lerr != nil {
			return checkpoint.State{}, lerr
		}
		s.Frames[i] = checkpoint.FrameState{
			FuncIndex: uint32(f.FuncIndex),
			PC:        f.PC,
			ValueBase: uint32(f.OperandFloor),
			Locals:    locals,
			Labels:    append([]moduleimage.Label{}, labels...),
		}
	}

	return s, nil
}

// readVerified reads all size bytes of provider through a
// safeslice.SafeSlice view whenever this engine's verification level
// is anything but Off, routing the snapshot read through the same
// bounds-check-plus-checksum path spec.md §4.E gives any other
// memory-crossing read, rather than a raw provider.Read. At KindOff
// this is exactly the prior direct read, with no checksum overhead.
func (e *Engine) readVerified(provider memprovider.Provider, size uint64) ([]byte, error) {
	if e.level.Kind == verify.KindOff {
		return provider.Read(0, size)
	}
	view, err := safeslice.New(provider, 0, size, e.level, e.harness)
	if err != nil {
		return nil, err
	}
	return view.Read(0)
}

// Restore overwrites inst's globals/memories/tables and this engine's
// own operand/frame stacks and fuel counter from a previously captured
// State, then leaves the engine Running (or Finished, if the captured
// frame stack was already empty) so a subsequent Resume continues
// dispatch from exactly the restored top frame's PC. Restore requires
// an engine of at least the captured stacks' capacity; it never grows
// a BoundedStack beyond the capacity this Engine was constructed with.
func (e *Engine) Restore(inst *moduleimage.Instance, s checkpoint.State) error {
	if len(s.Globals) != len(inst.Globals) ||
		len(s.Memories) != len(inst.Memories) ||
		len(s.Tables) != len(inst.Tables) {
		return werr.ErrMalformedModule
	}

	for i, v := range s.Globals {
		inst.Globals[i].Value = v
	}

	for i, ms := range s.Memories {
		mem := inst.Memories[i]
		if mem.Pages() < ms.Pages {
			if _, ok := mem.Grow(ms.Pages - mem.Pages()); !ok {
				return werr.ErrOutOfBounds
			}
		}
		if len(ms.Data) > 0 {
			if err := mem.Write(0, ms.Data); err != nil {
				return err
			}
		}
	}

	for i, ts := range s.Tables {
		inst.Tables[i].ElemType = ts.ElemType
		inst.Tables[i].Elements = append([]moduleimage.Value(nil), ts.Elements...)
	}

	if len(s.Operand) > e.operand.Cap() {
		return werr.ErrCapacityExceeded
	}
	e.operand = boundedcollection.NewBoundedStack[moduleimage.Value](e.operand.Cap())
	for _, v := range s.Operand {
		if err := e.operand.Push(v); err != nil {
			return err
		}
	}

	if len(s.Frames) > e.frames.Cap() {
		return werr.ErrCapacityExceeded
	}
	e.frames = boundedcollection.NewBoundedStack[*moduleimage.Frame](e.frames.Cap())
	for _, fs := range s.Frames {
		fn, ok := inst.ResolveFunc(int(fs.FuncIndex))
		if !ok {
			return werr.ErrIndexOutOfRange
		}
		frame := &moduleimage.Frame{
			InstanceRef:  inst,
			FuncIndex:    int(fs.FuncIndex),
			Func:         fn,
			PC:           fs.PC,
			Locals:       boundedcollection.NewBoundedVec[moduleimage.Value](len(fs.Locals)),
			Labels:       boundedcollection.NewBoundedStack[moduleimage.Label](64),
			OperandFloor: int(fs.ValueBase),
		}
		for _, v := range fs.Locals {
			if err := frame.Locals.Push(v); err != nil {
				return err
			}
		}
		for _, l := range fs.Labels {
			if err := frame.Labels.Push(l); err != nil {
				return err
			}
		}
		if err := e.frames.Push(frame); err != nil {
			return err
		}
	}

	if remaining := e.governor.Remaining(); remaining > 0 {
		_ = e.governor.Consume(remaining)
	}
	e.governor.Refuel(s.Fuel)

	e.trap = nil
	e.result = nil
	if e.frames.Len() == 0 {
		e.state = StateFinished
	} else {
		e.state = StateRunning
	}
	return nil
}
