// Package checkpoint implements the persisted execution-state wire
// format of spec.md §6: magic "WRTC", a u16 version, then globals,
// memories, tables, the operand stack, the frame stack and the fuel
// counter, closed with a crc32 trailer.
//
// Grounded on a production interpreter's experimental.Snapshotter/Snapshot pair
// (capture/restore of live execution state, generalized here to a
// flattened, pointer-free State a codec can actually serialize) and
// internal/compilationcache.Cache's Get/Add/Delete key-addressed
// blob-store shape, repurposed from caching compiled code to storing
// checkpoint blobs (see store.go).
package checkpoint

import (
	"bytes"
	"encoding/binary"
	"hash/crc32"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/linearmemory"
	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/u32"
	"github.com/avrabe/wrt/internal/u64"
	"github.com/avrabe/wrt/internal/werr"
)

const (
	magic         = "WRTC"
	wireVersion   = uint16(1)
	trailerLength = 4
)

// MemoryState is one memory's captured page count and raw contents.
type MemoryState struct {
	Pages uint32
	Data  []byte // len(Data) == Pages * linearmemory.PageSize
}

// TableState is one table's captured element type and contents.
type TableState struct {
	ElemType api.ValueType
	Elements []moduleimage.Value
}

// FrameState is one call frame's captured position and locals, the
// flattened, pointer-free counterpart of moduleimage.Frame.
type FrameState struct {
	FuncIndex uint32
	PC        uint32
	ValueBase uint32 // operand-stack height at frame entry (moduleimage.Frame.OperandFloor)
	Locals    []moduleimage.Value
	Labels    []moduleimage.Label
}

// State is one Engine's full captured execution state: the in-memory
// counterpart of the wire format below.
type State struct {
	Globals  []moduleimage.Value
	Memories []MemoryState
	Tables   []TableState
	Operand  []moduleimage.Value
	Frames   []FrameState
	Fuel     uint64
}

func putValue(buf *bytes.Buffer, v moduleimage.Value) {
	buf.WriteByte(v.Type)
	buf.Write(u64.LeBytes(v.Lo))
	buf.Write(u64.LeBytes(v.Hi))
}

func putLabel(buf *bytes.Buffer, l moduleimage.Label) {
	buf.Write(u32.LeBytes(uint32(l.ArityIn)))
	buf.Write(u32.LeBytes(uint32(l.ArityOut)))
	buf.Write(u32.LeBytes(l.ContinuationPC))
	if l.IsLoop {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

// Encode serializes s into the spec.md §6 wire format, crc32 trailer
// included. Encode never fails: every field is already bounded by the
// BoundedVec/BoundedStack capacities the state was captured from.
func Encode(s State) []byte {
	var buf bytes.Buffer
	buf.WriteString(magic)
	var vb [2]byte
	binary.LittleEndian.PutUint16(vb[:], wireVersion)
	buf.Write(vb[:])

	buf.Write(u32.LeBytes(uint32(len(s.Globals))))
	for _, g := range s.Globals {
		putValue(&buf, g)
	}

	buf.Write(u32.LeBytes(uint32(len(s.Memories))))
	for _, m := range s.Memories {
		buf.Write(u32.LeBytes(m.Pages))
		buf.Write(m.Data)
	}

	buf.Write(u32.LeBytes(uint32(len(s.Tables))))
	for _, t := range s.Tables {
		buf.WriteByte(t.ElemType)
		buf.Write(u32.LeBytes(uint32(len(t.Elements))))
		for _, v := range t.Elements {
			putValue(&buf, v)
		}
	}

	buf.Write(u32.LeBytes(uint32(len(s.Operand))))
	for _, v := range s.Operand {
		putValue(&buf, v)
	}

	buf.Write(u32.LeBytes(uint32(len(s.Frames))))
	for _, f := range s.Frames {
		buf.Write(u32.LeBytes(f.FuncIndex))
		buf.Write(u32.LeBytes(f.PC))
		buf.Write(u32.LeBytes(f.ValueBase))
		buf.Write(u32.LeBytes(uint32(len(f.Locals))))
		for _, v := range f.Locals {
			putValue(&buf, v)
		}
		buf.Write(u32.LeBytes(uint32(len(f.Labels))))
		for _, l := range f.Labels {
			putLabel(&buf, l)
		}
	}

	buf.Write(u64.LeBytes(s.Fuel))

	sum := crc32.ChecksumIEEE(buf.Bytes())
	buf.Write(u32.LeBytes(sum))
	return buf.Bytes()
}

// reader is a bounds-checked cursor over an encoded checkpoint body,
// returning werr.ErrMalformedModule on any short read rather than
// panicking on a slice index -- a corrupt or truncated checkpoint file
// is untrusted input, per spec.md §7's Validation category.
type reader struct {
	data []byte
	pos  int
}

func (r *reader) u8() (byte, error) {
	if r.pos+1 > len(r.data) {
		return 0, werr.ErrMalformedModule
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) u16() (uint16, error) {
	if r.pos+2 > len(r.data) {
		return 0, werr.ErrMalformedModule
	}
	v := binary.LittleEndian.Uint16(r.data[r.pos:])
	r.pos += 2
	return v, nil
}

func (r *reader) u32() (uint32, error) {
	if r.pos+4 > len(r.data) {
		return 0, werr.ErrMalformedModule
	}
	v := binary.LittleEndian.Uint32(r.data[r.pos:])
	r.pos += 4
	return v, nil
}

func (r *reader) u64() (uint64, error) {
	if r.pos+8 > len(r.data) {
		return 0, werr.ErrMalformedModule
	}
	v := binary.LittleEndian.Uint64(r.data[r.pos:])
	r.pos += 8
	return v, nil
}

func (r *reader) bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, werr.ErrMalformedModule
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *reader) value() (moduleimage.Value, error) {
	t, err := r.u8()
	if err != nil {
		return moduleimage.Value{}, err
	}
	lo, err := r.u64()
	if err != nil {
		return moduleimage.Value{}, err
	}
	hi, err := r.u64()
	if err != nil {
		return moduleimage.Value{}, err
	}
	return moduleimage.Value{Type: t, Lo: lo, Hi: hi}, nil
}

func (r *reader) label() (moduleimage.Label, error) {
	arityIn, err := r.u32()
	if err != nil {
		return moduleimage.Label{}, err
	}
	arityOut, err := r.u32()
	if err != nil {
		return moduleimage.Label{}, err
	}
	cont, err := r.u32()
	if err != nil {
		return moduleimage.Label{}, err
	}
	isLoop, err := r.u8()
	if err != nil {
		return moduleimage.Label{}, err
	}
	return moduleimage.Label{
		ArityIn:        int(arityIn),
		ArityOut:       int(arityOut),
		ContinuationPC: cont,
		IsLoop:         isLoop != 0,
	}, nil
}

// Decode parses and validates an encoded checkpoint, verifying the
// crc32 trailer before trusting any field -- a checksum mismatch
// returns werr.ErrIntegrityFailure per spec.md §7 ("Integrity failures
// trap immediately... the engine is marked poisoned"), never a partial
// or best-effort State.
func Decode(data []byte) (State, error) {
	if len(data) < len(magic)+2+trailerLength {
		return State{}, werr.ErrMalformedModule
	}
	trailerStart := len(data) - trailerLength
	body := data[:trailerStart]
	want := binary.LittleEndian.Uint32(data[trailerStart:])
	if got := crc32.ChecksumIEEE(body); got != want {
		return State{}, werr.ErrIntegrityFailure
	}

	r := &reader{data: body}
	m, err := r.bytes(len(magic))
	if err != nil {
		return State{}, err
	}
	if string(m) != magic {
		return State{}, werr.ErrMalformedModule
	}
	ver, err := r.u16()
	if err != nil {
		return State{}, err
	}
	if ver != wireVersion {
		return State{}, werr.ErrMalformedModule
	}

	var s State

	nGlobals, err := r.u32()
	if err != nil {
		return State{}, err
	}
	s.Globals = make([]moduleimage.Value, nGlobals)
	for i := range s.Globals {
		if s.Globals[i], err = r.value(); err != nil {
			return State{}, err
		}
	}

	nMemories, err := r.u32()
	if err != nil {
		return State{}, err
	}
	s.Memories = make([]MemoryState, nMemories)
	for i := range s.Memories {
		pages, err := r.u32()
		if err != nil {
			return State{}, err
		}
		raw, err := r.bytes(int(pages) * linearmemory.PageSize)
		if err != nil {
			return State{}, err
		}
		s.Memories[i] = MemoryState{Pages: pages, Data: append([]byte(nil), raw...)}
	}

	nTables, err := r.u32()
	if err != nil {
		return State{}, err
	}
	s.Tables = make([]TableState, nTables)
	for i := range s.Tables {
		elemType, err := r.u8()
		if err != nil {
			return State{}, err
		}
		nElems, err := r.u32()
		if err != nil {
			return State{}, err
		}
		elems := make([]moduleimage.Value, nElems)
		for j := range elems {
			if elems[j], err = r.value(); err != nil {
				return State{}, err
			}
		}
		s.Tables[i] = TableState{ElemType: elemType, Elements: elems}
	}

	nOperand, err := r.u32()
	if err != nil {
		return State{}, err
	}
	s.Operand = make([]moduleimage.Value, nOperand)
	for i := range s.Operand {
		if s.Operand[i], err = r.value(); err != nil {
			return State{}, err
		}
	}

	nFrames, err := r.u32()
	if err != nil {
		return State{}, err
	}
	s.Frames = make([]FrameState, nFrames)
	for i := range s.Frames {
		funcIndex, err := r.u32()
		if err != nil {
			return State{}, err
		}
		pc, err := r.u32()
		if err != nil {
			return State{}, err
		}
		valueBase, err := r.u32()
		if err != nil {
			return State{}, err
		}
		nLocals, err := r.u32()
		if err != nil {
			return State{}, err
		}
		locals := make([]moduleimage.Value, nLocals)
		for j := range locals {
			if locals[j], err = r.value(); err != nil {
				return State{}, err
			}
		}
		nLabels, err := r.u32()
		if err != nil {
			return State{}, err
		}
		labels := make([]moduleimage.Label, nLabels)
		for j := range labels {
			if labels[j], err = r.label(); err != nil {
				return State{}, err
			}
		}
		s.Frames[i] = FrameState{
			FuncIndex: funcIndex,
			PC:        pc,
			ValueBase: valueBase,
			Locals:    locals,
			Labels:    labels,
		}
	}

	s.Fuel, err = r.u64()
	if err != nil {
		return State{}, err
	}

	return s, nil
}
