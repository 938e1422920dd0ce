// Package moduleimage implements the module/instance data model of
// spec.md §3/§4.G: the decoder-populated ModuleImage contract, the
// per-instantiation Instance, and the Frame/Value/Op types the engine
// dispatches over.
//
// Since the binary decoder itself is out of scope (spec.md §1), this
// package is the *contract* an external decoder populates; nothing
// here parses Wasm bytes. The shapes are grounded on a production interpreter's
// internal/engine/interpreter/interpreter.go: `code`/`function` (the
// Wasm-defined/host-defined split becomes FunctionCode), `interpreterOp`
// (becomes Op), `callFrame` (becomes Frame), and `moduleEngine.functions
// []*function` (becomes Instance.Functions).
package moduleimage

import (
	"encoding/binary"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/boundedcollection"
	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/linearmemory"
	"github.com/avrabe/wrt/internal/memprovider"
	"github.com/avrabe/wrt/internal/safeslice"
)

// valueSize is the number of bytes budgeted per moduleimage.Value cell
// -- the two uint64 words a V128 needs, the worst case across every
// value type this module carries. Table element storage and global
// cell storage are both accounted against capability.CrateMemory at
// this rate, the same crate linear memory draws from (spec.md §1's
// capability+budget system covers every allocation, not only linear
// memory).
const valueSize = 16

// Value is a tagged Wasm operand. Payload mirrors a production interpreter's choice
// to carry every numeric type as a uint64 on the operand stack
// (interpreter.go's callEngine.stack []uint64); the type tag travels
// alongside because this engine's verification harness and trap
// diagnostics need it at runtime, unlike a production interpreter's pre-validated,
// type-erased dispatch.
type Value struct {
	Type api.ValueType
	Lo   uint64
	Hi   uint64 // second half of a V128; zero for all other types
}

// I32 constructs an i32 Value.
func I32(v uint32) Value { return Value{Type: api.ValueTypeI32, Lo: uint64(v)} }

// I64 constructs an i64 Value.
func I64(v uint64) Value { return Value{Type: api.ValueTypeI64, Lo: v} }

// F32 constructs an f32 Value (IEEE-754 bit pattern in Lo).
func F32(bits uint32) Value { return Value{Type: api.ValueTypeF32, Lo: uint64(bits)} }

// F64 constructs an f64 Value.
func F64(bits uint64) Value { return Value{Type: api.ValueTypeF64, Lo: bits} }

// V128 constructs a 128-bit SIMD Value from its two 64-bit halves.
func V128(lo, hi uint64) Value { return Value{Type: api.ValueTypeV128, Lo: lo, Hi: hi} }

// FuncRef constructs a funcref Value from a function table index.
func FuncRef(index uint32) Value { return Value{Type: api.ValueTypeFuncref, Lo: uint64(index)} }

// OpKind is the closed set of decoded-instruction categories the
// engine's dispatch loop switches on. Reconstructed here rather than
// imported, since a binary-decoder-side operation-kind enum (the source of
// its OperationKind enum) ships no retrievable production source in
// this pack -- only its call shape via interpreter.go survives.
type OpKind byte

const (
	OpKindUnreachable OpKind = iota
	OpKindNop
	OpKindBlock
	OpKindLoop
	OpKindIf
	OpKindElse
	OpKindEnd
	OpKindBr
	OpKindBrIf
	OpKindBrTable
	OpKindReturn
	OpKindCall
	OpKindCallIndirect
	OpKindDrop
	OpKindSelect
	OpKindLocalGet
	OpKindLocalSet
	OpKindLocalTee
	OpKindGlobalGet
	OpKindGlobalSet
	OpKindLoad
	OpKindStore
	OpKindMemorySize
	OpKindMemoryGrow
	OpKindConst
	OpKindEqz
	OpKindCompare
	OpKindArithmetic
	OpKindConversion
	OpKindTableGet
	OpKindTableSet
)

// InclusiveRange is the drop range for br/br_if/return stack unwinds,
// grounded on a decoder-side InclusiveRange type as
// consumed in callEngine.drop.
type InclusiveRange struct {
	Start, End int
}

// Op is one decoded instruction, directly grounded on a production interpreter's
// interpreterOp union: {kind, b1, b2, b3, us, rs}. Most fields are
// opaque outside the engine and only meaningful for specific Kinds,
// exactly as a production interpreter documents for interpreterOp.
type Op struct {
	Kind   OpKind
	B1, B2 byte
	B3     bool
	Us     []uint64
	Rs     []InclusiveRange
	PC     uint32 // this op's own program counter, for trap/verify seeding
}

// HostFunction is a host-defined function body, mirroring a production interpreter's
// code.hostFn (a *reflect.Value) but expressed as a typed Go
// closure since this module does not implement a production interpreter's
// reflection-based host-function binder (out of scope, see DESIGN.md).
type HostFunction struct {
	Name  string
	Call  func(inst *Instance, args []Value) ([]Value, error)
	// ConsumesFuel controls whether invoking this host function draws
	// from the engine's fuel budget like a Wasm-defined call does.
	// The zero value (false) makes a call free; an embedder sets it to
	// true for each host function whose calls should cost fuel.
	ConsumesFuel bool
}

// FunctionCode is one function's compiled body: either Wasm-defined
// (Body populated) or host-defined (HostFn populated), mirroring a production interpreter's
// code/function split.
type FunctionCode struct {
	Name        string
	TypeIndex   int // index into ModuleImage.Types; -1 if not declared there
	ParamTypes  []api.ValueType
	ResultTypes []api.ValueType
	NumLocals   uint32 // additional locals beyond params, zero-initialized on call
	Body        []Op
	HostFn      *HostFunction
}

// IsHost reports whether this function is host-defined.
func (f *FunctionCode) IsHost() bool { return f.HostFn != nil }

// Signature returns f's parameter/result types as a FuncType, for
// comparison against a call_indirect site's declared type.
func (f *FunctionCode) Signature() FuncType {
	return FuncType{Params: f.ParamTypes, Results: f.ResultTypes}
}

// Global is one mutable or immutable global variable slot. Value is a
// cached copy of the cell, read directly by callers that don't need
// verification (checkpoint snapshots, tests constructing a Global by
// hand). provider/view back that same 16-byte cell through a
// memprovider.Provider and a safeslice.SafeSlice, minted by Instantiate
// so Read/Set can detect a write that reached the provider's bytes any
// way other than through Set -- an adversary flipping a byte directly,
// for instance. Both are nil for a Global built outside Instantiate.
type Global struct {
	Type     api.ValueType
	Mutable  bool
	Value    Value
	provider memprovider.Provider
	view     *safeslice.SafeSlice
}

// Provider exposes the backing memprovider.Provider, mirroring
// linearmemory.Memory's own Provider accessor -- nil unless this
// Global was built by Instantiate.
func (g *Global) Provider() memprovider.Provider { return g.provider }

// encodeValue packs v's 128 bits of payload into valueSize bytes,
// little-endian; Type is not encoded since it is static per Global
// (Global.Type) and never round-trips through this wire form.
func encodeValue(v Value) []byte {
	buf := make([]byte, valueSize)
	binary.LittleEndian.PutUint64(buf[0:8], v.Lo)
	binary.LittleEndian.PutUint64(buf[8:16], v.Hi)
	return buf
}

// Read returns the global's current value. When this Global was built
// with a verification-backed view, it first asks the view to read
// (and, per the harness's Decide, verify the checksum of) the
// underlying bytes; a checksum mismatch surfaces as
// werr.ErrIntegrityFailure instead of a stale or tampered Value.
func (g *Global) Read(pc uint32) (Value, error) {
	if g.view == nil {
		return g.Value, nil
	}
	if _, err := g.view.Read(pc); err != nil {
		return Value{}, err
	}
	return g.Value, nil
}

// Set stores v as the global's new value, writing through the backing
// view first (refreshing its checksum) when one is wired in, so a
// legitimate Set is never mistaken for tampering on the next Read.
func (g *Global) Set(pc uint32, v Value) error {
	if g.view != nil {
		if err := g.view.Write(pc, encodeValue(v)); err != nil {
			return err
		}
	}
	g.Value = v
	return nil
}

// Table holds function references (funcref) or host references
// (externref) addressed by index. tok is the capability.Token minted
// for its element storage at instantiation time; nil for a Table built
// outside Instantiate (e.g. a test fixture).
type Table struct {
	ElemType api.ValueType
	Elements []Value
	tok      *capability.Token
}

// ModuleImage is the contract an external decoder populates after
// structural validation (types well-formed, indices in range, bodies
// type-checked under abstract interpretation, per spec.md §4.G).
// This package re-checks only index ranges (Validate); it does not
// check types or type-check bodies.
type ModuleImage struct {
	Name      string
	Types     []FuncType
	Funcs     []FunctionCode
	Memories  []MemorySpec
	Tables    []TableSpec
	Globals   []GlobalSpec
	Imports   []Import
	Exports   []Export
	Elements  []ElementSegment
	Data      []DataSegment
	StartFunc int // -1 if none
}

// FuncType is one entry of the module's type section: a function
// signature addressable by index, consulted by call_indirect to check
// the callee's signature against the one declared at the call site
// (spec.md §4.H.4, IndirectCallTypeMismatch).
type FuncType struct {
	Params  []api.ValueType
	Results []api.ValueType
}

// Equal reports whether ft and other declare the same parameter and
// result types, in order.
func (ft FuncType) Equal(other FuncType) bool {
	return valueTypesEqual(ft.Params, other.Params) && valueTypesEqual(ft.Results, other.Results)
}

func valueTypesEqual(a, b []api.ValueType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ElementSegment initializes a range of one table's elements at
// instantiation time, mirroring the decoder's element-section entries.
type ElementSegment struct {
	TableIndex int
	Offset     uint32
	FuncIndices []int
}

// DataSegment initializes a range of one memory's bytes at
// instantiation time, mirroring the decoder's data-section entries.
type DataSegment struct {
	MemoryIndex int
	Offset      uint32
	Bytes       []byte
}

// MemorySpec is one declared memory's limits, prior to instantiation.
type MemorySpec struct {
	Min, Max uint32 // in pages; Max == 0 means unbounded
}

// TableSpec is one declared table's limits and element type.
type TableSpec struct {
	ElemType api.ValueType
	Min, Max uint32
}

// GlobalSpec is one declared global's type, mutability and init value.
type GlobalSpec struct {
	Type    api.ValueType
	Mutable bool
	Init    Value
}

// Import names an external dependency resolved at instantiation time.
type Import struct {
	Module, Name string
	Kind         ImportKind
}

// ImportKind closes the set of importable entity kinds.
type ImportKind byte

const (
	ImportFunc ImportKind = iota
	ImportMemory
	ImportTable
	ImportGlobal
)

// Export names one of Instance's entities visible to the host.
type Export struct {
	Name string
	Kind ImportKind
	Index int
}

// Instance realizes one ModuleImage: allocated memories, tables,
// globals, and a resolved function table, matching a production interpreter's
// moduleEngine.functions []*function shape.
type Instance struct {
	Image     *ModuleImage
	Functions []FunctionCode
	Memories  []*linearmemory.Memory
	Tables    []*Table
	Globals   []*Global
}

// Close releases every capability.Token this instance holds -- each
// memory's backing provider, each table's element storage, each
// global's cell storage -- returning their bytes to reg. Release is
// idempotent per token, so Close is safe to call more than once.
func (inst *Instance) Close(reg *capability.Registry) {
	for _, mem := range inst.Memories {
		mem.Provider().Close(reg)
	}
	for _, t := range inst.Tables {
		reg.Release(t.tok)
	}
	for _, g := range inst.Globals {
		if g.provider != nil {
			g.provider.Close(reg)
		}
	}
}

// ResolveFunc returns the function at index, or false if out of range
// -- the Store's defense-in-depth re-check of a decoder-validated
// call/call_indirect index (spec.md §4.G).
func (inst *Instance) ResolveFunc(index int) (*FunctionCode, bool) {
	if index < 0 || index >= len(inst.Functions) {
		return nil, false
	}
	return &inst.Functions[index], true
}

// Frame is one call frame: the function being executed, its current
// program counter, and its locals. Grounded on a production interpreter's callFrame
// {pc uint64, f *function}, with locals added since this engine, unlike
// a production interpreter's, keeps locals on a bounded per-frame vector rather than
// folded into the shared operand stack.
type Frame struct {
	InstanceRef *Instance
	FuncIndex   int
	Func        *FunctionCode
	PC          uint32
	Locals      *boundedcollection.BoundedVec[Value]
	Labels      *boundedcollection.BoundedStack[Label]

	// OperandFloor is the shared operand stack's height at the moment
	// this frame was entered: the engine never pops below it on this
	// frame's behalf, and on return truncates back down to it before
	// pushing the frame's result values. Mirrors a production interpreter's own
	// base-height slicing of callEngine.stack at each call site.
	OperandFloor int
}

// Label is one block/loop/if control-flow label pushed by §4.H.4.
type Label struct {
	ArityIn, ArityOut int
	ContinuationPC    uint32
	IsLoop            bool
}
