// Package linearmemory implements guest linear memory per spec.md
// §4.F: one provider, page-granular growth with Wasm's own silent-
// failure semantics, and bounds-checked typed load/store helpers.
//
// Grounded near-verbatim on a production interpreter's
// a fixed-capacity guest memory: identical PageSize constant, the
// same isOutOfRange formula (offset >= size || length > size || offset
// > size-length), and the same Grow-by-copy growth strategy -- routed
// here through a memprovider.Provider instead of a bare []byte, and
// additionally gated by a capability.Token so growth respects the
// owning instance's configured memory budget.
package linearmemory

import (
	"encoding/binary"
	"math"

	"github.com/avrabe/wrt/internal/memprovider"
	"github.com/avrabe/wrt/internal/werr"
)

// PageSize is the WebAssembly linear memory page size in bytes.
const PageSize = 65536

// Memory is one instance's linear memory. Growth budget enforcement
// lives in the backing provider (its capability.Token), not here; this
// type only layers the page-granular memory.grow contract on top.
type Memory struct {
	provider memprovider.Provider
	min, max uint32 // in pages; max == 0 means unbounded

	// Observer, if set, is called when a memory.grow fails because the
	// owning instance's budget (not the module-declared max) would be
	// exceeded -- spec.md's "emitting an observability event."
	Observer func(event string, deltaPages, currentPages uint32)
}

// New constructs a Memory over provider, which must already hold
// min*PageSize bytes.
func New(provider memprovider.Provider, min, max uint32) *Memory {
	return &Memory{provider: provider, min: min, max: max}
}

// Provider exposes the backing memprovider.Provider, for callers that
// need a bounds- and integrity-checked view over the whole region
// (internal/safeslice) rather than this type's typed load/store
// helpers -- e.g. a checkpoint snapshot verifying memory hasn't been
// silently corrupted before embalming it.
func (m *Memory) Provider() memprovider.Provider { return m.provider }

// Pages reports the current size in pages.
func (m *Memory) Pages() uint32 { return uint32(m.provider.Size() / PageSize) }

// Size reports the current size in bytes.
func (m *Memory) Size() uint32 { return uint32(m.provider.Size()) }

// Grow implements memory.grow: on success it returns the previous page
// count and true; on failure (module-declared max exceeded, or the
// owning instance's capability budget exceeded) it returns the
// previous page count and false, mutating nothing -- Wasm's own
// "fails silently to the guest" contract from spec.md §4.F.
func (m *Memory) Grow(deltaPages uint32) (previousPages uint32, ok bool) {
	previousPages = m.Pages()
	newPages := previousPages + deltaPages
	if m.max != 0 && newPages > m.max {
		return previousPages, false
	}
	if err := m.provider.Grow(uint64(newPages) * PageSize); err != nil {
		if m.Observer != nil {
			m.Observer("memory_grow_budget_exceeded", deltaPages, previousPages)
		}
		return previousPages, false
	}
	return previousPages, true
}

func (m *Memory) isOutOfRange(offset, length uint32) bool {
	size := m.Size()
	return offset >= size || length > size || offset > size-length
}

// Read returns a length-byte view at offset, or werr.ErrOutOfBounds.
func (m *Memory) Read(offset, length uint32) ([]byte, error) {
	if m.isOutOfRange(offset, length) {
		return nil, werr.ErrOutOfBounds
	}
	return m.provider.Read(uint64(offset), uint64(length))
}

// Write overwrites length(value)-bytes at offset.
func (m *Memory) Write(offset uint32, value []byte) error {
	if m.isOutOfRange(offset, uint32(len(value))) {
		return werr.ErrOutOfBounds
	}
	return m.provider.Write(uint64(offset), value)
}

// ReadByte, ReadUint32Le, etc. are the typed load helpers the engine's
// dispatch table calls directly; each funnels through Read/Write so the
// bounds formula stays in one place.

func (m *Memory) ReadByte(offset uint32) (byte, error) {
	b, err := m.Read(offset, 1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (m *Memory) WriteByte(offset uint32, value byte) error {
	return m.Write(offset, []byte{value})
}

func (m *Memory) ReadUint32Le(offset uint32) (uint32, error) {
	b, err := m.Read(offset, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (m *Memory) WriteUint32Le(offset uint32, value uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], value)
	return m.Write(offset, b[:])
}

func (m *Memory) ReadUint64Le(offset uint32) (uint64, error) {
	b, err := m.Read(offset, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *Memory) WriteUint64Le(offset uint32, value uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], value)
	return m.Write(offset, b[:])
}

func (m *Memory) ReadFloat32Le(offset uint32) (float32, error) {
	v, err := m.ReadUint32Le(offset)
	return math.Float32frombits(v), err
}

func (m *Memory) WriteFloat32Le(offset uint32, value float32) error {
	return m.WriteUint32Le(offset, math.Float32bits(value))
}

func (m *Memory) ReadFloat64Le(offset uint32) (float64, error) {
	v, err := m.ReadUint64Le(offset)
	return math.Float64frombits(v), err
}

func (m *Memory) WriteFloat64Le(offset uint32, value float64) error {
	return m.WriteUint64Le(offset, math.Float64bits(value))
}
