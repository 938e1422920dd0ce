// Package memprovider implements the three MemoryProvider variants of
// spec.md §4.D: StaticArena, HeapProvider and PlatformProvider, each
// backed by a capability.Token sized to its backing bytes.
//
// Grounded on a fixed-capacity guest memory implementation (same
// zero-fill-via-make, same Grow-by-copy growth strategy) and on the
// pluggable allocator hook in a production interpreter's experimental/memory.go
// (MemoryAllocator.Make/Grow/Free), reused here as the seam through
// which a real PAL-backed, guard-paged allocator can be substituted.
package memprovider

import (
	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/werr"
)

// Kind is the closed, tagged-variant dispatch of spec.md §9 ("dynamic
// dispatch... modeled as a tagged variant, not open inheritance").
type Kind byte

const (
	KindStaticArena Kind = iota
	KindHeap
	KindPlatform
)

// Provider is the common contract every variant below satisfies.
type Provider interface {
	Kind() Kind
	Size() uint64
	Read(offset, length uint64) ([]byte, error)
	Write(offset uint64, src []byte) error
	Grow(newSize uint64) error
	Token() *capability.Token
	Close(reg *capability.Registry)
}

func boundsCheck(size, offset, length uint64) error {
	if length > size || offset > size-length {
		return werr.ErrOutOfBounds
	}
	return nil
}

// --- StaticArena -----------------------------------------------------

// StaticArena is a fixed byte array carved once at construction time.
// Grow always fails: the ASIL-D profile relies on this to guarantee no
// dynamic allocation after initialization.
type StaticArena struct {
	buf []byte
	tok *capability.Token
}

// NewStaticArena reserves size bytes against crate and returns a
// zero-filled arena (make([]byte, n) is already zeroed in Go, which
// satisfies the no-uninitialized-read invariant at no extra cost).
func NewStaticArena(reg *capability.Registry, crate capability.CrateId, size uint64) (*StaticArena, error) {
	tok, err := reg.Acquire(crate, size)
	if err != nil {
		return nil, err
	}
	return &StaticArena{buf: make([]byte, size), tok: tok}, nil
}

func (a *StaticArena) Kind() Kind    { return KindStaticArena }
func (a *StaticArena) Size() uint64  { return uint64(len(a.buf)) }
func (a *StaticArena) Token() *capability.Token { return a.tok }

func (a *StaticArena) Read(offset, length uint64) ([]byte, error) {
	if err := boundsCheck(a.Size(), offset, length); err != nil {
		return nil, err
	}
	return a.buf[offset : offset+length : offset+length], nil
}

func (a *StaticArena) Write(offset uint64, src []byte) error {
	if err := boundsCheck(a.Size(), offset, uint64(len(src))); err != nil {
		return err
	}
	copy(a.buf[offset:], src)
	return nil
}

func (a *StaticArena) Grow(uint64) error { return werr.ErrGrowUnsupported }

func (a *StaticArena) Close(reg *capability.Registry) { reg.Release(a.tok) }

// --- HeapProvider ------------------------------------------------------

// HeapProvider wraps Go's allocator. Growth is permitted only when the
// caller's profile allows runtime allocation (enforced by the caller,
// e.g. runtime.go's Profile.AllowsHeapMemory, not by this package).
type HeapProvider struct {
	buf    []byte
	tokens []*capability.Token // one per growth step; [0] is the initial reservation
	crate  capability.CrateId
	reg    *capability.Registry
}

// NewHeapProvider reserves an initial size bytes against crate.
func NewHeapProvider(reg *capability.Registry, crate capability.CrateId, size uint64) (*HeapProvider, error) {
	tok, err := reg.Acquire(crate, size)
	if err != nil {
		return nil, err
	}
	return &HeapProvider{buf: make([]byte, size), tokens: []*capability.Token{tok}, crate: crate, reg: reg}, nil
}

func (h *HeapProvider) Kind() Kind   { return KindHeap }
func (h *HeapProvider) Size() uint64 { return uint64(len(h.buf)) }

// Token returns the initial reservation token. Growth steps mint their
// own tokens internally (see Grow) since a Token's byte count is fixed
// at Acquire time; Close releases all of them.
func (h *HeapProvider) Token() *capability.Token { return h.tokens[0] }

func (h *HeapProvider) Read(offset, length uint64) ([]byte, error) {
	if err := boundsCheck(h.Size(), offset, length); err != nil {
		return nil, err
	}
	return h.buf[offset : offset+length : offset+length], nil
}

func (h *HeapProvider) Write(offset uint64, src []byte) error {
	if err := boundsCheck(h.Size(), offset, uint64(len(src))); err != nil {
		return err
	}
	copy(h.buf[offset:], src)
	return nil
}

// Grow reallocates to newSize, acquiring the incremental bytes from the
// registry first and zero-filling the new tail (make already zeros it).
// On budget failure the provider is left unmodified.
func (h *HeapProvider) Grow(newSize uint64) error {
	old := h.Size()
	if newSize <= old {
		return nil
	}
	delta := newSize - old
	tok, err := h.reg.Acquire(h.crate, delta)
	if err != nil {
		return err
	}
	grown := make([]byte, newSize)
	copy(grown, h.buf)
	h.buf = grown
	h.tokens = append(h.tokens, tok)
	return nil
}

func (h *HeapProvider) Close(reg *capability.Registry) {
	for _, tok := range h.tokens {
		reg.Release(tok)
	}
}

// --- PlatformProvider --------------------------------------------------

// PlatformProvider models an OS-mapped, guard-paged region. Real
// mmap/guard-page syscalls belong to the platform-abstraction layer,
// explicitly out of scope per spec.md §1; this implementation provides
// the in-process fallback (a StaticArena plus an explicit canary region)
// and documents the real hook via Allocator below, which a host
// embedder substitutes with a genuine PAL-backed implementation.
type PlatformProvider struct {
	arena  *StaticArena
	canary []byte
}

const canarySize = 16

var canaryPattern = [canarySize]byte{
	0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
	0xDE, 0xAD, 0xBE, 0xEF, 0xDE, 0xAD, 0xBE, 0xEF,
}

// NewPlatformProvider reserves size bytes plus a fixed canary region
// against crate.
func NewPlatformProvider(reg *capability.Registry, crate capability.CrateId, size uint64) (*PlatformProvider, error) {
	arena, err := NewStaticArena(reg, crate, size+canarySize)
	if err != nil {
		return nil, err
	}
	p := &PlatformProvider{arena: arena}
	p.canary = arena.buf[size:]
	copy(p.canary, canaryPattern[:])
	p.arena.buf = arena.buf[:size]
	return p, nil
}

func (p *PlatformProvider) Kind() Kind    { return KindPlatform }
func (p *PlatformProvider) Size() uint64  { return p.arena.Size() }
func (p *PlatformProvider) Token() *capability.Token { return p.arena.Token() }

func (p *PlatformProvider) Read(offset, length uint64) ([]byte, error) {
	return p.arena.Read(offset, length)
}

func (p *PlatformProvider) Write(offset uint64, src []byte) error {
	return p.arena.Write(offset, src)
}

func (p *PlatformProvider) Grow(newSize uint64) error { return werr.ErrGrowUnsupported }

func (p *PlatformProvider) Close(reg *capability.Registry) { p.arena.Close(reg) }

// CanaryIntact reports whether the guard region past Size() is
// unmodified; a host integrity sweep calls this to detect
// out-of-process or unsafe-pointer corruption that bypassed bounds
// checks.
func (p *PlatformProvider) CanaryIntact() bool {
	for i, b := range p.canary {
		if b != canaryPattern[i] {
			return false
		}
	}
	return true
}

// Allocator is the pluggable PAL seam, grounded on a production interpreter's
// experimental/memory.go MemoryAllocator hook. Nothing in this module
// installs or calls an Allocator: PlatformProvider always uses its
// in-process fallback.
type Allocator interface {
	Make(min, cap, max uint64) []byte
	Grow(size uint64) []byte
	Free()
}
