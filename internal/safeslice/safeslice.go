// Package safeslice implements the bounds- and integrity-checked byte
// view of spec.md §4.E: {provider, offset, len, verification_level,
// checksum}. Narrower sub-views are derived via Sub, bounds-checked
// against the parent, and inherit its verification level.
//
// Grounded on a standard fixed-capacity memory's read/write bounds-check
// shape (offset+len <= size, §4.D/§4.F) layered with a checksum policy;
// the checksum itself uses hash/crc32 from the standard library since
// no example repo in the retrieved corpus imports a dedicated hashing
// library (the corpus's only hash-adjacent dependency, golang.org/x/*,
// belongs to an unrelated example's transitive closure and was not
// pulled in) — recorded in DESIGN.md.
package safeslice

import (
	"hash/crc32"

	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/memprovider"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
)

// SafeSlice is a bounds-checked, optionally integrity-verified view
// over a memprovider.Provider's bytes.
type SafeSlice struct {
	provider  memprovider.Provider
	offset    uint64
	length    uint64
	level     verify.Level
	harness   *verify.Harness
	checksum  uint32 // crc32 IEEE
	checksum2 uint32 // crc32 Castagnoli; the Redundant level's second witness
}

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// New constructs a SafeSlice spanning [offset, offset+length) of
// provider, computing an initial checksum. Returns werr.ErrOutOfBounds
// if the span exceeds the provider's current size.
func New(provider memprovider.Provider, offset, length uint64, level verify.Level, harness *verify.Harness) (*SafeSlice, error) {
	if length > provider.Size() || offset > provider.Size()-length {
		return nil, werr.ErrOutOfBounds
	}
	s := &SafeSlice{provider: provider, offset: offset, length: length, level: level, harness: harness}
	if err := s.recompute(); err != nil {
		return nil, err
	}
	return s, nil
}

// Len reports the view's length in bytes.
func (s *SafeSlice) Len() uint64 { return s.length }

func (s *SafeSlice) recompute() error {
	b, err := s.provider.Read(s.offset, s.length)
	if err != nil {
		return err
	}
	s.checksum = crc32.ChecksumIEEE(b)
	s.checksum2 = crc32.Checksum(b, castagnoliTable)
	return nil
}

// Sub derives a narrower view [offset, offset+length) relative to this
// slice's own origin, inheriting its verification level. Bounds-checked
// against the parent, not the underlying provider.
func (s *SafeSlice) Sub(offset, length uint64) (*SafeSlice, error) {
	if length > s.length || offset > s.length-length {
		return nil, werr.ErrOutOfBounds
	}
	return New(s.provider, s.offset+offset, length, s.level, s.harness)
}

// Read returns the view's current bytes, verifying its checksum first
// when the harness's Decide call (seeded by pc) says to.
func (s *SafeSlice) Read(pc uint32) ([]byte, error) {
	if d := s.decide(pc); d.Verify {
		if err := s.verifyChecksum(d.Redundant); err != nil {
			return nil, err
		}
	}
	return s.provider.Read(s.offset, s.length)
}

// Write overwrites the view's bytes and refreshes its checksum. Per
// spec.md §4.E, every mutation through a mutable slice updates the
// checksum unconditionally; whether the *previous* checksum is
// verified before the write is still governed by the harness.
func (s *SafeSlice) Write(pc uint32, src []byte) error {
	if uint64(len(src)) > s.length {
		return werr.ErrOutOfBounds
	}
	if d := s.decide(pc); d.Verify {
		if err := s.verifyChecksum(d.Redundant); err != nil {
			return err
		}
	}
	if err := s.provider.Write(s.offset, src); err != nil {
		return err
	}
	return s.recompute()
}

func (s *SafeSlice) decide(pc uint32) verify.Decision {
	if s.harness == nil {
		return verify.Decision{}
	}
	return s.harness.Decide(s.level, pc, false)
}

// verifyChecksum recomputes the checksum over the view's current bytes
// and compares it against the last recorded witness, returning
// werr.ErrIntegrityFailure on mismatch. redundant additionally
// recomputes with a second, independent polynomial (crc32 Castagnoli)
// and requires both to agree, per verify.KindRedundant.
func (s *SafeSlice) verifyChecksum(redundant bool) error {
	b, err := s.provider.Read(s.offset, s.length)
	if err != nil {
		return err
	}
	if crc32.ChecksumIEEE(b) != s.checksum {
		return werr.ErrIntegrityFailure
	}
	if redundant && crc32.Checksum(b, castagnoliTable) != s.checksum2 {
		return werr.ErrIntegrityFailure
	}
	return nil
}

// CrateForToken is a convenience for callers that need to size a
// reservation for a SafeSlice's backing provider explicitly. No package
// in this module calls it.
func CrateForToken(tok *capability.Token) capability.CrateId { return tok.CrateID() }
