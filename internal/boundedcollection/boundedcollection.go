// Package boundedcollection implements the capacity-capped containers
// of spec.md §4.E: BoundedVec, BoundedStack and BoundedMap. Every
// container is backed by a slice allocated once, at construction, to
// its full capacity -- no container grows after that, which is what
// lets an ASIL-D embedder reason about worst-case memory use from
// configuration alone.
//
// Grounded directly on a production interpreter's callEngine operand/frame stacks
// (internal/engine/interpreter/interpreter.go: stack []uint64, frames
// []*callFrame, pushValue/popValue/peekValues/drop/pushFrame/popFrame),
// generalized from untyped uint64/*callFrame to any T and given the
// capacity ceiling a production interpreter enforces ad hoc via callStackCeiling.
package boundedcollection

import "github.com/avrabe/wrt/internal/werr"

// BoundedVec is a fixed-capacity, index-addressable vector. Push
// returns werr.ErrCapacityExceeded and leaves the vector unmodified
// once Len() == Cap().
type BoundedVec[T any] struct {
	items []T
	cap   int
}

// NewBoundedVec preallocates a vector with room for capacity elements
// and no elements present.
func NewBoundedVec[T any](capacity int) *BoundedVec[T] {
	return &BoundedVec[T]{items: make([]T, 0, capacity), cap: capacity}
}

func (v *BoundedVec[T]) Len() int { return len(v.items) }
func (v *BoundedVec[T]) Cap() int { return v.cap }

// Push appends one element, failing with werr.ErrCapacityExceeded
// (state unchanged) if the vector is full.
func (v *BoundedVec[T]) Push(item T) error {
	if len(v.items) >= v.cap {
		return werr.ErrCapacityExceeded
	}
	v.items = append(v.items, item)
	return nil
}

// Get returns the element at index, or werr.ErrIndexOutOfRange.
func (v *BoundedVec[T]) Get(index int) (T, error) {
	var zero T
	if index < 0 || index >= len(v.items) {
		return zero, werr.ErrIndexOutOfRange
	}
	return v.items[index], nil
}

// Set overwrites the element at index, or werr.ErrIndexOutOfRange.
func (v *BoundedVec[T]) Set(index int, item T) error {
	if index < 0 || index >= len(v.items) {
		return werr.ErrIndexOutOfRange
	}
	v.items[index] = item
	return nil
}

// Truncate shrinks the vector to newLen, a no-op if newLen >= Len().
// Used by the engine's drop/branch-unwind paths, grounded on
// callEngine.drop.
func (v *BoundedVec[T]) Truncate(newLen int) {
	if newLen < len(v.items) {
		v.items = v.items[:newLen]
	}
}

// BoundedStack is a fixed-capacity LIFO, grounded directly on
// callEngine's operand stack (pushValue/popValue) and frame stack
// (pushFrame/popFrame).
type BoundedStack[T any] struct {
	vec *BoundedVec[T]
}

// NewBoundedStack preallocates a stack with room for capacity frames.
func NewBoundedStack[T any](capacity int) *BoundedStack[T] {
	return &BoundedStack[T]{vec: NewBoundedVec[T](capacity)}
}

func (s *BoundedStack[T]) Len() int { return s.vec.Len() }
func (s *BoundedStack[T]) Cap() int { return s.vec.Cap() }

// Push fails with werr.ErrCapacityExceeded (the engine's stack-overflow
// trap) once Len() == Cap().
func (s *BoundedStack[T]) Push(item T) error {
	if err := s.vec.Push(item); err != nil {
		return werr.ErrStackOverflow
	}
	return nil
}

// Pop removes and returns the top element, or werr.ErrStackOverflow if
// the stack is empty (the engine never calls Pop on an empty stack in
// validated code; this path exists purely as a bug-detection guard,
// mirroring a production interpreter's own "no need to check... thanks to
// validateFunction" comment at the call sites that rely on it).
func (s *BoundedStack[T]) Pop() (T, error) {
	var zero T
	n := s.vec.Len()
	if n == 0 {
		return zero, werr.ErrStackOverflow
	}
	top, _ := s.vec.Get(n - 1)
	s.vec.Truncate(n - 1)
	return top, nil
}

// Peek returns the top element without removing it.
func (s *BoundedStack[T]) Peek() (T, error) {
	var zero T
	n := s.vec.Len()
	if n == 0 {
		return zero, werr.ErrStackOverflow
	}
	return s.vec.Get(n - 1)
}

// PeekN returns the top count elements in bottom-to-top order, mirroring
// callEngine.peekValues.
func (s *BoundedStack[T]) PeekN(count int) ([]T, error) {
	n := s.vec.Len()
	if count > n {
		return nil, werr.ErrStackOverflow
	}
	out := make([]T, count)
	for i := 0; i < count; i++ {
		v, err := s.vec.Get(n - count + i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// DropRange removes elements [n-1-end, n-1-start] (inclusive, counted
// from the top), mirroring callEngine.drop's InclusiveRange semantics
// used by Wasm's "drop interior values, keep top result" br/return
// unwind.
func (s *BoundedStack[T]) DropRange(start, end int) error {
	n := s.vec.Len()
	if end+1 > n {
		return werr.ErrIndexOutOfRange
	}
	if start == 0 {
		s.vec.Truncate(n - 1 - end)
		return nil
	}
	kept := make([]T, 0, start)
	for i := n - start; i < n; i++ {
		v, err := s.vec.Get(i)
		if err != nil {
			return err
		}
		kept = append(kept, v)
	}
	s.vec.Truncate(n - 1 - end)
	for _, v := range kept {
		if err := s.Push(v); err != nil {
			return err
		}
	}
	return nil
}

// entry is one slot of a BoundedMap.
type entry[K comparable, V any] struct {
	key   K
	value V
	used  bool
}

// BoundedMap is a fixed-capacity, linear-probed associative array,
// generalizing a production interpreter's small CrateId-keyed fixed tables (see
// capability.Registry.budgets) to an arbitrary comparable key. Intended
// for small N (import tables, label maps); a BoundedMap is not a
// replacement for a general hash map.
type BoundedMap[K comparable, V any] struct {
	slots []entry[K, V]
	cap   int
	count int
}

// NewBoundedMap preallocates room for capacity entries.
func NewBoundedMap[K comparable, V any](capacity int) *BoundedMap[K, V] {
	return &BoundedMap[K, V]{slots: make([]entry[K, V], capacity), cap: capacity}
}

func (m *BoundedMap[K, V]) Len() int { return m.count }
func (m *BoundedMap[K, V]) Cap() int { return m.cap }

// Put inserts or updates the value for key, failing with
// werr.ErrCapacityExceeded (state unchanged) if key is new and the map
// is already full.
func (m *BoundedMap[K, V]) Put(key K, value V) error {
	for i := range m.slots {
		if m.slots[i].used && m.slots[i].key == key {
			m.slots[i].value = value
			return nil
		}
	}
	if m.count >= m.cap {
		return werr.ErrCapacityExceeded
	}
	for i := range m.slots {
		if !m.slots[i].used {
			m.slots[i] = entry[K, V]{key: key, value: value, used: true}
			m.count++
			return nil
		}
	}
	return werr.ErrCapacityExceeded
}

// Get looks up key, reporting whether it was present.
func (m *BoundedMap[K, V]) Get(key K) (V, bool) {
	var zero V
	for i := range m.slots {
		if m.slots[i].used && m.slots[i].key == key {
			return m.slots[i].value, true
		}
	}
	return zero, false
}

// Delete removes key if present; a no-op otherwise.
func (m *BoundedMap[K, V]) Delete(key K) {
	for i := range m.slots {
		if m.slots[i].used && m.slots[i].key == key {
			m.slots[i] = entry[K, V]{}
			m.count--
			return
		}
	}
}
