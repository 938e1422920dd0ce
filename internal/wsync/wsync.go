// Package wsync provides no-heap synchronization primitives with
// poisoning, grounded on a production interpreter's own use of sync.RWMutex to guard
// its engine's compiled-module table (internal/engine/interpreter.engine.mux).
//
// Poisoning closes the gap a production interpreter gets implicitly from converting
// guest panics into Traps at the Call boundary: a panic mid-mutation of a
// *host-side* structure (the registry, a provider) must not let another
// goroutine observe torn state. Once a critical section panics, the lock
// is marked poisoned and all subsequent acquisitions fail fast.
package wsync

import (
	"sync"
	"sync/atomic"

	"github.com/avrabe/wrt/internal/werr"
)

// Mutex wraps sync.Mutex with poisoning.
type Mutex struct {
	mu       sync.Mutex
	poisoned atomic.Bool
}

// Lock acquires the mutex. It returns werr.ErrLockPoisoned without
// acquiring the lock if a prior critical section panicked.
func (m *Mutex) Lock() error {
	if m.poisoned.Load() {
		return werr.ErrLockPoisoned
	}
	m.mu.Lock()
	if m.poisoned.Load() {
		m.mu.Unlock()
		return werr.ErrLockPoisoned
	}
	return nil
}

// Unlock releases the mutex.
func (m *Mutex) Unlock() { m.mu.Unlock() }

// Poison marks the mutex poisoned; used from a recover() in the critical
// section this mutex guards.
func (m *Mutex) Poison() { m.poisoned.Store(true) }

// Poisoned reports whether a prior critical section panicked.
func (m *Mutex) Poisoned() bool { return m.poisoned.Load() }

// WithLock runs fn holding the mutex, poisoning it if fn panics, and
// re-panics afterwards so the caller's own recover (e.g. the engine's
// Invoke boundary) still observes the failure.
func (m *Mutex) WithLock(fn func() error) (err error) {
	if lockErr := m.Lock(); lockErr != nil {
		return lockErr
	}
	defer func() {
		if r := recover(); r != nil {
			m.Poison()
			m.mu.Unlock()
			panic(r)
		}
	}()
	err = fn()
	m.mu.Unlock()
	return err
}

// RWMutex wraps sync.RWMutex with the same poisoning semantics applied to
// the write path; readers fail fast once poisoned.
type RWMutex struct {
	mu       sync.RWMutex
	poisoned atomic.Bool
}

func (m *RWMutex) Lock() error {
	if m.poisoned.Load() {
		return werr.ErrLockPoisoned
	}
	m.mu.Lock()
	if m.poisoned.Load() {
		m.mu.Unlock()
		return werr.ErrLockPoisoned
	}
	return nil
}

func (m *RWMutex) Unlock() { m.mu.Unlock() }

func (m *RWMutex) RLock() error {
	if m.poisoned.Load() {
		return werr.ErrLockPoisoned
	}
	m.mu.RLock()
	if m.poisoned.Load() {
		m.mu.RUnlock()
		return werr.ErrLockPoisoned
	}
	return nil
}

func (m *RWMutex) RUnlock() { m.mu.RUnlock() }

func (m *RWMutex) Poison() { m.poisoned.Store(true) }

func (m *RWMutex) Poisoned() bool { return m.poisoned.Load() }

// AtomicCounter is a lock-free uint64 counter. The budget registry
// does not use it; every acquire there takes the registry's Mutex.
type AtomicCounter struct {
	v atomic.Uint64
}

func (c *AtomicCounter) Load() uint64 { return c.v.Load() }

func (c *AtomicCounter) Add(delta uint64) uint64 { return c.v.Add(delta) }

func (c *AtomicCounter) CompareAndSwap(old, new uint64) bool {
	return c.v.CompareAndSwap(old, new)
}
