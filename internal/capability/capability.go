// Package capability implements the process-wide budget registry and
// capability tokens of spec.md §4.C: a fixed CrateId-keyed table of
// {reserved, in_use, peak} counters, guarded by one wsync.Mutex, from
// which every allocation in the system is minted.
//
// Grounded on a production interpreter's own locking idiom for its compiled-module
// table (internal/engine/interpreter/interpreter.go: engine{codes map,
// mux sync.RWMutex}), generalized from a map to a fixed-size array since
// the set of CrateIds is closed at compile time and the registry itself
// must never allocate post-init.
package capability

import (
	"sync/atomic"

	"github.com/avrabe/wrt/internal/werr"
	"github.com/avrabe/wrt/internal/wsync"
)

// CrateId identifies an internal subsystem for budget-accounting
// purposes. Fixed at compile time; the last two values are reserved for
// the decoder/host-function layers, which this module does not
// implement but which a caller may still configure and observe budgets
// for.
type CrateId byte

const (
	CrateCore CrateId = iota
	CrateCapability
	CrateSafeSlice
	CrateMemory
	CrateEngine
	CrateVerification
	CrateGovernor
	CrateComponent
	CrateDecoder
	CrateHost

	numCrates
)

func (c CrateId) String() string {
	switch c {
	case CrateCore:
		return "core"
	case CrateCapability:
		return "capability"
	case CrateSafeSlice:
		return "safeslice"
	case CrateMemory:
		return "memory"
	case CrateEngine:
		return "engine"
	case CrateVerification:
		return "verification"
	case CrateGovernor:
		return "governor"
	case CrateComponent:
		return "component"
	case CrateDecoder:
		return "decoder"
	case CrateHost:
		return "host"
	default:
		return "unknown"
	}
}

// Budget is the per-crate accounting record. Invariant: in_use <=
// reserved; peak = max(peak, in_use), monotone for the registry's
// lifetime.
type Budget struct {
	CrateID  CrateId
	Reserved uint64
	InUse    uint64
	Peak     uint64
}

// Token is an opaque, non-copyable handle proving the right to have
// allocated up to Bytes() against a specific CrateId. Always use a
// *Token; never copy the pointed-to struct (copying produces two
// handles for one reservation, which Release's idempotence guard will
// detect as a double-release and refuse to double-account, but such a
// copy is still a bug).
type Token struct {
	crate    CrateId
	bytes    uint64
	released atomic.Bool
	registry *Registry
}

// CrateID returns the crate this token was minted against.
func (t *Token) CrateID() CrateId { return t.crate }

// Bytes returns the number of bytes this token reserves.
func (t *Token) Bytes() uint64 { return t.bytes }

// Registry is the process-wide budget table. The zero value is not
// usable; construct with NewRegistry.
type Registry struct {
	mu      wsync.Mutex
	budgets [numCrates]Budget
	configured [numCrates]bool
}

// NewRegistry constructs an empty registry; every crate starts
// unconfigured and must be Configure'd before Acquire will succeed.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.budgets {
		r.budgets[i] = Budget{CrateID: CrateId(i)}
	}
	return r
}

// Configure sets the reserved byte budget for a crate. Must be called
// during init; a later call for an already-configured crate fails with
// werr.ErrBudgetConfigured.
func (r *Registry) Configure(crate CrateId, reserved uint64) error {
	return r.mu.WithLock(func() error {
		if r.configured[crate] {
			return werr.ErrBudgetConfigured
		}
		r.configured[crate] = true
		r.budgets[crate].Reserved = reserved
		return nil
	})
}

// Acquire atomically reserves bytes against crate, minting a Token on
// success. Fails with werr.ErrBudgetExceeded without mutating state if
// the reservation would exceed the configured budget.
func (r *Registry) Acquire(crate CrateId, bytes uint64) (*Token, error) {
	var tok *Token
	err := r.mu.WithLock(func() error {
		b := &r.budgets[crate]
		if b.InUse+bytes > b.Reserved {
			return werr.ErrBudgetExceeded
		}
		b.InUse += bytes
		if b.InUse > b.Peak {
			b.Peak = b.InUse
		}
		tok = &Token{crate: crate, bytes: bytes, registry: r}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return tok, nil
}

// Release returns a token's bytes to its crate's budget. Infallible and
// idempotent: only the first Release call for a given token actually
// decrements in_use.
func (r *Registry) Release(t *Token) {
	if t == nil || !t.released.CompareAndSwap(false, true) {
		return
	}
	_ = r.mu.WithLock(func() error {
		b := &r.budgets[t.crate]
		b.InUse -= t.bytes
		return nil
	})
}

// Split redistributes an existing token into two smaller tokens
// totalling the same byte count, without touching the registry
// counters (the bytes were already accounted for by the original
// Acquire). The original token is consumed; using it again is a no-op
// via the same released guard Release uses.
func (r *Registry) Split(t *Token, firstBytes uint64) (*Token, *Token, error) {
	if firstBytes > t.bytes {
		return nil, nil, werr.ErrCapacityExceeded
	}
	if !t.released.CompareAndSwap(false, true) {
		return nil, nil, werr.ErrLockPoisoned
	}
	a := &Token{crate: t.crate, bytes: firstBytes, registry: r}
	b := &Token{crate: t.crate, bytes: t.bytes - firstBytes, registry: r}
	return a, b, nil
}

// Snapshot returns a copy of the budget for crate, for observability.
func (r *Registry) Snapshot(crate CrateId) Budget {
	var out Budget
	_ = r.mu.WithLock(func() error {
		out = r.budgets[crate]
		return nil
	})
	return out
}

// Leaked reports whether any configured crate still has a non-zero
// in_use counter -- a leak per spec.md Testable Property 8. Intended to
// be called at teardown.
func (r *Registry) Leaked() []CrateId {
	var leaked []CrateId
	_ = r.mu.WithLock(func() error {
		for i := range r.budgets {
			if r.budgets[i].InUse != 0 {
				leaked = append(leaked, CrateId(i))
			}
		}
		return nil
	})
	return leaked
}
