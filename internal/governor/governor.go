// Package governor implements the fuel and resource governor of
// spec.md §4.J: owns the engine's fuel counter, tracks high-water
// marks for frame depth and operand-stack height, and emits events
// when configured thresholds are crossed.
//
// Grounded on a production interpreter's fixed call-stack ceiling
// (internal/engine/interpreter/interpreter.go references
// `buildoptions.CallStackCeiling` at its `pushFrame` bounds check),
// generalized from a single compile-time constant into a runtime-
// configurable set of thresholds, and on the before/after notification
// shape a production interpreter uses for its function-call listener hook -- reused
// here as a zero-argument notification rather than reinvented.
package governor

import (
	"github.com/avrabe/wrt/internal/buildoptions"
	"github.com/avrabe/wrt/internal/werr"
)

// Listener receives threshold-crossing notifications. All methods are
// no-ops to implement if the embedder doesn't care about that signal.
type Listener interface {
	OnFrameDepthHighWater(depth int)
	OnOperandHeightHighWater(height int)
	OnFuelExhausted()
}

// NopListener implements Listener with no-ops; the Governor's default.
type NopListener struct{}

func (NopListener) OnFrameDepthHighWater(int)    {}
func (NopListener) OnOperandHeightHighWater(int) {}
func (NopListener) OnFuelExhausted()             {}

// Thresholds configures when Governor notifies its Listener. Zero means
// "never notify for this signal."
type Thresholds struct {
	FrameDepth    int
	OperandHeight int
}

// Governor owns one engine invocation's fuel budget and resource
// high-water marks. Not safe for concurrent use -- matches a production interpreter's
// callEngine being freshly constructed per Call and never
// shared across goroutines (spec.md §5).
type Governor struct {
	fuel       uint64
	thresholds Thresholds

	frameDepthPeak    int
	operandHeightPeak int
	allocObserved     uint64

	listener Listener
}

// New constructs a Governor with an initial fuel budget. A nil
// listener is replaced with NopListener.
func New(initialFuel uint64, thresholds Thresholds, listener Listener) *Governor {
	if listener == nil {
		listener = NopListener{}
	}
	return &Governor{fuel: initialFuel, thresholds: thresholds, listener: listener}
}

// Consume deducts cost from the remaining fuel. Returns
// werr.ErrFuelExhausted (state unchanged) if cost exceeds what remains
// -- the engine's §4.H.6 contract is to transition to Paused on this
// error, not to trap.
func (g *Governor) Consume(cost uint64) error {
	if cost > g.fuel {
		g.listener.OnFuelExhausted()
		return werr.ErrFuelExhausted
	}
	g.fuel -= cost
	return nil
}

// Refuel adds n to the remaining fuel, used when the host resumes a
// Paused(FuelExhausted) engine.
func (g *Governor) Refuel(n uint64) { g.fuel += n }

// Remaining reports the fuel left.
func (g *Governor) Remaining() uint64 { return g.fuel }

// ObserveFrameDepth records the current call-frame depth, updating the
// peak and notifying the listener each time depth equals the
// configured threshold (again on every later observation at that depth).
func (g *Governor) ObserveFrameDepth(depth int) {
	if buildoptions.IstTest && depth < 0 {
		panic("governor: negative frame depth")
	}
	if depth > g.frameDepthPeak {
		g.frameDepthPeak = depth
	}
	if g.thresholds.FrameDepth > 0 && depth == g.thresholds.FrameDepth {
		g.listener.OnFrameDepthHighWater(depth)
	}
}

// ObserveOperandHeight records the current operand-stack height,
// analogous to ObserveFrameDepth.
func (g *Governor) ObserveOperandHeight(height int) {
	if buildoptions.IstTest && height < 0 {
		panic("governor: negative operand height")
	}
	if height > g.operandHeightPeak {
		g.operandHeightPeak = height
	}
	if g.thresholds.OperandHeight > 0 && height == g.thresholds.OperandHeight {
		g.listener.OnOperandHeightHighWater(height)
	}
}

// ObserveAlloc accumulates bytes allocated through a provider, for the
// "total allocations observed through providers" counter in spec.md
// §4.J.
func (g *Governor) ObserveAlloc(bytes uint64) { g.allocObserved += bytes }

// FrameDepthPeak reports the highest frame depth observed so far.
func (g *Governor) FrameDepthPeak() int { return g.frameDepthPeak }

// OperandHeightPeak reports the highest operand-stack height observed
// so far.
func (g *Governor) OperandHeightPeak() int { return g.operandHeightPeak }

// AllocObserved reports total bytes allocated through providers so far.
func (g *Governor) AllocObserved() uint64 { return g.allocObserved }
