// Package intercept implements the four-hook-point boundary of spec.md
// §4.K / §6: BeforeCall, AfterCall, Bypass and Modify, each returning a
// Decision the engine must honor before/after a call crosses the
// host/guest boundary.
//
// Grounded on a production interpreter's FunctionListener (Before/After,
// context-threading shape) -- that hook is strictly "notify only" and
// cannot change engine behavior; this module's hook is
// "notify-and-decide," a superset kept in the same Before(ctx, def,
// params) (context.Context, ...) calling shape.
package intercept

import (
	"context"

	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/werr"
)

// Outcome is the closed set of decisions a hook may return.
type Outcome byte

const (
	// OutcomeContinue proceeds with the call unchanged.
	OutcomeContinue Outcome = iota
	// OutcomeReplace substitutes Decision.Values for the call's
	// arguments (BeforeCall; the target then runs with them, and a
	// replacement of a different length is ignored) or for its results
	// (AfterCall), or for the written value (Modify).
	OutcomeReplace
	// OutcomeBypass skips the call entirely, as if it returned
	// Decision.Values immediately (Bypass and BeforeCall only).
	OutcomeBypass
	// OutcomeTrap aborts the call with Decision.Trap.
	OutcomeTrap
)

// Decision is a hook's verdict.
type Decision struct {
	Outcome Outcome
	Values  []moduleimage.Value
	Trap    werr.TrapKind
}

// continueDecision is returned by hooks with nothing to say.
var continueDecision = Decision{Outcome: OutcomeContinue}

// Hooks is the four-point intercept chain an engine consults around
// every call. A nil field is treated as "no opinion" (OutcomeContinue).
type Hooks struct {
	// BeforeCall runs before a call's arguments are bound to the
	// callee's frame.
	BeforeCall func(ctx context.Context, fn *moduleimage.FunctionCode, args []moduleimage.Value) (context.Context, Decision)
	// AfterCall runs after a call returns normally (not on trap).
	AfterCall func(ctx context.Context, fn *moduleimage.FunctionCode, results []moduleimage.Value) Decision
	// Bypass is consulted before BeforeCall; if it returns
	// OutcomeBypass the call is skipped entirely and BeforeCall/AfterCall
	// are not invoked.
	Bypass func(ctx context.Context, fn *moduleimage.FunctionCode, args []moduleimage.Value) Decision
	// Modify runs for a memory or global write (store, global.set) when
	// the engine's verification harness selects that write for
	// verification, separate from the call boundary -- named for
	// spec.md's fourth hook point.
	Modify func(ctx context.Context, pc uint32, value moduleimage.Value) Decision
}

// RunBypass consults Bypass, defaulting to OutcomeContinue.
func (h *Hooks) RunBypass(ctx context.Context, fn *moduleimage.FunctionCode, args []moduleimage.Value) Decision {
	if h == nil || h.Bypass == nil {
		return continueDecision
	}
	return h.Bypass(ctx, fn, args)
}

// RunBeforeCall consults BeforeCall, defaulting to (ctx, OutcomeContinue).
func (h *Hooks) RunBeforeCall(ctx context.Context, fn *moduleimage.FunctionCode, args []moduleimage.Value) (context.Context, Decision) {
	if h == nil || h.BeforeCall == nil {
		return ctx, continueDecision
	}
	return h.BeforeCall(ctx, fn, args)
}

// RunAfterCall consults AfterCall, defaulting to OutcomeContinue.
func (h *Hooks) RunAfterCall(ctx context.Context, fn *moduleimage.FunctionCode, results []moduleimage.Value) Decision {
	if h == nil || h.AfterCall == nil {
		return continueDecision
	}
	return h.AfterCall(ctx, fn, results)
}

// RunModify consults Modify, defaulting to OutcomeContinue.
func (h *Hooks) RunModify(ctx context.Context, pc uint32, value moduleimage.Value) Decision {
	if h == nil || h.Modify == nil {
		return continueDecision
	}
	return h.Modify(ctx, pc, value)
}
