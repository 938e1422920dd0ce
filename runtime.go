// Package wrt is the embedder-facing entrypoint of a capability-based,
// bounded-memory WebAssembly core: it binds an internal/engine.Engine,
// internal/capability.Registry and internal/checkpoint.Store into one
// Runtime, configured by an immutable RuntimeConfig built with the
// clone-and-chain pattern of a production interpreter's config.go (NewRuntimeConfigJIT/
// NewRuntimeConfigInterpreter -> WithXxx), generalized from an engine-
// backend axis (JIT vs interpreter -- this module has no JIT, see
// DESIGN.md) to an ASIL-profile axis fixing verification strictness,
// allocation strategy and panic behavior per spec.md's ASIL profile
// glossary entry.
package wrt

import (
	"bytes"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/checkpoint"
	"github.com/avrabe/wrt/internal/engine"
	"github.com/avrabe/wrt/internal/features"
	"github.com/avrabe/wrt/internal/governor"
	"github.com/avrabe/wrt/internal/intercept"
	"github.com/avrabe/wrt/internal/moduleimage"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
)

// allCrateIDs enumerates every crate of capability.CrateId's const
// block; this list is kept in sync with it by hand.
// ConfigureBudgetsFromEnvironment does not read it: it walks CrateId
// values upward until String() reports "unknown".
var allCrateIDs = []capability.CrateId{
	capability.CrateCore,
	capability.CrateCapability,
	capability.CrateSafeSlice,
	capability.CrateMemory,
	capability.CrateEngine,
	capability.CrateVerification,
	capability.CrateGovernor,
	capability.CrateComponent,
	capability.CrateDecoder,
	capability.CrateHost,
}

// Profile is the compile-time^W-construction-time configuration fixing
// the strictness of verification, allocation and panic behavior
// (spec.md glossary, "ASIL profile").
type Profile byte

const (
	// ProfileASILD is the certifiable profile: Full verification,
	// no Go-heap growth path (AllowsHeapMemory reports false, so
	// moduleimage.Instantiate backs memories with a StaticArena instead
	// of a HeapProvider), and the engine never recovers a guest
	// or host-function panic -- a panic crossing Invoke is a bug,
	// not a Trap.
	ProfileASILD Profile = iota
	// ProfileDevelopment relaxes verification to Sampling and
	// allows heap-backed memory, for fast local iteration.
	ProfileDevelopment
	// ProfileQM disables verification entirely and recovers a
	// panic at the Invoke boundary into a Trap, matching a production interpreter's
	// moduleEngine.Call recover() -- for host functions
	// written without this module's no-panic discipline.
	ProfileQM
)

func (p Profile) String() string {
	switch p {
	case ProfileASILD:
		return "asil-d"
	case ProfileDevelopment:
		return "development"
	case ProfileQM:
		return "qm"
	default:
		return "unknown"
	}
}

// AllowsHeapMemory reports whether this profile permits a Go-heap-backed
// memory provider (internal/memprovider.HeapProvider), per §4.D.
// ProfileASILD refuses heap memory unless the asild-allow-heap feature
// (internal/features, WRT_FEATURES env var) has been explicitly
// enabled for local debugging.
func (p Profile) AllowsHeapMemory() bool {
	return p != ProfileASILD || features.AsildAllowHeap()
}

// RecoversPanic reports whether Invoke should recover a panic escaping
// guest dispatch or a host function into a Trap, instead of letting it
// propagate to the caller.
func (p Profile) RecoversPanic() bool { return p == ProfileQM }

// defaultVerification is the profile's Level before any WithVerification
// override or WRT_DEFAULT_VERIFY environment value is applied.
func (p Profile) defaultVerification() verify.Level {
	switch p {
	case ProfileASILD:
		return verify.Full
	case ProfileDevelopment:
		return verify.Sampling(16)
	default:
		return verify.Off
	}
}

// RuntimeConfig controls the construction of a Runtime. The zero value
// is not usable; build one with NewRuntimeConfig and narrow it with the
// WithXxx chain, each of which clones rather than mutates in place --
// exactly a production interpreter's config.go discipline, so a shared base config
// can be safely specialized per call site.
type RuntimeConfig struct {
	profile              Profile
	operandStackCapacity int
	frameStackCapacity   int
	labelStackCapacity   int
	initialFuel          uint64
	verification         verify.Level
	governorThresholds   governor.Thresholds
	governorListener     governor.Listener
	hooks                *intercept.Hooks
	checkpointDir        string
}

const (
	defaultOperandStackCapacity = 1024
	defaultFrameStackCapacity   = 256
	defaultLabelStackCapacity   = 64
)

// NewRuntimeConfig builds a RuntimeConfig for the given profile, with
// fuel/verification/capacity defaults fixed by that profile and
// overridable by the environment variables of spec.md §6
// (WRT_DEFAULT_VERIFY, WRT_FUEL_DEFAULT), mirroring a production interpreter's
// features.EnableFromEnvironment being consulted once at config
// construction rather than per-call.
func NewRuntimeConfig(profile Profile) *RuntimeConfig {
	c := &RuntimeConfig{
		profile:              profile,
		operandStackCapacity: defaultOperandStackCapacity,
		frameStackCapacity:   defaultFrameStackCapacity,
		labelStackCapacity:   defaultLabelStackCapacity,
		initialFuel:          fuelFromEnvironment(),
		verification:         verifyFromEnvironment(profile),
	}
	return c
}

// clone ensures all fields are copied even if nil, matching a production interpreter's
// RuntimeConfig.clone().
func (c *RuntimeConfig) clone() *RuntimeConfig {
	ret := *c
	return &ret
}

// WithOperandStackCapacity bounds the operand stack's element capacity
// (spec.md §4.E); exceeding it at runtime is a recoverable
// ErrCapacityExceeded, never a panic.
func (c *RuntimeConfig) WithOperandStackCapacity(n int) *RuntimeConfig {
	ret := c.clone()
	ret.operandStackCapacity = n
	return ret
}

// WithFrameStackCapacity bounds the call-frame stack's depth.
func (c *RuntimeConfig) WithFrameStackCapacity(n int) *RuntimeConfig {
	ret := c.clone()
	ret.frameStackCapacity = n
	return ret
}

// WithInitialFuel sets the fuel budget a new Engine starts with. Zero
// means "unfueled": NewEngine then starts the engine with
// math.MaxUint64 fuel, so Consume does not run out in practice,
// matching an uninstrumented build. NewRuntimeConfig already applies WRT_FUEL_DEFAULT; this
// overrides it explicitly.
func (c *RuntimeConfig) WithInitialFuel(n uint64) *RuntimeConfig {
	ret := c.clone()
	ret.initialFuel = n
	return ret
}

// WithVerification overrides the profile's default verification Level.
func (c *RuntimeConfig) WithVerification(level verify.Level) *RuntimeConfig {
	ret := c.clone()
	ret.verification = level
	return ret
}

// WithGovernorThresholds configures when the Governor notifies its
// Listener of frame-depth/operand-height high-water marks (§4.J).
func (c *RuntimeConfig) WithGovernorThresholds(t governor.Thresholds) *RuntimeConfig {
	ret := c.clone()
	ret.governorThresholds = t
	return ret
}

// WithGovernorListener installs a Listener for threshold-crossing and
// fuel-exhaustion events. A nil listener is replaced with
// governor.NopListener by the Governor itself.
func (c *RuntimeConfig) WithGovernorListener(l governor.Listener) *RuntimeConfig {
	ret := c.clone()
	ret.governorListener = l
	return ret
}

// WithHooks installs the four-point intercept chain consulted around
// every call crossing the host/guest boundary (§6).
func (c *RuntimeConfig) WithHooks(h *intercept.Hooks) *RuntimeConfig {
	ret := c.clone()
	ret.hooks = h
	return ret
}

// WithCheckpointDir enables checkpoint persistence against a
// FileStore rooted at dir; see Runtime.SaveCheckpoint/LoadCheckpoint.
func (c *RuntimeConfig) WithCheckpointDir(dir string) *RuntimeConfig {
	ret := c.clone()
	ret.checkpointDir = dir
	return ret
}

// Profile returns the profile this config was built for.
func (c *RuntimeConfig) Profile() Profile { return c.profile }

// Verification returns the verification Level this config carries,
// for callers (e.g. moduleimage.Instantiate) that need it before an
// Engine exists to ask.
func (c *RuntimeConfig) Verification() verify.Level { return c.verification }

func fuelFromEnvironment() uint64 {
	v := os.Getenv("WRT_FUEL_DEFAULT")
	if v == "" {
		return 0
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func verifyFromEnvironment(profile Profile) verify.Level {
	v := strings.ToLower(os.Getenv("WRT_DEFAULT_VERIFY"))
	switch v {
	case "off":
		return verify.Off
	case "basic":
		return verify.Basic
	case "sampling":
		return verify.Sampling(16)
	case "full":
		return verify.Full
	case "redundant":
		return verify.Redundant
	default:
		return profile.defaultVerification()
	}
}

// ConfigureBudgetsFromEnvironment scans the process environment for
// WRT_BUDGET_<CRATE>=<bytes> variables (§6) and applies each as a
// one-time Configure call against reg, matching a production interpreter's
// features.EnableFromEnvironment "parse once at startup" shape. A
// malformed or duplicate-configuration entry is skipped rather than
// aborting the scan, since environment hygiene is the embedder's
// responsibility, not a reason to fail every other budget.
func ConfigureBudgetsFromEnvironment(reg *capability.Registry) {
	const prefix = "WRT_BUDGET_"
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(name, prefix) {
			continue
		}
		crateName := strings.ToLower(strings.TrimPrefix(name, prefix))
		bytes, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			continue
		}
		for c := capability.CrateCore; c < capability.CrateId(255); c++ {
			if strings.EqualFold(c.String(), crateName) {
				_ = reg.Configure(c, bytes)
				break
			}
			if c.String() == "unknown" {
				break
			}
		}
	}
}

// Runtime is one embedder's capability registry plus the configuration
// it hands to every Engine it constructs. Unlike a production interpreter's Runtime,
// it does not own compiled code or module instances -- those remain the
// caller's moduleimage.Instance values -- it is purely an Engine
// factory plus optional checkpoint storage, matching spec.md's Runtime
// not appearing as a component at all: it exists only to avoid
// threading RuntimeConfig and a *capability.Registry through every call
// site.
type Runtime struct {
	cfg   *RuntimeConfig
	reg   *capability.Registry
	store checkpoint.Store
}

// NewRuntime constructs a Runtime from cfg (or NewRuntimeConfig(ProfileASILD)
// if cfg is nil) and a fresh capability.Registry with budgets applied
// from the environment (§6).
func NewRuntime(cfg *RuntimeConfig) *Runtime {
	features.EnableFromEnvironment()
	if cfg == nil {
		cfg = NewRuntimeConfig(ProfileASILD)
	}
	reg := capability.NewRegistry()
	ConfigureBudgetsFromEnvironment(reg)

	r := &Runtime{cfg: cfg, reg: reg}
	if cfg.checkpointDir != "" {
		r.store = checkpoint.NewFileStore(cfg.checkpointDir)
	}
	return r
}

// Registry returns the capability registry backing this Runtime's
// memory providers.
func (r *Runtime) Registry() *capability.Registry { return r.reg }

// Config returns the RuntimeConfig this Runtime was built from.
func (r *Runtime) Config() *RuntimeConfig { return r.cfg }

// NewEngine constructs a fresh, Ready Engine from this Runtime's
// configuration. Engines are not safe for concurrent use and are
// cheap to build (spec.md §5: one per invocation), mirroring a production interpreter's
// moduleEngine.newCallEngine() being called fresh per Call.
func (r *Runtime) NewEngine() *engine.Engine {
	fuel := r.cfg.initialFuel
	if fuel == 0 {
		fuel = math.MaxUint64
	}
	gov := governor.New(fuel, r.cfg.governorThresholds, r.cfg.governorListener)
	return engine.New(engine.Config{
		OperandStackCapacity: r.cfg.operandStackCapacity,
		FrameStackCapacity:   r.cfg.frameStackCapacity,
		InitialFuel:          fuel,
		Verification:         r.cfg.verification,
		Hooks:                r.cfg.hooks,
		Governor:             gov,
	})
}

// Invoke runs fn to completion or pause on a fresh Engine built from
// this Runtime's configuration, recovering a panic into Trap-shaped
// information only when Config().Profile().RecoversPanic() -- the
// ProfileASILD/ProfileDevelopment path never installs a recover,
// since a panic escaping guest dispatch there is a bug to fix, not a
// Trap to report.
func (r *Runtime) Invoke(inst *moduleimage.Instance, fn *moduleimage.FunctionCode, args []moduleimage.Value) (eng *engine.Engine, err error) {
	eng = r.NewEngine()
	if r.cfg.profile.RecoversPanic() {
		defer func() {
			if rec := recover(); rec != nil {
				err = werr.NewTrapError(werr.TrapUnreachable)
			}
		}()
	}
	err = eng.Invoke(inst, fn, args)
	return eng, err
}

// SaveCheckpoint captures eng's state against inst and persists it
// under key in this Runtime's checkpoint store. Returns
// werr.ErrProviderUnavailable if no WithCheckpointDir was configured.
func (r *Runtime) SaveCheckpoint(key checkpoint.Key, eng *engine.Engine, inst *moduleimage.Instance) error {
	if r.store == nil {
		return werr.ErrProviderUnavailable
	}
	snap, err := eng.Capture(inst)
	if err != nil {
		return err
	}
	return r.store.Add(key, bytes.NewReader(checkpoint.Encode(snap)))
}

// LoadCheckpoint reads the blob stored under key and restores it into
// eng against inst. Returns werr.ErrProviderUnavailable if no
// WithCheckpointDir was configured, or werr.ErrIndexOutOfRange if key
// is not present in the store.
func (r *Runtime) LoadCheckpoint(key checkpoint.Key, eng *engine.Engine, inst *moduleimage.Instance) error {
	if r.store == nil {
		return werr.ErrProviderUnavailable
	}
	content, ok, err := r.store.Get(key)
	if err != nil {
		return err
	}
	if !ok {
		return werr.ErrIndexOutOfRange
	}
	defer content.Close()
	data, err := io.ReadAll(content)
	if err != nil {
		return err
	}
	state, err := checkpoint.Decode(data)
	if err != nil {
		return err
	}
	return eng.Restore(inst, state)
}

// ExitCode maps an error returned by Invoke (or nil) to the CLI exit
// code convention of spec.md §6: 0 success, 1 trap, 2 link error, 3
// validation error, 4 fuel exhausted.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	switch {
	case werr.Is(err, werr.ErrFuelExhausted):
		return 4
	}
	var we werr.Error
	if !werr.As(err, &we) {
		return 1
	}
	switch we.Kind {
	case werr.KindLink:
		return 2
	case werr.KindValidation:
		return 3
	default:
		return 1
	}
}
