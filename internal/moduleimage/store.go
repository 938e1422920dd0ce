package moduleimage

import (
	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/linearmemory"
	"github.com/avrabe/wrt/internal/memprovider"
	"github.com/avrabe/wrt/internal/safeslice"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
)

// Linker resolves a ModuleImage's Imports to concrete host functions by
// "module.name", the same two-level namespace a production interpreter's import
// resolution uses. A zero Linker resolves nothing; every ImportFunc
// entry will fail with werr.ErrMissingImport.
type Linker struct {
	hosts map[string]HostFunction
}

// NewLinker constructs an empty Linker.
func NewLinker() *Linker {
	return &Linker{hosts: make(map[string]HostFunction)}
}

// Define registers fn as the host function satisfying the
// module/name import.
func (l *Linker) Define(module, name string, fn HostFunction) {
	l.hosts[importKey(module, name)] = fn
}

func (l *Linker) resolve(module, name string) (HostFunction, bool) {
	if l == nil {
		return HostFunction{}, false
	}
	fn, ok := l.hosts[importKey(module, name)]
	return fn, ok
}

func importKey(module, name string) string { return module + "." + name }

// Validate re-checks that every index a function body addresses --
// call/call_indirect targets, branch drop-ranges, global/memory/table
// references -- resolves within img, plus that StartFunc (if any) names
// a function. This is a cheap defense-in-depth pass over data an
// external decoder has already structurally validated (spec.md §4.G);
// nothing here re-parses or re-type-checks instruction bodies.
func Validate(img *ModuleImage) error {
	if img.StartFunc >= len(img.Funcs) {
		return werr.ErrIndexOutOfRange
	}
	numMemories := len(img.Memories)
	numTables := len(img.Tables)
	numGlobals := len(img.Globals)
	numFuncs := len(img.Funcs)
	numTypes := len(img.Types)

	for fi := range img.Funcs {
		fn := &img.Funcs[fi]
		if fn.TypeIndex >= 0 && fn.TypeIndex >= numTypes {
			return werr.ErrIndexOutOfRange
		}
		for _, op := range fn.Body {
			if err := validateOp(op, numFuncs, numTypes, numMemories, numTables, numGlobals); err != nil {
				return err
			}
		}
	}
	for _, es := range img.Elements {
		if es.TableIndex < 0 || es.TableIndex >= numTables {
			return werr.ErrIndexOutOfRange
		}
		for _, fi := range es.FuncIndices {
			if fi < 0 || fi >= numFuncs {
				return werr.ErrIndexOutOfRange
			}
		}
	}
	for _, ds := range img.Data {
		if ds.MemoryIndex < 0 || ds.MemoryIndex >= numMemories {
			return werr.ErrIndexOutOfRange
		}
	}
	for _, exp := range img.Exports {
		if err := validateExport(exp, numFuncs, numMemories, numTables, numGlobals); err != nil {
			return err
		}
	}
	return nil
}

func validateOp(op Op, numFuncs, numTypes, numMemories, numTables, numGlobals int) error {
	switch op.Kind {
	case OpKindCall:
		if len(op.Us) < 1 || int(op.Us[0]) >= numFuncs {
			return werr.ErrIndexOutOfRange
		}
	case OpKindCallIndirect:
		if len(op.Us) < 2 || int(op.Us[0]) >= numTypes || int(op.Us[1]) >= numTables {
			return werr.ErrIndexOutOfRange
		}
	case OpKindGlobalGet, OpKindGlobalSet:
		if len(op.Us) < 1 || int(op.Us[0]) >= numGlobals {
			return werr.ErrIndexOutOfRange
		}
	case OpKindMemorySize, OpKindMemoryGrow, OpKindLoad, OpKindStore:
		if numMemories == 0 {
			return werr.ErrIndexOutOfRange
		}
	case OpKindTableGet, OpKindTableSet:
		if len(op.Us) < 1 || int(op.Us[0]) >= numTables {
			return werr.ErrIndexOutOfRange
		}
	case OpKindBr, OpKindBrIf:
		for _, r := range op.Rs {
			if r.Start > r.End {
				return werr.ErrMalformedModule
			}
		}
	case OpKindBrTable:
		for _, r := range op.Rs {
			if r.Start > r.End {
				return werr.ErrMalformedModule
			}
		}
	}
	return nil
}

func validateExport(exp Export, numFuncs, numMemories, numTables, numGlobals int) error {
	var bound int
	switch exp.Kind {
	case ImportFunc:
		bound = numFuncs
	case ImportMemory:
		bound = numMemories
	case ImportTable:
		bound = numTables
	case ImportGlobal:
		bound = numGlobals
	default:
		return werr.ErrMalformedModule
	}
	if exp.Index < 0 || exp.Index >= bound {
		return werr.ErrIndexOutOfRange
	}
	return nil
}

// Instantiate validates img, resolves its imports through linker,
// allocates its memories/tables/globals against reg's budgets (under
// capability.CrateMemory), and applies its element/data segments,
// returning a ready-to-run Instance. It does not run img's start
// function -- a caller invokes that itself via the engine, same as any
// other exported function, once Instantiate returns successfully.
//
// allowHeap selects the memory provider backing each declared memory:
// true uses memprovider.HeapProvider (memory.grow reallocates), false
// uses memprovider.StaticArena sized to the declared minimum, whose
// Grow always fails -- the no-heap-growth-path guarantee of spec.md
// §4.D's ASIL-D profile. A module declaring Max > Min under
// allowHeap=false simply cannot grow at runtime; that is the intended
// behavior, not a bug: a statically-allocated instance has no path to
// acquire more memory later.
//
// level is the verification policy each global's backing SafeSlice view
// is built with (see Global.Read/Set); it does not affect memories or
// tables, which a caller verifies explicitly (internal/engine's
// checkpoint capture) or not at all.
func Instantiate(reg *capability.Registry, img *ModuleImage, linker *Linker, allowHeap bool, level verify.Level) (*Instance, error) {
	if err := Validate(img); err != nil {
		return nil, err
	}

	funcs := make([]FunctionCode, len(img.Funcs))
	copy(funcs, img.Funcs)

	importedFuncs := 0
	for _, imp := range img.Imports {
		if imp.Kind != ImportFunc {
			continue
		}
		if importedFuncs >= len(funcs) {
			return nil, werr.ErrMalformedModule
		}
		fn := &funcs[importedFuncs]
		if !fn.IsHost() && fn.Body == nil {
			host, ok := linker.resolve(imp.Module, imp.Name)
			if !ok {
				return nil, werr.ErrMissingImport
			}
			host.Name = imp.Module + "." + imp.Name
			fn.HostFn = &host
			fn.Name = host.Name
		}
		importedFuncs++
	}

	memories := make([]*linearmemory.Memory, len(img.Memories))
	for i, spec := range img.Memories {
		size := uint64(spec.Min) * uint64(linearmemory.PageSize)
		var (
			provider memprovider.Provider
			err      error
		)
		if allowHeap {
			provider, err = memprovider.NewHeapProvider(reg, capability.CrateMemory, size)
		} else {
			provider, err = memprovider.NewStaticArena(reg, capability.CrateMemory, size)
		}
		if err != nil {
			return nil, err
		}
		memories[i] = linearmemory.New(provider, spec.Min, spec.Max)
	}

	tables := make([]*Table, len(img.Tables))
	for i, spec := range img.Tables {
		tok, err := reg.Acquire(capability.CrateMemory, uint64(spec.Min)*valueSize)
		if err != nil {
			return nil, err
		}
		tables[i] = &Table{ElemType: spec.ElemType, Elements: make([]Value, spec.Min), tok: tok}
	}

	harness := verify.NewHarness()
	globals := make([]*Global, len(img.Globals))
	for i, spec := range img.Globals {
		provider, err := memprovider.NewStaticArena(reg, capability.CrateMemory, valueSize)
		if err != nil {
			return nil, err
		}
		if err := provider.Write(0, encodeValue(spec.Init)); err != nil {
			return nil, err
		}
		view, err := safeslice.New(provider, 0, valueSize, level, harness)
		if err != nil {
			return nil, err
		}
		globals[i] = &Global{Type: spec.Type, Mutable: spec.Mutable, Value: spec.Init, provider: provider, view: view}
	}

	for _, es := range img.Elements {
		table := tables[es.TableIndex]
		for i, fi := range es.FuncIndices {
			idx := int(es.Offset) + i
			if idx < 0 || idx >= len(table.Elements) {
				return nil, werr.ErrIndexOutOfRange
			}
			table.Elements[idx] = FuncRef(uint32(fi))
		}
	}
	for _, ds := range img.Data {
		if err := memories[ds.MemoryIndex].Write(ds.Offset, ds.Bytes); err != nil {
			return nil, err
		}
	}

	return &Instance{
		Image:     img,
		Functions: funcs,
		Memories:  memories,
		Tables:    tables,
		Globals:   globals,
	}, nil
}
