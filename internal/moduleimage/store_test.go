package moduleimage

import (
	"testing"

	"github.com/avrabe/wrt/api"
	"github.com/avrabe/wrt/internal/capability"
	"github.com/avrabe/wrt/internal/linearmemory"
	"github.com/avrabe/wrt/internal/verify"
	"github.com/avrabe/wrt/internal/werr"
	"github.com/stretchr/testify/require"
)

// testRegistry builds a Registry with enough CrateMemory budget for
// simpleImage's memory, table and global allocations plus a little
// headroom for a test that grows memory or resizes a table.
func testRegistry(t *testing.T) *capability.Registry {
	t.Helper()
	r := capability.NewRegistry()
	require.NoError(t, r.Configure(capability.CrateMemory, 4*uint64(linearmemory.PageSize)+1024))
	return r
}

func simpleImage() *ModuleImage {
	return &ModuleImage{
		Types:     []FuncType{{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI32}}},
		Funcs:     []FunctionCode{{TypeIndex: 0, ParamTypes: []api.ValueType{api.ValueTypeI32}, ResultTypes: []api.ValueType{api.ValueTypeI32}, Body: []Op{{Kind: OpKindLocalGet, Us: []uint64{0}}}}},
		Memories:  []MemorySpec{{Min: 1, Max: 2}},
		Tables:    []TableSpec{{ElemType: api.ValueTypeFuncref, Min: 1}},
		Globals:   []GlobalSpec{{Type: api.ValueTypeI32, Mutable: false, Init: I32(7)}},
		StartFunc: -1,
	}
}

func TestValidateCatchesOutOfRangeCallTarget(t *testing.T) {
	img := simpleImage()
	img.Funcs[0].Body = []Op{{Kind: OpKindCall, Us: []uint64{5}}}
	require.ErrorIs(t, Validate(img), werr.ErrIndexOutOfRange)
}

func TestValidateCatchesBadStartFunc(t *testing.T) {
	img := simpleImage()
	img.StartFunc = 3
	require.ErrorIs(t, Validate(img), werr.ErrIndexOutOfRange)
}

func TestValidateCatchesBadElementSegment(t *testing.T) {
	img := simpleImage()
	img.Elements = []ElementSegment{{TableIndex: 0, FuncIndices: []int{99}}}
	require.ErrorIs(t, Validate(img), werr.ErrIndexOutOfRange)
}

func TestValidateAcceptsWellFormedImage(t *testing.T) {
	require.NoError(t, Validate(simpleImage()))
}

func TestInstantiateAllocatesMemoriesTablesGlobals(t *testing.T) {
	reg := testRegistry(t)
	inst, err := Instantiate(reg, simpleImage(), NewLinker(), true, verify.Off)
	require.NoError(t, err)
	require.Len(t, inst.Memories, 1)
	require.Len(t, inst.Tables, 1)
	require.Len(t, inst.Globals, 1)
	require.Equal(t, I32(7), inst.Globals[0].Value)
}

func TestInstantiateAppliesElementAndDataSegments(t *testing.T) {
	img := simpleImage()
	img.Funcs = append(img.Funcs, FunctionCode{Name: "target"})
	img.Elements = []ElementSegment{{TableIndex: 0, Offset: 0, FuncIndices: []int{1}}}
	img.Data = []DataSegment{{MemoryIndex: 0, Offset: 0, Bytes: []byte{1, 2, 3, 4}}}

	reg := testRegistry(t)
	inst, err := Instantiate(reg, img, NewLinker(), true, verify.Off)
	require.NoError(t, err)
	require.Equal(t, FuncRef(1), inst.Tables[0].Elements[0])

	got, err := inst.Memories[0].Read(0, 4)
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3, 4}, got)
}

func TestInstantiateFailsOnMissingImport(t *testing.T) {
	img := simpleImage()
	img.Imports = []Import{{Module: "env", Name: "missing", Kind: ImportFunc}}
	img.Funcs = append([]FunctionCode{{Name: "env.missing"}}, img.Funcs...)

	reg := testRegistry(t)
	_, err := Instantiate(reg, img, NewLinker(), true, verify.Off)
	require.ErrorIs(t, err, werr.ErrMissingImport)
}

func TestInstantiateResolvesImportThroughLinker(t *testing.T) {
	img := simpleImage()
	img.Imports = []Import{{Module: "env", Name: "double", Kind: ImportFunc}}
	img.Funcs = append([]FunctionCode{{}}, img.Funcs...)

	linker := NewLinker()
	called := false
	linker.Define("env", "double", HostFunction{Call: func(inst *Instance, args []Value) ([]Value, error) {
		called = true
		return args, nil
	}})

	reg := testRegistry(t)
	inst, err := Instantiate(reg, img, linker, true, verify.Off)
	require.NoError(t, err)
	require.True(t, inst.Functions[0].IsHost())
	require.Equal(t, "env.double", inst.Functions[0].Name)

	_, _ = inst.Functions[0].HostFn.Call(inst, nil)
	require.True(t, called)
}

func TestInstantiateStaticArenaRefusesGrowth(t *testing.T) {
	img := simpleImage()
	img.Memories = []MemorySpec{{Min: 1, Max: 4}}

	reg := testRegistry(t)
	inst, err := Instantiate(reg, img, NewLinker(), false, verify.Off)
	require.NoError(t, err)
	require.Equal(t, uint32(1), inst.Memories[0].Pages())

	_, ok := inst.Memories[0].Grow(1)
	require.False(t, ok)
	require.Equal(t, uint32(1), inst.Memories[0].Pages())
}

func TestInstantiateAccountsTableAndGlobalBytesAgainstRegistry(t *testing.T) {
	reg := testRegistry(t)
	inst, err := Instantiate(reg, simpleImage(), NewLinker(), true, verify.Off)
	require.NoError(t, err)

	before := reg.Snapshot(capability.CrateMemory).InUse
	require.Greater(t, before, uint64(0))

	inst.Close(reg)
	require.Equal(t, uint64(0), reg.Snapshot(capability.CrateMemory).InUse)
	require.Empty(t, reg.Leaked())
}

func TestGlobalSetKeepsViewChecksumInSync(t *testing.T) {
	reg := testRegistry(t)
	inst, err := Instantiate(reg, simpleImage(), NewLinker(), true, verify.Full)
	require.NoError(t, err)

	require.NoError(t, inst.Globals[0].Set(0, I32(99)))
	v, err := inst.Globals[0].Read(0)
	require.NoError(t, err)
	require.Equal(t, I32(99), v)
}

func TestGlobalReadDetectsTamperedProvider(t *testing.T) {
	reg := testRegistry(t)
	inst, err := Instantiate(reg, simpleImage(), NewLinker(), true, verify.Full)
	require.NoError(t, err)

	g := inst.Globals[0]
	raw, err := g.provider.Read(0, valueSize)
	require.NoError(t, err)
	tampered := append([]byte(nil), raw...)
	tampered[0] ^= 0xFF
	require.NoError(t, g.provider.Write(0, tampered))

	_, err = g.Read(0)
	require.ErrorIs(t, err, werr.ErrIntegrityFailure)
}

func TestFuncTypeEqual(t *testing.T) {
	a := FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI64}}
	b := FuncType{Params: []api.ValueType{api.ValueTypeI32}, Results: []api.ValueType{api.ValueTypeI64}}
	c := FuncType{Params: []api.ValueType{api.ValueTypeI64}, Results: []api.ValueType{api.ValueTypeI64}}
	require.True(t, a.Equal(b))
	require.False(t, a.Equal(c))
}
