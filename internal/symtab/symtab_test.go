package symtab

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atomc/internal/types"
)

func TestDefineRejectsRedefinitionInSameDomain(t *testing.T) {
	scope := NewGlobalScope()
	require.NoError(t, scope.Define(&Symbol{Name: "x", Kind: VAR}), "first Define")
	assert.Error(t, scope.Define(&Symbol{Name: "x", Kind: VAR}), "redefinition of %q should fail", "x")
}

func TestDefineAllowsShadowingInNestedDomain(t *testing.T) {
	scope := NewGlobalScope()
	require.NoError(t, scope.Define(&Symbol{Name: "x", Kind: VAR}), "global Define")
	scope.Push()
	assert.NoError(t, scope.Define(&Symbol{Name: "x", Kind: VAR}), "shadowing Define in nested domain")
}

func TestFindWalksOuterScopes(t *testing.T) {
	scope := NewGlobalScope()
	outer := &Symbol{Name: "g", Kind: VAR}
	require.NoError(t, scope.Define(outer))
	scope.Push()
	defer scope.Pop()

	got, ok := scope.Find("g")
	assert.True(t, ok, "Find(%q) ok", "g")
	assert.Same(t, outer, got, "Find(%q) should return the outer symbol", "g")

	_, ok = scope.Find("nosuch")
	assert.False(t, ok, "Find of undefined name unexpectedly succeeded")
}

func TestPopOfGlobalDomainPanics(t *testing.T) {
	scope := NewGlobalScope()
	assert.Panics(t, func() { scope.Pop() }, "Pop of the global domain should panic")
}

func TestAddFnParamAndLocalIndexing(t *testing.T) {
	fn := &Symbol{Name: "f", Kind: FN}

	p0 := AddFnParam(fn, "a", types.NewScalar(types.INT))
	p1 := AddFnParam(fn, "b", types.NewScalar(types.INT))
	assert.Equal(t, 0, p0.Index)
	assert.Equal(t, 1, p1.Index)
	assert.Len(t, fn.Params, 2)

	l0 := AddLocal(fn, "x", types.NewScalar(types.INT))
	l1 := AddLocal(fn, "y", types.NewScalar(types.DOUBLE))
	assert.Equal(t, 0, l0.Index)
	assert.Equal(t, 1, l1.Index)
}

// frameLayout bundles a function's accumulated local/param Index values
// plus the running cell total, so a mismatch anywhere in the layout
// shows as a single structural diff rather than several separate
// integer comparisons.
type frameLayout struct {
	Indexes []int
	Total   int
}

// TestAddLocalIndexesByCumulativeCellCount guards the frame-addressing
// fix: a struct-valued local occupies types.CellCount(its type) cells,
// so the next local's Index must skip past all of them rather than
// just incrementing by one symbol position.
func TestAddLocalIndexesByCumulativeCellCount(t *testing.T) {
	point := &Symbol{Name: "Point", Kind: STRUCT}
	AddStructMember(point, "x", types.NewScalar(types.INT))
	AddStructMember(point, "y", types.NewScalar(types.INT))
	pointType := types.NewStruct(point)

	fn := &Symbol{Name: "f", Kind: FN}
	p := AddLocal(fn, "p", pointType)
	a := AddLocal(fn, "a", types.NewArray(types.INT, nil, 3))
	b := AddLocal(fn, "b", types.NewScalar(types.INT))

	got := frameLayout{Indexes: []int{p.Index, a.Index, b.Index}, Total: LocalCellCount(fn)}
	want := frameLayout{Indexes: []int{0, 2, 5}, Total: 6}
	assert.Equal(t, want, got, "locals p (struct Point, 2 cells), a (int[3]), b (int)")
}

func TestAddFnParamIndexesByCumulativeCellCount(t *testing.T) {
	point := &Symbol{Name: "Point", Kind: STRUCT}
	AddStructMember(point, "x", types.NewScalar(types.INT))
	AddStructMember(point, "y", types.NewScalar(types.INT))
	pointType := types.NewStruct(point)

	fn := &Symbol{Name: "f", Kind: FN}
	p := AddFnParam(fn, "p", pointType)
	n := AddFnParam(fn, "n", types.NewScalar(types.INT))

	got := frameLayout{Indexes: []int{p.Index, n.Index}, Total: ParamCellCount(fn)}
	want := frameLayout{Indexes: []int{0, 2}, Total: 3}
	assert.Equal(t, want, got, "params p (struct Point, 2 cells), n (int)")
}

func TestAddStructMemberOffsetsByByteSize(t *testing.T) {
	s := &Symbol{Name: "Point", Kind: STRUCT}
	mx := AddStructMember(s, "x", types.NewScalar(types.INT))
	my := AddStructMember(s, "y", types.NewScalar(types.DOUBLE))

	assert.Equal(t, 0, mx.Index, "x offset")
	assert.Equal(t, 4, my.Index, "y offset (after a 4-byte int)")
}

func TestDupProducesIndependentCopy(t *testing.T) {
	fn := &Symbol{Name: "f", Kind: FN}
	orig := AddLocal(fn, "x", types.NewScalar(types.INT))
	dup := orig.Dup()

	assert.NotSame(t, orig, dup, "Dup should return a distinct pointer")
	assert.Equal(t, orig.Name, dup.Name)
	assert.Equal(t, orig.Index, dup.Index)
	assert.Equal(t, orig.Owner, dup.Owner)
}

func TestNewGlobalAllocatesCellCountCells(t *testing.T) {
	sym := &Symbol{Name: "g", Kind: VAR, Type: types.NewArray(types.INT, nil, 4)}
	NewGlobal(sym)
	require.NotNil(t, sym.Global, "NewGlobal did not attach a backing store")
	assert.Len(t, sym.Global.Cells, 4)
}

func TestSymbolAsStructRef(t *testing.T) {
	s := &Symbol{Name: "Point", Kind: STRUCT}
	AddStructMember(s, "x", types.NewScalar(types.INT))
	AddStructMember(s, "y", types.NewScalar(types.INT))

	assert.Equal(t, "Point", s.StructName())
	members := s.Members()
	require.Len(t, members, 2)
	assert.Equal(t, "x", members[0].Name)
	assert.Equal(t, "y", members[1].Name)
}
