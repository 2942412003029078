package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeStruct struct {
	name    string
	members []Member
}

func (f *fakeStruct) StructName() string { return f.name }
func (f *fakeStruct) Members() []Member  { return f.members }

func TestCanBeScalar(t *testing.T) {
	tests := []struct {
		name string
		t    Type
		want bool
	}{
		{"scalar int", NewScalar(INT), true},
		{"scalar void", NewScalar(VOID), false},
		{"sized array", NewArray(INT, nil, 3), false},
		{"unsized array", NewArray(INT, nil, Unsized), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanBeScalar(tt.t), "%s: CanBeScalar(%s)", tt.name, tt.t)
	}
}

func TestConvToScalars(t *testing.T) {
	tests := []struct {
		src, dst Type
		want     bool
	}{
		{NewScalar(CHAR), NewScalar(INT), true},
		{NewScalar(INT), NewScalar(DOUBLE), true},
		{NewScalar(DOUBLE), NewScalar(INT), true}, // narrowing is allowed by this relation
		{NewScalar(INT), NewScalar(VOID), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConvTo(tt.src, tt.dst), "ConvTo(%s, %s)", tt.src, tt.dst)
	}
}

func TestConvToStructsRequireSameRef(t *testing.T) {
	a := &fakeStruct{name: "A"}
	b := &fakeStruct{name: "B"}

	assert.True(t, ConvTo(NewStruct(a), NewStruct(a)), "ConvTo(struct A, struct A)")
	assert.False(t, ConvTo(NewStruct(a), NewStruct(b)), "ConvTo(struct A, struct B)")
}

func TestConvToArrays(t *testing.T) {
	tests := []struct {
		name     string
		src, dst Type
		want     bool
	}{
		{"same size", NewArray(INT, nil, 3), NewArray(INT, nil, 3), true},
		{"different size", NewArray(INT, nil, 3), NewArray(INT, nil, 4), false},
		{"sized to unsized", NewArray(INT, nil, 3), NewArray(INT, nil, Unsized), true},
		{"unsized to sized", NewArray(INT, nil, Unsized), NewArray(INT, nil, 3), false},
		{"different base", NewArray(INT, nil, 3), NewArray(CHAR, nil, 3), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ConvTo(tt.src, tt.dst), tt.name)
	}
}

// arithResult bundles ArithTypeTo's two return values so a mismatch on
// either reads as a single structural diff instead of two separate
// manual comparisons.
type arithResult struct {
	Base Base
	OK   bool
}

func TestArithTypeTo(t *testing.T) {
	tests := []struct {
		a, b Type
		want arithResult
	}{
		{NewScalar(CHAR), NewScalar(INT), arithResult{INT, true}},
		{NewScalar(INT), NewScalar(DOUBLE), arithResult{DOUBLE, true}},
		{NewScalar(DOUBLE), NewScalar(CHAR), arithResult{DOUBLE, true}},
		{NewScalar(INT), NewStruct(nil), arithResult{Base(0), false}},
	}
	for _, tt := range tests {
		got, ok := ArithTypeTo(tt.a, tt.b)
		gotBase := got.Base
		if !ok {
			gotBase = Base(0)
		}
		assert.Equal(t, tt.want, arithResult{gotBase, ok}, "ArithTypeTo(%s, %s)", tt.a, tt.b)
	}
}

func TestTypeSizeAndCellCount(t *testing.T) {
	s := &fakeStruct{name: "Point", members: []Member{
		{Name: "x", Type: NewScalar(INT)},
		{Name: "y", Type: NewScalar(INT)},
	}}

	assert.Equal(t, 4, TypeSize(NewScalar(INT)), "TypeSize(int)")
	assert.Equal(t, 8, TypeSize(NewScalar(DOUBLE)), "TypeSize(double)")
	assert.Equal(t, 20, TypeSize(NewArray(INT, nil, 5)), "TypeSize(int[5])")
	assert.Equal(t, 8, TypeSize(NewStruct(s)), "TypeSize(struct Point)")

	assert.Equal(t, 1, CellCount(NewScalar(INT)), "CellCount(int)")
	assert.Equal(t, 2, CellCount(NewStruct(s)), "CellCount(struct Point)")
	assert.Equal(t, 1, CellCount(NewArray(INT, nil, Unsized)), "CellCount(int[])")
	assert.Equal(t, 5, CellCount(NewArray(INT, nil, 5)), "CellCount(int[5])")
}

func TestTypeString(t *testing.T) {
	s := &fakeStruct{name: "Point"}
	tests := []struct {
		t    Type
		want string
	}{
		{NewScalar(INT), "int"},
		{NewArray(INT, nil, Unsized), "int[]"},
		{NewArray(CHAR, nil, 10), "char[10]"},
		{NewStruct(s), "struct Point"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.t.String())
	}
}
