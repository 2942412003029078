// Package types implements the AtomC type triple and the predicates and
// combinators the parser's semantic actions and the code emitter drive
// off it: scalar-ness, implicit convertibility, arithmetic unification,
// and the two independent size accountings (bytes vs. VM cells).
package types

import "fmt"

// Base is the scalar/struct/void discriminator of a Type.
type Base int

const (
	INT Base = iota
	DOUBLE
	CHAR
	VOID
	STRUCT
)

func (b Base) String() string {
	switch b {
	case INT:
		return "int"
	case DOUBLE:
		return "double"
	case CHAR:
		return "char"
	case VOID:
		return "void"
	case STRUCT:
		return "struct"
	default:
		return fmt.Sprintf("Base(%d)", int(b))
	}
}

// StructRef is the minimal view of a struct symbol a Type needs: its
// name and ordered member list, enough to size and print it without
// internal/types importing internal/symtab (which imports internal/types
// for its own Symbol.Type field).
type StructRef interface {
	StructName() string
	Members() []Member
}

// Member is one field of a struct, as needed for size/offset accounting.
type Member struct {
	Name string
	Type Type
}

// Type is the (base, structRef, n) triple from the data model: n = -1
// is scalar, n = 0 is an unsized array (decayed parameter or string
// literal), n > 0 is a fixed-size array.
type Type struct {
	Base      Base
	StructRef StructRef
	N         int
}

const (
	Scalar   = -1
	Unsized  = 0
)

// NewScalar builds a scalar type of the given base.
func NewScalar(b Base) Type { return Type{Base: b, N: Scalar} }

// NewStruct builds a scalar struct type referencing s.
func NewStruct(s StructRef) Type { return Type{Base: STRUCT, StructRef: s, N: Scalar} }

// NewArray builds an array type of n elements (0 for unsized) over base b.
func NewArray(b Base, s StructRef, n int) Type { return Type{Base: b, StructRef: s, N: n} }

// IsArray reports whether t has array shape (decayed or sized).
func (t Type) IsArray() bool { return t.N >= 0 }

// IsNumericScalar reports whether t is a scalar INT/DOUBLE/CHAR.
func (t Type) IsNumericScalar() bool {
	return t.N == Scalar && (t.Base == INT || t.Base == DOUBLE || t.Base == CHAR)
}

// CanBeScalar implements the data model's canBeScalar(ret): true iff the
// type is not VOID and not array-shaped.
func CanBeScalar(t Type) bool {
	return t.Base != VOID && t.N < 0
}

// String renders a C-like declaration-order type name, used by the
// symbol-table pretty-printer.
func (t Type) String() string {
	var base string
	if t.Base == STRUCT && t.StructRef != nil {
		base = "struct " + t.StructRef.StructName()
	} else {
		base = t.Base.String()
	}
	switch {
	case t.N == Scalar:
		return base
	case t.N == Unsized:
		return base + "[]"
	default:
		return fmt.Sprintf("%s[%d]", base, t.N)
	}
}

// baseSize returns the native width, in bytes, of a scalar base.
// VOID has no storage.
func baseSize(b Base) int {
	switch b {
	case INT:
		return 4
	case DOUBLE:
		return 8
	case CHAR:
		return 1
	default:
		return 0
	}
}

// TypeSize implements the data model's byte-oriented size rule, used by
// the human-readable symbol-table dump (member offsets, global storage
// sizes). It is distinct from CellCount, which counts VM stack cells.
func TypeSize(t Type) int {
	switch {
	case t.N == Unsized:
		// decayed array / string literal: one pointer width.
		return 8
	case t.N > 0:
		return t.N * elementByteSize(t)
	default:
		if t.Base == STRUCT {
			return structByteSize(t.StructRef)
		}
		return baseSize(t.Base)
	}
}

func elementByteSize(t Type) int {
	if t.Base == STRUCT {
		return structByteSize(t.StructRef)
	}
	return baseSize(t.Base)
}

func structByteSize(s StructRef) int {
	if s == nil {
		return 0
	}
	total := 0
	for _, m := range s.Members() {
		total += TypeSize(m.Type)
	}
	return total
}

// CellCount is a code-generation concern, separate from TypeSize: every
// scalar occupies exactly one VM operand-stack cell regardless of its
// base's byte width, because the VM cell is a tagged union sized for
// the largest case. A struct is the sum of its members' cell counts, a
// sized array is n times its element's cell count, and an unsized array
// (decayed parameter, string literal) is a single cell holding the
// decayed address.
func CellCount(t Type) int {
	switch {
	case t.N == Unsized:
		return 1
	case t.N > 0:
		return t.N * elementCellCount(t)
	default:
		if t.Base == STRUCT {
			return structCellCount(t.StructRef)
		}
		return 1
	}
}

func elementCellCount(t Type) int {
	if t.Base == STRUCT {
		return structCellCount(t.StructRef)
	}
	return 1
}

func structCellCount(s StructRef) int {
	if s == nil {
		return 0
	}
	total := 0
	for _, m := range s.Members() {
		total += CellCount(m.Type)
	}
	return total
}

// Cell is the universal storage unit of the VM's operand/frame stack
// and of a global variable's backing store: it holds exactly one
// scalar value per the tagged-union discipline in the data model. Ref
// is only ever populated by the VM itself (a return address pushed by
// CALL), stored as an opaque value here so this package - shared by
// internal/symtab and internal/vm - doesn't need to import either.
type Cell struct {
	I   int64
	F   float64
	Ref any
}

// rank gives the CHAR < INT < DOUBLE promotion order used by ConvTo and
// ArithTypeTo.
func rank(b Base) int {
	switch b {
	case CHAR:
		return 0
	case INT:
		return 1
	case DOUBLE:
		return 2
	default:
		return -1
	}
}

// ConvTo implements the data model's implicit-convertibility relation.
func ConvTo(src, dst Type) bool {
	if src.IsNumericScalar() && dst.IsNumericScalar() {
		return true
	}
	if src.Base == STRUCT && dst.Base == STRUCT && src.N == Scalar && dst.N == Scalar {
		return src.StructRef == dst.StructRef
	}
	if src.IsArray() && dst.IsArray() {
		if src.Base != dst.Base {
			return false
		}
		if src.Base == STRUCT && src.StructRef != dst.StructRef {
			return false
		}
		if dst.N == Unsized {
			return true
		}
		return src.N == dst.N
	}
	return false
}

// ArithTypeTo implements the data model's arithmetic unification: both
// operands must be numeric scalars, and the wider of the two (by the
// CHAR < INT < DOUBLE order) wins. It reports ok=false when either
// operand is not a numeric scalar.
func ArithTypeTo(a, b Type) (out Type, ok bool) {
	if !a.IsNumericScalar() || !b.IsNumericScalar() {
		return Type{}, false
	}
	if rank(a.Base) >= rank(b.Base) {
		return NewScalar(a.Base), true
	}
	return NewScalar(b.Base), true
}
