// Package codegen is the thin layer between the parser's semantic
// actions and the instruction list: it tracks where an expression's
// value lives (Addr), turns addresses into loaded values (AddRVal),
// inserts implicit conversions (InsertConvIfNeeded), and emits the
// load/store instruction appropriate to a variable's storage class.
package codegen

import (
	"atomc/internal/symtab"
	"atomc/internal/types"
	"atomc/internal/vm"
)

// Addr is the concrete address representation an lvalue-producing
// parse action attaches to its Ret: enough information to later emit
// either a load (AddRVal) or a store (EmitStore), for whichever
// storage class the lvalue resolves to. It never reaches AtomC syntax
// itself - only parser/codegen internals see it - so it does not
// reintroduce the pointer-arithmetic the language's Non-goals exclude.
type Addr struct {
	// Global is non-nil for a global variable or global array/struct
	// element; nil means frame-relative (local or parameter).
	Global *symtab.Global

	// Base is the compile-time-constant cell index: a frame-relative
	// FP[idx] index for locals/params (already folded with any
	// constant struct-member offset), or a cell offset into Global's
	// backing store.
	Base int64

	// Runtime is true when a postfix '[' expr ']' has already emitted
	// code that leaves an additional cell offset on the operand stack,
	// to be consumed by the X-suffixed (indexed) load/store opcode
	// rather than the plain one.
	Runtime bool
}

// Ret is the bottom-up result of typing an expression, per the data
// model: lval is true iff the expression designates a storable
// location; ct is true when the expression has no runtime address.
// Addr is populated iff Lval is true.
type Ret struct {
	Type types.Type
	Lval bool
	CT   bool
	Addr Addr
}

// NonLval builds the common case: a non-lvalue, compile-time-only
// result of the given type (operator results, literals, calls).
func NonLval(t types.Type) Ret {
	return Ret{Type: t, Lval: false, CT: true}
}

// LocalAddr builds an lvalue Ret addressing a frame-relative cell
// (local or parameter), accounting for any array/struct runtime offset
// already pushed by the postfix rule.
func LocalAddr(t types.Type, base int64, runtime bool) Ret {
	return Ret{Type: t, Lval: true, CT: false, Addr: Addr{Base: base, Runtime: runtime}}
}

// GlobalAddr builds an lvalue Ret addressing a global's backing store.
func GlobalAddr(t types.Type, g *symtab.Global, base int64, runtime bool) Ret {
	return Ret{Type: t, Lval: true, CT: false, Addr: Addr{Global: g, Base: base, Runtime: runtime}}
}

// AddRVal emits the load opcode(s) appropriate to r's address, if r is
// an lvalue, turning a pushed/implied address into a loaded value on
// top of the operand stack. Non-lvalue Rets (already a value) are left
// untouched - this is the single place the lvalue/rvalue distinction
// collapses back into "a value is on the stack".
//
// A multi-cell compile-time-constant address (a whole struct local,
// global, or parameter, as opposed to one scalar member of it) loads
// each cell in ascending offset order, so the struct's last member
// ends up on top - the matching order EmitStore's block-store case
// expects. A multi-cell value behind a Runtime (array-indexed) address
// loads only its first cell, since no opcode here can re-derive a
// consumed runtime offset for a second, third, ... cell; the parser
// rejects that case for assignment, return, and call arguments before
// they reach codegen.
func AddRVal(prog *vm.Program, r Ret) {
	if !r.Lval {
		return
	}
	a := r.Addr
	n := CellSpan(r.Type)
	switch {
	case a.Global != nil && a.Runtime:
		prog.Emit(vm.GLOADX).SetGlobal(a.Global).SetInt(a.Base)
	case a.Global != nil && n > 1:
		for k := 0; k < n; k++ {
			prog.Emit(vm.GLOAD).SetGlobal(a.Global).SetInt(a.Base + int64(k))
		}
	case a.Global != nil:
		prog.Emit(vm.GLOAD).SetGlobal(a.Global).SetInt(a.Base)
	case a.Runtime:
		prog.Emit(vm.FPLOADX).SetInt(a.Base)
	case n > 1:
		for k := 0; k < n; k++ {
			prog.Emit(vm.FPLOAD).SetInt(a.Base + int64(k))
		}
	default:
		prog.Emit(vm.FPLOAD).SetInt(a.Base)
	}
}

// CellSpan is types.CellCount restricted to the scalar (non-array)
// shape AddRVal/EmitStore's block-copy branches care about: an array
// Ret is never copied whole (see internal/parser's ct=true guard for
// arrays), so only a struct's own member count can make this exceed 1.
func CellSpan(t types.Type) int {
	if t.N != types.Scalar {
		return 1
	}
	return types.CellCount(t)
}

// EmitStore emits the store opcode(s) appropriate to r's address: it
// consumes the value that must already be on top of the operand stack
// (and, for a Runtime address, the runtime offset pushed below it by
// the postfix rule before the assigned value was evaluated), and
// leaves that value on the stack as the assignment expression's own
// result. For a compile-time-constant address this is done by a DUP
// ahead of the plain store, per the opcode set's intended use of DUP;
// the runtime-offset store opcodes re-push the value themselves, since
// DUP only reaches the top of stack and can't duplicate a cell sitting
// under the pending offset.
//
// A whole struct assigned by value (n = CellSpan(r.Type) > 1) arrives
// with its members already on the stack in ascending-offset order (see
// AddRVal), so the last member is on top; this pops and stores them
// from the last cell down to the first, then reloads the whole value
// with AddRVal so assignment-as-expression chaining still sees it on
// top of the stack afterward. As with AddRVal, this never runs against
// a Runtime address - the parser rejects a multi-cell value behind one
// before codegen is asked to store it.
func EmitStore(prog *vm.Program, r Ret) {
	a := r.Addr
	n := CellSpan(r.Type)
	switch {
	case a.Global != nil && a.Runtime:
		prog.Emit(vm.GSTOREX).SetGlobal(a.Global).SetInt(a.Base)
	case a.Global != nil && n > 1:
		for k := n - 1; k >= 0; k-- {
			prog.Emit(vm.GSTORE).SetGlobal(a.Global).SetInt(a.Base + int64(k))
		}
		AddRVal(prog, r)
	case a.Global != nil:
		prog.Emit(vm.DUP)
		prog.Emit(vm.GSTORE).SetGlobal(a.Global).SetInt(a.Base)
	case a.Runtime:
		prog.Emit(vm.FPSTOREX).SetInt(a.Base)
	case n > 1:
		for k := n - 1; k >= 0; k-- {
			prog.Emit(vm.FPSTORE).SetInt(a.Base + int64(k))
		}
		AddRVal(prog, r)
	default:
		prog.Emit(vm.DUP)
		prog.Emit(vm.FPSTORE).SetInt(a.Base)
	}
}

// InsertConvIfNeeded inserts a CONV_I_F right after `after` when src
// and dst differ but types.ConvTo(src, dst) holds and the conversion
// is int-to-double (the only conversion this ISA has an opcode for;
// double-to-int and char-width narrowing never occur because
// arithTypeTo always promotes upward and assignments only narrow
// between types that already share representation as a Cell.I). It
// returns the instruction callers should keep back-patching from.
func InsertConvIfNeeded(prog *vm.Program, after *vm.Instruction, src, dst types.Type) *vm.Instruction {
	if src.Base == dst.Base {
		return after
	}
	if !types.ConvTo(src, dst) {
		return after
	}
	if dst.Base == types.DOUBLE && (src.Base == types.INT || src.Base == types.CHAR) {
		return prog.InsertAfter(after, vm.CONV_I_F)
	}
	return after
}

// EmitConvIfNeeded is InsertConvIfNeeded's append-at-tail counterpart,
// used by the (more common) call sites where the conversion belongs
// immediately after whatever was just emitted rather than spliced
// after an earlier, already-referenced instruction.
func EmitConvIfNeeded(prog *vm.Program, src, dst types.Type) {
	if src.Base == dst.Base {
		return
	}
	if dst.Base == types.DOUBLE && (src.Base == types.INT || src.Base == types.CHAR) {
		prog.Emit(vm.CONV_I_F)
	}
}

// ElementCellSize returns the VM-cell width of one element of array
// type t, used to scale a runtime subscript expression into a cell
// offset before it is pushed for an X-suffixed load/store.
func ElementCellSize(t types.Type) int {
	elem := t
	elem.N = types.Scalar
	return types.CellCount(elem)
}

// FoldOffset assumes a new cell-offset value has just been pushed onto
// the operand stack (from an array subscript or a constant struct
// member offset); it merges it into addr, summing with any offset
// already pending from an earlier step in the same postfix chain
// (e.g. the array part of `arr[i].field`), and marks addr runtime.
func FoldOffset(prog *vm.Program, addr *Addr) {
	if addr.Runtime {
		prog.Emit(vm.ADD_I)
	}
	addr.Runtime = true
}

// MemberOffset finds name among structSym's members and returns it
// along with its cell offset within the struct's layout (the sum of
// the cell counts of the members declared before it) - the codegen
// analog of Symbol.Index, which instead holds the byte offset the
// symbol-table pretty-printer shows.
func MemberOffset(structSym *symtab.Symbol, name string) (member *symtab.Symbol, cellOffset int, ok bool) {
	offset := 0
	for _, m := range structSym.StructMembers {
		if m.Name == name {
			return m, offset, true
		}
		offset += types.CellCount(m.Type)
	}
	return nil, 0, false
}
