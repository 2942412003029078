package vm

import (
	"atomc/internal/symtab"
)

// Instruction is a node in the singly linked program the emitter
// builds and the Machine executes. Argument is a discriminated cell:
// exactly one of IntArg, DoubleArg, Global, Extern, or Jump is
// meaningful, selected by Op itself - except that the global-addressing
// opcodes use Global together with IntArg as the cell offset into it.
// The opcode is the tag, so decode paths stay total instead of needing
// a separate union tag field.
type Instruction struct {
	Op Opcode

	IntArg    int64          // PUSH_I, ENTER, RET, RET_VOID, FPLOAD/FPSTORE/FPLOADX/FPSTOREX base index, GLOAD/GSTORE/GLOADX/GSTOREX cell offset
	DoubleArg float64        // PUSH_F
	Global    *symtab.Global // GLOAD, GSTORE, GLOADX, GSTOREX
	Extern    symtab.ExternFn // CALL_EXT
	Jump      *Instruction   // CALL, JMP, JF, JT target

	Next *Instruction
}

// Program owns the instruction list under construction: a head/tail
// pair so Emit is O(1) instead of walking to find the tail each time.
type Program struct {
	head *Instruction
	tail *Instruction
}

// Emit appends a new instruction at the tail and returns it, so the
// caller can hold onto it to back-patch Jump once the target is known
// (the standard pattern for forward jumps in if/while codegen).
func (p *Program) Emit(op Opcode) *Instruction {
	in := &Instruction{Op: op}
	p.append(in)
	return in
}

func (p *Program) append(in *Instruction) {
	if p.head == nil {
		p.head = in
		p.tail = in
		return
	}
	p.tail.Next = in
	p.tail = in
}

// Head returns the first instruction of the program (nil if empty).
func (p *Program) Head() *Instruction { return p.head }

// Last returns the tail instruction of the program (nil if empty).
func (p *Program) Last() *Instruction { return p.tail }

// InsertAfter splices a new instruction with opcode op right after at,
// returning it. Used sparingly; most codegen appends at the tail via
// Emit, but an implicit conversion sometimes has to follow an operand
// that was emitted earlier (e.g. a CONV_I_F after the left operand of
// a binary operator or after a call argument) without disturbing an
// already-taken Jump target reference.
func (p *Program) InsertAfter(at *Instruction, op Opcode) *Instruction {
	in := &Instruction{Op: op, Next: at.Next}
	at.Next = in
	if p.tail == at {
		p.tail = in
	}
	return in
}

// DeleteAfter removes the instruction following at, if any.
func (p *Program) DeleteAfter(at *Instruction) {
	if at.Next == nil {
		return
	}
	removed := at.Next
	at.Next = removed.Next
	if p.tail == removed {
		p.tail = at
	}
}

// SetInt sets the integer argument of in and returns in, for fluent
// use right after Emit.
func (in *Instruction) SetInt(v int64) *Instruction {
	in.IntArg = v
	return in
}

// SetDouble sets the double argument of in and returns in.
func (in *Instruction) SetDouble(v float64) *Instruction {
	in.DoubleArg = v
	return in
}

// SetJump sets the jump-target argument of in and returns in; this is
// the back-patch call site, invoked once the target instruction (not
// yet emitted at the time Emit(JMP) ran) becomes known.
func (in *Instruction) SetJump(target *Instruction) *Instruction {
	in.Jump = target
	return in
}

// SetGlobal sets the opaque global-backing-store argument of in.
func (in *Instruction) SetGlobal(g *symtab.Global) *Instruction {
	in.Global = g
	return in
}

// SetExtern sets the native-function argument of in.
func (in *Instruction) SetExtern(fn symtab.ExternFn) *Instruction {
	in.Extern = fn
	return in
}
