package vm

import (
	"fmt"
	"io"
	"os"

	"atomc/internal/diag"
	"atomc/internal/types"
)

// StackSize is the fixed operand/frame stack capacity, per the data
// model's "e.g., 10 000 cells" example.
const StackSize = 10000

// Status is the running-program state machine: only HALT drives a
// transition to Halted; any fatal error drives one to Faulted.
type Status int

const (
	Running Status = iota
	Halted
	Faulted
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// TraceFunc is called once per executed instruction when a Machine has
// tracing enabled, receiving the formatted "<addr>/<depth>\t<mnemonic>
// <arg>" line the CLI's --trace flag prints.
type TraceFunc func(line string)

// Machine is the stack VM: program counter, stack pointer, frame
// pointer, and the fixed-capacity cell array they index into.
type Machine struct {
	IP *Instruction
	SP int // index of the top valid cell; -1 when empty
	FP int

	stack  [StackSize]types.Cell
	status Status

	Out      io.Writer
	Reporter *diag.Reporter
	Trace    TraceFunc
}

// NewMachine builds a Machine ready to Run, writing extern-function
// output to Out (os.Stdout if nil).
func NewMachine(out io.Writer) *Machine {
	if out == nil {
		out = os.Stdout
	}
	return &Machine{SP: -1, FP: 0, Out: out, Reporter: &diag.Reporter{}}
}

// Status reports the machine's current run state.
func (m *Machine) Status() Status { return m.status }

func (m *Machine) fatalf(format string, args ...any) {
	m.status = Faulted
	m.Reporter.Fatalf(diag.NoLine, format, args...)
}

func (m *Machine) push(c types.Cell) {
	if m.SP+1 >= StackSize {
		m.fatalf("stack overflow")
	}
	m.SP++
	m.stack[m.SP] = c
}

func (m *Machine) pop() types.Cell {
	if m.SP < 0 {
		m.fatalf("stack underflow")
	}
	c := m.stack[m.SP]
	m.SP--
	return c
}

func (m *Machine) pushI(v int64)     { m.push(types.Cell{I: v}) }
func (m *Machine) pushF(v float64)   { m.push(types.Cell{F: v}) }
func (m *Machine) popI() int64       { return m.pop().I }
func (m *Machine) popF() float64     { return m.pop().F }

func (m *Machine) at(idx int) *types.Cell {
	if idx < 0 || idx >= StackSize {
		m.fatalf("frame index %d out of range", idx)
	}
	return &m.stack[idx]
}

// Run executes the program starting at entry until HALT, a fatal
// runtime error, or falling off the end of the list (treated the same
// as HALT, for a unit with no trailing HALT). It recovers the panic
// internal/diag.Fatalf raises and returns it as a plain error, so a
// faulted VM never takes down its caller.
func (m *Machine) Run(entry *Instruction) (err error) {
	defer diag.Recover(&err)

	m.IP = entry
	m.status = Running
	depth := 0

	for m.status == Running {
		if m.IP == nil {
			m.status = Halted
			break
		}
		in := m.IP
		if m.Trace != nil {
			m.Trace(m.traceLine(in, depth))
		}
		next := in.Next
		switch in.Op {
		case HALT:
			m.status = Halted

		case NOP:
			// no-op: a jump-target landing pad with no work of its own.

		case PUSH_I:
			m.pushI(in.IntArg)
		case PUSH_F:
			m.pushF(in.DoubleArg)
		case CONV_I_F:
			top := m.at(m.SP)
			top.F = float64(top.I)

		case ADD_I:
			b, a := m.popI(), m.popI()
			m.pushI(a + b)
		case ADD_F:
			b, a := m.popF(), m.popF()
			m.pushF(a + b)
		case SUB_I:
			b, a := m.popI(), m.popI()
			m.pushI(a - b)
		case SUB_F:
			b, a := m.popF(), m.popF()
			m.pushF(a - b)
		case MUL_I:
			b, a := m.popI(), m.popI()
			m.pushI(a * b)
		case MUL_F:
			b, a := m.popF(), m.popF()
			m.pushF(a * b)
		case DIV_I:
			b, a := m.popI(), m.popI()
			if b == 0 {
				m.fatalf("division by zero")
			}
			m.pushI(a / b)
		case DIV_F:
			b, a := m.popF(), m.popF()
			m.pushF(a / b)

		case LESS_I:
			m.pushBool(m.relI(func(a, b int64) bool { return a < b }))
		case LESS_F:
			m.pushBool(m.relF(func(a, b float64) bool { return a < b }))
		case LESSEQ_I:
			m.pushBool(m.relI(func(a, b int64) bool { return a <= b }))
		case LESSEQ_F:
			m.pushBool(m.relF(func(a, b float64) bool { return a <= b }))
		case GREATER_I:
			m.pushBool(m.relI(func(a, b int64) bool { return a > b }))
		case GREATER_F:
			m.pushBool(m.relF(func(a, b float64) bool { return a > b }))
		case GREATEREQ_I:
			m.pushBool(m.relI(func(a, b int64) bool { return a >= b }))
		case GREATEREQ_F:
			m.pushBool(m.relF(func(a, b float64) bool { return a >= b }))
		case EQUAL_I:
			m.pushBool(m.relI(func(a, b int64) bool { return a == b }))
		case EQUAL_F:
			m.pushBool(m.relF(func(a, b float64) bool { return a == b }))
		case NOTEQ_I:
			m.pushBool(m.relI(func(a, b int64) bool { return a != b }))
		case NOTEQ_F:
			m.pushBool(m.relF(func(a, b float64) bool { return a != b }))

		case NEG_I:
			m.pushI(-m.popI())
		case NEG_F:
			m.pushF(-m.popF())
		case NOT:
			v := m.popI()
			if v == 0 {
				m.pushI(1)
			} else {
				m.pushI(0)
			}

		case DUP:
			top := *m.at(m.SP)
			m.push(top)
		case POP:
			m.pop()

		case JMP:
			next = in.Jump
		case JF:
			if m.popI() == 0 {
				next = in.Jump
			}
		case JT:
			if m.popI() != 0 {
				next = in.Jump
			}

		case FPLOAD:
			m.push(*m.at(m.FP + int(in.IntArg)))
		case FPSTORE:
			v := m.pop()
			*m.at(m.FP + int(in.IntArg)) = v
		case FPLOADX:
			offset := m.popI()
			m.push(*m.at(m.FP + int(in.IntArg) + int(offset)))
		case FPSTOREX:
			// Evaluation order leaves [..., offset, value] on the stack
			// (the index expression runs before the assigned value), so
			// the value is popped first. Unlike FPSTORE, this re-pushes
			// the stored value: assignment through a runtime-indexed
			// destination can't rely on a caller DUP (there is no cheap
			// way to duplicate a cell buried under the pending offset),
			// so the opcode itself makes assignment-as-expression work.
			v := m.pop()
			offset := m.popI()
			*m.at(m.FP + int(in.IntArg) + int(offset)) = v
			m.push(v)

		case GLOAD:
			m.push(in.Global.Cells[in.IntArg])
		case GSTORE:
			in.Global.Cells[in.IntArg] = m.pop()
		case GLOADX:
			offset := m.popI()
			m.push(in.Global.Cells[in.IntArg+offset])
		case GSTOREX:
			v := m.pop()
			offset := m.popI()
			in.Global.Cells[in.IntArg+offset] = v
			m.push(v)

		case CALL:
			m.push(types.Cell{Ref: in.Next})
			next = in.Jump
			depth++
		case CALL_EXT:
			in.Extern(func() types.Cell { return m.pop() }, func(c types.Cell) { m.push(c) })

		case ENTER:
			m.push(types.Cell{I: int64(m.FP)})
			m.FP = m.SP
			m.SP += int(in.IntArg)
			if m.SP >= StackSize {
				m.fatalf("stack overflow")
			}

		case RET:
			retVal := m.pop()
			retAddr, _ := m.at(m.FP - 1).Ref.(*Instruction)
			savedFP := int(m.at(m.FP).I)
			m.SP = m.FP - int(in.IntArg) - 2
			m.FP = savedFP
			m.push(retVal)
			next = retAddr
			depth--
		case RET_VOID:
			retAddr, _ := m.at(m.FP - 1).Ref.(*Instruction)
			savedFP := int(m.at(m.FP).I)
			m.SP = m.FP - int(in.IntArg) - 2
			m.FP = savedFP
			next = retAddr
			depth--

		default:
			m.fatalf("unimplemented opcode %s", in.Op)
		}

		m.IP = next
	}

	return nil
}

func (m *Machine) pushBool(v bool) {
	if v {
		m.pushI(1)
	} else {
		m.pushI(0)
	}
}

func (m *Machine) relI(cmp func(a, b int64) bool) bool {
	b, a := m.popI(), m.popI()
	return cmp(a, b)
}

func (m *Machine) relF(cmp func(a, b float64) bool) bool {
	b, a := m.popF(), m.popF()
	return cmp(a, b)
}

func (m *Machine) traceLine(in *Instruction, depth int) string {
	var arg string
	switch in.Op {
	case PUSH_I, ENTER, RET, RET_VOID, FPLOAD, FPSTORE, FPLOADX, FPSTOREX:
		arg = fmt.Sprintf("%d", in.IntArg)
	case PUSH_F:
		arg = fmt.Sprintf("%g", in.DoubleArg)
	case JMP, JF, JT, CALL:
		arg = fmt.Sprintf("%p", in.Jump)
	}
	return fmt.Sprintf("%p/%d\t%s %s", in, depth, in.Op, arg)
}
