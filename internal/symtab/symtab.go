// Package symtab implements the nested-scope symbol table the parser's
// semantic actions read and write as they walk the token list: symbols,
// domains (scope frames), and the lookup/insert discipline that gives
// AtomC static nested scoping.
package symtab

import (
	"fmt"

	"atomc/internal/types"
)

// Kind discriminates what a Symbol denotes.
type Kind int

const (
	VAR Kind = iota
	PARAM
	FN
	STRUCT
)

func (k Kind) String() string {
	switch k {
	case VAR:
		return "var"
	case PARAM:
		return "param"
	case FN:
		return "fn"
	case STRUCT:
		return "struct"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// Global is the process-allocated backing store for a global variable:
// one types.Cell per types.CellCount(symbol.Type), zero-valued at
// allocation. types.Cell (rather than a type defined here) is the
// shared storage unit so the VM's operand stack can hold the very same
// cells it reads and writes for GLOAD/GSTORE, without internal/vm and
// internal/symtab importing each other.
type Global struct {
	Cells []types.Cell
}

// ExternFn is a host intrinsic registered into the global domain at VM
// boot (put_i, put_d). It receives pop/push callbacks bound to the
// caller's operand stack rather than a *vm.Machine directly, so symtab
// has no dependency on internal/vm and the CALL_EXT convention (pop
// args rightmost-first, perform the side effect, push a result if
// non-void) stays entirely in the VM's hands.
type ExternFn func(pop func() types.Cell, push func(types.Cell))

// Symbol is a named entity in the table: a variable, parameter,
// function, or struct, carrying kind-specific payload fields (only the
// ones relevant to Kind are populated).
type Symbol struct {
	Name string
	Kind Kind
	Type types.Type

	// Owner is the enclosing function (for PARAM and function-local
	// VAR) or struct (for a member VAR); nil for globals and for FN
	// and STRUCT symbols themselves.
	Owner *Symbol

	// Index is the payload for VAR and PARAM: a function-local VAR's or
	// a PARAM's cumulative cell offset among its siblings (computed via
	// types.CellCount, so a struct- or array-valued local/parameter
	// still gets each sibling its own non-overlapping frame slot), or a
	// struct member VAR's byte offset (computed via types.TypeSize -
	// this is the human-readable layout the symbol-table dump shows,
	// unrelated to frame addressing).
	Index int

	// Global is non-nil only for a VAR with Owner == nil: its
	// process-allocated backing store.
	Global *Global

	// FN payload.
	Params     []*Symbol
	Locals     []*Symbol
	NativeFn   ExternFn // set for extern functions (put_i, put_d)
	CodeEntry  any      // *vm.Instruction of the function's first instruction, for user functions

	// STRUCT payload: ordered member list.
	StructMembers []*Symbol
}

// StructName and Members implement types.StructRef, letting a *Symbol
// of Kind STRUCT stand in directly as a Type's structRef without
// internal/types importing this package.
func (s *Symbol) StructName() string { return s.Name }

func (s *Symbol) Members() []types.Member {
	out := make([]types.Member, len(s.StructMembers))
	for i, m := range s.StructMembers {
		out[i] = types.Member{Name: m.Name, Type: m.Type}
	}
	return out
}

// Dup produces the shallow copy the data model calls for when a symbol
// must appear in both its lexical domain and its owning function's or
// struct's ordered payload list: same name, kind, type, owner, and
// payload, independently linkable (there is no shared Next pointer to
// clash over, since domains hold symbols in a slice - see Domain).
func (s *Symbol) Dup() *Symbol {
	dup := *s
	return &dup
}

// Domain is one scope frame: a parent link plus an ordered symbol list.
// The bottom of the stack (Parent == nil) is the global domain.
type Domain struct {
	Parent  *Domain
	Symbols []*Symbol
}

// Find scans d's own symbols for name, first match wins (there can be
// at most one, since Define rejects clashes).
func (d *Domain) Find(name string) (*Symbol, bool) {
	for _, s := range d.Symbols {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// Scope owns the live domain stack: a pointer to the current (top)
// domain. The global domain is created once and is never popped.
type Scope struct {
	top *Domain
}

// NewGlobalScope creates a scope stack with just the global domain.
func NewGlobalScope() *Scope {
	return &Scope{top: &Domain{}}
}

// Current returns the innermost (top) domain.
func (s *Scope) Current() *Domain { return s.top }

// Global returns the outermost (bottom) domain.
func (s *Scope) Global() *Domain {
	d := s.top
	for d.Parent != nil {
		d = d.Parent
	}
	return d
}

// Push opens a new nested domain on entry to a struct body, function
// body, or compound statement (per the data model's lifetime rule, a
// function's own compound statement does not get a second push - the
// parser is responsible for not calling Push there).
func (s *Scope) Push() {
	s.top = &Domain{Parent: s.top}
}

// Pop closes the current domain, discarding its symbol list. Go's
// garbage collector reclaims the symbols (and tolerates the
// owner/member reference cycles they may form) once nothing else
// references them, so unlike the reference implementation's
// dropDomain, Pop does no manual freeing.
func (s *Scope) Pop() {
	if s.top.Parent == nil {
		panic("symtab: Pop of the global domain")
	}
	s.top = s.top.Parent
}

// Find walks the domain stack from top to bottom, implementing static
// nested scoping: the first match wins.
func (s *Scope) Find(name string) (*Symbol, bool) {
	for d := s.top; d != nil; d = d.Parent {
		if sym, ok := d.Find(name); ok {
			return sym, true
		}
	}
	return nil, false
}

// Define inserts sym into the current domain after checking for a name
// clash (same name already present in that domain, not any enclosing
// one - shadowing an outer symbol is legal). It reports an error
// instead of raising through internal/diag directly, leaving the
// caller (the parser, which has the source line) to turn it into a
// diagnostic.
func (s *Scope) Define(sym *Symbol) error {
	if _, clash := s.top.Find(sym.Name); clash {
		return fmt.Errorf("Symbol redefinition: %s", sym.Name)
	}
	s.top.Symbols = append(s.top.Symbols, sym)
	return nil
}

// AddExtFn registers a host intrinsic (put_i, put_d) directly into the
// global domain, used by VM boot to pre-populate the symbols the
// CALL_EXT codegen path resolves against. It bypasses Define's clash
// check since it runs before any user source is parsed.
func (s *Scope) AddExtFn(name string, ret types.Type, fn ExternFn) *Symbol {
	sym := &Symbol{Name: name, Kind: FN, Type: ret, NativeFn: fn}
	g := s.Global()
	g.Symbols = append(g.Symbols, sym)
	return sym
}

// AddFnParam appends a parameter to fn's ordered parameter list and
// returns the new PARAM symbol, whose Index is the sum of the cell
// counts of the parameters already in the list - the cell offset at
// which its own frame slot begins, so a struct-valued parameter still
// reserves every cell it needs instead of colliding with the next
// parameter's. The caller is still responsible for Define-ing a Dup of
// it into the function's own domain, matching the dual-list membership
// the data model specifies for PARAM and function-local VAR symbols.
func AddFnParam(fn *Symbol, name string, t types.Type) *Symbol {
	p := &Symbol{Name: name, Kind: PARAM, Type: t, Owner: fn, Index: ParamCellCount(fn)}
	fn.Params = append(fn.Params, p)
	return p
}

// AddLocal appends a local variable to fn's ordered local list (which,
// per the data model, also holds locals introduced by nested inner
// scopes - the parser flattens them all into the one owning function)
// and returns the new VAR symbol, whose Index is likewise a cumulative
// cell offset rather than a plain position.
func AddLocal(fn *Symbol, name string, t types.Type) *Symbol {
	v := &Symbol{Name: name, Kind: VAR, Type: t, Owner: fn, Index: LocalCellCount(fn)}
	fn.Locals = append(fn.Locals, v)
	return v
}

// ParamCellCount sums the VM-cell width of every parameter already
// registered on fn - both the argument-cell count RET/RET_VOID tear
// down and the starting offset AddFnParam gives the next parameter.
func ParamCellCount(fn *Symbol) int {
	total := 0
	for _, p := range fn.Params {
		total += types.CellCount(p.Type)
	}
	return total
}

// LocalCellCount sums the VM-cell width of every local already
// registered on fn, analogous to ParamCellCount.
func LocalCellCount(fn *Symbol) int {
	total := 0
	for _, l := range fn.Locals {
		total += types.CellCount(l.Type)
	}
	return total
}

// AddStructMember appends a member to owner's ordered member list at
// its byte offset (types.TypeSize-based, matching the data model's
// "varIdx = typeSize(owner.type)" rule) and returns the new VAR symbol.
func AddStructMember(owner *Symbol, name string, t types.Type) *Symbol {
	offset := 0
	for _, m := range owner.StructMembers {
		offset += types.TypeSize(m.Type)
	}
	m := &Symbol{Name: name, Kind: VAR, Type: t, Owner: owner, Index: offset}
	owner.StructMembers = append(owner.StructMembers, m)
	return m
}

// NewGlobal allocates a zero-valued backing store for a global VAR
// symbol, sized in VM cells (types.CellCount), and attaches it.
func NewGlobal(sym *Symbol) {
	sym.Global = &Global{Cells: make([]types.Cell, types.CellCount(sym.Type))}
}
