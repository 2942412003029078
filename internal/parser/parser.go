// Package parser implements the AtomC recursive-descent parser. There
// is no separate AST: each grammar rule is also a semantic action,
// building symbols and types in internal/symtab and internal/types and
// driving internal/codegen/internal/vm to grow the instruction list as
// it goes. Ambiguous productions (a struct type used as a variable's
// type vs. a struct definition, a variable vs. a function definition,
// a cast vs. a parenthesized expression) are resolved by trying one
// alternative and rewinding the token cursor on failure (an assignment
// destination vs. a plain expression needs no rewind: see exprAssign);
// once a rule reaches a token that could only belong to it, a missing
// continuation becomes a fatal syntax error instead of a backtrack.
package parser

import (
	"io"

	"atomc/internal/codegen"
	"atomc/internal/diag"
	"atomc/internal/lexer"
	"atomc/internal/symtab"
	"atomc/internal/token"
	"atomc/internal/types"
	"atomc/internal/vm"
)

// Parser holds the token cursor and the compile-time state its
// semantic actions read and write: the scope stack, the instruction
// list under construction, and the function currently being defined
// (nil at file scope).
type Parser struct {
	toks []*token.Token
	i    int

	rep   *diag.Reporter
	scope *symtab.Scope
	prog  *vm.Program
	owner *symtab.Symbol
}

// Compile lexes and parses src in full, returning the populated global
// scope and the emitted program. Fatal lexical or syntax errors are
// recovered into the returned error rather than propagating as a panic.
func Compile(src string, rep *diag.Reporter, out io.Writer) (scope *symtab.Scope, prog *vm.Program, err error) {
	defer diag.Recover(&err)

	head, lexErr := lexer.Lex(src, rep)
	if lexErr != nil {
		return nil, nil, lexErr
	}

	scope = symtab.NewGlobalScope()
	prog = &vm.Program{}
	vm.RegisterExterns(scope, out)

	p := &Parser{toks: token.Slice(head), rep: rep, scope: scope, prog: prog}
	p.unit()

	return scope, prog, nil
}

func (p *Parser) cur() *token.Token { return p.toks[p.i] }

func (p *Parser) is(code token.Code) bool { return p.cur().Code == code }

func (p *Parser) advance() {
	if p.i < len(p.toks)-1 {
		p.i++
	}
}

// accept consumes the current token and reports true if it matches
// code, leaving the cursor untouched otherwise.
func (p *Parser) accept(code token.Code) bool {
	if p.is(code) {
		p.advance()
		return true
	}
	return false
}

func (p *Parser) acceptID() (*token.Token, bool) {
	if p.is(token.ID) {
		t := p.cur()
		p.advance()
		return t, true
	}
	return nil, false
}

// expectCode consumes the current token if it matches code, and raises
// a fatal syntax error otherwise - the "committing token" rule turns a
// missing required token into a hard failure rather than a backtrack.
func (p *Parser) expectCode(code token.Code, msg string) *token.Token {
	if !p.is(code) {
		p.fatalf(p.cur().Line, "%s", msg)
	}
	t := p.cur()
	p.advance()
	return t
}

func (p *Parser) fatalf(line int, format string, args ...any) {
	p.rep.Fatalf(line, format, args...)
}

// unit is the top-level rule: zero or more struct/function/variable
// definitions, in any order, followed by end of input.
func (p *Parser) unit() {
	for {
		if p.structDef() {
			continue
		}
		if p.fnDef() {
			continue
		}
		if p.varDef() {
			continue
		}
		break
	}
	p.expectCode(token.END, "expected a struct, function, or variable definition")
}

// structDef tries STRUCT ID '{', rewinding fully if what follows the
// identifier isn't '{' (a struct-typed variable or function also
// starts with STRUCT ID, handled by typeBase inside varDef/fnDef).
func (p *Parser) structDef() bool {
	mark := p.i
	if !p.is(token.STRUCT) {
		return false
	}
	p.advance()
	idTok, ok := p.acceptID()
	if !ok {
		p.i = mark
		return false
	}
	if !p.is(token.LACC) {
		p.i = mark
		return false
	}
	p.advance()

	sym := &symtab.Symbol{Name: idTok.Ident, Kind: symtab.STRUCT}
	if err := p.scope.Define(sym); err != nil {
		p.fatalf(idTok.Line, "%s", err)
	}

	p.scope.Push()
	prevOwner := p.owner
	p.owner = sym
	for p.varDef() {
	}
	p.owner = prevOwner
	p.scope.Pop()

	p.expectCode(token.RACC, "missing '}' in definition of struct "+idTok.Ident)
	p.expectCode(token.SEMICOLON, "missing ';' after definition of struct "+idTok.Ident)
	return true
}

// arrayDecl reads an optional '[' INT? ']' suffix. present is false
// when no '[' was there at all; hasDim distinguishes a given dimension
// from an empty '[]' (legal only for a function parameter, which
// decays - varDef rejects the dimensionless form itself).
type arrayDecl struct {
	present bool
	hasDim  bool
	dim     int
}

func (p *Parser) arrayDecl() arrayDecl {
	if !p.is(token.LBRACKET) {
		return arrayDecl{}
	}
	p.advance()
	ad := arrayDecl{present: true}
	if p.is(token.INT) {
		ad.hasDim = true
		ad.dim = int(p.cur().IntVal)
		p.advance()
	}
	p.expectCode(token.RBRACKET, "missing ']' in array declaration")
	return ad
}

// typeBase tries to parse a scalar base type or STRUCT ID. It restores
// the cursor and reports false on a clean non-match (used for
// exprCast's cast-prefix trial); once STRUCT is seen, though, it
// commits - a struct type name is never ambiguous with anything else,
// so a missing or undefined identifier after it is a fatal error.
func (p *Parser) typeBase() (types.Type, bool) {
	switch {
	case p.is(token.TYPE_INT):
		p.advance()
		return types.NewScalar(types.INT), true
	case p.is(token.TYPE_DOUBLE):
		p.advance()
		return types.NewScalar(types.DOUBLE), true
	case p.is(token.TYPE_CHAR):
		p.advance()
		return types.NewScalar(types.CHAR), true
	case p.is(token.STRUCT):
		line := p.cur().Line
		p.advance()
		idTok := p.expectCode(token.ID, "expected a struct name")
		sym, ok := p.scope.Find(idTok.Ident)
		if !ok || sym.Kind != symtab.STRUCT {
			p.fatalf(line, "undefined struct type: %s", idTok.Ident)
		}
		return types.NewStruct(sym), true
	default:
		return types.Type{}, false
	}
}

// varDef tries typeBase ID arrayDecl? ';', rewinding fully on any
// mismatch so that fnDef (typeBase ID '(') gets a turn at the same
// prefix. Once matched, it dispatches on the enclosing context to
// decide where the new VAR symbol's storage lives.
func (p *Parser) varDef() bool {
	mark := p.i
	t, ok := p.typeBase()
	if !ok {
		return false
	}
	idTok, ok := p.acceptID()
	if !ok {
		p.i = mark
		return false
	}
	ad := p.arrayDecl()
	if !p.is(token.SEMICOLON) {
		p.i = mark
		return false
	}
	p.advance()

	varType := t
	if ad.present {
		if !ad.hasDim {
			p.fatalf(idTok.Line, "An array must have a specified dimension")
		}
		varType = types.NewArray(t.Base, t.StructRef, ad.dim)
	}
	if varType.Base == types.VOID {
		p.fatalf(idTok.Line, "a variable cannot have type void")
	}

	switch {
	case p.owner != nil && p.owner.Kind == symtab.FN:
		sym := symtab.AddLocal(p.owner, idTok.Ident, varType)
		if err := p.scope.Define(sym.Dup()); err != nil {
			p.fatalf(idTok.Line, "%s", err)
		}
	case p.owner != nil && p.owner.Kind == symtab.STRUCT:
		sym := symtab.AddStructMember(p.owner, idTok.Ident, varType)
		if err := p.scope.Define(sym.Dup()); err != nil {
			p.fatalf(idTok.Line, "%s", err)
		}
	default:
		sym := &symtab.Symbol{Name: idTok.Ident, Kind: symtab.VAR, Type: varType}
		symtab.NewGlobal(sym)
		if err := p.scope.Define(sym); err != nil {
			p.fatalf(idTok.Line, "%s", err)
		}
	}
	return true
}

// fnDef tries (typeBase | VOID) ID '(' ..., rewinding fully if no '('
// follows the name (a variable declared with a struct type also starts
// this way). The function's own domain hosts both its parameters and
// its top-level locals - per the data model, a function body does not
// get a second, nested domain of its own.
func (p *Parser) fnDef() bool {
	mark := p.i

	var retType types.Type
	if p.is(token.VOID) {
		p.advance()
		retType = types.NewScalar(types.VOID)
	} else if t, ok := p.typeBase(); ok {
		retType = t
	} else {
		return false
	}

	idTok, ok := p.acceptID()
	if !ok {
		p.i = mark
		return false
	}
	if !p.is(token.LPAR) {
		p.i = mark
		return false
	}
	p.advance()

	fn := &symtab.Symbol{Name: idTok.Ident, Kind: symtab.FN, Type: retType}
	if err := p.scope.Define(fn); err != nil {
		p.fatalf(idTok.Line, "%s", err)
	}

	p.scope.Push()
	prevOwner := p.owner
	p.owner = fn

	if !p.is(token.RPAR) {
		for {
			p.fnParam(fn)
			if !p.accept(token.COMMA) {
				break
			}
		}
	}
	p.expectCode(token.RPAR, "missing ')' in definition of "+idTok.Ident)
	p.expectCode(token.LACC, "missing '{' in definition of "+idTok.Ident)

	enter := p.prog.Emit(vm.ENTER)
	fn.CodeEntry = enter

	for {
		if p.varDef() {
			continue
		}
		if p.stm() {
			continue
		}
		break
	}
	enter.SetInt(int64(symtab.LocalCellCount(fn)))

	// A trailing RET_VOID is emitted unconditionally as a safety net
	// for a non-void function whose every explicit return is inside a
	// conditional branch; reachability analysis to flag a genuinely
	// missing return is not attempted.
	p.prog.Emit(vm.RET_VOID).SetInt(int64(symtab.ParamCellCount(fn)))

	p.expectCode(token.RACC, "missing '}' in definition of "+idTok.Ident)

	p.owner = prevOwner
	p.scope.Pop()
	return true
}

// fnParam parses one typeBase ID arrayDecl? parameter declaration. An
// array parameter always decays to an unsized array regardless of
// whether a dimension was written, matching a C-style array parameter.
func (p *Parser) fnParam(fn *symtab.Symbol) {
	t, ok := p.typeBase()
	if !ok {
		p.fatalf(p.cur().Line, "expected a parameter type")
	}
	idTok := p.expectCode(token.ID, "expected a parameter name")
	ad := p.arrayDecl()

	pt := t
	if ad.present {
		pt = types.NewArray(t.Base, t.StructRef, types.Unsized)
	}

	sym := symtab.AddFnParam(fn, idTok.Ident, pt)
	if err := p.scope.Define(sym.Dup()); err != nil {
		p.fatalf(idTok.Line, "%s", err)
	}
}

// stmCompound parses a '{' ( varDef | stm )* '}' block, pushing a new
// domain for it when pushDomain is true. Its only caller, stm, passes
// true for every nested block; a function's own body is parsed by
// fnDef directly, inside the function's domain.
func (p *Parser) stmCompound(pushDomain bool) {
	p.expectCode(token.LACC, "missing '{'")
	if pushDomain {
		p.scope.Push()
	}
	for {
		if p.varDef() {
			continue
		}
		if p.stm() {
			continue
		}
		break
	}
	if pushDomain {
		p.scope.Pop()
	}
	p.expectCode(token.RACC, "missing '}'")
}

// stmRequired parses a single statement, fataling if none is there -
// used for the single required body of if/while, which (unlike a
// block) is not itself optional.
func (p *Parser) stmRequired() {
	if !p.stm() {
		p.fatalf(p.cur().Line, "expected a statement")
	}
}

// stm tries to parse one statement, reporting false (with the cursor
// unchanged) when the current token cannot start one - the signal the
// caller's definition/statement loop uses to stop.
func (p *Parser) stm() bool {
	switch {
	case p.is(token.LACC):
		p.stmCompound(true)
		return true

	case p.is(token.IF):
		p.advance()
		line := p.cur().Line
		p.expectCode(token.LPAR, "missing '(' after 'if'")
		cond := p.expr()
		codegen.AddRVal(p.prog, cond)
		if !types.CanBeScalar(cond.Type) {
			p.fatalf(line, "an if condition must be scalar")
		}
		p.expectCode(token.RPAR, "missing ')' after if condition")

		jf := p.prog.Emit(vm.JF)
		p.stmRequired()
		if p.accept(token.ELSE) {
			jmpEnd := p.prog.Emit(vm.JMP)
			elseLabel := p.prog.Emit(vm.NOP)
			jf.SetJump(elseLabel)
			p.stmRequired()
			end := p.prog.Emit(vm.NOP)
			jmpEnd.SetJump(end)
		} else {
			end := p.prog.Emit(vm.NOP)
			jf.SetJump(end)
		}
		return true

	case p.is(token.WHILE):
		p.advance()
		line := p.cur().Line
		p.expectCode(token.LPAR, "missing '(' after 'while'")

		loopStart := p.prog.Emit(vm.NOP)
		cond := p.expr()
		codegen.AddRVal(p.prog, cond)
		if !types.CanBeScalar(cond.Type) {
			p.fatalf(line, "a while condition must be scalar")
		}
		p.expectCode(token.RPAR, "missing ')' after while condition")

		jf := p.prog.Emit(vm.JF)
		p.stmRequired()
		p.prog.Emit(vm.JMP).SetJump(loopStart)
		end := p.prog.Emit(vm.NOP)
		jf.SetJump(end)
		return true

	case p.is(token.RETURN):
		line := p.cur().Line
		p.advance()
		if p.owner == nil || p.owner.Kind != symtab.FN {
			p.fatalf(line, "return outside of a function body")
		}
		fn := p.owner
		if p.is(token.SEMICOLON) {
			p.advance()
			if fn.Type.Base != types.VOID {
				p.fatalf(line, "a non-void function must return a value")
			}
			p.prog.Emit(vm.RET_VOID).SetInt(int64(symtab.ParamCellCount(fn)))
			return true
		}
		if fn.Type.Base == types.VOID {
			p.fatalf(line, "A void function cannot return a value")
		}
		val := p.expr()
		p.expectCode(token.SEMICOLON, "missing ';' after return value")
		p.requireWholeCopyable(line, val)
		codegen.AddRVal(p.prog, val)
		if !types.ConvTo(val.Type, fn.Type) {
			p.fatalf(line, "cannot convert %s to %s in return statement", val.Type, fn.Type)
		}
		codegen.EmitConvIfNeeded(p.prog, val.Type, fn.Type)
		p.prog.Emit(vm.RET).SetInt(int64(symtab.ParamCellCount(fn)))
		return true

	case p.is(token.SEMICOLON):
		p.advance()
		return true

	default:
		mark := p.i
		e, ok := p.tryExpr()
		if !ok {
			p.i = mark
			return false
		}
		if e.Type.Base != types.VOID {
			codegen.AddRVal(p.prog, e)
			p.prog.Emit(vm.POP)
		}
		p.expectCode(token.SEMICOLON, "missing ';' after expression")
		return true
	}
}

// tryExpr parses an expression only if the current token is in
// expr's first set, so a plain expression-statement's absence (e.g. at
// a closing '}') is reported by returning false rather than a fatal
// "expected an expression" from deep inside exprPrimary.
func (p *Parser) tryExpr() (codegen.Ret, bool) {
	switch p.cur().Code {
	case token.ID, token.INT, token.DOUBLE, token.CHAR, token.STRING,
		token.LPAR, token.SUB, token.NOT:
		return p.expr(), true
	default:
		return codegen.Ret{}, false
	}
}

func (p *Parser) expr() codegen.Ret { return p.exprAssign() }

// requireWholeCopyable fatals if r denotes a multi-cell struct value
// (CellSpan > 1) reached through a runtime, array-indexed address -
// assigning, returning, or passing such a value as a single unit would
// need to re-derive an already-consumed runtime offset for every cell
// after the first, which no opcode in this ISA can do. A struct local,
// global, or parameter copied whole (constant address) is unaffected;
// so is accessing one member of an indexed element via '.'.
func (p *Parser) requireWholeCopyable(line int, r codegen.Ret) {
	if r.Lval && r.Addr.Runtime && codegen.CellSpan(r.Type) > 1 {
		p.fatalf(line, "cannot copy a struct array element as a whole; access its members individually")
	}
}

// exprAssign parses exprCast first (not exprUnary: a cast like
// `(int)x` must still run through exprCast's cast-prefix handling, but
// since exprCast falls straight through to exprUnary when no cast
// prefix matches, the two are identical whenever the left side isn't
// actually a cast). If '=' follows, the already-parsed operand must be
// an assignable lvalue; otherwise it becomes the starting operand of
// the exprMul..exprOr precedence chain, with no token re-parsing and
// no re-emitted code.
func (p *Parser) exprAssign() codegen.Ret {
	first := p.exprCast()

	if p.is(token.ASSIGN) {
		line := p.cur().Line
		if !first.Lval || first.CT {
			p.fatalf(line, "The assignment destination must be a left-value")
		}
		p.advance()
		rhs := p.exprAssign()
		if !types.ConvTo(rhs.Type, first.Type) {
			p.fatalf(line, "cannot convert %s to %s in assignment", rhs.Type, first.Type)
		}
		p.requireWholeCopyable(line, first)
		p.requireWholeCopyable(line, rhs)
		codegen.AddRVal(p.prog, rhs)
		codegen.EmitConvIfNeeded(p.prog, rhs.Type, first.Type)
		codegen.EmitStore(p.prog, first)
		return codegen.NonLval(first.Type)
	}

	result := p.exprMulFrom(first)
	result = p.exprAddFrom(result)
	result = p.exprRelFrom(result)
	result = p.exprEqFrom(result)
	result = p.exprAndFrom(result)
	result = p.exprOrFrom(result)
	return result
}

// exprOrFrom/exprAndFrom implement && and || with short-circuit JF/JT
// jumps instead of a dedicated opcode: each operand after the first is
// only evaluated if the chain hasn't already been decided, and the
// 0/1 result is materialized at the end so the expression can still be
// used as an ordinary int value (assigned, passed as an argument, and
// so on), not only as a statement condition.
func (p *Parser) exprOrFrom(first codegen.Ret) codegen.Ret {
	if !p.is(token.OR) {
		return first
	}
	codegen.AddRVal(p.prog, first)
	if !types.CanBeScalar(first.Type) {
		p.fatalf(p.cur().Line, "operand of '||' must be scalar")
	}
	var trueJumps []*vm.Instruction
	trueJumps = append(trueJumps, p.prog.Emit(vm.JT))

	for p.accept(token.OR) {
		right := p.exprAnd()
		codegen.AddRVal(p.prog, right)
		if !types.CanBeScalar(right.Type) {
			p.fatalf(p.cur().Line, "operand of '||' must be scalar")
		}
		trueJumps = append(trueJumps, p.prog.Emit(vm.JT))
	}

	p.prog.Emit(vm.PUSH_I).SetInt(0)
	jmpEnd := p.prog.Emit(vm.JMP)
	trueLabel := p.prog.Emit(vm.PUSH_I).SetInt(1)
	for _, j := range trueJumps {
		j.SetJump(trueLabel)
	}
	end := p.prog.Emit(vm.NOP)
	jmpEnd.SetJump(end)
	return codegen.NonLval(types.NewScalar(types.INT))
}

func (p *Parser) exprAndFrom(first codegen.Ret) codegen.Ret {
	if !p.is(token.AND) {
		return first
	}
	codegen.AddRVal(p.prog, first)
	if !types.CanBeScalar(first.Type) {
		p.fatalf(p.cur().Line, "operand of '&&' must be scalar")
	}
	var falseJumps []*vm.Instruction
	falseJumps = append(falseJumps, p.prog.Emit(vm.JF))

	for p.accept(token.AND) {
		right := p.exprEq()
		codegen.AddRVal(p.prog, right)
		if !types.CanBeScalar(right.Type) {
			p.fatalf(p.cur().Line, "operand of '&&' must be scalar")
		}
		falseJumps = append(falseJumps, p.prog.Emit(vm.JF))
	}

	p.prog.Emit(vm.PUSH_I).SetInt(1)
	jmpEnd := p.prog.Emit(vm.JMP)
	falseLabel := p.prog.Emit(vm.PUSH_I).SetInt(0)
	for _, j := range falseJumps {
		j.SetJump(falseLabel)
	}
	end := p.prog.Emit(vm.NOP)
	jmpEnd.SetJump(end)
	return codegen.NonLval(types.NewScalar(types.INT))
}

func (p *Parser) exprAnd() codegen.Ret { return p.exprAndFrom(p.exprEq()) }

func (p *Parser) exprEq() codegen.Ret { return p.exprEqFrom(p.exprRel()) }

func (p *Parser) exprEqFrom(first codegen.Ret) codegen.Ret {
	left := first
	for p.is(token.EQUAL) || p.is(token.NOTEQ) {
		opTok := p.cur()
		p.advance()
		codegen.AddRVal(p.prog, left)
		leftInstr := p.prog.Last()
		if !left.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of '%s' must be a numeric scalar", opTok.Code)
		}
		right := p.exprRel()
		codegen.AddRVal(p.prog, right)
		if !right.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of '%s' must be a numeric scalar", opTok.Code)
		}
		unify, ok := types.ArithTypeTo(left.Type, right.Type)
		if !ok {
			p.fatalf(opTok.Line, "incompatible operand types for '%s'", opTok.Code)
		}
		codegen.InsertConvIfNeeded(p.prog, leftInstr, left.Type, unify)
		codegen.EmitConvIfNeeded(p.prog, right.Type, unify)
		isDouble := unify.Base == types.DOUBLE
		if opTok.Code == token.EQUAL {
			if isDouble {
				p.prog.Emit(vm.EQUAL_F)
			} else {
				p.prog.Emit(vm.EQUAL_I)
			}
		} else {
			if isDouble {
				p.prog.Emit(vm.NOTEQ_F)
			} else {
				p.prog.Emit(vm.NOTEQ_I)
			}
		}
		left = codegen.NonLval(types.NewScalar(types.INT))
	}
	return left
}

func (p *Parser) exprRel() codegen.Ret { return p.exprRelFrom(p.exprAdd()) }

func (p *Parser) exprRelFrom(first codegen.Ret) codegen.Ret {
	left := first
	for p.is(token.LESS) || p.is(token.LESSEQ) || p.is(token.GREATER) || p.is(token.GREATEREQ) {
		opTok := p.cur()
		p.advance()
		codegen.AddRVal(p.prog, left)
		leftInstr := p.prog.Last()
		if !left.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of '%s' must be a numeric scalar", opTok.Code)
		}
		right := p.exprAdd()
		codegen.AddRVal(p.prog, right)
		if !right.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of '%s' must be a numeric scalar", opTok.Code)
		}
		unify, ok := types.ArithTypeTo(left.Type, right.Type)
		if !ok {
			p.fatalf(opTok.Line, "incompatible operand types for '%s'", opTok.Code)
		}
		codegen.InsertConvIfNeeded(p.prog, leftInstr, left.Type, unify)
		codegen.EmitConvIfNeeded(p.prog, right.Type, unify)
		isDouble := unify.Base == types.DOUBLE
		switch opTok.Code {
		case token.LESS:
			if isDouble {
				p.prog.Emit(vm.LESS_F)
			} else {
				p.prog.Emit(vm.LESS_I)
			}
		case token.LESSEQ:
			if isDouble {
				p.prog.Emit(vm.LESSEQ_F)
			} else {
				p.prog.Emit(vm.LESSEQ_I)
			}
		case token.GREATER:
			if isDouble {
				p.prog.Emit(vm.GREATER_F)
			} else {
				p.prog.Emit(vm.GREATER_I)
			}
		default:
			if isDouble {
				p.prog.Emit(vm.GREATEREQ_F)
			} else {
				p.prog.Emit(vm.GREATEREQ_I)
			}
		}
		left = codegen.NonLval(types.NewScalar(types.INT))
	}
	return left
}

func (p *Parser) exprAdd() codegen.Ret { return p.exprAddFrom(p.exprMul()) }

func (p *Parser) exprAddFrom(first codegen.Ret) codegen.Ret {
	left := first
	for p.is(token.ADD) || p.is(token.SUB) {
		opTok := p.cur()
		p.advance()
		codegen.AddRVal(p.prog, left)
		leftInstr := p.prog.Last()
		if !left.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of '%s' must be a numeric scalar", opTok.Code)
		}
		right := p.exprMul()
		codegen.AddRVal(p.prog, right)
		if !right.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of '%s' must be a numeric scalar", opTok.Code)
		}
		result, ok := types.ArithTypeTo(left.Type, right.Type)
		if !ok {
			p.fatalf(opTok.Line, "incompatible operand types for '%s'", opTok.Code)
		}
		codegen.InsertConvIfNeeded(p.prog, leftInstr, left.Type, result)
		codegen.EmitConvIfNeeded(p.prog, right.Type, result)
		isDouble := result.Base == types.DOUBLE
		if opTok.Code == token.ADD {
			if isDouble {
				p.prog.Emit(vm.ADD_F)
			} else {
				p.prog.Emit(vm.ADD_I)
			}
		} else {
			if isDouble {
				p.prog.Emit(vm.SUB_F)
			} else {
				p.prog.Emit(vm.SUB_I)
			}
		}
		left = codegen.NonLval(result)
	}
	return left
}

func (p *Parser) exprMul() codegen.Ret { return p.exprMulFrom(p.exprCast()) }

func (p *Parser) exprMulFrom(first codegen.Ret) codegen.Ret {
	left := first
	for p.is(token.MUL) || p.is(token.DIV) {
		opTok := p.cur()
		p.advance()
		codegen.AddRVal(p.prog, left)
		leftInstr := p.prog.Last()
		if !left.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of '%s' must be a numeric scalar", opTok.Code)
		}
		right := p.exprCast()
		codegen.AddRVal(p.prog, right)
		if !right.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of '%s' must be a numeric scalar", opTok.Code)
		}
		result, ok := types.ArithTypeTo(left.Type, right.Type)
		if !ok {
			p.fatalf(opTok.Line, "incompatible operand types for '%s'", opTok.Code)
		}
		codegen.InsertConvIfNeeded(p.prog, leftInstr, left.Type, result)
		codegen.EmitConvIfNeeded(p.prog, right.Type, result)
		isDouble := result.Base == types.DOUBLE
		if opTok.Code == token.MUL {
			if isDouble {
				p.prog.Emit(vm.MUL_F)
			} else {
				p.prog.Emit(vm.MUL_I)
			}
		} else {
			if isDouble {
				p.prog.Emit(vm.DIV_F)
			} else {
				p.prog.Emit(vm.DIV_I)
			}
		}
		left = codegen.NonLval(result)
	}
	return left
}

// exprCast tries '(' typeBase arrayDecl? ')' exprCast, rewinding fully
// if the trial fails at any point up to the closing ')' (so a plain
// parenthesized expression like `(x + 1)` falls through to exprUnary
// unharmed). Once the ')' is seen, it commits: the inner expression is
// required, and a struct or array/scalar shape mismatch is fatal.
func (p *Parser) exprCast() codegen.Ret {
	mark := p.i
	if p.is(token.LPAR) {
		p.advance()
		if t, ok := p.typeBase(); ok {
			ad := p.arrayDecl()
			if p.is(token.RPAR) {
				line := p.cur().Line
				p.advance()
				target := t
				if ad.present {
					dim := types.Unsized
					if ad.hasDim {
						dim = ad.dim
					}
					target = types.NewArray(t.Base, t.StructRef, dim)
				}
				inner := p.exprCast()
				if inner.Type.Base == types.STRUCT || target.Base == types.STRUCT {
					p.fatalf(line, "cannot cast to or from a struct type")
				}
				if inner.Type.IsArray() != target.IsArray() {
					p.fatalf(line, "cannot cast between an array and a scalar type")
				}
				codegen.AddRVal(p.prog, inner)
				codegen.EmitConvIfNeeded(p.prog, inner.Type, target)
				return codegen.NonLval(target)
			}
		}
		p.i = mark
	}
	return p.exprUnary()
}

func (p *Parser) exprUnary() codegen.Ret {
	if p.is(token.SUB) {
		opTok := p.cur()
		p.advance()
		operand := p.exprUnary()
		codegen.AddRVal(p.prog, operand)
		if !operand.Type.IsNumericScalar() {
			p.fatalf(opTok.Line, "operand of unary '-' must be a numeric scalar")
		}
		if operand.Type.Base == types.DOUBLE {
			p.prog.Emit(vm.NEG_F)
		} else {
			p.prog.Emit(vm.NEG_I)
		}
		return codegen.NonLval(operand.Type)
	}
	if p.is(token.NOT) {
		opTok := p.cur()
		p.advance()
		operand := p.exprUnary()
		codegen.AddRVal(p.prog, operand)
		if !types.CanBeScalar(operand.Type) {
			p.fatalf(opTok.Line, "operand of '!' must be scalar")
		}
		if operand.Type.Base == types.DOUBLE {
			// The ISA has no float NOT: a double is falsy iff it
			// equals 0.0, so '!' on a double is emitted as a
			// comparison against a literal zero instead.
			p.prog.Emit(vm.PUSH_F).SetDouble(0)
			p.prog.Emit(vm.EQUAL_F)
		} else {
			p.prog.Emit(vm.NOT)
		}
		return codegen.NonLval(types.NewScalar(types.INT))
	}
	return p.exprPostfix()
}

// exprPostfix handles the '[' expr ']' and '.' ID suffixes that chain
// onto a primary expression, building up an Addr whose Runtime flag
// and pending offset track any array index already folded in so a
// following '.field' on the result (`arr[i].field`) adds its constant
// member offset on top of that pending value instead of overwriting it.
func (p *Parser) exprPostfix() codegen.Ret {
	r := p.exprPrimary()
	for {
		switch {
		case p.is(token.LBRACKET):
			line := p.cur().Line
			p.advance()
			if !r.Lval || !r.Type.IsArray() {
				p.fatalf(line, "cannot index a non-array value")
			}
			idx := p.expr()
			p.expectCode(token.RBRACKET, "missing ']'")
			codegen.AddRVal(p.prog, idx)
			if !idx.Type.IsNumericScalar() || idx.Type.Base == types.DOUBLE {
				p.fatalf(line, "an array index must be an int or char")
			}
			elemCells := codegen.ElementCellSize(r.Type)
			if elemCells != 1 {
				p.prog.Emit(vm.PUSH_I).SetInt(int64(elemCells))
				p.prog.Emit(vm.MUL_I)
			}
			codegen.FoldOffset(p.prog, &r.Addr)
			r.Type.N = types.Scalar
			r.CT = false
			r.Lval = true

		case p.is(token.DOT):
			line := p.cur().Line
			p.advance()
			idTok, ok := p.acceptID()
			if !ok {
				p.fatalf(line, "expected a field name after '.'")
			}
			if !r.Lval || r.Type.Base != types.STRUCT {
				p.fatalf(line, "field access on a non-struct value")
			}
			structSym, _ := r.Type.StructRef.(*symtab.Symbol)
			member, cellOff, ok := codegen.MemberOffset(structSym, idTok.Ident)
			if !ok {
				p.fatalf(line, "struct %s has no field %s", structSym.Name, idTok.Ident)
			}
			if !r.Addr.Runtime {
				r.Addr.Base += int64(cellOff)
			} else if cellOff != 0 {
				p.prog.Emit(vm.PUSH_I).SetInt(int64(cellOff))
				p.prog.Emit(vm.ADD_I)
			}
			r.Type = member.Type
			r.CT = false
			r.Lval = true

		default:
			return r
		}
	}
}

func (p *Parser) exprPrimary() codegen.Ret {
	tok := p.cur()
	switch tok.Code {
	case token.ID:
		p.advance()
		return p.identOrCall(tok)

	case token.INT:
		p.advance()
		p.prog.Emit(vm.PUSH_I).SetInt(tok.IntVal)
		return codegen.NonLval(types.NewScalar(types.INT))

	case token.DOUBLE:
		p.advance()
		p.prog.Emit(vm.PUSH_F).SetDouble(tok.DoubleVal)
		return codegen.NonLval(types.NewScalar(types.DOUBLE))

	case token.CHAR:
		p.advance()
		p.prog.Emit(vm.PUSH_I).SetInt(int64(tok.CharVal))
		return codegen.NonLval(types.NewScalar(types.CHAR))

	case token.STRING:
		p.advance()
		// The VM has no heap or string runtime representation, so a
		// string literal decays to a single placeholder cell: enough
		// to type-check and stack-balance a call to a function with
		// an unsized char array parameter, not to read the
		// characters back.
		p.prog.Emit(vm.PUSH_I).SetInt(0)
		return codegen.NonLval(types.NewArray(types.CHAR, nil, types.Unsized))

	case token.LPAR:
		p.advance()
		inner := p.expr()
		p.expectCode(token.RPAR, "missing ')'")
		return inner

	default:
		p.fatalf(tok.Line, "expected an expression")
		return codegen.Ret{}
	}
}

// identOrCall resolves idTok against the scope and, if it is followed
// by '(', requires it to name a function and parses the call;
// otherwise it must name a variable or parameter, resolved to its
// address by identRef.
func (p *Parser) identOrCall(idTok *token.Token) codegen.Ret {
	sym, ok := p.scope.Find(idTok.Ident)
	if !ok {
		p.fatalf(idTok.Line, "undefined identifier: %s", idTok.Ident)
	}
	if p.is(token.LPAR) {
		if sym.Kind != symtab.FN {
			p.fatalf(idTok.Line, "%s is not a function", idTok.Ident)
		}
		return p.call(idTok, sym)
	}
	if sym.Kind == symtab.FN {
		p.fatalf(idTok.Line, "function %s must be called", idTok.Ident)
	}
	return p.identRef(sym)
}

// identRef builds the lvalue Ret for a resolved variable or parameter,
// per the data model's per-storage-class frame/global addressing:
//   - a parameter whose own cells start at cumulative cell offset
//     Index, among T total parameter cells, sits at FP[-(T-Index+1)] -
//     the offset a left-to-right argument push (DESIGN.md's codegen
//     decision 1) leaves its first cell at, generalized from "one
//     param, one cell" to however many cells its type needs;
//   - a function-local whose own cells start at cumulative cell offset
//     Index sits at FP[Index+1] (locals start right after the saved FP
//     that ENTER pushes at FP[0]);
//   - a global addresses its own process-allocated backing store.
func (p *Parser) identRef(sym *symtab.Symbol) codegen.Ret {
	ct := sym.Type.IsArray()
	switch {
	case sym.Kind == symtab.PARAM:
		total := int64(symtab.ParamCellCount(sym.Owner))
		base := -(total - int64(sym.Index) + 1)
		r := codegen.LocalAddr(sym.Type, base, false)
		r.CT = ct
		return r
	case sym.Kind == symtab.VAR && sym.Owner != nil:
		base := int64(sym.Index + 1)
		r := codegen.LocalAddr(sym.Type, base, false)
		r.CT = ct
		return r
	default:
		r := codegen.GlobalAddr(sym.Type, sym.Global, 0, false)
		r.CT = ct
		return r
	}
}

// call parses a parenthesized, comma-separated argument list
// (already positioned just after fn's name), checks arity and
// per-argument convertibility, splices an implicit conversion after
// each argument that needs one, and emits CALL or CALL_EXT.
func (p *Parser) call(idTok *token.Token, fn *symtab.Symbol) codegen.Ret {
	p.advance() // '('

	var argTypes []types.Type
	var argInstrs []*vm.Instruction
	if !p.is(token.RPAR) {
		for {
			arg := p.exprAssign()
			p.requireWholeCopyable(idTok.Line, arg)
			codegen.AddRVal(p.prog, arg)
			argInstrs = append(argInstrs, p.prog.Last())
			argTypes = append(argTypes, arg.Type)
			if !p.accept(token.COMMA) {
				break
			}
		}
	}
	p.expectCode(token.RPAR, "missing ')' in call to "+fn.Name)

	if len(argTypes) != len(fn.Params) {
		p.fatalf(idTok.Line, "function %s expects %d argument(s), got %d", fn.Name, len(fn.Params), len(argTypes))
	}
	for i, param := range fn.Params {
		if !types.ConvTo(argTypes[i], param.Type) {
			p.fatalf(idTok.Line, "argument %d of %s: cannot convert %s to %s", i+1, fn.Name, argTypes[i], param.Type)
		}
		codegen.InsertConvIfNeeded(p.prog, argInstrs[i], argTypes[i], param.Type)
	}

	if fn.NativeFn != nil {
		p.prog.Emit(vm.CALL_EXT).SetExtern(fn.NativeFn)
	} else {
		entry, _ := fn.CodeEntry.(*vm.Instruction)
		p.prog.Emit(vm.CALL).SetJump(entry)
	}
	return codegen.NonLval(fn.Type)
}
