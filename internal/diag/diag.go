// Package diag implements the single fatal-error reporter used by every
// phase of the AtomC toolchain: the lexer, the parser/semantic analyzer,
// and the VM all raise through it rather than rolling their own error
// formatting.
package diag

import (
	"fmt"
	"io"
	"os"
)

// Error is a fatal diagnostic. Line is -1 when the reporting phase has
// no source line to attach (e.g. VM runtime errors after the call stack
// no longer maps to source).
type Error struct {
	Line int
	Msg  string
}

func (e *Error) Error() string {
	if e.Line < 0 {
		return fmt.Sprintf("Error: %s", e.Msg)
	}
	return fmt.Sprintf("Error at line %d: %s", e.Line, e.Msg)
}

// NoLine marks a diagnostic as having no associated source line.
const NoLine = -1

// Reporter formats and raises fatal errors. The zero value writes to
// os.Stderr.
type Reporter struct {
	// Out receives the formatted message before the panic unwinds,
	// mirroring the reference implementation's immediate fprintf+exit.
	// Kept separate from the panic payload so callers that want the
	// text on the wire (e.g. for a captured CLI run) don't have to
	// re-derive it from the recovered error.
	Out io.Writer
}

func (r *Reporter) out() io.Writer {
	if r.Out == nil {
		return os.Stderr
	}
	return r.Out
}

// Fatalf formats a message and raises it as a fatal diagnostic. It never
// returns: it panics with *Error, which every public entry point
// (lexer.Lex, parser.Compile, vm.Run) recovers and turns back into a
// plain error, so a library caller never sees the panic and a single
// misbehaving compile doesn't take down a whole test binary.
func (r *Reporter) Fatalf(line int, format string, args ...any) {
	e := &Error{Line: line, Msg: fmt.Sprintf(format, args...)}
	fmt.Fprintln(r.out(), e.Error())
	panic(e)
}

// Recover turns a panic raised by Fatalf into a returned error. Call it
// deferred, with err as the named return value of the recovering
// function. Any other panic value is re-raised.
func Recover(err *error) {
	if r := recover(); r != nil {
		if e, ok := r.(*Error); ok {
			*err = e
			return
		}
		panic(r)
	}
}
