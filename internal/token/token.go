// Package token defines the token kinds and the linked token list the
// lexer produces and the parser consumes.
package token

import "fmt"

// Code identifies the kind of a token.
type Code int

const (
	// identifiers
	ID Code = iota

	// keywords
	TYPE_INT
	TYPE_CHAR
	TYPE_DOUBLE
	IF
	ELSE
	WHILE
	VOID
	RETURN
	STRUCT

	// literals
	INT
	DOUBLE
	CHAR
	STRING

	// delimiters
	COMMA
	SEMICOLON
	LPAR
	RPAR
	LBRACKET
	RBRACKET
	LACC
	RACC
	END

	// operators
	ADD
	SUB
	MUL
	DIV
	DOT
	AND
	OR
	NOT
	ASSIGN
	EQUAL
	NOTEQ
	LESS
	LESSEQ
	GREATER
	GREATEREQ
)

var names = map[Code]string{
	ID:          "ID",
	TYPE_INT:    "TYPE_INT",
	TYPE_CHAR:   "TYPE_CHAR",
	TYPE_DOUBLE: "TYPE_DOUBLE",
	IF:          "IF",
	ELSE:        "ELSE",
	WHILE:       "WHILE",
	VOID:        "VOID",
	RETURN:      "RETURN",
	STRUCT:      "STRUCT",
	INT:         "INT",
	DOUBLE:      "DOUBLE",
	CHAR:        "CHAR",
	STRING:      "STRING",
	COMMA:       "COMMA",
	SEMICOLON:   "SEMICOLON",
	LPAR:        "LPAR",
	RPAR:        "RPAR",
	LBRACKET:    "LBRACKET",
	RBRACKET:    "RBRACKET",
	LACC:        "LACC",
	RACC:        "RACC",
	END:         "END",
	ADD:         "ADD",
	SUB:         "SUB",
	MUL:         "MUL",
	DIV:         "DIV",
	DOT:         "DOT",
	AND:         "AND",
	OR:          "OR",
	NOT:         "NOT",
	ASSIGN:      "ASSIGN",
	EQUAL:       "EQUAL",
	NOTEQ:       "NOTEQ",
	LESS:        "LESS",
	LESSEQ:      "LESSEQ",
	GREATER:     "GREATER",
	GREATEREQ:   "GREATEREQ",
}

// String renders the code's canonical name, used by the token dump and
// in diagnostic messages.
func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return fmt.Sprintf("Code(%d)", int(c))
}

// keywords maps the nine reserved words to their token codes.
var keywords = map[string]Code{
	"int":    TYPE_INT,
	"char":   TYPE_CHAR,
	"double": TYPE_DOUBLE,
	"if":     IF,
	"else":   ELSE,
	"while":  WHILE,
	"void":   VOID,
	"return": RETURN,
	"struct": STRUCT,
}

// LookupKeyword reports whether text is one of the reserved words, and
// its code if so.
func LookupKeyword(text string) (Code, bool) {
	c, ok := keywords[text]
	return c, ok
}

// Token is a single lexed unit: its kind, source line, and exactly one
// of the value fields depending on Code.
type Token struct {
	Code Code
	Line int

	// Value payload - at most one of these is meaningful, selected by
	// Code (ID -> Ident, INT -> IntVal, DOUBLE -> DoubleVal,
	// CHAR -> CharVal, STRING -> StringVal).
	Ident     string
	IntVal    int64
	DoubleVal float64
	CharVal   byte
	StringVal string

	// Next links to the following token in the list; nil after END.
	Next *Token
}

// String renders a token for the token-dump pretty-printer:
// "LINE\tNAME[:VALUE]".
func (t *Token) String() string {
	switch t.Code {
	case ID:
		return fmt.Sprintf("%d\t%s:%s", t.Line, t.Code, t.Ident)
	case INT:
		return fmt.Sprintf("%d\t%s:%d", t.Line, t.Code, t.IntVal)
	case DOUBLE:
		return fmt.Sprintf("%d\t%s:%g", t.Line, t.Code, t.DoubleVal)
	case CHAR:
		return fmt.Sprintf("%d\t%s:%q", t.Line, t.Code, t.CharVal)
	case STRING:
		return fmt.Sprintf("%d\t%s:%q", t.Line, t.Code, t.StringVal)
	default:
		return fmt.Sprintf("%d\t%s", t.Line, t.Code)
	}
}

// Slice collects a linked token list (as produced by the lexer) into a
// slice, for callers that prefer indexed access. The list is expected to
// end with a token of Code END.
func Slice(head *Token) []*Token {
	var out []*Token
	for t := head; t != nil; t = t.Next {
		out = append(out, t)
		if t.Code == END {
			break
		}
	}
	return out
}
