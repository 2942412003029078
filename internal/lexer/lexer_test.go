package lexer

import (
	"testing"

	"atomc/internal/diag"
	"atomc/internal/token"
)

func lexAll(t *testing.T, src string) []*token.Token {
	t.Helper()
	head, err := Lex(src, &diag.Reporter{})
	if err != nil {
		t.Fatalf("Lex(%q) returned unexpected error: %v", src, err)
	}
	return token.Slice(head)
}

func TestLexKeywordsAndIdentifiers(t *testing.T) {
	toks := lexAll(t, "int x = foo;")

	tests := []struct {
		code  token.Code
		ident string
	}{
		{token.TYPE_INT, ""},
		{token.ID, "x"},
		{token.ASSIGN, ""},
		{token.ID, "foo"},
		{token.SEMICOLON, ""},
		{token.END, ""},
	}
	if len(toks) != len(tests) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(tests))
	}
	for i, tt := range tests {
		if toks[i].Code != tt.code {
			t.Errorf("token[%d].Code = %s, want %s", i, toks[i].Code, tt.code)
		}
		if tt.ident != "" && toks[i].Ident != tt.ident {
			t.Errorf("token[%d].Ident = %q, want %q", i, toks[i].Ident, tt.ident)
		}
	}
}

func TestLexTwoCharOperators(t *testing.T) {
	toks := lexAll(t, "&& || == != <= >=")
	want := []token.Code{token.AND, token.OR, token.EQUAL, token.NOTEQ, token.LESSEQ, token.GREATEREQ, token.END}
	if len(toks) != len(want) {
		t.Fatalf("got %d tokens, want %d", len(toks), len(want))
	}
	for i, code := range want {
		if toks[i].Code != code {
			t.Errorf("token[%d].Code = %s, want %s", i, toks[i].Code, code)
		}
	}
}

func TestLexNumbers(t *testing.T) {
	toks := lexAll(t, "3 3.5 3.5e2 3e-1")
	if len(toks) != 5 {
		t.Fatalf("got %d tokens, want 5", len(toks))
	}
	if toks[0].Code != token.INT || toks[0].IntVal != 3 {
		t.Errorf("toks[0] = %+v, want INT:3", toks[0])
	}
	for i := 1; i < 4; i++ {
		if toks[i].Code != token.DOUBLE {
			t.Errorf("toks[%d].Code = %s, want DOUBLE", i, toks[i].Code)
		}
	}
}

func TestLexDotRequiresDigitForDouble(t *testing.T) {
	// a dot following a digit run with no following digit (or exponent)
	// is not part of the number; since it is followed by an identifier
	// character, it lexes as its own DOT token after the INT.
	toks := lexAll(t, "3.x")
	if toks[0].Code != token.INT || toks[0].IntVal != 3 {
		t.Fatalf("toks[0] = %+v, want INT:3", toks[0])
	}
	if toks[1].Code != token.DOT {
		t.Fatalf("toks[1].Code = %s, want DOT", toks[1].Code)
	}
}

// TestLexDotExponentWithNoFractionalDigits guards spec.md's numeric
// literal rule: the fractional digit after '.' may be omitted exactly
// when an exponent follows, so "3.e5" is one DOUBLE token (300000),
// not INT(3) DOT ID(e5).
func TestLexDotExponentWithNoFractionalDigits(t *testing.T) {
	toks := lexAll(t, "3.e5 3.E2")
	if len(toks) != 3 {
		t.Fatalf("got %d tokens, want 3 (DOUBLE, DOUBLE, END)", len(toks))
	}
	if toks[0].Code != token.DOUBLE || toks[0].DoubleVal != 300000 {
		t.Errorf("toks[0] = %+v, want DOUBLE:300000", toks[0])
	}
	if toks[1].Code != token.DOUBLE || toks[1].DoubleVal != 300 {
		t.Errorf("toks[1] = %+v, want DOUBLE:300", toks[1])
	}
}

func TestLexStringAndCharLiterals(t *testing.T) {
	toks := lexAll(t, `"hi\n" 'a' '\t'`)
	if toks[0].Code != token.STRING || toks[0].StringVal != "hi\n" {
		t.Errorf("toks[0] = %+v, want STRING:\"hi\\n\"", toks[0])
	}
	if toks[1].Code != token.CHAR || toks[1].CharVal != 'a' {
		t.Errorf("toks[1] = %+v, want CHAR:'a'", toks[1])
	}
	if toks[2].Code != token.CHAR || toks[2].CharVal != '\t' {
		t.Errorf("toks[2] = %+v, want CHAR:'\\t'", toks[2])
	}
}

func TestLexLineComment(t *testing.T) {
	toks := lexAll(t, "int x; // trailing comment\nint y;")
	var codes []token.Code
	for _, tk := range toks {
		codes = append(codes, tk.Code)
	}
	want := []token.Code{token.TYPE_INT, token.ID, token.SEMICOLON, token.TYPE_INT, token.ID, token.SEMICOLON, token.END}
	if len(codes) != len(want) {
		t.Fatalf("got %d tokens %v, want %d", len(codes), codes, len(want))
	}
	if toks[3].Line != 2 {
		t.Errorf("second line's first token has Line=%d, want 2", toks[3].Line)
	}
}

func TestLexBareAmpersandIsFatal(t *testing.T) {
	_, err := Lex("a & b", &diag.Reporter{})
	if err == nil {
		t.Fatalf("expected an error for bare '&'")
	}
}

func TestLexUnterminatedStringIsFatal(t *testing.T) {
	_, err := Lex(`"unterminated`, &diag.Reporter{})
	if err == nil {
		t.Fatalf("expected an error for an unterminated string literal")
	}
}

func TestLexInvalidCharacterIsFatal(t *testing.T) {
	_, err := Lex("int x = $;", &diag.Reporter{})
	if err == nil {
		t.Fatalf("expected an error for an invalid character")
	}
}
