package token

import "testing"

// Test looking up keywords succeeds for all nine reserved words, then
// fails for an identifier that isn't one.
func TestLookupKeyword(t *testing.T) {
	for word, want := range keywords {
		got, ok := LookupKeyword(word)
		if !ok {
			t.Errorf("LookupKeyword(%q) = not found, want %s", word, want)
			continue
		}
		if got != want {
			t.Errorf("LookupKeyword(%q) = %s, want %s", word, got, want)
		}
	}

	if _, ok := LookupKeyword("foobar"); ok {
		t.Errorf("LookupKeyword(%q) unexpectedly succeeded", "foobar")
	}
}

func TestCodeStringUnknown(t *testing.T) {
	var c Code = 999
	if got, want := c.String(), "Code(999)"; got != want {
		t.Errorf("Code(999).String() = %q, want %q", got, want)
	}
}

func TestTokenString(t *testing.T) {
	tests := []struct {
		tok  *Token
		want string
	}{
		{&Token{Code: ID, Line: 3, Ident: "x"}, "3\tID:x"},
		{&Token{Code: INT, Line: 1, IntVal: 42}, "1\tINT:42"},
		{&Token{Code: DOUBLE, Line: 2, DoubleVal: 3.5}, "2\tDOUBLE:3.5"},
		{&Token{Code: CHAR, Line: 1, CharVal: 'a'}, "1\tCHAR:'a'"},
		{&Token{Code: SEMICOLON, Line: 7}, "7\tSEMICOLON"},
	}
	for _, tt := range tests {
		if got := tt.tok.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestSliceStopsAtEnd(t *testing.T) {
	head := &Token{Code: ID, Ident: "a"}
	mid := &Token{Code: END}
	tail := &Token{Code: ID, Ident: "unreachable"}
	head.Next = mid
	mid.Next = tail

	got := Slice(head)
	if len(got) != 2 {
		t.Fatalf("Slice returned %d tokens, want 2 (stop at END)", len(got))
	}
	if got[0] != head || got[1] != mid {
		t.Errorf("Slice returned the wrong tokens")
	}
}
