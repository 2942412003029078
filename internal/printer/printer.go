// Package printer renders the three debug views the command line
// exposes: the raw token stream, a domain's symbol table, and a
// running program's execution trace. None of this is exercised by
// compilation itself - it is read-only tooling over the structures
// internal/token, internal/symtab, and internal/vm already build.
package printer

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/fatih/color"

	"atomc/internal/symtab"
	"atomc/internal/token"
	"atomc/internal/types"
)

// Tokens writes one "LINE\tNAME[:VALUE]" row per token, up to and
// including the terminating END, colorizing the kind/value part of
// each line when w is a color-capable writer.
func Tokens(w io.Writer, head *token.Token) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	kind := color.New(color.FgCyan)
	for t := head; t != nil; t = t.Next {
		fmt.Fprintln(tw, colorizeAfterTab(t.String(), kind))
		if t.Code == token.END {
			break
		}
	}
	tw.Flush()
}

// colorizeAfterTab recolors everything after the first tab in s,
// leaving a leading "LINE\t" column untouched.
func colorizeAfterTab(s string, c *color.Color) string {
	for i, r := range s {
		if r == '\t' {
			return s[:i+1] + c.Sprint(s[i+1:])
		}
	}
	return s
}

// Symbols renders domain's own symbols (not its ancestors') as C-like
// declarations, each annotated with its symtab.Symbol.Index - a struct
// member's byte offset, or a function-local's or parameter's
// cumulative cell offset in the frame (0 for a global) - to make
// frame/struct layout legible.
func Symbols(w io.Writer, domain *symtab.Domain) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	name := color.New(color.FgYellow, color.Bold)
	for _, sym := range domain.Symbols {
		switch sym.Kind {
		case symtab.STRUCT:
			fmt.Fprintf(tw, "struct %s\t{ %d member(s) }\n", name.Sprint(sym.Name), len(sym.StructMembers))
		case symtab.FN:
			fmt.Fprintf(tw, "%s %s\t(%d param(s))\n", sym.Type, name.Sprint(sym.Name), len(sym.Params))
		case symtab.PARAM:
			fmt.Fprintf(tw, "%s %s\t// param #%d\n", sym.Type, name.Sprint(sym.Name), sym.Index)
		default:
			fmt.Fprintf(tw, "%s %s\t// offset %d, size %d\n", sym.Type, name.Sprint(sym.Name), sym.Index, types.TypeSize(sym.Type))
		}
	}
	tw.Flush()
}

// TraceLine formats one executed-instruction line for the VM's
// tracing hook ("addr/depth\tMNEMONIC ARG"), coloring the
// mnemonic/argument part so it stands out against the address column.
func TraceLine(line string) string {
	return colorizeAfterTab(line, color.New(color.FgGreen))
}
