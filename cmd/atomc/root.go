package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"atomc/internal/diag"
	"atomc/internal/lexer"
	"atomc/internal/parser"
	"atomc/internal/printer"
	"atomc/internal/symtab"
	"atomc/internal/vm"
)

var log = logrus.New()

// run builds and executes the root command against args, returning
// the process exit code (0 on success, 1 on any compile or runtime
// failure) instead of calling os.Exit itself, so it stays testable.
func run(args []string) int {
	var (
		showTokens  bool
		symbolsOf   string
		traceExec   bool
		doRun       bool
		noColor     bool
		verbose     bool
	)

	root := &cobra.Command{
		Use:           "atomc <source-file>",
		Short:         "Compile and run an AtomC program",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, posArgs []string) error {
			if noColor {
				color.NoColor = true
			}
			if verbose {
				log.SetLevel(logrus.DebugLevel)
			}

			srcBytes, err := os.ReadFile(posArgs[0])
			if err != nil {
				return err
			}
			src := string(srcBytes)

			rep := &diag.Reporter{Out: cmd.ErrOrStderr()}

			if showTokens {
				log.Debug("lexing for --tokens dump")
				head, lexErr := lexer.Lex(src, rep)
				if lexErr != nil {
					return lexErr
				}
				printer.Tokens(cmd.OutOrStdout(), head)
			}

			log.WithField("file", posArgs[0]).Debug("compiling")
			scope, prog, compErr := parser.Compile(src, rep, cmd.OutOrStdout())
			if compErr != nil {
				return compErr
			}

			if symbolsOf != "" {
				dumpSymbols(cmd, scope, symbolsOf)
			}

			if !doRun {
				return nil
			}

			m := vm.NewMachine(cmd.OutOrStdout())
			m.Reporter = &diag.Reporter{Out: cmd.ErrOrStderr()}
			if traceExec {
				m.Trace = func(line string) {
					fmt.Fprintln(cmd.ErrOrStderr(), printer.TraceLine(line))
				}
			}
			log.Debug("running")
			return m.Run(prog.Head())
		},
	}

	root.Flags().BoolVar(&showTokens, "tokens", false, "dump the token stream before compiling")
	root.Flags().StringVar(&symbolsOf, "symbols", "", "dump the symbol table of the named domain (\"global\" or a function name) after compiling")
	root.Flags().BoolVar(&traceExec, "trace", false, "print an execution trace while running")
	root.Flags().BoolVar(&doRun, "run", true, "run the compiled program")
	root.Flags().BoolVar(&noColor, "no-color", false, "disable colorized output")
	root.Flags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		if atomErr, ok := err.(*diag.Error); ok {
			fmt.Fprintln(os.Stderr, atomErr)
		} else {
			fmt.Fprintln(os.Stderr, "atomc:", err)
		}
		return 1
	}
	return 0
}

// dumpSymbols resolves "global" or a function name to the matching
// domain and prints it; a function name is looked up among the global
// domain's FN symbols since only the global domain survives compiling
// (function-local domains are discarded when Scope.Pop runs).
func dumpSymbols(cmd *cobra.Command, scope *symtab.Scope, name string) {
	if name == "global" {
		printer.Symbols(cmd.OutOrStdout(), scope.Global())
		return
	}
	sym, ok := scope.Global().Find(name)
	if !ok || sym.Kind != symtab.FN {
		fmt.Fprintf(cmd.ErrOrStderr(), "atomc: no such function domain: %s\n", name)
		return
	}
	fnDomain := &symtab.Domain{Symbols: append(append([]*symtab.Symbol{}, sym.Params...), localsAsSymbols(sym)...)}
	printer.Symbols(cmd.OutOrStdout(), fnDomain)
}

func localsAsSymbols(fn *symtab.Symbol) []*symtab.Symbol {
	return fn.Locals
}
