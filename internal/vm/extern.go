package vm

import (
	"fmt"
	"io"

	"atomc/internal/symtab"
	"atomc/internal/types"
)

// RegisterExterns installs the two host intrinsics the data model
// requires into scope's global domain: put_i and put_d, each printing
// its single argument to out per the CALL_EXT convention (pop the
// argument, perform the side effect, push nothing since both are
// void).
func RegisterExterns(scope *symtab.Scope, out io.Writer) {
	putI := scope.AddExtFn("put_i", types.NewScalar(types.VOID), func(pop func() types.Cell, push func(types.Cell)) {
		v := pop()
		fmt.Fprintf(out, "=> %d\n", v.I)
	})
	symtab.AddFnParam(putI, "i", types.NewScalar(types.INT))

	putD := scope.AddExtFn("put_d", types.NewScalar(types.VOID), func(pop func() types.Cell, push func(types.Cell)) {
		v := pop()
		fmt.Fprintf(out, "=> %g\n", v.F)
	})
	symtab.AddFnParam(putD, "d", types.NewScalar(types.DOUBLE))
}
