// Command atomc compiles and runs AtomC source files against the
// in-process stack VM.
package main

import "os"

func main() {
	os.Exit(run(os.Args[1:]))
}
