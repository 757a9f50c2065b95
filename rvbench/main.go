// Command rvbench runs RV32 ELF programs on a cycle-level core.
package main

import (
	"github.com/sarchlab/rvbench/rvbench/cmd"
	"github.com/tebeka/atexit"
)

func main() {
	atexit.Exit(cmd.Execute())
}
