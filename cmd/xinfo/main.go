// Command xinfo displays X$ table meta-information decoded from a database
// engine executable.
package main

import (
	"fmt"
	"os"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	root := newRootCmd()
	if len(os.Args) < 2 {
		root.SetOut(os.Stderr)
		_ = root.Usage()
		os.Exit(1)
	}
	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
