// Command tuplebatch writes relationship tuples from a JSON-lines file in
// chunked, concurrent, retrying batches, and manages the local dead-letter
// spool of chunks that did not make it.
package main

import (
	"errors"
	"os"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

// run executes the CLI and returns the process exit code.
func run(args []string) int {
	a := &app{}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		var shown reportedError
		if !errors.As(err, &shown) {
			printError(err.Error())
		}
		return 1
	}
	return 0
}

// reportedError marks failures whose details were already printed.
type reportedError interface {
	error
	reported()
}
