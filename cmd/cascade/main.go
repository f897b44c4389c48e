package main

import (
	"fmt"
	"os"
)

func main() {
	Execute()
}

// fatal prints a prefixed error and exits. Subcommands use it instead of
// returning errors so cobra's usage text is not printed after a failure.
func fatal(msg string, err error) {
	fmt.Fprintf(os.Stderr, "cascade: %s: %v\n", msg, err)
	os.Exit(1)
}
