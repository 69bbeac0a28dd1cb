// Command verifyd runs the smart-contract source verification service,
// or drives a running instance of it from the shell.
package main

import (
	"fmt"
	"os"

	"github.com/chainproof/verify/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
