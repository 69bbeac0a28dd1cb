// Package cli implements the verifyd command-line surface: running the
// server and driving it as a client from the shell.
package cli

import (
	"github.com/spf13/cobra"
)

// Execute runs the root command.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "verifyd",
		Short: "Smart-contract source verification service",
	}

	root.AddCommand(newServeCmd())
	root.AddCommand(newVerifyCmd())
	root.AddCommand(newSessionCmd())

	return root
}
