package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/chainproof/verify/pkg/client"
)

func newVerifyCmd() *cobra.Command {
	var (
		serverURL      string
		chain          string
		chosenContract string
		creatorTxHash  string
		output         string
	)

	cmd := &cobra.Command{
		Use:   "verify <address> [files...]",
		Short: "Submit a verification request to a running verifyd server",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address := args[0]
			files := make(map[string]client.FileInput, len(args)-1)
			for _, path := range args[1:] {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				files[filepath.Base(path)] = client.FileInput{Content: string(content)}
			}

			c := client.New(serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			resp, err := c.Verify(ctx, client.VerifyRequest{
				Address:        address,
				Chain:          chain,
				ChosenContract: chosenContract,
				CreatorTxHash:  creatorTxHash,
				Files:          files,
			})
			if err != nil {
				return err
			}

			return writeOutput(cmd.OutOrStdout(), output, resp)
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "verifyd server base URL")
	cmd.Flags().StringVar(&chain, "chain", "1", "chain id")
	cmd.Flags().StringVar(&chosenContract, "contract", "", "contract name, required when the upload contains more than one")
	cmd.Flags().StringVar(&creatorTxHash, "creator-tx", "", "known deployment transaction hash")
	cmd.Flags().StringVar(&output, "output", "json", "output format: json or yaml")

	return cmd
}
