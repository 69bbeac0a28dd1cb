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

func newSessionCmd() *cobra.Command {
	var (
		serverURL string
		output    string
	)

	cmd := &cobra.Command{
		Use:   "session",
		Short: "Drive the incremental session-upload flow against a running verifyd server",
	}
	cmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "verifyd server base URL")
	cmd.PersistentFlags().StringVar(&output, "output", "json", "output format: json or yaml")

	cmd.AddCommand(newSessionNewCmd(&serverURL))
	cmd.AddCommand(newSessionAddFilesCmd(&serverURL, &output))
	cmd.AddCommand(newSessionVerifyCmd(&serverURL, &output))

	return cmd
}

func newSessionNewCmd(serverURL *string) *cobra.Command {
	return &cobra.Command{
		Use:   "new",
		Short: "Mint a new session id",
		RunE: func(cmd *cobra.Command, args []string) error {
			c := client.New(*serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			id, err := c.NewSession(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newSessionAddFilesCmd(serverURL, output *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add-files <sessionId> <files...>",
		Short: "Upload sources into an existing session",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			files := make(map[string]client.FileInput, len(args)-1)
			for _, path := range args[1:] {
				content, err := os.ReadFile(path)
				if err != nil {
					return fmt.Errorf("reading %s: %w", path, err)
				}
				files[filepath.Base(path)] = client.FileInput{Content: string(content)}
			}

			c := client.New(*serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			snapshot, err := c.SessionInputFiles(ctx, sessionID, files)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), *output, snapshot)
		},
	}
}

func newSessionVerifyCmd(serverURL, output *string) *cobra.Command {
	var (
		address       string
		chainID       string
		contractID    string
		creatorTxHash string
	)

	cmd := &cobra.Command{
		Use:   "verify <sessionId>",
		Short: "Set a verification target and resolve every ready contract in the session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sessionID := args[0]
			targets := map[string]client.SessionTarget{
				contractID: {Address: address, ChainID: chainID, CreatorTxHash: creatorTxHash},
			}

			c := client.New(*serverURL)
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()

			snapshot, err := c.SessionVerifyContracts(ctx, sessionID, targets)
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), *output, snapshot)
		},
	}

	cmd.Flags().StringVar(&contractID, "contract-id", "", "contract id from the session snapshot")
	cmd.Flags().StringVar(&address, "address", "", "deployed contract address")
	cmd.Flags().StringVar(&chainID, "chain", "1", "chain id")
	cmd.Flags().StringVar(&creatorTxHash, "creator-tx", "", "known deployment transaction hash")
	cmd.MarkFlagRequired("contract-id")
	cmd.MarkFlagRequired("address")

	return cmd
}
