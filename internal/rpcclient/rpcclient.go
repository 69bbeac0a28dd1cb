// Package rpcclient provides the concrete go-ethereum-backed
// implementation of the OnchainCodeFetcher collaborator the
// VerificationCoordinator depends on (spec §4.7 step 2). The interface
// itself is the contractual boundary; this is one swappable
// implementation of it.
package rpcclient

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// CodeFetcher fetches the runtime bytecode deployed at an address.
type CodeFetcher interface {
	CodeAt(ctx context.Context, address common.Address) ([]byte, error)
	Close()
}

// EthClient adapts go-ethereum's ethclient.Client to CodeFetcher.
type EthClient struct {
	client *ethclient.Client
}

// Dial connects to the given RPC endpoint.
func Dial(ctx context.Context, rawURL string) (*EthClient, error) {
	c, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, fmt.Errorf("dialing rpc endpoint: %w", err)
	}
	return &EthClient{client: c}, nil
}

// CodeAt fetches the latest code at address.
func (e *EthClient) CodeAt(ctx context.Context, address common.Address) ([]byte, error) {
	return e.client.CodeAt(ctx, address, nil)
}

// Close releases the underlying RPC connection.
func (e *EthClient) Close() {
	e.client.Close()
}

// Raw exposes the underlying go-ethereum client for collaborators (such
// as internal/creatortx) that need operations beyond CodeFetcher.
func (e *EthClient) Raw() *ethclient.Client {
	return e.client
}
