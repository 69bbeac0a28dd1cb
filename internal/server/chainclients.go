package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainproof/verify/internal/chainregistry"
	"github.com/chainproof/verify/internal/creatortx"
	"github.com/chainproof/verify/internal/etherscan"
	"github.com/chainproof/verify/internal/rpcclient"
	"github.com/chainproof/verify/internal/verifyerr"
	"github.com/ethereum/go-ethereum/common"
)

// recentBlockLookback bounds RecentBlockScanner's best-effort creator-tx
// search, per spec §12.2.
const recentBlockLookback = 256

// chainClients lazily dials an RPC endpoint per chain id, adapting
// go-ethereum's per-chain client into the coordinator's multi-chain
// domain.CodeFetcher and domain.CreatorTxFinder collaborators.
type chainClients struct {
	registry *chainregistry.Registry

	mu      sync.Mutex
	clients map[string]*rpcclient.EthClient
	finders map[string]creatortx.Finder
}

func newChainClients(registry *chainregistry.Registry) *chainClients {
	return &chainClients{
		registry: registry,
		clients:  make(map[string]*rpcclient.EthClient),
		finders:  make(map[string]creatortx.Finder),
	}
}

func (c *chainClients) client(ctx context.Context, chainID string) (*rpcclient.EthClient, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if client, ok := c.clients[chainID]; ok {
		return client, nil
	}

	chain, ok := c.registry.Get(chainID)
	if !ok || chain.RPCURL == "" {
		return nil, verifyerr.New(verifyerr.KindUnsupportedChain, fmt.Sprintf("no RPC endpoint configured for chain %s", chainID))
	}

	client, err := rpcclient.Dial(ctx, chain.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dialing chain %s: %w", chainID, err)
	}
	c.clients[chainID] = client
	c.finders[chainID] = creatortx.NewRecentBlockScanner(client.Raw(), recentBlockLookback)
	return client, nil
}

// CodeAt implements domain.CodeFetcher.
func (c *chainClients) CodeAt(ctx context.Context, chainID string, address common.Address) ([]byte, error) {
	client, err := c.client(ctx, chainID)
	if err != nil {
		return nil, err
	}
	return client.CodeAt(ctx, address)
}

// Find implements domain.CreatorTxFinder.
func (c *chainClients) Find(ctx context.Context, chainID string, address common.Address) (string, bool) {
	if _, err := c.client(ctx, chainID); err != nil {
		return "", false
	}
	c.mu.Lock()
	finder := c.finders[chainID]
	c.mu.Unlock()
	if finder == nil {
		return "", false
	}
	return finder.Find(ctx, address)
}

// explorerClients resolves an etherscan.Client per chain from the chain
// registry's explorer configuration, implementing
// transport.EtherscanResolver.
type explorerClients struct {
	registry *chainregistry.Registry

	mu      sync.Mutex
	clients map[string]*etherscan.Client
}

func newExplorerClients(registry *chainregistry.Registry) *explorerClients {
	return &explorerClients{registry: registry, clients: make(map[string]*etherscan.Client)}
}

// Resolve implements transport.EtherscanResolver.
func (e *explorerClients) Resolve(chainID string) (*etherscan.Client, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if client, ok := e.clients[chainID]; ok {
		return client, true
	}

	chain, ok := e.registry.Get(chainID)
	if !ok || chain.ExplorerURL == "" {
		return nil, false
	}

	client := etherscan.New(chain.ExplorerURL, chain.ExplorerAPI)
	e.clients[chainID] = client
	return client, true
}
