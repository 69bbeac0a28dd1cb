package server

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/chainproof/verify/internal/chainregistry"
	"github.com/chainproof/verify/internal/verifyerr"
)

func writeChainsFixture(t *testing.T, toml string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "chains.toml")
	require.NoError(t, os.WriteFile(path, []byte(toml), 0o644))
	return path
}

func TestChainClientsCodeAtUnsupportedChain(t *testing.T) {
	registry, err := chainregistry.Load("")
	require.NoError(t, err)

	clients := newChainClients(registry)
	_, err = clients.CodeAt(context.Background(), "999", common.HexToAddress("0x1234567890123456789012345678901234567890"))
	require.Error(t, err)
	verr, ok := verifyerr.As(err)
	require.True(t, ok)
	require.Equal(t, verifyerr.KindUnsupportedChain, verr.Kind)
}

func TestChainClientsFindFailsWithoutRPC(t *testing.T) {
	registry, err := chainregistry.Load("")
	require.NoError(t, err)

	clients := newChainClients(registry)
	_, ok := clients.Find(context.Background(), "1", common.HexToAddress("0x1234567890123456789012345678901234567890"))
	require.False(t, ok)
}

func TestExplorerClientsResolve(t *testing.T) {
	path := writeChainsFixture(t, `
[chains.1]
name = "mainnet"
explorer_url = "https://api.etherscan.io/api"
explorer_api = "key"
`)
	registry, err := chainregistry.Load(path)
	require.NoError(t, err)

	clients := newExplorerClients(registry)

	client, ok := clients.Resolve("1")
	require.True(t, ok)
	require.Equal(t, "https://api.etherscan.io/api", client.BaseURL)

	_, ok = clients.Resolve("999")
	require.False(t, ok)
}
