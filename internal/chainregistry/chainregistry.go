// Package chainregistry is the minimal chain-configuration registry
// shim of spec §12.1: the real registry is an external collaborator per
// spec.md §1, but the coordinator still needs somewhere to resolve an
// RPC endpoint, so this loads a local chains.toml fixture the way the
// teacher's internal/config.Load loads its environment, applied to a
// file instead.
package chainregistry

import (
	"fmt"
	"sync"

	"github.com/BurntSushi/toml"
	"github.com/chainproof/verify/internal/config"
)

// Chain describes one chain entry from chains.toml.
type Chain struct {
	Name        string `toml:"name"`
	RPCURL      string `toml:"rpc_url"`
	ExplorerURL string `toml:"explorer_url"`
	ExplorerAPI string `toml:"explorer_api"`
}

type fileFormat struct {
	Chains map[string]Chain `toml:"chains"`
}

// Registry resolves a chain id to its RPC/explorer configuration.
type Registry struct {
	mu     sync.RWMutex
	chains map[string]Chain
}

// Load reads chains.toml at path and returns a populated Registry.
// An empty path is not an error: the registry starts empty and can still
// be filled in by CHAIN_RPC_<id> environment overrides via Get. A
// non-empty path that cannot be read or decoded returns an error.
func Load(path string) (*Registry, error) {
	r := &Registry{chains: make(map[string]Chain)}
	if path == "" {
		return r, nil
	}

	var ff fileFormat
	if _, err := toml.DecodeFile(path, &ff); err != nil {
		return nil, fmt.Errorf("loading chain registry %s: %w", path, err)
	}
	r.chains = ff.Chains
	return r, nil
}

// Get resolves chainID to a Chain, preferring a CHAIN_RPC_<id>
// environment override for the RPC URL over the fixture value.
func (r *Registry) Get(chainID string) (Chain, bool) {
	r.mu.RLock()
	c, ok := r.chains[chainID]
	r.mu.RUnlock()

	if override := config.ChainRPC(chainID); override != "" {
		c.RPCURL = override
		ok = true
	}
	return c, ok
}

// List returns every configured chain id, for the GET /chains endpoint.
func (r *Registry) List() map[string]Chain {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Chain, len(r.chains))
	for id, c := range r.chains {
		out[id] = c
	}
	return out
}
