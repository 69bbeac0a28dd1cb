// Package creatortx implements spec §12.2's creator-transaction
// discovery collaborator: the coordinator tolerates its failure per spec
// §4.7 step 3, so a best-effort scan backed by go-ethereum is an
// acceptable implementation alongside a no-op default.
package creatortx

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

func newBlockNumber(n uint64) *big.Int {
	return new(big.Int).SetUint64(n)
}

// Finder discovers the transaction hash that deployed a contract.
type Finder interface {
	Find(ctx context.Context, address common.Address) (txHash string, ok bool)
}

// NoOp always reports failure, satisfying spec §4.7 step 3's tolerance
// for leaving the creator transaction undefined.
type NoOp struct{}

// Find implements Finder.
func (NoOp) Find(context.Context, common.Address) (string, bool) { return "", false }

// RecentBlockScanner scans the last maxBlocks blocks for a transaction
// whose receipt's ContractAddress matches. This is a best-effort
// implementation: chains with deep history or archival-only deployments
// will usually miss and fall through to NoOp semantics.
type RecentBlockScanner struct {
	Client    *ethclient.Client
	MaxBlocks uint64
}

// NewRecentBlockScanner builds a scanner over client, looking back
// maxBlocks blocks from the chain head.
func NewRecentBlockScanner(client *ethclient.Client, maxBlocks uint64) *RecentBlockScanner {
	return &RecentBlockScanner{Client: client, MaxBlocks: maxBlocks}
}

// Find implements Finder.
func (s *RecentBlockScanner) Find(ctx context.Context, address common.Address) (string, bool) {
	head, err := s.Client.BlockNumber(ctx)
	if err != nil {
		return "", false
	}

	start := uint64(0)
	if head > s.MaxBlocks {
		start = head - s.MaxBlocks
	}

	for n := head; n >= start; n-- {
		block, err := s.Client.BlockByNumber(ctx, newBlockNumber(n))
		if err != nil {
			continue
		}
		for _, tx := range block.Transactions() {
			if tx.To() != nil {
				continue
			}
			receipt, err := s.Client.TransactionReceipt(ctx, tx.Hash())
			if err != nil || receipt.ContractAddress != address {
				continue
			}
			return tx.Hash().Hex(), true
		}
		if n == 0 {
			break
		}
	}
	return "", false
}
