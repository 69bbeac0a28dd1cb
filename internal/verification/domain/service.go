// Package domain implements spec §4.7's VerificationCoordinator: the
// single-flight gate, on-chain bytecode fetch, creator-tx resolution,
// matcher delegation, and extra-file recovery that ties the pipeline
// together.
package domain

import (
	"context"
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/chainproof/verify/internal/contractmeta"
	"github.com/chainproof/verify/internal/matcher"
	"github.com/chainproof/verify/internal/matchstore"
	"github.com/chainproof/verify/internal/observability/metrics"
	"github.com/chainproof/verify/internal/verifyerr"
	"github.com/ethereum/go-ethereum/common"
)

// CodeFetcher resolves the runtime bytecode deployed at an address on a
// given chain, the OnchainCodeFetcher collaborator of spec.md §1.
type CodeFetcher interface {
	CodeAt(ctx context.Context, chainID string, address common.Address) ([]byte, error)
}

// CreatorTxFinder discovers a contract's deployment transaction hash.
type CreatorTxFinder interface {
	Find(ctx context.Context, chainID string, address common.Address) (txHash string, ok bool)
}

// Coordinator implements spec §4.7's VerificationCoordinator.
type Coordinator struct {
	matcher     *matcher.Matcher
	codeFetcher CodeFetcher
	creatorTx   CreatorTxFinder
	store       *matchstore.Store

	mu         sync.Mutex
	inProgress map[string]bool
}

// NewCoordinator builds a Coordinator over its collaborators.
func NewCoordinator(m *matcher.Matcher, codeFetcher CodeFetcher, creatorTx CreatorTxFinder, store *matchstore.Store) *Coordinator {
	return &Coordinator{
		matcher:     m,
		codeFetcher: codeFetcher,
		creatorTx:   creatorTx,
		store:       store,
		inProgress:  make(map[string]bool),
	}
}

func singleFlightKey(chainID, address string) string {
	return chainID + ":" + address
}

// acquire implements spec §5's single-flight invariant: at most one
// in-flight verification per (chainId, address) key process-wide.
func (c *Coordinator) acquire(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inProgress[key] {
		return false
	}
	c.inProgress[key] = true
	return true
}

func (c *Coordinator) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inProgress, key)
}

// VerifyDeployed implements spec §4.7's verifyDeployed. An
// extra-file-input-bug outcome is returned without being stored; the
// retry with every uploaded file is RecoverExtraFile.
func (c *Coordinator) VerifyDeployed(ctx context.Context, cc *contractmeta.CheckedContract, chainID, address, creatorTxHash string) (*matcher.Match, error) {
	key := singleFlightKey(chainID, address)
	if !c.acquire(key) {
		metrics.RecordSingleFlightRejected()
		return nil, verifyerr.New(verifyerr.KindAlreadyVerifying, fmt.Sprintf("verification already in progress for %s", key))
	}
	defer c.release(key)

	addr := common.HexToAddress(address)
	runtimeCode, err := c.codeFetcher.CodeAt(ctx, chainID, addr)
	if err != nil {
		return nil, fmt.Errorf("fetching on-chain code: %w", err)
	}
	if len(runtimeCode) == 0 {
		return nil, verifyerr.New(verifyerr.KindNotDeployed, fmt.Sprintf("no code deployed at %s on chain %s", address, chainID))
	}

	if creatorTxHash == "" && c.creatorTx != nil {
		if hash, ok := c.creatorTx.Find(ctx, chainID, addr); ok {
			creatorTxHash = hash
		}
	}

	onchain := matcher.OnchainInfo{RuntimeCode: runtimeCode}

	match, err := c.matcher.Match(ctx, cc, onchain, nil)
	if err != nil {
		return nil, err
	}
	metrics.RecordMatchOutcome(string(match.RuntimeMatch))

	if match.RuntimeMatch == matcher.OutcomeExtraFileInputBug {
		return match, nil
	}

	if c.store != nil {
		if quality, storable := storeQuality(match); storable {
			if _, err := c.store.Store(chainID, addr, cc.Metadata.Raw, cc.Sources, match, creatorTxHash); err != nil {
				return nil, fmt.Errorf("storing verified match: %w", err)
			}
			metrics.RecordStoreWrite(string(quality))
		}
	}

	return match, nil
}

// RecoverExtraFile re-invokes VerifyDeployed with sources expanded to
// include every unreferenced upload, per spec §4.7 step 5. If the
// second attempt again returns extra-file-input-bug, it returns a
// terminal bad-input error.
func (c *Coordinator) RecoverExtraFile(ctx context.Context, cc *contractmeta.CheckedContract, extraFiles map[string][]byte, chainID, address, creatorTxHash string) (*matcher.Match, error) {
	expanded := &contractmeta.CheckedContract{
		Metadata: cc.Metadata,
		Sources:  make(map[string][]byte, len(cc.Sources)+len(extraFiles)),
		Missing:  map[string]string{},
		Invalid:  map[string]contractmeta.InvalidSource{},
	}
	for path, content := range cc.Sources {
		expanded.Sources[path] = content
	}
	for path, content := range extraFiles {
		if _, exists := expanded.Sources[path]; !exists {
			expanded.Sources[path] = content
		}
	}

	match, err := c.VerifyDeployed(ctx, expanded, chainID, address, creatorTxHash)
	if err != nil {
		return nil, err
	}
	if match.RuntimeMatch == matcher.OutcomeExtraFileInputBug {
		return nil, verifyerr.New(verifyerr.KindBadInput, "upload is inconsistent with on-chain bytecode even with all files included")
	}
	return match, nil
}

func storeQuality(m *matcher.Match) (matchstore.Quality, bool) {
	switch {
	case m.RuntimeMatch == matcher.OutcomePerfect || m.CreationMatch == matcher.OutcomePerfect:
		return matchstore.QualityFull, true
	case m.RuntimeMatch == matcher.OutcomePartial || m.CreationMatch == matcher.OutcomePartial:
		return matchstore.QualityPartial, true
	default:
		return "", false
	}
}

// ToResult adapts a matcher.Match to the wire Result shape.
func ToResult(chainID, address string, m *matcher.Match, creatorTxHash string) Result {
	status := m.RuntimeMatch
	if m.CreationMatch == matcher.OutcomePerfect {
		status = matcher.OutcomePerfect
	} else if status == matcher.OutcomeNone && m.CreationMatch != matcher.OutcomeNone {
		status = m.CreationMatch
	}

	r := Result{
		Address:             address,
		ChainID:             chainID,
		Status:              status,
		LibraryMap:          m.LibraryMap,
		ImmutableReferences: m.ImmutableReferences,
		CreatorTxHash:       creatorTxHash,
		Message:             m.Message,
	}
	if len(m.ABIEncodedConstructorArguments) > 0 {
		r.ABIEncodedConstructorArguments = "0x" + hex.EncodeToString(m.ABIEncodedConstructorArguments)
	}
	return r
}
