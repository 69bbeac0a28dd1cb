package domain

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chainproof/verify/internal/compiler"
	"github.com/chainproof/verify/internal/contractmeta"
	"github.com/chainproof/verify/internal/matcher"
	"github.com/chainproof/verify/internal/matchstore"
	"github.com/ethereum/go-ethereum/common"
)

type fakeDriver struct {
	output *compiler.StandardJSONOutput
}

func (f *fakeDriver) Compile(_ context.Context, _ string, _ compiler.StandardJSONInput) (*compiler.StandardJSONOutput, error) {
	return f.output, nil
}

type fakeCodeFetcher struct {
	code []byte
	err  error
}

func (f *fakeCodeFetcher) CodeAt(_ context.Context, _ string, _ common.Address) ([]byte, error) {
	return f.code, f.err
}

type fakeCreatorTx struct {
	hash string
	ok   bool
}

func (f *fakeCreatorTx) Find(_ context.Context, _ string, _ common.Address) (string, bool) {
	return f.hash, f.ok
}

func perfectMatchContract(runtimeHex string) (*contractmeta.CheckedContract, *matcher.Matcher) {
	output := &compiler.StandardJSONOutput{
		Contracts: map[string]map[string]compiler.OutputContract{
			"Foo.sol": {
				"Foo": func() compiler.OutputContract {
					var c compiler.OutputContract
					c.EVM.DeployedBytecode.Object = runtimeHex
					c.EVM.Bytecode.Object = runtimeHex
					return c
				}(),
			},
		},
	}
	meta := &contractmeta.Metadata{
		Language: "Solidity",
		Settings: []byte(`{}`),
		Target:   contractmeta.CompilationTarget{Path: "Foo.sol", Contract: "Foo"},
	}
	cc := &contractmeta.CheckedContract{
		Metadata: meta,
		Sources:  map[string][]byte{"Foo.sol": []byte("contract Foo {}")},
		Missing:  map[string]string{},
		Invalid:  map[string]contractmeta.InvalidSource{},
	}
	m := matcher.New(&fakeDriver{output: output})
	return cc, m
}

func TestVerifyDeployedPerfectMatchStoresResult(t *testing.T) {
	runtimeHex := "6001600201"
	runtimeBytes, err := hex.DecodeString(runtimeHex)
	require.NoError(t, err)

	cc, m := perfectMatchContract(runtimeHex)
	store, err := matchstore.New(t.TempDir())
	require.NoError(t, err)

	coord := NewCoordinator(m, &fakeCodeFetcher{code: runtimeBytes}, &fakeCreatorTx{}, store)

	match, err := coord.VerifyDeployed(context.Background(), cc, "1", "0x1234567890123456789012345678901234567890", "")
	require.NoError(t, err)
	require.Equal(t, matcher.OutcomePerfect, match.RuntimeMatch)

	quality, files, ok := store.Tree("full_match", "1", common.HexToAddress("0x1234567890123456789012345678901234567890"))
	require.True(t, ok)
	require.Equal(t, matchstore.QualityFull, quality)
	require.NotEmpty(t, files)
}

func TestVerifyDeployedNoCodeDeployed(t *testing.T) {
	cc, m := perfectMatchContract("6001600201")
	store, err := matchstore.New(t.TempDir())
	require.NoError(t, err)

	coord := NewCoordinator(m, &fakeCodeFetcher{code: nil}, &fakeCreatorTx{}, store)

	match, err := coord.VerifyDeployed(context.Background(), cc, "1", "0x1234567890123456789012345678901234567890", "")
	require.Nil(t, match)
	require.Error(t, err)
}

func TestVerifyDeployedResolvesCreatorTxWhenAbsent(t *testing.T) {
	runtimeHex := "6001600201"
	runtimeBytes, err := hex.DecodeString(runtimeHex)
	require.NoError(t, err)

	cc, m := perfectMatchContract(runtimeHex)
	store, err := matchstore.New(t.TempDir())
	require.NoError(t, err)

	coord := NewCoordinator(m, &fakeCodeFetcher{code: runtimeBytes}, &fakeCreatorTx{hash: "0xdeadbeef", ok: true}, store)

	match, err := coord.VerifyDeployed(context.Background(), cc, "1", "0x1234567890123456789012345678901234567890", "")
	require.NoError(t, err)

	result := ToResult("1", "0x1234567890123456789012345678901234567890", match, "0xdeadbeef")
	require.Equal(t, "0xdeadbeef", result.CreatorTxHash)
}

func TestVerifyDeployedSingleFlightRejectsConcurrentKey(t *testing.T) {
	cc, m := perfectMatchContract("6001600201")
	store, err := matchstore.New(t.TempDir())
	require.NoError(t, err)

	coord := NewCoordinator(m, &fakeCodeFetcher{code: []byte{0x60, 0x01}}, &fakeCreatorTx{}, store)

	key := singleFlightKey("1", "0x1234567890123456789012345678901234567890")
	require.True(t, coord.acquire(key))
	require.False(t, coord.acquire(key))
	coord.release(key)

	_, err = coord.VerifyDeployed(context.Background(), cc, "1", "0x1234567890123456789012345678901234567890", "")
	require.NoError(t, err)
}

func TestRecoverExtraFileMergesSourcesWithoutOverwrite(t *testing.T) {
	runtimeHex := "6001600201"
	runtimeBytes, err := hex.DecodeString(runtimeHex)
	require.NoError(t, err)

	cc, m := perfectMatchContract(runtimeHex)
	store, err := matchstore.New(t.TempDir())
	require.NoError(t, err)

	coord := NewCoordinator(m, &fakeCodeFetcher{code: runtimeBytes}, &fakeCreatorTx{}, store)

	extra := map[string][]byte{"Unused.sol": []byte("contract Unused {}")}
	match, err := coord.RecoverExtraFile(context.Background(), cc, extra, "1", "0x1234567890123456789012345678901234567890", "")
	require.NoError(t, err)
	require.Equal(t, matcher.OutcomePerfect, match.RuntimeMatch)
}
