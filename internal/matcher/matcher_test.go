package matcher

import (
	"context"
	"encoding/hex"
	"testing"

	"github.com/chainproof/verify/internal/compiler"
	"github.com/chainproof/verify/internal/contractmeta"
	"github.com/stretchr/testify/require"
)

func TestPlaceholderForAndHasLibraryPlaceholders(t *testing.T) {
	ph := placeholderFor("Lib.sol:MyLib")
	require.True(t, hasLibraryPlaceholders([]byte("6000"+ph+"6001")))
	require.False(t, hasLibraryPlaceholders([]byte("60006001")))
	require.Len(t, ph, 3+34+3) // __$ + 34 hex + $__
}

func TestCompareBodiesExactMatch(t *testing.T) {
	code := []byte{0x60, 0x60, 0x60}
	outcome, err := compareBodies(code, code)
	require.NoError(t, err)
	require.Equal(t, OutcomePerfect, outcome)
}

func TestCompareBodiesOnchainPaddedZeros(t *testing.T) {
	compiled := []byte{0x60, 0x60}
	onchain := []byte{0x60, 0x60, 0x00, 0x00}
	outcome, err := compareBodies(compiled, onchain)
	require.NoError(t, err)
	require.Equal(t, OutcomePerfect, outcome)
}

func TestCompareBodiesExtraFileInputBug(t *testing.T) {
	compiled := []byte{0x60, 0x60, 0x61, 0x62}
	onchain := []byte{0x60, 0x60}
	outcome, err := compareBodies(compiled, onchain)
	require.NoError(t, err)
	require.Equal(t, OutcomeExtraFileInputBug, outcome)
}

func TestMaskImmutables(t *testing.T) {
	code := []byte{0x01, 0x02, 0x03, 0x04}
	refs := map[string][]compiler.Range{"0": {{Start: 1, Length: 2}}}
	masked, values := maskImmutables(code, refs)
	require.Equal(t, []byte{0x01, 0x00, 0x00, 0x04}, masked)
	require.Equal(t, []byte{0x02, 0x03}, values["0"])
}

func TestLinkLibrariesWithDeclaredAddress(t *testing.T) {
	code := make([]byte, 24)
	linkRefs := map[string]map[string][]compiler.Range{
		"Lib.sol": {"MyLib": []compiler.Range{{Start: 2, Length: 20}}},
	}
	declared := map[string]map[string]string{
		"Lib.sol": {"MyLib": "0x" + hex.EncodeToString(make([]byte, 20))},
	}
	libraryMap := map[string]string{}
	linked, err := linkLibraries(code, linkRefs, declared, nil, libraryMap)
	require.NoError(t, err)
	require.Len(t, linked, 24)
	require.Contains(t, libraryMap, "Lib.sol:MyLib")
}

type fakeDriver struct {
	output *compiler.StandardJSONOutput
}

func (f *fakeDriver) Compile(_ context.Context, _ string, _ compiler.StandardJSONInput) (*compiler.StandardJSONOutput, error) {
	return f.output, nil
}

func TestMatchPerfectRuntime(t *testing.T) {
	runtimeHex := "6001600201"
	runtimeBytes, _ := hex.DecodeString(runtimeHex)

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

	m := New(&fakeDriver{output: output})
	match, err := m.Match(context.Background(), cc, OnchainInfo{RuntimeCode: runtimeBytes}, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomePerfect, match.RuntimeMatch)
}

func TestMatchNoBytecodeAtAddress(t *testing.T) {
	meta := &contractmeta.Metadata{Language: "Solidity", Settings: []byte(`{}`), Target: contractmeta.CompilationTarget{Path: "Foo.sol", Contract: "Foo"}}
	cc := &contractmeta.CheckedContract{Metadata: meta, Sources: map[string][]byte{"Foo.sol": []byte("x")}, Missing: map[string]string{}, Invalid: map[string]contractmeta.InvalidSource{}}

	m := New(&fakeDriver{})
	match, err := m.Match(context.Background(), cc, OnchainInfo{}, nil)
	require.NoError(t, err)
	require.Equal(t, OutcomeNone, match.RuntimeMatch)
	require.Equal(t, "no bytecode at address", match.Message)
}
