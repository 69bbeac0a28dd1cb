package checker

import (
	"encoding/hex"
	"testing"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"
)

func metadataJSON(t *testing.T, sourcePath, content string) []byte {
	t.Helper()
	hash := crypto.Keccak256([]byte(content))
	return []byte(`{
		"language": "Solidity",
		"compiler": {"version": "0.8.19"},
		"sources": {
			"` + sourcePath + `": {"keccak256": "0x` + hex.EncodeToString(hash) + `"}
		},
		"settings": {"compilationTarget": {"` + sourcePath + `": "Foo"}}
	}`)
}

func TestCheckFilesCompleteContract(t *testing.T) {
	meta := metadataJSON(t, "Foo.sol", "contract Foo {}")
	files := []InputFile{
		{Path: "metadata.json", Content: meta},
		{Path: "Foo.sol", Content: []byte("contract Foo {}")},
	}

	contracts, unused := CheckFiles(files)
	require.Len(t, contracts, 1)
	require.Empty(t, unused)
	require.True(t, contracts[0].IsValid())
	require.Equal(t, []byte("contract Foo {}"), contracts[0].Sources["Foo.sol"])
}

func TestCheckFilesMissingSource(t *testing.T) {
	meta := metadataJSON(t, "Foo.sol", "contract Foo {}")
	files := []InputFile{
		{Path: "metadata.json", Content: meta},
	}

	contracts, _ := CheckFiles(files)
	require.Len(t, contracts, 1)
	require.False(t, contracts[0].IsValid())
	require.Contains(t, contracts[0].Missing, "Foo.sol")
}

func TestCheckFilesNoMetadata(t *testing.T) {
	files := []InputFile{
		{Path: "Foo.sol", Content: []byte("contract Foo {}")},
	}
	contracts, unused := CheckFiles(files)
	require.Empty(t, contracts)
	require.Equal(t, []string{"Foo.sol"}, unused)
}

func TestCheckFilesUnusedExtraFile(t *testing.T) {
	meta := metadataJSON(t, "Foo.sol", "contract Foo {}")
	files := []InputFile{
		{Path: "metadata.json", Content: meta},
		{Path: "Foo.sol", Content: []byte("contract Foo {}")},
		{Path: "Unrelated.sol", Content: []byte("contract Unrelated {}")},
	}
	contracts, unused := CheckFiles(files)
	require.Len(t, contracts, 1)
	require.Equal(t, []string{"Unrelated.sol"}, unused)
}
