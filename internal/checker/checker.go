// Package checker implements spec §4.5's ContractChecker: partitioning a
// heterogeneous upload into metadata files and their matching sources.
package checker

import (
	"bytes"

	"github.com/chainproof/verify/internal/contractmeta"
	"github.com/ethereum/go-ethereum/crypto"
)

// InputFile is one uploaded file: a path (used only for diagnostics) and
// its raw bytes.
type InputFile struct {
	Path    string
	Content []byte
}

// CheckFiles partitions files into one CheckedContract per discovered
// metadata document, plus the set of paths never adopted by any
// contract. If no metadata files are present, returns no contracts and
// every input path as unused.
func CheckFiles(files []InputFile) (contracts []*contractmeta.CheckedContract, unused []string) {
	used := make(map[int]bool, len(files))

	for i, f := range files {
		if !contractmeta.LooksLikeMetadata(f.Content) {
			continue
		}
		m, err := contractmeta.ParseMetadata(f.Content)
		if err != nil {
			continue
		}
		used[i] = true

		cc := &contractmeta.CheckedContract{
			Metadata: m,
			Sources:  make(map[string][]byte, len(m.Sources)),
			Missing:  make(map[string]string),
			Invalid:  make(map[string]contractmeta.InvalidSource),
		}
		for path, entry := range m.Sources {
			idx, ok := findByKeccak(files, entry.Keccak256)
			if !ok {
				cc.Missing[path] = "not found in upload"
				continue
			}
			cc.Sources[path] = files[idx].Content
			used[idx] = true
		}
		contracts = append(contracts, cc)
	}

	for i, f := range files {
		if !used[i] {
			unused = append(unused, f.Path)
		}
	}
	return contracts, unused
}

func findByKeccak(files []InputFile, want [32]byte) (int, bool) {
	for i, f := range files {
		if bytes.Equal(crypto.Keccak256(f.Content), want[:]) {
			return i, true
		}
	}
	return 0, false
}
