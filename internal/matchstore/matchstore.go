// Package matchstore implements spec §4.9's MatchStore: a
// content-addressed filesystem tree partitioned into full_match and
// partial_match, with path sanitization and a monotonic manifest tag.
package matchstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/chainproof/verify/internal/matcher"
	"github.com/ethereum/go-ethereum/common"
)

// Quality is the repository partition a Match is stored into.
type Quality string

const (
	QualityFull    Quality = "full_match"
	QualityPartial Quality = "partial_match"
)

// Store is a content-addressed filesystem repository rooted at Root.
type Store struct {
	Root string
	mu   sync.Mutex
}

// New builds a Store rooted at root, creating it if necessary.
func New(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating repository root: %w", err)
	}
	return &Store{Root: root}, nil
}

func qualityFromMatch(m *matcher.Match) (Quality, bool) {
	switch {
	case m.RuntimeMatch == matcher.OutcomePerfect || m.CreationMatch == matcher.OutcomePerfect:
		return QualityFull, true
	case m.RuntimeMatch == matcher.OutcomePartial || m.CreationMatch == matcher.OutcomePartial:
		return QualityPartial, true
	default:
		return "", false
	}
}

func (s *Store) contractDir(quality Quality, chainID string, address common.Address) string {
	return filepath.Join(s.Root, "contracts", string(quality), chainID, address.Hex())
}

// Record is the durable representation of a stored contract directory.
type Record struct {
	ChainID                        string
	Address                        common.Address
	Quality                        Quality
	MetadataJSON                   []byte
	Sources                        map[string][]byte
	LibraryMap                     map[string]string
	ImmutableReferences            map[string]string
	ABIEncodedConstructorArguments []byte
	CreatorTxHash                  string
	StoredAt                       time.Time
}

// Store persists a verified contract, promoting a prior partial match
// to full if applicable, per spec §4.9's store operation.
func (s *Store) Store(chainID string, address common.Address, metadataJSON []byte, sources map[string][]byte, m *matcher.Match, creatorTxHash string) (*Record, error) {
	quality, ok := qualityFromMatch(m)
	if !ok {
		return nil, fmt.Errorf("match has no storable outcome")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if quality == QualityFull {
		partialDir := s.contractDir(QualityPartial, chainID, address)
		if _, err := os.Stat(partialDir); err == nil {
			if err := removeAside(partialDir); err != nil {
				return nil, err
			}
		}
	}

	dir := s.contractDir(quality, chainID, address)
	if err := os.MkdirAll(filepath.Join(dir, "sources"), 0o755); err != nil {
		return nil, fmt.Errorf("creating contract directory: %w", err)
	}

	translations := map[string]string{}
	for path, content := range sources {
		safe := sanitizePath(path)
		if safe != path {
			translations[path] = safe
		}
		if err := os.WriteFile(filepath.Join(dir, "sources", safe), content, 0o644); err != nil {
			return nil, fmt.Errorf("writing source %s: %w", safe, err)
		}
	}
	if len(translations) > 0 {
		if err := writeJSON(filepath.Join(dir, "path-translation.json"), translations); err != nil {
			return nil, err
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "metadata.json"), metadataJSON, 0o644); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}
	if len(m.LibraryMap) > 0 {
		if err := writeJSON(filepath.Join(dir, "library-map.json"), m.LibraryMap); err != nil {
			return nil, err
		}
	}
	if len(m.ImmutableReferences) > 0 {
		if err := writeJSON(filepath.Join(dir, "immutable-references.json"), m.ImmutableReferences); err != nil {
			return nil, err
		}
	}
	if len(m.ABIEncodedConstructorArguments) > 0 {
		if err := os.WriteFile(filepath.Join(dir, "constructor-args.txt"), []byte(fmt.Sprintf("%x", m.ABIEncodedConstructorArguments)), 0o644); err != nil {
			return nil, fmt.Errorf("writing constructor args: %w", err)
		}
	}
	if creatorTxHash != "" {
		if err := os.WriteFile(filepath.Join(dir, "creator-tx-hash.txt"), []byte(creatorTxHash), 0o644); err != nil {
			return nil, fmt.Errorf("writing creator tx hash: %w", err)
		}
	}

	if err := s.bumpManifest(); err != nil {
		return nil, err
	}

	return &Record{
		ChainID:                        chainID,
		Address:                        address,
		Quality:                        quality,
		MetadataJSON:                   metadataJSON,
		Sources:                        sources,
		LibraryMap:                     m.LibraryMap,
		ImmutableReferences:            m.ImmutableReferences,
		ABIEncodedConstructorArguments: m.ABIEncodedConstructorArguments,
		CreatorTxHash:                  creatorTxHash,
		StoredAt:                       time.Now(),
	}, nil
}

// Lookup checks full_match then partial_match for (chainID, address).
func (s *Store) Lookup(chainID string, address common.Address) (*Record, bool) {
	for _, q := range []Quality{QualityFull, QualityPartial} {
		dir := s.contractDir(q, chainID, address)
		info, err := os.Stat(dir)
		if err != nil {
			continue
		}
		metadataJSON, err := os.ReadFile(filepath.Join(dir, "metadata.json"))
		if err != nil {
			continue
		}
		return &Record{
			ChainID:      chainID,
			Address:      address,
			Quality:      q,
			MetadataJSON: metadataJSON,
			StoredAt:     info.ModTime(),
		}, true
	}
	return nil, false
}

// TreeFile is one file entry returned by Tree.
type TreeFile struct {
	Path    string
	Content []byte
}

// Tree implements the GET /files/tree/{any|full|partial}/{chainId}/{address}
// read of spec §6: list every file under a stored contract's directory.
// scope is "any", "full_match", or "partial_match".
func (s *Store) Tree(scope, chainID string, address common.Address) (Quality, []TreeFile, bool) {
	qualities := []Quality{QualityFull, QualityPartial}
	switch scope {
	case string(QualityFull):
		qualities = []Quality{QualityFull}
	case string(QualityPartial):
		qualities = []Quality{QualityPartial}
	}

	for _, q := range qualities {
		dir := s.contractDir(q, chainID, address)
		if _, err := os.Stat(dir); err != nil {
			continue
		}

		var files []TreeFile
		_ = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			content, err := os.ReadFile(path)
			if err != nil {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return nil
			}
			files = append(files, TreeFile{Path: filepath.ToSlash(rel), Content: content})
			return nil
		})
		return q, files, true
	}
	return "", nil, false
}

func removeAside(dir string) error {
	tmp := dir + ".removed-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	if err := os.Rename(dir, tmp); err != nil {
		return fmt.Errorf("renaming aside %s: %w", dir, err)
	}
	return os.RemoveAll(tmp)
}

type manifest struct {
	Timestamp int64 `json:"timestamp"`
}

// bumpManifest writes manifest.json with a monotonically non-decreasing
// timestamp, per spec §4.9.
func (s *Store) bumpManifest() error {
	path := filepath.Join(s.Root, "manifest.json")
	now := time.Now().UnixMilli()

	if existing, err := os.ReadFile(path); err == nil {
		var m manifest
		if json.Unmarshal(existing, &m) == nil && m.Timestamp > now {
			now = m.Timestamp
		}
	}
	return writeJSON(path, manifest{Timestamp: now})
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", path, err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}

// sanitizePath implements spec §4.9's path sanitization: normalize
// separators, collapse . and .., strip absolute-root prefixes, and drop
// newlines.
func sanitizePath(p string) string {
	p = strings.ReplaceAll(p, "\\", "/")
	p = strings.ReplaceAll(p, "\n", "")
	p = strings.TrimPrefix(p, "/")

	clean := filepath.ToSlash(filepath.Clean(p))
	var parts []string
	for _, seg := range strings.Split(clean, "/") {
		if seg == "" || seg == "." || seg == ".." {
			continue
		}
		parts = append(parts, seg)
	}
	if len(parts) == 0 {
		return "unnamed"
	}
	return strings.Join(parts, "/")
}
