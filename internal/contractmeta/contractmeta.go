// Package contractmeta defines the shared data model of spec §3: the
// parsed compiler metadata, its source map, and the CheckedContract that
// ContractChecker, PendingAssembler, and BytecodeMatcher all operate on.
package contractmeta

import (
	"bytes"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"

	"github.com/chainproof/verify/internal/validation"
)

// SourceEntry is one entry of a metadata's source map.
type SourceEntry struct {
	Keccak256 [32]byte `json:"-"`
	URLs      []string `json:"urls,omitempty"`
	Content   *string  `json:"content,omitempty"`
	License   string   `json:"license,omitempty"`
}

// sourceEntryWire mirrors the solc JSON shape, where keccak256 is a
// "0x"-prefixed hex string.
type sourceEntryWire struct {
	Keccak256 string   `json:"keccak256"`
	URLs      []string `json:"urls,omitempty"`
	Content   *string  `json:"content,omitempty"`
	License   string   `json:"license,omitempty"`
}

// UnmarshalJSON parses the solc wire format for a source entry.
func (s *SourceEntry) UnmarshalJSON(b []byte) error {
	var w sourceEntryWire
	if err := json.Unmarshal(b, &w); err != nil {
		return err
	}
	h, err := decodeHexHash(w.Keccak256)
	if err != nil {
		return fmt.Errorf("source entry keccak256: %w", err)
	}
	s.Keccak256 = h
	s.URLs = w.URLs
	s.Content = w.Content
	s.License = w.License
	return nil
}

// MarshalJSON re-emits the solc wire format.
func (s SourceEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal(sourceEntryWire{
		Keccak256: "0x" + hex.EncodeToString(s.Keccak256[:]),
		URLs:      s.URLs,
		Content:   s.Content,
		License:   s.License,
	})
}

func decodeHexHash(s string) ([32]byte, error) {
	var out [32]byte
	s = trimHexPrefix(s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, fmt.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// Keccak256Matches reports whether content hashes to the entry's
// declared keccak256, the invariant of spec §3.
func (s SourceEntry) Keccak256Matches(content []byte) bool {
	return bytes.Equal(crypto.Keccak256(content), s.Keccak256[:])
}

// CompilationTarget names the one source path and contract name a
// metadata's settings designate as the artifact to build.
type CompilationTarget struct {
	Path     string
	Contract string
}

// Metadata is the parsed compiler-emitted JSON metadata document.
type Metadata struct {
	Raw             []byte
	Language        string                 `json:"language"`
	CompilerVersion string                 `json:"-"`
	Sources         map[string]SourceEntry `json:"sources"`
	Settings        json.RawMessage        `json:"settings"`
	Output          json.RawMessage        `json:"output,omitempty"`
	Compiler        struct {
		Version string `json:"version"`
	} `json:"compiler"`
	Target CompilationTarget `json:"-"`
}

type settingsWire struct {
	CompilationTarget map[string]string `json:"compilationTarget"`
}

// ParseMetadata parses raw solc metadata JSON and extracts the
// compilation target from settings.
func ParseMetadata(raw []byte) (*Metadata, error) {
	var m Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("parsing metadata json: %w", err)
	}
	m.Raw = raw
	m.CompilerVersion = m.Compiler.Version
	if err := validation.ValidateCompilerVersion(m.CompilerVersion); err != nil {
		return nil, fmt.Errorf("metadata compiler version: %w", err)
	}

	var settings settingsWire
	if err := json.Unmarshal(m.Settings, &settings); err != nil {
		return nil, fmt.Errorf("parsing metadata settings: %w", err)
	}
	if len(settings.CompilationTarget) != 1 {
		return nil, fmt.Errorf("compilationTarget must name exactly one contract, got %d", len(settings.CompilationTarget))
	}
	for path, contract := range settings.CompilationTarget {
		m.Target = CompilationTarget{Path: path, Contract: contract}
	}
	return &m, nil
}

// LooksLikeMetadata implements the heuristic of spec §4.5 step 1: any
// JSON object containing language, compiler, settings and sources.
func LooksLikeMetadata(raw []byte) bool {
	var probe struct {
		Language *json.RawMessage `json:"language"`
		Compiler *json.RawMessage `json:"compiler"`
		Settings *json.RawMessage `json:"settings"`
		Sources  *json.RawMessage `json:"sources"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return false
	}
	return probe.Language != nil && probe.Compiler != nil && probe.Settings != nil && probe.Sources != nil
}

// InvalidSource records a source whose bytes did not match its declared
// keccak256.
type InvalidSource struct {
	Expected [32]byte
	Got      [32]byte
}

// CheckedContract partitions a metadata's declared sources into found,
// missing, and invalid, per spec §3/§4.5.
type CheckedContract struct {
	Metadata *Metadata
	Sources  map[string][]byte
	Missing  map[string]string
	Invalid  map[string]InvalidSource

	CompiledArtifacts *CompiledArtifacts
}

// CompiledArtifacts holds the standard-JSON compiler output relevant to
// bytecode matching.
type CompiledArtifacts struct {
	RuntimeBytecode     []byte
	CreationBytecode    []byte
	ImmutableReferences map[string][]ByteRange
	LinkReferences      map[string]map[string][]ByteRange
	ABI                 json.RawMessage
}

// ByteRange is an [start, start+length) span within bytecode.
type ByteRange struct {
	Start  int
	Length int
}

// IsValid reports whether every declared source was found and matched
// its keccak, per spec §3's CheckedContract validity rule.
func (c *CheckedContract) IsValid() bool {
	return len(c.Missing) == 0 && len(c.Invalid) == 0
}

// SHA1Hex hashes b with SHA-1 and hex-encodes it, used for session
// content ids and metadata ids per spec §3's Session invariant.
func SHA1Hex(b []byte) string {
	sum := sha1.Sum(b)
	return hex.EncodeToString(sum[:])
}
