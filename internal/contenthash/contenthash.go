// Package contenthash implements spec §4.1's ContentHash value type:
// parsing decentralized-storage URIs and extracting the hash fields
// embedded in a solc metadata CBOR trailer.
package contenthash

import (
	"encoding/hex"
	"strings"

	"github.com/chainproof/verify/internal/cbor"
)

// Origin identifies which decentralized storage network a ContentHash
// belongs to.
type Origin string

const (
	OriginIPFS       Origin = "ipfs"
	OriginSwarmBzzr0 Origin = "swarm-bzzr0"
	OriginSwarmBzzr1 Origin = "swarm-bzzr1"
)

// ContentHash is a (origin, hash) pair addressing content on a
// decentralized storage network.
type ContentHash struct {
	Origin Origin
	Hash   []byte
}

// Parse accepts dweb:/ipfs/<cid>, ipfs://<cid>, bzz-raw://<hex>,
// bzzr0://<hex> and bzzr1://<hex>. It returns ok=false for unknown
// schemes rather than an error, matching spec §4.1's parse(uri) -> null.
func Parse(uri string) (ch ContentHash, ok bool) {
	switch {
	case strings.HasPrefix(uri, "dweb:/ipfs/"):
		return ContentHash{Origin: OriginIPFS, Hash: []byte(strings.TrimPrefix(uri, "dweb:/ipfs/"))}, true
	case strings.HasPrefix(uri, "ipfs://"):
		return ContentHash{Origin: OriginIPFS, Hash: []byte(strings.TrimPrefix(uri, "ipfs://"))}, true
	case strings.HasPrefix(uri, "bzz-raw://"):
		return parseHexOrigin(uri, "bzz-raw://", OriginSwarmBzzr1)
	case strings.HasPrefix(uri, "bzzr1://"):
		return parseHexOrigin(uri, "bzzr1://", OriginSwarmBzzr1)
	case strings.HasPrefix(uri, "bzzr0://"):
		return parseHexOrigin(uri, "bzzr0://", OriginSwarmBzzr0)
	default:
		return ContentHash{}, false
	}
}

func parseHexOrigin(uri, prefix string, origin Origin) (ContentHash, bool) {
	raw := strings.TrimPrefix(uri, prefix)
	b, err := hex.DecodeString(raw)
	if err != nil {
		return ContentHash{}, false
	}
	return ContentHash{Origin: origin, Hash: b}, true
}

// String renders the canonical URI form for the content hash.
func (c ContentHash) String() string {
	switch c.Origin {
	case OriginIPFS:
		return "dweb:/ipfs/" + string(c.Hash)
	case OriginSwarmBzzr0:
		return "bzzr0://" + hex.EncodeToString(c.Hash)
	case OriginSwarmBzzr1:
		return "bzzr1://" + hex.EncodeToString(c.Hash)
	default:
		return ""
	}
}

// cborKeyOrigin maps the metadata trailer's map keys to origins, per
// spec §4.1's fromMetadataCborSection.
var cborKeyOrigin = map[string]Origin{
	"ipfs":  OriginIPFS,
	"bzzr0": OriginSwarmBzzr0,
	"bzzr1": OriginSwarmBzzr1,
}

// FromMetadataCborSection extracts every ContentHash embedded in a solc
// metadata CBOR trailer (the ipfs/bzzr0/bzzr1 keys), ignoring unrelated
// keys such as "solc".
func FromMetadataCborSection(trailer []byte) ([]ContentHash, error) {
	m, _, err := cbor.DecodeMap(trailer)
	if err != nil {
		return nil, err
	}
	var out []ContentHash
	for key, origin := range cborKeyOrigin {
		v, present := m[key]
		if !present || v.IsStr {
			continue
		}
		out = append(out, ContentHash{Origin: origin, Hash: v.Bytes})
	}
	return out, nil
}

// SplitTrailer parses the two-byte big-endian length suffix solc appends
// after the CBOR metadata section and returns the trailer bytes plus the
// code with the trailer (and its length suffix) removed. ok is false if
// code is too short or the declared length doesn't fit.
func SplitTrailer(code []byte) (trailer, body []byte, ok bool) {
	if len(code) < 2 {
		return nil, code, false
	}
	n := int(code[len(code)-2])<<8 | int(code[len(code)-1])
	total := n + 2
	if total > len(code) {
		return nil, code, false
	}
	split := len(code) - total
	return code[split : len(code)-2], code[:split], true
}
