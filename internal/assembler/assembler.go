// Package assembler implements spec §4.3's PendingAssembler: given only a
// metadata content-hash and an address, fetch the metadata, then fan out
// and fetch every referenced source, verifying keccak256 integrity as it
// arrives.
package assembler

import (
	"context"
	"sync"

	"github.com/chainproof/verify/internal/contenthash"
	"github.com/chainproof/verify/internal/contractmeta"
	"github.com/chainproof/verify/internal/fetch"
	"github.com/chainproof/verify/internal/verifyerr"
)

// maxInFlightPerOrigin bounds the concurrent source resolutions of one
// Assemble call. The bound is shared by every origin in that call; it is
// not applied per origin, and separate Assemble calls do not share it.
const maxInFlightPerOrigin = 8

// Assembler resolves a metadata hash and its declared sources into a
// CheckedContract.
type Assembler struct {
	registry *fetch.Registry
}

// New builds an Assembler over the given StorageFetcher registry.
func New(registry *fetch.Registry) *Assembler {
	return &Assembler{registry: registry}
}

// Assemble drives the two-phase fetch described in spec §4.3. Assembly
// is considered successful even when some sources end up missing or
// invalid; the returned CheckedContract simply won't be IsValid().
func (a *Assembler) Assemble(ctx context.Context, metadataHash contenthash.ContentHash) (*contractmeta.CheckedContract, error) {
	metaBytes, err := a.registry.Fetch(ctx, metadataHash)
	if err != nil {
		return nil, err
	}

	meta, err := contractmeta.ParseMetadata(metaBytes)
	if err != nil {
		return nil, verifyerr.Wrap(verifyerr.KindBadMetadata, err)
	}

	cc := &contractmeta.CheckedContract{
		Metadata: meta,
		Sources:  make(map[string][]byte, len(meta.Sources)),
		Missing:  make(map[string]string),
		Invalid:  make(map[string]contractmeta.InvalidSource),
	}

	sem := make(chan struct{}, maxInFlightPerOrigin)
	var mu sync.Mutex
	var wg sync.WaitGroup

	for path, entry := range meta.Sources {
		path, entry := path, entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			content, invalid, ok := a.resolveSource(ctx, entry)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case ok:
				cc.Sources[path] = content
			case invalid != nil:
				cc.Invalid[path] = *invalid
			default:
				cc.Missing[path] = "no url yielded a valid body"
			}
		}()
	}
	wg.Wait()

	return cc, nil
}

// resolveSource implements step 4 of spec §4.3 for a single source
// entry: prefer inline content, else walk the declared urls in order.
func (a *Assembler) resolveSource(ctx context.Context, entry contractmeta.SourceEntry) (content []byte, invalid *contractmeta.InvalidSource, ok bool) {
	if entry.Content != nil {
		b := []byte(*entry.Content)
		if entry.Keccak256Matches(b) {
			return b, nil, true
		}
		return nil, &contractmeta.InvalidSource{Expected: entry.Keccak256}, false
	}

	for _, u := range entry.URLs {
		ch, parsed := contenthash.Parse(u)
		if !parsed {
			continue
		}
		f, err := a.registry.Resolve(ch.Origin)
		if err != nil {
			continue
		}
		body, err := f.Fetch(ctx, ch)
		if err != nil {
			continue
		}
		if entry.Keccak256Matches(body) {
			return body, nil, true
		}
		invalid = &contractmeta.InvalidSource{Expected: entry.Keccak256}
	}
	return nil, invalid, false
}
