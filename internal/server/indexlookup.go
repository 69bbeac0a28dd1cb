package server

import (
	"context"
	"time"

	"github.com/chainproof/verify/internal/matchindex"
)

// indexLookup adapts matchindex.Index to session.Lookup's narrower
// (quality, storedAt, ok) shape.
type indexLookup struct {
	index matchindex.Index
}

func (l indexLookup) Get(ctx context.Context, chainID, address string) (string, time.Time, bool) {
	entry, err := l.index.Get(ctx, chainID, address)
	if err != nil {
		return "", time.Time{}, false
	}
	return entry.Quality, entry.StoredAt, true
}
