// Package matchindex implements spec §12.3's verified-match index: a
// SQL-backed mirror of which (chainId, address) pairs are stored and at
// what quality, repurposed from the teacher's dual sqlite/postgres
// storage backend. SessionStager.verifyReady reads it for its
// already-verified short-circuit; the file-tree endpoint reads MatchStore
// directly and does not use the index.
package matchindex

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when no index row exists for the requested key.
var ErrNotFound = errors.New("matchindex: not found")

// Entry is one row of the verified-match index.
type Entry struct {
	ChainID  string
	Address  string
	Quality  string // "full_match" or "partial_match"
	StoredAt time.Time
}

// Index is the storage-backend-agnostic interface over the index. The
// session stager reads it through Get; MatchStore and the coordinator do
// not write to it, and nothing in the service calls Upsert.
type Index interface {
	Upsert(ctx context.Context, e Entry) error
	Get(ctx context.Context, chainID, address string) (*Entry, error)
	ListByChain(ctx context.Context, chainID string) ([]Entry, error)
	Close() error
}

// sqlIndex implements Index over database/sql, usable with either the
// sqlite or postgres driver depending on how db was opened.
type sqlIndex struct {
	db      *sql.DB
	dialect dialect
}

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func newSQLIndex(db *sql.DB, d dialect) (*sqlIndex, error) {
	idx := &sqlIndex{db: db, dialect: d}
	if err := idx.migrate(context.Background()); err != nil {
		return nil, err
	}
	return idx, nil
}

func (idx *sqlIndex) migrate(ctx context.Context) error {
	_, err := idx.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS verified_matches (
			chain_id   TEXT NOT NULL,
			address    TEXT NOT NULL,
			quality    TEXT NOT NULL,
			stored_at  TIMESTAMP NOT NULL,
			PRIMARY KEY (chain_id, address)
		)`)
	if err != nil {
		return fmt.Errorf("migrating verified_matches table: %w", err)
	}
	return nil
}

func (idx *sqlIndex) placeholder(n int) string {
	if idx.dialect == dialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

// Upsert implements Index.
func (idx *sqlIndex) Upsert(ctx context.Context, e Entry) error {
	var query string
	switch idx.dialect {
	case dialectPostgres:
		query = `INSERT INTO verified_matches (chain_id, address, quality, stored_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (chain_id, address) DO UPDATE SET quality = $3, stored_at = $4`
	default:
		query = `INSERT INTO verified_matches (chain_id, address, quality, stored_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT (chain_id, address) DO UPDATE SET quality = excluded.quality, stored_at = excluded.stored_at`
	}
	_, err := idx.db.ExecContext(ctx, query, e.ChainID, e.Address, e.Quality, e.StoredAt)
	if err != nil {
		return fmt.Errorf("upserting verified match: %w", err)
	}
	return nil
}

// Get implements Index.
func (idx *sqlIndex) Get(ctx context.Context, chainID, address string) (*Entry, error) {
	query := fmt.Sprintf("SELECT chain_id, address, quality, stored_at FROM verified_matches WHERE chain_id = %s AND address = %s",
		idx.placeholder(1), idx.placeholder(2))
	row := idx.db.QueryRowContext(ctx, query, chainID, address)

	var e Entry
	if err := row.Scan(&e.ChainID, &e.Address, &e.Quality, &e.StoredAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying verified match: %w", err)
	}
	return &e, nil
}

// ListByChain implements Index.
func (idx *sqlIndex) ListByChain(ctx context.Context, chainID string) ([]Entry, error) {
	query := fmt.Sprintf("SELECT chain_id, address, quality, stored_at FROM verified_matches WHERE chain_id = %s ORDER BY stored_at DESC",
		idx.placeholder(1))
	rows, err := idx.db.QueryContext(ctx, query, chainID)
	if err != nil {
		return nil, fmt.Errorf("listing verified matches: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ChainID, &e.Address, &e.Quality, &e.StoredAt); err != nil {
			return nil, fmt.Errorf("scanning verified match: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close implements Index.
func (idx *sqlIndex) Close() error {
	return idx.db.Close()
}
