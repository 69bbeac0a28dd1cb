package matchindex

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// NewPostgres opens (and migrates) a verified-match index backed by a
// Postgres database reached via pgx's database/sql driver.
func NewPostgres(dsn string) (Index, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening postgres connection: %w", err)
	}
	return newSQLIndex(db, dialectPostgres)
}
