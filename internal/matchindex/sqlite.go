package matchindex

import (
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// NewSQLite opens (and migrates) a verified-match index backed by a
// modernc.org/sqlite database file at path.
func NewSQLite(path string) (Index, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}
	return newSQLIndex(db, dialectSQLite)
}
