package storage

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

type PSQLStorage struct {
	*sqlStorage
}

// Creates a new Postgres Storage using the provided connection string.
//
// If clearDB is true, the database will be cleared on startup. You
// probably only want this for testing.
func NewPSQLStorage(connStr string, clearDB bool) (*PSQLStorage, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}

	err = db.Ping()
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging db: %w", err)
	}

	if clearDB {
		for _, table := range append([]string{"feed"}, feedTables...) {
			_, err = db.Exec(`DROP TABLE IF EXISTS ` + table)
			if err != nil {
				db.Close()
				return nil, fmt.Errorf("clearing db: %w", err)
			}
		}
	}

	s, err := newSQLStorage(db, psqlDialect)
	if err != nil {
		db.Close()
		return nil, err
	}

	return &PSQLStorage{sqlStorage: s}, nil
}
