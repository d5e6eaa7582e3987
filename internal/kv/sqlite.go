package kv

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteBackend opens (creating if needed) an embedded SQLite file
// as a Backend. This is the default single-node deployment, the same
// driver cmd/slidechaind blank-imports in the teacher.
func NewSQLiteBackend(path, table string) (Backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, wrapBackendErr(err, "opening sqlite db %s", path)
	}
	// A single file-backed sqlite3 connection serializes writers
	// anyway; keeping one open connection avoids "database is locked"
	// errors under concurrent callers.
	db.SetMaxOpenConns(1)
	return newSQLBackend(db, table, "BLOB")
}
