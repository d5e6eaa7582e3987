package kv

import (
	"database/sql"

	_ "github.com/lib/pq"
)

// NewPostgresBackend opens a Postgres-backed Backend, for deployments
// that run the environment store against a shared cluster instead of
// an embedded per-node file. Shares all SQL text with the sqlite
// backend (internal/kv/sql.go); Postgres accepts the same $N
// placeholder style the teacher already uses against sqlite3.
func NewPostgresBackend(dsn, table string) (Backend, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, wrapBackendErr(err, "opening postgres db")
	}
	return newSQLBackend(db, table, "BYTEA")
}
