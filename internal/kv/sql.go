package kv

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/bobg/sqlutil"
)

// sqlBackend is a Backend over an ordered key/value table in any
// database/sql driver that supports $N placeholders and a single
// TEXT PRIMARY KEY column ordered lexicographically (sqlite3 and
// Postgres both qualify). The table/schema shape mirrors the
// teacher's blocks/snapshots tables in store/store.go: one flat
// table, queried with plain SQL rather than an ORM.
type sqlBackend struct {
	db    *sql.DB
	table string
}

const createTableFmt = `
CREATE TABLE IF NOT EXISTS %s (
	k TEXT NOT NULL PRIMARY KEY,
	v %s NOT NULL
)`

// newSQLBackend creates table (if needed) using blobType as the value
// column's type — "BLOB" for sqlite3, "BYTEA" for Postgres, since the
// two engines don't share a binary column type name even though they
// both accept the same $N-placeholder DML the rest of this file uses.
func newSQLBackend(db *sql.DB, table, blobType string) (*sqlBackend, error) {
	_, err := db.Exec(fmt.Sprintf(createTableFmt, table, blobType))
	if err != nil {
		return nil, wrapBackendErr(err, "creating table %s", table)
	}
	return &sqlBackend{db: db, table: table}, nil
}

func (b *sqlBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	q := fmt.Sprintf("SELECT v FROM %s WHERE k = $1", b.table)
	var v []byte
	err := b.db.QueryRowContext(ctx, q, key).Scan(&v)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, wrapBackendErr(err, "reading key %q from %s", key, b.table)
	}
	return v, true, nil
}

func (b *sqlBackend) Put(ctx context.Context, key string, value []byte) error {
	return b.PutBatch(ctx, []Op{{Key: key, Value: value}})
}

func (b *sqlBackend) Delete(ctx context.Context, key string) error {
	return b.PutBatch(ctx, []Op{{Key: key, Del: true}})
}

// PutBatch writes ops inside a single transaction, so either all of
// them land or none do (spec.md §6, and I1/(I2) depend on this for
// the three environment indices).
func (b *sqlBackend) PutBatch(ctx context.Context, ops []Op) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return wrapBackendErr(err, "beginning batch")
	}
	defer tx.Rollback()

	upsert := fmt.Sprintf("INSERT INTO %s (k, v) VALUES ($1, $2) ON CONFLICT (k) DO UPDATE SET v = excluded.v", b.table)
	del := fmt.Sprintf("DELETE FROM %s WHERE k = $1", b.table)

	for _, op := range ops {
		if op.Del {
			if _, err := tx.ExecContext(ctx, del, op.Key); err != nil {
				return wrapBackendErr(err, "deleting key %q", op.Key)
			}
			continue
		}
		if _, err := tx.ExecContext(ctx, upsert, op.Key, op.Value); err != nil {
			return wrapBackendErr(err, "writing key %q", op.Key)
		}
	}
	return wrapBackendErr(tx.Commit(), "committing batch")
}

func (b *sqlBackend) ScanPrefix(ctx context.Context, prefix string, limit, offset int, reverse bool) ([]KV, error) {
	order := "ASC"
	if reverse {
		order = "DESC"
	}
	q := fmt.Sprintf("SELECT k, v FROM %s WHERE k >= $1 AND k < $2 ORDER BY k %s", b.table, order)
	if limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", limit)
	}
	if offset > 0 {
		q += fmt.Sprintf(" OFFSET %d", offset)
	}

	var out []KV
	err := sqlutil.ForQueryRows(ctx, b.db, q, prefix, prefixUpperBound(prefix), func(k string, v []byte) error {
		out = append(out, KV{Key: k, Value: v})
		return nil
	})
	return out, wrapBackendErr(err, "scanning prefix %q", prefix)
}

func (b *sqlBackend) Count(ctx context.Context, prefix string) (int, error) {
	q := fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE k >= $1 AND k < $2", b.table)
	var n int
	err := b.db.QueryRowContext(ctx, q, prefix, prefixUpperBound(prefix)).Scan(&n)
	return n, wrapBackendErr(err, "counting prefix %q", prefix)
}

func (b *sqlBackend) Close() error {
	return wrapBackendErr(b.db.Close(), "closing %s", b.table)
}

// prefixUpperBound returns the smallest string that sorts after every
// string starting with prefix, so that `k >= prefix AND k < bound` is
// an exact prefix range scan.
func prefixUpperBound(prefix string) string {
	bs := []byte(prefix)
	for i := len(bs) - 1; i >= 0; i-- {
		if bs[i] != 0xff {
			bs[i]++
			return string(bs[:i+1])
		}
	}
	// prefix is all 0xff bytes (or empty); there's no finite upper
	// bound, so match everything from prefix upward.
	return string(append(bs, 0xff))
}
