// Package envstore implements the Environment Store (spec.md §4.2):
// the persistent (chain, key, context-hash) -> value map with
// look-through resolution over the Block/Slice Tree, plus the flat
// MainContextHash bucket. The physical layout mirrors the teacher's
// table-per-concern SQL shape (store/store.go), but keyed into three
// indices on one ordered kv.Backend instead of three SQL tables,
// matching spec.md §4.2's "three logical indices on the ordered KV
// backend".
package envstore

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/hashutil"
	"github.com/bywise-go/envcore/internal/kv"
	"github.com/bywise-go/envcore/internal/tree"
)

// tombstone is the distinguished value marker for an explicit delete,
// distinct from "nothing written" (spec.md §3, Tombstone).
const tombstone = "\x00tombstone"

// Record is one persisted environment record.
type Record struct {
	Chain   string
	Key     string
	Hash    string
	Value   string
	Deleted bool // true if this record is a tombstone
}

// Store is the persistent backing of (chain, key, hash) -> value.
type Store struct {
	backend kv.Backend
	tr      *tree.Tree
}

// New returns a Store backed by b, resolving ancestor walks against tr.
func New(b kv.Backend, tr *tree.Tree) *Store {
	return &Store{backend: b, tr: tr}
}

func primaryKey(chain, hash, key string) string {
	return "env|" + chain + "|" + hash + "|" + key
}

func byKeyIndexKey(chain, key, hash string) string {
	return "env-key|" + chain + "|" + key + "|" + hash
}

func byHashIndexKey(chain, hash, key string) string {
	return "env-hash|" + chain + "|" + hash + "|" + key
}

func encodeValue(value string, deleted bool) []byte {
	if deleted {
		return []byte(tombstone)
	}
	return []byte(value)
}

func decodeValue(raw []byte) (value string, deleted bool) {
	if string(raw) == tombstone {
		return "", true
	}
	return string(raw), false
}

// Write is one key's pending value for SaveMany/Save.
type Write struct {
	Value   string
	Deleted bool
}

// Save writes one record under (chain, key, hash), updating all three
// indices atomically (spec.md §4.2, I1).
func (s *Store) Save(ctx context.Context, chain, key, hash, value string, deleted bool) error {
	return s.SaveMany(ctx, chain, hash, map[string]Write{key: {Value: value, Deleted: deleted}})
}

// SaveMany writes several keys under the same (chain, hash) in one
// atomic batch, the way push (spec.md §4.4) persists an entire
// setMain tier in a single write.
func (s *Store) SaveMany(ctx context.Context, chain, hash string, values map[string]Write) error {
	var ops []kv.Op
	for key, rv := range values {
		raw := encodeValue(rv.Value, rv.Deleted)
		ops = append(ops,
			kv.Op{Key: primaryKey(chain, hash, key), Value: raw},
			kv.Op{Key: byKeyIndexKey(chain, key, hash), Value: raw},
			kv.Op{Key: byHashIndexKey(chain, hash, key), Value: raw},
		)
	}
	return errors.Wrapf(s.backend.PutBatch(ctx, ops), "saving %d records for chain %s at %s", len(values), chain, hash)
}

// Del removes the record for (chain, key, hash) from all three
// indices.
func (s *Store) Del(ctx context.Context, chain, key, hash string) error {
	ops := []kv.Op{
		{Key: primaryKey(chain, hash, key), Del: true},
		{Key: byKeyIndexKey(chain, key, hash), Del: true},
		{Key: byHashIndexKey(chain, hash, key), Del: true},
	}
	return errors.Wrapf(s.backend.PutBatch(ctx, ops), "deleting %s/%s@%s", chain, key, hash)
}

// DelMany removes every record at (chain, hash) via the by-hash index,
// used to clear the main-context bucket on a deep reorg (spec.md
// §4.3) in bounded-size batches.
func (s *Store) DelMany(ctx context.Context, chain, hash string, pageSize int) (int, error) {
	if pageSize <= 0 {
		pageSize = 10000
	}
	total := 0
	for {
		recs, err := s.backend.ScanPrefix(ctx, "env-hash|"+chain+"|"+hash+"|", pageSize, 0, false)
		if err != nil {
			return total, errors.Wrap(err, "scanning by-hash index")
		}
		if len(recs) == 0 {
			return total, nil
		}
		var ops []kv.Op
		for _, rec := range recs {
			key := strings.TrimPrefix(rec.Key, "env-hash|"+chain+"|"+hash+"|")
			ops = append(ops,
				kv.Op{Key: primaryKey(chain, hash, key), Del: true},
				kv.Op{Key: byKeyIndexKey(chain, key, hash), Del: true},
				kv.Op{Key: rec.Key, Del: true},
			)
		}
		if err := s.backend.PutBatch(ctx, ops); err != nil {
			return total, errors.Wrap(err, "deleting batch")
		}
		total += len(recs)
	}
}

// Get is a direct point lookup on (chain, key, hash), with no
// ancestor walk. Used by the main-context fast path (spec.md §4.2).
func (s *Store) Get(ctx context.Context, chain, key, hash string) (value string, found bool, deleted bool, err error) {
	raw, ok, err := s.backend.Get(ctx, primaryKey(chain, hash, key))
	if err != nil {
		return "", false, false, errors.Wrapf(err, "point lookup %s/%s@%s", chain, key, hash)
	}
	if !ok {
		return "", false, false, nil
	}
	v, del := decodeValue(raw)
	return v, true, del, nil
}

// GetSlow performs the look-through resolution described in spec.md
// §4.2: walk ancestors from fromHash via the tree, returning the
// first record found (tombstones resolve to "" / deleted), falling
// back to ZeroHash, then to absent.
func (s *Store) GetSlow(ctx context.Context, chain, key, fromHash string) (value string, found bool, err error) {
	hash := fromHash
	for {
		raw, ok, err := s.backend.Get(ctx, primaryKey(chain, hash, key))
		if err != nil {
			return "", false, errors.Wrapf(err, "look-through read %s/%s@%s", chain, key, hash)
		}
		if ok {
			v, deleted := decodeValue(raw)
			if deleted {
				return "", false, nil
			}
			return v, true, nil
		}
		if hash == hashutil.ZeroHash {
			return "", false, nil
		}
		next, err := s.tr.GetLastHash(hash)
		if err != nil {
			return "", false, errors.Wrapf(err, "walking ancestors of %s from %s", fromHash, hash)
		}
		hash = next
	}
}

// HasSlow reports whether key resolves to a present (non-tombstoned,
// non-absent) value via the same look-through rule as GetSlow.
func (s *Store) HasSlow(ctx context.Context, chain, key, fromHash string) (bool, error) {
	_, found, err := s.GetSlow(ctx, chain, key, fromHash)
	return found, err
}

// GetSlowList returns all records whose key starts with prefix+"-",
// one per distinct suffix, each resolved to the record nearest
// fromHash along the ancestor walk (spec.md §4.2 enumeration support).
func (s *Store) GetSlowList(ctx context.Context, chain, prefix, fromHash string) ([]Record, error) {
	keys, err := s.distinctKeysWithPrefix(ctx, chain, prefix+"-")
	if err != nil {
		return nil, err
	}
	var out []Record
	for _, key := range keys {
		v, found, err := s.GetSlow(ctx, chain, key, fromHash)
		if err != nil {
			return nil, err
		}
		if found {
			out = append(out, Record{Chain: chain, Key: key, Hash: fromHash, Value: v})
		}
	}
	return out, nil
}

func (s *Store) distinctKeysWithPrefix(ctx context.Context, chain, prefix string) ([]string, error) {
	recs, err := s.backend.ScanPrefix(ctx, "env-key|"+chain+"|"+prefix, 0, 0, false)
	if err != nil {
		return nil, errors.Wrap(err, "scanning by-key index for prefix")
	}
	seen := map[string]bool{}
	var out []string
	for _, rec := range recs {
		rest := strings.TrimPrefix(rec.Key, "env-key|"+chain+"|")
		parts := strings.SplitN(rest, "|", 2)
		key := parts[0]
		if !seen[key] {
			seen[key] = true
			out = append(out, key)
		}
	}
	return out, nil
}

// FindByChainAndKey returns every persisted record of (chain, key)
// across all context hashes.
func (s *Store) FindByChainAndKey(ctx context.Context, chain, key string) ([]Record, error) {
	recs, err := s.backend.ScanPrefix(ctx, "env-key|"+chain+"|"+key+"|", 0, 0, false)
	if err != nil {
		return nil, errors.Wrap(err, "scanning by-key index")
	}
	var out []Record
	for _, rec := range recs {
		hash := strings.TrimPrefix(rec.Key, "env-key|"+chain+"|"+key+"|")
		v, deleted := decodeValue(rec.Value)
		out = append(out, Record{Chain: chain, Key: key, Hash: hash, Value: v, Deleted: deleted})
	}
	return out, nil
}

// FindByChainAndHash returns every persisted record stored under hash.
func (s *Store) FindByChainAndHash(ctx context.Context, chain, hash string) ([]Record, error) {
	recs, err := s.backend.ScanPrefix(ctx, "env-hash|"+chain+"|"+hash+"|", 0, 0, false)
	if err != nil {
		return nil, errors.Wrap(err, "scanning by-hash index")
	}
	var out []Record
	for _, rec := range recs {
		key := strings.TrimPrefix(rec.Key, "env-hash|"+chain+"|"+hash+"|")
		v, deleted := decodeValue(rec.Value)
		out = append(out, Record{Chain: chain, Key: key, Hash: hash, Value: v, Deleted: deleted})
	}
	return out, nil
}
