// Package providers holds the caller façades from spec.md §4.5 (C6):
// thin adapters that encode domain values as strings/JSON and route
// their reads/writes through an envctx.Context; the one exception is
// VoteProvider.Tally, which enumerates keys via envstore.Store
// directly. None of them add new
// persistence or concurrency of their own — they exist purely to give
// block/slice/transaction/config/wallet data a typed API over the
// core's (chain, key, context-hash) contract.
package providers

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/envctx"
)

// getJSON decodes the JSON value stored at key into dst, reporting
// found=false (and leaving dst untouched) if the key is absent.
func getJSON(ctx context.Context, c *envctx.Context, key string, dst interface{}) (bool, error) {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return false, errors.Wrapf(err, "reading %s", key)
	}
	if raw == "" {
		return false, nil
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return false, errors.Wrapf(err, "decoding %s", key)
	}
	return true, nil
}

// setJSON encodes v as JSON and stages it at key.
func setJSON(c *envctx.Context, key string, v interface{}) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return errors.Wrapf(err, "encoding %s", key)
	}
	c.Set(key, string(raw))
	return nil
}
