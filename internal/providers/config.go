package providers

import (
	"context"

	"github.com/pkg/errors"

	"github.com/bywise-go/envcore/internal/envctx"
)

func configKey(name string) string { return "config-" + name }

// ConfigProvider reads and writes chain-level configuration (validator
// sets, protocol parameters) the way spec.md §6 describes the
// consolidation engine's own `config-last_hash` record: an ordinary
// environment record under a reserved key prefix, not a separate
// table.
type ConfigProvider struct {
	ctx *envctx.Context
}

// NewConfigProvider wraps an already-open Context.
func NewConfigProvider(c *envctx.Context) *ConfigProvider {
	return &ConfigProvider{ctx: c}
}

// Get decodes the JSON config value named name into dst, reporting
// found=false if it has never been set.
func (p *ConfigProvider) Get(ctx context.Context, name string, dst interface{}) (bool, error) {
	found, err := getJSON(ctx, p.ctx, configKey(name), dst)
	return found, errors.Wrapf(err, "reading config %s", name)
}

// Set encodes v as JSON and stages it under name.
func (p *ConfigProvider) Set(name string, v interface{}) error {
	return errors.Wrapf(setJSON(p.ctx, configKey(name), v), "writing config %s", name)
}
