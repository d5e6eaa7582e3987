package kv

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrKVBackendError is the sentinel spec.md §7 tells callers to match
// to mark the chain pipeline unhealthy: any failure surfaced by the
// underlying database/sql driver. wrapBackendErr attaches it as the
// cause of every such failure, the way tree/errors.go's sentinels are
// always the errors.Cause of what callers see, rather than leaving
// sqlite- and Postgres-specific errors unclassified.
var ErrKVBackendError = errors.New("kv backend error")

// wrapBackendErr wraps err (if non-nil) so that errors.Cause resolves
// to ErrKVBackendError, while still weaving err's own text into the
// message so the specific driver failure isn't lost.
func wrapBackendErr(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Wrapf(ErrKVBackendError, "%s: %s", fmt.Sprintf(format, args...), err)
}
