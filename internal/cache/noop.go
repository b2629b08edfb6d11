package cache

import (
	"context"
	"time"
)

// NoOp is a Cache that never has anything — used when REDIS_URL is unset.
// Consumers fall back to the store exactly as they would on any other
// cache miss, so behaviour with the cache disabled is identical to the
// cache being enabled but empty.
type NoOp struct{}

func (NoOp) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (NoOp) Set(context.Context, string, string, time.Duration) error { return nil }
func (NoOp) Exists(context.Context, string) (bool, error) { return false, nil }
func (NoOp) Available() bool { return false }
