// Package proxy builds cached wrappers around services without changing the
// services themselves.
package proxy

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/hrygo/tiercache/cache"
	"github.com/hrygo/tiercache/store"
)

// Operation is one named asynchronous call of a service: arguments in, value
// out. Results of cached operations must be serializable, and an operation
// must be pure enough that reusing a prior result for the configured TTL is
// acceptable.
type Operation func(ctx context.Context, args ...any) (any, error)

// Service is the capability interface wrapped services implement: a fixed
// set of named operations.
type Service interface {
	Operations() map[string]Operation
}

// MethodConfig configures caching for a single operation. Operations without
// a config entry are passed through uncached.
type MethodConfig struct {
	// TTL for cached results. Zero picks the tier default, cache.TTLNone
	// disables expiry.
	TTL time.Duration
	// Key derives the cache key from the call arguments. Required.
	Key func(args ...any) string
	// Condition, when set and false for the given arguments, bypasses the
	// cache entirely.
	Condition func(args ...any) bool
	// SourceLocator, when set, tags the entry for freshness polling.
	SourceLocator func(args ...any) string
	// Tier overrides the keyword heuristic.
	Tier store.Tier
}

// Config maps operation names to their cache behavior. It is built once at
// startup; there is no reflection-based auto-caching.
type Config map[string]MethodConfig

// CachedService exposes the same operation names as its target, consulting
// and populating the cache around each configured call.
type CachedService struct {
	target Service
	ops    map[string]Operation
}

// Wrap builds the caching wrapper for a service. Every config entry must
// name an existing operation and carry a key function.
func Wrap(target Service, view *cache.Cache, config Config) (*CachedService, error) {
	targetOps := target.Operations()
	for name, mc := range config {
		if _, ok := targetOps[name]; !ok {
			return nil, errors.Errorf("cache config names unknown operation %q", name)
		}
		if mc.Key == nil {
			return nil, errors.Errorf("cache config for operation %q has no key function", name)
		}
	}

	ops := make(map[string]Operation, len(targetOps))
	for name, op := range targetOps {
		mc, cached := config[name]
		if !cached {
			ops[name] = op
			continue
		}
		ops[name] = cachedOperation(view, op, mc)
	}

	return &CachedService{target: target, ops: ops}, nil
}

func cachedOperation(view *cache.Cache, op Operation, mc MethodConfig) Operation {
	return func(ctx context.Context, args ...any) (any, error) {
		if mc.Condition != nil && !mc.Condition(args...) {
			return op(ctx, args...)
		}

		opts := cache.SetOptions{Tier: mc.Tier}
		if mc.SourceLocator != nil {
			opts.SourceLocator = mc.SourceLocator(args...)
		}
		return view.GetOrSetWithOptions(ctx, mc.Key(args...), func(ctx context.Context) (any, error) {
			return op(ctx, args...)
		}, mc.TTL, opts)
	}
}

// Operations implements Service, so wrapped services can themselves be
// wrapped or passed wherever the capability interface is expected.
func (s *CachedService) Operations() map[string]Operation {
	return s.ops
}

// Target returns the wrapped service.
func (s *CachedService) Target() Service {
	return s.target
}

// Call invokes a named operation through the cache.
func (s *CachedService) Call(ctx context.Context, name string, args ...any) (any, error) {
	op, ok := s.ops[name]
	if !ok {
		return nil, errors.Errorf("unknown operation %q", name)
	}
	return op(ctx, args...)
}
