// Package workcache deduplicates identical work inside one review batch.
//
// A Cache lives exactly as long as the batch that created it. Lookups never
// block: when another goroutine is already computing a key, the caller gets a
// Skipped result immediately and carries on without the value.
package workcache

import (
	"context"
	"reflect"
	"sync"

	"go.uber.org/zap"

	"promptswap/internal/lock"
	"promptswap/internal/metrics"
)

type Status int

const (
	// StatusHit means the value was already cached.
	StatusHit Status = iota
	// StatusComputed means this caller ran the computation.
	StatusComputed
	// StatusSkipped means another caller holds the key's lock.
	StatusSkipped
	// StatusFailed means the computation returned an error; nothing was cached.
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusHit:
		return "hit"
	case StatusComputed:
		return "computed"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	default:
		return "unknown"
	}
}

type Result[T any] struct {
	Value  T
	Status Status
	Err    error
}

func (r Result[T]) Ok() bool {
	return r.Status == StatusHit || r.Status == StatusComputed
}

type Cache struct {
	Logger *zap.Logger

	mu     sync.RWMutex
	values map[string]any
	locks  *lock.Set
}

func New(logger *zap.Logger) *Cache {
	return &Cache{
		Logger: logger,
		values: map[string]any{},
		locks:  lock.NewSet(),
	}
}

func (c *Cache) load(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.values[key]
	return v, ok
}

func (c *Cache) store(key string, v any) {
	c.mu.Lock()
	c.values[key] = v
	c.mu.Unlock()
}

// Len reports how many keys hold a value.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// GetOrCompute returns the cached value for key or computes it under the key's
// try-lock. A cached value of a different type than T is treated as a miss.
func GetOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) Result[T] {
	res := getOrCompute(ctx, c, key, compute)
	metrics.CacheLookups.WithLabelValues(res.Status.String()).Inc()
	return res
}

func getOrCompute[T any](ctx context.Context, c *Cache, key string, compute func(context.Context) (T, error)) Result[T] {
	if v, ok := c.load(key); ok {
		if typed, ok := v.(T); ok {
			return Result[T]{Value: typed, Status: StatusHit}
		}
	}
	if !c.locks.TryLock(key) {
		return Result[T]{Status: StatusSkipped}
	}
	defer c.locks.Unlock(key)

	// Another holder may have stored the value between the miss and the lock.
	if v, ok := c.load(key); ok {
		if typed, ok := v.(T); ok {
			return Result[T]{Value: typed, Status: StatusHit}
		}
	}

	v, err := compute(ctx)
	if err != nil {
		if c.Logger != nil {
			c.Logger.Warn("work cache compute failed", zap.String("key", key), zap.Error(err))
		}
		return Result[T]{Status: StatusFailed, Err: err}
	}
	if !isNil(v) {
		c.store(key, v)
	}
	return Result[T]{Value: v, Status: StatusComputed}
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
