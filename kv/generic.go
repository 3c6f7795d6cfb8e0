package kv

import (
	"context"
	"fmt"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// As converts a decoded value to a concrete type. A direct type assertion is
// tried first; failing that, the value is round-tripped through msgpack,
// which turns the codec's generic map/slice shapes back into structs.
func As[T any](val any) (T, error) {
	if typed, ok := val.(T); ok {
		return typed, nil
	}
	var result T
	data, err := msgpack.Marshal(val)
	if err != nil {
		var zero T
		return zero, fmt.Errorf("kv: cannot convert value of type %T to %T: %w", val, zero, err)
	}
	if err := msgpack.Unmarshal(data, &result); err != nil {
		var zero T
		return zero, fmt.Errorf("kv: cannot convert value of type %T to %T: %w", val, zero, err)
	}
	return result, nil
}

// GetAs retrieves a typed string value from the store.
func GetAs[T any](ctx context.Context, st Store, key string) (bool, T, error) {
	found, val, err := st.Get(ctx, key)
	if !found || err != nil {
		var zero T
		return false, zero, err
	}
	typed, err := As[T](val)
	if err != nil {
		var zero T
		return false, zero, err
	}
	return true, typed, nil
}

// Invoker produces a value of type T on a cache miss. The bool return
// signals whether a value was found; return false to avoid caching a zero
// value (the sql.ErrNoRows scenario).
type Invoker[T any] func(ctx context.Context) (T, bool, error)

// Fetch is a cache-aside helper over the store. On a hit the cached value is
// returned; on a miss invoke produces it, and when invoke reports found the
// value is stored with the given ttl. A failed store after a successful
// invoke is swallowed — the caller got their value, and the next Fetch will
// simply miss again.
func Fetch[T any](ctx context.Context, st Store, key string, ttl time.Duration, invoke Invoker[T]) (bool, T, error) {
	found, val, err := GetAs[T](ctx, st, key)
	if err != nil {
		var zero T
		return false, zero, err
	}
	if found {
		return true, val, nil
	}

	result, ok, err := invoke(ctx)
	if err != nil {
		var zero T
		return false, zero, err
	}
	if !ok {
		var zero T
		return false, zero, nil
	}

	_ = st.Set(ctx, key, result, ttl)

	return true, result, nil
}
