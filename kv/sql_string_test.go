package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSetGetRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	found, val, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, val)

	for key, want := range map[string]any{
		"str":   "value",
		"int":   int64(42),
		"float": 3.14,
		"bool":  true,
		"map":   map[string]any{"a": int64(1)},
	} {
		require.NoError(t, s.Set(ctx, key, want, NoTTL))
		found, val, err := s.Get(ctx, key)
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, want, val)
	}
}

func TestSetZeroTTLDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "v", NoTTL))
	require.NoError(t, s.Set(ctx, "k", "replacement", 0))

	found, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAdd(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.Add(ctx, "k", "first", NoTTL)
	require.NoError(t, err)
	assert.True(t, added)

	added, err = s.Add(ctx, "k", "second", NoTTL)
	require.NoError(t, err)
	assert.False(t, added)

	_, val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "first", val)

	// Zero ttl reports whether the key was absent without storing anything.
	added, err = s.Add(ctx, "other", "v", 0)
	require.NoError(t, err)
	assert.True(t, added)
	found, _, err := s.Get(ctx, "other")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestAddAfterExpiry(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", "old", 20*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	added, err := s.Add(ctx, "k", "new", NoTTL)
	require.NoError(t, err)
	assert.True(t, added)
	_, val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "new", val)
}

func TestSetWithArgsNX(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, wrote, err := s.SetWithArgs(ctx, "k", "v1", SetArgs{NX: true, TTL: NoTTL})
	require.NoError(t, err)
	assert.True(t, wrote)

	old, wrote, err := s.SetWithArgs(ctx, "k", "v2", SetArgs{NX: true, Get: true, TTL: NoTTL})
	require.NoError(t, err)
	assert.False(t, wrote)
	assert.Equal(t, "v1", old)

	_, val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", val)
}

func TestSetWithArgsXX(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, wrote, err := s.SetWithArgs(ctx, "k", "v", SetArgs{XX: true, TTL: NoTTL})
	require.NoError(t, err)
	assert.False(t, wrote)

	require.NoError(t, s.Set(ctx, "k", "v1", NoTTL))
	old, wrote, err := s.SetWithArgs(ctx, "k", "v2", SetArgs{XX: true, Get: true, TTL: NoTTL})
	require.NoError(t, err)
	assert.True(t, wrote)
	assert.Equal(t, "v1", old)

	_, val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v2", val)
}

func TestSetWithArgsNXAndXXRejected(t *testing.T) {
	s := newTestStore(t)
	_, _, err := s.SetWithArgs(context.Background(), "k", "v", SetArgs{NX: true, XX: true})
	assert.Error(t, err)
}

func TestDeleteAndHas(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	deleted, err := s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.False(t, deleted)

	require.NoError(t, s.Set(ctx, "k", "v", NoTTL))
	has, err := s.Has(ctx, "k")
	require.NoError(t, err)
	assert.True(t, has)

	deleted, err = s.Delete(ctx, "k")
	require.NoError(t, err)
	assert.True(t, deleted)

	has, err = s.Has(ctx, "k")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestGetManySetManyDeleteMany(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SetMany(ctx, map[string]any{"a": int64(1), "b": "two", "c": true}, NoTTL))

	vals, err := s.GetMany(ctx, "a", "b", "c", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": int64(1), "b": "two", "c": true}, vals)

	n, err := s.DeleteMany(ctx, "a", "b", "missing")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	vals, err = s.GetMany(ctx, "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"c": true}, vals)
}

func TestIncrDecr(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.IncrBy(ctx, "counter", 1)
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "counter", 10, NoTTL))
	n, err := s.IncrBy(ctx, "counter", 5)
	require.NoError(t, err)
	assert.Equal(t, int64(15), n)

	n, err = s.DecrBy(ctx, "counter", 20)
	require.NoError(t, err)
	assert.Equal(t, int64(-5), n)

	_, val, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(-5), val)

	require.NoError(t, s.Set(ctx, "text", "not a number", NoTTL))
	_, err = s.IncrBy(ctx, "text", 1)
	assert.ErrorIs(t, err, ErrNotAnInteger)
}

func TestClear(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "str", "v", NoTTL))
	_, err := s.HSet(ctx, "hash", "f", "v")
	require.NoError(t, err)
	_, err = s.SAdd(ctx, "set", "m")
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))

	keys, err := s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestTypeAndTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	kt, err := s.Type(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, TypeNone, kt)

	require.NoError(t, s.Set(ctx, "k", "v", NoTTL))
	kt, err = s.Type(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, TypeString, kt)

	// Writing a hash field converts the key and destroys the string value.
	_, err = s.HSet(ctx, "k", "f", "hv")
	require.NoError(t, err)
	kt, err = s.Type(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, TypeHash, kt)

	found, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, found)

	// And converting back destroys the hash.
	require.NoError(t, s.Set(ctx, "k", "again", NoTTL))
	n, err := s.HLen(ctx, "k")
	require.NoError(t, err)
	assert.Zero(t, n)

	// Hash to list: old fields are gone, the new list stands alone.
	_, err = s.HSet(ctx, "k", "f", "hv")
	require.NoError(t, err)
	_, err = s.LPush(ctx, "k", "x")
	require.NoError(t, err)
	exists, err := s.HExists(ctx, "k", "f")
	require.NoError(t, err)
	assert.False(t, exists)
	vals, err := s.LRange(ctx, "k", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"x"}, vals)
}

func TestTouch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	touched, err := s.Touch(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.False(t, touched)

	require.NoError(t, s.Set(ctx, "k", "v", 20*time.Millisecond))
	touched, err = s.Touch(ctx, "k", time.Minute)
	require.NoError(t, err)
	assert.True(t, touched)

	time.Sleep(30 * time.Millisecond)
	found, _, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestTablePrefixValidation(t *testing.T) {
	ctx := context.Background()
	_, err := NewSQLite(ctx, ":memory:", WithTablePrefix("bad; DROP TABLE x"))
	assert.Error(t, err)

	s, err := NewSQLite(ctx, ":memory:", WithTablePrefix("custom_kv"))
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Set(ctx, "k", "v", NoTTL))
	found, val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "v", val)
}
