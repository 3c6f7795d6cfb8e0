package kv

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeysGlob(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"user:1", "user:2", "session:1", "k1", "k2", "k3"} {
		require.NoError(t, s.Set(ctx, k, "v", NoTTL))
	}

	keys, err := s.Keys(ctx, "user:*")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	keys, err = s.Keys(ctx, "user:?")
	require.NoError(t, err)
	assert.Equal(t, []string{"user:1", "user:2"}, keys)

	// Bracket classes work natively through GLOB.
	keys, err = s.Keys(ctx, "k[12]")
	require.NoError(t, err)
	assert.Equal(t, []string{"k1", "k2"}, keys)

	keys, err = s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Len(t, keys, 6)
}

func TestKeysExcludesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "live", "v", NoTTL))
	require.NoError(t, s.Set(ctx, "dying", "v", 20*time.Millisecond))
	time.Sleep(30 * time.Millisecond)

	keys, err := s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"live"}, keys)
}

func TestScanPagination(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("key:%d", i), i, NoTTL))
	}

	var all []string
	var cursor uint64
	pages := 0
	for {
		next, keys, err := s.Scan(ctx, cursor, "key:*", 2, "")
		require.NoError(t, err)
		all = append(all, keys...)
		pages++
		if next == 0 {
			break
		}
		cursor = next
	}
	assert.Equal(t, 3, pages)
	assert.Equal(t, []string{"key:0", "key:1", "key:2", "key:3", "key:4"}, all)
}

func TestScanTypeFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "str", "v", NoTTL))
	_, err := s.HSet(ctx, "hash", "f", "v")
	require.NoError(t, err)
	_, err = s.LPush(ctx, "list", "v")
	require.NoError(t, err)

	_, keys, err := s.Scan(ctx, 0, "", 100, TypeHash)
	require.NoError(t, err)
	assert.Equal(t, []string{"hash"}, keys)
}

func TestIterKeys(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 7; i++ {
		require.NoError(t, s.Set(ctx, fmt.Sprintf("it:%d", i), i, NoTTL))
	}

	var got []string
	for key, err := range s.IterKeys(ctx, "it:*", 3) {
		require.NoError(t, err)
		got = append(got, key)
	}
	assert.Len(t, got, 7)
}

func TestDeletePattern(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, k := range []string{"tmp:1", "tmp:2", "tmp:3", "keep:1"} {
		require.NoError(t, s.Set(ctx, k, "v", NoTTL))
	}

	n, err := s.DeletePattern(ctx, "tmp:*", 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	keys, err := s.Keys(ctx, "*")
	require.NoError(t, err)
	assert.Equal(t, []string{"keep:1"}, keys)
}

func TestRename(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.Rename(ctx, "missing", "dst")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	require.NoError(t, s.Set(ctx, "src", "v", time.Minute))
	require.NoError(t, s.Set(ctx, "dst", "old", NoTTL))
	require.NoError(t, s.Rename(ctx, "src", "dst"))

	found, _, err := s.Get(ctx, "src")
	require.NoError(t, err)
	assert.False(t, found)

	_, val, err := s.Get(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, "v", val)

	// The ttl travels with the rename.
	ttl, err := s.TTL(ctx, "dst")
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(0))
}

func TestRenameSelf(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Renaming a key onto itself keeps the key intact.
	require.NoError(t, s.Set(ctx, "k", "v", time.Minute))
	require.NoError(t, s.Rename(ctx, "k", "k"))

	_, val, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
	ttl, err := s.TTL(ctx, "k")
	require.NoError(t, err)
	assert.Greater(t, ttl, int64(0))

	// An absent key still errors even when src == dst.
	err = s.Rename(ctx, "missing", "missing")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	// RenameNX onto itself reports no rename and leaves the key alone.
	renamed, err := s.RenameNX(ctx, "k", "k")
	require.NoError(t, err)
	assert.False(t, renamed)
	_, val, err = s.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", val)
}

func TestRenameCarriesAuxData(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.HSet(ctx, "src", "f1", "v1", "f2", "v2")
	require.NoError(t, err)
	require.NoError(t, s.Rename(ctx, "src", "dst"))

	all, err := s.HGetAll(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"f1": "v1", "f2": "v2"}, all)
}

func TestRenameNX(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "src", "v", NoTTL))
	require.NoError(t, s.Set(ctx, "dst", "old", NoTTL))

	renamed, err := s.RenameNX(ctx, "src", "dst")
	require.NoError(t, err)
	assert.False(t, renamed)

	_, val, err := s.Get(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, "old", val)

	renamed, err = s.RenameNX(ctx, "src", "fresh")
	require.NoError(t, err)
	assert.True(t, renamed)

	_, err = s.RenameNX(ctx, "missing", "dst2")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}
