package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPushPop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.RPush(ctx, "l", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.LPush(ctx, "l", "x", "y")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	// LPush pushes one at a time, so the last value ends up at the head.
	vals, err := s.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"y", "x", "a", "b", "c"}, vals)

	found, v, err := s.LPop(ctx, "l")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "y", v)

	found, v, err = s.RPop(ctx, "l")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c", v)

	found, _, err = s.LPop(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestPopCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RPush(ctx, "l", "a", "b", "c", "d")
	require.NoError(t, err)

	vals, err := s.LPopCount(ctx, "l", 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, vals)

	// Right pops come back tail-first.
	vals, err = s.RPopCount(ctx, "l", 2)
	require.NoError(t, err)
	assert.Equal(t, []any{"d", "c"}, vals)

	n, err := s.LLen(ctx, "l")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLRangeNegativeIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RPush(ctx, "l", "a", "b", "c", "d", "e")
	require.NoError(t, err)

	vals, err := s.LRange(ctx, "l", 1, 3)
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "c", "d"}, vals)

	vals, err = s.LRange(ctx, "l", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"d", "e"}, vals)

	vals, err = s.LRange(ctx, "l", 3, 1)
	require.NoError(t, err)
	assert.Empty(t, vals)

	vals, err = s.LRange(ctx, "l", -100, 100)
	require.NoError(t, err)
	assert.Len(t, vals, 5)
}

func TestLIndex(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RPush(ctx, "l", "a", "b", "c")
	require.NoError(t, err)

	found, v, err := s.LIndex(ctx, "l", 0)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "a", v)

	found, v, err = s.LIndex(ctx, "l", -1)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "c", v)

	found, _, err = s.LIndex(ctx, "l", 5)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLPos(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RPush(ctx, "l", "a", "b", "a", "c", "a")
	require.NoError(t, err)

	idx, found, err := s.LPos(ctx, "l", "a", LPosArgs{})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(0), idx)

	// Rank 2 starts from the second match.
	idx, found, err = s.LPos(ctx, "l", "a", LPosArgs{Rank: 2})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), idx)

	// Negative rank searches from the tail.
	idx, found, err = s.LPos(ctx, "l", "a", LPosArgs{Rank: -1})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(4), idx)

	// MaxLen limits how many entries are examined.
	_, found, err = s.LPos(ctx, "l", "c", LPosArgs{MaxLen: 2})
	require.NoError(t, err)
	assert.False(t, found)

	idxs, err := s.LPosCount(ctx, "l", "a", 0, LPosArgs{})
	require.NoError(t, err)
	assert.Equal(t, []int64{0, 2, 4}, idxs)

	idxs, err = s.LPosCount(ctx, "l", "a", 2, LPosArgs{Rank: -1})
	require.NoError(t, err)
	assert.Equal(t, []int64{4, 2}, idxs)
}

func TestLMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RPush(ctx, "src", "a", "b", "c")
	require.NoError(t, err)

	moved, v, err := s.LMove(ctx, "src", "dst", Left, Right)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, "a", v)

	moved, v, err = s.LMove(ctx, "src", "dst", Right, Left)
	require.NoError(t, err)
	assert.True(t, moved)
	assert.Equal(t, "c", v)

	vals, err := s.LRange(ctx, "dst", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"c", "a"}, vals)

	moved, _, err = s.LMove(ctx, "empty", "dst", Left, Left)
	require.NoError(t, err)
	assert.False(t, moved)

	_, _, err = s.LMove(ctx, "src", "dst", "SIDEWAYS", Left)
	assert.Error(t, err)
}

func TestLRem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RPush(ctx, "l", "a", "b", "a", "c", "a")
	require.NoError(t, err)

	n, err := s.LRem(ctx, "l", 1, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	vals, err := s.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "a", "c", "a"}, vals)

	n, err = s.LRem(ctx, "l", -1, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	vals, err = s.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "a", "c"}, vals)

	n, err = s.LRem(ctx, "l", 0, "a")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestLTrim(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.RPush(ctx, "l", "a", "b", "c", "d", "e")
	require.NoError(t, err)

	require.NoError(t, s.LTrim(ctx, "l", 1, 3))
	vals, err := s.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"b", "c", "d"}, vals)

	// An empty resolved range empties the list.
	require.NoError(t, s.LTrim(ctx, "l", 5, 10))
	n, err := s.LLen(ctx, "l")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestLSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	err := s.LSet(ctx, "missing", 0, "v")
	assert.ErrorIs(t, err, ErrKeyNotFound)

	_, err = s.RPush(ctx, "l", "a", "b", "c")
	require.NoError(t, err)

	require.NoError(t, s.LSet(ctx, "l", 1, "B"))
	require.NoError(t, s.LSet(ctx, "l", -1, "C"))

	vals, err := s.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "B", "C"}, vals)

	err = s.LSet(ctx, "l", 9, "v")
	assert.ErrorIs(t, err, ErrIndexOutOfRange)
}

func TestLInsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	n, err := s.LInsert(ctx, "missing", Before, "pivot", "v")
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.RPush(ctx, "l", "a", "b", "c")
	require.NoError(t, err)

	n, err = s.LInsert(ctx, "l", Before, "nope", "v")
	require.NoError(t, err)
	assert.Equal(t, int64(-1), n)

	// Adjacent positions force a renumbering of the head side.
	n, err = s.LInsert(ctx, "l", Before, "b", "x")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	n, err = s.LInsert(ctx, "l", After, "b", "y")
	require.NoError(t, err)
	assert.Equal(t, int64(5), n)

	vals, err := s.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "x", "b", "y", "c"}, vals)
}

func TestListIndexLaw(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// After arbitrary pushes and inserts, LIndex(i) agrees with LRange order.
	_, err := s.RPush(ctx, "l", "a", "b")
	require.NoError(t, err)
	_, err = s.LPush(ctx, "l", "z")
	require.NoError(t, err)
	_, err = s.LInsert(ctx, "l", After, "a", "m")
	require.NoError(t, err)

	vals, err := s.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	for i, want := range vals {
		found, got, err := s.LIndex(ctx, "l", int64(i))
		require.NoError(t, err)
		assert.True(t, found)
		assert.Equal(t, want, got)
	}
}
