package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedZSet(t *testing.T, s *SQLStore) {
	t.Helper()
	_, err := s.ZAdd(context.Background(), "z",
		Z{Score: 1, Member: "one"},
		Z{Score: 2, Member: "two"},
		Z{Score: 3, Member: "three"},
	)
	require.NoError(t, err)
}

func TestZAddZScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.ZAdd(ctx, "z", Z{Score: 1, Member: "a"}, Z{Score: 2, Member: "b"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), added)

	// Re-adding updates the score but counts nothing.
	added, err = s.ZAdd(ctx, "z", Z{Score: 5, Member: "a"})
	require.NoError(t, err)
	assert.Zero(t, added)

	score, found, err := s.ZScore(ctx, "z", "a")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 5.0, score)

	_, found, err = s.ZScore(ctx, "z", "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestZAddFlags(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ZAdd(ctx, "z", Z{Score: 5, Member: "m"})
	require.NoError(t, err)

	// NX never updates an existing member.
	_, err = s.ZAddWithArgs(ctx, "z", ZAddArgs{NX: true}, Z{Score: 9, Member: "m"})
	require.NoError(t, err)
	score, _, err := s.ZScore(ctx, "z", "m")
	require.NoError(t, err)
	assert.Equal(t, 5.0, score)

	// XX never creates a new member.
	n, err := s.ZAddWithArgs(ctx, "z", ZAddArgs{XX: true}, Z{Score: 1, Member: "new"})
	require.NoError(t, err)
	assert.Zero(t, n)
	_, found, err := s.ZScore(ctx, "z", "new")
	require.NoError(t, err)
	assert.False(t, found)

	// GT only raises scores; CH counts the change.
	n, err = s.ZAddWithArgs(ctx, "z", ZAddArgs{GT: true, CH: true}, Z{Score: 3, Member: "m"})
	require.NoError(t, err)
	assert.Zero(t, n)
	n, err = s.ZAddWithArgs(ctx, "z", ZAddArgs{GT: true, CH: true}, Z{Score: 8, Member: "m"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	score, _, err = s.ZScore(ctx, "z", "m")
	require.NoError(t, err)
	assert.Equal(t, 8.0, score)

	// GT and LT together never update.
	n, err = s.ZAddWithArgs(ctx, "z", ZAddArgs{GT: true, LT: true, CH: true}, Z{Score: 100, Member: "m"})
	require.NoError(t, err)
	assert.Zero(t, n)

	_, err = s.ZAddWithArgs(ctx, "z", ZAddArgs{NX: true, XX: true}, Z{Score: 1, Member: "m"})
	assert.Error(t, err)
}

func TestZRangeAndRev(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedZSet(t, s)

	vals, err := s.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two", "three"}, vals)

	vals, err = s.ZRevRange(ctx, "z", 0, 1)
	require.NoError(t, err)
	assert.Equal(t, []any{"three", "two"}, vals)

	zs, err := s.ZRangeWithScores(ctx, "z", 0, 0)
	require.NoError(t, err)
	require.Len(t, zs, 1)
	assert.Equal(t, Z{Score: 1, Member: "one"}, zs[0])
}

func TestZRangeByScoreBounds(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedZSet(t, s)

	vals, err := s.ZRangeByScore(ctx, "z", RangeBy{Min: "-inf", Max: "+inf"})
	require.NoError(t, err)
	assert.Equal(t, []any{"one", "two", "three"}, vals)

	vals, err = s.ZRangeByScore(ctx, "z", RangeBy{Min: "2", Max: "3"})
	require.NoError(t, err)
	assert.Equal(t, []any{"two", "three"}, vals)

	// Exclusive bound.
	vals, err = s.ZRangeByScore(ctx, "z", RangeBy{Min: "(2", Max: "+inf"})
	require.NoError(t, err)
	assert.Equal(t, []any{"three"}, vals)

	// Offset and count paginate.
	vals, err = s.ZRangeByScore(ctx, "z", RangeBy{Min: "-inf", Max: "+inf", Offset: 1, Count: 1})
	require.NoError(t, err)
	assert.Equal(t, []any{"two"}, vals)

	vals, err = s.ZRevRangeByScore(ctx, "z", RangeBy{Min: "-inf", Max: "+inf"})
	require.NoError(t, err)
	assert.Equal(t, []any{"three", "two", "one"}, vals)

	_, err = s.ZRangeByScore(ctx, "z", RangeBy{Min: "garbage", Max: "+inf"})
	assert.Error(t, err)
}

func TestZCountZCard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedZSet(t, s)

	n, err := s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	n, err = s.ZCount(ctx, "z", "2", "+inf")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.ZCount(ctx, "z", "(1", "(3")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestZIncrBy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	score, err := s.ZIncrBy(ctx, "z", 2.5, "m")
	require.NoError(t, err)
	assert.Equal(t, 2.5, score)

	score, err = s.ZIncrBy(ctx, "z", -1, "m")
	require.NoError(t, err)
	assert.Equal(t, 1.5, score)
}

func TestZRank(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedZSet(t, s)

	rank, found, err := s.ZRank(ctx, "z", "one")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(0), rank)

	rank, found, err = s.ZRevRank(ctx, "z", "one")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, int64(2), rank)

	_, found, err = s.ZRank(ctx, "z", "nope")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestZPop(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedZSet(t, s)

	zs, err := s.ZPopMin(ctx, "z", 1)
	require.NoError(t, err)
	require.Len(t, zs, 1)
	assert.Equal(t, Z{Score: 1, Member: "one"}, zs[0])

	zs, err = s.ZPopMax(ctx, "z", 5)
	require.NoError(t, err)
	require.Len(t, zs, 2)
	assert.Equal(t, "three", zs[0].Member)
	assert.Equal(t, "two", zs[1].Member)

	n, err := s.ZCard(ctx, "z")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestZRem(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedZSet(t, s)

	n, err := s.ZRem(ctx, "z", "one", "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.ZRemRangeByScore(ctx, "z", "(2", "+inf")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	seedZSet(t, s)
	n, err = s.ZRemRangeByRank(ctx, "z", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	vals, err := s.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.NotContains(t, vals, "one")
}

func TestZMScore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	seedZSet(t, s)

	scores, err := s.ZMScore(ctx, "z", "one", "nope", "three")
	require.NoError(t, err)
	require.Len(t, scores, 3)
	require.NotNil(t, scores[0])
	assert.Equal(t, 1.0, *scores[0])
	assert.Nil(t, scores[1])
	require.NotNil(t, scores[2])
	assert.Equal(t, 3.0, *scores[2])
}

func TestZScoreTiebreakOrder(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.ZAdd(ctx, "z", Z{Score: 1, Member: "b"}, Z{Score: 1, Member: "a"})
	require.NoError(t, err)

	// Equal scores order by member bytes.
	vals, err := s.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, vals)
}
