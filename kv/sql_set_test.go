package kv

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSAddSCardSMembers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	added, err := s.SAdd(ctx, "s", "a", "b", "c")
	require.NoError(t, err)
	assert.Equal(t, int64(3), added)

	added, err = s.SAdd(ctx, "s", "b", "d")
	require.NoError(t, err)
	assert.Equal(t, int64(1), added)

	n, err := s.SCard(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)

	members, err := s.SMembers(ctx, "s")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"a", "b", "c", "d"}, members)
}

func TestSIsMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SAdd(ctx, "s", "a", int64(2))
	require.NoError(t, err)

	ok, err := s.SIsMember(ctx, "s", "a")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SIsMember(ctx, "s", 2)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SIsMember(ctx, "s", "nope")
	require.NoError(t, err)
	assert.False(t, ok)

	oks, err := s.SMIsMember(ctx, "s", "a", "nope", 2)
	require.NoError(t, err)
	assert.Equal(t, []bool{true, false, true}, oks)
}

func TestSPopAndSRandMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SAdd(ctx, "s", "a", "b", "c")
	require.NoError(t, err)

	// Random reads do not shrink the set.
	found, v, err := s.SRandMember(ctx, "s")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Contains(t, []any{"a", "b", "c"}, v)
	n, err := s.SCard(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	// Negative count draws with repetition.
	vals, err := s.SRandMemberN(ctx, "s", -5)
	require.NoError(t, err)
	assert.Len(t, vals, 5)

	// Pops shrink it.
	vals, err = s.SPopN(ctx, "s", 2)
	require.NoError(t, err)
	assert.Len(t, vals, 2)
	n, err = s.SCard(ctx, "s")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	found, _, err = s.SPop(ctx, "empty")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestSRemSMove(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SAdd(ctx, "s", "a", "b", "c")
	require.NoError(t, err)

	n, err := s.SRem(ctx, "s", "a", "nope")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	moved, err := s.SMove(ctx, "s", "other", "b")
	require.NoError(t, err)
	assert.True(t, moved)

	ok, err := s.SIsMember(ctx, "other", "b")
	require.NoError(t, err)
	assert.True(t, ok)

	moved, err = s.SMove(ctx, "s", "other", "nope")
	require.NoError(t, err)
	assert.False(t, moved)
}

func TestSetAlgebra(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SAdd(ctx, "x", "a", "b", "c", "d")
	require.NoError(t, err)
	_, err = s.SAdd(ctx, "y", "b", "d", "e")
	require.NoError(t, err)

	diff, err := s.SDiff(ctx, "x", "y")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"a", "c"}, diff)

	inter, err := s.SInter(ctx, "x", "y")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"b", "d"}, inter)

	union, err := s.SUnion(ctx, "x", "y")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"a", "b", "c", "d", "e"}, union)
}

func TestSetAlgebraStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.SAdd(ctx, "x", "a", "b")
	require.NoError(t, err)
	_, err = s.SAdd(ctx, "y", "b", "c")
	require.NoError(t, err)

	n, err := s.SUnionStore(ctx, "dst", "x", "y")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	members, err := s.SMembers(ctx, "dst")
	require.NoError(t, err)
	assert.ElementsMatch(t, []any{"a", "b", "c"}, members)

	// An empty result deletes the destination instead of leaving an empty set.
	n, err = s.SInterStore(ctx, "dst", "x", "missing")
	require.NoError(t, err)
	assert.Zero(t, n)
	has, err := s.Has(ctx, "dst")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSetStoreOverwritesOtherType(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "dst", "a string", NoTTL))
	_, err := s.SAdd(ctx, "x", "m")
	require.NoError(t, err)

	n, err := s.SUnionStore(ctx, "dst", "x")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	kt, err := s.Type(ctx, "dst")
	require.NoError(t, err)
	assert.Equal(t, TypeSet, kt)
}
