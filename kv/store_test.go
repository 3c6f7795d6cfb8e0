package kv

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func TestConcurrentIncrements(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "counter", 0, NoTTL))

	var g errgroup.Group
	for i := 0; i < 10; i++ {
		g.Go(func() error {
			for j := 0; j < 10; j++ {
				if _, err := s.IncrBy(ctx, "counter", 1); err != nil {
					return err
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	_, val, err := s.Get(ctx, "counter")
	require.NoError(t, err)
	assert.Equal(t, int64(100), val)
}

func TestConcurrentTypeTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	// Hammer one key with writes of different types; whatever wins, the key
	// must end up holding exactly one coherent type.
	var g errgroup.Group
	for i := 0; i < 5; i++ {
		g.Go(func() error { return s.Set(ctx, "k", "str", NoTTL) })
		g.Go(func() error { _, err := s.HSet(ctx, "k", "f", "v"); return err })
		g.Go(func() error { _, err := s.RPush(ctx, "k", "e"); return err })
	}
	require.NoError(t, g.Wait())

	kt, err := s.Type(ctx, "k")
	require.NoError(t, err)
	switch kt {
	case TypeString:
		found, _, err := s.Get(ctx, "k")
		require.NoError(t, err)
		assert.True(t, found)
		n, err := s.HLen(ctx, "k")
		require.NoError(t, err)
		assert.Zero(t, n)
	case TypeHash:
		n, err := s.HLen(ctx, "k")
		require.NoError(t, err)
		assert.Equal(t, int64(1), n)
	case TypeList:
		n, err := s.LLen(ctx, "k")
		require.NoError(t, err)
		assert.Greater(t, n, int64(0))
	default:
		t.Fatalf("unexpected type %q", kt)
	}
}

func TestNotSupported(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.XAdd(ctx, "stream", "*", map[string]any{"f": "v"})
	require.Error(t, err)
	var nse *NotSupportedError
	require.ErrorAs(t, err, &nse)
	assert.Equal(t, "XAdd", nse.Op)
	assert.Equal(t, "sqlite", nse.Backend)

	_, err = s.Eval(ctx, "return 1", nil)
	assert.ErrorAs(t, err, &nse)
	_, err = s.BLPop(ctx, time.Second, "l")
	assert.ErrorAs(t, err, &nse)
	_, _, err = s.SScan(ctx, "s", 0, "*", 10)
	assert.ErrorAs(t, err, &nse)
	_, err = s.Info(ctx)
	assert.ErrorAs(t, err, &nse)
	_, err = s.SlowLog(ctx, 10)
	assert.ErrorAs(t, err, &nse)
	_, err = s.XTrim(ctx, "stream", 100)
	assert.ErrorAs(t, err, &nse)
}

func TestAsync(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	res := Async(func() (int64, error) {
		return s.RPush(ctx, "q", "job1", "job2")
	})
	n, err := res.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	// Await is repeatable.
	n, err = res.Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	failing := Async(func() (int64, error) {
		return 0, errors.New("boom")
	})
	_, err = failing.Await(ctx)
	assert.EqualError(t, err, "boom")
}

func TestAsyncAwaitHonorsContext(t *testing.T) {
	blocked := make(chan struct{})
	res := Async(func() (int, error) {
		<-blocked
		return 1, nil
	})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := res.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	_, ok, _ := res.TryGet()
	assert.False(t, ok)

	close(blocked)
	v, err := res.Await(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)
}

type testUser struct {
	Name  string `msgpack:"name"`
	Email string `msgpack:"email"`
}

func TestGetAs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "user:1", testUser{Name: "ada", Email: "ada@example.com"}, NoTTL))

	found, user, err := GetAs[testUser](ctx, s, "user:1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ada", user.Name)
	assert.Equal(t, "ada@example.com", user.Email)

	found, _, err = GetAs[testUser](ctx, s, "missing")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestFetch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	calls := 0
	invoke := func(ctx context.Context) (testUser, bool, error) {
		calls++
		return testUser{Name: "grace"}, true, nil
	}

	found, user, err := Fetch(ctx, s, "user:2", time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "grace", user.Name)
	assert.Equal(t, 1, calls)

	// Second call hits the store, not the invoker.
	found, user, err = Fetch(ctx, s, "user:2", time.Minute, invoke)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "grace", user.Name)
	assert.Equal(t, 1, calls)
}

func TestFetchNotFoundIsNotCached(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	calls := 0
	invoke := func(ctx context.Context) (string, bool, error) {
		calls++
		return "", false, nil
	}

	for i := 0; i < 2; i++ {
		found, _, err := Fetch(ctx, s, "absent", time.Minute, invoke)
		require.NoError(t, err)
		assert.False(t, found)
	}
	assert.Equal(t, 2, calls)
}
