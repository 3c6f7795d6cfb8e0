package kv

import (
	"context"
	"time"
)

// Streams, scripting, blocking pops, set scan cursors, and server
// introspection have no relational equivalent worth pretending to; they all
// return *NotSupportedError so callers can detect the capability gap
// explicitly instead of getting silently degraded behavior.

func (s *SQLStore) XAdd(ctx context.Context, key, id string, values map[string]any) (string, error) {
	return "", s.notSupported("XAdd")
}

func (s *SQLStore) XLen(ctx context.Context, key string) (int64, error) {
	return 0, s.notSupported("XLen")
}

func (s *SQLStore) XRange(ctx context.Context, key, start, stop string) ([]XMessage, error) {
	return nil, s.notSupported("XRange")
}

func (s *SQLStore) XRevRange(ctx context.Context, key, start, stop string) ([]XMessage, error) {
	return nil, s.notSupported("XRevRange")
}

func (s *SQLStore) XTrim(ctx context.Context, key string, maxLen int64) (int64, error) {
	return 0, s.notSupported("XTrim")
}

func (s *SQLStore) XDel(ctx context.Context, key string, ids ...string) (int64, error) {
	return 0, s.notSupported("XDel")
}

func (s *SQLStore) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return nil, s.notSupported("Eval")
}

func (s *SQLStore) BLPop(ctx context.Context, timeout time.Duration, keys ...string) ([]any, error) {
	return nil, s.notSupported("BLPop")
}

func (s *SQLStore) BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]any, error) {
	return nil, s.notSupported("BRPop")
}

func (s *SQLStore) BLMove(ctx context.Context, src, dst, srcPos, dstPos string, timeout time.Duration) (any, error) {
	return nil, s.notSupported("BLMove")
}

func (s *SQLStore) SScan(ctx context.Context, key string, cursor uint64, match string, count int64) (uint64, []any, error) {
	return 0, nil, s.notSupported("SScan")
}

func (s *SQLStore) Info(ctx context.Context) (string, error) {
	return "", s.notSupported("Info")
}

func (s *SQLStore) SlowLog(ctx context.Context, count int64) ([]string, error) {
	return nil, s.notSupported("SlowLog")
}
