package kv

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore is the native engine strategy: every operation maps directly to
// its engine command, with the codec applied to values on the way in and
// out so data written through one strategy decodes through the other. Keys
// are namespaced with the configured key prefix.
type RedisStore struct {
	client redis.UniversalClient
	codec  *Codec
	prefix string
	cfg    config
}

var _ Store = (*RedisStore)(nil)

// NewRedis returns a Store backed by a native engine client. The caller owns
// the client unless it was created for this store; Close always closes it,
// matching the single-owner usage this constructor is meant for.
func NewRedis(client redis.UniversalClient, opts ...Option) *RedisStore {
	cfg := applyOptions(opts)
	return &RedisStore{
		client: client,
		codec:  cfg.codec,
		prefix: cfg.keyPrefix,
		cfg:    cfg,
	}
}

func (r *RedisStore) Close() error { return r.client.Close() }

func (r *RedisStore) k(key string) string { return r.prefix + key }

func (r *RedisStore) strip(key string) string { return strings.TrimPrefix(key, r.prefix) }

func (r *RedisStore) kAll(keys []string) []string {
	out := make([]string, len(keys))
	for i, k := range keys {
		out[i] = r.k(k)
	}
	return out
}

// redisTTL converts the NoTTL convention to the engine's zero-means-forever.
func redisTTL(ttl time.Duration) time.Duration {
	if ttl < 0 {
		return 0
	}
	return ttl
}

func (r *RedisStore) decode(raw string) (any, error) {
	return r.codec.Decode([]byte(raw))
}

func (r *RedisStore) decodeStrings(raws []string) ([]any, error) {
	out := make([]any, len(raws))
	for i, raw := range raws {
		v, err := r.decode(raw)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (r *RedisStore) encodeArgs(values []any) ([]any, error) {
	out := make([]any, len(values))
	for i, v := range values {
		enc, err := r.codec.Encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// Strings.

func (r *RedisStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl == 0 {
		return r.client.Del(ctx, r.k(key)).Err()
	}
	enc, err := r.codec.Encode(value)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.k(key), enc, redisTTL(ttl)).Err()
}

func (r *RedisStore) Get(ctx context.Context, key string) (bool, any, error) {
	raw, err := r.client.Get(ctx, r.k(key)).Result()
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	v, err := r.decode(raw)
	if err != nil {
		return false, nil, err
	}
	return true, v, nil
}

func (r *RedisStore) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	if ttl == 0 {
		n, err := r.client.Exists(ctx, r.k(key)).Result()
		return n == 0, err
	}
	enc, err := r.codec.Encode(value)
	if err != nil {
		return false, err
	}
	return r.client.SetNX(ctx, r.k(key), enc, redisTTL(ttl)).Result()
}

func (r *RedisStore) SetWithArgs(ctx context.Context, key string, value any, args SetArgs) (any, bool, error) {
	if args.NX && args.XX {
		return nil, false, errors.New("kv: NX and XX are mutually exclusive")
	}
	if args.TTL == 0 {
		// A zero TTL deletes outright; the engine would read it as "no expiry".
		var old any
		if args.Get {
			_, v, err := r.Get(ctx, key)
			if err != nil {
				return nil, false, err
			}
			old = v
		}
		exists, err := r.Has(ctx, key)
		if err != nil {
			return nil, false, err
		}
		if (args.NX && exists) || (args.XX && !exists) {
			return old, false, nil
		}
		_, err = r.Delete(ctx, key)
		return old, true, err
	}
	enc, err := r.codec.Encode(value)
	if err != nil {
		return nil, false, err
	}
	mode := ""
	if args.NX {
		mode = "NX"
	} else if args.XX {
		mode = "XX"
	}
	raw, err := r.client.SetArgs(ctx, r.k(key), enc, redis.SetArgs{
		Mode: mode,
		TTL:  redisTTL(args.TTL),
		Get:  args.Get,
	}).Result()
	if err == redis.Nil {
		// NX against an existing key without GET, XX against a missing key,
		// or GET on a missing key.
		wrote := args.Get && !args.NX && !args.XX
		return nil, wrote, nil
	}
	if err != nil {
		return nil, false, err
	}
	if !args.Get {
		return nil, true, nil
	}
	old, err := r.decode(raw)
	if err != nil {
		return nil, false, err
	}
	// With GET the reply is the previous value; NX writes only when that
	// previous value did not exist.
	return old, !args.NX, nil
}

func (r *RedisStore) Delete(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Del(ctx, r.k(key)).Result()
	return n > 0, err
}

func (r *RedisStore) Has(ctx context.Context, key string) (bool, error) {
	n, err := r.client.Exists(ctx, r.k(key)).Result()
	return n > 0, err
}

func (r *RedisStore) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl == 0 {
		return r.Delete(ctx, key)
	}
	if ttl < 0 {
		n, err := r.client.Exists(ctx, r.k(key)).Result()
		if err != nil || n == 0 {
			return false, err
		}
		r.client.Persist(ctx, r.k(key))
		return true, nil
	}
	return r.client.Expire(ctx, r.k(key), ttl).Result()
}

func (r *RedisStore) GetMany(ctx context.Context, keys ...string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	raws, err := r.client.MGet(ctx, r.kAll(keys)...).Result()
	if err != nil {
		return nil, err
	}
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		v, err := r.decode(str)
		if err != nil {
			return nil, err
		}
		out[keys[i]] = v
	}
	return out, nil
}

func (r *RedisStore) SetMany(ctx context.Context, values map[string]any, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	pipe := r.client.TxPipeline()
	for k, v := range values {
		if ttl == 0 {
			pipe.Del(ctx, r.k(k))
			continue
		}
		enc, err := r.codec.Encode(v)
		if err != nil {
			return err
		}
		pipe.Set(ctx, r.k(k), enc, redisTTL(ttl))
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisStore) DeleteMany(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	return r.client.Del(ctx, r.kAll(keys)...).Result()
}

// incrScript refuses to create missing keys, so both strategies report
// ErrKeyNotFound instead of silently starting from zero.
var incrScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
	return redis.error_reply('key not found')
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

func (r *RedisStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	n, err := incrScript.Run(ctx, r.client, []string{r.k(key)}, delta).Int64()
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "key not found") {
			return 0, keyError(ErrKeyNotFound, key)
		}
		if strings.Contains(msg, "not an integer") {
			return 0, keyError(ErrNotAnInteger, key)
		}
		return 0, err
	}
	return n, nil
}

func (r *RedisStore) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return r.IncrBy(ctx, key, -delta)
}

func (r *RedisStore) Clear(ctx context.Context) error {
	if r.prefix == "" {
		return r.client.FlushDB(ctx).Err()
	}
	_, err := r.DeletePattern(ctx, "*", r.cfg.scanSize)
	return err
}

func (r *RedisStore) Type(ctx context.Context, key string) (KeyType, error) {
	t, err := r.client.Type(ctx, r.k(key)).Result()
	if err != nil {
		return TypeNone, err
	}
	return KeyType(t), nil
}

// TTL.

func ttlUnits(d time.Duration, unit time.Duration) int64 {
	if d < 0 {
		// The client surfaces the engine's -1/-2 replies as negative
		// durations in the reply's unit.
		return int64(d / unit)
	}
	return int64((d + unit - 1) / unit)
}

func (r *RedisStore) TTL(ctx context.Context, key string) (int64, error) {
	d, err := r.client.TTL(ctx, r.k(key)).Result()
	if err != nil {
		return 0, err
	}
	return ttlUnits(d, time.Second), nil
}

func (r *RedisStore) PTTL(ctx context.Context, key string) (int64, error) {
	d, err := r.client.PTTL(ctx, r.k(key)).Result()
	if err != nil {
		return 0, err
	}
	return ttlUnits(d, time.Millisecond), nil
}

func (r *RedisStore) ExpireTime(ctx context.Context, key string) (int64, error) {
	d, err := r.client.ExpireTime(ctx, r.k(key)).Result()
	if err != nil {
		return 0, err
	}
	return int64(d / time.Second), nil
}

func (r *RedisStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}
	return r.client.Expire(ctx, r.k(key), ttl).Result()
}

func (r *RedisStore) PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return r.Delete(ctx, key)
	}
	return r.client.PExpire(ctx, r.k(key), ttl).Result()
}

func (r *RedisStore) ExpireAt(ctx context.Context, key string, when time.Time) (bool, error) {
	if !when.After(time.Now()) {
		return r.Delete(ctx, key)
	}
	return r.client.PExpireAt(ctx, r.k(key), when).Result()
}

func (r *RedisStore) PExpireAt(ctx context.Context, key string, when time.Time) (bool, error) {
	return r.ExpireAt(ctx, key, when)
}

func (r *RedisStore) Persist(ctx context.Context, key string) (bool, error) {
	return r.client.Persist(ctx, r.k(key)).Result()
}

// Key space.

func (r *RedisStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	keys, err := r.client.Keys(ctx, r.k(pattern)).Result()
	if err != nil {
		return nil, err
	}
	for i, k := range keys {
		keys[i] = r.strip(k)
	}
	slices.Sort(keys)
	return keys, nil
}

func (r *RedisStore) Scan(ctx context.Context, cursor uint64, match string, count int64, keyType KeyType) (uint64, []string, error) {
	if count <= 0 {
		count = r.cfg.scanSize
	}
	if match == "" {
		match = "*"
	}
	var keys []string
	var next uint64
	var err error
	if keyType != "" && keyType != TypeNone {
		keys, next, err = r.client.ScanType(ctx, cursor, r.k(match), count, string(keyType)).Result()
	} else {
		keys, next, err = r.client.Scan(ctx, cursor, r.k(match), count).Result()
	}
	if err != nil {
		return 0, nil, err
	}
	for i, k := range keys {
		keys[i] = r.strip(k)
	}
	return next, keys, nil
}

func (r *RedisStore) IterKeys(ctx context.Context, pattern string, itersize int64) iter.Seq2[string, error] {
	if itersize <= 0 {
		itersize = r.cfg.scanSize
	}
	if pattern == "" {
		pattern = "*"
	}
	return func(yield func(string, error) bool) {
		it := r.client.Scan(ctx, 0, r.k(pattern), itersize).Iterator()
		for it.Next(ctx) {
			if !yield(r.strip(it.Val()), nil) {
				return
			}
		}
		if err := it.Err(); err != nil {
			yield("", err)
		}
	}
}

func (r *RedisStore) DeletePattern(ctx context.Context, pattern string, itersize int64) (int64, error) {
	if itersize <= 0 {
		itersize = r.cfg.scanSize
	}
	var total int64
	batch := make([]string, 0, itersize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := r.client.Del(ctx, batch...).Result()
		total += n
		batch = batch[:0]
		return err
	}
	it := r.client.Scan(ctx, 0, r.k(pattern), itersize).Iterator()
	for it.Next(ctx) {
		batch = append(batch, it.Val())
		if int64(len(batch)) >= itersize {
			if err := flush(); err != nil {
				return total, err
			}
		}
	}
	if err := it.Err(); err != nil {
		return total, err
	}
	return total, flush()
}

func (r *RedisStore) Rename(ctx context.Context, src, dst string) error {
	err := r.client.Rename(ctx, r.k(src), r.k(dst)).Err()
	if err != nil && strings.Contains(err.Error(), "no such key") {
		return keyError(ErrKeyNotFound, src)
	}
	return err
}

func (r *RedisStore) RenameNX(ctx context.Context, src, dst string) (bool, error) {
	ok, err := r.client.RenameNX(ctx, r.k(src), r.k(dst)).Result()
	if err != nil && strings.Contains(err.Error(), "no such key") {
		return false, keyError(ErrKeyNotFound, src)
	}
	return ok, err
}

// Hashes.

func (r *RedisStore) HSet(ctx context.Context, key string, fieldvals ...any) (int64, error) {
	pairs, err := hashPairs(fieldvals)
	if err != nil {
		return 0, err
	}
	args := make([]any, 0, len(pairs)*2)
	for field, v := range pairs {
		enc, err := r.codec.Encode(v)
		if err != nil {
			return 0, err
		}
		args = append(args, field, enc)
	}
	return r.client.HSet(ctx, r.k(key), args...).Result()
}

func (r *RedisStore) HSetNX(ctx context.Context, key, field string, value any) (bool, error) {
	enc, err := r.codec.Encode(value)
	if err != nil {
		return false, err
	}
	return r.client.HSetNX(ctx, r.k(key), field, enc).Result()
}

func (r *RedisStore) HGet(ctx context.Context, key, field string) (bool, any, error) {
	raw, err := r.client.HGet(ctx, r.k(key), field).Result()
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	v, err := r.decode(raw)
	if err != nil {
		return false, nil, err
	}
	return true, v, nil
}

func (r *RedisStore) HMGet(ctx context.Context, key string, fields ...string) ([]any, error) {
	out := make([]any, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	raws, err := r.client.HMGet(ctx, r.k(key), fields...).Result()
	if err != nil {
		return nil, err
	}
	for i, raw := range raws {
		str, ok := raw.(string)
		if !ok {
			continue
		}
		if out[i], err = r.decode(str); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *RedisStore) HGetAll(ctx context.Context, key string) (map[string]any, error) {
	raws, err := r.client.HGetAll(ctx, r.k(key)).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]any, len(raws))
	for field, raw := range raws {
		if out[field], err = r.decode(raw); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *RedisStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	return r.client.HDel(ctx, r.k(key), fields...).Result()
}

func (r *RedisStore) HExists(ctx context.Context, key, field string) (bool, error) {
	return r.client.HExists(ctx, r.k(key), field).Result()
}

func (r *RedisStore) HLen(ctx context.Context, key string) (int64, error) {
	return r.client.HLen(ctx, r.k(key)).Result()
}

func (r *RedisStore) HKeys(ctx context.Context, key string) ([]string, error) {
	fields, err := r.client.HKeys(ctx, r.k(key)).Result()
	if err != nil {
		return nil, err
	}
	slices.Sort(fields)
	return fields, nil
}

func (r *RedisStore) HVals(ctx context.Context, key string) ([]any, error) {
	all, err := r.HGetAll(ctx, key)
	if err != nil {
		return nil, err
	}
	fields := make([]string, 0, len(all))
	for f := range all {
		fields = append(fields, f)
	}
	slices.Sort(fields)
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = all[f]
	}
	return out, nil
}

func (r *RedisStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	n, err := r.client.HIncrBy(ctx, r.k(key), field, delta).Result()
	if err != nil && strings.Contains(err.Error(), "not an integer") {
		return 0, keyError(ErrNotAnInteger, key)
	}
	return n, err
}

func (r *RedisStore) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	f, err := r.client.HIncrByFloat(ctx, r.k(key), field, delta).Result()
	if err != nil && strings.Contains(err.Error(), "not a valid float") {
		return 0, keyError(ErrNotAnInteger, key)
	}
	return f, err
}

// Lists.

func (r *RedisStore) LPush(ctx context.Context, key string, values ...any) (int64, error) {
	encs, err := r.encodeArgs(values)
	if err != nil {
		return 0, err
	}
	return r.client.LPush(ctx, r.k(key), encs...).Result()
}

func (r *RedisStore) RPush(ctx context.Context, key string, values ...any) (int64, error) {
	encs, err := r.encodeArgs(values)
	if err != nil {
		return 0, err
	}
	return r.client.RPush(ctx, r.k(key), encs...).Result()
}

func (r *RedisStore) LPop(ctx context.Context, key string) (bool, any, error) {
	raw, err := r.client.LPop(ctx, r.k(key)).Result()
	return r.oneValue(raw, err)
}

func (r *RedisStore) LPopCount(ctx context.Context, key string, count int64) ([]any, error) {
	raws, err := r.client.LPopCount(ctx, r.k(key), int(count)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) RPop(ctx context.Context, key string) (bool, any, error) {
	raw, err := r.client.RPop(ctx, r.k(key)).Result()
	return r.oneValue(raw, err)
}

func (r *RedisStore) RPopCount(ctx context.Context, key string, count int64) ([]any, error) {
	raws, err := r.client.RPopCount(ctx, r.k(key), int(count)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

// oneValue adapts a single-reply command to the (found, value, error) shape.
func (r *RedisStore) oneValue(raw string, err error) (bool, any, error) {
	if err == redis.Nil {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}
	v, err := r.decode(raw)
	if err != nil {
		return false, nil, err
	}
	return true, v, nil
}

func (r *RedisStore) LRange(ctx context.Context, key string, start, stop int64) ([]any, error) {
	raws, err := r.client.LRange(ctx, r.k(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) LIndex(ctx context.Context, key string, index int64) (bool, any, error) {
	raw, err := r.client.LIndex(ctx, r.k(key), index).Result()
	return r.oneValue(raw, err)
}

func (r *RedisStore) LLen(ctx context.Context, key string) (int64, error) {
	return r.client.LLen(ctx, r.k(key)).Result()
}

func (r *RedisStore) LPos(ctx context.Context, key string, value any, args LPosArgs) (int64, bool, error) {
	enc, err := r.codec.Encode(value)
	if err != nil {
		return 0, false, err
	}
	idx, err := r.client.LPos(ctx, r.k(key), string(enc), redis.LPosArgs{Rank: args.Rank, MaxLen: args.MaxLen}).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return idx, true, nil
}

func (r *RedisStore) LPosCount(ctx context.Context, key string, value any, count int64, args LPosArgs) ([]int64, error) {
	enc, err := r.codec.Encode(value)
	if err != nil {
		return nil, err
	}
	idxs, err := r.client.LPosCount(ctx, r.k(key), string(enc), count, redis.LPosArgs{Rank: args.Rank, MaxLen: args.MaxLen}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	return idxs, err
}

func (r *RedisStore) LMove(ctx context.Context, src, dst, srcPos, dstPos string) (bool, any, error) {
	raw, err := r.client.LMove(ctx, r.k(src), r.k(dst), srcPos, dstPos).Result()
	return r.oneValue(raw, err)
}

func (r *RedisStore) LRem(ctx context.Context, key string, count int64, value any) (int64, error) {
	enc, err := r.codec.Encode(value)
	if err != nil {
		return 0, err
	}
	return r.client.LRem(ctx, r.k(key), count, enc).Result()
}

func (r *RedisStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return r.client.LTrim(ctx, r.k(key), start, stop).Err()
}

func (r *RedisStore) LSet(ctx context.Context, key string, index int64, value any) error {
	enc, err := r.codec.Encode(value)
	if err != nil {
		return err
	}
	err = r.client.LSet(ctx, r.k(key), index, enc).Err()
	if err != nil {
		msg := err.Error()
		if strings.Contains(msg, "no such key") {
			return keyError(ErrKeyNotFound, key)
		}
		if strings.Contains(msg, "index out of range") {
			return keyError(ErrIndexOutOfRange, key)
		}
	}
	return err
}

func (r *RedisStore) LInsert(ctx context.Context, key, where string, pivot, value any) (int64, error) {
	pivotEnc, err := r.codec.Encode(pivot)
	if err != nil {
		return 0, err
	}
	enc, err := r.codec.Encode(value)
	if err != nil {
		return 0, err
	}
	return r.client.LInsert(ctx, r.k(key), where, pivotEnc, enc).Result()
}

// Sets.

func (r *RedisStore) SAdd(ctx context.Context, key string, members ...any) (int64, error) {
	encs, err := r.encodeArgs(members)
	if err != nil {
		return 0, err
	}
	return r.client.SAdd(ctx, r.k(key), encs...).Result()
}

func (r *RedisStore) SCard(ctx context.Context, key string) (int64, error) {
	return r.client.SCard(ctx, r.k(key)).Result()
}

func (r *RedisStore) SIsMember(ctx context.Context, key string, member any) (bool, error) {
	enc, err := r.codec.Encode(member)
	if err != nil {
		return false, err
	}
	return r.client.SIsMember(ctx, r.k(key), enc).Result()
}

func (r *RedisStore) SMIsMember(ctx context.Context, key string, members ...any) ([]bool, error) {
	if len(members) == 0 {
		return nil, nil
	}
	encs, err := r.encodeArgs(members)
	if err != nil {
		return nil, err
	}
	return r.client.SMIsMember(ctx, r.k(key), encs...).Result()
}

func (r *RedisStore) SMembers(ctx context.Context, key string) ([]any, error) {
	raws, err := r.client.SMembers(ctx, r.k(key)).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) SRandMember(ctx context.Context, key string) (bool, any, error) {
	raw, err := r.client.SRandMember(ctx, r.k(key)).Result()
	return r.oneValue(raw, err)
}

func (r *RedisStore) SRandMemberN(ctx context.Context, key string, count int64) ([]any, error) {
	raws, err := r.client.SRandMemberN(ctx, r.k(key), count).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) SPop(ctx context.Context, key string) (bool, any, error) {
	raw, err := r.client.SPop(ctx, r.k(key)).Result()
	return r.oneValue(raw, err)
}

func (r *RedisStore) SPopN(ctx context.Context, key string, count int64) ([]any, error) {
	raws, err := r.client.SPopN(ctx, r.k(key), count).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) SRem(ctx context.Context, key string, members ...any) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	encs, err := r.encodeArgs(members)
	if err != nil {
		return 0, err
	}
	return r.client.SRem(ctx, r.k(key), encs...).Result()
}

func (r *RedisStore) SMove(ctx context.Context, src, dst string, member any) (bool, error) {
	enc, err := r.codec.Encode(member)
	if err != nil {
		return false, err
	}
	return r.client.SMove(ctx, r.k(src), r.k(dst), enc).Result()
}

func (r *RedisStore) SDiff(ctx context.Context, keys ...string) ([]any, error) {
	raws, err := r.client.SDiff(ctx, r.kAll(keys)...).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) SDiffStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return r.client.SDiffStore(ctx, r.k(dst), r.kAll(keys)...).Result()
}

func (r *RedisStore) SInter(ctx context.Context, keys ...string) ([]any, error) {
	raws, err := r.client.SInter(ctx, r.kAll(keys)...).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) SInterStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return r.client.SInterStore(ctx, r.k(dst), r.kAll(keys)...).Result()
}

func (r *RedisStore) SUnion(ctx context.Context, keys ...string) ([]any, error) {
	raws, err := r.client.SUnion(ctx, r.kAll(keys)...).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) SUnionStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return r.client.SUnionStore(ctx, r.k(dst), r.kAll(keys)...).Result()
}

// Sorted sets.

func (r *RedisStore) zMembers(zs []Z) ([]redis.Z, error) {
	out := make([]redis.Z, len(zs))
	for i, z := range zs {
		enc, err := r.codec.Encode(z.Member)
		if err != nil {
			return nil, err
		}
		out[i] = redis.Z{Score: z.Score, Member: enc}
	}
	return out, nil
}

func (r *RedisStore) decodeZs(zs []redis.Z) ([]Z, error) {
	out := make([]Z, len(zs))
	for i, z := range zs {
		raw, ok := z.Member.(string)
		if !ok {
			out[i] = Z{Score: z.Score, Member: z.Member}
			continue
		}
		v, err := r.decode(raw)
		if err != nil {
			return nil, err
		}
		out[i] = Z{Score: z.Score, Member: v}
	}
	return out, nil
}

func (r *RedisStore) ZAdd(ctx context.Context, key string, members ...Z) (int64, error) {
	zs, err := r.zMembers(members)
	if err != nil {
		return 0, err
	}
	return r.client.ZAdd(ctx, r.k(key), zs...).Result()
}

func (r *RedisStore) ZAddWithArgs(ctx context.Context, key string, args ZAddArgs, members ...Z) (int64, error) {
	zs, err := r.zMembers(members)
	if err != nil {
		return 0, err
	}
	return r.client.ZAddArgs(ctx, r.k(key), redis.ZAddArgs{
		NX:      args.NX,
		XX:      args.XX,
		GT:      args.GT,
		LT:      args.LT,
		Ch:      args.CH,
		Members: zs,
	}).Result()
}

func (r *RedisStore) ZCard(ctx context.Context, key string) (int64, error) {
	return r.client.ZCard(ctx, r.k(key)).Result()
}

func (r *RedisStore) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	return r.client.ZCount(ctx, r.k(key), min, max).Result()
}

func (r *RedisStore) ZIncrBy(ctx context.Context, key string, delta float64, member any) (float64, error) {
	enc, err := r.codec.Encode(member)
	if err != nil {
		return 0, err
	}
	return r.client.ZIncrBy(ctx, r.k(key), delta, string(enc)).Result()
}

func (r *RedisStore) ZPopMin(ctx context.Context, key string, count int64) ([]Z, error) {
	zs, err := r.client.ZPopMin(ctx, r.k(key), count).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeZs(zs)
}

func (r *RedisStore) ZPopMax(ctx context.Context, key string, count int64) ([]Z, error) {
	zs, err := r.client.ZPopMax(ctx, r.k(key), count).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeZs(zs)
}

func (r *RedisStore) ZRange(ctx context.Context, key string, start, stop int64) ([]any, error) {
	raws, err := r.client.ZRange(ctx, r.k(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error) {
	zs, err := r.client.ZRangeWithScores(ctx, r.k(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeZs(zs)
}

func (r *RedisStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]any, error) {
	raws, err := r.client.ZRevRange(ctx, r.k(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error) {
	zs, err := r.client.ZRevRangeWithScores(ctx, r.k(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeZs(zs)
}

func rangeBy(by RangeBy) *redis.ZRangeBy {
	min, max := by.Min, by.Max
	if min == "" {
		min = "-inf"
	}
	if max == "" {
		max = "+inf"
	}
	return &redis.ZRangeBy{Min: min, Max: max, Offset: by.Offset, Count: by.Count}
}

func (r *RedisStore) ZRangeByScore(ctx context.Context, key string, by RangeBy) ([]any, error) {
	raws, err := r.client.ZRangeByScore(ctx, r.k(key), rangeBy(by)).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) ZRangeByScoreWithScores(ctx context.Context, key string, by RangeBy) ([]Z, error) {
	zs, err := r.client.ZRangeByScoreWithScores(ctx, r.k(key), rangeBy(by)).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeZs(zs)
}

func (r *RedisStore) ZRevRangeByScore(ctx context.Context, key string, by RangeBy) ([]any, error) {
	raws, err := r.client.ZRevRangeByScore(ctx, r.k(key), rangeBy(by)).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeStrings(raws)
}

func (r *RedisStore) ZRevRangeByScoreWithScores(ctx context.Context, key string, by RangeBy) ([]Z, error) {
	zs, err := r.client.ZRevRangeByScoreWithScores(ctx, r.k(key), rangeBy(by)).Result()
	if err != nil {
		return nil, err
	}
	return r.decodeZs(zs)
}

func (r *RedisStore) ZRank(ctx context.Context, key string, member any) (int64, bool, error) {
	enc, err := r.codec.Encode(member)
	if err != nil {
		return 0, false, err
	}
	rank, err := r.client.ZRank(ctx, r.k(key), string(enc)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

func (r *RedisStore) ZRevRank(ctx context.Context, key string, member any) (int64, bool, error) {
	enc, err := r.codec.Encode(member)
	if err != nil {
		return 0, false, err
	}
	rank, err := r.client.ZRevRank(ctx, r.k(key), string(enc)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return rank, true, nil
}

func (r *RedisStore) ZRem(ctx context.Context, key string, members ...any) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	encs, err := r.encodeArgs(members)
	if err != nil {
		return 0, err
	}
	return r.client.ZRem(ctx, r.k(key), encs...).Result()
}

func (r *RedisStore) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	return r.client.ZRemRangeByScore(ctx, r.k(key), min, max).Result()
}

func (r *RedisStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	return r.client.ZRemRangeByRank(ctx, r.k(key), start, stop).Result()
}

func (r *RedisStore) ZScore(ctx context.Context, key string, member any) (float64, bool, error) {
	enc, err := r.codec.Encode(member)
	if err != nil {
		return 0, false, err
	}
	score, err := r.client.ZScore(ctx, r.k(key), string(enc)).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return score, true, nil
}

func (r *RedisStore) ZMScore(ctx context.Context, key string, members ...any) ([]*float64, error) {
	out := make([]*float64, len(members))
	for i, m := range members {
		score, found, err := r.ZScore(ctx, key, m)
		if err != nil {
			return nil, err
		}
		if found {
			v := score
			out[i] = &v
		}
	}
	return out, nil
}

// Streams, scripting, blocking pops, set scans, server introspection.

func (r *RedisStore) XAdd(ctx context.Context, key, id string, values map[string]any) (string, error) {
	if id == "" {
		id = "*"
	}
	encoded := make(map[string]any, len(values))
	for k, v := range values {
		enc, err := r.codec.Encode(v)
		if err != nil {
			return "", err
		}
		encoded[k] = enc
	}
	return r.client.XAdd(ctx, &redis.XAddArgs{Stream: r.k(key), ID: id, Values: encoded}).Result()
}

func (r *RedisStore) XLen(ctx context.Context, key string) (int64, error) {
	return r.client.XLen(ctx, r.k(key)).Result()
}

func (r *RedisStore) XRange(ctx context.Context, key, start, stop string) ([]XMessage, error) {
	msgs, err := r.client.XRange(ctx, r.k(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.xMessages(msgs)
}

func (r *RedisStore) XRevRange(ctx context.Context, key, start, stop string) ([]XMessage, error) {
	msgs, err := r.client.XRevRange(ctx, r.k(key), start, stop).Result()
	if err != nil {
		return nil, err
	}
	return r.xMessages(msgs)
}

func (r *RedisStore) xMessages(msgs []redis.XMessage) ([]XMessage, error) {
	out := make([]XMessage, len(msgs))
	for i, msg := range msgs {
		values := make(map[string]any, len(msg.Values))
		for field, raw := range msg.Values {
			str, ok := raw.(string)
			if !ok {
				values[field] = raw
				continue
			}
			v, err := r.decode(str)
			if err != nil {
				return nil, err
			}
			values[field] = v
		}
		out[i] = XMessage{ID: msg.ID, Values: values}
	}
	return out, nil
}

func (r *RedisStore) XTrim(ctx context.Context, key string, maxLen int64) (int64, error) {
	return r.client.XTrimMaxLen(ctx, r.k(key), maxLen).Result()
}

func (r *RedisStore) XDel(ctx context.Context, key string, ids ...string) (int64, error) {
	return r.client.XDel(ctx, r.k(key), ids...).Result()
}

func (r *RedisStore) Eval(ctx context.Context, script string, keys []string, args ...any) (any, error) {
	return r.client.Eval(ctx, script, r.kAll(keys), args...).Result()
}

func (r *RedisStore) BLPop(ctx context.Context, timeout time.Duration, keys ...string) ([]any, error) {
	reply, err := r.client.BLPop(ctx, timeout, r.kAll(keys)...).Result()
	return r.popReply(reply, err)
}

func (r *RedisStore) BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]any, error) {
	reply, err := r.client.BRPop(ctx, timeout, r.kAll(keys)...).Result()
	return r.popReply(reply, err)
}

// popReply converts a [key, value] blocking-pop reply, decoding the value.
func (r *RedisStore) popReply(reply []string, err error) ([]any, error) {
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if len(reply) != 2 {
		return nil, nil
	}
	v, err := r.decode(reply[1])
	if err != nil {
		return nil, err
	}
	return []any{r.strip(reply[0]), v}, nil
}

func (r *RedisStore) BLMove(ctx context.Context, src, dst, srcPos, dstPos string, timeout time.Duration) (any, error) {
	raw, err := r.client.BLMove(ctx, r.k(src), r.k(dst), srcPos, dstPos, timeout).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.decode(raw)
}

func (r *RedisStore) SScan(ctx context.Context, key string, cursor uint64, match string, count int64) (uint64, []any, error) {
	if count <= 0 {
		count = r.cfg.scanSize
	}
	if match == "" {
		match = "*"
	}
	raws, next, err := r.client.SScan(ctx, r.k(key), cursor, match, count).Result()
	if err != nil {
		return 0, nil, err
	}
	vals, err := r.decodeStrings(raws)
	if err != nil {
		return 0, nil, err
	}
	return next, vals, nil
}

func (r *RedisStore) Info(ctx context.Context) (string, error) {
	return r.client.Info(ctx).Result()
}

func (r *RedisStore) SlowLog(ctx context.Context, count int64) ([]string, error) {
	entries, err := r.client.SlowLogGet(ctx, count).Result()
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = fmt.Sprintf("%d %s %s", e.ID, e.Duration, strings.Join(e.Args, " "))
	}
	return out, nil
}
