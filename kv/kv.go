package kv

import (
	"context"
	"iter"
	"time"

	"go.uber.org/zap"
)

// KeyType identifies which data structure a key currently holds.
type KeyType string

const (
	// TypeNone is reported by Type for absent or expired keys.
	TypeNone   KeyType = "none"
	TypeString KeyType = "string"
	TypeHash   KeyType = "hash"
	TypeList   KeyType = "list"
	TypeSet    KeyType = "set"
	TypeZSet   KeyType = "zset"
)

// TTL argument conventions. A positive ttl sets a relative expiry. NoTTL
// stores the key without expiry. A ttl of exactly zero is the immediate-delete
// special case: Set(key, v, 0) removes the key and never stores the value.
const NoTTL time.Duration = -1

// TTL return conventions, matching the remote-cache protocol: TTLMissing for
// an absent (or expired) key, TTLPersistent for a key with no expiry.
const (
	TTLMissing    int64 = -2
	TTLPersistent int64 = -1
)

// Directional arguments for LMove and LInsert.
const (
	Left   = "LEFT"
	Right  = "RIGHT"
	Before = "BEFORE"
	After  = "AFTER"
)

// SetArgs combines the NX/XX/Get modes of the extended set operation.
// NX and XX are mutually exclusive. When Get is true the previous string
// value is read in the same transaction as the write and returned.
type SetArgs struct {
	TTL time.Duration
	NX  bool
	XX  bool
	Get bool
}

// Z is a sorted-set member with its score.
type Z struct {
	Score  float64
	Member any
}

// ZAddArgs controls per-member update decisions for ZAddWithArgs.
// GT and LT set together means "never update an existing member".
// CH switches the return value from newly-added count to changed count.
type ZAddArgs struct {
	NX bool
	XX bool
	GT bool
	LT bool
	CH bool
}

// RangeBy describes a score range query. Min and Max use the remote-cache
// bound syntax: a float, "-inf", "+inf", or a "(" prefix for exclusive
// bounds. Offset/Count paginate the result; Count zero means no limit.
type RangeBy struct {
	Min, Max      string
	Offset, Count int64
}

// LPosArgs controls LPos matching. Rank selects which match to start from
// (negative means search from the tail); MaxLen limits how many list entries
// are scanned (zero means no limit).
type LPosArgs struct {
	Rank   int64
	MaxLen int64
}

// XMessage is a stream entry, supported only by native engine backends.
type XMessage struct {
	ID     string
	Values map[string]any
}

// Store is the unified operation surface over a Redis-semantics multi-type
// key-value store. Two strategies implement it: the relational emulation
// ([NewSQL], [NewSQLite]) and the native engine pass-through ([NewRedis]).
// Operations the relational emulation cannot provide return a
// [*NotSupportedError] identifying the operation and backend.
type Store interface {
	// Strings.
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Get(ctx context.Context, key string) (bool, any, error)
	Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	SetWithArgs(ctx context.Context, key string, value any, args SetArgs) (any, bool, error)
	Delete(ctx context.Context, key string) (bool, error)
	Has(ctx context.Context, key string) (bool, error)
	Touch(ctx context.Context, key string, ttl time.Duration) (bool, error)
	GetMany(ctx context.Context, keys ...string) (map[string]any, error)
	SetMany(ctx context.Context, values map[string]any, ttl time.Duration) error
	DeleteMany(ctx context.Context, keys ...string) (int64, error)
	IncrBy(ctx context.Context, key string, delta int64) (int64, error)
	DecrBy(ctx context.Context, key string, delta int64) (int64, error)
	Clear(ctx context.Context) error
	Type(ctx context.Context, key string) (KeyType, error)

	// TTL. Return values follow the -2/-1 convention documented on
	// TTLMissing and TTLPersistent.
	TTL(ctx context.Context, key string) (int64, error)
	PTTL(ctx context.Context, key string) (int64, error)
	ExpireTime(ctx context.Context, key string) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ExpireAt(ctx context.Context, key string, when time.Time) (bool, error)
	PExpireAt(ctx context.Context, key string, when time.Time) (bool, error)
	Persist(ctx context.Context, key string) (bool, error)

	// Key space.
	Keys(ctx context.Context, pattern string) ([]string, error)
	Scan(ctx context.Context, cursor uint64, match string, count int64, keyType KeyType) (uint64, []string, error)
	IterKeys(ctx context.Context, pattern string, itersize int64) iter.Seq2[string, error]
	DeletePattern(ctx context.Context, pattern string, itersize int64) (int64, error)
	Rename(ctx context.Context, src, dst string) error
	RenameNX(ctx context.Context, src, dst string) (bool, error)

	// Hashes.
	HSet(ctx context.Context, key string, fieldvals ...any) (int64, error)
	HSetNX(ctx context.Context, key, field string, value any) (bool, error)
	HGet(ctx context.Context, key, field string) (bool, any, error)
	HMGet(ctx context.Context, key string, fields ...string) ([]any, error)
	HGetAll(ctx context.Context, key string) (map[string]any, error)
	HDel(ctx context.Context, key string, fields ...string) (int64, error)
	HExists(ctx context.Context, key, field string) (bool, error)
	HLen(ctx context.Context, key string) (int64, error)
	HKeys(ctx context.Context, key string) ([]string, error)
	HVals(ctx context.Context, key string) ([]any, error)
	HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error)
	HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error)

	// Lists.
	LPush(ctx context.Context, key string, values ...any) (int64, error)
	RPush(ctx context.Context, key string, values ...any) (int64, error)
	LPop(ctx context.Context, key string) (bool, any, error)
	LPopCount(ctx context.Context, key string, count int64) ([]any, error)
	RPop(ctx context.Context, key string) (bool, any, error)
	RPopCount(ctx context.Context, key string, count int64) ([]any, error)
	LRange(ctx context.Context, key string, start, stop int64) ([]any, error)
	LIndex(ctx context.Context, key string, index int64) (bool, any, error)
	LLen(ctx context.Context, key string) (int64, error)
	LPos(ctx context.Context, key string, value any, args LPosArgs) (int64, bool, error)
	LPosCount(ctx context.Context, key string, value any, count int64, args LPosArgs) ([]int64, error)
	LMove(ctx context.Context, src, dst, srcPos, dstPos string) (bool, any, error)
	LRem(ctx context.Context, key string, count int64, value any) (int64, error)
	LTrim(ctx context.Context, key string, start, stop int64) error
	LSet(ctx context.Context, key string, index int64, value any) error
	LInsert(ctx context.Context, key, where string, pivot, value any) (int64, error)

	// Sets.
	SAdd(ctx context.Context, key string, members ...any) (int64, error)
	SCard(ctx context.Context, key string) (int64, error)
	SIsMember(ctx context.Context, key string, member any) (bool, error)
	SMIsMember(ctx context.Context, key string, members ...any) ([]bool, error)
	SMembers(ctx context.Context, key string) ([]any, error)
	SRandMember(ctx context.Context, key string) (bool, any, error)
	SRandMemberN(ctx context.Context, key string, count int64) ([]any, error)
	SPop(ctx context.Context, key string) (bool, any, error)
	SPopN(ctx context.Context, key string, count int64) ([]any, error)
	SRem(ctx context.Context, key string, members ...any) (int64, error)
	SMove(ctx context.Context, src, dst string, member any) (bool, error)
	SDiff(ctx context.Context, keys ...string) ([]any, error)
	SDiffStore(ctx context.Context, dst string, keys ...string) (int64, error)
	SInter(ctx context.Context, keys ...string) ([]any, error)
	SInterStore(ctx context.Context, dst string, keys ...string) (int64, error)
	SUnion(ctx context.Context, keys ...string) ([]any, error)
	SUnionStore(ctx context.Context, dst string, keys ...string) (int64, error)

	// Sorted sets.
	ZAdd(ctx context.Context, key string, members ...Z) (int64, error)
	ZAddWithArgs(ctx context.Context, key string, args ZAddArgs, members ...Z) (int64, error)
	ZCard(ctx context.Context, key string) (int64, error)
	ZCount(ctx context.Context, key, min, max string) (int64, error)
	ZIncrBy(ctx context.Context, key string, delta float64, member any) (float64, error)
	ZPopMin(ctx context.Context, key string, count int64) ([]Z, error)
	ZPopMax(ctx context.Context, key string, count int64) ([]Z, error)
	ZRange(ctx context.Context, key string, start, stop int64) ([]any, error)
	ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error)
	ZRevRange(ctx context.Context, key string, start, stop int64) ([]any, error)
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error)
	ZRangeByScore(ctx context.Context, key string, by RangeBy) ([]any, error)
	ZRangeByScoreWithScores(ctx context.Context, key string, by RangeBy) ([]Z, error)
	ZRevRangeByScore(ctx context.Context, key string, by RangeBy) ([]any, error)
	ZRevRangeByScoreWithScores(ctx context.Context, key string, by RangeBy) ([]Z, error)
	ZRank(ctx context.Context, key string, member any) (int64, bool, error)
	ZRevRank(ctx context.Context, key string, member any) (int64, bool, error)
	ZRem(ctx context.Context, key string, members ...any) (int64, error)
	ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error)
	ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error)
	ZScore(ctx context.Context, key string, member any) (float64, bool, error)
	ZMScore(ctx context.Context, key string, members ...any) ([]*float64, error)

	// Streams, scripting, blocking pops, set scan, and server introspection
	// exist only on native engine backends.
	XAdd(ctx context.Context, key, id string, values map[string]any) (string, error)
	XLen(ctx context.Context, key string) (int64, error)
	XRange(ctx context.Context, key, start, stop string) ([]XMessage, error)
	XRevRange(ctx context.Context, key, start, stop string) ([]XMessage, error)
	XTrim(ctx context.Context, key string, maxLen int64) (int64, error)
	XDel(ctx context.Context, key string, ids ...string) (int64, error)
	Eval(ctx context.Context, script string, keys []string, args ...any) (any, error)
	BLPop(ctx context.Context, timeout time.Duration, keys ...string) ([]any, error)
	BRPop(ctx context.Context, timeout time.Duration, keys ...string) ([]any, error)
	BLMove(ctx context.Context, src, dst, srcPos, dstPos string, timeout time.Duration) (any, error)
	SScan(ctx context.Context, key string, cursor uint64, match string, count int64) (uint64, []any, error)
	Info(ctx context.Context) (string, error)
	SlowLog(ctx context.Context, count int64) ([]string, error)

	Close() error
}

// DefaultQueryTimeout is the per-operation timeout applied by I/O-backed
// stores. Prevents indefinite hangs on slow or unresponsive storage.
const DefaultQueryTimeout = 5 * time.Second

// DefaultScanSize is the page size used by Scan when count <= 0, and by
// IterKeys/DeletePattern when itersize <= 0.
const DefaultScanSize int64 = 100

// DefaultTablePrefix names the relational tables when none is configured.
const DefaultTablePrefix = "cachex"

// config holds the resolved configuration for a store implementation.
type config struct {
	queryTimeout time.Duration
	tablePrefix  string
	keyPrefix    string
	scanSize     int64
	codec        *Codec
	logger       *zap.Logger
}

// Option configures a Store implementation.
type Option func(*config)

func defaultConfig() config {
	return config{
		queryTimeout: DefaultQueryTimeout,
		tablePrefix:  DefaultTablePrefix,
		scanSize:     DefaultScanSize,
		codec:        DefaultCodec(),
		logger:       zap.NewNop(),
	}
}

func applyOptions(opts []Option) config {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// WithQueryTimeout sets the per-operation timeout for I/O-backed stores.
// Defaults to DefaultQueryTimeout (5 seconds).
func WithQueryTimeout(d time.Duration) Option {
	return func(c *config) { c.queryTimeout = d }
}

// WithTablePrefix sets the relational table prefix. The prefix must match
// [A-Za-z_][A-Za-z0-9_]* — it is the only configuration text that reaches
// SQL statements unbound, so it is validated at construction time.
func WithTablePrefix(p string) Option {
	return func(c *config) { c.tablePrefix = p }
}

// WithPrefix sets the key prefix for namespacing keys on the native engine
// backend. Defaults to empty (no prefix).
func WithPrefix(p string) Option {
	return func(c *config) { c.keyPrefix = p }
}

// WithScanSize sets the default Scan page size. Defaults to DefaultScanSize.
func WithScanSize(n int64) Option {
	return func(c *config) { c.scanSize = n }
}

// WithCodec sets the value codec. Defaults to DefaultCodec (msgpack, no
// compression).
func WithCodec(codec *Codec) Option {
	return func(c *config) { c.codec = codec }
}

// WithLogger sets the logger. Defaults to a nop logger.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}
