// Package kv provides a multi-type key-value store with Redis semantics —
// strings, hashes, lists, sets, and sorted sets under one key space — backed
// either by a relational database that emulates those semantics or by a
// native engine.
//
// # Store Interface
//
// The [Store] interface is the whole operation surface: string operations
// with TTLs, the TTL family, key-space queries (Keys, Scan, IterKeys,
// DeletePattern, Rename), and the per-type operations for hashes, lists,
// sets, and sorted sets. Both strategies satisfy it, so application code is
// written once and the backing engine is a constructor-time decision.
//
// The interface uses [any] for values rather than generics because Go does
// not allow generic methods on interfaces. Type safety is provided by the
// package-level generic functions [As], [GetAs], and [Fetch].
//
// # Implementations
//
//   - [NewSQLite] / [NewSQL] — The relational emulation. A key registry
//     table owns each key's type and expiry; four auxiliary tables hold
//     hash fields, list elements, set members, and sorted-set members. Every
//     operation runs in its own transaction, and every read filters expired
//     rows out with a bound now timestamp, so an expired key is
//     indistinguishable from an absent one the instant its deadline passes.
//     [NewSQLite] uses [modernc.org/sqlite] (pure Go, no CGO) and supports
//     both file-backed and ":memory:" databases; [NewSQL] accepts any
//     database handle together with a [Dialect] (SQLite and PostgreSQL
//     dialects are provided).
//
//   - [NewRedis] — The native engine strategy using
//     [github.com/redis/go-redis/v9]. Each operation maps directly to its
//     engine command. Values still travel through the configured codec, so
//     data written through one strategy decodes through the other.
//
// A handful of operations (streams, Eval, the blocking pops, SScan, and the
// Info and SlowLog introspection calls) exist only on the native engine; the
// relational emulation returns a [*NotSupportedError] naming the operation
// and backend.
//
// # Type Transitions
//
// A key holds exactly one type at a time. Writing a hash field to a key that
// currently holds a list atomically purges the list rows and re-registers
// the key as a hash, inside the same transaction as the write. The registry
// row is locked for the duration, so two concurrent transitions cannot leave
// orphaned rows behind.
//
// # Expiry
//
// TTLs are stored as absolute nanosecond deadlines. Expiry is lazy: nothing
// runs in the background, reads filter on the deadline, and the next write
// to an expired key purges its leftovers. The TTL inspection operations
// follow the engine convention of -2 ([TTLMissing]) for an absent key and -1
// ([TTLPersistent]) for a key without expiry. A ttl of exactly zero on Set
// and friends is the immediate-delete case: the key is removed and the
// value never stored. [NoTTL] stores without expiry.
//
// # Serialization
//
// Values are encoded by a [Codec]: a serializer chain (msgpack by default,
// via [github.com/vmihailenco/msgpack/v5]) optionally wrapped by a
// compressor chain. Plain integers bypass both and are stored as decimal
// text so IncrBy can parse and update them; bools never take that path.
// Decoding tries the integer parse first, then each decompressor, then each
// deserializer in declared order, which allows live migration between
// formats: configure the new format first and the old one after it, and
// reads of old data keep working. A value no configured serializer can
// decode surfaces as a [*CodecError] rather than as garbage.
//
// Member equality for sets, sorted sets, LPos, and LRem is equality of
// encoded bytes, so values used as members must round-trip to identical
// bytes. msgpack encoding is deterministic for scalars and strings; avoid
// maps as set members.
//
// # Key Patterns
//
// Keys, Scan, IterKeys, and DeletePattern take glob patterns (*, ?, and
// [...] classes). On SQLite they compile to the native GLOB operator; on
// PostgreSQL patterns with bracket classes become anchored POSIX regexes
// and everything else becomes a LIKE with escaping. Matching is
// case-sensitive on both.
//
// The Scan cursor is a plain row offset over the key-ordered result. A full
// pass over a quiescent store visits every key exactly once; a scan
// interleaved with writes may miss or repeat keys, the same weak guarantee
// the native engine gives.
//
// # Generic Helpers
//
//	found, user, err := kv.GetAs[User](ctx, store, "user:123")
//
// [GetAs] asserts the decoded value directly when possible and otherwise
// round-trips it through msgpack into the requested type. [Fetch] is the
// cache-aside combination of lookup and population:
//
//	found, user, err := kv.Fetch(ctx, store, "user:123", time.Minute,
//	    func(ctx context.Context) (User, bool, error) {
//	        user, err := queries.GetUser(ctx, id)
//	        if errors.Is(err, sql.ErrNoRows) {
//	            return User{}, false, nil   // not found — won't be cached
//	        }
//	        return user, true, err          // found — will be cached
//	    },
//	)
//
// Read errors are always propagated; a failed Set after a successful invoke
// is swallowed, since the caller already has their value.
//
// # Timeouts
//
// I/O-backed operations apply a per-operation timeout
// ([DefaultQueryTimeout], 5 seconds, configurable with [WithQueryTimeout])
// derived from the caller's context, so cancelling the caller's context
// also cancels in-flight operations.
package kv
