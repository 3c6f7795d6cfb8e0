package kv

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"time"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

// Internal type tags stored in the registry's type column.
const (
	typeString = 0
	typeHash   = 1
	typeList   = 2
	typeSet    = 3
	typeZSet   = 4
)

var typeNames = map[int]KeyType{
	typeString: TypeString,
	typeHash:   TypeHash,
	typeList:   TypeList,
	typeSet:    TypeSet,
	typeZSet:   TypeZSet,
}

var typeIDs = map[KeyType]int{
	TypeString: typeString,
	TypeHash:   typeHash,
	TypeList:   typeList,
	TypeSet:    typeSet,
	TypeZSet:   typeZSet,
}

// auxSuffixes lists the auxiliary tables, keyed by type tag. The string type
// has no auxiliary table; its payload lives in the registry row.
var auxSuffixes = map[int]string{
	typeHash: "_hashes",
	typeList: "_lists",
	typeSet:  "_sets",
	typeZSet: "_zsets",
}

var allAuxSuffixes = []string{"_hashes", "_lists", "_sets", "_zsets"}

var tablePrefixRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore is the relational emulation of the multi-type key-value store.
// Five tables hold the state: a key registry owning type and expiry, and one
// auxiliary table per non-string type. Every public operation runs in its
// own transaction; reads that precede conditional writes lock the row via
// the dialect's RowLock so concurrent increments and type transitions do
// not interleave.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	codec   *Codec
	table   string
	cfg     config
	log     *zap.Logger
	ownsDB  bool
}

var _ Store = (*SQLStore)(nil)

// NewSQL returns a Store backed by the given database handle. The caller
// owns the handle's lifecycle — Close is a no-op on it. The five tables and
// their indexes are created if missing.
func NewSQL(ctx context.Context, db *sql.DB, dialect Dialect, opts ...Option) (*SQLStore, error) {
	cfg := applyOptions(opts)
	if !tablePrefixRe.MatchString(cfg.tablePrefix) {
		return nil, fmt.Errorf("kv: invalid table prefix %q", cfg.tablePrefix)
	}
	s := &SQLStore{
		db:      db,
		dialect: dialect,
		codec:   cfg.codec,
		table:   cfg.tablePrefix,
		cfg:     cfg,
		log:     cfg.logger,
	}
	for _, ddl := range dialect.Schema(cfg.tablePrefix) {
		if _, err := db.ExecContext(ctx, ddl); err != nil {
			return nil, fmt.Errorf("kv: create schema: %w", err)
		}
	}
	s.log.Debug("kv schema ready",
		zap.String("dialect", dialect.Name()),
		zap.String("prefix", cfg.tablePrefix))
	return s, nil
}

// NewSQLite returns a Store backed by SQLite using modernc.org/sqlite (pure
// Go, no CGO). If path is empty or ":memory:", an in-memory database is
// used. The store owns the database handle and closes it on Close. The pool
// is capped at one connection: SQLite allows a single writer anyway, and the
// cap keeps in-memory databases on one connection so every operation sees
// the same data.
func NewSQLite(ctx context.Context, path string, opts ...Option) (*SQLStore, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, err
		}
	}
	s, err := NewSQL(ctx, db, SQLiteDialect{}, opts...)
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Close releases the database handle if the store owns it.
func (s *SQLStore) Close() error {
	if s.ownsDB {
		return s.db.Close()
	}
	return nil
}

// q interpolates table names into a statement and rebinds placeholders.
// Only the validated table prefix (and dialect fragments) pass through
// fmt — keys and values are always bound parameters.
func (s *SQLStore) q(format string, args ...any) string {
	return s.dialect.Rebind(fmt.Sprintf(format, args...))
}

func (s *SQLStore) nowNano() int64 {
	return time.Now().UnixNano()
}

// makeExpiry converts a relative ttl to the stored absolute deadline.
// Negative ttl (NoTTL) stores NULL. The zero ttl immediate-delete case is
// handled by callers before reaching here.
func (s *SQLStore) makeExpiry(ttl time.Duration) any {
	if ttl < 0 {
		return nil
	}
	return time.Now().Add(ttl).UnixNano()
}

// absExpiry converts an absolute expiry time to its stored form.
func absExpiry(when time.Time) int64 {
	return when.UnixNano()
}

// alive returns the not-expired predicate for the registry table, optionally
// alias-qualified. Callers bind the current time (nowNano) for its ?.
func alive(alias string) string {
	if alias == "" {
		return "(expires_at IS NULL OR expires_at > ?)"
	}
	return "(" + alias + ".expires_at IS NULL OR " + alias + ".expires_at > ?)"
}

// placeholders returns n comma-separated ? markers for IN clauses.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	b := make([]byte, 0, n*3)
	for i := 0; i < n; i++ {
		if i > 0 {
			b = append(b, ", "...)
		}
		b = append(b, '?')
	}
	return string(b)
}

// withTx runs fn inside a transaction bounded by the per-operation query
// timeout. The transaction is rolled back on any error or panic and
// committed otherwise; no cursor survives past the call.
func (s *SQLStore) withTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.queryTimeout)
	defer cancel()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// ensureKey idempotently transitions key to the requested type: an expired
// row is purged entirely and the key treated as brand-new; a live row of a
// different type has only the old type's auxiliary rows purged. The initial
// lookup holds a row lock so two transitions cannot interleave and leave
// orphaned auxiliary rows. The upsert clears the string payload whenever the
// type actually changes.
func (s *SQLStore) ensureKey(ctx context.Context, tx *sql.Tx, key string, typeID int) error {
	var oldType int
	var exp sql.NullInt64
	err := tx.QueryRowContext(ctx,
		s.q("SELECT type, expires_at FROM %s WHERE key = ?%s", s.table, s.dialect.RowLock()),
		key,
	).Scan(&oldType, &exp)
	switch {
	case err == sql.ErrNoRows:
		// Brand-new key.
	case err != nil:
		return err
	case exp.Valid && exp.Int64 <= s.nowNano():
		if err := s.deleteAllKeyData(ctx, tx, key); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM %s WHERE key = ?", s.table), key); err != nil {
			return err
		}
	case oldType != typeID:
		if err := s.deleteTypeData(ctx, tx, key, oldType); err != nil {
			return err
		}
	}

	_, err = tx.ExecContext(ctx, s.q(`INSERT INTO %s (key, type) VALUES (?, ?)
		ON CONFLICT (key) DO UPDATE SET type = excluded.type, value = NULL
		WHERE %s.type != excluded.type`, s.table, s.table),
		key, typeID)
	return err
}

// deleteTypeData removes the auxiliary rows belonging to one type.
func (s *SQLStore) deleteTypeData(ctx context.Context, tx *sql.Tx, key string, typeID int) error {
	suffix, ok := auxSuffixes[typeID]
	if !ok {
		return nil
	}
	_, err := tx.ExecContext(ctx, s.q("DELETE FROM %s%s WHERE key = ?", s.table, suffix), key)
	return err
}

// deleteAllKeyData removes the auxiliary rows of every type for a key.
func (s *SQLStore) deleteAllKeyData(ctx context.Context, tx *sql.Tx, key string) error {
	for _, suffix := range allAuxSuffixes {
		if _, err := tx.ExecContext(ctx, s.q("DELETE FROM %s%s WHERE key = ?", s.table, suffix), key); err != nil {
			return err
		}
	}
	return nil
}

// keyLive reports whether key exists unexpired with the given type.
func (s *SQLStore) keyLive(ctx context.Context, tx *sql.Tx, key string, typeID int) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		s.q("SELECT 1 FROM %s WHERE key = ? AND type = ? AND %s", s.table, alive("")),
		key, typeID, s.nowNano(),
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// encodeAll encodes a batch of values, failing fast on the first bad one.
func (s *SQLStore) encodeAll(values []any) ([][]byte, error) {
	out := make([][]byte, len(values))
	for i, v := range values {
		enc, err := s.codec.Encode(v)
		if err != nil {
			return nil, err
		}
		out[i] = enc
	}
	return out, nil
}

// decodeRows decodes a slice of raw payloads.
func (s *SQLStore) decodeRows(raw [][]byte) ([]any, error) {
	out := make([]any, len(raw))
	for i, r := range raw {
		v, err := s.codec.Decode(r)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s *SQLStore) notSupported(op string) error {
	return &NotSupportedError{Op: op, Backend: s.dialect.Name()}
}
