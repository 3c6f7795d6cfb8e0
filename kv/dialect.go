package kv

import (
	"fmt"
	"strings"
)

// Dialect abstracts over the SQL engines the relational emulation runs on.
// Statements are written with ? placeholders and rebound per dialect; only
// the validated table prefix is ever interpolated into statement text.
type Dialect interface {
	// Name identifies the backend in errors and logs.
	Name() string
	// Rebind rewrites ? placeholders into the dialect's native form.
	Rebind(query string) string
	// KeyMatch returns a predicate on the key column for a glob pattern,
	// plus the bound argument for it.
	KeyMatch(pattern string) (string, any)
	// RowLock returns the suffix that locks selected rows for update, or
	// the empty string when the engine serializes writers anyway.
	RowLock() string
	// Schema returns the DDL creating the five tables and their indexes.
	Schema(prefix string) []string
}

// SQLiteDialect targets SQLite. Pattern matching uses the built-in GLOB
// operator, which shares the glob syntax (*, ?, [...]) and is
// case-sensitive, unlike SQLite's LIKE. SQLite has no FOR UPDATE; writes
// are serialized by the single-writer engine instead.
type SQLiteDialect struct{}

var _ Dialect = SQLiteDialect{}

func (SQLiteDialect) Name() string { return "sqlite" }

func (SQLiteDialect) Rebind(query string) string { return query }

func (SQLiteDialect) KeyMatch(pattern string) (string, any) {
	return "key GLOB ?", pattern
}

func (SQLiteDialect) RowLock() string { return "" }

func (SQLiteDialect) Schema(prefix string) []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			type INTEGER NOT NULL DEFAULT 0,
			value BLOB,
			expires_at INTEGER
		)`, prefix),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at) WHERE expires_at IS NOT NULL`, prefix, prefix),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_hashes (
			key TEXT NOT NULL,
			field TEXT NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (key, field)
		)`, prefix),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_lists (
			key TEXT NOT NULL,
			pos INTEGER NOT NULL,
			value BLOB NOT NULL,
			PRIMARY KEY (key, pos)
		)`, prefix),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_sets (
			key TEXT NOT NULL,
			member BLOB NOT NULL,
			PRIMARY KEY (key, member)
		)`, prefix),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s_zsets (
			key TEXT NOT NULL,
			member BLOB NOT NULL,
			score REAL NOT NULL,
			PRIMARY KEY (key, member)
		)`, prefix),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_zsets_score ON %s_zsets(key, score)`, prefix, prefix),
	}
}

// PostgresDialect targets PostgreSQL. Glob patterns translate through the
// two-path LIKE/regex compiler, rows are locked with FOR UPDATE, and ?
// placeholders rebind to $1..$n.
type PostgresDialect struct{}

var _ Dialect = PostgresDialect{}

func (PostgresDialect) Name() string { return "postgres" }

func (PostgresDialect) Rebind(query string) string {
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}

func (PostgresDialect) KeyMatch(pattern string) (string, any) {
	arg, regex := globToSQL(pattern)
	if regex {
		return "key ~ ?", arg
	}
	return `key LIKE ? ESCAPE '\'`, arg
}

func (PostgresDialect) RowLock() string { return " FOR UPDATE" }

func (PostgresDialect) Schema(prefix string) []string {
	return []string{
		fmt.Sprintf(`CREATE UNLOGGED TABLE IF NOT EXISTS %s (
			key TEXT PRIMARY KEY,
			type SMALLINT NOT NULL DEFAULT 0,
			value BYTEA,
			expires_at BIGINT
		)`, prefix),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_expires ON %s(expires_at) WHERE expires_at IS NOT NULL`, prefix, prefix),
		fmt.Sprintf(`CREATE UNLOGGED TABLE IF NOT EXISTS %s_hashes (
			key TEXT NOT NULL,
			field TEXT NOT NULL,
			value BYTEA NOT NULL,
			PRIMARY KEY (key, field)
		)`, prefix),
		fmt.Sprintf(`CREATE UNLOGGED TABLE IF NOT EXISTS %s_lists (
			key TEXT NOT NULL,
			pos BIGINT NOT NULL,
			value BYTEA NOT NULL,
			PRIMARY KEY (key, pos)
		)`, prefix),
		fmt.Sprintf(`CREATE UNLOGGED TABLE IF NOT EXISTS %s_sets (
			key TEXT NOT NULL,
			member BYTEA NOT NULL,
			PRIMARY KEY (key, member)
		)`, prefix),
		fmt.Sprintf(`CREATE UNLOGGED TABLE IF NOT EXISTS %s_zsets (
			key TEXT NOT NULL,
			member BYTEA NOT NULL,
			score DOUBLE PRECISION NOT NULL,
			PRIMARY KEY (key, member)
		)`, prefix),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_zsets_score ON %s_zsets(key, score)`, prefix, prefix),
	}
}
