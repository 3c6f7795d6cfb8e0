package kv

import (
	"context"
	"database/sql"
	"iter"
)

// Keys returns every live key matching the glob pattern, sorted. Pattern
// matching happens inside the database through the dialect's key predicate.
func (s *SQLStore) Keys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		cond, arg := s.dialect.KeyMatch(pattern)
		rows, err := tx.QueryContext(ctx,
			s.q("SELECT key FROM %s WHERE %s AND %s ORDER BY key", s.table, cond, alive("")),
			arg, s.nowNano())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Scan returns one page of live keys ordered by key, plus the cursor for the
// next page. The cursor is a plain row offset, so a scan interleaved with
// writes may miss or repeat keys; a full pass over a quiescent store visits
// every key exactly once. A zero returned cursor means the scan is done.
// An empty match scans all keys; an empty keyType scans all types.
func (s *SQLStore) Scan(ctx context.Context, cursor uint64, match string, count int64, keyType KeyType) (uint64, []string, error) {
	if count <= 0 {
		count = s.cfg.scanSize
	}
	var keys []string
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		query := "SELECT key FROM %s WHERE " + alive("")
		args := []any{s.nowNano()}
		if match != "" {
			cond, arg := s.dialect.KeyMatch(match)
			query += " AND " + cond
			args = append(args, arg)
		}
		if keyType != "" && keyType != TypeNone {
			query += " AND type = ?"
			args = append(args, typeIDs[keyType])
		}
		query += " ORDER BY key LIMIT ? OFFSET ?"
		args = append(args, count, int64(cursor))
		rows, err := tx.QueryContext(ctx, s.q(query, s.table), args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var k string
			if err := rows.Scan(&k); err != nil {
				return err
			}
			keys = append(keys, k)
		}
		return rows.Err()
	})
	if err != nil {
		return 0, nil, err
	}
	next := uint64(0)
	if int64(len(keys)) == count {
		next = cursor + uint64(len(keys))
	}
	return next, keys, nil
}

// IterKeys walks all keys matching pattern in pages of itersize, yielding
// each key. An error stops the iteration and is yielded last with an empty
// key.
func (s *SQLStore) IterKeys(ctx context.Context, pattern string, itersize int64) iter.Seq2[string, error] {
	if itersize <= 0 {
		itersize = s.cfg.scanSize
	}
	return func(yield func(string, error) bool) {
		var cursor uint64
		for {
			next, keys, err := s.Scan(ctx, cursor, pattern, itersize, "")
			if err != nil {
				yield("", err)
				return
			}
			for _, k := range keys {
				if !yield(k, nil) {
					return
				}
			}
			if next == 0 {
				return
			}
			cursor = next
		}
	}
}

// DeletePattern removes every key matching the glob pattern, page by page,
// and returns how many were deleted. Each page restarts the scan from the
// beginning since the previous page's keys are gone.
func (s *SQLStore) DeletePattern(ctx context.Context, pattern string, itersize int64) (int64, error) {
	if itersize <= 0 {
		itersize = s.cfg.scanSize
	}
	var total int64
	for {
		_, keys, err := s.Scan(ctx, 0, pattern, itersize, "")
		if err != nil {
			return total, err
		}
		if len(keys) == 0 {
			return total, nil
		}
		n, err := s.DeleteMany(ctx, keys...)
		if err != nil {
			return total, err
		}
		total += n
	}
}

// Rename moves src to dst, carrying the value, type and ttl along and
// destroying whatever dst held. Fails with ErrKeyNotFound when src is absent
// or expired.
func (s *SQLStore) Rename(ctx context.Context, src, dst string) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return s.rename(ctx, tx, src, dst)
	})
}

// RenameNX renames only when dst does not already exist, reporting whether
// the rename happened. Still fails with ErrKeyNotFound when src is absent.
func (s *SQLStore) RenameNX(ctx context.Context, src, dst string) (bool, error) {
	var renamed bool
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			s.q("SELECT 1 FROM %s WHERE key = ? AND %s", s.table, alive("")),
			dst, s.nowNano()).Scan(&one)
		if err == nil {
			// Destination exists; src must still be checked for the error
			// contract.
			return tx.QueryRowContext(ctx,
				s.q("SELECT 1 FROM %s WHERE key = ? AND %s", s.table, alive("")),
				src, s.nowNano()).Scan(&one)
		}
		if err != sql.ErrNoRows {
			return err
		}
		if err := s.rename(ctx, tx, src, dst); err != nil {
			return err
		}
		renamed = true
		return nil
	})
	if err == sql.ErrNoRows {
		return false, keyError(ErrKeyNotFound, src)
	}
	return renamed, err
}

func (s *SQLStore) rename(ctx context.Context, tx *sql.Tx, src, dst string) error {
	var one int
	err := tx.QueryRowContext(ctx,
		s.q("SELECT 1 FROM %s WHERE key = ? AND %s%s", s.table, alive(""), s.dialect.RowLock()),
		src, s.nowNano()).Scan(&one)
	if err == sql.ErrNoRows {
		return keyError(ErrKeyNotFound, src)
	}
	if err != nil {
		return err
	}
	// Renaming a key onto itself is a no-op; purging dst first would destroy
	// the very rows being moved.
	if src == dst {
		return nil
	}
	if err := s.deleteAllKeyData(ctx, tx, dst); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, s.q("DELETE FROM %s WHERE key = ?", s.table), dst); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		s.q("UPDATE %s SET key = ? WHERE key = ?", s.table), dst, src); err != nil {
		return err
	}
	for _, suffix := range allAuxSuffixes {
		if _, err := tx.ExecContext(ctx,
			s.q("UPDATE %s%s SET key = ? WHERE key = ?", s.table, suffix), dst, src); err != nil {
			return err
		}
	}
	return nil
}
