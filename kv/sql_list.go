package kv

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
)

// Lists are stored as sparse integer positions: head pushes allocate
// min(pos)-1, tail pushes max(pos)+1, and only inserts in the middle ever
// renumber anything. Logical indexes are resolved by ordering on pos.

type listRow struct {
	pos int64
	raw []byte
}

// listRows returns the live list rows for key in head-to-tail order.
func (s *SQLStore) listRows(ctx context.Context, tx *sql.Tx, key string) ([]listRow, error) {
	rows, err := tx.QueryContext(ctx,
		s.q(`SELECT l.pos, l.value FROM %s_lists l JOIN %s m ON m.key = l.key
			WHERE l.key = ? AND m.type = ? AND %s ORDER BY l.pos`,
			s.table, s.table, alive("m")),
		key, typeList, s.nowNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []listRow
	for rows.Next() {
		var r listRow
		if err := rows.Scan(&r.pos, &r.raw); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// listBounds returns the element count and the position range of a live
// list. min and max are meaningful only when n > 0.
func (s *SQLStore) listBounds(ctx context.Context, tx *sql.Tx, key string) (n, min, max int64, err error) {
	var minN, maxN sql.NullInt64
	err = tx.QueryRowContext(ctx,
		s.q(`SELECT COUNT(*), MIN(l.pos), MAX(l.pos)
			FROM %s_lists l JOIN %s m ON m.key = l.key
			WHERE l.key = ? AND m.type = ? AND %s`,
			s.table, s.table, alive("m")),
		key, typeList, s.nowNano()).Scan(&n, &minN, &maxN)
	return n, minN.Int64, maxN.Int64, err
}

// normalizeRange resolves Redis-style start/stop (negatives count from the
// tail) against length n, returning ok=false for an empty result.
func normalizeRange(start, stop, n int64) (int64, int64, bool) {
	if start < 0 {
		start += n
	}
	if stop < 0 {
		stop += n
	}
	if start < 0 {
		start = 0
	}
	if stop >= n {
		stop = n - 1
	}
	if n == 0 || start > stop || start >= n || stop < 0 {
		return 0, 0, false
	}
	return start, stop, true
}

func (s *SQLStore) push(ctx context.Context, key string, head bool, values []any) (int64, error) {
	if len(values) == 0 {
		return 0, nil
	}
	encoded, err := s.encodeAll(values)
	if err != nil {
		return 0, err
	}
	var length int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeList); err != nil {
			return err
		}
		n, min, max, err := s.listBounds(ctx, tx, key)
		if err != nil {
			return err
		}
		for i, enc := range encoded {
			var pos int64
			if head {
				pos = min - int64(i) - 1
				if n == 0 {
					pos = -int64(i) - 1
				}
			} else {
				pos = max + int64(i) + 1
				if n == 0 {
					pos = int64(i)
				}
			}
			if _, err := tx.ExecContext(ctx,
				s.q("INSERT INTO %s_lists (key, pos, value) VALUES (?, ?, ?)", s.table),
				key, pos, enc); err != nil {
				return err
			}
		}
		length = n + int64(len(encoded))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return length, nil
}

// LPush prepends values to the list at key, first argument ending up
// innermost, like the remote engine. Returns the resulting length.
func (s *SQLStore) LPush(ctx context.Context, key string, values ...any) (int64, error) {
	return s.push(ctx, key, true, values)
}

// RPush appends values to the list at key and returns the resulting length.
func (s *SQLStore) RPush(ctx context.Context, key string, values ...any) (int64, error) {
	return s.push(ctx, key, false, values)
}

// pop removes up to count elements from one end. Results come back in pop
// order: head-first for the left end, tail-first for the right end.
func (s *SQLStore) pop(ctx context.Context, key string, head bool, count int64) ([]any, error) {
	if count <= 0 {
		return nil, nil
	}
	order := "DESC"
	if head {
		order = "ASC"
	}
	var out []any
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT l.pos, l.value FROM %s_lists l JOIN %s m ON m.key = l.key
				WHERE l.key = ? AND m.type = ? AND %s ORDER BY l.pos `+order+` LIMIT ?`,
				s.table, s.table, alive("m")),
			key, typeList, s.nowNano(), count)
		if err != nil {
			return err
		}
		var popped []listRow
		for rows.Next() {
			var r listRow
			if err := rows.Scan(&r.pos, &r.raw); err != nil {
				rows.Close()
				return err
			}
			popped = append(popped, r)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}
		for _, r := range popped {
			if _, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_lists WHERE key = ? AND pos = ?", s.table),
				key, r.pos); err != nil {
				return err
			}
			v, err := s.codec.Decode(r.raw)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LPop removes and returns the head element; (false, nil, nil) when the list
// is empty or absent.
func (s *SQLStore) LPop(ctx context.Context, key string) (bool, any, error) {
	vals, err := s.pop(ctx, key, true, 1)
	if err != nil || len(vals) == 0 {
		return false, nil, err
	}
	return true, vals[0], nil
}

// LPopCount removes and returns up to count head elements, head-first.
func (s *SQLStore) LPopCount(ctx context.Context, key string, count int64) ([]any, error) {
	return s.pop(ctx, key, true, count)
}

// RPop removes and returns the tail element.
func (s *SQLStore) RPop(ctx context.Context, key string) (bool, any, error) {
	vals, err := s.pop(ctx, key, false, 1)
	if err != nil || len(vals) == 0 {
		return false, nil, err
	}
	return true, vals[0], nil
}

// RPopCount removes and returns up to count tail elements, tail-first.
func (s *SQLStore) RPopCount(ctx context.Context, key string, count int64) ([]any, error) {
	return s.pop(ctx, key, false, count)
}

// LRange returns the elements between start and stop inclusive, with
// negative indexes counting from the tail.
func (s *SQLStore) LRange(ctx context.Context, key string, start, stop int64) ([]any, error) {
	var out []any
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		n, _, _, err := s.listBounds(ctx, tx, key)
		if err != nil {
			return err
		}
		lo, hi, ok := normalizeRange(start, stop, n)
		if !ok {
			return nil
		}
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT l.value FROM %s_lists l JOIN %s m ON m.key = l.key
				WHERE l.key = ? AND m.type = ? AND %s ORDER BY l.pos LIMIT ? OFFSET ?`,
				s.table, s.table, alive("m")),
			key, typeList, s.nowNano(), hi-lo+1, lo)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var raw []byte
			if err := rows.Scan(&raw); err != nil {
				return err
			}
			v, err := s.codec.Decode(raw)
			if err != nil {
				return err
			}
			out = append(out, v)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// LIndex returns the element at the given logical index; negative indexes
// count from the tail.
func (s *SQLStore) LIndex(ctx context.Context, key string, index int64) (bool, any, error) {
	var found bool
	var value any
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		n, _, _, err := s.listBounds(ctx, tx, key)
		if err != nil {
			return err
		}
		if index < 0 {
			index += n
		}
		if index < 0 || index >= n {
			return nil
		}
		var raw []byte
		err = tx.QueryRowContext(ctx,
			s.q(`SELECT l.value FROM %s_lists l JOIN %s m ON m.key = l.key
				WHERE l.key = ? AND m.type = ? AND %s ORDER BY l.pos LIMIT 1 OFFSET ?`,
				s.table, s.table, alive("m")),
			key, typeList, s.nowNano(), index).Scan(&raw)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if value, err = s.codec.Decode(raw); err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, value, err
}

// LLen returns the length of the list; zero when the key is absent.
func (s *SQLStore) LLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		n, _, _, err = s.listBounds(ctx, tx, key)
		return err
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// lposMatches finds logical indexes of elements equal to the encoded target,
// honoring rank (which match to start from; negative searches from the
// tail), maxLen (how many entries to examine from the search direction), and
// limit (how many matches to return; zero means all).
func lposMatches(rows []listRow, target []byte, rank, maxLen, limit int64) []int64 {
	if rank == 0 {
		rank = 1
	}
	n := int64(len(rows))
	scan := n
	if maxLen > 0 && maxLen < n {
		scan = maxLen
	}
	var out []int64
	if rank > 0 {
		skip := rank - 1
		for i := int64(0); i < scan; i++ {
			if !bytes.Equal(rows[i].raw, target) {
				continue
			}
			if skip > 0 {
				skip--
				continue
			}
			out = append(out, i)
			if limit > 0 && int64(len(out)) == limit {
				break
			}
		}
		return out
	}
	skip := -rank - 1
	for i := int64(0); i < scan; i++ {
		idx := n - 1 - i
		if !bytes.Equal(rows[idx].raw, target) {
			continue
		}
		if skip > 0 {
			skip--
			continue
		}
		out = append(out, idx)
		if limit > 0 && int64(len(out)) == limit {
			break
		}
	}
	return out
}

// LPos returns the logical index of the first element equal to value under
// the given rank/maxlen rules; found=false when there is no match. Equality
// is on the encoded representation, so values must round-trip to identical
// bytes to match.
func (s *SQLStore) LPos(ctx context.Context, key string, value any, args LPosArgs) (int64, bool, error) {
	matches, err := s.lpos(ctx, key, value, args, 1)
	if err != nil || len(matches) == 0 {
		return 0, false, err
	}
	return matches[0], true, nil
}

// LPosCount is LPos returning up to count matches; count zero means all.
func (s *SQLStore) LPosCount(ctx context.Context, key string, value any, count int64, args LPosArgs) ([]int64, error) {
	return s.lpos(ctx, key, value, args, count)
}

func (s *SQLStore) lpos(ctx context.Context, key string, value any, args LPosArgs, limit int64) ([]int64, error) {
	target, err := s.codec.Encode(value)
	if err != nil {
		return nil, err
	}
	var matches []int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.listRows(ctx, tx, key)
		if err != nil {
			return err
		}
		matches = lposMatches(rows, target, args.Rank, args.MaxLen, limit)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return matches, nil
}

// LMove atomically pops from one end of src and pushes to one end of dst,
// returning the moved value; (false, nil, nil) when src is empty. srcPos and
// dstPos are Left or Right. src and dst may be the same list.
func (s *SQLStore) LMove(ctx context.Context, src, dst, srcPos, dstPos string) (bool, any, error) {
	if (srcPos != Left && srcPos != Right) || (dstPos != Left && dstPos != Right) {
		return false, nil, fmt.Errorf("kv: LMove direction must be %s or %s", Left, Right)
	}
	var moved bool
	var value any
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		order := "DESC"
		if srcPos == Left {
			order = "ASC"
		}
		var r listRow
		err := tx.QueryRowContext(ctx,
			s.q(`SELECT l.pos, l.value FROM %s_lists l JOIN %s m ON m.key = l.key
				WHERE l.key = ? AND m.type = ? AND %s ORDER BY l.pos `+order+` LIMIT 1`,
				s.table, s.table, alive("m")),
			src, typeList, s.nowNano()).Scan(&r.pos, &r.raw)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.q("DELETE FROM %s_lists WHERE key = ? AND pos = ?", s.table),
			src, r.pos); err != nil {
			return err
		}
		if err := s.ensureKey(ctx, tx, dst, typeList); err != nil {
			return err
		}
		n, min, max, err := s.listBounds(ctx, tx, dst)
		if err != nil {
			return err
		}
		pos := max + 1
		if dstPos == Left {
			pos = min - 1
		}
		if n == 0 {
			pos = 0
		}
		if _, err := tx.ExecContext(ctx,
			s.q("INSERT INTO %s_lists (key, pos, value) VALUES (?, ?, ?)", s.table),
			dst, pos, r.raw); err != nil {
			return err
		}
		if value, err = s.codec.Decode(r.raw); err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, value, err
}

// LRem removes elements equal to value: the first count matches from the
// head when count > 0, the first -count from the tail when count < 0, and
// all matches when count is zero. Returns the number removed.
func (s *SQLStore) LRem(ctx context.Context, key string, count int64, value any) (int64, error) {
	target, err := s.codec.Encode(value)
	if err != nil {
		return 0, err
	}
	var removed int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.listRows(ctx, tx, key)
		if err != nil {
			return err
		}
		var victims []int64
		switch {
		case count >= 0:
			limit := count
			for _, r := range rows {
				if bytes.Equal(r.raw, target) {
					victims = append(victims, r.pos)
					if limit > 0 && int64(len(victims)) == limit {
						break
					}
				}
			}
		default:
			limit := -count
			for i := len(rows) - 1; i >= 0; i-- {
				if bytes.Equal(rows[i].raw, target) {
					victims = append(victims, rows[i].pos)
					if int64(len(victims)) == limit {
						break
					}
				}
			}
		}
		for _, pos := range victims {
			if _, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_lists WHERE key = ? AND pos = ?", s.table),
				key, pos); err != nil {
				return err
			}
		}
		removed = int64(len(victims))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// LTrim keeps only the elements between start and stop inclusive; an empty
// resolved range empties the list.
func (s *SQLStore) LTrim(ctx context.Context, key string, start, stop int64) error {
	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.listRows(ctx, tx, key)
		if err != nil {
			return err
		}
		n := int64(len(rows))
		lo, hi, ok := normalizeRange(start, stop, n)
		if !ok {
			_, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_lists WHERE key = ?", s.table), key)
			return err
		}
		if lo > 0 {
			if _, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_lists WHERE key = ? AND pos < ?", s.table),
				key, rows[lo].pos); err != nil {
				return err
			}
		}
		if hi < n-1 {
			if _, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_lists WHERE key = ? AND pos > ?", s.table),
				key, rows[hi].pos); err != nil {
				return err
			}
		}
		return nil
	})
}

// LSet replaces the element at the given logical index. Fails with
// ErrKeyNotFound when the list is absent and ErrIndexOutOfRange when the
// index does not resolve.
func (s *SQLStore) LSet(ctx context.Context, key string, index int64, value any) error {
	enc, err := s.codec.Encode(value)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.listRows(ctx, tx, key)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			return keyError(ErrKeyNotFound, key)
		}
		n := int64(len(rows))
		if index < 0 {
			index += n
		}
		if index < 0 || index >= n {
			return keyError(ErrIndexOutOfRange, key)
		}
		_, err = tx.ExecContext(ctx,
			s.q("UPDATE %s_lists SET value = ? WHERE key = ? AND pos = ?", s.table),
			enc, key, rows[index].pos)
		return err
	})
}

// LInsert inserts value before or after the first element equal to pivot.
// Returns the new length, -1 when the pivot is not found, and 0 when the
// key is absent. A position gap next to the pivot is used when available;
// otherwise the shorter side of the list is renumbered one row at a time,
// moving away from the pivot so the primary key is never violated.
func (s *SQLStore) LInsert(ctx context.Context, key, where string, pivot, value any) (int64, error) {
	if where != Before && where != After {
		return 0, fmt.Errorf("kv: LInsert position must be %s or %s", Before, After)
	}
	pivotEnc, err := s.codec.Encode(pivot)
	if err != nil {
		return 0, err
	}
	enc, err := s.codec.Encode(value)
	if err != nil {
		return 0, err
	}
	var length int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.listRows(ctx, tx, key)
		if err != nil {
			return err
		}
		if len(rows) == 0 {
			length = 0
			return nil
		}
		pivotIdx := -1
		for i, r := range rows {
			if bytes.Equal(r.raw, pivotEnc) {
				pivotIdx = i
				break
			}
		}
		if pivotIdx < 0 {
			length = -1
			return nil
		}
		pos, err := s.listSlot(ctx, tx, key, rows, pivotIdx, where == Before)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.q("INSERT INTO %s_lists (key, pos, value) VALUES (?, ?, ?)", s.table),
			key, pos, enc); err != nil {
			return err
		}
		length = int64(len(rows)) + 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return length, nil
}

// listSlot finds (or frees, by renumbering) a position adjacent to the pivot.
func (s *SQLStore) listSlot(ctx context.Context, tx *sql.Tx, key string, rows []listRow, pivotIdx int, before bool) (int64, error) {
	pivotPos := rows[pivotIdx].pos
	if before {
		if pivotIdx == 0 || pivotPos-rows[pivotIdx-1].pos > 1 {
			return pivotPos - 1, nil
		}
		// Shift the head side down by one, min first so each move lands in
		// a vacated slot.
		for i := 0; i < pivotIdx; i++ {
			if _, err := tx.ExecContext(ctx,
				s.q("UPDATE %s_lists SET pos = ? WHERE key = ? AND pos = ?", s.table),
				rows[i].pos-1, key, rows[i].pos); err != nil {
				return 0, err
			}
		}
		return pivotPos - 1, nil
	}
	if pivotIdx == len(rows)-1 || rows[pivotIdx+1].pos-pivotPos > 1 {
		return pivotPos + 1, nil
	}
	// Shift the tail side up by one, max first.
	for i := len(rows) - 1; i > pivotIdx; i-- {
		if _, err := tx.ExecContext(ctx,
			s.q("UPDATE %s_lists SET pos = ? WHERE key = ? AND pos = ?", s.table),
			rows[i].pos+1, key, rows[i].pos); err != nil {
			return 0, err
		}
	}
	return pivotPos + 1, nil
}
