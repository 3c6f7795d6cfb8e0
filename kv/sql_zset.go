package kv

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Sorted sets order by (score, member), member bytes breaking score ties,
// matching the remote engine's lexicographic tiebreak.

type zRow struct {
	raw   []byte
	score float64
}

// scoreBound is one parsed end of a score range.
type scoreBound struct {
	value     float64
	exclusive bool
	unbounded bool
}

// parseScoreBound parses the remote-cache bound syntax: a float, "-inf",
// "+inf"/"inf", or a "(" prefix marking the bound exclusive.
func parseScoreBound(s string) (scoreBound, error) {
	var b scoreBound
	raw := s
	if strings.HasPrefix(raw, "(") {
		b.exclusive = true
		raw = raw[1:]
	}
	switch strings.ToLower(raw) {
	case "-inf", "+inf", "inf":
		b.unbounded = true
		return b, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return b, fmt.Errorf("kv: invalid score bound %q", s)
	}
	if math.IsInf(v, 0) {
		b.unbounded = true
		return b, nil
	}
	b.value = v
	return b, nil
}

// scoreCond builds the SQL conditions for a min/max score range. Unbounded
// ends produce no condition at all, so infinities never travel through the
// driver.
func scoreCond(min, max string) (string, []any, error) {
	lo, err := parseScoreBound(min)
	if err != nil {
		return "", nil, err
	}
	hi, err := parseScoreBound(max)
	if err != nil {
		return "", nil, err
	}
	var cond strings.Builder
	var args []any
	if !lo.unbounded {
		op := " AND t.score >= ?"
		if lo.exclusive {
			op = " AND t.score > ?"
		}
		cond.WriteString(op)
		args = append(args, lo.value)
	}
	if !hi.unbounded {
		op := " AND t.score <= ?"
		if hi.exclusive {
			op = " AND t.score < ?"
		}
		cond.WriteString(op)
		args = append(args, hi.value)
	}
	return cond.String(), args, nil
}

// zRows returns the live rows of a sorted set in (score, member) order,
// reversed when desc.
func (s *SQLStore) zRows(ctx context.Context, tx *sql.Tx, key string, desc bool) ([]zRow, error) {
	order := "t.score, t.member"
	if desc {
		order = "t.score DESC, t.member DESC"
	}
	rows, err := tx.QueryContext(ctx,
		s.q(`SELECT t.member, t.score FROM %s_zsets t JOIN %s m ON m.key = t.key
			WHERE t.key = ? AND m.type = ? AND %s ORDER BY `+order,
			s.table, s.table, alive("m")),
		key, typeZSet, s.nowNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []zRow
	for rows.Next() {
		var r zRow
		if err := rows.Scan(&r.raw, &r.score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) decodeZ(rows []zRow) ([]Z, error) {
	out := make([]Z, len(rows))
	for i, r := range rows {
		v, err := s.codec.Decode(r.raw)
		if err != nil {
			return nil, err
		}
		out[i] = Z{Score: r.score, Member: v}
	}
	return out, nil
}

func members(zs []Z) []any {
	out := make([]any, len(zs))
	for i, z := range zs {
		out[i] = z.Member
	}
	return out
}

// ZAdd adds members with their scores, updating scores of existing members.
// Returns the number of members newly added.
func (s *SQLStore) ZAdd(ctx context.Context, key string, members ...Z) (int64, error) {
	return s.ZAddWithArgs(ctx, key, ZAddArgs{}, members...)
}

// ZAddWithArgs is ZAdd with per-member update rules. NX never updates
// existing members; XX never creates new ones; GT/LT update only when the
// new score is greater/less than the current one, and both together mean
// never update. With CH the return counts changed members (added plus
// score-updated) instead of just added ones. Each member's current score is
// read under a row lock so concurrent flag decisions serialize.
func (s *SQLStore) ZAddWithArgs(ctx context.Context, key string, args ZAddArgs, zmembers ...Z) (int64, error) {
	if len(zmembers) == 0 {
		return 0, nil
	}
	if args.NX && (args.XX || args.GT || args.LT) {
		return 0, fmt.Errorf("kv: ZAdd NX is incompatible with XX, GT and LT")
	}
	encoded := make([][]byte, len(zmembers))
	for i, z := range zmembers {
		enc, err := s.codec.Encode(z.Member)
		if err != nil {
			return 0, err
		}
		encoded[i] = enc
	}
	var added, changed int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeZSet); err != nil {
			return err
		}
		for i, z := range zmembers {
			var cur float64
			err := tx.QueryRowContext(ctx,
				s.q("SELECT score FROM %s_zsets WHERE key = ? AND member = ?%s",
					s.table, s.dialect.RowLock()),
				key, encoded[i]).Scan(&cur)
			switch {
			case err == sql.ErrNoRows:
				if args.XX {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					s.q("INSERT INTO %s_zsets (key, member, score) VALUES (?, ?, ?)", s.table),
					key, encoded[i], z.Score); err != nil {
					return err
				}
				added++
				changed++
			case err != nil:
				return err
			default:
				if args.NX || (args.GT && args.LT) {
					continue
				}
				if args.GT && z.Score <= cur {
					continue
				}
				if args.LT && z.Score >= cur {
					continue
				}
				if z.Score == cur {
					continue
				}
				if _, err := tx.ExecContext(ctx,
					s.q("UPDATE %s_zsets SET score = ? WHERE key = ? AND member = ?", s.table),
					z.Score, key, encoded[i]); err != nil {
					return err
				}
				changed++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	if args.CH {
		return changed, nil
	}
	return added, nil
}

// ZCard returns the number of members; zero when the key is absent.
func (s *SQLStore) ZCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			s.q(`SELECT COUNT(*) FROM %s_zsets t JOIN %s m ON m.key = t.key
				WHERE t.key = ? AND m.type = ? AND %s`,
				s.table, s.table, alive("m")),
			key, typeZSet, s.nowNano()).Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ZCount returns how many members have scores within the given bounds.
func (s *SQLStore) ZCount(ctx context.Context, key, min, max string) (int64, error) {
	cond, condArgs, err := scoreCond(min, max)
	if err != nil {
		return 0, err
	}
	var n int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		args := append([]any{key, typeZSet, s.nowNano()}, condArgs...)
		return tx.QueryRowContext(ctx,
			s.q(`SELECT COUNT(*) FROM %s_zsets t JOIN %s m ON m.key = t.key
				WHERE t.key = ? AND m.type = ? AND %s`+cond,
				s.table, s.table, alive("m")),
			args...).Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ZIncrBy adds delta to the member's score, creating the key and member as
// needed, and returns the new score.
func (s *SQLStore) ZIncrBy(ctx context.Context, key string, delta float64, member any) (float64, error) {
	enc, err := s.codec.Encode(member)
	if err != nil {
		return 0, err
	}
	var result float64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeZSet); err != nil {
			return err
		}
		var cur float64
		err := tx.QueryRowContext(ctx,
			s.q("SELECT score FROM %s_zsets WHERE key = ? AND member = ?%s",
				s.table, s.dialect.RowLock()),
			key, enc).Scan(&cur)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		result = cur + delta
		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO %s_zsets (key, member, score) VALUES (?, ?, ?)
				ON CONFLICT (key, member) DO UPDATE SET score = excluded.score`, s.table),
			key, enc, result)
		return err
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

func (s *SQLStore) zPop(ctx context.Context, key string, count int64, desc bool) ([]Z, error) {
	if count <= 0 {
		return nil, nil
	}
	var popped []zRow
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.zRows(ctx, tx, key, desc)
		if err != nil {
			return err
		}
		if count < int64(len(rows)) {
			rows = rows[:count]
		}
		for _, r := range rows {
			if _, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_zsets WHERE key = ? AND member = ?", s.table),
				key, r.raw); err != nil {
				return err
			}
		}
		popped = rows
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.decodeZ(popped)
}

// ZPopMin removes and returns up to count members with the lowest scores.
func (s *SQLStore) ZPopMin(ctx context.Context, key string, count int64) ([]Z, error) {
	return s.zPop(ctx, key, count, false)
}

// ZPopMax removes and returns up to count members with the highest scores.
func (s *SQLStore) ZPopMax(ctx context.Context, key string, count int64) ([]Z, error) {
	return s.zPop(ctx, key, count, true)
}

func (s *SQLStore) zRange(ctx context.Context, key string, start, stop int64, desc bool) ([]Z, error) {
	var out []Z
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.zRows(ctx, tx, key, desc)
		if err != nil {
			return err
		}
		lo, hi, ok := normalizeRange(start, stop, int64(len(rows)))
		if !ok {
			return nil
		}
		out, err = s.decodeZ(rows[lo : hi+1])
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ZRange returns the members between rank start and stop inclusive, lowest
// scores first; negative ranks count from the end.
func (s *SQLStore) ZRange(ctx context.Context, key string, start, stop int64) ([]any, error) {
	zs, err := s.zRange(ctx, key, start, stop, false)
	if err != nil {
		return nil, err
	}
	return members(zs), nil
}

// ZRangeWithScores is ZRange keeping the scores.
func (s *SQLStore) ZRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error) {
	return s.zRange(ctx, key, start, stop, false)
}

// ZRevRange is ZRange with highest scores first.
func (s *SQLStore) ZRevRange(ctx context.Context, key string, start, stop int64) ([]any, error) {
	zs, err := s.zRange(ctx, key, start, stop, true)
	if err != nil {
		return nil, err
	}
	return members(zs), nil
}

// ZRevRangeWithScores is ZRevRange keeping the scores.
func (s *SQLStore) ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) ([]Z, error) {
	return s.zRange(ctx, key, start, stop, true)
}

func (s *SQLStore) zRangeByScore(ctx context.Context, key string, by RangeBy, desc bool) ([]Z, error) {
	cond, condArgs, err := scoreCond(by.Min, by.Max)
	if err != nil {
		return nil, err
	}
	order := "t.score, t.member"
	if desc {
		order = "t.score DESC, t.member DESC"
	}
	limit := ""
	if by.Count > 0 || by.Offset > 0 {
		limit = " LIMIT ? OFFSET ?"
	}
	var collected []zRow
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		args := append([]any{key, typeZSet, s.nowNano()}, condArgs...)
		if limit != "" {
			count := by.Count
			if count <= 0 {
				count = math.MaxInt64
			}
			args = append(args, count, by.Offset)
		}
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT t.member, t.score FROM %s_zsets t JOIN %s m ON m.key = t.key
				WHERE t.key = ? AND m.type = ? AND %s`+cond+` ORDER BY `+order+limit,
				s.table, s.table, alive("m")),
			args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var r zRow
			if err := rows.Scan(&r.raw, &r.score); err != nil {
				return err
			}
			collected = append(collected, r)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return s.decodeZ(collected)
}

// ZRangeByScore returns the members whose scores fall within by, lowest
// first. Min and Max use the bound syntax documented on RangeBy.
func (s *SQLStore) ZRangeByScore(ctx context.Context, key string, by RangeBy) ([]any, error) {
	zs, err := s.zRangeByScore(ctx, key, by, false)
	if err != nil {
		return nil, err
	}
	return members(zs), nil
}

// ZRangeByScoreWithScores is ZRangeByScore keeping the scores.
func (s *SQLStore) ZRangeByScoreWithScores(ctx context.Context, key string, by RangeBy) ([]Z, error) {
	return s.zRangeByScore(ctx, key, by, false)
}

// ZRevRangeByScore is ZRangeByScore with highest scores first.
func (s *SQLStore) ZRevRangeByScore(ctx context.Context, key string, by RangeBy) ([]any, error) {
	zs, err := s.zRangeByScore(ctx, key, by, true)
	if err != nil {
		return nil, err
	}
	return members(zs), nil
}

// ZRevRangeByScoreWithScores is ZRevRangeByScore keeping the scores.
func (s *SQLStore) ZRevRangeByScoreWithScores(ctx context.Context, key string, by RangeBy) ([]Z, error) {
	return s.zRangeByScore(ctx, key, by, true)
}

func (s *SQLStore) zRank(ctx context.Context, key string, member any, desc bool) (int64, bool, error) {
	enc, err := s.codec.Encode(member)
	if err != nil {
		return 0, false, err
	}
	var rank int64
	var found bool
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.zRows(ctx, tx, key, desc)
		if err != nil {
			return err
		}
		for i, r := range rows {
			if bytes.Equal(r.raw, enc) {
				rank = int64(i)
				found = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return rank, found, nil
}

// ZRank returns the member's rank counting from the lowest score.
func (s *SQLStore) ZRank(ctx context.Context, key string, member any) (int64, bool, error) {
	return s.zRank(ctx, key, member, false)
}

// ZRevRank returns the member's rank counting from the highest score.
func (s *SQLStore) ZRevRank(ctx context.Context, key string, member any) (int64, bool, error) {
	return s.zRank(ctx, key, member, true)
}

// ZRem removes the given members, returning how many were present.
func (s *SQLStore) ZRem(ctx context.Context, key string, zmembers ...any) (int64, error) {
	if len(zmembers) == 0 {
		return 0, nil
	}
	encoded, err := s.encodeAll(zmembers)
	if err != nil {
		return 0, err
	}
	var removed int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		live, err := s.keyLive(ctx, tx, key, typeZSet)
		if err != nil || !live {
			return err
		}
		for _, enc := range encoded {
			res, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_zsets WHERE key = ? AND member = ?", s.table),
				key, enc)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			removed += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ZRemRangeByScore removes every member with a score within the bounds,
// returning how many were removed.
func (s *SQLStore) ZRemRangeByScore(ctx context.Context, key, min, max string) (int64, error) {
	cond, condArgs, err := scoreCond(min, max)
	if err != nil {
		return 0, err
	}
	// The score conditions are written against alias t; strip it for the
	// plain delete.
	cond = strings.ReplaceAll(cond, "t.score", "score")
	var removed int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		live, err := s.keyLive(ctx, tx, key, typeZSet)
		if err != nil || !live {
			return err
		}
		args := append([]any{key}, condArgs...)
		res, err := tx.ExecContext(ctx,
			s.q("DELETE FROM %s_zsets WHERE key = ?"+cond, s.table),
			args...)
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ZRemRangeByRank removes the members between rank start and stop inclusive,
// returning how many were removed.
func (s *SQLStore) ZRemRangeByRank(ctx context.Context, key string, start, stop int64) (int64, error) {
	var removed int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.zRows(ctx, tx, key, false)
		if err != nil {
			return err
		}
		lo, hi, ok := normalizeRange(start, stop, int64(len(rows)))
		if !ok {
			return nil
		}
		for _, r := range rows[lo : hi+1] {
			if _, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_zsets WHERE key = ? AND member = ?", s.table),
				key, r.raw); err != nil {
				return err
			}
		}
		removed = hi - lo + 1
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// ZScore returns the member's score; found=false when the member or key is
// absent.
func (s *SQLStore) ZScore(ctx context.Context, key string, member any) (float64, bool, error) {
	enc, err := s.codec.Encode(member)
	if err != nil {
		return 0, false, err
	}
	var score float64
	var found bool
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			s.q(`SELECT t.score FROM %s_zsets t JOIN %s m ON m.key = t.key
				WHERE t.key = ? AND t.member = ? AND m.type = ? AND %s`,
				s.table, s.table, alive("m")),
			key, enc, typeZSet, s.nowNano()).Scan(&score)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return 0, false, err
	}
	return score, found, nil
}

// ZMScore returns each member's score, aligned by position, with nil for
// absent members.
func (s *SQLStore) ZMScore(ctx context.Context, key string, zmembers ...any) ([]*float64, error) {
	out := make([]*float64, len(zmembers))
	if len(zmembers) == 0 {
		return out, nil
	}
	encoded, err := s.encodeAll(zmembers)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := s.zRows(ctx, tx, key, false)
		if err != nil {
			return err
		}
		byMember := make(map[string]float64, len(rows))
		for _, r := range rows {
			byMember[string(r.raw)] = r.score
		}
		for i, enc := range encoded {
			if score, ok := byMember[string(enc)]; ok {
				v := score
				out[i] = &v
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
