package kv

import (
	"context"
	"database/sql"
	"math/rand/v2"
)

// setMembers returns the encoded members of a live set, ordered for
// deterministic results.
func (s *SQLStore) setMembers(ctx context.Context, tx *sql.Tx, key string) ([][]byte, error) {
	rows, err := tx.QueryContext(ctx,
		s.q(`SELECT t.member FROM %s_sets t JOIN %s m ON m.key = t.key
			WHERE t.key = ? AND m.type = ? AND %s ORDER BY t.member`,
			s.table, s.table, alive("m")),
		key, typeSet, s.nowNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

// SAdd adds members to the set at key, creating or converting the key as
// needed. Returns how many members were newly added.
func (s *SQLStore) SAdd(ctx context.Context, key string, members ...any) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	encoded, err := s.encodeAll(members)
	if err != nil {
		return 0, err
	}
	var added int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeSet); err != nil {
			return err
		}
		for _, enc := range encoded {
			res, err := tx.ExecContext(ctx,
				s.q(`INSERT INTO %s_sets (key, member) VALUES (?, ?)
					ON CONFLICT (key, member) DO NOTHING`, s.table),
				key, enc)
			if err != nil {
				return err
			}
			n, err := res.RowsAffected()
			if err != nil {
				return err
			}
			added += n
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// SCard returns the cardinality of the set; zero when the key is absent.
func (s *SQLStore) SCard(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			s.q(`SELECT COUNT(*) FROM %s_sets t JOIN %s m ON m.key = t.key
				WHERE t.key = ? AND m.type = ? AND %s`,
				s.table, s.table, alive("m")),
			key, typeSet, s.nowNano()).Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// SIsMember reports whether member is in the set at key.
func (s *SQLStore) SIsMember(ctx context.Context, key string, member any) (bool, error) {
	enc, err := s.codec.Encode(member)
	if err != nil {
		return false, err
	}
	var found bool
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			s.q(`SELECT 1 FROM %s_sets t JOIN %s m ON m.key = t.key
				WHERE t.key = ? AND t.member = ? AND m.type = ? AND %s`,
				s.table, s.table, alive("m")),
			key, enc, typeSet, s.nowNano()).Scan(&one)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, err
}

// SMIsMember reports membership for each given member, aligned by position.
func (s *SQLStore) SMIsMember(ctx context.Context, key string, members ...any) ([]bool, error) {
	out := make([]bool, len(members))
	if len(members) == 0 {
		return out, nil
	}
	encoded, err := s.encodeAll(members)
	if err != nil {
		return nil, err
	}
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		present, err := s.setMembers(ctx, tx, key)
		if err != nil {
			return err
		}
		have := make(map[string]struct{}, len(present))
		for _, raw := range present {
			have[string(raw)] = struct{}{}
		}
		for i, enc := range encoded {
			_, out[i] = have[string(enc)]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SMembers returns every member of the set.
func (s *SQLStore) SMembers(ctx context.Context, key string) ([]any, error) {
	var raws [][]byte
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		raws, err = s.setMembers(ctx, tx, key)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.decodeRows(raws)
}

// SRandMember returns one random member without removing it.
func (s *SQLStore) SRandMember(ctx context.Context, key string) (bool, any, error) {
	vals, err := s.SRandMemberN(ctx, key, 1)
	if err != nil || len(vals) == 0 {
		return false, nil, err
	}
	return true, vals[0], nil
}

// SRandMemberN returns random members without removal. A positive count
// returns up to count distinct members; a negative count returns exactly
// -count draws with repetition.
func (s *SQLStore) SRandMemberN(ctx context.Context, key string, count int64) ([]any, error) {
	if count == 0 {
		return nil, nil
	}
	var raws [][]byte
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var err error
		raws, err = s.setMembers(ctx, tx, key)
		return err
	})
	if err != nil || len(raws) == 0 {
		return nil, err
	}
	if count < 0 {
		picked := make([][]byte, -count)
		for i := range picked {
			picked[i] = raws[rand.IntN(len(raws))]
		}
		return s.decodeRows(picked)
	}
	rand.Shuffle(len(raws), func(i, j int) { raws[i], raws[j] = raws[j], raws[i] })
	if count < int64(len(raws)) {
		raws = raws[:count]
	}
	return s.decodeRows(raws)
}

// SPop removes and returns one random member.
func (s *SQLStore) SPop(ctx context.Context, key string) (bool, any, error) {
	vals, err := s.SPopN(ctx, key, 1)
	if err != nil || len(vals) == 0 {
		return false, nil, err
	}
	return true, vals[0], nil
}

// SPopN removes and returns up to count distinct random members.
func (s *SQLStore) SPopN(ctx context.Context, key string, count int64) ([]any, error) {
	if count <= 0 {
		return nil, nil
	}
	var picked [][]byte
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		raws, err := s.setMembers(ctx, tx, key)
		if err != nil || len(raws) == 0 {
			return err
		}
		rand.Shuffle(len(raws), func(i, j int) { raws[i], raws[j] = raws[j], raws[i] })
		if count < int64(len(raws)) {
			raws = raws[:count]
		}
		for _, raw := range raws {
			if _, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_sets WHERE key = ? AND member = ?", s.table),
				key, raw); err != nil {
				return err
			}
		}
		picked = raws
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.decodeRows(picked)
}

// SRem removes the given members, returning how many were present.
func (s *SQLStore) SRem(ctx context.Context, key string, members ...any) (int64, error) {
	if len(members) == 0 {
		return 0, nil
	}
	encoded, err := s.encodeAll(members)
	if err != nil {
		return 0, err
	}
	var removed int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		live, err := s.keyLive(ctx, tx, key, typeSet)
		if err != nil || !live {
			return err
		}
		for _, enc := range encoded {
			res, err := tx.ExecContext(ctx,
				s.q("DELETE FROM %s_sets WHERE key = ? AND member = ?", s.table),
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

// SMove moves member from src to dst atomically, reporting whether the
// member was found in src.
func (s *SQLStore) SMove(ctx context.Context, src, dst string, member any) (bool, error) {
	enc, err := s.codec.Encode(member)
	if err != nil {
		return false, err
	}
	var moved bool
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		live, err := s.keyLive(ctx, tx, src, typeSet)
		if err != nil || !live {
			return err
		}
		res, err := tx.ExecContext(ctx,
			s.q("DELETE FROM %s_sets WHERE key = ? AND member = ?", s.table),
			src, enc)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if err := s.ensureKey(ctx, tx, dst, typeSet); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO %s_sets (key, member) VALUES (?, ?)
				ON CONFLICT (key, member) DO NOTHING`, s.table),
			dst, enc); err != nil {
			return err
		}
		moved = true
		return nil
	})
	return moved, err
}

// setOp combines the member sets of several keys. ordered holds each key's
// members in stored order; lookups holds the same members as hash sets.
type setOp func(lookups []map[string]struct{}, ordered [][][]byte) [][]byte

// readSets loads the members of every key, both in order and as lookup sets.
func (s *SQLStore) readSets(ctx context.Context, tx *sql.Tx, keys []string) ([]map[string]struct{}, [][][]byte, error) {
	ordered := make([][][]byte, 0, len(keys))
	lookups := make([]map[string]struct{}, 0, len(keys))
	for _, key := range keys {
		raws, err := s.setMembers(ctx, tx, key)
		if err != nil {
			return nil, nil, err
		}
		have := make(map[string]struct{}, len(raws))
		for _, raw := range raws {
			have[string(raw)] = struct{}{}
		}
		ordered = append(ordered, raws)
		lookups = append(lookups, have)
	}
	return lookups, ordered, nil
}

// setAlgebra reads the member sets of keys inside one transaction and
// combines them with op, preserving the first key's member order.
func (s *SQLStore) setAlgebra(ctx context.Context, keys []string, op setOp) ([][]byte, error) {
	var result [][]byte
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		lookups, ordered, err := s.readSets(ctx, tx, keys)
		if err != nil {
			return err
		}
		result = op(lookups, ordered)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func diffOp(lookups []map[string]struct{}, ordered [][][]byte) [][]byte {
	var out [][]byte
	for _, raw := range ordered[0] {
		inOther := false
		for _, other := range lookups[1:] {
			if _, ok := other[string(raw)]; ok {
				inOther = true
				break
			}
		}
		if !inOther {
			out = append(out, raw)
		}
	}
	return out
}

func interOp(lookups []map[string]struct{}, ordered [][][]byte) [][]byte {
	var out [][]byte
	for _, raw := range ordered[0] {
		inAll := true
		for _, other := range lookups[1:] {
			if _, ok := other[string(raw)]; !ok {
				inAll = false
				break
			}
		}
		if inAll {
			out = append(out, raw)
		}
	}
	return out
}

func unionOp(_ []map[string]struct{}, ordered [][][]byte) [][]byte {
	seen := make(map[string]struct{})
	var out [][]byte
	for _, raws := range ordered {
		for _, raw := range raws {
			if _, ok := seen[string(raw)]; ok {
				continue
			}
			seen[string(raw)] = struct{}{}
			out = append(out, raw)
		}
	}
	return out
}

// SDiff returns the members of the first set that are in none of the others.
func (s *SQLStore) SDiff(ctx context.Context, keys ...string) ([]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raws, err := s.setAlgebra(ctx, keys, diffOp)
	if err != nil {
		return nil, err
	}
	return s.decodeRows(raws)
}

// SDiffStore stores the difference into dst, replacing whatever it held.
// An empty result leaves dst deleted rather than as an empty set.
func (s *SQLStore) SDiffStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return s.storeAlgebra(ctx, dst, keys, diffOp)
}

// SInter returns the members common to every given set.
func (s *SQLStore) SInter(ctx context.Context, keys ...string) ([]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raws, err := s.setAlgebra(ctx, keys, interOp)
	if err != nil {
		return nil, err
	}
	return s.decodeRows(raws)
}

// SInterStore stores the intersection into dst, replacing whatever it held.
func (s *SQLStore) SInterStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return s.storeAlgebra(ctx, dst, keys, interOp)
}

// SUnion returns the members present in any of the given sets.
func (s *SQLStore) SUnion(ctx context.Context, keys ...string) ([]any, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	raws, err := s.setAlgebra(ctx, keys, unionOp)
	if err != nil {
		return nil, err
	}
	return s.decodeRows(raws)
}

// SUnionStore stores the union into dst, replacing whatever it held.
func (s *SQLStore) SUnionStore(ctx context.Context, dst string, keys ...string) (int64, error) {
	return s.storeAlgebra(ctx, dst, keys, unionOp)
}

// storeAlgebra computes the combination inside the same transaction that
// replaces dst, so readers never observe a half-written destination. dst is
// always destroyed first; it is recreated only when the result is
// non-empty.
func (s *SQLStore) storeAlgebra(ctx context.Context, dst string, keys []string, op setOp) (int64, error) {
	var count int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		lookups, ordered, err := s.readSets(ctx, tx, keys)
		if err != nil {
			return err
		}
		var result [][]byte
		if len(keys) > 0 {
			result = op(lookups, ordered)
		}
		if err := s.deleteAllKeyData(ctx, tx, dst); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			s.q("DELETE FROM %s WHERE key = ?", s.table), dst); err != nil {
			return err
		}
		if len(result) == 0 {
			return nil
		}
		if err := s.ensureKey(ctx, tx, dst, typeSet); err != nil {
			return err
		}
		for _, raw := range result {
			if _, err := tx.ExecContext(ctx,
				s.q("INSERT INTO %s_sets (key, member) VALUES (?, ?)", s.table),
				dst, raw); err != nil {
				return err
			}
		}
		count = int64(len(result))
		return nil
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}
