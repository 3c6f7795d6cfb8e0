package kv

import (
	"context"
	"database/sql"
	"fmt"
)

// hashPairs validates and splits the variadic field/value arguments of HSet.
func hashPairs(fieldvals []any) (map[string]any, error) {
	if len(fieldvals) == 0 || len(fieldvals)%2 != 0 {
		return nil, fmt.Errorf("kv: HSet requires field/value pairs, got %d arguments", len(fieldvals))
	}
	pairs := make(map[string]any, len(fieldvals)/2)
	for i := 0; i < len(fieldvals); i += 2 {
		field, ok := fieldvals[i].(string)
		if !ok {
			return nil, fmt.Errorf("kv: HSet field at position %d is %T, not string", i, fieldvals[i])
		}
		pairs[field] = fieldvals[i+1]
	}
	return pairs, nil
}

// HSet stores field/value pairs in the hash at key, creating the key (or
// converting it from another type) as needed. Returns the number of fields
// that were newly created, not merely updated.
func (s *SQLStore) HSet(ctx context.Context, key string, fieldvals ...any) (int64, error) {
	pairs, err := hashPairs(fieldvals)
	if err != nil {
		return 0, err
	}
	encoded := make(map[string][]byte, len(pairs))
	for field, v := range pairs {
		enc, err := s.codec.Encode(v)
		if err != nil {
			return 0, err
		}
		encoded[field] = enc
	}
	var created int64
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeHash); err != nil {
			return err
		}
		existing, err := s.hashFieldSet(ctx, tx, key, encoded)
		if err != nil {
			return err
		}
		for field, enc := range encoded {
			if _, ok := existing[field]; !ok {
				created++
			}
			if _, err := tx.ExecContext(ctx,
				s.q(`INSERT INTO %s_hashes (key, field, value) VALUES (?, ?, ?)
					ON CONFLICT (key, field) DO UPDATE SET value = excluded.value`, s.table),
				key, field, enc); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return created, nil
}

// hashFieldSet returns which of the given fields already exist for key.
func (s *SQLStore) hashFieldSet(ctx context.Context, tx *sql.Tx, key string, fields map[string][]byte) (map[string]struct{}, error) {
	args := make([]any, 0, len(fields)+1)
	args = append(args, key)
	for field := range fields {
		args = append(args, field)
	}
	rows, err := tx.QueryContext(ctx,
		s.q("SELECT field FROM %s_hashes WHERE key = ? AND field IN (%s)",
			s.table, placeholders(len(fields))),
		args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	existing := make(map[string]struct{}, len(fields))
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, err
		}
		existing[f] = struct{}{}
	}
	return existing, rows.Err()
}

// HSetNX stores the field only if it does not already exist in the hash,
// reporting whether it was stored.
func (s *SQLStore) HSetNX(ctx context.Context, key, field string, value any) (bool, error) {
	enc, err := s.codec.Encode(value)
	if err != nil {
		return false, err
	}
	var added bool
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeHash); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO %s_hashes (key, field, value) VALUES (?, ?, ?)
				ON CONFLICT (key, field) DO NOTHING`, s.table),
			key, field, enc)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		added = n > 0
		return nil
	})
	return added, err
}

// HGet returns the value of one hash field. Presence is the first return;
// an absent key, expired key, or missing field yields (false, nil, nil).
func (s *SQLStore) HGet(ctx context.Context, key, field string) (bool, any, error) {
	var found bool
	var value any
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx,
			s.q(`SELECT h.value FROM %s_hashes h JOIN %s m ON m.key = h.key
				WHERE h.key = ? AND h.field = ? AND m.type = ? AND %s`,
				s.table, s.table, alive("m")),
			key, field, typeHash, s.nowNano(),
		).Scan(&raw)
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

// HMGet returns the values for the given fields, aligned by position, with
// nil in place of missing fields.
func (s *SQLStore) HMGet(ctx context.Context, key string, fields ...string) ([]any, error) {
	out := make([]any, len(fields))
	if len(fields) == 0 {
		return out, nil
	}
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		args := make([]any, 0, len(fields)+3)
		args = append(args, key)
		for _, f := range fields {
			args = append(args, f)
		}
		args = append(args, typeHash, s.nowNano())
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT h.field, h.value FROM %s_hashes h JOIN %s m ON m.key = h.key
				WHERE h.key = ? AND h.field IN (%s) AND m.type = ? AND %s`,
				s.table, s.table, placeholders(len(fields)), alive("m")),
			args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		byField := make(map[string]any, len(fields))
		for rows.Next() {
			var f string
			var raw []byte
			if err := rows.Scan(&f, &raw); err != nil {
				return err
			}
			v, err := s.codec.Decode(raw)
			if err != nil {
				return err
			}
			byField[f] = v
		}
		if err := rows.Err(); err != nil {
			return err
		}
		for i, f := range fields {
			out[i] = byField[f]
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HGetAll returns every field/value of the hash; empty map when the key is
// absent.
func (s *SQLStore) HGetAll(ctx context.Context, key string) (map[string]any, error) {
	out := make(map[string]any)
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT h.field, h.value FROM %s_hashes h JOIN %s m ON m.key = h.key
				WHERE h.key = ? AND m.type = ? AND %s`,
				s.table, s.table, alive("m")),
			key, typeHash, s.nowNano())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f string
			var raw []byte
			if err := rows.Scan(&f, &raw); err != nil {
				return err
			}
			v, err := s.codec.Decode(raw)
			if err != nil {
				return err
			}
			out[f] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HDel removes the given fields, returning how many existed. Deleting the
// last field leaves an empty hash key behind, like the remote engine's key
// would disappear; callers that care can Delete the key.
func (s *SQLStore) HDel(ctx context.Context, key string, fields ...string) (int64, error) {
	if len(fields) == 0 {
		return 0, nil
	}
	var deleted int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		live, err := s.keyLive(ctx, tx, key, typeHash)
		if err != nil || !live {
			return err
		}
		args := make([]any, 0, len(fields)+1)
		args = append(args, key)
		for _, f := range fields {
			args = append(args, f)
		}
		res, err := tx.ExecContext(ctx,
			s.q("DELETE FROM %s_hashes WHERE key = ? AND field IN (%s)",
				s.table, placeholders(len(fields))),
			args...)
		if err != nil {
			return err
		}
		deleted, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

// HExists reports whether the field exists in the hash at key.
func (s *SQLStore) HExists(ctx context.Context, key, field string) (bool, error) {
	found, _, err := s.HGet(ctx, key, field)
	return found, err
}

// HLen returns the number of fields in the hash; zero when the key is
// absent.
func (s *SQLStore) HLen(ctx context.Context, key string) (int64, error) {
	var n int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		return tx.QueryRowContext(ctx,
			s.q(`SELECT COUNT(*) FROM %s_hashes h JOIN %s m ON m.key = h.key
				WHERE h.key = ? AND m.type = ? AND %s`,
				s.table, s.table, alive("m")),
			key, typeHash, s.nowNano()).Scan(&n)
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// HKeys returns the field names of the hash, sorted.
func (s *SQLStore) HKeys(ctx context.Context, key string) ([]string, error) {
	var out []string
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT h.field FROM %s_hashes h JOIN %s m ON m.key = h.key
				WHERE h.key = ? AND m.type = ? AND %s ORDER BY h.field`,
				s.table, s.table, alive("m")),
			key, typeHash, s.nowNano())
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var f string
			if err := rows.Scan(&f); err != nil {
				return err
			}
			out = append(out, f)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HVals returns the values of the hash, ordered by field name.
func (s *SQLStore) HVals(ctx context.Context, key string) ([]any, error) {
	var out []any
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			s.q(`SELECT h.value FROM %s_hashes h JOIN %s m ON m.key = h.key
				WHERE h.key = ? AND m.type = ? AND %s ORDER BY h.field`,
				s.table, s.table, alive("m")),
			key, typeHash, s.nowNano())
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

// HIncrBy atomically adds delta to the integer stored at field, creating key
// and field as needed. The field's current value is locked for the duration
// of the transaction, so concurrent increments serialize.
func (s *SQLStore) HIncrBy(ctx context.Context, key, field string, delta int64) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeHash); err != nil {
			return err
		}
		var raw []byte
		err := tx.QueryRowContext(ctx,
			s.q("SELECT value FROM %s_hashes WHERE key = ? AND field = ?%s",
				s.table, s.dialect.RowLock()),
			key, field).Scan(&raw)
		switch {
		case err == sql.ErrNoRows:
			result = delta
		case err != nil:
			return err
		default:
			v, derr := s.codec.Decode(raw)
			if derr != nil {
				return keyError(ErrNotAnInteger, key)
			}
			cur, ok := v.(int64)
			if !ok {
				return keyError(ErrNotAnInteger, key)
			}
			result = cur + delta
		}
		enc, err := s.codec.Encode(result)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO %s_hashes (key, field, value) VALUES (?, ?, ?)
				ON CONFLICT (key, field) DO UPDATE SET value = excluded.value`, s.table),
			key, field, enc)
		return err
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// HIncrByFloat is HIncrBy for float deltas. Integer-stored fields are
// promoted to floats on first float increment.
func (s *SQLStore) HIncrByFloat(ctx context.Context, key, field string, delta float64) (float64, error) {
	var result float64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeHash); err != nil {
			return err
		}
		var raw []byte
		err := tx.QueryRowContext(ctx,
			s.q("SELECT value FROM %s_hashes WHERE key = ? AND field = ?%s",
				s.table, s.dialect.RowLock()),
			key, field).Scan(&raw)
		switch {
		case err == sql.ErrNoRows:
			result = delta
		case err != nil:
			return err
		default:
			v, derr := s.codec.Decode(raw)
			if derr != nil {
				return keyError(ErrNotAnInteger, key)
			}
			switch cur := v.(type) {
			case int64:
				result = float64(cur) + delta
			case float64:
				result = cur + delta
			default:
				return keyError(ErrNotAnInteger, key)
			}
		}
		enc, err := s.codec.Encode(result)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			s.q(`INSERT INTO %s_hashes (key, field, value) VALUES (?, ?, ?)
				ON CONFLICT (key, field) DO UPDATE SET value = excluded.value`, s.table),
			key, field, enc)
		return err
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}
