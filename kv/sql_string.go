package kv

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Set stores a string value under key, replacing whatever was there before,
// including values of other types. A zero ttl deletes the key instead; the
// value is never stored.
func (s *SQLStore) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	if ttl == 0 {
		_, err := s.Delete(ctx, key)
		return err
	}
	enc, err := s.codec.Encode(value)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.ensureKey(ctx, tx, key, typeString); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			s.q("UPDATE %s SET value = ?, expires_at = ? WHERE key = ?", s.table),
			enc, s.makeExpiry(ttl), key)
		return err
	})
}

// Get returns the string value under key. The first return reports presence:
// an absent, expired, or non-string key yields (false, nil, nil).
func (s *SQLStore) Get(ctx context.Context, key string) (bool, any, error) {
	var found bool
	var value any
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx,
			s.q("SELECT value FROM %s WHERE key = ? AND type = ? AND %s", s.table, alive("")),
			key, typeString, s.nowNano(),
		).Scan(&raw)
		if err == sql.ErrNoRows || (err == nil && raw == nil) {
			return nil
		}
		if err != nil {
			return err
		}
		value, err = s.codec.Decode(raw)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	return found, value, err
}

// Add stores the value only if the key does not already exist (in any live
// type). It reports whether the value was stored. With a zero ttl nothing is
// stored; the return still reports whether the key was absent.
func (s *SQLStore) Add(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	enc, err := s.codec.Encode(value)
	if err != nil {
		return false, err
	}
	var added bool
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if err := s.purgeExpired(ctx, tx, key); err != nil {
			return err
		}
		if ttl == 0 {
			var one int
			err := tx.QueryRowContext(ctx,
				s.q("SELECT 1 FROM %s WHERE key = ?", s.table), key).Scan(&one)
			if err == sql.ErrNoRows {
				added = true
				return nil
			}
			return err
		}
		res, err := tx.ExecContext(ctx,
			s.q(`INSERT INTO %s (key, type, value, expires_at) VALUES (?, ?, ?, ?)
				ON CONFLICT (key) DO NOTHING`, s.table),
			key, typeString, enc, s.makeExpiry(ttl))
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

// SetWithArgs is the extended set: NX writes only when the key is absent, XX
// only when it is present, and Get additionally returns the previous string
// value read in the same transaction. The bool reports whether the write
// happened.
func (s *SQLStore) SetWithArgs(ctx context.Context, key string, value any, args SetArgs) (any, bool, error) {
	if args.NX && args.XX {
		return nil, false, errors.New("kv: NX and XX are mutually exclusive")
	}
	enc, err := s.codec.Encode(value)
	if err != nil {
		return nil, false, err
	}
	var old any
	var wrote bool
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		if args.Get {
			var raw []byte
			err := tx.QueryRowContext(ctx,
				s.q("SELECT value FROM %s WHERE key = ? AND type = ? AND %s", s.table, alive("")),
				key, typeString, s.nowNano(),
			).Scan(&raw)
			if err != nil && err != sql.ErrNoRows {
				return err
			}
			if err == nil && raw != nil {
				if old, err = s.codec.Decode(raw); err != nil {
					return err
				}
			}
		}
		var one int
		err := tx.QueryRowContext(ctx,
			s.q("SELECT 1 FROM %s WHERE key = ? AND %s", s.table, alive("")),
			key, s.nowNano()).Scan(&one)
		exists := err == nil
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		if (args.NX && exists) || (args.XX && !exists) {
			return nil
		}
		wrote = true
		if args.TTL == 0 {
			if err := s.deleteAllKeyData(ctx, tx, key); err != nil {
				return err
			}
			_, err := tx.ExecContext(ctx, s.q("DELETE FROM %s WHERE key = ?", s.table), key)
			return err
		}
		if err := s.ensureKey(ctx, tx, key, typeString); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			s.q("UPDATE %s SET value = ?, expires_at = ? WHERE key = ?", s.table),
			enc, s.makeExpiry(args.TTL), key)
		return err
	})
	return old, wrote, err
}

// Delete removes the key and all of its data, reporting whether a live key
// was removed. Expired leftovers are cleaned up but do not count.
func (s *SQLStore) Delete(ctx context.Context, key string) (bool, error) {
	var existed bool
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			s.q("SELECT 1 FROM %s WHERE key = ? AND %s", s.table, alive("")),
			key, s.nowNano()).Scan(&one)
		if err != nil && err != sql.ErrNoRows {
			return err
		}
		existed = err == nil
		if err := s.deleteAllKeyData(ctx, tx, key); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, s.q("DELETE FROM %s WHERE key = ?", s.table), key)
		return err
	})
	return existed, err
}

// Has reports whether key exists unexpired, regardless of type.
func (s *SQLStore) Has(ctx context.Context, key string) (bool, error) {
	var found bool
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var one int
		err := tx.QueryRowContext(ctx,
			s.q("SELECT 1 FROM %s WHERE key = ? AND %s", s.table, alive("")),
			key, s.nowNano()).Scan(&one)
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

// Touch resets the key's ttl without touching its value, reporting whether a
// live key was found. A zero ttl deletes the key.
func (s *SQLStore) Touch(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl == 0 {
		return s.Delete(ctx, key)
	}
	var touched bool
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.q("UPDATE %s SET expires_at = ? WHERE key = ? AND %s", s.table, alive("")),
			s.makeExpiry(ttl), key, s.nowNano())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		touched = n > 0
		return nil
	})
	return touched, err
}

// GetMany returns the live string values for the given keys. Missing keys are
// simply absent from the result map.
func (s *SQLStore) GetMany(ctx context.Context, keys ...string) (map[string]any, error) {
	out := make(map[string]any, len(keys))
	if len(keys) == 0 {
		return out, nil
	}
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		args := make([]any, 0, len(keys)+2)
		for _, k := range keys {
			args = append(args, k)
		}
		args = append(args, typeString, s.nowNano())
		rows, err := tx.QueryContext(ctx,
			s.q("SELECT key, value FROM %s WHERE key IN (%s) AND type = ? AND %s",
				s.table, placeholders(len(keys)), alive("")),
			args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var key string
			var raw []byte
			if err := rows.Scan(&key, &raw); err != nil {
				return err
			}
			if raw == nil {
				continue
			}
			v, err := s.codec.Decode(raw)
			if err != nil {
				return err
			}
			out[key] = v
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SetMany stores every entry of values with the same ttl, atomically. A zero
// ttl deletes the keys instead.
func (s *SQLStore) SetMany(ctx context.Context, values map[string]any, ttl time.Duration) error {
	if len(values) == 0 {
		return nil
	}
	if ttl == 0 {
		keys := make([]string, 0, len(values))
		for k := range values {
			keys = append(keys, k)
		}
		_, err := s.DeleteMany(ctx, keys...)
		return err
	}
	encoded := make(map[string][]byte, len(values))
	for k, v := range values {
		enc, err := s.codec.Encode(v)
		if err != nil {
			return err
		}
		encoded[k] = enc
	}
	return s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		exp := s.makeExpiry(ttl)
		for k, enc := range encoded {
			if err := s.ensureKey(ctx, tx, k, typeString); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx,
				s.q("UPDATE %s SET value = ?, expires_at = ? WHERE key = ?", s.table),
				enc, exp, k); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteMany removes the given keys and their data, returning how many live
// keys were removed.
func (s *SQLStore) DeleteMany(ctx context.Context, keys ...string) (int64, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	var count int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		args := make([]any, 0, len(keys)+1)
		for _, k := range keys {
			args = append(args, k)
		}
		args = append(args, s.nowNano())
		err := tx.QueryRowContext(ctx,
			s.q("SELECT COUNT(*) FROM %s WHERE key IN (%s) AND %s",
				s.table, placeholders(len(keys)), alive("")),
			args...).Scan(&count)
		if err != nil {
			return err
		}
		for _, k := range keys {
			if err := s.deleteAllKeyData(ctx, tx, k); err != nil {
				return err
			}
		}
		_, err = tx.ExecContext(ctx,
			s.q("DELETE FROM %s WHERE key IN (%s)", s.table, placeholders(len(keys))),
			args[:len(keys)]...)
		return err
	})
	if err != nil {
		return 0, err
	}
	return count, nil
}

// IncrBy atomically adds delta to the integer stored at key and returns the
// new value. The key must exist ([ErrKeyNotFound]) and hold an integer
// ([ErrNotAnInteger]); increment never creates keys here, matching the
// remote-cache client this store stands in for.
func (s *SQLStore) IncrBy(ctx context.Context, key string, delta int64) (int64, error) {
	var result int64
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var raw []byte
		err := tx.QueryRowContext(ctx,
			s.q("SELECT value FROM %s WHERE key = ? AND type = ? AND %s%s",
				s.table, alive(""), s.dialect.RowLock()),
			key, typeString, s.nowNano(),
		).Scan(&raw)
		if err == sql.ErrNoRows {
			return keyError(ErrKeyNotFound, key)
		}
		if err != nil {
			return err
		}
		v, err := s.codec.Decode(raw)
		if err != nil {
			return keyError(ErrNotAnInteger, key)
		}
		cur, ok := v.(int64)
		if !ok {
			return keyError(ErrNotAnInteger, key)
		}
		result = cur + delta
		enc, err := s.codec.Encode(result)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			s.q("UPDATE %s SET value = ? WHERE key = ?", s.table), enc, key)
		return err
	})
	if err != nil {
		return 0, err
	}
	return result, nil
}

// DecrBy is IncrBy with a negated delta.
func (s *SQLStore) DecrBy(ctx context.Context, key string, delta int64) (int64, error) {
	return s.IncrBy(ctx, key, -delta)
}

// Clear removes every key of every type.
func (s *SQLStore) Clear(ctx context.Context) error {
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		for _, suffix := range allAuxSuffixes {
			if _, err := tx.ExecContext(ctx, s.q("DELETE FROM %s%s", s.table, suffix)); err != nil {
				return err
			}
		}
		_, err := tx.ExecContext(ctx, s.q("DELETE FROM %s", s.table))
		return err
	})
	if err == nil {
		s.log.Debug("kv cleared", zap.String("prefix", s.table))
	}
	return err
}

// Type reports the data structure a key currently holds, or TypeNone when
// the key is absent or expired.
func (s *SQLStore) Type(ctx context.Context, key string) (KeyType, error) {
	result := TypeNone
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var typeID int
		err := tx.QueryRowContext(ctx,
			s.q("SELECT type FROM %s WHERE key = ? AND %s", s.table, alive("")),
			key, s.nowNano()).Scan(&typeID)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		result = typeNames[typeID]
		return nil
	})
	if err != nil {
		return TypeNone, err
	}
	return result, nil
}

// purgeExpired removes an expired row for key, along with any auxiliary data,
// so a following insert sees a clean slate.
func (s *SQLStore) purgeExpired(ctx context.Context, tx *sql.Tx, key string) error {
	res, err := tx.ExecContext(ctx,
		s.q("DELETE FROM %s WHERE key = ? AND expires_at IS NOT NULL AND expires_at <= ?", s.table),
		key, s.nowNano())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return s.deleteAllKeyData(ctx, tx, key)
	}
	return nil
}
