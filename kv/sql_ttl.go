package kv

import (
	"context"
	"database/sql"
	"time"
)

// expiresAt returns the raw stored deadline for a live key. The int64 result
// is meaningful only when found; hasExpiry distinguishes persistent keys.
func (s *SQLStore) expiresAt(ctx context.Context, key string) (deadline int64, hasExpiry, found bool, err error) {
	err = s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		var exp sql.NullInt64
		err := tx.QueryRowContext(ctx,
			s.q("SELECT expires_at FROM %s WHERE key = ? AND %s", s.table, alive("")),
			key, s.nowNano()).Scan(&exp)
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		hasExpiry = exp.Valid
		deadline = exp.Int64
		return nil
	})
	return deadline, hasExpiry, found, err
}

// TTL returns the remaining time to live in whole seconds: TTLMissing for an
// absent or expired key, TTLPersistent for a key without expiry.
func (s *SQLStore) TTL(ctx context.Context, key string) (int64, error) {
	return s.ttlIn(ctx, key, time.Second)
}

// PTTL is TTL with millisecond resolution.
func (s *SQLStore) PTTL(ctx context.Context, key string) (int64, error) {
	return s.ttlIn(ctx, key, time.Millisecond)
}

func (s *SQLStore) ttlIn(ctx context.Context, key string, unit time.Duration) (int64, error) {
	deadline, hasExpiry, found, err := s.expiresAt(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return TTLMissing, nil
	}
	if !hasExpiry {
		return TTLPersistent, nil
	}
	left := deadline - time.Now().UnixNano()
	if left <= 0 {
		return TTLMissing, nil
	}
	// Round up so a key that still has any time left never reports zero.
	return (left + int64(unit) - 1) / int64(unit), nil
}

// ExpireTime returns the absolute expiry as a Unix timestamp in seconds,
// following the TTLMissing/TTLPersistent convention.
func (s *SQLStore) ExpireTime(ctx context.Context, key string) (int64, error) {
	deadline, hasExpiry, found, err := s.expiresAt(ctx, key)
	if err != nil {
		return 0, err
	}
	if !found {
		return TTLMissing, nil
	}
	if !hasExpiry {
		return TTLPersistent, nil
	}
	return deadline / int64(time.Second), nil
}

// Expire sets a relative ttl on a live key, reporting whether the key was
// found. A non-positive ttl deletes the key.
func (s *SQLStore) Expire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		return s.Delete(ctx, key)
	}
	return s.setDeadline(ctx, key, time.Now().Add(ttl).UnixNano())
}

// PExpire is Expire; the ttl already carries sub-second resolution.
func (s *SQLStore) PExpire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	return s.Expire(ctx, key, ttl)
}

// ExpireAt sets an absolute expiry on a live key. A deadline in the past
// deletes the key.
func (s *SQLStore) ExpireAt(ctx context.Context, key string, when time.Time) (bool, error) {
	if !when.After(time.Now()) {
		return s.Delete(ctx, key)
	}
	return s.setDeadline(ctx, key, absExpiry(when))
}

// PExpireAt is ExpireAt; time.Time already carries full resolution.
func (s *SQLStore) PExpireAt(ctx context.Context, key string, when time.Time) (bool, error) {
	return s.ExpireAt(ctx, key, when)
}

func (s *SQLStore) setDeadline(ctx context.Context, key string, deadline int64) (bool, error) {
	var updated bool
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.q("UPDATE %s SET expires_at = ? WHERE key = ? AND %s", s.table, alive("")),
			deadline, key, s.nowNano())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		updated = n > 0
		return nil
	})
	return updated, err
}

// Persist removes the expiry from a live key, reporting whether a key with
// an expiry was found. Calling it on an already-persistent key returns
// false; calling it twice is harmless.
func (s *SQLStore) Persist(ctx context.Context, key string) (bool, error) {
	var updated bool
	err := s.withTx(ctx, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			s.q("UPDATE %s SET expires_at = NULL WHERE key = ? AND expires_at IS NOT NULL AND expires_at > ?", s.table),
			key, s.nowNano())
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		updated = n > 0
		return nil
	})
	return updated, err
}
