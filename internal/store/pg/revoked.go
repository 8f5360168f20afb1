package pg

import (
	"context"
	"time"
)

// Insert implements auth.RevocationStore.
func (s *Store) Insert(ctx context.Context, key string, at time.Time) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `
		insert into revoked_tokens (token_hash, created_at)
		values ($1, $2)
		on conflict (token_hash) do nothing
	`, key, at)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// Exists implements auth.RevocationStore.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if s.db == nil {
		return false, errNoDB
	}
	var ok bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from revoked_tokens where token_hash = $1)`, key).Scan(&ok)
	return ok, err
}

// DeleteOlderThan implements auth.RevocationStore.
func (s *Store) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	if s.db == nil {
		return 0, errNoDB
	}
	res, err := s.db.ExecContext(ctx, `delete from revoked_tokens where created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
