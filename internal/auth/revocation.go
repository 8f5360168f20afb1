package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// RevocationLedger records tokens that must no longer be accepted.
type RevocationLedger struct {
	store RevocationStore
	now   func() time.Time
}

// NewRevocationLedger wraps store. A nil now defaults to time.Now.
func NewRevocationLedger(store RevocationStore, now func() time.Time) *RevocationLedger {
	if now == nil {
		now = time.Now
	}
	return &RevocationLedger{store: store, now: now}
}

// Revoke records token. Revoking an already revoked token is not an error;
// alreadyRevoked reports it.
func (l *RevocationLedger) Revoke(ctx context.Context, token string) (alreadyRevoked bool, err error) {
	key, err := revocationKey(token)
	if err != nil {
		return false, err
	}
	inserted, err := l.store.Insert(ctx, key, l.now().UTC())
	if err != nil {
		return false, fmt.Errorf("revoke token: %w", err)
	}
	return !inserted, nil
}

// IsRevoked reports whether token was revoked and not yet purged.
func (l *RevocationLedger) IsRevoked(ctx context.Context, token string) (bool, error) {
	key, err := revocationKey(token)
	if err != nil {
		return false, err
	}
	ok, err := l.store.Exists(ctx, key)
	if err != nil {
		return false, fmt.Errorf("check revocation: %w", err)
	}
	return ok, nil
}

// PurgeOlderThan deletes entries recorded before now-age and returns how many went.
func (l *RevocationLedger) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	if age < 0 {
		return 0, fmt.Errorf("%w: negative purge age", ErrInvalidInput)
	}
	n, err := l.store.DeleteOlderThan(ctx, l.now().UTC().Add(-age))
	if err != nil {
		return 0, fmt.Errorf("purge revoked tokens: %w", err)
	}
	return n, nil
}

// revocationKey is the hex SHA-256 of the token; raw tokens are not persisted.
func revocationKey(token string) (string, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return "", fmt.Errorf("%w: token is empty", ErrInvalidInput)
	}
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:]), nil
}
