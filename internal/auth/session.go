package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// SessionResolver turns a bearer token into the Principal it belongs to.
type SessionResolver struct {
	ledger *RevocationLedger
	codec  *TokenCodec
	store  Store
}

// NewSessionResolver wires the resolver's collaborators.
func NewSessionResolver(ledger *RevocationLedger, codec *TokenCodec, store Store) *SessionResolver {
	return &SessionResolver{ledger: ledger, codec: codec, store: store}
}

// Resolve checks revocation first, then the token itself, then the account
// named by its subject.
func (r *SessionResolver) Resolve(ctx context.Context, token string) (Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return Principal{}, fmt.Errorf("%w: missing bearer token", ErrInvalidCredentials)
	}
	revoked, err := r.ledger.IsRevoked(ctx, token)
	if err != nil {
		return Principal{}, err
	}
	if revoked {
		return Principal{}, ErrRevoked
	}
	claims, err := r.codec.Parse(token)
	if err != nil {
		return Principal{}, err
	}
	account, err := r.store.Accounts(ctx).FindByEmail(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Principal{}, ErrAccountNotFound
		}
		return Principal{}, err
	}
	return r.principalFor(ctx, account)
}

func (r *SessionResolver) principalFor(ctx context.Context, account *Account) (Principal, error) {
	p := Principal{Account: account}
	if account.RoleID == nil {
		return p, nil
	}
	role, err := r.store.Roles(ctx).Find(ctx, *account.RoleID)
	switch {
	case err == nil:
		p.Role = role
	case errors.Is(err, ErrNotFound):
		// dangling role reference; treat as unassigned
	default:
		return Principal{}, err
	}
	return p, nil
}
