package auth

import (
	"context"
	"time"
)

// Store describes persistence operations required by the auth subsystem.
type Store interface {
	Accounts(ctx context.Context) AccountStore
	Roles(ctx context.Context) RoleStore
	Mappings(ctx context.Context) MappingStore
}

// AccountStore manages local accounts. Lookups return ErrNotFound when
// nothing matches; unique username/email violations return ErrConflict.
type AccountStore interface {
	Create(ctx context.Context, a *Account) error
	Find(ctx context.Context, id int64) (*Account, error)
	FindByEmail(ctx context.Context, email string) (*Account, error)
	FindByUsername(ctx context.Context, username string) (*Account, error)
	List(ctx context.Context) ([]*Account, error)
	Update(ctx context.Context, a *Account) error
	Delete(ctx context.Context, id int64) error
}

// RoleStore manages the role catalog.
type RoleStore interface {
	Create(ctx context.Context, r *Role) error
	Find(ctx context.Context, id int64) (*Role, error)
	FindByName(ctx context.Context, name string) (*Role, error)
	List(ctx context.Context) ([]*Role, error)
}

// MappingStore persists identity mappings. Create must enforce uniqueness of
// both AccountID and ExternalID and report a violation as ErrConflict.
type MappingStore interface {
	Create(ctx context.Context, m *IdentityMapping) error
	Find(ctx context.Context, id int64) (*IdentityMapping, error)
	FindByAccount(ctx context.Context, accountID int64) (*IdentityMapping, error)
	FindByExternal(ctx context.Context, externalID int64) (*IdentityMapping, error)
	List(ctx context.Context) ([]*IdentityMapping, error)
	Delete(ctx context.Context, id int64) error
}

// RevocationStore keeps revoked token keys with their insertion time.
type RevocationStore interface {
	// Insert records key; it reports false without error when key is already present.
	Insert(ctx context.Context, key string, at time.Time) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// ExternalDirectory looks up Microinvest users. LookupUser returns ErrNotFound
// for unknown ids.
type ExternalDirectory interface {
	LookupUser(ctx context.Context, id int64) (ExternalUser, error)
}
