package auth

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// IdentityMapper links local accounts to Microinvest users.
type IdentityMapper struct {
	store     Store
	directory ExternalDirectory
	sessions  *SessionResolver
	now       func() time.Time
}

// NewIdentityMapper wires the mapper. A nil now defaults to time.Now.
func NewIdentityMapper(store Store, directory ExternalDirectory, sessions *SessionResolver, now func() time.Time) *IdentityMapper {
	if now == nil {
		now = time.Now
	}
	return &IdentityMapper{store: store, directory: directory, sessions: sessions, now: now}
}

// CreateMapping links accountID to externalID on behalf of requester and
// snapshots the external user level. Checks run in a fixed order so the
// first failing condition decides the error.
func (m *IdentityMapper) CreateMapping(ctx context.Context, accountID, externalID int64, requester Principal) (*IdentityMapping, error) {
	if !IsAdminOrStaff(requester) {
		return nil, fmt.Errorf("%w: only admin or staff can map users", ErrForbidden)
	}
	if _, err := m.store.Accounts(ctx).Find(ctx, accountID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: account %d not found", ErrNotFound, accountID)
		}
		return nil, err
	}
	ext, err := m.directory.LookupUser(ctx, externalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: microinvest user %d not found", ErrNotFound, externalID)
		}
		return nil, err
	}

	mappings := m.store.Mappings(ctx)
	if _, err := mappings.FindByAccount(ctx, accountID); err == nil {
		return nil, fmt.Errorf("%w: account %d is already mapped", ErrConflict, accountID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	if _, err := mappings.FindByExternal(ctx, externalID); err == nil {
		return nil, fmt.Errorf("%w: microinvest user %d is already mapped to another account", ErrConflict, externalID)
	} else if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	mapping := &IdentityMapping{
		AccountID:  accountID,
		ExternalID: externalID,
		UserLevel:  ext.UserLevel,
		CreatedAt:  m.now().UTC(),
	}
	// a concurrent create can still win the race; the store's unique
	// constraints turn that into ErrConflict
	if err := mappings.Create(ctx, mapping); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: account or microinvest user is already mapped", ErrConflict)
		}
		return nil, err
	}
	return mapping, nil
}

// DeleteMapping removes a mapping on behalf of requester.
func (m *IdentityMapper) DeleteMapping(ctx context.Context, mappingID int64, requester Principal) error {
	if !IsAdminOrStaff(requester) {
		return fmt.Errorf("%w: only admin or staff can delete mappings", ErrForbidden)
	}
	if err := m.store.Mappings(ctx).Delete(ctx, mappingID); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: mapping %d not found", ErrNotFound, mappingID)
		}
		return err
	}
	return nil
}

// GetMapping returns one mapping to an admin or staff requester.
func (m *IdentityMapper) GetMapping(ctx context.Context, mappingID int64, requester Principal) (*IdentityMapping, error) {
	if !IsAdminOrStaff(requester) {
		return nil, fmt.Errorf("%w: only admin or staff can view mappings", ErrForbidden)
	}
	mapping, err := m.store.Mappings(ctx).Find(ctx, mappingID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: mapping %d not found", ErrNotFound, mappingID)
		}
		return nil, err
	}
	return mapping, nil
}

// ListMappings returns every mapping to an admin or staff requester.
func (m *IdentityMapper) ListMappings(ctx context.Context, requester Principal) ([]*IdentityMapping, error) {
	if !IsAdminOrStaff(requester) {
		return nil, fmt.Errorf("%w: only admin or staff can view mappings", ErrForbidden)
	}
	return m.store.Mappings(ctx).List(ctx)
}

// ResolveWithMapping resolves token and attaches the caller's mapping along
// with the user level read live from Microinvest. The level cached on the
// mapping is not used for decisions.
func (m *IdentityMapper) ResolveWithMapping(ctx context.Context, token string) (PrincipalWithMapping, error) {
	p, err := m.sessions.Resolve(ctx, token)
	if err != nil {
		return PrincipalWithMapping{}, err
	}
	return m.AttachMapping(ctx, p)
}

// AttachMapping extends an already resolved principal with its mapping.
func (m *IdentityMapper) AttachMapping(ctx context.Context, p Principal) (PrincipalWithMapping, error) {
	mapping, err := m.store.Mappings(ctx).FindByAccount(ctx, p.AccountID())
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PrincipalWithMapping{}, fmt.Errorf("%w: user is not mapped to a microinvest user", ErrForbidden)
		}
		return PrincipalWithMapping{}, err
	}
	ext, err := m.directory.LookupUser(ctx, mapping.ExternalID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return PrincipalWithMapping{}, fmt.Errorf("%w: mapped microinvest user %d no longer exists", ErrNotFound, mapping.ExternalID)
		}
		return PrincipalWithMapping{}, err
	}
	return PrincipalWithMapping{Principal: p, Mapping: mapping, UserLevel: ext.UserLevel}, nil
}
