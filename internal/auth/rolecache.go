package auth

import (
	"context"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
)

// WithRoleCache returns a Store whose Roles() answers id and name lookups
// from an LRU cache. Roles are never mutated in place, so entries never go stale.
func WithRoleCache(store Store, size int) (Store, error) {
	byID, err := lru.New[int64, Role](size)
	if err != nil {
		return nil, err
	}
	byName, err := lru.New[string, Role](size)
	if err != nil {
		return nil, err
	}
	return &cachedStore{Store: store, byID: byID, byName: byName}, nil
}

type cachedStore struct {
	Store
	byID   *lru.Cache[int64, Role]
	byName *lru.Cache[string, Role]
}

func (s *cachedStore) Roles(ctx context.Context) RoleStore {
	return &cachedRoles{inner: s.Store.Roles(ctx), byID: s.byID, byName: s.byName}
}

type cachedRoles struct {
	inner  RoleStore
	byID   *lru.Cache[int64, Role]
	byName *lru.Cache[string, Role]
}

func (c *cachedRoles) remember(r *Role) {
	c.byID.Add(r.ID, *r)
	c.byName.Add(strings.ToLower(r.Name), *r)
}

func (c *cachedRoles) Create(ctx context.Context, r *Role) error {
	if err := c.inner.Create(ctx, r); err != nil {
		return err
	}
	c.remember(r)
	return nil
}

func (c *cachedRoles) Find(ctx context.Context, id int64) (*Role, error) {
	if r, ok := c.byID.Get(id); ok {
		return &r, nil
	}
	r, err := c.inner.Find(ctx, id)
	if err != nil {
		return nil, err
	}
	c.remember(r)
	return r, nil
}

func (c *cachedRoles) FindByName(ctx context.Context, name string) (*Role, error) {
	if r, ok := c.byName.Get(strings.ToLower(strings.TrimSpace(name))); ok {
		return &r, nil
	}
	r, err := c.inner.FindByName(ctx, name)
	if err != nil {
		return nil, err
	}
	c.remember(r)
	return r, nil
}

func (c *cachedRoles) List(ctx context.Context) ([]*Role, error) {
	roles, err := c.inner.List(ctx)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		c.remember(r)
	}
	return roles, nil
}
