// Package memory keeps auth state in process memory. Uniqueness rules match
// the PostgreSQL schema so callers observe the same conflicts.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"distributor.app/internal/auth"
)

// Store is a mutex-guarded in-memory auth.Store and auth.RevocationStore.
type Store struct {
	mu       sync.Mutex
	nextID   int64
	accounts map[int64]auth.Account
	roles    map[int64]auth.Role
	mappings map[int64]auth.IdentityMapping
	revoked  map[string]time.Time
}

var (
	_ auth.Store           = (*Store)(nil)
	_ auth.RevocationStore = (*Store)(nil)
)

// New returns an empty Store.
func New() *Store {
	return &Store{
		accounts: make(map[int64]auth.Account),
		roles:    make(map[int64]auth.Role),
		mappings: make(map[int64]auth.IdentityMapping),
		revoked:  make(map[string]time.Time),
	}
}

func (s *Store) Accounts(context.Context) auth.AccountStore { return accountStore{s} }
func (s *Store) Roles(context.Context) auth.RoleStore       { return roleStore{s} }
func (s *Store) Mappings(context.Context) auth.MappingStore { return mappingStore{s} }

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

type accountStore struct{ s *Store }

func (a accountStore) Create(_ context.Context, acc *auth.Account) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.accountTaken(acc.Username, acc.Email, 0) {
		return auth.ErrConflict
	}
	if acc.RoleID != nil {
		if _, ok := s.roles[*acc.RoleID]; !ok {
			return auth.ErrInvalidInput
		}
	}
	acc.ID = s.id()
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = time.Now().UTC()
	}
	if acc.UpdatedAt.IsZero() {
		acc.UpdatedAt = acc.CreatedAt
	}
	s.accounts[acc.ID] = cloneAccount(*acc)
	return nil
}

func (a accountStore) Find(_ context.Context, id int64) (*auth.Account, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	out := cloneAccount(acc)
	return &out, nil
}

func (a accountStore) FindByEmail(_ context.Context, email string) (*auth.Account, error) {
	return a.findBy(func(acc auth.Account) bool { return strings.EqualFold(acc.Email, strings.TrimSpace(email)) })
}

func (a accountStore) FindByUsername(_ context.Context, username string) (*auth.Account, error) {
	return a.findBy(func(acc auth.Account) bool { return acc.Username == strings.TrimSpace(username) })
}

func (a accountStore) findBy(match func(auth.Account) bool) (*auth.Account, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accounts {
		if match(acc) {
			out := cloneAccount(acc)
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (a accountStore) List(context.Context) ([]*auth.Account, error) {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Account, 0, len(s.accounts))
	for _, acc := range s.accounts {
		c := cloneAccount(acc)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (a accountStore) Update(_ context.Context, acc *auth.Account) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[acc.ID]; !ok {
		return auth.ErrNotFound
	}
	if s.accountTaken(acc.Username, acc.Email, acc.ID) {
		return auth.ErrConflict
	}
	s.accounts[acc.ID] = cloneAccount(*acc)
	return nil
}

func (a accountStore) Delete(_ context.Context, id int64) error {
	s := a.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.accounts, id)
	for mid, m := range s.mappings {
		if m.AccountID == id {
			delete(s.mappings, mid)
		}
	}
	return nil
}

func (s *Store) accountTaken(username, email string, except int64) bool {
	for id, acc := range s.accounts {
		if id == except {
			continue
		}
		if acc.Username == username || strings.EqualFold(acc.Email, email) {
			return true
		}
	}
	return false
}

func cloneAccount(a auth.Account) auth.Account {
	if a.RoleID != nil {
		id := *a.RoleID
		a.RoleID = &id
	}
	return a
}

type roleStore struct{ s *Store }

func (r roleStore) Create(_ context.Context, role *auth.Role) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return auth.ErrConflict
		}
	}
	role.ID = s.id()
	s.roles[role.ID] = *role
	return nil
}

func (r roleStore) Find(_ context.Context, id int64) (*auth.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	role, ok := s.roles[id]
	if !ok {
		return nil, auth.ErrNotFound
	}
	return &role, nil
}

func (r roleStore) FindByName(_ context.Context, name string) (*auth.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, role := range s.roles {
		if strings.EqualFold(role.Name, strings.TrimSpace(name)) {
			out := role
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (r roleStore) List(context.Context) ([]*auth.Role, error) {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.Role, 0, len(s.roles))
	for _, role := range s.roles {
		c := role
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type mappingStore struct{ s *Store }

func (m mappingStore) Create(_ context.Context, mapping *auth.IdentityMapping) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[mapping.AccountID]; !ok {
		return auth.ErrNotFound
	}
	for _, existing := range s.mappings {
		if existing.AccountID == mapping.AccountID || existing.ExternalID == mapping.ExternalID {
			return auth.ErrConflict
		}
	}
	mapping.ID = s.id()
	if mapping.CreatedAt.IsZero() {
		mapping.CreatedAt = time.Now().UTC()
	}
	s.mappings[mapping.ID] = *mapping
	return nil
}

func (m mappingStore) Find(_ context.Context, id int64) (*auth.IdentityMapping, error) {
	return m.findBy(func(im auth.IdentityMapping) bool { return im.ID == id })
}

func (m mappingStore) FindByAccount(_ context.Context, accountID int64) (*auth.IdentityMapping, error) {
	return m.findBy(func(im auth.IdentityMapping) bool { return im.AccountID == accountID })
}

func (m mappingStore) FindByExternal(_ context.Context, externalID int64) (*auth.IdentityMapping, error) {
	return m.findBy(func(im auth.IdentityMapping) bool { return im.ExternalID == externalID })
}

func (m mappingStore) findBy(match func(auth.IdentityMapping) bool) (*auth.IdentityMapping, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, im := range s.mappings {
		if match(im) {
			out := im
			return &out, nil
		}
	}
	return nil, auth.ErrNotFound
}

func (m mappingStore) List(context.Context) ([]*auth.IdentityMapping, error) {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*auth.IdentityMapping, 0, len(s.mappings))
	for _, im := range s.mappings {
		c := im
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m mappingStore) Delete(_ context.Context, id int64) error {
	s := m.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.mappings[id]; !ok {
		return auth.ErrNotFound
	}
	delete(s.mappings, id)
	return nil
}

// Insert implements auth.RevocationStore.
func (s *Store) Insert(_ context.Context, key string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.revoked[key]; ok {
		return false, nil
	}
	s.revoked[key] = at
	return true, nil
}

// Exists implements auth.RevocationStore.
func (s *Store) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.revoked[key]
	return ok, nil
}

// DeleteOlderThan implements auth.RevocationStore.
func (s *Store) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for key, at := range s.revoked {
		if at.Before(cutoff) {
			delete(s.revoked, key)
			n++
		}
	}
	return n, nil
}

// Directory is an in-memory auth.ExternalDirectory.
type Directory struct {
	mu    sync.RWMutex
	users map[int64]auth.ExternalUser
}

var _ auth.ExternalDirectory = (*Directory)(nil)

// NewDirectory returns a Directory seeded with users.
func NewDirectory(users ...auth.ExternalUser) *Directory {
	d := &Directory{users: make(map[int64]auth.ExternalUser, len(users))}
	for _, u := range users {
		d.users[u.ID] = u
	}
	return d
}

// Put adds or replaces a user.
func (d *Directory) Put(u auth.ExternalUser) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
}

// Remove drops a user.
func (d *Directory) Remove(id int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.users, id)
}

// LookupUser implements auth.ExternalDirectory.
func (d *Directory) LookupUser(_ context.Context, id int64) (auth.ExternalUser, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	u, ok := d.users[id]
	if !ok {
		return auth.ExternalUser{}, auth.ErrNotFound
	}
	return u, nil
}
