package auth

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// NewAccount is the input for account registration.
type NewAccount struct {
	Username    string
	Email       string
	FirstName   string
	LastName    string
	Password    string
	IsActive    *bool
	IsSuperuser bool
	Role        string
}

// AccountUpdate carries optional field changes; nil means unchanged.
type AccountUpdate struct {
	Username    *string
	Email       *string
	FirstName   *string
	LastName    *string
	Password    *string
	IsActive    *bool
	IsSuperuser *bool
	Role        *string
}

// AccountView is an account together with its role name.
type AccountView struct {
	*Account
	Role string `json:"role,omitempty"`
}

// AccountService manages accounts and roles.
type AccountService struct {
	store  Store
	hasher Hasher
	now    func() time.Time
}

// NewAccountService constructs AccountService. A nil now defaults to time.Now.
func NewAccountService(store Store, hasher Hasher, now func() time.Time) *AccountService {
	if now == nil {
		now = time.Now
	}
	return &AccountService{store: store, hasher: hasher, now: now}
}

// Register creates an account on behalf of an admin requester.
func (s *AccountService) Register(ctx context.Context, requester Principal, in NewAccount) (AccountView, error) {
	if !IsAdmin(requester) {
		return AccountView{}, fmt.Errorf("%w: only admins can register users", ErrForbidden)
	}
	return s.Provision(ctx, in)
}

// Provision creates an account without a requester check. Used by trusted
// tooling only.
func (s *AccountService) Provision(ctx context.Context, in NewAccount) (AccountView, error) {
	username := strings.TrimSpace(in.Username)
	email := strings.ToLower(strings.TrimSpace(in.Email))
	if username == "" {
		return AccountView{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	if err := validateEmail(email); err != nil {
		return AccountView{}, err
	}
	if in.Password == "" {
		return AccountView{}, fmt.Errorf("%w: password is required", ErrInvalidInput)
	}
	role, err := s.lookupRole(ctx, in.Role)
	if err != nil {
		return AccountView{}, err
	}
	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return AccountView{}, err
	}
	now := s.now().UTC()
	account := &Account{
		Username:     username,
		Email:        email,
		FirstName:    strings.TrimSpace(in.FirstName),
		LastName:     strings.TrimSpace(in.LastName),
		PasswordHash: hash,
		IsActive:     true,
		IsSuperuser:  in.IsSuperuser,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if in.IsActive != nil {
		account.IsActive = *in.IsActive
	}
	if role != nil {
		account.RoleID = &role.ID
	}
	if err := s.store.Accounts(ctx).Create(ctx, account); err != nil {
		if errors.Is(err, ErrConflict) {
			return AccountView{}, fmt.Errorf("%w: username or email already registered", ErrConflict)
		}
		return AccountView{}, err
	}
	return AccountView{Account: account, Role: roleName(role)}, nil
}

// Get returns an account to an admin or to its owner.
func (s *AccountService) Get(ctx context.Context, requester Principal, id int64) (AccountView, error) {
	if !IsAdmin(requester) && requester.AccountID() != id {
		return AccountView{}, fmt.Errorf("%w: not allowed to view this user", ErrForbidden)
	}
	account, err := s.find(ctx, id)
	if err != nil {
		return AccountView{}, err
	}
	return s.view(ctx, account)
}

// List returns every account to an admin requester.
func (s *AccountService) List(ctx context.Context, requester Principal) ([]AccountView, error) {
	if !IsAdmin(requester) {
		return nil, fmt.Errorf("%w: only admins can list users", ErrForbidden)
	}
	accounts, err := s.store.Accounts(ctx).List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]AccountView, 0, len(accounts))
	for _, a := range accounts {
		v, err := s.view(ctx, a)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Update applies upd. Owners may change their own profile and password;
// activation, superuser and role changes need an admin.
func (s *AccountService) Update(ctx context.Context, requester Principal, id int64, upd AccountUpdate) (AccountView, error) {
	admin := IsAdmin(requester)
	if !admin && requester.AccountID() != id {
		return AccountView{}, fmt.Errorf("%w: not allowed to update this user", ErrForbidden)
	}
	if !admin && (upd.IsActive != nil || upd.IsSuperuser != nil || upd.Role != nil) {
		return AccountView{}, fmt.Errorf("%w: only admins can change status or role", ErrForbidden)
	}
	account, err := s.find(ctx, id)
	if err != nil {
		return AccountView{}, err
	}

	if upd.Username != nil {
		v := strings.TrimSpace(*upd.Username)
		if v == "" {
			return AccountView{}, fmt.Errorf("%w: username is required", ErrInvalidInput)
		}
		account.Username = v
	}
	if upd.Email != nil {
		v := strings.ToLower(strings.TrimSpace(*upd.Email))
		if err := validateEmail(v); err != nil {
			return AccountView{}, err
		}
		account.Email = v
	}
	if upd.FirstName != nil {
		account.FirstName = strings.TrimSpace(*upd.FirstName)
	}
	if upd.LastName != nil {
		account.LastName = strings.TrimSpace(*upd.LastName)
	}
	if upd.Password != nil {
		hash, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return AccountView{}, err
		}
		account.PasswordHash = hash
	}
	if upd.IsActive != nil {
		account.IsActive = *upd.IsActive
	}
	if upd.IsSuperuser != nil {
		account.IsSuperuser = *upd.IsSuperuser
	}
	if upd.Role != nil {
		role, err := s.lookupRole(ctx, *upd.Role)
		if err != nil {
			return AccountView{}, err
		}
		account.RoleID = nil
		if role != nil {
			account.RoleID = &role.ID
		}
	}
	account.UpdatedAt = s.now().UTC()

	if err := s.store.Accounts(ctx).Update(ctx, account); err != nil {
		if errors.Is(err, ErrConflict) {
			return AccountView{}, fmt.Errorf("%w: username or email already registered", ErrConflict)
		}
		if errors.Is(err, ErrNotFound) {
			return AccountView{}, fmt.Errorf("%w: user %d not found", ErrNotFound, id)
		}
		return AccountView{}, err
	}
	return s.view(ctx, account)
}

// Delete removes an account and, through the store, its mapping.
func (s *AccountService) Delete(ctx context.Context, requester Principal, id int64) error {
	if !IsAdmin(requester) {
		return fmt.Errorf("%w: only admins can delete users", ErrForbidden)
	}
	if err := s.store.Accounts(ctx).Delete(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return fmt.Errorf("%w: user %d not found", ErrNotFound, id)
		}
		return err
	}
	return nil
}

// Profile describes the caller.
func (s *AccountService) Profile(p Principal) AccountView {
	return AccountView{Account: p.Account, Role: roleName(p.Role)}
}

// CreateRole adds a role to the catalog.
func (s *AccountService) CreateRole(ctx context.Context, requester Principal, name string) (*Role, error) {
	if !IsAdmin(requester) {
		return nil, fmt.Errorf("%w: only admins can create roles", ErrForbidden)
	}
	return s.ProvisionRole(ctx, name)
}

// ProvisionRole adds a role without a requester check.
func (s *AccountService) ProvisionRole(ctx context.Context, name string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, fmt.Errorf("%w: role name is required", ErrInvalidInput)
	}
	role := &Role{Name: name}
	if err := s.store.Roles(ctx).Create(ctx, role); err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, fmt.Errorf("%w: role %q already exists", ErrConflict, name)
		}
		return nil, err
	}
	return role, nil
}

// ListRoles returns the role catalog to an admin requester.
func (s *AccountService) ListRoles(ctx context.Context, requester Principal) ([]*Role, error) {
	if !IsAdmin(requester) {
		return nil, fmt.Errorf("%w: only admins can list roles", ErrForbidden)
	}
	return s.store.Roles(ctx).List(ctx)
}

func (s *AccountService) find(ctx context.Context, id int64) (*Account, error) {
	account, err := s.store.Accounts(ctx).Find(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: user %d not found", ErrNotFound, id)
		}
		return nil, err
	}
	return account, nil
}

func (s *AccountService) view(ctx context.Context, account *Account) (AccountView, error) {
	v := AccountView{Account: account}
	if account.RoleID == nil {
		return v, nil
	}
	role, err := s.store.Roles(ctx).Find(ctx, *account.RoleID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return AccountView{}, err
	}
	v.Role = roleName(role)
	return v, nil
}

// lookupRole resolves a role name against the catalog; "" means no role.
func (s *AccountService) lookupRole(ctx context.Context, name string) (*Role, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, nil
	}
	role, err := s.store.Roles(ctx).FindByName(ctx, name)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("%w: role %q does not exist", ErrInvalidInput, name)
		}
		return nil, err
	}
	return role, nil
}

func roleName(r *Role) string {
	if r == nil {
		return ""
	}
	return r.Name
}

func validateEmail(email string) error {
	if email == "" {
		return fmt.Errorf("%w: email is required", ErrInvalidInput)
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return fmt.Errorf("%w: email %q is invalid", ErrInvalidInput, email)
	}
	return nil
}
