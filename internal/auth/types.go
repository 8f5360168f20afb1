package auth

import (
	"strings"
	"time"
)

// Role names with special meaning for local RBAC.
const (
	RoleAdmin  = "admin"
	RoleStaff  = "staff"
	RoleClient = "client"
)

// External user levels reported by Microinvest. Levels between the two are
// left unclassified and treated as non-elevated.
const (
	ExternalLevelNormal    = 0
	ExternalLevelSuperuser = 3
)

// Account is a local user able to log in.
type Account struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	IsSuperuser  bool      `json:"is_superuser"`
	RoleID       *int64    `json:"role_id,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Role is a named local permission group.
type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// IdentityMapping links one local account to one Microinvest user.
type IdentityMapping struct {
	ID         int64     `json:"id"`
	AccountID  int64     `json:"account_id"`
	ExternalID int64     `json:"external_id"`
	UserLevel  int       `json:"user_level"`
	CreatedAt  time.Time `json:"created_at"`
}

// ExternalUser is the slice of a Microinvest user the gateway cares about.
type ExternalUser struct {
	ID        int64
	Name      string
	UserLevel int
}

// Principal is the authenticated caller of a request.
type Principal struct {
	Account *Account
	Role    *Role
}

// RoleName returns the lower-cased role name or "" when no role is assigned.
func (p Principal) RoleName() string {
	if p.Role == nil {
		return ""
	}
	return strings.ToLower(p.Role.Name)
}

// IsSuperuser reports the account superuser flag.
func (p Principal) IsSuperuser() bool {
	return p.Account != nil && p.Account.IsSuperuser
}

// AccountID returns the caller's account id or 0.
func (p Principal) AccountID() int64 {
	if p.Account == nil {
		return 0
	}
	return p.Account.ID
}

// PrincipalWithMapping is a Principal with its external identity and the
// user level fetched live from Microinvest.
type PrincipalWithMapping struct {
	Principal
	Mapping   *IdentityMapping
	UserLevel int
}

// ExternalID returns the mapped Microinvest user id.
func (p PrincipalWithMapping) ExternalID() int64 {
	if p.Mapping == nil {
		return 0
	}
	return p.Mapping.ExternalID
}

// TokenResponse is returned by a successful login.
type TokenResponse struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"-"`
}
