package auth

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the accepted format for date range filters.
const DateLayout = "2006-01-02"

// IsAdminOrStaff reports whether p may manage identity mappings and see
// cost prices through local RBAC.
func IsAdminOrStaff(p Principal) bool {
	if p.IsSuperuser() {
		return true
	}
	switch p.RoleName() {
	case RoleAdmin, RoleStaff:
		return true
	}
	return false
}

// IsAdmin reports whether p may manage accounts and roles.
func IsAdmin(p Principal) bool {
	return p.IsSuperuser() || p.RoleName() == RoleAdmin
}

// IsElevatedExternalLevel reports whether a Microinvest user level grants
// full visibility.
func IsElevatedExternalLevel(level int) bool {
	return level == ExternalLevelSuperuser
}

// CostPriceViewer is anything cost price visibility can be decided for.
type CostPriceViewer interface {
	canViewCostPrice() bool
}

func (p Principal) canViewCostPrice() bool { return IsAdminOrStaff(p) }

func (p PrincipalWithMapping) canViewCostPrice() bool {
	return IsElevatedExternalLevel(p.UserLevel)
}

// CanViewCostPrice decides with local RBAC for a Principal and with the live
// external level for a PrincipalWithMapping.
func CanViewCostPrice(v CostPriceViewer) bool {
	if v == nil {
		return false
	}
	return v.canViewCostPrice()
}

// ValidateDateRange checks optional YYYY-MM-DD bounds. Empty bounds are open.
func ValidateDateRange(start, end string) error {
	s, err := ParseDate(start)
	if err != nil {
		return err
	}
	e, err := ParseDate(end)
	if err != nil {
		return err
	}
	if s.IsZero() || e.IsZero() {
		return nil
	}
	if s.After(e) {
		return fmt.Errorf("%w: start date must be before or equal to end date", ErrInvalidRange)
	}
	return nil
}

// ParseDate parses a YYYY-MM-DD date; an empty string yields the zero time.
func ParseDate(v string) (time.Time, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(DateLayout, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: date %q must be YYYY-MM-DD", ErrInvalidInput, v)
	}
	return t, nil
}
