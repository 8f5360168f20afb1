package auth

import (
	"errors"
	"fmt"
	"testing"
)

func principalWith(role string, superuser bool) Principal {
	p := Principal{Account: &Account{ID: 1, IsSuperuser: superuser}}
	if role != "" {
		p.Role = &Role{ID: 9, Name: role}
	}
	return p
}

func TestIsAdminOrStaff(t *testing.T) {
	cases := []struct {
		name string
		p    Principal
		want bool
	}{
		{"admin", principalWith("admin", false), true},
		{"staff", principalWith("staff", false), true},
		{"mixed case", principalWith("Staff", false), true},
		{"client", principalWith("client", false), false},
		{"no role", principalWith("", false), false},
		{"superuser without role", principalWith("", true), true},
		{"empty principal", Principal{}, false},
	}
	for _, tc := range cases {
		if got := IsAdminOrStaff(tc.p); got != tc.want {
			t.Fatalf("%s: IsAdminOrStaff=%v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestIsAdmin(t *testing.T) {
	if !IsAdmin(principalWith("admin", false)) {
		t.Fatalf("admin must be admin")
	}
	if IsAdmin(principalWith("staff", false)) {
		t.Fatalf("staff must not be admin")
	}
	if !IsAdmin(principalWith("client", true)) {
		t.Fatalf("superuser must be admin")
	}
}

func TestIsElevatedExternalLevel(t *testing.T) {
	for level, want := range map[int]bool{0: false, 1: false, 2: false, 3: true, 4: false} {
		if got := IsElevatedExternalLevel(level); got != want {
			t.Fatalf("level %d: got %v, want %v", level, got, want)
		}
	}
}

func TestCanViewCostPrice(t *testing.T) {
	if !CanViewCostPrice(principalWith("staff", false)) {
		t.Fatalf("staff principal should see cost price")
	}
	if CanViewCostPrice(principalWith("client", false)) {
		t.Fatalf("client principal should not see cost price")
	}

	// the external level decides once a mapping is involved, whatever the local role
	mapped := PrincipalWithMapping{Principal: principalWith("admin", false), UserLevel: ExternalLevelNormal}
	if CanViewCostPrice(mapped) {
		t.Fatalf("level 0 mapping should not see cost price")
	}
	mapped = PrincipalWithMapping{Principal: principalWith("client", false), UserLevel: ExternalLevelSuperuser}
	if !CanViewCostPrice(mapped) {
		t.Fatalf("level 3 mapping should see cost price")
	}
	if CanViewCostPrice(nil) {
		t.Fatalf("nil viewer should not see cost price")
	}
}

func TestValidateDateRange(t *testing.T) {
	if err := ValidateDateRange("2024-01-01", "2024-01-10"); err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
	if err := ValidateDateRange("2024-01-10", "2024-01-10"); err != nil {
		t.Fatalf("single-day range rejected: %v", err)
	}
	if err := ValidateDateRange("2024-01-10", ""); err != nil {
		t.Fatalf("open range rejected: %v", err)
	}
	err := ValidateDateRange("2024-01-10", "2024-01-01")
	if !errors.Is(err, ErrInvalidRange) {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
	if KindOf(err) != KindInvalidRange {
		t.Fatalf("unexpected kind %q", KindOf(err))
	}
	if err := ValidateDateRange("10/01/2024", ""); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for bad format, got %v", err)
	}
}

func TestKindOf(t *testing.T) {
	cases := map[error]string{
		ErrRevoked:                             KindRevoked,
		ErrTokenExpired:                        KindInvalidCredentials,
		fmt.Errorf("%w: nope", ErrForbidden):   KindForbidden,
		fmt.Errorf("wrap: %w", ErrConflict):    KindConflict,
		ErrAccountNotFound:                     KindAccountNotFound,
		errors.New("pq: connection refused"):   KindInternal,
		fmt.Errorf("%w: x", ErrInactive):       KindInactive,
		fmt.Errorf("%w: missing", ErrNotFound): KindNotFound,
		fmt.Errorf("%w: bad", ErrInvalidInput): KindInvalidInput,
		fmt.Errorf("%w: bad", ErrInvalidRange): KindInvalidRange,
	}
	for err, want := range cases {
		if got := KindOf(err); got != want {
			t.Fatalf("KindOf(%v)=%q, want %q", err, got, want)
		}
	}
	if KindOf(nil) != "" {
		t.Fatalf("nil error should have no kind")
	}
}
