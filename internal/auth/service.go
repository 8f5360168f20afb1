package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Credentials identify an account either by email or by username.
type Credentials struct {
	Email    string
	Username string
	Password string
}

// Service issues and revokes access tokens.
type Service struct {
	store  Store
	hasher Hasher
	codec  *TokenCodec
	ledger *RevocationLedger

	dummyOnce sync.Once
	dummyHash string
}

// NewService constructs Service.
func NewService(store Store, hasher Hasher, codec *TokenCodec, ledger *RevocationLedger) *Service {
	return &Service{store: store, hasher: hasher, codec: codec, ledger: ledger}
}

// Login authenticates creds and issues a bearer token. Unknown accounts and
// wrong passwords are indistinguishable; inactive accounts get ErrInactive
// only after the password matched.
func (s *Service) Login(ctx context.Context, creds Credentials) (TokenResponse, *Account, error) {
	email := strings.TrimSpace(strings.ToLower(creds.Email))
	username := strings.TrimSpace(creds.Username)
	if (email == "" && username == "") || creds.Password == "" {
		return TokenResponse{}, nil, fmt.Errorf("%w: invalid email or password", ErrInvalidCredentials)
	}

	accounts := s.store.Accounts(ctx)
	var (
		account *Account
		err     error
	)
	if email != "" {
		account, err = accounts.FindByEmail(ctx, email)
	} else {
		account, err = accounts.FindByUsername(ctx, username)
	}
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// keep timing close to the wrong-password path
			s.hasher.Verify(creds.Password, s.dummy())
			return TokenResponse{}, nil, fmt.Errorf("%w: invalid email or password", ErrInvalidCredentials)
		}
		return TokenResponse{}, nil, err
	}
	if !s.hasher.Verify(creds.Password, account.PasswordHash) {
		return TokenResponse{}, nil, fmt.Errorf("%w: invalid email or password", ErrInvalidCredentials)
	}
	if !account.IsActive {
		return TokenResponse{}, nil, fmt.Errorf("%w: user account is deactivated", ErrInactive)
	}

	token, exp, err := s.codec.Issue(account.Email, s.codec.TTL())
	if err != nil {
		return TokenResponse{}, nil, err
	}
	return TokenResponse{AccessToken: token, TokenType: "bearer", ExpiresAt: exp}, account, nil
}

// Logout revokes token. Tokens already on the ledger succeed with
// alreadyRevoked set; otherwise the token must still verify.
func (s *Service) Logout(ctx context.Context, token string) (alreadyRevoked bool, err error) {
	revoked, err := s.ledger.IsRevoked(ctx, token)
	if err != nil {
		return false, err
	}
	if revoked {
		return true, nil
	}
	if _, err := s.codec.Parse(token); err != nil {
		return false, err
	}
	return s.ledger.Revoke(ctx, token)
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.hasher.Hash("distributor-dummy-password")
	})
	return s.dummyHash
}
