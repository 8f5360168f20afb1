package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrRevoked            = errors.New("auth: token revoked")
	ErrAccountNotFound    = errors.New("auth: account not found")
	ErrInactive           = errors.New("auth: account inactive")
	ErrForbidden          = errors.New("auth: forbidden")
	ErrNotFound           = errors.New("auth: not found")
	ErrConflict           = errors.New("auth: conflict")
	ErrInvalidRange       = errors.New("auth: invalid range")
	ErrInvalidInput       = errors.New("auth: invalid input")
)

// Token codec failures. Each one is also an ErrInvalidCredentials.
var (
	ErrTokenMalformed = wrapKind(ErrInvalidCredentials, "token malformed")
	ErrTokenSignature = wrapKind(ErrInvalidCredentials, "token signature invalid")
	ErrTokenExpired   = wrapKind(ErrInvalidCredentials, "token expired")
)

// Stable error kinds exposed to clients.
const (
	KindInvalidCredentials = "invalid_credentials"
	KindRevoked            = "revoked"
	KindAccountNotFound    = "account_not_found"
	KindInactive           = "inactive"
	KindForbidden          = "forbidden"
	KindNotFound           = "not_found"
	KindConflict           = "conflict"
	KindInvalidRange       = "invalid_range"
	KindInvalidInput       = "invalid_input"
	KindInternal           = "internal"
)

// KindOf classifies err into one of the Kind* constants.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrRevoked):
		return KindRevoked
	case errors.Is(err, ErrAccountNotFound):
		return KindAccountNotFound
	case errors.Is(err, ErrInvalidCredentials):
		return KindInvalidCredentials
	case errors.Is(err, ErrInactive):
		return KindInactive
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrInvalidRange):
		return KindInvalidRange
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	default:
		return KindInternal
	}
}

type kindError struct {
	kind error
	msg  string
}

func (e *kindError) Error() string { return e.kind.Error() + ": " + e.msg }
func (e *kindError) Unwrap() error { return e.kind }

func wrapKind(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}
