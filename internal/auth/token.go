package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const defaultAccessTTL = 15 * time.Minute

// Claims are the verified contents of an access token.
type Claims struct {
	Subject   string
	ID        string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// TokenCodec signs and verifies access tokens with a shared secret.
type TokenCodec struct {
	secret []byte
	method jwt.SigningMethod
	ttl    time.Duration
	now    func() time.Time
}

// CodecOption configures TokenCodec behavior.
type CodecOption func(*TokenCodec) error

// WithAlgorithm selects the HMAC signing algorithm (HS256, HS384 or HS512).
func WithAlgorithm(alg string) CodecOption {
	return func(c *TokenCodec) error {
		switch strings.ToUpper(strings.TrimSpace(alg)) {
		case "", "HS256":
			c.method = jwt.SigningMethodHS256
		case "HS384":
			c.method = jwt.SigningMethodHS384
		case "HS512":
			c.method = jwt.SigningMethodHS512
		default:
			return fmt.Errorf("auth: unsupported signing algorithm %q", alg)
		}
		return nil
	}
}

// WithAccessTTL configures the lifetime used when Issue is called without one.
func WithAccessTTL(ttl time.Duration) CodecOption {
	return func(c *TokenCodec) error {
		if ttl > 0 {
			c.ttl = ttl
		}
		return nil
	}
}

// WithClock overrides time source (useful for tests).
func WithClock(fn func() time.Time) CodecOption {
	return func(c *TokenCodec) error {
		if fn != nil {
			c.now = fn
		}
		return nil
	}
}

// NewTokenCodec constructs a codec for secret.
func NewTokenCodec(secret string, opts ...CodecOption) (*TokenCodec, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("auth: token secret is required")
	}
	c := &TokenCodec{
		secret: []byte(secret),
		method: jwt.SigningMethodHS256,
		ttl:    defaultAccessTTL,
		now:    time.Now,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// TTL returns the configured default lifetime.
func (c *TokenCodec) TTL() time.Duration { return c.ttl }

// Issue signs a token for subject. A non-positive ttl falls back to the
// codec default.
func (c *TokenCodec) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if ttl <= 0 {
		ttl = c.ttl
	}
	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ID:        uuid.NewString(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(c.method, claims).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	// exp is serialized with second precision
	return signed, claims.ExpiresAt.Time, nil
}

// Parse verifies signature and expiry. A token is expired from its expiry
// instant onwards.
func (c *TokenCodec) Parse(token string) (*Claims, error) {
	var rc jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(strings.TrimSpace(token), &rc,
		func(t *jwt.Token) (any, error) { return c.secret, nil },
		jwt.WithValidMethods([]string{c.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
			return nil, ErrTokenSignature
		default:
			return nil, ErrTokenMalformed
		}
	}
	if !parsed.Valid || strings.TrimSpace(rc.Subject) == "" {
		return nil, ErrTokenMalformed
	}
	claims := &Claims{Subject: rc.Subject, ID: rc.ID}
	if rc.IssuedAt != nil {
		claims.IssuedAt = rc.IssuedAt.Time
	}
	if rc.ExpiresAt != nil {
		claims.ExpiresAt = rc.ExpiresAt.Time
	}
	return claims, nil
}
