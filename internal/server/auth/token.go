// Package auth holds the server's credential primitives: the password
// hasher and the signed token codec. Neither performs I/O.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the signed payload: the registered claims (sub, iat, exp, jti,
// iss), the token kind, and free-form extras readable without a store lookup.
type Claims struct {
	jwt.RegisteredClaims
	Kind  models.TokenKind  `json:"kind"`
	Extra map[string]string `json:"ext,omitempty"`
}

// TokenCodec mints and verifies HS256 tokens with a server-held key.
// Verification is a pure function of the token, the key and the clock.
type TokenCodec struct {
	secret []byte
	issuer string
	now    func() time.Time
}

type CodecOption func(*TokenCodec)

// WithClock replaces time.Now, used by tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

func NewTokenCodec(secret []byte, issuer string, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Mint signs a token for subject that expires ttl from now. A zero ttl
// yields a token that is already expired.
func (c *TokenCodec) Mint(subject string, kind models.TokenKind, ttl time.Duration, extra map[string]string) (string, *Claims, error) {
	if subject == "" {
		return "", nil, errors.New("token subject is required")
	}
	if !kind.Valid() {
		return "", nil, fmt.Errorf("unknown token kind %q", kind)
	}
	if ttl < 0 {
		return "", nil, errors.New("token ttl must be non-negative")
	}

	now := c.now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    c.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Kind: kind,
	}
	if len(extra) > 0 {
		claims.Extra = make(map[string]string, len(extra))
		for k, v := range extra {
			claims.Extra[k] = v
		}
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", nil, fmt.Errorf("sign token: %w", err)
	}
	return token, claims, nil
}

// Verify checks encoding, signature, issuer and expiry. Every failure
// wraps common.ErrInvalidToken together with a diagnostic cause.
func (c *TokenCodec) Verify(token string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithStrictDecoding(),
		jwt.WithTimeFunc(c.now),
	}
	if c.issuer != "" {
		opts = append(opts, jwt.WithIssuer(c.issuer))
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	}, opts...)
	if err != nil {
		return nil, invalid(classify(err))
	}
	if !parsed.Valid || claims.Subject == "" || !claims.Kind.Valid() {
		return nil, invalid(common.ErrTokenMalformed)
	}
	if !claims.ExpiresAt.After(c.now()) {
		return nil, invalid(common.ErrTokenExpired)
	}

	return claims, nil
}

// VerifyKind is Verify plus a check that the token is of the wanted kind,
// so an access token cannot be replayed as a refresh token and vice versa.
func (c *TokenCodec) VerifyKind(token string, kind models.TokenKind) (*Claims, error) {
	claims, err := c.Verify(token)
	if err != nil {
		return nil, err
	}
	if claims.Kind != kind {
		return nil, invalid(common.ErrTokenKindMismatch)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return common.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return common.ErrTokenSignature
	default:
		return common.ErrTokenMalformed
	}
}

func invalid(cause error) error {
	return fmt.Errorf("%w: %w", common.ErrInvalidToken, cause)
}
