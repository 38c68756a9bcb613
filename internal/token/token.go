// Package token issues and verifies signed, time-limited identity tokens.
// Tokens are compact JWS (HS256) carrying the subject and expiry; nothing is
// stored server side, so a token stays valid until it expires.
package token

import (
	"errors"
	"fmt"
	"strings"
	"time"

	jose "github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

const minSecretLen = 32

var (
	// ErrInvalidToken is returned for any token that fails verification.
	ErrInvalidToken = errors.New("invalid token")
	// ErrExpiredToken is wrapped together with ErrInvalidToken for expired tokens.
	ErrExpiredToken = errors.New("token expired")
)

// Claims is the verified content of a token.
type Claims struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Option customises an Issuer.
type Option func(*Issuer)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(i *Issuer) { i.now = now }
}

// Issuer signs and verifies tokens with a process-wide key.
type Issuer struct {
	key        []byte
	signer     jose.Signer
	defaultTTL time.Duration
	now        func() time.Time
}

// NewIssuer builds an Issuer using secret as the HMAC key.
func NewIssuer(secret string, defaultTTL time.Duration, opts ...Option) (*Issuer, error) {
	if len(secret) < minSecretLen {
		return nil, fmt.Errorf("token: secret must be at least %d bytes", minSecretLen)
	}
	if defaultTTL <= 0 {
		return nil, errors.New("token: default ttl must be positive")
	}
	key := []byte(secret)
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: key},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	if err != nil {
		return nil, fmt.Errorf("token: new signer: %w", err)
	}
	i := &Issuer{key: key, signer: signer, defaultTTL: defaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(i)
	}
	return i, nil
}

// DefaultTTL returns the lifetime used when Issue is called with ttl <= 0.
func (i *Issuer) DefaultTTL() time.Duration {
	return i.defaultTTL
}

// Issue signs a token for subject expiring ttl from now.
func (i *Issuer) Issue(subject string, ttl time.Duration) (string, time.Time, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", time.Time{}, errors.New("token: subject required")
	}
	if ttl <= 0 {
		ttl = i.defaultTTL
	}
	now := i.now()
	expiresAt := now.Add(ttl)
	raw, err := jwt.Signed(i.signer).Claims(jwt.Claims{
		Subject:  subject,
		IssuedAt: jwt.NewNumericDate(now),
		Expiry:   jwt.NewNumericDate(expiresAt),
	}).Serialize()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("token: sign: %w", err)
	}
	return raw, expiresAt, nil
}

// Verify checks signature, algorithm and expiry and returns the claims.
// Every failure is reported as ErrInvalidToken.
func (i *Issuer) Verify(raw string) (Claims, error) {
	if raw == "" {
		return Claims{}, fmt.Errorf("%w: empty", ErrInvalidToken)
	}
	parsed, err := jwt.ParseSigned(raw, []jose.SignatureAlgorithm{jose.HS256})
	if err != nil {
		return Claims{}, fmt.Errorf("%w: parse: %v", ErrInvalidToken, err)
	}
	var claims jwt.Claims
	if err := parsed.Claims(i.key, &claims); err != nil {
		return Claims{}, fmt.Errorf("%w: signature: %v", ErrInvalidToken, err)
	}
	if claims.Expiry == nil {
		return Claims{}, fmt.Errorf("%w: missing expiry", ErrInvalidToken)
	}
	if err := claims.ValidateWithLeeway(jwt.Expected{Time: i.now()}, 0); err != nil {
		if errors.Is(err, jwt.ErrExpired) {
			return Claims{}, fmt.Errorf("%w: %w", ErrInvalidToken, ErrExpiredToken)
		}
		return Claims{}, fmt.Errorf("%w: claims: %v", ErrInvalidToken, err)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return Claims{}, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	out := Claims{Subject: claims.Subject, ExpiresAt: claims.Expiry.Time()}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time()
	}
	return out, nil
}
