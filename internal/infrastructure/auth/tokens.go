package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/infrastructure/config"
)

var (
	ErrNoSecret      = errors.New("auth: jwt secret not configured")
	ErrInvalidToken  = errors.New("auth: invalid token")
	ErrExpired       = errors.New("auth: token expired")
	ErrNotYetValid   = errors.New("auth: token not yet valid")
	ErrInvalidClaims = errors.New("auth: invalid claims")
)

func claimError(name string) error {
	return fmt.Errorf("%w: %s", ErrInvalidClaims, name)
}

const defaultTTL = time.Hour

// Tokens verifies HS256 tokens from the identity provider. Operators and
// tooling holding the same secret can mint tokens with Issue.
type Tokens struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

func NewTokens(cfg config.JWTConfig) *Tokens {
	return &Tokens{key: []byte(cfg.Secret), issuer: cfg.Issuer, ttl: defaultTTL, now: time.Now}
}

// Grant describes a token to issue
type Grant struct {
	Tenant  uuid.UUID
	User    uuid.UUID
	Party   Party
	PartyID *uuid.UUID
	Scopes  []string
	// TTL replaces the one hour default when positive
	TTL time.Duration
}

// Issue signs g and returns the token with its expiry
func (t *Tokens) Issue(g Grant) (string, time.Time, error) {
	switch {
	case len(t.key) == 0:
		return "", time.Time{}, ErrNoSecret
	case g.Tenant == uuid.Nil:
		return "", time.Time{}, claimError("tenant_id")
	case g.User == uuid.Nil:
		return "", time.Time{}, claimError("user_id")
	}

	ttl := g.TTL
	if ttl <= 0 {
		ttl = t.ttl
	}
	now := t.now()
	exp := now.Add(ttl)

	c := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    t.issuer,
			Subject:   g.User.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
		TenantID: g.Tenant.String(),
		UserID:   g.User.String(),
		Party:    g.Party,
		Scopes:   g.Scopes,
	}
	if g.PartyID != nil {
		c.PartyID = g.PartyID.String()
	}

	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &c).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return raw, exp, nil
}

// Verify checks signature, algorithm, time window and issuer, then the
// identity claims
func (t *Tokens) Verify(raw string) (*Claims, error) {
	if len(t.key) == 0 {
		return nil, ErrNoSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}

	c := &Claims{}
	_, err := jwt.ParseWithClaims(raw, c, func(*jwt.Token) (any, error) { return t.key, nil }, opts...)
	switch {
	case err == nil:
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrExpired
	case errors.Is(err, jwt.ErrTokenNotValidYet):
		return nil, ErrNotYetValid
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	if err := c.resolve(); err != nil {
		return nil, err
	}
	return c, nil
}
