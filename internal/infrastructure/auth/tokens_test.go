package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/marketrelay/backend/internal/infrastructure/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-secret-key-at-least-32-chars"

func newTokens(now time.Time) *Tokens {
	t := NewTokens(config.JWTConfig{Secret: testKey, Issuer: "marketrelay-test"})
	t.now = func() time.Time { return now }
	return t
}

func sellerGrant() Grant {
	party := uuid.New()
	return Grant{
		Tenant:  uuid.New(),
		User:    uuid.New(),
		Party:   PartySeller,
		PartyID: &party,
		Scopes:  []string{ScopeRelaysWrite, "commissions:*"},
	}
}

func TestTokens_IssueVerify(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tokens := newTokens(now)
	g := sellerGrant()

	raw, exp, err := tokens.Issue(g)
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), exp)

	c, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, g.Tenant, c.Tenant())
	assert.Equal(t, g.User, c.User())
	assert.Equal(t, g.PartyID, c.PartyUUID())
	assert.Equal(t, PartySeller, c.Party)
	assert.Equal(t, "marketrelay-test", c.Issuer)
	assert.Equal(t, g.User.String(), c.Subject)
	assert.NotEmpty(t, c.ID)
}

func TestTokens_TTL(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	tokens := newTokens(now)
	g := sellerGrant()
	g.TTL = 5 * time.Minute

	raw, exp, err := tokens.Issue(g)
	require.NoError(t, err)
	assert.Equal(t, now.Add(5*time.Minute), exp)

	tokens.now = func() time.Time { return now.Add(6 * time.Minute) }
	_, err = tokens.Verify(raw)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestTokens_NotYetValid(t *testing.T) {
	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	raw, _, err := newTokens(now).Issue(sellerGrant())
	require.NoError(t, err)

	_, err = newTokens(now.Add(-time.Hour)).Verify(raw)
	assert.ErrorIs(t, err, ErrNotYetValid)
}

func TestTokens_IssueRequiresIdentity(t *testing.T) {
	tokens := newTokens(time.Now())

	g := sellerGrant()
	g.Tenant = uuid.Nil
	_, _, err := tokens.Issue(g)
	assert.ErrorIs(t, err, ErrInvalidClaims)

	g = sellerGrant()
	g.User = uuid.Nil
	_, _, err = tokens.Issue(g)
	assert.ErrorIs(t, err, ErrInvalidClaims)
}

func TestTokens_NoSecret(t *testing.T) {
	tokens := NewTokens(config.JWTConfig{})
	_, _, err := tokens.Issue(sellerGrant())
	assert.ErrorIs(t, err, ErrNoSecret)
	_, err = tokens.Verify("anything")
	assert.ErrorIs(t, err, ErrNoSecret)
}

func TestTokens_Rejects(t *testing.T) {
	now := time.Now()
	tokens := newTokens(now)

	sign := func(t *testing.T, method jwt.SigningMethod, key any, c *Claims) string {
		t.Helper()
		raw, err := jwt.NewWithClaims(method, c).SignedString(key)
		require.NoError(t, err)
		return raw
	}
	valid := func() *Claims {
		return &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "marketrelay-test",
				ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
			},
			TenantID: uuid.NewString(),
			UserID:   uuid.NewString(),
		}
	}

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Verify("not.a.jwt")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		raw := sign(t, jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"), valid())
		_, err := tokens.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other algorithm", func(t *testing.T) {
		raw := sign(t, jwt.SigningMethodHS512, []byte(testKey), valid())
		_, err := tokens.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other issuer", func(t *testing.T) {
		c := valid()
		c.Issuer = "someone-else"
		_, err := tokens.Verify(sign(t, jwt.SigningMethodHS256, []byte(testKey), c))
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	for _, field := range []string{"tenant_id", "user_id", "party_id"} {
		t.Run("bad "+field, func(t *testing.T) {
			c := valid()
			switch field {
			case "tenant_id":
				c.TenantID = "acme"
			case "user_id":
				c.UserID = ""
			case "party_id":
				c.PartyID = "42"
			}
			_, err := tokens.Verify(sign(t, jwt.SigningMethodHS256, []byte(testKey), c))
			assert.ErrorIs(t, err, ErrInvalidClaims)
			assert.ErrorContains(t, err, field)
		})
	}
}

func TestClaims_Allows(t *testing.T) {
	c := &Claims{Scopes: []string{ScopeRelaysRead, "settlements:*"}}

	assert.True(t, c.Allows(ScopeRelaysRead))
	assert.False(t, c.Allows(ScopeRelaysWrite))
	assert.True(t, c.Allows(ScopeSettlementsWrite))
	assert.False(t, c.Allows("settlementsx:read"))

	assert.True(t, c.AllowsAny(ScopeChannelsRead, ScopeRelaysRead))
	assert.False(t, c.AllowsAny(ScopeChannelsRead, ScopeCommissionsRead))
	assert.True(t, c.AllowsAll(ScopeRelaysRead, ScopeSettlementsRead))
	assert.False(t, c.AllowsAll(ScopeRelaysRead, ScopeRelaysWrite))

	root := &Claims{Scopes: []string{ScopeAll}}
	assert.True(t, root.AllowsAll(ScopeChannelsWrite, ScopeCommissionsWrite))

	assert.False(t, (&Claims{}).AllowsAny(ScopeRelaysRead))
}
