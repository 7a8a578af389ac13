// Package auth verifies the bearer tokens marketrelay callers present.
package auth

import (
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Party is the marketplace side a caller acts for
type Party string

const (
	PartySeller   Party = "SELLER"
	PartySupplier Party = "SUPPLIER"
	PartyPartner  Party = "PARTNER"
	PartyOperator Party = "OPERATOR"
)

// Scopes are "<resource>:<action>". "<resource>:*" covers every action on
// the resource and "*" covers everything.
const (
	ScopeAll              = "*"
	ScopeRelaysRead       = "relays:read"
	ScopeRelaysWrite      = "relays:write"
	ScopeCommissionsRead  = "commissions:read"
	ScopeCommissionsWrite = "commissions:write"
	ScopeSettlementsRead  = "settlements:read"
	ScopeSettlementsWrite = "settlements:write"
	ScopeChannelsRead     = "channels:read"
	ScopeChannelsWrite    = "channels:write"
)

// Claims is the verified caller identity. Tenant and user ids are checked
// to be UUIDs before a Claims value leaves this package.
type Claims struct {
	jwt.RegisteredClaims
	TenantID string   `json:"tenant_id"`
	UserID   string   `json:"user_id"`
	Party    Party    `json:"party_type,omitempty"`
	PartyID  string   `json:"party_id,omitempty"`
	Scopes   []string `json:"permissions,omitempty"`

	tenant, user uuid.UUID
	party        *uuid.UUID
}

// Tenant returns the parsed tenant id
func (c *Claims) Tenant() uuid.UUID { return c.tenant }

// User returns the parsed user id
func (c *Claims) User() uuid.UUID { return c.user }

// PartyUUID is nil when the token is not bound to a seller, supplier or partner
func (c *Claims) PartyUUID() *uuid.UUID { return c.party }

// resolve parses the id claims into their typed form
func (c *Claims) resolve() error {
	var err error
	if c.tenant, err = uuid.Parse(c.TenantID); err != nil {
		return claimError("tenant_id")
	}
	if c.user, err = uuid.Parse(c.UserID); err != nil {
		return claimError("user_id")
	}
	c.party = nil
	if c.PartyID != "" {
		id, err := uuid.Parse(c.PartyID)
		if err != nil {
			return claimError("party_id")
		}
		c.party = &id
	}
	return nil
}

// Allows reports whether the claims grant scope
func (c *Claims) Allows(scope string) bool {
	resource, _, _ := strings.Cut(scope, ":")
	for _, s := range c.Scopes {
		if s == scope || s == ScopeAll {
			return true
		}
		if r, ok := strings.CutSuffix(s, ":*"); ok && r == resource {
			return true
		}
	}
	return false
}

// AllowsAny is true when at least one scope is granted
func (c *Claims) AllowsAny(scopes ...string) bool {
	for _, s := range scopes {
		if c.Allows(s) {
			return true
		}
	}
	return false
}

// AllowsAll is true when every scope is granted
func (c *Claims) AllowsAll(scopes ...string) bool {
	for _, s := range scopes {
		if !c.Allows(s) {
			return false
		}
	}
	return true
}
