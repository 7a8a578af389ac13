package commission

import (
	"context"
	"sort"
	"time"

	"github.com/marketrelay/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ErrPolicyNotFound is returned when a conversion names an unknown policy
var ErrPolicyNotFound = shared.NewDomainError("INVALID_POLICY", "Commission policy not found")

// PolicyType is the calculation method of a policy
type PolicyType string

const (
	// PolicyTypeFlatRate pays Rate x order amount
	PolicyTypeFlatRate PolicyType = "FLAT_RATE"
	// PolicyTypeTiered pays the rate of the highest tier whose threshold the order amount reaches
	PolicyTypeTiered PolicyType = "TIERED"
	// PolicyTypeFixedAmount pays a fixed amount per conversion, capped at the order amount
	PolicyTypeFixedAmount PolicyType = "FIXED_AMOUNT"
)

// IsValid returns true if the policy type is valid
func (t PolicyType) IsValid() bool {
	switch t {
	case PolicyTypeFlatRate, PolicyTypeTiered, PolicyTypeFixedAmount:
		return true
	default:
		return false
	}
}

// String returns the string representation of PolicyType
func (t PolicyType) String() string {
	return string(t)
}

// Tier is one threshold of a tiered policy
type Tier struct {
	MinAmount decimal.Decimal `json:"min_amount" mapstructure:"min_amount"`
	Rate      decimal.Decimal `json:"rate" mapstructure:"rate"`
}

// Policy is a read-only commission policy owned by configuration
type Policy struct {
	ID            string
	Type          PolicyType
	Rate          decimal.Decimal
	FixedAmount   decimal.Decimal
	Tiers         []Tier
	HoldWindow    time.Duration
	EffectiveFrom *time.Time
	EffectiveTo   *time.Time
}

// Validate checks the policy parameters
func (p *Policy) Validate() error {
	if p.ID == "" {
		return shared.NewDomainError("INVALID_POLICY", "Policy ID is required")
	}
	if !p.Type.IsValid() {
		return shared.NewDomainError("INVALID_POLICY", "Unknown policy type: "+p.Type.String())
	}
	if p.HoldWindow < 0 {
		return shared.NewDomainError("INVALID_POLICY", "Hold window cannot be negative")
	}
	if p.EffectiveFrom != nil && p.EffectiveTo != nil && !p.EffectiveTo.After(*p.EffectiveFrom) {
		return shared.NewDomainError("INVALID_POLICY", "Policy effective range is empty")
	}
	one := decimal.NewFromInt(1)
	switch p.Type {
	case PolicyTypeFlatRate:
		if p.Rate.IsNegative() || p.Rate.GreaterThan(one) {
			return shared.NewDomainError("INVALID_POLICY", "Rate must be between 0 and 1")
		}
	case PolicyTypeTiered:
		if len(p.Tiers) == 0 {
			return shared.NewDomainError("INVALID_POLICY", "Tiered policy requires at least one tier")
		}
		for _, tier := range p.Tiers {
			if tier.MinAmount.IsNegative() || tier.Rate.IsNegative() || tier.Rate.GreaterThan(one) {
				return shared.NewDomainError("INVALID_POLICY", "Tier thresholds and rates must be non-negative and rates at most 1")
			}
		}
	case PolicyTypeFixedAmount:
		if p.FixedAmount.IsNegative() {
			return shared.NewDomainError("INVALID_POLICY", "Fixed amount cannot be negative")
		}
	}
	return nil
}

// IsEffectiveAt reports whether the policy applies at t. The range is [from, to).
func (p *Policy) IsEffectiveAt(t time.Time) bool {
	if p.EffectiveFrom != nil && t.Before(*p.EffectiveFrom) {
		return false
	}
	if p.EffectiveTo != nil && !t.Before(*p.EffectiveTo) {
		return false
	}
	return true
}

// Calculate returns the commission amount and the effective rate for an order
// amount. It is a pure function of its inputs; amounts are rounded to cents.
func (p *Policy) Calculate(orderAmount decimal.Decimal) (amount, rate decimal.Decimal) {
	if orderAmount.IsNegative() {
		orderAmount = decimal.Zero
	}
	switch p.Type {
	case PolicyTypeFlatRate:
		rate = p.Rate
	case PolicyTypeTiered:
		rate = p.tierRate(orderAmount)
	case PolicyTypeFixedAmount:
		amount = decimal.Min(p.FixedAmount, orderAmount).Round(2)
		if orderAmount.IsPositive() {
			rate = amount.Div(orderAmount).Round(4)
		}
		return amount, rate
	}
	return orderAmount.Mul(rate).Round(2), rate
}

func (p *Policy) tierRate(orderAmount decimal.Decimal) decimal.Decimal {
	tiers := make([]Tier, len(p.Tiers))
	copy(tiers, p.Tiers)
	sort.Slice(tiers, func(i, j int) bool {
		return tiers[i].MinAmount.LessThan(tiers[j].MinAmount)
	})
	rate := decimal.Zero
	for _, tier := range tiers {
		if orderAmount.GreaterThanOrEqual(tier.MinAmount) {
			rate = tier.Rate
		}
	}
	return rate
}

// PolicyProvider resolves commission policies
type PolicyProvider interface {
	// Get returns the policy with the given id or ErrPolicyNotFound
	Get(ctx context.Context, policyID string) (*Policy, error)
	// Applicable returns the default policy effective at t or ErrPolicyNotFound
	Applicable(ctx context.Context, at time.Time) (*Policy, error)
}
