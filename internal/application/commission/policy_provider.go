package commission

import (
	"context"
	"sort"
	"time"

	"github.com/marketrelay/backend/internal/domain/commission"
)

// StaticPolicyProvider serves a fixed set of policies loaded from configuration.
// Applicable returns the most recently started policy effective at the given
// time, preferring the configured default.
type StaticPolicyProvider struct {
	defaultID string
	byID      map[string]*commission.Policy
	ordered   []*commission.Policy
}

// NewStaticPolicyProvider validates and indexes the given policies
func NewStaticPolicyProvider(defaultID string, policies []commission.Policy) (*StaticPolicyProvider, error) {
	p := &StaticPolicyProvider{
		defaultID: defaultID,
		byID:      make(map[string]*commission.Policy, len(policies)),
		ordered:   make([]*commission.Policy, 0, len(policies)),
	}
	for i := range policies {
		policy := policies[i]
		if err := policy.Validate(); err != nil {
			return nil, err
		}
		p.byID[policy.ID] = &policy
		p.ordered = append(p.ordered, &policy)
	}
	// latest EffectiveFrom first; open-ended starts sort last
	sort.SliceStable(p.ordered, func(i, j int) bool {
		a, b := p.ordered[i].EffectiveFrom, p.ordered[j].EffectiveFrom
		if a == nil {
			return false
		}
		if b == nil {
			return true
		}
		return a.After(*b)
	})
	return p, nil
}

// Get returns the policy with the given id
func (p *StaticPolicyProvider) Get(_ context.Context, policyID string) (*commission.Policy, error) {
	policy, ok := p.byID[policyID]
	if !ok {
		return nil, commission.ErrPolicyNotFound
	}
	copied := *policy
	return &copied, nil
}

// Applicable returns the policy effective at t
func (p *StaticPolicyProvider) Applicable(_ context.Context, at time.Time) (*commission.Policy, error) {
	if policy, ok := p.byID[p.defaultID]; ok && policy.IsEffectiveAt(at) {
		copied := *policy
		return &copied, nil
	}
	for _, policy := range p.ordered {
		if policy.IsEffectiveAt(at) {
			copied := *policy
			return &copied, nil
		}
	}
	return nil, commission.ErrPolicyNotFound
}
