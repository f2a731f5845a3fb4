// Package risk decides how much credit a risk tier may receive.
package risk

import (
	"fmt"

	"github.com/segyhp/bnpl-engine/internal/domain"
	"github.com/segyhp/bnpl-engine/pkg/utils"
)

// Limits maps each tier to its maximum financeable amount in minor units.
type Limits map[domain.RiskLevel]int64

// DefaultLimits is the reference policy: $5,000 / $2,500 / $1,000 / nothing.
var DefaultLimits = Limits{
	domain.RiskLevelLow:      500000,
	domain.RiskLevelMedium:   250000,
	domain.RiskLevelHigh:     100000,
	domain.RiskLevelCritical: 0,
}

// Decision is the outcome of evaluating one request against the policy.
type Decision struct {
	Approved   bool             `json:"approved"`
	RiskLevel  domain.RiskLevel `json:"risk_level"`
	MaxAllowed int64            `json:"max_allowed"`
	Reason     string           `json:"reason,omitempty"`
}

// Policy is a pure, deterministic tier-limit check.
type Policy struct {
	limits Limits
}

// NewPolicy copies limits; tiers missing from limits may not borrow at all.
func NewPolicy(limits Limits) *Policy {
	copied := make(Limits, len(limits))
	for level, limit := range limits {
		copied[level] = limit
	}
	return &Policy{limits: copied}
}

// MaxFor returns the tier's ceiling.
func (p *Policy) MaxFor(level domain.RiskLevel) int64 {
	return p.limits[level]
}

// Evaluate approves financedAmount when it does not exceed the tier limit.
func (p *Policy) Evaluate(level domain.RiskLevel, financedAmount int64) Decision {
	limit := p.MaxFor(level)
	decision := Decision{
		RiskLevel:  level,
		MaxAllowed: limit,
	}

	switch {
	case limit <= 0:
		decision.Reason = fmt.Sprintf("risk level %s is not eligible for financing", level)
	case financedAmount > limit:
		decision.Reason = fmt.Sprintf("requested amount %s exceeds the %s risk limit of %s",
			utils.FormatCents(financedAmount), level, utils.FormatCents(limit))
	default:
		decision.Approved = true
	}

	return decision
}
