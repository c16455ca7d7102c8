package models

import "time"

// Tier orders plans by the content they unlock.
type Tier int

const (
	TierNone     Tier = 0
	TierStandard Tier = 1
	TierPremium  Tier = 2
)

// Plan names used by the catalog seed and the checkout buttons.
const (
	PlanStandard = "standard"
	PlanPremium  = "premium"
)

// Plan is a purchasable access tier. Rows are created at deployment time and
// never modified by end users.
type Plan struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	RemotePlanID string    `json:"remote_plan_id"`
	CostCents    int       `json:"cost_cents"`
	Currency     string    `json:"currency"`
	Description  string    `json:"description"`
	Tier         Tier      `json:"tier"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Grants reports whether the plan unlocks content gated at the given tier.
func (p *Plan) Grants(tier Tier) bool {
	if p == nil {
		return false
	}
	return p.Tier >= tier
}
