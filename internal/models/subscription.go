package models

import "time"

// Subscription binds a user to a remote billing record on the payment gateway.
// A user owns at most one subscription.
type Subscription struct {
	ID                   int64     `json:"id"`
	UserID               int64     `json:"user_id"`
	PlanID               int64     `json:"plan_id"`
	Plan                 *Plan     `json:"plan,omitempty"`
	RemoteSubscriptionID string    `json:"remote_subscription_id"`
	SubscriberName       string    `json:"subscriber_name"`
	IsActive             bool      `json:"is_active"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// Entitles reports whether the subscription currently unlocks content at tier.
func (s *Subscription) Entitles(tier Tier) bool {
	if s == nil || !s.IsActive {
		return false
	}
	return s.Plan.Grants(tier)
}
