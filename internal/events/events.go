// Package events publishes subscription lifecycle events for downstream
// consumers (mailers, analytics).
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Event types, also used as routing keys.
const (
	SubscriptionCreated     = "subscription.created"
	SubscriptionCancelled   = "subscription.cancelled"
	SubscriptionDeactivated = "subscription.deactivated"
	SubscriptionActivated   = "subscription.activated"
	SubscriptionPlanChanged = "subscription.plan_changed"
)

// Event describes a committed change to a subscription.
type Event struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	UserID     int64     `json:"user_id"`
	RemoteID   string    `json:"remote_subscription_id"`
	Plan       string    `json:"plan,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// New stamps an event with an ID and the current time.
func New(eventType string, userID int64, remoteID, plan string) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		UserID:     userID,
		RemoteID:   remoteID,
		Plan:       plan,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers events.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Noop drops every event.
type Noop struct{}

// Publish implements Publisher.
func (Noop) Publish(context.Context, Event) error { return nil }
