package subscriptions

import (
	"errors"
	"fmt"

	"github.com/PortNumber53/edenthought/backend/internal/paypal"
	"github.com/PortNumber53/edenthought/backend/internal/store"
)

// Lookup and integrity errors shared with the store.
var (
	ErrSubscriptionNotFound  = store.ErrSubscriptionNotFound
	ErrPlanNotFound          = store.ErrPlanNotFound
	ErrArticleNotFound       = store.ErrArticleNotFound
	ErrUserNotFound          = store.ErrUserNotFound
	ErrDuplicateSubscription = store.ErrDuplicateSubscription
)

var (
	// ErrNotCancelled means the gateway refused to cancel; the local record is kept.
	ErrNotCancelled = paypal.ErrSubscriptionNotCancelled

	// ErrGatewayRejected matches every *GatewayError.
	ErrGatewayRejected = errors.New("gateway rejected the request")

	// ErrUnknownRemotePlan means the gateway reports a plan that has no
	// catalog entry. The stale local plan is left untouched.
	ErrUnknownRemotePlan = errors.New("no catalog plan matches the remote plan")

	// ErrPlanUnchanged is returned when a plan update targets the current plan.
	ErrPlanUnchanged = errors.New("subscription is already on the requested plan")

	// ErrNotEntitled is returned when the viewer's subscription does not
	// unlock the requested content.
	ErrNotEntitled = errors.New("subscription does not grant access")
)

// GatewayError reports a gateway answer other than the expected success code.
type GatewayError struct {
	Op         string
	StatusCode int
}

func (e *GatewayError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s: gateway returned no approval link", e.Op)
	}
	return fmt.Sprintf("%s: gateway returned status %d", e.Op, e.StatusCode)
}

// Is lets errors.Is(err, ErrGatewayRejected) match.
func (e *GatewayError) Is(target error) bool {
	return target == ErrGatewayRejected
}
