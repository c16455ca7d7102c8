package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/PortNumber53/edenthought/backend/internal/events"
	"github.com/PortNumber53/edenthought/backend/internal/models"
	"github.com/PortNumber53/edenthought/backend/internal/paypal"
)

const sweepPageSize = 100

// SweepResult summarises one reconciliation pass.
type SweepResult struct {
	Checked     int
	PlanChanged int
	Deactivated int
	Failed      int
	Duration    time.Duration
}

// statusReader is implemented by gateways that expose the full remote
// subscription. When available the sweep also catches subscriptions that were
// cancelled or suspended outside the application.
type statusReader interface {
	Subscription(ctx context.Context, token, remoteID string) (*paypal.SubscriptionDetails, error)
}

type sweepOutcome int

const (
	sweepUnchanged sweepOutcome = iota
	sweepPlanChanged
	sweepDeactivated
)

// Sweep walks every active subscription and brings it in line with the
// gateway. Per-subscription failures are logged and counted; only a failure to
// obtain a token or to page through the store aborts the pass.
func (s *Service) Sweep(ctx context.Context) (SweepResult, error) {
	start := time.Now()
	var res SweepResult

	token, err := s.gateway.AccessToken(ctx)
	if err != nil {
		return res, fmt.Errorf("sweep: %w", err)
	}

	var afterID int64
	for {
		page, err := s.store.ListActiveSubscriptions(ctx, afterID, sweepPageSize)
		if err != nil {
			return res, fmt.Errorf("sweep: %w", err)
		}

		for i := range page {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			sub := page[i]
			afterID = sub.ID
			res.Checked++

			outcome, err := s.sweepOne(ctx, token, &sub)
			if err != nil {
				res.Failed++
				log.Printf("[subscriptions] sweep: subscription %s: %v", sub.RemoteSubscriptionID, err)
				continue
			}
			switch outcome {
			case sweepPlanChanged:
				res.PlanChanged++
			case sweepDeactivated:
				res.Deactivated++
			}
		}

		if len(page) < sweepPageSize {
			break
		}
	}

	res.Duration = time.Since(start)
	log.Printf("[subscriptions] Sweep checked %d subscriptions (%d plan changes, %d deactivated, %d failed) in %v",
		res.Checked, res.PlanChanged, res.Deactivated, res.Failed, res.Duration)
	return res, nil
}

func (s *Service) sweepOne(ctx context.Context, token string, listed *models.Subscription) (sweepOutcome, error) {
	unlock, err := s.lock(ctx, listed.RemoteSubscriptionID)
	if err != nil {
		return sweepUnchanged, err
	}
	defer unlock()

	// Re-read under the lock; a request may have changed the record since the
	// page was fetched.
	sub, err := s.store.GetSubscriptionForUser(ctx, listed.UserID, listed.RemoteSubscriptionID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return sweepUnchanged, nil
	}
	if err != nil {
		return sweepUnchanged, err
	}
	if !sub.IsActive {
		return sweepUnchanged, nil
	}

	var remotePlanID string
	if reader, ok := s.gateway.(statusReader); ok {
		details, err := reader.Subscription(ctx, token, sub.RemoteSubscriptionID)
		if err != nil {
			return sweepUnchanged, err
		}
		switch details.Status {
		case paypal.StatusCancelled, paypal.StatusExpired, paypal.StatusSuspended:
			if err := s.store.SetSubscriptionActive(ctx, sub.ID, false); err != nil {
				return sweepUnchanged, err
			}
			log.Printf("[subscriptions] Subscription %s is %s remotely, marked inactive", sub.RemoteSubscriptionID, details.Status)
			s.publish(ctx, events.New(events.SubscriptionDeactivated, sub.UserID, sub.RemoteSubscriptionID, planName(sub.Plan)))
			return sweepDeactivated, nil
		}
		remotePlanID = details.PlanID
	} else {
		remotePlanID, err = s.gateway.CurrentPlan(ctx, token, sub.RemoteSubscriptionID)
		if err != nil {
			return sweepUnchanged, err
		}
	}

	_, changed, err := s.reconcilePlan(ctx, sub, remotePlanID)
	if err != nil {
		return sweepUnchanged, err
	}
	if changed {
		return sweepPlanChanged, nil
	}
	return sweepUnchanged, nil
}
