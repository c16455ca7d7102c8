// Package subscriptions keeps local subscription records consistent with the
// billing gateway and decides which content a subscriber may read.
package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/PortNumber53/edenthought/backend/internal/events"
	"github.com/PortNumber53/edenthought/backend/internal/lock"
	"github.com/PortNumber53/edenthought/backend/internal/models"
)

// Gateway is the billing service of record. *paypal.Client implements it.
type Gateway interface {
	AccessToken(ctx context.Context) (string, error)
	Cancel(ctx context.Context, token, remoteID string) (bool, error)
	Deactivate(ctx context.Context, token, remoteID string) (int, error)
	Activate(ctx context.Context, token, remoteID string) (int, error)
	UpdatePlan(ctx context.Context, token, remoteID, remotePlanID string) (string, error)
	CurrentPlan(ctx context.Context, token, remoteID string) (string, error)
}

// Store persists subscriptions and serves the read models the flow needs.
type Store interface {
	GetUser(ctx context.Context, id int64) (*models.User, error)
	CreateSubscription(ctx context.Context, sub *models.Subscription) error
	GetSubscriptionByUser(ctx context.Context, userID int64) (*models.Subscription, error)
	GetSubscriptionForUser(ctx context.Context, userID int64, remoteID string) (*models.Subscription, error)
	UpdateSubscriptionPlan(ctx context.Context, id, planID int64) error
	SetSubscriptionActive(ctx context.Context, id int64, active bool) error
	DeleteSubscription(ctx context.Context, id int64) error
	ListActiveSubscriptions(ctx context.Context, afterID int64, limit int) ([]models.Subscription, error)
	ListArticles(ctx context.Context, includePremium bool) ([]models.Article, error)
	GetArticleBySlug(ctx context.Context, slug string) (*models.Article, error)
}

// PlanCatalog is the read-only plan reference data.
type PlanCatalog interface {
	ListPlans(ctx context.Context) ([]models.Plan, error)
	GetPlanByName(ctx context.Context, name string) (*models.Plan, error)
	GetPlanByRemoteID(ctx context.Context, remotePlanID string) (*models.Plan, error)
}

// Service runs the subscription lifecycle. Every mutating operation holds the
// lock for the remote subscription ID while it talks to the gateway and the
// store.
type Service struct {
	gateway   Gateway
	store     Store
	plans     PlanCatalog
	locker    lock.Locker
	publisher events.Publisher
}

// NewService wires the flow. A nil locker falls back to an in-process lock and
// a nil publisher drops events.
func NewService(gateway Gateway, store Store, plans PlanCatalog, locker lock.Locker, publisher events.Publisher) *Service {
	if locker == nil {
		locker = lock.NewMemory()
	}
	if publisher == nil {
		publisher = events.Noop{}
	}
	return &Service{
		gateway:   gateway,
		store:     store,
		plans:     plans,
		locker:    locker,
		publisher: publisher,
	}
}

// Plans returns the plan catalog.
func (s *Service) Plans(ctx context.Context) ([]models.Plan, error) {
	return s.plans.ListPlans(ctx)
}

// CurrentPlan returns the plan of the user's subscription, or nil when the
// user has none.
func (s *Service) CurrentPlan(ctx context.Context, userID int64) (*models.Plan, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sub.Plan, nil
}

// Create records a subscription the user approved on the gateway checkout.
// The gateway is not contacted.
func (s *Service) Create(ctx context.Context, userID int64, remoteID, name string) (*models.Subscription, error) {
	remoteID = strings.TrimSpace(remoteID)

	plan, err := s.plans.GetPlanByName(ctx, name)
	if err != nil {
		return nil, err
	}

	unlock, err := s.lock(ctx, remoteID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if _, err := s.store.GetSubscriptionByUser(ctx, userID); err == nil {
		return nil, ErrDuplicateSubscription
	} else if !errors.Is(err, ErrSubscriptionNotFound) {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	sub := &models.Subscription{
		UserID:               userID,
		PlanID:               plan.ID,
		RemoteSubscriptionID: remoteID,
		SubscriberName:       user.FullName(),
		IsActive:             true,
	}
	if err := s.store.CreateSubscription(ctx, sub); err != nil {
		if errors.Is(err, ErrDuplicateSubscription) {
			return nil, ErrDuplicateSubscription
		}
		return nil, fmt.Errorf("create subscription: %w", err)
	}
	sub.Plan = plan

	log.Printf("[subscriptions] Created subscription %s for user %d on plan %s", remoteID, userID, plan.Name)
	s.publish(ctx, events.New(events.SubscriptionCreated, userID, remoteID, plan.Name))
	return sub, nil
}

// Cancel cancels the subscription on the gateway and then deletes the local
// record. When the gateway refuses, the record is kept and ErrNotCancelled is
// returned.
func (s *Service) Cancel(ctx context.Context, userID int64, remoteID string) error {
	unlock, err := s.lock(ctx, remoteID)
	if err != nil {
		return err
	}
	defer unlock()

	sub, err := s.store.GetSubscriptionForUser(ctx, userID, remoteID)
	if err != nil {
		return err
	}

	token, err := s.gateway.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}

	ok, err := s.gateway.Cancel(ctx, token, remoteID)
	if err != nil {
		if errors.Is(err, ErrNotCancelled) {
			return ErrNotCancelled
		}
		return fmt.Errorf("cancel subscription: %w", err)
	}
	if !ok {
		return ErrNotCancelled
	}

	if err := s.store.DeleteSubscription(ctx, sub.ID); err != nil {
		return fmt.Errorf("delete cancelled subscription %s: %w", remoteID, err)
	}

	log.Printf("[subscriptions] Cancelled subscription %s for user %d", remoteID, userID)
	s.publish(ctx, events.New(events.SubscriptionCancelled, userID, remoteID, planName(sub.Plan)))
	return nil
}

// Deactivate suspends the subscription on the gateway and clears the active
// flag when the gateway answers 204.
func (s *Service) Deactivate(ctx context.Context, userID int64, remoteID string) error {
	return s.setActive(ctx, userID, remoteID, false)
}

// Activate resumes the subscription on the gateway and sets the active flag
// when the gateway answers 204.
func (s *Service) Activate(ctx context.Context, userID int64, remoteID string) error {
	return s.setActive(ctx, userID, remoteID, true)
}

func (s *Service) setActive(ctx context.Context, userID int64, remoteID string, active bool) error {
	op, call, eventType := "deactivate", s.gateway.Deactivate, events.SubscriptionDeactivated
	if active {
		op, call, eventType = "activate", s.gateway.Activate, events.SubscriptionActivated
	}

	unlock, err := s.lock(ctx, remoteID)
	if err != nil {
		return err
	}
	defer unlock()

	sub, err := s.store.GetSubscriptionForUser(ctx, userID, remoteID)
	if err != nil {
		return err
	}

	token, err := s.gateway.AccessToken(ctx)
	if err != nil {
		return fmt.Errorf("%s subscription: %w", op, err)
	}

	code, err := call(ctx, token, remoteID)
	if err != nil {
		return fmt.Errorf("%s subscription: %w", op, err)
	}
	if code != http.StatusNoContent {
		return &GatewayError{Op: op, StatusCode: code}
	}

	if err := s.store.SetSubscriptionActive(ctx, sub.ID, active); err != nil {
		return fmt.Errorf("%s subscription: %w", op, err)
	}

	log.Printf("[subscriptions] %sd subscription %s for user %d", strings.ToUpper(op[:1])+op[1:], remoteID, userID)
	s.publish(ctx, events.New(eventType, userID, remoteID, planName(sub.Plan)))
	return nil
}

// RequestPlanUpdate asks the gateway to move the subscription to another plan
// and returns the approval URL the user must be redirected to. With an empty
// requested name the subscription moves to the next plan in the catalog that is not
// its current one. Nothing is written locally; Confirm picks up the change.
func (s *Service) RequestPlanUpdate(ctx context.Context, userID int64, remoteID, requested string) (string, error) {
	unlock, err := s.lock(ctx, remoteID)
	if err != nil {
		return "", err
	}
	defer unlock()

	sub, err := s.store.GetSubscriptionForUser(ctx, userID, remoteID)
	if err != nil {
		return "", err
	}

	target, err := s.targetPlan(ctx, sub, requested)
	if err != nil {
		return "", err
	}

	token, err := s.gateway.AccessToken(ctx)
	if err != nil {
		return "", fmt.Errorf("update subscription plan: %w", err)
	}

	link, err := s.gateway.UpdatePlan(ctx, token, remoteID, target.RemotePlanID)
	if err != nil {
		return "", fmt.Errorf("update subscription plan: %w", err)
	}
	if link == "" {
		return "", &GatewayError{Op: "update plan"}
	}

	log.Printf("[subscriptions] Requested plan change %s -> %s for subscription %s", planName(sub.Plan), target.Name, remoteID)
	return link, nil
}

func (s *Service) targetPlan(ctx context.Context, sub *models.Subscription, name string) (*models.Plan, error) {
	if name != "" {
		plan, err := s.plans.GetPlanByName(ctx, name)
		if err != nil {
			return nil, err
		}
		if plan.ID == sub.PlanID {
			return nil, ErrPlanUnchanged
		}
		return plan, nil
	}

	plans, err := s.plans.ListPlans(ctx)
	if err != nil {
		return nil, fmt.Errorf("update subscription plan: %w", err)
	}
	for i := range plans {
		if plans[i].ID != sub.PlanID {
			return &plans[i], nil
		}
	}
	return nil, ErrPlanUnchanged
}

// PendingConfirmation returns the remote ID of the user's subscription so the
// client can run Confirm after the gateway approval redirect.
func (s *Service) PendingConfirmation(ctx context.Context, userID int64) (string, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if err != nil {
		return "", err
	}
	return sub.RemoteSubscriptionID, nil
}

// Confirm reads the plan the gateway currently bills and, when it differs from
// the local one, moves the subscription to the matching catalog plan. It
// returns the effective plan and whether it changed.
func (s *Service) Confirm(ctx context.Context, userID int64, remoteID string) (*models.Plan, bool, error) {
	unlock, err := s.lock(ctx, remoteID)
	if err != nil {
		return nil, false, err
	}
	defer unlock()

	sub, err := s.store.GetSubscriptionForUser(ctx, userID, remoteID)
	if err != nil {
		return nil, false, err
	}

	token, err := s.gateway.AccessToken(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("confirm subscription: %w", err)
	}

	remotePlanID, err := s.gateway.CurrentPlan(ctx, token, remoteID)
	if err != nil {
		return nil, false, fmt.Errorf("confirm subscription: %w", err)
	}

	return s.reconcilePlan(ctx, sub, remotePlanID)
}

// reconcilePlan moves sub to the catalog plan matching remotePlanID. The
// caller holds the subscription lock.
func (s *Service) reconcilePlan(ctx context.Context, sub *models.Subscription, remotePlanID string) (*models.Plan, bool, error) {
	if sub.Plan != nil && remotePlanID == sub.Plan.RemotePlanID {
		return sub.Plan, false, nil
	}

	plan, err := s.plans.GetPlanByRemoteID(ctx, remotePlanID)
	if errors.Is(err, ErrPlanNotFound) {
		log.Printf("[subscriptions] Subscription %s is billed on unknown remote plan %s", sub.RemoteSubscriptionID, remotePlanID)
		return nil, false, fmt.Errorf("%w: %s", ErrUnknownRemotePlan, remotePlanID)
	}
	if err != nil {
		return nil, false, fmt.Errorf("reconcile plan: %w", err)
	}
	if plan.ID == sub.PlanID {
		return plan, false, nil
	}

	if err := s.store.UpdateSubscriptionPlan(ctx, sub.ID, plan.ID); err != nil {
		return nil, false, fmt.Errorf("reconcile plan: %w", err)
	}

	log.Printf("[subscriptions] Subscription %s moved from %s to %s", sub.RemoteSubscriptionID, planName(sub.Plan), plan.Name)
	s.publish(ctx, events.New(events.SubscriptionPlanChanged, sub.UserID, sub.RemoteSubscriptionID, plan.Name))
	return plan, true, nil
}

func (s *Service) lock(ctx context.Context, remoteID string) (func(), error) {
	unlock, err := s.locker.Lock(ctx, remoteID)
	if err != nil {
		return nil, fmt.Errorf("acquire subscription lock: %w", err)
	}
	return unlock, nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if err := s.publisher.Publish(ctx, event); err != nil {
		log.Printf("[subscriptions] failed to publish %s for %s: %v", event.Type, event.RemoteID, err)
	}
}

func planName(p *models.Plan) string {
	if p == nil {
		return ""
	}
	return p.Name
}
