package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/edenthought/backend/internal/models"
)

var (
	// ErrSubscriptionNotFound is returned when no subscription matches a lookup
	ErrSubscriptionNotFound = errors.New("subscription not found")

	// ErrDuplicateSubscription is returned when the user already owns a
	// subscription or the remote identifier is already recorded.
	ErrDuplicateSubscription = errors.New("subscription already exists")
)

const subscriptionSelect = `
SELECT
  s.id, s.user_id, s.plan_id, s.remote_subscription_id, s.subscriber_name,
  s.is_active, s.created_at, s.updated_at,
  p.id, p.name, p.remote_plan_id, p.cost_cents, p.currency, p.description,
  p.tier, p.created_at, p.updated_at
FROM subscriptions s
JOIN subscription_plans p ON p.id = s.plan_id
`

func scanSubscription(row rowScanner) (*models.Subscription, error) {
	var (
		sub  models.Subscription
		plan models.Plan
	)
	if err := row.Scan(
		&sub.ID, &sub.UserID, &sub.PlanID, &sub.RemoteSubscriptionID, &sub.SubscriberName,
		&sub.IsActive, &sub.CreatedAt, &sub.UpdatedAt,
		&plan.ID, &plan.Name, &plan.RemotePlanID, &plan.CostCents, &plan.Currency, &plan.Description,
		&plan.Tier, &plan.CreatedAt, &plan.UpdatedAt,
	); err != nil {
		return nil, err
	}
	sub.Plan = &plan
	return &sub, nil
}

func (s *Store) getSubscription(ctx context.Context, op, where string, args ...any) (*models.Subscription, error) {
	sub, err := scanSubscription(s.db.QueryRowContext(ctx, subscriptionSelect+"WHERE "+where, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSubscriptionNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return sub, nil
}

// CreateSubscription inserts a new subscription. The unique constraints on
// user_id and remote_subscription_id surface as ErrDuplicateSubscription.
func (s *Store) CreateSubscription(ctx context.Context, sub *models.Subscription) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO subscriptions (user_id, plan_id, remote_subscription_id, subscriber_name, is_active)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at, updated_at`,
		sub.UserID, sub.PlanID, sub.RemoteSubscriptionID, sub.SubscriberName, sub.IsActive,
	).Scan(&sub.ID, &sub.CreatedAt, &sub.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateSubscription
		}
		return fmt.Errorf("create subscription: %w", err)
	}
	return nil
}

// GetSubscriptionByUser returns the subscription owned by userID.
func (s *Store) GetSubscriptionByUser(ctx context.Context, userID int64) (*models.Subscription, error) {
	return s.getSubscription(ctx, "get subscription by user", "s.user_id = $1", userID)
}

// GetSubscriptionForUser returns the subscription matching both the owner and
// the remote identifier.
func (s *Store) GetSubscriptionForUser(ctx context.Context, userID int64, remoteID string) (*models.Subscription, error) {
	return s.getSubscription(ctx, "get subscription for user", "s.user_id = $1 AND s.remote_subscription_id = $2", userID, remoteID)
}

// UpdateSubscriptionPlan points the subscription at a different plan.
func (s *Store) UpdateSubscriptionPlan(ctx context.Context, id, planID int64) error {
	return s.exec(ctx, "update subscription plan",
		`UPDATE subscriptions SET plan_id = $1, updated_at = now() WHERE id = $2`,
		planID, id,
	)
}

// SetSubscriptionActive flips the active flag.
func (s *Store) SetSubscriptionActive(ctx context.Context, id int64, active bool) error {
	return s.exec(ctx, "set subscription active",
		`UPDATE subscriptions SET is_active = $1, updated_at = now() WHERE id = $2`,
		active, id,
	)
}

// DeleteSubscription removes the subscription row.
func (s *Store) DeleteSubscription(ctx context.Context, id int64) error {
	return s.exec(ctx, "delete subscription", `DELETE FROM subscriptions WHERE id = $1`, id)
}

// ListActiveSubscriptions returns up to limit active subscriptions with an ID
// greater than afterID, ordered by ID, for batch reconciliation.
func (s *Store) ListActiveSubscriptions(ctx context.Context, afterID int64, limit int) ([]models.Subscription, error) {
	if limit <= 0 || limit > defaultPageSize {
		limit = defaultPageSize
	}

	rows, err := s.db.QueryContext(ctx,
		subscriptionSelect+"WHERE s.is_active = TRUE AND s.id > $1 ORDER BY s.id ASC LIMIT $2",
		afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list active subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []models.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("scan subscription: %w", err)
		}
		subs = append(subs, *sub)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate subscriptions: %w", err)
	}
	return subs, nil
}

func (s *Store) exec(ctx context.Context, op, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s: rows affected: %w", op, err)
	}
	if n == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}
