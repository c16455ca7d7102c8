package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/PortNumber53/edenthought/backend/internal/models"
)

// ErrPlanNotFound is returned when a plan is not found
var ErrPlanNotFound = errors.New("plan not found")

const planColumns = `id, name, remote_plan_id, cost_cents, currency, description, tier, created_at, updated_at`

// PlanStore provides database operations for the subscription plan catalog
type PlanStore struct {
	db *sql.DB
}

// NewPlanStore creates a new PlanStore instance
func NewPlanStore(db *sql.DB) (*PlanStore, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	return &PlanStore{db: db}, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPlan(row rowScanner) (*models.Plan, error) {
	var p models.Plan
	if err := row.Scan(
		&p.ID, &p.Name, &p.RemotePlanID, &p.CostCents, &p.Currency,
		&p.Description, &p.Tier, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPlans returns every plan ordered by tier
func (s *PlanStore) ListPlans(ctx context.Context) ([]models.Plan, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+planColumns+` FROM subscription_plans ORDER BY tier ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list plans: %w", err)
	}
	defer rows.Close()

	var plans []models.Plan
	for rows.Next() {
		p, err := scanPlan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan plan: %w", err)
		}
		plans = append(plans, *p)
	}

	return plans, rows.Err()
}

func (s *PlanStore) getPlan(ctx context.Context, op, where string, arg any) (*models.Plan, error) {
	p, err := scanPlan(s.db.QueryRowContext(ctx, `SELECT `+planColumns+` FROM subscription_plans WHERE `+where, arg))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPlanNotFound
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return p, nil
}

// GetPlanByName returns a plan by its local name ("standard", "premium")
func (s *PlanStore) GetPlanByName(ctx context.Context, name string) (*models.Plan, error) {
	return s.getPlan(ctx, "get plan by name", "name = $1", name)
}

// GetPlanByRemoteID returns the plan registered under the gateway's plan identifier
func (s *PlanStore) GetPlanByRemoteID(ctx context.Context, remotePlanID string) (*models.Plan, error) {
	return s.getPlan(ctx, "get plan by remote id", "remote_plan_id = $1", remotePlanID)
}

// UpsertPlan creates or refreshes a catalog entry keyed by name. Used by
// deployment-time seeding only.
func (s *PlanStore) UpsertPlan(ctx context.Context, p *models.Plan) error {
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO subscription_plans (name, remote_plan_id, cost_cents, currency, description, tier)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (name) DO UPDATE
		 SET remote_plan_id = EXCLUDED.remote_plan_id,
		     cost_cents = EXCLUDED.cost_cents,
		     currency = EXCLUDED.currency,
		     description = EXCLUDED.description,
		     tier = EXCLUDED.tier,
		     updated_at = now()
		 RETURNING id, created_at, updated_at`,
		p.Name, p.RemotePlanID, p.CostCents, p.Currency, p.Description, p.Tier,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert plan %s: %w", p.Name, err)
	}
	return nil
}
