package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/PortNumber53/edenthought/backend/internal/models"
)

var subscriptionColumns = []string{
	"id", "user_id", "plan_id", "remote_subscription_id", "subscriber_name", "is_active", "created_at", "updated_at",
	"plan_id", "name", "remote_plan_id", "cost_cents", "currency", "description", "tier", "plan_created_at", "plan_updated_at",
}

func TestCreateSubscription(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	mock.ExpectQuery(`INSERT INTO subscriptions`).
		WithArgs(int64(1), int64(2), "I-ABC", "Jane Doe", true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow(10, now, now))

	sub := &models.Subscription{UserID: 1, PlanID: 2, RemoteSubscriptionID: "I-ABC", SubscriberName: "Jane Doe", IsActive: true}
	if err := s.CreateSubscription(context.Background(), sub); err != nil {
		t.Fatalf("CreateSubscription returned error: %v", err)
	}
	if sub.ID != 10 {
		t.Fatalf("expected id 10, got %d", sub.ID)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestCreateSubscriptionDuplicate(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO subscriptions`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "subscriptions_user_key"})

	err := s.CreateSubscription(context.Background(), &models.Subscription{UserID: 1, PlanID: 2, RemoteSubscriptionID: "I-ABC"})
	if !errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected ErrDuplicateSubscription, got %v", err)
	}
}

func TestCreateSubscriptionOtherError(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`INSERT INTO subscriptions`).WillReturnError(errors.New("boom"))

	err := s.CreateSubscription(context.Background(), &models.Subscription{UserID: 1, PlanID: 2, RemoteSubscriptionID: "I-ABC"})
	if err == nil || errors.Is(err, ErrDuplicateSubscription) {
		t.Fatalf("expected generic error, got %v", err)
	}
}

func TestGetSubscriptionForUser(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows(subscriptionColumns).
		AddRow(10, 1, 2, "I-ABC", "Jane Doe", true, now, now, 2, "standard", "ST-1", 500, "USD", "Standard", 1, now, now)
	mock.ExpectQuery(`WHERE s\.user_id = \$1 AND s\.remote_subscription_id = \$2`).
		WithArgs(int64(1), "I-ABC").WillReturnRows(rows)

	sub, err := s.GetSubscriptionForUser(context.Background(), 1, "I-ABC")
	if err != nil {
		t.Fatalf("GetSubscriptionForUser returned error: %v", err)
	}
	if sub.Plan == nil || sub.Plan.RemotePlanID != "ST-1" || sub.Plan.Tier != models.TierStandard {
		t.Fatalf("unexpected plan: %+v", sub.Plan)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestGetSubscriptionByUserNotFound(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`WHERE s\.user_id = \$1`).WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows(subscriptionColumns))

	if _, err := s.GetSubscriptionByUser(context.Background(), 1); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestSetSubscriptionActive(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE subscriptions SET is_active = \$1`).
		WithArgs(false, int64(10)).WillReturnResult(sqlmock.NewResult(0, 1))

	if err := s.SetSubscriptionActive(context.Background(), 10, false); err != nil {
		t.Fatalf("SetSubscriptionActive returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestDeleteSubscriptionMissingRow(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectExec(`DELETE FROM subscriptions`).
		WithArgs(int64(10)).WillReturnResult(sqlmock.NewResult(0, 0))

	if err := s.DeleteSubscription(context.Background(), 10); !errors.Is(err, ErrSubscriptionNotFound) {
		t.Fatalf("expected ErrSubscriptionNotFound, got %v", err)
	}
}

func TestListActiveSubscriptions(t *testing.T) {
	s, mock := newMockStore(t)
	now := time.Now()

	rows := sqlmock.NewRows(subscriptionColumns).
		AddRow(10, 1, 2, "I-ABC", "Jane Doe", true, now, now, 2, "standard", "ST-1", 500, "USD", "Standard", 1, now, now).
		AddRow(11, 4, 3, "I-DEF", "Sam", true, now, now, 3, "premium", "PR-1", 900, "USD", "Premium", 2, now, now)
	mock.ExpectQuery(`WHERE s\.is_active = TRUE AND s\.id > \$1`).
		WithArgs(int64(0), defaultPageSize).WillReturnRows(rows)

	subs, err := s.ListActiveSubscriptions(context.Background(), 0, 0)
	if err != nil {
		t.Fatalf("ListActiveSubscriptions returned error: %v", err)
	}
	if len(subs) != 2 || subs[1].Plan.Name != "premium" {
		t.Fatalf("unexpected subscriptions: %+v", subs)
	}
}
