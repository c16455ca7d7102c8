package models

import "testing"

func strPtr(s string) *string { return &s }

func TestUserFullName(t *testing.T) {
	u := User{Email: "jane@example.com", FirstName: strPtr("Jane"), LastName: strPtr("Doe")}
	if got := u.FullName(); got != "Jane Doe" {
		t.Fatalf("expected Jane Doe, got %q", got)
	}

	u.LastName = nil
	if got := u.FullName(); got != "jane" {
		t.Fatalf("expected e-mail local part, got %q", got)
	}
}

func TestSubscriptionEntitles(t *testing.T) {
	standard := &Plan{Name: PlanStandard, Tier: TierStandard}
	premium := &Plan{Name: PlanPremium, Tier: TierPremium}

	cases := []struct {
		name string
		sub  *Subscription
		tier Tier
		want bool
	}{
		{"nil subscription", nil, TierStandard, false},
		{"inactive", &Subscription{Plan: premium}, TierStandard, false},
		{"standard reads standard", &Subscription{Plan: standard, IsActive: true}, TierStandard, true},
		{"standard reads premium", &Subscription{Plan: standard, IsActive: true}, TierPremium, false},
		{"premium reads premium", &Subscription{Plan: premium, IsActive: true}, TierPremium, true},
		{"missing plan", &Subscription{IsActive: true}, TierStandard, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.sub.Entitles(tc.tier); got != tc.want {
				t.Fatalf("Entitles(%d) = %v, want %v", tc.tier, got, tc.want)
			}
		})
	}
}
