package subscriptions

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/PortNumber53/edenthought/backend/internal/events"
	"github.com/PortNumber53/edenthought/backend/internal/models"
	"github.com/PortNumber53/edenthought/backend/internal/paypal"
)

var (
	standardPlan = models.Plan{ID: 1, Name: models.PlanStandard, RemotePlanID: "P-STD", Tier: models.TierStandard}
	premiumPlan  = models.Plan{ID: 2, Name: models.PlanPremium, RemotePlanID: "P-PRM", Tier: models.TierPremium}
)

type fakeGateway struct {
	mu sync.Mutex

	tokenErr    error
	cancelOK    bool
	cancelErr   error
	deactivate  int
	activate    int
	approveLink string
	remotePlans map[string]string
	currentErr  error
	calls       map[string]int
	lastPlanRef string
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		cancelOK:    true,
		deactivate:  http.StatusNoContent,
		activate:    http.StatusNoContent,
		approveLink: "https://www.sandbox.paypal.com/webapps/billing/subscriptions/update?ba_token=BA-1",
		remotePlans: map[string]string{},
		calls:       map[string]int{},
	}
}

func (g *fakeGateway) record(op string) {
	g.mu.Lock()
	g.calls[op]++
	g.mu.Unlock()
}

func (g *fakeGateway) count(op string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls[op]
}

func (g *fakeGateway) total() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		n += c
	}
	return n
}

func (g *fakeGateway) AccessToken(context.Context) (string, error) {
	g.record("token")
	if g.tokenErr != nil {
		return "", g.tokenErr
	}
	return "A21AA-token", nil
}

func (g *fakeGateway) Cancel(_ context.Context, _, _ string) (bool, error) {
	g.record("cancel")
	if g.cancelErr != nil {
		return false, g.cancelErr
	}
	return g.cancelOK, nil
}

func (g *fakeGateway) Deactivate(context.Context, string, string) (int, error) {
	g.record("deactivate")
	return g.deactivate, nil
}

func (g *fakeGateway) Activate(context.Context, string, string) (int, error) {
	g.record("activate")
	return g.activate, nil
}

func (g *fakeGateway) UpdatePlan(_ context.Context, _, _, planRef string) (string, error) {
	g.record("update")
	g.mu.Lock()
	g.lastPlanRef = planRef
	g.mu.Unlock()
	return g.approveLink, nil
}

func (g *fakeGateway) CurrentPlan(_ context.Context, _, remoteID string) (string, error) {
	g.record("current")
	if g.currentErr != nil {
		return "", g.currentErr
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remotePlans[remoteID], nil
}

// statusGateway also exposes the remote status, like *paypal.Client.
type statusGateway struct {
	*fakeGateway
	statuses map[string]string
}

func (g *statusGateway) Subscription(_ context.Context, _, remoteID string) (*paypal.SubscriptionDetails, error) {
	g.record("details")
	g.mu.Lock()
	defer g.mu.Unlock()
	return &paypal.SubscriptionDetails{ID: remoteID, PlanID: g.remotePlans[remoteID], Status: g.statuses[remoteID]}, nil
}

type fakeStore struct {
	mu sync.Mutex

	nextID   int64
	users    map[int64]*models.User
	subs     map[int64]*models.Subscription
	articles []models.Article
	plans    map[int64]models.Plan
	writes   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users: map[int64]*models.User{
			1: {ID: 1, Email: "ada@example.com"},
			2: {ID: 2, Email: "bob@example.com"},
		},
		subs:  map[int64]*models.Subscription{},
		plans: map[int64]models.Plan{standardPlan.ID: standardPlan, premiumPlan.ID: premiumPlan},
	}
}

func (s *fakeStore) withPlan(sub models.Subscription) *models.Subscription {
	if p, ok := s.plans[sub.PlanID]; ok {
		sub.Plan = &p
	}
	return &sub
}

func (s *fakeStore) seed(userID, planID int64, remoteID string, active bool) *models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	sub := &models.Subscription{ID: s.nextID, UserID: userID, PlanID: planID, RemoteSubscriptionID: remoteID, IsActive: active}
	s.subs[sub.ID] = sub
	return s.withPlan(*sub)
}

func (s *fakeStore) get(id int64) *models.Subscription {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return nil
	}
	return s.withPlan(*sub)
}

func (s *fakeStore) GetUser(_ context.Context, id int64) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func (s *fakeStore) CreateSubscription(_ context.Context, sub *models.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.subs {
		if existing.UserID == sub.UserID || existing.RemoteSubscriptionID == sub.RemoteSubscriptionID {
			return ErrDuplicateSubscription
		}
	}
	s.nextID++
	sub.ID = s.nextID
	stored := *sub
	s.subs[sub.ID] = &stored
	s.writes++
	return nil
}

func (s *fakeStore) GetSubscriptionByUser(_ context.Context, userID int64) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.UserID == userID {
			return s.withPlan(*sub), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *fakeStore) GetSubscriptionForUser(_ context.Context, userID int64, remoteID string) (*models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sub := range s.subs {
		if sub.UserID == userID && sub.RemoteSubscriptionID == remoteID {
			return s.withPlan(*sub), nil
		}
	}
	return nil, ErrSubscriptionNotFound
}

func (s *fakeStore) UpdateSubscriptionPlan(_ context.Context, id, planID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.PlanID = planID
	s.writes++
	return nil
}

func (s *fakeStore) SetSubscriptionActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sub, ok := s.subs[id]
	if !ok {
		return ErrSubscriptionNotFound
	}
	sub.IsActive = active
	s.writes++
	return nil
}

func (s *fakeStore) DeleteSubscription(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.subs[id]; !ok {
		return ErrSubscriptionNotFound
	}
	delete(s.subs, id)
	s.writes++
	return nil
}

func (s *fakeStore) ListActiveSubscriptions(_ context.Context, afterID int64, limit int) ([]models.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Subscription
	for _, sub := range s.subs {
		if sub.IsActive && sub.ID > afterID {
			out = append(out, *s.withPlan(*sub))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeStore) ListArticles(_ context.Context, includePremium bool) ([]models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Article{}
	for _, a := range s.articles {
		if a.IsPremium && !includePremium {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *fakeStore) GetArticleBySlug(_ context.Context, slug string) (*models.Article, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.articles {
		if a.Slug == slug {
			a := a
			return &a, nil
		}
	}
	return nil, ErrArticleNotFound
}

type fakeCatalog struct {
	plans []models.Plan
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{plans: []models.Plan{standardPlan, premiumPlan}}
}

func (c *fakeCatalog) ListPlans(context.Context) ([]models.Plan, error) {
	return append([]models.Plan(nil), c.plans...), nil
}

func (c *fakeCatalog) GetPlanByName(_ context.Context, name string) (*models.Plan, error) {
	for _, p := range c.plans {
		if p.Name == name {
			p := p
			return &p, nil
		}
	}
	return nil, ErrPlanNotFound
}

func (c *fakeCatalog) GetPlanByRemoteID(_ context.Context, remoteID string) (*models.Plan, error) {
	for _, p := range c.plans {
		if p.RemotePlanID == remoteID {
			p := p
			return &p, nil
		}
	}
	return nil, ErrPlanNotFound
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type fixture struct {
	svc       *Service
	gateway   *fakeGateway
	store     *fakeStore
	publisher *recordingPublisher
}

func newFixture() *fixture {
	gw := newFakeGateway()
	st := newFakeStore()
	pub := &recordingPublisher{}
	return &fixture{
		svc:       NewService(gw, st, newFakeCatalog(), nil, pub),
		gateway:   gw,
		store:     st,
		publisher: pub,
	}
}
