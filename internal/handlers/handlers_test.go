package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/PortNumber53/edenthought/backend/internal/middleware"
	"github.com/PortNumber53/edenthought/backend/internal/models"
	"github.com/PortNumber53/edenthought/backend/internal/subscriptions"
)

type mockService struct {
	userID   int64
	remoteID string
	planName string

	plans       []models.Plan
	current     *models.Plan
	createErr   error
	cancelErr   error
	toggleErr   error
	updateLink  string
	updateErr   error
	pendingID   string
	pendingErr  error
	confirmPlan *models.Plan
	changed     bool
	confirmErr  error
	articles    []models.Article
	article     *models.Article
	articleErr  error
}

func (m *mockService) Plans(context.Context) ([]models.Plan, error) { return m.plans, nil }

func (m *mockService) CurrentPlan(_ context.Context, userID int64) (*models.Plan, error) {
	m.userID = userID
	return m.current, nil
}

func (m *mockService) Create(_ context.Context, userID int64, remoteID, planName string) (*models.Subscription, error) {
	m.userID, m.remoteID, m.planName = userID, remoteID, planName
	if m.createErr != nil {
		return nil, m.createErr
	}
	return &models.Subscription{UserID: userID, RemoteSubscriptionID: remoteID}, nil
}

func (m *mockService) Cancel(_ context.Context, userID int64, remoteID string) error {
	m.userID, m.remoteID = userID, remoteID
	return m.cancelErr
}

func (m *mockService) Deactivate(_ context.Context, userID int64, remoteID string) error {
	m.userID, m.remoteID = userID, remoteID
	return m.toggleErr
}

func (m *mockService) Activate(_ context.Context, userID int64, remoteID string) error {
	m.userID, m.remoteID = userID, remoteID
	return m.toggleErr
}

func (m *mockService) RequestPlanUpdate(_ context.Context, userID int64, remoteID, planName string) (string, error) {
	m.userID, m.remoteID, m.planName = userID, remoteID, planName
	return m.updateLink, m.updateErr
}

func (m *mockService) PendingConfirmation(context.Context, int64) (string, error) {
	return m.pendingID, m.pendingErr
}

func (m *mockService) Confirm(_ context.Context, userID int64, remoteID string) (*models.Plan, bool, error) {
	m.userID, m.remoteID = userID, remoteID
	return m.confirmPlan, m.changed, m.confirmErr
}

func (m *mockService) VisibleArticles(context.Context, int64) ([]models.Article, error) {
	return m.articles, nil
}

func (m *mockService) Article(context.Context, int64, string) (*models.Article, error) {
	return m.article, m.articleErr
}

// newRouter mounts the handlers behind a stand-in for the auth middleware.
func newRouter(svc *mockService) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req.WithContext(middleware.WithUserID(req.Context(), 7)))
		})
	})
	NewSubscriptionHandler(svc).RegisterRoutes(r)
	r.Get("/api/articles", Articles(svc))
	r.Get("/api/articles/{slug}", Article(svc))
	return r
}

func serve(t *testing.T, h http.Handler, method, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, nil)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeResult(t *testing.T, rr *httptest.ResponseRecorder) Result {
	t.Helper()
	var res Result
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return res
}

func TestCreateSubscription(t *testing.T) {
	svc := &mockService{}
	rr := serve(t, newRouter(svc), http.MethodGet, "/api/subscriptions/create?subID=I-ST1&plan=standard")

	if rr.Code != http.StatusCreated {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	res := decodeResult(t, rr)
	if !res.OK || res.Message != msgCreated || res.Redirect != dashboardPath {
		t.Fatalf("unexpected result: %+v", res)
	}
	if svc.userID != 7 || svc.remoteID != "I-ST1" || svc.planName != "standard" {
		t.Fatalf("service called with %d %q %q", svc.userID, svc.remoteID, svc.planName)
	}
}

func TestCreateSubscriptionInvalidParams(t *testing.T) {
	for _, target := range []string{
		"/api/subscriptions/create?plan=standard",
		"/api/subscriptions/create?subID=I-ST1",
		"/api/subscriptions/create?subID=I-ST1&plan=stand%20ard",
	} {
		svc := &mockService{}
		rr := serve(t, newRouter(svc), http.MethodGet, target)
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d", target, rr.Code)
		}
		if res := decodeResult(t, rr); res.OK || res.Message != msgInvalidData {
			t.Fatalf("%s: unexpected result %+v", target, res)
		}
		if svc.remoteID != "" {
			t.Fatalf("%s: service must not be called", target)
		}
	}
}

func TestCreateSubscriptionErrors(t *testing.T) {
	cases := []struct {
		name    string
		err     error
		status  int
		message string
	}{
		{"duplicate", subscriptions.ErrDuplicateSubscription, http.StatusConflict, msgInvalidData},
		{"other", errors.New("create subscription: db offline"), http.StatusInternalServerError, msgWentWrong + "\ncreate subscription: db offline"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &mockService{createErr: tc.err}
			rr := serve(t, newRouter(svc), http.MethodGet, "/api/subscriptions/create?subID=I-ST1&plan=standard")
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			if res := decodeResult(t, rr); res.Message != tc.message {
				t.Fatalf("unexpected message %q", res.Message)
			}
		})
	}
}

func TestCreateSubscriptionUnknownPlan(t *testing.T) {
	svc := &mockService{createErr: subscriptions.ErrPlanNotFound}
	rr := serve(t, newRouter(svc), http.MethodGet, "/api/subscriptions/create?subID=I-ST1&plan=gold")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestCancelSubscription(t *testing.T) {
	svc := &mockService{}
	rr := serve(t, newRouter(svc), http.MethodPost, "/api/subscriptions/I-ST1/cancel")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var res cancelResult
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.IsDeleted || svc.remoteID != "I-ST1" {
		t.Fatalf("unexpected result %+v", res)
	}

	svc = &mockService{cancelErr: subscriptions.ErrNotCancelled}
	rr = serve(t, newRouter(svc), http.MethodPost, "/api/subscriptions/I-ST1/cancel")
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rr.Code)
	}
	res = cancelResult{}
	if err := json.Unmarshal(rr.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.IsDeleted || res.OK {
		t.Fatalf("expected not deleted, got %+v", res)
	}
}

func TestDeactivateActivate(t *testing.T) {
	svc := &mockService{}
	rr := serve(t, newRouter(svc), http.MethodPost, "/api/subscriptions/I-ST1/deactivate")
	if res := decodeResult(t, rr); rr.Code != http.StatusOK || res.Message != msgDeactivated {
		t.Fatalf("deactivate: %d %+v", rr.Code, res)
	}

	rr = serve(t, newRouter(svc), http.MethodPost, "/api/subscriptions/I-ST1/activate")
	if res := decodeResult(t, rr); rr.Code != http.StatusOK || res.Message != msgActivated {
		t.Fatalf("activate: %d %+v", rr.Code, res)
	}

	svc.toggleErr = &subscriptions.GatewayError{Op: "activate", StatusCode: http.StatusInternalServerError}
	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions/I-ST1/activate", nil)
	req.Header.Set("Referer", "/account")
	rr = httptest.NewRecorder()
	newRouter(svc).ServeHTTP(rr, req)
	res := decodeResult(t, rr)
	if rr.Code != http.StatusBadGateway || res.Message != msgWentWrong || res.Redirect != "/account" {
		t.Fatalf("rejected activate: %d %+v", rr.Code, res)
	}
}

func TestUpdateSubscription(t *testing.T) {
	link := "https://www.sandbox.paypal.com/webapps/billing/subscriptions/update?ba_token=BA-1"
	svc := &mockService{updateLink: link}
	rr := serve(t, newRouter(svc), http.MethodPost, "/api/subscriptions/I-ST1/update?plan=premium")
	res := decodeResult(t, rr)
	if rr.Code != http.StatusOK || res.Redirect != link || res.Message != msgUpdated {
		t.Fatalf("unexpected: %d %+v", rr.Code, res)
	}
	if svc.planName != "premium" {
		t.Fatalf("expected plan premium, got %q", svc.planName)
	}

	svc = &mockService{updateErr: &subscriptions.GatewayError{Op: "update plan"}}
	rr = serve(t, newRouter(svc), http.MethodPost, "/api/subscriptions/I-ST1/update")
	res = decodeResult(t, rr)
	if rr.Code != http.StatusBadGateway || res.Message != msgWentWrong || res.Redirect != accountPath {
		t.Fatalf("unexpected: %d %+v", rr.Code, res)
	}
}

func TestConfirmSubscription(t *testing.T) {
	svc := &mockService{confirmPlan: &models.Plan{Name: models.PlanPremium}, changed: true}
	rr := serve(t, newRouter(svc), http.MethodGet, "/api/subscriptions/I-ST1/confirm")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var body struct {
		Plan    models.Plan `json:"plan"`
		Changed bool        `json:"changed"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Plan.Name != models.PlanPremium || !body.Changed {
		t.Fatalf("unexpected body %+v", body)
	}

	svc = &mockService{confirmErr: subscriptions.ErrUnknownRemotePlan}
	rr = serve(t, newRouter(svc), http.MethodGet, "/api/subscriptions/I-ST1/confirm")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
}

func TestConfirmedReturnsPendingID(t *testing.T) {
	svc := &mockService{pendingID: "I-ST1"}
	rr := serve(t, newRouter(svc), http.MethodGet, "/api/subscriptions/confirmed")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["subID"] != "I-ST1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestDashboardWithoutSubscription(t *testing.T) {
	rr := serve(t, newRouter(&mockService{}), http.MethodGet, "/api/dashboard")
	if rr.Code != http.StatusOK {
		t.Fatalf("unexpected status: %d", rr.Code)
	}
	var body map[string]json.RawMessage
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if string(body["plan"]) != "null" {
		t.Fatalf("expected null plan, got %s", body["plan"])
	}
}

func TestArticlesNullVersusEmpty(t *testing.T) {
	cases := map[string]struct {
		articles []models.Article
		want     string
	}{
		"not entitled": {nil, "null"},
		"empty":        {[]models.Article{}, "[]"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := serve(t, newRouter(&mockService{articles: tc.articles}), http.MethodGet, "/api/articles")
			var body map[string]json.RawMessage
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if string(body["articles"]) != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, body["articles"])
			}
		})
	}
}

func TestArticleDetail(t *testing.T) {
	rr := serve(t, newRouter(&mockService{articleErr: subscriptions.ErrNotEntitled}), http.MethodGet, "/api/articles/premium-one")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}

	rr = serve(t, newRouter(&mockService{articleErr: subscriptions.ErrArticleNotFound}), http.MethodGet, "/api/articles/missing")
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}

	rr = serve(t, newRouter(&mockService{article: &models.Article{Slug: "free-one"}}), http.MethodGet, "/api/articles/free-one")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestHandlersRequireUser(t *testing.T) {
	rr := httptest.NewRecorder()
	Articles(&mockService{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/articles", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
}

type stubPinger struct{ err error }

func (p stubPinger) PingContext(context.Context) error { return p.err }

func TestHealth(t *testing.T) {
	rr := httptest.NewRecorder()
	Health(stubPinger{}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	Health(stubPinger{err: errors.New("down")}).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
}
