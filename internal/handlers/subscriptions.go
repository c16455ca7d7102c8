package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/PortNumber53/edenthought/backend/internal/models"
	"github.com/PortNumber53/edenthought/backend/internal/subscriptions"
)

// User-facing status messages.
const (
	msgCreated        = "Subscription created successfully!"
	msgInvalidData    = "Subscription not created! Invalid data has been submitted."
	msgDeactivated    = "Subscription deactivated successfully!"
	msgActivated      = "Subscription activated successfully!"
	msgUpdated        = "Subscription updated successfully!"
	msgWentWrong      = "Something went wrong!"
	msgCancelled      = "Subscription cancelled successfully!"
	msgNotCancelled   = "Subscription could not be cancelled. Please try again later."
	msgNoSubscription = "No subscription found."
)

// SubscriptionService is the reconciliation flow behind the subscription endpoints.
type SubscriptionService interface {
	Plans(ctx context.Context) ([]models.Plan, error)
	CurrentPlan(ctx context.Context, userID int64) (*models.Plan, error)
	Create(ctx context.Context, userID int64, remoteID, planName string) (*models.Subscription, error)
	Cancel(ctx context.Context, userID int64, remoteID string) error
	Deactivate(ctx context.Context, userID int64, remoteID string) error
	Activate(ctx context.Context, userID int64, remoteID string) error
	RequestPlanUpdate(ctx context.Context, userID int64, remoteID, planName string) (string, error)
	PendingConfirmation(ctx context.Context, userID int64) (string, error)
	Confirm(ctx context.Context, userID int64, remoteID string) (*models.Plan, bool, error)
}

// createParams are the query parameters the checkout page sends after the
// user approved the subscription on the gateway.
type createParams struct {
	SubID string `validate:"required,max=64,printascii,excludesall=/?#"`
	Plan  string `validate:"required,max=50,alphanum"`
}

// SubscriptionHandler holds dependencies for subscription endpoints.
type SubscriptionHandler struct {
	Service  SubscriptionService
	validate *validator.Validate
}

// NewSubscriptionHandler creates a new SubscriptionHandler.
func NewSubscriptionHandler(service SubscriptionService) *SubscriptionHandler {
	return &SubscriptionHandler{
		Service:  service,
		validate: validator.New(),
	}
}

// RegisterRoutes registers subscription routes. The router is expected to
// run the authentication middleware.
func (h *SubscriptionHandler) RegisterRoutes(router chi.Router) {
	router.Get("/api/plans", h.ListPlans())
	router.Get("/api/dashboard", h.Dashboard())
	router.Get("/api/subscriptions/create", h.Create())
	router.Get("/api/subscriptions/confirmed", h.Confirmed())
	router.Get("/api/subscriptions/{subID}/confirm", h.Confirm())
	router.Post("/api/subscriptions/{subID}/cancel", h.Cancel())
	router.Post("/api/subscriptions/{subID}/update", h.Update())
	router.Post("/api/subscriptions/{subID}/deactivate", h.Deactivate())
	router.Post("/api/subscriptions/{subID}/activate", h.Activate())
}

// ListPlans returns the plan catalog.
func (h *SubscriptionHandler) ListPlans() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		plans, err := h.Service.Plans(r.Context())
		if err != nil {
			log.Printf("ListPlans: failed: %v", err)
			http.Error(w, "failed to list plans", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plans": plans})
	}
}

// Dashboard returns the user's current plan, or null without a subscription.
func (h *SubscriptionHandler) Dashboard() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}

		plan, err := h.Service.CurrentPlan(r.Context(), uid)
		if err != nil {
			log.Printf("Dashboard: user %d: %v", uid, err)
			http.Error(w, "failed to load subscription", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"plan": plan})
	}
}

// Create records the subscription the user just approved on the gateway.
func (h *SubscriptionHandler) Create() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}

		params := createParams{
			SubID: strings.TrimSpace(r.URL.Query().Get("subID")),
			Plan:  strings.TrimSpace(r.URL.Query().Get("plan")),
		}
		if err := h.validate.Struct(params); err != nil {
			writeJSON(w, http.StatusBadRequest, Result{Message: msgInvalidData, Redirect: dashboardPath})
			return
		}

		_, err := h.Service.Create(r.Context(), uid, params.SubID, params.Plan)
		switch {
		case err == nil:
			writeJSON(w, http.StatusCreated, Result{OK: true, Message: msgCreated, Redirect: dashboardPath})
		case errors.Is(err, subscriptions.ErrPlanNotFound):
			http.Error(w, "plan not found", http.StatusNotFound)
		case errors.Is(err, subscriptions.ErrDuplicateSubscription):
			writeJSON(w, http.StatusConflict, Result{Message: msgInvalidData, Redirect: dashboardPath})
		default:
			log.Printf("CreateSubscription: user %d: %v", uid, err)
			writeJSON(w, http.StatusInternalServerError, Result{Message: msgWentWrong + "\n" + err.Error(), Redirect: dashboardPath})
		}
	}
}

// cancelResult adds the deletion outcome the cancel page renders.
type cancelResult struct {
	Result
	IsDeleted bool `json:"is_deleted"`
}

// Cancel cancels the subscription on the gateway and removes it locally.
func (h *SubscriptionHandler) Cancel() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		subID := chi.URLParam(r, "subID")

		err := h.Service.Cancel(r.Context(), uid, subID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, cancelResult{
				Result:    Result{OK: true, Message: msgCancelled, Redirect: dashboardPath},
				IsDeleted: true,
			})
		case errors.Is(err, subscriptions.ErrSubscriptionNotFound):
			writeJSON(w, http.StatusNotFound, cancelResult{Result: Result{Message: msgNoSubscription, Redirect: dashboardPath}})
		default:
			if !errors.Is(err, subscriptions.ErrNotCancelled) {
				log.Printf("CancelSubscription: %s: %v", subID, err)
			}
			writeJSON(w, http.StatusBadGateway, cancelResult{Result: Result{Message: msgNotCancelled, Redirect: dashboardPath}})
		}
	}
}

// Update starts a plan change and hands back the gateway approval URL.
func (h *SubscriptionHandler) Update() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		subID := chi.URLParam(r, "subID")

		link, err := h.Service.RequestPlanUpdate(r.Context(), uid, subID, r.URL.Query().Get("plan"))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, Result{OK: true, Message: msgUpdated, Redirect: link})
		case errors.Is(err, subscriptions.ErrSubscriptionNotFound):
			writeJSON(w, http.StatusNotFound, Result{Message: msgNoSubscription, Redirect: accountPath})
		case errors.Is(err, subscriptions.ErrPlanUnchanged), errors.Is(err, subscriptions.ErrPlanNotFound):
			writeJSON(w, http.StatusConflict, Result{Message: msgWentWrong, Redirect: accountPath})
		default:
			log.Printf("UpdateSubscription: %s: %v", subID, err)
			writeJSON(w, http.StatusBadGateway, Result{Message: msgWentWrong, Redirect: accountPath})
		}
	}
}

// Confirmed returns the subscription ID to confirm after the gateway approval redirect.
func (h *SubscriptionHandler) Confirmed() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}

		subID, err := h.Service.PendingConfirmation(r.Context(), uid)
		if err != nil && !errors.Is(err, subscriptions.ErrSubscriptionNotFound) {
			log.Printf("SubscriptionConfirmed: user %d: %v", uid, err)
			http.Error(w, "failed to load subscription", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"subID": subID})
	}
}

// Confirm applies the plan the gateway reports to the local subscription.
func (h *SubscriptionHandler) Confirm() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		subID := chi.URLParam(r, "subID")

		plan, changed, err := h.Service.Confirm(r.Context(), uid, subID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"plan": plan, "changed": changed})
		case errors.Is(err, subscriptions.ErrSubscriptionNotFound):
			http.Error(w, "subscription not found", http.StatusNotFound)
		case errors.Is(err, subscriptions.ErrUnknownRemotePlan):
			log.Printf("ConfirmSubscription: %s: %v", subID, err)
			http.Error(w, "plan not found", http.StatusNotFound)
		default:
			log.Printf("ConfirmSubscription: %s: %v", subID, err)
			http.Error(w, "failed to confirm subscription", http.StatusBadGateway)
		}
	}
}

// Deactivate suspends the subscription.
func (h *SubscriptionHandler) Deactivate() http.HandlerFunc {
	return h.toggle("DeactivateSubscription", msgDeactivated, h.Service.Deactivate)
}

// Activate resumes the subscription.
func (h *SubscriptionHandler) Activate() http.HandlerFunc {
	return h.toggle("ActivateSubscription", msgActivated, h.Service.Activate)
}

func (h *SubscriptionHandler) toggle(name, success string, apply func(context.Context, int64, string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}
		subID := chi.URLParam(r, "subID")

		back := r.Referer()
		if back == "" {
			back = dashboardPath
		}

		err := apply(r.Context(), uid, subID)
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, Result{OK: true, Message: success, Redirect: dashboardPath})
		case errors.Is(err, subscriptions.ErrSubscriptionNotFound):
			writeJSON(w, http.StatusNotFound, Result{Message: msgNoSubscription, Redirect: back})
		default:
			log.Printf("%s: %s: %v", name, subID, err)
			writeJSON(w, http.StatusBadGateway, Result{Message: msgWentWrong, Redirect: back})
		}
	}
}
