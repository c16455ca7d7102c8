// Package paypal wraps the PayPal subscriptions REST API used as the billing
// gateway. Calls are single-shot: there is no retry and transport failures are
// returned to the caller.
package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultBaseURL points at the PayPal sandbox.
const DefaultBaseURL = "https://api-m.sandbox.paypal.com"

// ErrSubscriptionNotCancelled is returned by Cancel when the gateway does not
// answer with 204 No Content.
var ErrSubscriptionNotCancelled = errors.New("paypal: subscription not cancelled")

// Config holds the gateway credentials and endpoints.
type Config struct {
	BaseURL  string
	ClientID string
	Secret   string

	// ReturnURL and CancelURL are handed to PayPal when a plan revision needs
	// buyer approval.
	ReturnURL string
	CancelURL string

	// Timeout bounds each HTTP round-trip. Zero means no timeout.
	Timeout time.Duration
}

// Client talks to the PayPal REST API directly (no SDK dependency).
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient creates a new PayPal API client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// AccessToken exchanges the client credentials for a bearer token. Tokens are
// not cached; callers fetch one per request group.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "client_credentials")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+"/v1/oauth2/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ClientID, c.cfg.Secret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")

	status, body, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("access token: %w", err)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("access token: %s", apiError(status, body))
	}

	var tok tokenResponse
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("access token: parse response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("access token: missing access_token in response")
	}
	return tok.AccessToken, nil
}

// Cancel cancels a subscription. It returns true on 204 and
// ErrSubscriptionNotCancelled for any other status code.
func (c *Client) Cancel(ctx context.Context, token, subscriptionID string) (bool, error) {
	status, _, err := c.post(ctx, token, subscriptionPath(subscriptionID, "cancel"), reasonBody("Customer requested cancellation"))
	if err != nil {
		return false, fmt.Errorf("cancel subscription: %w", err)
	}
	if status != http.StatusNoContent {
		log.Printf("[paypal] cancel %s returned status %d", subscriptionID, status)
		return false, ErrSubscriptionNotCancelled
	}

	log.Printf("[paypal] Cancelled subscription %s", subscriptionID)
	return true, nil
}

// Deactivate suspends a subscription and returns the raw status code. 204
// means success.
func (c *Client) Deactivate(ctx context.Context, token, subscriptionID string) (int, error) {
	status, _, err := c.post(ctx, token, subscriptionPath(subscriptionID, "suspend"), reasonBody("Customer requested deactivation"))
	if err != nil {
		return 0, fmt.Errorf("suspend subscription: %w", err)
	}
	return status, nil
}

// Activate reactivates a suspended subscription and returns the raw status
// code. 204 means success.
func (c *Client) Activate(ctx context.Context, token, subscriptionID string) (int, error) {
	status, _, err := c.post(ctx, token, subscriptionPath(subscriptionID, "activate"), reasonBody("Customer requested reactivation"))
	if err != nil {
		return 0, fmt.Errorf("activate subscription: %w", err)
	}
	return status, nil
}

type link struct {
	Href   string `json:"href"`
	Rel    string `json:"rel"`
	Method string `json:"method"`
}

type reviseRequest struct {
	PlanID             string             `json:"plan_id"`
	ApplicationContext applicationContext `json:"application_context"`
}

type applicationContext struct {
	ReturnURL string `json:"return_url,omitempty"`
	CancelURL string `json:"cancel_url,omitempty"`
}

// UpdatePlan asks PayPal to move the subscription to planID. On success it
// returns the approval URL the buyer must visit. A rejected revision yields an
// empty string and a nil error; only transport failures return an error.
func (c *Client) UpdatePlan(ctx context.Context, token, subscriptionID, planID string) (string, error) {
	payload := reviseRequest{
		PlanID: planID,
		ApplicationContext: applicationContext{
			ReturnURL: c.cfg.ReturnURL,
			CancelURL: c.cfg.CancelURL,
		},
	}

	status, body, err := c.post(ctx, token, subscriptionPath(subscriptionID, "revise"), payload)
	if err != nil {
		return "", fmt.Errorf("revise subscription: %w", err)
	}
	if status != http.StatusOK {
		log.Printf("[paypal] revise %s rejected: %s", subscriptionID, apiError(status, body))
		return "", nil
	}

	var resp struct {
		Links []link `json:"links"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		log.Printf("[paypal] revise %s: unreadable response: %v", subscriptionID, err)
		return "", nil
	}
	for _, l := range resp.Links {
		if l.Rel == "approve" {
			return l.Href, nil
		}
	}
	return "", nil
}

// SubscriptionDetails is the subset of the PayPal subscription resource the
// application reads.
type SubscriptionDetails struct {
	ID     string `json:"id"`
	PlanID string `json:"plan_id"`
	Status string `json:"status"`
}

// Remote subscription statuses reported by PayPal.
const (
	StatusActive    = "ACTIVE"
	StatusSuspended = "SUSPENDED"
	StatusCancelled = "CANCELLED"
	StatusExpired   = "EXPIRED"
)

// Subscription fetches the remote subscription resource.
func (c *Client) Subscription(ctx context.Context, token, subscriptionID string) (*SubscriptionDetails, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+subscriptionPath(subscriptionID, ""), nil)
	if err != nil {
		return nil, err
	}
	setBearer(req, token)

	status, body, err := c.do(req)
	if err != nil {
		return nil, fmt.Errorf("get subscription: %w", err)
	}
	if status != http.StatusOK {
		return nil, fmt.Errorf("get subscription: %s", apiError(status, body))
	}

	var details SubscriptionDetails
	if err := json.Unmarshal(body, &details); err != nil {
		return nil, fmt.Errorf("get subscription: parse response: %w", err)
	}
	return &details, nil
}

// CurrentPlan returns the remote plan identifier currently attached to the
// subscription.
func (c *Client) CurrentPlan(ctx context.Context, token, subscriptionID string) (string, error) {
	details, err := c.Subscription(ctx, token, subscriptionID)
	if err != nil {
		return "", err
	}
	if details.PlanID == "" {
		return "", fmt.Errorf("get subscription: missing plan_id for %s", subscriptionID)
	}
	return details.PlanID, nil
}

// HTTP helpers

func subscriptionPath(id, action string) string {
	p := "/v1/billing/subscriptions/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func reasonBody(reason string) map[string]string {
	return map[string]string{"reason": reason}
}

func setBearer(req *http.Request, token string) {
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
}

func (c *Client) post(ctx context.Context, token, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, err
	}
	setBearer(req, token)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("PayPal-Request-Id", uuid.NewString())

	return c.do(req)
}

func (c *Client) do(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("paypal request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read paypal response: %w", err)
	}
	return resp.StatusCode, body, nil
}

func apiError(status int, body []byte) string {
	var payload struct {
		Name             string `json:"name"`
		Message          string `json:"message"`
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
	}
	msg := "unknown error"
	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			msg = payload.Message
		case payload.ErrorDescription != "":
			msg = payload.ErrorDescription
		case payload.Name != "":
			msg = payload.Name
		}
	}
	return fmt.Sprintf("paypal API error (%d): %s", status, msg)
}
