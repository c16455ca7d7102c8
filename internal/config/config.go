package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/PortNumber53/edenthought/backend/internal/paypal"
)

// Config captures runtime configuration values used by the backend service.
type Config struct {
	// ServerAddress is the host:port pair the HTTP server listens on. Defaults to ":18111".
	ServerAddress string

	// DatabaseURL is the Postgres DSN used by database/sql.
	DatabaseURL string

	// PayPal holds the gateway credentials and the URLs PayPal sends the
	// buyer back to after approving a plan revision.
	PayPal paypal.Config

	// AppBaseURL is the public URL of the web client.
	AppBaseURL string

	// JWTSecret verifies inbound bearer tokens.
	JWTSecret string

	// RedisURL enables distributed subscription locks when set.
	RedisURL string

	// AMQPURL enables lifecycle event publishing when set.
	AMQPURL string

	// EventsExchange is the topic exchange events are published to.
	EventsExchange string

	// ReconcileSchedule is a cron spec for the reconciliation sweep. Empty disables it.
	ReconcileSchedule string

	// CORSAllowedOrigins lists origins allowed to call the API.
	CORSAllowedOrigins []string
}

const (
	defaultServerAddress  = ":18111"
	defaultAppBaseURL     = "http://localhost:18111"
	defaultEventsExchange = "edenthought.subscriptions"
	envServerAddress      = "BACKEND_ADDR"
	envDatabaseURL        = "DATABASE_URL"
	envPayPalClientID     = "PAYPAL_CLIENT_ID"
	envPayPalSecret       = "PAYPAL_SECRET_ID"
	envPayPalBaseURL      = "PAYPAL_BASE_URL"
	envPayPalTimeout      = "PAYPAL_TIMEOUT"
	envAppBaseURL         = "APP_BASE_URL"
	envJWTSecret          = "JWT_SECRET"
	envRedisURL           = "REDIS_URL"
	envAMQPURL            = "AMQP_URL"
	envEventsExchange     = "EVENTS_EXCHANGE"
	envReconcileSchedule  = "RECONCILE_SCHEDULE"
	envCORSAllowedOrigins = "CORS_ALLOWED_ORIGINS"
)

// Paths on the web client PayPal redirects to after a plan revision.
const (
	confirmedPath = "/subscriptions/confirmed"
	cancelledPath = "/account"
)

// Load reads configuration from environment variables, applies defaults, and returns
// a Config structure. Required values return an error when missing.
func Load() (Config, error) {
	cfg := Config{
		ServerAddress:     firstNonEmpty(os.Getenv(envServerAddress), defaultServerAddress),
		AppBaseURL:        strings.TrimRight(firstNonEmpty(os.Getenv(envAppBaseURL), defaultAppBaseURL), "/"),
		JWTSecret:         os.Getenv(envJWTSecret),
		RedisURL:          strings.TrimSpace(os.Getenv(envRedisURL)),
		AMQPURL:           strings.TrimSpace(os.Getenv(envAMQPURL)),
		EventsExchange:    firstNonEmpty(os.Getenv(envEventsExchange), defaultEventsExchange),
		ReconcileSchedule: strings.TrimSpace(os.Getenv(envReconcileSchedule)),
	}

	dsn, err := DatabaseURL()
	if err != nil {
		return Config{}, err
	}
	cfg.DatabaseURL = dsn

	if cfg.JWTSecret == "" {
		return Config{}, fmt.Errorf("%s is required", envJWTSecret)
	}
	if _, err := url.ParseRequestURI(cfg.AppBaseURL); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", envAppBaseURL, err)
	}

	cfg.PayPal = paypal.Config{
		BaseURL:   strings.TrimRight(firstNonEmpty(os.Getenv(envPayPalBaseURL), paypal.DefaultBaseURL), "/"),
		ClientID:  os.Getenv(envPayPalClientID),
		Secret:    os.Getenv(envPayPalSecret),
		ReturnURL: cfg.AppBaseURL + confirmedPath,
		CancelURL: cfg.AppBaseURL + cancelledPath,
	}
	if cfg.PayPal.ClientID == "" {
		return Config{}, fmt.Errorf("%s is required", envPayPalClientID)
	}
	if cfg.PayPal.Secret == "" {
		return Config{}, fmt.Errorf("%s is required", envPayPalSecret)
	}
	if value := os.Getenv(envPayPalTimeout); value != "" {
		timeout, err := time.ParseDuration(value)
		if err != nil || timeout < 0 {
			return Config{}, fmt.Errorf("invalid %s: %q", envPayPalTimeout, value)
		}
		cfg.PayPal.Timeout = timeout
	}

	if cfg.ReconcileSchedule != "" {
		if _, err := cron.ParseStandard(cfg.ReconcileSchedule); err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", envReconcileSchedule, err)
		}
	}

	cfg.CORSAllowedOrigins = splitList(firstNonEmpty(os.Getenv(envCORSAllowedOrigins), "*"))

	return cfg, nil
}

// DatabaseURL returns the required Postgres DSN. Tools that only touch the
// database use it instead of Load.
func DatabaseURL() (string, error) {
	dsn := strings.TrimSpace(os.Getenv(envDatabaseURL))
	if dsn == "" {
		return "", fmt.Errorf("%s is required", envDatabaseURL)
	}
	return dsn, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
