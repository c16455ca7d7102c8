package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/PortNumber53/edenthought/backend/internal/config"
	"github.com/PortNumber53/edenthought/backend/internal/events"
	"github.com/PortNumber53/edenthought/backend/internal/httpserver"
	"github.com/PortNumber53/edenthought/backend/internal/lock"
	"github.com/PortNumber53/edenthought/backend/internal/migrations"
	"github.com/PortNumber53/edenthought/backend/internal/paypal"
	"github.com/PortNumber53/edenthought/backend/internal/store"
	"github.com/PortNumber53/edenthought/backend/internal/subscriptions"
	"github.com/PortNumber53/edenthought/backend/internal/worker"
)

func main() {
	// Best-effort: load environment variables from .env-style files in local
	// development. These calls are safe to ignore in production environments.
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	logDBTarget("primary", cfg.DatabaseURL)
	configureDB(db)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if err := runMigrationsWithDirtyFix(db, "primary"); err != nil {
		log.Fatalf("failed to apply database migrations: %v", err)
	}

	st, err := store.New(db)
	if err != nil {
		log.Fatalf("failed to create store: %v", err)
	}
	plans, err := store.NewPlanStore(db)
	if err != nil {
		log.Fatalf("failed to create plan store: %v", err)
	}

	locker, closeLocker := newLocker(cfg)
	defer closeLocker()

	publisher, closePublisher := newPublisher(cfg)
	defer closePublisher()

	gateway := paypal.NewClient(cfg.PayPal)
	service := subscriptions.NewService(gateway, st, plans, locker, publisher)

	var sweeper *worker.Worker
	if cfg.ReconcileSchedule != "" {
		wcfg := worker.DefaultConfig()
		wcfg.Schedule = cfg.ReconcileSchedule
		sweeper, err = worker.New(wcfg, service)
		if err != nil {
			log.Fatalf("failed to create reconciliation worker: %v", err)
		}
	} else {
		log.Printf("reconciliation sweep disabled (RECONCILE_SCHEDULE not set)")
	}

	srv := httpserver.New(cfg, db, service, sweeper)

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		<-shutdownCtx.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			log.Printf("graceful shutdown failed: %v", err)
		}
	}()

	log.Printf("backend starting on %s", cfg.ServerAddress)
	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("server exited with error: %v", err)
		os.Exit(1)
	}
}

func configureDB(db *sql.DB) {
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
}

// newLocker uses Redis when configured so several backend instances share
// subscription locks; otherwise locks are process-local.
func newLocker(cfg config.Config) (lock.Locker, func()) {
	if cfg.RedisURL == "" {
		log.Printf("locks: in-process (REDIS_URL not set)")
		return lock.NewMemory(), func() {}
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		log.Fatalf("invalid REDIS_URL: %v", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		log.Fatalf("failed to ping redis: %v", err)
	}

	log.Printf("locks: redis at %s", opts.Addr)
	return lock.NewRedis(client, lock.RedisOptions{}), func() {
		if err := client.Close(); err != nil {
			log.Printf("failed to close redis client: %v", err)
		}
	}
}

func newPublisher(cfg config.Config) (events.Publisher, func()) {
	if cfg.AMQPURL == "" {
		log.Printf("events: disabled (AMQP_URL not set)")
		return events.Noop{}, func() {}
	}

	publisher, err := events.NewRabbitMQ(cfg.AMQPURL, cfg.EventsExchange)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	log.Printf("events: publishing to exchange %s", cfg.EventsExchange)
	return publisher, publisher.Close
}

func runMigrationsWithDirtyFix(db *sql.DB, name string) error {
	if err := migrations.Up(db); err != nil {
		log.Printf("migrations(%s): error detected: %v (type: %T)", name, err, err)
		if strings.Contains(err.Error(), "Dirty database version") {
			log.Printf("migrations(%s): dirty database detected, attempting to fix...", name)
			if fixErr := migrations.FixDirtyDatabase(db); fixErr != nil {
				log.Printf("migrations(%s): failed to fix dirty database: %v", name, fixErr)
				return err
			}
			if retryErr := migrations.Up(db); retryErr != nil {
				return retryErr
			}
			return nil
		}
		return err
	}
	return nil
}

func logDBTarget(name, dsn string) {
	// Avoid logging secrets: only log hostname + database path.
	u, err := url.Parse(dsn)
	if err != nil {
		log.Printf("db(%s): configured (dsn parse error: %v)", name, err)
		return
	}
	log.Printf("db(%s): host=%s db=%s", name, u.Hostname(), strings.TrimPrefix(u.Path, "/"))
}
