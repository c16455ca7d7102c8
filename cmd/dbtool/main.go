package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/PortNumber53/edenthought/backend/internal/config"
	"github.com/PortNumber53/edenthought/backend/internal/migrations"
	"github.com/PortNumber53/edenthought/backend/internal/models"
	"github.com/PortNumber53/edenthought/backend/internal/store"
)

const (
	envStandardPlanID = "PAYPAL_STANDARD_PLAN_ID"
	envPremiumPlanID  = "PAYPAL_PREMIUM_PLAN_ID"
)

func main() {
	// Load environment variables
	_ = godotenv.Load(
		"../.env",
		".env",
	)

	dsn, err := config.DatabaseURL()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("failed to ping database: %v", err)
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "fix":
			log.Printf("Attempting to fix dirty database...")
			if err := migrations.FixDirtyDatabase(db); err != nil {
				log.Fatalf("failed to fix dirty database: %v", err)
			}
			log.Printf("Database fixed successfully")

		case "force":
			if len(os.Args) < 3 {
				log.Fatalf("usage: %s force <version>", os.Args[0])
			}
			version := os.Args[2]
			var v uint
			if _, err := fmt.Sscanf(version, "%d", &v); err != nil {
				log.Fatalf("invalid version number: %s", version)
			}

			log.Printf("Forcing database version to %d...", v)
			if err := migrations.ForceVersion(db, v); err != nil {
				log.Fatalf("failed to force version: %v", err)
			}
			log.Printf("Database version forced to %d", v)

		case "status":
			v, dirty, err := migrations.Status(db)
			if err != nil {
				log.Fatalf("failed to read migration status: %v", err)
			}
			log.Printf("Schema version: %d (dirty: %t)", v, dirty)

		case "seed":
			if err := seed(ctx, db); err != nil {
				log.Fatalf("failed to seed database: %v", err)
			}
			log.Printf("Seed data applied")

		default:
			log.Printf("Usage: %s [fix|force <version>|status|seed]", os.Args[0])
			os.Exit(1)
		}
	} else {
		log.Printf("Applying migrations...")
		if err := migrations.Up(db); err != nil {
			log.Fatalf("failed to apply migrations: %v", err)
		}
		log.Printf("Migrations applied successfully")
	}
}

// seed upserts the plan catalog and a couple of sample articles. Remote plan
// IDs come from the PayPal dashboard.
func seed(ctx context.Context, db *sql.DB) error {
	standardID := os.Getenv(envStandardPlanID)
	premiumID := os.Getenv(envPremiumPlanID)
	if standardID == "" || premiumID == "" {
		return fmt.Errorf("%s and %s are required", envStandardPlanID, envPremiumPlanID)
	}

	plans, err := store.NewPlanStore(db)
	if err != nil {
		return err
	}
	catalog := []models.Plan{
		{
			Name:         models.PlanStandard,
			RemotePlanID: standardID,
			CostCents:    499,
			Currency:     "USD",
			Description:  "Access to every free article.",
			Tier:         models.TierStandard,
		},
		{
			Name:         models.PlanPremium,
			RemotePlanID: premiumID,
			CostCents:    999,
			Currency:     "USD",
			Description:  "Access to every article, premium included.",
			Tier:         models.TierPremium,
		},
	}
	for i := range catalog {
		if err := plans.UpsertPlan(ctx, &catalog[i]); err != nil {
			return err
		}
		log.Printf("Plan %s -> %s (id %d)", catalog[i].Name, catalog[i].RemotePlanID, catalog[i].ID)
	}

	st, err := store.New(db)
	if err != nil {
		return err
	}
	articles := []models.Article{
		{Title: "Welcome to Edenthought", Content: "What to expect from the writers here."},
		{Title: "The Long Game of Habits", Content: "A deep dive for premium readers.", IsPremium: true},
	}
	for i := range articles {
		if err := st.CreateArticle(ctx, &articles[i]); err != nil {
			return err
		}
		log.Printf("Article %q -> /%s", articles[i].Title, articles[i].Slug)
	}
	return nil
}
