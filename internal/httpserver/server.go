package httpserver

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/PortNumber53/edenthought/backend/internal/config"
	"github.com/PortNumber53/edenthought/backend/internal/handlers"
	authmw "github.com/PortNumber53/edenthought/backend/internal/middleware"
	"github.com/PortNumber53/edenthought/backend/internal/worker"
)

// Service is everything the HTTP layer needs from the subscription flow.
type Service interface {
	handlers.SubscriptionService
	handlers.ArticleGate
}

// Server wraps an http.Server with convenience helpers for startup/shutdown.
type Server struct {
	httpServer *http.Server
	worker     *worker.Worker
}

// New constructs an HTTP server. db backs the health check and sweeper may be
// nil when the reconciliation schedule is disabled.
func New(cfg config.Config, db handlers.Pinger, service Service, sweeper *worker.Worker) *Server {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", handlers.Health(db))

	router.Group(func(r chi.Router) {
		r.Use(authmw.Authenticate([]byte(cfg.JWTSecret)))

		handlers.NewSubscriptionHandler(service).RegisterRoutes(r)
		r.Get("/api/articles", handlers.Articles(service))
		r.Get("/api/articles/{slug}", handlers.Article(service))
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{httpServer: srv, worker: sweeper}
}

// Start begins serving HTTP traffic and starts the sweep worker.
func (s *Server) Start() error {
	if s.worker != nil {
		log.Println("[server] Starting reconciliation worker...")
		s.worker.Start(context.Background())
	}
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and worker.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.worker != nil {
		log.Println("[server] Shutting down reconciliation worker...")
		if err := s.worker.Stop(ctx); err != nil {
			log.Printf("[server] Worker shutdown error: %v", err)
		}
	}
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for testing.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
