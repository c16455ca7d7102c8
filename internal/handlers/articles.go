package handlers

import (
	"context"
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/PortNumber53/edenthought/backend/internal/models"
	"github.com/PortNumber53/edenthought/backend/internal/subscriptions"
)

// ArticleGate decides which articles a user may read.
type ArticleGate interface {
	VisibleArticles(ctx context.Context, userID int64) ([]models.Article, error)
	Article(ctx context.Context, userID int64, slug string) (*models.Article, error)
}

// Articles lists the articles unlocked by the user's subscription. The
// "articles" field is null when the user is not entitled and an empty array
// when nothing is published for their tier.
func Articles(gate ArticleGate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}

		articles, err := gate.VisibleArticles(r.Context(), uid)
		if err != nil {
			log.Printf("Articles: user %d: %v", uid, err)
			http.Error(w, "failed to load articles", http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"articles": articles})
	}
}

// Article returns a single article by slug.
func Article(gate ArticleGate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uid, ok := userID(w, r)
		if !ok {
			return
		}

		article, err := gate.Article(r.Context(), uid, chi.URLParam(r, "slug"))
		switch {
		case err == nil:
			writeJSON(w, http.StatusOK, map[string]any{"article": article})
		case errors.Is(err, subscriptions.ErrArticleNotFound):
			http.Error(w, "article not found", http.StatusNotFound)
		case errors.Is(err, subscriptions.ErrNotEntitled):
			http.Error(w, "this article requires a premium subscription", http.StatusForbidden)
		default:
			log.Printf("Article: user %d: %v", uid, err)
			http.Error(w, "failed to load article", http.StatusInternalServerError)
		}
	}
}
