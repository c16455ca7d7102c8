package subscriptions

import (
	"context"
	"errors"

	"github.com/PortNumber53/edenthought/backend/internal/models"
)

// VisibleArticles returns the articles the user's subscription unlocks.
// A nil slice means the user is not entitled to the listing at all (no
// subscription or an inactive one). An entitled user with nothing published
// gets an empty, non-nil slice. Standard plans see only non-premium articles.
func (s *Service) VisibleArticles(ctx context.Context, userID int64) ([]models.Article, error) {
	sub, err := s.entitlement(ctx, userID)
	if err != nil || sub == nil {
		return nil, err
	}

	articles, err := s.store.ListArticles(ctx, sub.Entitles(models.TierPremium))
	if err != nil {
		return nil, err
	}
	if articles == nil {
		articles = []models.Article{}
	}
	return articles, nil
}

// Article returns a single article. Free articles are readable by any
// signed-in user; premium ones need an active premium subscription, otherwise
// ErrNotEntitled is returned.
func (s *Service) Article(ctx context.Context, userID int64, slug string) (*models.Article, error) {
	article, err := s.store.GetArticleBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if !article.IsPremium {
		return article, nil
	}

	sub, err := s.entitlement(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !sub.Entitles(article.RequiredTier()) {
		return nil, ErrNotEntitled
	}
	return article, nil
}

// entitlement returns the user's active subscription, or nil when there is
// none.
func (s *Service) entitlement(ctx context.Context, userID int64) (*models.Subscription, error) {
	sub, err := s.store.GetSubscriptionByUser(ctx, userID)
	if errors.Is(err, ErrSubscriptionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if !sub.IsActive {
		return nil, nil
	}
	return sub, nil
}
