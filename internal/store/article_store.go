package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gosimple/slug"

	"github.com/PortNumber53/edenthought/backend/internal/models"
)

// ErrArticleNotFound is returned when an article is not found
var ErrArticleNotFound = errors.New("article not found")

const articleColumns = `id, title, slug, content, is_premium, COALESCE(author_id, 0), date_posted`

func scanArticle(row rowScanner) (*models.Article, error) {
	var a models.Article
	if err := row.Scan(&a.ID, &a.Title, &a.Slug, &a.Content, &a.IsPremium, &a.AuthorID, &a.DatePosted); err != nil {
		return nil, err
	}
	return &a, nil
}

// ListArticles returns articles newest first. Premium articles are left out
// unless includePremium is set. The result is never nil.
func (s *Store) ListArticles(ctx context.Context, includePremium bool) ([]models.Article, error) {
	query := `SELECT ` + articleColumns + ` FROM articles`
	if !includePremium {
		query += ` WHERE is_premium = FALSE`
	}
	query += ` ORDER BY date_posted DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	defer rows.Close()

	articles := []models.Article{}
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, fmt.Errorf("scan article: %w", err)
		}
		articles = append(articles, *a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate articles: %w", err)
	}
	return articles, nil
}

// GetArticleBySlug returns a single article.
func (s *Store) GetArticleBySlug(ctx context.Context, articleSlug string) (*models.Article, error) {
	a, err := scanArticle(s.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE slug = $1`, articleSlug))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrArticleNotFound
		}
		return nil, fmt.Errorf("get article by slug: %w", err)
	}
	return a, nil
}

// CreateArticle inserts an article, deriving the slug from the title when it
// is not set.
func (s *Store) CreateArticle(ctx context.Context, a *models.Article) error {
	if a.Slug == "" {
		a.Slug = slug.Make(a.Title)
	}

	var authorID any
	if a.AuthorID > 0 {
		authorID = a.AuthorID
	}

	err := s.db.QueryRowContext(ctx,
		`INSERT INTO articles (title, slug, content, is_premium, author_id)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (slug) DO UPDATE
		 SET title = EXCLUDED.title, content = EXCLUDED.content, is_premium = EXCLUDED.is_premium
		 RETURNING id, date_posted`,
		a.Title, a.Slug, a.Content, a.IsPremium, authorID,
	).Scan(&a.ID, &a.DatePosted)
	if err != nil {
		return fmt.Errorf("create article: %w", err)
	}
	return nil
}
