package models

import "time"

// Article is a piece of published content. Premium articles are only visible
// to premium subscribers.
type Article struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Slug       string    `json:"slug"`
	Content    string    `json:"content"`
	IsPremium  bool      `json:"is_premium"`
	AuthorID   int64     `json:"author_id"`
	DatePosted time.Time `json:"date_posted"`
}

// RequiredTier returns the lowest tier that may read the article.
func (a Article) RequiredTier() Tier {
	if a.IsPremium {
		return TierPremium
	}
	return TierStandard
}
