package feed

import (
	"rssreader/internal/domain"
	"slices"
	"time"

	"github.com/google/uuid"
)

func NormalizeFeed(doc Document, feedURL string) domain.Feed {
	return domain.Feed{
		ID:          uuid.NewString(),
		URL:         feedURL,
		Title:       doc.Title,
		Description: doc.Description,
	}
}

// NormalizePosts assigns fresh ids and the owning feed id, newest publication first.
func NormalizePosts(items []Item, feedID string) []domain.Post {
	posts := make([]domain.Post, 0, len(items))
	for _, it := range items {
		posts = append(posts, domain.Post{
			ID:          uuid.NewString(),
			FeedID:      feedID,
			Title:       it.Title,
			Link:        it.Link,
			Description: it.Description,
			PublishedAt: it.PublishedAt,
		})
	}

	sortNewestFirst(posts)

	return posts
}

func sortNewestFirst(posts []domain.Post) {
	slices.SortStableFunc(posts, func(a, b domain.Post) int {
		return b.PublishedAt.Compare(a.PublishedAt)
	})
}

func newestPublished(posts []domain.Post) time.Time {
	var newest time.Time
	for _, p := range posts {
		if p.PublishedAt.After(newest) {
			newest = p.PublishedAt
		}
	}

	return newest
}
