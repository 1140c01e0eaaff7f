package feed

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"rssreader/internal/domain"
	"rssreader/internal/summarizer"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	summariesMaxParallelism = 4
	summaryTTL              = 24 * time.Hour
	summaryCacheMaxEntries  = 1024
	fallbackSummaryMaxChars = 200
)

// Summaries fills Post.Summary before posts reach the store. A nil *Summaries or one
// without a summarizer leaves posts untouched.
type Summaries struct {
	summarizer summarizer.Summarizer
	cache      *expirable.LRU[string, string]
	log        *slog.Logger
}

func NewSummaries(s summarizer.Summarizer, log *slog.Logger) *Summaries {
	return &Summaries{
		summarizer: s,
		cache:      expirable.NewLRU[string, string](summaryCacheMaxEntries, nil, summaryTTL),
		log:        log,
	}
}

// Apply returns a copy of posts with summaries, keeping order.
func (s *Summaries) Apply(ctx context.Context, posts []domain.Post) []domain.Post {
	if s == nil || s.summarizer == nil || len(posts) == 0 {
		return posts
	}

	out := slices.Clone(posts)
	workerCount := min(summariesMaxParallelism, len(out))

	tasks := make(chan int)
	var wg sync.WaitGroup

	for range workerCount {
		wg.Go(func() {
			for i := range tasks {
				out[i].Summary = s.summarize(ctx, out[i])
			}
		})
	}

	for i := range out {
		tasks <- i
	}

	close(tasks)
	wg.Wait()

	return out
}

func (s *Summaries) summarize(ctx context.Context, post domain.Post) string {
	text := strings.TrimSpace(post.Description)
	if text == "" {
		return ""
	}

	// Posts without a link are never cached.
	cacheKey := summaryCacheKey(post.Link, text)
	if cacheKey != "" {
		if summary, ok := s.cache.Get(cacheKey); ok {
			return summary
		}
	}

	summary, err := s.summarizer.Summarize(ctx, summarizer.Input{
		Title:     post.Title,
		Text:      text,
		SourceURL: post.Link,
	})
	if err != nil {
		s.log.ErrorContext(ctx, "Failed to summarize post",
			"error", err,
			"link", post.Link,
			"fallback", true,
			"textLen", len(text))

		return fallbackSummary(text)
	}

	summary = strings.TrimSpace(summary)
	if summary == "" {
		return fallbackSummary(text)
	}

	if cacheKey != "" {
		s.cache.Add(cacheKey, summary)
	}

	return summary
}

func summaryCacheKey(link string, text string) string {
	link = strings.TrimSpace(link)
	text = strings.TrimSpace(text)
	if link == "" || text == "" {
		return ""
	}

	hash := sha256.Sum256([]byte(text))

	return link + "|" + hex.EncodeToString(hash[:])
}

func fallbackSummary(text string) string {
	normalized := strings.Join(strings.Fields(text), " ")

	runes := []rune(normalized)
	if len(runes) <= fallbackSummaryMaxChars {
		return normalized
	}

	return strings.TrimSpace(string(runes[:fallbackSummaryMaxChars])) + "..."
}
