package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"rssreader/internal/domain"
	"rssreader/internal/state"
	"runtime"
	"time"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"
)

const refreshMaxConcurrencyGrowthFactor = 4

// Refresher re-fetches every known feed and merges the posts that are new since the
// feed's watermark.
type Refresher struct {
	store       *state.Store
	fetcher     DocumentFetcher
	parser      *Parser
	summaries   *Summaries
	concurrency int
	now         func() time.Time
	log         *slog.Logger
}

func NewRefresher(
	store *state.Store,
	fetcher DocumentFetcher,
	parser *Parser,
	summaries *Summaries,
	log *slog.Logger,
) *Refresher {
	return &Refresher{
		store:       store,
		fetcher:     fetcher,
		parser:      parser,
		summaries:   summaries,
		concurrency: runtime.NumCPU() * refreshMaxConcurrencyGrowthFactor,
		now:         time.Now,
		log:         log,
	}
}

type refreshedFeed struct {
	feed  domain.Feed
	items []Item
}

// Refresh runs a single cycle and reports how many posts were merged. A transport failure
// of any feed fails the whole cycle and nothing is merged; a feed whose document no
// longer parses is skipped.
func (r *Refresher) Refresh(ctx context.Context) (int, error) {
	snapshot := r.store.Snapshot()
	if len(snapshot.Feeds) == 0 {
		return 0, nil
	}

	results := make([]*refreshedFeed, len(snapshot.Feeds))
	parseErrs := make([]error, len(snapshot.Feeds))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, min(r.concurrency, len(snapshot.Feeds))))

	for idx, f := range snapshot.Feeds {
		g.Go(func() error {
			contents, err := r.fetcher.Fetch(gctx, f.URL)
			if err != nil {
				return fmt.Errorf("fetch feed (URL = %s): %w", f.URL, err)
			}

			doc, err := r.parser.Parse(contents)
			if err != nil {
				parseErrs[idx] = fmt.Errorf("parse feed (URL = %s): %w", f.URL, err)
				return nil
			}

			results[idx] = &refreshedFeed{feed: f, items: doc.Items}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return 0, err
	}

	if err := errors.Join(parseErrs...); err != nil {
		r.log.WarnContext(ctx, "Skipping feeds that failed to parse",
			"error", err)
	}

	var candidates []domain.Post
	for _, res := range results {
		if res == nil {
			continue
		}

		fresh := freshItems(snapshot, res.feed.ID, res.items)
		candidates = append(candidates, NormalizePosts(fresh, res.feed.ID)...)
	}

	candidates = r.summaries.Apply(ctx, candidates)

	var merged int
	r.store.UpdateFunc(func(current domain.AppState) state.Patch {
		now := r.now()

		// The state may have moved on while fetching, so the filter runs again on it.
		known := knownPostKeys(current.Posts)
		fresh := lo.Filter(candidates, func(p domain.Post, _ int) bool {
			if !p.PublishedAt.After(current.FeedWatermarks[p.FeedID]) {
				return false
			}

			_, seen := known[postKey(p.FeedID, p.Link)]
			return p.Link == "" || !seen
		})

		patch := state.Patch{LastUpdateWatermark: &now}
		if len(fresh) == 0 {
			return patch
		}

		sortNewestFirst(fresh)
		merged = len(fresh)

		marks := make(map[string]time.Time)
		for _, p := range fresh {
			if p.PublishedAt.After(marks[p.FeedID]) {
				marks[p.FeedID] = p.PublishedAt
			}
		}

		posts := append(fresh, current.Posts...)
		patch.Posts = &posts
		patch.FeedWatermarks = marks

		return patch
	})

	return merged, nil
}

func freshItems(snapshot domain.AppState, feedID string, items []Item) []Item {
	watermark := snapshot.FeedWatermarks[feedID]
	known := knownPostKeys(snapshot.Posts)

	fresh := lo.Filter(items, func(it Item, _ int) bool {
		if !it.PublishedAt.After(watermark) {
			return false
		}

		_, seen := known[postKey(feedID, it.Link)]
		return it.Link == "" || !seen
	})

	return lo.UniqBy(fresh, func(it Item) string {
		if it.Link == "" {
			return it.Title + "\x00" + it.PublishedAt.String()
		}

		return it.Link
	})
}

func knownPostKeys(posts []domain.Post) map[string]domain.Post {
	return lo.KeyBy(posts, func(p domain.Post) string {
		return postKey(p.FeedID, p.Link)
	})
}

func postKey(feedID string, link string) string {
	return feedID + "\x00" + link
}
