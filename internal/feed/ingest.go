package feed

import (
	"context"
	"fmt"
	"log/slog"
	"rssreader/internal/domain"
	"rssreader/internal/metrics"
	"rssreader/internal/state"
	"slices"
	"strings"
	"time"
)

// DocumentFetcher loads the raw text of a feed document.
type DocumentFetcher interface {
	Fetch(ctx context.Context, target string) (string, error)
}

// Ingester turns a submitted URL into a stored feed with its posts.
type Ingester struct {
	store     *state.Store
	fetcher   DocumentFetcher
	parser    *Parser
	summaries *Summaries
	log       *slog.Logger
}

func NewIngester(
	store *state.Store,
	fetcher DocumentFetcher,
	parser *Parser,
	summaries *Summaries,
	log *slog.Logger,
) *Ingester {
	return &Ingester{
		store:     store,
		fetcher:   fetcher,
		parser:    parser,
		summaries: summaries,
		log:       log,
	}
}

// Ingest runs one submission to completion. Every outcome is written to the store; the
// returned error is the classified failure, if any.
func (i *Ingester) Ingest(ctx context.Context, rawURL string) error {
	candidate := strings.TrimSpace(rawURL)
	start := time.Now()

	i.store.Update(state.Patch{
		ProcessState:      state.Set(domain.ProcessInitial),
		ProcessStateError: state.Set(domain.ErrorNone),
		Form: &state.FormPatch{
			Valid:        state.Set(true),
			ProcessState: state.Set(domain.ProcessSending),
			ErrorKind:    state.Set(domain.ErrorNone),
			URL:          state.Set(rawURL),
		},
	})

	if err := Validate(i.store.Snapshot().Feeds, candidate); err != nil {
		i.failForm(ctx, candidate, err)
		return err
	}

	contents, err := i.fetcher.Fetch(ctx, candidate)
	if err != nil {
		i.failGlobal(ctx, candidate, err)
		return err
	}

	doc, err := i.parser.Parse(contents)
	if err != nil {
		i.failGlobal(ctx, candidate, err)
		return err
	}

	newFeed := NormalizeFeed(doc, candidate)
	newPosts := i.summaries.Apply(ctx, NormalizePosts(doc.Items, newFeed.ID))

	var dupErr error
	i.store.UpdateFunc(func(current domain.AppState) state.Patch {
		// Another submission of the same URL may have finished while this one was fetching.
		if _, ok := current.FeedByURL(candidate); ok {
			dupErr = domain.NewError(domain.ErrorDuplicateFeed, fmt.Errorf("feed already exists (URL = %s)", candidate))
			return formFailurePatch(domain.ErrorDuplicateFeed)
		}

		feeds := append([]domain.Feed{newFeed}, current.Feeds...)
		posts := append(slices.Clone(newPosts), current.Posts...)

		return state.Patch{
			Feeds:             &feeds,
			Posts:             &posts,
			ProcessState:      state.Set(domain.ProcessFinished),
			ProcessStateError: state.Set(domain.ErrorNone),
			FeedWatermarks:    map[string]time.Time{newFeed.ID: newestPublished(newPosts)},
			Form: &state.FormPatch{
				ProcessState: state.Set(domain.ProcessFinished),
				URL:          state.Set(""),
			},
		}
	})
	if dupErr != nil {
		metrics.Ingestions.WithLabelValues(string(domain.ErrorDuplicateFeed)).Inc()
		i.log.InfoContext(ctx, "Feed was added concurrently",
			"feedURL", candidate)

		return dupErr
	}

	metrics.Ingestions.WithLabelValues("ok").Inc()
	i.log.InfoContext(ctx, "Feed is added",
		"feedURL", candidate,
		"feedID", newFeed.ID,
		"feedTitle", newFeed.Title,
		"postCount", len(newPosts),
		"durationSeconds", time.Since(start).Seconds())

	return nil
}

func (i *Ingester) failForm(ctx context.Context, candidate string, err error) {
	kind := domain.KindOf(err)
	metrics.Ingestions.WithLabelValues(string(kind)).Inc()

	i.log.InfoContext(ctx, "Feed URL is rejected",
		"error", err,
		"errorKind", kind,
		"feedURL", candidate)

	i.store.Update(formFailurePatch(kind))
}

func formFailurePatch(kind domain.ErrorKind) state.Patch {
	return state.Patch{
		Form: &state.FormPatch{
			Valid:        state.Set(false),
			ProcessState: state.Set(domain.ProcessFailed),
			ErrorKind:    state.Set(kind),
		},
	}
}

func (i *Ingester) failGlobal(ctx context.Context, candidate string, err error) {
	kind := domain.KindOf(err)
	metrics.Ingestions.WithLabelValues(string(kind)).Inc()

	switch kind {
	case domain.ErrorNetwork, domain.ErrorInvalidFeed:
		i.log.WarnContext(ctx, "Failed to ingest feed",
			"error", err,
			"errorKind", kind,
			"feedURL", candidate)
	case domain.ErrorNone, domain.ErrorRequiredField, domain.ErrorInvalidURL, domain.ErrorDuplicateFeed, domain.ErrorUnknown:
		kind = domain.ErrorUnknown
		i.log.ErrorContext(ctx, "Failed to ingest feed with unexpected error",
			"error", err,
			"feedURL", candidate)
	}

	i.store.Update(state.Patch{
		ProcessState:      state.Set(domain.ProcessFailed),
		ProcessStateError: state.Set(kind),
		Form: &state.FormPatch{
			ProcessState: state.Set(domain.ProcessInitial),
		},
	})
}
