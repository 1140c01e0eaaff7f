package feed_test

import (
	"context"
	"errors"
	"log/slog"
	"rssreader/internal/domain"
	"rssreader/internal/feed"
	"rssreader/internal/state"
	"slices"
	"testing"
	"time"
)

const (
	feedAURL = "https://a.example/rss"
	feedBURL = "https://b.example/rss"
)

var baseTime = time.Date(2025, 10, 14, 12, 0, 0, 0, time.UTC)

func newIngester(fetcher *stubFetcher) (*feed.Ingester, *state.Store) {
	store := state.New(slog.Default())
	ing := feed.NewIngester(store, fetcher, feed.NewParser(), nil, slog.Default())

	return ing, store
}

func twoItemDocument(name string) string {
	return rssDocument(name,
		rssItem{title: name + " first", link: "https://" + name + ".example/1", published: baseTime.Add(time.Hour)},
		rssItem{title: name + " second", link: "https://" + name + ".example/2", published: baseTime},
	)
}

func TestIngestAddsFeedsNewestFirst(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(feedAURL, twoItemDocument("a"))
	fetcher.set(feedBURL, twoItemDocument("b"))

	ing, store := newIngester(fetcher)
	ctx := context.Background()

	if err := ing.Ingest(ctx, feedAURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := store.Snapshot()
	if len(st.Feeds) != 1 || len(st.Posts) != 2 {
		t.Fatalf("expected 1 feed and 2 posts, got %d and %d", len(st.Feeds), len(st.Posts))
	}

	if err := ing.Ingest(ctx, "  "+feedBURL+"  "); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st = store.Snapshot()
	if len(st.Feeds) != 2 || len(st.Posts) != 4 {
		t.Fatalf("expected 2 feeds and 4 posts, got %d and %d", len(st.Feeds), len(st.Posts))
	}

	feedB, feedA := st.Feeds[0], st.Feeds[1]
	if feedB.URL != feedBURL || feedA.URL != feedAURL {
		t.Fatalf("expected feeds [B, A], got [%s, %s]", feedB.URL, feedA.URL)
	}

	if feedB.Title != "b" || feedB.Description != "b description" {
		t.Fatalf("unexpected feed B: %+v", feedB)
	}

	for i, p := range st.Posts {
		want := feedA.ID
		if i < 2 {
			want = feedB.ID
		}

		if p.FeedID != want {
			t.Fatalf("post %d belongs to %q, want %q", i, p.FeedID, want)
		}
	}

	if st.Posts[0].Title != "b first" {
		t.Fatalf("expected newest post of B first, got %q", st.Posts[0].Title)
	}

	if st.ProcessState != domain.ProcessFinished || st.Form.ProcessState != domain.ProcessFinished {
		t.Fatalf("unexpected process states: global %q form %q", st.ProcessState, st.Form.ProcessState)
	}

	if st.Form.URL != "" {
		t.Fatalf("expected form value to be cleared, got %q", st.Form.URL)
	}

	if !st.FeedWatermarks[feedB.ID].Equal(baseTime.Add(time.Hour)) {
		t.Fatalf("unexpected watermark for B: %v", st.FeedWatermarks[feedB.ID])
	}
}

func TestIngestDuplicateNeverFetches(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(feedAURL, twoItemDocument("a"))

	ing, store := newIngester(fetcher)
	ctx := context.Background()

	if err := ing.Ingest(ctx, feedAURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ing.Ingest(ctx, feedAURL)
	if kind := domain.KindOf(err); kind != domain.ErrorDuplicateFeed {
		t.Fatalf("expected duplicate feed, got %q", kind)
	}

	if got := fetcher.totalCalls(); got != 1 {
		t.Fatalf("expected a single fetch, got %d", got)
	}

	st := store.Snapshot()
	if st.Form.Valid || st.Form.ProcessState != domain.ProcessFailed || st.Form.ErrorKind != domain.ErrorDuplicateFeed {
		t.Fatalf("unexpected form state: %+v", st.Form)
	}

	if st.ProcessState != domain.ProcessInitial {
		t.Fatalf("validation errors must not touch the global process state, got %q", st.ProcessState)
	}

	if len(st.Feeds) != 1 {
		t.Fatalf("expected feeds to stay unique, got %d", len(st.Feeds))
	}
}

func TestIngestInvalidURLNeverFetches(t *testing.T) {
	fetcher := newStubFetcher()
	ing, store := newIngester(fetcher)

	for _, candidate := range []string{"not a url", ""} {
		err := ing.Ingest(context.Background(), candidate)

		want := domain.ErrorInvalidURL
		if candidate == "" {
			want = domain.ErrorRequiredField
		}

		if kind := domain.KindOf(err); kind != want {
			t.Fatalf("Ingest(%q): expected %q, got %q", candidate, want, kind)
		}

		if got := store.Snapshot().Form.ErrorKind; got != want {
			t.Fatalf("Ingest(%q): form error kind %q, want %q", candidate, got, want)
		}
	}

	if got := fetcher.totalCalls(); got != 0 {
		t.Fatalf("expected no fetches, got %d", got)
	}
}

func TestIngestNetworkErrorResetsForm(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.fail(feedAURL, domain.NewError(domain.ErrorNetwork, errors.New("unexpected status: 400")))

	ing, store := newIngester(fetcher)

	err := ing.Ingest(context.Background(), feedAURL)
	if kind := domain.KindOf(err); kind != domain.ErrorNetwork {
		t.Fatalf("expected network error, got %q", kind)
	}

	st := store.Snapshot()
	if st.ProcessState != domain.ProcessFailed || st.ProcessStateError != domain.ErrorNetwork {
		t.Fatalf("unexpected global state: %q / %q", st.ProcessState, st.ProcessStateError)
	}

	if st.Form.ProcessState != domain.ProcessInitial {
		t.Fatalf("expected editable form, got %q", st.Form.ProcessState)
	}

	if st.Form.URL != feedAURL {
		t.Fatalf("expected submitted value to be kept, got %q", st.Form.URL)
	}
}

func TestIngestInvalidFeedResetsForm(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(feedAURL, "<html><body>not a feed</body></html>")

	ing, store := newIngester(fetcher)

	err := ing.Ingest(context.Background(), feedAURL)
	if kind := domain.KindOf(err); kind != domain.ErrorInvalidFeed {
		t.Fatalf("expected invalid feed, got %q", kind)
	}

	st := store.Snapshot()
	if st.ProcessState != domain.ProcessFailed || st.ProcessStateError != domain.ErrorInvalidFeed {
		t.Fatalf("unexpected global state: %q / %q", st.ProcessState, st.ProcessStateError)
	}

	if st.Form.ProcessState != domain.ProcessInitial || len(st.Feeds) != 0 {
		t.Fatalf("unexpected state after invalid feed: form %q feeds %d", st.Form.ProcessState, len(st.Feeds))
	}
}

func TestIngestUnclassifiedErrorIsUnknown(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.fail(feedAURL, errors.New("boom"))

	ing, store := newIngester(fetcher)
	_ = ing.Ingest(context.Background(), feedAURL)

	if got := store.Snapshot().ProcessStateError; got != domain.ErrorUnknown {
		t.Fatalf("expected unknown error kind, got %q", got)
	}
}

func TestIngestSuccessClearsPreviousGlobalError(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.fail(feedAURL, domain.NewError(domain.ErrorNetwork, errors.New("down")))

	ing, store := newIngester(fetcher)
	ctx := context.Background()
	_ = ing.Ingest(ctx, feedAURL)

	fetcher.set(feedAURL, twoItemDocument("a"))
	if err := ing.Ingest(ctx, feedAURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	st := store.Snapshot()
	if st.ProcessState != domain.ProcessFinished || st.ProcessStateError != domain.ErrorNone {
		t.Fatalf("expected success to replace the error banner, got %q / %q", st.ProcessState, st.ProcessStateError)
	}
}

func TestIngestFormTransitions(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(feedAURL, twoItemDocument("a"))

	ing, store := newIngester(fetcher)

	var transitions []domain.ProcessState
	store.Subscribe(state.PathFormProcessState, func(_ state.Path, st domain.AppState) {
		transitions = append(transitions, st.Form.ProcessState)
	})

	if err := ing.Ingest(context.Background(), feedAURL); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []domain.ProcessState{domain.ProcessSending, domain.ProcessFinished}
	if !slices.Equal(transitions, want) {
		t.Fatalf("unexpected form transitions: got %v want %v", transitions, want)
	}
}

func TestIngestConcurrentSameURLAddsOnce(t *testing.T) {
	fetcher := newStubFetcher()
	fetcher.set(feedAURL, twoItemDocument("a"))

	ing, store := newIngester(fetcher)

	errs := make(chan error, 8)
	for range 8 {
		go func() {
			errs <- ing.Ingest(context.Background(), feedAURL)
		}()
	}

	var ok int
	for range 8 {
		err := <-errs
		if err == nil {
			ok++
			continue
		}

		if kind := domain.KindOf(err); kind != domain.ErrorDuplicateFeed {
			t.Fatalf("unexpected error kind: %q", kind)
		}
	}

	if ok != 1 {
		t.Fatalf("expected exactly one successful ingestion, got %d", ok)
	}

	st := store.Snapshot()
	if len(st.Feeds) != 1 || len(st.Posts) != 2 {
		t.Fatalf("expected 1 feed with 2 posts, got %d feeds and %d posts", len(st.Feeds), len(st.Posts))
	}
}
