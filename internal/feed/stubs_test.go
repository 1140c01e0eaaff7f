package feed_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

type stubFetcher struct {
	mu        sync.Mutex
	documents map[string]string
	errs      map[string]error
	calls     map[string]int
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{
		documents: make(map[string]string),
		errs:      make(map[string]error),
		calls:     make(map[string]int),
	}
}

func (f *stubFetcher) set(url string, contents string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.documents[url] = contents
	delete(f.errs, url)
}

func (f *stubFetcher) fail(url string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.errs[url] = err
}

func (f *stubFetcher) Fetch(_ context.Context, target string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls[target]++

	if err, ok := f.errs[target]; ok {
		return "", err
	}

	contents, ok := f.documents[target]
	if !ok {
		return "", fmt.Errorf("unexpected fetch of %s", target)
	}

	return contents, nil
}

func (f *stubFetcher) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	var total int
	for _, n := range f.calls {
		total += n
	}

	return total
}

type rssItem struct {
	title     string
	link      string
	published time.Time
}

func rssDocument(title string, items ...rssItem) string {
	var b strings.Builder

	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?><rss version="2.0"><channel>`)
	fmt.Fprintf(&b, "<title>%s</title><description>%s description</description>", title, title)

	for _, it := range items {
		fmt.Fprintf(&b, "<item><title>%s</title><link>%s</link><description>%s body</description><pubDate>%s</pubDate></item>",
			it.title, it.link, it.title, it.published.Format(time.RFC1123Z))
	}

	b.WriteString(`</channel></rss>`)

	return b.String()
}
