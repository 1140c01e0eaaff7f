package feed

import (
	"errors"
	"fmt"
	"rssreader/internal/domain"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
)

type Document struct {
	Title       string
	Description string
	Items       []Item
}

type Item struct {
	Title       string
	Link        string
	Description string
	PublishedAt time.Time
}

// Parser turns a raw feed document into a Document. It is safe for concurrent use.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

// Parse fails with domain.ErrorInvalidFeed when the text is not a feed document.
func (p *Parser) Parse(contents string) (Document, error) {
	if strings.TrimSpace(contents) == "" {
		return Document{}, domain.NewError(domain.ErrorInvalidFeed, errors.New("document is empty"))
	}

	// gofeed.Parser keeps per-document state, so one is created per call.
	parsed, err := gofeed.NewParser().ParseString(contents)
	if err != nil {
		return Document{}, domain.NewError(domain.ErrorInvalidFeed, fmt.Errorf("parse feed: %w", err))
	}

	doc := Document{
		Title:       strings.TrimSpace(parsed.Title),
		Description: htmlToText(parsed.Description),
		Items:       make([]Item, 0, len(parsed.Items)),
	}

	for _, it := range parsed.Items {
		if it == nil {
			continue
		}

		doc.Items = append(doc.Items, parseItem(it))
	}

	return doc, nil
}

func parseItem(it *gofeed.Item) Item {
	var published time.Time

	if it.PublishedParsed != nil {
		published = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		published = *it.UpdatedParsed
	}

	description := it.Description
	if strings.TrimSpace(description) == "" {
		description = it.Content
	}

	return Item{
		Title:       strings.TrimSpace(it.Title),
		Link:        strings.TrimSpace(it.Link),
		Description: htmlToText(description),
		PublishedAt: published,
	}
}

func htmlToText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	if !strings.ContainsAny(raw, "<&") {
		return collapseWhitespace(raw)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return collapseWhitespace(raw)
	}

	doc.Find("script, style").Remove()
	doc.Find("br").Each(func(_ int, br *goquery.Selection) {
		br.ReplaceWithHtml("\n")
	})
	doc.Find("p, li, div").Each(func(_ int, block *goquery.Selection) {
		block.AppendHtml("\n")
	})

	return collapseWhitespace(doc.Text())
}

func collapseWhitespace(text string) string {
	var lines []string
	for line := range strings.SplitSeq(text, "\n") {
		if normalized := strings.Join(strings.Fields(line), " "); normalized != "" {
			lines = append(lines, normalized)
		}
	}

	return strings.Join(lines, "\n")
}
