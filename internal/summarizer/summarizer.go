package summarizer

import (
	"context"
)

// Input describes one post to summarize.
type Input struct {
	Title string
	// Text is the plain-text description of the post.
	Text string
	// SourceURL is optional metadata that helps the model reference the origin.
	SourceURL string
}

// Summarizer produces a single summary for a given input text.
type Summarizer interface {
	Summarize(ctx context.Context, input Input) (string, error)
}
