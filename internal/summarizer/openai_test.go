package summarizer_test

import (
	"rssreader/internal/summarizer"
	"testing"
)

func TestNewOpenAISummarizerRequiresKey(t *testing.T) {
	if _, err := summarizer.NewOpenAISummarizer("   "); err == nil {
		t.Fatalf("expected blank API key to be rejected")
	}

	s, err := summarizer.NewOpenAISummarizer("sk-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if s == nil {
		t.Fatalf("expected summarizer instance")
	}
}
