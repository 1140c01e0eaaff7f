package feed

import (
	"errors"
	"fmt"
	"net/url"
	"rssreader/internal/domain"
	"strings"
	"unicode"

	"mvdan.cc/xurls/v2"
)

var strictURLRe = xurls.Strict()

// Validate checks a submitted feed URL against the already known feeds. Checks run in order
// required, syntax, duplicate and only the first failure is reported.
func Validate(existing []domain.Feed, candidate string) error {
	candidate = strings.TrimSpace(candidate)

	if candidate == "" {
		return domain.NewError(domain.ErrorRequiredField, errors.New("feed URL is empty"))
	}

	if !isAbsoluteWebURL(candidate) {
		return domain.NewError(domain.ErrorInvalidURL, fmt.Errorf("not an absolute URL (URL = %s)", candidate))
	}

	for _, f := range existing {
		if f.URL == candidate {
			return domain.NewError(domain.ErrorDuplicateFeed, fmt.Errorf("feed already exists (URL = %s)", candidate))
		}
	}

	return nil
}

// isAbsoluteWebURL accepts trailing punctuation that xurls drops from its match.
func isAbsoluteWebURL(candidate string) bool {
	if strings.ContainsFunc(candidate, unicode.IsSpace) {
		return false
	}

	u, err := url.Parse(candidate)
	if err != nil {
		return false
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}

	if u.Host == "" || u.Hostname() == "" {
		return false
	}

	return strictURLRe.MatchString(candidate)
}
