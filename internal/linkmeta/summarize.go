// ABOUTME: Summary and tag generation for stashed pages
// ABOUTME: The default Summarizer is extractive and works offline from page metadata

package linkmeta

import (
	"context"
	"net/url"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	maxSummarySentences = 2
	maxTags             = 3
)

// Summary is the generated summary and tags for a page.
type Summary struct {
	Text string
	Tags []string
}

// Summarizer produces a short summary and tags for a fetched page.
type Summarizer interface {
	Summarize(ctx context.Context, page *Page) (Summary, error)
}

// Extractive summarizes a page from its own description or opening
// sentences and tags it from the host name and keywords.
type Extractive struct{}

var lower = cases.Lower(language.Und)

// Summarize implements Summarizer.
func (Extractive) Summarize(_ context.Context, page *Page) (Summary, error) {
	source := page.Description
	if source == "" {
		source = page.Text
	}
	return Summary{
		Text: firstSentences(source, maxSummarySentences),
		Tags: Tags(page, maxTags),
	}, nil
}

// Tags derives up to limit lowercase tags from the page host and keywords.
func Tags(page *Page, limit int) []string {
	seen := make(map[string]bool)
	var tags []string
	add := func(t string) {
		t = lower.String(strings.TrimSpace(t))
		if t == "" || seen[t] || len(tags) >= limit {
			return
		}
		seen[t] = true
		tags = append(tags, t)
	}

	if u, err := url.Parse(page.URL); err == nil {
		add(siteName(u.Hostname()))
	}
	for _, k := range page.Keywords {
		add(k)
	}
	return tags
}

// siteName reduces "www.blog.example.co.uk" style hosts to their most
// specific non-generic label, e.g. "github" for "www.github.com".
func siteName(host string) string {
	labels := strings.Split(strings.TrimSuffix(host, "."), ".")
	for len(labels) > 0 && (labels[0] == "www" || labels[0] == "m") {
		labels = labels[1:]
	}
	switch {
	case len(labels) == 0:
		return ""
	case len(labels) == 1:
		return labels[0]
	case len(labels) >= 3 && len(labels[len(labels)-1]) == 2 && len(labels[len(labels)-2]) <= 3:
		// second-level public suffix such as co.uk
		return labels[len(labels)-3]
	default:
		return labels[len(labels)-2]
	}
}

func firstSentences(s string, n int) string {
	s = collapse(s)
	if s == "" {
		return ""
	}
	runes := []rune(s)
	count := 0
	for i, r := range runes {
		if r != '.' && r != '!' && r != '?' {
			continue
		}
		if i+1 < len(runes) && !unicode.IsSpace(runes[i+1]) {
			continue
		}
		count++
		if count == n {
			return string(runes[:i+1])
		}
	}
	return s
}
