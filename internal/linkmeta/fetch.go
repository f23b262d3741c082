// ABOUTME: Fetches a web page and extracts its title, Open Graph tags, description and text
// ABOUTME: Parsing uses golang.org/x/net/html; the body read is bounded and time limited

package linkmeta

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

const (
	// maxBodyBytes bounds how much of a page is parsed.
	maxBodyBytes = 2 << 20
	// maxTextRunes bounds Page.Text.
	maxTextRunes = 8000
)

// ErrUnsupportedURL is returned for anything but absolute http(s) URLs.
var ErrUnsupportedURL = errors.New("unsupported url")

// Page is the metadata extracted from one fetched page.
type Page struct {
	URL         string
	Title       string
	Description string
	ImageURL    string
	Keywords    []string
	// Text is the visible body text with whitespace collapsed.
	Text string
}

// Fetcher downloads pages and extracts metadata.
type Fetcher struct {
	client    *http.Client
	userAgent string
	timeout   time.Duration
}

// NewFetcher creates a Fetcher. A nil client uses http.DefaultClient.
func NewFetcher(userAgent string, timeout time.Duration, client *http.Client) *Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Fetcher{client: client, userAgent: userAgent, timeout: timeout}
}

// ValidateURL checks that raw is an absolute http or https URL.
func ValidateURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedURL, raw)
	}
	return u, nil
}

// Fetch downloads rawURL and extracts its metadata. A page without a title
// falls back to the URL itself.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Page, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", u.Host, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetching %s: status %d", u.Host, resp.StatusCode)
	}

	page, err := Parse(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, err
	}
	page.URL = u.String()
	if page.Title == "" {
		page.Title = page.URL
	}
	if page.ImageURL != "" {
		if ref, err := u.Parse(page.ImageURL); err == nil {
			page.ImageURL = ref.String()
		}
	}
	return page, nil
}

// Parse extracts metadata from an HTML document. og:title wins over <title>
// and og:description over the description meta tag.
func Parse(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}

	var (
		page     Page
		title    string
		ogTitle  string
		desc     string
		ogDesc   string
		keywords string
		text     strings.Builder
	)

	var walk func(n *html.Node, inBody bool)
	walk = func(n *html.Node, inBody bool) {
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Script, atom.Style, atom.Noscript, atom.Template:
				return
			case atom.Title:
				if title == "" {
					title = collapse(nodeText(n))
				}
				return
			case atom.Meta:
				key := strings.ToLower(attr(n, "property"))
				if key == "" {
					key = strings.ToLower(attr(n, "name"))
				}
				content := strings.TrimSpace(attr(n, "content"))
				switch key {
				case "og:title":
					ogTitle = content
				case "og:description":
					ogDesc = content
				case "og:image":
					page.ImageURL = content
				case "description":
					desc = content
				case "keywords":
					keywords = content
				}
			case atom.Body:
				inBody = true
			}
		}
		if n.Type == html.TextNode && inBody && text.Len() < maxTextRunes*4 {
			if s := strings.TrimSpace(n.Data); s != "" {
				text.WriteString(s)
				text.WriteByte(' ')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c, inBody)
		}
	}
	walk(doc, false)

	page.Title = firstNonEmpty(ogTitle, title)
	page.Description = firstNonEmpty(ogDesc, desc)
	page.Keywords = splitKeywords(keywords)
	page.Text = truncateRunes(collapse(text.String()), maxTextRunes)
	return &page, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if strings.EqualFold(a.Key, key) {
			return a.Val
		}
	}
	return ""
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.TextNode {
			b.WriteString(c.Data)
		}
	}
	return b.String()
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitKeywords(s string) []string {
	var out []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			out = append(out, k)
		}
	}
	return out
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
