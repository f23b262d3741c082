// ABOUTME: Tests for page fetching, metadata parsing and extractive summaries
// ABOUTME: Pages are served from httptest servers

package linkmeta

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const articleHTML = `<!doctype html>
<html><head>
<title>  Plain   Title </title>
<meta property="og:title" content="Open Graph Title">
<meta property="og:image" content="/img/cover.png">
<meta name="description" content="A short page. It explains things. And more besides.">
<meta name="keywords" content="Go, Networking, ,go">
<style>body { color: red }</style>
</head><body>
<h1>Heading</h1>
<p>First   paragraph.</p>
<script>var hidden = 1;</script>
</body></html>`

func TestParse(t *testing.T) {
	page, err := Parse(strings.NewReader(articleHTML))
	require.NoError(t, err)

	assert.Equal(t, "Open Graph Title", page.Title)
	assert.Equal(t, "/img/cover.png", page.ImageURL)
	assert.Equal(t, "A short page. It explains things. And more besides.", page.Description)
	assert.Equal(t, []string{"Go", "Networking", "go"}, page.Keywords)
	assert.Equal(t, "Heading First paragraph.", page.Text)
}

func TestParse_TitleFallback(t *testing.T) {
	page, err := Parse(strings.NewReader(`<html><head><title>Only
	Title</title></head><body></body></html>`))
	require.NoError(t, err)
	assert.Equal(t, "Only Title", page.Title)
	assert.Empty(t, page.ImageURL)
}

func TestFetcher_Fetch(t *testing.T) {
	var gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(articleHTML))
	}))
	defer srv.Close()

	f := NewFetcher("WardBot/1.0", time.Second, srv.Client())
	page, err := f.Fetch(context.Background(), srv.URL+"/post")
	require.NoError(t, err)

	assert.Equal(t, "WardBot/1.0", gotUA)
	assert.Equal(t, srv.URL+"/post", page.URL)
	assert.Equal(t, "Open Graph Title", page.Title)
	assert.Equal(t, srv.URL+"/img/cover.png", page.ImageURL, "relative image resolved against the page")
}

func TestFetcher_UntitledPageUsesURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`<html><body>nothing here</body></html>`))
	}))
	defer srv.Close()

	page, err := NewFetcher("", time.Second, srv.Client()).Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, srv.URL, page.Title)
}

func TestFetcher_Errors(t *testing.T) {
	notFound := httptest.NewServer(http.NotFoundHandler())
	defer notFound.Close()

	slow := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer slow.Close()

	f := NewFetcher("", 50*time.Millisecond, nil)

	_, err := f.Fetch(context.Background(), notFound.URL)
	assert.ErrorContains(t, err, "status 404")

	_, err = f.Fetch(context.Background(), slow.URL)
	assert.Error(t, err)

	for _, raw := range []string{"", "ftp://example.com/x", "/relative", "http://"} {
		_, err := f.Fetch(context.Background(), raw)
		assert.ErrorIs(t, err, ErrUnsupportedURL, raw)
	}
}

func TestExtractive_Summarize(t *testing.T) {
	page := &Page{
		URL:         "https://www.github.com/golang/go",
		Description: "A short page. It explains things! And more besides.",
		Keywords:    []string{"Go", "GitHub", "Compilers", "Runtime"},
	}
	sum, err := Extractive{}.Summarize(context.Background(), page)
	require.NoError(t, err)

	assert.Equal(t, "A short page. It explains things!", sum.Text)
	assert.Equal(t, []string{"github", "go", "compilers"}, sum.Tags)
}

func TestExtractive_FallsBackToText(t *testing.T) {
	page := &Page{URL: "https://example.com", Text: "Version 1.2 is out. Upgrade now"}
	sum, err := Extractive{}.Summarize(context.Background(), page)
	require.NoError(t, err)
	assert.Equal(t, "Version 1.2 is out. Upgrade now", sum.Text)
	assert.Equal(t, []string{"example"}, sum.Tags)
}

func TestSiteName(t *testing.T) {
	tests := map[string]string{
		"www.github.com":       "github",
		"blog.example.co.uk":   "example",
		"localhost":            "localhost",
		"m.wikipedia.org":      "wikipedia",
		"news.ycombinator.com": "ycombinator",
		"api.bbc.com":          "bbc",
	}
	for host, want := range tests {
		assert.Equal(t, want, siteName(host), host)
	}
}
