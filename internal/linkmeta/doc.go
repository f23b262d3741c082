// Package linkmeta fetches web pages for the links pack.
//
// Fetcher downloads a page with a bounded timeout and user agent, then Parse
// extracts the title (og:title before <title>), description, og:image,
// keywords and visible text. Summarizer turns a Page into a short summary
// and tags; Extractive is the built-in implementation and needs no network
// access beyond the page fetch.
package linkmeta
