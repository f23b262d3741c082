// ABOUTME: Links pack stashes web pages with fetched metadata, summaries and tags
// ABOUTME: A failed page fetch still stashes the link under its URL

package builtins

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/2389/ward-gateway/internal/auth"
	"github.com/2389/ward-gateway/internal/linkmeta"
	"github.com/2389/ward-gateway/internal/store"
	"github.com/2389/ward-gateway/internal/tools"
)

var errLinkNotFound = fmt.Errorf("link %w", store.ErrNotFound)

// PageFetcher loads page metadata for a URL.
type PageFetcher interface {
	Fetch(ctx context.Context, rawURL string) (*linkmeta.Page, error)
}

// LinksPack creates the links pack. A nil summarizer uses linkmeta.Extractive.
func LinksPack(s store.LinkStore, fetcher PageFetcher, summarizer linkmeta.Summarizer, logger *slog.Logger) tools.Pack {
	if summarizer == nil {
		summarizer = linkmeta.Extractive{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	h := &linkHandlers{
		store:      s,
		fetcher:    fetcher,
		summarizer: summarizer,
		logger:     logger.With("component", "links"),
	}
	return tools.Pack{
		ID: "builtin:links",
		Tools: []tools.Tool{
			{
				Name:        "stash_link",
				Description: "Save a link. Fetches the page title and image, and by default summarizes and tags it.",
				InputSchema: `{"type":"object","properties":{"url":{"type":"string","minLength":1},"generateSummary":{"type":"boolean"},"autoTag":{"type":"boolean"},"tags":{"type":"array","items":{"type":"string"}}},"required":["url"]}`,
				Handler:     h.StashLink,
			},
			{
				Name:        "get_stashed_links",
				Description: "Get stashed links, newest first, optionally filtered by tag",
				InputSchema: `{"type":"object","properties":{"tag":{"type":"string"}}}`,
				Handler:     h.GetStashedLinks,
			},
			{
				Name:        "delete_link",
				Description: "Delete a stashed link by link ID",
				InputSchema: `{"type":"object","properties":{"id":{"type":"string"}},"required":["id"]}`,
				Handler:     h.DeleteLink,
			},
			{
				Name:        "get_stash_stats",
				Description: "Get the number of stashed links and how many have a summary",
				InputSchema: `{"type":"object","properties":{}}`,
				Handler:     h.GetStashStats,
			},
		},
	}
}

type linkHandlers struct {
	store      store.LinkStore
	fetcher    PageFetcher
	summarizer linkmeta.Summarizer
	logger     *slog.Logger
}

// StashStats is the result of get_stash_stats.
type StashStats struct {
	TotalStashed int `json:"totalStashed"`
	AISummarized int `json:"aiSummarized"`
}

type stashLinkInput struct {
	URL             string   `json:"url"`
	GenerateSummary *bool    `json:"generateSummary"`
	AutoTag         *bool    `json:"autoTag"`
	Tags            []string `json:"tags"`
}

type tagInput struct {
	Tag string `json:"tag"`
}

func (h *linkHandlers) StashLink(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in stashLinkInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	u, err := linkmeta.ValidateURL(in.URL)
	if err != nil {
		return nil, tools.InvalidArgument("url must be an absolute http or https URL")
	}
	summarize := in.GenerateSummary == nil || *in.GenerateSummary
	autoTag := in.AutoTag == nil || *in.AutoTag

	link := &store.Link{OwnerID: caller.UserID, URL: u.String(), Title: u.String()}

	page, err := h.fetcher.Fetch(ctx, link.URL)
	if err != nil {
		h.logger.Warn("fetching link metadata failed", "url", link.URL, "error", err)
	} else {
		link.Title = page.Title
		link.Description = page.Description
		link.ImageURL = page.ImageURL

		if summarize || autoTag {
			sum, err := h.summarizer.Summarize(ctx, page)
			if err != nil {
				h.logger.Warn("summarizing link failed", "url", link.URL, "error", err)
			} else {
				if summarize {
					link.Summary = sum.Text
				}
				if autoTag {
					link.Tags = sum.Tags
				}
			}
		}
	}
	link.Tags = mergeTags(in.Tags, link.Tags)

	if err := h.store.CreateLink(ctx, link); err != nil {
		return nil, fmt.Errorf("create link: %w", err)
	}
	return link, nil
}

func (h *linkHandlers) GetStashedLinks(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in tagInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	links, err := h.store.ListLinks(ctx, caller.UserID, in.Tag)
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	if links == nil {
		links = []*store.Link{}
	}
	return links, nil
}

func (h *linkHandlers) DeleteLink(ctx context.Context, caller auth.Identity, input json.RawMessage) (any, error) {
	var in idInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if err := h.store.DeleteLink(ctx, caller.UserID, in.ID); err != nil {
		return nil, notFoundAs(err, errLinkNotFound)
	}
	return fmt.Sprintf("Link %s deleted", in.ID), nil
}

func (h *linkHandlers) GetStashStats(ctx context.Context, caller auth.Identity, _ json.RawMessage) (any, error) {
	return LinkStats(ctx, h.store, caller.UserID)
}

// LinkStats counts the owner's links and those with a summary.
func LinkStats(ctx context.Context, s store.LinkStore, ownerID string) (*StashStats, error) {
	links, err := s.ListLinks(ctx, ownerID, "")
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	stats := &StashStats{TotalStashed: len(links)}
	for _, l := range links {
		if l.Summary != "" {
			stats.AISummarized++
		}
	}
	return stats, nil
}

// mergeTags keeps explicit tags first, then generated ones, without duplicates.
func mergeTags(explicit, generated []string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(explicit)+len(generated))
	for _, group := range [][]string{explicit, generated} {
		for _, t := range group {
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
