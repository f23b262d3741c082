// ABOUTME: Assembles every built-in pack into one tool catalog
// ABOUTME: Used by the gateway and tests to build the shared catalog

package builtins

import (
	"log/slog"

	"github.com/2389/ward-gateway/internal/linkmeta"
	"github.com/2389/ward-gateway/internal/store"
	"github.com/2389/ward-gateway/internal/tools"
)

// Packs returns the tasks and links packs backed by s.
func Packs(s store.Store, fetcher PageFetcher, summarizer linkmeta.Summarizer, logger *slog.Logger) []tools.Pack {
	return []tools.Pack{
		TasksPack(s),
		LinksPack(s, fetcher, summarizer, logger),
	}
}

// NewCatalog builds the catalog of every built-in tool.
func NewCatalog(s store.Store, fetcher PageFetcher, summarizer linkmeta.Summarizer, logger *slog.Logger) (*tools.Catalog, error) {
	return tools.NewCatalog(Packs(s, fetcher, summarizer, logger)...)
}
