package scheduler

import (
	"context"
	"log/slog"

	"cyberdigest/internal/repository"
	"cyberdigest/internal/scrape"
)

// CacheWarmer adapts (*scrape.Scraper).PreWarm to the SourcePreWarmer
// interface by first listing every active source across all users
// (spec.md §4.11 "Pre-warm": shared RSS feeds are fetched once before the
// per-user fan-out so concurrent users sharing a feed don't each pay the
// upstream fetch cost).
type CacheWarmer struct {
	Sources repository.SourceRepository
	Scraper *scrape.Scraper
}

// PreWarmAll lists all active sources and warms the scrape cache for
// them, bounded to maxConcurrent concurrent fetches.
func (w *CacheWarmer) PreWarmAll(ctx context.Context, maxConcurrent int) {
	sources, err := w.Sources.ListActive(ctx)
	if err != nil {
		slog.Warn("failed to list active sources for pre-warm", slog.String("error", err.Error()))
		return
	}
	w.Scraper.PreWarm(ctx, sources, maxConcurrent)
}
