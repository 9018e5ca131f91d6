package scrape

import (
	"context"
	"log/slog"
	"sync"

	"cyberdigest/internal/model"
)

// PreWarm fetches every distinct RSS source URL once, bounded by
// maxConcurrent I/O slots, so that the per-user scrapes the scheduler (C11)
// triggers afterwards hit the cache (spec.md §4.1, §4.11). Results are
// discarded; PreWarm exists purely for its cache side effect, so a single
// source failing never blocks its peers.
func (s *Scraper) PreWarm(ctx context.Context, sources []*model.Source, maxConcurrent int) {
	urls := uniqueRSSURLs(sources)
	if len(urls) == 0 {
		return
	}
	if maxConcurrent <= 0 {
		maxConcurrent = 32
	}

	sem := make(chan struct{}, maxConcurrent)
	var wg sync.WaitGroup

	for url, seed := range urls {
		wg.Add(1)
		sem <- struct{}{}
		go func(url string, seed *model.Source) {
			defer wg.Done()
			defer func() { <-sem }()

			if _, ok, err := s.cache.Get(ctx, url); err == nil && ok {
				return
			}
			if err := s.fetchAndCache(ctx, seed); err != nil {
				slog.Warn("pre-warm fetch failed", slog.String("url", url), slog.String("error", err.Error()))
				return
			}
		}(url, seed)
	}
	wg.Wait()
}

// uniqueRSSURLs dedupes active RSS sources by URL, keeping one Source per
// URL to carry request parameters (type) into fetch.
func uniqueRSSURLs(sources []*model.Source) map[string]*model.Source {
	out := make(map[string]*model.Source)
	for _, src := range sources {
		if !src.Active || src.Type != model.SourceTypeRSS {
			continue
		}
		if _, ok := out[src.URL]; !ok {
			out[src.URL] = src
		}
	}
	return out
}

// Dedupe subtracts URLs the user already has a UserArticle row for,
// yielding the "new" set the orchestrator persists (spec.md §4.1).
func Dedupe(items []model.ParsedItem, existingURLs map[string]bool) []model.ParsedItem {
	out := make([]model.ParsedItem, 0, len(items))
	for _, item := range items {
		if existingURLs[item.URL] {
			continue
		}
		out = append(out, item)
	}
	return out
}

// fetch needs to be callable from PreWarm without going through the
// cache-write path twice; fetchAndCache does the same work Scrape does but
// is reused here to actually populate the cache during pre-warm.
func (s *Scraper) fetchAndCache(ctx context.Context, source *model.Source) error {
	items, err := s.fetch(ctx, source)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, source.URL, items, s.cacheTTL)
}
