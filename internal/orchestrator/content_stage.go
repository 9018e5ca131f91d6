package orchestrator

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"cyberdigest/internal/content"
	"cyberdigest/internal/model"
)

// runContentStage implements spec.md §4.10 step 5 / C3: extract readable
// text for every article still missing it, bounded to
// deps.ContentConcurrency concurrent fetches. Grounded on the teacher's
// semaphore-channel fan-out (internal/worker/fetch/scheduler.go RunOnce):
// a buffered channel of size N gates how many goroutines are in flight at
// once while every article still gets its own goroutine.
func (o *Orchestrator) runContentStage(ctx context.Context, userID string, result *Result) {
	articles, err := o.deps.Articles.ListPendingContent(ctx, userID, o.deps.PendingBatchLimit)
	if err != nil {
		slog.Warn("failed to list pending content articles", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}
	if len(articles) == 0 {
		return
	}

	start := time.Now()
	sem := make(chan struct{}, o.deps.ContentConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, article := range articles {
		wg.Add(1)
		sem <- struct{}{}
		go func(a *model.Article) {
			defer wg.Done()
			defer func() { <-sem }()

			res, err := o.deps.ContentExtractor.Extract(ctx, a.URL)
			if err != nil {
				mu.Lock()
				result.addErr(model.NewContentFetchFailedError(a.URL, err.Error()))
				mu.Unlock()
				slog.Info("content extraction fell back to feed snippet",
					slog.String("article_id", a.ID), slog.String("error", err.Error()))
				if a.CleanText == "" {
					a.CleanText = a.Content
				}
				if updErr := o.deps.Articles.UpdateContent(ctx, a); updErr != nil {
					slog.Warn("failed to mark article content as processed", slog.String("article_id", a.ID), slog.String("error", updErr.Error()))
				}
				return
			}

			content.ApplyTo(a, res)
			if err := o.deps.Articles.UpdateContent(ctx, a); err != nil {
				slog.Warn("failed to persist extracted content", slog.String("article_id", a.ID), slog.String("error", err.Error()))
			}
		}(article)
	}
	wg.Wait()

	o.deps.Metrics.RecordEnrichmentLatency("content", time.Since(start))
}
