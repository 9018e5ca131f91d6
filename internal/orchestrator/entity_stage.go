package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"cyberdigest/internal/entity"
	"cyberdigest/internal/model"
)

// runEntityStage implements spec.md §4.10 step 6 / C4: extract companies,
// people, products, geographies and industry signals for every article
// still missing entity extraction. Batches of up to
// deps.EntityExtractor.BatchSize() articles run sequentially against the
// LLM collaborator, since each call already costs a full LLM round trip
// and nothing downstream benefits from concurrent in-flight batches
// (unlike content/brief, which fan out against independent I/O).
func (o *Orchestrator) runEntityStage(ctx context.Context, userID string, allowedSignalSlugs []string, catalog []*model.IndustrySignal, result *Result) {
	articles, err := o.deps.Articles.ListPendingEntities(ctx, userID, o.deps.PendingBatchLimit)
	if err != nil {
		slog.Warn("failed to list pending entity articles", slog.String("user_id", userID), slog.String("error", err.Error()))
		return
	}
	if len(articles) == 0 {
		return
	}

	slugToID := make(map[string]string, len(catalog))
	for _, s := range catalog {
		slugToID[s.Slug] = s.ID
	}

	batchSize := o.deps.EntityExtractor.BatchSize()
	start := time.Now()

	for i := 0; i < len(articles); i += batchSize {
		end := i + batchSize
		if end > len(articles) {
			end = len(articles)
		}
		batch := articles[i:end]

		inputs := make([]entity.ArticleInput, 0, len(batch))
		for _, a := range batch {
			inputs = append(inputs, entity.ArticleInput{ID: a.ID, Text: a.Text()})
		}

		extractions, err := o.deps.EntityExtractor.ExtractBatch(ctx, inputs, allowedSignalSlugs)
		if err != nil {
			result.addErr(model.NewLLMRequestFailedError("entity", err.Error()))
			slog.Warn("entity extraction batch failed", slog.String("user_id", userID), slog.String("error", err.Error()))
			continue
		}

		for _, a := range batch {
			extraction, ok := extractions[a.ID]
			if !ok {
				continue
			}

			if rows := entity.ToArticleEntities(a.ID, extraction); len(rows) > 0 {
				if err := o.deps.Entities.BulkInsert(ctx, rows); err != nil {
					slog.Warn("failed to persist article entities", slog.String("article_id", a.ID), slog.String("error", err.Error()))
				}
			}

			for _, sig := range extraction.Signals {
				signalID, ok := slugToID[sig.Slug]
				if !ok {
					continue
				}
				row := &model.ArticleSignal{
					ArticleID:        a.ID,
					IndustrySignalID: signalID,
					Confidence:       sig.Confidence,
				}
				if err := o.deps.ArticleSignals.Upsert(ctx, row); err != nil {
					slog.Warn("failed to persist article signal", slog.String("article_id", a.ID), slog.String("signal_slug", sig.Slug), slog.String("error", err.Error()))
				}
			}

			if err := o.deps.Articles.MarkEntitiesExtracted(ctx, a.ID); err != nil {
				slog.Warn("failed to mark entities extracted", slog.String("article_id", a.ID), slog.String("error", err.Error()))
			}
		}
	}

	o.deps.Metrics.RecordEnrichmentLatency("entity", time.Since(start))
}
