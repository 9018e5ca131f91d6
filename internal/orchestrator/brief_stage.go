package orchestrator

import (
	"context"
	"log/slog"
	"sync"

	"cyberdigest/internal/brief"
	"cyberdigest/internal/model"
)

// runBriefStage implements spec.md §4.10 step 9 / C7: narrate every newly
// created NewsGroup via the LLM collaborator, falling back to a
// deterministic synopsis on failure (spec.md §4.7 "Fallback"). Fan-out is
// bounded the same way as the content stage.
func (o *Orchestrator) runBriefStage(ctx context.Context, groupIDs []string, result *Result) {
	if len(groupIDs) == 0 {
		return
	}

	sem := make(chan struct{}, o.deps.BriefingConcurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex

	for _, groupID := range groupIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(id string) {
			defer wg.Done()
			defer func() { <-sem }()
			o.briefOneGroup(ctx, id, result, &mu)
		}(groupID)
	}
	wg.Wait()
}

func (o *Orchestrator) briefOneGroup(ctx context.Context, groupID string, result *Result, mu *sync.Mutex) {
	group, err := o.deps.NewsGroups.FindByID(ctx, groupID)
	if err != nil || group == nil {
		slog.Warn("failed to load news group for briefing", slog.String("news_group_id", groupID))
		return
	}

	articles, err := o.deps.Articles.ListByIDs(ctx, group.ArticleIDs)
	if err != nil {
		slog.Warn("failed to load articles for briefing", slog.String("news_group_id", groupID), slog.String("error", err.Error()))
		return
	}
	inputs := make([]brief.ArticleInput, 0, len(articles))
	for _, a := range articles {
		inputs = append(inputs, brief.ArticleInput{ID: a.ID, Title: a.Title, Text: a.Text()})
	}

	clusterResult := model.ClusterResult{
		Title:            group.Title,
		ArticleIDs:       group.ArticleIDs,
		Confidence:       group.Confidence,
		DominantSignals:  group.DominantSignals,
		DominantEntities: group.DominantEntities,
	}

	narrated, err := o.deps.BriefGenerator.Generate(ctx, clusterResult, inputs)
	if err != nil {
		mu.Lock()
		result.addErr(model.NewLLMRequestFailedError("brief", err.Error()))
		mu.Unlock()
		o.deps.Metrics.RecordBriefingFailure()
		narrated = brief.Fallback(clusterResult)
		narrated.ID = group.ID
		narrated.UserID = group.UserID
		narrated.Date = group.Date
		narrated.ArticleIDs = group.ArticleIDs
		narrated.DominantSignals = group.DominantSignals
		narrated.DominantEntities = group.DominantEntities
		if updErr := o.deps.NewsGroups.Update(ctx, &narrated); updErr != nil {
			slog.Warn("failed to persist fallback briefing", slog.String("news_group_id", groupID), slog.String("error", updErr.Error()))
		}
		return
	}

	narrated.ID = group.ID
	narrated.UserID = group.UserID
	narrated.Date = group.Date
	narrated.ArticleIDs = group.ArticleIDs
	narrated.DominantSignals = group.DominantSignals
	narrated.DominantEntities = group.DominantEntities
	if err := o.deps.NewsGroups.Update(ctx, &narrated); err != nil {
		slog.Warn("failed to persist briefing", slog.String("news_group_id", groupID), slog.String("error", err.Error()))
		return
	}

	mu.Lock()
	result.Summarized++
	mu.Unlock()
	o.deps.Metrics.RecordBriefingSuccess()
}
