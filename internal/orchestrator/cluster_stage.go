package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"cyberdigest/internal/cluster"
	"cyberdigest/internal/model"
)

// runClusterStage implements spec.md §4.10 step 8 / C6: group every still-
// unclustered matched article into NewsGroup candidates and stamp the
// group id back onto its member UserArticles. Returns the freshly created
// group IDs so the briefing stage only narrates groups this run actually
// produced.
func (o *Orchestrator) runClusterStage(ctx context.Context, userID string, catalog []*model.IndustrySignal, result *Result) []string {
	unclustered, err := o.deps.UserArticles.ListUnclustered(ctx, userID)
	if err != nil {
		slog.Warn("failed to list unclustered articles", slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil
	}
	if len(unclustered) == 0 {
		return nil
	}

	articleIDs := make([]string, 0, len(unclustered))
	matchedKeywordsByArticle := make(map[string][]string, len(unclustered))
	for _, ua := range unclustered {
		articleIDs = append(articleIDs, ua.ArticleID)
		matchedKeywordsByArticle[ua.ArticleID] = ua.MatchedKeywords
	}

	articles, err := o.deps.Articles.ListByIDs(ctx, articleIDs)
	if err != nil {
		slog.Warn("failed to load unclustered articles", slog.String("user_id", userID), slog.String("error", err.Error()))
		return nil
	}
	articlesByID := make(map[string]*model.Article, len(articles))
	for _, a := range articles {
		articlesByID[a.ID] = a
	}

	entities, err := o.deps.Entities.ListByArticleIDs(ctx, articleIDs)
	if err != nil {
		slog.Warn("failed to load article entities for clustering", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
	entityNamesByArticle := make(map[string][]string)
	for _, e := range entities {
		entityNamesByArticle[e.ArticleID] = append(entityNamesByArticle[e.ArticleID], e.Name)
	}

	signals, err := o.deps.ArticleSignals.ListByArticleIDs(ctx, articleIDs)
	if err != nil {
		slog.Warn("failed to load article signals for clustering", slog.String("user_id", userID), slog.String("error", err.Error()))
	}
	signalIDToSlug := make(map[string]string, len(catalog))
	for _, s := range catalog {
		signalIDToSlug[s.ID] = s.Slug
	}
	signalSlugsByArticle := make(map[string][]string)
	for _, s := range signals {
		slug, ok := signalIDToSlug[s.IndustrySignalID]
		if !ok {
			continue
		}
		signalSlugsByArticle[s.ArticleID] = append(signalSlugsByArticle[s.ArticleID], slug)
	}

	inputs := make([]cluster.ArticleInput, 0, len(articleIDs))
	for _, id := range articleIDs {
		a, ok := articlesByID[id]
		if !ok {
			continue
		}
		inputs = append(inputs, cluster.ArticleInput{
			ID:          a.ID,
			Title:       a.Title,
			Entities:    entityNamesByArticle[id],
			Signals:     signalSlugsByArticle[id],
			Keywords:    matchedKeywordsByArticle[id],
			PublishedAt: a.PublishedAt,
		})
	}

	groups := cluster.Cluster(inputs)

	newGroupIDs := make([]string, 0, len(groups))
	for _, r := range groups {
		group := &model.NewsGroup{
			ID:               newID(),
			UserID:           userID,
			Title:            r.Title,
			Confidence:       r.Confidence,
			Date:             time.Now(),
			ArticleIDs:       r.ArticleIDs,
			DominantSignals:  r.DominantSignals,
			DominantEntities: r.DominantEntities,
		}
		if err := o.deps.NewsGroups.Create(ctx, group); err != nil {
			slog.Warn("failed to persist news group", slog.String("user_id", userID), slog.String("error", err.Error()))
			continue
		}
		if err := o.deps.UserArticles.BulkSetNewsGroup(ctx, userID, r.ArticleIDs, group.ID); err != nil {
			slog.Warn("failed to set news group on articles", slog.String("news_group_id", group.ID), slog.String("error", err.Error()))
			continue
		}
		o.deps.Metrics.RecordClusterSize(len(r.ArticleIDs))
		newGroupIDs = append(newGroupIDs, group.ID)
	}

	return newGroupIDs
}
