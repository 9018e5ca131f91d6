package orchestrator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"cyberdigest/internal/model"
	"cyberdigest/internal/repository"
	"cyberdigest/internal/scrape"
)

// runScrapeAndMatchStage implements spec.md §4.10 steps 2-4: scrape every
// active source, keyword-match the results in memory, and persist newly
// matched articles. One source's failure is counted in metrics and
// recorded in result.Errors; it never stops the remaining sources.
func (o *Orchestrator) runScrapeAndMatchStage(ctx context.Context, user *model.User, result *Result) {
	sources, err := o.deps.Sources.ListByUserID(ctx, user.ID)
	if err != nil {
		slog.Warn("failed to list sources", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	keywords, err := o.deps.Keywords.ListByUserID(ctx, user.ID)
	if err != nil {
		slog.Warn("failed to list keywords", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	seenURLs, err := o.deps.UserArticles.ListArticleURLsByUserID(ctx, user.ID)
	if err != nil {
		slog.Warn("failed to list seen article urls", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		seenURLs = map[string]bool{}
	}

	for _, src := range sources {
		if !src.Active {
			continue
		}
		items, err := o.deps.Scraper.Scrape(ctx, src)
		if err != nil {
			o.deps.Metrics.RecordScrapeFailure(src.ID, classifyScrapeErr(err))
			result.addErr(model.NewFeedUnreachableError(src.URL, err.Error()))
			continue
		}
		o.deps.Metrics.RecordScrapeSuccess(src.ID)
		result.Scraped += len(items)

		items = scrape.Dedupe(items, seenURLs)
		if len(items) == 0 {
			continue
		}

		matches := o.deps.Matcher.MatchItems(items, keywords)
		for _, item := range items {
			m := matches[item.URL]
			if !m.Matched {
				continue
			}

			article, err := o.findOrCreateArticle(ctx, src, item)
			if err != nil {
				slog.Warn("failed to persist article", slog.String("url", item.URL), slog.String("error", err.Error()))
				continue
			}

			ua := &model.UserArticle{
				UserID:          user.ID,
				ArticleID:       article.ID,
				Matched:         true,
				MatchedKeywords: m.MatchedKeywords,
				CreatedAt:       time.Now(),
			}
			if err := o.deps.UserArticles.Create(ctx, ua); err != nil {
				slog.Warn("failed to link article to user", slog.String("article_id", article.ID), slog.String("error", err.Error()))
				continue
			}

			result.Matched++
			seenURLs[item.URL] = true
		}
	}
}

// findOrCreateArticle resolves the article row for item, inserting one if
// none exists yet. A unique-violation race against a concurrent scrape of
// the same URL (by another user's source) is resolved by re-reading the
// row rather than failing (spec.md §4.1, "two users share a feed").
func (o *Orchestrator) findOrCreateArticle(ctx context.Context, src *model.Source, item model.ParsedItem) (*model.Article, error) {
	existing, err := o.deps.Articles.FindByURL(ctx, item.URL)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	article := &model.Article{
		ID:          newID(),
		SourceID:    src.ID,
		URL:         item.URL,
		Title:       item.Title,
		Content:     item.Snippet,
		PublishedAt: item.PublishedAt,
		Author:      item.Author,
		GUID:        item.GUID,
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	if err := o.deps.Articles.Create(ctx, article); err != nil {
		if repository.IsUniqueViolation(err) {
			return o.deps.Articles.FindByURL(ctx, item.URL)
		}
		return nil, err
	}
	return article, nil
}

func classifyScrapeErr(err error) string {
	switch {
	case errors.Is(err, scrape.ErrUnreachable):
		return "unreachable"
	case errors.Is(err, scrape.ErrParseFailed):
		return "parse_failed"
	case errors.Is(err, scrape.ErrBlocked):
		return "blocked"
	default:
		return "unknown"
	}
}
