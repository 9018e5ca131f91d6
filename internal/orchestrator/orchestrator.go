// Package orchestrator implements the digest orchestrator (spec.md §4.10,
// component C10): one call per user drives scraping, matching,
// enrichment, clustering, briefing and period-report generation end to
// end. No per-user failure may abort another user's run, so every stage
// below swallows its own errors (into Result.Errors or the log) rather
// than returning them (spec.md §4.10, closing line).
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"cyberdigest/internal/brief"
	"cyberdigest/internal/content"
	"cyberdigest/internal/cve"
	"cyberdigest/internal/entity"
	"cyberdigest/internal/keyword"
	"cyberdigest/internal/metrics"
	"cyberdigest/internal/model"
	"cyberdigest/internal/report"
	"cyberdigest/internal/repository"
	"cyberdigest/internal/scrape"
)

// Dependencies wires every repository and domain component C10 drives.
// Orchestrator holds these directly (rather than behind narrower
// consumer interfaces, as report.Builder does) because nearly every
// stage needs most of the repository's methods.
type Dependencies struct {
	Users           repository.UserRepository
	Sources         repository.SourceRepository
	Keywords        repository.KeywordRepository
	TechStack       repository.TechStackItemRepository
	Articles        repository.ArticleRepository
	UserArticles    repository.UserArticleRepository
	Entities        repository.ArticleEntityRepository
	IndustrySignals repository.IndustrySignalRepository
	ArticleSignals  repository.ArticleSignalRepository
	CVEs            repository.ArticleCVERepository
	Exposures       repository.UserCVEExposureRepository
	NewsGroups      repository.NewsGroupRepository

	Scraper          *scrape.Scraper
	Matcher          *keyword.Matcher
	ContentExtractor *content.Extractor
	EntityExtractor  *entity.Extractor
	NVDClient        *cve.NVDClient
	KEVCatalog       *cve.KEVCatalog
	BriefGenerator   *brief.Generator
	ReportBuilder    *report.Builder

	Metrics metrics.MetricsCollector

	// ContentConcurrency bounds the content-extraction fan-out (spec.md
	// §5 default 15). BriefingConcurrency bounds the briefing fan-out
	// (default 10). PendingBatchLimit caps how many pending articles one
	// stage pulls per run so a single user can never starve the rest of
	// the tick.
	ContentConcurrency  int
	BriefingConcurrency int
	PendingBatchLimit   int
}

func (d *Dependencies) applyDefaults() {
	if d.ContentConcurrency <= 0 {
		d.ContentConcurrency = 15
	}
	if d.BriefingConcurrency <= 0 {
		d.BriefingConcurrency = 10
	}
	if d.PendingBatchLimit <= 0 {
		d.PendingBatchLimit = 500
	}
}

// Result is C10's return shape: counts plus categorized errors, never a
// bare error slice (SPEC_FULL.md §2, resolving spec.md §9's Open Question
// in favor of model.APIError).
type Result struct {
	UserID     string
	Scraped    int
	Matched    int
	Summarized int
	Errors     []*model.APIError
}

func (r *Result) addErr(err *model.APIError) {
	r.Errors = append(r.Errors, err)
}

// Orchestrator drives one user's digest pipeline run.
type Orchestrator struct {
	deps Dependencies
}

// New constructs an Orchestrator, applying fan-out/limit defaults to any
// zero-valued Dependencies fields.
func New(deps Dependencies) *Orchestrator {
	deps.applyDefaults()
	return &Orchestrator{deps: deps}
}

// RunForUser executes C10 end to end for one user and returns a summary.
// The returned error is non-nil only for conditions that make the whole
// run meaningless (user not found or the lookup failing). Per-stage
// failures are not returned: scrape, LLM, content-fetch and CVE
// enrichment failures are recorded in Result.Errors, and repository
// failures inside a stage are only logged.
func (o *Orchestrator) RunForUser(ctx context.Context, userID string) (Result, error) {
	result := Result{UserID: userID}
	now := time.Now()

	user, err := o.deps.Users.FindByID(ctx, userID)
	if err != nil {
		return result, fmt.Errorf("find user: %w", err)
	}
	if user == nil {
		return result, model.NewUserNotFoundError(userID)
	}

	industryCatalog, allowedSignalSlugs := o.loadIndustryCatalog(ctx, user, &result)

	o.runScrapeAndMatchStage(ctx, user, &result)
	o.runContentStage(ctx, userID, &result)
	if len(allowedSignalSlugs) > 0 {
		o.runEntityStage(ctx, userID, allowedSignalSlugs, industryCatalog, &result)
	}
	o.runCVEStage(ctx, user, &result)
	newGroupIDs := o.runClusterStage(ctx, userID, industryCatalog, &result)
	o.runBriefStage(ctx, newGroupIDs, &result)
	o.runReportStage(ctx, user, now, &result)

	o.deps.Metrics.RecordDigestRun(userID, result.Matched, result.Summarized)

	slog.Info("digest run completed",
		slog.String("user_id", userID),
		slog.Int("scraped", result.Scraped),
		slog.Int("matched", result.Matched),
		slog.Int("summarized", result.Summarized),
		slog.Int("errors", len(result.Errors)),
	)

	return result, nil
}

// loadIndustryCatalog resolves the user's industry signal taxonomy. An
// empty industry id (or a lookup failure) skips entity extraction for
// this run rather than failing it (spec.md §4.10 step 1, §7).
func (o *Orchestrator) loadIndustryCatalog(ctx context.Context, user *model.User, result *Result) ([]*model.IndustrySignal, []string) {
	if user.IndustryID == "" {
		return nil, nil
	}
	catalog, err := o.deps.IndustrySignals.ListByIndustryID(ctx, user.IndustryID)
	if err != nil {
		slog.Warn("failed to load industry signal catalog, skipping entity extraction",
			slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return nil, nil
	}
	slugs := make([]string, 0, len(catalog))
	for _, s := range catalog {
		slugs = append(slugs, s.Slug)
	}
	return catalog, slugs
}

func newID() string {
	return uuid.NewString()
}
