package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"cyberdigest/internal/cve"
	"cyberdigest/internal/exposure"
	"cyberdigest/internal/model"
)

// runCVEStage implements spec.md §4.10 step 7 / C5 + C9: pull every
// article still missing CVE extraction, enrich each distinct CVE once
// against the vulnerability database and KEV catalog, persist the
// mentions, then re-run exposure classification (C9) against the user's
// tech stack so newly discovered CVEs immediately show up as
// vulnerable/indirect/not-applicable rather than waiting on the next stack
// edit.
func (o *Orchestrator) runCVEStage(ctx context.Context, user *model.User, result *Result) {
	articles, err := o.deps.Articles.ListPendingCVEs(ctx, user.ID, o.deps.PendingBatchLimit)
	if err != nil {
		slog.Warn("failed to list pending CVE articles", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	if len(articles) == 0 {
		return
	}

	texts := make(map[string]string, len(articles))
	for _, a := range articles {
		texts[a.ID] = a.Text()
	}
	perArticle := cve.ExtractIDsFromBatch(texts)
	allIDs := cve.UnionIDs(perArticle)

	start := time.Now()
	enriched := o.enrichCVEs(ctx, allIDs, result)

	for _, a := range articles {
		ids := perArticle[a.ID]
		for _, id := range ids {
			e, ok := enriched[id]
			if !ok {
				continue
			}
			row := &model.ArticleCVE{
				ArticleID:        a.ID,
				CVEID:            id,
				CVSSScore:        e.CVSSScore,
				Severity:         e.Severity,
				Description:      e.Description,
				CPEMatches:       e.CPEMatches,
				PublishedDate:    e.PublishedDate,
				InKEV:            e.InKEV,
				KEVDateAdded:     e.KEVDateAdded,
				KEVDueDate:       e.KEVDueDate,
				KEVRansomwareUse: e.KEVRansomwareUse,
			}
			if err := o.deps.CVEs.Upsert(ctx, row); err != nil {
				slog.Warn("failed to persist article cve", slog.String("article_id", a.ID), slog.String("cve_id", id), slog.String("error", err.Error()))
			}
		}
		if err := o.deps.Articles.MarkCVEsExtracted(ctx, a.ID); err != nil {
			slog.Warn("failed to mark cves extracted", slog.String("article_id", a.ID), slog.String("error", err.Error()))
		}
	}
	o.deps.Metrics.RecordEnrichmentLatency("cve", time.Since(start))

	o.runExposureClassification(ctx, user, articles, result)
}

// enrichedCVE is one CVE's enrichment plus KEV join, keyed by CVE ID so
// every article mentioning it reuses the same NVD/KEV round trip.
type enrichedCVE struct {
	CVSSScore        *float64
	Severity         string
	Description      string
	CPEMatches       []string
	PublishedDate    *time.Time
	InKEV            bool
	KEVDateAdded     *time.Time
	KEVDueDate       *time.Time
	KEVRansomwareUse bool
}

func (o *Orchestrator) enrichCVEs(ctx context.Context, ids []string, result *Result) map[string]enrichedCVE {
	out := make(map[string]enrichedCVE, len(ids))

	for _, id := range ids {
		if existing, err := o.deps.CVEs.FindEnrichedByCVEID(ctx, id); err == nil && existing != nil {
			out[id] = enrichedCVE{
				CVSSScore:        existing.CVSSScore,
				Severity:         existing.Severity,
				Description:      existing.Description,
				CPEMatches:       existing.CPEMatches,
				PublishedDate:    existing.PublishedDate,
				InKEV:            existing.InKEV,
				KEVDateAdded:     existing.KEVDateAdded,
				KEVDueDate:       existing.KEVDueDate,
				KEVRansomwareUse: existing.KEVRansomwareUse,
			}
			continue
		}

		if o.deps.NVDClient == nil {
			continue
		}

		e, err := o.deps.NVDClient.Fetch(ctx, id)
		if err != nil {
			result.addErr(model.NewCVEEnrichmentFailedError(id, err.Error()))
			slog.Info("cve enrichment failed, will retry next run", slog.String("cve_id", id), slog.String("error", err.Error()))
			continue
		}

		rec := enrichedCVE{
			CVSSScore:     e.CVSSScore,
			Severity:      e.Severity,
			Description:   e.Description,
			CPEMatches:    e.CPEMatches,
			PublishedDate: e.PublishedDate,
		}
		if o.deps.KEVCatalog != nil {
			entry, found := o.deps.KEVCatalog.Lookup(ctx, id)
			rec.InKEV, rec.KEVDateAdded, rec.KEVDueDate, rec.KEVRansomwareUse = cve.ApplyKEV(id, entry, found)
		}
		out[id] = rec
	}

	return out
}

// runExposureClassification implements spec.md §4.9's batch-match path:
// every CVE just persisted for this user is matched against their active
// tech stack, skipping any CVE the user has manually overridden.
func (o *Orchestrator) runExposureClassification(ctx context.Context, user *model.User, articles []*model.Article, result *Result) {
	stack, err := o.deps.TechStack.ListActive(ctx, user.ID)
	if err != nil {
		slog.Warn("failed to list tech stack for exposure classification", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	if len(stack) == 0 {
		return
	}

	articleIDs := make([]string, 0, len(articles))
	for _, a := range articles {
		articleIDs = append(articleIDs, a.ID)
	}
	cves, err := o.deps.CVEs.ListByArticleIDs(ctx, articleIDs)
	if err != nil {
		slog.Warn("failed to list article cves for exposure classification", slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return
	}
	if len(cves) == 0 {
		return
	}

	overridden, err := o.deps.Exposures.ListManuallyOverridden(ctx, user.ID)
	if err != nil {
		overridden = map[string]bool{}
	}

	now := time.Now()
	for _, m := range exposure.BatchMatch(cves, stack) {
		if overridden[m.CVEID] {
			continue
		}
		exp := exposure.ToExposure(user.ID, m, now)
		if err := o.deps.Exposures.Upsert(ctx, exp); err != nil {
			slog.Warn("failed to persist exposure classification", slog.String("user_id", user.ID), slog.String("cve_id", m.CVEID), slog.String("error", err.Error()))
			continue
		}
		o.deps.Metrics.RecordExposureReclassification(string(exp.State))
	}
}
