package report

import (
	"context"
	"fmt"
	"time"

	"cyberdigest/internal/exposure"
	"cyberdigest/internal/llm"
	"cyberdigest/internal/model"
)

// NewsGroupLister is the slice of NewsGroupRepository the builder needs.
type NewsGroupLister interface {
	ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.NewsGroup, error)
}

// ArticleEntityLister is the slice of ArticleEntityRepository the builder
// needs to bucket entity distributions.
type ArticleEntityLister interface {
	ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleEntity, error)
}

// ArticleSignalLister is the slice of ArticleSignalRepository the builder
// needs to compute the signal distribution.
type ArticleSignalLister interface {
	ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleSignal, error)
}

// ArticleCVELister is the slice of ArticleCVERepository the builder needs.
type ArticleCVELister interface {
	ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.ArticleCVE, error)
}

// IndustrySignalLister resolves a user's industry taxonomy so signal ids
// can be rendered by name (spec.md §4.8 step 2).
type IndustrySignalLister interface {
	ListByIndustryID(ctx context.Context, industryID string) ([]*model.IndustrySignal, error)
}

// ReportUpserter is the slice of PeriodReportRepository the builder needs.
type ReportUpserter interface {
	Upsert(ctx context.Context, report *model.PeriodReport) error
}

// ExposureLister is the slice of UserCVEExposureRepository the builder
// needs to compute the remediation-metrics snapshot alongside a report
// (spec.md §4.9 "Snapshot & deltas").
type ExposureLister interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.UserCVEExposure, error)
}

// SnapshotUpserter is the slice of PeriodSnapshotRepository the builder
// needs.
type SnapshotUpserter interface {
	Upsert(ctx context.Context, snapshot *model.PeriodSnapshot) error
}

// Builder drives the period report builder (spec.md §4.8, component C8):
// DB aggregation into a stats object, then a period-specific LLM summary.
type Builder struct {
	groups    NewsGroupLister
	entities  ArticleEntityLister
	signals   ArticleSignalLister
	cves      ArticleCVELister
	industry  IndustrySignalLister
	reports   ReportUpserter
	exposures ExposureLister
	snapshots SnapshotUpserter
	completer llm.Completer
}

// New constructs a Builder. completer may be nil, in which case reports
// are generated with stats but an empty summary (spec.md §6: the core
// tolerates the LLM collaborator's absence by skipping the capability).
func New(groups NewsGroupLister, entities ArticleEntityLister, signals ArticleSignalLister, cves ArticleCVELister, industry IndustrySignalLister, reports ReportUpserter, exposures ExposureLister, snapshots SnapshotUpserter, completer llm.Completer) *Builder {
	return &Builder{
		groups:    groups,
		entities:  entities,
		signals:   signals,
		cves:      cves,
		industry:  industry,
		reports:   reports,
		exposures: exposures,
		snapshots: snapshots,
		completer: completer,
	}
}

// Generate runs C8 end to end for one user/period pair and upserts the
// resulting PeriodReport (and its remediation-metrics PeriodSnapshot).
// LLM failures never abort the report: stats are always computed and
// persisted, and the summary is left empty on failure (spec.md §7).
func (b *Builder) Generate(ctx context.Context, user *model.User, period model.Period, now time.Time) (*model.PeriodReport, error) {
	days, ok := model.PeriodDays[period]
	if !ok {
		return nil, fmt.Errorf("unknown period %q", period)
	}
	from := now.AddDate(0, 0, -days)

	groups, err := b.groups.ListByUserAndWindow(ctx, user.ID, from, now)
	if err != nil {
		return nil, fmt.Errorf("list news groups: %w", err)
	}

	var articleIDs []string
	for _, g := range groups {
		articleIDs = append(articleIDs, g.ArticleIDs...)
	}

	entities, err := b.entities.ListByArticleIDs(ctx, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("list article entities: %w", err)
	}
	signals, err := b.signals.ListByArticleIDs(ctx, articleIDs)
	if err != nil {
		return nil, fmt.Errorf("list article signals: %w", err)
	}
	cves, err := b.cves.ListByUserAndWindow(ctx, user.ID, from, now)
	if err != nil {
		return nil, fmt.Errorf("list article cves: %w", err)
	}

	nameByID := map[string]string{}
	if user.IndustryID != "" {
		catalog, err := b.industry.ListByIndustryID(ctx, user.IndustryID)
		if err != nil {
			return nil, fmt.Errorf("list industry signals: %w", err)
		}
		for _, s := range catalog {
			nameByID[s.ID] = s.Name
		}
	}
	signalDist := signalDistributionFromArticleSignals(signals, nameByID)

	stats := computeStats(groups, entities, signalDist, cves, from, now)

	report := &model.PeriodReport{
		UserID:      user.ID,
		Period:      period,
		FromDate:    from,
		ToDate:      now,
		Stats:       stats,
		GeneratedAt: now,
	}

	if b.completer != nil {
		summary, err := b.narrate(ctx, period, stats, groups)
		if err != nil {
			// LLM request/parse failure: leave summary empty, pipeline continues.
		} else {
			report.Summary = summary
		}
	}

	if err := b.reports.Upsert(ctx, report); err != nil {
		return nil, fmt.Errorf("upsert period report: %w", err)
	}

	if b.exposures != nil && b.snapshots != nil {
		if err := b.snapshotExposure(ctx, user.ID, period, cves, now); err != nil {
			return report, fmt.Errorf("snapshot exposure: %w", err)
		}
	}

	return report, nil
}

func (b *Builder) narrate(ctx context.Context, period model.Period, stats model.ReportStats, groups []*model.NewsGroup) (string, error) {
	systemPrompt, maxTokens, err := systemPromptByPeriod(period, stats)
	if err != nil {
		return "", err
	}
	userPrompt := groupContext(groups)

	resp, err := b.completer.Complete(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		JSONMode:     false,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("period summary completion: %w", err)
	}
	return resp, nil
}

// snapshotExposure computes the current remediation-metrics ledger and
// upserts today's PeriodSnapshot (spec.md §4.9). cvssByID/kevByID are
// derived from the window's enriched CVEs; exposures whose CVE is not in
// that window have no CVSS or KEV entry, so they count as unknown
// severity and not in KEV.
func (b *Builder) snapshotExposure(ctx context.Context, userID string, period model.Period, cves []*model.ArticleCVE, now time.Time) error {
	exposures, err := b.exposures.ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("list exposures: %w", err)
	}

	cvssByID := map[string]*float64{}
	kevByID := map[string]bool{}
	for _, c := range cves {
		if _, ok := cvssByID[c.CVEID]; !ok {
			cvssByID[c.CVEID] = c.CVSSScore
			kevByID[c.CVEID] = c.InKEV
		}
	}

	metrics := exposure.RemediationMetrics(exposures, cvssByID, kevByID, now)
	snapshot := exposure.BuildSnapshot(userID, period, metrics, now)
	return b.snapshots.Upsert(ctx, snapshot)
}
