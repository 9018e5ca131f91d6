// Package report implements the period report builder (spec.md §4.8,
// component C8): per-user 1d/7d/30d rollups over stories, signals,
// entities and CVEs, narrated by a period-specific LLM prompt.
package report

import (
	"sort"
	"time"

	"cyberdigest/internal/model"
)

// computeStats is the pure aggregation step of spec.md §4.8 step 2. All
// inputs are already scoped to the reporting window by the caller.
func computeStats(groups []*model.NewsGroup, entities []*model.ArticleEntity, signalNames []model.NamedCount, cves []*model.ArticleCVE, from, to time.Time) model.ReportStats {
	return model.ReportStats{
		StoryTotalsByCaseType: storyTotalsByCaseType(groups),
		SignalDistribution:    signalNames,
		TopEntities:           topEntities(entities, nil, 10),
		TopAffectedProducts:   topEntities(entities, []model.EntityType{model.EntityProduct}, 10),
		TopAffectedSectors:    topEntities(entities, []model.EntityType{model.EntitySector}, 10),
		TopThreatActors:       topEntities(entities, []model.EntityType{model.EntityPerson, model.EntityCompany}, 10),
		StoriesPerDay:         storiesPerDay(groups, from, to),
		CVE:                   cveMetrics(cves),
	}
}

func storyTotalsByCaseType(groups []*model.NewsGroup) []model.CaseTypeCount {
	counts := map[model.CaseType]int{}
	for _, g := range groups {
		counts[g.CaseType]++
	}
	out := make([]model.CaseTypeCount, 0, len(counts))
	for ct, n := range counts {
		out = append(out, model.CaseTypeCount{CaseType: ct, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CaseType < out[j].CaseType })
	return out
}

// signalDistributionFromArticleSignals resolves industry-signal ids to
// names and sorts the resulting histogram descending by count. Kept as a
// standalone helper (rather than inlined in Generate) so it can be unit
// tested against raw ArticleSignal rows.
func signalDistributionFromArticleSignals(signals []*model.ArticleSignal, nameByID map[string]string) []model.NamedCount {
	counts := map[string]int{}
	for _, s := range signals {
		name, ok := nameByID[s.IndustrySignalID]
		if !ok {
			continue
		}
		counts[name]++
	}
	return sortedNamedCounts(counts, 0)
}

func topEntities(entities []*model.ArticleEntity, types []model.EntityType, limit int) []model.NamedCount {
	allowed := map[model.EntityType]bool{}
	for _, t := range types {
		allowed[t] = true
	}
	counts := map[string]int{}
	for _, e := range entities {
		if len(types) > 0 && !allowed[e.Type] {
			continue
		}
		counts[e.Name]++
	}
	return sortedNamedCounts(counts, limit)
}

func sortedNamedCounts(counts map[string]int, limit int) []model.NamedCount {
	out := make([]model.NamedCount, 0, len(counts))
	for name, n := range counts {
		out = append(out, model.NamedCount{Name: name, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// storiesPerDay buckets groups by UTC calendar date, inclusive of days
// with zero stories (spec.md §4.8 step 2).
func storiesPerDay(groups []*model.NewsGroup, from, to time.Time) []model.DayCount {
	counts := map[string]int{}
	for _, g := range groups {
		day := g.Date.UTC().Truncate(24 * time.Hour)
		counts[day.Format(time.RFC3339)]++
	}
	var out []model.DayCount
	start := from.UTC().Truncate(24 * time.Hour)
	end := to.UTC().Truncate(24 * time.Hour)
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, model.DayCount{Date: d, Count: counts[d.Format(time.RFC3339)]})
	}
	return out
}

func cveMetrics(cves []*model.ArticleCVE) model.CVEMetrics {
	unique := map[string]*model.ArticleCVE{}
	for _, c := range cves {
		if _, ok := unique[c.CVEID]; !ok {
			unique[c.CVEID] = c
		}
	}

	var buckets model.CVEBucketCounts
	var sum, max float64
	var scored int
	kevCount := 0
	var kevDue []model.KEVDue
	var top []model.TopCVE

	for _, c := range unique {
		if c.InKEV {
			kevCount++
			if c.KEVDueDate != nil {
				kevDue = append(kevDue, model.KEVDue{CVEID: c.CVEID, DueDate: c.KEVDueDate})
			}
		}
		if c.CVSSScore != nil {
			v := *c.CVSSScore
			switch {
			case v >= 9:
				buckets.Critical++
			case v >= 7:
				buckets.High++
			case v >= 4:
				buckets.Medium++
			default:
				buckets.Low++
			}
			sum += v
			scored++
			if v > max {
				max = v
			}
		}
		top = append(top, model.TopCVE{CVEID: c.CVEID, CVSS: c.CVSSScore})
	}

	sort.Slice(top, func(i, j int) bool {
		if top[i].CVSS == nil {
			return false
		}
		if top[j].CVSS == nil {
			return true
		}
		return *top[i].CVSS > *top[j].CVSS
	})
	if len(top) > 10 {
		top = top[:10]
	}
	sort.Slice(kevDue, func(i, j int) bool { return kevDue[i].CVEID < kevDue[j].CVEID })

	avg := 0.0
	if scored > 0 {
		avg = round1(sum / float64(scored))
	}

	return model.CVEMetrics{
		UniqueCount: len(unique),
		Buckets:     buckets,
		KEVCount:    kevCount,
		AvgCVSS:     avg,
		MaxCVSS:     round1(max),
		Top10:       top,
		KEVDue:      kevDue,
	}
}

func round1(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
