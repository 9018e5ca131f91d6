package report

import (
	"testing"
	"time"

	"cyberdigest/internal/model"
)

func ptr(v float64) *float64 { return &v }

func TestStoryTotalsByCaseType_CountsAndSorts(t *testing.T) {
	groups := []*model.NewsGroup{
		{CaseType: model.CaseFixed},
		{CaseType: model.CaseActivelyExploited},
		{CaseType: model.CaseActivelyExploited},
	}
	got := storyTotalsByCaseType(groups)
	if len(got) != 2 {
		t.Fatalf("expected 2 buckets, got %d", len(got))
	}
	if got[0].CaseType != model.CaseActivelyExploited || got[0].Count != 2 {
		t.Errorf("first bucket = %+v, want case 1 count 2", got[0])
	}
}

func TestTopEntities_FiltersByTypeAndCaps(t *testing.T) {
	var entities []*model.ArticleEntity
	for i := 0; i < 15; i++ {
		entities = append(entities, &model.ArticleEntity{Type: model.EntityProduct, Name: "p" + string(rune('a'+i))})
	}
	entities = append(entities, &model.ArticleEntity{Type: model.EntityCompany, Name: "Acme"})

	products := topEntities(entities, []model.EntityType{model.EntityProduct}, 10)
	if len(products) != 10 {
		t.Errorf("len(products) = %d, want 10", len(products))
	}
	for _, p := range products {
		if p.Name == "Acme" {
			t.Error("company entity leaked into product bucket")
		}
	}
}

func TestStoriesPerDay_IncludesEmptyDays(t *testing.T) {
	from := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC)
	groups := []*model.NewsGroup{
		{Date: time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)},
	}
	got := storiesPerDay(groups, from, to)
	if len(got) != 3 {
		t.Fatalf("expected 3 days, got %d", len(got))
	}
	if got[0].Count != 1 {
		t.Errorf("day 0 count = %d, want 1", got[0].Count)
	}
	if got[1].Count != 0 || got[2].Count != 0 {
		t.Error("expected zero-count days to be present")
	}
}

func TestCVEMetrics_DedupesAndBuckets(t *testing.T) {
	due := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	cves := []*model.ArticleCVE{
		{CVEID: "CVE-2024-0001", CVSSScore: ptr(9.8), InKEV: true, KEVDueDate: &due},
		{CVEID: "CVE-2024-0001", CVSSScore: ptr(9.8), InKEV: true, KEVDueDate: &due}, // same CVE via 2nd article
		{CVEID: "CVE-2024-0002", CVSSScore: ptr(5.0)},
		{CVEID: "CVE-2024-0003"}, // no score
	}
	m := cveMetrics(cves)
	if m.UniqueCount != 3 {
		t.Errorf("UniqueCount = %d, want 3", m.UniqueCount)
	}
	if m.Buckets.Critical != 1 || m.Buckets.Medium != 1 {
		t.Errorf("buckets = %+v", m.Buckets)
	}
	if m.KEVCount != 1 {
		t.Errorf("KEVCount = %d, want 1", m.KEVCount)
	}
	if len(m.KEVDue) != 1 {
		t.Errorf("KEVDue len = %d, want 1", len(m.KEVDue))
	}
	if m.MaxCVSS != 9.8 {
		t.Errorf("MaxCVSS = %v, want 9.8", m.MaxCVSS)
	}
}

func TestSignalDistributionFromArticleSignals_ResolvesNamesAndSorts(t *testing.T) {
	nameByID := map[string]string{"s1": "ransomware", "s2": "data-breach"}
	signals := []*model.ArticleSignal{
		{IndustrySignalID: "s1"}, {IndustrySignalID: "s1"}, {IndustrySignalID: "s2"},
		{IndustrySignalID: "unknown"},
	}
	got := signalDistributionFromArticleSignals(signals, nameByID)
	if len(got) != 2 {
		t.Fatalf("expected 2 named counts, got %d", len(got))
	}
	if got[0].Name != "ransomware" || got[0].Count != 2 {
		t.Errorf("first = %+v, want ransomware:2", got[0])
	}
}
