package exposure

import (
	"testing"
	"time"

	"cyberdigest/internal/model"
)

func TestParseCPE_RejectsMalformed(t *testing.T) {
	cases := []string{"", "not-a-cpe", "cpe:2.2:a:vendor:product:1.0"}
	for _, raw := range cases {
		if _, err := ParseCPE(raw); err == nil {
			t.Errorf("ParseCPE(%q): expected error, got none", raw)
		}
	}
}

func TestParseCPE_RoundTripsFields(t *testing.T) {
	cpe, err := ParseCPE("cpe:2.3:a:apache:log4j:2.14.1:*:*:*:*:*:*:*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cpe.Part != "a" || cpe.Vendor != "apache" || cpe.Product != "log4j" || cpe.Version != "2.14.1" {
		t.Errorf("parsed = %+v", cpe)
	}
}

func TestMatch_VendorOnlyMismatchIsNone(t *testing.T) {
	cpe := CPE{Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	item := &model.TechStackItem{Vendor: "microsoft", Product: "log4j", Version: "2.14.1"}
	if got := Match(cpe, item); got != model.MatchNone {
		t.Errorf("Match = %q, want none", got)
	}
}

func TestMatch_VendorOnlyMatchIsVendorTier(t *testing.T) {
	cpe := CPE{Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	item := &model.TechStackItem{Vendor: "apache", Product: "kafka", Version: "3.0"}
	if got := Match(cpe, item); got != model.MatchVendor {
		t.Errorf("Match = %q, want vendor", got)
	}
}

func TestMatch_ProductMatchWithDifferentVersionIsProductTier(t *testing.T) {
	cpe := CPE{Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	item := &model.TechStackItem{Vendor: "apache", Product: "log4j", Version: "2.17.0"}
	if got := Match(cpe, item); got != model.MatchProduct {
		t.Errorf("Match = %q, want product", got)
	}
}

func TestMatch_ExactVersionIsExactTier(t *testing.T) {
	cpe := CPE{Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	item := &model.TechStackItem{Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	if got := Match(cpe, item); got != model.MatchExact {
		t.Errorf("Match = %q, want exact", got)
	}
}

func TestMatch_ItemVersionPrefixedByCPEVersionIsExact(t *testing.T) {
	cpe := CPE{Vendor: "apache", Product: "log4j", Version: "2.14"}
	item := &model.TechStackItem{Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	if got := Match(cpe, item); got != model.MatchExact {
		t.Errorf("Match = %q, want exact", got)
	}
}

func TestMatch_WildcardCPEVersionIsProductTier(t *testing.T) {
	cpe := CPE{Vendor: "apache", Product: "log4j", Version: "*"}
	item := &model.TechStackItem{Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	if got := Match(cpe, item); got != model.MatchProduct {
		t.Errorf("Match = %q, want product", got)
	}
}

func TestBatchMatch_SkipsCVEWithNoCPEs(t *testing.T) {
	cves := []*model.ArticleCVE{{CVEID: "CVE-2024-0001"}}
	stack := []*model.TechStackItem{{ID: "s1", Vendor: "apache", Product: "log4j", Version: "2.14.1", Active: true}}
	got := BatchMatch(cves, stack)
	if len(got) != 0 {
		t.Fatalf("expected no results, got %d", len(got))
	}
}

func TestBatchMatch_CVEWithCPEsButNoMatchEmitsNotApplicableRecord(t *testing.T) {
	cves := []*model.ArticleCVE{{
		CVEID:      "CVE-2024-0001",
		CPEMatches: []string{"cpe:2.3:a:microsoft:windows:10:*:*:*:*:*:*:*"},
	}}
	stack := []*model.TechStackItem{{ID: "s1", Vendor: "apache", Product: "log4j", Version: "2.14.1", Active: true}}
	got := BatchMatch(cves, stack)
	if len(got) != 1 {
		t.Fatalf("expected 1 result, got %d", len(got))
	}
	if got[0].Level != model.MatchNone || got[0].StackItemID != "" {
		t.Errorf("got = %+v, want no-match record with empty stack item", got[0])
	}
}

func TestBatchMatch_DedupesByCVEAndKeepsHighestRankedMatch(t *testing.T) {
	cves := []*model.ArticleCVE{
		{
			CVEID:      "CVE-2024-0001",
			ArticleID:  "a1",
			CPEMatches: []string{"cpe:2.3:a:apache:log4j:1.0:*:*:*:*:*:*:*"},
		},
		{
			CVEID:      "CVE-2024-0001",
			ArticleID:  "a2",
			CPEMatches: []string{"cpe:2.3:a:apache:log4j:2.14.1:*:*:*:*:*:*:*"},
		},
	}
	stack := []*model.TechStackItem{{ID: "s1", Vendor: "apache", Product: "log4j", Version: "2.14.1", Active: true}}
	got := BatchMatch(cves, stack)
	if len(got) != 1 {
		t.Fatalf("expected exactly one row per distinct CVE, got %d", len(got))
	}
	if got[0].ArticleCVEID != "a1" {
		t.Errorf("expected the first-seen article to win dedup, got %q", got[0].ArticleCVEID)
	}
}

func TestBatchMatch_IgnoresInactiveStackItems(t *testing.T) {
	cves := []*model.ArticleCVE{{
		CVEID:      "CVE-2024-0001",
		CPEMatches: []string{"cpe:2.3:a:apache:log4j:2.14.1:*:*:*:*:*:*:*"},
	}}
	stack := []*model.TechStackItem{{ID: "s1", Vendor: "apache", Product: "log4j", Version: "2.14.1", Active: false}}
	got := BatchMatch(cves, stack)
	if len(got) != 1 || got[0].Level != model.MatchNone {
		t.Fatalf("inactive stack items must not be matched, got %+v", got)
	}
}

func TestBatchMatch_SkipsUnparsableCPEStrings(t *testing.T) {
	cves := []*model.ArticleCVE{{
		CVEID:      "CVE-2024-0001",
		CPEMatches: []string{"garbage", "cpe:2.3:a:apache:log4j:2.14.1:*:*:*:*:*:*:*"},
	}}
	stack := []*model.TechStackItem{{ID: "s1", Vendor: "apache", Product: "log4j", Version: "2.14.1", Active: true}}
	got := BatchMatch(cves, stack)
	if len(got) != 1 || got[0].Level != model.MatchExact {
		t.Fatalf("expected the valid CPE to still produce an exact match, got %+v", got)
	}
}

func TestToExposure_MapsLevelToState(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	r := BatchResult{CVEID: "CVE-2024-0001", ArticleCVEID: "a1", StackItemID: "s1", Level: model.MatchExact, MatchedCPE: "cpe:..."}
	exp := ToExposure("u1", r, now)
	if exp.State != model.ExposureVulnerable {
		t.Errorf("State = %q, want VULNERABLE", exp.State)
	}
	if !exp.AutoClassified {
		t.Error("expected AutoClassified to be true")
	}
	if exp.FirstDetectedAt != now {
		t.Errorf("FirstDetectedAt = %v, want %v", exp.FirstDetectedAt, now)
	}
}

func TestRetroactiveMatch_SkipsManuallyOverriddenCVEs(t *testing.T) {
	now := time.Now()
	item := &model.TechStackItem{ID: "s1", UserID: "u1", Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	cves := []*model.ArticleCVE{{
		CVEID:      "CVE-2024-0001",
		ArticleID:  "a1",
		CPEMatches: []string{"cpe:2.3:a:apache:log4j:2.14.1:*:*:*:*:*:*:*"},
	}}
	overridden := map[string]bool{"CVE-2024-0001": true}

	got := RetroactiveMatch(item, cves, overridden, now)
	if len(got) != 0 {
		t.Fatalf("expected manually overridden CVE to be skipped, got %d results", len(got))
	}
}

func TestRetroactiveMatch_NeverUpsertsVendorOnlyMatches(t *testing.T) {
	now := time.Now()
	item := &model.TechStackItem{ID: "s1", UserID: "u1", Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	cves := []*model.ArticleCVE{{
		CVEID:      "CVE-2024-0001",
		ArticleID:  "a1",
		CPEMatches: []string{"cpe:2.3:a:apache:kafka:3.0:*:*:*:*:*:*:*"},
	}}
	got := RetroactiveMatch(item, cves, nil, now)
	if len(got) != 0 {
		t.Fatalf("vendor-only matches must never be retroactively upserted, got %d", len(got))
	}
}

func TestRetroactiveMatch_UpsertsExactAndProductMatches(t *testing.T) {
	now := time.Now()
	item := &model.TechStackItem{ID: "s1", UserID: "u1", Vendor: "apache", Product: "log4j", Version: "2.14.1"}
	cves := []*model.ArticleCVE{
		{CVEID: "CVE-2024-0001", ArticleID: "a1", CPEMatches: []string{"cpe:2.3:a:apache:log4j:2.14.1:*:*:*:*:*:*:*"}},
		{CVEID: "CVE-2024-0002", ArticleID: "a2", CPEMatches: []string{"cpe:2.3:a:apache:log4j:9.9.9:*:*:*:*:*:*:*"}},
	}
	got := RetroactiveMatch(item, cves, nil, now)
	if len(got) != 2 {
		t.Fatalf("expected 2 upserts, got %d", len(got))
	}
	states := map[string]model.ExposureState{}
	for _, e := range got {
		states[e.CVEID] = e.State
	}
	if states["CVE-2024-0001"] != model.ExposureVulnerable || states["CVE-2024-0002"] != model.ExposureVulnerable {
		t.Errorf("states = %+v, want both VULNERABLE", states)
	}
}

func TestRemediationMetrics_ZeroDenominatorDefaults(t *testing.T) {
	m := RemediationMetrics(nil, nil, nil, time.Now())
	if m.PatchRatePercent != 0 {
		t.Errorf("PatchRatePercent = %v, want 0 with no vulnerable/fixed rows", m.PatchRatePercent)
	}
	if m.SLACompliancePercent != 100 {
		t.Errorf("SLACompliancePercent = %v, want 100 when no SLA-eligible rows exist", m.SLACompliancePercent)
	}
}

func TestRemediationMetrics_PatchRateAndSLACompliance(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	onTimeDeadline := now.Add(48 * time.Hour)
	missedDeadline := now.Add(-24 * time.Hour)
	patchedOnTime := now.Add(-1 * time.Hour)

	exposures := []*model.UserCVEExposure{
		{CVEID: "CVE-1", State: model.ExposureVulnerable},
		{
			CVEID:               "CVE-2",
			State:               model.ExposureFixed,
			FirstDetectedAt:     now.Add(-72 * time.Hour),
			PatchedAt:           &patchedOnTime,
			RemediationDeadline: &onTimeDeadline,
		},
		{
			CVEID:               "CVE-3",
			State:               model.ExposureFixed,
			FirstDetectedAt:     now.Add(-96 * time.Hour),
			PatchedAt:           &now,
			RemediationDeadline: &missedDeadline,
		},
	}

	m := RemediationMetrics(exposures, nil, nil, now)
	if m.PatchRatePercent != round1(2.0/3.0*100) {
		t.Errorf("PatchRatePercent = %v", m.PatchRatePercent)
	}
	if m.SLACompliancePercent != 50 {
		t.Errorf("SLACompliancePercent = %v, want 50 (1 of 2 SLA-eligible rows compliant)", m.SLACompliancePercent)
	}
}

func TestRemediationMetrics_KEVAndCriticalCounts(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	overdueDeadline := now.Add(-1 * time.Hour)
	critical := 9.8

	exposures := []*model.UserCVEExposure{
		{CVEID: "CVE-1", State: model.ExposureVulnerable, RemediationDeadline: &overdueDeadline},
		{CVEID: "CVE-2", State: model.ExposureVulnerable},
	}
	cvssByID := map[string]*float64{"CVE-1": &critical}
	kevByID := map[string]bool{"CVE-1": true}

	m := RemediationMetrics(exposures, cvssByID, kevByID, now)
	if m.KEVExposureCount != 1 {
		t.Errorf("KEVExposureCount = %d, want 1", m.KEVExposureCount)
	}
	if m.KEVOverdueCount != 1 {
		t.Errorf("KEVOverdueCount = %d, want 1", m.KEVOverdueCount)
	}
	if m.CriticalExposedCount != 1 {
		t.Errorf("CriticalExposedCount = %d, want 1", m.CriticalExposedCount)
	}
	if m.AvgCVSSExposed != 9.8 {
		t.Errorf("AvgCVSSExposed = %v, want 9.8", m.AvgCVSSExposed)
	}
}
