// Package exposure implements the CPE-matching exposure engine (spec.md
// §4.9, component C9): classifying a user's declared technology stack
// against CVEs mentioned in their matched articles, and aggregating
// remediation metrics over the resulting ledger.
package exposure

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"cyberdigest/internal/model"
)

// CPE is a parsed CPE 2.3 attribute string.
type CPE struct {
	Part    string
	Vendor  string
	Product string
	Version string
}

// ParseCPE splits a `cpe:2.3:<part>:<vendor>:<product>:<version>:...`
// string and rejects anything whose head doesn't match (spec.md §4.9).
func ParseCPE(raw string) (CPE, error) {
	fields := strings.Split(raw, ":")
	if len(fields) < 6 || fields[0] != "cpe" || fields[1] != "2.3" {
		return CPE{}, fmt.Errorf("not a cpe:2.3 string: %q", raw)
	}
	return CPE{
		Part:    fields[2],
		Vendor:  fields[3],
		Product: fields[4],
		Version: fields[5],
	}, nil
}

// rank orders none < vendor < product < exact so the highest-wins
// rule in spec.md §4.9 can compare by int.
func rank(level model.MatchLevel) int {
	switch level {
	case model.MatchExact:
		return 3
	case model.MatchProduct:
		return 2
	case model.MatchVendor:
		return 1
	default:
		return 0
	}
}

// Match computes the match level between one CPE and one declared stack
// item, per the exact/product/vendor hierarchy in spec.md §4.9.
func Match(cpe CPE, item *model.TechStackItem) model.MatchLevel {
	if !strings.EqualFold(cpe.Vendor, item.Vendor) {
		return model.MatchNone
	}
	if !strings.EqualFold(cpe.Product, item.Product) {
		return model.MatchVendor
	}
	if versionMatches(cpe.Version, item.Version) {
		return model.MatchExact
	}
	return model.MatchProduct
}

// versionMatches implements "equal OR the item's version string starts
// with the CPE version token", plus the CPE wildcard case (spec.md §4.9:
// "the CPE's version is `*` with a concrete item version" is a product
// match, handled by the caller returning false here).
func versionMatches(cpeVersion, itemVersion string) bool {
	if cpeVersion == "*" || cpeVersion == "" {
		return false
	}
	if itemVersion == "" {
		return false
	}
	if strings.EqualFold(cpeVersion, itemVersion) {
		return true
	}
	return strings.HasPrefix(strings.ToLower(itemVersion), strings.ToLower(cpeVersion))
}

// BatchResult is one row the batch matcher wants upserted.
type BatchResult struct {
	CVEID        string
	ArticleCVEID string
	StackItemID  string // empty for the CPEs-but-no-match NOT_APPLICABLE case
	Level        model.MatchLevel
	MatchedCPE   string
}

// BatchMatch scans every distinct CVE's CPE list against every stack item
// and keeps, per CVE, only the single highest-ranked match (spec.md §4.9
// "Batch match"). A CVE with CPEs but no match at all still emits one
// NOT_APPLICABLE record with no stack item; a CVE with no CPEs is skipped.
func BatchMatch(cves []*model.ArticleCVE, stack []*model.TechStackItem) []BatchResult {
	seen := make(map[string]bool)
	var out []BatchResult

	for _, cve := range cves {
		if seen[cve.CVEID] {
			continue
		}
		seen[cve.CVEID] = true

		if len(cve.CPEMatches) == 0 {
			continue
		}

		best := BatchResult{CVEID: cve.CVEID, ArticleCVEID: cve.ArticleID, Level: model.MatchNone}
		for _, raw := range cve.CPEMatches {
			parsed, err := ParseCPE(raw)
			if err != nil {
				continue
			}
			for _, item := range stack {
				if !item.Active {
					continue
				}
				level := Match(parsed, item)
				if rank(level) > rank(best.Level) {
					best = BatchResult{
						CVEID:        cve.CVEID,
						ArticleCVEID: cve.ArticleID,
						StackItemID:  item.ID,
						Level:        level,
						MatchedCPE:   raw,
					}
				}
			}
		}
		out = append(out, best)
	}
	return out
}

// ToExposure turns one BatchResult into the UserCVEExposure row the caller
// upserts, applying spec.md §4.9's state-classification mapping.
func ToExposure(userID string, r BatchResult, now time.Time) *model.UserCVEExposure {
	return &model.UserCVEExposure{
		UserID:          userID,
		CVEID:           r.CVEID,
		ArticleCVEID:    r.ArticleCVEID,
		TechStackItemID: r.StackItemID,
		State:           model.StateForMatch(r.Level),
		AutoClassified:  true,
		MatchedCPE:      r.MatchedCPE,
		FirstDetectedAt: now,
	}
}

// RetroactiveMatch scans a newly created stack item against the user's
// existing ArticleCVEs, skipping CVEs with a manually overridden exposure,
// and only upserting on exact/product matches (never vendor) per spec.md
// §4.9 "Retroactive match".
func RetroactiveMatch(item *model.TechStackItem, cves []*model.ArticleCVE, manuallyOverridden map[string]bool, now time.Time) []*model.UserCVEExposure {
	var out []*model.UserCVEExposure
	for _, cve := range cves {
		if manuallyOverridden[cve.CVEID] {
			continue
		}
		best := model.MatchNone
		var bestCPE string
		for _, raw := range cve.CPEMatches {
			parsed, err := ParseCPE(raw)
			if err != nil {
				continue
			}
			level := Match(parsed, item)
			if rank(level) > rank(best) {
				best = level
				bestCPE = raw
			}
		}
		if best != model.MatchExact && best != model.MatchProduct {
			continue
		}
		out = append(out, &model.UserCVEExposure{
			UserID:          item.UserID,
			CVEID:           cve.CVEID,
			ArticleCVEID:    cve.ArticleID,
			TechStackItemID: item.ID,
			State:           model.StateForMatch(best),
			AutoClassified:  true,
			MatchedCPE:      bestCPE,
			FirstDetectedAt: now,
		})
	}
	return out
}

// RemediationMetrics is a pure aggregation over a user's exposure ledger
// plus the CVSS/KEV data joined in from ArticleCVE (spec.md §4.9
// "Remediation metrics"). cvssByID and kevByID let the caller avoid a
// second repository round trip per exposure row.
func RemediationMetrics(exposures []*model.UserCVEExposure, cvssByID map[string]*float64, kevByID map[string]bool, now time.Time) model.RemediationMetrics {
	var vulnerable, fixed []*model.UserCVEExposure
	for _, e := range exposures {
		switch e.State {
		case model.ExposureVulnerable:
			vulnerable = append(vulnerable, e)
		case model.ExposureFixed:
			fixed = append(fixed, e)
		}
	}

	metrics := model.RemediationMetrics{}

	denom := len(vulnerable) + len(fixed)
	if denom > 0 {
		metrics.PatchRatePercent = round1(float64(len(fixed)) / float64(denom) * 100)
	}

	var slaEligible, slaCompliant int
	var mttrDays []float64
	for _, e := range fixed {
		if e.RemediationDeadline != nil {
			slaEligible++
			if e.PatchedAt != nil && !e.PatchedAt.After(*e.RemediationDeadline) {
				slaCompliant++
			}
		}
		if e.PatchedAt != nil {
			mttrDays = append(mttrDays, e.PatchedAt.Sub(e.FirstDetectedAt).Hours()/24)
		}
	}
	if slaEligible == 0 {
		metrics.SLACompliancePercent = 100
	} else {
		metrics.SLACompliancePercent = round1(float64(slaCompliant) / float64(slaEligible) * 100)
	}
	metrics.MTTRAvgDays = round1(mean(mttrDays))
	metrics.MTTRMedianDays = round1(median(mttrDays))

	for _, e := range vulnerable {
		if kevByID[e.CVEID] {
			metrics.KEVExposureCount++
			if e.RemediationDeadline != nil && e.RemediationDeadline.Before(now) {
				metrics.KEVOverdueCount++
			}
		}
		if cvss := cvssByID[e.CVEID]; cvss != nil && *cvss >= 9 {
			metrics.CriticalExposedCount++
		}
	}

	var cvssValues []float64
	for _, e := range vulnerable {
		if cvss := cvssByID[e.CVEID]; cvss != nil {
			cvssValues = append(cvssValues, *cvss)
		}
	}
	metrics.AvgCVSSExposed = round1(mean(cvssValues))

	return metrics
}

func mean(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	var sum float64
	for _, v := range vals {
		sum += v
	}
	return sum / float64(len(vals))
}

func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
