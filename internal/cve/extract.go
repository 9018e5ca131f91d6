// Package cve implements CVE-ID extraction, NVD enrichment and KEV joins
// (spec.md §4.5, component C5).
package cve

import (
	"regexp"
	"strings"
)

var cveIDPattern = regexp.MustCompile(`CVE-\d{4}-\d{4,7}`)

// ExtractIDs pulls every CVE identifier out of text, case-normalized to
// upper and de-duplicated (spec.md §4.5, §8 round-trip law).
func ExtractIDs(text string) []string {
	matches := cveIDPattern.FindAllString(strings.ToUpper(text), -1)
	seen := make(map[string]bool, len(matches))
	var out []string
	for _, m := range matches {
		if seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	return out
}

// ExtractIDsFromBatch extracts the CVE ids of each article text in a
// batch, keyed by article id; UnionIDs then flattens them for the
// "enrich once per unique CVE across the batch" rule (spec.md §4.5,
// invariant 5 scenario).
func ExtractIDsFromBatch(texts map[string]string) map[string][]string {
	out := make(map[string][]string, len(texts))
	for articleID, text := range texts {
		out[articleID] = ExtractIDs(text)
	}
	return out
}

// UnionIDs flattens a per-article id map into a deduplicated set.
func UnionIDs(perArticle map[string][]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, ids := range perArticle {
		for _, id := range ids {
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
