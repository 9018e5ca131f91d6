// Package keyword implements the tokenized keyword matcher (spec.md §4.2,
// component C2). It is a pure function with no I/O, so it is trivially
// order-independent (invariant 3 in spec.md §8).
package keyword

import (
	"regexp"
	"strings"
	"sync"

	"cyberdigest/internal/model"
)

// Result is the per-article outcome of matching against one user's
// keyword list.
type Result struct {
	Matched         bool
	MatchedKeywords []string
}

// Matcher holds a compiled case-insensitive word-boundary pattern per
// keyword. Patterns are cached so repeated calls for the same user's
// keyword list (common across a digest run's many articles) don't
// recompile a regexp per article.
type Matcher struct {
	mu       sync.Mutex
	compiled map[string]*regexp.Regexp
}

// New constructs an empty Matcher.
func New() *Matcher {
	return &Matcher{compiled: make(map[string]*regexp.Regexp)}
}

// Match scans title+" "+content against every keyword, returning which
// keywords hit. An empty keyword list matches nothing (spec.md §4.2).
func (m *Matcher) Match(title, content string, keywords []*model.Keyword) Result {
	if len(keywords) == 0 {
		return Result{}
	}

	haystack := title + " " + content
	var hits []string
	for _, kw := range keywords {
		if m.pattern(kw.Word).MatchString(haystack) {
			hits = append(hits, kw.Word)
		}
	}
	return Result{Matched: len(hits) > 0, MatchedKeywords: hits}
}

func (m *Matcher) pattern(word string) *regexp.Regexp {
	key := strings.ToLower(word)

	m.mu.Lock()
	defer m.mu.Unlock()

	if re, ok := m.compiled[key]; ok {
		return re
	}
	re := regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(key) + `\b`)
	m.compiled[key] = re
	return re
}

// MatchItems applies Match across a batch of freshly scraped items (before
// any Article row exists), keyed by URL so C10 can partition matched vs.
// unmatched prior to persistence (spec.md §4.10 step 3).
func (m *Matcher) MatchItems(items []model.ParsedItem, keywords []*model.Keyword) map[string]Result {
	out := make(map[string]Result, len(items))
	for _, item := range items {
		out[item.URL] = m.Match(item.Title, item.Snippet, keywords)
	}
	return out
}
