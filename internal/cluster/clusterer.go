// Package cluster implements the IDF-weighted Jaccard similarity
// clusterer (spec.md §4.6, component C6): articles belonging to the same
// story are greedily agglomerated into NewsGroup candidates.
package cluster

import (
	"math"
	"sort"
	"strings"
	"time"
)

// MaxGroupSize caps how many articles one cluster may hold (spec.md §4.6
// step 3, invariant 4 in spec.md §8).
const MaxGroupSize = 10

// simThreshold is the minimum pairwise similarity considered for merging.
const simThreshold = 0.30

// temporalWindowHours bounds how far apart two publish times can be while
// still contributing any temporal similarity.
const temporalWindowHours = 72.0

// ArticleInput is one ungrouped article's feature set for clustering.
// Entities and Keywords carry their original casing — DominantEntities and
// the fallback title are built directly from these strings (spec.md §8
// scenario 2 expects "Fortinet", not "fortinet") — while Signals are
// already slugs from the caller. Similarity comparisons lowercase
// internally so "Fortinet" and "fortinet" still match as the same term.
type ArticleInput struct {
	ID          string
	Title       string
	Entities    []string
	Signals     []string
	Keywords    []string
	PublishedAt *time.Time
}

// Result is one output cluster, ready to become a NewsGroup row plus a
// bulk news_group_id update on its member UserArticles (spec.md §4.10
// step 8).
type Result struct {
	Title            string
	ArticleIDs       []string
	Confidence       float64
	DominantSignals  []string
	DominantEntities []string
}

// Cluster runs the full pipeline: corpus IDF, pairwise similarity, greedy
// agglomeration, then per-group confidence/dominant-terms/title. Input
// order is preserved as the stable tie-break spec.md §4.6 requires.
func Cluster(articles []ArticleInput) []Result {
	if len(articles) == 0 {
		return nil
	}

	idf := buildIDF(articles)
	pairs := pairwiseSimilarities(articles, idf)

	groups := agglomerate(len(articles), pairs)

	results := make([]Result, 0, len(groups))
	for _, g := range groups {
		results = append(results, buildResult(articles, g, pairs))
	}

	// Deterministic ordering: by article count desc, stable on first
	// appearance order for ties (spec.md §4.6 "Determinism").
	sort.SliceStable(results, func(i, j int) bool {
		return len(results[i].ArticleIDs) > len(results[j].ArticleIDs)
	})
	return results
}

// termSpace holds the three disjoint feature spaces similarity is
// computed over (spec.md §4.6 step 1).
type termSpace struct {
	entities idfTable
	signals  idfTable
	keywords idfTable
}

type idfTable map[string]float64

// buildIDF computes idf(t) = log(N/df(t))/log(N) per term space, with the
// documented N=1 fallback of weight 1 (spec.md §4.6 step 1).
func buildIDF(articles []ArticleInput) termSpace {
	n := len(articles)
	return termSpace{
		entities: idfFor(n, collectDF(articles, func(a ArticleInput) []string { return a.Entities })),
		signals:  idfFor(n, collectDF(articles, func(a ArticleInput) []string { return a.Signals })),
		keywords: idfFor(n, collectDF(articles, func(a ArticleInput) []string { return a.Keywords })),
	}
}

func collectDF(articles []ArticleInput, terms func(ArticleInput) []string) map[string]int {
	df := make(map[string]int)
	for _, a := range articles {
		seen := make(map[string]bool)
		for _, raw := range terms(a) {
			t := strings.ToLower(raw)
			if seen[t] {
				continue
			}
			seen[t] = true
			df[t]++
		}
	}
	return df
}

func idfFor(n int, df map[string]int) idfTable {
	table := make(idfTable, len(df))
	if n <= 1 {
		for t := range df {
			table[t] = 1
		}
		return table
	}
	logN := math.Log(float64(n))
	for t, count := range df {
		table[t] = math.Log(float64(n)/float64(count)) / logN
	}
	return table
}

// weightedJaccard computes Σ idf(A∩B) / Σ idf(A∪B), 0 if the union is
// empty (spec.md §4.6 step 2).
func weightedJaccard(a, b []string, idf idfTable) float64 {
	setA := toSet(a)
	setB := toSet(b)

	var interSum, unionSum float64
	union := make(map[string]bool, len(setA)+len(setB))
	for t := range setA {
		union[t] = true
	}
	for t := range setB {
		union[t] = true
	}
	if len(union) == 0 {
		return 0
	}
	for t := range union {
		unionSum += idf[t]
		if setA[t] && setB[t] {
			interSum += idf[t]
		}
	}
	if unionSum == 0 {
		return 0
	}
	return interSum / unionSum
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, i := range items {
		set[strings.ToLower(i)] = true
	}
	return set
}

// temporalSimilarity is max(0, 1 - Δhours/72) when both publish times are
// known, else 0 (spec.md §4.6 step 2).
func temporalSimilarity(a, b *time.Time) float64 {
	if a == nil || b == nil {
		return 0
	}
	delta := a.Sub(*b)
	if delta < 0 {
		delta = -delta
	}
	hours := delta.Hours()
	sim := 1 - hours/temporalWindowHours
	if sim < 0 {
		return 0
	}
	return sim
}

// pair is one candidate similarity edge between two article indices.
type pair struct {
	i, j int
	sim  float64
}

// pairwiseSimilarities computes sim(a,b) for every article pair and
// returns those at or above simThreshold, sorted descending with input
// order as the documented stable tie-break (spec.md §4.6 step 2-3).
func pairwiseSimilarities(articles []ArticleInput, idf termSpace) []pair {
	var pairs []pair
	for i := 0; i < len(articles); i++ {
		for j := i + 1; j < len(articles); j++ {
			sim := similarity(articles[i], articles[j], idf)
			if sim >= simThreshold {
				pairs = append(pairs, pair{i: i, j: j, sim: sim})
			}
		}
	}
	sort.SliceStable(pairs, func(a, b int) bool {
		return pairs[a].sim > pairs[b].sim
	})
	return pairs
}

func similarity(a, b ArticleInput, idf termSpace) float64 {
	wEntities := weightedJaccard(a.Entities, b.Entities, idf.entities)
	wSignals := weightedJaccard(a.Signals, b.Signals, idf.signals)
	wKeywords := weightedJaccard(a.Keywords, b.Keywords, idf.keywords)
	temporal := temporalSimilarity(a.PublishedAt, b.PublishedAt)
	return 0.35*wEntities + 0.30*wSignals + 0.15*wKeywords + 0.20*temporal
}

// agglomerate implements the greedy union rule from spec.md §4.6 step 3:
// iterate pairs in descending-similarity order; start a new group for two
// unassigned endpoints; let a singleton join an existing group only under
// the size cap; merge two distinct groups only if the combined size fits.
// Articles untouched by any surviving pair become singleton groups.
func agglomerate(n int, pairs []pair) [][]int {
	groupOf := make([]int, n)
	for i := range groupOf {
		groupOf[i] = -1
	}
	var groups [][]int

	for _, p := range pairs {
		gi, gj := groupOf[p.i], groupOf[p.j]
		switch {
		case gi == -1 && gj == -1:
			idx := len(groups)
			groups = append(groups, []int{p.i, p.j})
			groupOf[p.i] = idx
			groupOf[p.j] = idx
		case gi != -1 && gj == -1:
			if len(groups[gi]) < MaxGroupSize {
				groups[gi] = append(groups[gi], p.j)
				groupOf[p.j] = gi
			}
		case gi == -1 && gj != -1:
			if len(groups[gj]) < MaxGroupSize {
				groups[gj] = append(groups[gj], p.i)
				groupOf[p.i] = gj
			}
		case gi != gj:
			if len(groups[gi])+len(groups[gj]) <= MaxGroupSize {
				groups[gi] = append(groups[gi], groups[gj]...)
				for _, idx := range groups[gj] {
					groupOf[idx] = gi
				}
				groups[gj] = nil
			}
		}
		// gi == gj (already in the same group): nothing to do.
	}

	var out [][]int
	for _, g := range groups {
		if len(g) > 0 {
			out = append(out, g)
		}
	}
	for i := 0; i < n; i++ {
		if groupOf[i] == -1 {
			out = append(out, []int{i})
		}
	}
	return out
}

// buildResult computes confidence, dominant terms and the title for one
// group (spec.md §4.6 steps 4-6).
func buildResult(articles []ArticleInput, indices []int, pairs []pair) Result {
	ids := make([]string, len(indices))
	inGroup := make(map[int]bool, len(indices))
	for k, idx := range indices {
		ids[k] = articles[idx].ID
		inGroup[idx] = true
	}

	confidence := 0.5
	if len(indices) > 1 {
		var sum float64
		var count int
		for _, p := range pairs {
			if inGroup[p.i] && inGroup[p.j] {
				sum += p.sim
				count++
			}
		}
		if count > 0 {
			confidence = sum / float64(count)
		}
	}

	dominantEntities := topN(articles, indices, func(a ArticleInput) []string { return a.Entities }, 3)
	dominantSignals := topN(articles, indices, func(a ArticleInput) []string { return a.Signals }, 3)

	title := buildTitle(articles, indices, dominantEntities, dominantSignals)

	return Result{
		Title:            title,
		ArticleIDs:       ids,
		Confidence:       confidence,
		DominantSignals:  dominantSignals,
		DominantEntities: dominantEntities,
	}
}

// topN returns the n most frequent terms across the group's articles,
// ties broken by first occurrence in input order (spec.md §4.6 step 5).
func topN(articles []ArticleInput, indices []int, terms func(ArticleInput) []string, n int) []string {
	counts := make(map[string]int)
	var order []string
	seen := make(map[string]bool)
	for _, idx := range indices {
		for _, t := range terms(articles[idx]) {
			counts[t]++
			if !seen[t] {
				seen[t] = true
				order = append(order, t)
			}
		}
	}
	sort.SliceStable(order, func(i, j int) bool {
		return counts[order[i]] > counts[order[j]]
	})
	if len(order) > n {
		order = order[:n]
	}
	return order
}

// buildTitle follows spec.md §4.6 step 6's fallback chain. This is
// overwritten by the briefing generator (C7) on success; it only needs to
// be a reasonable placeholder.
func buildTitle(articles []ArticleInput, indices []int, dominantEntities, dominantSignals []string) string {
	hasEntity := len(dominantEntities) > 0
	hasSignal := len(dominantSignals) > 0

	switch {
	case hasEntity && hasSignal:
		return dominantEntities[0] + ": " + titleCase(dominantSignals[0])
	case hasEntity:
		return dominantEntities[0] + " Incident"
	case hasSignal:
		return titleCase(dominantSignals[0]) + " Activity"
	default:
		return articles[indices[0]].Title
	}
}

// titleCase upper-cases the first letter of each hyphen/space/underscore
// separated word in a signal slug, e.g. "data-breach" -> "Data Breach".
func titleCase(s string) string {
	s = strings.ReplaceAll(s, "-", " ")
	s = strings.ReplaceAll(s, "_", " ")
	words := strings.Fields(s)
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
