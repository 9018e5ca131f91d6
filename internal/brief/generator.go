// Package brief implements the briefing generator (spec.md §4.7, component
// C7): one LLM call per cluster turns a ClusterResult plus its member
// articles into a narrated NewsGroup.
package brief

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cyberdigest/internal/llm"
	"cyberdigest/internal/model"
)

// maxPromptChars is the combined article-text budget per briefing call
// (spec.md §4.7). When the member articles exceed it, each is truncated to
// an equal share rather than dropping articles outright.
const maxPromptChars = 20000

const maxTokens = 1500

// ArticleInput is one cluster member's text, enough for the LLM to narrate
// the story without re-fetching anything.
type ArticleInput struct {
	ID    string
	Title string
	Text  string
}

// Generator drives the one-call-per-cluster narration.
type Generator struct {
	completer llm.Completer
}

// New constructs a Generator.
func New(completer llm.Completer) *Generator {
	return &Generator{completer: completer}
}

// Generate narrates one cluster. On success it returns a fully populated
// NewsGroup (still lacking ID/persistence fields the caller fills in). An
// empty title or synopsis in the LLM's response is treated as a failure
// (spec.md §4.7, §7) even though the call itself succeeded, so the caller
// falls back to the clusterer's mechanical title and a generic synopsis.
func (g *Generator) Generate(ctx context.Context, cluster model.ClusterResult, articles []ArticleInput) (model.NewsGroup, error) {
	userPrompt := buildUserPrompt(articles)
	systemPrompt := buildSystemPrompt()

	raw, err := g.completer.Complete(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		JSONMode:     true,
		MaxTokens:    maxTokens,
	})
	if err != nil {
		return model.NewsGroup{}, fmt.Errorf("briefing call failed: %w", err)
	}

	var parsed model.BriefingResult
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return model.NewsGroup{}, fmt.Errorf("briefing response was not valid JSON: %w", err)
	}
	if strings.TrimSpace(parsed.Title) == "" || strings.TrimSpace(parsed.Synopsis) == "" {
		return model.NewsGroup{}, fmt.Errorf("briefing response missing title or synopsis")
	}

	caseType := model.CaseType(parsed.CaseType)
	if !model.ValidCaseType(parsed.CaseType) {
		caseType = model.CaseInfo
	}

	return model.NewsGroup{
		Title:            parsed.Title,
		Synopsis:         parsed.Synopsis,
		ExecutiveSummary: parsed.ExecutiveSummary,
		ImpactAnalysis:   parsed.ImpactAnalysis,
		Actionability:    parsed.Actionability,
		CaseType:         caseType,
		Confidence:       cluster.Confidence,
		ArticleIDs:       cluster.ArticleIDs,
		DominantSignals:  cluster.DominantSignals,
		DominantEntities: cluster.DominantEntities,
	}, nil
}

// Fallback builds the degraded NewsGroup used when Generate fails, so the
// cluster still surfaces in the digest rather than vanishing (spec.md §7).
func Fallback(cluster model.ClusterResult) model.NewsGroup {
	return model.NewsGroup{
		Title:            cluster.Title,
		Synopsis:         "Automated summary unavailable for this group of articles.",
		CaseType:         model.CaseInfo,
		Confidence:       cluster.Confidence,
		ArticleIDs:       cluster.ArticleIDs,
		DominantSignals:  cluster.DominantSignals,
		DominantEntities: cluster.DominantEntities,
	}
}

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You are a cybersecurity intelligence analyst writing a briefing for one cluster of related ")
	b.WriteString("articles. Respond with a JSON object of exactly this shape: ")
	b.WriteString(`{"title":"","synopsis":"","executiveSummary":"","impactAnalysis":"","actionability":"","caseType":1}. `)
	b.WriteString("caseType is one of: 1 (actively exploited), 2 (vulnerable, no known exploit), ")
	b.WriteString("3 (fixed/patched), 4 (informational). title and synopsis are required and must never be empty.")
	return b.String()
}

// buildUserPrompt renders every article's text, splitting maxPromptChars
// equally across members rather than truncating earlier articles to zero
// (spec.md §4.7).
func buildUserPrompt(articles []ArticleInput) string {
	if len(articles) == 0 {
		return ""
	}
	total := 0
	for _, a := range articles {
		total += len([]rune(a.Text))
	}
	perArticle := maxPromptChars / len(articles)

	var b strings.Builder
	for _, a := range articles {
		text := a.Text
		if total > maxPromptChars && len([]rune(text)) > perArticle {
			text = string([]rune(text)[:perArticle])
		}
		fmt.Fprintf(&b, "### %s (id: %s)\n%s\n\n", a.Title, a.ID, text)
	}
	return b.String()
}
