// Package entity implements the batched entity/signal extractor (spec.md
// §4.4, component C4): one LLM call classifies up to 5 articles at a time
// into typed entities and industry-signal confidences.
package entity

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"cyberdigest/internal/llm"
	"cyberdigest/internal/model"
)

const (
	// entityConfidenceFloor drops low-confidence entities before persistence.
	entityConfidenceFloor = 0.3
	// signalConfidenceFloor drops low-confidence signal classifications.
	signalConfidenceFloor = 0.5
	maxTokensPerBatch     = 2000
)

// ArticleInput is the per-article slice of data the extractor needs: just
// enough text to classify, truncated by the caller to bound prompt size.
type ArticleInput struct {
	ID   string
	Text string // title + truncated body
}

// Extractor drives the batched LLM call and applies the filtering rules
// spec.md §4.4 requires before persistence.
type Extractor struct {
	completer     llm.Completer
	batchSize     int
	maxCharsEach  int
}

// New constructs an Extractor. batchSize is capped at 5 per spec.md §4.4
// regardless of what's requested.
func New(completer llm.Completer, batchSize, maxCharsEach int) *Extractor {
	if batchSize <= 0 || batchSize > 5 {
		batchSize = 5
	}
	return &Extractor{completer: completer, batchSize: batchSize, maxCharsEach: maxCharsEach}
}

// BatchSize exposes the effective (<=5) batch size to the orchestrator.
func (e *Extractor) BatchSize() int { return e.batchSize }

// ExtractBatch classifies up to e.batchSize articles in one call and
// applies the confidence/taxonomy filters before returning. A failed call
// or a response that is not valid JSON (spec.md §4.4, §7) returns an
// error; the caller leaves those articles in their prior state and
// continues. Missing fields are not checked: a response that parses but
// omits an article id or a field returns no error, and the omitted parts
// simply carry no entities or signals.
func (e *Extractor) ExtractBatch(ctx context.Context, articles []ArticleInput, allowedSignalSlugs []string) (map[string]model.ArticleExtraction, error) {
	if len(articles) == 0 {
		return map[string]model.ArticleExtraction{}, nil
	}
	if len(articles) > e.batchSize {
		articles = articles[:e.batchSize]
	}

	userPrompt := e.buildUserPrompt(articles)
	systemPrompt := e.buildSystemPrompt(allowedSignalSlugs)

	raw, err := e.completer.Complete(ctx, llm.Request{
		SystemPrompt: systemPrompt,
		UserPrompt:   userPrompt,
		JSONMode:     true,
		MaxTokens:    maxTokensPerBatch,
	})
	if err != nil {
		return nil, fmt.Errorf("entity extraction call failed: %w", err)
	}

	var parsed map[string]model.ArticleExtraction
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		return nil, fmt.Errorf("entity extraction response was not valid JSON: %w", err)
	}

	allowed := make(map[string]bool, len(allowedSignalSlugs))
	for _, slug := range allowedSignalSlugs {
		allowed[slug] = true
	}

	for id, extraction := range parsed {
		parsed[id] = filter(extraction, allowed)
	}
	return parsed, nil
}

func (e *Extractor) buildSystemPrompt(allowedSignalSlugs []string) string {
	var b strings.Builder
	b.WriteString("You are a cybersecurity news analyst. For each article given, extract named entities ")
	b.WriteString("(companies, people, products, geographies, sectors) and classify it against the allowed ")
	b.WriteString("industry signal taxonomy. Respond with a JSON object whose keys are the article ids given ")
	b.WriteString("and whose values have the shape ")
	b.WriteString(`{"companies":[{"name":"","confidence":0.0}],"people":[...],"products":[...],"geographies":[...],"sectors":[...],"signals":[{"slug":"","confidence":0.0}]}. `)
	b.WriteString("Only use signal slugs from this exact list, never invent new ones: ")
	b.WriteString(strings.Join(allowedSignalSlugs, ", "))
	b.WriteString(". Confidence is a float in [0,1].")
	return b.String()
}

func (e *Extractor) buildUserPrompt(articles []ArticleInput) string {
	var b strings.Builder
	for _, a := range articles {
		text := a.Text
		if len([]rune(text)) > e.maxCharsEach {
			text = string([]rune(text)[:e.maxCharsEach])
		}
		fmt.Fprintf(&b, "### Article %s\n%s\n\n", a.ID, text)
	}
	return b.String()
}

// filter applies the confidence and taxonomy rules (spec.md §4.4) to one
// article's raw extraction.
func filter(in model.ArticleExtraction, allowedSignals map[string]bool) model.ArticleExtraction {
	return model.ArticleExtraction{
		Companies:   filterEntities(in.Companies),
		People:      filterEntities(in.People),
		Products:    filterEntities(in.Products),
		Geographies: filterEntities(in.Geographies),
		Sectors:     filterEntities(in.Sectors),
		Signals:     filterSignals(in.Signals, allowedSignals),
	}
}

func filterEntities(in []model.ExtractedEntity) []model.ExtractedEntity {
	out := make([]model.ExtractedEntity, 0, len(in))
	for _, e := range in {
		if e.Confidence < entityConfidenceFloor {
			continue
		}
		out = append(out, e)
	}
	return out
}

func filterSignals(in []model.ExtractedSignal, allowed map[string]bool) []model.ExtractedSignal {
	out := make([]model.ExtractedSignal, 0, len(in))
	for _, s := range in {
		if s.Confidence < signalConfidenceFloor {
			continue
		}
		if !allowed[s.Slug] {
			continue
		}
		out = append(out, s)
	}
	return out
}

// ToArticleEntities flattens one article's filtered extraction into rows
// ready for ArticleEntityRepository.BulkInsert.
func ToArticleEntities(articleID string, extraction model.ArticleExtraction) []*model.ArticleEntity {
	var out []*model.ArticleEntity
	add := func(typ model.EntityType, entities []model.ExtractedEntity) {
		for _, e := range entities {
			out = append(out, &model.ArticleEntity{
				ArticleID:  articleID,
				Type:       typ,
				Name:       e.Name,
				Confidence: e.Confidence,
			})
		}
	}
	add(model.EntityCompany, extraction.Companies)
	add(model.EntityPerson, extraction.People)
	add(model.EntityProduct, extraction.Products)
	add(model.EntityGeography, extraction.Geographies)
	add(model.EntitySector, extraction.Sectors)
	return out
}
