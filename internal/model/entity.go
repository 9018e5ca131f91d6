package model

// EntityType is the closed set of entity tags the entity/signal extractor
// (C4) produces. Represented as a tagged variant rather than a free string
// so the compiler enforces the closed vocabulary spec.md §9 calls for.
type EntityType string

const (
	EntityCompany    EntityType = "COMPANY"
	EntityPerson     EntityType = "PERSON"
	EntityProduct    EntityType = "PRODUCT"
	EntityGeography  EntityType = "GEOGRAPHY"
	EntitySector     EntityType = "SECTOR"
)

// ArticleEntity is one named entity found in an article, above the
// confidence floor enforced by the entity extractor.
type ArticleEntity struct {
	ArticleID  string
	Type       EntityType
	Name       string
	Confidence float64
}

// IndustrySignal is a closed-vocabulary taxonomy tag scoped to an industry.
type IndustrySignal struct {
	ID         string
	IndustryID string
	Slug       string
	Name       string
}

// ArticleSignal is a confidence-scored classification of an article against
// one industry signal.
type ArticleSignal struct {
	ArticleID        string
	IndustrySignalID string
	Confidence       float64
}

// ExtractedEntity is a single name+confidence pair as returned by the LLM,
// before it is typed and attached to an article.
type ExtractedEntity struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// ExtractedSignal is a single slug+confidence classification as returned
// by the LLM, before taxonomy filtering.
type ExtractedSignal struct {
	Slug       string  `json:"slug"`
	Confidence float64 `json:"confidence"`
}

// ArticleExtraction is the raw, unfiltered LLM response for one article in
// a batch (spec.md §4.4).
type ArticleExtraction struct {
	Companies    []ExtractedEntity `json:"companies"`
	People       []ExtractedEntity `json:"people"`
	Products     []ExtractedEntity `json:"products"`
	Geographies  []ExtractedEntity `json:"geographies"`
	Sectors      []ExtractedEntity `json:"sectors"`
	Signals      []ExtractedSignal `json:"signals"`
}
