package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"cyberdigest/internal/middleware"
	"cyberdigest/internal/model"
	"cyberdigest/internal/repository"
)

// FeedHandler exposes GET /api/feed/brief and GET /api/feed/brief/{id}
// (spec.md §6), reading the NewsGroup rows C10 already computed.
type FeedHandler struct {
	NewsGroups repository.NewsGroupRepository
}

// NewFeedHandler builds a FeedHandler.
func NewFeedHandler(newsGroups repository.NewsGroupRepository) *FeedHandler {
	return &FeedHandler{NewsGroups: newsGroups}
}

type newsGroupResponse struct {
	ID               string    `json:"id"`
	Title            string    `json:"title"`
	Synopsis         string    `json:"synopsis"`
	ExecutiveSummary string    `json:"executiveSummary"`
	ImpactAnalysis   string    `json:"impactAnalysis"`
	Actionability    string    `json:"actionability"`
	CaseType         int       `json:"caseType"`
	Confidence       float64   `json:"confidence"`
	Date             time.Time `json:"date"`
	ArticleIDs       []string  `json:"articleIds"`
	DominantSignals  []string  `json:"dominantSignals"`
	DominantEntities []string  `json:"dominantEntities"`
}

func toNewsGroupResponse(g *model.NewsGroup) newsGroupResponse {
	return newsGroupResponse{
		ID:               g.ID,
		Title:            g.Title,
		Synopsis:         g.Synopsis,
		ExecutiveSummary: g.ExecutiveSummary,
		ImpactAnalysis:   g.ImpactAnalysis,
		Actionability:    g.Actionability,
		CaseType:         int(g.CaseType),
		Confidence:       g.Confidence,
		Date:             g.Date,
		ArticleIDs:       g.ArticleIDs,
		DominantSignals:  g.DominantSignals,
		DominantEntities: g.DominantEntities,
	}
}

// ListBriefs handles GET /api/feed/brief?from=&to=, defaulting to the
// last 7 days when the window is not given.
func (h *FeedHandler) ListBriefs(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError(""))
		return
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -7)
	to := now
	if v := r.URL.Query().Get("from"); v != "" {
		if parsed, perr := time.Parse(time.RFC3339, v); perr == nil {
			from = parsed
		}
	}
	if v := r.URL.Query().Get("to"); v != "" {
		if parsed, perr := time.Parse(time.RFC3339, v); perr == nil {
			to = parsed
		}
	}

	groups, err := h.NewsGroups.ListByUserAndWindow(r.Context(), userID, from, to)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	resp := make([]newsGroupResponse, 0, len(groups))
	for _, g := range groups {
		resp = append(resp, toNewsGroupResponse(g))
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// GetBrief handles GET /api/feed/brief/{id}.
func (h *FeedHandler) GetBrief(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusUnauthorized, model.NewUserNotFoundError(""))
		return
	}
	id := chi.URLParam(r, "id")

	group, err := h.NewsGroups.FindByID(r.Context(), id)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	if group == nil || group.UserID != userID {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewNewsGroupNotFoundError(id))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(toNewsGroupResponse(group))
}
