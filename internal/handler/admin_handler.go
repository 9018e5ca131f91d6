package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"cyberdigest/internal/middleware"
	"cyberdigest/internal/model"
	"cyberdigest/internal/repository"
)

// AdminHandler exposes POST /api/admin/articles/{id}/reset
// (SPEC_FULL.md §4 "Supplemented features"): forces one article back
// through C4/C5 enrichment on the next digest run, for support staff
// clearing a stuck or misclassified article without waiting for a
// fresh URL to arrive.
type AdminHandler struct {
	Articles repository.ArticleRepository
	Entities repository.ArticleEntityRepository
	CVEs     repository.ArticleCVERepository
}

// NewAdminHandler builds an AdminHandler.
func NewAdminHandler(articles repository.ArticleRepository, entities repository.ArticleEntityRepository, cves repository.ArticleCVERepository) *AdminHandler {
	return &AdminHandler{Articles: articles, Entities: entities, CVEs: cves}
}

// ResetArticle clears an article's extracted entities and CVE mentions
// and rewinds its entitiesExtracted/cvesExtracted flags, so the next
// digest run re-derives them from scratch. It intentionally leaves
// ArticleSignal rows untouched: signal classification is cheap keyword
// matching, not an LLM call worth re-running.
func (h *AdminHandler) ResetArticle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	article, err := h.Articles.FindByID(r.Context(), id)
	if err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	if article == nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewArticleNotFoundError(id))
		return
	}

	if err := h.Entities.DeleteByArticleID(r.Context(), id); err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	if err := h.CVEs.DeleteByArticleID(r.Context(), id); err != nil {
		middleware.WriteInternalServerError(w)
		return
	}
	if err := h.Articles.ResetEnrichment(r.Context(), id); err != nil {
		middleware.WriteInternalServerError(w)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
