package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"cyberdigest/internal/model"
)

func TestAdminHandler_ResetArticle_Success(t *testing.T) {
	var resetCalled, entitiesDeleted, cvesDeleted bool

	articles := &fakeArticleRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Article, error) {
			return &model.Article{ID: id}, nil
		},
		resetEnrichmentFn: func(ctx context.Context, id string) error {
			resetCalled = true
			return nil
		},
	}
	entities := &fakeArticleEntityRepo{
		deleteByArticleIDFn: func(ctx context.Context, id string) error {
			entitiesDeleted = true
			return nil
		},
	}
	cves := &fakeArticleCVERepo{
		deleteByArticleIDFn: func(ctx context.Context, id string) error {
			cvesDeleted = true
			return nil
		},
	}

	h := NewAdminHandler(articles, entities, cves)

	req := httptest.NewRequest(http.MethodPost, "/api/admin/articles/article-1/reset", nil)
	req = withChiURLParam(req, "id", "article-1")
	w := httptest.NewRecorder()

	h.ResetArticle(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
	if !resetCalled || !entitiesDeleted || !cvesDeleted {
		t.Error("expected reset, entity delete, and CVE delete to all run")
	}
}

func TestAdminHandler_ResetArticle_NotFound(t *testing.T) {
	articles := &fakeArticleRepo{
		findByIDFn: func(ctx context.Context, id string) (*model.Article, error) {
			return nil, nil
		},
	}
	h := NewAdminHandler(articles, &fakeArticleEntityRepo{}, &fakeArticleCVERepo{})

	req := httptest.NewRequest(http.MethodPost, "/api/admin/articles/missing/reset", nil)
	req = withChiURLParam(req, "id", "missing")
	w := httptest.NewRecorder()

	h.ResetArticle(w, req)

	if w.Result().StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNotFound)
	}
}
