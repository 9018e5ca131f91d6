package handler

import (
	"context"
	"time"

	"cyberdigest/internal/model"
)

// The fakes below implement just enough of each repository interface
// for handler tests, following the teacher's function-field mock style
// (see item_handler_test.go's mockItemService). Unused methods return
// zero values; no test exercises them.

type fakeArticleRepo struct {
	findByIDFn         func(ctx context.Context, id string) (*model.Article, error)
	resetEnrichmentFn  func(ctx context.Context, id string) error
}

func (f *fakeArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (f *fakeArticleRepo) FindByURL(ctx context.Context, url string) (*model.Article, error) { return nil, nil }
func (f *fakeArticleRepo) Create(ctx context.Context, article *model.Article) error           { return nil }
func (f *fakeArticleRepo) UpdateContent(ctx context.Context, article *model.Article) error    { return nil }
func (f *fakeArticleRepo) MarkEntitiesExtracted(ctx context.Context, articleID string) error  { return nil }
func (f *fakeArticleRepo) MarkCVEsExtracted(ctx context.Context, articleID string) error       { return nil }
func (f *fakeArticleRepo) ListPendingContent(ctx context.Context, userID string, limit int) ([]*model.Article, error) {
	return nil, nil
}
func (f *fakeArticleRepo) ListPendingEntities(ctx context.Context, userID string, limit int) ([]*model.Article, error) {
	return nil, nil
}
func (f *fakeArticleRepo) ListPendingCVEs(ctx context.Context, userID string, limit int) ([]*model.Article, error) {
	return nil, nil
}
func (f *fakeArticleRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Article, error) {
	return nil, nil
}
func (f *fakeArticleRepo) ResetEnrichment(ctx context.Context, articleID string) error {
	if f.resetEnrichmentFn != nil {
		return f.resetEnrichmentFn(ctx, articleID)
	}
	return nil
}

type fakeArticleEntityRepo struct {
	deleteByArticleIDFn func(ctx context.Context, articleID string) error
}

func (f *fakeArticleEntityRepo) BulkInsert(ctx context.Context, entities []*model.ArticleEntity) error {
	return nil
}
func (f *fakeArticleEntityRepo) ListByArticleID(ctx context.Context, articleID string) ([]*model.ArticleEntity, error) {
	return nil, nil
}
func (f *fakeArticleEntityRepo) ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleEntity, error) {
	return nil, nil
}
func (f *fakeArticleEntityRepo) DeleteByArticleID(ctx context.Context, articleID string) error {
	if f.deleteByArticleIDFn != nil {
		return f.deleteByArticleIDFn(ctx, articleID)
	}
	return nil
}

type fakeArticleCVERepo struct {
	deleteByArticleIDFn   func(ctx context.Context, articleID string) error
	findEnrichedByCVEIDFn func(ctx context.Context, cveID string) (*model.ArticleCVE, error)
}

func (f *fakeArticleCVERepo) Upsert(ctx context.Context, cve *model.ArticleCVE) error { return nil }
func (f *fakeArticleCVERepo) ListByArticleID(ctx context.Context, articleID string) ([]*model.ArticleCVE, error) {
	return nil, nil
}
func (f *fakeArticleCVERepo) ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleCVE, error) {
	return nil, nil
}
func (f *fakeArticleCVERepo) ListDistinctCVEIDsByUser(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	return nil, nil
}
func (f *fakeArticleCVERepo) ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.ArticleCVE, error) {
	return nil, nil
}
func (f *fakeArticleCVERepo) FindEnrichedByCVEID(ctx context.Context, cveID string) (*model.ArticleCVE, error) {
	if f.findEnrichedByCVEIDFn != nil {
		return f.findEnrichedByCVEIDFn(ctx, cveID)
	}
	return nil, nil
}
func (f *fakeArticleCVERepo) DeleteByArticleID(ctx context.Context, articleID string) error {
	if f.deleteByArticleIDFn != nil {
		return f.deleteByArticleIDFn(ctx, articleID)
	}
	return nil
}

type fakeNewsGroupRepo struct {
	findByIDFn            func(ctx context.Context, id string) (*model.NewsGroup, error)
	listByUserAndWindowFn func(ctx context.Context, userID string, from, to time.Time) ([]*model.NewsGroup, error)
}

func (f *fakeNewsGroupRepo) Create(ctx context.Context, group *model.NewsGroup) error { return nil }
func (f *fakeNewsGroupRepo) Update(ctx context.Context, group *model.NewsGroup) error { return nil }
func (f *fakeNewsGroupRepo) FindByID(ctx context.Context, id string) (*model.NewsGroup, error) {
	if f.findByIDFn != nil {
		return f.findByIDFn(ctx, id)
	}
	return nil, nil
}
func (f *fakeNewsGroupRepo) ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.NewsGroup, error) {
	if f.listByUserAndWindowFn != nil {
		return f.listByUserAndWindowFn(ctx, userID, from, to)
	}
	return nil, nil
}

type fakeExposureRepo struct {
	listByUserIDFn func(ctx context.Context, userID string) ([]*model.UserCVEExposure, error)
	listByStateFn  func(ctx context.Context, userID string, state model.ExposureState) ([]*model.UserCVEExposure, error)
}

func (f *fakeExposureRepo) Upsert(ctx context.Context, exposure *model.UserCVEExposure) error {
	return nil
}
func (f *fakeExposureRepo) FindByUserCVEAndStackItem(ctx context.Context, userID, cveID, stackItemID string) (*model.UserCVEExposure, error) {
	return nil, nil
}
func (f *fakeExposureRepo) ListByUserID(ctx context.Context, userID string) ([]*model.UserCVEExposure, error) {
	if f.listByUserIDFn != nil {
		return f.listByUserIDFn(ctx, userID)
	}
	return nil, nil
}
func (f *fakeExposureRepo) ListByState(ctx context.Context, userID string, state model.ExposureState) ([]*model.UserCVEExposure, error) {
	if f.listByStateFn != nil {
		return f.listByStateFn(ctx, userID, state)
	}
	return nil, nil
}
func (f *fakeExposureRepo) ListManuallyOverridden(ctx context.Context, userID string) (map[string]bool, error) {
	return nil, nil
}
