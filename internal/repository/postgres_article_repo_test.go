package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"cyberdigest/internal/model"
)

func newTestSource(userID string) *model.Source {
	return &model.Source{
		ID:        uuid.NewString(),
		UserID:    userID,
		URL:       "https://example.com/feed.xml",
		Name:      "Example Feed",
		Type:      model.SourceTypeRSS,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func newTestArticle(sourceID string) *model.Article {
	now := time.Now().UTC().Truncate(time.Second)
	return &model.Article{
		ID:        uuid.NewString(),
		SourceID:  sourceID,
		URL:       "https://example.com/article/" + uuid.NewString(),
		Title:     "Critical flaw disclosed",
		Content:   "a vulnerability was disclosed today",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func TestPostgresArticleRepo_CreateAndFindByURL(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()

	userRepo := NewPostgresUserRepo(db)
	user := newTestUser()
	if err := userRepo.Create(ctx, user); err != nil {
		t.Fatalf("ユーザー作成失敗: %v", err)
	}
	sourceRepo := NewPostgresSourceRepo(db)
	source := newTestSource(user.ID)
	if err := sourceRepo.Create(ctx, source); err != nil {
		t.Fatalf("ソース作成失敗: %v", err)
	}

	articleRepo := NewPostgresArticleRepo(db)
	article := newTestArticle(source.ID)
	if err := articleRepo.Create(ctx, article); err != nil {
		t.Fatalf("Create失敗: %v", err)
	}

	got, err := articleRepo.FindByURL(ctx, article.URL)
	if err != nil {
		t.Fatalf("FindByURL失敗: %v", err)
	}
	if got == nil {
		t.Fatal("記事が見つかりません")
	}
	if got.Title != article.Title {
		t.Errorf("タイトルが一致しません: got=%q", got.Title)
	}
}

func TestPostgresArticleRepo_Create_DuplicateURL(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()

	userRepo := NewPostgresUserRepo(db)
	user := newTestUser()
	if err := userRepo.Create(ctx, user); err != nil {
		t.Fatalf("ユーザー作成失敗: %v", err)
	}
	sourceRepo := NewPostgresSourceRepo(db)
	source := newTestSource(user.ID)
	if err := sourceRepo.Create(ctx, source); err != nil {
		t.Fatalf("ソース作成失敗: %v", err)
	}

	articleRepo := NewPostgresArticleRepo(db)
	article := newTestArticle(source.ID)
	if err := articleRepo.Create(ctx, article); err != nil {
		t.Fatalf("Create失敗: %v", err)
	}

	dup := newTestArticle(source.ID)
	dup.URL = article.URL
	err := articleRepo.Create(ctx, dup)
	if err == nil {
		t.Fatal("URLの重複挿入がエラーになりませんでした")
	}
	if !IsUniqueViolation(err) {
		t.Errorf("一意制約違反として判定されません: %v", err)
	}
}

func TestPostgresArticleRepo_UpdateContent(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()

	user := newTestUser()
	if err := NewPostgresUserRepo(db).Create(ctx, user); err != nil {
		t.Fatalf("ユーザー作成失敗: %v", err)
	}
	source := newTestSource(user.ID)
	if err := NewPostgresSourceRepo(db).Create(ctx, source); err != nil {
		t.Fatalf("ソース作成失敗: %v", err)
	}

	articleRepo := NewPostgresArticleRepo(db)
	article := newTestArticle(source.ID)
	if err := articleRepo.Create(ctx, article); err != nil {
		t.Fatalf("Create失敗: %v", err)
	}

	article.CleanText = "extracted clean body text"
	article.ExternalLinks = []string{"https://nvd.nist.gov/vuln/detail/CVE-2024-0001"}
	if err := articleRepo.UpdateContent(ctx, article); err != nil {
		t.Fatalf("UpdateContent失敗: %v", err)
	}

	got, err := articleRepo.FindByID(ctx, article.ID)
	if err != nil {
		t.Fatalf("FindByID失敗: %v", err)
	}
	if got.CleanText != article.CleanText {
		t.Errorf("clean_textが更新されていません: got=%q", got.CleanText)
	}
	if len(got.ExternalLinks) != 1 {
		t.Errorf("external_linksが更新されていません: got=%v", got.ExternalLinks)
	}
}

func TestPostgresArticleRepo_ListPendingContentEntitiesCVEs(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()

	user := newTestUser()
	if err := NewPostgresUserRepo(db).Create(ctx, user); err != nil {
		t.Fatalf("ユーザー作成失敗: %v", err)
	}
	source := newTestSource(user.ID)
	if err := NewPostgresSourceRepo(db).Create(ctx, source); err != nil {
		t.Fatalf("ソース作成失敗: %v", err)
	}

	articleRepo := NewPostgresArticleRepo(db)
	article := newTestArticle(source.ID)
	if err := articleRepo.Create(ctx, article); err != nil {
		t.Fatalf("Create失敗: %v", err)
	}

	uaRepo := NewPostgresUserArticleRepo(db)
	if err := uaRepo.Create(ctx, &model.UserArticle{
		UserID: user.ID, ArticleID: article.ID, Matched: true, MatchedKeywords: []string{"vulnerability"},
	}); err != nil {
		t.Fatalf("UserArticle作成失敗: %v", err)
	}

	pending, err := articleRepo.ListPendingContent(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListPendingContent失敗: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("未抽出記事が1件であるべき: got=%d", len(pending))
	}

	if err := articleRepo.MarkEntitiesExtracted(ctx, article.ID); err != nil {
		t.Fatalf("MarkEntitiesExtracted失敗: %v", err)
	}
	pendingEntities, err := articleRepo.ListPendingEntities(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListPendingEntities失敗: %v", err)
	}
	if len(pendingEntities) != 0 {
		t.Errorf("entities_extracted済み記事が含まれています: got=%d", len(pendingEntities))
	}

	if err := articleRepo.MarkCVEsExtracted(ctx, article.ID); err != nil {
		t.Fatalf("MarkCVEsExtracted失敗: %v", err)
	}
	pendingCVEs, err := articleRepo.ListPendingCVEs(ctx, user.ID, 10)
	if err != nil {
		t.Fatalf("ListPendingCVEs失敗: %v", err)
	}
	if len(pendingCVEs) != 0 {
		t.Errorf("cves_extracted済み記事が含まれています: got=%d", len(pendingCVEs))
	}
}

func TestPostgresUserArticleRepo_BulkSetNewsGroupAndListByNewsGroup(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()

	user := newTestUser()
	if err := NewPostgresUserRepo(db).Create(ctx, user); err != nil {
		t.Fatalf("ユーザー作成失敗: %v", err)
	}
	source := newTestSource(user.ID)
	if err := NewPostgresSourceRepo(db).Create(ctx, source); err != nil {
		t.Fatalf("ソース作成失敗: %v", err)
	}

	articleRepo := NewPostgresArticleRepo(db)
	a1 := newTestArticle(source.ID)
	a2 := newTestArticle(source.ID)
	for _, a := range []*model.Article{a1, a2} {
		if err := articleRepo.Create(ctx, a); err != nil {
			t.Fatalf("Create失敗: %v", err)
		}
	}

	uaRepo := NewPostgresUserArticleRepo(db)
	for _, a := range []*model.Article{a1, a2} {
		if err := uaRepo.Create(ctx, &model.UserArticle{UserID: user.ID, ArticleID: a.ID, Matched: true}); err != nil {
			t.Fatalf("UserArticle作成失敗: %v", err)
		}
	}

	unclustered, err := uaRepo.ListUnclustered(ctx, user.ID)
	if err != nil {
		t.Fatalf("ListUnclustered失敗: %v", err)
	}
	if len(unclustered) != 2 {
		t.Fatalf("未クラスタ記事が2件であるべき: got=%d", len(unclustered))
	}

	groupRepo := NewPostgresNewsGroupRepo(db)
	group := &model.NewsGroup{
		ID: uuid.NewString(), UserID: user.ID, Title: "Cluster", Date: time.Now().UTC(),
	}
	if err := groupRepo.Create(ctx, group); err != nil {
		t.Fatalf("NewsGroup作成失敗: %v", err)
	}

	if err := uaRepo.BulkSetNewsGroup(ctx, user.ID, []string{a1.ID, a2.ID}, group.ID); err != nil {
		t.Fatalf("BulkSetNewsGroup失敗: %v", err)
	}

	members, err := uaRepo.ListByNewsGroup(ctx, group.ID)
	if err != nil {
		t.Fatalf("ListByNewsGroup失敗: %v", err)
	}
	if len(members) != 2 {
		t.Errorf("グループ所属記事が2件であるべき: got=%d", len(members))
	}

	loaded, err := groupRepo.FindByID(ctx, group.ID)
	if err != nil {
		t.Fatalf("FindByID失敗: %v", err)
	}
	if len(loaded.ArticleIDs) != 2 {
		t.Errorf("ArticleIDsが2件であるべき: got=%v", loaded.ArticleIDs)
	}
}

func TestPostgresUserArticleRepo_MarkSent(t *testing.T) {
	db := setupRepoTestDB(t)
	ctx := context.Background()

	user := newTestUser()
	if err := NewPostgresUserRepo(db).Create(ctx, user); err != nil {
		t.Fatalf("ユーザー作成失敗: %v", err)
	}
	source := newTestSource(user.ID)
	if err := NewPostgresSourceRepo(db).Create(ctx, source); err != nil {
		t.Fatalf("ソース作成失敗: %v", err)
	}
	article := newTestArticle(source.ID)
	if err := NewPostgresArticleRepo(db).Create(ctx, article); err != nil {
		t.Fatalf("記事作成失敗: %v", err)
	}

	uaRepo := NewPostgresUserArticleRepo(db)
	if err := uaRepo.Create(ctx, &model.UserArticle{UserID: user.ID, ArticleID: article.ID, Matched: true}); err != nil {
		t.Fatalf("UserArticle作成失敗: %v", err)
	}

	sentAt := time.Now().UTC().Truncate(time.Second)
	if err := uaRepo.MarkSent(ctx, user.ID, []string{article.ID}, sentAt); err != nil {
		t.Fatalf("MarkSent失敗: %v", err)
	}

	ua, err := uaRepo.FindByUserAndArticle(ctx, user.ID, article.ID)
	if err != nil {
		t.Fatalf("FindByUserAndArticle失敗: %v", err)
	}
	if !ua.Sent || ua.SentAt == nil || !ua.SentAt.Equal(sentAt) {
		t.Errorf("sent/sent_atが反映されていません: got=%+v", ua)
	}
}
