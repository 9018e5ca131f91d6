// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"cyberdigest/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	FindByID(ctx context.Context, id string) (*model.User, error)
	Create(ctx context.Context, user *model.User) error
	Update(ctx context.Context, user *model.User) error
	// ListDueForDigest はメール配信が有効なユーザーを候補として取得する。
	// 頻度・配信時刻・最終配信時刻による配信可否の判定は呼び出し側(scheduler)で行う。
	// FOR UPDATE SKIP LOCKEDで排他的に取得する。
	ListDueForDigest(ctx context.Context, now time.Time) ([]*model.User, error)
	UpdateLastDigestAt(ctx context.Context, userID string, at time.Time) error
}

// SourceRepository はニュースソースの永続化インターフェース。
type SourceRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Source, error)
	ListActive(ctx context.Context) ([]*model.Source, error)
	Create(ctx context.Context, source *model.Source) error
}

// KeywordRepository はユーザーキーワードの永続化インターフェース。
type KeywordRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.Keyword, error)
	Create(ctx context.Context, keyword *model.Keyword) error
}

// TechStackItemRepository はユーザーの技術スタック項目の永続化インターフェース。
type TechStackItemRepository interface {
	ListByUserID(ctx context.Context, userID string) ([]*model.TechStackItem, error)
	ListActive(ctx context.Context, userID string) ([]*model.TechStackItem, error)
	Create(ctx context.Context, item *model.TechStackItem) error
}

// ArticleRepository は記事データの永続化インターフェース。
type ArticleRepository interface {
	FindByID(ctx context.Context, id string) (*model.Article, error)
	// FindByURL はurlの一意制約によって記事の同一性を判定する。見つからない場合はnilを返す。
	FindByURL(ctx context.Context, url string) (*model.Article, error)
	Create(ctx context.Context, article *model.Article) error
	UpdateContent(ctx context.Context, article *model.Article) error
	MarkEntitiesExtracted(ctx context.Context, articleID string) error
	MarkCVEsExtracted(ctx context.Context, articleID string) error
	// ListPendingContent はclean_textが未抽出の記事をuserIDに紐づくuser_articles経由で取得する。
	ListPendingContent(ctx context.Context, userID string, limit int) ([]*model.Article, error)
	ListPendingEntities(ctx context.Context, userID string, limit int) ([]*model.Article, error)
	ListPendingCVEs(ctx context.Context, userID string, limit int) ([]*model.Article, error)
	ListByIDs(ctx context.Context, ids []string) ([]*model.Article, error)
	// ResetEnrichment clears entities_extracted and cves_extracted, used by
	// the admin "reset" action (spec.md §3, SPEC_FULL.md §4) to force a
	// clean re-run of C4/C5 for one article.
	ResetEnrichment(ctx context.Context, articleID string) error
}

// UserArticleRepository はユーザー・記事関連データの永続化インターフェース。
type UserArticleRepository interface {
	Create(ctx context.Context, ua *model.UserArticle) error
	FindByUserAndArticle(ctx context.Context, userID, articleID string) (*model.UserArticle, error)
	// ListUnclustered はnews_group_idが未設定のマッチ済み記事を取得する。
	ListUnclustered(ctx context.Context, userID string) ([]*model.UserArticle, error)
	BulkSetNewsGroup(ctx context.Context, userID string, articleIDs []string, newsGroupID string) error
	ListByNewsGroup(ctx context.Context, newsGroupID string) ([]*model.UserArticle, error)
	ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.UserArticle, error)
	MarkSent(ctx context.Context, userID string, articleIDs []string, sentAt time.Time) error
	// ListArticleURLsByUserID returns the URLs of articles this user already
	// has a UserArticle row for, used by the scraper's dedup step (spec.md
	// §4.1 "Deduplication") to subtract already-seen URLs before matching.
	ListArticleURLsByUserID(ctx context.Context, userID string) (map[string]bool, error)
}

// ArticleEntityRepository はエンティティ抽出結果の永続化インターフェース。
type ArticleEntityRepository interface {
	// BulkInsert はすでに存在する(article_id,type,name)の組を静かにスキップして挿入する。
	BulkInsert(ctx context.Context, entities []*model.ArticleEntity) error
	ListByArticleID(ctx context.Context, articleID string) ([]*model.ArticleEntity, error)
	ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleEntity, error)
	// DeleteByArticleID supports the admin "reset" action.
	DeleteByArticleID(ctx context.Context, articleID string) error
}

// IndustrySignalRepository は業種別シグナル分類体系の永続化インターフェース。
type IndustrySignalRepository interface {
	ListByIndustryID(ctx context.Context, industryID string) ([]*model.IndustrySignal, error)
	FindBySlug(ctx context.Context, industryID, slug string) (*model.IndustrySignal, error)
	Create(ctx context.Context, signal *model.IndustrySignal) error
}

// ArticleSignalRepository はシグナル分類結果の永続化インターフェース。
type ArticleSignalRepository interface {
	// Upsert は(article_id,industry_signal_id)の組に対しconfidenceを上書きする。
	Upsert(ctx context.Context, signal *model.ArticleSignal) error
	ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleSignal, error)
}

// ArticleCVERepository はCVE言及の永続化インターフェース。
type ArticleCVERepository interface {
	// Upsert は(article_id,cve_id)の組にエンリッチメント結果を反映する。
	Upsert(ctx context.Context, cve *model.ArticleCVE) error
	ListByArticleID(ctx context.Context, articleID string) ([]*model.ArticleCVE, error)
	ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleCVE, error)
	// ListDistinctCVEIDsByUser は期間window内にユーザーの記事で言及された一意なCVE IDを返す。
	ListDistinctCVEIDsByUser(ctx context.Context, userID string, from, to time.Time) ([]string, error)
	ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.ArticleCVE, error)
	// FindEnrichedByCVEID returns one already-enriched ArticleCVE row for
	// cveID from any article, if any exists, so the CVE enricher (C5) can
	// dedupe the NVD call once per process rather than once per article
	// (spec.md §4.5 "already enriched" / scenario 5).
	FindEnrichedByCVEID(ctx context.Context, cveID string) (*model.ArticleCVE, error)
	// DeleteByArticleID supports the admin "reset" action.
	DeleteByArticleID(ctx context.Context, articleID string) error
}

// UserCVEExposureRepository はユーザーのCVE露出状態の永続化インターフェース。
type UserCVEExposureRepository interface {
	Upsert(ctx context.Context, exposure *model.UserCVEExposure) error
	FindByUserCVEAndStackItem(ctx context.Context, userID, cveID, stackItemID string) (*model.UserCVEExposure, error)
	ListByUserID(ctx context.Context, userID string) ([]*model.UserCVEExposure, error)
	ListByState(ctx context.Context, userID string, state model.ExposureState) ([]*model.UserCVEExposure, error)
	// ListManuallyOverridden は手動設定または自動分類無効化された露出レコードを返す。
	// 再照合時にこれらをスキップするために使う。
	ListManuallyOverridden(ctx context.Context, userID string) (map[string]bool, error)
}

// NewsGroupRepository はニュースグループの永続化インターフェース。
type NewsGroupRepository interface {
	Create(ctx context.Context, group *model.NewsGroup) error
	Update(ctx context.Context, group *model.NewsGroup) error
	FindByID(ctx context.Context, id string) (*model.NewsGroup, error)
	ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.NewsGroup, error)
}

// PeriodReportRepository は期間レポートの永続化インターフェース。
type PeriodReportRepository interface {
	// Upsert は(user_id,period)のレポートを置き換える。
	Upsert(ctx context.Context, report *model.PeriodReport) error
	FindByUserAndPeriod(ctx context.Context, userID string, period model.Period) (*model.PeriodReport, error)
}

// PeriodSnapshotRepository は日次スナップショットの永続化インターフェース。
type PeriodSnapshotRepository interface {
	// Upsert は(user_id,period,snap_date)のスナップショットを置き換える。
	Upsert(ctx context.Context, snapshot *model.PeriodSnapshot) error
	// FindNearestBefore はonOrBefore以前で最も近いスナップショットを返す。見つからない場合はnilを返す。
	FindNearestBefore(ctx context.Context, userID string, period model.Period, onOrBefore time.Time) (*model.PeriodSnapshot, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
