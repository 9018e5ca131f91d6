package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	"cyberdigest/internal/model"
)

// PostgresArticleRepo はPostgreSQLを使用した記事リポジトリ。
type PostgresArticleRepo struct {
	db *sql.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sql.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

const articleColumns = `id, source_id, url, title, content, clean_text, raw_html, external_links,
        author, guid, published_at, entities_extracted, cves_extracted, created_at, updated_at`

func scanArticle(scan func(...interface{}) error) (*model.Article, error) {
	a := &model.Article{}
	var rawHTML, author, guid sql.NullString
	var publishedAt sql.NullTime

	if err := scan(
		&a.ID, &a.SourceID, &a.URL, &a.Title, &a.Content, &a.CleanText, &rawHTML,
		pq.Array(&a.ExternalLinks), &author, &guid, &publishedAt,
		&a.EntitiesExtracted, &a.CVEsExtracted, &a.CreatedAt, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.RawHTML = nullStringValue(rawHTML)
	a.Author = nullStringValue(author)
	a.GUID = nullStringValue(guid)
	if publishedAt.Valid {
		a.PublishedAt = &publishedAt.Time
	}
	return a, nil
}

// FindByID は指定IDの記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindByID(ctx context.Context, id string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE id = $1`, id)
	a, err := scanArticle(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("記事の取得に失敗しました: %w", err)
	}
	return a, nil
}

// FindByURL はurlの一意制約によって記事の同一性を判定する。
func (r *PostgresArticleRepo) FindByURL(ctx context.Context, url string) (*model.Article, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+articleColumns+` FROM articles WHERE url = $1`, url)
	a, err := scanArticle(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("URLによる記事の検索に失敗しました: %w", err)
	}
	return a, nil
}

// Create は記事を作成する。urlのユニーク制約違反は呼び出し側でPostgreSQLの
// エラーコード23505を判定し、並行作成のレースとして処理することを想定する。
func (r *PostgresArticleRepo) Create(ctx context.Context, article *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO articles (id, source_id, url, title, content, clean_text, raw_html,
		                       external_links, author, guid, published_at,
		                       entities_extracted, cves_extracted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		article.ID, article.SourceID, article.URL, article.Title, article.Content,
		article.CleanText, nullString(article.RawHTML), pq.Array(article.ExternalLinks),
		nullString(article.Author), nullString(article.GUID), article.PublishedAt,
		article.EntitiesExtracted, article.CVEsExtracted, article.CreatedAt, article.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("記事の作成に失敗しました: %w", err)
	}
	return nil
}

// IsUniqueViolation はPostgreSQLのユニーク制約違反(23505)かどうかを判定する。
func IsUniqueViolation(err error) bool {
	if pqErr, ok := err.(*pq.Error); ok {
		return pqErr.Code == "23505"
	}
	return false
}

// UpdateContent は本文抽出(C3)の結果を書き込む。
func (r *PostgresArticleRepo) UpdateContent(ctx context.Context, article *model.Article) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET clean_text = $2, raw_html = $3, external_links = $4, updated_at = now()
		 WHERE id = $1`,
		article.ID, article.CleanText, nullString(article.RawHTML), pq.Array(article.ExternalLinks),
	)
	if err != nil {
		return fmt.Errorf("本文の更新に失敗しました: %w", err)
	}
	return nil
}

// MarkEntitiesExtracted はentities_extractedフラグを立てる。
func (r *PostgresArticleRepo) MarkEntitiesExtracted(ctx context.Context, articleID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET entities_extracted = true, updated_at = now() WHERE id = $1`, articleID,
	)
	if err != nil {
		return fmt.Errorf("entities_extractedの更新に失敗しました: %w", err)
	}
	return nil
}

// MarkCVEsExtracted はcves_extractedフラグを立てる。
func (r *PostgresArticleRepo) MarkCVEsExtracted(ctx context.Context, articleID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET cves_extracted = true, updated_at = now() WHERE id = $1`, articleID,
	)
	if err != nil {
		return fmt.Errorf("cves_extractedの更新に失敗しました: %w", err)
	}
	return nil
}

// ResetEnrichment clears entities_extracted and cves_extracted so the next
// digest run re-enriches this article from scratch (admin-triggered
// "reset" action).
func (r *PostgresArticleRepo) ResetEnrichment(ctx context.Context, articleID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE articles SET entities_extracted = false, cves_extracted = false, updated_at = now() WHERE id = $1`, articleID,
	)
	if err != nil {
		return fmt.Errorf("エンリッチメント状態のリセットに失敗しました: %w", err)
	}
	return nil
}

func (r *PostgresArticleRepo) listPending(ctx context.Context, userID, extraWhere string, limit int) ([]*model.Article, error) {
	query := `SELECT ` + qualify("a", articleColumns) + ` FROM articles a
	          INNER JOIN user_articles ua ON ua.article_id = a.id
	          WHERE ua.user_id = $1 AND ua.matched = true AND ` + extraWhere + `
	          ORDER BY a.published_at ASC NULLS LAST
	          LIMIT $2`
	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("保留中の記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("保留中の記事一覧の走査に失敗しました: %w", err)
	}
	return articles, nil
}

// ListPendingContent はclean_textが未抽出の、ユーザーがマッチした記事を返す。
func (r *PostgresArticleRepo) ListPendingContent(ctx context.Context, userID string, limit int) ([]*model.Article, error) {
	return r.listPending(ctx, userID, "a.clean_text = ''", limit)
}

// ListPendingEntities はentities_extracted=falseの、ユーザーがマッチした記事を返す。
func (r *PostgresArticleRepo) ListPendingEntities(ctx context.Context, userID string, limit int) ([]*model.Article, error) {
	return r.listPending(ctx, userID, "a.entities_extracted = false", limit)
}

// ListPendingCVEs はcves_extracted=falseの、ユーザーがマッチした記事を返す。
func (r *PostgresArticleRepo) ListPendingCVEs(ctx context.Context, userID string, limit int) ([]*model.Article, error) {
	return r.listPending(ctx, userID, "a.cves_extracted = false", limit)
}

// ListByIDs はIDリストに対応する記事を返す。順序は保証しない。
func (r *PostgresArticleRepo) ListByIDs(ctx context.Context, ids []string) ([]*model.Article, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleColumns+` FROM articles WHERE id = ANY($1)`, pq.Array(ids),
	)
	if err != nil {
		return nil, fmt.Errorf("記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var articles []*model.Article
	for rows.Next() {
		a, err := scanArticle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("記事行の読み取りに失敗しました: %w", err)
		}
		articles = append(articles, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事一覧の走査に失敗しました: %w", err)
	}
	return articles, nil
}

// qualify はカラムリストの各要素にテーブル別名を付与する。
func qualify(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)

// PostgresUserArticleRepo はPostgreSQLを使用したユーザー・記事関連リポジトリ。
type PostgresUserArticleRepo struct {
	db *sql.DB
}

// NewPostgresUserArticleRepo はPostgresUserArticleRepoを生成する。
func NewPostgresUserArticleRepo(db *sql.DB) *PostgresUserArticleRepo {
	return &PostgresUserArticleRepo{db: db}
}

// Create はユーザー・記事関連を作成する。
func (r *PostgresUserArticleRepo) Create(ctx context.Context, ua *model.UserArticle) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_articles (user_id, article_id, matched, matched_keywords, news_group_id, read, sent, sent_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
		 ON CONFLICT (user_id, article_id) DO NOTHING`,
		ua.UserID, ua.ArticleID, ua.Matched, pq.Array(ua.MatchedKeywords),
		nullString(ua.NewsGroupID), ua.Read, ua.Sent, ua.SentAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザー記事関連の作成に失敗しました: %w", err)
	}
	return nil
}

func scanUserArticle(scan func(...interface{}) error) (*model.UserArticle, error) {
	ua := &model.UserArticle{}
	var newsGroupID sql.NullString
	var sentAt sql.NullTime
	if err := scan(
		&ua.UserID, &ua.ArticleID, &ua.Matched, pq.Array(&ua.MatchedKeywords),
		&newsGroupID, &ua.Read, &ua.Sent, &sentAt, &ua.CreatedAt,
	); err != nil {
		return nil, err
	}
	ua.NewsGroupID = nullStringValue(newsGroupID)
	if sentAt.Valid {
		ua.SentAt = &sentAt.Time
	}
	return ua, nil
}

const userArticleColumns = `user_id, article_id, matched, matched_keywords, news_group_id, read, sent, sent_at, created_at`

// FindByUserAndArticle はユーザーと記事の関連を取得する。見つからない場合はnilを返す。
func (r *PostgresUserArticleRepo) FindByUserAndArticle(ctx context.Context, userID, articleID string) (*model.UserArticle, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userArticleColumns+` FROM user_articles WHERE user_id = $1 AND article_id = $2`,
		userID, articleID,
	)
	ua, err := scanUserArticle(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザー記事関連の取得に失敗しました: %w", err)
	}
	return ua, nil
}

// ListUnclustered はnews_group_idが未設定のマッチ済み記事を取得する。
func (r *PostgresUserArticleRepo) ListUnclustered(ctx context.Context, userID string) ([]*model.UserArticle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userArticleColumns+` FROM user_articles
		 WHERE user_id = $1 AND matched = true AND news_group_id IS NULL`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("未クラスタ記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanUserArticles(rows)
}

func scanUserArticles(rows *sql.Rows) ([]*model.UserArticle, error) {
	var result []*model.UserArticle
	for rows.Next() {
		ua, err := scanUserArticle(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ユーザー記事関連行の読み取りに失敗しました: %w", err)
		}
		result = append(result, ua)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー記事関連一覧の走査に失敗しました: %w", err)
	}
	return result, nil
}

// BulkSetNewsGroup は複数記事のnews_group_idを一括更新する。
func (r *PostgresUserArticleRepo) BulkSetNewsGroup(ctx context.Context, userID string, articleIDs []string, newsGroupID string) error {
	if len(articleIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_articles SET news_group_id = $3
		 WHERE user_id = $1 AND article_id = ANY($2)`,
		userID, pq.Array(articleIDs), newsGroupID,
	)
	if err != nil {
		return fmt.Errorf("news_group_idの一括更新に失敗しました: %w", err)
	}
	return nil
}

// ListByNewsGroup はニュースグループに属するユーザー記事関連を返す。
func (r *PostgresUserArticleRepo) ListByNewsGroup(ctx context.Context, newsGroupID string) ([]*model.UserArticle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userArticleColumns+` FROM user_articles WHERE news_group_id = $1`, newsGroupID,
	)
	if err != nil {
		return nil, fmt.Errorf("ニュースグループ記事一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanUserArticles(rows)
}

// ListByUserAndWindow はpublished_atが[from,to)に含まれるユーザーのマッチ済み記事関連を返す。
func (r *PostgresUserArticleRepo) ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.UserArticle, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+qualify("ua", userArticleColumns)+` FROM user_articles ua
		 INNER JOIN articles a ON a.id = ua.article_id
		 WHERE ua.user_id = $1 AND ua.matched = true AND a.published_at >= $2 AND a.published_at < $3`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("期間指定ユーザー記事関連の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanUserArticles(rows)
}

// MarkSent は複数記事をsent=trueに一括更新する。
func (r *PostgresUserArticleRepo) MarkSent(ctx context.Context, userID string, articleIDs []string, sentAt time.Time) error {
	if len(articleIDs) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE user_articles SET sent = true, sent_at = $3
		 WHERE user_id = $1 AND article_id = ANY($2)`,
		userID, pq.Array(articleIDs), sentAt,
	)
	if err != nil {
		return fmt.Errorf("sentフラグの一括更新に失敗しました: %w", err)
	}
	return nil
}

// ListArticleURLsByUserID はユーザーが既に持つ記事のURL集合を返す。
// スクレイパーの重複除去（§4.1）で使用する。
func (r *PostgresUserArticleRepo) ListArticleURLsByUserID(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT a.url FROM user_articles ua
		 INNER JOIN articles a ON a.id = ua.article_id
		 WHERE ua.user_id = $1`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("既存記事URLの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	urls := make(map[string]bool)
	for rows.Next() {
		var url string
		if err := rows.Scan(&url); err != nil {
			return nil, fmt.Errorf("既存記事URLの走査に失敗しました: %w", err)
		}
		urls[url] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("既存記事URLの走査に失敗しました: %w", err)
	}
	return urls, nil
}

// compile-time interface check
var _ UserArticleRepository = (*PostgresUserArticleRepo)(nil)
