package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"cyberdigest/internal/model"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresArticleCVERepo はPostgreSQLを使用したCVE言及リポジトリ。
type PostgresArticleCVERepo struct {
	db *sql.DB
}

// NewPostgresArticleCVERepo はPostgresArticleCVERepoを生成する。
func NewPostgresArticleCVERepo(db *sql.DB) *PostgresArticleCVERepo {
	return &PostgresArticleCVERepo{db: db}
}

// Upsert は(article_id,cve_id)の組にNVD/KEVエンリッチメント結果を反映する。
// KEV掲載は再掲載されることがないため、一度trueになったin_kevは後退させない。
func (r *PostgresArticleCVERepo) Upsert(ctx context.Context, c *model.ArticleCVE) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO article_cves (article_id, cve_id, cvss_score, severity, description,
		                           cpe_matches, published_date, in_kev, kev_date_added,
		                           kev_due_date, kev_ransomware_use)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (article_id, cve_id) DO UPDATE SET
		   cvss_score = EXCLUDED.cvss_score,
		   severity = EXCLUDED.severity,
		   description = EXCLUDED.description,
		   cpe_matches = EXCLUDED.cpe_matches,
		   published_date = EXCLUDED.published_date,
		   in_kev = article_cves.in_kev OR EXCLUDED.in_kev,
		   kev_date_added = COALESCE(article_cves.kev_date_added, EXCLUDED.kev_date_added),
		   kev_due_date = COALESCE(EXCLUDED.kev_due_date, article_cves.kev_due_date),
		   kev_ransomware_use = article_cves.kev_ransomware_use OR EXCLUDED.kev_ransomware_use`,
		c.ArticleID, c.CVEID, nullFloat64(c.CVSSScore), c.Severity, c.Description,
		pq.Array(c.CPEMatches), c.PublishedDate, c.InKEV, c.KEVDateAdded,
		c.KEVDueDate, c.KEVRansomwareUse,
	)
	if err != nil {
		return fmt.Errorf("記事CVEのupsertに失敗しました: %w", err)
	}
	return nil
}

const articleCVEColumns = `article_id, cve_id, cvss_score, severity, description, cpe_matches,
        published_date, in_kev, kev_date_added, kev_due_date, kev_ransomware_use`

func scanArticleCVE(scan func(...interface{}) error) (*model.ArticleCVE, error) {
	c := &model.ArticleCVE{}
	var cvssScore sql.NullFloat64
	var publishedDate, kevDateAdded, kevDueDate sql.NullTime

	if err := scan(
		&c.ArticleID, &c.CVEID, &cvssScore, &c.Severity, &c.Description, pq.Array(&c.CPEMatches),
		&publishedDate, &c.InKEV, &kevDateAdded, &kevDueDate, &c.KEVRansomwareUse,
	); err != nil {
		return nil, err
	}
	c.CVSSScore = nullFloat64Value(cvssScore)
	if publishedDate.Valid {
		c.PublishedDate = &publishedDate.Time
	}
	if kevDateAdded.Valid {
		c.KEVDateAdded = &kevDateAdded.Time
	}
	if kevDueDate.Valid {
		c.KEVDueDate = &kevDueDate.Time
	}
	return c, nil
}

// ListByArticleID は記事に紐づくCVE言及一覧を返す。
func (r *PostgresArticleCVERepo) ListByArticleID(ctx context.Context, articleID string) ([]*model.ArticleCVE, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+articleCVEColumns+` FROM article_cves WHERE article_id = $1`, articleID)
	if err != nil {
		return nil, fmt.Errorf("記事CVE一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticleCVEs(rows)
}

// ListByArticleIDs は複数記事に紐づくCVE言及一覧を返す。
func (r *PostgresArticleCVERepo) ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleCVE, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+articleCVEColumns+` FROM article_cves WHERE article_id = ANY($1)`, pq.Array(articleIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("記事CVE一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticleCVEs(rows)
}

func scanArticleCVEs(rows *sql.Rows) ([]*model.ArticleCVE, error) {
	var cves []*model.ArticleCVE
	for rows.Next() {
		c, err := scanArticleCVE(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("記事CVE行の読み取りに失敗しました: %w", err)
		}
		cves = append(cves, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事CVE一覧の走査に失敗しました: %w", err)
	}
	return cves, nil
}

// ListDistinctCVEIDsByUser は期間window内にユーザーの記事で言及された一意なCVE IDを返す。
// レポート集計(C8)向けにsquirrelで動的に結合条件を組み立てる。
func (r *PostgresArticleCVERepo) ListDistinctCVEIDsByUser(ctx context.Context, userID string, from, to time.Time) ([]string, error) {
	query, args, err := psql.Select("DISTINCT ac.cve_id").
		From("article_cves ac").
		Join("user_articles ua ON ua.article_id = ac.article_id").
		Where(sq.Eq{"ua.user_id": userID, "ua.matched": true}).
		Join("articles a ON a.id = ac.article_id").
		Where(sq.GtOrEq{"a.published_at": from}).
		Where(sq.Lt{"a.published_at": to}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("CVE ID一覧クエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("一意なCVE ID一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("CVE ID行の読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("CVE ID一覧の走査に失敗しました: %w", err)
	}
	return ids, nil
}

// ListByUserAndWindow はpublished_atが[from,to)のユーザーの記事に紐づくCVE言及を返す。
func (r *PostgresArticleCVERepo) ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.ArticleCVE, error) {
	query, args, err := psql.Select(qualifyList("ac", articleCVEColumns)...).
		From("article_cves ac").
		Join("user_articles ua ON ua.article_id = ac.article_id").
		Join("articles a ON a.id = ac.article_id").
		Where(sq.Eq{"ua.user_id": userID, "ua.matched": true}).
		Where(sq.GtOrEq{"a.published_at": from}).
		Where(sq.Lt{"a.published_at": to}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("期間CVEクエリの構築に失敗しました: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("期間指定CVE一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticleCVEs(rows)
}

// qualifyList は列名のスライスにテーブル別名を付与する。squirrelのSelect可変引数向け。
func qualifyList(alias string, columns string) []string {
	return []string{qualify(alias, columns)}
}

// FindEnrichedByCVEID はcveIDに対する既にエンリッチメント済みのCVE言及を
// いずれかの記事から1件返す。NVD呼び出しを記事ごとでなくプロセスごとに
// 一度に抑えるために使う。見つからない場合はnilを返す。
func (r *PostgresArticleCVERepo) FindEnrichedByCVEID(ctx context.Context, cveID string) (*model.ArticleCVE, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+articleCVEColumns+` FROM article_cves
		 WHERE cve_id = $1 AND description IS NOT NULL
		 LIMIT 1`,
		cveID,
	)
	c, err := scanArticleCVE(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("エンリッチメント済みCVEの検索に失敗しました: %w", err)
	}
	return c, nil
}

// DeleteByArticleID removes every CVE mention row for articleID, used by
// the admin reset action to force re-extraction on the next run.
func (r *PostgresArticleCVERepo) DeleteByArticleID(ctx context.Context, articleID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM article_cves WHERE article_id = $1`, articleID)
	if err != nil {
		return fmt.Errorf("CVE言及の削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ArticleCVERepository = (*PostgresArticleCVERepo)(nil)

// PostgresUserCVEExposureRepo はPostgreSQLを使用したユーザーCVE露出状態リポジトリ。
type PostgresUserCVEExposureRepo struct {
	db *sql.DB
}

// NewPostgresUserCVEExposureRepo はPostgresUserCVEExposureRepoを生成する。
func NewPostgresUserCVEExposureRepo(db *sql.DB) *PostgresUserCVEExposureRepo {
	return &PostgresUserCVEExposureRepo{db: db}
}

const userCVEExposureColumns = `user_id, cve_id, article_cve_article_id, tech_stack_item_id, state,
        auto_classified, matched_cpe, first_detected_at, patched_at, remediation_deadline, notes`

// Upsert は(user_id,cve_id)の露出レコードを反映する。tech_stack_item_idは
// NOT_APPLICABLE(スタック未一致)の場合はNULLになりうる。
// 手動上書き(auto_classified=false)のレコードは呼び出し側でスキップ判定する。
func (r *PostgresUserCVEExposureRepo) Upsert(ctx context.Context, e *model.UserCVEExposure) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO user_cve_exposures (user_id, cve_id, article_cve_article_id, tech_stack_item_id,
		                                 state, auto_classified, matched_cpe, first_detected_at,
		                                 patched_at, remediation_deadline, notes)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (user_id, cve_id) DO UPDATE SET
		   article_cve_article_id = EXCLUDED.article_cve_article_id,
		   tech_stack_item_id = EXCLUDED.tech_stack_item_id,
		   state = EXCLUDED.state,
		   auto_classified = EXCLUDED.auto_classified,
		   matched_cpe = EXCLUDED.matched_cpe,
		   patched_at = EXCLUDED.patched_at,
		   remediation_deadline = EXCLUDED.remediation_deadline,
		   notes = EXCLUDED.notes`,
		e.UserID, e.CVEID, e.ArticleCVEID, nullString(e.TechStackItemID), string(e.State),
		e.AutoClassified, e.MatchedCPE, e.FirstDetectedAt, e.PatchedAt, e.RemediationDeadline, e.Notes,
	)
	if err != nil {
		return fmt.Errorf("ユーザーCVE露出のupsertに失敗しました: %w", err)
	}
	return nil
}

func scanUserCVEExposure(scan func(...interface{}) error) (*model.UserCVEExposure, error) {
	e := &model.UserCVEExposure{}
	var state string
	var techStackItemID sql.NullString
	var patchedAt, remediationDeadline sql.NullTime

	if err := scan(
		&e.UserID, &e.CVEID, &e.ArticleCVEID, &techStackItemID, &state,
		&e.AutoClassified, &e.MatchedCPE, &e.FirstDetectedAt, &patchedAt, &remediationDeadline, &e.Notes,
	); err != nil {
		return nil, err
	}
	e.TechStackItemID = nullStringValue(techStackItemID)
	e.State = model.ExposureState(state)
	if patchedAt.Valid {
		e.PatchedAt = &patchedAt.Time
	}
	if remediationDeadline.Valid {
		e.RemediationDeadline = &remediationDeadline.Time
	}
	return e, nil
}

// FindByUserCVEAndStackItem は複合キーで露出レコードを検索する。見つからない場合はnilを返す。
func (r *PostgresUserCVEExposureRepo) FindByUserCVEAndStackItem(ctx context.Context, userID, cveID, stackItemID string) (*model.UserCVEExposure, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userCVEExposureColumns+` FROM user_cve_exposures
		 WHERE user_id = $1 AND cve_id = $2 AND tech_stack_item_id = $3`,
		userID, cveID, stackItemID,
	)
	e, err := scanUserCVEExposure(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーCVE露出の検索に失敗しました: %w", err)
	}
	return e, nil
}

// ListByUserID はユーザーの全露出レコードを返す。
func (r *PostgresUserCVEExposureRepo) ListByUserID(ctx context.Context, userID string) ([]*model.UserCVEExposure, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userCVEExposureColumns+` FROM user_cve_exposures WHERE user_id = $1`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザーCVE露出一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanUserCVEExposures(rows)
}

// ListByState はユーザーの指定状態の露出レコードを返す。
func (r *PostgresUserCVEExposureRepo) ListByState(ctx context.Context, userID string, state model.ExposureState) ([]*model.UserCVEExposure, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userCVEExposureColumns+` FROM user_cve_exposures WHERE user_id = $1 AND state = $2`,
		userID, string(state),
	)
	if err != nil {
		return nil, fmt.Errorf("状態別ユーザーCVE露出一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanUserCVEExposures(rows)
}

func scanUserCVEExposures(rows *sql.Rows) ([]*model.UserCVEExposure, error) {
	var exposures []*model.UserCVEExposure
	for rows.Next() {
		e, err := scanUserCVEExposure(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ユーザーCVE露出行の読み取りに失敗しました: %w", err)
		}
		exposures = append(exposures, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザーCVE露出一覧の走査に失敗しました: %w", err)
	}
	return exposures, nil
}

// ListManuallyOverridden は手動設定(auto_classified=false)の露出レコードを
// cve_idキーの集合として返す。(user_id,cve_id)が一意キーのため、再照合時に
// これらのCVEを丸ごとスキップする。
func (r *PostgresUserCVEExposureRepo) ListManuallyOverridden(ctx context.Context, userID string) (map[string]bool, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT cve_id FROM user_cve_exposures
		 WHERE user_id = $1 AND auto_classified = false`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("手動上書き露出一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	overridden := make(map[string]bool)
	for rows.Next() {
		var cveID string
		if err := rows.Scan(&cveID); err != nil {
			return nil, fmt.Errorf("手動上書き露出行の読み取りに失敗しました: %w", err)
		}
		overridden[cveID] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("手動上書き露出一覧の走査に失敗しました: %w", err)
	}
	return overridden, nil
}

// compile-time interface check
var _ UserCVEExposureRepository = (*PostgresUserCVEExposureRepo)(nil)
