package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"cyberdigest/internal/model"
)

// PostgresArticleEntityRepo はPostgreSQLを使用したエンティティ抽出結果リポジトリ。
type PostgresArticleEntityRepo struct {
	db *sql.DB
}

// NewPostgresArticleEntityRepo はPostgresArticleEntityRepoを生成する。
func NewPostgresArticleEntityRepo(db *sql.DB) *PostgresArticleEntityRepo {
	return &PostgresArticleEntityRepo{db: db}
}

// BulkInsert は(article_id,type,name)の組がすでに存在する場合は静かにスキップする。
// 同一記事に対する再抽出の冪等性を保つため。
func (r *PostgresArticleEntityRepo) BulkInsert(ctx context.Context, entities []*model.ArticleEntity) error {
	if len(entities) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO article_entities (article_id, type, name, confidence)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (article_id, type, name) DO NOTHING`,
	)
	if err != nil {
		return fmt.Errorf("エンティティ挿入準備に失敗しました: %w", err)
	}
	defer stmt.Close()

	for _, e := range entities {
		if _, err := stmt.ExecContext(ctx, e.ArticleID, string(e.Type), e.Name, e.Confidence); err != nil {
			return fmt.Errorf("エンティティの挿入に失敗しました: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
	}
	return nil
}

func scanArticleEntities(rows *sql.Rows) ([]*model.ArticleEntity, error) {
	var entities []*model.ArticleEntity
	for rows.Next() {
		e := &model.ArticleEntity{}
		var entityType string
		if err := rows.Scan(&e.ArticleID, &entityType, &e.Name, &e.Confidence); err != nil {
			return nil, fmt.Errorf("エンティティ行の読み取りに失敗しました: %w", err)
		}
		e.Type = model.EntityType(entityType)
		entities = append(entities, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("エンティティ一覧の走査に失敗しました: %w", err)
	}
	return entities, nil
}

// ListByArticleID は記事に紐づくエンティティ一覧を返す。
func (r *PostgresArticleEntityRepo) ListByArticleID(ctx context.Context, articleID string) ([]*model.ArticleEntity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id, type, name, confidence FROM article_entities WHERE article_id = $1`, articleID,
	)
	if err != nil {
		return nil, fmt.Errorf("エンティティ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticleEntities(rows)
}

// ListByArticleIDs は複数記事に紐づくエンティティ一覧を返す。
func (r *PostgresArticleEntityRepo) ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleEntity, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id, type, name, confidence FROM article_entities WHERE article_id = ANY($1)`,
		pq.Array(articleIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("エンティティ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanArticleEntities(rows)
}

// DeleteByArticleID removes every entity row for articleID, used by the
// admin reset action to force re-extraction on the next run.
func (r *PostgresArticleEntityRepo) DeleteByArticleID(ctx context.Context, articleID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM article_entities WHERE article_id = $1`, articleID)
	if err != nil {
		return fmt.Errorf("エンティティの削除に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ArticleEntityRepository = (*PostgresArticleEntityRepo)(nil)

// PostgresIndustrySignalRepo はPostgreSQLを使用した業種別シグナル分類体系リポジトリ。
type PostgresIndustrySignalRepo struct {
	db *sql.DB
}

// NewPostgresIndustrySignalRepo はPostgresIndustrySignalRepoを生成する。
func NewPostgresIndustrySignalRepo(db *sql.DB) *PostgresIndustrySignalRepo {
	return &PostgresIndustrySignalRepo{db: db}
}

// ListByIndustryID は業種に属するシグナル一覧を返す。
func (r *PostgresIndustrySignalRepo) ListByIndustryID(ctx context.Context, industryID string) ([]*model.IndustrySignal, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, industry_id, slug, name FROM industry_signals WHERE industry_id = $1`, industryID,
	)
	if err != nil {
		return nil, fmt.Errorf("業種シグナル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var signals []*model.IndustrySignal
	for rows.Next() {
		s := &model.IndustrySignal{}
		if err := rows.Scan(&s.ID, &s.IndustryID, &s.Slug, &s.Name); err != nil {
			return nil, fmt.Errorf("業種シグナル行の読み取りに失敗しました: %w", err)
		}
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("業種シグナル一覧の走査に失敗しました: %w", err)
	}
	return signals, nil
}

// FindBySlug はindustry_id+slugでシグナルを検索する。見つからない場合はnilを返す。
func (r *PostgresIndustrySignalRepo) FindBySlug(ctx context.Context, industryID, slug string) (*model.IndustrySignal, error) {
	s := &model.IndustrySignal{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, industry_id, slug, name FROM industry_signals WHERE industry_id = $1 AND slug = $2`,
		industryID, slug,
	).Scan(&s.ID, &s.IndustryID, &s.Slug, &s.Name)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("業種シグナルの検索に失敗しました: %w", err)
	}
	return s, nil
}

// Create は業種シグナルを作成する。
func (r *PostgresIndustrySignalRepo) Create(ctx context.Context, signal *model.IndustrySignal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO industry_signals (id, industry_id, slug, name) VALUES ($1, $2, $3, $4)`,
		signal.ID, signal.IndustryID, signal.Slug, signal.Name,
	)
	if err != nil {
		return fmt.Errorf("業種シグナルの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ IndustrySignalRepository = (*PostgresIndustrySignalRepo)(nil)

// PostgresArticleSignalRepo はPostgreSQLを使用したシグナル分類結果リポジトリ。
type PostgresArticleSignalRepo struct {
	db *sql.DB
}

// NewPostgresArticleSignalRepo はPostgresArticleSignalRepoを生成する。
func NewPostgresArticleSignalRepo(db *sql.DB) *PostgresArticleSignalRepo {
	return &PostgresArticleSignalRepo{db: db}
}

// Upsert は(article_id,industry_signal_id)の組にconfidenceを上書きする。
func (r *PostgresArticleSignalRepo) Upsert(ctx context.Context, signal *model.ArticleSignal) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO article_signals (article_id, industry_signal_id, confidence)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (article_id, industry_signal_id) DO UPDATE SET confidence = EXCLUDED.confidence`,
		signal.ArticleID, signal.IndustrySignalID, signal.Confidence,
	)
	if err != nil {
		return fmt.Errorf("記事シグナルのupsertに失敗しました: %w", err)
	}
	return nil
}

// ListByArticleIDs は複数記事に紐づくシグナル分類結果を返す。
func (r *PostgresArticleSignalRepo) ListByArticleIDs(ctx context.Context, articleIDs []string) ([]*model.ArticleSignal, error) {
	if len(articleIDs) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx,
		`SELECT article_id, industry_signal_id, confidence FROM article_signals WHERE article_id = ANY($1)`,
		pq.Array(articleIDs),
	)
	if err != nil {
		return nil, fmt.Errorf("記事シグナル一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var signals []*model.ArticleSignal
	for rows.Next() {
		s := &model.ArticleSignal{}
		if err := rows.Scan(&s.ArticleID, &s.IndustrySignalID, &s.Confidence); err != nil {
			return nil, fmt.Errorf("記事シグナル行の読み取りに失敗しました: %w", err)
		}
		signals = append(signals, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("記事シグナル一覧の走査に失敗しました: %w", err)
	}
	return signals, nil
}

// compile-time interface check
var _ ArticleSignalRepository = (*PostgresArticleSignalRepo)(nil)
