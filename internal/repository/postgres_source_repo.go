package repository

import (
	"context"
	"database/sql"
	"fmt"

	"cyberdigest/internal/model"
)

// PostgresSourceRepo はPostgreSQLを使用したニュースソースリポジトリ。
type PostgresSourceRepo struct {
	db *sql.DB
}

// NewPostgresSourceRepo はPostgresSourceRepoを生成する。
func NewPostgresSourceRepo(db *sql.DB) *PostgresSourceRepo {
	return &PostgresSourceRepo{db: db}
}

// ListByUserID はユーザーのソース一覧を返す。
func (r *PostgresSourceRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, url, type, name, active, created_at
		 FROM sources WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("ソース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

// ListActive はアクティブな全ソースを返す。スクレイパーのプレウォーム用。
func (r *PostgresSourceRepo) ListActive(ctx context.Context) ([]*model.Source, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, url, type, name, active, created_at
		 FROM sources WHERE active = true`,
	)
	if err != nil {
		return nil, fmt.Errorf("アクティブなソース一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()
	return scanSources(rows)
}

func scanSources(rows *sql.Rows) ([]*model.Source, error) {
	var sources []*model.Source
	for rows.Next() {
		s := &model.Source{}
		var name sql.NullString
		if err := rows.Scan(&s.ID, &s.UserID, &s.URL, &s.Type, &name, &s.Active, &s.CreatedAt); err != nil {
			return nil, fmt.Errorf("ソース行の読み取りに失敗しました: %w", err)
		}
		s.Name = nullStringValue(name)
		sources = append(sources, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ソース一覧の走査に失敗しました: %w", err)
	}
	return sources, nil
}

// Create はソースを作成する。
func (r *PostgresSourceRepo) Create(ctx context.Context, source *model.Source) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO sources (id, user_id, url, type, name, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		source.ID, source.UserID, source.URL, source.Type, nullString(source.Name),
		source.Active, source.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("ソースの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SourceRepository = (*PostgresSourceRepo)(nil)

// PostgresKeywordRepo はPostgreSQLを使用したキーワードリポジトリ。
type PostgresKeywordRepo struct {
	db *sql.DB
}

// NewPostgresKeywordRepo はPostgresKeywordRepoを生成する。
func NewPostgresKeywordRepo(db *sql.DB) *PostgresKeywordRepo {
	return &PostgresKeywordRepo{db: db}
}

// ListByUserID はユーザーのキーワード一覧を返す。
func (r *PostgresKeywordRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Keyword, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, term, created_at FROM keywords WHERE user_id = $1 ORDER BY created_at ASC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("キーワード一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var keywords []*model.Keyword
	for rows.Next() {
		k := &model.Keyword{}
		if err := rows.Scan(&k.ID, &k.UserID, &k.Word, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("キーワード行の読み取りに失敗しました: %w", err)
		}
		keywords = append(keywords, k)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("キーワード一覧の走査に失敗しました: %w", err)
	}
	return keywords, nil
}

// Create はキーワードを作成する。
func (r *PostgresKeywordRepo) Create(ctx context.Context, keyword *model.Keyword) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO keywords (id, user_id, term, created_at) VALUES ($1, $2, $3, $4)`,
		keyword.ID, keyword.UserID, keyword.Word, keyword.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("キーワードの作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ KeywordRepository = (*PostgresKeywordRepo)(nil)

// PostgresTechStackItemRepo はPostgreSQLを使用した技術スタック項目リポジトリ。
type PostgresTechStackItemRepo struct {
	db *sql.DB
}

// NewPostgresTechStackItemRepo はPostgresTechStackItemRepoを生成する。
func NewPostgresTechStackItemRepo(db *sql.DB) *PostgresTechStackItemRepo {
	return &PostgresTechStackItemRepo{db: db}
}

// ListByUserID はユーザーの技術スタック項目一覧を返す。
func (r *PostgresTechStackItemRepo) ListByUserID(ctx context.Context, userID string) ([]*model.TechStackItem, error) {
	return r.list(ctx, `SELECT id, user_id, vendor, product, version, category, cpe_pattern, active
	                     FROM tech_stack_items WHERE user_id = $1 ORDER BY vendor, product`, userID)
}

// ListActive はユーザーのアクティブな技術スタック項目一覧を返す。露出エンジンの照合対象。
func (r *PostgresTechStackItemRepo) ListActive(ctx context.Context, userID string) ([]*model.TechStackItem, error) {
	return r.list(ctx, `SELECT id, user_id, vendor, product, version, category, cpe_pattern, active
	                     FROM tech_stack_items WHERE user_id = $1 AND active = true`, userID)
}

func (r *PostgresTechStackItemRepo) list(ctx context.Context, query string, userID string) ([]*model.TechStackItem, error) {
	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("技術スタック項目一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var items []*model.TechStackItem
	for rows.Next() {
		it := &model.TechStackItem{}
		var version, category sql.NullString
		if err := rows.Scan(&it.ID, &it.UserID, &it.Vendor, &it.Product, &version, &category, &it.CPEPattern, &it.Active); err != nil {
			return nil, fmt.Errorf("技術スタック項目行の読み取りに失敗しました: %w", err)
		}
		it.Version = nullStringValue(version)
		it.Category = model.TechStackCategory(nullStringValue(category))
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("技術スタック項目一覧の走査に失敗しました: %w", err)
	}
	return items, nil
}

// Create は技術スタック項目を作成する。
func (r *PostgresTechStackItemRepo) Create(ctx context.Context, item *model.TechStackItem) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO tech_stack_items (id, user_id, vendor, product, version, category, cpe_pattern, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`,
		item.ID, item.UserID, item.Vendor, item.Product, nullString(item.Version),
		nullString(string(item.Category)), item.CPEPattern, item.Active,
	)
	if err != nil {
		return fmt.Errorf("技術スタック項目の作成に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ TechStackItemRepository = (*PostgresTechStackItemRepo)(nil)
