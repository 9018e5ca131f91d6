package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"cyberdigest/internal/model"
)

// PostgresNewsGroupRepo はPostgreSQLを使用したニュースグループリポジトリ。
type PostgresNewsGroupRepo struct {
	db *sql.DB
}

// NewPostgresNewsGroupRepo はPostgresNewsGroupRepoを生成する。
func NewPostgresNewsGroupRepo(db *sql.DB) *PostgresNewsGroupRepo {
	return &PostgresNewsGroupRepo{db: db}
}

// Create はニュースグループを作成する。所属記事はuser_articles.news_group_id側で
// 紐づけるため、ここではグループ本体のみを挿入する。
func (r *PostgresNewsGroupRepo) Create(ctx context.Context, g *model.NewsGroup) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO news_groups (id, user_id, title, synopsis, executive_summary, impact_analysis,
		                          actionability, case_type, confidence, date, dominant_signals, dominant_entities)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		g.ID, g.UserID, g.Title, g.Synopsis, g.ExecutiveSummary, g.ImpactAnalysis,
		g.Actionability, int(g.CaseType), g.Confidence, g.Date,
		pq.Array(g.DominantSignals), pq.Array(g.DominantEntities),
	)
	if err != nil {
		return fmt.Errorf("ニュースグループの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はブリーフィング生成(C7)後の本文フィールドを更新する。
func (r *PostgresNewsGroupRepo) Update(ctx context.Context, g *model.NewsGroup) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE news_groups SET title = $2, synopsis = $3, executive_summary = $4,
		    impact_analysis = $5, actionability = $6, case_type = $7, confidence = $8
		 WHERE id = $1`,
		g.ID, g.Title, g.Synopsis, g.ExecutiveSummary, g.ImpactAnalysis,
		g.Actionability, int(g.CaseType), g.Confidence,
	)
	if err != nil {
		return fmt.Errorf("ニュースグループの更新に失敗しました: %w", err)
	}
	return nil
}

const newsGroupColumns = `id, user_id, title, synopsis, executive_summary, impact_analysis,
        actionability, case_type, confidence, date, dominant_signals, dominant_entities`

func scanNewsGroup(scan func(...interface{}) error) (*model.NewsGroup, error) {
	g := &model.NewsGroup{}
	var caseType int
	if err := scan(
		&g.ID, &g.UserID, &g.Title, &g.Synopsis, &g.ExecutiveSummary, &g.ImpactAnalysis,
		&g.Actionability, &caseType, &g.Confidence, &g.Date,
		pq.Array(&g.DominantSignals), pq.Array(&g.DominantEntities),
	); err != nil {
		return nil, err
	}
	g.CaseType = model.CaseType(caseType)
	return g, nil
}

// FindByID は指定IDのニュースグループを取得し、所属記事IDをuser_articlesから充填する。
// 見つからない場合はnilを返す。
func (r *PostgresNewsGroupRepo) FindByID(ctx context.Context, id string) (*model.NewsGroup, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+newsGroupColumns+` FROM news_groups WHERE id = $1`, id)
	g, err := scanNewsGroup(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ニュースグループの取得に失敗しました: %w", err)
	}
	if err := r.fillArticleIDs(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (r *PostgresNewsGroupRepo) fillArticleIDs(ctx context.Context, g *model.NewsGroup) error {
	rows, err := r.db.QueryContext(ctx, `SELECT article_id FROM user_articles WHERE news_group_id = $1`, g.ID)
	if err != nil {
		return fmt.Errorf("ニュースグループ所属記事の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return fmt.Errorf("所属記事IDの読み取りに失敗しました: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("所属記事一覧の走査に失敗しました: %w", err)
	}
	g.ArticleIDs = ids
	return nil
}

// ListByUserAndWindow はdateが[from,to)に含まれるユーザーのニュースグループを返す。
func (r *PostgresNewsGroupRepo) ListByUserAndWindow(ctx context.Context, userID string, from, to time.Time) ([]*model.NewsGroup, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+newsGroupColumns+` FROM news_groups
		 WHERE user_id = $1 AND date >= $2 AND date < $3
		 ORDER BY date DESC`,
		userID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("期間指定ニュースグループ一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var groups []*model.NewsGroup
	for rows.Next() {
		g, err := scanNewsGroup(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("ニュースグループ行の読み取りに失敗しました: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ニュースグループ一覧の走査に失敗しました: %w", err)
	}
	for _, g := range groups {
		if err := r.fillArticleIDs(ctx, g); err != nil {
			return nil, err
		}
	}
	return groups, nil
}

// compile-time interface check
var _ NewsGroupRepository = (*PostgresNewsGroupRepo)(nil)
