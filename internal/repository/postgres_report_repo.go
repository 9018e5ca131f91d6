package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"cyberdigest/internal/model"
)

// PostgresPeriodReportRepo はPostgreSQLを使用した期間レポートリポジトリ。
type PostgresPeriodReportRepo struct {
	db *sql.DB
}

// NewPostgresPeriodReportRepo はPostgresPeriodReportRepoを生成する。
func NewPostgresPeriodReportRepo(db *sql.DB) *PostgresPeriodReportRepo {
	return &PostgresPeriodReportRepo{db: db}
}

// Upsert は(user_id,period)のレポートを置き換える。statsはJSONBとして保存する。
func (r *PostgresPeriodReportRepo) Upsert(ctx context.Context, report *model.PeriodReport) error {
	statsJSON, err := json.Marshal(report.Stats)
	if err != nil {
		return fmt.Errorf("統計情報のJSONエンコードに失敗しました: %w", err)
	}

	query, args, err := psql.Insert("period_reports").
		Columns("user_id", "period", "from_date", "to_date", "summary", "stats", "generated_at").
		Values(report.UserID, string(report.Period), report.FromDate, report.ToDate, report.Summary, statsJSON, report.GeneratedAt).
		Suffix(`ON CONFLICT (user_id, period) DO UPDATE SET
		    from_date = EXCLUDED.from_date, to_date = EXCLUDED.to_date,
		    summary = EXCLUDED.summary, stats = EXCLUDED.stats, generated_at = EXCLUDED.generated_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("期間レポートupsertクエリの構築に失敗しました: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("期間レポートのupsertに失敗しました: %w", err)
	}
	return nil
}

// FindByUserAndPeriod は指定ユーザー・期間のレポートを取得する。見つからない場合はnilを返す。
func (r *PostgresPeriodReportRepo) FindByUserAndPeriod(ctx context.Context, userID string, period model.Period) (*model.PeriodReport, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, period, from_date, to_date, summary, stats, generated_at
		 FROM period_reports WHERE user_id = $1 AND period = $2`,
		userID, string(period),
	)

	report := &model.PeriodReport{}
	var periodStr string
	var statsJSON []byte
	err := row.Scan(&report.UserID, &periodStr, &report.FromDate, &report.ToDate,
		&report.Summary, &statsJSON, &report.GeneratedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("期間レポートの取得に失敗しました: %w", err)
	}
	report.Period = model.Period(periodStr)
	if err := json.Unmarshal(statsJSON, &report.Stats); err != nil {
		return nil, fmt.Errorf("統計情報のJSONデコードに失敗しました: %w", err)
	}
	return report, nil
}

// compile-time interface check
var _ PeriodReportRepository = (*PostgresPeriodReportRepo)(nil)

// PostgresPeriodSnapshotRepo はPostgreSQLを使用した日次スナップショットリポジトリ。
type PostgresPeriodSnapshotRepo struct {
	db *sql.DB
}

// NewPostgresPeriodSnapshotRepo はPostgresPeriodSnapshotRepoを生成する。
func NewPostgresPeriodSnapshotRepo(db *sql.DB) *PostgresPeriodSnapshotRepo {
	return &PostgresPeriodSnapshotRepo{db: db}
}

// Upsert は(user_id,period,snap_date)のスナップショットを置き換える。
func (r *PostgresPeriodSnapshotRepo) Upsert(ctx context.Context, snap *model.PeriodSnapshot) error {
	metricsJSON, err := json.Marshal(snap.Metrics)
	if err != nil {
		return fmt.Errorf("メトリクスのJSONエンコードに失敗しました: %w", err)
	}

	query, args, err := psql.Insert("period_snapshots").
		Columns("user_id", "period", "snap_date", "metrics").
		Values(snap.UserID, string(snap.Period), snap.SnapDate, metricsJSON).
		Suffix(`ON CONFLICT (user_id, period, snap_date) DO UPDATE SET metrics = EXCLUDED.metrics`).
		ToSql()
	if err != nil {
		return fmt.Errorf("スナップショットupsertクエリの構築に失敗しました: %w", err)
	}

	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("スナップショットのupsertに失敗しました: %w", err)
	}
	return nil
}

// FindNearestBefore はonOrBefore以前で最も近いスナップショットを返す。見つからない場合はnilを返す。
func (r *PostgresPeriodSnapshotRepo) FindNearestBefore(ctx context.Context, userID string, period model.Period, onOrBefore time.Time) (*model.PeriodSnapshot, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT user_id, period, snap_date, metrics FROM period_snapshots
		 WHERE user_id = $1 AND period = $2 AND snap_date <= $3
		 ORDER BY snap_date DESC LIMIT 1`,
		userID, string(period), onOrBefore,
	)

	snap := &model.PeriodSnapshot{}
	var periodStr string
	var metricsJSON []byte
	err := row.Scan(&snap.UserID, &periodStr, &snap.SnapDate, &metricsJSON)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("直近スナップショットの取得に失敗しました: %w", err)
	}
	snap.Period = model.Period(periodStr)
	if err := json.Unmarshal(metricsJSON, &snap.Metrics); err != nil {
		return nil, fmt.Errorf("メトリクスのJSONデコードに失敗しました: %w", err)
	}
	return snap, nil
}

// compile-time interface check
var _ PeriodSnapshotRepository = (*PostgresPeriodSnapshotRepo)(nil)
