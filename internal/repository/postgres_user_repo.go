package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"cyberdigest/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	user := &model.User{}
	var lastDigestAt sql.NullTime

	err := r.db.QueryRowContext(ctx,
		`SELECT id, industry_id, frequency, digest_time, last_digest_at,
		        email_enabled, onboarded, created_at, updated_at
		 FROM users WHERE id = $1`,
		id,
	).Scan(
		&user.ID, &user.IndustryID, &user.Frequency, &user.DigestTime, &lastDigestAt,
		&user.EmailEnabled, &user.Onboarded, &user.CreatedAt, &user.UpdatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	if lastDigestAt.Valid {
		user.LastDigestAt = &lastDigestAt.Time
	}
	return user, nil
}

// Create はユーザーを作成する。
func (r *PostgresUserRepo) Create(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO users (id, industry_id, frequency, digest_time, last_digest_at,
		                    email_enabled, onboarded, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		user.ID, user.IndustryID, user.Frequency, user.DigestTime, user.LastDigestAt,
		user.EmailEnabled, user.Onboarded, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	return nil
}

// Update はユーザー情報を更新する。
func (r *PostgresUserRepo) Update(ctx context.Context, user *model.User) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET
		    industry_id = $2, frequency = $3, digest_time = $4,
		    email_enabled = $5, onboarded = $6, updated_at = $7
		 WHERE id = $1`,
		user.ID, user.IndustryID, user.Frequency, user.DigestTime,
		user.EmailEnabled, user.Onboarded, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	return nil
}

// ListDueForDigest はメール配信が有効な全ユーザーを候補として取得する。
// 頻度・配信時刻・最終配信時刻に基づく厳密な配信可否判定はscheduler側で行う
// (SQLの可読性より判定ロジックの単体テスト容易性を優先した)。
// FOR UPDATE SKIP LOCKEDで同一ユーザーへの二重配信を防ぐ。
func (r *PostgresUserRepo) ListDueForDigest(ctx context.Context, now time.Time) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, industry_id, frequency, digest_time, last_digest_at,
		        email_enabled, onboarded, created_at, updated_at
		 FROM users
		 WHERE email_enabled = true
		 FOR UPDATE SKIP LOCKED`,
	)
	if err != nil {
		return nil, fmt.Errorf("配信対象ユーザーの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		var lastDigestAt sql.NullTime
		if err := rows.Scan(
			&user.ID, &user.IndustryID, &user.Frequency, &user.DigestTime, &lastDigestAt,
			&user.EmailEnabled, &user.Onboarded, &user.CreatedAt, &user.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("配信対象ユーザーの読み取りに失敗しました: %w", err)
		}
		if lastDigestAt.Valid {
			user.LastDigestAt = &lastDigestAt.Time
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("配信対象ユーザーの走査に失敗しました: %w", err)
	}
	return users, nil
}

// UpdateLastDigestAt はユーザーの最終配信時刻を更新する。
func (r *PostgresUserRepo) UpdateLastDigestAt(ctx context.Context, userID string, at time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_digest_at = $2, updated_at = now() WHERE id = $1`,
		userID, at,
	)
	if err != nil {
		return fmt.Errorf("最終配信時刻の更新に失敗しました: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
