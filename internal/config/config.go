// Package config はアプリケーション全体の設定を定義する。
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config はアプリケーション全体の設定を保持する。
// 起動時にviperで一度読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string `mapstructure:"database_url"`

	// Redis (スクレイパーキャッシュ)
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	// LLM
	OpenAIAPIKey string `mapstructure:"openai_api_key"`
	OpenAIModel  string `mapstructure:"openai_model"`

	// 脆弱性データベース連携
	NVDAPIKey string `mapstructure:"nvd_api_key"`

	// メール配信連携
	ResendAPIKey string `mapstructure:"resend_api_key"`

	// 認証
	JWTSecret   string `mapstructure:"jwt_secret"`
	FrontendURL string `mapstructure:"frontend_url"`

	// スクレイピング (C1)
	ScrapeFetchTimeout  time.Duration `mapstructure:"scrape_fetch_timeout"`
	ScrapeMaxConcurrent int           `mapstructure:"scrape_max_concurrent"`
	ScrapeCacheTTL      time.Duration `mapstructure:"scrape_cache_ttl"`
	ScrapeMaxItemAge    time.Duration `mapstructure:"scrape_max_item_age"`

	// 本文抽出 (C3)
	ContentFetchTimeout time.Duration `mapstructure:"content_fetch_timeout"`
	ContentMaxBytes     int64         `mapstructure:"content_max_bytes"`
	ContentMaxChars     int           `mapstructure:"content_max_chars"`
	ContentConcurrency  int           `mapstructure:"content_concurrency"`

	// エンティティ抽出 (C4)
	EntityBatchSize    int `mapstructure:"entity_batch_size"`
	EntityMaxCharsEach int `mapstructure:"entity_max_chars_each"`

	// CVEエンリッチメント (C5)
	NVDRateWindow        time.Duration `mapstructure:"nvd_rate_window"`
	NVDRateCapacityKey   int           `mapstructure:"nvd_rate_capacity_key"`
	NVDRateCapacityNoKey int           `mapstructure:"nvd_rate_capacity_no_key"`
	NVDCallTimeout       time.Duration `mapstructure:"nvd_call_timeout"`
	KEVCacheTTL          time.Duration `mapstructure:"kev_cache_ttl"`

	// ブリーフィング生成 (C7)
	BriefingConcurrency int `mapstructure:"briefing_concurrency"`
	BriefingMaxChars    int `mapstructure:"briefing_max_chars"`

	// スケジューラ (C11)
	SchedulerTickInterval time.Duration `mapstructure:"scheduler_tick_interval"`

	// サーバー
	ServerPort string `mapstructure:"server_port"`

	// レート制限 (HTTP API)
	RateLimitGeneral int `mapstructure:"rate_limit_general"`

	// CORS
	CORSAllowedOrigin string `mapstructure:"cors_allowed_origin"`

	// ロギング
	LogLevel string `mapstructure:"log_level"`
}

// requiredKeys は空文字であってはならないviperキーの一覧である。
// 以下の任意項目と異なり、必須キーの欠落は起動時エラーとして集約され、
// 運用者は一度に不足環境変数をすべて確認できる。
var requiredKeys = []string{
	"database_url",
	"openai_api_key",
	"jwt_secret",
	"frontend_url",
}

// Load はvからConfigを構築する。任意項目にはデフォルト値を適用し、
// 必須キーが一つでも未設定ならエラーを返す。vは呼び出し元（app.newViper）
// が環境変数バインディングや設定ファイルを読み込み済みであることを前提とする。
func Load(v *viper.Viper) (*Config, error) {
	setDefaults(v)

	var missing []string
	for _, key := range requiredKeys {
		if v.GetString(key) == "" {
			missing = append(missing, strings.ToUpper(key))
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("required configuration values are not set: %v", missing)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("redis_addr", "127.0.0.1:6379")
	v.SetDefault("redis_db", 0)
	v.SetDefault("openai_model", "gpt-4o-mini")
	v.SetDefault("scrape_fetch_timeout", 15*time.Second)
	v.SetDefault("scrape_max_concurrent", 32)
	v.SetDefault("scrape_cache_ttl", time.Hour)
	v.SetDefault("scrape_max_item_age", 7*24*time.Hour)
	v.SetDefault("content_fetch_timeout", 20*time.Second)
	v.SetDefault("content_max_bytes", int64(500*1024))
	v.SetDefault("content_max_chars", 15000)
	v.SetDefault("content_concurrency", 15)
	v.SetDefault("entity_batch_size", 5)
	v.SetDefault("entity_max_chars_each", 4000)
	v.SetDefault("nvd_rate_window", 30*time.Second)
	v.SetDefault("nvd_rate_capacity_key", 50)
	v.SetDefault("nvd_rate_capacity_no_key", 5)
	v.SetDefault("nvd_call_timeout", 15*time.Second)
	v.SetDefault("kev_cache_ttl", 24*time.Hour)
	v.SetDefault("briefing_concurrency", 10)
	v.SetDefault("briefing_max_chars", 20000)
	v.SetDefault("scheduler_tick_interval", time.Hour)
	v.SetDefault("server_port", "8080")
	v.SetDefault("rate_limit_general", 120)
	v.SetDefault("cors_allowed_origin", "http://localhost:3000")
	v.SetDefault("log_level", "info")
}
