package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/viper"

	"cyberdigest/internal/auth"
	"cyberdigest/internal/brief"
	"cyberdigest/internal/config"
	"cyberdigest/internal/content"
	"cyberdigest/internal/cve"
	"cyberdigest/internal/database"
	"cyberdigest/internal/entity"
	"cyberdigest/internal/handler"
	"cyberdigest/internal/keyword"
	"cyberdigest/internal/llm"
	"cyberdigest/internal/logger"
	"cyberdigest/internal/metrics"
	"cyberdigest/internal/middleware"
	"cyberdigest/internal/orchestrator"
	"cyberdigest/internal/report"
	"cyberdigest/internal/repository"
	"cyberdigest/internal/scheduler"
	"cyberdigest/internal/scrape"
	"cyberdigest/internal/security"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	logger.SetupDefault(w)

	cfg, err := config.Load(newViper())
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// newViper binds every config.Config field to its upper-cased env var
// (e.g. database_url -> DATABASE_URL), matching how config.Load expects
// its caller to have prepared v.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"database_url", "redis_addr", "redis_password", "redis_db",
		"openai_api_key", "openai_model", "nvd_api_key", "resend_api_key",
		"jwt_secret", "frontend_url",
		"scrape_fetch_timeout", "scrape_max_concurrent", "scrape_cache_ttl", "scrape_max_item_age",
		"content_fetch_timeout", "content_max_bytes", "content_max_chars", "content_concurrency",
		"entity_batch_size", "entity_max_chars_each",
		"nvd_rate_window", "nvd_rate_capacity_key", "nvd_rate_capacity_no_key", "nvd_call_timeout", "kev_cache_ttl",
		"briefing_concurrency", "briefing_max_chars",
		"scheduler_tick_interval",
		"server_port", "rate_limit_general", "cors_allowed_origin", "log_level",
	} {
		_ = v.BindEnv(key)
	}
	return v
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// deps bundles every domain component both the API server and the
// worker process need, so runServe/runWorker share exactly one wiring
// path (spec.md §7 error taxonomy is meaningless if the two entrypoints
// enrich data differently).
type deps struct {
	orc *orchestrator.Orchestrator

	users      repository.UserRepository
	sources    repository.SourceRepository
	newsGroups repository.NewsGroupRepository
	exposures  repository.UserCVEExposureRepository
	articles   repository.ArticleRepository
	entities   repository.ArticleEntityRepository
	cves       repository.ArticleCVERepository

	scraper *scrape.Scraper

	metrics  *metrics.Collector
	registry *prometheus.Registry
}

func wire(cfg *config.Config) (*deps, func() error, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	slog.Info("database connection established")

	userRepo := repository.NewPostgresUserRepo(db)
	sourceRepo := repository.NewPostgresSourceRepo(db)
	keywordRepo := repository.NewPostgresKeywordRepo(db)
	techStackRepo := repository.NewPostgresTechStackItemRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(db)
	userArticleRepo := repository.NewPostgresUserArticleRepo(db)
	entityRepo := repository.NewPostgresArticleEntityRepo(db)
	industryRepo := repository.NewPostgresIndustrySignalRepo(db)
	signalRepo := repository.NewPostgresArticleSignalRepo(db)
	cveRepo := repository.NewPostgresArticleCVERepo(db)
	exposureRepo := repository.NewPostgresUserCVEExposureRepo(db)
	newsGroupRepo := repository.NewPostgresNewsGroupRepo(db)
	reportRepo := repository.NewPostgresPeriodReportRepo(db)
	snapshotRepo := repository.NewPostgresPeriodSnapshotRepo(db)

	ssrfGuard := security.NewSSRFGuard()

	var scrapeCache scrape.Cache
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		slog.Warn("redis unavailable, falling back to in-process scrape cache",
			slog.String("error", err.Error()))
		scrapeCache = scrape.NewMemoryCache()
	} else {
		scrapeCache = scrape.NewRedisCache(rdb)
	}

	scraper := scrape.New(scrapeCache, ssrfGuard, cfg.ScrapeFetchTimeout, cfg.ScrapeCacheTTL, cfg.ScrapeMaxItemAge)
	matcher := keyword.New()
	contentExtractor := content.New(ssrfGuard, cfg.ContentFetchTimeout, cfg.ContentMaxBytes, cfg.ContentMaxChars)

	llmClient := llm.NewClient(cfg.OpenAIAPIKey, cfg.OpenAIModel)
	entityExtractor := entity.New(llmClient, cfg.EntityBatchSize, cfg.EntityMaxCharsEach)
	briefGenerator := brief.New(llmClient)

	nvdCapacity := cfg.NVDRateCapacityNoKey
	if cfg.NVDAPIKey != "" {
		nvdCapacity = cfg.NVDRateCapacityKey
	}
	nvdLimiter := cve.NewRateLimiter(cfg.NVDRateWindow, nvdCapacity)
	nvdClient := cve.NewNVDClient(cfg.NVDAPIKey, nvdLimiter, cfg.NVDCallTimeout)
	kevCatalog := cve.NewKEVCatalog(cfg.KEVCacheTTL)

	reportBuilder := report.New(
		newsGroupRepo, entityRepo, signalRepo, cveRepo, industryRepo,
		reportRepo, exposureRepo, snapshotRepo, llmClient,
	)

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	orc := orchestrator.New(orchestrator.Dependencies{
		Users:           userRepo,
		Sources:         sourceRepo,
		Keywords:        keywordRepo,
		TechStack:       techStackRepo,
		Articles:        articleRepo,
		UserArticles:    userArticleRepo,
		Entities:        entityRepo,
		IndustrySignals: industryRepo,
		ArticleSignals:  signalRepo,
		CVEs:            cveRepo,
		Exposures:       exposureRepo,
		NewsGroups:      newsGroupRepo,

		Scraper:          scraper,
		Matcher:          matcher,
		ContentExtractor: contentExtractor,
		EntityExtractor:  entityExtractor,
		NVDClient:        nvdClient,
		KEVCatalog:       kevCatalog,
		BriefGenerator:   briefGenerator,
		ReportBuilder:    reportBuilder,

		Metrics: collector,

		ContentConcurrency:  cfg.ContentConcurrency,
		BriefingConcurrency: cfg.BriefingConcurrency,
	})

	d := &deps{
		orc:        orc,
		users:      userRepo,
		sources:    sourceRepo,
		newsGroups: newsGroupRepo,
		exposures:  exposureRepo,
		articles:   articleRepo,
		entities:   entityRepo,
		cves:       cveRepo,
		scraper:    scraper,
		metrics:    collector,
		registry:   registry,
	}

	return d, db.Close, nil
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	d, closeDB, err := wire(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	sessionFinder := auth.NewJWTSessionFinder(cfg.JWTSecret)

	router := handler.NewRouter(handler.Deps{
		SessionFinder:     sessionFinder,
		Digest:            handler.NewDigestHandler(d.orc),
		Feed:              handler.NewFeedHandler(d.newsGroups),
		Exposure:          handler.NewExposureHandler(d.exposures, d.cves),
		Admin:             handler.NewAdminHandler(d.articles, d.entities, d.cves),
		Gatherer:          d.registry,
		CORSAllowedOrigin: cfg.FrontendURL,
		RateLimiterConfig: middleware.DefaultRateLimiterConfig(),
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: true,
		},
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 5 * time.Minute, // POST /api/digest/run runs the full C10 pipeline synchronously
		IdleTimeout:  60 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、ダイジェストスケジューラ(C11)を起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	d, closeDB, err := wire(cfg)
	if err != nil {
		return err
	}
	defer closeDB()

	warmer := &scheduler.CacheWarmer{Sources: d.sources, Scraper: d.scraper}
	sched := scheduler.New(d.users, warmer, d.orc, nil, 0)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting", slog.Duration("tick_interval", cfg.SchedulerTickInterval))
	sched.Start(ctx, cfg.SchedulerTickInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
