package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/hitoshi/bestdressed/internal/auth"
	"github.com/hitoshi/bestdressed/internal/catalog"
	"github.com/hitoshi/bestdressed/internal/config"
	"github.com/hitoshi/bestdressed/internal/database"
	"github.com/hitoshi/bestdressed/internal/ebay"
	"github.com/hitoshi/bestdressed/internal/forum"
	"github.com/hitoshi/bestdressed/internal/handler"
	"github.com/hitoshi/bestdressed/internal/logger"
	"github.com/hitoshi/bestdressed/internal/metrics"
	"github.com/hitoshi/bestdressed/internal/middleware"
	"github.com/hitoshi/bestdressed/internal/moderation"
	"github.com/hitoshi/bestdressed/internal/outfit"
	"github.com/hitoshi/bestdressed/internal/recommend"
	"github.com/hitoshi/bestdressed/internal/repository"
	"github.com/hitoshi/bestdressed/internal/security"
	"github.com/hitoshi/bestdressed/internal/user"
	"github.com/hitoshi/bestdressed/internal/wardrobe"
	"github.com/hitoshi/bestdressed/internal/worker/cleanup"
)

const (
	// dbPingTimeout は起動時のDB疎通確認のタイムアウト。
	dbPingTimeout = 5 * time.Second
	// shutdownTimeout はHTTPサーバーのグレースフルシャットダウンの猶予。
	shutdownTimeout = 30 * time.Second
	// ebayHTTPTimeout はeBay APIクライアントのリクエストタイムアウト。
	ebayHTTPTimeout = 10 * time.Second
	// ebayKeyTTL は通知検証用公開鍵のキャッシュ期間。
	ebayKeyTTL = time.Hour
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w, os.Getenv("LOG_LEVEL"))

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
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
		return runHealthcheck(fmt.Sprintf("http://localhost:%s/health", port))
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch cmd {
	case CommandWorker:
		return runWorker(ctx, cfg)
	case CommandMigrate:
		action, err := ParseMigrateArgs(args[1:])
		if err != nil {
			return err
		}
		return runMigrate(cfg, action)
	default:
		return runServe(ctx, cfg)
	}
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL, database.DefaultPoolConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := database.Ping(ctx, db, dbPingTimeout); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newCompleter はGENAI_API_KEYが設定されていればGenAICompleterを返す。
// 未設定の場合、ジョブは受け付けるが全てfailedになる。
func newCompleter(ctx context.Context, cfg *config.Config) recommend.Completer {
	if cfg.GenAIAPIKey == "" {
		slog.Warn("GENAI_API_KEYが未設定のため、レコメンドは失敗として扱われます")
		return recommend.UnavailableCompleter{}
	}
	completer, err := recommend.NewGenAICompleter(ctx, cfg.GenAIAPIKey, cfg.AIModel)
	if err != nil {
		slog.Error("GenAIクライアントの初期化に失敗しました", slog.String("error", err.Error()))
		return recommend.UnavailableCompleter{}
	}
	return completer
}

// rateLimiterConfig はreq/min単位の設定値をレート制限の設定に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.RecommendRate = rate.Limit(float64(cfg.RateLimitRecommend) / 60)
	rlCfg.RecommendBurst = cfg.RateLimitRecommend
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとレコメンドディスパッチャーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config) error {
	log := slog.Default()

	// 1. DB接続
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	wardrobeRepo := repository.NewPostgresWardrobeRepo(db)
	outfitRepo := repository.NewPostgresOutfitRepo(db)
	catalogRepo := repository.NewPostgresCatalogRepo(db)
	forumRepo := repository.NewPostgresForumRepo(db)
	banRepo := repository.NewPostgresBanRepo(db)
	jobRepo := repository.NewPostgresRecommendationJobRepo(db)
	savedRepo := repository.NewPostgresSavedRecommendationRepo(db)

	// 3. セキュリティ・モデレーションの初期化
	ssrfGuard := security.NewSSRFGuard()
	sanitizer := security.NewContentSanitizer()
	filter, err := moderation.LoadContentFilter(cfg.ContentFilterPath, log)
	if err != nil {
		return fmt.Errorf("failed to load content filter: %w", err)
	}
	banService := moderation.NewBanService(banRepo, log)

	// 4. メトリクス
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(registry)

	// 5. eBay連携
	ebayClient := ebay.NewClient(ssrfGuard.NewSafeClient(ebayHTTPTimeout), log, cfg.EbayAPIURL, cfg.EbayAuthToken)
	verifier := ebay.NewNotificationVerifier(ebay.NewKeyCache(ebayClient, ebayKeyTTL), log, collector)

	// 6. ドメインサービスの初期化
	authService := auth.NewService(userRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge}, log)
	userService := user.NewService(userRepo, sessionRepo, profileRepo, sanitizer, log)
	wardrobeService := wardrobe.NewService(wardrobeRepo, catalogRepo, sanitizer, ssrfGuard, log)
	outfitService := outfit.NewService(outfitRepo, wardrobeRepo, sanitizer)
	catalogService := catalog.NewService(catalogRepo, ebayClient, sanitizer, ssrfGuard, filter, log)
	forumService := forum.NewService(forumRepo, outfitRepo, sanitizer, filter)

	dispatcher := recommend.NewDispatcher(jobRepo, savedRepo, newCompleter(ctx, cfg), log, collector,
		recommend.Options{
			Workers:   cfg.RecommendWorkers,
			QueueSize: cfg.RecommendQueueSize,
			Timeout:   cfg.RecommendTimeout,
		})
	recommendService := recommend.NewService(profileRepo, catalogRepo, savedRepo, dispatcher)

	// 7. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		SessionResolver:   authService,
		BanChecker:        banService,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustedProxies:    cfg.TrustedProxies,
		CSRFConfig: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: rateLimiter,
		Logger:      log,

		HealthChecker:   db,
		Metrics:         collector,
		MetricsGatherer: registry,

		AuthService: authService,
		AuthConfig: handler.AuthHandlerConfig{
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},

		UserService:      userService,
		WardrobeService:  wardrobeService,
		OutfitService:    outfitService,
		CatalogService:   catalogService,
		RecommendService: recommendService,
		ForumService:     forumService,
		BanService:       banService,

		EbayWebhook: handler.NewEbayWebhookHandler(verifier, catalogService, handler.EbayWebhookConfig{
			VerificationToken: cfg.EbayVerificationToken,
			EndpointURL:       cfg.EbayEndpointURL,
		}, log),
	}

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      handler.NewRouter(deps),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 8. サーバーとディスパッチャーを同じライフサイクルで起動
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		slog.Info("API server starting", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッション・BAN・終端済みジョブを定期的にクリーンアップする。
// ctxがキャンセルされるまでブロックする。
func runWorker(ctx context.Context, cfg *config.Config) error {
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	job := cleanup.NewCleanupJob(db, slog.Default())

	slog.Info("worker starting", slog.Duration("cleanup_interval", cfg.CleanupInterval))
	job.Start(ctx, cfg.CleanupInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
func runMigrate(cfg *config.Config, action MigrateAction) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		slog.String("direction", action.Direction),
	)

	switch action.Direction {
	case MigrateDown:
		if err := database.RollbackMigrations(cfg.DatabaseURL, action.Steps); err != nil {
			return fmt.Errorf("migration rollback failed: %w", err)
		}
		slog.Info("database migrations rolled back", slog.Int("steps", action.Steps))
	case MigrateVersion:
		version, dirty, err := database.MigrationVersion(cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to read migration version: %w", err)
		}
		slog.Info("current migration version",
			slog.Uint64("version", uint64(version)),
			slog.Bool("dirty", dirty),
		)
	default:
		if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		slog.Info("database migrations completed successfully")
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(url string) error {
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
