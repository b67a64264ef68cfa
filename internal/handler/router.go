package handler

import (
	"context"
	"log/slog"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/bestdressed/internal/metrics"
	"github.com/hitoshi/bestdressed/internal/middleware"
)

// healthCheckTimeout はヘルスチェック時のDB疎通確認のタイムアウト。
const healthCheckTimeout = 3 * time.Second

// HealthChecker はヘルスチェックで疎通確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	SessionResolver   middleware.PrincipalResolver
	BanChecker        middleware.BanChecker
	CORSAllowedOrigin string
	TrustedProxies    []netip.Prefix
	CSRFConfig        middleware.CSRFConfig
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// 運用
	HealthChecker   HealthChecker
	Metrics         *metrics.Collector
	MetricsGatherer prometheus.Gatherer

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// ユーザー・プロフィール
	UserService UserServiceInterface

	// ワードローブ・コーディネート
	WardrobeService WardrobeServiceInterface
	OutfitService   OutfitServiceInterface

	// カタログ
	CatalogService CatalogServiceInterface

	// レコメンド
	RecommendService RecommendServiceInterface

	// フォーラム・モデレーション
	ForumService ForumServiceInterface
	BanService   BanServiceInterface

	// eBayアカウント削除通知
	EbayWebhook *EbayWebhookHandler
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → TrustedProxy → Recovery → SecurityHeaders → CORS → Session → Logging → Metrics → RateLimit(General) → CSRF
//
// eBay Webhookはレート制限とCSRF検証の外に配置する。
// 認証が必要なルートにはRequireAuthを、フォーラムにはIP BAN判定を追加する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.NewTrustedProxyMiddleware(deps.TrustedProxies))
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.AuthConfig.CookieSecure))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
	r.Use(middleware.NewSessionMiddleware(deps.SessionResolver))
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Middleware())
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	userHandler := NewUserHandler(deps.UserService, deps.AuthConfig)
	wardrobeHandler := NewWardrobeHandler(deps.WardrobeService)
	outfitHandler := NewOutfitHandler(deps.OutfitService)
	catalogHandler := NewCatalogHandler(deps.CatalogService)
	recommendHandler := NewRecommendationHandler(deps.RecommendService)
	forumHandler := NewForumHandler(deps.ForumService)
	moderationHandler := NewModerationHandler(deps.BanService)

	// --- 運用エンドポイント ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.MetricsGatherer))
	}

	// --- eBay Webhook（CSRF対象外） ---
	if deps.EbayWebhook != nil {
		r.Get("/auth/ebay_market_delete/", deps.EbayWebhook.Challenge)
		r.Post("/auth/ebay_market_delete/", deps.EbayWebhook.Notify)
	}

	// --- API ---
	// ミドルウェアスタック: RateLimit(General) → CSRF
	r.Group(func(r chi.Router) {
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))

		r.Method(http.MethodGet, "/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig))

		// 認証
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.Signup)
			r.Post("/login", authHandler.Login)
			r.Post("/logout", authHandler.Logout)
			r.With(middleware.RequireAuth).Get("/me", authHandler.Me)
		})

		// フォーラム: 閲覧は未ログインでも可能、書き込みはBAN判定の対象
		r.Route("/api/forum", func(r chi.Router) {
			if deps.BanChecker != nil {
				r.Use(middleware.NewIPBanMiddleware(deps.BanChecker))
			}

			r.Get("/threads", forumHandler.ListThreads)
			r.Get("/threads/{id}", forumHandler.GetThread)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireAuth)

				r.Get("/saved", forumHandler.ListSaved)
				r.Post("/threads", forumHandler.CreateThread)
				r.Put("/threads/{id}", forumHandler.UpdateThread)
				r.Delete("/threads/{id}", forumHandler.DeleteThread)
				r.Post("/threads/{id}/posts", forumHandler.CreatePost)
				r.Post("/threads/{id}/like", forumHandler.ToggleThreadLike)
				r.Post("/threads/{id}/save", forumHandler.ToggleSaved)
				r.Put("/posts/{id}", forumHandler.UpdatePost)
				r.Delete("/posts/{id}", forumHandler.DeletePost)
				r.Post("/posts/{id}/like", forumHandler.TogglePostLike)
			})
		})

		// --- 認証が必要なルート ---
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth)

			// プロフィール・退会
			r.Get("/api/profile", userHandler.GetProfile)
			r.Put("/api/profile", userHandler.UpdateProfile)
			r.Delete("/api/users/me", userHandler.Withdraw)

			// ワードローブ
			r.Route("/api/wardrobe", func(r chi.Router) {
				r.Get("/", wardrobeHandler.List)
				r.Post("/", wardrobeHandler.Create)
				r.Put("/{id}", wardrobeHandler.Update)
				r.Delete("/{id}", wardrobeHandler.Delete)
			})

			// コーディネート
			r.Route("/api/outfits", func(r chi.Router) {
				r.Get("/", outfitHandler.List)
				r.Post("/", outfitHandler.Create)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", outfitHandler.Get)
					r.Put("/", outfitHandler.Update)
					r.Delete("/", outfitHandler.Delete)
					r.Post("/favorite", outfitHandler.ToggleFavorite)
					r.Post("/duplicate", outfitHandler.Duplicate)
				})
			})

			// カタログ
			r.Route("/api/items", func(r chi.Router) {
				r.Get("/", catalogHandler.List)
				r.Post("/", catalogHandler.Create)
				r.Get("/ebay/search", catalogHandler.SearchEbay)
				r.Post("/ebay", catalogHandler.ImportEbay)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", catalogHandler.Get)
					r.Post("/save", wardrobeHandler.SaveFromCatalog)
					r.Post("/hide", catalogHandler.Hide)
					r.Delete("/hide", catalogHandler.Unhide)
				})
			})

			// レコメンド（投入には専用のレート制限を追加）
			r.Route("/api/recommendations", func(r chi.Router) {
				r.Get("/", recommendHandler.History)
				r.With(deps.RateLimiter.RecommendMiddleware()).Post("/", recommendHandler.Request)
				r.Get("/jobs/{id}", recommendHandler.Poll)
			})

			// モデレーション（スタッフ判定はサービス層で行う）
			r.Route("/api/moderation/bans", func(r chi.Router) {
				r.Post("/", moderationHandler.Ban)
				r.Delete("/{ip}", moderationHandler.Unban)
			})
		})
	})

	return r
}

type healthResponse struct {
	Status string `json:"status"`
}

// healthHandler はDB疎通を確認するヘルスチェックハンドラーを返す。
// checkerがnilの場合はプロセスの生存のみを返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.Warn("ヘルスチェックでDB疎通に失敗しました", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
