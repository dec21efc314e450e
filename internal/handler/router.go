package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/fanzone/internal/metrics"
	"github.com/hitoshi/fanzone/internal/middleware"
	"github.com/hitoshi/fanzone/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	SessionValidator  middleware.SessionValidator
	Cookies           middleware.CookieConfig
	CORSAllowedOrigin string
	// TrustProxyHeaders がtrueの場合のみX-Forwarded-For等で接続元IPを書き換える。
	TrustProxyHeaders bool
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsHandler    http.Handler

	// 認証
	AuthService AuthServiceInterface

	// スコア・チャット
	ScoreService ScoreServiceInterface
	ChatHistory  ChatHistoryService
	Hub          HubController
	WebSocket    http.Handler

	// ユーザー管理
	UserService UserServiceInterface

	// ヘルスチェック
	HealthChecker HealthChecker
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	[RealIP] → Recovery → Logging → Metrics → SecurityHeaders → CORS → CSRF(/api) → AccessGuard → RateLimit
//
// RealIPは信頼できるリバースプロキシ配下 (TrustProxyHeaders) でのみ有効にする。
// ロールによる制限はルートごとに許可ロールを明示して指定する。
// logoutとrefreshはCSRF検証の対象外。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	if deps.TrustProxyHeaders {
		r.Use(chimw.RealIP)
	}
	r.Use(middleware.NewRecoveryMiddleware())
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	r.Use(middleware.NewLoggingMiddleware(logger))
	if deps.Metrics != nil {
		r.Use(metrics.NewStatusMiddleware(deps.Metrics))
	}
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	guard := middleware.NewAccessGuard(deps.SessionValidator, deps.Cookies)
	csrfConfig := middleware.CSRFConfig{
		CookieSecure: deps.Cookies.Secure,
		CookieDomain: deps.Cookies.Domain,
	}

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies)
	scoreHandler := NewScoreHandler(deps.ScoreService)
	chatHandler := NewChatHandler(deps.ChatHistory, deps.Hub)
	adminHandler := NewAdminHandler(deps.UserService)

	r.Get("/health", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", deps.MetricsHandler)
	}
	if deps.WebSocket != nil {
		r.Method(http.MethodGet, "/ws", deps.WebSocket)
	}

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/refresh", authHandler.Refresh)
		r.Post("/auth/logout", authHandler.Logout)

		r.Group(func(r chi.Router) {
			r.Use(middleware.NewCSRFMiddleware(csrfConfig))

			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(csrfConfig))

			// --- 認証不要のルート ---
			r.With(deps.RateLimiter.LoginMiddleware()).Post("/auth/login", authHandler.Login)
			r.Get("/auth/session", authHandler.Session)

			r.Get("/score", scoreHandler.Get)
			r.Get("/chat/messages", chatHandler.Messages)
			r.Get("/chat/stats", chatHandler.Stats)

			// --- 許可ロールを明示したルート ---
			r.Group(func(r chi.Router) {
				r.Use(guard.Require(model.RoleAdmin, model.RoleDeveloper))
				r.Use(deps.RateLimiter.GeneralMiddleware())

				r.Put("/score", scoreHandler.Update)
			})

			r.Group(func(r chi.Router) {
				r.Use(guard.Require(model.RoleAdmin))
				r.Use(deps.RateLimiter.GeneralMiddleware())

				r.Post("/score/reset", scoreHandler.Reset)
				r.Post("/chat/moderate", chatHandler.Moderate)
				r.Patch("/admin/users/{id}", adminHandler.UpdateUser)
			})
		})
	})

	return r
}
