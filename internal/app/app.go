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

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/hitoshi/fanzone/internal/auth"
	"github.com/hitoshi/fanzone/internal/chat"
	"github.com/hitoshi/fanzone/internal/config"
	"github.com/hitoshi/fanzone/internal/database"
	"github.com/hitoshi/fanzone/internal/handler"
	"github.com/hitoshi/fanzone/internal/hub"
	"github.com/hitoshi/fanzone/internal/logger"
	"github.com/hitoshi/fanzone/internal/metrics"
	"github.com/hitoshi/fanzone/internal/middleware"
	"github.com/hitoshi/fanzone/internal/model"
	"github.com/hitoshi/fanzone/internal/repository"
	"github.com/hitoshi/fanzone/internal/score"
	"github.com/hitoshi/fanzone/internal/security"
	"github.com/hitoshi/fanzone/internal/user"
	"github.com/hitoshi/fanzone/internal/worker/cleanup"
)

// connectTimeout は起動時のDB疎通確認の上限時間。
const connectTimeout = 10 * time.Second

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

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
	cmd, err := ParseCommand(args)
	if err != nil {
		Usage(w)
		return err
	}
	if cmd == CommandHelp {
		Usage(w)
		return nil
	}

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
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSeed:
		return runSeed(cfg)
	default:
		return runServe(cfg)
	}
}

// openDatabase は起動時のタイムアウト付きでDBに接続する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	db, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	slog.Info("database connection established")
	return db, nil
}

// newAuthService はPostgreSQLリポジトリで認証サービスを構成する。
func newAuthService(db *sql.DB, cfg *config.Config, m auth.Metrics) (*auth.Service, *repository.PostgresUserRepo, auth.PasswordHasher) {
	userRepo := repository.NewPostgresUserRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	hasher := auth.NewBcryptHasher(cfg.BcryptCost)

	svc := auth.NewService(userRepo, sessionRepo, hasher, auth.ServiceConfig{
		SessionDuration: cfg.SessionDuration,
		Metrics:         m,
	})
	return svc, userRepo, hasher
}

// newMetrics はGo/プロセスのコレクタとアプリケーションメトリクスを登録したレジストリを返す。
func newMetrics() (*prometheus.Registry, *metrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.NewCollector(reg)
}

// newMetricsServer はworkerモード用に/metricsだけを公開するHTTPサーバーを返す。
func newMetricsServer(port string, gatherer prometheus.Gatherer) *http.Server {
	r := chi.NewRouter()
	r.Method(http.MethodGet, "/metrics", metrics.Handler(gatherer))
	return &http.Server{
		Addr:              ":" + port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// runServe はAPIサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーとブロードキャストHubを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとHTTPサーバー、Hubの順に停止する。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	// 2. メトリクス
	reg, collector := newMetrics()

	// 3. リポジトリとサービスの初期化
	authService, userRepo, hasher := newAuthService(db, cfg, collector)
	messageRepo := repository.NewPostgresMessageRepo(db)
	scoreRepo := repository.NewPostgresScoreRepo(db)

	countCtx, countCancel := context.WithTimeout(context.Background(), connectTimeout)
	messageCount, err := messageRepo.Count(countCtx)
	countCancel()
	if err != nil {
		return fmt.Errorf("failed to load message count: %w", err)
	}

	// 4. ブロードキャストHubの起動
	broadcastHub := hub.New(hub.Config{
		Logger:              slog.Default().With(slog.String("component", "hub")),
		Metrics:             collector,
		InitialMessageCount: messageCount,
	})
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go broadcastHub.Run(hubCtx)

	chatService := chat.NewService(messageRepo, broadcastHub, security.NewContentSanitizer(), chat.Config{
		MaxLength: cfg.ChatMaxLength,
	})
	scoreService := score.NewService(scoreRepo, broadcastHub, nil)
	userService := user.NewService(userRepo, authService, hasher)

	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitLogin),
	)
	defer rateLimiter.Stop()

	wsHandler := handler.NewWSHandler(broadcastHub, chatService, hub.ClientConfig{
		WriteWait:      cfg.WSWriteWait,
		PongWait:       cfg.WSPongWait,
		MaxMessageSize: cfg.WSMaxMessageSize,
		SendBuffer:     cfg.WSSendBuffer,
		RatePerSecond:  cfg.ChatRatePerSecond,
		Burst:          cfg.ChatBurst,
	}, cfg.CORSAllowedOrigin)

	// 5. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:           slog.Default(),
		SessionValidator: authService,
		Cookies: middleware.CookieConfig{
			Secure: cfg.CookieSecure,
			Domain: cfg.CookieDomain,
			MaxAge: cfg.SessionDuration,
		},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustProxyHeaders: cfg.TrustProxyHeaders,
		RateLimiter:       rateLimiter,
		Metrics:           collector,
		MetricsHandler:    metrics.Handler(reg),

		AuthService: authService,

		ScoreService: scoreService,
		ChatHistory:  chatService,
		Hub:          broadcastHub,
		WebSocket:    wsHandler,

		UserService: userService,

		HealthChecker: db,
	}

	router := handler.NewRouter(deps)

	// 6. HTTPサーバーの起動
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case <-stop:
	case err := <-serverErr:
		return fmt.Errorf("server listen error: %w", err)
	}
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	// HTTPの受付停止後にHubを止め、残っている接続を閉じる
	hubCancel()
	select {
	case <-broadcastHub.Done():
	case <-ctx.Done():
		slog.Warn("hub did not stop before shutdown deadline")
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// 期限切れセッションの削除ジョブを起動時と一定間隔で実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	reg, collector := newMetrics()
	authService, _, _ := newAuthService(db, cfg, collector)

	cleanupJob := cleanup.NewCleanupJob(authService, slog.Default().With(slog.String("component", "cleanup")))
	cleanupJob.Interval = cfg.SessionCleanupInterval

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	go func() {
		select {
		case <-stop:
			slog.Info("shutting down worker...")
			cancel()
		case <-ctx.Done():
		}
	}()

	// 削除件数を外部から収集できるよう/metricsを公開する
	if cfg.WorkerMetricsPort != "" {
		metricsServer := newMetricsServer(cfg.WorkerMetricsPort, reg)
		go func() {
			slog.Info("worker metrics server starting", slog.String("addr", metricsServer.Addr))
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("worker metrics server failed", slog.String("error", err.Error()))
			}
		}()
		defer func() {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Warn("worker metrics server shutdown failed", slog.String("error", err.Error()))
			}
		}()
	}

	// クリーンアップジョブをメインgoroutineで実行（ブロッキング）
	cleanupJob.Start(ctx)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL, slog.Default())
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runSeed はSEED_ADMIN_EMAIL/SEED_ADMIN_PASSWORDから管理者アカウントを作成する。
// 同じメールアドレスのユーザーが既に存在する場合は何もしない。
func runSeed(cfg *config.Config) error {
	if cfg.SeedAdminEmail == "" || cfg.SeedAdminPassword == "" {
		return errors.New("SEED_ADMIN_EMAIL and SEED_ADMIN_PASSWORD must be set for seed")
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	authService, userRepo, hasher := newAuthService(db, cfg, nil)
	userService := user.NewService(userRepo, authService, hasher)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	u, created, err := userService.Provision(ctx, cfg.SeedAdminEmail, cfg.SeedAdminPassword, model.RoleAdmin)
	if err != nil {
		return fmt.Errorf("seed failed: %w", err)
	}

	slog.Info("admin account seeded",
		slog.String("user_id", u.ID),
		slog.Bool("created", created),
		slog.String("role", string(u.Role)),
	)
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
