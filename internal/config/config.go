package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionDuration        time.Duration
	SessionCleanupInterval time.Duration
	BcryptCost             int

	// Rate Limit (1分あたり)
	RateLimitLogin   int
	RateLimitGeneral int

	// Chat
	ChatRatePerSecond float64
	ChatBurst         int
	ChatMaxLength     int

	// WebSocket
	WSWriteWait      time.Duration
	WSPongWait       time.Duration
	WSMaxMessageSize int64
	WSSendBuffer     int

	// Seed
	SeedAdminEmail    string
	SeedAdminPassword string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string

	// TrustProxyHeaders がtrueの場合のみX-Forwarded-For/X-Real-IPを接続元IPとして採用する。
	TrustProxyHeaders bool

	// WorkerMetricsPort はworkerモードで/metricsを公開するポート。空なら公開しない。
	WorkerMetricsPort string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionDuration = getEnvDuration("SESSION_DURATION", 8*time.Hour)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", time.Hour)
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.ChatRatePerSecond = getEnvFloat("CHAT_RATE_PER_SECOND", 2)
	cfg.ChatBurst = getEnvInt("CHAT_BURST", 5)
	cfg.ChatMaxLength = getEnvInt("CHAT_MAX_LENGTH", 500)
	cfg.WSWriteWait = getEnvDuration("WS_WRITE_WAIT", 10*time.Second)
	cfg.WSPongWait = getEnvDuration("WS_PONG_WAIT", 60*time.Second)
	cfg.WSMaxMessageSize = getEnvInt64("WS_MAX_MESSAGE_SIZE", 4096)
	cfg.WSSendBuffer = getEnvInt("WS_SEND_BUFFER", 256)
	cfg.SeedAdminEmail = getEnvString("SEED_ADMIN_EMAIL", "")
	cfg.SeedAdminPassword = getEnvString("SEED_ADMIN_PASSWORD", "")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")
	cfg.TrustProxyHeaders = getEnvBool("TRUST_PROXY_HEADERS", false)
	cfg.WorkerMetricsPort = getEnvString("WORKER_METRICS_PORT", "9091")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}
