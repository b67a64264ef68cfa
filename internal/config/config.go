package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// webhookPath はeBayアカウント削除通知を受け付けるパス。
const webhookPath = "/auth/ebay_market_delete/"

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Session
	SessionMaxAge int

	// eBay
	EbayVerificationToken string
	EbayAuthToken         string
	EbayEndpointURL       string
	EbayAPIURL            string

	// AI
	GenAIAPIKey string
	AIModel     string

	// Recommend
	RecommendWorkers   int
	RecommendQueueSize int
	RecommendTimeout   time.Duration

	// Rate Limit（1分あたりのリクエスト数）
	RateLimitGeneral   int
	RateLimitRecommend int

	// Moderation
	ContentFilterPath string

	// Cleanup
	CleanupInterval time.Duration

	// Logging
	LogLevel string

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS（カンマ区切りの許可Origin）
	CORSAllowedOrigin string

	// 転送ヘッダーを信頼するプロキシ（IPまたはCIDR）
	TrustedProxies []netip.Prefix
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

	cfg.EbayVerificationToken = os.Getenv("EBAY_VERIFICATION_TOKEN")
	if cfg.EbayVerificationToken == "" {
		missing = append(missing, "EBAY_VERIFICATION_TOKEN")
	}

	cfg.EbayAuthToken = os.Getenv("EBAY_BASE64_AUTHORIZATION_TOKEN")
	if cfg.EbayAuthToken == "" {
		missing = append(missing, "EBAY_BASE64_AUTHORIZATION_TOKEN")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	proxies, err := parseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, err
	}
	cfg.TrustedProxies = proxies

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.EbayEndpointURL = getEnvString("EBAY_ENDPOINT_URL", strings.TrimSuffix(cfg.BaseURL, "/")+webhookPath)
	cfg.EbayAPIURL = getEnvString("EBAY_API_URL", "https://api.ebay.com/")
	cfg.GenAIAPIKey = getEnvString("GENAI_API_KEY", "")
	cfg.AIModel = getEnvString("AI_MODEL", "gemini-2.0-flash")
	cfg.RecommendWorkers = getEnvInt("RECOMMEND_WORKERS", 4)
	cfg.RecommendQueueSize = getEnvInt("RECOMMEND_QUEUE_SIZE", 64)
	cfg.RecommendTimeout = getEnvDuration("RECOMMEND_TIMEOUT", 60*time.Second)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitRecommend = getEnvInt("RATE_LIMIT_RECOMMEND", 5)
	cfg.ContentFilterPath = getEnvString("CONTENT_FILTER_PATH", "")
	cfg.CleanupInterval = getEnvDuration("CLEANUP_INTERVAL", time.Hour)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

// parseTrustedProxies はカンマ区切りのIPアドレスまたはCIDRを解析する。
func parseTrustedProxies(s string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if strings.Contains(part, "/") {
			p, err := netip.ParsePrefix(part)
			if err != nil {
				return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", part, err)
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(part)
		if err != nil {
			return nil, fmt.Errorf("invalid TRUSTED_PROXIES entry %q: %w", part, err)
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

// getEnvInt は正の整数を読み込む。不正値や0以下はデフォルト値になる。
func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil || i <= 0 {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}
