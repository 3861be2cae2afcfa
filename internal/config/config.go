package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// OAuthCredentials は1プロバイダー分のOAuthクライアント設定を保持する。
type OAuthCredentials struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// Configured はプロバイダーが利用可能な設定を持つかどうかを返す。
// 未設定のプロバイダーはルーターに登録されない（起動時に警告ログのみ）。
func (c OAuthCredentials) Configured() bool {
	return c.ClientID != "" && c.ClientSecret != "" && c.RedirectURL != ""
}

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Environment
	Environment string // "production" または "development"

	// Database
	DatabaseURL string

	// OAuth
	Google   OAuthCredentials
	Facebook OAuthCredentials
	GitHub   OAuthCredentials

	// Unsplash
	UnsplashAccessKey string
	UnsplashTimeout   time.Duration

	// OAuthのトークン交換・プロフィール取得のタイムアウト
	OAuthTimeout time.Duration

	// Session
	SessionMaxAge          int
	SessionCleanupInterval time.Duration

	// Rate Limit
	RateLimitGeneral int
	RateLimitSearch  int

	// Server
	ServerPort string
	BaseURL    string

	// Client
	ClientURL string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// IsDevelopment は開発モードかどうかを返す。
// 開発モードではエラーレスポンスに詳細を含める。
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
// OAuthプロバイダーの認証情報は任意であり、未設定のプロバイダーは無効化される。
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

	cfg.UnsplashAccessKey = os.Getenv("UNSPLASH_ACCESS_KEY")
	if cfg.UnsplashAccessKey == "" {
		missing = append(missing, "UNSPLASH_ACCESS_KEY")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// OAuth credentials (optional per provider)
	cfg.Google = OAuthCredentials{
		ClientID:     os.Getenv("GOOGLE_CLIENT_ID"),
		ClientSecret: os.Getenv("GOOGLE_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GOOGLE_REDIRECT_URL"),
	}
	cfg.Facebook = OAuthCredentials{
		ClientID:     os.Getenv("FACEBOOK_CLIENT_ID"),
		ClientSecret: os.Getenv("FACEBOOK_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("FACEBOOK_REDIRECT_URL"),
	}
	cfg.GitHub = OAuthCredentials{
		ClientID:     os.Getenv("GITHUB_CLIENT_ID"),
		ClientSecret: os.Getenv("GITHUB_CLIENT_SECRET"),
		RedirectURL:  os.Getenv("GITHUB_REDIRECT_URL"),
	}

	// Optional fields with defaults
	cfg.Environment = getEnvString("APP_ENV", "production")
	cfg.UnsplashTimeout = getEnvDuration("UNSPLASH_TIMEOUT", 10*time.Second)
	cfg.OAuthTimeout = getEnvDuration("OAUTH_TIMEOUT", 10*time.Second)
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.SessionCleanupInterval = getEnvDuration("SESSION_CLEANUP_INTERVAL", 1*time.Hour)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitSearch = getEnvInt("RATE_LIMIT_SEARCH", 30)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.ClientURL = getEnvString("CLIENT_URL", "http://localhost:3000")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", cfg.ClientURL)

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
