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
// ウィジェット属性（page-id、css-override、max-level等）に相当する項目もここに集約する。
type Config struct {
	// Backend
	BackendBaseURL string // コメントバックエンドのベースURL（必須）
	Host           string // 既定のドメイン（ウィジェットのホスト相当、必須）

	// Widget attributes
	PageID      string // ページパスの上書き（page-id属性相当、空なら各リクエストのパス）
	CSSOverride string // 代替スタイルシートURL。リテラル "false" でCSS無効化
	NoFonts     bool   // ルートフォント継承の無効化（no-fonts属性相当）
	MaxLevel    int    // ネスト表示の上限段数（max-level属性相当、デフォルト10）
	LiveUpdate  bool   // ライブ更新ソケットの有効化（live-update属性相当）
	Lang        string // UI言語の上書き（lang属性相当）
	AutoSSO     bool   // ロード後の非対話型SSO起動（auto-non-interactive-sso属性相当）

	// HTTP client
	FetchTimeout time.Duration
	CSSTimeout   time.Duration

	// Live update
	LiveFetchRate  float64 // ライブ更新起点のコメント再取得レート（req/sec）
	LiveFetchBurst int

	// Server
	ServerPort string

	// Engine pool
	EngineIdleTTL time.Duration // アイドルエンジンを閉じるまでの時間
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.BackendBaseURL = os.Getenv("COMENTA_BACKEND_URL")
	if cfg.BackendBaseURL == "" {
		missing = append(missing, "COMENTA_BACKEND_URL")
	}

	cfg.Host = os.Getenv("COMENTA_HOST")
	if cfg.Host == "" {
		missing = append(missing, "COMENTA_HOST")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.PageID = getEnvString("COMENTA_PAGE_ID", "")
	cfg.CSSOverride = getEnvString("COMENTA_CSS_OVERRIDE", "")
	cfg.NoFonts = getEnvBool("COMENTA_NO_FONTS", false)
	cfg.MaxLevel = getEnvInt("COMENTA_MAX_LEVEL", 10)
	cfg.LiveUpdate = getEnvBool("COMENTA_LIVE_UPDATE", true)
	cfg.Lang = getEnvString("COMENTA_LANG", "en")
	cfg.AutoSSO = getEnvBool("COMENTA_AUTO_SSO", false)
	cfg.FetchTimeout = getEnvDuration("COMENTA_FETCH_TIMEOUT", 10*time.Second)
	cfg.CSSTimeout = getEnvDuration("COMENTA_CSS_TIMEOUT", 5*time.Second)
	cfg.LiveFetchRate = getEnvFloat("COMENTA_LIVE_FETCH_RATE", 10)
	cfg.LiveFetchBurst = getEnvInt("COMENTA_LIVE_FETCH_BURST", 20)
	cfg.ServerPort = getEnvString("COMENTA_SERVER_PORT", "8080")
	cfg.EngineIdleTTL = getEnvDuration("COMENTA_ENGINE_IDLE_TTL", 10*time.Minute)

	// max-levelは1未満を許容しない
	if cfg.MaxLevel < 1 {
		cfg.MaxLevel = 10
	}

	return cfg, nil
}

// CSSDisabled はcss-overrideにリテラル "false" が指定されCSSが無効化されているかを返す。
func (c *Config) CSSDisabled() bool {
	return c.CSSOverride == "false"
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

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	// ウィジェット属性と同じく "false" / "true" のリテラルで判定する
	switch strings.ToLower(v) {
	case "true", "1":
		return true
	case "false", "0":
		return false
	default:
		return defaultVal
	}
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
