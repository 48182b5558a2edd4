package embed

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/hitoshi/comenta/internal/security"
)

// maxStylesheetSize は代替スタイルシートの最大サイズ（512KB）。
const maxStylesheetSize = 512 * 1024

// StylesheetLoader はcss-overrideで指定された代替スタイルシートを取得する。
// URLはページ埋め込み側が任意に指定できるため、SSRFガード経由で取得する。
type StylesheetLoader struct {
	guard   security.SSRFGuardService
	logger  *slog.Logger
	timeout time.Duration
}

// NewStylesheetLoader はStylesheetLoaderを生成する。
func NewStylesheetLoader(guard security.SSRFGuardService, logger *slog.Logger, timeout time.Duration) *StylesheetLoader {
	return &StylesheetLoader{
		guard:   guard,
		logger:  logger,
		timeout: timeout,
	}
}

// Load はスタイルシートを取得してCSS文字列を返す。
// CSSの読み込み失敗はコメント表示を妨げないため、
// 失敗時は空文字列を返す（ログのみ）。
func (l *StylesheetLoader) Load(ctx context.Context, cssURL string) string {
	if cssURL == "" {
		return ""
	}

	if err := l.guard.ValidateURL(cssURL); err != nil {
		l.logger.Warn("スタイルシート取得: SSRFブロック",
			slog.String("url", cssURL),
			slog.String("error", err.Error()),
		)
		return ""
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, cssURL, nil)
	if err != nil {
		l.logger.Warn("スタイルシート取得: リクエスト作成失敗",
			slog.String("url", cssURL),
			slog.String("error", err.Error()),
		)
		return ""
	}
	req.Header.Set("User-Agent", "Comenta-Embed/1.0")

	resp, err := l.guard.NewSafeClient(l.timeout).Do(req)
	if err != nil {
		l.logger.Warn("スタイルシート取得: HTTPリクエスト失敗",
			slog.String("url", cssURL),
			slog.String("error", err.Error()),
		)
		return ""
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		l.logger.Warn("スタイルシート取得: HTTPステータス異常",
			slog.String("url", cssURL),
			slog.Int("status", resp.StatusCode),
		)
		return ""
	}

	// HTMLのエラーページ等をスタイルとして取り込まない
	if ct := contentMediaType(resp.Header.Get("Content-Type")); ct != "" && ct != "text/css" && ct != "text/plain" {
		l.logger.Warn("スタイルシート取得: CSS以外のContent-Type",
			slog.String("url", cssURL),
			slog.String("contentType", ct),
		)
		return ""
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxStylesheetSize+1))
	if err != nil {
		l.logger.Warn("スタイルシート取得: レスポンス読み取り失敗",
			slog.String("url", cssURL),
			slog.String("error", err.Error()),
		)
		return ""
	}
	if len(body) > maxStylesheetSize {
		l.logger.Warn("スタイルシート取得: サイズ超過",
			slog.String("url", cssURL),
			slog.Int("size", len(body)),
		)
		return ""
	}

	return string(body)
}

// contentMediaType はContent-Typeヘッダーからメディアタイプを抽出する。
func contentMediaType(contentType string) string {
	if contentType == "" {
		return ""
	}
	parts := strings.SplitN(contentType, ";", 2)
	return strings.TrimSpace(strings.ToLower(parts[0]))
}
