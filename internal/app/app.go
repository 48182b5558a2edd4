package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/comenta/internal/apiclient"
	"github.com/hitoshi/comenta/internal/config"
	"github.com/hitoshi/comenta/internal/embed"
	"github.com/hitoshi/comenta/internal/handler"
	"github.com/hitoshi/comenta/internal/logger"
	"github.com/hitoshi/comenta/internal/metrics"
	"github.com/hitoshi/comenta/internal/middleware"
	"github.com/hitoshi/comenta/internal/rss"
	"github.com/hitoshi/comenta/internal/security"
)

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
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("COMENTA_SERVER_PORT")
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
		slog.String("backend_url", cfg.BackendBaseURL),
		slog.String("host", cfg.Host),
	)

	switch cmd {
	case CommandRender:
		return runRender(w, cfg)
	default:
		return runServe(cfg)
	}
}

// runServe は埋め込みAPIサーバーモードで起動する。
// 全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. バックエンドAPIクライアント
	api := apiclient.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		slog.Default(),
		cfg.BackendBaseURL,
	)

	// 2. メトリクスコレクタ
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 3. エンジンプール
	// アイドルエンジンの回収はサーバーのライフタイムに紐付ける
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sanitizer := security.NewCommentSanitizer()
	pool := embed.NewPool(cfg, api, collector, sanitizer, slog.Default())
	defer pool.Close()
	go pool.RunEviction(ctx)

	// 4. セキュリティサービスとRSSリーダー
	ssrfGuard := security.NewSSRFGuard()
	rssReader := rss.NewReader(
		ssrfGuard.NewSafeClient(cfg.FetchTimeout),
		ssrfGuard,
		slog.Default(),
	)

	// 5. css-overrideの代替スタイルシートは起動時に1回取得する
	var threadCSS string
	if cfg.CSSOverride != "" && !cfg.CSSDisabled() {
		loader := embed.NewStylesheetLoader(ssrfGuard, slog.Default(), cfg.CSSTimeout)
		cssCtx, cssCancel := context.WithTimeout(ctx, cfg.CSSTimeout)
		threadCSS = loader.Load(cssCtx, cfg.CSSOverride)
		cssCancel()
	}

	// 6. レートリミッター
	rateLimiter := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig(), slog.Default())
	defer rateLimiter.Stop()

	// 7. ルーターの構築
	router := handler.NewRouter(&handler.RouterDeps{
		Pool:      pool,
		Counts:    api,
		RSSReader: rssReader,

		DefaultHost:       cfg.Host,
		ThreadCSS:         threadCSS,
		CORSAllowedOrigin: "*",
		Logger:            slog.Default(),
		RateLimiter:       rateLimiter,
		Gatherer:          registry,
	})

	// 8. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("embed API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down embed API server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("embed API server stopped gracefully")
	return nil
}

// runRender は1ページのコメントツリーを1回だけ読み込み、描画結果を書き出す。
// 埋め込み出力の確認やバッチでの静的生成に使う。
func runRender(w io.Writer, cfg *config.Config) error {
	api := apiclient.NewClient(
		&http.Client{Timeout: cfg.FetchTimeout},
		slog.Default(),
		cfg.BackendBaseURL,
	)

	// ライブ更新ソケットは張らない
	renderCfg := *cfg
	renderCfg.LiveUpdate = false

	path := cfg.PageID
	if path == "" {
		path = "/"
	}

	engine := embed.NewEngine(&renderCfg, api, nil, security.NewCommentSanitizer(), slog.Default(), cfg.Host, path)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout)
	defer cancel()

	if err := engine.Load(ctx); err != nil {
		return fmt.Errorf("failed to load comments: %w", err)
	}

	if _, err := fmt.Fprintln(w, engine.RenderHTML()); err != nil {
		return fmt.Errorf("failed to write rendered thread: %w", err)
	}
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
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
