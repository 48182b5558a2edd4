package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/comenta/internal/metrics"
	"github.com/hitoshi/comenta/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Pool      EnginePool
	Counts    CountsFetcher
	RSSReader RSSPreviewer

	DefaultHost       string
	ThreadCSS         string
	CORSAllowedOrigin string
	Logger            *slog.Logger
	RateLimiter       *middleware.RateLimiter
	Gatherer          prometheus.Gatherer
}

// NewRouter は埋め込みAPIのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS
//
// 死活確認と/metricsはCORSの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(deps.Logger))
	r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	h := NewEmbedHandler(deps.Pool, deps.Counts, deps.RSSReader, deps.DefaultHost, deps.ThreadCSS)

	// --- 運用ルート ---
	r.Get("/healthz", Healthz)
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- 埋め込みAPI ---
	// ウィジェットは外部サイトのページから呼ぶためCORSを通す
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

		r.Route("/embed", func(r chi.Router) {
			r.Route("/thread", func(r chi.Router) {
				r.Get("/", h.GetThread)
				r.Post("/reload", h.ReloadThread)
				r.Put("/sort", h.SetSort)
				r.Delete("/error", h.DismissError)
			})

			r.Route("/comments", func(r chi.Router) {
				r.Post("/", h.PostComment)

				r.Route("/{id}", func(r chi.Router) {
					r.Put("/", h.PutComment)
					r.Delete("/", h.DeleteComment)
					r.Post("/moderate", h.ModerateComment)
					r.Post("/sticky", h.StickyComment)
					r.Post("/vote", h.VoteComment)
				})
			})

			// 件数一括取得は外部サイトの一覧ページから叩かれるため、
			// 専用のレート制限をかける
			if deps.RateLimiter != nil {
				r.With(deps.RateLimiter.Middleware()).Post("/counts", h.PostCounts)
			} else {
				r.Post("/counts", h.PostCounts)
			}

			r.Get("/rss", h.GetRSSPreview)
			r.Put("/page/readonly", h.PutReadonly)
		})
	})

	return r
}
