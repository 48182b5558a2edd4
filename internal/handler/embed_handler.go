// Package handler は埋め込みウィジェット向けのHTTPハンドラーを提供する。
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/comenta/internal/embed"
	"github.com/hitoshi/comenta/internal/middleware"
	"github.com/hitoshi/comenta/internal/model"
	"github.com/hitoshi/comenta/internal/rss"
)

// EnginePool はハンドラーが必要とするエンジンプールのインターフェース。
type EnginePool interface {
	Acquire(ctx context.Context, host, path string) (*embed.Engine, error)
}

// CountsFetcher は件数一括取得のインターフェース。
type CountsFetcher interface {
	CommentCount(ctx context.Context, host string, paths []string) (map[string]int, error)
}

// RSSPreviewer はコメントRSSプレビューのインターフェース。
type RSSPreviewer interface {
	Fetch(ctx context.Context, feedURL string) ([]rss.Entry, error)
}

// EmbedHandler は埋め込みウィジェットのHTTPハンドラー。
// ページ単位のエンジンをプールから引き、スレッドの描画と操作を仲介する。
type EmbedHandler struct {
	pool   EnginePool
	counts CountsFetcher
	rss    RSSPreviewer
	host   string // 既定のドメイン。リクエストのhostパラメータ省略時に使う
	css    string // css-overrideで取得した代替スタイルシート（空なら既定CSS）
}

// NewEmbedHandler はEmbedHandlerを生成する。
func NewEmbedHandler(pool EnginePool, counts CountsFetcher, rssReader RSSPreviewer, defaultHost, threadCSS string) *EmbedHandler {
	return &EmbedHandler{
		pool:   pool,
		counts: counts,
		rss:    rssReader,
		host:   defaultHost,
		css:    threadCSS,
	}
}

// pageOf はリクエストからドメインとパスを解決する。
func (h *EmbedHandler) pageOf(r *http.Request) (host, path string) {
	host = r.URL.Query().Get("host")
	if host == "" {
		host = h.host
	}
	path = r.URL.Query().Get("path")
	if path == "" {
		path = "/"
	}
	return host, path
}

// engineOf はリクエストが指すページのエンジンを取得する。
func (h *EmbedHandler) engineOf(w http.ResponseWriter, r *http.Request) *embed.Engine {
	host, path := h.pageOf(r)
	engine, err := h.pool.Acquire(r.Context(), host, path)
	if err != nil {
		middleware.WriteError(w, err)
		return nil
	}
	return engine
}

// threadResponse はスレッド取得のレスポンス。
type threadResponse struct {
	HTML     string          `json:"html"`
	CSS      string          `json:"css,omitempty"`
	Count    int             `json:"count"`
	PageInfo *model.PageInfo `json:"pageInfo"`
	Error    *bannerError    `json:"error,omitempty"`
}

// bannerError はエラーバナーに表示する内容。
type bannerError struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// GetThread はコメントツリーの描画結果を返す。
// GET /embed/thread?host=&path=
func (h *EmbedHandler) GetThread(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	resp := threadResponse{
		HTML:     engine.RenderHTML(),
		CSS:      h.css,
		Count:    engine.Count(),
		PageInfo: engine.PageInfo(),
	}
	if apiErr := engine.LastError(); apiErr != nil {
		resp.Error = &bannerError{Code: apiErr.Code, Message: apiErr.Message, Category: apiErr.Category}
	}
	writeJSON(w, http.StatusOK, resp)
}

// DismissError はエラーバナーを消す。
// DELETE /embed/thread/error?host=&path=
func (h *EmbedHandler) DismissError(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}
	engine.DismissError()
	w.WriteHeader(http.StatusNoContent)
}

// ReloadThread はページ+コメントを丸ごと再取得する。
// POST /embed/thread/reload?host=&path=
func (h *EmbedHandler) ReloadThread(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}
	if err := engine.Reload(r.Context()); err != nil {
		middleware.WriteError(w, err)
		return
	}
	h.GetThread(w, r)
}

// setSortRequest は並び順変更リクエストのボディ。
type setSortRequest struct {
	Sort string `json:"sort"`
}

// SetSort は並び順を変更して再描画する。
// PUT /embed/thread/sort?host=&path=
func (h *EmbedHandler) SetSort(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	var req setSortRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "リクエストボディの解析に失敗しました。", ""))
		return
	}

	switch model.CommentSort(req.Sort) {
	case model.SortTimeAsc, model.SortTimeDesc, model.SortScoreAsc, model.SortScoreDesc:
		engine.SetSort(model.CommentSort(req.Sort))
	default:
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "不正な並び順です。", ""))
		return
	}
	h.GetThread(w, r)
}

// newCommentRequest は新規コメント投稿リクエストのボディ。
type newCommentRequest struct {
	ParentID     string `json:"parentId,omitempty"`
	Markdown     string `json:"markdown"`
	AuthorName   string `json:"authorName,omitempty"`
	Unregistered bool   `json:"unregistered"`
}

// PostComment は新規コメントを投稿する。
// POST /embed/comments?host=&path=
func (h *EmbedHandler) PostComment(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	var req newCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "リクエストボディの解析に失敗しました。", ""))
		return
	}

	comment, err := engine.SubmitComment(r.Context(), req.ParentID, req.Markdown, req.AuthorName, req.Unregistered)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"comment": comment})
}

// editCommentRequest はコメント編集リクエストのボディ。
type editCommentRequest struct {
	Markdown string `json:"markdown"`
}

// PutComment はコメント本文を差し替える。
// PUT /embed/comments/{id}?host=&path=
func (h *EmbedHandler) PutComment(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	var req editCommentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "リクエストボディの解析に失敗しました。", ""))
		return
	}

	if err := engine.EditComment(r.Context(), chi.URLParam(r, "id"), req.Markdown); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteComment はコメントを削除する。
// DELETE /embed/comments/{id}?host=&path=
func (h *EmbedHandler) DeleteComment(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}
	if err := engine.DeleteComment(r.Context(), chi.URLParam(r, "id")); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// moderateRequest はモデレーションリクエストのボディ。
type moderateRequest struct {
	Approve bool `json:"approve"`
}

// ModerateComment はコメントを承認または却下する。
// POST /embed/comments/{id}/moderate?host=&path=
func (h *EmbedHandler) ModerateComment(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	var req moderateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "リクエストボディの解析に失敗しました。", ""))
		return
	}

	if err := engine.ModerateComment(r.Context(), chi.URLParam(r, "id"), req.Approve); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// stickyRequest はスティッキー切り替えリクエストのボディ。
type stickyRequest struct {
	Sticky bool `json:"sticky"`
}

// StickyComment はルートコメントのスティッキー状態を切り替える。
// POST /embed/comments/{id}/sticky?host=&path=
func (h *EmbedHandler) StickyComment(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	var req stickyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "リクエストボディの解析に失敗しました。", ""))
		return
	}

	if err := engine.StickyComment(r.Context(), chi.URLParam(r, "id"), req.Sticky); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// voteRequest は投票リクエストのボディ。
type voteRequest struct {
	Direction int `json:"direction"`
}

// VoteComment はコメントに投票する。
// POST /embed/comments/{id}/vote?host=&path=
func (h *EmbedHandler) VoteComment(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "リクエストボディの解析に失敗しました。", ""))
		return
	}
	if req.Direction < -1 || req.Direction > 1 {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "不正な投票方向です。", ""))
		return
	}

	if err := engine.VoteComment(r.Context(), chi.URLParam(r, "id"), req.Direction); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// countsRequest は件数一括取得リクエストのボディ。
type countsRequest struct {
	Host  string   `json:"host"`
	Paths []string `json:"paths"`
}

// PostCounts は複数パスのコメント件数を一括で返す。
// POST /embed/counts
func (h *EmbedHandler) PostCounts(w http.ResponseWriter, r *http.Request) {
	var req countsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "リクエストボディの解析に失敗しました。", ""))
		return
	}
	if req.Host == "" {
		req.Host = h.host
	}

	counts, err := h.counts.CommentCount(r.Context(), req.Host, req.Paths)
	if err != nil {
		middleware.WriteError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commentCounts": counts})
}

// readonlyRequest は読み取り専用切り替えリクエストのボディ。
type readonlyRequest struct {
	IsReadonly bool `json:"isReadonly"`
}

// PutReadonly はページの読み取り専用フラグを切り替える。
// PUT /embed/page/readonly?host=&path=
func (h *EmbedHandler) PutReadonly(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	var req readonlyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadRequest, "", "リクエストボディの解析に失敗しました。", ""))
		return
	}

	if err := engine.SetPageReadonly(r.Context(), req.IsReadonly); err != nil {
		middleware.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetRSSPreview はページのコメントRSSのプレビューを返す。
// GET /embed/rss?host=&path=
func (h *EmbedHandler) GetRSSPreview(w http.ResponseWriter, r *http.Request) {
	engine := h.engineOf(w, r)
	if engine == nil {
		return
	}

	page := engine.PageInfo()
	if page == nil || !page.EnableRSS || page.RSSURL == "" {
		middleware.WriteError(w, model.NewAPIError(http.StatusNotFound, "", "このページのRSSは無効です。", ""))
		return
	}

	entries, err := h.rss.Fetch(r.Context(), page.RSSURL)
	if err != nil {
		middleware.WriteError(w, model.NewAPIError(http.StatusBadGateway, "", "コメントRSSの取得に失敗しました。", ""))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

// Healthz はプロセスの死活確認に応答する。
// GET /healthz
func Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
