// Package apiclient はコメントバックエンドの埋め込みAPIクライアントを提供する。
// ページロード・コメントCRUD・モデレーション・投票・件数取得の各エンドポイントを呼び出す。
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"

	"github.com/hitoshi/comenta/internal/model"
)

const (
	// embedBasePath は埋め込みAPIのベースパス。
	embedBasePath = "/api/embed"
	// sessionHeader は匿名セッショントークンを運ぶヘッダ。
	sessionHeader = "X-Comenta-Session"
	// userAgent はAPIリクエストのUser-Agent。
	userAgent = "Comenta-Embed/1.0"
)

// Client はコメントバックエンドの埋め込みAPIクライアント。
// インスタンス生成時に匿名セッショントークンを発番し、全リクエストに付与する。
// バックエンドはこのトークンで認証セッションと投票の帰属を追跡する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	baseURL    string
	session    string
}

// NewClient はClient の新しいインスタンスを生成する。
func NewClient(httpClient *http.Client, logger *slog.Logger, baseURL string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		baseURL:    strings.TrimRight(baseURL, "/"),
		session:    uuid.NewString(),
	}
}

// SessionToken は発番済みの匿名セッショントークンを返す。
func (c *Client) SessionToken() string { return c.session }

// CommentListResult はページロードの完全なレスポンス。
type CommentListResult struct {
	PageInfo   *model.PageInfo    `json:"pageInfo"`
	Comments   []*model.Comment   `json:"comments"`
	Commenters []*model.Commenter `json:"commenters"`
	Principal  *model.Principal   `json:"principal,omitempty"`
}

// CommentList はページのコメント・投稿者・ページ設定を一括取得する。
func (c *Client) CommentList(ctx context.Context, host, path string) (*CommentListResult, error) {
	body := map[string]string{"host": host, "path": path}
	var result CommentListResult
	if err := c.doJSON(ctx, http.MethodPost, "/comments", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CommentNewRequest は新規コメント投稿のリクエスト。
type CommentNewRequest struct {
	Host         string `json:"host"`
	Path         string `json:"path"`
	Unregistered bool   `json:"unregistered"`
	AuthorName   string `json:"authorName,omitempty"`
	ParentID     string `json:"parentId,omitempty"`
	Markdown     string `json:"markdown"`
}

// CommentNewResult は新規コメント投稿のレスポンス。
type CommentNewResult struct {
	Comment   *model.Comment   `json:"comment"`
	Commenter *model.Commenter `json:"commenter,omitempty"`
}

// CommentNew は新規コメントを投稿する。
func (c *Client) CommentNew(ctx context.Context, req *CommentNewRequest) (*CommentNewResult, error) {
	var result CommentNewResult
	if err := c.doJSON(ctx, http.MethodPut, "/comments", req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CommentUpdate は既存コメントの本文を差し替える。
// バックエンドは再レンダリング済みのHTMLを含む更新後レコードを返す。
func (c *Client) CommentUpdate(ctx context.Context, commentID, markdown string) (*model.Comment, error) {
	body := map[string]string{"markdown": markdown}
	var result struct {
		Comment *model.Comment `json:"comment"`
	}
	if err := c.doJSON(ctx, http.MethodPut, "/comments/"+url.PathEscape(commentID), body, &result); err != nil {
		return nil, err
	}
	return result.Comment, nil
}

// CommentDelete はコメントを削除する。
func (c *Client) CommentDelete(ctx context.Context, commentID string) error {
	return c.doJSON(ctx, http.MethodDelete, "/comments/"+url.PathEscape(commentID), nil, nil)
}

// CommentModerate はコメントを承認または却下する。
func (c *Client) CommentModerate(ctx context.Context, commentID string, approve bool) error {
	body := map[string]bool{"approve": approve}
	return c.doJSON(ctx, http.MethodPost, "/comments/"+url.PathEscape(commentID)+"/moderate", body, nil)
}

// CommentSticky はルートコメントのスティッキー状態を切り替える。
func (c *Client) CommentSticky(ctx context.Context, commentID string, sticky bool) error {
	body := map[string]bool{"sticky": sticky}
	return c.doJSON(ctx, http.MethodPost, "/comments/"+url.PathEscape(commentID)+"/sticky", body, nil)
}

// CommentVote はコメントに投票する。directionは-1/0/1で、0は取り消し。
// バックエンドが計算した新しいスコアを返す。
func (c *Client) CommentVote(ctx context.Context, commentID string, direction int) (int, error) {
	body := map[string]int{"direction": direction}
	var result struct {
		Score int `json:"score"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/comments/"+url.PathEscape(commentID)+"/vote", body, &result); err != nil {
		return 0, err
	}
	return result.Score, nil
}

// CommentGetResult は単一コメント取得のレスポンス。
// 投稿者が未知の場合commenterは省略される。
type CommentGetResult struct {
	Comment   *model.Comment   `json:"comment"`
	Commenter *model.Commenter `json:"commenter,omitempty"`
}

// CommentGet は単一コメントを取得する。ライブ更新のID指定フェッチで使用する。
func (c *Client) CommentGet(ctx context.Context, commentID string) (*CommentGetResult, error) {
	var result CommentGetResult
	if err := c.doJSON(ctx, http.MethodGet, "/comments/"+url.PathEscape(commentID), nil, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CommentCount は複数パスのコメント件数を一括取得する。
// レスポンスに含まれないパスは未知のページであり、結果マップにも含めない
// （0件の既知ページは明示的に0として含まれる）。
func (c *Client) CommentCount(ctx context.Context, host string, paths []string) (map[string]int, error) {
	if len(paths) == 0 {
		return make(map[string]int), nil
	}

	body := map[string]any{"host": host, "paths": paths}
	var result struct {
		CommentCounts map[string]int `json:"commentCounts"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/comments/counts", body, &result); err != nil {
		return nil, err
	}
	if result.CommentCounts == nil {
		return make(map[string]int), nil
	}
	return result.CommentCounts, nil
}

// PageUpdate はページの読み取り専用フラグを更新する。モデレーター専用。
func (c *Client) PageUpdate(ctx context.Context, pageID string, readonly bool) error {
	body := map[string]bool{"isReadonly": readonly}
	return c.doJSON(ctx, http.MethodPut, "/page/"+url.PathEscape(pageID), body, nil)
}

// errorResponse はバックエンドの統一エラーレスポンス。
type errorResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Details string `json:"details"`
}

// doJSON はJSONリクエストを実行してレスポンスをデコードする共通ルーチン。
// ネットワークエラーはtransportカテゴリのAPIErrorに、2xx以外のステータスは
// エラーIDを対応表で引いたAPIErrorに変換する。outがnilの場合はボディを捨てる。
func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		encoded, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("リクエストボディのエンコードに失敗しました: %w", err)
		}
		reqBody = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+embedBasePath+path, reqBody)
	if err != nil {
		return fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set(sessionHeader, c.session)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("バックエンドAPIの呼び出しに失敗しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		// コンテキストのキャンセルはそのまま伝播させる
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return model.NewTransportError(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var er errorResponse
		// エラーボディがJSONでなくてもAPIErrorの生成は続行する
		_ = json.Unmarshal(body, &er)
		apiErr := model.NewAPIError(resp.StatusCode, er.ID, er.Message, string(body))
		c.logger.Error("バックエンドAPIがエラーステータスを返しました",
			slog.String("method", method),
			slog.String("path", path),
			slog.Int("http_status", resp.StatusCode),
			slog.String("error_id", apiErr.Code),
		)
		return apiErr
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}
	return nil
}
