// Package embed はページ1枚分のコメントツリーの状態とライブ更新を統括する
// エンジンを提供する。ロード・再ロード・ローカル変更・プッシュ通知の整合を
// 単一のエンジンインスタンスに集約する。
package embed

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/time/rate"

	"github.com/hitoshi/comenta/internal/apiclient"
	"github.com/hitoshi/comenta/internal/card"
	"github.com/hitoshi/comenta/internal/commentmap"
	"github.com/hitoshi/comenta/internal/config"
	"github.com/hitoshi/comenta/internal/liveupdate"
	"github.com/hitoshi/comenta/internal/metrics"
	"github.com/hitoshi/comenta/internal/model"
	"github.com/hitoshi/comenta/internal/security"
)

// State はエンジンのライフサイクル状態。
type State int

const (
	// StateDisconnected は未初期化または停止済み。
	StateDisconnected State = iota
	// StateLoading はページデータの取得中。
	StateLoading
	// StateReady はコメント描画済みでライブ更新が稼働中（有効時）。
	StateReady
)

// Engine はドメイン+パス1組のコメントツリーを所有するオーケストレーター。
//
// コメントの唯一の情報源はParentMapで、カードはRegistry経由でIDから引く。
// ローカル変更は必ずバックエンド呼び出しの成功後にマップへ反映する
// （楽観的更新はしない）。ライブ更新の受信とローカル変更は同じマップを
// 触るため、エンジン単位のミューテックスで直列化する。
type Engine struct {
	cfg       *config.Config
	api       *apiclient.Client
	logger    *slog.Logger
	collector metrics.MetricsCollector
	sanitizer security.CommentSanitizerService

	host string
	path string

	mu         sync.Mutex
	state      State
	pageInfo   *model.PageInfo
	principal  *model.Principal
	commenters map[string]*model.Commenter
	comments   *commentmap.ParentMap
	registry   *card.Registry
	rootEl     *html.Node
	rootCards  []*card.Card
	sort       model.CommentSort
	lastError  *model.APIError

	// lastOwnMutation はエンジン自身が最後に変更したコメントのID。
	// ライブ更新の自己エコー抑制に使う単一スロット。キューではないため、
	// エコーが戻る前の連続したローカル変更には対応しない。
	lastOwnMutation string

	// fetchLimiter はライブ更新起点のID指定フェッチのレート制限。
	fetchLimiter *rate.Limiter

	socketCancel context.CancelFunc
}

// NewEngine はEngine の新しいインスタンスを生成する。
// sanitizerがnilの場合は既定のコメントサニタイザーを使う。
func NewEngine(cfg *config.Config, api *apiclient.Client, collector metrics.MetricsCollector, sanitizer security.CommentSanitizerService, logger *slog.Logger, host, path string) *Engine {
	if sanitizer == nil {
		sanitizer = security.NewCommentSanitizer()
	}
	return &Engine{
		cfg:          cfg,
		api:          api,
		logger:       logger.With(slog.String("host", host), slog.String("path", path)),
		collector:    collector,
		sanitizer:    sanitizer,
		host:         host,
		path:         path,
		commenters:   make(map[string]*model.Commenter),
		comments:     commentmap.New(),
		registry:     card.NewRegistry(),
		fetchLimiter: rate.NewLimiter(rate.Limit(cfg.LiveFetchRate), cfg.LiveFetchBurst),
	}
}

// Load はページデータを取得してコメントツリーを構築し、
// ライブ更新が有効ならソケットを起動する。ソケットの生存期間はctxに束縛される。
func (e *Engine) Load(ctx context.Context) error {
	if err := e.Reload(ctx); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cfg.LiveUpdate && e.socketCancel == nil {
		socketCtx, cancel := context.WithCancel(ctx)
		e.socketCancel = cancel

		socket := liveupdate.NewSocket(
			websocketURL(e.cfg.BackendBaseURL), e.cfg.BackendBaseURL,
			e.host, e.path,
			e.HandleMessage, e.logger,
		)
		socket.OnReconnect = func() {
			if e.collector != nil {
				e.collector.RecordSocketReconnect()
			}
		}
		go socket.Run(socketCtx)
	}
	return nil
}

// Reload はページ+コメントを丸ごと再取得してツリーを作り直す。
// 初回ロード・ログイン/ログアウト後・読み取り専用切り替え後に呼ばれ、
// 折りたたみ状態などのローカルなUI状態はすべて失われる。
func (e *Engine) Reload(ctx context.Context) error {
	e.mu.Lock()
	e.state = StateLoading
	e.mu.Unlock()

	start := time.Now()
	result, err := e.api.CommentList(ctx, e.host, e.path)
	if err != nil {
		e.recordError(err)
		e.mu.Lock()
		e.state = StateDisconnected
		e.mu.Unlock()
		return err
	}
	if e.collector != nil {
		e.collector.RecordLoadLatency(time.Since(start))
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.pageInfo = result.PageInfo
	e.principal = result.Principal
	e.sort = result.PageInfo.DefaultSort
	for _, cm := range result.Commenters {
		e.commenters[cm.ID] = cm
	}
	for _, c := range result.Comments {
		c.HTML = e.sanitizer.Sanitize(c.HTML)
	}
	e.comments.Refill(result.Comments)
	e.renderComments()
	e.lastError = nil
	e.state = StateReady
	return nil
}

// State は現在のライフサイクル状態を返す。
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// PageInfo は現在のページ設定スナップショットを返す。ロード前はnil。
func (e *Engine) PageInfo() *model.PageInfo {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.pageInfo
}

// Count はルートから到達可能なコメントの総数を返す。
func (e *Engine) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.comments.Count()
}

// LastError は最後に記録されたAPIエラーを返す。エラーバナーの表示に使う。
func (e *Engine) LastError() *model.APIError {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastError
}

// DismissError はエラーバナーを消す。
func (e *Engine) DismissError() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastError = nil
}

// RenderHTML は現在のコメントツリーをHTML文字列にシリアライズする。
func (e *Engine) RenderHTML() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.rootEl == nil {
		return ""
	}
	return card.Render(e.rootEl)
}

// SetSort は並び順を変えて全面再描画する。
func (e *Engine) SetSort(s model.CommentSort) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sort = s
	e.renderComments()
}

// SubmitComment は新規コメントを投稿する。
// バックエンドの成功後にマップへ追加し、並び順が変わるため全面再描画する。
func (e *Engine) SubmitComment(ctx context.Context, parentID, markdown, authorName string, unregistered bool) (*model.Comment, error) {
	result, err := e.api.CommentNew(ctx, &apiclient.CommentNewRequest{
		Host:         e.host,
		Path:         e.path,
		Unregistered: unregistered,
		AuthorName:   authorName,
		ParentID:     parentID,
		Markdown:     markdown,
	})
	if err != nil {
		e.recordError(err)
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if result.Commenter != nil {
		e.commenters[result.Commenter.ID] = result.Commenter
	}
	result.Comment.HTML = e.sanitizer.Sanitize(result.Comment.HTML)
	e.comments.Add(result.Comment)
	e.lastOwnMutation = result.Comment.ID
	e.renderComments()
	return result.Comment, nil
}

// EditComment はコメント本文を差し替える。
// 並び順に影響しないため全面再描画せず、束縛中のカードだけを更新する。
func (e *Engine) EditComment(ctx context.Context, commentID, markdown string) error {
	updated, err := e.api.CommentUpdate(ctx, commentID, markdown)
	if err != nil {
		e.recordError(err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	replaced := e.comments.ReplaceComment(commentID, updated.ParentKey(), func(c *model.Comment) {
		c.Markdown = updated.Markdown
		c.HTML = e.sanitizer.Sanitize(updated.HTML)
		c.EditedTime = updated.EditedTime
		c.UserEdited = updated.UserEdited
	})
	e.lastOwnMutation = commentID
	if bound := e.registry.Lookup(commentID); bound != nil {
		bound.SetComment(replaced)
	}
	return nil
}

// DeleteComment はコメントを削除する。
// マップ上は削除フラグ付きレコードへの差し替えで表現し、子はそのまま残す。
func (e *Engine) DeleteComment(ctx context.Context, commentID string) error {
	if err := e.api.CommentDelete(ctx, commentID); err != nil {
		e.recordError(err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing := e.comments.FindByID(commentID)
	parentKey := model.RootParentKey
	if existing != nil {
		parentKey = existing.ParentKey()
	}

	userID := ""
	if e.principal != nil {
		userID = e.principal.ID
	}
	now := time.Now().UTC().Format(time.RFC3339)

	replaced := e.comments.ReplaceComment(commentID, parentKey, func(c *model.Comment) {
		c.IsDeleted = true
		c.Markdown = ""
		c.HTML = ""
		c.DeletedTime = now
		c.UserDeleted = userID
	})
	e.lastOwnMutation = commentID
	if bound := e.registry.Lookup(commentID); bound != nil {
		bound.SetComment(replaced)
	}
	return nil
}

// ModerateComment はコメントを承認または却下する。
func (e *Engine) ModerateComment(ctx context.Context, commentID string, approve bool) error {
	if err := e.api.CommentModerate(ctx, commentID, approve); err != nil {
		e.recordError(err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing := e.comments.FindByID(commentID)
	if existing == nil {
		return nil
	}

	userID := ""
	if e.principal != nil {
		userID = e.principal.ID
	}
	now := time.Now().UTC().Format(time.RFC3339)

	replaced := e.comments.ReplaceComment(commentID, existing.ParentKey(), func(c *model.Comment) {
		c.IsApproved = approve
		c.IsPending = false
		c.ModeratedTime = now
		c.UserModerated = userID
	})
	e.lastOwnMutation = commentID
	if bound := e.registry.Lookup(commentID); bound != nil {
		bound.SetComment(replaced)
	}
	return nil
}

// StickyComment はルートコメントのスティッキー状態を切り替える。
// 並び順が変わるため全面再描画する。
func (e *Engine) StickyComment(ctx context.Context, commentID string, sticky bool) error {
	if err := e.api.CommentSticky(ctx, commentID, sticky); err != nil {
		e.recordError(err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.comments.ReplaceComment(commentID, model.RootParentKey, func(c *model.Comment) {
		c.IsSticky = sticky
	})
	e.lastOwnMutation = commentID
	e.renderComments()
	return nil
}

// VoteComment はコメントに投票してスコアを更新する。
// スコア変動では再描画もハイライトもしない。
func (e *Engine) VoteComment(ctx context.Context, commentID string, direction int) error {
	if e.Principal() == nil {
		err := model.NewAPIError(401, model.ErrIDUnauthorized, "", "")
		e.recordError(err)
		return err
	}

	score, err := e.api.CommentVote(ctx, commentID, direction)
	if err != nil {
		e.recordError(err)
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	existing := e.comments.FindByID(commentID)
	if existing == nil {
		return nil
	}
	replaced := e.comments.ReplaceComment(commentID, existing.ParentKey(), func(c *model.Comment) {
		c.Score = score
		c.Direction = direction
	})
	e.lastOwnMutation = commentID
	if bound := e.registry.Lookup(commentID); bound != nil {
		bound.SetComment(replaced)
	}
	return nil
}

// SetPageReadonly はページの読み取り専用フラグを切り替え、ツールバー構成を
// 作り直すために全面再ロードする。
func (e *Engine) SetPageReadonly(ctx context.Context, readonly bool) error {
	e.mu.Lock()
	pageID := ""
	if e.pageInfo != nil {
		pageID = e.pageInfo.PageID
	}
	e.mu.Unlock()

	if err := e.api.PageUpdate(ctx, pageID, readonly); err != nil {
		e.recordError(err)
		return err
	}
	return e.Reload(ctx)
}

// Principal は現在の閲覧者を返す。未認証ならnil。
func (e *Engine) Principal() *model.Principal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.principal
}

// renderComments はコメントツリー全体をカードに描き直す。呼び出し側がロックを持つ。
// 既存カードの束縛はすべて破棄されるため、折りたたみ状態などは失われる。
func (e *Engine) renderComments() {
	e.registry.Clear()
	e.rootEl = card.NewContainer("comenta-comments")
	e.rootCards = nil

	roots := e.comments.ListFor(model.RootParentKey, false)
	card.RenderInto(e.rootEl, roots, e.cardContext(), e.registry, 0, &e.rootCards)

	if e.collector != nil {
		e.collector.RecordRender()
	}
}

// cardContext はカードツリーに引き回す描画コンテキストを組み立てる。
// 呼び出し側がロックを持つ。
func (e *Engine) cardContext() *card.Context {
	return &card.Context{
		Principal: e.principal,
		PageInfo:  e.pageInfo,
		Sort:      e.sort,
		MaxLevel:  e.cfg.MaxLevel,
		LookupCommenter: func(id string) *model.Commenter {
			return e.commenters[id]
		},
		ChildrenOf: func(parentKey string) []*model.Comment {
			return e.comments.ListFor(parentKey, false)
		},
	}
}

// recordError は失敗したバックエンド呼び出しをエラーバナーとメトリクスに記録する。
func (e *Engine) recordError(err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		apiErr = model.NewTransportError(err)
	}

	e.mu.Lock()
	e.lastError = apiErr
	e.mu.Unlock()

	if e.collector != nil {
		e.collector.RecordAPIError(apiErr.HTTPStatus)
	}
	e.logger.Error("バックエンド呼び出しに失敗しました",
		slog.String("error_id", apiErr.Code),
		slog.Int("http_status", apiErr.HTTPStatus),
		slog.String("message", apiErr.Message),
	)
}

// websocketURL はバックエンドのベースURLからライブ更新チャネルのURLを導出する。
func websocketURL(baseURL string) string {
	switch {
	case len(baseURL) > 8 && baseURL[:8] == "https://":
		return "wss://" + baseURL[8:] + "/ws/comments"
	case len(baseURL) > 7 && baseURL[:7] == "http://":
		return "ws://" + baseURL[7:] + "/ws/comments"
	default:
		return baseURL + "/ws/comments"
	}
}
