package liveupdate

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/net/websocket"
)

// 通知メッセージのアクション種別。
const (
	ActionNew    = "new"
	ActionUpdate = "update"
	ActionDelete = "delete"
	ActionVote   = "vote"
	ActionSticky = "sticky"
)

// Message はサーバーからプッシュされる通知フレーム。
// コメント本文は含まれない。ルーティング情報のみを運び、内容の取得は
// 受信側がIDで改めて問い合わせる。
type Message struct {
	Domain        string `json:"domain"`
	Path          string `json:"path"`
	Comment       string `json:"comment"`
	ParentComment string `json:"parentComment,omitempty"`
	Action        string `json:"action"`
}

// subscribeRequest は接続直後に送る購読リクエスト。
type subscribeRequest struct {
	Domain string `json:"domain"`
	Path   string `json:"path"`
}

// Handler は受信した通知メッセージを処理する。
// Socketの受信ゴルーチンから直列に呼ばれる。
type Handler func(msg *Message)

// Socket はページ1枚分のライブ更新接続。
// 切断されると指数バックオフで自動再接続し、接続成功でバックオフをリセットする。
// 生存期間はRunに渡されたコンテキストに束縛され、キャンセルで接続ごと確実に閉じる。
type Socket struct {
	url     string
	origin  string
	domain  string
	path    string
	logger  *slog.Logger
	handler Handler

	// OnReconnect は再接続試行のたびに呼ばれる（メトリクス用、省略可）。
	OnReconnect func()

	// dial はテスト用に差し替え可能な接続関数。
	dial func(url, origin string) (*websocket.Conn, error)
}

// NewSocket はSocket の新しいインスタンスを生成する。
// urlはws(s)://<origin>/ws/comments形式の接続先。
func NewSocket(url, origin, domain, path string, handler Handler, logger *slog.Logger) *Socket {
	return &Socket{
		url:     url,
		origin:  origin,
		domain:  domain,
		path:    path,
		logger:  logger,
		handler: handler,
		dial: func(url, origin string) (*websocket.Conn, error) {
			return websocket.Dial(url, "", origin)
		},
	}
}

// Run は接続・購読・受信のループを実行する。コンテキストのキャンセルまで戻らない。
// 呼び出し側はgoroutineで起動する。
func (s *Socket) Run(ctx context.Context) {
	failures := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, err := s.dial(s.url, s.origin)
		if err != nil {
			failures++
			s.logger.Warn("ライブ更新チャネルの接続に失敗しました",
				slog.String("url", s.url),
				slog.String("error", err.Error()),
				slog.Int("consecutive_failures", failures),
			)
			if !s.sleep(ctx, CalculateBackoff(failures-1)) {
				return
			}
			continue
		}

		if err := websocket.JSON.Send(conn, &subscribeRequest{Domain: s.domain, Path: s.path}); err != nil {
			conn.Close()
			failures++
			if !s.sleep(ctx, CalculateBackoff(failures-1)) {
				return
			}
			continue
		}

		// 接続成功でバックオフをリセット
		failures = 0
		s.logger.Info("ライブ更新チャネルを接続しました",
			slog.String("domain", s.domain),
			slog.String("path", s.path),
		)

		s.receive(ctx, conn)

		if ctx.Err() != nil {
			return
		}
		if s.OnReconnect != nil {
			s.OnReconnect()
		}
		failures++
		if !s.sleep(ctx, CalculateBackoff(failures-1)) {
			return
		}
	}
}

// receive は1本の接続からメッセージを読み続ける。
// コンテキストのキャンセルで接続を閉じ、Receiveのブロックを解除する。
func (s *Socket) receive(ctx context.Context, conn *websocket.Conn) {
	done := make(chan struct{})
	defer close(done)

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		var msg Message
		if err := websocket.JSON.Receive(conn, &msg); err != nil {
			conn.Close()
			if ctx.Err() == nil {
				s.logger.Warn("ライブ更新チャネルが切断されました",
					slog.String("error", err.Error()),
				)
			}
			return
		}
		s.handler(&msg)
	}
}

// sleep はコンテキストを尊重して待機する。キャンセルされた場合はfalseを返す。
func (s *Socket) sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
