package liveupdate

import (
	"bytes"
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/net/websocket"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// wsURL はhttptestサーバーのURLをws://に変換する。
func wsURL(server *httptest.Server) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/comments"
}

// TestSocket_SubscribeAndReceive は接続直後の購読送信と通知の受信を検証する。
func TestSocket_SubscribeAndReceive(t *testing.T) {
	received := make(chan *Message, 1)

	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		// 購読リクエストを待つ
		var sub subscribeRequest
		if err := websocket.JSON.Receive(conn, &sub); err != nil {
			t.Errorf("購読リクエストの受信に失敗: %v", err)
			return
		}
		if sub.Domain != "localhost" || sub.Path != "/" {
			t.Errorf("購読リクエスト = %+v", sub)
		}

		// 通知を1件プッシュ
		websocket.JSON.Send(conn, &Message{
			Domain:  "localhost",
			Path:    "/",
			Comment: "c1",
			Action:  ActionNew,
		})

		// クライアントが閉じるまで待つ
		var discard Message
		websocket.JSON.Receive(conn, &discard)
	}))
	defer server.Close()

	var buf bytes.Buffer
	s := NewSocket(wsURL(server), server.URL, "localhost", "/", func(msg *Message) {
		received <- msg
	}, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	select {
	case msg := <-received:
		if msg.Comment != "c1" || msg.Action != ActionNew {
			t.Errorf("受信メッセージ = %+v", msg)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("通知が受信されませんでした")
	}
}

// TestSocket_ContextCancelStopsRun はコンテキストのキャンセルでRunが戻ることを検証する。
// 接続の生存期間はコンテキストに束縛される。
func TestSocket_ContextCancelStopsRun(t *testing.T) {
	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		var sub subscribeRequest
		websocket.JSON.Receive(conn, &sub)
		// 何も送らずクライアント側のクローズを待つ
		var discard Message
		websocket.JSON.Receive(conn, &discard)
	}))
	defer server.Close()

	var buf bytes.Buffer
	s := NewSocket(wsURL(server), server.URL, "localhost", "/", func(*Message) {}, newTestLogger(&buf))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()

	// 接続が確立するまで少し待ってからキャンセル
	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("キャンセル後もRunが戻りません")
	}
}

// TestSocket_ReconnectsAfterServerClose はサーバー側切断後に再接続することを検証する。
func TestSocket_ReconnectsAfterServerClose(t *testing.T) {
	var mu sync.Mutex
	connections := 0

	server := httptest.NewServer(websocket.Handler(func(conn *websocket.Conn) {
		mu.Lock()
		connections++
		n := connections
		mu.Unlock()

		var sub subscribeRequest
		websocket.JSON.Receive(conn, &sub)

		if n == 1 {
			// 1本目は即切断して再接続させる
			conn.Close()
			return
		}
		var discard Message
		websocket.JSON.Receive(conn, &discard)
	}))
	defer server.Close()

	var buf bytes.Buffer
	reconnects := 0
	s := NewSocket(wsURL(server), server.URL, "localhost", "/", func(*Message) {}, newTestLogger(&buf))
	s.OnReconnect = func() {
		mu.Lock()
		reconnects++
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.Run(ctx)

	deadline := time.After(5 * time.Second)
	for {
		mu.Lock()
		n := connections
		mu.Unlock()
		if n >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("再接続されませんでした: connections = %d", n)
		case <-time.After(50 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if reconnects < 1 {
		t.Errorf("OnReconnectが呼ばれていません")
	}
}
