package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/hitoshi/comenta/internal/model"
)

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

func newTestClient(server *httptest.Server) *Client {
	var buf bytes.Buffer
	return NewClient(server.Client(), newTestLogger(&buf), server.URL)
}

func TestNewClient_IssuesSessionToken(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), "http://localhost:8080")
	if c.SessionToken() == "" {
		t.Fatal("セッショントークンが発番されていません")
	}

	c2 := NewClient(http.DefaultClient, newTestLogger(&buf), "http://localhost:8080")
	if c.SessionToken() == c2.SessionToken() {
		t.Error("別インスタンスが同じセッショントークンを持っています")
	}
}

func TestCommentList(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("HTTPメソッド = %s, want POST", r.Method)
		}
		if r.URL.Path != "/api/embed/comments" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		if r.Header.Get("X-Comenta-Session") == "" {
			t.Error("セッションヘッダがありません")
		}

		var req map[string]string
		json.NewDecoder(r.Body).Decode(&req)
		if req["host"] != "localhost" || req["path"] != "/" {
			t.Errorf("リクエストボディ = %v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"pageInfo": map[string]any{"domainName": "localhost", "enableVoting": true},
			"comments": []map[string]any{
				{"id": "c1", "html": "<p>root</p>"},
				{"id": "c2", "parentId": "c1"},
			},
			"commenters": []map[string]any{
				{"id": "u1", "name": "Alice"},
			},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server).CommentList(context.Background(), "localhost", "/")
	if err != nil {
		t.Fatalf("CommentList がエラーを返した: %v", err)
	}
	if result.PageInfo == nil || !result.PageInfo.EnableVoting {
		t.Error("pageInfoがデコードされていません")
	}
	if len(result.Comments) != 2 || result.Comments[1].ParentID != "c1" {
		t.Errorf("comments = %+v", result.Comments)
	}
	if len(result.Commenters) != 1 || result.Commenters[0].Name != "Alice" {
		t.Errorf("commenters = %+v", result.Commenters)
	}
}

func TestCommentNew(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			t.Errorf("HTTPメソッド = %s, want PUT", r.Method)
		}
		var req CommentNewRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.ParentID != "parent-1" || req.Markdown != "hello" {
			t.Errorf("リクエスト = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"comment":   map[string]any{"id": "new-1", "parentId": "parent-1", "html": "<p>hello</p>"},
			"commenter": map[string]any{"id": "u1"},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server).CommentNew(context.Background(), &CommentNewRequest{
		Host:     "localhost",
		Path:     "/",
		ParentID: "parent-1",
		Markdown: "hello",
	})
	if err != nil {
		t.Fatalf("CommentNew がエラーを返した: %v", err)
	}
	if result.Comment.ID != "new-1" {
		t.Errorf("comment.ID = %s", result.Comment.ID)
	}
}

func TestCommentUpdate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/embed/comments/c1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"comment": map[string]any{"id": "c1", "markdown": "edited", "html": "<p>edited</p>"},
		})
	}))
	defer server.Close()

	updated, err := newTestClient(server).CommentUpdate(context.Background(), "c1", "edited")
	if err != nil {
		t.Fatalf("CommentUpdate がエラーを返した: %v", err)
	}
	if updated.HTML != "<p>edited</p>" {
		t.Errorf("HTML = %s", updated.HTML)
	}
}

func TestCommentDelete(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/embed/comments/c1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestClient(server).CommentDelete(context.Background(), "c1"); err != nil {
		t.Fatalf("CommentDelete がエラーを返した: %v", err)
	}
}

func TestCommentModerate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed/comments/c1/moderate" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		var req map[string]bool
		json.NewDecoder(r.Body).Decode(&req)
		if !req["approve"] {
			t.Error("approve = false, want true")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestClient(server).CommentModerate(context.Background(), "c1", true); err != nil {
		t.Fatalf("CommentModerate がエラーを返した: %v", err)
	}
}

func TestCommentVote(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed/comments/c1/vote" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		var req map[string]int
		json.NewDecoder(r.Body).Decode(&req)
		if req["direction"] != -1 {
			t.Errorf("direction = %d, want -1", req["direction"])
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]int{"score": 4})
	}))
	defer server.Close()

	score, err := newTestClient(server).CommentVote(context.Background(), "c1", -1)
	if err != nil {
		t.Fatalf("CommentVote がエラーを返した: %v", err)
	}
	if score != 4 {
		t.Errorf("score = %d, want 4", score)
	}
}

func TestCommentGet(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/embed/comments/c1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		// commenterは省略されうる
		json.NewEncoder(w).Encode(map[string]any{
			"comment": map[string]any{"id": "c1", "score": 3},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server).CommentGet(context.Background(), "c1")
	if err != nil {
		t.Fatalf("CommentGet がエラーを返した: %v", err)
	}
	if result.Comment.Score != 3 {
		t.Errorf("score = %d", result.Comment.Score)
	}
	if result.Commenter != nil {
		t.Error("省略されたcommenterがnilになっていません")
	}
}

// TestCommentCount_KnownAndUnknownPaths は件数取得の意味論を検証する。
// 既知ページは0件でも明示的に含まれ、未知パスは結果マップに現れない。
func TestCommentCount_KnownAndUnknownPaths(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embed/comments/counts" {
			t.Errorf("パス = %s", r.URL.Path)
		}
		var req struct {
			Host  string   `json:"host"`
			Paths []string `json:"paths"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		if req.Host != "localhost" || len(req.Paths) != 4 {
			t.Errorf("リクエスト = %+v", req)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"commentCounts": map[string]int{
				"/":          17,
				"/one":       1,
				"/none":      0,
				// /unknown は含めない
			},
		})
	}))
	defer server.Close()

	counts, err := newTestClient(server).CommentCount(context.Background(), "localhost",
		[]string{"/", "/one", "/none", "/unknown"})
	if err != nil {
		t.Fatalf("CommentCount がエラーを返した: %v", err)
	}

	if counts["/"] != 17 {
		t.Errorf("/ = %d, want 17", counts["/"])
	}
	if counts["/one"] != 1 {
		t.Errorf("/one = %d, want 1", counts["/one"])
	}
	if got, ok := counts["/none"]; !ok || got != 0 {
		t.Errorf("/none = (%d, %v), want (0, true)", got, ok)
	}
	if _, ok := counts["/unknown"]; ok {
		t.Error("未知パスが結果マップに含まれています")
	}
}

func TestCommentCount_EmptyPaths(t *testing.T) {
	var buf bytes.Buffer
	c := NewClient(http.DefaultClient, newTestLogger(&buf), "http://localhost:8080")

	counts, err := c.CommentCount(context.Background(), "localhost", nil)
	if err != nil {
		t.Fatalf("空パスリストでエラーが返された: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("空パスリストの結果は空マップであるべき: %d entries", len(counts))
	}
}

func TestPageUpdate(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/api/embed/page/p1" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		var req map[string]bool
		json.NewDecoder(r.Body).Decode(&req)
		if !req["isReadonly"] {
			t.Error("isReadonly = false, want true")
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := newTestClient(server).PageUpdate(context.Background(), "p1", true); err != nil {
		t.Fatalf("PageUpdate がエラーを返した: %v", err)
	}
}

// TestDoJSON_KnownErrorID は周知のエラーIDを持つエラーレスポンスが
// 対応メッセージ付きのAPIErrorに変換されることを検証する。
func TestDoJSON_KnownErrorID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]string{"id": "unknown-host", "message": "no such host"})
	}))
	defer server.Close()

	_, err := newTestClient(server).CommentList(context.Background(), "nowhere", "/")
	if err == nil {
		t.Fatal("エラーが返されるべき")
	}

	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorであるべき: %T", err)
	}
	if apiErr.Code != model.ErrIDUnknownHost {
		t.Errorf("Code = %s", apiErr.Code)
	}
	if apiErr.HTTPStatus != http.StatusNotFound {
		t.Errorf("HTTPStatus = %d", apiErr.HTTPStatus)
	}
	if !strings.Contains(apiErr.Details, "unknown-host") {
		t.Error("Detailsに生レスポンスが保持されていません")
	}
}

// TestDoJSON_NonJSONErrorBody はJSONでないエラーボディでもAPIErrorが生成されることを検証する。
func TestDoJSON_NonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream exploded"))
	}))
	defer server.Close()

	_, err := newTestClient(server).CommentList(context.Background(), "localhost", "/")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorであるべき: %T", err)
	}
	if apiErr.Category != "system" {
		t.Errorf("Category = %s, want system", apiErr.Category)
	}
	if apiErr.Details != "upstream exploded" {
		t.Errorf("Details = %q", apiErr.Details)
	}
}

// TestDoJSON_TransportError は接続不能時にtransportカテゴリのAPIErrorになることを検証する。
func TestDoJSON_TransportError(t *testing.T) {
	var buf bytes.Buffer
	// 到達不能なポート
	c := NewClient(&http.Client{Timeout: time.Second}, newTestLogger(&buf), "http://127.0.0.1:1")

	_, err := c.CommentList(context.Background(), "localhost", "/")
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("APIErrorであるべき: %T", err)
	}
	if apiErr.Category != "transport" {
		t.Errorf("Category = %s, want transport", apiErr.Category)
	}
	if apiErr.HTTPStatus != 0 {
		t.Errorf("HTTPStatus = %d, want 0", apiErr.HTTPStatus)
	}
}

// TestDoJSON_ContextCancelled はキャンセル済みコンテキストがそのまま伝播することを検証する。
func TestDoJSON_ContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(server).CommentList(ctx, "localhost", "/")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("context.Canceled であるべき: %v", err)
	}
}

// TestDoJSON_LogsError はAPIエラー時にERRORログが記録されることを検証する。
func TestDoJSON_LogsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	var buf bytes.Buffer
	c := NewClient(server.Client(), newTestLogger(&buf), server.URL)
	_, _ = c.CommentList(context.Background(), "localhost", "/")

	if !strings.Contains(buf.String(), "ERROR") {
		t.Errorf("ERRORレベルのログが記録されるべき: %s", buf.String())
	}
}
