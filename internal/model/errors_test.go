package model

import (
	"strings"
	"testing"
)

// TestNewAPIError_KnownErrorID は周知のエラーIDが対応メッセージに変換されることを検証する。
func TestNewAPIError_KnownErrorID(t *testing.T) {
	e := NewAPIError(404, ErrIDUnknownHost, "server says something else", `{"id":"unknown-host"}`)

	if !strings.Contains(e.Message, "登録されていません") {
		t.Errorf("周知エラーIDのメッセージが使われていません: %q", e.Message)
	}
	if e.Code != ErrIDUnknownHost {
		t.Errorf("Code: got %q", e.Code)
	}
	if e.Details == "" {
		t.Error("Detailsに生レスポンスが保持されていません")
	}
}

// TestNewAPIError_FallbackToMessage は未知のエラーIDでレスポンスのメッセージに
// フォールバックすることを検証する。
func TestNewAPIError_FallbackToMessage(t *testing.T) {
	e := NewAPIError(400, "some-new-error", "backend explanation", "")
	if e.Message != "backend explanation" {
		t.Errorf("Message: got %q", e.Message)
	}
}

// TestNewAPIError_GenericFallback はエラーIDもメッセージもない場合に
// 汎用メッセージになることを検証する。
func TestNewAPIError_GenericFallback(t *testing.T) {
	e := NewAPIError(500, "", "", "")
	if !strings.Contains(e.Message, "不明なエラー") {
		t.Errorf("汎用メッセージになっていません: %q", e.Message)
	}
	if e.Category != "system" {
		t.Errorf("Category: got %q, want system", e.Category)
	}
}

// TestCategoryForStatus はステータスコードからのカテゴリ導出を検証する。
func TestCategoryForStatus(t *testing.T) {
	tests := []struct {
		status int
		want   string
	}{
		{401, "auth"},
		{403, "auth"},
		{400, "validation"},
		{404, "validation"},
		{500, "system"},
	}
	for _, tt := range tests {
		if got := categoryForStatus(tt.status); got != tt.want {
			t.Errorf("categoryForStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

// TestAPIError_Error はerrorインターフェース実装の形式を検証する。
func TestAPIError_Error(t *testing.T) {
	withCode := NewAPIError(404, ErrIDNotFound, "", "")
	if !strings.HasPrefix(withCode.Error(), "["+ErrIDNotFound+"]") {
		t.Errorf("Error(): got %q", withCode.Error())
	}

	noCode := NewTransportError(errForTest("dial tcp: refused"))
	if strings.HasPrefix(noCode.Error(), "[") {
		t.Errorf("コードなしエラーの形式が不正です: %q", noCode.Error())
	}
}

type errForTest string

func (e errForTest) Error() string { return string(e) }
