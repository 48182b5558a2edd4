// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// バックエンドのHTTPエラーをUIに表示する情報に変換したもの。
type APIError struct {
	Code       string // バックエンドのエラーID（error-idフィールド由来）
	Message    string // ユーザー向けメッセージ
	Category   string // カテゴリ: transport, validation, auth, system
	HTTPStatus int    // 元のHTTPステータスコード（0はネットワークエラー）
	Details    string // 生のレスポンス本文（技術詳細パネル用）
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("[%s] %s", e.Code, e.Message)
	}
	return e.Message
}

// バックエンドが返す周知のエラーID
const (
	ErrIDUnknownHost        = "unknown-host"
	ErrIDPageReadonly       = "page-readonly"
	ErrIDNotModerator       = "not-moderator"
	ErrIDNotFound           = "not-found"
	ErrIDUnauthorized       = "unauthorized"
	ErrIDCommentTextTooLong = "comment-text-too-long"
)

// knownErrorMessages は周知のエラーIDからユーザー向けメッセージへの対応表。
var knownErrorMessages = map[string]string{
	ErrIDUnknownHost:        "このドメインはコメントサービスに登録されていません。",
	ErrIDPageReadonly:       "このページはコメントを受け付けていません。",
	ErrIDNotModerator:       "この操作にはモデレーター権限が必要です。",
	ErrIDNotFound:           "対象のコメントが見つかりません。",
	ErrIDUnauthorized:       "この操作にはログインが必要です。",
	ErrIDCommentTextTooLong: "コメントが最大文字数を超えています。",
}

// NewAPIError はバックエンドのエラーレスポンスからAPIErrorを生成する。
// 周知のエラーIDがあれば対応するメッセージを使い、
// なければレスポンスのメッセージ/詳細、それもなければ汎用メッセージにフォールバックする。
func NewAPIError(status int, errorID, message, rawBody string) *APIError {
	e := &APIError{
		Code:       errorID,
		Category:   categoryForStatus(status),
		HTTPStatus: status,
		Details:    rawBody,
	}

	if msg, ok := knownErrorMessages[errorID]; ok {
		e.Message = msg
		return e
	}
	if message != "" {
		e.Message = message
		return e
	}
	e.Message = "不明なエラーが発生しました。"
	return e
}

// NewTransportError はHTTPレスポンス到達前のネットワークエラーを生成する。
func NewTransportError(err error) *APIError {
	return &APIError{
		Message:  "コメントサービスに接続できませんでした。",
		Category: "transport",
		Details:  err.Error(),
	}
}

// categoryForStatus はHTTPステータスコードからエラーカテゴリを導出する。
func categoryForStatus(status int) string {
	switch {
	case status == 401 || status == 403:
		return "auth"
	case status >= 400 && status < 500:
		return "validation"
	default:
		return "system"
	}
}
