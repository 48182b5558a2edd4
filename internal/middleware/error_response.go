package middleware

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/hitoshi/comenta/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
type ErrorResponseBody struct {
	Code     string `json:"code,omitempty"`
	Message  string `json:"message"`
	Category string `json:"category"`
}

// WriteError はエラーを統一フォーマットでHTTPレスポンスに書き込む。
// APIErrorはステータスとカテゴリを保ったまま転送し、それ以外は500として扱う。
// 技術詳細（Details）はログにのみ残し、レスポンスには含めない。
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if !errors.As(err, &apiErr) {
		WriteInternalServerError(w)
		return
	}

	status := apiErr.HTTPStatus
	if status == 0 {
		// トランスポートエラーはバックエンド到達不能
		status = http.StatusBadGateway
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
	})
}

// WriteInternalServerError は内部サーバーエラーの統一レスポンスを書き込む。
// 詳細はログのみに記録し、ユーザーには一般的なメッセージを返す。
func WriteInternalServerError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(ErrorResponseBody{
		Message:  "内部エラーが発生しました。",
		Category: "system",
	})
}
