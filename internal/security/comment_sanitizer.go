// Package security は埋め込みエンジンのセキュリティ機能を提供する。
//
// CommentSanitizerService はバックエンドがレンダリングしたコメントHTMLを
// カードDOMに取り込む前にサニタイズし、XSSからページを保護する。
// バックエンドを信頼しない方針（ライブ更新はルーティング情報以外を
// ペイロードから信用しない）の一環として、表示系も許可リストで防御する。
package security

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// CommentSanitizerService はコメントHTMLのサニタイズ機能のインターフェースを定義する。
// コメントのロード時・ライブ更新での再取得時の両方で使用される。
type CommentSanitizerService interface {
	// Sanitize はコメントHTMLをサニタイズして安全なHTMLを返す。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, pre, code, strong, em, del, img）
	// のみを通過させ、script, iframe, styleタグおよびon*イベント属性を除去する。
	// imgタグのsrc属性はhttpsスキームのみ許可される。
	// aタグにはtarget="_blank"とrel="noopener noreferrer"が自動付与される。
	// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// commentSanitizer はCommentSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type commentSanitizer struct {
	policy *bluemonday.Policy
}

// NewCommentSanitizer はCommentSanitizerServiceの新しいインスタンスを生成する。
// 初期化時にbluemondayのカスタムポリシーを構築する。
// コメントはMarkdown由来のHTMLのため、Markdownレンダラーが出力し得るタグのみ許可する。
func NewCommentSanitizer() *commentSanitizer {
	p := bluemonday.NewPolicy()

	// Markdownレンダラーが出力する基本タグ
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em", "del",
	)

	// aタグ: hrefのみ許可し、リンクは別タブ・リファラ遮断で開かせる
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// imgタグ: srcはhttpsのみ、altはアクセシビリティのため許可
	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &commentSanitizer{
		policy: p,
	}
}

// Sanitize はコメントHTMLをサニタイズして安全なHTMLを返す。
func (s *commentSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}
