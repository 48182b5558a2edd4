// Package card はコメント1件をHTMLノードツリーに束縛するカードを提供する。
// カードはデータレコードの変化に応じて自分のサブツリーだけを更新し、
// 子コメントのカードを再帰的に所有する。
package card

import (
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// newElement は属性付きの要素ノードを生成する。
// attrsはキーと値の交互列で渡す。
func newElement(tag string, attrs ...string) *html.Node {
	n := &html.Node{Type: html.ElementNode, Data: tag}
	for i := 0; i+1 < len(attrs); i += 2 {
		n.Attr = append(n.Attr, html.Attribute{Key: attrs[i], Val: attrs[i+1]})
	}
	return n
}

// newText はテキストノードを生成する。
func newText(text string) *html.Node {
	return &html.Node{Type: html.TextNode, Data: text}
}

// getAttr は属性値を返す。未設定なら空文字列。
func getAttr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

// setAttr は属性を設定する（既存なら上書き）。
func setAttr(n *html.Node, key, val string) {
	for i, a := range n.Attr {
		if a.Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, html.Attribute{Key: key, Val: val})
}

// hasClass はclass属性に指定クラスが含まれるかを返す。
func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// addClass はclass属性にクラスを追加する。重複追加はしない。
func addClass(n *html.Node, class string) {
	if hasClass(n, class) {
		return
	}
	cur := getAttr(n, "class")
	if cur == "" {
		setAttr(n, "class", class)
		return
	}
	setAttr(n, "class", cur+" "+class)
}

// removeClass はclass属性からクラスを取り除く。
func removeClass(n *html.Node, class string) {
	fields := strings.Fields(getAttr(n, "class"))
	kept := fields[:0]
	for _, c := range fields {
		if c != class {
			kept = append(kept, c)
		}
	}
	setAttr(n, "class", strings.Join(kept, " "))
}

// toggleClass は条件に応じてクラスを付け外しする。
func toggleClass(n *html.Node, class string, on bool) {
	if on {
		addClass(n, class)
	} else {
		removeClass(n, class)
	}
}

// removeChildren は子ノードをすべて取り除く。
func removeChildren(n *html.Node) {
	for n.FirstChild != nil {
		n.RemoveChild(n.FirstChild)
	}
}

// setInnerHTML は子ノードを差し替え、HTML文字列をパースした結果を設置する。
// パースに失敗した場合はテキストとして設置する。
func setInnerHTML(n *html.Node, rawHTML string) {
	removeChildren(n)
	if rawHTML == "" {
		return
	}

	ctx := &html.Node{Type: html.ElementNode, DataAtom: atom.Div, Data: "div"}
	nodes, err := html.ParseFragment(strings.NewReader(rawHTML), ctx)
	if err != nil {
		n.AppendChild(newText(rawHTML))
		return
	}
	for _, child := range nodes {
		n.AppendChild(child)
	}
}

// NewContainer はカードを収める素のコンテナ要素を生成する。
// ルートコメントリストのコンテナなど、カード外の骨格で使用する。
func NewContainer(class string) *html.Node {
	return newElement("div", "class", class)
}

// Render はノードをHTML文字列にシリアライズする。
func Render(n *html.Node) string {
	var sb strings.Builder
	if err := html.Render(&sb, n); err != nil {
		return ""
	}
	return sb.String()
}
