package card

import (
	"strings"
	"testing"
)

// TestSetInnerHTML_ParsesMarkup はHTML文字列が要素ノードとして
// パースされることを検証する。テキストへのエスケープフォールバックに
// 落ちてはならない。
func TestSetInnerHTML_ParsesMarkup(t *testing.T) {
	n := newElement("div")
	setInnerHTML(n, "<p>こんにちは <strong>世界</strong></p>")

	rendered := Render(n)
	if !strings.Contains(rendered, "<strong>世界</strong>") {
		t.Errorf("マークアップが要素として描画されるべき: %s", rendered)
	}
	if strings.Contains(rendered, "&lt;strong&gt;") {
		t.Errorf("マークアップがエスケープされたテキストになっています: %s", rendered)
	}
}

// TestSetInnerHTML_ReplacesChildren は既存の子ノードが差し替えられることを検証する。
func TestSetInnerHTML_ReplacesChildren(t *testing.T) {
	n := newElement("div")
	setInnerHTML(n, "<p>first</p>")
	setInnerHTML(n, "<p>second</p>")

	rendered := Render(n)
	if strings.Contains(rendered, "first") {
		t.Errorf("前の本文が残っています: %s", rendered)
	}
	if !strings.Contains(rendered, "<p>second</p>") {
		t.Errorf("新しい本文が描画されるべき: %s", rendered)
	}
}

// TestSetInnerHTML_Empty は空文字列が子ノードを空にすることを検証する。
func TestSetInnerHTML_Empty(t *testing.T) {
	n := newElement("div")
	setInnerHTML(n, "<p>body</p>")
	setInnerHTML(n, "")

	if n.FirstChild != nil {
		t.Error("空文字列では子ノードが残るべきではない")
	}
}
