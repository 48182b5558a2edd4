package card

import (
	"sort"
	"strconv"
	"time"

	"golang.org/x/net/html"

	"github.com/hitoshi/comenta/internal/model"
)

// ボタンのtitle属性値。ツールバーのボタンはこの名前で識別される。
const (
	BtnUpvote   = "Upvote"
	BtnDownvote = "Downvote"
	BtnReply    = "Reply"
	BtnApprove  = "Approve"
	BtnReject   = "Reject"
	BtnSticky   = "Sticky"
	BtnEdit     = "Edit"
	BtnDelete   = "Delete"
)

// Card はコメントレコード1件をDOMサブツリーに束縛するUIノード。
// 自分のコメントIDと等しいparentIdを持つコメントの子カードを再帰的に所有する。
//
// ツールバーのボタン構成は構築時のContextの権限で確定し、カードの生存期間中
// 変わらない。以後の更新で変わるのはボタンの有効/アクティブ状態と、
// 保留/却下/削除の視覚状態のみ。削除状態への遷移は描画上は前進のみで、
// 一度削除として描画されたカードが元に戻るパスはない。
type Card struct {
	commentID string
	comment   *model.Comment
	ctx       *Context
	registry  *Registry
	level     int

	root       *html.Node
	nameEl     *html.Node
	subtitleEl *html.Node
	scoreEl    *html.Node
	badgeEl    *html.Node
	noticeEl   *html.Node
	toolbarEl  *html.Node
	bodyEl     *html.Node
	childrenEl *html.Node
	togglerEl  *html.Node

	buttons map[string]*html.Node

	collapsed        bool
	renderedDeleted  bool
	confirmingDelete bool

	children []*Card
}

// New はコメントに束縛された新しいカードを構築し、レジストリに登録する。
// 構築時にアバター・名前・サブタイトル・ツールバー・本文・子カードリストを描画する。
func New(c *model.Comment, ctx *Context, reg *Registry, level int) *Card {
	card := &Card{
		commentID: c.ID,
		comment:   c,
		ctx:       ctx,
		registry:  reg,
		level:     level,
		buttons:   make(map[string]*html.Node),
	}

	card.buildSkeleton()
	card.buildToolbar()
	card.update()
	card.renderChildComments()

	reg.Bind(c.ID, card)
	return card
}

// ID はカードが描画しているコメントのIDを返す。
func (card *Card) ID() string { return card.commentID }

// Comment は現在束縛しているコメントレコードを返す。
func (card *Card) Comment() *model.Comment { return card.comment }

// Node はカードのルートDOMノードを返す。
func (card *Card) Node() *html.Node { return card.root }

// ChildrenEl は子カードのコンテナノードを返す。ライブ挿入で使用する。
func (card *Card) ChildrenEl() *html.Node { return card.childrenEl }

// Children は所有している子カードを返す。
func (card *Card) Children() []*Card { return card.children }

// Level はカードのネスト深度を返す。ルートは0。
func (card *Card) Level() int { return card.level }

// buildSkeleton はカードの骨格（ヘッダ・本文・子コンテナ）を構築する。
func (card *Card) buildSkeleton() {
	c := card.comment

	card.root = newElement("div", "class", "comenta-card", "id", "comenta-"+c.ID)

	header := newElement("div", "class", "comenta-card-header")

	// アバター: 色インデックスのクラスのみ付与し、画像の取得はI/O層に委ねる
	avatar := newElement("span", "class", "comenta-avatar "+avatarColourClass(card.ctx, c))
	header.AppendChild(avatar)

	card.nameEl = card.buildNameEl()
	header.AppendChild(card.nameEl)

	card.subtitleEl = newElement("span", "class", "comenta-subtitle")
	header.AppendChild(card.subtitleEl)

	card.badgeEl = newElement("span", "class", "comenta-badge comenta-hidden")
	card.badgeEl.AppendChild(newText("Pending"))
	header.AppendChild(card.badgeEl)

	card.togglerEl = newElement("button", "class", "comenta-toggler", "title", "Collapse children")
	header.AppendChild(card.togglerEl)

	card.root.AppendChild(header)

	card.noticeEl = newElement("div", "class", "comenta-notice comenta-hidden")
	card.root.AppendChild(card.noticeEl)

	card.bodyEl = newElement("div", "class", "comenta-body")
	card.root.AppendChild(card.bodyEl)

	card.toolbarEl = newElement("div", "class", "comenta-toolbar")
	card.root.AppendChild(card.toolbarEl)

	// ネスト上限を超えた子は平坦コンテナで描画する。
	// レイアウト上の判断であり、マップ上の親子関係には影響しない。
	childClass := "comenta-children"
	if card.level+1 >= card.ctx.MaxLevel {
		childClass += " comenta-children-flat"
	}
	card.childrenEl = newElement("div", "class", childClass)
	card.root.AppendChild(card.childrenEl)
}

// buildNameEl は投稿者名の要素を構築する。ウェブサイトがあればリンクにする。
func (card *Card) buildNameEl() *html.Node {
	name, website := card.authorName()

	if website != "" {
		a := newElement("a", "class", "comenta-name", "href", website, "rel", "nofollow noopener noreferrer")
		a.AppendChild(newText(name))
		return a
	}
	span := newElement("span", "class", "comenta-name")
	span.AppendChild(newText(name))
	return span
}

// authorName は表示名とウェブサイトURLを解決する。
// 登録ユーザーはCommenterから、未登録投稿者はAuthorNameから取得し、
// どちらもなければ角括弧のプレースホルダにフォールバックする。
func (card *Card) authorName() (name, website string) {
	c := card.comment
	if cm := card.ctx.LookupCommenter(c.UserCreated); cm != nil {
		return cm.Name, cm.WebsiteURL
	}
	if c.AuthorName != "" {
		return c.AuthorName, ""
	}
	return "[deleted]", ""
}

// buildToolbar は構築時のContextの権限に基づいてツールバーを1回だけ構築する。
// ここで存在が決まったボタンはカードの生存期間中、増減しない。
func (card *Card) buildToolbar() {
	c := card.comment
	ctx := card.ctx

	// 投票ボタン: ページで投票が有効な場合のみ。本人のコメントには投票不可。
	if ctx.PageInfo.EnableVoting {
		up := card.addButton(BtnUpvote, "comenta-btn-vote")
		down := card.addButton(BtnDownvote, "comenta-btn-vote")
		card.scoreEl = newElement("span", "class", "comenta-score")
		// スコアは投票ボタンの間に置く
		card.toolbarEl.InsertBefore(card.scoreEl, down)
		if ctx.isOwn(c) {
			setAttr(up, "disabled", "disabled")
			setAttr(down, "disabled", "disabled")
		}
	}

	// 返信ボタン: ページがコメントを受け付けている場合のみ
	if !ctx.PageInfo.IsReadonly() {
		card.addButton(BtnReply, "comenta-btn")
	}

	// 承認/却下: モデレーターかつ保留中または却下済みのコメントのみ。
	// 一方向の遷移ではなくトグルとして機能する。
	if ctx.isModerator() && (c.IsPending || !c.IsApproved) {
		card.addButton(BtnApprove, "comenta-btn")
		card.addButton(BtnReject, "comenta-btn")
	}

	// スティッキートグル: ルートコメントのみ。モデレーター以外には
	// 「既にスティッキーなら見える」だけの無効ボタンとして描画する。
	if c.IsRoot() {
		sticky := card.addButton(BtnSticky, "comenta-btn-sticky")
		if !ctx.isModerator() {
			setAttr(sticky, "disabled", "disabled")
			if !c.IsSticky {
				addClass(sticky, "comenta-hidden")
			}
		}
	}

	if ctx.canEdit(c) {
		card.addButton(BtnEdit, "comenta-btn")
	}
	if ctx.canDelete(c) {
		card.addButton(BtnDelete, "comenta-btn")
	}
}

// addButton はツールバーにボタンを追加して登録する。
func (card *Card) addButton(title, class string) *html.Node {
	btn := newElement("button", "class", class, "title", title)
	card.toolbarEl.AppendChild(btn)
	card.buttons[title] = btn
	return btn
}

// SetComment は束縛するコメントレコードを差し替え、更新ルーチンを再実行する。
// ツールバーは再構築しない。ボタンの可視構成は構築時の権限のまま凍結され、
// 状態（アクティブ/保留/却下/削除）だけが新しいレコードから再導出される。
func (card *Card) SetComment(c *model.Comment) {
	card.comment = c
	card.update()
}

// update は束縛中のレコードから視覚状態をすべて再導出する。
func (card *Card) update() {
	c := card.comment

	if c.IsDeleted {
		card.applyDeleted()
		return
	}

	// スコアと自分の投票状態
	if card.scoreEl != nil {
		removeChildren(card.scoreEl)
		card.scoreEl.AppendChild(newText(formatScore(c.Score)))
		if up := card.buttons[BtnUpvote]; up != nil {
			toggleClass(up, "comenta-active", c.Direction > 0)
		}
		if down := card.buttons[BtnDownvote]; down != nil {
			toggleClass(down, "comenta-active", c.Direction < 0)
		}
	}

	// スティッキー状態
	if sticky := card.buttons[BtnSticky]; sticky != nil {
		toggleClass(sticky, "comenta-active", c.IsSticky)
	}

	// 保留/却下の視覚状態。承認/却下ボタンの有無は構築時に確定済み。
	pending := c.IsPending
	rejected := !c.IsPending && !c.IsApproved
	toggleClass(card.root, "comenta-pending", pending)
	toggleClass(card.root, "comenta-rejected", rejected)
	toggleClass(card.badgeEl, "comenta-hidden", !pending)
	switch {
	case pending:
		card.setNotice("This comment is awaiting moderation.")
	case rejected:
		card.setNotice("This comment was rejected by a moderator.")
	default:
		card.setNotice("")
	}

	card.updateSubtitle()
	setInnerHTML(card.bodyEl, c.HTML)
}

// applyDeleted は削除状態の描画を適用する。
// 全ボタンをDOMから取り除き、本文を固定のプレースホルダに差し替える。
// この遷移は描画上は不可逆で、以後の更新でもボタンは復活しない。
func (card *Card) applyDeleted() {
	if !card.renderedDeleted {
		for _, btn := range card.buttons {
			if btn.Parent != nil {
				btn.Parent.RemoveChild(btn)
			}
		}
		card.buttons = make(map[string]*html.Node)
		if card.scoreEl != nil && card.scoreEl.Parent != nil {
			card.scoreEl.Parent.RemoveChild(card.scoreEl)
			card.scoreEl = nil
		}
		card.renderedDeleted = true
	}

	addClass(card.root, "comenta-deleted")
	removeClass(card.root, "comenta-pending")
	removeClass(card.root, "comenta-rejected")
	addClass(card.badgeEl, "comenta-hidden")
	card.setNotice("")

	// 投稿者名がなければ角括弧プレースホルダ
	removeChildren(card.nameEl)
	name, _ := card.authorName()
	card.nameEl.AppendChild(newText(name))

	removeChildren(card.bodyEl)
	card.bodyEl.AppendChild(newText("(deleted)"))

	card.updateSubtitle()
}

// setNotice はモデレーション通知の表示を切り替える。
func (card *Card) setNotice(text string) {
	removeChildren(card.noticeEl)
	if text == "" {
		addClass(card.noticeEl, "comenta-hidden")
		return
	}
	removeClass(card.noticeEl, "comenta-hidden")
	card.noticeEl.AppendChild(newText(text))
}

// updateSubtitle は相対時刻と編集/削除の付記を再計算する。
func (card *Card) updateSubtitle() {
	c := card.comment
	text := RelativeTime(time.Now(), c.CreatedTime)

	// 編集/削除の付記。操作者が投稿者本人かモデレーターかを区別する。
	if c.IsDeleted && c.DeletedTime != "" {
		text += ", deleted " + byWhom(c.UserDeleted, c.UserCreated)
	} else if c.EditedTime != "" {
		text += ", edited " + byWhom(c.UserEdited, c.UserCreated)
	}

	removeChildren(card.subtitleEl)
	card.subtitleEl.AppendChild(newText(text))
}

// byWhom は操作者の付記を返す。操作者IDが開示されていない場合も
// 「操作された」事実は表示する。
func byWhom(actorID, authorID string) string {
	switch {
	case actorID == "":
		return "by moderator"
	case actorID == authorID:
		return "by author"
	default:
		return "by moderator"
	}
}

// renderChildComments は自分の子コメントのカードを並び順に従って描画する。
// 非削除のスティッキーコメントは比較子に関わらず先頭に来る（比較子側で
// 大きな重みとして実装されている）。
func (card *Card) renderChildComments() {
	children := card.ctx.ChildrenOf(card.commentID)
	RenderInto(card.childrenEl, children, card.ctx, card.registry, card.level+1, &card.children)
}

// RenderInto はコメントリストをソートしてカードを構築し、コンテナに追加する。
// ルートリストと子リストの両方で使用する。
func RenderInto(container *html.Node, comments []*model.Comment, ctx *Context, reg *Registry, level int, out *[]*Card) {
	sorted := make([]*model.Comment, len(comments))
	copy(sorted, comments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return ctx.Sort.Compare(sorted[i], sorted[j]) < 0
	})

	for _, c := range sorted {
		child := New(c, ctx, reg, level)
		container.AppendChild(child.root)
		if out != nil {
			*out = append(*out, child)
		}
	}
}

// AppendChildCard はライブ挿入で構築済みカードを子コンテナの末尾に追加する。
// 現在の並び順は無視される（既知の見た目上の妥協）。
func (card *Card) AppendChildCard(child *Card) {
	card.childrenEl.AppendChild(child.root)
	card.children = append(card.children, child)
}

// ToggleCollapse は子リストの折りたたみ状態を切り替える。
// ローカルなUIトグルであり、マップには影響せず、リロードで失われる。
func (card *Card) ToggleCollapse() {
	card.collapsed = !card.collapsed
	toggleClass(card.childrenEl, "comenta-collapsed", card.collapsed)
	if card.collapsed {
		setAttr(card.togglerEl, "title", "Expand children")
	} else {
		setAttr(card.togglerEl, "title", "Collapse children")
	}
}

// Collapsed は折りたたみ状態を返す。
func (card *Card) Collapsed() bool { return card.collapsed }

// Highlight はライブ更新の強調表示クラスを付与する。
// 投票更新では呼ばない（スコア変動のたびに点滅させない）。
func (card *Card) Highlight() {
	addClass(card.root, "comenta-highlight")
}

// HasButton は指定タイトルのボタンがDOM上に存在するかを返す。
func (card *Card) HasButton(title string) bool {
	btn := card.buttons[title]
	return btn != nil && btn.Parent != nil
}

// ButtonEnabled はボタンが存在し、無効化されていないかを返す。
func (card *Card) ButtonEnabled(title string) bool {
	btn := card.buttons[title]
	return btn != nil && btn.Parent != nil && getAttr(btn, "disabled") == ""
}

// --- ユーザー操作。カードは判断せず、Contextのコールバックに委譲する ---

// Vote は投票操作をオーケストレーターに委譲する。
// ボタンが存在しない・無効な場合は何もしない。
func (card *Card) Vote(direction int) {
	title := BtnUpvote
	if direction < 0 {
		title = BtnDownvote
	}
	if !card.ButtonEnabled(title) || card.ctx.OnVote == nil {
		return
	}
	card.ctx.OnVote(card.commentID, direction)
}

// Reply は返信操作を委譲する。
func (card *Card) Reply() {
	if !card.HasButton(BtnReply) || card.ctx.OnReply == nil {
		return
	}
	card.ctx.OnReply(card.commentID)
}

// Edit は編集操作を委譲する。
func (card *Card) Edit() {
	if !card.HasButton(BtnEdit) || card.ctx.OnEdit == nil {
		return
	}
	card.ctx.OnEdit(card.commentID)
}

// RequestDelete は削除の確認ステップに入る。コールバックはまだ発火しない。
func (card *Card) RequestDelete() {
	if !card.HasButton(BtnDelete) {
		return
	}
	card.confirmingDelete = true
}

// ConfirmDelete は確認済みの削除を委譲する。RequestDeleteを経ていない場合は何もしない。
func (card *Card) ConfirmDelete() {
	if !card.confirmingDelete || card.ctx.OnDelete == nil {
		return
	}
	card.confirmingDelete = false
	card.ctx.OnDelete(card.commentID)
}

// Moderate は承認/却下操作を委譲する。ボタンはトグルとして機能する。
func (card *Card) Moderate(approve bool) {
	title := BtnApprove
	if !approve {
		title = BtnReject
	}
	if !card.HasButton(title) || card.ctx.OnModerate == nil {
		return
	}
	card.ctx.OnModerate(card.commentID, approve)
}

// ToggleSticky はスティッキートグルを委譲する。
func (card *Card) ToggleSticky() {
	if !card.ButtonEnabled(BtnSticky) || card.ctx.OnSticky == nil {
		return
	}
	card.ctx.OnSticky(card.commentID, !card.comment.IsSticky)
}

// formatScore はスコアの表示文字列を返す。正のスコアには符号を付ける。
func formatScore(score int) string {
	if score > 0 {
		return "+" + strconv.Itoa(score)
	}
	return strconv.Itoa(score)
}

// avatarColourClass はアバターの色クラスを導出する。
func avatarColourClass(ctx *Context, c *model.Comment) string {
	idx := 0
	if cm := ctx.LookupCommenter(c.UserCreated); cm != nil {
		idx = cm.ColourIndex
	} else if c.UserCreated != "" {
		idx = model.ColourIndexFor(c.UserCreated, 8)
	}
	return "comenta-avatar-c" + strconv.Itoa(idx)
}
