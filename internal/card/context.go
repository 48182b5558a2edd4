package card

import "github.com/hitoshi/comenta/internal/model"

// Context はカードツリーの描画時に上から下へ引き回される不変のバンドル。
// コールバックと権限フラグを能力注入の形で渡し、グローバル状態を避ける。
// ツールバーのボタン構成はカード構築時のContextの内容で確定し、
// 以後のレコード更新ではボタンの有効/状態のみが変わる（ページ設定は
// セッション中に変化しない前提の意図的な設計）。
type Context struct {
	Principal *model.Principal
	PageInfo  *model.PageInfo
	Sort      model.CommentSort
	MaxLevel  int // これを超える深さの子リストは平坦表示クラスで描画する

	// LookupCommenter は投稿者IDからCommenterを解決する。未知ならnil。
	LookupCommenter func(id string) *model.Commenter
	// ChildrenOf は親キーに対する子コメントリストの読み取り専用プローブ。
	ChildrenOf func(parentKey string) []*model.Comment

	// ユーザー操作のコールバック。カードはイベントを自分で処理せず、
	// オーケストレーターに委譲する。
	OnVote     func(commentID string, direction int)
	OnReply    func(parentID string)
	OnEdit     func(commentID string)
	OnDelete   func(commentID string)
	OnModerate func(commentID string, approve bool)
	OnSticky   func(commentID string, sticky bool)
}

// curUserID は現在の閲覧者のユーザーIDを返す。未認証なら空文字列。
func (ctx *Context) curUserID() string {
	if ctx.Principal == nil {
		return ""
	}
	return ctx.Principal.ID
}

// isModerator は閲覧者がモデレーション可能かどうかを返す。
func (ctx *Context) isModerator() bool {
	return ctx.Principal.CanModerate()
}

// isOwn は閲覧者がコメントの投稿者本人かどうかを返す。
func (ctx *Context) isOwn(c *model.Comment) bool {
	id := ctx.curUserID()
	return id != "" && id == c.UserCreated
}

// canEdit は編集ボタンを表示すべきかどうかを返す。
// （モデレーター かつ モデレーター編集許可）または（本人 かつ 本人編集許可）。
func (ctx *Context) canEdit(c *model.Comment) bool {
	if ctx.isModerator() && ctx.PageInfo.EnableModeratorEditing {
		return true
	}
	return ctx.isOwn(c) && ctx.PageInfo.EnableCommentEditing
}

// canDelete は削除ボタンを表示すべきかどうかを返す。
func (ctx *Context) canDelete(c *model.Comment) bool {
	if ctx.isModerator() && ctx.PageInfo.EnableModeratorDeletion {
		return true
	}
	return ctx.isOwn(c) && ctx.PageInfo.EnableCommentDeletion
}
