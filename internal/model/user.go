// Package model はドメインモデルを定義する。
package model

import "hash/fnv"

// AnonymousUserID は匿名システムユーザーを示す周知のID。
const AnonymousUserID = "00000000-0000-0000-0000-000000000000"

// Commenter はコメント投稿者を表す。
// ページセッション中はIDをキーとするマップに蓄積され、削除されることはない。
type Commenter struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ColourIndex int    `json:"colourIndex"` // アバター色を決めるハッシュ由来のインデックス
	HasAvatar   bool   `json:"hasAvatar"`
	WebsiteURL  string `json:"websiteUrl,omitempty"`
	IsModerator bool   `json:"isModerator"` // ドメイン単位のモデレーター権限
}

// IsAnonymous は匿名システムユーザーかどうかを返す。
func (c *Commenter) IsAnonymous() bool {
	return c.ID == AnonymousUserID
}

// ColourIndexFor はユーザーIDから決定的にアバター色インデックスを導出する。
// バックエンドがcolourIndexを返さない場合の補完に使用する。
func ColourIndexFor(id string, palette int) int {
	if palette <= 0 {
		return 0
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(id))
	return int(h.Sum32() % uint32(palette))
}

// Principal は現在の閲覧者の身元と権限を表す。
// nilのPrincipalは未認証の閲覧者を意味する。
type Principal struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email,omitempty"`
	IsSuperuser bool   `json:"isSuperuser"`
	IsOwner     bool   `json:"isOwner"`
	IsModerator bool   `json:"isModerator"`

	// 通知設定
	NotifyReplies       bool `json:"notifyReplies"`
	NotifyModerator     bool `json:"notifyModerator"`
	NotifyCommentStatus bool `json:"notifyCommentStatus"`
}

// CanModerate はモデレーション操作が可能かどうかを返す。
func (p *Principal) CanModerate() bool {
	return p != nil && (p.IsSuperuser || p.IsOwner || p.IsModerator)
}
