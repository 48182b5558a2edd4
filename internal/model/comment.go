// Package model はドメインモデルを定義する。
package model

// RootParentKey はルートコメントをインデックスする際の番兵キー。
// ParentIDが空のコメントはこのキーの下に格納される。
const RootParentKey = ""

// Comment はページ上の1件のコメントを表す。
// 時刻フィールドはバックエンドが返すISO 8601文字列をそのまま保持する。
// 時刻の比較はISO文字列の辞書順比較で行う（ソート比較子も同様）。
type Comment struct {
	ID       string `json:"id"`
	ParentID string `json:"parentId,omitempty"` // 空文字列はルートコメント

	Markdown string `json:"markdown,omitempty"`
	HTML     string `json:"html,omitempty"` // レンダリング済みHTML（未レンダリング時は空）

	IsApproved bool `json:"isApproved"`
	IsPending  bool `json:"isPending"`
	IsDeleted  bool `json:"isDeleted"`
	IsSticky   bool `json:"isSticky"` // ルートコメントのみ意味を持つ

	Score     int `json:"score"`     // 合計スコア（負値あり）
	Direction int `json:"direction"` // 閲覧者自身の投票: -1, 0, 1

	CreatedTime   string `json:"createdTime"` // 必須
	ModeratedTime string `json:"moderatedTime,omitempty"`
	DeletedTime   string `json:"deletedTime,omitempty"`
	EditedTime    string `json:"editedTime,omitempty"`

	// 操作者のユーザーID。未設定は「閲覧者に開示されていない」ことを意味し、
	// 「操作者がいない」ことを意味しない。
	UserCreated   string `json:"userCreated,omitempty"`
	UserModerated string `json:"userModerated,omitempty"`
	UserDeleted   string `json:"userDeleted,omitempty"`
	UserEdited    string `json:"userEdited,omitempty"`

	// AuthorName は未登録（匿名）投稿者の表示名にのみ使用する。
	AuthorName string `json:"authorName,omitempty"`
}

// IsRoot はルートコメント（親を持たない）かどうかを返す。
func (c *Comment) IsRoot() bool {
	return c.ParentID == ""
}

// ParentKey はCommentParentMapのインデックスキーを返す。
// 親を持たない場合はRootParentKeyを返す。
func (c *Comment) ParentKey() string {
	if c.ParentID == "" {
		return RootParentKey
	}
	return c.ParentID
}

// CommentSort はコメントの並び順を表す。
type CommentSort string

const (
	// SortTimeAsc は投稿日時の昇順（古い順）。
	SortTimeAsc CommentSort = "ta"
	// SortTimeDesc は投稿日時の降順（新しい順）。
	SortTimeDesc CommentSort = "td"
	// SortScoreAsc はスコアの昇順。
	SortScoreAsc CommentSort = "sa"
	// SortScoreDesc はスコアの降順。
	SortScoreDesc CommentSort = "sd"
)

// Compare は並び順に従って2つのコメントを比較する。
// 負値はaが先、正値はbが先であることを示す。
// 非削除のスティッキーコメントは比較子の結果に関わらず常に先頭に来る
// （実際のスコアや日時比較では到達しない大きな重みを与える）。
func (s CommentSort) Compare(a, b *Comment) int {
	wa, wb := stickyWeight(a), stickyWeight(b)
	if wa != wb {
		return wa - wb
	}

	switch s {
	case SortTimeAsc:
		return compareISO(a.CreatedTime, b.CreatedTime)
	case SortTimeDesc:
		return compareISO(b.CreatedTime, a.CreatedTime)
	case SortScoreAsc:
		return a.Score - b.Score
	case SortScoreDesc:
		return b.Score - a.Score
	default:
		return compareISO(a.CreatedTime, b.CreatedTime)
	}
}

// stickyWeight はスティッキーコメントの優先重みを返す。
// 削除済みコメントはスティッキーでも優先しない。
func stickyWeight(c *Comment) int {
	if c.IsSticky && !c.IsDeleted {
		return -1_000_000
	}
	return 0
}

// compareISO はISO 8601文字列を辞書順で比較する。
func compareISO(a, b string) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
