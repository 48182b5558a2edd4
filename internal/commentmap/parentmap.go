// Package commentmap はコメントフォレストの親IDインデックスを提供する。
// 「どのコメントが存在し、どうネストしているか」の唯一の情報源であり、
// 親キー（ルートは番兵キー）から子コメントの順序付きリストへのマップを保持する。
package commentmap

import "github.com/hitoshi/comenta/internal/model"

// ParentMap は親キーごとのコメントリストを保持するインデックス。
// ソートは保持せず、並び替えは描画側の比較子が行う。
// ブラウザのメインスレッド相当の単一ゴルーチンから操作される前提で、ロックは持たない。
type ParentMap struct {
	lists map[string][]*model.Comment
}

// New は空のParentMapを生成する。
func New() *ParentMap {
	return &ParentMap{lists: make(map[string][]*model.Comment)}
}

// Add はコメントを親キーのリスト末尾に追加する。
// リストが存在しない場合は作成する。重複チェックは行わない（呼び出し側の責務）。
func (m *ParentMap) Add(c *model.Comment) {
	key := c.ParentKey()
	m.lists[key] = append(m.lists[key], c)
}

// Remove はコメントをインデックスから取り除く。
// コメント自身のIDをキーとするリスト（子サブツリーのインデックス）を削除し、
// 親のリストからは参照同一性で該当エントリを除去する。見つからない場合は何もしない。
func (m *ParentMap) Remove(c *model.Comment) {
	delete(m.lists, c.ID)

	key := c.ParentKey()
	list := m.lists[key]
	for i, e := range list {
		if e == c {
			m.lists[key] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// ListFor は親キーに対応するリストを返す。
// allowUpdateが真の場合、リストが未作成なら空リストを作成して内部に保持する
// （後続のAddが予測どおりの場所に着地する）。偽の場合は内部状態を変更せず、
// 未作成なら新しい空スライスを返す（読み取り専用プローブ）。
func (m *ParentMap) ListFor(parentKey string, allowUpdate bool) []*model.Comment {
	if list, ok := m.lists[parentKey]; ok {
		return list
	}
	if allowUpdate {
		list := make([]*model.Comment, 0)
		m.lists[parentKey] = list
		return list
	}
	return []*model.Comment{}
}

// FindByID は全リストを線形走査して最初に一致したコメントを返す。
// 見つからない場合はnilを返す。ライブ更新での親カード解決など低頻度の用途に限る。
func (m *ParentMap) FindByID(id string) *model.Comment {
	for _, list := range m.lists {
		for _, c := range list {
			if c.ID == id {
				return c
			}
		}
	}
	return nil
}

// Refill はフラットなコメントリストからインデックス全体を1パスで再構築する。
// 以前の状態は丸ごと破棄される。古いコメントを参照しているカードは
// 呼び出し側が再描画する必要がある。
func (m *ParentMap) Refill(comments []*model.Comment) {
	m.lists = make(map[string][]*model.Comment, len(comments))
	for _, c := range comments {
		key := c.ParentKey()
		m.lists[key] = append(m.lists[key], c)
	}
}

// ReplaceComment はparentKeyのリスト内でIDが一致するコメントを探し、
// 既存フィールドを引き継いだ新しいコメントにmutateを適用してスロットを差し替える。
// 見つからない場合もゼロ値にmutateを適用した結果を返す（挿入はしない）。
// 呼び出し側は未検出を退化した正常結果として扱うこと。
// コメントはIDをキーにカードレジストリと紐づくため、差し替えでリンクは失われない。
func (m *ParentMap) ReplaceComment(id, parentKey string, mutate func(*model.Comment)) *model.Comment {
	list := m.lists[parentKey]
	for i, c := range list {
		if c.ID == id {
			clone := *c
			if mutate != nil {
				mutate(&clone)
			}
			list[i] = &clone
			return &clone
		}
	}

	clone := model.Comment{ID: id, ParentID: parentKey}
	if mutate != nil {
		mutate(&clone)
	}
	return &clone
}

// Count はルート番兵キーから各コメント自身のIDをキーとして再帰的に下り、
// ルートから到達可能な描画対象コメントの総数を返す。
// Add/Refillが循環を作らない前提でのみ安全（循環は二重計上される）。
func (m *ParentMap) Count() int {
	return m.countUnder(model.RootParentKey)
}

func (m *ParentMap) countUnder(key string) int {
	list := m.lists[key]
	n := len(list)
	for _, c := range list {
		n += m.countUnder(c.ID)
	}
	return n
}
