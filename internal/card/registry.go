package card

// Registry はコメントIDから現在そのコメントを描画しているカードへの索引。
// コメント→カードの相互参照サイクルの代わりに、安定したIDをキーとする
// 片方向の索引を持つ。コメントレコードを差し替えてもIDは変わらないため、
// 差し替えでカードとの紐付けが失われることはない。
// 1つのコメントを参照するカードは常に高々1つ。
type Registry struct {
	cards map[string]*Card
}

// NewRegistry は空のRegistryを生成する。
func NewRegistry() *Registry {
	return &Registry{cards: make(map[string]*Card)}
}

// Bind はコメントIDにカードを紐付ける。既存の紐付けは上書きされる。
func (r *Registry) Bind(commentID string, c *Card) {
	r.cards[commentID] = c
}

// Release は紐付けを解除する。該当がなければ何もしない。
func (r *Registry) Release(commentID string) {
	delete(r.cards, commentID)
}

// Lookup はコメントIDを描画中のカードを返す。なければnil。
func (r *Registry) Lookup(commentID string) *Card {
	return r.cards[commentID]
}

// Clear は全紐付けを破棄する。全面再描画（refill後）の前に呼ぶ。
func (r *Registry) Clear() {
	r.cards = make(map[string]*Card)
}

// Len は現在紐付いているカード数を返す。
func (r *Registry) Len() int {
	return len(r.cards)
}
