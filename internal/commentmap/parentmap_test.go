package commentmap

import (
	"sort"
	"testing"

	"github.com/hitoshi/comenta/internal/model"
)

func newComment(id, parentID string) *model.Comment {
	return &model.Comment{ID: id, ParentID: parentID, CreatedTime: "2024-01-01T00:00:00Z"}
}

// TestRefill_RoundTrip はRefill後に観測した全親キーのリストを連結すると、
// 元のリストのID多重集合が過不足なく再現されることを検証する。
func TestRefill_RoundTrip(t *testing.T) {
	comments := []*model.Comment{
		newComment("a", ""),
		newComment("b", ""),
		newComment("a1", "a"),
		newComment("a2", "a"),
		newComment("a1x", "a1"),
		newComment("c", ""),
	}

	m := New()
	m.Refill(comments)

	keys := map[string]bool{}
	for _, c := range comments {
		keys[c.ParentKey()] = true
	}

	var got []string
	for key := range keys {
		for _, c := range m.ListFor(key, false) {
			got = append(got, c.ID)
		}
	}

	want := []string{"a", "b", "a1", "a2", "a1x", "c"}
	sort.Strings(got)
	sort.Strings(want)
	if len(got) != len(want) {
		t.Fatalf("コメント数が一致しません: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ID多重集合が一致しません: got %v, want %v", got, want)
			break
		}
	}
}

// TestAdd_CreatesListForParentKey はAddが親キーごとのリストを作成して追加することを検証する。
func TestAdd_CreatesListForParentKey(t *testing.T) {
	m := New()
	root := newComment("r", "")
	child := newComment("c", "r")

	m.Add(root)
	m.Add(child)

	if got := len(m.ListFor(model.RootParentKey, false)); got != 1 {
		t.Errorf("ルートリストの長さ: got %d, want 1", got)
	}
	if got := len(m.ListFor("r", false)); got != 1 {
		t.Errorf("rの子リストの長さ: got %d, want 1", got)
	}
}

// TestListFor_AllowUpdate はallowUpdateの真偽で内部状態の変化が異なることを検証する。
func TestListFor_AllowUpdate(t *testing.T) {
	m := New()

	// 読み取り専用プローブは内部状態を変更しない
	_ = m.ListFor("x", false)
	if _, ok := m.lists["x"]; ok {
		t.Error("allowUpdate=falseでリストが作成されました")
	}

	// allowUpdate=trueは空リストを作成して保持する
	_ = m.ListFor("x", true)
	if _, ok := m.lists["x"]; !ok {
		t.Error("allowUpdate=trueでリストが作成されませんでした")
	}

	// 作成済みリストへのAddは同じキーに着地する
	m.Add(newComment("x1", "x"))
	if got := len(m.ListFor("x", false)); got != 1 {
		t.Errorf("xの子リストの長さ: got %d, want 1", got)
	}
}

// TestRemove はRemoveが自身の子インデックスを落としつつ親リストから参照同一性で除去することを検証する。
func TestRemove(t *testing.T) {
	m := New()
	root := newComment("r", "")
	child := newComment("c", "r")
	grandchild := newComment("g", "c")
	m.Add(root)
	m.Add(child)
	m.Add(grandchild)

	m.Remove(child)

	if got := len(m.ListFor("r", false)); got != 0 {
		t.Errorf("rの子リストの長さ: got %d, want 0", got)
	}
	if _, ok := m.lists["c"]; ok {
		t.Error("cの子インデックスが削除されていません")
	}

	// 同じIDでも別インスタンスは除去されない（参照同一性）
	other := newComment("r", "")
	m.Remove(other)
	if got := len(m.ListFor(model.RootParentKey, false)); got != 1 {
		t.Errorf("別インスタンスのRemoveでルートリストが変化しました: got %d, want 1", got)
	}
}

// TestRemove_NotFound は未登録コメントのRemoveが何もしないことを検証する。
func TestRemove_NotFound(t *testing.T) {
	m := New()
	m.Add(newComment("a", ""))

	m.Remove(newComment("zzz", ""))

	if got := m.Count(); got != 1 {
		t.Errorf("Count: got %d, want 1", got)
	}
}

// TestFindByID はFindByIDが全リスト横断で最初の一致を返すことを検証する。
func TestFindByID(t *testing.T) {
	m := New()
	m.Add(newComment("a", ""))
	m.Add(newComment("a1", "a"))

	if c := m.FindByID("a1"); c == nil || c.ID != "a1" {
		t.Errorf("FindByID(a1): got %v", c)
	}
	if c := m.FindByID("nope"); c != nil {
		t.Errorf("FindByID(nope): got %v, want nil", c)
	}
}

// TestReplaceComment は差し替えが新しいオブジェクトをスロットに設置し、
// 既存フィールドを引き継ぐことを検証する。
func TestReplaceComment(t *testing.T) {
	m := New()
	orig := newComment("a", "")
	orig.Markdown = "hello"
	m.Add(orig)

	replaced := m.ReplaceComment("a", model.RootParentKey, func(c *model.Comment) {
		c.Score = 5
	})

	if replaced == orig {
		t.Error("差し替え後も同一オブジェクトが返されました")
	}
	if replaced.Score != 5 {
		t.Errorf("Score: got %d, want 5", replaced.Score)
	}
	if replaced.Markdown != "hello" {
		t.Errorf("既存フィールドが引き継がれていません: Markdown=%q", replaced.Markdown)
	}

	// スロット自体も差し替わっている
	list := m.ListFor(model.RootParentKey, false)
	if list[0] != replaced {
		t.Error("リストのスロットが差し替わっていません")
	}
}

// TestReplaceComment_NotFound は未検出時もゼロ値ベースの結果を返すことを検証する。
// 呼び出し側はこれを退化した正常結果として扱う。
func TestReplaceComment_NotFound(t *testing.T) {
	m := New()

	got := m.ReplaceComment("ghost", model.RootParentKey, func(c *model.Comment) {
		c.IsDeleted = true
	})

	if got == nil {
		t.Fatal("nilが返されました")
	}
	if got.ID != "ghost" || !got.IsDeleted {
		t.Errorf("退化結果が不正です: %+v", got)
	}
	if m.Count() != 0 {
		t.Error("未検出の差し替えでコメントが挿入されました")
	}
}

// TestCount はCountがルートから到達可能なコメントのみを数えることを検証する。
// 孤児サブツリー（ルートから辿れない親キーの下のコメント）は数えない。
func TestCount(t *testing.T) {
	m := New()
	m.Add(newComment("a", ""))
	m.Add(newComment("a1", "a"))
	m.Add(newComment("a1x", "a1"))
	m.Add(newComment("orphan", "missing-parent"))

	if got := m.Count(); got != 3 {
		t.Errorf("Count: got %d, want 3", got)
	}

	// Add/Removeの任意の列の後もルート到達可能数と一致する
	c := m.FindByID("a1")
	m.Remove(c)
	if got := m.Count(); got != 1 {
		t.Errorf("Remove後のCount: got %d, want 1", got)
	}
}
