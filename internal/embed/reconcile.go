package embed

import (
	"context"
	"log/slog"
	"time"

	"github.com/hitoshi/comenta/internal/card"
	"github.com/hitoshi/comenta/internal/liveupdate"
	"github.com/hitoshi/comenta/internal/model"
)

// fetchTimeout はライブ更新起点のID指定フェッチのタイムアウト。
const fetchTimeout = 10 * time.Second

// HandleMessage はライブ更新チャネルからの通知を既存のツリーに取り込む。
// 順不同の到着・自己エコー・閲覧者にまだ見えないコメントを許容する。
// 通知のペイロードはルーティング情報としてのみ信用し、コメントの内容は
// 必ずバックエンドにIDで問い合わせ直す（delete を除く）。
func (e *Engine) HandleMessage(msg *liveupdate.Message) {
	if e.collector != nil {
		e.collector.RecordLiveMessageReceived(msg.Action)
	}

	// 開いているページ宛てでない通知、コメントIDを欠く通知は捨てる
	if msg.Domain != e.host || msg.Path != e.path {
		e.discard("page-mismatch")
		return
	}
	if msg.Comment == "" {
		e.discard("no-id")
		return
	}

	// 自己エコー抑制。スロットは1つだけで、一致したら消費して捨てる。
	e.mu.Lock()
	if msg.Comment == e.lastOwnMutation {
		e.lastOwnMutation = ""
		e.mu.Unlock()
		e.discard("self-echo")
		return
	}
	e.mu.Unlock()

	if msg.Action == liveupdate.ActionDelete {
		e.applyRemoteDelete(msg.Comment)
		return
	}

	e.applyRemoteChange(msg)
}

// applyRemoteDelete は削除通知を適用する。
// サーバーから削除済みレコードを取り直すのではなく、手元のレコードから
// 削除版をその場で合成する。削除時刻は受信時刻であり、サーバーの時刻ではない。
// 子コメントは取り除かず、削除済みの親の下にそのまま残る。
func (e *Engine) applyRemoteDelete(commentID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existing := e.comments.FindByID(commentID)
	if existing == nil {
		e.discard("not-found")
		return
	}

	now := time.Now().UTC().Format(time.RFC3339)
	replaced := e.comments.ReplaceComment(commentID, existing.ParentKey(), func(c *model.Comment) {
		c.IsDeleted = true
		c.Markdown = ""
		c.HTML = ""
		c.DeletedTime = now
	})

	if bound := e.registry.Lookup(commentID); bound != nil {
		bound.SetComment(replaced)
	}
}

// applyRemoteChange はnew/update/vote/stickyの通知を適用する。
// IDで権威あるレコードを取り直し、既存スロットの差し替えまたは末尾追加を行う。
func (e *Engine) applyRemoteChange(msg *liveupdate.Message) {
	// 通知の嵐がバックエンドを叩き潰さないよう、フェッチはレート制限する
	if !e.fetchLimiter.Allow() {
		e.discard("rate-limited")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fetchTimeout)
	defer cancel()

	result, err := e.api.CommentGet(ctx, msg.Comment)
	if err != nil {
		// 閲覧者にまだ見えないコメント（承認待ち等）はここで弾かれる。
		// UIは変更せず黙って捨てる。
		e.logger.Debug("ライブ更新のコメント取得に失敗しました",
			slog.String("comment_id", msg.Comment),
			slog.String("error", err.Error()),
		)
		e.discard("fetch-failed")
		return
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if result.Commenter != nil {
		e.commenters[result.Commenter.ID] = result.Commenter
	}

	fetched := result.Comment
	fetched.HTML = e.sanitizer.Sanitize(fetched.HTML)
	parentKey := fetched.ParentKey()

	// 既存エントリがあればスロットを差し替え、カードに直接反映する
	for _, sibling := range e.comments.ListFor(parentKey, false) {
		if sibling.ID == fetched.ID {
			replaced := e.comments.ReplaceComment(fetched.ID, parentKey, func(c *model.Comment) {
				*c = *fetched
			})
			if bound := e.registry.Lookup(fetched.ID); bound != nil {
				bound.SetComment(replaced)
				if msg.Action != liveupdate.ActionVote {
					bound.Highlight()
				}
			}
			return
		}
	}

	// 未知のコメント: 親カードが解決できなければ捨てる（再試行キューはない）
	var parentCard *card.Card
	if !fetched.IsRoot() {
		parentCard = e.registry.Lookup(parentKey)
		if parentCard == nil {
			e.discard("parent-missing")
			return
		}
	}

	// 末尾追加。現在の並び順は無視される（既知の見た目上の妥協）。
	e.comments.Add(fetched)

	level := 0
	if parentCard != nil {
		level = parentCard.Level() + 1
	}
	newCard := card.New(fetched, e.cardContext(), e.registry, level)

	if parentCard != nil {
		parentCard.AppendChildCard(newCard)
	} else {
		e.rootEl.AppendChild(newCard.Node())
		e.rootCards = append(e.rootCards, newCard)
	}

	if msg.Action != liveupdate.ActionVote {
		newCard.Highlight()
	}
}

// discard は通知の破棄をメトリクスに記録する。
func (e *Engine) discard(reason string) {
	if e.collector != nil {
		e.collector.RecordLiveMessageDiscarded(reason)
	}
}
