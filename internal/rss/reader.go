// Package rss はページのコメントRSSフィードのプレビュー取得を提供する。
// RSSボタンのリンク先フィードを読み、最新コメントの要約リストに変換する。
package rss

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/comenta/internal/security"
)

const (
	// defaultMaxEntries はプレビューに含める最大エントリ数。
	defaultMaxEntries = 10
	// maxBodySize はフィード本文の読み取り上限（1MB）。
	maxBodySize = 1 << 20
	// snippetLength は要約の最大文字数。
	snippetLength = 200
)

// Entry はコメントRSSの1エントリの要約。
type Entry struct {
	Title      string `json:"title"`
	Link       string `json:"link"`
	AuthorName string `json:"authorName,omitempty"`
	Published  string `json:"published,omitempty"`
	Snippet    string `json:"snippet,omitempty"`
}

// Reader はコメントRSSフィードのプレビューリーダー。
// フィードURLはページ設定由来だが、取得前にSSRF検証を通す。
type Reader struct {
	httpClient *http.Client
	logger     *slog.Logger
	guard      security.SSRFGuardService
	maxEntries int
}

// NewReader はReader の新しいインスタンスを生成する。
func NewReader(httpClient *http.Client, guard security.SSRFGuardService, logger *slog.Logger) *Reader {
	return &Reader{
		httpClient: httpClient,
		logger:     logger,
		guard:      guard,
		maxEntries: defaultMaxEntries,
	}
}

// Fetch はフィードを取得してパースし、最新エントリの要約リストを返す。
func (r *Reader) Fetch(ctx context.Context, feedURL string) ([]Entry, error) {
	if err := r.guard.ValidateURL(feedURL); err != nil {
		return nil, fmt.Errorf("フィードURLの検証に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", "Comenta-Embed/1.0")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Error("コメントRSSの取得に失敗しました",
			slog.String("feed_url", feedURL),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("コメントRSSがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("フィードのパースに失敗しました: %w", err)
	}

	return r.convert(feed), nil
}

// convert はgofeedのフィードをエントリ要約に変換する。
func (r *Reader) convert(feed *gofeed.Feed) []Entry {
	entries := make([]Entry, 0, r.maxEntries)
	for _, item := range feed.Items {
		if len(entries) >= r.maxEntries {
			break
		}

		e := Entry{
			Title:   item.Title,
			Link:    item.Link,
			Snippet: snippet(item.Description),
		}
		if item.Author != nil {
			e.AuthorName = item.Author.Name
		}
		if item.PublishedParsed != nil {
			e.Published = item.PublishedParsed.UTC().Format("2006-01-02T15:04:05Z07:00")
		} else {
			e.Published = item.Published
		}
		entries = append(entries, e)
	}
	return entries
}

// snippet は説明文をプレーンテキストの要約に切り詰める。
func snippet(description string) string {
	text := strings.TrimSpace(stripTags(description))
	runes := []rune(text)
	if len(runes) <= snippetLength {
		return text
	}
	return string(runes[:snippetLength]) + "…"
}

// stripTags はHTMLタグを雑に取り除く。表示用の要約であり、
// 再びHTMLとして解釈されることはない。
func stripTags(s string) string {
	var sb strings.Builder
	inTag := false
	for _, r := range s {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
