// Package model はドメインモデルを定義する。
package model

// PageInfo はページ/ドメイン単位の設定スナップショットを表す。
// ページロード時に1回取得し、リロード時に丸ごと差し替える。部分更新はしない。
type PageInfo struct {
	DomainID   string `json:"domainId"`
	DomainName string `json:"domainName"`
	PageID     string `json:"pageId"`
	Path       string `json:"path"`

	IsDomainReadonly bool `json:"isDomainReadonly"`
	IsPageReadonly   bool `json:"isPageReadonly"`

	// 有効な認証方式
	AuthAnonymous     bool     `json:"authAnonymous"`
	AuthLocal         bool     `json:"authLocal"`
	AuthSSO           bool     `json:"authSso"`
	SSONonInteractive bool     `json:"ssoNonInteractive"`
	IdPs              []string `json:"idps,omitempty"`

	DefaultSort CommentSort `json:"defaultSort"`

	// 編集・削除の権限マトリクス
	EnableCommentEditing    bool `json:"enableCommentEditing"`    // 投稿者本人の編集
	EnableCommentDeletion   bool `json:"enableCommentDeletion"`   // 投稿者本人の削除
	EnableModeratorEditing  bool `json:"enableModeratorEditing"`  // モデレーターによる編集
	EnableModeratorDeletion bool `json:"enableModeratorDeletion"` // モデレーターによる削除

	EnableVoting bool   `json:"enableVoting"`
	EnableRSS    bool   `json:"enableRss"`
	RSSURL       string `json:"rssUrl,omitempty"`

	MaxCommentLength int `json:"maxCommentLength"`
}

// IsReadonly はページがコメント受付を停止しているかどうかを返す。
// ドメイン単位またはページ単位のどちらかが読み取り専用なら真。
func (p *PageInfo) IsReadonly() bool {
	return p.IsDomainReadonly || p.IsPageReadonly
}

// HasAuthMethod はいずれかの認証方式が有効かどうかを返す。
func (p *PageInfo) HasAuthMethod() bool {
	return p.AuthAnonymous || p.AuthLocal || p.AuthSSO || len(p.IdPs) > 0
}

// HasNonInteractiveSso は非対話型SSOが有効かどうかを返す。
func (p *PageInfo) HasNonInteractiveSso() bool {
	return p.AuthSSO && p.SSONonInteractive
}
