// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ContentSanitizerService はユーザーが投稿するテキスト（フォーラムの投稿、
// ワードローブやコーディネートの説明）をサニタイズする。
// bluemondayの許可リストポリシーで安全なタグのみを通過させる。
package security

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ContentSanitizerService はユーザー投稿テキストのサニタイズ機能のインターフェース。
type ContentSanitizerService interface {
	// Sanitize は本文用のサニタイズを行う。
	// 許可タグ（p, br, a, ul, ol, li, blockquote, strong, em）のみを通過させ、
	// aタグにはrel="nofollow noopener noreferrer"を付与する。
	// 同一入力に対して常に同一出力を返す。
	Sanitize(raw string) string

	// PlainText は全てのタグを除去し、前後の空白を取り除く。
	// タイトル、名前、タグなど1行のフィールドに使う。
	PlainText(raw string) string
}

// contentSanitizer はContentSanitizerServiceの実装。
// bluemondayのポリシーはスレッドセーフに共有できる。
type contentSanitizer struct {
	body  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewContentSanitizer はContentSanitizerServiceの新しいインスタンスを生成する。
// ポリシーの内容:
//   - 本文: p, br, ul, ol, li, blockquote, strong, em と a[href]
//   - aのhrefはhttp/httpsの絶対URLのみ
//   - 画像、script、iframe、styleおよびon*イベント属性は除去
func NewContentSanitizer() *contentSanitizer {
	body := bluemonday.NewPolicy()
	body.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "strong", "em",
	)
	body.AllowAttrs("href").OnElements("a")
	body.AllowURLSchemes("http", "https")
	body.AllowRelativeURLs(false)
	body.RequireNoFollowOnLinks(true)
	body.RequireNoReferrerOnLinks(true)
	body.AddTargetBlankToFullyQualifiedLinks(true)

	return &contentSanitizer{
		body:  body,
		plain: bluemonday.StrictPolicy(),
	}
}

// Sanitize は本文用のサニタイズを行う。
func (s *contentSanitizer) Sanitize(raw string) string {
	return strings.TrimSpace(s.body.Sanitize(raw))
}

// PlainText は全てのタグを除去する。
func (s *contentSanitizer) PlainText(raw string) string {
	return strings.TrimSpace(s.plain.Sanitize(raw))
}
